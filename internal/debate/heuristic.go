package debate

import (
	"context"
	"fmt"

	"github.com/verdictlab/verdictgo/internal/models"
)

// evidenceDebater is the default rule-based debater: stance and confidence
// are pure functions of the supported claim pool and the previous round's
// snapshot, so a run of identical rounds always reaches a fixed point.
type evidenceDebater struct{}

func (d *evidenceDebater) Argue(ctx context.Context, role models.DebateRole, pool *ClaimPool, prev []models.DebatePosition, round int) (models.DebatePosition, error) {
	bullish, bearish := pool.Partition()

	var own, opposing []PoolClaim
	switch role {
	case models.RoleBull, models.RoleRiskSeek:
		own, opposing = bullish, bearish
	case models.RoleBear, models.RoleRiskAverse:
		own, opposing = bearish, bullish
	default:
		return models.DebatePosition{}, fmt.Errorf("unknown role %q", role)
	}

	pos := models.DebatePosition{
		Role:           role,
		Recommendation: recommend(role, len(bullish), len(bearish)),
		Cites:          citeIDs(own),
		Confidence:     baseConfidence(own, pool.DegradedFraction()),
	}
	pos.Argument = argueText(role, len(own), len(opposing))

	// After the seed round a stance outweighed by the other side concedes
	// confidence instead of holding conviction without backing.
	if round > 0 && len(opposing) > len(own) {
		pos.Confidence *= float64(len(own)+1) / float64(len(opposing)+1)
	}
	return pos, nil
}

// recommend maps claim balance to an action with the role's bias applied.
func recommend(role models.DebateRole, nBullish, nBearish int) models.Action {
	net := nBullish - nBearish
	switch role {
	case models.RoleBull:
		if nBullish > 0 {
			return models.ActionBuy
		}
	case models.RoleBear:
		if nBearish > 0 {
			return models.ActionSell
		}
	case models.RoleRiskSeek:
		// Acts on any signal at all.
		if net > 0 {
			return models.ActionBuy
		}
		if net < 0 {
			return models.ActionSell
		}
	case models.RoleRiskAverse:
		// Needs a clear margin before leaving hold.
		if net <= -2 {
			return models.ActionSell
		}
	}
	return models.ActionHold
}

func citeIDs(claims []PoolClaim) []string {
	ids := make([]string, 0, len(claims))
	for _, pc := range claims {
		ids = append(ids, pc.ID)
	}
	return ids
}

// baseConfidence averages the cited claims' own confidence and discounts
// by the degraded share of the inputs.
func baseConfidence(own []PoolClaim, degradedFraction float64) float64 {
	if len(own) == 0 {
		return 0.2
	}
	sum := 0.0
	for _, pc := range own {
		sum += pc.Confidence
	}
	conf := sum / float64(len(own))
	return conf * (1 - 0.5*degradedFraction)
}

func argueText(role models.DebateRole, own, opposing int) string {
	return fmt.Sprintf("%s position backed by %d supported claims against %d opposing", role, own, opposing)
}
