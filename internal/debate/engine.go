package debate

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/verdictlab/verdictgo/internal/models"
)

// nonConvergencePenalty is applied to every final confidence when the
// round limit is hit before a fixed point.
const nonConvergencePenalty = 0.85

// noEvidencePenalty halves confidence when a role holds a stance it cannot
// back with a single supported citation.
const noEvidencePenalty = 0.5

// Debater produces one role's next position given the pool and the
// previous round's snapshot. Implementations must be side-effect free on
// their inputs; cross-round state carries only through positions.
type Debater interface {
	Argue(ctx context.Context, role models.DebateRole, pool *ClaimPool, prev []models.DebatePosition, round int) (models.DebatePosition, error)
}

// Outcome is the engine's terminal result: one position per role.
type Outcome struct {
	Positions map[models.DebateRole]models.DebatePosition `json:"positions"`
	Rounds    int                                         `json:"rounds"`
	Converged bool                                        `json:"converged"`
}

// Engine drives the bounded debate protocol. Single-threaded and
// cooperative: roles are evaluated sequentially within a round.
type Engine struct {
	maxRounds int
	debaters  map[models.DebateRole]Debater
	log       *zap.Logger
}

// NewEngine builds an engine with the standard four roles. Pass nil
// debaters to use the evidence-weighted defaults.
func NewEngine(maxRounds int, debaters map[models.DebateRole]Debater, log *zap.Logger) *Engine {
	if maxRounds <= 0 {
		maxRounds = 3
	}
	if log == nil {
		log = zap.NewNop()
	}
	if debaters == nil {
		debaters = map[models.DebateRole]Debater{}
	}
	for _, role := range models.DebateRoles {
		if debaters[role] == nil {
			debaters[role] = &evidenceDebater{}
		}
	}
	return &Engine{maxRounds: maxRounds, debaters: debaters, log: log.Named("debate")}
}

// Run iterates rounds until two consecutive rounds produce identical
// positions or the round limit is reached. Confidence is monotonically
// non-increasing across rounds for a role unless that role cited new
// supported evidence in the round.
func (e *Engine) Run(ctx context.Context, pool *ClaimPool) (*Outcome, error) {
	var prev []models.DebatePosition

	for round := 0; round < e.maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		current := make([]models.DebatePosition, 0, len(models.DebateRoles))
		for _, role := range models.DebateRoles {
			pos, err := e.debaters[role].Argue(ctx, role, pool, prev, round)
			if err != nil {
				return nil, fmt.Errorf("debater %s round %d: %w", role, round, err)
			}
			pos.Role = role
			pos.Round = round
			pos = e.enforce(pool, pos, prevFor(prev, role))
			current = append(current, pos)
		}

		if prev != nil && fixedPoint(prev, current) {
			e.log.Debug("debate reached fixed point",
				zap.Int("round", round), zap.String("ticker", pool.Ticker))
			return e.outcome(current, round+1, true), nil
		}
		prev = current
	}

	// Round limit without a fixed point is not an error; the last round
	// stands with a forced confidence penalty.
	out := e.outcome(prev, e.maxRounds, false)
	for role, pos := range out.Positions {
		pos.Confidence *= nonConvergencePenalty
		out.Positions[role] = pos
	}
	e.log.Debug("debate hit round limit", zap.String("ticker", pool.Ticker))
	return out, nil
}

// enforce applies the engine-level guarantees no debater can opt out of:
// cites restricted to supported claims, confidence clamped into [0,1],
// unbacked stances penalized, and confidence non-increasing unless new
// supported evidence was cited this round.
func (e *Engine) enforce(pool *ClaimPool, pos models.DebatePosition, prev *models.DebatePosition) models.DebatePosition {
	kept := pos.Cites[:0:0]
	for _, id := range pos.Cites {
		if pool.Supported(id) {
			kept = append(kept, id)
		} else {
			e.log.Warn("dropped unsupported citation",
				zap.String("role", string(pos.Role)), zap.String("claim_id", id))
		}
	}
	slices.Sort(kept)
	pos.Cites = slices.Compact(kept)

	if pos.Confidence < 0 {
		pos.Confidence = 0
	}
	if pos.Confidence > 1 {
		pos.Confidence = 1
	}
	if len(pos.Cites) == 0 {
		pos.Confidence *= noEvidencePenalty
	}

	if prev != nil && pos.Confidence > prev.Confidence && !citesNew(prev.Cites, pos.Cites) {
		pos.Confidence = prev.Confidence
	}

	switch pos.Recommendation {
	case models.ActionBuy, models.ActionSell, models.ActionHold:
	default:
		pos.Recommendation = models.ActionHold
	}
	return pos
}

func (e *Engine) outcome(positions []models.DebatePosition, rounds int, converged bool) *Outcome {
	out := &Outcome{
		Positions: make(map[models.DebateRole]models.DebatePosition, len(positions)),
		Rounds:    rounds,
		Converged: converged,
	}
	for _, pos := range positions {
		out.Positions[pos.Role] = pos
	}
	return out
}

func prevFor(prev []models.DebatePosition, role models.DebateRole) *models.DebatePosition {
	for i := range prev {
		if prev[i].Role == role {
			return &prev[i]
		}
	}
	return nil
}

func citesNew(old, current []string) bool {
	seen := make(map[string]bool, len(old))
	for _, id := range old {
		seen[id] = true
	}
	for _, id := range current {
		if !seen[id] {
			return true
		}
	}
	return false
}

func fixedPoint(a, b []models.DebatePosition) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Role != b[i].Role ||
			a[i].Recommendation != b[i].Recommendation ||
			a[i].Confidence != b[i].Confidence ||
			!slices.Equal(a[i].Cites, b[i].Cites) {
			return false
		}
	}
	return true
}
