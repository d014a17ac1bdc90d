// Package consensus reconciles debate positions and analyst-level
// recommendations into the single Decision a run emits. Disagreement is a
// first-class outcome: the divergence flag always surfaces downstream, and
// the tie-break order is conservatively biased because the failure mode
// being guarded against is overconfident fabricated optimism.
package consensus

import (
	"slices"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/verdictlab/verdictgo/internal/debate"
	"github.com/verdictlab/verdictgo/internal/models"
)

// rolePriority breaks weighted-vote ties deterministically, most
// conservative role first.
var rolePriority = []models.DebateRole{
	models.RoleRiskAverse,
	models.RoleBear,
	models.RoleBull,
	models.RoleRiskSeek,
}

// Resolver applies the divergence policy. Pure and synchronous.
type Resolver struct {
	// Supermajority is the weighted share a buy/sell needs to win a
	// divergent vote; below it the action defaults to hold.
	Supermajority float64
	log           *zap.Logger
}

// NewResolver builds a resolver with the given supermajority threshold.
func NewResolver(supermajority float64, log *zap.Logger) *Resolver {
	if supermajority <= 0 || supermajority > 1 {
		supermajority = 0.75
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{Supermajority: supermajority, log: log.Named("consensus")}
}

// Resolve produces the run's Decision from the debate outcome, the analyst
// recommendations, and the degraded share of the input claim sets.
func (r *Resolver) Resolve(ticker string, runDate time.Time, out *debate.Outcome, recs []models.AnalystRecommendation, degradedFraction float64) models.Decision {
	d := models.Decision{Ticker: ticker, RunDate: runDate}

	positions := make([]models.DebatePosition, 0, len(rolePriority))
	for _, role := range rolePriority {
		if pos, ok := out.Positions[role]; ok {
			positions = append(positions, pos)
		}
	}

	// Unanimity across all four roles short-circuits the vote.
	if action, ok := unanimous(positions); ok {
		d.Action = action
		d.Confidence = minConfidence(positions)
		d.DivergenceFlag = false
		d.RationaleRefs = citesFor(positions, action)
		return d
	}

	d.DivergenceFlag = true

	weights := map[models.Action]float64{}
	total := 0.0
	for _, pos := range positions {
		w := pos.Confidence * (1 - degradedFraction)
		weights[pos.Recommendation] += w
		total += w
	}
	for _, rec := range recs {
		w := rec.Confidence
		if rec.Degraded {
			w = 0 // degraded analysts observe, they do not vote
		}
		weights[rec.Action] += w
		total += w
	}

	winner := r.winningAction(weights, positions)
	share := 0.0
	if total > 0 {
		share = weights[winner] / total
	}

	// A divergent buy/sell must clear the supermajority bar; otherwise the
	// run holds.
	if winner != models.ActionHold && share < r.Supermajority {
		r.log.Info("divergent vote below supermajority, defaulting to hold",
			zap.String("ticker", ticker),
			zap.String("leader", string(winner)),
			zap.Float64("share", share))
		d.Action = models.ActionHold
		if total > 0 {
			d.Confidence = weights[models.ActionHold] / total
		}
		d.RationaleRefs = citesFor(positions, models.ActionHold)
		if len(d.RationaleRefs) == 0 {
			d.RationaleRefs = citesFor(positions, "")
		}
		return d
	}

	d.Action = winner
	d.Confidence = share
	d.RationaleRefs = citesFor(positions, winner)
	return d
}

// winningAction picks the heaviest action; ties go to the action backed by
// the most conservative role.
func (r *Resolver) winningAction(weights map[models.Action]float64, positions []models.DebatePosition) models.Action {
	actions := make([]models.Action, 0, len(weights))
	for a := range weights {
		actions = append(actions, a)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })

	best := models.ActionHold
	bestWeight := -1.0
	for _, a := range actions {
		switch {
		case weights[a] > bestWeight:
			best, bestWeight = a, weights[a]
		case weights[a] == bestWeight:
			// positions are in priority order already
			for _, pos := range positions {
				if pos.Recommendation == a || pos.Recommendation == best {
					if pos.Recommendation == a {
						best = a
					}
					break
				}
			}
		}
	}
	return best
}

func unanimous(positions []models.DebatePosition) (models.Action, bool) {
	if len(positions) == 0 {
		return models.ActionHold, false
	}
	action := positions[0].Recommendation
	for _, pos := range positions[1:] {
		if pos.Recommendation != action {
			return models.ActionHold, false
		}
	}
	return action, true
}

func minConfidence(positions []models.DebatePosition) float64 {
	min := 1.0
	for _, pos := range positions {
		if pos.Confidence < min {
			min = pos.Confidence
		}
	}
	return min
}

// citesFor unions the citations of positions recommending action; an empty
// action unions everything.
func citesFor(positions []models.DebatePosition, action models.Action) []string {
	seen := map[string]bool{}
	var refs []string
	for _, pos := range positions {
		if action != "" && pos.Recommendation != action {
			continue
		}
		for _, id := range pos.Cites {
			if !seen[id] {
				seen[id] = true
				refs = append(refs, id)
			}
		}
	}
	slices.Sort(refs)
	return refs
}
