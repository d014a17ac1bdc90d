// Package debate runs bounded adversarial rounds over validated claims.
// Debate is modeled as a terminating fixed-point iteration over immutable
// position snapshots, not free-form dialogue: every round produces fresh
// positions, and only validator-supported claims may ever be cited.
package debate

import (
	"regexp"
	"sort"
	"time"

	"github.com/verdictlab/verdictgo/internal/models"
	"github.com/verdictlab/verdictgo/internal/validate"
)

// PoolClaim is a claim admitted to the debate, tagged with its source agent
// and whether that agent's whole set was degraded.
type PoolClaim struct {
	models.Claim
	Agent        string
	FromDegraded bool
}

// ClaimPool is the immutable working set for one debate: only supported
// claims enter it, so any id a debater cites is supported by construction
// of the pool, and the engine re-checks anyway.
type ClaimPool struct {
	Ticker   string
	RunDate  time.Time
	claims   []PoolClaim
	ids      map[string]bool
	degraded int
	total    int
}

// NewPool filters the validated claim sets down to supported claims.
func NewPool(ticker string, runDate time.Time, sets map[string]*models.ClaimSet, results map[string]*validate.Result) *ClaimPool {
	p := &ClaimPool{
		Ticker:  ticker,
		RunDate: runDate,
		ids:     make(map[string]bool),
	}

	agents := make([]string, 0, len(sets))
	for agent := range sets {
		agents = append(agents, agent)
	}
	sort.Strings(agents) // deterministic pool order

	for _, agent := range agents {
		cs := sets[agent]
		res := results[agent]
		if res == nil {
			continue
		}
		p.total++
		if res.Degraded {
			p.degraded++
		}
		for _, claim := range cs.Claims {
			if !res.Supported(claim.ID) {
				continue
			}
			p.claims = append(p.claims, PoolClaim{Claim: claim, Agent: agent, FromDegraded: res.Degraded})
			p.ids[claim.ID] = true
		}
	}
	return p
}

// Supported reports whether id belongs to a supported claim in this pool.
func (p *ClaimPool) Supported(id string) bool { return p.ids[id] }

// Claims returns the admitted claims in deterministic order.
func (p *ClaimPool) Claims() []PoolClaim { return p.claims }

// DegradedFraction is the share of input ClaimSets that were degraded.
func (p *ClaimPool) DegradedFraction() float64 {
	if p.total == 0 {
		return 1
	}
	return float64(p.degraded) / float64(p.total)
}

var (
	bullishWords = regexp.MustCompile(`(?i)\b(growth|beat|undervalued|oversold|upgrade|buyback|expand(ed|ing)?|strong|record|momentum|outperform|raised)\b`)
	bearishWords = regexp.MustCompile(`(?i)\b(decline|miss(ed)?|overvalued|overbought|downgrade|lawsuit|weak|risk|cut|slowdown|recall|underperform|churn)\b`)
)

// Lean scores a claim's direction: positive bullish, negative bearish.
// The same keyword approach the signal extractor uses, applied per claim.
func Lean(c models.Claim) int {
	return len(bullishWords.FindAllString(c.Statement, -1)) -
		len(bearishWords.FindAllString(c.Statement, -1))
}

// Partition splits the pool by direction. Neutral claims land in both, so
// either side may cite them.
func (p *ClaimPool) Partition() (bullish, bearish []PoolClaim) {
	for _, pc := range p.claims {
		switch lean := Lean(pc.Claim); {
		case lean > 0:
			bullish = append(bullish, pc)
		case lean < 0:
			bearish = append(bearish, pc)
		default:
			bullish = append(bullish, pc)
			bearish = append(bearish, pc)
		}
	}
	return bullish, bearish
}
