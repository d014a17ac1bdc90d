// Package validate cross-checks every analyst claim against the evidence
// ledger before it can influence debate or decision. Validation is a pure
// function of (ClaimSet, evidence snapshot, run date): no retries, no side
// effects, identical verdicts on every re-run.
package validate

import (
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/verdictlab/verdictgo/internal/models"
)

// EvidenceResolver resolves cited evidence ids. *evidence.Store satisfies it.
type EvidenceResolver interface {
	Get(id string) (models.EvidenceItem, bool)
}

// Result is the validator's output for one ClaimSet. Verdicts are ordered
// like the claims that produced them and are never mutated afterward.
type Result struct {
	Agent             string                     `json:"agent"`
	Verdicts          []models.ValidationVerdict `json:"verdicts"`
	SupportedFraction float64                    `json:"supported_fraction"`
	Degraded          bool                       `json:"degraded"`
}

// Supported reports whether the given claim id was ruled supported.
func (r *Result) Supported(claimID string) bool {
	for _, v := range r.Verdicts {
		if v.ClaimID == claimID {
			return v.Status == models.VerdictSupported
		}
	}
	return false
}

// eventLike matches statements that describe dated events and therefore
// must carry a claimed_date.
var eventLike = regexp.MustCompile(`(?i)\b(announced|reported|released|filed|launched|acquired|missed|beat|cut|raised|on \d{4}-\d{2}-\d{2}|last (week|month|quarter)|yesterday)\b`)

// Validate computes one verdict per claim. Malformed claims are ruled
// unsupported rather than propagated as errors. A set whose non-supported
// fraction exceeds degradedThreshold is marked degraded, as is a set that
// was already degraded upstream or carries no claims at all.
func Validate(cs *models.ClaimSet, ev EvidenceResolver, runDate time.Time, degradedThreshold float64) Result {
	res := Result{Agent: cs.Agent, Verdicts: make([]models.ValidationVerdict, 0, len(cs.Claims))}

	supported := 0
	for _, claim := range cs.Claims {
		v := verdictFor(claim, ev, runDate)
		if v.Status == models.VerdictSupported {
			supported++
		}
		res.Verdicts = append(res.Verdicts, v)
	}

	if len(cs.Claims) > 0 {
		res.SupportedFraction = float64(supported) / float64(len(cs.Claims))
	}
	badFraction := 1 - res.SupportedFraction
	res.Degraded = cs.Degraded || len(cs.Claims) == 0 || badFraction > degradedThreshold
	return res
}

func verdictFor(claim models.Claim, ev EvidenceResolver, runDate time.Time) models.ValidationVerdict {
	v := models.ValidationVerdict{ClaimID: claim.ID}

	// Malformed claims cannot crash validation; they are simply not trusted.
	if claim.Statement == "" || math.IsNaN(claim.Confidence) ||
		claim.Confidence < 0 || claim.Confidence > 1 {
		v.Status = models.VerdictUnsupported
		v.Detail = "malformed claim"
		return v
	}

	if eventLike.MatchString(claim.Statement) && claim.ClaimedDate == nil {
		v.Status = models.VerdictUnsupported
		v.Detail = "event-like statement missing claimed_date"
		return v
	}

	if len(claim.SupportingEvidenceIDs) == 0 {
		v.Status = models.VerdictUncited
		v.Detail = "no supporting evidence cited"
		return v
	}

	// Citations are resolved before any date ruling: a claim whose cites
	// don't resolve is uncited no matter what dates it carries.
	for _, id := range claim.SupportingEvidenceIDs {
		item, ok := ev.Get(id)
		if !ok {
			v.Status = models.VerdictUncited
			v.Detail = fmt.Sprintf("cited evidence %s not found", id)
			return v
		}
		if item.AsOfDate.After(runDate) {
			v.Status = models.VerdictFutureDated
			v.Detail = fmt.Sprintf("evidence %s dated %s is after run date", id, item.AsOfDate.Format("2006-01-02"))
			return v
		}
	}

	if claim.ClaimedDate != nil && claim.ClaimedDate.After(runDate) {
		v.Status = models.VerdictFutureDated
		v.Detail = fmt.Sprintf("claimed_date %s is after run date", claim.ClaimedDate.Format("2006-01-02"))
		return v
	}

	v.Status = models.VerdictSupported
	return v
}
