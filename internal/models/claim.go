package models

import "time"

// Claim is a single factual or evaluative statement produced by an analyst
// agent, with optional evidence citations. A claim describing a dated event
// must carry ClaimedDate; the validator flags event-like statements without
// one.
type Claim struct {
	ID                    string     `json:"id"`
	Statement             string     `json:"statement"`
	SupportingEvidenceIDs []string   `json:"supporting_evidence_ids"`
	Confidence            float64    `json:"confidence"`
	ClaimedDate           *time.Time `json:"claimed_date,omitempty"`
}

// ClaimSet is the ordered output of one analyst agent for one (ticker,
// run_date). Degraded marks a set whose supported fraction fell below the
// configured threshold, or one substituted for a timed-out agent.
type ClaimSet struct {
	Agent    string    `json:"agent"`
	Ticker   string    `json:"ticker"`
	RunDate  time.Time `json:"run_date"`
	Claims   []Claim   `json:"claims"`
	Summary  string    `json:"summary"`
	Degraded bool      `json:"degraded"`
}

// Empty reports whether the set carries no claims at all.
func (cs *ClaimSet) Empty() bool { return len(cs.Claims) == 0 }

// VerdictStatus is the validator's ruling on a single claim.
type VerdictStatus string

const (
	VerdictSupported   VerdictStatus = "supported"
	VerdictUnsupported VerdictStatus = "unsupported"
	VerdictFutureDated VerdictStatus = "future_dated"
	VerdictUncited     VerdictStatus = "uncited"
)

// ValidationVerdict is computed once per claim and never mutated afterward.
type ValidationVerdict struct {
	ClaimID string        `json:"claim_id"`
	Status  VerdictStatus `json:"status"`
	Detail  string        `json:"detail,omitempty"`
}
