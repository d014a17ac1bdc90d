package models

import (
	"fmt"
	"time"
)

// RunMode selects the execution collaborator wired to a run.
type RunMode string

const (
	ModePaper RunMode = "paper"
	ModeLive  RunMode = "live"
)

// RunState is one node of the orchestrator state machine.
type RunState string

const (
	StatePending       RunState = "PENDING"
	StateEvidenceReady RunState = "EVIDENCE_READY"
	StateAnalyzed      RunState = "ANALYZED"
	StateValidated     RunState = "VALIDATED"
	StateDebated       RunState = "DEBATED"
	StateDecided       RunState = "DECIDED"
	StateCompleted     RunState = "COMPLETED"
	StateFailed        RunState = "FAILED"
)

// Terminal reports whether no further transition is allowed from s.
func (s RunState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// runOrder gives the forward progression; FAILED is reachable from any
// non-terminal state and is not part of the ordering.
var runOrder = map[RunState]RunState{
	StatePending:       StateEvidenceReady,
	StateEvidenceReady: StateAnalyzed,
	StateAnalyzed:      StateValidated,
	StateValidated:     StateDebated,
	StateDebated:       StateDecided,
	StateDecided:       StateCompleted,
}

// CanTransition reports whether from → to is a legal state machine move.
func CanTransition(from, to RunState) bool {
	if to == StateFailed {
		return !from.Terminal()
	}
	return runOrder[from] == to
}

// RunKey identifies a run for idempotency purposes.
type RunKey struct {
	Ticker  string
	RunDate time.Time
	Mode    RunMode
}

func (k RunKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Ticker, k.RunDate.Format("2006-01-02"), k.Mode)
}

// RunRecord is the orchestrator-owned audit entry for one run. At most one
// non-FAILED record may exist per (ticker, run_date, mode).
type RunRecord struct {
	RunID       string     `json:"run_id"`
	Ticker      string     `json:"ticker"`
	RunDate     time.Time  `json:"run_date"`
	Mode        RunMode    `json:"mode"`
	State       RunState   `json:"state"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DecisionRef string     `json:"decision_ref,omitempty"`
	FailReason  string     `json:"fail_reason,omitempty"`
}

// Key returns the record's idempotency key.
func (r *RunRecord) Key() RunKey {
	return RunKey{Ticker: r.Ticker, RunDate: r.RunDate, Mode: r.Mode}
}
