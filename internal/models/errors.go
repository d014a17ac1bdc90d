package models

import (
	"errors"
	"fmt"
)

// Error taxonomy for the pipeline. Each sentinel maps to one failure class;
// callers wrap them with context via fmt.Errorf("...: %w", err).
var (
	// ErrInvalidEvidence rejects future-dated or malformed input at
	// ingestion. Fatal to the item only, never to the run.
	ErrInvalidEvidence = errors.New("invalid evidence")

	// ErrAgentTimeout is recovered locally as a degraded empty ClaimSet.
	ErrAgentTimeout = errors.New("agent timeout")

	// ErrAgentFailure is fatal to the run when every agent fails.
	ErrAgentFailure = errors.New("all agents failed")

	// ErrPersistence transitions the run to FAILED after bounded retries.
	ErrPersistence = errors.New("persistence failure")

	// ErrRunCancelled marks a run cancelled before DECIDED.
	ErrRunCancelled = errors.New("run cancelled")

	// ErrRunInProgress reports a non-terminal run already holding the
	// idempotency slot, owned by another process or left by a crash.
	ErrRunInProgress = errors.New("run in progress")
)

// RunFailure carries a reason code into a FAILED RunRecord.
type RunFailure struct {
	Reason string
	Err    error
}

func (f *RunFailure) Error() string {
	if f.Err == nil {
		return f.Reason
	}
	return fmt.Sprintf("%s: %v", f.Reason, f.Err)
}

func (f *RunFailure) Unwrap() error { return f.Err }

// Failf builds a RunFailure with a stable reason code.
func Failf(reason string, err error) *RunFailure {
	return &RunFailure{Reason: reason, Err: err}
}
