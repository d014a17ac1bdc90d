package models

import "time"

// Decision is the single outcome of a run. Created once by the consensus
// resolver and immutable after creation; superseding one requires a new
// run_date or an explicit re-run token, never an in-place edit.
type Decision struct {
	Ticker         string    `json:"ticker"`
	RunDate        time.Time `json:"run_date"`
	Action         Action    `json:"action"`
	Confidence     float64   `json:"confidence"`
	RationaleRefs  []string  `json:"rationale_refs"`
	DivergenceFlag bool      `json:"divergence_flag"`
	GateReason     string    `json:"gate_reason,omitempty"`

	// StopLoss and Target are set by the risk gate on actionable
	// decisions, anchored to the latest evidence price.
	StopLoss float64 `json:"stop_loss,omitempty"`
	Target   float64 `json:"target,omitempty"`
}

// ExecutionReceipt acknowledges a decision handed to the execution gateway.
type ExecutionReceipt struct {
	OrderID   string    `json:"order_id"`
	Ticker    string    `json:"ticker"`
	Action    Action    `json:"action"`
	Quantity  int64     `json:"quantity"`
	FillPrice float64   `json:"fill_price"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	FilledAt  time.Time `json:"filled_at"`
}
