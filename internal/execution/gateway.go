// Package execution hands finished decisions to a trading backend. The
// pipeline only ever talks to the Gateway interface; paper trading is the
// default implementation and the only one wired in by default.
package execution

import (
	"context"

	"github.com/verdictlab/verdictgo/internal/models"
)

// Gateway accepts a decision and returns the resulting receipt. Submit is
// called at most once per completed run.
type Gateway interface {
	Submit(ctx context.Context, d models.Decision) (models.ExecutionReceipt, error)
}

// Quoter supplies a current price for fill simulation.
type Quoter interface {
	Quote(ctx context.Context, ticker string) (models.PriceBar, error)
}

// Receipt statuses.
const (
	StatusFilled   = "filled"
	StatusSkipped  = "skipped"
	StatusRejected = "rejected"
)
