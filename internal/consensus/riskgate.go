package consensus

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/verdictlab/verdictgo/internal/models"
)

// RiskGate is the last check between a resolved Decision and the execution
// gateway. A decision that fails the gate is downgraded to hold with the
// reason recorded on it, never dropped or hidden.
type RiskGate struct {
	// MinConfidence a buy/sell must carry to pass.
	MinConfidence float64
	// MaxDivergentConfidence caps how much conviction a divergent decision
	// may claim on its way out.
	MaxDivergentConfidence float64
	// StopLossPct and TargetPct anchor the exit levels to the latest
	// evidence price.
	StopLossPct float64
	TargetPct   float64
	log         *zap.Logger
}

// NewRiskGate builds a gate with the configured floor.
func NewRiskGate(minConfidence float64, log *zap.Logger) *RiskGate {
	if log == nil {
		log = zap.NewNop()
	}
	return &RiskGate{
		MinConfidence:          minConfidence,
		MaxDivergentConfidence: 0.9,
		StopLossPct:            0.05,
		TargetPct:              0.10,
		log:                    log.Named("riskgate"),
	}
}

// Apply returns the decision that will actually be executed. refPrice is
// the latest closing price in evidence; zero means no price was collected.
func (g *RiskGate) Apply(d models.Decision, refPrice float64) models.Decision {
	if d.DivergenceFlag && d.Confidence > g.MaxDivergentConfidence {
		d.Confidence = g.MaxDivergentConfidence
	}

	if d.Action == models.ActionHold {
		return d
	}
	if d.Confidence < g.MinConfidence {
		g.log.Info("decision below confidence floor, downgrading to hold",
			zap.String("ticker", d.Ticker),
			zap.String("action", string(d.Action)),
			zap.Float64("confidence", d.Confidence))
		return g.hold(d, fmt.Sprintf("%s confidence %.2f below floor %.2f", d.Action, d.Confidence, g.MinConfidence))
	}

	// An actionable decision needs exit levels, and exit levels need a
	// price to anchor to.
	if refPrice <= 0 {
		return g.hold(d, fmt.Sprintf("%s has no reference price to anchor stop-loss and target", d.Action))
	}
	switch d.Action {
	case models.ActionBuy:
		d.StopLoss = refPrice * (1 - g.StopLossPct)
		d.Target = refPrice * (1 + g.TargetPct)
		if !(d.StopLoss > 0 && d.StopLoss < refPrice && refPrice < d.Target) {
			return g.hold(d, fmt.Sprintf("buy exit levels failed sanity check (stop %.2f, price %.2f, target %.2f)",
				d.StopLoss, refPrice, d.Target))
		}
	case models.ActionSell:
		d.StopLoss = refPrice * (1 + g.StopLossPct)
		d.Target = refPrice * (1 - g.TargetPct)
		if !(d.Target > 0 && d.Target < refPrice && refPrice < d.StopLoss) {
			return g.hold(d, fmt.Sprintf("sell exit levels failed sanity check (stop %.2f, price %.2f, target %.2f)",
				d.StopLoss, refPrice, d.Target))
		}
	}
	return d
}

func (g *RiskGate) hold(d models.Decision, reason string) models.Decision {
	d.GateReason = reason
	d.Action = models.ActionHold
	d.StopLoss = 0
	d.Target = 0
	return d
}
