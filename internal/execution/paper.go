package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/verdictlab/verdictgo/internal/models"
)

// Sizing is a fractional-Kelly style ramp: the share of free cash
// committed to a buy grows with decision confidence between the base and
// the cap.
var (
	basePositionFraction = decimal.NewFromFloat(0.05)
	maxPositionFraction  = decimal.NewFromFloat(0.25)
)

// positionFraction maps decision confidence onto the cash fraction.
func positionFraction(confidence float64) decimal.Decimal {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	span := maxPositionFraction.Sub(basePositionFraction)
	return basePositionFraction.Add(span.Mul(decimal.NewFromFloat(confidence)))
}

// Position is one open paper holding.
type Position struct {
	Ticker   string          `json:"ticker"`
	Quantity int64           `json:"quantity"`
	AvgPrice decimal.Decimal `json:"avg_price"`
}

// paperState is the persisted book.
type paperState struct {
	Cash      decimal.Decimal     `json:"cash"`
	Positions map[string]Position `json:"positions"`
}

// PaperGateway simulates fills against live quotes with a configurable
// slippage haircut. The book survives restarts through a JSON state file;
// every fill is also appended to a JSONL trade log.
type PaperGateway struct {
	mu          sync.Mutex
	state       paperState
	quoter      Quoter
	slippagePct float64
	statePath   string
	logPath     string
	log         *zap.Logger
}

func NewPaperGateway(dataDir string, capital, slippagePct float64, quoter Quoter, log *zap.Logger) (*PaperGateway, error) {
	if log == nil {
		log = zap.NewNop()
	}
	g := &PaperGateway{
		quoter:      quoter,
		slippagePct: slippagePct,
		statePath:   filepath.Join(dataDir, "paper_state.json"),
		logPath:     filepath.Join(dataDir, "paper_trades.jsonl"),
		log:         log.Named("paper"),
		state: paperState{
			Cash:      decimal.NewFromFloat(capital),
			Positions: make(map[string]Position),
		},
	}
	if err := g.loadState(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *PaperGateway) Submit(ctx context.Context, d models.Decision) (models.ExecutionReceipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	receipt := models.ExecutionReceipt{
		OrderID:  uuid.NewString(),
		Ticker:   d.Ticker,
		Action:   d.Action,
		FilledAt: time.Now().UTC(),
	}

	if d.Action == models.ActionHold {
		receipt.Status = StatusSkipped
		receipt.Message = "hold decision, no order placed"
		return receipt, nil
	}

	quote, err := g.quoter.Quote(ctx, d.Ticker)
	if err != nil {
		receipt.Status = StatusRejected
		receipt.Message = fmt.Sprintf("no quote: %v", err)
		return receipt, fmt.Errorf("paper fill %s: %w", d.Ticker, err)
	}
	if quote.Close.IsZero() || quote.Close.IsNegative() {
		receipt.Status = StatusRejected
		receipt.Message = "quote has no usable price"
		return receipt, fmt.Errorf("paper fill %s: zero price", d.Ticker)
	}

	switch d.Action {
	case models.ActionBuy:
		g.fillBuy(&receipt, quote.Close, d.Confidence)
	case models.ActionSell:
		g.fillSell(&receipt, quote.Close)
	default:
		receipt.Status = StatusRejected
		receipt.Message = fmt.Sprintf("unknown action %q", d.Action)
		return receipt, fmt.Errorf("paper fill: unknown action %q", d.Action)
	}

	if receipt.Status == StatusFilled {
		if err := g.saveState(); err != nil {
			g.log.Error("paper state save failed", zap.Error(err))
		}
		g.appendTradeLog(receipt)
	}
	return receipt, nil
}

func (g *PaperGateway) fillBuy(receipt *models.ExecutionReceipt, price decimal.Decimal, confidence float64) {
	fill := g.slip(price, true)
	budget := g.state.Cash.Mul(positionFraction(confidence))
	qty := budget.Div(fill).IntPart()
	if qty <= 0 {
		receipt.Status = StatusRejected
		receipt.Message = "insufficient cash for a single share"
		return
	}

	cost := fill.Mul(decimal.NewFromInt(qty))
	g.state.Cash = g.state.Cash.Sub(cost)

	pos := g.state.Positions[receipt.Ticker]
	total := decimal.NewFromInt(pos.Quantity).Mul(pos.AvgPrice).Add(cost)
	pos.Ticker = receipt.Ticker
	pos.Quantity += qty
	pos.AvgPrice = total.Div(decimal.NewFromInt(pos.Quantity))
	g.state.Positions[receipt.Ticker] = pos

	receipt.Status = StatusFilled
	receipt.Quantity = qty
	receipt.FillPrice, _ = fill.Float64()
}

func (g *PaperGateway) fillSell(receipt *models.ExecutionReceipt, price decimal.Decimal) {
	pos, ok := g.state.Positions[receipt.Ticker]
	if !ok || pos.Quantity <= 0 {
		receipt.Status = StatusSkipped
		receipt.Message = "no open position to sell"
		return
	}

	fill := g.slip(price, false)
	proceeds := fill.Mul(decimal.NewFromInt(pos.Quantity))
	g.state.Cash = g.state.Cash.Add(proceeds)
	delete(g.state.Positions, receipt.Ticker)

	receipt.Status = StatusFilled
	receipt.Quantity = pos.Quantity
	receipt.FillPrice, _ = fill.Float64()
}

// slip applies the slippage haircut against the trader: buys fill higher,
// sells fill lower.
func (g *PaperGateway) slip(price decimal.Decimal, buying bool) decimal.Decimal {
	factor := g.slippagePct / 100
	if buying {
		return price.Mul(decimal.NewFromFloat(1 + factor))
	}
	return price.Mul(decimal.NewFromFloat(1 - factor))
}

// Cash returns the free cash balance.
func (g *PaperGateway) Cash() decimal.Decimal {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.Cash
}

// Positions returns a copy of the open book.
func (g *PaperGateway) Positions() map[string]Position {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]Position, len(g.state.Positions))
	for k, v := range g.state.Positions {
		out[k] = v
	}
	return out
}

func (g *PaperGateway) loadState() error {
	data, err := os.ReadFile(g.statePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read paper state: %w", err)
	}
	var state paperState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("parse paper state: %w", err)
	}
	if state.Positions == nil {
		state.Positions = make(map[string]Position)
	}
	g.state = state
	return nil
}

func (g *PaperGateway) saveState() error {
	if err := os.MkdirAll(filepath.Dir(g.statePath), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(g.state, "", "  ")
	if err != nil {
		return err
	}
	tmp := g.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, g.statePath)
}

func (g *PaperGateway) appendTradeLog(receipt models.ExecutionReceipt) {
	f, err := os.OpenFile(g.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		g.log.Error("trade log open failed", zap.Error(err))
		return
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(receipt); err != nil {
		g.log.Error("trade log write failed", zap.Error(err))
	}
}
