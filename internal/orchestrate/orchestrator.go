// Package orchestrate drives one decision run through the explicit state
// machine: PENDING → EVIDENCE_READY → ANALYZED → VALIDATED → DEBATED →
// DECIDED → COMPLETED, with FAILED reachable from any non-terminal state.
package orchestrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verdictlab/verdictgo/internal/agents"
	"github.com/verdictlab/verdictgo/internal/consensus"
	"github.com/verdictlab/verdictgo/internal/debate"
	"github.com/verdictlab/verdictgo/internal/evidence"
	"github.com/verdictlab/verdictgo/internal/evidence/providers"
	"github.com/verdictlab/verdictgo/internal/execution"
	"github.com/verdictlab/verdictgo/internal/models"
	"github.com/verdictlab/verdictgo/internal/storage"
	"github.com/verdictlab/verdictgo/internal/validate"
)

// evidenceLookback bounds how far back ingested evidence may reach.
const evidenceLookback = 30 // days

// Options carries the tuning knobs the orchestrator needs.
type Options struct {
	DegradedClaimFraction float64
	PersistRetries        int
	PersistBackoff        time.Duration
}

// RunResult is what a caller gets back for one (ticker, run_date, mode).
type RunResult struct {
	RunID    string                   `json:"run_id"`
	Ticker   string                   `json:"ticker"`
	RunDate  time.Time                `json:"run_date"`
	Mode     models.RunMode           `json:"mode"`
	State    models.RunState          `json:"state"`
	Decision *models.Decision         `json:"decision,omitempty"`
	Receipt  *models.ExecutionReceipt `json:"receipt,omitempty"`
	Reused   bool                     `json:"reused"`
}

// Orchestrator wires the pipeline stages together. One instance serves
// many concurrent runs; duplicate submissions for the same key join the
// in-flight run instead of starting a second one.
type Orchestrator struct {
	audit    *storage.AuditStore
	ingestor *providers.Ingestor
	store    *evidence.Store
	harness  *agents.Harness
	engine   *debate.Engine
	resolver *consensus.Resolver
	gate     *consensus.RiskGate
	gateway  execution.Gateway
	runLog   *RunLog
	opts     Options
	log      *zap.Logger

	mu       sync.Mutex
	inflight map[models.RunKey]*inflightRun
}

type inflightRun struct {
	done   chan struct{}
	result *RunResult
	err    error
}

func New(
	audit *storage.AuditStore,
	store *evidence.Store,
	ingestor *providers.Ingestor,
	harness *agents.Harness,
	engine *debate.Engine,
	resolver *consensus.Resolver,
	gate *consensus.RiskGate,
	gateway execution.Gateway,
	runLog *RunLog,
	opts Options,
	log *zap.Logger,
) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.PersistRetries <= 0 {
		opts.PersistRetries = 3
	}
	if opts.PersistBackoff <= 0 {
		opts.PersistBackoff = 200 * time.Millisecond
	}
	if opts.DegradedClaimFraction <= 0 {
		opts.DegradedClaimFraction = 0.5
	}
	return &Orchestrator{
		audit:    audit,
		store:    store,
		ingestor: ingestor,
		harness:  harness,
		engine:   engine,
		resolver: resolver,
		gate:     gate,
		gateway:  gateway,
		runLog:   runLog,
		opts:     opts,
		log:      log.Named("orchestrate"),
		inflight: make(map[models.RunKey]*inflightRun),
	}
}

// Run executes or joins the run for the given key. A completed earlier run
// returns its recorded decision with Reused set; a concurrent duplicate
// blocks until the first submission finishes and shares its result.
func (o *Orchestrator) Run(ctx context.Context, ticker string, runDate time.Time, mode models.RunMode) (*RunResult, error) {
	key := models.RunKey{Ticker: ticker, RunDate: runDate, Mode: mode}

	o.mu.Lock()
	if fl, ok := o.inflight[key]; ok {
		o.mu.Unlock()
		select {
		case <-fl.done:
			return fl.result, fl.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	fl := &inflightRun{done: make(chan struct{})}
	o.inflight[key] = fl
	o.mu.Unlock()

	result, err := o.runOnce(ctx, key)

	fl.result, fl.err = result, err
	close(fl.done)
	o.mu.Lock()
	delete(o.inflight, key)
	o.mu.Unlock()

	return result, err
}

func (o *Orchestrator) runOnce(ctx context.Context, key models.RunKey) (*RunResult, error) {
	if existing, err := o.audit.FindRun(ctx, key); err != nil {
		return nil, err
	} else if existing != nil {
		return o.reuse(ctx, existing)
	}

	rec := models.RunRecord{
		RunID:     uuid.NewString(),
		Ticker:    key.Ticker,
		RunDate:   key.RunDate,
		Mode:      key.Mode,
		State:     models.StatePending,
		StartedAt: time.Now().UTC(),
	}
	if err := o.audit.CreateRun(ctx, rec); err != nil {
		if errors.Is(err, storage.ErrRunExists) {
			// Lost the insert race to another process; serve its run.
			existing, ferr := o.audit.FindRun(ctx, key)
			if ferr == nil && existing != nil {
				return o.reuse(ctx, existing)
			}
		}
		return nil, err
	}

	result, err := o.execute(ctx, rec)
	if err != nil {
		reason := err.Error()
		if ferr := o.audit.Fail(context.WithoutCancel(ctx), rec.RunID, reason, time.Now()); ferr != nil {
			o.log.Error("failed to mark run FAILED", zap.String("run_id", rec.RunID), zap.Error(ferr))
		}
		o.log.Warn("run failed",
			zap.String("run_id", rec.RunID),
			zap.String("key", key.String()),
			zap.Error(err))
		failed := &RunResult{
			RunID:   rec.RunID,
			Ticker:  key.Ticker,
			RunDate: key.RunDate,
			Mode:    key.Mode,
			State:   models.StateFailed,
		}
		o.runLog.Append(failed)
		return failed, err
	}

	o.runLog.Append(result)
	return result, nil
}

// reuse serves a previously recorded run without re-executing anything.
// A non-terminal record is not reusable: it belongs to a run still in
// flight elsewhere (or abandoned by a crash), and callers get an explicit
// ErrRunInProgress instead of a completed-looking result with no decision.
func (o *Orchestrator) reuse(ctx context.Context, rec *models.RunRecord) (*RunResult, error) {
	result := &RunResult{
		RunID:   rec.RunID,
		Ticker:  rec.Ticker,
		RunDate: rec.RunDate,
		Mode:    rec.Mode,
		State:   rec.State,
	}
	if !rec.State.Terminal() {
		return result, fmt.Errorf("run %s for %s is still %s: %w",
			rec.RunID, rec.Key(), rec.State, models.ErrRunInProgress)
	}
	result.Reused = true
	decision, err := o.audit.GetDecision(ctx, rec.RunID)
	if err != nil {
		return nil, err
	}
	result.Decision = decision
	return result, nil
}

func (o *Orchestrator) execute(ctx context.Context, rec models.RunRecord) (*RunResult, error) {
	runID := rec.RunID
	state := models.StatePending
	dr := models.DateRange{
		Start: rec.RunDate.AddDate(0, 0, -evidenceLookback),
		End:   rec.RunDate,
	}

	advance := func(to models.RunState) error {
		if err := o.persist(ctx, func() error {
			return o.audit.Transition(ctx, runID, state, to)
		}); err != nil {
			return err
		}
		state = to
		return nil
	}

	// evidence
	n, err := o.ingestor.Ingest(ctx, rec.Ticker, rec.RunDate, dr)
	if err != nil {
		return nil, models.Failf("evidence ingest", err)
	}
	o.log.Info("evidence ingested",
		zap.String("run_id", runID),
		zap.String("ticker", rec.Ticker),
		zap.Int("items", n))
	if err := advance(models.StateEvidenceReady); err != nil {
		return nil, err
	}

	// analysts
	sets, recs, err := o.harness.Run(ctx, rec.Ticker, rec.RunDate, o.store, dr)
	if err != nil {
		return nil, models.Failf("analyst stage", err)
	}
	for _, set := range sets {
		if err := o.persist(ctx, func() error {
			return o.audit.SaveClaimSet(ctx, runID, set)
		}); err != nil {
			return nil, err
		}
	}
	if err := advance(models.StateAnalyzed); err != nil {
		return nil, err
	}

	// validation
	setsByAgent := make(map[string]*models.ClaimSet, len(sets))
	results := make(map[string]*validate.Result, len(sets))
	for i := range sets {
		set := &sets[i]
		res := validate.Validate(set, o.store, rec.RunDate, o.opts.DegradedClaimFraction)
		setsByAgent[set.Agent] = set
		results[set.Agent] = &res
		if err := o.persist(ctx, func() error {
			return o.audit.SaveVerdicts(ctx, runID, set.Agent, res.Verdicts)
		}); err != nil {
			return nil, err
		}
	}
	if err := advance(models.StateValidated); err != nil {
		return nil, err
	}

	// debate
	pool := debate.NewPool(rec.Ticker, rec.RunDate, setsByAgent, results)
	outcome, err := o.engine.Run(ctx, pool)
	if err != nil {
		return nil, models.Failf("debate", err)
	}
	positions := make([]models.DebatePosition, 0, len(outcome.Positions))
	for _, role := range models.DebateRoles {
		positions = append(positions, outcome.Positions[role])
	}
	if err := o.persist(ctx, func() error {
		return o.audit.SavePositions(ctx, runID, positions)
	}); err != nil {
		return nil, err
	}
	if err := advance(models.StateDebated); err != nil {
		return nil, err
	}

	// Cancellation up to this point leaves no partial decision behind.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrRunCancelled, err)
	}

	// decision
	decision := o.resolver.Resolve(rec.Ticker, rec.RunDate, outcome, recs, pool.DegradedFraction())
	decision = o.gate.Apply(decision, o.latestClose(rec.Ticker, dr))
	if err := o.persist(ctx, func() error {
		return o.audit.SaveDecision(ctx, runID, decision)
	}); err != nil {
		return nil, err
	}
	if err := advance(models.StateDecided); err != nil {
		return nil, err
	}

	// execution; a gateway failure is recorded but the decision stands
	result := &RunResult{
		RunID:    runID,
		Ticker:   rec.Ticker,
		RunDate:  rec.RunDate,
		Mode:     rec.Mode,
		Decision: &decision,
	}
	if o.gateway != nil {
		receipt, err := o.gateway.Submit(context.WithoutCancel(ctx), decision)
		if err != nil {
			o.log.Warn("execution submit failed",
				zap.String("run_id", runID),
				zap.Error(err))
		}
		result.Receipt = &receipt
	}

	if err := o.persist(ctx, func() error {
		return o.audit.Complete(ctx, runID, runID, time.Now())
	}); err != nil {
		return nil, err
	}
	result.State = models.StateCompleted

	o.log.Info("run completed",
		zap.String("run_id", runID),
		zap.String("ticker", rec.Ticker),
		zap.String("action", string(decision.Action)),
		zap.Float64("confidence", decision.Confidence),
		zap.Bool("divergence", decision.DivergenceFlag))
	return result, nil
}

// latestClose returns the most recent closing price in evidence for the
// gate to anchor exit levels to, or zero when no price bar was collected.
func (o *Orchestrator) latestClose(ticker string, dr models.DateRange) float64 {
	var best models.PriceBar
	found := false
	for item := range o.store.Query(ticker, models.EvidencePrice, dr) {
		var bar models.PriceBar
		if err := json.Unmarshal(item.Payload, &bar); err != nil {
			continue
		}
		if !found || bar.Date.After(best.Date) {
			best = bar
			found = true
		}
	}
	if !found {
		return 0
	}
	closePx, _ := best.Close.Float64()
	return closePx
}

// persist retries a write with doubling backoff before declaring a
// persistence failure.
func (o *Orchestrator) persist(ctx context.Context, fn func() error) error {
	var lastErr error
	backoff := o.opts.PersistBackoff

	for attempt := 0; attempt <= o.opts.PersistRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", models.ErrRunCancelled, ctx.Err())
			}
			backoff *= 2
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		// Illegal transitions are deterministic; retrying cannot help.
		if errors.Is(lastErr, storage.ErrIllegalTransition) {
			break
		}
	}
	return fmt.Errorf("%w: %v", models.ErrPersistence, lastErr)
}
