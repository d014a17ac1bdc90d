package orchestrate

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdictlab/verdictgo/internal/agents"
	"github.com/verdictlab/verdictgo/internal/consensus"
	"github.com/verdictlab/verdictgo/internal/debate"
	"github.com/verdictlab/verdictgo/internal/evidence"
	"github.com/verdictlab/verdictgo/internal/evidence/providers"
	"github.com/verdictlab/verdictgo/internal/models"
	"github.com/verdictlab/verdictgo/internal/storage"
)

var runDate = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

// seedProvider injects a fixed batch of news evidence.
type seedProvider struct{}

func (seedProvider) Name() string              { return "seed" }
func (seedProvider) Kind() models.EvidenceKind { return models.EvidenceNews }

func (seedProvider) Fetch(ctx context.Context, ticker string, dr models.DateRange) ([]models.EvidenceItem, error) {
	items := make([]models.EvidenceItem, 0, 3)
	for i := 1; i <= 3; i++ {
		items = append(items, models.EvidenceItem{
			ID:        uuid.NewString(),
			Ticker:    ticker,
			Kind:      models.EvidenceNews,
			Payload:   []byte(`{"title":"seeded headline"}`),
			SourceURI: "test://seed",
			AsOfDate:  runDate.AddDate(0, 0, -i),
		})
	}
	return items, nil
}

// citingAnalyst emits one supported claim per visible news item.
type citingAnalyst struct {
	name  string
	gate  chan struct{} // optional; Produce blocks on it when non-nil
	calls atomic.Int32
	fail  bool
}

func (a *citingAnalyst) Name() string                 { return a.name }
func (a *citingAnalyst) Kinds() []models.EvidenceKind { return []models.EvidenceKind{models.EvidenceNews} }

func (a *citingAnalyst) Produce(ctx context.Context, ticker string, rd time.Time, view *evidence.View) (*models.ClaimSet, models.AnalystRecommendation, error) {
	a.calls.Add(1)
	if a.gate != nil {
		select {
		case <-a.gate:
		case <-ctx.Done():
			return nil, models.AnalystRecommendation{}, ctx.Err()
		}
	}
	if a.fail {
		return nil, models.AnalystRecommendation{}, errors.New("synthetic analyst failure")
	}

	set := &models.ClaimSet{Agent: a.name, Ticker: ticker, RunDate: rd}
	for item := range view.Items(models.EvidenceNews) {
		set.Claims = append(set.Claims, models.Claim{
			ID:                    uuid.NewString(),
			Statement:             "coverage is positive with clear upside",
			SupportingEvidenceIDs: []string{item.ID},
			Confidence:            0.8,
		})
	}
	return set, models.AnalystRecommendation{Agent: a.name, Action: models.ActionBuy, Confidence: 0.8}, nil
}

// priceSeedProvider injects an ascending daily bar series.
type priceSeedProvider struct{}

func (priceSeedProvider) Name() string              { return "priceseed" }
func (priceSeedProvider) Kind() models.EvidenceKind { return models.EvidencePrice }

func (priceSeedProvider) Fetch(ctx context.Context, ticker string, dr models.DateRange) ([]models.EvidenceItem, error) {
	items := make([]models.EvidenceItem, 0, 25)
	for i := 0; i < 25; i++ {
		date := runDate.AddDate(0, 0, i-25)
		px := decimal.NewFromInt(int64(100 + i))
		bar := models.PriceBar{
			Symbol: ticker,
			Date:   date,
			Open:   px,
			High:   px,
			Low:    px,
			Close:  px,
			Volume: 1000,
		}
		payload, err := json.Marshal(bar)
		if err != nil {
			return nil, err
		}
		items = append(items, models.EvidenceItem{
			Ticker:    ticker,
			Kind:      models.EvidencePrice,
			Payload:   payload,
			SourceURI: "test://bars",
			AsOfDate:  date,
		})
	}
	return items, nil
}

// countingGateway records submissions.
type countingGateway struct {
	mu      sync.Mutex
	submits int
}

func (g *countingGateway) Submit(ctx context.Context, d models.Decision) (models.ExecutionReceipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submits++
	return models.ExecutionReceipt{
		OrderID: uuid.NewString(),
		Ticker:  d.Ticker,
		Action:  d.Action,
		Status:  "filled",
	}, nil
}

type harnessFixture struct {
	orch    *Orchestrator
	audit   *storage.AuditStore
	gateway *countingGateway
}

func newFixture(t *testing.T, analysts ...agents.Analyst) *harnessFixture {
	return newFixtureWith(t, []providers.Provider{seedProvider{}}, analysts...)
}

func newFixtureWith(t *testing.T, sources []providers.Provider, analysts ...agents.Analyst) *harnessFixture {
	t.Helper()
	dir := t.TempDir()

	audit, err := storage.Open(filepath.Join(dir, "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { audit.Close() })

	store := evidence.NewStore()
	ingestor := providers.NewIngestor(store, sources, nil)
	harness := agents.NewHarness(analysts, time.Second, nil)
	engine := debate.NewEngine(3, nil, nil)
	resolver := consensus.NewResolver(0.75, nil)
	gate := consensus.NewRiskGate(0.1, nil)
	gateway := &countingGateway{}
	runLog := NewRunLog(dir, nil)

	orch := New(audit, store, ingestor, harness, engine, resolver, gate, gateway, runLog,
		Options{DegradedClaimFraction: 0.5, PersistRetries: 3, PersistBackoff: 10 * time.Millisecond}, nil)

	return &harnessFixture{orch: orch, audit: audit, gateway: gateway}
}

func TestRunCompletesPipeline(t *testing.T) {
	fx := newFixture(t, &citingAnalyst{name: "news"})

	result, err := fx.orch.Run(context.Background(), "AAPL", runDate, models.ModePaper)
	require.NoError(t, err)

	assert.Equal(t, models.StateCompleted, result.State)
	require.NotNil(t, result.Decision)
	assert.False(t, result.Reused)
	require.NotNil(t, result.Receipt)

	replay, err := fx.audit.Replay(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, replay.Run.State)
	require.Len(t, replay.ClaimSets, 1)
	assert.NotEmpty(t, replay.Verdicts["news"])
	assert.Len(t, replay.Positions, 4, "one final position per debate role")
	require.NotNil(t, replay.Decision)
}

func TestRunIsIdempotentPerKey(t *testing.T) {
	analyst := &citingAnalyst{name: "news"}
	fx := newFixture(t, analyst)
	ctx := context.Background()

	first, err := fx.orch.Run(ctx, "AAPL", runDate, models.ModePaper)
	require.NoError(t, err)

	second, err := fx.orch.Run(ctx, "AAPL", runDate, models.ModePaper)
	require.NoError(t, err)

	assert.True(t, second.Reused)
	assert.Equal(t, first.RunID, second.RunID)
	require.NotNil(t, second.Decision)
	assert.Equal(t, first.Decision.Action, second.Decision.Action)
	assert.Equal(t, int32(1), analyst.calls.Load(), "pipeline executed once")
	assert.Equal(t, 1, fx.gateway.submits, "no duplicate order")
}

func TestConcurrentDuplicateJoinsInflightRun(t *testing.T) {
	gate := make(chan struct{})
	analyst := &citingAnalyst{name: "news", gate: gate}
	fx := newFixture(t, analyst)

	type outcome struct {
		result *RunResult
		err    error
	}
	results := make(chan outcome, 2)
	for i := 0; i < 2; i++ {
		go func() {
			r, err := fx.orch.Run(context.Background(), "AAPL", runDate, models.ModePaper)
			results <- outcome{r, err}
		}()
	}

	time.Sleep(50 * time.Millisecond) // both submissions in
	close(gate)

	a := <-results
	b := <-results
	require.NoError(t, a.err)
	require.NoError(t, b.err)
	assert.Equal(t, a.result.RunID, b.result.RunID, "both callers share one run")
	assert.Equal(t, int32(1), analyst.calls.Load())
	assert.Equal(t, 1, fx.gateway.submits)
}

func TestRunFailsWhenAllAnalystsFail(t *testing.T) {
	fx := newFixture(t, &citingAnalyst{name: "a", fail: true}, &citingAnalyst{name: "b", fail: true})

	result, err := fx.orch.Run(context.Background(), "AAPL", runDate, models.ModePaper)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrAgentFailure)
	assert.Equal(t, models.StateFailed, result.State)

	rec, ferr := fx.audit.GetRun(context.Background(), result.RunID)
	require.NoError(t, ferr)
	assert.Equal(t, models.StateFailed, rec.State)
	assert.NotEmpty(t, rec.FailReason)

	decision, derr := fx.audit.GetDecision(context.Background(), result.RunID)
	require.NoError(t, derr)
	assert.Nil(t, decision, "no partial decision is recorded")
	assert.Equal(t, 0, fx.gateway.submits)
}

func TestFailedRunAllowsRetry(t *testing.T) {
	failing := &citingAnalyst{name: "news", fail: true}
	fx := newFixture(t, failing)
	ctx := context.Background()

	_, err := fx.orch.Run(ctx, "AAPL", runDate, models.ModePaper)
	require.Error(t, err)

	failing.fail = false
	result, err := fx.orch.Run(ctx, "AAPL", runDate, models.ModePaper)
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, result.State)
	assert.False(t, result.Reused)
}

func TestCancellationBeforeDecisionLeavesNoDecision(t *testing.T) {
	gate := make(chan struct{}) // never closed; analyst blocks until cancel
	fx := newFixture(t, &citingAnalyst{name: "news", gate: gate})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var result *RunResult
	var runErr error
	go func() {
		result, runErr = fx.orch.Run(ctx, "AAPL", runDate, models.ModePaper)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	require.Error(t, runErr)
	require.NotNil(t, result)
	assert.Equal(t, models.StateFailed, result.State)

	decision, err := fx.audit.GetDecision(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Nil(t, decision)
	assert.Equal(t, 0, fx.gateway.submits)
}

func TestRunSurvivesOnPriceBarsAlone(t *testing.T) {
	fx := newFixtureWith(t, []providers.Provider{priceSeedProvider{}},
		agents.NewTechnicalAnalyst(),
		&citingAnalyst{name: "news", fail: true},
		&citingAnalyst{name: "sentiment", fail: true},
		&citingAnalyst{name: "fundamentals", fail: true})

	result, err := fx.orch.Run(context.Background(), "AAPL", runDate, models.ModePaper)
	require.NoError(t, err, "one healthy analyst keeps the run alive")

	assert.Equal(t, models.StateCompleted, result.State)
	require.NotNil(t, result.Decision)
	assert.Equal(t, 1, fx.gateway.submits)

	replay, rerr := fx.audit.Replay(context.Background(), result.RunID)
	require.NoError(t, rerr)
	require.Len(t, replay.ClaimSets, 4)
	degraded := 0
	for _, set := range replay.ClaimSets {
		if set.Degraded {
			degraded++
		}
	}
	assert.Equal(t, 3, degraded, "every analyst without evidence degrades")

	supported := map[string]bool{}
	for _, verdicts := range replay.Verdicts {
		for _, v := range verdicts {
			if v.Status == models.VerdictSupported {
				supported[v.ClaimID] = true
			}
		}
	}
	for _, ref := range result.Decision.RationaleRefs {
		assert.True(t, supported[ref], "rationale ref %s must be a supported claim", ref)
	}
}

func TestInProgressRunIsNotServedAsReuse(t *testing.T) {
	fx := newFixtureWith(t, nil)
	ctx := context.Background()

	stale := models.RunRecord{
		RunID:     uuid.NewString(),
		Ticker:    "AAPL",
		RunDate:   runDate,
		Mode:      models.ModePaper,
		State:     models.StatePending,
		StartedAt: time.Now().UTC(),
	}
	require.NoError(t, fx.audit.CreateRun(ctx, stale))

	result, err := fx.orch.Run(ctx, "AAPL", runDate, models.ModePaper)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrRunInProgress)
	require.NotNil(t, result)
	assert.Equal(t, stale.RunID, result.RunID)
	assert.Equal(t, models.StatePending, result.State)
	assert.False(t, result.Reused, "an unfinished run is never a reuse")
	assert.Nil(t, result.Decision)
}
