package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdictlab/verdictgo/internal/models"
)

var runDate = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *AuditStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newRun(id string) models.RunRecord {
	return models.RunRecord{
		RunID:     id,
		Ticker:    "AAPL",
		RunDate:   runDate,
		Mode:      models.ModePaper,
		State:     models.StatePending,
		StartedAt: time.Now().UTC(),
	}
}

func TestCreateRunEnforcesIdempotencyKey(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateRun(ctx, newRun("run-1")))

	err := store.CreateRun(ctx, newRun("run-2"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRunExists)

	// a different mode is a different key
	other := newRun("run-3")
	other.Mode = models.ModeLive
	require.NoError(t, store.CreateRun(ctx, other))
}

func TestFailedRunFreesTheKey(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateRun(ctx, newRun("run-1")))
	require.NoError(t, store.Fail(ctx, "run-1", "agents failed", time.Now()))

	require.NoError(t, store.CreateRun(ctx, newRun("run-2")),
		"a failed run does not block a retry")

	rec, err := store.FindRun(ctx, models.RunKey{Ticker: "AAPL", RunDate: runDate, Mode: models.ModePaper})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "run-2", rec.RunID)
}

func TestTransitionFollowsStateMachine(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateRun(ctx, newRun("run-1")))

	require.NoError(t, store.Transition(ctx, "run-1", models.StatePending, models.StateEvidenceReady))
	require.NoError(t, store.Transition(ctx, "run-1", models.StateEvidenceReady, models.StateAnalyzed))

	err := store.Transition(ctx, "run-1", models.StateAnalyzed, models.StateDecided)
	assert.ErrorIs(t, err, ErrIllegalTransition, "skipping states is rejected")

	err = store.Transition(ctx, "run-1", models.StatePending, models.StateEvidenceReady)
	assert.ErrorIs(t, err, ErrIllegalTransition, "stale from-state is rejected")
}

func TestCompleteRequiresDecidedState(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateRun(ctx, newRun("run-1")))

	err := store.Complete(ctx, "run-1", "run-1", time.Now())
	assert.ErrorIs(t, err, ErrIllegalTransition)

	for _, next := range []models.RunState{
		models.StateEvidenceReady, models.StateAnalyzed, models.StateValidated,
		models.StateDebated, models.StateDecided,
	} {
		rec, err := store.GetRun(ctx, "run-1")
		require.NoError(t, err)
		require.NoError(t, store.Transition(ctx, "run-1", rec.State, next))
	}

	require.NoError(t, store.Complete(ctx, "run-1", "run-1", time.Now()))

	rec, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, rec.State)
	require.NotNil(t, rec.CompletedAt)
}

func TestFailIsRejectedOnTerminalRuns(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateRun(ctx, newRun("run-1")))
	require.NoError(t, store.Fail(ctx, "run-1", "boom", time.Now()))

	err := store.Fail(ctx, "run-1", "again", time.Now())
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestReplayReconstructsRun(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateRun(ctx, newRun("run-1")))

	set := models.ClaimSet{
		Agent:   "news",
		Ticker:  "AAPL",
		RunDate: runDate,
		Claims: []models.Claim{
			{ID: "c1", Statement: "something happened", SupportingEvidenceIDs: []string{"ev-1"}, Confidence: 0.8},
		},
	}
	require.NoError(t, store.SaveClaimSet(ctx, "run-1", set))
	require.NoError(t, store.SaveVerdicts(ctx, "run-1", "news", []models.ValidationVerdict{
		{ClaimID: "c1", Status: models.VerdictSupported},
	}))
	require.NoError(t, store.SavePositions(ctx, "run-1", []models.DebatePosition{
		{Role: models.RoleBull, Recommendation: models.ActionBuy, Confidence: 0.7, Cites: []string{"c1"}, Round: 1},
		{Role: models.RoleBear, Recommendation: models.ActionHold, Confidence: 0.4, Round: 1},
	}))
	decision := models.Decision{
		Ticker:        "AAPL",
		RunDate:       runDate,
		Action:        models.ActionBuy,
		Confidence:    0.6,
		RationaleRefs: []string{"c1"},
	}
	require.NoError(t, store.SaveDecision(ctx, "run-1", decision))

	replay, err := store.Replay(ctx, "run-1")
	require.NoError(t, err)

	require.Len(t, replay.ClaimSets, 1)
	assert.Equal(t, "news", replay.ClaimSets[0].Agent)
	assert.Equal(t, models.VerdictSupported, replay.Verdicts["news"][0].Status)
	require.Len(t, replay.Positions, 2)
	require.NotNil(t, replay.Decision)
	assert.Equal(t, models.ActionBuy, replay.Decision.Action)
	assert.Equal(t, decision.RationaleRefs, replay.Decision.RationaleRefs)
}

func TestDecisionIsAppendOnly(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateRun(ctx, newRun("run-1")))

	d := models.Decision{Ticker: "AAPL", RunDate: runDate, Action: models.ActionHold}
	require.NoError(t, store.SaveDecision(ctx, "run-1", d))

	d.Action = models.ActionBuy
	err := store.SaveDecision(ctx, "run-1", d)
	require.Error(t, err, "a second decision for the same run is rejected")

	got, err := store.GetDecision(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.ActionHold, got.Action)
}
