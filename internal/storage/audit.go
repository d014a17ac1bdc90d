// Package storage persists the pipeline's audit trail in sqlite. Runs,
// claim sets, verdicts, debate positions, and decisions are append-only:
// the only UPDATE in the schema is the run state column, and that moves
// strictly along the state machine.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/verdictlab/verdictgo/internal/models"
)

// ErrRunExists signals that a non-failed run already occupies the
// (ticker, run_date, mode) slot.
var ErrRunExists = errors.New("run already exists")

// ErrIllegalTransition rejects state moves outside the machine.
var ErrIllegalTransition = errors.New("illegal state transition")

const dateFormat = "2006-01-02"

// AuditStore wraps the sqlite handle. Safe for concurrent use; sqlite
// serializes writers and busy_timeout absorbs contention.
type AuditStore struct {
	db *sql.DB
}

func Open(dbPath string) (*AuditStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=3000;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", p, err)
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &AuditStore{db: db}, nil
}

func (s *AuditStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    ticker TEXT NOT NULL,
    run_date TEXT NOT NULL,
    mode TEXT NOT NULL,
    state TEXT NOT NULL,
    started_at DATETIME NOT NULL,
    completed_at DATETIME,
    decision_ref TEXT,
    fail_reason TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_runs_active
    ON runs(ticker, run_date, mode) WHERE state != 'FAILED';

CREATE TABLE IF NOT EXISTS claim_sets (
    run_id TEXT NOT NULL REFERENCES runs(run_id),
    agent TEXT NOT NULL,
    payload TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (run_id, agent)
);

CREATE TABLE IF NOT EXISTS verdicts (
    run_id TEXT NOT NULL REFERENCES runs(run_id),
    agent TEXT NOT NULL,
    claim_id TEXT NOT NULL,
    status TEXT NOT NULL,
    detail TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (run_id, claim_id)
);

CREATE TABLE IF NOT EXISTS positions (
    run_id TEXT NOT NULL REFERENCES runs(run_id),
    role TEXT NOT NULL,
    round INTEGER NOT NULL,
    payload TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (run_id, role, round)
);

CREATE TABLE IF NOT EXISTS decisions (
    run_id TEXT PRIMARY KEY REFERENCES runs(run_id),
    ticker TEXT NOT NULL,
    run_date TEXT NOT NULL,
    payload TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_runs_lookup ON runs(ticker, run_date, mode);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// CreateRun inserts a PENDING run. The partial unique index makes the
// idempotency check atomic: a second non-failed run for the same key
// loses the race inside sqlite, not in Go.
func (s *AuditStore) CreateRun(ctx context.Context, rec models.RunRecord) error {
	if rec.State == "" {
		rec.State = models.StatePending
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO runs (run_id, ticker, run_date, mode, state, started_at)
VALUES (?, ?, ?, ?, ?, ?)
`, rec.RunID, rec.Ticker, rec.RunDate.Format(dateFormat), string(rec.Mode), string(rec.State), rec.StartedAt.UTC())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", ErrRunExists, rec.Key())
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Transition moves a run along the state machine, enforcing legality in
// the same statement that performs the update.
func (s *AuditStore) Transition(ctx context.Context, runID string, from, to models.RunState) error {
	if !models.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE runs SET state = ? WHERE run_id = ? AND state = ?
`, string(to), runID, string(from))
	if err != nil {
		return fmt.Errorf("transition run %s: %w", runID, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: run %s is not in state %s", ErrIllegalTransition, runID, from)
	}
	return nil
}

// Complete stamps the terminal fields alongside the COMPLETED transition.
func (s *AuditStore) Complete(ctx context.Context, runID string, decisionRef string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE runs SET state = ?, completed_at = ?, decision_ref = ?
WHERE run_id = ? AND state = ?
`, string(models.StateCompleted), at.UTC(), decisionRef, runID, string(models.StateDecided))
	if err != nil {
		return fmt.Errorf("complete run %s: %w", runID, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: run %s is not in state %s", ErrIllegalTransition, runID, models.StateDecided)
	}
	return nil
}

// Fail marks a run FAILED from any non-terminal state.
func (s *AuditStore) Fail(ctx context.Context, runID string, reason string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE runs SET state = ?, completed_at = ?, fail_reason = ?
WHERE run_id = ? AND state NOT IN (?, ?)
`, string(models.StateFailed), at.UTC(), reason, runID,
		string(models.StateCompleted), string(models.StateFailed))
	if err != nil {
		return fmt.Errorf("fail run %s: %w", runID, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: run %s is already terminal", ErrIllegalTransition, runID)
	}
	return nil
}

// FindRun returns the non-failed run for the key, if any.
func (s *AuditStore) FindRun(ctx context.Context, key models.RunKey) (*models.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT run_id, ticker, run_date, mode, state, started_at, completed_at, decision_ref, fail_reason
FROM runs
WHERE ticker = ? AND run_date = ? AND mode = ? AND state != ?
`, key.Ticker, key.RunDate.Format(dateFormat), string(key.Mode), string(models.StateFailed))
	return scanRun(row)
}

// GetRun returns a run by id.
func (s *AuditStore) GetRun(ctx context.Context, runID string) (*models.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT run_id, ticker, run_date, mode, state, started_at, completed_at, decision_ref, fail_reason
FROM runs WHERE run_id = ?
`, runID)
	return scanRun(row)
}

func scanRun(row *sql.Row) (*models.RunRecord, error) {
	var rec models.RunRecord
	var runDate, mode, state string
	var completedAt sql.NullTime
	var decisionRef, failReason sql.NullString

	err := row.Scan(&rec.RunID, &rec.Ticker, &runDate, &mode, &state,
		&rec.StartedAt, &completedAt, &decisionRef, &failReason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	rec.RunDate, err = time.Parse(dateFormat, runDate)
	if err != nil {
		return nil, fmt.Errorf("parse run_date %q: %w", runDate, err)
	}
	rec.Mode = models.RunMode(mode)
	rec.State = models.RunState(state)
	if completedAt.Valid {
		t := completedAt.Time
		rec.CompletedAt = &t
	}
	rec.DecisionRef = decisionRef.String
	rec.FailReason = failReason.String
	return &rec, nil
}

// SaveClaimSet appends one analyst's claim set for a run.
func (s *AuditStore) SaveClaimSet(ctx context.Context, runID string, set models.ClaimSet) error {
	payload, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("marshal claim set: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO claim_sets (run_id, agent, payload) VALUES (?, ?, ?)
`, runID, set.Agent, string(payload))
	if err != nil {
		return fmt.Errorf("insert claim set: %w", err)
	}
	return nil
}

// SaveVerdicts appends the validator's rulings for one agent in one
// transaction.
func (s *AuditStore) SaveVerdicts(ctx context.Context, runID, agent string, verdicts []models.ValidationVerdict) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin verdicts tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO verdicts (run_id, agent, claim_id, status, detail) VALUES (?, ?, ?, ?, ?)
`)
	if err != nil {
		return fmt.Errorf("prepare verdicts: %w", err)
	}
	defer stmt.Close()

	for _, v := range verdicts {
		if _, err := stmt.ExecContext(ctx, runID, agent, v.ClaimID, string(v.Status), v.Detail); err != nil {
			return fmt.Errorf("insert verdict %s: %w", v.ClaimID, err)
		}
	}
	return tx.Commit()
}

// SavePositions appends the debate's final positions.
func (s *AuditStore) SavePositions(ctx context.Context, runID string, positions []models.DebatePosition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin positions tx: %w", err)
	}
	defer tx.Rollback()

	for _, pos := range positions {
		payload, err := json.Marshal(pos)
		if err != nil {
			return fmt.Errorf("marshal position: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO positions (run_id, role, round, payload) VALUES (?, ?, ?, ?)
`, runID, string(pos.Role), pos.Round, string(payload)); err != nil {
			return fmt.Errorf("insert position %s: %w", pos.Role, err)
		}
	}
	return tx.Commit()
}

// SaveDecision appends the run's single decision.
func (s *AuditStore) SaveDecision(ctx context.Context, runID string, d models.Decision) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO decisions (run_id, ticker, run_date, payload) VALUES (?, ?, ?, ?)
`, runID, d.Ticker, d.RunDate.Format(dateFormat), string(payload))
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// GetDecision returns the decision recorded for a run, if any.
func (s *AuditStore) GetDecision(ctx context.Context, runID string) (*models.Decision, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `
SELECT payload FROM decisions WHERE run_id = ?
`, runID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query decision: %w", err)
	}
	var d models.Decision
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		return nil, fmt.Errorf("parse decision: %w", err)
	}
	return &d, nil
}
