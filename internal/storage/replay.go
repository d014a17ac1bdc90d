package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/verdictlab/verdictgo/internal/models"
)

// RunReplay is the full reconstructed audit trail for one run.
type RunReplay struct {
	Run       models.RunRecord                   `json:"run"`
	ClaimSets []models.ClaimSet                  `json:"claim_sets"`
	Verdicts  map[string][]models.ValidationVerdict `json:"verdicts"`
	Positions []models.DebatePosition            `json:"positions"`
	Decision  *models.Decision                   `json:"decision,omitempty"`
}

// Replay rebuilds everything persisted for a run, in insertion order.
func (s *AuditStore) Replay(ctx context.Context, runID string) (*RunReplay, error) {
	rec, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	replay := &RunReplay{Run: *rec, Verdicts: make(map[string][]models.ValidationVerdict)}

	rows, err := s.db.QueryContext(ctx, `
SELECT payload FROM claim_sets WHERE run_id = ? ORDER BY agent
`, runID)
	if err != nil {
		return nil, fmt.Errorf("query claim sets: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var set models.ClaimSet
		if err := json.Unmarshal([]byte(payload), &set); err != nil {
			return nil, fmt.Errorf("parse claim set: %w", err)
		}
		replay.ClaimSets = append(replay.ClaimSets, set)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	vrows, err := s.db.QueryContext(ctx, `
SELECT agent, claim_id, status, detail FROM verdicts WHERE run_id = ? ORDER BY agent, claim_id
`, runID)
	if err != nil {
		return nil, fmt.Errorf("query verdicts: %w", err)
	}
	defer vrows.Close()
	for vrows.Next() {
		var agent, claimID, status, detail string
		if err := vrows.Scan(&agent, &claimID, &status, &detail); err != nil {
			return nil, err
		}
		replay.Verdicts[agent] = append(replay.Verdicts[agent], models.ValidationVerdict{
			ClaimID: claimID,
			Status:  models.VerdictStatus(status),
			Detail:  detail,
		})
	}
	if err := vrows.Err(); err != nil {
		return nil, err
	}

	prows, err := s.db.QueryContext(ctx, `
SELECT payload FROM positions WHERE run_id = ? ORDER BY round, role
`, runID)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer prows.Close()
	for prows.Next() {
		var payload string
		if err := prows.Scan(&payload); err != nil {
			return nil, err
		}
		var pos models.DebatePosition
		if err := json.Unmarshal([]byte(payload), &pos); err != nil {
			return nil, fmt.Errorf("parse position: %w", err)
		}
		replay.Positions = append(replay.Positions, pos)
	}
	if err := prows.Err(); err != nil {
		return nil, err
	}

	replay.Decision, err = s.GetDecision(ctx, runID)
	if err != nil {
		return nil, err
	}
	return replay, nil
}
