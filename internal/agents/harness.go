package agents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/verdictlab/verdictgo/internal/evidence"
	"github.com/verdictlab/verdictgo/internal/models"
)

// Harness fans the analyst stage out in parallel. Each analyst runs under
// its own deadline against a view scoped to its allowed kinds; one slow or
// failing analyst degrades its own slot, it never sinks the run.
type Harness struct {
	analysts []Analyst
	timeout  time.Duration
	log      *zap.Logger
}

func NewHarness(analysts []Analyst, timeout time.Duration, log *zap.Logger) *Harness {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Harness{analysts: analysts, timeout: timeout, log: log}
}

// Run executes every analyst and returns claim sets and recommendations in
// registration order. A timed-out or failed analyst contributes an empty
// degraded set. Run errors only when the parent context dies or every
// analyst failed outright.
func (h *Harness) Run(ctx context.Context, ticker string, runDate time.Time, store *evidence.Store, dr models.DateRange) ([]models.ClaimSet, []models.AnalystRecommendation, error) {
	if len(h.analysts) == 0 {
		return nil, nil, fmt.Errorf("%w: no analysts registered", models.ErrAgentFailure)
	}

	sets := make([]models.ClaimSet, len(h.analysts))
	recs := make([]models.AnalystRecommendation, len(h.analysts))
	failed := make([]bool, len(h.analysts))

	g, gctx := errgroup.WithContext(ctx)
	for i, analyst := range h.analysts {
		g.Go(func() error {
			view := evidence.NewView(store, ticker, dr, analyst.Kinds()...)

			actx, cancel := context.WithTimeout(gctx, h.timeout)
			defer cancel()

			set, rec, err := analyst.Produce(actx, ticker, runDate, view)
			if err != nil {
				// Parent cancellation aborts the whole stage; an
				// analyst's own deadline only degrades its slot.
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if errors.Is(err, context.DeadlineExceeded) {
					err = fmt.Errorf("%w: %s after %s", models.ErrAgentTimeout, analyst.Name(), h.timeout)
				}
				h.log.Warn("analyst degraded",
					zap.String("analyst", analyst.Name()),
					zap.String("ticker", ticker),
					zap.Error(err))
				sets[i] = models.ClaimSet{
					Agent:    analyst.Name(),
					Ticker:   ticker,
					RunDate:  runDate,
					Summary:  fmt.Sprintf("analyst unavailable: %v", err),
					Degraded: true,
				}
				recs[i] = models.AnalystRecommendation{
					Agent:    analyst.Name(),
					Action:   models.ActionHold,
					Degraded: true,
				}
				failed[i] = true
				return nil
			}

			scrubCitations(set, view)
			sets[i] = *set
			recs[i] = rec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	allFailed := true
	for _, f := range failed {
		if !f {
			allFailed = false
			break
		}
	}
	if allFailed {
		return nil, nil, fmt.Errorf("%w: all %d analysts failed", models.ErrAgentFailure, len(h.analysts))
	}

	return sets, recs, nil
}

// scrubCitations strips evidence references the analyst's own view cannot
// resolve. A model citing ids outside its capability ends up with an
// uncited claim for the validator, not with borrowed evidence.
func scrubCitations(set *models.ClaimSet, view *evidence.View) {
	for ci := range set.Claims {
		claim := &set.Claims[ci]
		kept := claim.SupportingEvidenceIDs[:0]
		for _, id := range claim.SupportingEvidenceIDs {
			if _, ok := view.Resolve(id); ok {
				kept = append(kept, id)
			}
		}
		claim.SupportingEvidenceIDs = kept
	}
}
