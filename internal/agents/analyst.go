// Package agents runs the analyst stage of the pipeline: independent
// agents turn scoped evidence views into claim sets and stance
// recommendations, under per-agent deadlines enforced by the Harness.
package agents

import (
	"context"
	"time"

	"github.com/verdictlab/verdictgo/internal/evidence"
	"github.com/verdictlab/verdictgo/internal/models"
)

// Analyst is one independent evidence interpreter. Produce receives a
// capability-scoped view; the analyst cannot reach evidence kinds outside
// the view it was handed.
type Analyst interface {
	Name() string
	Kinds() []models.EvidenceKind
	Produce(ctx context.Context, ticker string, runDate time.Time, view *evidence.View) (*models.ClaimSet, models.AnalystRecommendation, error)
}

// kindAccess maps each built-in analyst to the evidence kinds its view
// exposes. The mapping is the authorization boundary: an analyst absent
// from the map gets an empty view.
var kindAccess = map[string][]models.EvidenceKind{
	AnalystTechnical:    {models.EvidencePrice},
	AnalystNews:         {models.EvidenceNews},
	AnalystSentiment:    {models.EvidenceSocial},
	AnalystFundamentals: {models.EvidenceFundamental, models.EvidencePrice},
}

// Built-in analyst names.
const (
	AnalystTechnical    = "technical"
	AnalystNews         = "news"
	AnalystSentiment    = "sentiment"
	AnalystFundamentals = "fundamentals"
)

// AllowedKinds returns the evidence kinds the named analyst may see.
func AllowedKinds(name string) []models.EvidenceKind {
	return kindAccess[name]
}
