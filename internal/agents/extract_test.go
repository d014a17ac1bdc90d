package agents

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdictlab/verdictgo/internal/models"
)

var runDate = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

func TestParseAnalystOutputStructured(t *testing.T) {
	text := "Here is my analysis.\n```json\n{\"summary\":\"Coverage is upbeat.\",\"recommendation\":\"buy\",\"confidence\":0.72,\"claims\":[{\"statement\":\"Vendor announced a new chip on 2024-05-30.\",\"evidence_ids\":[\"ev-1\",\"ev-1\",\"ev-2\"],\"confidence\":0.8,\"claimed_date\":\"2024-05-30\"}]}\n```"

	set, rec := ParseAnalystOutput(AnalystNews, "NVDA", runDate, text)

	require.Len(t, set.Claims, 1)
	claim := set.Claims[0]
	assert.Equal(t, []string{"ev-1", "ev-2"}, claim.SupportingEvidenceIDs, "duplicate ids collapse")
	require.NotNil(t, claim.ClaimedDate)
	assert.Equal(t, "2024-05-30", claim.ClaimedDate.Format("2006-01-02"))
	assert.Equal(t, models.ActionBuy, rec.Action)
	assert.InDelta(t, 0.72, rec.Confidence, 1e-9)
	assert.False(t, set.Degraded)
}

func TestParseAnalystOutputBareJSON(t *testing.T) {
	text := `{"summary":"Weak quarter.","recommendation":"SELL","confidence":1.4,"claims":[{"statement":"Margins compressed.","evidence_ids":["ev-9"],"confidence":0.6}]}`

	set, rec := ParseAnalystOutput(AnalystFundamentals, "AAPL", runDate, text)

	require.Len(t, set.Claims, 1)
	assert.Nil(t, set.Claims[0].ClaimedDate)
	assert.Equal(t, models.ActionSell, rec.Action)
	assert.Equal(t, 1.0, rec.Confidence, "confidence clamps to [0,1]")
}

func TestParseAnalystOutputUnparsable(t *testing.T) {
	text := "The stock looks bullish with strong upside, I would buy."

	set, rec := ParseAnalystOutput(AnalystNews, "AAPL", runDate, text)

	require.Len(t, set.Claims, 1)
	assert.Empty(t, set.Claims[0].SupportingEvidenceIDs, "free text yields an uncited claim")
	assert.Equal(t, models.ActionBuy, rec.Action)
	assert.InDelta(t, 0.2, rec.Confidence, 1e-9)
}

func TestParseAnalystOutputEmpty(t *testing.T) {
	set, rec := ParseAnalystOutput(AnalystSentiment, "AAPL", runDate, "   ")

	assert.Empty(t, set.Claims)
	assert.Equal(t, models.ActionHold, rec.Action)
}

func TestFallbackActionTieIsHold(t *testing.T) {
	assert.Equal(t, models.ActionHold, fallbackAction("bullish but also bearish"))
	assert.Equal(t, models.ActionSell, fallbackAction("overvalued, I would sell and divest"))
}
