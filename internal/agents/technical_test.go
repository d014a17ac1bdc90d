package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdictlab/verdictgo/internal/evidence"
	"github.com/verdictlab/verdictgo/internal/models"
)

func putBars(t *testing.T, store *evidence.Store, ticker string, refDate time.Time, closes []float64) {
	t.Helper()
	for i, c := range closes {
		date := refDate.AddDate(0, 0, i-len(closes)+1)
		bar := models.PriceBar{
			Symbol: ticker,
			Date:   date,
			Open:   decimal.NewFromFloat(c),
			High:   decimal.NewFromFloat(c + 1),
			Low:    decimal.NewFromFloat(c - 1),
			Close:  decimal.NewFromFloat(c),
			Volume: 1000,
		}
		payload, err := json.Marshal(bar)
		require.NoError(t, err)
		_, err = store.Put(models.EvidenceItem{
			ID:        fmt.Sprintf("%s-bar-%d", ticker, i),
			Ticker:    ticker,
			Kind:      models.EvidencePrice,
			Payload:   payload,
			SourceURI: "test://bars",
			AsOfDate:  date,
		}, refDate)
		require.NoError(t, err)
	}
}

func techView(store *evidence.Store, ticker string) *evidence.View {
	return evidence.NewView(store, ticker, models.DateRange{}, models.EvidencePrice)
}

func TestTechnicalAnalystUptrend(t *testing.T) {
	store := evidence.NewStore()
	closes := make([]float64, 25)
	for i := range closes {
		closes[i] = 100 + float64(i) // steady climb
	}
	putBars(t, store, "NVDA", runDate, closes)

	set, rec, err := NewTechnicalAnalyst().Produce(context.Background(), "NVDA", runDate, techView(store, "NVDA"))
	require.NoError(t, err)

	assert.Equal(t, models.ActionBuy, rec.Action)
	assert.False(t, set.Degraded)
	require.NotEmpty(t, set.Claims)
	for _, claim := range set.Claims {
		assert.NotEmpty(t, claim.SupportingEvidenceIDs, "every technical claim cites bars")
	}
}

func TestTechnicalAnalystDowntrend(t *testing.T) {
	store := evidence.NewStore()
	closes := make([]float64, 25)
	for i := range closes {
		closes[i] = 200 - 2*float64(i)
	}
	putBars(t, store, "AAPL", runDate, closes)

	_, rec, err := NewTechnicalAnalyst().Produce(context.Background(), "AAPL", runDate, techView(store, "AAPL"))
	require.NoError(t, err)
	assert.Equal(t, models.ActionSell, rec.Action)
}

func TestTechnicalAnalystNoData(t *testing.T) {
	store := evidence.NewStore()

	set, rec, err := NewTechnicalAnalyst().Produce(context.Background(), "TSLA", runDate, techView(store, "TSLA"))
	require.NoError(t, err)
	assert.True(t, set.Degraded)
	assert.True(t, rec.Degraded)
	assert.Equal(t, models.ActionHold, rec.Action)
}

func TestTechnicalAnalystShortHistoryHolds(t *testing.T) {
	store := evidence.NewStore()
	putBars(t, store, "AMD", runDate, []float64{100, 101, 103})

	set, rec, err := NewTechnicalAnalyst().Produce(context.Background(), "AMD", runDate, techView(store, "AMD"))
	require.NoError(t, err)
	assert.Equal(t, models.ActionHold, rec.Action)
	assert.False(t, set.Degraded)
}

func TestTechnicalAnalystDeterministic(t *testing.T) {
	store := evidence.NewStore()
	putBars(t, store, "MSFT", runDate, []float64{100, 99, 104, 102, 106, 105, 108, 107, 110, 111})

	first, rec1, err := NewTechnicalAnalyst().Produce(context.Background(), "MSFT", runDate, techView(store, "MSFT"))
	require.NoError(t, err)
	second, rec2, err := NewTechnicalAnalyst().Produce(context.Background(), "MSFT", runDate, techView(store, "MSFT"))
	require.NoError(t, err)

	assert.Equal(t, rec1.Action, rec2.Action)
	assert.Equal(t, rec1.Confidence, rec2.Confidence)
	require.Equal(t, len(first.Claims), len(second.Claims))
	for i := range first.Claims {
		assert.Equal(t, first.Claims[i].Statement, second.Claims[i].Statement)
		assert.Equal(t, first.Claims[i].SupportingEvidenceIDs, second.Claims[i].SupportingEvidenceIDs)
	}
}
