package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdictlab/verdictgo/internal/evidence"
	"github.com/verdictlab/verdictgo/internal/models"
)

var refDate = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

type fakeProvider struct {
	name  string
	kind  models.EvidenceKind
	items []models.EvidenceItem
	err   error
}

func (f *fakeProvider) Name() string              { return f.name }
func (f *fakeProvider) Kind() models.EvidenceKind { return f.kind }

func (f *fakeProvider) Fetch(ctx context.Context, ticker string, dr models.DateRange) ([]models.EvidenceItem, error) {
	return f.items, f.err
}

func newsEvidence(ticker string, asOf time.Time) models.EvidenceItem {
	return models.EvidenceItem{
		Ticker:    ticker,
		Kind:      models.EvidenceNews,
		Payload:   []byte(`{"title":"headline"}`),
		SourceURI: "test://news",
		AsOfDate:  asOf,
	}
}

func TestIngestorStoresFetchedItems(t *testing.T) {
	store := evidence.NewStore()
	in := NewIngestor(store, []Provider{
		&fakeProvider{name: "a", kind: models.EvidenceNews, items: []models.EvidenceItem{
			newsEvidence("AAPL", refDate.AddDate(0, 0, -1)),
			newsEvidence("AAPL", refDate.AddDate(0, 0, -2)),
		}},
	}, nil)

	n, err := in.Ingest(context.Background(), "AAPL", refDate, models.DateRange{End: refDate})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, store.Len())
}

func TestIngestorSkipsFutureDatedItems(t *testing.T) {
	store := evidence.NewStore()
	in := NewIngestor(store, []Provider{
		&fakeProvider{name: "a", kind: models.EvidenceNews, items: []models.EvidenceItem{
			newsEvidence("AAPL", refDate.AddDate(0, 0, -1)),
			newsEvidence("AAPL", refDate.AddDate(0, 0, 2)), // beyond the reference date
		}},
	}, nil)

	n, err := in.Ingest(context.Background(), "AAPL", refDate, models.DateRange{End: refDate})
	require.NoError(t, err)
	assert.Equal(t, 1, n, "future-dated item is rejected at insertion")
	assert.Equal(t, 1, store.Len())
}

func TestIngestorSurvivesFailingProvider(t *testing.T) {
	store := evidence.NewStore()
	in := NewIngestor(store, []Provider{
		&fakeProvider{name: "down", kind: models.EvidencePrice, err: errors.New("503")},
		&fakeProvider{name: "up", kind: models.EvidenceNews, items: []models.EvidenceItem{
			newsEvidence("AAPL", refDate),
		}},
	}, nil)

	n, err := in.Ingest(context.Background(), "AAPL", refDate, models.DateRange{End: refDate})
	require.NoError(t, err, "a failing provider degrades, it does not abort")
	assert.Equal(t, 1, n)
}

func TestIngestorHonorsCancellation(t *testing.T) {
	store := evidence.NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in := NewIngestor(store, []Provider{
		&fakeProvider{name: "a", kind: models.EvidenceNews},
	}, nil)

	_, err := in.Ingest(ctx, "AAPL", refDate, models.DateRange{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileCacheRoundTrip(t *testing.T) {
	cache := newFileCache(t.TempDir(), time.Hour, true)

	in := []string{"a", "b"}
	require.NoError(t, cache.Store("src", "method", "key", in))

	var out []string
	require.True(t, cache.Lookup("src", "method", "key", &out))
	assert.Equal(t, in, out)

	assert.False(t, cache.Lookup("src", "method", "otherkey", &out))
}

func TestFileCacheDisabled(t *testing.T) {
	cache := newFileCache(t.TempDir(), time.Hour, false)
	require.NoError(t, cache.Store("src", "m", "k", "v"))

	var out string
	assert.False(t, cache.Lookup("src", "m", "k", &out))
}

func TestParseRelativeTime(t *testing.T) {
	now := time.Now().UTC()

	got := parseRelativeTime("3 hours ago")
	assert.WithinDuration(t, now.Add(-3*time.Hour), got, time.Minute)

	got = parseRelativeTime("2 days ago")
	assert.WithinDuration(t, now.AddDate(0, 0, -2), got, time.Minute)

	got = parseRelativeTime("whenever")
	assert.WithinDuration(t, now, got, time.Minute)
}

func TestCandleBarDereferencesPrices(t *testing.T) {
	dec := func(s string) *decimal.Decimal {
		d := decimal.RequireFromString(s)
		return &d
	}
	date := refDate.AddDate(0, 0, -1)

	bar, ok := candleBar("700.HK", date, dec("320.5"), dec("325"), dec("318.2"), dec("324"), 1_200_000)
	require.True(t, ok)
	assert.Equal(t, "320.5", bar.Open.String())
	assert.Equal(t, "325", bar.High.String())
	assert.Equal(t, "318.2", bar.Low.String())
	assert.Equal(t, "324", bar.Close.String())
	assert.Equal(t, "324", bar.AdjClose.String())
	assert.Equal(t, int64(1_200_000), bar.Volume)
}

func TestCandleBarDropsStickWithMissingLeg(t *testing.T) {
	d := decimal.NewFromInt(100)

	_, ok := candleBar("700.HK", refDate, nil, &d, &d, &d, 10)
	assert.False(t, ok)

	_, ok = candleBar("700.HK", refDate, &d, &d, &d, nil, 10)
	assert.False(t, ok)
}

func TestCleanRedirectURL(t *testing.T) {
	assert.Equal(t, "https://example.com/story",
		cleanRedirectURL("https://news.google.com/rss?url=https%3A%2F%2Fexample.com%2Fstory&other=1"))
	assert.Equal(t, "https://news.google.com/articles/abc",
		cleanRedirectURL("./articles/abc"))
}
