package evidence

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdictlab/verdictgo/internal/models"
)

var refDate = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

func newsItem(ticker string, asOf time.Time) models.EvidenceItem {
	payload, _ := json.Marshal(models.NewsItem{Title: "headline", PublishedAt: asOf})
	return models.EvidenceItem{
		Ticker:    ticker,
		Kind:      models.EvidenceNews,
		Payload:   payload,
		SourceURI: "https://example.com/a",
		AsOfDate:  asOf,
	}
}

func TestPutRejectsFutureDated(t *testing.T) {
	s := NewStore()

	_, err := s.Put(newsItem("AAPL", refDate.AddDate(0, 0, 1)), refDate)
	require.ErrorIs(t, err, models.ErrInvalidEvidence)

	// A rejected item must never become queryable.
	for range s.Query("AAPL", models.EvidenceNews, models.DateRange{}) {
		t.Fatal("rejected item surfaced in query")
	}
	assert.Zero(t, s.Len())
}

func TestPutRejectsMalformed(t *testing.T) {
	s := NewStore()

	item := newsItem("", refDate)
	_, err := s.Put(item, refDate)
	require.ErrorIs(t, err, models.ErrInvalidEvidence)

	item = newsItem("AAPL", refDate)
	item.Kind = "rumor"
	_, err = s.Put(item, refDate)
	require.ErrorIs(t, err, models.ErrInvalidEvidence)

	item = newsItem("AAPL", refDate)
	item.AsOfDate = time.Time{}
	_, err = s.Put(item, refDate)
	require.ErrorIs(t, err, models.ErrInvalidEvidence)
}

func TestQueryOrderedByRetrievedAt(t *testing.T) {
	s := NewStore()

	var ids []string
	for i := 0; i < 5; i++ {
		id, err := s.Put(newsItem("AAPL", refDate.AddDate(0, 0, -i)), refDate)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	var got []string
	for item := range s.Query("AAPL", models.EvidenceNews, models.DateRange{}) {
		got = append(got, item.ID)
	}
	assert.Equal(t, ids, got, "query must preserve append order")

	// Restartable: a second iteration yields the same sequence.
	var again []string
	for item := range s.Query("AAPL", models.EvidenceNews, models.DateRange{}) {
		again = append(again, item.ID)
	}
	assert.Equal(t, got, again)
}

func TestQueryFiltersKindAndRange(t *testing.T) {
	s := NewStore()

	old := newsItem("AAPL", refDate.AddDate(0, -2, 0))
	recent := newsItem("AAPL", refDate)
	price := newsItem("AAPL", refDate)
	price.Kind = models.EvidencePrice

	_, err := s.Put(old, refDate)
	require.NoError(t, err)
	recentID, err := s.Put(recent, refDate)
	require.NoError(t, err)
	_, err = s.Put(price, refDate)
	require.NoError(t, err)

	dr := models.DateRange{Start: refDate.AddDate(0, -1, 0), End: refDate}
	var got []string
	for item := range s.Query("AAPL", models.EvidenceNews, dr) {
		got = append(got, item.ID)
	}
	assert.Equal(t, []string{recentID}, got)
}

func TestSupersedesRequiresExistingItem(t *testing.T) {
	s := NewStore()

	item := newsItem("AAPL", refDate)
	item.Supersedes = "missing"
	_, err := s.Put(item, refDate)
	require.ErrorIs(t, err, models.ErrInvalidEvidence)

	origID, err := s.Put(newsItem("AAPL", refDate), refDate)
	require.NoError(t, err)

	correction := newsItem("AAPL", refDate)
	correction.Supersedes = origID
	corrID, err := s.Put(correction, refDate)
	require.NoError(t, err)

	// Both remain queryable; the original is never deleted.
	var got []string
	for it := range s.Query("AAPL", models.EvidenceNews, models.DateRange{}) {
		got = append(got, it.ID)
	}
	assert.Equal(t, []string{origID, corrID}, got)
}

func TestConcurrentPutsKeepTotalOrder(t *testing.T) {
	s := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Put(newsItem("AAPL", refDate), refDate)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var prev time.Time
	count := 0
	for item := range s.Query("AAPL", models.EvidenceNews, models.DateRange{}) {
		require.True(t, item.RetrievedAt.After(prev), "retrieved_at must be strictly increasing")
		prev = item.RetrievedAt
		count++
	}
	assert.Equal(t, 50, count)
}

func TestViewScopesKinds(t *testing.T) {
	s := NewStore()

	news := newsItem("AAPL", refDate)
	social := newsItem("AAPL", refDate)
	social.Kind = models.EvidenceSocial

	newsID, err := s.Put(news, refDate)
	require.NoError(t, err)
	socialID, err := s.Put(social, refDate)
	require.NoError(t, err)

	v := NewView(s, "AAPL", models.DateRange{}, models.EvidenceNews)

	assert.True(t, v.Allowed(models.EvidenceNews))
	assert.False(t, v.Allowed(models.EvidenceSocial))

	for range v.Items(models.EvidenceSocial) {
		t.Fatal("disallowed kind leaked through view")
	}

	_, ok := v.Resolve(socialID)
	assert.False(t, ok, "resolve must honor the kind allow-list")
	_, ok = v.Resolve(newsID)
	assert.True(t, ok)

	var all []string
	for item := range v.All() {
		all = append(all, item.ID)
	}
	assert.Equal(t, []string{newsID}, all)
}
