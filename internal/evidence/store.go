// Package evidence implements the append-only ledger every downstream
// pipeline stage reads. Items are immutable once stored; the Put reference
// date check is the single choke point that keeps future-dated data out of
// the system regardless of what any upstream provider returned.
package evidence

import (
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/verdictlab/verdictgo/internal/models"
)

// Store is an in-memory append-only evidence ledger. Writes are serialized
// by a single mutex so retrieved_at ordering is linearizable; reads take a
// shared lock and iterate over snapshots.
type Store struct {
	mu       sync.RWMutex
	items    map[string]models.EvidenceItem
	byTicker map[string][]string // insertion order per ticker
	lastAt   time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		items:    make(map[string]models.EvidenceItem),
		byTicker: make(map[string][]string),
	}
}

// Put appends item and returns its id. The item is rejected with
// ErrInvalidEvidence when its as_of_date is after refDate, when the ticker
// or kind is missing, or when it names an unknown superseded item.
func (s *Store) Put(item models.EvidenceItem, refDate time.Time) (string, error) {
	if item.Ticker == "" {
		return "", fmt.Errorf("%w: missing ticker", models.ErrInvalidEvidence)
	}
	switch item.Kind {
	case models.EvidencePrice, models.EvidenceFundamental, models.EvidenceNews, models.EvidenceSocial:
	default:
		return "", fmt.Errorf("%w: unknown kind %q", models.ErrInvalidEvidence, item.Kind)
	}
	if item.AsOfDate.IsZero() {
		return "", fmt.Errorf("%w: missing as_of_date", models.ErrInvalidEvidence)
	}
	if item.AsOfDate.After(refDate) {
		return "", fmt.Errorf("%w: as_of_date %s is after reference date %s",
			models.ErrInvalidEvidence,
			item.AsOfDate.Format("2006-01-02"), refDate.Format("2006-01-02"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if item.Supersedes != "" {
		if _, ok := s.items[item.Supersedes]; !ok {
			return "", fmt.Errorf("%w: supersedes unknown item %s", models.ErrInvalidEvidence, item.Supersedes)
		}
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	} else if _, ok := s.items[item.ID]; ok {
		return "", fmt.Errorf("%w: duplicate id %s", models.ErrInvalidEvidence, item.ID)
	}

	// Assign retrieved_at under the lock so append order is total.
	now := time.Now()
	if item.RetrievedAt.IsZero() {
		item.RetrievedAt = now
	}
	if !item.RetrievedAt.After(s.lastAt) {
		item.RetrievedAt = s.lastAt.Add(time.Nanosecond)
	}
	s.lastAt = item.RetrievedAt

	s.items[item.ID] = item
	s.byTicker[item.Ticker] = append(s.byTicker[item.Ticker], item.ID)
	return item.ID, nil
}

// Get resolves an item by id.
func (s *Store) Get(id string) (models.EvidenceItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	return item, ok
}

// Query yields items for one ticker and kind whose as_of_date falls in the
// range, ordered by retrieved_at ascending. The sequence is lazy and
// restartable; each iteration works over a fresh snapshot.
func (s *Store) Query(ticker string, kind models.EvidenceKind, dr models.DateRange) iter.Seq[models.EvidenceItem] {
	return func(yield func(models.EvidenceItem) bool) {
		for _, item := range s.snapshot(ticker, kind, dr) {
			if !yield(item) {
				return
			}
		}
	}
}

// QueryAll is Query without the kind filter.
func (s *Store) QueryAll(ticker string, dr models.DateRange) iter.Seq[models.EvidenceItem] {
	return func(yield func(models.EvidenceItem) bool) {
		for _, item := range s.snapshot(ticker, "", dr) {
			if !yield(item) {
				return
			}
		}
	}
}

// Len reports the total number of stored items.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Store) snapshot(ticker string, kind models.EvidenceKind, dr models.DateRange) []models.EvidenceItem {
	s.mu.RLock()
	ids := s.byTicker[ticker]
	out := make([]models.EvidenceItem, 0, len(ids))
	for _, id := range ids {
		item := s.items[id]
		if kind != "" && item.Kind != kind {
			continue
		}
		if !dr.Contains(item.AsOfDate) {
			continue
		}
		out = append(out, item)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].RetrievedAt.Before(out[j].RetrievedAt)
	})
	return out
}
