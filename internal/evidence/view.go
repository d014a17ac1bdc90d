package evidence

import (
	"iter"

	"github.com/verdictlab/verdictgo/internal/models"
)

// View is a capability-scoped, read-only window onto the store. An agent
// holding a view can only see the evidence kinds it was constructed with;
// there is no way to reach other kinds through it. This is how the harness
// enforces the role/tool boundary by construction rather than by prompt
// discipline.
type View struct {
	store  *Store
	ticker string
	dr     models.DateRange
	kinds  map[models.EvidenceKind]bool
}

// NewView scopes the store to one ticker, one as-of range, and an explicit
// allow-list of kinds.
func NewView(store *Store, ticker string, dr models.DateRange, kinds ...models.EvidenceKind) *View {
	allowed := make(map[models.EvidenceKind]bool, len(kinds))
	for _, k := range kinds {
		allowed[k] = true
	}
	return &View{store: store, ticker: ticker, dr: dr, kinds: allowed}
}

// Ticker returns the ticker the view is scoped to.
func (v *View) Ticker() string { return v.ticker }

// Allowed reports whether the view exposes the given kind.
func (v *View) Allowed(kind models.EvidenceKind) bool { return v.kinds[kind] }

// Kinds lists the allowed kinds in canonical order.
func (v *View) Kinds() []models.EvidenceKind {
	order := []models.EvidenceKind{
		models.EvidencePrice,
		models.EvidenceFundamental,
		models.EvidenceNews,
		models.EvidenceSocial,
	}
	out := make([]models.EvidenceKind, 0, len(v.kinds))
	for _, k := range order {
		if v.kinds[k] {
			out = append(out, k)
		}
	}
	return out
}

// Items yields the visible items of one kind. Disallowed kinds yield
// nothing rather than erroring, leaving the caller nothing to leak.
func (v *View) Items(kind models.EvidenceKind) iter.Seq[models.EvidenceItem] {
	if !v.Allowed(kind) {
		return func(yield func(models.EvidenceItem) bool) {}
	}
	return v.store.Query(v.ticker, kind, v.dr)
}

// All yields every visible item across the allowed kinds.
func (v *View) All() iter.Seq[models.EvidenceItem] {
	return func(yield func(models.EvidenceItem) bool) {
		for _, k := range v.Kinds() {
			for item := range v.store.Query(v.ticker, k, v.dr) {
				if !yield(item) {
					return
				}
			}
		}
	}
}

// Resolve looks up a cited item, honoring the kind allow-list.
func (v *View) Resolve(id string) (models.EvidenceItem, bool) {
	item, ok := v.store.Get(id)
	if !ok || !v.Allowed(item.Kind) || item.Ticker != v.ticker {
		return models.EvidenceItem{}, false
	}
	return item, true
}
