// Package providers fetches external market data and shapes it into
// evidence items. Providers never write to the store themselves; the
// Ingestor owns insertion so the reference-date check is applied in one
// place.
package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/verdictlab/verdictgo/internal/evidence"
	"github.com/verdictlab/verdictgo/internal/models"
)

// Provider is one external data source for one evidence kind.
type Provider interface {
	Name() string
	Kind() models.EvidenceKind
	Fetch(ctx context.Context, ticker string, dr models.DateRange) ([]models.EvidenceItem, error)
}

// Ingestor pulls from every registered provider and appends the results
// to the store. A failing provider degrades its own evidence kind; it
// does not abort the run.
type Ingestor struct {
	store     *evidence.Store
	providers []Provider
	log       *zap.Logger
}

func NewIngestor(store *evidence.Store, providers []Provider, log *zap.Logger) *Ingestor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ingestor{store: store, providers: providers, log: log.Named("ingest")}
}

// Ingest fetches evidence for one ticker, bounded by the reference date:
// items dated after refDate are rejected at insertion. Returns the number
// of items stored.
func (in *Ingestor) Ingest(ctx context.Context, ticker string, refDate time.Time, dr models.DateRange) (int, error) {
	stored := 0
	for _, p := range in.providers {
		if err := ctx.Err(); err != nil {
			return stored, err
		}

		items, err := p.Fetch(ctx, ticker, dr)
		if err != nil {
			in.log.Warn("provider fetch failed",
				zap.String("provider", p.Name()),
				zap.String("ticker", ticker),
				zap.Error(err))
			continue
		}

		for _, item := range items {
			if item.Kind == "" {
				item.Kind = p.Kind()
			}
			if _, err := in.store.Put(item, refDate); err != nil {
				in.log.Debug("evidence rejected",
					zap.String("provider", p.Name()),
					zap.String("ticker", ticker),
					zap.Error(err))
				continue
			}
			stored++
		}
	}
	return stored, nil
}

func validateSymbol(symbol string) error {
	symbol = strings.TrimSpace(strings.ToUpper(symbol))
	if symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if len(symbol) > 10 {
		return fmt.Errorf("symbol too long: %s", symbol)
	}
	return nil
}

func normalizeSymbol(symbol string) string {
	return strings.TrimSpace(strings.ToUpper(symbol))
}
