package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/quote"
	"github.com/shopspring/decimal"

	"github.com/verdictlab/verdictgo/internal/models"
)

// YahooProvider supplies daily price bars from Yahoo Finance.
type YahooProvider struct {
	cache *fileCache
}

func NewYahooProvider(cacheDir string, cacheEnabled bool) *YahooProvider {
	return &YahooProvider{
		cache: newFileCache(filepath.Join(cacheDir, "yahoo"), 24*time.Hour, cacheEnabled),
	}
}

func (p *YahooProvider) Name() string              { return "yahoo" }
func (p *YahooProvider) Kind() models.EvidenceKind { return models.EvidencePrice }

func (p *YahooProvider) Fetch(ctx context.Context, ticker string, dr models.DateRange) ([]models.EvidenceItem, error) {
	if err := validateSymbol(ticker); err != nil {
		return nil, err
	}
	ticker = normalizeSymbol(ticker)

	start, end := dr.Start, dr.End
	if end.IsZero() {
		end = time.Now()
	}
	if start.IsZero() {
		start = end.AddDate(0, 0, -30)
	}

	cacheKey := map[string]any{
		"symbol": ticker,
		"start":  start.Format("2006-01-02"),
		"end":    end.Format("2006-01-02"),
	}
	var bars []models.PriceBar
	if !p.cache.Lookup("yahoo", "bars", cacheKey, &bars) {
		err := withRetry(ctx, func() error {
			params := &chart.Params{
				Symbol:   ticker,
				Start:    datetime.New(&start),
				End:      datetime.New(&end),
				Interval: datetime.OneDay,
			}
			iter := chart.Get(params)

			bars = bars[:0]
			for iter.Next() {
				b := iter.Bar()
				bars = append(bars, models.PriceBar{
					Symbol:   ticker,
					Date:     time.Unix(int64(b.Timestamp), 0).UTC(),
					Open:     b.Open,
					High:     b.High,
					Low:      b.Low,
					Close:    b.Close,
					AdjClose: b.AdjClose,
					Volume:   int64(b.Volume),
				})
			}
			if err := iter.Err(); err != nil {
				return fmt.Errorf("yahoo chart %s: %w", ticker, err)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		p.cache.Store("yahoo", "bars", cacheKey, bars)
	}

	items := make([]models.EvidenceItem, 0, len(bars))
	for _, bar := range bars {
		payload, err := json.Marshal(bar)
		if err != nil {
			continue
		}
		items = append(items, models.EvidenceItem{
			Ticker:    ticker,
			Kind:      models.EvidencePrice,
			Payload:   payload,
			SourceURI: fmt.Sprintf("yahoo://chart/%s/%s", ticker, bar.Date.Format("2006-01-02")),
			AsOfDate:  bar.Date,
		})
	}
	return items, nil
}

// Quote fetches the live quote as a single bar, used by the paper trader
// for fill pricing rather than as stored evidence.
func (p *YahooProvider) Quote(ctx context.Context, ticker string) (models.PriceBar, error) {
	if err := validateSymbol(ticker); err != nil {
		return models.PriceBar{}, err
	}
	ticker = normalizeSymbol(ticker)

	var bar models.PriceBar
	err := withRetry(ctx, func() error {
		q, err := quote.Get(ticker)
		if err != nil {
			return fmt.Errorf("yahoo quote %s: %w", ticker, err)
		}
		bar = models.PriceBar{
			Symbol:   ticker,
			Date:     time.Now().UTC(),
			Open:     decimal.NewFromFloat(q.RegularMarketOpen),
			High:     decimal.NewFromFloat(q.RegularMarketDayHigh),
			Low:      decimal.NewFromFloat(q.RegularMarketDayLow),
			Close:    decimal.NewFromFloat(q.RegularMarketPrice),
			AdjClose: decimal.NewFromFloat(q.RegularMarketPrice),
			Volume:   int64(q.RegularMarketVolume),
		}
		return nil
	})
	return bar, err
}
