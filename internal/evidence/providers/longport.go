package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lpconfig "github.com/longportapp/openapi-go/config"
	"github.com/longportapp/openapi-go/quote"
	"github.com/shopspring/decimal"

	"github.com/verdictlab/verdictgo/internal/models"
)

const longportBarCount = 30

// LongportProvider supplies daily candlesticks through the Longport
// OpenAPI, covering the HK and CN listings Yahoo handles poorly. Symbols
// are expected in Longport form, e.g. "700.HK".
type LongportProvider struct {
	quoteCtx *quote.QuoteContext
}

func NewLongportProvider(appKey, appSecret, accessToken string) (*LongportProvider, error) {
	if appKey == "" || appSecret == "" || accessToken == "" {
		return nil, errors.New("longport API credentials not configured")
	}

	conf, err := lpconfig.New(lpconfig.WithConfigKey(appKey, appSecret, accessToken))
	if err != nil {
		return nil, err
	}
	quoteCtx, err := quote.NewFromCfg(conf)
	if err != nil {
		return nil, err
	}
	return &LongportProvider{quoteCtx: quoteCtx}, nil
}

func (p *LongportProvider) Name() string              { return "longport" }
func (p *LongportProvider) Kind() models.EvidenceKind { return models.EvidencePrice }

func (p *LongportProvider) Fetch(ctx context.Context, ticker string, dr models.DateRange) ([]models.EvidenceItem, error) {
	sticks, err := p.quoteCtx.Candlesticks(ctx, ticker, quote.PeriodDay, longportBarCount, quote.AdjustTypeNo)
	if err != nil {
		return nil, fmt.Errorf("longport candlesticks %s: %w", ticker, err)
	}

	items := make([]models.EvidenceItem, 0, len(sticks))
	for _, stick := range sticks {
		date := time.Unix(stick.Timestamp, 0).UTC()
		if !dr.Contains(date) {
			continue
		}
		bar, ok := candleBar(ticker, date, stick.Open, stick.High, stick.Low, stick.Close, stick.Volume)
		if !ok {
			continue
		}
		payload, err := json.Marshal(bar)
		if err != nil {
			continue
		}
		items = append(items, models.EvidenceItem{
			Ticker:    ticker,
			Kind:      models.EvidencePrice,
			Payload:   payload,
			SourceURI: fmt.Sprintf("longport://candlesticks/%s/%s", ticker, date.Format("2006-01-02")),
			AsOfDate:  date,
		})
	}
	return items, nil
}

// candleBar shapes one candlestick into a price bar. The API reports OHLC
// as nullable decimals; a stick missing any price leg is dropped.
func candleBar(ticker string, date time.Time, open, high, low, closePx *decimal.Decimal, volume int64) (models.PriceBar, bool) {
	if open == nil || high == nil || low == nil || closePx == nil {
		return models.PriceBar{}, false
	}
	return models.PriceBar{
		Symbol:   ticker,
		Date:     date,
		Open:     *open,
		High:     *high,
		Low:      *low,
		Close:    *closePx,
		AdjClose: *closePx,
		Volume:   volume,
	}, true
}
