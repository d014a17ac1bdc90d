package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/verdictlab/verdictgo/internal/models"
)

const finnhubBaseURL = "https://finnhub.io/api/v1"

// FinnhubNewsProvider supplies company news from the Finnhub API.
type FinnhubNewsProvider struct {
	client *resty.Client
	cache  *fileCache
	apiKey string
}

func NewFinnhubNewsProvider(apiKey, cacheDir string, cacheEnabled bool) *FinnhubNewsProvider {
	client := resty.New()
	client.SetBaseURL(finnhubBaseURL)
	client.SetTimeout(30 * time.Second)

	return &FinnhubNewsProvider{
		client: client,
		cache:  newFileCache(filepath.Join(cacheDir, "finnhub"), 6*time.Hour, cacheEnabled),
		apiKey: apiKey,
	}
}

func (p *FinnhubNewsProvider) Name() string              { return "finnhub_news" }
func (p *FinnhubNewsProvider) Kind() models.EvidenceKind { return models.EvidenceNews }

type finnhubNews struct {
	Category string `json:"category"`
	DateTime int64  `json:"datetime"`
	Headline string `json:"headline"`
	Source   string `json:"source"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
}

func (p *FinnhubNewsProvider) Fetch(ctx context.Context, ticker string, dr models.DateRange) ([]models.EvidenceItem, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("finnhub API key not configured")
	}
	if err := validateSymbol(ticker); err != nil {
		return nil, err
	}
	ticker = normalizeSymbol(ticker)

	from, to := dr.Start, dr.End
	if to.IsZero() {
		to = time.Now()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -7)
	}

	cacheKey := map[string]any{
		"symbol": ticker,
		"from":   from.Format("2006-01-02"),
		"to":     to.Format("2006-01-02"),
	}
	var articles []finnhubNews
	if !p.cache.Lookup("finnhub", "company_news", cacheKey, &articles) {
		err := withRetry(ctx, func() error {
			resp, err := p.client.R().
				SetContext(ctx).
				SetQueryParams(map[string]string{
					"symbol": ticker,
					"from":   from.Format("2006-01-02"),
					"to":     to.Format("2006-01-02"),
					"token":  p.apiKey,
				}).
				Get("/company-news")
			if err != nil {
				return fmt.Errorf("finnhub news %s: %w", ticker, err)
			}
			if resp.StatusCode() != 200 {
				return fmt.Errorf("finnhub news %s: status %d", ticker, resp.StatusCode())
			}
			return json.Unmarshal(resp.Body(), &articles)
		})
		if err != nil {
			return nil, err
		}
		p.cache.Store("finnhub", "company_news", cacheKey, articles)
	}

	items := make([]models.EvidenceItem, 0, len(articles))
	for _, a := range articles {
		published := time.Unix(a.DateTime, 0).UTC()
		payload, err := json.Marshal(models.NewsItem{
			Title:       a.Headline,
			Summary:     a.Summary,
			URL:         a.URL,
			Source:      a.Source,
			PublishedAt: published,
		})
		if err != nil {
			continue
		}
		items = append(items, models.EvidenceItem{
			Ticker:    ticker,
			Kind:      models.EvidenceNews,
			Payload:   payload,
			SourceURI: a.URL,
			AsOfDate:  published,
		})
	}
	return items, nil
}

// FinnhubFundamentalsProvider supplies reported metrics from Finnhub's
// basic financials endpoint.
type FinnhubFundamentalsProvider struct {
	client *resty.Client
	cache  *fileCache
	apiKey string
}

func NewFinnhubFundamentalsProvider(apiKey, cacheDir string, cacheEnabled bool) *FinnhubFundamentalsProvider {
	client := resty.New()
	client.SetBaseURL(finnhubBaseURL)
	client.SetTimeout(30 * time.Second)

	return &FinnhubFundamentalsProvider{
		client: client,
		cache:  newFileCache(filepath.Join(cacheDir, "finnhub"), 24*time.Hour, cacheEnabled),
		apiKey: apiKey,
	}
}

func (p *FinnhubFundamentalsProvider) Name() string { return "finnhub_fundamentals" }

func (p *FinnhubFundamentalsProvider) Kind() models.EvidenceKind {
	return models.EvidenceFundamental
}

func (p *FinnhubFundamentalsProvider) Fetch(ctx context.Context, ticker string, dr models.DateRange) ([]models.EvidenceItem, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("finnhub API key not configured")
	}
	if err := validateSymbol(ticker); err != nil {
		return nil, err
	}
	ticker = normalizeSymbol(ticker)

	var body struct {
		Metric map[string]any `json:"metric"`
	}
	cacheKey := map[string]any{"symbol": ticker}
	if !p.cache.Lookup("finnhub", "basic_financials", cacheKey, &body) {
		err := withRetry(ctx, func() error {
			resp, err := p.client.R().
				SetContext(ctx).
				SetQueryParams(map[string]string{
					"symbol": ticker,
					"metric": "all",
					"token":  p.apiKey,
				}).
				Get("/stock/metric")
			if err != nil {
				return fmt.Errorf("finnhub metrics %s: %w", ticker, err)
			}
			if resp.StatusCode() != 200 {
				return fmt.Errorf("finnhub metrics %s: status %d", ticker, resp.StatusCode())
			}
			return json.Unmarshal(resp.Body(), &body)
		})
		if err != nil {
			return nil, err
		}
		p.cache.Store("finnhub", "basic_financials", cacheKey, body)
	}

	metrics := make(map[string]float64, len(body.Metric))
	for k, v := range body.Metric {
		if f, ok := v.(float64); ok {
			metrics[k] = f
		}
	}
	if len(metrics) == 0 {
		return nil, nil
	}

	asOf := dr.End
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	payload, err := json.Marshal(models.FundamentalRecord{
		Symbol:     ticker,
		Period:     "ttm",
		ReportDate: asOf,
		Metrics:    metrics,
	})
	if err != nil {
		return nil, err
	}
	return []models.EvidenceItem{{
		Ticker:    ticker,
		Kind:      models.EvidenceFundamental,
		Payload:   payload,
		SourceURI: fmt.Sprintf("finnhub://stock/metric/%s", ticker),
		AsOfDate:  asOf,
	}}, nil
}
