package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/verdictlab/verdictgo/internal/models"
)

const googleNewsMaxResults = 20

// GoogleNewsProvider scrapes Google News search results as a keyless
// fallback to the API-backed news sources.
type GoogleNewsProvider struct {
	client *resty.Client
	cache  *fileCache
}

func NewGoogleNewsProvider(cacheDir string, cacheEnabled bool) *GoogleNewsProvider {
	client := resty.New()
	client.SetTimeout(30 * time.Second)
	client.SetHeader("User-Agent", "Mozilla/5.0 (compatible; VerdictGo/1.0)")

	return &GoogleNewsProvider{
		client: client,
		cache:  newFileCache(filepath.Join(cacheDir, "google_news"), 2*time.Hour, cacheEnabled),
	}
}

func (p *GoogleNewsProvider) Name() string              { return "google_news" }
func (p *GoogleNewsProvider) Kind() models.EvidenceKind { return models.EvidenceNews }

func (p *GoogleNewsProvider) Fetch(ctx context.Context, ticker string, dr models.DateRange) ([]models.EvidenceItem, error) {
	if err := validateSymbol(ticker); err != nil {
		return nil, err
	}
	ticker = normalizeSymbol(ticker)

	cacheKey := map[string]any{
		"query": ticker,
		"start": dr.Start.Format("2006-01-02"),
		"end":   dr.End.Format("2006-01-02"),
	}
	var stories []models.NewsItem
	if !p.cache.Lookup("google_news", "search", cacheKey, &stories) {
		searchURL := p.searchURL(ticker+" stock", dr)
		err := withRetry(ctx, func() error {
			resp, err := p.client.R().SetContext(ctx).Get(searchURL)
			if err != nil {
				return fmt.Errorf("google news fetch: %w", err)
			}
			if resp.StatusCode() != 200 {
				return fmt.Errorf("google news: status %d", resp.StatusCode())
			}
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.String()))
			if err != nil {
				return fmt.Errorf("google news parse: %w", err)
			}
			stories = p.parseResults(doc)
			return nil
		})
		if err != nil {
			return nil, err
		}
		p.cache.Store("google_news", "search", cacheKey, stories)
	}

	if len(stories) > googleNewsMaxResults {
		stories = stories[:googleNewsMaxResults]
	}

	items := make([]models.EvidenceItem, 0, len(stories))
	for _, story := range stories {
		payload, err := json.Marshal(story)
		if err != nil {
			continue
		}
		items = append(items, models.EvidenceItem{
			Ticker:    ticker,
			Kind:      models.EvidenceNews,
			Payload:   payload,
			SourceURI: story.URL,
			AsOfDate:  story.PublishedAt,
		})
	}
	return items, nil
}

func (p *GoogleNewsProvider) searchURL(query string, dr models.DateRange) string {
	q := query
	if !dr.Start.IsZero() && !dr.End.IsZero() {
		q += fmt.Sprintf(" after:%s before:%s",
			dr.Start.Format("2006-01-02"), dr.End.Format("2006-01-02"))
	}
	return fmt.Sprintf("https://news.google.com/search?q=%s&hl=en&gl=US&ceid=US:en",
		url.QueryEscape(q))
}

func (p *GoogleNewsProvider) parseResults(doc *goquery.Document) []models.NewsItem {
	var stories []models.NewsItem

	doc.Find("article").Each(func(i int, s *goquery.Selection) {
		title := strings.TrimSpace(s.Find("h3").Text())
		if title == "" {
			title = strings.TrimSpace(s.Find("h4").Text())
		}
		if title == "" {
			return
		}

		href, ok := s.Find("a").First().Attr("href")
		if !ok {
			return
		}

		source := strings.TrimSpace(s.Find("div[data-n-tid]").Text())
		if source == "" {
			source = "Google News"
		}

		stories = append(stories, models.NewsItem{
			Title:       title,
			Summary:     strings.TrimSpace(s.Find("span").Last().Text()),
			URL:         cleanRedirectURL(href),
			Source:      source,
			PublishedAt: parseRelativeTime(strings.TrimSpace(s.Find("time").Text())),
		})
	})
	return stories
}

// cleanRedirectURL unwraps Google's redirect layer when present.
func cleanRedirectURL(href string) string {
	if idx := strings.Index(href, "url="); idx >= 0 {
		if decoded, err := url.QueryUnescape(href[idx+4:]); err == nil {
			if amp := strings.Index(decoded, "&"); amp >= 0 {
				decoded = decoded[:amp]
			}
			return decoded
		}
	}
	if strings.HasPrefix(href, "./") {
		return "https://news.google.com/" + href[2:]
	}
	return href
}

var relativeTimeRE = regexp.MustCompile(`^(\d+)\s+(minute|hour|day|week|month)s?\s+ago$`)

// parseRelativeTime converts Google's "3 hours ago" style stamps into an
// absolute time, defaulting to now when the format is unrecognized.
func parseRelativeTime(text string) time.Time {
	now := time.Now().UTC()
	m := relativeTimeRE.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return now
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return now
	}
	switch m[2] {
	case "minute":
		return now.Add(-time.Duration(n) * time.Minute)
	case "hour":
		return now.Add(-time.Duration(n) * time.Hour)
	case "day":
		return now.AddDate(0, 0, -n)
	case "week":
		return now.AddDate(0, 0, -7*n)
	case "month":
		return now.AddDate(0, -n, 0)
	}
	return now
}
