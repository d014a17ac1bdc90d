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

const redditSearchLimit = 25

// RedditProvider supplies retail discussion from Reddit's public JSON
// search endpoint, no OAuth required.
type RedditProvider struct {
	client    *resty.Client
	cache     *fileCache
	userAgent string
}

func NewRedditProvider(userAgent, cacheDir string, cacheEnabled bool) *RedditProvider {
	if userAgent == "" {
		userAgent = "VerdictGo/1.0"
	}
	client := resty.New()
	client.SetTimeout(30 * time.Second)
	client.SetHeader("User-Agent", userAgent)

	return &RedditProvider{
		client:    client,
		cache:     newFileCache(filepath.Join(cacheDir, "reddit"), time.Hour, cacheEnabled),
		userAgent: userAgent,
	}
}

func (p *RedditProvider) Name() string              { return "reddit" }
func (p *RedditProvider) Kind() models.EvidenceKind { return models.EvidenceSocial }

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Selftext   string  `json:"selftext"`
	Permalink  string  `json:"permalink"`
	Subreddit  string  `json:"subreddit"`
	Author     string  `json:"author"`
	Score      int     `json:"score"`
	CreatedUTC float64 `json:"created_utc"`
	Stickied   bool    `json:"stickied"`
}

func (p *RedditProvider) Fetch(ctx context.Context, ticker string, dr models.DateRange) ([]models.EvidenceItem, error) {
	if err := validateSymbol(ticker); err != nil {
		return nil, err
	}
	ticker = normalizeSymbol(ticker)

	cacheKey := map[string]any{"symbol": ticker}
	var posts []redditPost
	if !p.cache.Lookup("reddit", "mentions", cacheKey, &posts) {
		searchURL := fmt.Sprintf(
			"https://www.reddit.com/search.json?q=%s&sort=top&t=week&limit=%d",
			ticker, redditSearchLimit)

		err := withRetry(ctx, func() error {
			resp, err := p.client.R().SetContext(ctx).Get(searchURL)
			if err != nil {
				return fmt.Errorf("reddit search %s: %w", ticker, err)
			}
			if resp.StatusCode() != 200 {
				return fmt.Errorf("reddit search %s: status %d", ticker, resp.StatusCode())
			}
			var listing redditListing
			if err := json.Unmarshal(resp.Body(), &listing); err != nil {
				return fmt.Errorf("reddit parse: %w", err)
			}
			posts = posts[:0]
			for _, child := range listing.Data.Children {
				if child.Data.Stickied {
					continue
				}
				posts = append(posts, child.Data)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		p.cache.Store("reddit", "mentions", cacheKey, posts)
	}

	items := make([]models.EvidenceItem, 0, len(posts))
	for _, post := range posts {
		created := time.Unix(int64(post.CreatedUTC), 0).UTC()
		if !dr.Contains(created) {
			continue
		}
		payload, err := json.Marshal(models.SocialPost{
			Title:     post.Title,
			Body:      post.Selftext,
			URL:       "https://www.reddit.com" + post.Permalink,
			Platform:  "reddit/r/" + post.Subreddit,
			Author:    post.Author,
			Score:     post.Score,
			CreatedAt: created,
		})
		if err != nil {
			continue
		}
		items = append(items, models.EvidenceItem{
			Ticker:    ticker,
			Kind:      models.EvidenceSocial,
			Payload:   payload,
			SourceURI: "https://www.reddit.com" + post.Permalink,
			AsOfDate:  created,
		})
	}
	return items, nil
}
