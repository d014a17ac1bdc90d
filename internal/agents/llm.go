package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/verdictlab/verdictgo/internal/evidence"
	"github.com/verdictlab/verdictgo/internal/models"
)

// llmAnalyst drives one prompted model call over a scoped evidence view.
// News, sentiment, and fundamentals analysts are instances of it.
type llmAnalyst struct {
	name       string
	promptName string
	chat       model.BaseChatModel
}

func NewNewsAnalyst(chat model.BaseChatModel) Analyst {
	return &llmAnalyst{name: AnalystNews, promptName: "news_analyst", chat: chat}
}

func NewSentimentAnalyst(chat model.BaseChatModel) Analyst {
	return &llmAnalyst{name: AnalystSentiment, promptName: "sentiment_analyst", chat: chat}
}

func NewFundamentalsAnalyst(chat model.BaseChatModel) Analyst {
	return &llmAnalyst{name: AnalystFundamentals, promptName: "fundamentals_analyst", chat: chat}
}

func (a *llmAnalyst) Name() string { return a.name }

func (a *llmAnalyst) Kinds() []models.EvidenceKind { return AllowedKinds(a.name) }

func (a *llmAnalyst) Produce(ctx context.Context, ticker string, runDate time.Time, view *evidence.View) (*models.ClaimSet, models.AnalystRecommendation, error) {
	rec := models.AnalystRecommendation{Agent: a.name, Action: models.ActionHold}

	tmpl, err := loadPrompt(a.promptName)
	if err != nil {
		return nil, rec, err
	}

	rendered, count := renderEvidence(view)
	if count == 0 {
		set := &models.ClaimSet{
			Agent:    a.name,
			Ticker:   ticker,
			RunDate:  runDate,
			Summary:  fmt.Sprintf("No %s evidence available for %s.", a.name, ticker),
			Degraded: true,
		}
		rec.Degraded = true
		return set, rec, nil
	}

	messages, err := prompt.FromMessages(schema.FString,
		schema.SystemMessage(tmpl),
	).Format(ctx, map[string]any{
		"ticker":   ticker,
		"run_date": runDate.Format("2006-01-02"),
		"evidence": rendered,
	})
	if err != nil {
		return nil, rec, fmt.Errorf("format %s prompt: %w", a.name, err)
	}

	resp, err := a.chat.Generate(ctx, messages)
	if err != nil {
		return nil, rec, fmt.Errorf("%s analyst inference: %w", a.name, err)
	}

	set, rec := ParseAnalystOutput(a.name, ticker, runDate, resp.Content)
	return set, rec, nil
}

// renderEvidence flattens the view into the id-tagged listing the prompts
// cite against.
func renderEvidence(view *evidence.View) (string, int) {
	var b strings.Builder
	count := 0
	for item := range view.All() {
		count++
		fmt.Fprintf(&b, "- id=%s kind=%s as_of=%s source=%s\n  %s\n",
			item.ID, item.Kind, item.AsOfDate.Format("2006-01-02"), item.SourceURI,
			summarizePayload(item))
	}
	return b.String(), count
}

func summarizePayload(item models.EvidenceItem) string {
	switch item.Kind {
	case models.EvidenceNews:
		var n models.NewsItem
		if json.Unmarshal(item.Payload, &n) == nil {
			return fmt.Sprintf("[%s] %s — %s", n.Source, n.Title, truncate(n.Summary, 280))
		}
	case models.EvidenceSocial:
		var p models.SocialPost
		if json.Unmarshal(item.Payload, &p) == nil {
			return fmt.Sprintf("[%s score=%d] %s — %s", p.Platform, p.Score, p.Title, truncate(p.Body, 280))
		}
	case models.EvidenceFundamental:
		var f models.FundamentalRecord
		if json.Unmarshal(item.Payload, &f) == nil {
			parts := make([]string, 0, len(f.Metrics))
			for k, v := range f.Metrics {
				parts = append(parts, fmt.Sprintf("%s=%.4g", k, v))
			}
			sort.Strings(parts)
			return fmt.Sprintf("period=%s reported=%s %s",
				f.Period, f.ReportDate.Format("2006-01-02"), strings.Join(parts, " "))
		}
	case models.EvidencePrice:
		var bar models.PriceBar
		if json.Unmarshal(item.Payload, &bar) == nil {
			return fmt.Sprintf("open=%s high=%s low=%s close=%s volume=%d",
				bar.Open.StringFixed(2), bar.High.StringFixed(2),
				bar.Low.StringFixed(2), bar.Close.StringFixed(2), bar.Volume)
		}
	}
	return truncate(string(item.Payload), 280)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
