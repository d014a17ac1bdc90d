package agents

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/verdictlab/verdictgo/internal/models"
)

// rawAnalystOutput is the JSON shape the analyst prompts ask for.
type rawAnalystOutput struct {
	Summary        string     `json:"summary"`
	Recommendation string     `json:"recommendation"`
	Confidence     float64    `json:"confidence"`
	Claims         []rawClaim `json:"claims"`
}

type rawClaim struct {
	Statement   string   `json:"statement"`
	EvidenceIDs []string `json:"evidence_ids"`
	Confidence  float64  `json:"confidence"`
	ClaimedDate string   `json:"claimed_date"`
}

var (
	fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*\\})\\s*```")

	buyWords  = regexp.MustCompile(`(?i)\b(buy|long|bullish|undervalued|upside|accumulate)\b`)
	sellWords = regexp.MustCompile(`(?i)\b(sell|short|bearish|overvalued|downside|divest)\b`)
)

// ParseAnalystOutput turns raw model text into a claim set and stance. It
// never fails: unparsable output degrades to a single uncited claim
// carrying the whole text, which the validator will then rule on.
func ParseAnalystOutput(agent, ticker string, runDate time.Time, text string) (*models.ClaimSet, models.AnalystRecommendation) {
	set := &models.ClaimSet{
		Agent:   agent,
		Ticker:  ticker,
		RunDate: runDate,
	}
	rec := models.AnalystRecommendation{
		Agent:  agent,
		Action: models.ActionHold,
	}

	raw, ok := decodeJSONBlock(text)
	if !ok {
		set.Summary = strings.TrimSpace(text)
		if set.Summary != "" {
			set.Claims = []models.Claim{{
				ID:         uuid.NewString(),
				Statement:  set.Summary,
				Confidence: 0.2,
			}}
		}
		rec.Action = fallbackAction(text)
		rec.Confidence = 0.2
		return set, rec
	}

	set.Summary = strings.TrimSpace(raw.Summary)
	for _, rc := range raw.Claims {
		statement := strings.TrimSpace(rc.Statement)
		if statement == "" {
			continue
		}
		claim := models.Claim{
			ID:                    uuid.NewString(),
			Statement:             statement,
			SupportingEvidenceIDs: dedupeIDs(rc.EvidenceIDs),
			Confidence:            clamp01(rc.Confidence),
		}
		if rc.ClaimedDate != "" {
			if d, err := time.Parse("2006-01-02", rc.ClaimedDate); err == nil {
				claim.ClaimedDate = &d
			}
		}
		set.Claims = append(set.Claims, claim)
	}

	rec.Action = parseAction(raw.Recommendation)
	rec.Confidence = clamp01(raw.Confidence)
	return set, rec
}

// decodeJSONBlock tries a fenced ```json block first, then the widest
// braced span in the text.
func decodeJSONBlock(text string) (rawAnalystOutput, bool) {
	var out rawAnalystOutput
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		if json.Unmarshal([]byte(m[1]), &out) == nil {
			return out, true
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return out, false
	}
	if json.Unmarshal([]byte(text[start:end+1]), &out) == nil {
		return out, true
	}
	return out, false
}

func parseAction(s string) models.Action {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return models.ActionBuy
	case "sell":
		return models.ActionSell
	default:
		return models.ActionHold
	}
}

// fallbackAction scores directional vocabulary when structured output is
// missing. Ties resolve to hold.
func fallbackAction(text string) models.Action {
	buys := len(buyWords.FindAllString(text, -1))
	sells := len(sellWords.FindAllString(text, -1))
	switch {
	case buys > sells:
		return models.ActionBuy
	case sells > buys:
		return models.ActionSell
	default:
		return models.ActionHold
	}
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
