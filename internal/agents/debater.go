package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/verdictlab/verdictgo/internal/debate"
	"github.com/verdictlab/verdictgo/internal/models"
)

// LLMDebater argues a debate role through a model call. The engine still
// enforces citation and confidence constraints on whatever comes back, so
// a hallucinating model costs itself credibility instead of poisoning the
// outcome.
type LLMDebater struct {
	chat model.BaseChatModel
}

func NewLLMDebater(chat model.BaseChatModel) *LLMDebater {
	return &LLMDebater{chat: chat}
}

// LLMDebaters assigns one model-backed debater to every role.
func LLMDebaters(chat model.BaseChatModel) map[models.DebateRole]debate.Debater {
	d := NewLLMDebater(chat)
	out := make(map[models.DebateRole]debate.Debater, len(models.DebateRoles))
	for _, role := range models.DebateRoles {
		out[role] = d
	}
	return out
}

type rawPosition struct {
	Recommendation string   `json:"recommendation"`
	Confidence     float64  `json:"confidence"`
	Cites          []string `json:"cites"`
	Argument       string   `json:"argument"`
}

func (d *LLMDebater) Argue(ctx context.Context, role models.DebateRole, pool *debate.ClaimPool, prev []models.DebatePosition, round int) (models.DebatePosition, error) {
	pos := models.DebatePosition{
		Role:           role,
		Recommendation: models.ActionHold,
		Round:          round,
	}

	tmpl, err := loadPrompt("debater")
	if err != nil {
		return pos, err
	}

	messages, err := prompt.FromMessages(schema.FString,
		schema.SystemMessage(tmpl),
	).Format(ctx, map[string]any{
		"role":     string(role),
		"ticker":   pool.Ticker,
		"claims":   renderPool(pool),
		"previous": renderPrevious(prev),
	})
	if err != nil {
		return pos, fmt.Errorf("format debater prompt: %w", err)
	}

	resp, err := d.chat.Generate(ctx, messages)
	if err != nil {
		return pos, fmt.Errorf("%s debater inference: %w", role, err)
	}

	var raw rawPosition
	start := strings.Index(resp.Content, "{")
	end := strings.LastIndex(resp.Content, "}")
	if start < 0 || end <= start || json.Unmarshal([]byte(resp.Content[start:end+1]), &raw) != nil {
		// Unparsable output forfeits the round: hold with no cites,
		// which the engine then halves for lacking evidence.
		pos.Argument = truncate(resp.Content, 400)
		return pos, nil
	}

	pos.Recommendation = parseAction(raw.Recommendation)
	pos.Confidence = clamp01(raw.Confidence)
	pos.Cites = dedupeIDs(raw.Cites)
	pos.Argument = strings.TrimSpace(raw.Argument)
	return pos, nil
}

func renderPool(pool *debate.ClaimPool) string {
	var b strings.Builder
	for _, pc := range pool.Claims() {
		fmt.Fprintf(&b, "- id=%s agent=%s confidence=%.2f%s\n  %s\n",
			pc.Claim.ID, pc.Agent, pc.Claim.Confidence,
			degradedTag(pc.FromDegraded), pc.Claim.Statement)
	}
	if b.Len() == 0 {
		return "(none survived validation)"
	}
	return b.String()
}

func renderPrevious(prev []models.DebatePosition) string {
	if len(prev) == 0 {
		return "(first round)"
	}
	var b strings.Builder
	for _, p := range prev {
		fmt.Fprintf(&b, "- %s: %s (%.2f) citing %s — %s\n",
			p.Role, p.Recommendation, p.Confidence,
			strings.Join(p.Cites, ","), truncate(p.Argument, 200))
	}
	return b.String()
}

func degradedTag(degraded bool) string {
	if degraded {
		return " (from degraded analyst)"
	}
	return ""
}
