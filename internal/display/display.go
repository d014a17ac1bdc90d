// Package display renders run results for the terminal.
package display

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/verdictlab/verdictgo/internal/models"
	"github.com/verdictlab/verdictgo/internal/orchestrate"
	"github.com/verdictlab/verdictgo/internal/storage"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(1, 2).
			Width(74)

	buyStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#10B981"))

	sellStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#EF4444"))

	holdStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#F59E0B"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F59E0B"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))
)

func actionStyle(a models.Action) lipgloss.Style {
	switch a {
	case models.ActionBuy:
		return buyStyle
	case models.ActionSell:
		return sellStyle
	default:
		return holdStyle
	}
}

// RenderResult formats one finished run.
func RenderResult(r *orchestrate.RunResult) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("%s — %s (%s)",
		r.Ticker, r.RunDate.Format("2006-01-02"), r.Mode)))
	b.WriteString("\n")

	if r.Decision == nil {
		b.WriteString(boxStyle.Render(fmt.Sprintf("run %s finished in state %s with no decision", r.RunID, r.State)))
		b.WriteString("\n")
		return b.String()
	}

	d := r.Decision
	var lines []string
	lines = append(lines, fmt.Sprintf("Action:      %s",
		actionStyle(d.Action).Render(strings.ToUpper(string(d.Action)))))
	lines = append(lines, fmt.Sprintf("Confidence:  %.2f", d.Confidence))
	if d.StopLoss > 0 && d.Target > 0 {
		lines = append(lines, fmt.Sprintf("Exit levels: stop %.2f / target %.2f", d.StopLoss, d.Target))
	}
	if d.DivergenceFlag {
		lines = append(lines, warnStyle.Render("Divergence:  roles did not reach unanimity"))
	}
	if d.GateReason != "" {
		lines = append(lines, warnStyle.Render("Risk gate:   "+d.GateReason))
	}
	if len(d.RationaleRefs) > 0 {
		lines = append(lines, fmt.Sprintf("Rationale:   %d supported claim(s)", len(d.RationaleRefs)))
	}
	if r.Reused {
		lines = append(lines, dimStyle.Render("Served from an earlier run ("+r.RunID+")"))
	}
	if r.Receipt != nil {
		lines = append(lines, fmt.Sprintf("Execution:   %s qty=%d @ %.2f",
			r.Receipt.Status, r.Receipt.Quantity, r.Receipt.FillPrice))
	}

	b.WriteString(boxStyle.Render(strings.Join(lines, "\n")))
	b.WriteString("\n")
	return b.String()
}

// RenderReplay formats a reconstructed audit trail.
func RenderReplay(replay *storage.RunReplay) string {
	var b strings.Builder

	run := replay.Run
	b.WriteString(titleStyle.Render(fmt.Sprintf("Replay %s — %s %s (%s)",
		run.RunID, run.Ticker, run.RunDate.Format("2006-01-02"), run.State)))
	b.WriteString("\n")

	for _, set := range replay.ClaimSets {
		var lines []string
		header := fmt.Sprintf("%s analyst — %d claim(s)", set.Agent, len(set.Claims))
		if set.Degraded {
			header += warnStyle.Render(" [degraded]")
		}
		lines = append(lines, header)
		statuses := make(map[string]models.VerdictStatus)
		for _, v := range replay.Verdicts[set.Agent] {
			statuses[v.ClaimID] = v.Status
		}
		for _, claim := range set.Claims {
			lines = append(lines, fmt.Sprintf("  [%-12s] %s",
				statuses[claim.ID], truncate(claim.Statement, 56)))
		}
		b.WriteString(boxStyle.Render(strings.Join(lines, "\n")))
		b.WriteString("\n")
	}

	if len(replay.Positions) > 0 {
		var lines []string
		lines = append(lines, "Debate positions")
		for _, pos := range replay.Positions {
			lines = append(lines, fmt.Sprintf("  round %d %-11s %s (%.2f) citing %d claim(s)",
				pos.Round, pos.Role,
				actionStyle(pos.Recommendation).Render(string(pos.Recommendation)),
				pos.Confidence, len(pos.Cites)))
		}
		b.WriteString(boxStyle.Render(strings.Join(lines, "\n")))
		b.WriteString("\n")
	}

	if replay.Decision != nil {
		d := replay.Decision
		line := fmt.Sprintf("Decision: %s (%.2f)",
			actionStyle(d.Action).Render(strings.ToUpper(string(d.Action))), d.Confidence)
		if d.DivergenceFlag {
			line += warnStyle.Render("  divergence flagged")
		}
		b.WriteString(boxStyle.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
