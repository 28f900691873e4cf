package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/tkaraden/sealbird/internal/models"
)

var (
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			MarginTop(1)
)

func (a *App) renderCounts() string {
	if a.counts == nil {
		return countStyle.Render(" loading queue counts...")
	}

	order := []models.PubStatus{
		models.PubStatusPending, models.PubStatusPublished, models.PubStatusTxSubmitted,
		models.PubStatusConfirmed, models.PubStatusFinal, models.PubStatusFailed,
	}
	parts := make([]string, 0, len(order)+2)
	for _, st := range order {
		parts = append(parts, fmt.Sprintf("%s %d", formatStatus(st), a.counts[st]))
	}
	parts = append(parts, countStyle.Render(fmt.Sprintf("metadata open %d", a.metaOpen)))
	parts = append(parts, countStyle.Render(fmt.Sprintf("unpin %d", a.unpinDepth)))
	return " " + strings.Join(parts, "  ")
}

func (a *App) renderList(height int) string {
	if a.loading && len(a.items) == 0 {
		return "\n  " + a.spinner.View() + " Loading queue...\n"
	}
	if len(a.items) == 0 {
		return "\n  Queue is empty for this filter.\n"
	}

	var lines []string
	for i, item := range a.items {
		summary := fmt.Sprintf("%s  %-12s  %s", formatStatusPlain(item.Status), item.SourcePostID, truncate(item.ReplyContent, 48))
		meta := countStyle.Render(fmt.Sprintf("  %d conf · %s", item.Confirmations, formatAge(item.UpdatedAt)))

		if i == a.selectedIdx {
			lines = append(lines, selectedStyle.Render("▶ "+summary)+meta)
		} else {
			lines = append(lines, itemStyle.Render(formatStatus(item.Status)+"  "+item.SourcePostID+"  "+truncate(item.ReplyContent, 48))+meta)
		}
	}

	if len(lines) > height {
		start := a.selectedIdx - height/2
		if start < 0 {
			start = 0
		}
		end := start + height
		if end > len(lines) {
			end = len(lines)
			start = max(0, end-height)
		}
		lines = lines[start:end]
	}

	return strings.Join(lines, "\n")
}

func (a *App) renderDetail(item *models.PubQueueItem) string {
	var b strings.Builder

	field := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(fmt.Sprintf("  %s %s\n", labelStyle.Render(label+":"), valueStyle.Render(value)))
	}

	b.WriteString(sectionStyle.Render("  Publication "+item.ID) + "\n\n")
	b.WriteString(fmt.Sprintf("  %s %s\n", labelStyle.Render("Status:"), formatStatus(item.Status)))
	field("Source post", item.SourcePostID)
	field("Reply post", item.ReplyPostID)
	field("Seal post", item.SealPostID)

	b.WriteString(sectionStyle.Render("  Reply") + "\n")
	b.WriteString("  " + valueStyle.Render(item.ReplyContent) + "\n")

	b.WriteString(sectionStyle.Render("  On-chain") + "\n")
	field("Content hash", item.ContentHash)
	field("Tx hash", item.TxHash)
	if item.TxSentHeight > 0 {
		field("Sent at height", fmt.Sprintf("%d", item.TxSentHeight))
	}
	field("Confirmations", fmt.Sprintf("%d", item.Confirmations))
	if item.SubmitRetries > 0 {
		field("Resubmissions", fmt.Sprintf("%d", item.SubmitRetries))
	}

	if item.FailureReason != "" {
		b.WriteString(sectionStyle.Render("  Failure") + "\n")
		b.WriteString("  " + lipgloss.NewStyle().Foreground(errorColor).Render(item.FailureReason) + "\n")
	}

	b.WriteString(sectionStyle.Render("  Timestamps") + "\n")
	field("Created", item.CreatedAt.Local().Format(time.RFC3339))
	field("Updated", item.UpdatedAt.Local().Format(time.RFC3339))

	return b.String()
}

func formatStatus(status models.PubStatus) string {
	switch status {
	case models.PubStatusPending:
		return lipgloss.NewStyle().Foreground(warningColor).Render("○ pending")
	case models.PubStatusPublished:
		return lipgloss.NewStyle().Foreground(secondaryColor).Render("◐ published")
	case models.PubStatusTxSubmitted:
		return lipgloss.NewStyle().Foreground(primaryColor).Render("◑ submitted")
	case models.PubStatusConfirmed:
		return lipgloss.NewStyle().Foreground(cyanColor).Render("◕ confirmed")
	case models.PubStatusFinal:
		return lipgloss.NewStyle().Foreground(successColor).Render("● final")
	case models.PubStatusFailed:
		return lipgloss.NewStyle().Foreground(errorColor).Render("✗ failed")
	default:
		return string(status)
	}
}

func formatStatusPlain(status models.PubStatus) string {
	switch status {
	case models.PubStatusPending:
		return "○"
	case models.PubStatusPublished:
		return "◐"
	case models.PubStatusTxSubmitted:
		return "◑"
	case models.PubStatusConfirmed:
		return "◕"
	case models.PubStatusFinal:
		return "●"
	case models.PubStatusFailed:
		return "✗"
	default:
		return "?"
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}

func formatAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
