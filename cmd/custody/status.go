package main

import (
	"fmt"
	"strings"
	"time"

	"custody/pkg/types"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// Style definitions
var (
	primaryColor = lipgloss.Color("#8BE9FD") // Cyan
	accentColor  = lipgloss.Color("#50FA7B") // Green
	warningColor = lipgloss.Color("#FFB86C") // Orange
	dangerColor  = lipgloss.Color("#FF5555") // Red
	mutedColor   = lipgloss.Color("#6272A4") // Comment
	fgColor      = lipgloss.Color("#F8F8F2") // Foreground

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(1, 2)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(24)

	valueStyle = lipgloss.NewStyle().
			Foreground(fgColor).
			Bold(true)

	goodStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(warningColor).
			Bold(true)

	badStyle = lipgloss.NewStyle().
			Foreground(dangerColor).
			Bold(true)
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show verification metrics from a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			var m types.VerificationMetrics
			if err := getJSON("/v1/metrics", &m); err != nil {
				return fmt.Errorf("failed to fetch metrics: %w", err)
			}

			fmt.Println(renderMetricsPanel(m))
			return nil
		},
	}
}

func renderMetricsPanel(m types.VerificationMetrics) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Custody Verification Status"))
	b.WriteString("\n")

	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}

	row("Challenges issued", valueStyle.Render(fmt.Sprintf("%d", m.TotalChallenges)))
	row("Proofs verified", goodStyle.Render(fmt.Sprintf("%d", m.SuccessfulProofs)))
	row("Proofs failed", badStyle.Render(fmt.Sprintf("%d", m.FailedProofs)))
	row("Expired challenges", warnStyle.Render(fmt.Sprintf("%d", m.ExpiredChallenges)))
	row("Rate limited", warnStyle.Render(fmt.Sprintf("%d", m.RateLimitedRequests)))
	row("Success rate", renderRate(m.SuccessRate()))
	row("Avg verify latency", valueStyle.Render(fmt.Sprintf("%.2f ms", m.AverageResponseTimeMs)))
	if !m.LastReset.IsZero() {
		row("Counters since", valueStyle.Render(m.LastReset.Format(time.RFC3339)))
	}

	return panelStyle.Render(b.String())
}

func renderRate(rate float64) string {
	text := fmt.Sprintf("%.1f%%", rate*100)
	switch {
	case rate >= 0.95:
		return goodStyle.Render(text)
	case rate >= 0.75:
		return warnStyle.Render(text)
	default:
		return badStyle.Render(text)
	}
}
