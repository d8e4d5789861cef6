package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/ldevineau/pullwatch/internal/model"
)

func renderView(m Model) string {
	var b strings.Builder

	rows := m.visible()

	conn := "disconnected"
	if m.connected {
		conn = "@" + m.user.Login
	}
	header := fmt.Sprintf("pullwatch │ %s │ %d pull requests │ sort: %s",
		conn, len(rows), m.commands.SortPreference())
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n\n")

	if len(rows) == 0 {
		b.WriteString(emptyStyle.Render("  (no matching pull requests)"))
		b.WriteString("\n")
	}
	for i, pr := range rows {
		b.WriteString(renderRow(pr, i == m.selected, m.width))
		b.WriteString("\n")
	}

	b.WriteString(statusStyle.Render(m.status))
	b.WriteString("\n")

	rate := m.rate.RateLimit()
	footer := fmt.Sprintf("rate %d/%d (min %d) │ q:quit r:refresh i:ignore s:sort d:drafts",
		rate.Remaining, rate.Limit, rate.MinRemaining)
	b.WriteString(footerStyle.Render(footer))

	return b.String()
}

func renderRow(pr model.PullRequest, selected bool, width int) string {
	badge := lipgloss.NewStyle().
		Foreground(priorityColor(string(pr.Priority))).
		Render(fmt.Sprintf("%-7s", pr.Priority))

	match := directStyle.Render("direct")
	if pr.Matching == model.MatchTeam {
		match = teamStyle.Render("team  ")
	}

	draft := ""
	if pr.Draft {
		draft = draftStyle.Render(" [draft]")
	}

	title := truncate(pr.Title, titleWidth(width))
	line := fmt.Sprintf("%s#%-5d %s by %s, %s%s",
		pr.Repository.FullName, pr.Number, title, pr.Author.Login, formatAge(pr.CreatedAt), draft)

	style := rowStyle
	prefix := "  "
	if selected {
		style = selectedRowStyle
		prefix = "> "
	}
	return prefix + badge + " " + match + " " + style.Render(line)
}

func titleWidth(width int) int {
	w := width - 50
	if w < 20 {
		w = 20
	}
	return w
}

func truncate(s string, max int) string {
	if runewidth.StringWidth(s) <= max {
		return s
	}
	return runewidth.Truncate(s, max-3, "...")
}

func formatAge(createdAt time.Time) string {
	age := time.Since(createdAt)
	switch {
	case age < time.Hour:
		return fmt.Sprintf("%dm old", int(age.Minutes()))
	case age < 48*time.Hour:
		return fmt.Sprintf("%dh old", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd old", int(age.Hours()/24))
	}
}
