package widgets

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

var (
	borderIdle    = lipgloss.Color("#6c7086")
	borderFocused = lipgloss.Color("#a6e3a1")
	borderFailed  = lipgloss.Color("#f38ba8")
	titleColor    = lipgloss.Color("#cdd6f4")
)

// Panel frames a body widget with a rounded border and the title set into
// the top edge. A failed panel draws a red border.
type Panel struct {
	Title   string
	Body    Widget
	Focused bool
	Failed  bool
}

func (p Panel) Render(width, height int) string {
	if width < 4 || height < 3 {
		return Text(p.Title).Render(width, height)
	}
	border := borderIdle
	prefix := ""
	switch {
	case p.Failed:
		border, prefix = borderFailed, "! "
	case p.Focused:
		border, prefix = borderFocused, "● "
	}
	edge := lipgloss.NewStyle().Foreground(border)
	title := lipgloss.NewStyle().Foreground(titleColor).Bold(true)

	inner := width - 2
	label := " " + prefix + p.Title + " "
	if ansi.StringWidth(label) > inner-1 {
		label = ansi.Truncate(label, max(0, inner-1), "…")
	}
	rest := max(0, inner-1-ansi.StringWidth(label))
	top := edge.Render("╭─") + title.Render(label) + edge.Render(strings.Repeat("─", rest)+"╮")

	body := ""
	if p.Body != nil {
		body = p.Body.Render(inner-2, height-2)
	}
	rows := make([]string, 0, height)
	rows = append(rows, top)
	side := edge.Render("│")
	for _, line := range clipLines(body, height-2) {
		rows = append(rows, side+" "+padRight(line, inner-2)+" "+side)
	}
	rows = append(rows, edge.Render("╰"+strings.Repeat("─", inner)+"╯"))
	return strings.Join(rows, "\n")
}
