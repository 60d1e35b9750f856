package widgets

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// Popup draws Content in a bordered card centred over Base. Cells of the
// base outside the card stay visible.
type Popup struct {
	Base    Widget
	Title   string
	Content string
}

func (p Popup) Render(width, height int) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	base := ""
	if p.Base != nil {
		base = p.Base.Render(width, height)
	}
	body := p.Content
	if p.Title != "" {
		body = lipgloss.NewStyle().Bold(true).Render(p.Title) + "\n\n" + body
	}
	card := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(1, 2).Render(body)
	top := lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, card)
	return overlay(base, top, width, height)
}

// overlay replaces, on each line, the non-blank span of top over base.
func overlay(base, top string, width, height int) string {
	baseLines := clipLines(base, height)
	topLines := clipLines(top, height)
	out := make([]string, height)
	for i := range height {
		b := padRight(baseLines[i], width)
		t := padRight(topLines[i], width)
		start, end, ok := span(t, width)
		if !ok {
			out[i] = b
			continue
		}
		left := ansi.Truncate(b, start, "")
		mid := ansi.Truncate(dropColumns(t, start), end-start, "")
		out[i] = padRight(left+mid+dropColumns(b, end), width)
	}
	return strings.Join(out, "\n")
}

func span(line string, width int) (start, end int, ok bool) {
	plain := ansi.Strip(ansi.Truncate(line, width, ""))
	trimmed := strings.TrimRight(plain, " ")
	if trimmed == "" {
		return 0, 0, false
	}
	for start < len(trimmed) && trimmed[start] == ' ' {
		start++
	}
	return start, ansi.StringWidth(trimmed), true
}

func dropColumns(s string, cols int) string {
	if cols <= 0 {
		return s
	}
	return strings.TrimPrefix(s, ansi.Truncate(s, cols, ""))
}
