package widgets

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Stat is one headline number.
type Stat struct {
	Title string
	Value string
	Color string
}

// StatRow lays stats out side by side as cards.
type StatRow struct {
	Stats []Stat
}

func (s StatRow) Render(width, height int) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	if len(s.Stats) == 0 {
		return Text("(no metrics)").Render(width, height)
	}
	cards := make([]Widget, len(s.Stats))
	for i, st := range s.Stats {
		cards[i] = statCard(st)
	}
	return HStack{Widgets: cards, Gap: 1}.Render(width, height)
}

type statCard Stat

func (c statCard) Render(width, height int) string {
	value := lipgloss.NewStyle().Bold(true)
	if c.Color != "" {
		value = value.Foreground(lipgloss.Color(c.Color))
	}
	title := lipgloss.NewStyle().Foreground(lipgloss.Color("#a6adc8"))
	body := lipgloss.PlaceHorizontal(width, lipgloss.Center, value.Render(c.Value)) + "\n" +
		lipgloss.PlaceHorizontal(width, lipgloss.Center, title.Render(c.Title))
	return strings.Join(clipLines(body, height), "\n")
}
