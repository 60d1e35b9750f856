package widgets

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

var selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))

// List shows one item per line with the Selected item marked. A negative
// Selected marks nothing. When the items do not fit, the window scrolls to
// keep the selection visible.
type List struct {
	Items    []string
	Selected int
}

func (l List) Render(width, height int) string {
	if width <= 0 || height <= 0 || len(l.Items) == 0 {
		return ""
	}
	start := 0
	if l.Selected >= height {
		start = l.Selected - height + 1
	}
	end := min(len(l.Items), start+height)
	rows := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		line := "  " + l.Items[i]
		if i == l.Selected {
			line = selectedStyle.Render("▸ " + l.Items[i])
		}
		rows = append(rows, ansi.Truncate(line, width, "…"))
	}
	return strings.Join(rows, "\n")
}
