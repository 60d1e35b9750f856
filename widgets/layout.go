package widgets

import (
	"math"
	"strings"
)

// VStack stacks widgets top to bottom. Ratios, when given one per widget,
// weight the height split.
type VStack struct {
	Widgets []Widget
	Ratios  []float64
	Spacing int
}

func (v VStack) Render(width, height int) string {
	if len(v.Widgets) == 0 || width <= 0 || height <= 0 {
		return ""
	}
	gaps := v.Spacing * (len(v.Widgets) - 1)
	heights := split(max(len(v.Widgets), height-gaps), len(v.Widgets), v.Ratios)
	out := make([]string, 0, height)
	for i, w := range v.Widgets {
		out = append(out, clipLines(w.Render(width, heights[i]), heights[i])...)
		if i < len(v.Widgets)-1 {
			for range v.Spacing {
				out = append(out, "")
			}
		}
	}
	if len(out) > height {
		out = out[:height]
	}
	return strings.Join(out, "\n")
}

// HStack places widgets left to right, padding each column to its width.
type HStack struct {
	Widgets []Widget
	Ratios  []float64
	Gap     int
}

func (h HStack) Render(width, height int) string {
	if len(h.Widgets) == 0 || width <= 0 || height <= 0 {
		return ""
	}
	gaps := h.Gap * (len(h.Widgets) - 1)
	widths := split(max(len(h.Widgets), width-gaps), len(h.Widgets), h.Ratios)
	cols := make([][]string, len(h.Widgets))
	rows := 0
	for i, w := range h.Widgets {
		cols[i] = strings.Split(w.Render(widths[i], height), "\n")
		rows = max(rows, len(cols[i]))
	}
	rows = min(rows, height)
	sep := strings.Repeat(" ", h.Gap)
	out := make([]string, rows)
	for r := range rows {
		parts := make([]string, len(cols))
		for i := range cols {
			line := ""
			if r < len(cols[i]) {
				line = cols[i][r]
			}
			parts[i] = padRight(line, widths[i])
		}
		out[r] = strings.Join(parts, sep)
	}
	return strings.Join(out, "\n")
}

// Grid arranges widgets in rows of Columns cells, each row an HStack.
type Grid struct {
	Widgets []Widget
	Columns int
	Gap     int
}

func (g Grid) Render(width, height int) string {
	if len(g.Widgets) == 0 {
		return ""
	}
	cols := max(1, g.Columns)
	var rows []Widget
	for start := 0; start < len(g.Widgets); start += cols {
		cells := g.Widgets[start:min(start+cols, len(g.Widgets))]
		for len(cells) < cols {
			cells = append(cells[:len(cells):len(cells)], Empty{})
		}
		rows = append(rows, HStack{Widgets: cells, Gap: g.Gap})
	}
	return VStack{Widgets: rows, Spacing: 0}.Render(width, height)
}

// split divides total into n parts, by ratio when len(ratios) == n.
func split(total, n int, ratios []float64) []int {
	out := make([]int, n)
	if n == 0 {
		return out
	}
	if len(ratios) != n {
		for i := range out {
			out[i] = total / n
			if i < total%n {
				out[i]++
			}
		}
		return out
	}
	sum := 0.0
	weights := make([]float64, n)
	for i, r := range ratios {
		weights[i] = r
		if r <= 0 {
			weights[i] = 1
		}
		sum += weights[i]
	}
	used := 0
	for i, w := range weights {
		out[i] = int(math.Floor(w / sum * float64(total)))
		used += out[i]
	}
	for i := 0; used < total; i = (i + 1) % n {
		out[i]++
		used++
	}
	return out
}
