package widgets

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// Point is one labelled value.
type Point struct {
	Label string
	Value float64
}

// BarChart draws one horizontal bar per point, scaled to the largest
// absolute value.
type BarChart struct {
	Data []Point
}

func (c BarChart) Render(width, height int) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	if len(c.Data) == 0 {
		return Text("(no data)").Render(width, height)
	}
	labelW, valueW := 0, 0
	peak := 0.0
	for _, p := range c.Data {
		labelW = max(labelW, ansi.StringWidth(p.Label))
		valueW = max(valueW, len(FormatNumber(p.Value)))
		peak = math.Max(peak, math.Abs(p.Value))
	}
	labelW = min(labelW, max(4, width/3))
	if peak == 0 {
		peak = 1
	}
	barW := max(1, width-labelW-valueW-2)

	lines := make([]string, 0, min(height, len(c.Data)))
	for _, p := range c.Data {
		if len(lines) == height {
			break
		}
		n := int(math.Round(math.Abs(p.Value) / peak * float64(barW)))
		bar := strings.Repeat("█", n) + strings.Repeat(" ", barW-n)
		lines = append(lines, fmt.Sprintf("%s %s %*s", padRight(p.Label, labelW), bar, valueW, FormatNumber(p.Value)))
	}
	return strings.Join(lines, "\n")
}

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// Sparkline draws a series as a single line of block glyphs, resampled to
// the available width, with the min and max underneath.
type Sparkline struct {
	Values []float64
}

func (s Sparkline) Render(width, height int) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	if len(s.Values) == 0 {
		return Text("(no data)").Render(width, height)
	}
	lo, hi := s.Values[0], s.Values[0]
	for _, v := range s.Values {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	span := hi - lo
	n := min(width, len(s.Values))
	var b strings.Builder
	for i := range n {
		v := s.Values[i*len(s.Values)/n]
		idx := 0
		if span > 0 {
			idx = int((v - lo) / span * float64(len(sparkRunes)-1))
		}
		b.WriteRune(sparkRunes[idx])
	}
	out := b.String()
	if height > 1 {
		out += "\n" + ansi.Truncate(fmt.Sprintf("min %s  max %s", FormatNumber(lo), FormatNumber(hi)), width, "")
	}
	return out
}

// FormatNumber renders v compactly: integers without decimals, thousands
// with a k suffix, millions with M.
func FormatNumber(v float64) string {
	a := math.Abs(v)
	switch {
	case math.IsNaN(v):
		return "n/a"
	case a >= 1e6:
		return strconv.FormatFloat(v/1e6, 'f', 1, 64) + "M"
	case a >= 1e4:
		return strconv.FormatFloat(v/1e3, 'f', 1, 64) + "k"
	case v == math.Trunc(v):
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
