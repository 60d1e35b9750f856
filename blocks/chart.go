package blocks

import (
	"fmt"
	"math"
	"sort"

	"github.com/go-gota/gota/dataframe"
	"github.com/spf13/cast"

	"github.com/jask/dashlego/core/errs"
	"github.com/jask/dashlego/widgets"
)

// ChartKind selects how a chart draws its frame.
type ChartKind string

const (
	BarKind       ChartKind = "bar"
	LineKind      ChartKind = "line"
	HistogramKind ChartKind = "histogram"
)

// ChartSpec describes a chart. Embedded controls named "x", "y", "agg" or
// "kind" override the matching field at render time.
type ChartSpec struct {
	Kind  ChartKind
	X     string
	Y     string
	Agg   Agg
	Bins  int
	Limit int
}

// Chart draws a bar chart of y aggregated by x, a line of the aggregate
// in x order, or a histogram of y.
type Chart struct {
	Base
	spec ChartSpec
}

func NewChart(title string, src Source, spec ChartSpec, opts ...Option) (*Chart, error) {
	if spec.Kind == "" {
		spec.Kind = BarKind
	}
	if spec.Agg == "" {
		spec.Agg = Sum
	}
	if spec.Bins <= 0 {
		spec.Bins = 10
	}
	if err := spec.validate(); err != nil {
		return nil, err
	}
	c := &Chart{spec: spec}
	base, err := newBase("chart", title, src, c, opts)
	if err != nil {
		return nil, err
	}
	c.Base = base
	return c, nil
}

func (s ChartSpec) validate() error {
	switch s.Kind {
	case BarKind, LineKind:
		if s.X == "" {
			return errs.Configurationf("new chart", "%s chart needs an x column", s.Kind)
		}
	case HistogramKind:
		if s.Y == "" {
			return errs.Configurationf("new chart", "histogram needs a y column")
		}
	default:
		return errs.Configurationf("new chart", "unknown chart kind %q", s.Kind)
	}
	_, err := ParseAgg(string(s.Agg))
	return err
}

// resolve applies view overrides from embedded controls.
func (c *Chart) resolve(view map[string]any) (ChartSpec, error) {
	spec := c.spec
	if v, ok := view["x"]; ok && v != nil {
		spec.X = cast.ToString(v)
	}
	if v, ok := view["y"]; ok && v != nil {
		spec.Y = cast.ToString(v)
	}
	if v, ok := view["agg"]; ok && v != nil {
		spec.Agg = Agg(cast.ToString(v))
	}
	if v, ok := view["kind"]; ok && v != nil {
		spec.Kind = ChartKind(cast.ToString(v))
	}
	return spec, spec.validate()
}

func (c *Chart) draw(df dataframe.DataFrame, view map[string]any) (widgets.Widget, error) {
	spec, err := c.resolve(view)
	if err != nil {
		return nil, err
	}
	if df.Nrow() == 0 {
		return widgets.Text("(no data)"), nil
	}
	switch spec.Kind {
	case HistogramKind:
		return histogram(column(df, spec.Y), spec.Bins), nil
	case LineKind:
		labels, vals, err := group(df, spec.X, spec.Y, spec.Agg)
		if err != nil {
			return nil, err
		}
		idx := make([]int, len(labels))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool { return labels[idx[a]] < labels[idx[b]] })
		line := make([]float64, len(idx))
		for i, j := range idx {
			line[i] = vals[j]
		}
		return widgets.Sparkline{Values: line}, nil
	}
	labels, vals, err := group(df, spec.X, spec.Y, spec.Agg)
	if err != nil {
		return nil, err
	}
	sortedByValue(labels, vals)
	if spec.Limit > 0 && len(labels) > spec.Limit {
		labels, vals = labels[:spec.Limit], vals[:spec.Limit]
	}
	points := make([]widgets.Point, len(labels))
	for i := range labels {
		points[i] = widgets.Point{Label: labels[i], Value: vals[i]}
	}
	return widgets.BarChart{Data: points}, nil
}

func histogram(vals []float64, bins int) widgets.Widget {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range vals {
		if !math.IsNaN(v) {
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
	}
	if math.IsInf(lo, 1) {
		return widgets.Text("(no data)")
	}
	width := (hi - lo) / float64(bins)
	if width == 0 {
		bins, width = 1, 1
	}
	counts := make([]float64, bins)
	for _, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		i := min(int((v-lo)/width), bins-1)
		counts[i]++
	}
	points := make([]widgets.Point, bins)
	for i := range counts {
		label := fmt.Sprintf("%s-%s", widgets.FormatNumber(lo+float64(i)*width), widgets.FormatNumber(lo+float64(i+1)*width))
		points[i] = widgets.Point{Label: label, Value: counts[i]}
	}
	return widgets.BarChart{Data: points}
}
