package blocks

import (
	"github.com/go-gota/gota/dataframe"

	"github.com/jask/dashlego/core/errs"
	"github.com/jask/dashlego/widgets"
)

// Metric is one headline number of a KPI row.
type Metric struct {
	Title  string
	Column string
	Agg    Agg
	Color  string
	Format func(float64) string
}

// KPI renders a row of aggregated metrics. A metric whose column is missing
// or whose frame is empty shows 0.
type KPI struct {
	Base
	metrics []Metric
}

func NewKPI(title string, src Source, metrics []Metric, opts ...Option) (*KPI, error) {
	if len(metrics) == 0 {
		return nil, errs.Configurationf("new kpi", "at least one metric is required")
	}
	k := &KPI{metrics: metrics}
	base, err := newBase("kpi", title, src, k, opts)
	if err != nil {
		return nil, err
	}
	k.Base = base
	return k, nil
}

// Values computes every metric over df in declaration order.
func (k *KPI) Values(df dataframe.DataFrame) []float64 {
	out := make([]float64, len(k.metrics))
	for i, m := range k.metrics {
		if m.Agg == Count {
			out[i] = float64(df.Nrow())
			continue
		}
		out[i] = m.Agg.Apply(column(df, m.Column))
	}
	return out
}

func (k *KPI) draw(df dataframe.DataFrame, _ map[string]any) (widgets.Widget, error) {
	vals := k.Values(df)
	stats := make([]widgets.Stat, len(k.metrics))
	for i, m := range k.metrics {
		format := widgets.FormatNumber
		if m.Format != nil {
			format = m.Format
		}
		stats[i] = widgets.Stat{Title: m.Title, Value: format(vals[i]), Color: m.Color}
	}
	return widgets.StatRow{Stats: stats}, nil
}
