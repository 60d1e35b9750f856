package blocks

import (
	"math"
	"sort"

	"github.com/go-gota/gota/dataframe"

	"github.com/jask/dashlego/core/errs"
	"github.com/jask/dashlego/core/frame"
)

// Agg names an aggregation over a column.
type Agg string

const (
	Sum    Agg = "sum"
	Mean   Agg = "mean"
	Count  Agg = "count"
	Min    Agg = "min"
	Max    Agg = "max"
	Median Agg = "median"
)

// ParseAgg accepts an aggregation name; empty means Sum.
func ParseAgg(s string) (Agg, error) {
	switch a := Agg(s); a {
	case "":
		return Sum, nil
	case Sum, Mean, Count, Min, Max, Median:
		return a, nil
	}
	return "", errs.Configurationf("parse agg", "unknown aggregation %q", s)
}

// Apply aggregates vals. Count counts every row; the others skip NaN and
// return 0 for no values.
func (a Agg) Apply(vals []float64) float64 {
	if a == Count {
		return float64(len(vals))
	}
	clean := vals[:0:0]
	for _, v := range vals {
		if !math.IsNaN(v) {
			clean = append(clean, v)
		}
	}
	if len(clean) == 0 {
		return 0
	}
	switch a {
	case Mean:
		return sum(clean) / float64(len(clean))
	case Min:
		m := clean[0]
		for _, v := range clean[1:] {
			m = math.Min(m, v)
		}
		return m
	case Max:
		m := clean[0]
		for _, v := range clean[1:] {
			m = math.Max(m, v)
		}
		return m
	case Median:
		sorted := append([]float64(nil), clean...)
		sort.Float64s(sorted)
		mid := len(sorted) / 2
		if len(sorted)%2 == 0 {
			return (sorted[mid-1] + sorted[mid]) / 2
		}
		return sorted[mid]
	}
	return sum(clean)
}

func sum(vals []float64) float64 {
	total := 0.0
	for _, v := range vals {
		total += v
	}
	return total
}

// column returns the float values of name, or nil when it is absent.
func column(df dataframe.DataFrame, name string) []float64 {
	if !frame.HasColumn(df, name) {
		return nil
	}
	return df.Col(name).Float()
}

// group aggregates the y column per distinct value of the x column, in
// first-seen order. An empty y counts rows.
func group(df dataframe.DataFrame, x, y string, agg Agg) ([]string, []float64, error) {
	if !frame.HasColumn(df, x) {
		return nil, nil, errs.Configurationf("group", "no column %q", x)
	}
	if y != "" && !frame.HasColumn(df, y) {
		return nil, nil, errs.Configurationf("group", "no column %q", y)
	}
	keys := df.Col(x).Records()
	var ys []float64
	if y != "" {
		ys = df.Col(y).Float()
	}
	buckets := make(map[string][]float64)
	var order []string
	for i, k := range keys {
		if _, ok := buckets[k]; !ok {
			order = append(order, k)
		}
		v := 1.0
		if ys != nil {
			v = ys[i]
		}
		buckets[k] = append(buckets[k], v)
	}
	if y == "" {
		agg = Count
	}
	out := make([]float64, len(order))
	for i, k := range order {
		out[i] = agg.Apply(buckets[k])
	}
	return order, out, nil
}

// sortedByValue orders labels by descending value, ties by label.
func sortedByValue(labels []string, vals []float64) {
	idx := make([]int, len(labels))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		if vals[idx[a]] != vals[idx[b]] {
			return vals[idx[a]] > vals[idx[b]]
		}
		return labels[idx[a]] < labels[idx[b]]
	})
	l2 := make([]string, len(labels))
	v2 := make([]float64, len(vals))
	for i, j := range idx {
		l2[i], v2[i] = labels[j], vals[j]
	}
	copy(labels, l2)
	copy(vals, v2)
}
