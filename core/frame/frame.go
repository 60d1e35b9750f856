// Package frame holds the gota DataFrame helpers shared by the pipeline and cache layers.
package frame

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// Empty returns a frame with no rows and no columns.
func Empty() dataframe.DataFrame {
	return dataframe.DataFrame{}
}

// IsEmpty reports whether df has no rows.
func IsEmpty(df dataframe.DataFrame) bool {
	return df.Nrow() == 0
}

// Column is a decoded column: name, gota type and one string cell per row.
type Column struct {
	Name   string   `json:"name"`
	Type   string   `json:"type"`
	Values []string `json:"values"`
}

// Columns flattens df into per-column string cells. Floats use the shortest
// round-trip form so a decode reproduces the same values.
func Columns(df dataframe.DataFrame) []Column {
	names := df.Names()
	types := df.Types()
	out := make([]Column, 0, len(names))
	for i, name := range names {
		s := df.Col(name)
		col := Column{Name: name, Type: string(types[i]), Values: make([]string, s.Len())}
		for r := 0; r < s.Len(); r++ {
			col.Values[r] = cell(s.Elem(r), types[i])
		}
		out = append(out, col)
	}
	return out
}

func cell(e series.Element, t series.Type) string {
	if e.IsNA() {
		return "NaN"
	}
	if t == series.Float {
		f := e.Float()
		if math.IsInf(f, 0) {
			return e.String()
		}
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return e.String()
}

// FromColumns rebuilds a frame. Column order is preserved.
func FromColumns(cols []Column) (dataframe.DataFrame, error) {
	if len(cols) == 0 {
		return Empty(), nil
	}
	ss := make([]series.Series, 0, len(cols))
	for _, c := range cols {
		t, err := parseType(c.Type)
		if err != nil {
			return Empty(), err
		}
		values := c.Values
		if values == nil {
			values = []string{}
		}
		s := series.New(values, t, c.Name)
		if s.Err != nil {
			return Empty(), fmt.Errorf("column %q: %w", c.Name, s.Err)
		}
		ss = append(ss, s)
	}
	df := dataframe.New(ss...)
	if df.Err != nil {
		return Empty(), df.Err
	}
	return df, nil
}

func parseType(t string) (series.Type, error) {
	switch series.Type(t) {
	case series.String, series.Int, series.Float, series.Bool:
		return series.Type(t), nil
	}
	return series.String, fmt.Errorf("unknown column type %q", t)
}

// Fingerprint digests shape, column names, types and every cell of df.
// Frames that compare Equal always share a fingerprint.
func Fingerprint(df dataframe.DataFrame) string {
	h := sha256.New()
	fmt.Fprintf(h, "shape=%dx%d\n", df.Nrow(), df.Ncol())
	for _, c := range Columns(df) {
		fmt.Fprintf(h, "col=%q type=%s\n", c.Name, c.Type)
		for _, v := range c.Values {
			fmt.Fprintf(h, "%d:%s\x00", len(v), v)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Equal compares names, types and cell values.
func Equal(a, b dataframe.DataFrame) bool {
	if a.Nrow() != b.Nrow() || a.Ncol() != b.Ncol() {
		return false
	}
	ac, bc := Columns(a), Columns(b)
	for i := range ac {
		if ac[i].Name != bc[i].Name || ac[i].Type != bc[i].Type {
			return false
		}
		if !slices.Equal(ac[i].Values, bc[i].Values) {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func Clone(df dataframe.DataFrame) dataframe.DataFrame {
	if df.Ncol() == 0 {
		return Empty()
	}
	return df.Copy()
}

// HasColumn reports whether df has a column called name.
func HasColumn(df dataframe.DataFrame, name string) bool {
	return slices.Contains(df.Names(), name)
}
