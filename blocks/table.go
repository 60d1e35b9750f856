package blocks

import (
	"github.com/go-gota/gota/dataframe"

	"github.com/jask/dashlego/core/frame"
	"github.com/jask/dashlego/widgets"
)

// TableSpec selects, orders and caps the rows a table shows. Empty Columns
// shows every column.
type TableSpec struct {
	Columns []string
	SortBy  string
	Desc    bool
	Limit   int
}

// Table shows the processed frame as rows.
type Table struct {
	Base
	spec TableSpec
}

func NewTable(title string, src Source, spec TableSpec, opts ...Option) (*Table, error) {
	t := &Table{spec: spec}
	base, err := newBase("table", title, src, t, opts)
	if err != nil {
		return nil, err
	}
	t.Base = base
	return t, nil
}

func (t *Table) draw(df dataframe.DataFrame, _ map[string]any) (widgets.Widget, error) {
	if df.Ncol() == 0 {
		return widgets.Text("(no data)"), nil
	}
	if len(t.spec.Columns) > 0 {
		df = df.Select(t.spec.Columns)
	}
	if t.spec.SortBy != "" && frame.HasColumn(df, t.spec.SortBy) {
		order := dataframe.Sort(t.spec.SortBy)
		if t.spec.Desc {
			order = dataframe.RevSort(t.spec.SortBy)
		}
		df = df.Arrange(order)
	}
	if t.spec.Limit > 0 && df.Nrow() > t.spec.Limit {
		idx := make([]int, t.spec.Limit)
		for i := range idx {
			idx[i] = i
		}
		df = df.Subset(idx)
	}
	if df.Err != nil {
		return nil, df.Err
	}
	records := df.Records()
	return widgets.Table{Headers: records[0], Rows: records[1:]}, nil
}
