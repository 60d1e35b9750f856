package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-logr/logr"

	"github.com/jask/dashlego/core/errs"
	"github.com/jask/dashlego/core/frame"
)

// FrameBuilder serves a fixed frame and applies the build params as column
// filters. The frame is copied at construction.
type FrameBuilder struct {
	df  dataframe.DataFrame
	fp  string
	log logr.Logger
}

// NewFrameBuilder wraps df.
func NewFrameBuilder(df dataframe.DataFrame, log logr.Logger) (*FrameBuilder, error) {
	if df.Err != nil {
		return nil, errs.Configuration("new frame builder", df.Err)
	}
	if frame.IsEmpty(df) {
		log.Info("frame builder wraps an empty frame")
	}
	cp := frame.Clone(df)
	return &FrameBuilder{df: cp, fp: frame.Fingerprint(cp), log: log}, nil
}

func (b *FrameBuilder) Build(_ context.Context, params Params) (dataframe.DataFrame, error) {
	return frame.ApplyColumnFilters(b.df, params, b.log), nil
}

// CacheIdentity distinguishes builders wrapping different frames.
func (b *FrameBuilder) CacheIdentity() string { return b.fp }

// ColumnFilter keeps rows whose columns equal the matching filter params.
// Params that are not columns, nil, or "all" are ignored.
type ColumnFilter struct {
	Log logr.Logger
}

func (f ColumnFilter) Transform(_ context.Context, df dataframe.DataFrame, params Params) (dataframe.DataFrame, error) {
	log := f.Log
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return frame.ApplyColumnFilters(df, params, log), nil
}

// SQLBuilder loads a frame from a query. Build params referenced in the query
// as :name are bound as named arguments; the rest are ignored.
type SQLBuilder struct {
	db    *sql.DB
	query string
}

// NewSQLBuilder returns a builder running query against db.
func NewSQLBuilder(db *sql.DB, query string) *SQLBuilder {
	return &SQLBuilder{db: db, query: query}
}

// CacheIdentity distinguishes builders running different queries.
func (b *SQLBuilder) CacheIdentity() string { return b.query }

func (b *SQLBuilder) Build(ctx context.Context, params Params) (dataframe.DataFrame, error) {
	var args []any
	for _, k := range params.Keys() {
		if referencesParam(b.query, k) {
			args = append(args, sql.Named(k, params[k]))
		}
	}
	rows, err := b.db.QueryContext(ctx, b.query, args...)
	if err != nil {
		return frame.Empty(), fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return frame.Empty(), err
	}
	records := [][]string{names}
	for rows.Next() {
		vals := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return frame.Empty(), fmt.Errorf("scan: %w", err)
		}
		rec := make([]string, len(vals))
		for i, v := range vals {
			rec[i] = sqlCell(v)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return frame.Empty(), fmt.Errorf("rows: %w", err)
	}
	if len(records) == 1 {
		cols := make([]frame.Column, len(names))
		for i, n := range names {
			cols[i] = frame.Column{Name: n, Type: "string", Values: []string{}}
		}
		return frame.FromColumns(cols)
	}
	df := dataframe.LoadRecords(records)
	if df.Err != nil {
		return frame.Empty(), df.Err
	}
	return df, nil
}

func referencesParam(query, name string) bool {
	needle := ":" + name
	for i := 0; ; {
		j := strings.Index(query[i:], needle)
		if j < 0 {
			return false
		}
		end := i + j + len(needle)
		if end == len(query) || !isIdentByte(query[end]) {
			return true
		}
		i = end
	}
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func sqlCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NaN"
	case []byte:
		return string(x)
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		if math.IsNaN(x) {
			return "NaN"
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}
