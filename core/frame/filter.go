package frame

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/go-logr/logr"
	"github.com/spf13/cast"
)

// AllValues is the control value that disables a filter.
const AllValues = "all"

// ApplyColumnFilters keeps the rows where every filter key that names a column
// equals its value. Slice values match any element. Nil and "all" are skipped.
// Keys that are not columns are ignored; a warning is logged unless the key is
// namespaced with "__". A filter that cannot be applied is logged and skipped.
// df itself is never modified.
func ApplyColumnFilters(df dataframe.DataFrame, filters map[string]any, log logr.Logger) dataframe.DataFrame {
	out := Clone(df)
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := filters[key]
		if !HasColumn(out, key) {
			if !strings.Contains(key, "__") {
				log.Info("filter param is not a column, ignoring", "param", key)
			}
			continue
		}
		if skipFilter(value) {
			continue
		}
		col := out.Col(key)
		next, err := filterColumn(out, key, col.Type(), value)
		if err != nil {
			log.Info("failed to filter column", "column", key, "value", value, "err", err.Error())
			continue
		}
		out = next
	}
	return out
}

func skipFilter(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok && s == AllValues {
		return true
	}
	return false
}

func filterColumn(df dataframe.DataFrame, key string, t series.Type, value any) (dataframe.DataFrame, error) {
	f := dataframe.F{Colname: key, Comparator: series.Eq}
	if rv := reflect.ValueOf(value); rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
		items := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			v, err := coerce(t, rv.Index(i).Interface())
			if errors.Is(err, errNoMatch) {
				continue
			}
			if err != nil {
				return df, err
			}
			items = append(items, cast.ToString(v))
		}
		f.Comparator = series.In
		f.Comparando = items
	} else {
		v, err := coerce(t, value)
		if errors.Is(err, errNoMatch) {
			f.Comparator = series.In
			f.Comparando = []string{}
			return df.Filter(f), nil
		}
		if err != nil {
			return df, err
		}
		f.Comparando = v
	}
	next := df.Filter(f)
	if next.Err != nil {
		return df, next.Err
	}
	return next, nil
}

var errNoMatch = errors.New("value cannot match column type")

// coerce converts string control values to the column's numeric type.
func coerce(t series.Type, v any) (any, error) {
	s, isString := v.(string)
	switch t {
	case series.Int:
		if isString && strings.Contains(s, ".") {
			f, err := cast.ToFloat64E(s)
			if err != nil {
				return nil, fmt.Errorf("not a number: %v", v)
			}
			if f != math.Trunc(f) {
				return nil, errNoMatch
			}
			return int(f), nil
		}
		n, err := cast.ToIntE(v)
		if err != nil {
			return nil, fmt.Errorf("not an integer: %v", v)
		}
		return n, nil
	case series.Float:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return nil, fmt.Errorf("not a number: %v", v)
		}
		return f, nil
	case series.Bool:
		b, err := cast.ToBoolE(v)
		if err != nil {
			return nil, fmt.Errorf("not a bool: %v", v)
		}
		return b, nil
	}
	return cast.ToString(v), nil
}
