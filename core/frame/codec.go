package frame

import (
	"fmt"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-json-experiment/json"
)

const codecVersion = 1

type envelope struct {
	Version int      `json:"v"`
	Rows    int      `json:"rows"`
	Columns []Column `json:"columns"`
}

// Encode serializes df for persistent cache backends.
func Encode(df dataframe.DataFrame) ([]byte, error) {
	if df.Err != nil {
		return nil, fmt.Errorf("encode frame: %w", df.Err)
	}
	env := envelope{Version: codecVersion, Rows: df.Nrow(), Columns: Columns(df)}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return b, nil
}

// Decode is the inverse of Encode.
func Decode(b []byte) (dataframe.DataFrame, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Empty(), fmt.Errorf("decode frame: %w", err)
	}
	if env.Version != codecVersion {
		return Empty(), fmt.Errorf("decode frame: unsupported version %d", env.Version)
	}
	for _, c := range env.Columns {
		if len(c.Values) != env.Rows {
			return Empty(), fmt.Errorf("decode frame: column %q has %d values, want %d", c.Name, len(c.Values), env.Rows)
		}
	}
	df, err := FromColumns(env.Columns)
	if err != nil {
		return Empty(), fmt.Errorf("decode frame: %w", err)
	}
	return df, nil
}
