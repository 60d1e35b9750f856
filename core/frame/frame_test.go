package frame

import (
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/go-logr/logr"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func sales() dataframe.DataFrame {
	return dataframe.New(
		series.New([]int{1, 2, 3, 2}, series.Int, "A"),
		series.New([]string{"x", "y", "z", "w"}, series.String, "B"),
		series.New([]float64{0.1, 2.5, 1e-9, 3}, series.Float, "F"),
	)
}

func TestCodecRoundTripKeepsValuesAndTypes(t *testing.T) {
	t.Parallel()
	df := sales()

	b, err := Encode(df)
	require.NoError(t, err)
	got, err := Decode(b)
	require.NoError(t, err)

	require.True(t, Equal(df, got))
	require.Equal(t, Fingerprint(df), Fingerprint(got))
	if diff := cmp.Diff(df.Names(), got.Names()); diff != "" {
		t.Fatalf("column order changed (-want +got):\n%s", diff)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	t.Parallel()
	_, err := Decode([]byte("not json"))
	require.Error(t, err)

	_, err = Decode([]byte(`{"v":1,"rows":2,"columns":[{"name":"a","type":"int","values":["1"]}]}`))
	require.ErrorContains(t, err, "has 1 values, want 2")
}

func TestEmptyFrameRoundTrip(t *testing.T) {
	t.Parallel()
	b, err := Encode(Empty())
	require.NoError(t, err)
	got, err := Decode(b)
	require.NoError(t, err)
	require.True(t, IsEmpty(got))
	require.Equal(t, 0, got.Ncol())
}

func TestFingerprintTracksContent(t *testing.T) {
	t.Parallel()
	a := dataframe.New(series.New([]int{10, 11, 12}, series.Int, "v"))
	b := dataframe.New(series.New([]int{100, 101, 102}, series.Int, "v"))
	renamed := dataframe.New(series.New([]int{10, 11, 12}, series.Int, "w"))

	require.NotEqual(t, Fingerprint(a), Fingerprint(b))
	require.NotEqual(t, Fingerprint(a), Fingerprint(renamed))
	require.Equal(t, Fingerprint(a), Fingerprint(a.Copy()))
}

func TestApplyColumnFilters(t *testing.T) {
	t.Parallel()
	df := sales()

	cases := []struct {
		name    string
		filters map[string]any
		wantB   []string
	}{
		{"numeric string is coerced", map[string]any{"A": "2", "B": "y"}, []string{"y"}},
		{"nil and all are skipped", map[string]any{"A": nil, "B": "all"}, []string{"x", "y", "z", "w"}},
		{"unknown columns are ignored", map[string]any{"region": "EU", "build__window": 7}, []string{"x", "y", "z", "w"}},
		{"slice matches any", map[string]any{"B": []string{"x", "z"}}, []string{"x", "z"}},
		{"filters combine with and", map[string]any{"A": 2, "B": "w"}, []string{"w"}},
		{"fractional value never matches int column", map[string]any{"A": "2.5"}, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ApplyColumnFilters(df, tc.filters, logr.Discard())
			require.NoError(t, got.Err)
			require.Equal(t, len(tc.wantB), got.Nrow())
			if len(tc.wantB) > 0 {
				require.Equal(t, tc.wantB, got.Col("B").Records())
			}
		})
	}
	require.Equal(t, 4, df.Nrow(), "input frame must not change")
}
