package pipeline

import (
	"errors"
	"testing"

	"github.com/go-logr/logr"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestFromParamsNilClassifierRoutesEverythingToBuild(t *testing.T) {
	pc := FromParams(Params{"a": 1, "transform__b": 2}, nil, logr.Discard())
	require.Equal(t, Params{"a": 1, "transform__b": 2}, pc.Preprocessing)
	require.Empty(t, pc.Filtering)

	pc = FromParams(nil, nil, logr.Discard())
	require.NotNil(t, pc.Raw)
	require.Empty(t, pc.Raw)
}

func TestFromParamsRoutesByCategory(t *testing.T) {
	classify := func(key string) (string, string, error) {
		switch key {
		case "f":
			return CategoryFilter, "f2", nil
		case "t":
			return CategoryTransform, "t", nil
		case "odd":
			return "Filter", "odd", nil
		case "blank":
			return "", "blank", nil
		}
		return "whatever", key, nil
	}
	pc := FromParams(Params{"f": 1, "t": 2, "odd": 3, "blank": 4, "x": 5}, classify, logr.Discard())

	if diff := cmp.Diff(Params{"f2": 1, "t": 2}, pc.Filtering); diff != "" {
		t.Fatalf("filtering (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Params{"odd": 3, "blank": 4, "x": 5}, pc.Preprocessing); diff != "" {
		t.Fatalf("preprocessing (-want +got):\n%s", diff)
	}
}

func TestFromParamsClassifierFailureFallsBackToBuild(t *testing.T) {
	classify := func(key string) (string, string, error) {
		switch key {
		case "bad":
			return "", "", errors.New("cannot classify")
		case "worse":
			panic("boom")
		}
		return DefaultClassifier(key)
	}
	pc := FromParams(Params{"bad": 1, "worse": 2, "transform__region": "EU", "build__window": 7}, classify, logr.Discard())

	require.Equal(t, Params{"bad": 1, "worse": 2, "window": 7}, pc.Preprocessing)
	require.Equal(t, Params{"region": "EU"}, pc.Filtering)
}

func TestRawParamsIsACopy(t *testing.T) {
	in := Params{"a": 1}
	pc := FromParams(in, DefaultClassifier, logr.Discard())
	in["a"] = 2
	in["b"] = 3
	require.Equal(t, Params{"a": 1}, pc.Raw)
	require.Equal(t, Params{"a": 1}, pc.Preprocessing)
}

func TestDefaultClassifier(t *testing.T) {
	cases := []struct {
		key, category, name string
	}{
		{"window", CategoryBuild, "window"},
		{"build__window", CategoryBuild, "window"},
		{"transform__region", CategoryTransform, "region"},
		{"filter__region", CategoryFilter, "region"},
		{"chart__x", CategoryBuild, "x"},
	}
	for _, tc := range cases {
		category, name, err := DefaultClassifier(tc.key)
		require.NoError(t, err)
		require.Equal(t, tc.category, category, tc.key)
		require.Equal(t, tc.name, name, tc.key)
	}
}

func TestPrefixClassifier(t *testing.T) {
	pc := FromParams(Params{"f_region": "EU", "b_window": 7, "other": 1}, PrefixClassifier("f_", "b_"), logr.Discard())
	require.Equal(t, Params{"region": "EU"}, pc.Filtering)
	require.Equal(t, Params{"window": 7, "other": 1}, pc.Preprocessing)
}
