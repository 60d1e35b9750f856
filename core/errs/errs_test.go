package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindMatchingWithErrorsIs(t *testing.T) {
	cause := errors.New("boom")
	err := DataLoad("build", cause)

	require.ErrorIs(t, err, ErrDataLoad)
	require.NotErrorIs(t, err, ErrCache)
	require.ErrorIs(t, err, cause)
	require.Equal(t, KindDataLoad, KindOf(err))
	require.Contains(t, err.Error(), "build: data load error: boom")
}

func TestIsPipelineSeesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", Cache("get", errors.New("down")))
	require.True(t, IsPipeline(err))
	require.Equal(t, KindCache, KindOf(err))
	require.False(t, IsPipeline(errors.New("plain")))
	require.False(t, IsPipeline(nil))
}

func TestFormattedConstructors(t *testing.T) {
	err := Statef("register", "state %q already has a publisher", "A")
	require.ErrorIs(t, err, ErrState)
	require.Contains(t, err.Error(), `state "A" already has a publisher`)

	err = Configurationf("new source", "workers must be positive, got %d", 0)
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestTransformIsDataLoad(t *testing.T) {
	err := Transform("filter", errors.New("bad column"))
	require.ErrorIs(t, err, ErrTransform)
	require.ErrorIs(t, err, ErrDataLoad)
	require.NotErrorIs(t, DataLoad("build", nil), ErrTransform)
}
