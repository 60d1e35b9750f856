package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/stretchr/testify/require"

	"github.com/jask/dashlego/core/errs"
	"github.com/jask/dashlego/core/frame"
)

func TestAsyncSourceRunsSyncBuilderOnExecutor(t *testing.T) {
	ctx := context.Background()
	b := &rangeBuilder{}
	tr := &countingTransformer{}
	src, err := NewAsync(2, WithBuilder(b), WithTransformer(tr), isolated())
	require.NoError(t, err)

	df, err := src.GetProcessedDataContext(ctx, Params{"build__v": 7, "transform__x": 1})
	require.NoError(t, err)
	require.Equal(t, []int{7, 8, 9}, values(t, df))

	res := <-src.GetProcessedDataAsync(ctx, Params{"build__v": 7, "transform__x": 1})
	require.NoError(t, res.Err)
	require.True(t, frame.Equal(df, res.Frame))

	require.EqualValues(t, 1, b.calls.Load())
	require.EqualValues(t, 1, tr.calls.Load())
}

func TestAsyncSourceAwaitsAsyncBuilder(t *testing.T) {
	var calls atomic.Int32
	ab := AsyncBuildFunc(func(_ context.Context, p Params) (dataframe.DataFrame, error) {
		calls.Add(1)
		return dataframe.New(series.New([]int{1, 2}, series.Int, "value")), nil
	})
	src, err := NewAsync(1, WithBuilder(ab), isolated())
	require.NoError(t, err)

	df, err := src.GetProcessedDataContext(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, values(t, df))
	require.EqualValues(t, 1, calls.Load())
}

func TestAsyncSourceHonoursContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	src, err := NewAsync(1, isolated(), WithBuildFunc(func(ctx context.Context, _ Params) (dataframe.DataFrame, error) {
		<-release
		return frame.Empty(), nil
	}))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = src.GetProcessedDataContext(ctx, nil)
	require.ErrorIs(t, err, errs.ErrDataLoad)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecutorBoundsConcurrency(t *testing.T) {
	exec, err := NewExecutor(2)
	require.NoError(t, err)

	var running, peak atomic.Int32
	work := func() (dataframe.DataFrame, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return frame.Empty(), nil
	}

	var pending []<-chan Result
	for range 6 {
		pending = append(pending, exec.Submit(context.Background(), work))
	}
	for _, ch := range pending {
		require.NoError(t, (<-ch).Err)
	}
	require.LessOrEqual(t, peak.Load(), int32(2))

	_, err = NewExecutor(0)
	require.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestPrewarmConcurrent(t *testing.T) {
	b := &rangeBuilder{}
	src, err := NewAsync(3, WithBuilder(b), isolated())
	require.NoError(t, err)

	require.NoError(t, src.PrewarmConcurrent(context.Background(), Params{"v": 1}, Params{"v": 2}, Params{"v": -1}))
	require.EqualValues(t, 3, b.calls.Load())

	_, err = src.GetProcessedDataContext(context.Background(), Params{"v": 2})
	require.NoError(t, err)
	require.EqualValues(t, 3, b.calls.Load())
}

func TestAsyncSourceAsPlainSourceStaysOnExecutor(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	src, err := NewAsync(1, isolated(), WithBuildFunc(func(context.Context, Params) (dataframe.DataFrame, error) {
		<-release
		return frame.Empty(), nil
	}))
	require.NoError(t, err)
	derived := src.WithTransformer(Identity{})
	require.Same(t, src.Executor(), derived.Executor())

	type loader interface {
		GetProcessedData(ctx context.Context, params Params) (dataframe.DataFrame, error)
	}
	for _, l := range []loader{src, derived} {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		_, err := l.GetProcessedData(ctx, nil)
		cancel()
		require.ErrorIs(t, err, context.DeadlineExceeded)
	}
}
