package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/go-logr/logr"
	"github.com/spf13/cast"
	"github.com/stretchr/testify/require"

	"github.com/jask/dashlego/core/cache"
	"github.com/jask/dashlego/core/errs"
	"github.com/jask/dashlego/core/frame"
	"github.com/jask/dashlego/internal/database"
)

// rangeBuilder builds [v, v+1, v+2] for the build param "v" and fails for negative v.
type rangeBuilder struct {
	calls  atomic.Int32
	resets atomic.Int32
}

func (b *rangeBuilder) Build(_ context.Context, p Params) (dataframe.DataFrame, error) {
	b.calls.Add(1)
	v := cast.ToInt(p["v"])
	if v < 0 {
		return frame.Empty(), fmt.Errorf("negative start %d", v)
	}
	return dataframe.New(series.New([]int{v, v + 1, v + 2}, series.Int, "value")), nil
}

func (b *rangeBuilder) ResetMutableState() { b.resets.Add(1) }

type countingTransformer struct {
	calls atomic.Int32
}

func (t *countingTransformer) Transform(_ context.Context, df dataframe.DataFrame, _ Params) (dataframe.DataFrame, error) {
	t.calls.Add(1)
	return df, nil
}

type brokenBackend struct{}

func (brokenBackend) Contains(context.Context, string) (bool, error) {
	return false, errs.Cache("contains", errors.New("down"))
}

func (brokenBackend) Get(context.Context, string) (dataframe.DataFrame, error) {
	return frame.Empty(), errs.Cache("get", errors.New("down"))
}

func (brokenBackend) Set(context.Context, string, dataframe.DataFrame, time.Duration) error {
	return errs.Cache("set", errors.New("down"))
}

func (brokenBackend) Close() error { return nil }

func isolated() Option {
	return WithRegistry(cache.NewRegistry(logr.Discard()))
}

func values(t *testing.T, df dataframe.DataFrame) []int {
	t.Helper()
	out, err := df.Col("value").Int()
	require.NoError(t, err)
	return out
}

func TestFilterStageKeyTracksBuiltContent(t *testing.T) {
	ctx := context.Background()
	b := &rangeBuilder{}
	tr := &countingTransformer{}
	src, err := New(WithBuilder(b), WithTransformer(tr), isolated())
	require.NoError(t, err)

	filter := Params{"transform__unused": "x"}
	with := func(v int) Params {
		p := filter.Clone()
		p["build__v"] = v
		return p
	}

	df, err := src.GetProcessedData(ctx, with(10))
	require.NoError(t, err)
	require.Equal(t, []int{10, 11, 12}, values(t, df))

	df, err = src.GetProcessedData(ctx, with(100))
	require.NoError(t, err)
	require.Equal(t, []int{100, 101, 102}, values(t, df))

	df, err = src.GetProcessedData(ctx, with(10))
	require.NoError(t, err)
	require.Equal(t, []int{10, 11, 12}, values(t, df))

	require.EqualValues(t, 2, b.calls.Load())
	require.EqualValues(t, 2, tr.calls.Load())
}

func TestRepeatedQueryIsACacheHit(t *testing.T) {
	ctx := context.Background()
	b := &rangeBuilder{}
	tr := &countingTransformer{}
	src, err := New(WithBuilder(b), WithTransformer(tr), isolated())
	require.NoError(t, err)

	params := Params{"build__v": 3, "transform__region": "EU"}
	first, err := src.GetProcessedData(ctx, params)
	require.NoError(t, err)
	second, err := src.GetProcessedData(ctx, Params{"build__v": 3, "transform__region": "EU"})
	require.NoError(t, err)

	require.EqualValues(t, 1, b.calls.Load())
	require.EqualValues(t, 1, tr.calls.Load())
	require.True(t, frame.Equal(first, second))
	require.Equal(t, Params{"build__v": 3, "transform__region": "EU"}, params, "caller params untouched")
	require.Equal(t, params, src.CurrentParams())
}

func TestSourcesShareCacheByDescriptor(t *testing.T) {
	t.Cleanup(func() { _ = cache.ResetRegistry() })
	dirA, dirB := t.TempDir(), t.TempDir()

	ds1, err := New(WithCache(cache.DiskDescriptor(dirA)))
	require.NoError(t, err)
	ds2, err := New(WithCache(cache.DiskDescriptor(dirA)))
	require.NoError(t, err)
	ds3, err := New(WithCache(cache.DiskDescriptor(dirB)))
	require.NoError(t, err)
	m1, err := New()
	require.NoError(t, err)
	m2, err := New()
	require.NoError(t, err)

	require.Same(t, ds1.Cache(), ds2.Cache())
	require.NotSame(t, ds1.Cache(), ds3.Cache())
	require.Same(t, m1.Cache(), m2.Cache())
}

func TestSharedCacheAvoidsDuplicateBuilds(t *testing.T) {
	ctx := context.Background()
	reg := cache.NewRegistry(logr.Discard())
	t.Cleanup(func() { _ = reg.Reset() })
	b := &rangeBuilder{}

	s1, err := New(WithBuilder(b), WithRegistry(reg), WithCache(cache.DiskDescriptor(t.TempDir())))
	require.NoError(t, err)
	s2, err := New(WithBuilder(b), WithRegistry(reg), WithCache(cache.DiskDescriptor(s1.Cache().(*cache.Disk).Dir())))
	require.NoError(t, err)

	_, err = s1.GetProcessedData(ctx, Params{"v": 5})
	require.NoError(t, err)
	df, err := s2.GetProcessedData(ctx, Params{"v": 5})
	require.NoError(t, err)
	require.Equal(t, []int{5, 6, 7}, values(t, df))
	require.EqualValues(t, 1, b.calls.Load())
}

func TestDerivedSourceReusesBuild(t *testing.T) {
	ctx := context.Background()
	b := &rangeBuilder{}
	src, err := New(WithBuilder(b), WithTransformer(ColumnFilter{}), isolated())
	require.NoError(t, err)

	derived := src.WithTransformer(FrameFunc(func(df dataframe.DataFrame) (dataframe.DataFrame, error) {
		return df.Subset([]int{0}), nil
	}))
	require.Same(t, src.Cache(), derived.Cache())

	full, err := src.GetProcessedData(ctx, Params{"build__v": 1})
	require.NoError(t, err)
	head, err := derived.GetProcessedData(ctx, Params{"build__v": 1})
	require.NoError(t, err)

	require.Equal(t, []int{1, 2, 3}, values(t, full))
	require.Equal(t, []int{1}, values(t, head))
	require.EqualValues(t, 1, b.calls.Load())
}

func TestWithTransformFuncChainsAfterExisting(t *testing.T) {
	ctx := context.Background()
	src, err := New(WithBuilder(&rangeBuilder{}), WithTransformer(ColumnFilter{}), isolated())
	require.NoError(t, err)

	var seen atomic.Int32
	derived := src.WithTransformFunc(func(df dataframe.DataFrame) (dataframe.DataFrame, error) {
		seen.Store(int32(df.Nrow()))
		return df, nil
	})

	df, err := derived.GetProcessedData(ctx, Params{"build__v": 1, "transform__value": "2"})
	require.NoError(t, err)
	require.Equal(t, []int{2}, values(t, df))
	require.EqualValues(t, 1, seen.Load(), "second step sees the filtered frame")
}

func TestCacheFailureDegradesToUncached(t *testing.T) {
	ctx := context.Background()
	b := &rangeBuilder{}
	src, err := New(WithBuilder(b), WithBackend(brokenBackend{}))
	require.NoError(t, err)

	for range 2 {
		df, err := src.GetProcessedData(ctx, Params{"v": 1})
		require.NoError(t, err)
		require.Equal(t, []int{1, 2, 3}, values(t, df))
	}
	require.EqualValues(t, 2, b.calls.Load())
	require.EqualValues(t, 2, b.resets.Load())
}

func TestHandlerErrorsAreWrappedOnce(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("source unreachable")

	src, err := New(isolated(), WithBuildFunc(func(context.Context, Params) (dataframe.DataFrame, error) {
		return frame.Empty(), cause
	}))
	require.NoError(t, err)
	_, err = src.GetProcessedData(ctx, nil)
	require.ErrorIs(t, err, errs.ErrDataLoad)
	require.ErrorIs(t, err, cause)

	src, err = New(isolated(), WithBuildFunc(func(context.Context, Params) (dataframe.DataFrame, error) {
		return frame.Empty(), errs.Configurationf("build", "missing table")
	}))
	require.NoError(t, err)
	_, err = src.GetProcessedData(ctx, nil)
	require.Equal(t, errs.KindConfiguration, errs.KindOf(err))

	src, err = New(isolated(), WithBuildFunc(func(context.Context, Params) (dataframe.DataFrame, error) {
		return dataframe.DataFrame{Err: errors.New("bad frame")}, nil
	}))
	require.NoError(t, err)
	_, err = src.GetProcessedData(ctx, nil)
	require.ErrorIs(t, err, errs.ErrDataLoad)
	require.ErrorIs(t, err, errFrame)
}

func TestTransformerErrorIsDataLoad(t *testing.T) {
	src, err := New(isolated(), WithBuilder(&rangeBuilder{}), WithTransformFunc(func(dataframe.DataFrame) (dataframe.DataFrame, error) {
		return frame.Empty(), errors.New("bad reshape")
	}))
	require.NoError(t, err)
	_, err = src.GetProcessedData(context.Background(), Params{"v": 1})
	require.ErrorIs(t, err, errs.ErrDataLoad)
}

func TestEmptyBuildSkipsFilterStage(t *testing.T) {
	tr := &countingTransformer{}
	src, err := New(isolated(), WithTransformer(tr))
	require.NoError(t, err)

	df, err := src.GetProcessedData(context.Background(), Params{"transform__x": 1})
	require.NoError(t, err)
	require.True(t, frame.IsEmpty(df))
	require.Zero(t, tr.calls.Load())
}

func TestPrewarmFillsCache(t *testing.T) {
	b := &rangeBuilder{}
	tr := &countingTransformer{}
	failing := Params{"build__v": -1}
	src, err := New(isolated(), WithBuilder(b), WithTransformer(tr),
		WithPrewarm(Params{"build__v": 1}, Params{"build__v": 2, "transform__x": "a"}, failing))
	require.NoError(t, err)
	require.EqualValues(t, 3, b.calls.Load())
	require.EqualValues(t, 1, tr.calls.Load(), "filter stage only for sets with filter params")

	_, err = src.GetProcessedData(context.Background(), Params{"build__v": 2, "transform__x": "a"})
	require.NoError(t, err)
	require.EqualValues(t, 3, b.calls.Load())
	require.EqualValues(t, 1, tr.calls.Load())
}

func TestNoClassifierSendsEverythingToBuilder(t *testing.T) {
	var got Params
	src, err := New(isolated(), WithClassifier(nil), WithBuildFunc(func(_ context.Context, p Params) (dataframe.DataFrame, error) {
		got = p
		return frame.Empty(), nil
	}))
	require.NoError(t, err)
	_, err = src.GetProcessedData(context.Background(), Params{"transform__x": 1})
	require.NoError(t, err)
	require.Equal(t, Params{"transform__x": 1}, got)
}

var oneRowCalls atomic.Int32

func oneRow(context.Context, Params) (dataframe.DataFrame, error) {
	oneRowCalls.Add(1)
	return dataframe.New(series.New([]int{1}, series.Int, "value")), nil
}

func TestLambdaBuildersShareKeysAcrossWrappers(t *testing.T) {
	ctx := context.Background()
	reg := cache.NewRegistry(logr.Discard())
	oneRowCalls.Store(0)

	s1, err := New(WithRegistry(reg), WithBuilder(BuildFunc(oneRow)))
	require.NoError(t, err)
	s2, err := New(WithRegistry(reg), WithBuilder(BuildFunc(oneRow)))
	require.NoError(t, err)

	_, err = s1.GetProcessedData(ctx, nil)
	require.NoError(t, err)
	_, err = s2.GetProcessedData(ctx, nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, oneRowCalls.Load())
}

func TestClosuresFromOneLiteralKeepSeparateEntries(t *testing.T) {
	ctx := context.Background()
	b := &rangeBuilder{}
	src, err := New(WithBuilder(b), isolated())
	require.NoError(t, err)

	var derived []*Source
	for _, keep := range []int{0, 2} {
		derived = append(derived, src.WithTransformFunc(func(df dataframe.DataFrame) (dataframe.DataFrame, error) {
			return df.Subset([]int{keep}), nil
		}))
	}

	first, err := derived[0].GetProcessedData(ctx, Params{"build__v": 1})
	require.NoError(t, err)
	last, err := derived[1].GetProcessedData(ctx, Params{"build__v": 1})
	require.NoError(t, err)
	require.Equal(t, []int{1}, values(t, first))
	require.Equal(t, []int{3}, values(t, last))
	require.EqualValues(t, 1, b.calls.Load(), "derived sources still share the build")
}

func TestTaggedClosuresShareEntries(t *testing.T) {
	ctx := context.Background()
	reg := cache.NewRegistry(logr.Discard())
	var calls atomic.Int32
	fn := func(context.Context, Params) (dataframe.DataFrame, error) {
		calls.Add(1)
		return dataframe.New(series.New([]int{1}, series.Int, "value")), nil
	}

	s1, err := New(WithRegistry(reg), WithBuildFunc(fn, WithTag("one-row")))
	require.NoError(t, err)
	s2, err := New(WithRegistry(reg), WithBuildFunc(fn, WithTag("one-row")))
	require.NoError(t, err)
	s3, err := New(WithRegistry(reg), WithBuildFunc(fn))
	require.NoError(t, err)

	for _, s := range []*Source{s1, s2, s3} {
		_, err := s.GetProcessedData(ctx, nil)
		require.NoError(t, err)
	}
	require.EqualValues(t, 2, calls.Load(), "untagged closure gets its own entry")
}

func TestFrameBuilderAppliesColumnFilters(t *testing.T) {
	df := dataframe.New(
		series.New([]string{"EU", "US", "EU"}, series.String, "region"),
		series.New([]int{1, 2, 3}, series.Int, "value"),
	)
	fb, err := NewFrameBuilder(df, logr.Discard())
	require.NoError(t, err)

	src, err := New(isolated(), WithBuilder(fb))
	require.NoError(t, err)
	out, err := src.GetProcessedData(context.Background(), Params{"region": "EU"})
	require.NoError(t, err)
	require.Equal(t, []int{1, 3}, values(t, out))

	_, err = NewFrameBuilder(dataframe.DataFrame{Err: errors.New("x")}, logr.Discard())
	require.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestSQLBuilder(t *testing.T) {
	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE sales(region TEXT, value INTEGER);
		INSERT INTO sales VALUES ('EU', 1), ('US', 2), ('EU', 3);`)
	require.NoError(t, err)

	b := NewSQLBuilder(db, `SELECT region, value FROM sales WHERE region = :region ORDER BY value`)
	df, err := b.Build(context.Background(), Params{"region": "EU", "regions": "ignored"})
	require.NoError(t, err)
	require.Equal(t, []int{1, 3}, values(t, df))

	empty, err := b.Build(context.Background(), Params{"region": "APAC"})
	require.NoError(t, err)
	require.Equal(t, 0, empty.Nrow())
	require.Equal(t, []string{"region", "value"}, empty.Names())

	require.True(t, referencesParam("a = :region", "region"))
	require.False(t, referencesParam("a = :regions", "region"))
}
