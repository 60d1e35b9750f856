package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/go-gota/gota/dataframe"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/jask/dashlego/core/errs"
	"github.com/jask/dashlego/core/frame"
	"github.com/jask/dashlego/internal/logging"
	"github.com/jask/dashlego/internal/metrics"
)

// Executor runs synchronous handler calls on a bounded number of goroutines.
type Executor struct {
	workers int64
	sem     *semaphore.Weighted
}

// NewExecutor returns an executor running at most workers calls at once.
func NewExecutor(workers int) (*Executor, error) {
	if workers <= 0 {
		return nil, errs.Configurationf("new executor", "workers must be positive, got %d", workers)
	}
	return &Executor{workers: int64(workers), sem: semaphore.NewWeighted(int64(workers))}, nil
}

// Workers returns the concurrency limit.
func (e *Executor) Workers() int { return int(e.workers) }

// Submit schedules fn. The returned channel yields exactly one Result. If ctx
// ends before a worker is free, fn never runs.
func (e *Executor) Submit(ctx context.Context, fn func() (dataframe.DataFrame, error)) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		if err := e.sem.Acquire(ctx, 1); err != nil {
			out <- Result{Frame: frame.Empty(), Err: err}
			return
		}
		defer e.sem.Release(1)
		df, err := fn()
		out <- Result{Frame: df, Err: err}
	}()
	return out
}

// AsyncSource is a Source whose build stage never runs on the caller's
// goroutine. AsyncBuilders are awaited directly; other builders run on the
// executor. The filter stage runs inline after the build completes.
type AsyncSource struct {
	*Source
	exec *Executor
}

// NewAsync builds an AsyncSource with a pool of workers.
func NewAsync(workers int, opts ...Option) (*AsyncSource, error) {
	exec, err := NewExecutor(workers)
	if err != nil {
		return nil, err
	}
	src, err := New(opts...)
	if err != nil {
		return nil, err
	}
	return &AsyncSource{Source: src, exec: exec}, nil
}

// Executor returns the worker pool.
func (a *AsyncSource) Executor() *Executor { return a.exec }

// GetProcessedDataContext runs the pipeline and waits for the result or for
// ctx to end. A cancelled wait caches nothing.
func (a *AsyncSource) GetProcessedDataContext(ctx context.Context, params Params) (dataframe.DataFrame, error) {
	params = params.Clone()
	a.setCurrent(params)
	pc := a.Classify(params)

	built, err := a.getOrBuildAsync(ctx, pc.Preprocessing)
	if err != nil {
		return frame.Empty(), err
	}
	if frame.IsEmpty(built) {
		return built, nil
	}
	return a.getOrTransform(ctx, built, pc.Filtering)
}

// GetProcessedData runs the pipeline like GetProcessedDataContext, so the
// build stage stays on the executor when the source is used as a plain
// data source.
func (a *AsyncSource) GetProcessedData(ctx context.Context, params Params) (dataframe.DataFrame, error) {
	return a.GetProcessedDataContext(ctx, params)
}

// GetProcessedDataAsync starts the pipeline and returns a channel that
// yields its single Result.
func (a *AsyncSource) GetProcessedDataAsync(ctx context.Context, params Params) <-chan Result {
	out := make(chan Result, 1)
	params = params.Clone()
	go func() {
		defer close(out)
		df, err := a.GetProcessedDataContext(ctx, params)
		out <- Result{Frame: df, Err: err}
	}()
	return out
}

// PrewarmConcurrent prewarms like Prewarm with up to Workers sets in flight.
func (a *AsyncSource) PrewarmConcurrent(ctx context.Context, sets ...Params) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.exec.Workers())
	for i, p := range sets {
		g.Go(func() error {
			if _, err := a.GetProcessedDataContext(gctx, p); err != nil {
				a.log.Info("prewarm item skipped", "index", i, "err", err.Error())
			}
			return gctx.Err()
		})
	}
	return g.Wait()
}

func (a *AsyncSource) getOrBuildAsync(ctx context.Context, params Params) (dataframe.DataFrame, error) {
	defer metrics.ObserveStage(StageBuild, time.Now())
	key := stageKey(StageBuild, params, a.builder, "")
	if df, ok := a.lookup(ctx, StageBuild, key); ok {
		return df, nil
	}
	metrics.RecordInvocation(StageBuild)

	var pending <-chan Result
	if ab, ok := a.builder.(AsyncBuilder); ok {
		a.log.V(logging.TRACE).Info("awaiting async builder")
		if r, ok := ab.(Resetter); ok {
			r.ResetMutableState()
		}
		pending = ab.BuildAsync(ctx, params.Clone())
	} else {
		a.log.V(logging.TRACE).Info("dispatching builder to executor")
		pending = a.exec.Submit(ctx, func() (dataframe.DataFrame, error) {
			return runBuild(ctx, a.builder, params)
		})
	}

	var res Result
	select {
	case r, ok := <-pending:
		if !ok {
			return frame.Empty(), errs.DataLoad("build stage", fmt.Errorf("builder closed its result channel without a value"))
		}
		res = r
	case <-ctx.Done():
		return frame.Empty(), errs.DataLoad("build stage", ctx.Err())
	}
	df, err := checkFrame(res.Frame, res.Err)
	if err != nil {
		return frame.Empty(), wrapHandlerErr(StageBuild, err)
	}
	a.store(ctx, StageBuild, key, df)
	return df, nil
}

func (a *AsyncSource) derive(s *Source) *AsyncSource {
	return &AsyncSource{Source: s, exec: a.exec}
}

// WithBuilder returns an async source with b as builder. It shares this
// source's cache and executor.
func (a *AsyncSource) WithBuilder(b Builder) *AsyncSource {
	return a.derive(a.Source.WithBuilder(b))
}

// WithBuildFunc returns an async source building with fn.
func (a *AsyncSource) WithBuildFunc(fn func(ctx context.Context, params Params) (dataframe.DataFrame, error), opts ...FuncOption) *AsyncSource {
	return a.derive(a.Source.WithBuildFunc(fn, opts...))
}

// WithTransformer returns an async source with t replacing the transformer.
func (a *AsyncSource) WithTransformer(t Transformer) *AsyncSource {
	return a.derive(a.Source.WithTransformer(t))
}

// WithTransformFunc returns an async source whose transformer runs the
// current one and then fn.
func (a *AsyncSource) WithTransformFunc(fn func(df dataframe.DataFrame) (dataframe.DataFrame, error), opts ...FuncOption) *AsyncSource {
	return a.derive(a.Source.WithTransformFunc(fn, opts...))
}
