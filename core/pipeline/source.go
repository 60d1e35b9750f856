// Package pipeline runs the two-stage data pipeline behind every block.
//
// A Source classifies incoming params into build-stage and filter-stage
// buckets, resolves the build stage through its cache backend, then resolves
// the filter stage keyed by the filter params, the transformer identity and a
// fingerprint of the built frame. Cache failures degrade to uncached
// execution; handler failures surface as data load errors.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-logr/logr"

	"github.com/jask/dashlego/core/cache"
	"github.com/jask/dashlego/core/errs"
	"github.com/jask/dashlego/core/frame"
	"github.com/jask/dashlego/core/hashing"
	"github.com/jask/dashlego/internal/logging"
	"github.com/jask/dashlego/internal/metrics"
)

// Stage names, embedded in cache keys and metric labels.
const (
	StageBuild  = "build"
	StageFilter = "filter"
)

// Source owns one Builder, one Transformer and a shared cache backend.
type Source struct {
	builder     Builder
	transformer Transformer
	classify    Classifier
	backend     cache.Backend
	descriptor  cache.Descriptor
	registry    *cache.Registry
	ttl         time.Duration
	log         logr.Logger
	prewarm     []Params

	mu      sync.Mutex
	current Params
}

// Option configures a Source.
type Option func(*Source)

// WithBuilder sets the build-stage handler. Default NopBuilder.
func WithBuilder(b Builder) Option { return func(s *Source) { s.builder = b } }

// WithBuildFunc wraps fn as the build-stage handler.
func WithBuildFunc(fn func(ctx context.Context, params Params) (dataframe.DataFrame, error), opts ...FuncOption) Option {
	return WithBuilder(BuildFunc(fn, opts...))
}

// WithTransformer sets the filter-stage handler. Default Identity.
func WithTransformer(t Transformer) Option { return func(s *Source) { s.transformer = t } }

// WithTransformFunc wraps fn as the filter-stage handler.
func WithTransformFunc(fn func(df dataframe.DataFrame) (dataframe.DataFrame, error), opts ...FuncOption) Option {
	return WithTransformer(FrameFunc(fn, opts...))
}

// WithClassifier sets the param classifier. nil routes every key to the
// build stage. Default DefaultClassifier.
func WithClassifier(c Classifier) Option { return func(s *Source) { s.classify = c } }

// WithCache selects a backend through the registry.
func WithCache(d cache.Descriptor) Option { return func(s *Source) { s.descriptor = d } }

// WithBackend uses a pre-constructed backend, bypassing the registry.
func WithBackend(b cache.Backend) Option { return func(s *Source) { s.backend = b } }

// WithRegistry resolves descriptors in r instead of the process-wide registry.
func WithRegistry(r *cache.Registry) Option { return func(s *Source) { s.registry = r } }

// WithTTL sets the ttl passed on every cache write. Zero uses the backend default.
func WithTTL(ttl time.Duration) Option { return func(s *Source) { s.ttl = ttl } }

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option { return func(s *Source) { s.log = log } }

// WithPrewarm runs each param set through the pipeline during New.
func WithPrewarm(params ...Params) Option {
	return func(s *Source) { s.prewarm = append(s.prewarm, params...) }
}

// New builds a Source.
func New(opts ...Option) (*Source, error) {
	s := &Source{
		builder:     NopBuilder{},
		transformer: Identity{},
		classify:    DefaultClassifier,
		descriptor:  cache.MemoryDescriptor(),
		log:         logr.Discard(),
		current:     Params{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.builder == nil || s.transformer == nil {
		return nil, errs.Configurationf("new source", "builder and transformer must not be nil")
	}
	if s.backend == nil {
		reg := s.registry
		if reg == nil {
			reg = cache.Default()
		}
		b, err := reg.Resolve(s.descriptor)
		if err != nil {
			if errs.IsPipeline(err) {
				return nil, err
			}
			return nil, errs.Cache("new source", err)
		}
		s.backend = b
	}
	s.log.V(logging.VERBOSE).Info("pipeline ready",
		"builder", hashing.HandlerID(s.builder),
		"transformer", hashing.HandlerID(s.transformer),
		"cache", s.descriptor.Key())
	if len(s.prewarm) > 0 {
		s.Prewarm(context.Background(), s.prewarm...)
	}
	return s, nil
}

// Cache returns the backend shared by this source.
func (s *Source) Cache() cache.Backend { return s.backend }

// Builder returns the build-stage handler.
func (s *Source) Builder() Builder { return s.builder }

// Transformer returns the filter-stage handler.
func (s *Source) Transformer() Transformer { return s.transformer }

// CurrentParams returns a copy of the params of the most recent call.
func (s *Source) CurrentParams() Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

func (s *Source) setCurrent(p Params) {
	s.mu.Lock()
	s.current = p.Clone()
	s.mu.Unlock()
}

// Classify exposes the classification a call with params would use.
func (s *Source) Classify(params Params) Context {
	return FromParams(params, s.classify, s.log)
}

// GetProcessedData runs both stages for params. The caller's map is never
// modified. When the built frame has no rows the filter stage is skipped.
func (s *Source) GetProcessedData(ctx context.Context, params Params) (dataframe.DataFrame, error) {
	params = params.Clone()
	s.setCurrent(params)
	pc := s.Classify(params)
	s.log.V(logging.VERBOSE).Info("processing", "build", pc.Preprocessing.Keys(), "filter", pc.Filtering.Keys())

	built, err := s.getOrBuild(ctx, pc.Preprocessing)
	if err != nil {
		return frame.Empty(), err
	}
	if frame.IsEmpty(built) {
		s.log.V(logging.DEBUG).Info("built frame is empty, skipping filter stage")
		return built, nil
	}
	return s.getOrTransform(ctx, built, pc.Filtering)
}

// Prewarm fills the cache for each param set. The filter stage runs only for
// sets with filter params. Failures are logged and skipped.
func (s *Source) Prewarm(ctx context.Context, sets ...Params) {
	s.log.Info("prewarming cache", "sets", len(sets))
	for i, p := range sets {
		pc := s.Classify(p)
		built, err := s.getOrBuild(ctx, pc.Preprocessing)
		if err != nil {
			s.log.Info("prewarm item skipped", "index", i, "err", err.Error())
			continue
		}
		if len(pc.Filtering) == 0 || frame.IsEmpty(built) {
			continue
		}
		if _, err := s.getOrTransform(ctx, built, pc.Filtering); err != nil {
			s.log.Info("prewarm item skipped", "index", i, "err", err.Error())
		}
	}
}

func (s *Source) getOrBuild(ctx context.Context, params Params) (dataframe.DataFrame, error) {
	defer metrics.ObserveStage(StageBuild, time.Now())
	key := stageKey(StageBuild, params, s.builder, "")
	if df, ok := s.lookup(ctx, StageBuild, key); ok {
		return df, nil
	}
	metrics.RecordInvocation(StageBuild)
	df, err := runBuild(ctx, s.builder, params)
	if err != nil {
		return frame.Empty(), wrapHandlerErr(StageBuild, err)
	}
	s.store(ctx, StageBuild, key, df)
	s.log.V(logging.DEBUG).Info("stage complete", "stage", StageBuild, "rows", df.Nrow())
	return df, nil
}

func (s *Source) getOrTransform(ctx context.Context, built dataframe.DataFrame, params Params) (dataframe.DataFrame, error) {
	defer metrics.ObserveStage(StageFilter, time.Now())
	key := stageKey(StageFilter, params, s.transformer, frame.Fingerprint(built))
	if df, ok := s.lookup(ctx, StageFilter, key); ok {
		return df, nil
	}
	metrics.RecordInvocation(StageFilter)
	df, err := runTransform(ctx, s.transformer, built, params)
	if err != nil {
		return frame.Empty(), wrapHandlerErr(StageFilter, err)
	}
	s.store(ctx, StageFilter, key, df)
	s.log.V(logging.DEBUG).Info("stage complete", "stage", StageFilter, "rows", df.Nrow())
	return df, nil
}

// lookup treats every cache failure as a miss.
func (s *Source) lookup(ctx context.Context, stage, key string) (dataframe.DataFrame, bool) {
	df, err := s.backend.Get(ctx, key)
	switch {
	case err == nil:
		metrics.RecordCache(stage, metrics.ResultHit)
		s.log.V(logging.DEBUG).Info("cache HIT", "stage", stage)
		return df, true
	case cache.IsNotFound(err):
		metrics.RecordCache(stage, metrics.ResultMiss)
		s.log.V(logging.DEBUG).Info("cache MISS", "stage", stage)
	default:
		metrics.RecordCache(stage, metrics.ResultError)
		s.log.Info("cache read failed, running stage uncached", "stage", stage, "err", err.Error())
	}
	return frame.Empty(), false
}

func (s *Source) store(ctx context.Context, stage, key string, df dataframe.DataFrame) {
	if err := s.backend.Set(ctx, key, df, s.ttl); err != nil {
		s.log.Info("cache write failed, continuing uncached", "stage", stage, "err", err.Error())
	}
}

func stageKey(stage string, params Params, handler any, upstream string) string {
	key := fmt.Sprintf("%s_%s_%s", stage, params.canonical(), hashing.HandlerID(handler))
	if upstream != "" {
		key += "_" + upstream
	}
	return key
}

func wrapHandlerErr(stage string, err error) error {
	if errs.IsPipeline(err) {
		return err
	}
	return errs.DataLoad(stage+" stage", err)
}

func (s *Source) derive(opts ...Option) *Source {
	d := &Source{
		builder:     s.builder,
		transformer: s.transformer,
		classify:    s.classify,
		backend:     s.backend,
		descriptor:  s.descriptor,
		registry:    s.registry,
		ttl:         s.ttl,
		log:         s.log,
		current:     Params{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// WithBuilder returns a source with b as builder, sharing this source's cache.
func (s *Source) WithBuilder(b Builder) *Source {
	return s.derive(WithBuilder(b))
}

// WithBuildFunc returns a source building with fn, sharing this source's cache.
func (s *Source) WithBuildFunc(fn func(ctx context.Context, params Params) (dataframe.DataFrame, error), opts ...FuncOption) *Source {
	return s.derive(WithBuildFunc(fn, opts...))
}

// WithTransformer returns a source with t replacing the transformer, sharing
// this source's cache and builder.
func (s *Source) WithTransformer(t Transformer) *Source {
	return s.derive(WithTransformer(t))
}

// WithTransformFunc returns a source whose transformer runs the current one
// and then fn.
func (s *Source) WithTransformFunc(fn func(df dataframe.DataFrame) (dataframe.DataFrame, error), opts ...FuncOption) *Source {
	return s.derive(WithTransformer(Chain(s.transformer, FrameFunc(fn, opts...))))
}
