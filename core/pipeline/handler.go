package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/go-gota/gota/dataframe"
	"github.com/google/uuid"

	"github.com/jask/dashlego/core/frame"
	"github.com/jask/dashlego/core/hashing"
)

// Builder produces the complete dataset for the build-stage parameters:
// load, feature engineering and aggregation.
type Builder interface {
	Build(ctx context.Context, params Params) (dataframe.DataFrame, error)
}

// Transformer subsets or reshapes a built dataset using the filter-stage parameters.
type Transformer interface {
	Transform(ctx context.Context, df dataframe.DataFrame, params Params) (dataframe.DataFrame, error)
}

// Resetter is implemented by stateful handlers. ResetMutableState runs
// before every Build or Transform call so state does not accumulate.
type Resetter interface {
	ResetMutableState()
}

// Result is the outcome of an asynchronous build.
type Result struct {
	Frame dataframe.DataFrame
	Err   error
}

// AsyncBuilder is a natively asynchronous builder. AsyncSource waits on
// BuildAsync directly instead of dispatching Build to its executor.
type AsyncBuilder interface {
	Builder
	BuildAsync(ctx context.Context, params Params) <-chan Result
}

var errFrame = errors.New("handler returned a frame with an error")

// runBuild resets b and calls Build with its own copy of params.
func runBuild(ctx context.Context, b Builder, params Params) (dataframe.DataFrame, error) {
	if r, ok := b.(Resetter); ok {
		r.ResetMutableState()
	}
	df, err := b.Build(ctx, params.Clone())
	return checkFrame(df, err)
}

func runTransform(ctx context.Context, t Transformer, df dataframe.DataFrame, params Params) (dataframe.DataFrame, error) {
	if r, ok := t.(Resetter); ok {
		r.ResetMutableState()
	}
	out, err := t.Transform(ctx, df, params.Clone())
	return checkFrame(out, err)
}

func checkFrame(df dataframe.DataFrame, err error) (dataframe.DataFrame, error) {
	if err != nil {
		return frame.Empty(), err
	}
	if df.Err != nil {
		return frame.Empty(), errors.Join(errFrame, df.Err)
	}
	return df, nil
}

// NopBuilder builds an empty frame.
type NopBuilder struct{}

func (NopBuilder) Build(context.Context, Params) (dataframe.DataFrame, error) {
	return frame.Empty(), nil
}

// Identity returns its input unchanged.
type Identity struct{}

func (Identity) Transform(_ context.Context, df dataframe.DataFrame, _ Params) (dataframe.DataFrame, error) {
	return df, nil
}

// identity carries the cache identity of a wrapped function.
type identity struct {
	hash string
	ok   bool
}

// FuncOption configures a function handler.
type FuncOption func(*identity)

// WithIdentity pins the handler's identity to spec instead of reflecting on
// the function. Use it where source files are not shipped with the binary.
func WithIdentity(spec hashing.Spec) FuncOption {
	return func(id *identity) {
		id.hash, id.ok = spec.Hash(), true
	}
}

// WithTag pins the handler's identity to a caller chosen stable string.
// A closure needs one to share cache entries with other wrappers of it.
func WithTag(tag string) FuncOption {
	return WithIdentity(hashing.Spec{Name: tag})
}

// newIdentity hashes fn by its declaration when that is stable. Closures,
// method values and functions whose source is unavailable get an identity
// unique to this wrapper unless one was pinned with WithIdentity or WithTag.
func newIdentity(fn any, opts []FuncOption) identity {
	var id identity
	for _, opt := range opts {
		opt(&id)
	}
	if id.ok {
		return id
	}
	if spec, ok := hashing.SpecOf(fn); ok && !spec.Captures() {
		return identity{hash: spec.Hash(), ok: true}
	}
	return identity{hash: "instance-" + uuid.NewString(), ok: true}
}

func (id identity) FunctionHash() (string, bool) { return id.hash, id.ok }

// LambdaBuilder wraps a plain build function.
type LambdaBuilder struct {
	identity
	fn func(ctx context.Context, params Params) (dataframe.DataFrame, error)
}

// BuildFunc wraps fn as a Builder.
func BuildFunc(fn func(ctx context.Context, params Params) (dataframe.DataFrame, error), opts ...FuncOption) *LambdaBuilder {
	return &LambdaBuilder{identity: newIdentity(fn, opts), fn: fn}
}

func (b *LambdaBuilder) Build(ctx context.Context, params Params) (dataframe.DataFrame, error) {
	return b.fn(ctx, params)
}

// LambdaAsyncBuilder wraps a build function that is run on its own goroutine
// rather than on the source's executor.
type LambdaAsyncBuilder struct {
	LambdaBuilder
}

// AsyncBuildFunc wraps fn as an AsyncBuilder.
func AsyncBuildFunc(fn func(ctx context.Context, params Params) (dataframe.DataFrame, error), opts ...FuncOption) *LambdaAsyncBuilder {
	return &LambdaAsyncBuilder{LambdaBuilder{identity: newIdentity(fn, opts), fn: fn}}
}

func (b *LambdaAsyncBuilder) BuildAsync(ctx context.Context, params Params) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		df, err := b.fn(ctx, params)
		out <- Result{Frame: df, Err: err}
	}()
	return out
}

// LambdaTransformer wraps a plain transform function.
type LambdaTransformer struct {
	identity
	fn func(ctx context.Context, df dataframe.DataFrame, params Params) (dataframe.DataFrame, error)
}

// TransformFunc wraps fn as a Transformer.
func TransformFunc(fn func(ctx context.Context, df dataframe.DataFrame, params Params) (dataframe.DataFrame, error), opts ...FuncOption) *LambdaTransformer {
	return &LambdaTransformer{identity: newIdentity(fn, opts), fn: fn}
}

// FrameFunc wraps a params-free function as a Transformer, the usual shape
// of a block specific reshaping step.
func FrameFunc(fn func(df dataframe.DataFrame) (dataframe.DataFrame, error), opts ...FuncOption) *LambdaTransformer {
	return &LambdaTransformer{
		identity: newIdentity(fn, opts),
		fn: func(_ context.Context, df dataframe.DataFrame, _ Params) (dataframe.DataFrame, error) {
			return fn(df)
		},
	}
}

func (t *LambdaTransformer) Transform(ctx context.Context, df dataframe.DataFrame, params Params) (dataframe.DataFrame, error) {
	return t.fn(ctx, df, params)
}

// Chained applies First with the filter params, then Second with none.
type Chained struct {
	First  Transformer
	Second Transformer
}

// Chain composes two transformers, global filter first.
func Chain(first, second Transformer) *Chained {
	return &Chained{First: first, Second: second}
}

func (c *Chained) Transform(ctx context.Context, df dataframe.DataFrame, params Params) (dataframe.DataFrame, error) {
	mid, err := runTransform(ctx, c.First, df, params)
	if err != nil {
		return frame.Empty(), err
	}
	return runTransform(ctx, c.Second, mid, Params{})
}

// FunctionHash combines the identities of both steps.
func (c *Chained) FunctionHash() (string, bool) {
	sum := sha256.Sum256([]byte(hashing.HandlerID(c.First) + "->" + hashing.HandlerID(c.Second)))
	return hex.EncodeToString(sum[:]), true
}
