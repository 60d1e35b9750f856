// Package errs defines the error kinds shared by the pipeline, cache and state packages.
package errs

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindDataLoad
	KindTransform
	KindCache
	KindConfiguration
	KindState
)

func (k Kind) String() string {
	switch k {
	case KindDataLoad:
		return "data load"
	case KindTransform:
		return "transform"
	case KindCache:
		return "cache"
	case KindConfiguration:
		return "configuration"
	case KindState:
		return "state"
	default:
		return "unknown"
	}
}

// Error carries a kind, the failing operation and the cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op == "" && e.Err == nil:
		return e.Kind.String() + " error"
	case e.Err == nil:
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	case e.Op == "":
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
// Transform errors are also data load errors.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Op != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind || (t.Kind == KindDataLoad && e.Kind == KindTransform)
}

// Sentinels for errors.Is.
var (
	ErrDataLoad      = &Error{Kind: KindDataLoad}
	ErrTransform     = &Error{Kind: KindTransform}
	ErrCache         = &Error{Kind: KindCache}
	ErrConfiguration = &Error{Kind: KindConfiguration}
	ErrState         = &Error{Kind: KindState}
)

func newError(kind Kind, op string, err error) error {
	if err != nil {
		err = pkgerrors.WithStack(err)
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func DataLoad(op string, err error) error      { return newError(KindDataLoad, op, err) }
func Transform(op string, err error) error     { return newError(KindTransform, op, err) }
func Cache(op string, err error) error         { return newError(KindCache, op, err) }
func Configuration(op string, err error) error { return newError(KindConfiguration, op, err) }
func State(op string, err error) error         { return newError(KindState, op, err) }

// Statef builds a State error from a format string.
func Statef(op, format string, args ...any) error {
	return State(op, fmt.Errorf(format, args...))
}

// Configurationf builds a Configuration error from a format string.
func Configurationf(op, format string, args ...any) error {
	return Configuration(op, fmt.Errorf(format, args...))
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsPipeline reports whether err is already one of the recognized kinds
// and must be propagated without further wrapping.
func IsPipeline(err error) bool {
	return KindOf(err) != KindUnknown
}
