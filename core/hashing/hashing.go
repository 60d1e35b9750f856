// Package hashing derives stable identities for handler functions so cache keys
// survive restarts and are shared by logically identical handlers.
//
// The portable identity is a Spec. FunctionHash fills a Spec by reflection
// (runtime symbol table plus the defining source file) and only works when the
// source tree the binary was built from is still readable.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-json-experiment/json"
)

// Spec is the input of a function hash.
type Spec struct {
	Source   string
	Module   string
	QualName string
	Name     string
	// Bindings are the values the function closes over that change its result,
	// the closest Go analogue of default argument values.
	Bindings map[string]any
}

// Hash digests every field of s. Bindings are serialized with sorted keys.
func (s Spec) Hash() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s", s.Source, s.Module, s.QualName, s.Name, encodeBindings(s.Bindings))
	return hex.EncodeToString(h.Sum(nil))
}

func encodeBindings(b map[string]any) string {
	if len(b) == 0 {
		return "[]"
	}
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteByte('[')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		v, err := json.Marshal(b[k], json.Deterministic(true))
		if err != nil {
			v = []byte(fmt.Sprintf("%#v", b[k]))
		}
		fmt.Fprintf(&sb, "(%q,%s)", k, v)
	}
	sb.WriteByte(']')
	return sb.String()
}

// Captures reports whether the function may carry state that is not in its
// source: function literals ("Outer.func1") and method values ("T.M-fm").
// Two closures from one literal share a Spec whatever they captured.
func (s Spec) Captures() bool {
	if strings.HasSuffix(s.QualName, "-fm") {
		return true
	}
	for _, part := range strings.Split(s.QualName, ".") {
		n, ok := strings.CutPrefix(part, "func")
		if ok && n != "" && strings.Trim(n, "0123456789") == "" {
			return true
		}
	}
	return false
}

// FunctionHash returns the hash of fn's Spec. ok is false when fn is not a
// function or its source cannot be located; callers must then fall back to an
// identity that is not stable across processes.
func FunctionHash(fn any) (string, bool) {
	spec, ok := SpecOf(fn)
	if !ok {
		return "", false
	}
	return spec.Hash(), true
}

// Identifier is implemented by handlers whose cache identity depends on their
// configuration rather than only on their type.
type Identifier interface {
	CacheIdentity() string
}

// FunctionIdentifier is implemented by handlers that wrap a plain function.
type FunctionIdentifier interface {
	FunctionHash() (string, bool)
}

// HandlerID returns the identity a handler contributes to cache keys.
//
// Function wrappers use TypeName_<function hash>, falling back to the wrapper
// address when the hash is unavailable. Other handlers use a digest of their
// concrete type, extended with CacheIdentity when implemented.
func HandlerID(h any) string {
	if h == nil {
		return "nil"
	}
	t := reflect.TypeOf(h)
	name := typeName(t)
	if fi, ok := h.(FunctionIdentifier); ok {
		if sum, ok := fi.FunctionHash(); ok {
			return name + "_" + sum
		}
		return fmt.Sprintf("%s_%p", name, h)
	}
	id := typePath(t)
	if ci, ok := h.(Identifier); ok {
		id += "|" + ci.CacheIdentity()
	}
	sum := sha256.Sum256([]byte(id))
	return name + "_" + hex.EncodeToString(sum[:8])
}

func typeName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return t.String()
	}
	return t.Name()
}

func typePath(t reflect.Type) string {
	prefix := ""
	for t.Kind() == reflect.Pointer {
		prefix += "*"
		t = t.Elem()
	}
	return prefix + t.PkgPath() + "." + t.String()
}
