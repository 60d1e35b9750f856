// Package state wires dashboard controls to the blocks that react to them.
//
// A Router holds one publisher per state channel and any number of
// subscribers. Subscribers that write the same output are merged into one
// Binding, which receives every current channel value as a single
// map[string]any keyed by state id (or by the parameter name the publisher
// asked for). A failing subscriber is isolated: its binding yields a fallback
// value and the rest of the graph keeps running.
package state

import (
	"context"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"
	"github.com/go-logr/logr"

	"github.com/jask/dashlego/core/errs"
	"github.com/jask/dashlego/internal/logging"
)

// Target addresses one property of one component.
type Target struct {
	Component string `yaml:"component"`
	Prop      string `yaml:"prop"`
}

func (t Target) String() string { return t.Component + "." + t.Prop }

// Callback computes a new output value from the merged channel values.
type Callback func(ctx context.Context, values map[string]any) (any, error)

type publisher struct {
	target   Target
	depParam string
}

type subscriber struct {
	target Target
	cb     Callback
	code   uintptr
}

// PublisherOption configures a publisher registration.
type PublisherOption func(*publisher)

// WithDepParam delivers the channel's value to subscribers under name instead
// of the state id.
func WithDepParam(name string) PublisherOption {
	return func(p *publisher) { p.depParam = name }
}

// Router is the publisher/subscriber graph of one dashboard page.
type Router struct {
	log logr.Logger

	mu          sync.Mutex
	order       []string
	publishers  map[string]publisher
	subscribers map[string][]subscriber
	values      map[string]any
	controls    map[string]any
	registered  map[Target]struct{}
	bindings    []*Binding
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router's logger.
func WithLogger(log logr.Logger) Option { return func(r *Router) { r.log = log } }

// NewRouter returns an empty router.
func NewRouter(opts ...Option) *Router {
	r := &Router{
		log:         logr.Discard(),
		publishers:  make(map[string]publisher),
		subscribers: make(map[string][]subscriber),
		values:      make(map[string]any),
		controls:    make(map[string]any),
		registered:  make(map[Target]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) touch(stateID string) {
	if _, ok := r.publishers[stateID]; ok {
		return
	}
	if _, ok := r.subscribers[stateID]; ok {
		return
	}
	r.order = append(r.order, stateID)
}

// RegisterPublisher records componentID.prop as the single source of
// stateID. A second publisher for the same state is an error.
func (r *Router) RegisterPublisher(stateID, componentID, prop string, opts ...PublisherOption) error {
	if stateID == "" || componentID == "" {
		return errs.Statef("register publisher", "state id and component id are required")
	}
	p := publisher{target: Target{Component: componentID, Prop: prop}}
	for _, opt := range opts {
		opt(&p)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.publishers[stateID]; ok {
		return errs.Statef("register publisher", "state %q already published by %s", stateID, existing.target)
	}
	r.touch(stateID)
	r.publishers[stateID] = p
	if _, ok := r.values[stateID]; !ok {
		r.values[stateID] = nil
	}
	r.log.V(logging.VERBOSE).Info("publisher registered", "state", stateID, "target", p.target.String(), "depParam", p.depParam)
	return nil
}

// RegisterSubscriber adds cb as a consumer of stateID writing
// componentID.prop. Registering the same state, target and callback twice
// is a no-op.
func (r *Router) RegisterSubscriber(stateID, componentID, prop string, cb Callback) error {
	if stateID == "" || componentID == "" {
		return errs.Statef("register subscriber", "state id and component id are required")
	}
	if cb == nil {
		return errs.Statef("register subscriber", "nil callback for state %q", stateID)
	}
	s := subscriber{
		target: Target{Component: componentID, Prop: prop},
		cb:     cb,
		code:   reflect.ValueOf(cb).Pointer(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.subscribers[stateID] {
		if existing.target == s.target && existing.code == s.code {
			r.log.V(logging.DEBUG).Info("duplicate subscriber ignored", "state", stateID, "target", s.target.String())
			return nil
		}
	}
	r.touch(stateID)
	r.subscribers[stateID] = append(r.subscribers[stateID], s)
	r.log.V(logging.VERBOSE).Info("subscriber registered", "state", stateID, "target", s.target.String(),
		"subscribers", len(r.subscribers[stateID]))
	return nil
}

// SubscriberCount returns the number of distinct subscribers of stateID.
func (r *Router) SubscriberCount(stateID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subscribers[stateID])
}

// States returns every known state id in registration order.
func (r *Router) States() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// InitialValues returns the last known value of every published state,
// nil until the first Publish. States with subscribers only are left out.
// Blocks seed their first render from it.
func (r *Router) InitialValues() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]any, len(r.publishers))
	for _, id := range r.order {
		if _, ok := r.publishers[id]; ok {
			out[id] = r.values[id]
		}
	}
	return out
}

// SetInitialValue seeds the value of a published state without firing.
func (r *Router) SetInitialValue(stateID string, value any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.publishers[stateID]; !ok {
		return r.unknownState("set initial value", stateID)
	}
	r.values[stateID] = value
	return nil
}

// DepParam returns the parameter name stateID is delivered under.
func (r *Router) DepParam(stateID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.publishers[stateID]; ok && p.depParam != "" {
		return p.depParam
	}
	return stateID
}

// Update is the output of one binding after an input changed. Err is set
// when the binding's callback failed and Value holds its fallback.
type Update struct {
	Output Target
	Value  any
	Err    error
}

// Publish records value for stateID and runs every binding that listens
// to it.
func (r *Router) Publish(ctx context.Context, stateID string, value any) ([]Update, error) {
	r.mu.Lock()
	if _, ok := r.publishers[stateID]; !ok {
		err := r.unknownState("publish", stateID)
		r.mu.Unlock()
		return nil, err
	}
	r.values[stateID] = value
	targets := r.bindingsFor(func(b *Binding) bool { return b.hasState(stateID) })
	r.mu.Unlock()

	r.log.V(logging.DEBUG).Info("state published", "state", stateID, "bindings", len(targets))
	return r.run(ctx, targets), nil
}

// Fire records value for an embedded control and runs the bindings of the
// block that owns it.
func (r *Router) Fire(ctx context.Context, componentID string, value any) ([]Update, error) {
	r.mu.Lock()
	targets := r.bindingsFor(func(b *Binding) bool { return b.hasControl(componentID) })
	if len(targets) == 0 {
		r.mu.Unlock()
		return nil, errs.Statef("fire", "no binding owns control %q", componentID)
	}
	r.controls[componentID] = value
	r.mu.Unlock()

	r.log.V(logging.DEBUG).Info("control fired", "control", componentID, "bindings", len(targets))
	return r.run(ctx, targets), nil
}

// Refresh runs every binding with the current values.
func (r *Router) Refresh(ctx context.Context) []Update {
	r.mu.Lock()
	targets := r.bindingsFor(func(*Binding) bool { return true })
	r.mu.Unlock()
	return r.run(ctx, targets)
}

func (r *Router) bindingsFor(match func(*Binding) bool) []*Binding {
	var out []*Binding
	for _, b := range r.bindings {
		if match(b) {
			out = append(out, b)
		}
	}
	return out
}

func (r *Router) run(ctx context.Context, bindings []*Binding) []Update {
	updates := make([]Update, 0, len(bindings))
	for _, b := range bindings {
		updates = append(updates, b.Invoke(ctx, r.currentInputs(b)...))
	}
	return updates
}

func (r *Router) currentInputs(b *Binding) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	in := make([]any, 0, len(b.States)+len(b.Controls))
	for _, id := range b.States {
		in = append(in, r.values[id])
	}
	for _, c := range b.Controls {
		v, ok := r.controls[c.ComponentID]
		if !ok {
			v = c.Value
		}
		in = append(in, v)
	}
	return in
}

// ClearRegisteredOutputs forgets every generated binding so Bindings can be
// called again, for example after a section is rebuilt.
func (r *Router) ClearRegisteredOutputs() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log.Info("clearing registered outputs", "count", len(r.registered))
	clear(r.registered)
	r.bindings = nil
}

func (r *Router) unknownState(op, stateID string) error {
	if s := suggest(stateID, r.order); s != "" {
		return errs.Statef(op, "unknown state %q, did you mean %q?", stateID, s)
	}
	return errs.Statef(op, "unknown state %q", stateID)
}

// suggest returns the closest known id within a small edit distance.
func suggest(id string, known []string) string {
	best, bestDist := "", len(id)/3+2
	for _, k := range known {
		if d := levenshtein.ComputeDistance(id, k); d < bestDist {
			best, bestDist = k, d
		}
	}
	return best
}

// shortName is the last dash-separated segment of a component id.
func shortName(id string) string {
	if i := strings.LastIndex(id, "-"); i >= 0 {
		return id[i+1:]
	}
	return id
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
