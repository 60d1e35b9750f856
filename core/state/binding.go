package state

import (
	"cmp"
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"strings"

	"github.com/jask/dashlego/core/errs"
	"github.com/jask/dashlego/internal/logging"
	"github.com/jask/dashlego/internal/metrics"
)

// Control is an input embedded in a block, such as a dropdown rendered
// inside a chart. Its short name is the last dash-separated segment of
// ComponentID.
type Control struct {
	ComponentID string
	Prop        string
	DepParam    string
	Value       any
}

// Name is the control's short logical name.
func (c Control) Name() string { return shortName(c.ComponentID) }

// Block is anything that owns one output target.
type Block interface {
	BlockID() string
	OutputTarget() Target
}

// ControlBlock is a block with embedded controls. It is bound once, with its
// external subscriptions and its own controls feeding UpdateFromControls.
type ControlBlock interface {
	Block
	Controls() []Control
	UpdateFromControls(ctx context.Context, values map[string]any) (any, error)
}

// DuplicateOutputAllower lets a block share its output target.
type DuplicateOutputAllower interface {
	AllowDuplicateOutput() bool
}

// FallbackProvider supplies the value shown when a block's update fails.
type FallbackProvider interface {
	Fallback(err error) any
}

// Binding is one merged invocation: a set of inputs feeding one output.
// Inputs are the external States followed by the block's own Controls.
type Binding struct {
	Output   Target
	States   []string
	Controls []Control
	Block    Block

	fn     Callback
	router *Router
}

func (b *Binding) hasState(id string) bool { return slices.Contains(b.States, id) }

func (b *Binding) hasControl(componentID string) bool {
	return slices.ContainsFunc(b.Controls, func(c Control) bool { return c.ComponentID == componentID })
}

// Invoke runs the binding with raw input values in input order. Values map
// to state ids and control names, keys are normalized, and the callback is
// called once with the resulting map. Missing trailing values are omitted.
// A callback error or panic is logged and turned into the fallback value.
func (b *Binding) Invoke(ctx context.Context, values ...any) Update {
	r := b.router
	log := r.log.WithValues("output", b.Output.String())

	merged := make(map[string]any, len(values))
	idx := 0
	for _, id := range b.States {
		if idx >= len(values) {
			log.Info("no value for state, omitting it", "state", id)
		} else {
			merged[id] = values[idx]
		}
		idx++
	}
	for _, c := range b.Controls {
		if idx >= len(values) {
			log.Info("no value for control, omitting it", "control", c.Name())
		} else {
			merged[c.Name()] = values[idx]
		}
		idx++
	}

	normalized := r.normalize(merged, b)
	log.V(logging.DEBUG).Info("merged invocation", "keys", sortedKeys(normalized))

	out, err := b.call(ctx, normalized)
	if err != nil {
		log.Error(err, "subscriber failed, using fallback")
		label := b.Output.String()
		if len(b.States) > 0 {
			label = b.States[0]
		}
		metrics.RecordSubscriberFailure(label)
		return Update{Output: b.Output, Value: b.fallback(err), Err: err}
	}
	return Update{Output: b.Output, Value: out}
}

func (b *Binding) call(ctx context.Context, values map[string]any) (out any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errs.State("invoke "+b.Output.String(), fmt.Errorf("panic: %v\n%s", p, debug.Stack()))
		}
	}()
	return b.fn(ctx, values)
}

func (b *Binding) fallback(err error) any {
	if fp, ok := b.Block.(FallbackProvider); ok {
		return fp.Fallback(err)
	}
	return nil
}

// normalize rewrites keys for the block's handler: subscribed states go to
// their dep param name, embedded controls go to their dep param name or
// short name, anything else is kept. Keys are applied in precedence order,
// so when two keys land on the same name the block's own control wins.
func (r *Router) normalize(values map[string]any, b *Binding) map[string]any {
	r.mu.Lock()
	deps := make(map[string]string, len(b.States))
	for _, id := range b.States {
		if p, ok := r.publishers[id]; ok && p.depParam != "" {
			deps[id] = p.depParam
		}
	}
	r.mu.Unlock()

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(x, y string) int {
		if c := cmp.Compare(b.precedence(x), b.precedence(y)); c != 0 {
			return c
		}
		return strings.Compare(x, y)
	})

	out := make(map[string]any, len(values))
	for _, key := range keys {
		final := key
		if b.hasState(key) {
			if dep, ok := deps[key]; ok {
				final = dep
			}
		} else if i := b.controlIndex(key); i >= 0 {
			c := b.Controls[i]
			final = c.Name()
			if c.DepParam != "" {
				final = c.DepParam
			}
		}
		if final != key {
			r.log.V(logging.TRACE).Info("normalized key", "from", key, "to", final)
		}
		if _, ok := out[final]; ok {
			r.log.V(logging.DEBUG).Info("key overwritten during normalization", "key", final, "by", key)
		}
		out[final] = values[key]
	}
	return out
}

// precedence orders raw keys for normalize: unknown keys, then states, then
// controls.
func (b *Binding) precedence(key string) int {
	if i := slices.Index(b.States, key); i >= 0 {
		return 1 + i
	}
	if i := b.controlIndex(key); i >= 0 {
		return 1 + len(b.States) + i
	}
	return 0
}

func (b *Binding) controlIndex(key string) int {
	short := shortName(key)
	return slices.IndexFunc(b.Controls, func(c Control) bool { return c.Name() == short })
}

// Bindings generates the merged invocations for the current graph and
// keeps them for Publish and Fire. Blocks with embedded controls get one
// binding that also carries their external subscriptions. Every other
// output gets one binding over all states it subscribes to, using the
// first registered callback. States without a publisher are skipped.
// Outputs already bound are skipped until ClearRegisteredOutputs.
func (r *Router) Bindings(blocks ...Block) ([]*Binding, error) {
	if err := validateOutputs(blocks); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	type group struct {
		states []string
		fn     Callback
	}
	groups := make(map[Target]*group)
	var outputs []Target
	for _, id := range r.order {
		if _, ok := r.publishers[id]; !ok {
			r.log.V(logging.DEBUG).Info("skipping state without publisher", "state", id)
			continue
		}
		for _, s := range r.subscribers[id] {
			g, ok := groups[s.target]
			if !ok {
				g = &group{fn: s.cb}
				groups[s.target] = g
				outputs = append(outputs, s.target)
			}
			if !slices.Contains(g.states, id) {
				g.states = append(g.states, id)
			}
		}
	}

	byOutput := make(map[Target]Block, len(blocks))
	for _, blk := range blocks {
		byOutput[blk.OutputTarget()] = blk
	}

	var created []*Binding
	add := func(b *Binding) {
		if _, ok := r.registered[b.Output]; ok {
			r.log.Info("output already bound, skipping", "output", b.Output.String())
			return
		}
		r.registered[b.Output] = struct{}{}
		r.bindings = append(r.bindings, b)
		created = append(created, b)
		r.log.V(logging.VERBOSE).Info("binding created", "output", b.Output.String(),
			"states", len(b.States), "controls", len(b.Controls))
	}

	for _, blk := range blocks {
		cb, ok := blk.(ControlBlock)
		if !ok || len(cb.Controls()) == 0 {
			continue
		}
		var states []string
		if g, ok := groups[blk.OutputTarget()]; ok {
			states = g.states
		}
		add(&Binding{
			Output:   blk.OutputTarget(),
			States:   states,
			Controls: cb.Controls(),
			Block:    blk,
			fn:       cb.UpdateFromControls,
			router:   r,
		})
	}

	for _, out := range outputs {
		blk := byOutput[out]
		if cb, ok := blk.(ControlBlock); ok && len(cb.Controls()) > 0 {
			continue
		}
		g := groups[out]
		add(&Binding{Output: out, States: g.states, Block: blk, fn: g.fn, router: r})
	}
	return created, nil
}

func allowsDuplicate(b Block) bool {
	d, ok := b.(DuplicateOutputAllower)
	return ok && d.AllowDuplicateOutput()
}

// validateOutputs rejects two blocks writing the same target unless one of
// them allows it.
func validateOutputs(blocks []Block) error {
	seen := make(map[Target]Block, len(blocks))
	var conflicts []string
	for _, b := range blocks {
		t := b.OutputTarget()
		prev, ok := seen[t]
		if !ok {
			seen[t] = b
			continue
		}
		if allowsDuplicate(prev) || allowsDuplicate(b) {
			continue
		}
		conflicts = append(conflicts, fmt.Sprintf("%s used by %q and %q", t, prev.BlockID(), b.BlockID()))
	}
	if len(conflicts) > 0 {
		return errs.Statef("bind", "duplicate output targets: %s", strings.Join(conflicts, "; "))
	}
	return nil
}
