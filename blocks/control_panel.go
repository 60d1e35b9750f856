package blocks

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/go-gota/gota/dataframe"
	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cast"

	"github.com/jask/dashlego/core/errs"
	"github.com/jask/dashlego/core/pipeline"
	"github.com/jask/dashlego/core/state"
	"github.com/jask/dashlego/widgets"
)

// Initializer derives starting control values from the unfiltered frame.
type Initializer func(df dataframe.DataFrame) map[string]any

// ControlPanel publishes one state per control. The state id of control
// name is "<block id>-<name>" and its value reaches subscribers under the
// control's DepParam when set.
type ControlPanel struct {
	Base
	items []Control
	init  Initializer

	mu     sync.Mutex
	values map[string]any
	focus  int
}

func NewControlPanel(title string, src Source, controls []Control, init Initializer, opts ...Option) (*ControlPanel, error) {
	if len(controls) == 0 {
		return nil, errs.Configurationf("new control panel", "at least one control is required")
	}
	p := &ControlPanel{items: controls, init: init, values: make(map[string]any, len(controls))}
	base, err := newBase("controls", title, src, p, opts)
	if err != nil {
		return nil, err
	}
	for _, c := range controls {
		if c.Name == "" || strings.Contains(c.Name, "-") {
			return nil, errs.Configurationf("new control panel", "control name %q must be non-empty and contain no dash", c.Name)
		}
		p.values[c.Name] = c.Value
	}
	p.Base = base
	return p, nil
}

// StateID is the state the named control publishes.
func (p *ControlPanel) StateID(name string) string { return p.id + "-" + name }

// Items returns the panel's controls with their current values.
func (p *ControlPanel) Items() []Control {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Control, len(p.items))
	for i, c := range p.items {
		c.Value = p.values[c.Name]
		out[i] = c
	}
	return out
}

// Value returns the current value of the named control.
func (p *ControlPanel) Value(name string) any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.values[name]
}

// Register publishes every control and seeds the router with the current
// values, running the initializer first when there is one. Subscriptions of
// the panel itself are registered too.
func (p *ControlPanel) Register(r *state.Router) error {
	p.initialize(context.Background())
	for _, c := range p.items {
		var opts []state.PublisherOption
		if c.DepParam != "" {
			opts = append(opts, state.WithDepParam(c.DepParam))
		}
		if err := r.RegisterPublisher(p.StateID(c.Name), p.StateID(c.Name), "value", opts...); err != nil {
			return err
		}
		if err := r.SetInitialValue(p.StateID(c.Name), p.Value(c.Name)); err != nil {
			return err
		}
	}
	return p.Base.Register(r)
}

func (p *ControlPanel) initialize(ctx context.Context) {
	if p.init == nil || p.source == nil {
		return
	}
	df, err := p.source.GetProcessedData(ctx, pipeline.Params{})
	if err != nil {
		p.log.Error(err, "control initializer skipped")
		return
	}
	if df.Nrow() == 0 {
		p.log.Info("empty data for control initializer")
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, v := range p.init(df) {
		if _, ok := p.values[name]; ok {
			p.values[name] = v
		}
	}
}

// Select sets the named control and publishes it.
func (p *ControlPanel) Select(ctx context.Context, r *state.Router, name string, value any) ([]state.Update, error) {
	p.mu.Lock()
	if _, ok := p.values[name]; !ok {
		p.mu.Unlock()
		return nil, errs.Statef("select", "control panel %s has no control %q", p.id, name)
	}
	p.values[name] = value
	p.mu.Unlock()
	return r.Publish(ctx, p.StateID(name), value)
}

// Cycle moves the focused control by delta steps through its options and
// publishes the result. Controls without options are left alone.
func (p *ControlPanel) Cycle(ctx context.Context, r *state.Router, delta int) ([]state.Update, error) {
	p.mu.Lock()
	c := p.items[p.focus]
	current := p.values[c.Name]
	p.mu.Unlock()
	if len(c.Options) == 0 {
		return nil, nil
	}
	i := slices.IndexFunc(c.Options, func(o any) bool { return cmp.Equal(o, current) })
	n := len(c.Options)
	next := c.Options[((i+delta)%n+n)%n]
	return p.Select(ctx, r, c.Name, next)
}

// Focus moves the focused control by delta, wrapping.
func (p *ControlPanel) Focus(delta int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.items)
	p.focus = ((p.focus+delta)%n + n) % n
}

// InitialValues of a panel are its controls' values keyed by state id.
func (p *ControlPanel) InitialValues(r *state.Router) map[string]any {
	out := p.Base.InitialValues(r)
	for _, c := range p.items {
		out[p.StateID(c.Name)] = p.Value(c.Name)
	}
	return out
}

// Render draws the controls; the panel never loads data to render.
func (p *ControlPanel) Render(_ context.Context, _ map[string]any) (widgets.Widget, error) {
	body, err := p.draw(dataframe.DataFrame{}, nil)
	if err != nil {
		return nil, err
	}
	return widgets.Panel{Title: p.title, Body: body}, nil
}

func (p *ControlPanel) draw(dataframe.DataFrame, map[string]any) (widgets.Widget, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	items := make([]string, len(p.items))
	for i, c := range p.items {
		label := c.Label
		if label == "" {
			label = c.Name
		}
		pos := ""
		if len(c.Options) > 0 {
			v := p.values[c.Name]
			idx := slices.IndexFunc(c.Options, func(o any) bool { return cmp.Equal(o, v) })
			pos = fmt.Sprintf("  (%d/%d)", idx+1, len(c.Options))
		}
		items[i] = fmt.Sprintf("%s: %s%s", label, cast.ToString(p.values[c.Name]), pos)
	}
	return widgets.List{Items: items, Selected: p.focus}, nil
}
