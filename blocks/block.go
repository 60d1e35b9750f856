// Package blocks provides the dashboard building blocks: KPI rows, charts,
// tables, text and control panels. A block pulls its frame from a pipeline
// source, subscribes to router states, and renders a widget.
package blocks

import (
	"context"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/jask/dashlego/core/errs"
	"github.com/jask/dashlego/core/frame"
	"github.com/jask/dashlego/core/pipeline"
	"github.com/jask/dashlego/core/state"
	"github.com/jask/dashlego/internal/logging"
	"github.com/jask/dashlego/widgets"
)

// OutputProp is the property every block renders into.
const OutputProp = "view"

var idSpace = uuid.MustParse("6f1c1f2e-5a0e-4c55-9d7b-2b8d8f1f0a11")

// NewID derives a stable block id from the block kind and title.
func NewID(kind, title string) string {
	return kind + "_" + uuid.NewSHA1(idSpace, []byte(kind+"/"+title)).String()[:8]
}

// Source is where a block gets its data. Both pipeline.Source and
// pipeline.AsyncSource satisfy it; an AsyncSource builds on its executor.
type Source interface {
	GetProcessedData(ctx context.Context, params pipeline.Params) (dataframe.DataFrame, error)
}

// Block is what a page lays out and drives.
type Block interface {
	state.Block
	Title() string
	Register(r *state.Router) error
	InitialValues(r *state.Router) map[string]any
	Render(ctx context.Context, values map[string]any) (widgets.Widget, error)
}

// Control is a selector embedded in a block. Values of controls with a
// DepParam go to the pipeline under that name; the rest only change how the
// block draws.
type Control struct {
	Name     string
	Label    string
	Options  []any
	Value    any
	DepParam string
}

// Option configures a block.
type Option func(*Base)

// WithID overrides the derived block id.
func WithID(id string) Option { return func(b *Base) { b.id = id } }

// SubscribesTo makes the block re-render when any of the states change.
func SubscribesTo(states ...string) Option {
	return func(b *Base) { b.subscribes = append(b.subscribes, states...) }
}

// WithControls embeds selectors in the block.
func WithControls(controls ...Control) Option {
	return func(b *Base) { b.controls = append(b.controls, controls...) }
}

// AllowDuplicateOutput lets the block share its output with another block.
func AllowDuplicateOutput() Option { return func(b *Base) { b.allowDup = true } }

// WithLogger sets the block's logger.
func WithLogger(log logr.Logger) Option { return func(b *Base) { b.log = log } }

type drawer interface {
	draw(df dataframe.DataFrame, view map[string]any) (widgets.Widget, error)
}

// Base carries what every block shares: identity, source, subscriptions,
// embedded controls and the render path.
type Base struct {
	id         string
	title      string
	source     Source
	subscribes []string
	controls   []Control
	allowDup   bool
	log        logr.Logger
	drawer     drawer
}

func newBase(kind, title string, src Source, d drawer, opts []Option) (Base, error) {
	b := Base{title: title, source: src, drawer: d, log: logr.Discard()}
	for _, opt := range opts {
		opt(&b)
	}
	if b.id == "" {
		b.id = NewID(kind, title)
	}
	seen := make(map[string]bool, len(b.controls))
	for _, c := range b.controls {
		if c.Name == "" || strings.Contains(c.Name, "-") {
			return Base{}, errs.Configurationf("new "+kind, "control name %q must be non-empty and contain no dash", c.Name)
		}
		if seen[c.Name] {
			return Base{}, errs.Configurationf("new "+kind, "duplicate control %q", c.Name)
		}
		seen[c.Name] = true
	}
	b.log = b.log.WithValues("block", b.id)
	return b, nil
}

func (b *Base) BlockID() string { return b.id }

func (b *Base) Title() string { return b.title }

func (b *Base) OutputTarget() state.Target { return state.Target{Component: b.id, Prop: OutputProp} }

func (b *Base) AllowDuplicateOutput() bool { return b.allowDup }

// ControlID is the component id of the embedded control name.
func (b *Base) ControlID(name string) string { return b.id + "-" + name }

// EmbeddedControls returns the block's selectors.
func (b *Base) EmbeddedControls() []Control { return append([]Control(nil), b.controls...) }

// Controls exposes the embedded selectors to the router.
func (b *Base) Controls() []state.Control {
	out := make([]state.Control, len(b.controls))
	for i, c := range b.controls {
		out[i] = state.Control{ComponentID: b.ControlID(c.Name), Prop: "value", DepParam: c.DepParam, Value: c.Value}
	}
	return out
}

// Register subscribes the block's output to each of its states.
func (b *Base) Register(r *state.Router) error {
	for _, id := range b.subscribes {
		if err := r.RegisterSubscriber(id, b.id, OutputProp, b.UpdateFromControls); err != nil {
			return err
		}
	}
	return nil
}

// InitialValues assembles the values of the first render from the router's
// current state and the controls' defaults, keyed the way a binding would.
func (b *Base) InitialValues(r *state.Router) map[string]any {
	current := r.InitialValues()
	out := make(map[string]any, len(b.subscribes)+len(b.controls))
	for _, id := range b.subscribes {
		out[r.DepParam(id)] = current[id]
	}
	for _, c := range b.controls {
		key := c.Name
		if c.DepParam != "" {
			key = c.DepParam
		}
		out[key] = c.Value
	}
	return out
}

// UpdateFromControls is the router callback: it re-renders with values.
func (b *Base) UpdateFromControls(ctx context.Context, values map[string]any) (any, error) {
	return b.Render(ctx, values)
}

// Fallback is shown in place of the block when an update fails.
func (b *Base) Fallback(err error) any {
	return widgets.Panel{Title: b.title, Body: widgets.Text("error: " + err.Error()), Failed: true}
}

// Render loads the frame for values and draws the block.
func (b *Base) Render(ctx context.Context, values map[string]any) (widgets.Widget, error) {
	params, view := b.split(values)
	df := frame.Empty()
	if b.source != nil {
		var err error
		df, err = b.source.GetProcessedData(ctx, params)
		if err != nil {
			return nil, err
		}
	}
	body, err := b.drawer.draw(df, view)
	if err != nil {
		return nil, errs.DataLoad("render "+b.id, err)
	}
	b.log.V(logging.DEBUG).Info("rendered", "rows", df.Nrow(), "params", params.Keys())
	return widgets.Panel{Title: b.title, Body: body}, nil
}

// split separates pipeline params from view-only control values. Plain
// controls are view options; everything else feeds the pipeline.
func (b *Base) split(values map[string]any) (pipeline.Params, map[string]any) {
	params := pipeline.Params{}
	view := make(map[string]any)
	for k, v := range values {
		if b.isViewControl(k) {
			view[k] = v
			continue
		}
		params[k] = v
	}
	for _, c := range b.controls {
		if _, ok := view[c.Name]; !ok && c.DepParam == "" {
			view[c.Name] = c.Value
		}
	}
	return params, view
}

func (b *Base) isViewControl(key string) bool {
	for _, c := range b.controls {
		if c.DepParam == "" && c.Name == key {
			return true
		}
	}
	return false
}
