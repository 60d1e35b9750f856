package dashfile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-logr/logr"

	"github.com/jask/dashlego/blocks"
	"github.com/jask/dashlego/core/errs"
	"github.com/jask/dashlego/core/state"
	"github.com/jask/dashlego/widgets"
)

// Page is a built dashboard. Panel is nil when the definition has no
// controls; otherwise it is also Blocks[0].
type Page struct {
	Title   string
	Columns int
	Panel   *blocks.ControlPanel
	Blocks  []blocks.Block
	Keys    map[string][]string
}

// Build turns def into blocks reading from src.
func Build(def Definition, src blocks.Source, log logr.Logger) (*Page, error) {
	page := &Page{Title: def.Title, Columns: def.Columns, Keys: def.Keys}
	if len(def.Controls) > 0 {
		panel, err := blocks.NewControlPanel("Filters", src, controls(def.Controls), nil,
			blocks.WithID("filters"), blocks.WithLogger(log))
		if err != nil {
			return nil, err
		}
		page.Panel = panel
		page.Blocks = append(page.Blocks, panel)
	}
	for _, bd := range def.Blocks {
		b, err := page.block(bd, src, log)
		if err != nil {
			return nil, errs.Configuration("build dashboard", fmt.Errorf("block %q: %w", bd.Title, err))
		}
		page.Blocks = append(page.Blocks, b)
	}
	return page, nil
}

// Register wires every block into r and computes the bindings.
func (p *Page) Register(r *state.Router) ([]*state.Binding, error) {
	targets := make([]state.Block, len(p.Blocks))
	for i, b := range p.Blocks {
		if err := b.Register(r); err != nil {
			return nil, err
		}
		targets[i] = b
	}
	return r.Bindings(targets...)
}

func (p *Page) block(bd BlockDef, src blocks.Source, log logr.Logger) (blocks.Block, error) {
	opts := []blocks.Option{blocks.WithLogger(log)}
	if bd.ID != "" {
		opts = append(opts, blocks.WithID(bd.ID))
	}
	if len(bd.Controls) > 0 {
		opts = append(opts, blocks.WithControls(controls(bd.Controls)...))
	}
	if p.Panel != nil {
		ids := make([]string, len(bd.Subscribes))
		for i, name := range bd.Subscribes {
			ids[i] = p.Panel.StateID(name)
		}
		opts = append(opts, blocks.SubscribesTo(ids...))
	}

	switch bd.Kind {
	case "kpi":
		metrics := make([]blocks.Metric, len(bd.Metrics))
		for i, md := range bd.Metrics {
			agg, err := blocks.ParseAgg(md.Agg)
			if err != nil {
				return nil, err
			}
			format, err := formatter(md.Format)
			if err != nil {
				return nil, err
			}
			metrics[i] = blocks.Metric{Title: md.Title, Column: md.Column, Agg: agg, Color: md.Color, Format: format}
		}
		return blocks.NewKPI(bd.Title, src, metrics, opts...)
	case "chart":
		agg, err := blocks.ParseAgg(bd.Agg)
		if err != nil {
			return nil, err
		}
		spec := blocks.ChartSpec{Kind: blocks.ChartKind(bd.Chart), X: bd.X, Y: bd.Y, Agg: agg, Bins: bd.Bins, Limit: bd.Limit}
		return blocks.NewChart(bd.Title, src, spec, opts...)
	case "table":
		spec := blocks.TableSpec{Columns: bd.Columns, SortBy: bd.SortBy, Desc: bd.Desc, Limit: bd.Limit}
		return blocks.NewTable(bd.Title, src, spec, opts...)
	case "text":
		if !strings.Contains(bd.Body, "{rows}") {
			return blocks.StaticText(bd.Title, bd.Body, opts...)
		}
		body := bd.Body
		return blocks.NewText(bd.Title, src, func(df dataframe.DataFrame, _ map[string]any) (string, error) {
			return strings.ReplaceAll(body, "{rows}", strconv.Itoa(df.Nrow())), nil
		}, opts...)
	}
	return nil, fmt.Errorf("unknown kind %q", bd.Kind)
}

func controls(defs []ControlDef) []blocks.Control {
	out := make([]blocks.Control, len(defs))
	for i, c := range defs {
		out[i] = blocks.Control{
			Name:     strings.TrimSpace(c.Name),
			Label:    c.Label,
			Options:  c.Options,
			Value:    c.Value,
			DepParam: c.Param,
		}
	}
	return out
}

func formatter(name string) (func(float64) string, error) {
	switch name {
	case "":
		return nil, nil
	case "currency":
		return func(v float64) string { return "$" + widgets.FormatNumber(v) }, nil
	case "percent":
		return func(v float64) string { return widgets.FormatNumber(v) + "%" }, nil
	}
	return nil, errs.Configurationf("metric format", "unknown format %q", name)
}
