// Package dashfile loads dashboard definitions for the dashlego binary.
// Definitions are TOML, or JSON when the file ends in .json.
package dashfile

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-json-experiment/json"

	"github.com/jask/dashlego/core/errs"
)

//go:embed default.toml
var defaultTOML []byte

// Definition is one dashboard: the data it reads, the controls that drive
// it and the blocks it lays out.
type Definition struct {
	Version  int                 `toml:"version" json:"version"`
	Title    string              `toml:"title" json:"title"`
	Columns  int                 `toml:"columns" json:"columns"`
	Source   SourceDef           `toml:"source" json:"source"`
	Controls []ControlDef        `toml:"controls" json:"controls"`
	Blocks   []BlockDef          `toml:"blocks" json:"blocks"`
	Keys     map[string][]string `toml:"keys" json:"keys"`
}

// SourceDef sizes the generated sales data. With Query set the rows are
// written to an in-memory sqlite database and read back through it.
type SourceDef struct {
	Rows    int              `toml:"rows" json:"rows"`
	Seed    int64            `toml:"seed" json:"seed"`
	Query   string           `toml:"query" json:"query"`
	Prewarm []map[string]any `toml:"prewarm" json:"prewarm"`
}

type ControlDef struct {
	Name    string `toml:"name" json:"name"`
	Label   string `toml:"label" json:"label"`
	Options []any  `toml:"options" json:"options"`
	Value   any    `toml:"value" json:"value"`
	Param   string `toml:"param" json:"param"`
}

type MetricDef struct {
	Title  string `toml:"title" json:"title"`
	Column string `toml:"column" json:"column"`
	Agg    string `toml:"agg" json:"agg"`
	Color  string `toml:"color" json:"color"`
	Format string `toml:"format" json:"format"`
}

// BlockDef is a block of any kind; fields that do not apply to Kind are
// ignored.
type BlockDef struct {
	Kind       string       `toml:"kind" json:"kind"`
	ID         string       `toml:"id" json:"id"`
	Title      string       `toml:"title" json:"title"`
	Subscribes []string     `toml:"subscribes" json:"subscribes"`
	Controls   []ControlDef `toml:"controls" json:"controls"`

	Metrics []MetricDef `toml:"metrics" json:"metrics"`

	Chart string `toml:"chart" json:"chart"`
	X     string `toml:"x" json:"x"`
	Y     string `toml:"y" json:"y"`
	Agg   string `toml:"agg" json:"agg"`
	Bins  int    `toml:"bins" json:"bins"`
	Limit int    `toml:"limit" json:"limit"`

	Columns []string `toml:"columns" json:"columns"`
	SortBy  string   `toml:"sort_by" json:"sort_by"`
	Desc    bool     `toml:"desc" json:"desc"`

	Body string `toml:"body" json:"body"`
}

// Format of a definition file.
type Format int

const (
	TOML Format = iota
	JSON
)

// Load reads and validates the definition at path.
func Load(path string) (Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return Definition{}, errs.Configuration("load dashboard", err)
	}
	defer f.Close()
	format := TOML
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = JSON
	}
	def, err := Decode(f, format)
	if err != nil {
		return Definition{}, errs.Configuration("load dashboard", fmt.Errorf("%s: %w", path, err))
	}
	return def, nil
}

// Default is the built-in sales dashboard.
func Default() (Definition, error) {
	return Decode(bytes.NewReader(defaultTOML), TOML)
}

// Decode parses and validates a definition.
func Decode(r io.Reader, format Format) (Definition, error) {
	var def Definition
	switch format {
	case JSON:
		if err := json.UnmarshalRead(r, &def); err != nil {
			return Definition{}, fmt.Errorf("parse json: %w", err)
		}
	default:
		md, err := toml.NewDecoder(r).Decode(&def)
		if err != nil {
			return Definition{}, fmt.Errorf("parse toml: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return Definition{}, fmt.Errorf("unknown field %q", undecoded[0].String())
		}
	}
	if err := def.validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

var blockKinds = map[string]bool{"kpi": true, "chart": true, "table": true, "text": true}

func (d *Definition) validate() error {
	if d.Version == 0 {
		d.Version = 1
	}
	if d.Version != 1 {
		return fmt.Errorf("unsupported version %d", d.Version)
	}
	d.Title = strings.TrimSpace(d.Title)
	if d.Title == "" {
		d.Title = "dashboard"
	}
	if d.Columns <= 0 {
		d.Columns = 2
	}
	if d.Source.Rows <= 0 {
		d.Source.Rows = 500
	}
	controls, err := checkControls("controls", d.Controls)
	if err != nil {
		return err
	}
	if len(d.Blocks) == 0 {
		return fmt.Errorf("at least one block is required")
	}
	for i := range d.Blocks {
		b := &d.Blocks[i]
		b.Kind = strings.ToLower(strings.TrimSpace(b.Kind))
		if !blockKinds[b.Kind] {
			return fmt.Errorf("block %d: unknown kind %q", i, b.Kind)
		}
		if strings.TrimSpace(b.Title) == "" {
			return fmt.Errorf("block %d: title is required", i)
		}
		for _, name := range b.Subscribes {
			if !controls[name] {
				return fmt.Errorf("block %q: subscribes to unknown control %q", b.Title, name)
			}
		}
		if _, err := checkControls("block "+b.Title, b.Controls); err != nil {
			return err
		}
		if b.Kind == "kpi" && len(b.Metrics) == 0 {
			return fmt.Errorf("block %q: kpi needs metrics", b.Title)
		}
	}
	keys, err := mergeKeys(d.Keys, DefaultKeys())
	if err != nil {
		return fmt.Errorf("keys: %w", err)
	}
	d.Keys = keys
	return nil
}

func checkControls(where string, defs []ControlDef) (map[string]bool, error) {
	seen := make(map[string]bool, len(defs))
	for _, c := range defs {
		name := strings.TrimSpace(c.Name)
		if name == "" || strings.Contains(name, "-") {
			return nil, fmt.Errorf("%s: control name %q must be non-empty and contain no dash", where, c.Name)
		}
		if seen[name] {
			return nil, fmt.Errorf("%s: duplicate control %q", where, name)
		}
		seen[name] = true
	}
	return seen, nil
}
