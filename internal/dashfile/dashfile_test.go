package dashfile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"

	"github.com/jask/dashlego/core/cache"
	"github.com/jask/dashlego/core/errs"
	"github.com/jask/dashlego/core/pipeline"
	"github.com/jask/dashlego/core/state"
	"github.com/jask/dashlego/internal/sample"
	"github.com/jask/dashlego/widgets"
)

func TestDefaultDefinition(t *testing.T) {
	def, err := Default()
	require.NoError(t, err)
	require.Equal(t, "Sales overview", def.Title)
	require.Len(t, def.Controls, 3)
	require.Len(t, def.Blocks, 5)
	require.Equal(t, "build__days", def.Controls[0].Param)
	require.Equal(t, []any{int64(0), int64(7), int64(30), int64(90)}, def.Controls[0].Options)
	require.Equal(t, []map[string]any{{"build__days": int64(30)}, {"build__days": int64(90)}}, def.Source.Prewarm)
	require.Equal(t, DefaultKeys(), def.Keys)
}

func TestDecodeFillsDefaultsAndMergesKeys(t *testing.T) {
	src := `
[[blocks]]
kind = "TEXT"
title = "hi"
body = "hello"

[keys]
refresh = ["F5"]
`
	def, err := Decode(strings.NewReader(src), TOML)
	require.NoError(t, err)
	require.Equal(t, 1, def.Version)
	require.Equal(t, "dashboard", def.Title)
	require.Equal(t, 2, def.Columns)
	require.Equal(t, 500, def.Source.Rows)
	require.Equal(t, "text", def.Blocks[0].Kind)
	require.Equal(t, []string{"f5"}, def.Keys[ActionRefresh])
	require.Equal(t, []string{"q", "ctrl+c"}, def.Keys[ActionQuit])
}

func TestDecodeRejectsInvalidDefinitions(t *testing.T) {
	cases := map[string]string{
		"no blocks":         `title = "x"`,
		"unknown kind":      "[[blocks]]\nkind = \"pie\"\ntitle = \"p\"",
		"missing title":     "[[blocks]]\nkind = \"text\"",
		"unknown control":   "[[blocks]]\nkind = \"text\"\ntitle = \"t\"\nsubscribes = [\"nope\"]",
		"dashed control":    "[[controls]]\nname = \"a-b\"\n[[blocks]]\nkind = \"text\"\ntitle = \"t\"",
		"kpi without data":  "[[blocks]]\nkind = \"kpi\"\ntitle = \"k\"",
		"unknown field":     "colour = 1\n[[blocks]]\nkind = \"text\"\ntitle = \"t\"",
		"bad version":       "version = 3\n[[blocks]]\nkind = \"text\"\ntitle = \"t\"",
		"unknown action":    "[[blocks]]\nkind = \"text\"\ntitle = \"t\"\n[keys]\nfly = [\"f\"]",
		"empty keys":        "[[blocks]]\nkind = \"text\"\ntitle = \"t\"\n[keys]\nquit = []",
		"key bound twice":   "[[blocks]]\nkind = \"text\"\ntitle = \"t\"\n[keys]\nrefresh = [\"q\"]",
		"duplicate control": "[[controls]]\nname = \"a\"\n[[controls]]\nname = \"a\"\n[[blocks]]\nkind = \"text\"\ntitle = \"t\"",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(src), TOML)
			require.Error(t, err)
		})
	}
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dash.json")
	raw := `{"title": "From JSON", "controls": [{"name": "region", "options": ["all", "north"], "value": "all", "param": "transform__region"}],
		"blocks": [{"kind": "table", "title": "Rows", "limit": 3, "subscribes": ["region"]}]}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	def, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "From JSON", def.Title)
	require.Equal(t, []any{"all", "north"}, def.Controls[0].Options)
	require.Equal(t, 3, def.Blocks[0].Limit)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestBuildDefaultPageDrivesEveryBlock(t *testing.T) {
	ctx := context.Background()
	def, err := Default()
	require.NoError(t, err)
	src, err := pipeline.New(
		pipeline.WithBuilder(sample.Builder{Rows: 80, Seed: 3}),
		pipeline.WithTransformer(pipeline.ColumnFilter{}),
		pipeline.WithRegistry(cache.NewRegistry(logr.Discard())),
	)
	require.NoError(t, err)

	page, err := Build(def, src, logr.Discard())
	require.NoError(t, err)
	require.NotNil(t, page.Panel)
	require.Len(t, page.Blocks, 6)
	require.Same(t, page.Panel, page.Blocks[0])

	r := state.NewRouter()
	bindings, err := page.Register(r)
	require.NoError(t, err)
	require.Len(t, bindings, 5)

	for _, b := range page.Blocks {
		w, err := b.Render(ctx, b.InitialValues(r))
		require.NoError(t, err, b.BlockID())
		require.NotEmpty(t, w.Render(60, 12))
	}

	updates, err := page.Panel.Select(ctx, r, "region", "north")
	require.NoError(t, err)
	require.Len(t, updates, 5)
	for _, u := range updates {
		require.NoError(t, u.Err, u.Output.String())
		require.IsType(t, widgets.Panel{}, u.Value)
	}

	updates, err = page.Panel.Select(ctx, r, "category", "books")
	require.NoError(t, err)
	require.Len(t, updates, 4)
}

func TestBuildTextCountsRows(t *testing.T) {
	def, err := Decode(strings.NewReader("[[blocks]]\nkind = \"text\"\ntitle = \"t\"\nbody = \"{rows} rows\""), TOML)
	require.NoError(t, err)
	src, err := pipeline.New(
		pipeline.WithBuilder(sample.Builder{Rows: 12, Seed: 1}),
		pipeline.WithRegistry(cache.NewRegistry(logr.Discard())),
	)
	require.NoError(t, err)
	page, err := Build(def, src, logr.Discard())
	require.NoError(t, err)
	require.Nil(t, page.Panel)

	w, err := page.Blocks[0].Render(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, widgets.Text("12 rows"), w.(widgets.Panel).Body)
}
