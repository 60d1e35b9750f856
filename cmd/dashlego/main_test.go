package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"

	"github.com/jask/dashlego/core/cache"
	"github.com/jask/dashlego/core/pipeline"
	"github.com/jask/dashlego/internal/config"
	"github.com/jask/dashlego/internal/dashfile"
)

func TestParseFlags(t *testing.T) {
	o, err := parseFlags([]string{"-c", "cfg.toml", "--dashboard", "board.json", "--cache", "disk", "--export-graph"})
	require.NoError(t, err)
	require.Equal(t, "cfg.toml", o.configPath)
	require.Equal(t, "board.json", o.dashboard)
	require.Equal(t, "disk", o.cacheKind)
	require.True(t, o.exportGraph)
	require.Equal(t, "dashlego-graph.yaml", o.exportPath)

	_, err = parseFlags([]string{"--nope"})
	require.Error(t, err)
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[log]\ndir = \""+t.TempDir()+"\"\n[pipeline]\nworkers = 2\n"), 0o644))
	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	return cfg
}

func TestNewSourceFromGeneratedRows(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	src, cleanup, err := newSource(ctx, dashfile.SourceDef{Rows: 30, Seed: 2, Prewarm: []map[string]any{{"build__days": 10}}},
		cache.MemoryDescriptor(), cfg, logr.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, cleanup()) })

	df, err := src.GetProcessedData(ctx, pipeline.Params{})
	require.NoError(t, err)
	require.Equal(t, 30, df.Nrow())

	df, err = src.GetProcessedData(ctx, pipeline.Params{"transform__region": "north"})
	require.NoError(t, err)
	for _, r := range df.Col("region").Records() {
		require.Equal(t, "north", r)
	}
}

func TestNewSourceThroughSQLite(t *testing.T) {
	ctx := context.Background()
	src, cleanup, err := newSource(ctx, dashfile.SourceDef{Rows: 25, Seed: 4, Query: "SELECT region, revenue FROM sales WHERE units >= :min_units"},
		cache.MemoryDescriptor(), testConfig(t), logr.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, cleanup()) })

	all, err := src.GetProcessedData(ctx, pipeline.Params{"min_units": 0})
	require.NoError(t, err)
	require.Equal(t, 25, all.Nrow())
	require.Equal(t, []string{"region", "revenue"}, all.Names())
}

func TestRunExportsGraph(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[log]\ndir = \""+t.TempDir()+"\"\n"), 0o644))

	out, err := os.CreateTemp(t.TempDir(), "graph")
	require.NoError(t, err)
	stdout := os.Stdout
	os.Stdout = out
	err = run(context.Background(), options{configPath: cfgPath, exportGraph: true})
	os.Stdout = stdout
	require.NoError(t, err)
	require.NoError(t, out.Close())

	raw, err := os.ReadFile(out.Name())
	require.NoError(t, err)
	require.Contains(t, string(raw), "filters-days")
	require.Contains(t, string(raw), "build__days")
}
