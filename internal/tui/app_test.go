package tui

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"

	"github.com/jask/dashlego/core/cache"
	"github.com/jask/dashlego/core/pipeline"
	"github.com/jask/dashlego/core/state"
	"github.com/jask/dashlego/internal/dashfile"
	"github.com/jask/dashlego/internal/sample"
	"github.com/jask/dashlego/widgets"
)

const testDashboard = `
title = "Test board"

[[controls]]
name = "region"
options = ["all", "north", "south"]
value = "all"
param = "transform__region"

[[blocks]]
kind = "kpi"
title = "Totals"
subscribes = ["region"]

  [[blocks.metrics]]
  title = "Orders"
  agg = "count"

[[blocks]]
kind = "text"
title = "Static"
body = "hello"
`

func newApp(t *testing.T) *App {
	t.Helper()
	def, err := dashfile.Decode(strings.NewReader(testDashboard), dashfile.TOML)
	require.NoError(t, err)
	src, err := pipeline.New(
		pipeline.WithBuilder(sample.Builder{Rows: 40, Seed: 5}),
		pipeline.WithTransformer(pipeline.ColumnFilter{}),
		pipeline.WithRegistry(cache.NewRegistry(logr.Discard())),
	)
	require.NoError(t, err)
	page, err := dashfile.Build(def, src, logr.Discard())
	require.NoError(t, err)
	r := state.NewRouter()
	bindings, err := page.Register(r)
	require.NoError(t, err)
	return New(context.Background(), page, r, bindings, Options{ExportPath: filepath.Join(t.TempDir(), "graph.yaml")})
}

// drain runs cmd and feeds every resulting message back into the app,
// ignoring ticks and quit.
func drain(t *testing.T, a *App, cmd tea.Cmd) {
	t.Helper()
	if cmd == nil {
		return
	}
	switch msg := cmd().(type) {
	case nil, tickMsg, tea.QuitMsg:
	case tea.BatchMsg:
		for _, c := range msg {
			drain(t, a, c)
		}
	default:
		_, next := a.Update(msg)
		drain(t, a, next)
	}
}

func press(t *testing.T, a *App, k string) tea.Cmd {
	t.Helper()
	msg := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	switch k {
	case "right":
		msg = tea.KeyMsg{Type: tea.KeyRight}
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	}
	_, cmd := a.Update(msg)
	return cmd
}

func kpiValue(t *testing.T, a *App) string {
	t.Helper()
	target := a.page.Blocks[1].OutputTarget()
	p, ok := a.views[target].(widgets.Panel)
	require.True(t, ok)
	return p.Body.(widgets.StatRow).Stats[0].Value
}

func TestInitRendersEveryBlock(t *testing.T) {
	a := newApp(t)
	require.Equal(t, "loading…", a.View())

	drain(t, a, a.Init())
	a.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	require.Len(t, a.views, 3)
	require.Equal(t, "40", kpiValue(t, a))

	view := a.View()
	require.Contains(t, view, "Test board")
	require.Contains(t, view, "hello")
	require.Contains(t, view, "region: all")
}

func TestCyclingAControlUpdatesSubscribers(t *testing.T) {
	a := newApp(t)
	drain(t, a, a.Init())

	drain(t, a, press(t, a, "right"))
	require.Equal(t, "north", a.page.Panel.Value("region"))
	require.Equal(t, "updated 1 blocks", a.status)
	require.NotEqual(t, "40", kpiValue(t, a))

	body := a.views[a.page.Panel.OutputTarget()].(widgets.Panel)
	require.True(t, body.Focused)
	require.Contains(t, body.Body.(widgets.List).Items[0], "region: north")
}

func TestRefreshAndHelp(t *testing.T) {
	a := newApp(t)
	drain(t, a, a.Init())
	a.Update(tea.WindowSizeMsg{Width: 100, Height: 30})

	drain(t, a, press(t, a, "r"))
	require.False(t, a.isErr)

	press(t, a, "?")
	require.True(t, a.showHelp)
	require.Contains(t, a.View(), "export state graph")
	press(t, a, "?")
	require.False(t, a.showHelp)
}

func TestExportWritesStateGraph(t *testing.T) {
	a := newApp(t)
	drain(t, a, press(t, a, "e"))
	require.Contains(t, a.status, "state graph written")

	raw, err := os.ReadFile(a.opts.ExportPath)
	require.NoError(t, err)
	require.Contains(t, string(raw), "filters-region")
	require.Contains(t, string(raw), "transform__region")
}

func TestQuit(t *testing.T) {
	a := newApp(t)
	cmd := press(t, a, "q")
	require.NotNil(t, cmd)
	require.IsType(t, tea.QuitMsg{}, cmd())
}
