// Package tui is the terminal front end of a dashboard page: it renders
// every block into a grid and turns key presses into router publishes.
package tui

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-logr/logr"

	"github.com/jask/dashlego/blocks"
	"github.com/jask/dashlego/core/state"
	"github.com/jask/dashlego/internal/dashfile"
	"github.com/jask/dashlego/internal/logging"
	"github.com/jask/dashlego/widgets"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

// Options tune the app. A zero Refresh disables the periodic refresh.
type Options struct {
	Refresh    time.Duration
	ExportPath string
	Log        logr.Logger
}

// App is the bubbletea model of one dashboard page.
type App struct {
	ctx    context.Context
	page   *dashfile.Page
	router *state.Router
	bound  map[state.Target]bool
	opts   Options
	log    logr.Logger
	keys   keyMap
	help   help.Model

	views    map[state.Target]widgets.Widget
	width    int
	height   int
	status   string
	isErr    bool
	showHelp bool
}

// New returns the model for page. bindings are the ones page.Register
// produced on router; blocks outside them are refreshed by re-rendering.
func New(ctx context.Context, page *dashfile.Page, router *state.Router, bindings []*state.Binding, opts Options) *App {
	if opts.ExportPath == "" {
		opts.ExportPath = "dashlego-graph.yaml"
	}
	log := opts.Log
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	bound := make(map[state.Target]bool, len(bindings))
	for _, b := range bindings {
		bound[b.Output] = true
	}
	return &App{
		ctx:    ctx,
		page:   page,
		router: router,
		bound:  bound,
		opts:   opts,
		log:    log.WithName("tui"),
		keys:   newKeyMap(page.Keys),
		help:   help.New(),
		views:  make(map[state.Target]widgets.Widget, len(page.Blocks)),
	}
}

func (a *App) Init() tea.Cmd {
	a.drawPanel()
	cmds := []tea.Cmd{a.renderAll(), statusCmd("loading " + a.page.Title)}
	if a.opts.Refresh > 0 {
		cmds = append(cmds, a.tick())
	}
	return tea.Batch(cmds...)
}

func (a *App) renderAll() tea.Cmd {
	cmds := make([]tea.Cmd, 0, len(a.page.Blocks))
	for _, b := range a.page.Blocks {
		if b == a.panelBlock() {
			continue
		}
		cmds = append(cmds, a.renderCmd(b))
	}
	return tea.Batch(cmds...)
}

func (a *App) renderCmd(b blocks.Block) tea.Cmd {
	return func() tea.Msg {
		w, err := b.Render(a.ctx, b.InitialValues(a.router))
		if err != nil {
			if fb, ok := b.(state.FallbackProvider); ok {
				w, _ = fb.Fallback(err).(widgets.Widget)
			}
		}
		return renderedMsg{Target: b.OutputTarget(), Widget: w, Err: err}
	}
}

// refresh re-runs every binding with the current values and re-renders the
// blocks no binding owns.
func (a *App) refresh() tea.Cmd {
	cmds := []tea.Cmd{func() tea.Msg {
		return updatesMsg{Updates: a.router.Refresh(a.ctx)}
	}}
	for _, b := range a.page.Blocks {
		if !a.bound[b.OutputTarget()] && b != a.panelBlock() {
			cmds = append(cmds, a.renderCmd(b))
		}
	}
	return tea.Batch(cmds...)
}

func (a *App) cycleCmd(delta int) tea.Cmd {
	panel := a.page.Panel
	return func() tea.Msg {
		ups, err := panel.Cycle(a.ctx, a.router, delta)
		return updatesMsg{Updates: ups, Err: err}
	}
}

func (a *App) exportCmd() tea.Cmd {
	path := a.opts.ExportPath
	return func() tea.Msg {
		f, err := os.Create(path)
		if err != nil {
			return statusMsg{Text: err.Error(), IsErr: true}
		}
		defer f.Close()
		if err := a.router.ExportYAML(f); err != nil {
			return statusMsg{Text: err.Error(), IsErr: true}
		}
		return statusMsg{Text: "state graph written to " + path}
	}
}

func (a *App) tick() tea.Cmd {
	return tea.Tick(a.opts.Refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.WindowSizeMsg:
		a.width, a.height = m.Width, m.Height
		a.help.Width = m.Width
	case tea.KeyMsg:
		return a.handleKey(m)
	case renderedMsg:
		if m.Widget != nil {
			a.views[m.Target] = m.Widget
		}
		if m.Err != nil {
			a.log.Error(m.Err, "render failed", "output", m.Target.String())
			return a, errorCmd(m.Err)
		}
	case updatesMsg:
		if m.Err != nil {
			return a, errorCmd(m.Err)
		}
		failed := 0
		var first error
		for _, u := range m.Updates {
			if w, ok := u.Value.(widgets.Widget); ok {
				a.views[u.Output] = w
			}
			if u.Err != nil {
				failed++
				if first == nil {
					first = u.Err
				}
			}
		}
		a.drawPanel()
		if failed > 0 {
			return a, errorCmd(fmt.Errorf("%d of %d blocks failed: %w", failed, len(m.Updates), first))
		}
		a.log.V(logging.VERBOSE).Info("applied updates", "count", len(m.Updates))
		return a, statusCmd(fmt.Sprintf("updated %d blocks", len(m.Updates)))
	case tickMsg:
		return a, tea.Batch(a.refresh(), a.tick())
	case statusMsg:
		a.status, a.isErr = m.Text, m.IsErr
	}
	return a, nil
}

func (a *App) handleKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(m, a.keys.Quit):
		return a, tea.Quit
	case key.Matches(m, a.keys.Help):
		a.showHelp = !a.showHelp
	case key.Matches(m, a.keys.Refresh):
		a.status, a.isErr = "refreshing", false
		return a, a.refresh()
	case key.Matches(m, a.keys.Export):
		return a, a.exportCmd()
	}
	if a.page.Panel == nil {
		return a, nil
	}
	switch {
	case key.Matches(m, a.keys.NextControl):
		a.page.Panel.Focus(1)
		a.drawPanel()
	case key.Matches(m, a.keys.PrevControl):
		a.page.Panel.Focus(-1)
		a.drawPanel()
	case key.Matches(m, a.keys.NextValue):
		return a, a.cycleCmd(1)
	case key.Matches(m, a.keys.PrevValue):
		return a, a.cycleCmd(-1)
	}
	return a, nil
}

// drawPanel redraws the control panel in place; it never loads data.
func (a *App) drawPanel() {
	panel := a.page.Panel
	if panel == nil {
		return
	}
	w, err := panel.Render(a.ctx, nil)
	if err != nil {
		a.log.Error(err, "control panel render failed")
		return
	}
	if p, ok := w.(widgets.Panel); ok {
		p.Focused = true
		w = p
	}
	a.views[panel.OutputTarget()] = w
}

func (a *App) panelBlock() blocks.Block {
	if a.page.Panel == nil {
		return nil
	}
	return a.page.Panel
}

func (a *App) View() string {
	if a.width == 0 || a.height == 0 {
		return "loading…"
	}
	status := statusStyle.Render(a.status)
	if a.isErr {
		status = errorStyle.Render("error: " + a.status)
	}
	header := titleStyle.Render(a.page.Title) + "  " + status
	footer := a.help.View(a.keys)
	bodyHeight := max(1, a.height-lipgloss.Height(header)-lipgloss.Height(footer))

	ws := make([]widgets.Widget, 0, len(a.page.Blocks))
	for _, b := range a.page.Blocks {
		w := a.views[b.OutputTarget()]
		if w == nil {
			w = widgets.Panel{Title: b.Title(), Body: widgets.Text("loading…")}
		}
		ws = append(ws, w)
	}
	var body widgets.Widget = widgets.Grid{Widgets: ws, Columns: a.page.Columns, Gap: 1}
	if a.showHelp {
		body = widgets.Popup{Base: body, Title: "Keys", Content: a.help.FullHelpView(a.keys.FullHelp())}
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, body.Render(a.width, bodyHeight), footer)
}
