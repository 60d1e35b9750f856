package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"

	"github.com/jask/dashlego/internal/dashfile"
)

type keyMap struct {
	Quit        key.Binding
	Help        key.Binding
	Refresh     key.Binding
	NextControl key.Binding
	PrevControl key.Binding
	NextValue   key.Binding
	PrevValue   key.Binding
	Export      key.Binding
}

func newKeyMap(bindings map[string][]string) keyMap {
	if len(bindings) == 0 {
		bindings = dashfile.DefaultKeys()
	}
	bind := func(action, desc string) key.Binding {
		keys := bindings[action]
		if len(keys) == 0 {
			keys = dashfile.DefaultKeys()[action]
		}
		return key.NewBinding(key.WithKeys(keys...), key.WithHelp(strings.Join(keys, "/"), desc))
	}
	return keyMap{
		Quit:        bind(dashfile.ActionQuit, "quit"),
		Help:        bind(dashfile.ActionHelp, "help"),
		Refresh:     bind(dashfile.ActionRefresh, "refresh"),
		NextControl: bind(dashfile.ActionNextControl, "next control"),
		PrevControl: bind(dashfile.ActionPrevControl, "prev control"),
		NextValue:   bind(dashfile.ActionNextValue, "next value"),
		PrevValue:   bind(dashfile.ActionPrevValue, "prev value"),
		Export:      bind(dashfile.ActionExport, "export state graph"),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.NextValue, k.NextControl, k.Refresh, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.NextControl, k.PrevControl, k.NextValue, k.PrevValue},
		{k.Refresh, k.Export, k.Help, k.Quit},
	}
}
