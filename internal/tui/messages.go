package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jask/dashlego/core/state"
	"github.com/jask/dashlego/widgets"
)

type statusMsg struct {
	Text  string
	IsErr bool
}

// renderedMsg carries one block's standalone render.
type renderedMsg struct {
	Target state.Target
	Widget widgets.Widget
	Err    error
}

// updatesMsg carries the outputs of a router publish or refresh.
type updatesMsg struct {
	Updates []state.Update
	Err     error
}

type tickMsg time.Time

func statusCmd(text string) tea.Cmd {
	return func() tea.Msg { return statusMsg{Text: text} }
}

func errorCmd(err error) tea.Cmd {
	return func() tea.Msg {
		if err == nil {
			return statusMsg{}
		}
		return statusMsg{Text: err.Error(), IsErr: true}
	}
}
