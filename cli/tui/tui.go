package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/screener/log"
	"github.com/pithecene-io/screener/query"
)

// keyMap defines key bindings.
type keyMap struct {
	Quit    key.Binding
	Submit  key.Binding
	Dismiss key.Binding
	Focus   key.Binding
	Up      key.Binding
	Down    key.Binding
	Recall  key.Binding
	Clear   key.Binding
	Save    key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "quit"),
	),
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "ask"),
	),
	Dismiss: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "dismiss"),
	),
	Focus: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "history"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Recall: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "recall"),
	),
	Clear: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "clear history"),
	),
	Save: key.NewBinding(
		key.WithKeys("ctrl+s"),
		key.WithHelp("ctrl+s", "save result"),
	),
}

// Options configures a session.
type Options struct {
	// ExportDir receives results saved with ctrl+s (default: working dir).
	ExportDir string
	Logger    *log.Logger
}

// Run starts an interactive session on the terminal and blocks until the
// user quits or ctx is canceled.
func Run(ctx context.Context, orch *query.Orchestrator, opts Options) error {
	model := NewModel(ctx, orch, opts)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
