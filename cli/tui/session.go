package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/screener/history"
	"github.com/pithecene-io/screener/log"
	"github.com/pithecene-io/screener/progress"
	"github.com/pithecene-io/screener/query"
)

// focus selects the pane receiving keys.
type focus int

const (
	focusInput focus = iota
	focusHistory
)

// submitDoneMsg reports that a submission settled.
type submitDoneMsg struct {
	err error
}

// progressMsg carries one update of the live progress run. closed is set
// when the run ended (auto-hide or cancel).
type progressMsg struct {
	runID  uint64
	update progress.Update
	closed bool
}

// historyLoadedMsg carries the persisted history read at startup.
type historyLoadedMsg struct {
	entries history.Log
}

// Model is the Bubble Tea model of an interactive session.
type Model struct {
	ctx    context.Context
	orch   *query.Orchestrator
	logger *log.Logger

	input   textinput.Model
	spinner spinner.Model

	pending bool
	focus   focus
	cursor  int
	entries history.Log

	run      *progress.Run
	progress progress.Snapshot

	exportDir string
	notice    string

	width    int
	height   int
	quitting bool
}

// NewModel creates a session model over orch.
func NewModel(ctx context.Context, orch *query.Orchestrator, opts Options) Model {
	ti := textinput.New()
	ti.Placeholder = "Ask about a stock, e.g. How is AAPL doing?"
	ti.Prompt = "› "
	ti.CharLimit = 500
	ti.Width = 60
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = WarningStyle

	return Model{
		ctx:       ctx,
		orch:      orch,
		logger:    opts.Logger.Named("tui"),
		input:     ti,
		spinner:   sp,
		exportDir: opts.ExportDir,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.loadHistory())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if msg.Width > 10 {
			m.input.Width = msg.Width - 6
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case historyLoadedMsg:
		m.entries = msg.entries
		return m, nil

	case submitDoneMsg:
		return m.handleSubmitDone(msg)

	case progressMsg:
		return m.handleProgress(msg)

	case spinner.TickMsg:
		if !m.pending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, keys.Quit) {
		m.quitting = true
		return m, tea.Quit
	}
	m.notice = ""

	// Input is disabled while a request is in flight.
	if m.pending {
		return m, nil
	}

	switch {
	case key.Matches(msg, keys.Dismiss):
		m.orch.Dismiss()
		m.setFocus(focusInput)
		return m, nil

	case key.Matches(msg, keys.Save):
		m.saveResult()
		return m, nil

	case key.Matches(msg, keys.Focus):
		if m.focus == focusInput && len(m.entries) > 0 {
			m.setFocus(focusHistory)
		} else {
			m.setFocus(focusInput)
		}
		return m, nil
	}

	if m.focus == focusHistory {
		return m.handleHistoryKey(msg)
	}

	if key.Matches(msg, keys.Submit) {
		return m.submit()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.orch.SetQuery(m.input.Value())
	return m, cmd
}

func (m Model) handleHistoryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, keys.Down):
		if m.cursor < len(m.entries)-1 {
			m.cursor++
		}
	case key.Matches(msg, keys.Recall):
		if m.cursor < len(m.entries) {
			entry := m.entries[m.cursor]
			m.orch.Recall(entry)
			m.input.SetValue(entry.Query)
			m.input.CursorEnd()
			m.stopProgress()
			m.setFocus(focusInput)
		}
	case key.Matches(msg, keys.Clear):
		m.entries = m.orch.ClearHistory(m.ctx)
		m.cursor = 0
		m.setFocus(focusInput)
		m.notice = "History cleared."
	}
	return m, nil
}

// submit starts a request. Blank input is rejected synchronously so the
// inline message appears without a round trip.
func (m Model) submit() (tea.Model, tea.Cmd) {
	text := m.input.Value()
	if strings.TrimSpace(text) == "" {
		_ = m.orch.Submit(m.ctx, text)
		return m, nil
	}

	m.pending = true
	m.stopProgress()
	ctx, orch := m.ctx, m.orch
	submitCmd := func() tea.Msg {
		return submitDoneMsg{err: orch.Submit(ctx, text)}
	}
	return m, tea.Batch(m.spinner.Tick, submitCmd)
}

func (m Model) handleSubmitDone(msg submitDoneMsg) (tea.Model, tea.Cmd) {
	m.pending = false
	if errors.Is(msg.err, query.ErrSuperseded) {
		return m, nil
	}
	m.entries = m.orch.History()
	m.cursor = 0
	if msg.err != nil {
		return m, nil
	}

	run := m.orch.ProgressRun()
	if run == nil {
		return m, nil
	}
	m.run = run
	m.progress = m.orch.Progress()
	return m, waitForProgress(run)
}

func (m Model) handleProgress(msg progressMsg) (tea.Model, tea.Cmd) {
	if m.run == nil || msg.runID != m.run.ID() {
		// Update from a run that was replaced or reset.
		return m, nil
	}
	if msg.closed || msg.update.AutoHide {
		m.stopProgress()
		return m, nil
	}
	m.progress.State = msg.update.State
	return m, waitForProgress(m.run)
}

func (m *Model) stopProgress() {
	m.run = nil
	m.progress = progress.Snapshot{}
}

func (m *Model) setFocus(f focus) {
	m.focus = f
	if f == focusInput {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
}

// saveResult writes the displayed result's export form to a file.
func (m *Model) saveResult() {
	snap := m.orch.Snapshot()
	if snap.Result.IsEmpty() {
		m.notice = "Nothing to save."
		return
	}

	name := "screener-result.json"
	if snap.EntryID != "" {
		name = fmt.Sprintf("screener-%s.json", snap.EntryID)
	}
	if snap.Result.Text() != "" {
		name = strings.TrimSuffix(name, ".json") + ".txt"
	}
	path := filepath.Join(m.exportDir, name)

	if err := os.WriteFile(path, []byte(snap.Result.Pretty()+"\n"), 0o644); err != nil {
		m.logger.Warn("save result failed", map[string]any{
			"path":  path,
			"error": err.Error(),
		})
		m.notice = "Save failed: " + err.Error()
		return
	}
	m.notice = "Saved " + path
}

// waitForProgress blocks on the next update of run.
func waitForProgress(run *progress.Run) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-run.Updates()
		return progressMsg{runID: run.ID(), update: u, closed: !ok}
	}
}

func (m Model) loadHistory() tea.Cmd {
	ctx, orch := m.ctx, m.orch
	return func() tea.Msg {
		return historyLoadedMsg{entries: orch.LoadHistory(ctx)}
	}
}
