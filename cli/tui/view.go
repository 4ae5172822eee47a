package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/screener/analysis"
	"github.com/pithecene-io/screener/query"
)

// maxNews bounds the headlines shown per ticker.
const maxNews = 3

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	snap := m.orch.Snapshot()

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Stock Screener"))
	b.WriteString("\n")

	b.WriteString(m.input.View())
	b.WriteString("\n")
	if m.pending {
		b.WriteString(m.spinner.View() + " " + WarningStyle.Render("Analyzing…"))
		b.WriteString("\n")
	}
	if snap.Error != "" {
		b.WriteString(ErrorStyle.Render(snap.Error))
		b.WriteString("\n")
	}

	if steps := m.viewSteps(); steps != "" {
		b.WriteString("\n")
		b.WriteString(steps)
	}

	if result := viewResult(snap); result != "" {
		b.WriteString("\n")
		b.WriteString(BoxStyle.Render(result))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.viewHistory())

	if m.notice != "" {
		b.WriteString("\n")
		b.WriteString(MutedStyle.Render(m.notice))
	}
	b.WriteString("\n")
	b.WriteString(HelpStyle.Render(m.helpLine()))
	return b.String()
}

// viewSteps renders the live step list, or "" when no run is visible.
func (m Model) viewSteps() string {
	if m.run == nil || len(m.progress.Stages) == 0 {
		return ""
	}
	active := m.progress.State.ActiveIndex
	var b strings.Builder
	for i, st := range m.progress.Stages {
		line := fmt.Sprintf("%s %s", stepMarker(i, active), st.Stage)
		if st.Detail != "" {
			line += MutedStyle.Render("  " + st.Detail)
		}
		b.WriteString(StepStyle(i, active).Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

// viewResult renders the displayed result, or "" when there is nothing
// to show.
func viewResult(snap query.Snapshot) string {
	res := snap.Result
	switch res.Kind() {
	case analysis.KindText:
		return res.Text()
	case analysis.KindEmpty:
		if snap.Phase == query.Succeeded {
			return MutedStyle.Render("(no data)")
		}
		return ""
	}

	tickers := res.Tickers()
	if len(tickers) == 0 {
		return res.Pretty()
	}

	var b strings.Builder
	for i, t := range tickers {
		if i > 0 {
			b.WriteString("\n")
		}
		header := t.Ticker
		if t.Company.Name != analysis.Unknown {
			header += " · " + t.Company.Name
		}
		b.WriteString(TitleStyle.MarginBottom(0).Render(header))
		b.WriteString("\n")
		if t.Error != "" {
			b.WriteString(ErrorStyle.Render(t.Error))
			b.WriteString("\n")
			continue
		}

		v := t.Valuation
		rows := [][2]string{
			{"Sector", t.Company.Sector},
			{"Industry", t.Company.Industry},
			{"Market Cap", v.MarketCap},
			{"Trailing PE", v.TrailingPE},
			{"Forward PE", v.ForwardPE},
			{"Dividend Yield", v.DividendYield},
			{"52w Range", v.Low52w + " - " + v.High52w},
		}
		for _, row := range rows {
			b.WriteString(LabelStyle.Render(row[0]+":") + " " + ValueStyle.Render(row[1]) + "\n")
		}
		for j, n := range t.News {
			if j == maxNews {
				break
			}
			b.WriteString(MutedStyle.Render("  • ") + n.Title + "\n")
		}
	}

	if s := res.Summary(); s != analysis.Unknown {
		b.WriteString("\n" + s + "\n")
	}
	if d := res.Disclaimer(); d != analysis.Unknown {
		b.WriteString("\n" + MutedStyle.Render(d) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) viewHistory() string {
	style := BoxStyle
	if m.focus == focusHistory {
		style = FocusedBoxStyle
	}
	if len(m.entries) == 0 {
		return style.Render(MutedStyle.Render("No history yet."))
	}

	lines := make([]string, 0, len(m.entries)+1)
	lines = append(lines, LabelStyle.Render("History"))
	for i, e := range m.entries {
		ticker := e.Result.Ticker()
		line := fmt.Sprintf("%s  %s", e.Query, MutedStyle.Render(ticker))
		if m.focus == focusHistory && i == m.cursor {
			line = SelectedStyle.Render("› " + e.Query + "  " + ticker)
		} else {
			line = "  " + line
		}
		lines = append(lines, line)
	}
	return style.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m Model) helpLine() string {
	bindings := []string{"enter ask", "tab history", "esc dismiss", "ctrl+s save", "ctrl+c quit"}
	if m.focus == focusHistory {
		bindings = []string{"↑/↓ select", "enter recall", "x clear", "tab back", "ctrl+c quit"}
	}
	return strings.Join(bindings, " · ")
}
