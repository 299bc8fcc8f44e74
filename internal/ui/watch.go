// Package ui renders interactive terminal views for the kiln CLI.
package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"kiln/internal/counters"
)

// Event is one progress report from the workload driving a watch. Closing
// the event channel ends the watch.
type Event struct {
	Done  int
	Total int
}

type watchModel struct {
	title   string
	reg     *counters.Registry
	events  <-chan Event
	spinner spinner.Model
	prog    progress.Model
	rows    []counters.Stat
	width   int
	done    bool
}

type eventMsg Event
type workloadDoneMsg struct{}
type refreshMsg time.Time

const refreshEvery = 200 * time.Millisecond

// NewWatchModel returns a Bubble Tea model that shows live counter values
// while a workload reports progress on events.
func NewWatchModel(title string, reg *counters.Registry, events <-chan Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76 // Default width

	return &watchModel{
		title:   title,
		reg:     reg,
		events:  events,
		spinner: sp,
		prog:    prog,
		rows:    sortedRows(reg),
		width:   80,
	}
}

func (m *watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent(), m.scheduleRefresh())
}

func (m *watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		cmd := m.applyEvent(Event(msg))
		return m, tea.Batch(cmd, m.listenForEvent())
	case workloadDoneMsg:
		m.done = true
		m.rows = sortedRows(m.reg)
		return m, tea.Quit
	case refreshMsg:
		if m.done {
			return m, nil
		}
		m.rows = sortedRows(m.reg)
		return m, m.scheduleRefresh()
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.done = true
			return m, tea.Quit
		}
		return m, nil
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.prog.Width = msg.Width - 4
		}
		return m, nil
	case progress.FrameMsg:
		pm, cmd := m.prog.Update(msg)
		m.prog = pm.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *watchModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	header := m.title
	if m.done {
		header = fmt.Sprintf("done: %s", header)
	} else {
		header = fmt.Sprintf("%s %s", m.spinner.View(), header)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	nameWidth := m.width - 34
	if nameWidth < 20 {
		nameWidth = 20
	}
	if len(m.rows) == 0 {
		b.WriteString("  no counters yet\n")
	}
	for _, row := range m.rows {
		// Same row shape as Registry.Dump, so the watch and the final dump
		// read alike.
		line := fmt.Sprintf("  %12d  %-16s %s", row.Value, row.Tag, truncate(row.Name, nameWidth))
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.done {
		b.WriteString(m.prog.ViewAs(1.0))
	} else {
		b.WriteString(m.prog.View())
	}
	b.WriteString("\n")

	return b.String()
}

func (m *watchModel) listenForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return workloadDoneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *watchModel) scheduleRefresh() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

func (m *watchModel) applyEvent(ev Event) tea.Cmd {
	m.rows = sortedRows(m.reg)
	if ev.Total <= 0 {
		return nil
	}
	pct := float64(ev.Done) / float64(ev.Total)
	if pct > 1 {
		pct = 1
	}
	return m.prog.SetPercent(pct)
}

// sortedRows snapshots the registry and orders rows by name. The registry
// lists newest first, which would move rows around as counters appear; a
// sorted view keeps each row in place between refreshes.
func sortedRows(reg *counters.Registry) []counters.Stat {
	rows := reg.Snapshot()
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows
}

func truncate(value string, width int) string {
	if width <= 0 {
		return value
	}
	if runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width-3, "...")
}
