// Package tui is pitchfork's thin bubbletea client: a live-refreshing table
// of active daemons. A log viewport is allocated and resized with the
// window, but no log content is loaded into it and the view does not render
// it; only the table is shown.
// It holds no supervision logic of its own, only internal/ipc calls, per
// SPEC_FULL.md §1. The poll-on-a-ticker refresh and bubbles/viewport log
// pane follow the teacher's own decision-review TUI
// (internal/tui/decision/model.go's pollInterval + viewport combination),
// generalized from polling a decision list to polling GetActiveDaemons.
package tui

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go.jdx.dev/pitchfork/internal/ipc"
)

// pollInterval mirrors the teacher's own decision-list poll cadence.
const pollInterval = 2 * time.Second

type tickMsg time.Time

type daemonsMsg struct {
	rows []ipc.DaemonRecord
	err  error
}

// Model is the root bubbletea model.
type Model struct {
	client   *ipc.Client
	table    table.Model
	viewport viewport.Model
	err      error
	width    int
	height   int
}

// New builds a Model bound to an already-dialed IPC client.
func New(client *ipc.Client) Model {
	columns := []table.Column{
		{Title: "ID", Width: 24},
		{Title: "PID", Width: 8},
		{Title: "Status", Width: 12},
		{Title: "Port", Width: 6},
		{Title: "CPU", Width: 8},
		{Title: "Mem", Width: 10},
	}
	t := table.New(table.WithColumns(columns), table.WithFocused(true), table.WithHeight(12))
	vp := viewport.New(80, 10)
	return Model{client: client, table: t, viewport: vp}
}

// Run starts the bubbletea program and blocks until it exits.
func Run(client *ipc.Client) error {
	p := tea.NewProgram(New(client), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.poll(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) poll() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		resp, err := m.client.Call(ctx, ipc.Request{GetActive: &ipc.GetActiveRequest{}})
		if err != nil {
			return daemonsMsg{err: err}
		}
		return daemonsMsg{rows: resp.ActiveDaemons}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - 16
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd
	case tickMsg:
		return m, tea.Batch(m.poll(), tick())
	case daemonsMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		rows := make([]table.Row, 0, len(msg.rows))
		for _, d := range msg.rows {
			rows = append(rows, table.Row{
				d.ID, fmt.Sprint(d.PID), d.Status, fmt.Sprint(d.Port),
				fmt.Sprintf("%.1f%%", d.CPUPercent), formatRSS(d.RSSBytes),
			})
		}
		m.table.SetRows(rows)
		return m, nil
	}
	return m, nil
}

var headerStyle = lipgloss.NewStyle().Bold(true)

// formatRSS renders a resident set size the way the original's status
// columns do, in whole megabytes.
func formatRSS(bytes uint64) string {
	return fmt.Sprintf("%dM", bytes/(1024*1024))
}

func (m Model) View() string {
	if m.err != nil {
		return fmt.Sprintf("%s\nerror: %v\npress q to quit", headerStyle.Render("pitchfork"), m.err)
	}
	return fmt.Sprintf("%s\n%s\npress q to quit", headerStyle.Render("pitchfork — active daemons"), m.table.View())
}

// RunOrExit runs the TUI and exits the process with code 1 on failure,
// mirroring the CLI's own error-reporting convention.
func RunOrExit(client *ipc.Client) {
	if err := Run(client); err != nil {
		fmt.Fprintln(os.Stderr, "tui:", err)
		os.Exit(1)
	}
}
