// Package tui renders a live per-service state view for a running stack.
package tui

import (
	"fmt"
	"os"
	"sort"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/stackctl/pkg/proc"
	"github.com/go-go-golems/stackctl/pkg/state"
)

type tickMsg time.Time

type snapshotMsg struct {
	st  *state.State
	err error
}

// Model is the watch view: it polls the persisted run state and renders one
// row per service with state, reason and process stats.
type Model struct {
	root     string
	interval time.Duration
	styles   styles
	tracker  *proc.CPUTracker

	st    *state.State
	err   error
	stats map[int]*proc.Stats
	width int
}

func NewModel(root string, interval time.Duration) Model {
	if interval <= 0 {
		interval = time.Second
	}
	return Model{
		root:     root,
		interval: interval,
		styles:   defaultStyles(),
		tracker:  proc.NewCPUTracker(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.load, m.tick())
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) load() tea.Msg {
	if _, err := os.Stat(state.StatePath(m.root)); err != nil {
		return snapshotMsg{err: err}
	}
	st, err := state.Load(m.root)
	return snapshotMsg{st: st, err: err}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tickMsg:
		return m, tea.Batch(m.load, m.tick())
	case snapshotMsg:
		m.st = msg.st
		m.err = msg.err
		m.stats = m.readStats()
	}
	return m, nil
}

func (m *Model) readStats() map[int]*proc.Stats {
	if m.st == nil {
		return nil
	}
	pids := make([]int, 0, len(m.st.Services))
	for _, svc := range m.st.Services {
		if svc.PID > 0 && state.ProcessAlive(svc.PID) {
			pids = append(pids, svc.PID)
		}
	}
	m.tracker.Drop(pids)
	return proc.ReadAllStats(pids, m.tracker)
}

func (m Model) View() string {
	s := m.styles

	if m.err != nil {
		return s.title.Render("stackctl watch") + "\n\n" +
			s.dim.Render(fmt.Sprintf("no run state: %v", m.err)) + "\n\n" +
			s.dim.Render("q to quit") + "\n"
	}
	if m.st == nil {
		return s.dim.Render("loading...") + "\n"
	}

	header := s.title.Render("stackctl watch: " + m.st.Project)
	if m.st.Network != "" {
		header += s.dim.Render("  network " + m.st.Network)
	}

	rows := [][]string{{"SERVICE", "STATE", "PID", "RESTARTS", "CPU", "MEM", "REASON"}}
	services := append([]state.ServiceRecord{}, m.st.Services...)
	sort.Slice(services, func(i, j int) bool { return services[i].Name < services[j].Name })

	for _, svc := range services {
		pid, cpu, mem := "-", "-", "-"
		if svc.PID > 0 {
			pid = fmt.Sprintf("%d", svc.PID)
			if st, ok := m.stats[svc.PID]; ok {
				cpu = fmt.Sprintf("%.1f%%", st.CPUPercent)
				mem = fmt.Sprintf("%dM", st.MemoryMB)
			}
		}
		rows = append(rows, []string{
			svc.Name,
			svc.State,
			pid,
			fmt.Sprintf("%d", svc.Restarts),
			cpu,
			mem,
			truncate(svc.Reason, 48),
		})
	}

	return header + "\n\n" + m.renderTable(rows) + "\n" + s.dim.Render("q to quit") + "\n"
}

func (m Model) renderTable(rows [][]string) string {
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var out string
	for r, row := range rows {
		line := ""
		for i, cell := range row {
			line += fmt.Sprintf("%-*s  ", widths[i], cell)
		}
		switch {
		case r == 0:
			out += m.styles.header.Render(line)
		default:
			out += m.styleForState(row[1]).Render(line)
		}
		out += "\n"
	}
	return out
}

func (m Model) styleForState(st string) lipgloss.Style {
	switch st {
	case "healthy", "started", "exited":
		return m.styles.ok
	case "unhealthy", "crashed", "failed":
		return m.styles.bad
	case "pending", "starting":
		return m.styles.wait
	default:
		return m.styles.dim
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
