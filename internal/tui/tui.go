// Package tui is a terminal monitor for the provisioning daemon.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	wifilog "github.com/shazow/wifiportal/internal/log"
	"github.com/shazow/wifiportal/wifi"
)

const (
	refreshInterval = 500 * time.Millisecond
	maxLogLines     = 8
)

// Snapshot is the daemon state shown in the header.
type Snapshot struct {
	State     string
	Mode      string
	StationIP string
	Portal    string
	// Busy shows the spinner, for example while a connection attempt runs.
	Busy bool
	// Announced is set while the mDNS service is published.
	Announced bool
}

// Source is polled for the state to display.
type Source interface {
	Snapshot() Snapshot
	Networks() []wifi.ScanRecord
}

type refreshMsg time.Time

// The main model for the monitor.
type model struct {
	source   Source
	spinner  spinner.Model
	snapshot Snapshot
	networks []wifi.ScanRecord
	logs     []slog.Record
	showLogs bool

	width, height int
}

// NewModel creates the starting state of the monitor, seeded with history.
func NewModel(source Source, history []slog.Record) *model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(CurrentTheme.Primary)

	m := &model{
		source:   source,
		spinner:  s,
		showLogs: true,
	}
	for _, r := range history {
		m.appendLog(r)
	}
	m.poll()
	return m
}

func (m *model) poll() {
	m.snapshot = m.source.Snapshot()
	m.networks = m.source.Networks()
}

func (m *model) appendLog(r slog.Record) {
	m.logs = append(m.logs, r)
	if len(m.logs) > maxLogLines {
		m.logs = m.logs[len(m.logs)-maxLogLines:]
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil
	case refreshMsg:
		m.poll()
		return m, tick()
	case wifilog.LogMsg:
		m.appendLog(slog.Record(msg))
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "l":
			m.showLogs = !m.showLogs
			return m, nil
		case "r":
			m.poll()
			return m, nil
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *model) View() string {
	var s strings.Builder

	title := lipgloss.NewStyle().Bold(true).Foreground(CurrentTheme.Primary)
	label := lipgloss.NewStyle().Foreground(CurrentTheme.Subtle).Width(10)
	normal := lipgloss.NewStyle().Foreground(CurrentTheme.Normal)

	s.WriteString(title.Render("wifiportal"))
	if m.snapshot.Busy {
		s.WriteString(" " + m.spinner.View())
	}
	s.WriteString("\n\n")

	state := normal
	if m.snapshot.State == "provisioned" {
		state = lipgloss.NewStyle().Foreground(CurrentTheme.Success)
	}
	s.WriteString(label.Render("state") + state.Render(m.snapshot.State) + "\n")
	s.WriteString(label.Render("radio") + normal.Render(m.snapshot.Mode) + "\n")
	if m.snapshot.Portal != "" {
		s.WriteString(label.Render("portal") + normal.Render(m.snapshot.Portal) + "\n")
	}
	if m.snapshot.StationIP != "" {
		s.WriteString(label.Render("ip") + normal.Render(m.snapshot.StationIP) + "\n")
	}
	if m.snapshot.Announced {
		s.WriteString(label.Render("mdns") + normal.Render("published") + "\n")
	}

	s.WriteString("\n" + title.Render("Networks") + "\n")
	if len(m.networks) == 0 {
		s.WriteString(lipgloss.NewStyle().Foreground(CurrentTheme.Subtle).Render("  none seen") + "\n")
	}
	for _, n := range m.networks {
		strength := n.Strength()
		bar := lipgloss.NewStyle().Foreground(signalColor(strength)).Render(fmt.Sprintf("%3d%%", strength))
		s.WriteString(fmt.Sprintf("  %s  %s\n", bar, normal.Render(n.SSID)))
	}

	if m.showLogs {
		s.WriteString("\n" + title.Render("Log") + "\n")
		s.WriteString(renderLogs(m.logs))
	}

	help := lipgloss.NewStyle().Foreground(CurrentTheme.Subtle)
	s.WriteString("\n" + help.Render("q quit • l toggle log • r refresh"))
	return s.String()
}

func renderLogs(logs []slog.Record) string {
	var s strings.Builder
	for _, r := range logs {
		style := lipgloss.NewStyle().Foreground(CurrentTheme.Normal)
		switch {
		case r.Level >= slog.LevelError:
			style = lipgloss.NewStyle().Foreground(CurrentTheme.Error)
		case r.Level < slog.LevelInfo:
			style = lipgloss.NewStyle().Foreground(CurrentTheme.Subtle)
		}
		line := fmt.Sprintf("[%s] %s", r.Level, r.Message)
		r.Attrs(func(a slog.Attr) bool {
			line += fmt.Sprintf(" %s=%v", a.Key, a.Value.Any())
			return true
		})
		s.WriteString(style.Render(line) + "\n")
	}
	return s.String()
}

// Run shows the monitor until the user quits or ctx ends. Records handled
// by logs are streamed into the view while it runs.
func Run(ctx context.Context, source Source, logs *wifilog.TUIHandler) error {
	var history []slog.Record
	if logs != nil {
		history = logs.Logs()
	}
	p := tea.NewProgram(NewModel(source, history), tea.WithAltScreen())

	done := make(chan struct{})
	defer close(done)
	if logs != nil {
		ch := make(chan tea.Msg, 64)
		logs.SetOutput(ch)
		defer logs.SetOutput(nil)
		go func() {
			for {
				select {
				case msg := <-ch:
					p.Send(msg)
				case <-done:
					return
				}
			}
		}()
	}
	go func() {
		select {
		case <-ctx.Done():
			p.Quit()
		case <-done:
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running monitor: %w", err)
	}
	return nil
}
