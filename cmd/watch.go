// SPDX-License-Identifier: BSD-2-Clause
// Copyright (c) 2026 Frederic Detienne

package cmd

import (
	"fmt"
	"sort"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/TotallyFred/cloudwatcher/pkg/cloudwatcher"
)

var watchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live telemetry dashboard",
	Long: `Continuously poll the unit and display calibrated telemetry in a
terminal dashboard. The device is polled one command at a time; the poll
interval bounds how often a full snapshot is taken.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 2*time.Second, "Snapshot poll interval")
	rootCmd.AddCommand(watchCmd)
}

// Styles
var (
	watchTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	watchHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("8"))
	watchAbsentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	watchFlagStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	watchErrorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Messages
type snapshotMsg struct {
	readings map[string]cloudwatcher.Reading
	stats    cloudwatcher.Stats
	err      error
	taken    time.Time
}
type watchTickMsg time.Time

type watchModel struct {
	session  *cloudwatcher.Session
	connInfo string
	interval time.Duration

	readings map[string]cloudwatcher.Reading
	stats    cloudwatcher.Stats
	lastErr  error
	lastPoll time.Time
	polls    int
	quitting bool
}

func (m watchModel) Init() tea.Cmd {
	return m.poll()
}

// poll takes one snapshot off the serial link. Runs on its own goroutine
// via tea.Cmd so the UI stays responsive while the link is busy.
func (m watchModel) poll() tea.Cmd {
	return func() tea.Msg {
		readings, err := m.session.Snapshot()
		return snapshotMsg{
			readings: readings,
			stats:    m.session.Stats(),
			err:      err,
			taken:    time.Now(),
		}
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case snapshotMsg:
		m.polls++
		m.lastPoll = msg.taken
		m.lastErr = msg.err
		m.stats = msg.stats
		if msg.err == nil {
			m.readings = msg.readings
		}
		return m, tea.Tick(m.interval, func(t time.Time) tea.Msg {
			return watchTickMsg(t)
		})

	case watchTickMsg:
		return m, m.poll()
	}

	return m, nil
}

func (m watchModel) View() string {
	if m.quitting {
		return ""
	}

	s := watchTitleStyle.Render("CloudWatcher") + "  " + m.connInfo + "\n\n"

	if m.readings == nil && m.lastErr == nil {
		return s + "Reading sensors...\n"
	}

	names := make([]string, 0, len(m.readings))
	for name := range m.readings {
		names = append(names, name)
	}
	sort.Strings(names)

	s += watchHeaderStyle.Render(fmt.Sprintf("%-20s %10s %-8s", "SENSOR", "VALUE", "UNIT")) + "\n"
	for _, name := range names {
		r := m.readings[name]
		switch r.Validity {
		case cloudwatcher.SensorAbsent:
			s += watchAbsentStyle.Render(fmt.Sprintf("%-20s %10s", name, "absent")) + "\n"
		case cloudwatcher.OutOfRange:
			s += fmt.Sprintf("%-20s %10.2f %-8s ", name, r.Value, r.Unit)
			s += watchFlagStyle.Render("out of range") + "\n"
		default:
			s += fmt.Sprintf("%-20s %10.2f %-8s\n", name, r.Value, r.Unit)
		}
	}

	s += "\n"
	if m.lastErr != nil {
		s += watchErrorStyle.Render(fmt.Sprintf("last poll failed: %v", m.lastErr)) + "\n"
	}
	s += fmt.Sprintf("polls: %d  commands: %d  retries: %d  failures: %d  last: %s\n",
		m.polls, m.stats.Commands, m.stats.Retries, m.stats.Failures,
		m.lastPoll.Format("15:04:05"))
	s += "\nPress q to quit.\n"
	return s
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig()
	if err != nil {
		return err
	}
	session, err := cloudwatcher.Open(cfg, cloudwatcher.WithLogger(newLogger()))
	if err != nil {
		return err
	}
	defer session.Close()

	m := watchModel{
		session:  session,
		connInfo: connectionInfo(cfg),
		interval: watchInterval,
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
