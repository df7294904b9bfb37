// SPDX-License-Identifier: BSD-2-Clause
// Copyright (c) 2026 Frederic Detienne

package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/TotallyFred/cloudwatcher/pkg/upgrade"
)

var (
	upgradeFirmware    string
	upgradeRebootFirst bool
)

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Flash a firmware image onto the unit",
	Long: `Transfer a firmware image to the unit's bootloader. The image is
sent block by block, verified against its checksum on the device, and
committed only after verification succeeds. An aborted transfer leaves
the running firmware untouched.

Exit codes: 0 on success, 2 when the device rejected or failed the
transfer, 1 for any other error.`,
	RunE: runUpgrade,
}

func init() {
	upgradeCmd.Flags().StringVarP(&upgradeFirmware, "firmware", "f", "", "Path to the firmware image (required)")
	upgradeCmd.Flags().BoolVar(&upgradeRebootFirst, "reboot-first", false, "Reboot the unit before entering the bootloader")
	upgradeCmd.MarkFlagRequired("firmware")
	rootCmd.AddCommand(upgradeCmd)
}

var (
	upgradeDoneStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	upgradeFailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

type upgradeStepMsg struct {
	status upgrade.Status
	err    error
}

type upgradeModel struct {
	transfer *upgrade.Transfer
	bar      progress.Model
	status   upgrade.Status
	done     bool
}

func (m upgradeModel) Init() tea.Cmd {
	return m.step()
}

func (m upgradeModel) step() tea.Cmd {
	return func() tea.Msg {
		status, err := m.transfer.Step()
		return upgradeStepMsg{status: status, err: err}
	}
}

func (m upgradeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.transfer.Abort()
			return m, nil
		}

	case upgradeStepMsg:
		m.status = msg.status
		if msg.status.State.Terminal() {
			m.done = true
			return m, tea.Quit
		}
		return m, m.step()

	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd
	}

	return m, nil
}

func (m upgradeModel) percent() float64 {
	switch {
	case m.status.State == upgrade.StateDone:
		return 1.0
	case m.status.State == upgrade.StateVerifying || m.status.State == upgrade.StateCommitting:
		return 0.95
	case m.status.TotalBlocks > 0:
		return float64(m.status.Block) / float64(m.status.TotalBlocks) * 0.90
	default:
		return 0
	}
}

func (m upgradeModel) View() string {
	s := fmt.Sprintf("Flashing firmware: %s\n\n", m.status.State)
	s += m.bar.ViewAs(m.percent()) + "\n"
	if m.status.TotalBlocks > 0 {
		s += fmt.Sprintf("block %d of %d\n", m.status.Block, m.status.TotalBlocks)
	}
	if m.done {
		if m.status.Err != nil {
			s += "\n" + upgradeFailStyle.Render(fmt.Sprintf("Transfer failed: %v", m.status.Err)) + "\n"
		} else {
			s += "\n" + upgradeDoneStyle.Render("Firmware transferred and committed.") + "\n"
		}
	} else {
		s += "\nPress ctrl+c to abort.\n"
	}
	return s
}

func runUpgrade(cmd *cobra.Command, args []string) error {
	img, err := upgrade.LoadImage(upgradeFirmware)
	if err != nil {
		return fmt.Errorf("load firmware image: %w", err)
	}

	session, err := openSession()
	if err != nil {
		return err
	}
	defer session.Close()

	if upgradeRebootFirst {
		if _, err := session.Reboot(); err != nil {
			return fmt.Errorf("reboot before upgrade: %w", err)
		}
	}

	transfer, err := session.BeginUpgrade(img)
	if err != nil {
		return err
	}

	m := upgradeModel{
		transfer: transfer,
		bar:      progress.New(progress.WithDefaultGradient()),
	}
	final, err := tea.NewProgram(m).Run()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	if terr := final.(upgradeModel).status.Err; terr != nil {
		var aborted *upgrade.AbortedError
		if errors.As(terr, &aborted) {
			fmt.Fprintf(os.Stderr, "upgrade aborted in %s: %v\n", aborted.Phase, aborted.Cause)
		}
		os.Exit(2)
	}
	return nil
}
