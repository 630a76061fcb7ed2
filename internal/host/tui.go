// ABOUTME: Host TUI for displaying publisher state and stats
// ABOUTME: Real-time host status display using bubbletea
package host

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// VolumeStep is the volume change per keypress, in percent
const VolumeStep = 5

// TUI manages the host status display
type TUI struct {
	program    *tea.Program
	updates    chan Status
	quitChan   chan struct{}
	resetChan  chan struct{}
	volumeChan chan int
	muteChan   chan struct{}
}

// tuiModel is the bubbletea model for the host TUI
type tuiModel struct {
	status     Status
	quitting   bool
	quitChan   chan struct{}
	resetChan  chan struct{}
	volumeChan chan int
	muteChan   chan struct{}
}

type statusMsg Status

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("220"))

	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func (m tuiModel) Init() tea.Cmd {
	return nil
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			select {
			case m.quitChan <- struct{}{}:
			default:
			}
			return m, tea.Quit
		case "r":
			select {
			case m.resetChan <- struct{}{}:
			default:
			}
		case "+", "=":
			m.sendVolume(VolumeStep)
		case "-":
			m.sendVolume(-VolumeStep)
		case "m":
			select {
			case m.muteChan <- struct{}{}:
			default:
			}
		}

	case statusMsg:
		m.status = Status(msg)
	}

	return m, nil
}

func (m tuiModel) sendVolume(delta int) {
	select {
	case m.volumeChan <- delta:
	default:
	}
}

func (m tuiModel) View() string {
	if m.quitting {
		return "Shutting down host...\n"
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("nanometers host"))
	b.WriteString("\n\n")

	row := func(label, value string) {
		b.WriteString(headerStyle.Render(label + ": "))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}

	row("Publisher", m.status.ID)
	row("Address", m.status.Address)
	row("Mode", m.status.Mode)
	row("Uptime", m.status.Uptime.String())
	row("Playing", m.status.AudioTitle)
	row("Format", fmt.Sprintf("%d Hz, %d channels", m.status.SampleRate, m.status.Channels))
	row("Monitor", monitorLine(m.status))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("Streaming"))
	b.WriteString("\n\n")

	switch {
	case !m.status.Streaming:
		b.WriteString("  " + warnStyle.Render("disabled (socket unavailable)"))
	case m.status.Connected:
		b.WriteString("  " + okStyle.Render("consumer connected"))
	default:
		b.WriteString("  " + valueStyle.Render("waiting for consumers"))
	}
	b.WriteString("\n")

	s := m.status.Stats
	lines := []string{
		fmt.Sprintf("  cursor %d / %d", m.status.Cursor, m.status.Capacity),
		fmt.Sprintf("  blocks %d, rejected %d", s.Blocks, s.Rejected),
		fmt.Sprintf("  accepts %d, snapshots %d, write failures %d", s.Accepts, s.Snapshots, s.WriteFailures),
	}
	for _, line := range lines {
		b.WriteString(valueStyle.Render(line))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	help := "Press 'r' to reset the ring, 'q' or Ctrl+C to quit"
	if m.status.Monitoring {
		help = "Press '+'/'-' for volume, 'm' to mute, 'r' to reset the ring, 'q' to quit"
	}
	b.WriteString(lipgloss.NewStyle().Faint(true).Render(help))

	return b.String()
}

func monitorLine(status Status) string {
	if !status.Monitoring {
		return "off"
	}
	volume := fmt.Sprintf("volume %d%%", status.Volume)
	if status.Muted {
		volume = "muted"
	}
	return fmt.Sprintf("%s, dropped %d blocks", volume, status.MonitorDropped)
}

// NewTUI creates a host TUI
func NewTUI() *TUI {
	return &TUI{
		updates:    make(chan Status, 10),
		quitChan:   make(chan struct{}, 1),
		resetChan:  make(chan struct{}, 1),
		volumeChan: make(chan int, 4),
		muteChan:   make(chan struct{}, 1),
	}
}

// Start runs the TUI until the user quits or Stop is called
func (t *TUI) Start() error {
	m := tuiModel{
		status:     Status{AudioTitle: "Initializing..."},
		quitChan:   t.quitChan,
		resetChan:  t.resetChan,
		volumeChan: t.volumeChan,
		muteChan:   t.muteChan,
	}

	t.program = tea.NewProgram(m, tea.WithAltScreen())

	go func() {
		for status := range t.updates {
			t.program.Send(statusMsg(status))
		}
	}()

	_, err := t.program.Run()
	return err
}

// Update sends a status update to the TUI
func (t *TUI) Update(status Status) {
	select {
	case t.updates <- status:
	default:
		// Don't block the host loop
	}
}

// Stop stops the TUI
func (t *TUI) Stop() {
	if t.program != nil {
		t.program.Quit()
	}
	close(t.updates)
}

// QuitChan signals when the user wants to quit
func (t *TUI) QuitChan() <-chan struct{} {
	return t.quitChan
}

// ResetChan signals when the user asks for a ring reset
func (t *TUI) ResetChan() <-chan struct{} {
	return t.resetChan
}

// VolumeChan carries volume changes in percent
func (t *TUI) VolumeChan() <-chan int {
	return t.volumeChan
}

// MuteChan signals when the user toggles mute
func (t *TUI) MuteChan() <-chan struct{} {
	return t.muteChan
}
