// ABOUTME: Bubbletea model for the scope TUI
// ABOUTME: Shows connection state, cursor, level meters, and a waveform
package scope

import (
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	defaultWidth = 64
	waveRows     = 8
	meterWidth   = 40
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	waveStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	peakStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	downStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle  = lipgloss.NewStyle().Faint(true)
)

// Model represents the scope TUI state
type Model struct {
	// Connection
	connected bool
	address   string
	connects  uint64
	errors    uint64

	// Latest snapshot
	cursor    int
	capacity  int
	snapshots uint64
	levels    Levels
	envelope  []float64

	// Relay
	relayAddr    string
	relayClients int

	paused   bool
	quit     chan struct{}
	onResize func(columns int)

	width  int
	height int
}

// StatusMsg updates connection state. Nil fields are left unchanged.
type StatusMsg struct {
	Connected    *bool
	Address      string
	Connects     uint64
	Errors       uint64
	RelayAddr    string
	RelayClients *int
}

// SnapshotMsg carries the analysis of one received snapshot
type SnapshotMsg struct {
	Cursor    int
	Capacity  int
	Snapshots uint64
	Levels    Levels
	Envelope  []float64
}

// NewModel creates a scope model. quit is signalled when the user exits;
// it may be nil.
func NewModel(address string, quit chan struct{}) Model {
	return Model{
		address: address,
		quit:    quit,
		width:   defaultWidth,
	}
}

// OnResize registers a callback for waveform width changes
func (m Model) OnResize(f func(columns int)) Model {
	m.onResize = f
	return m
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.onResize != nil {
			m.onResize(m.Columns())
		}
	case StatusMsg:
		m.applyStatus(msg)
	case SnapshotMsg:
		if !m.paused {
			m.applySnapshot(msg)
		}
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.quit != nil {
			select {
			case m.quit <- struct{}{}:
			default:
			}
		}
		return m, tea.Quit
	case "p", " ":
		m.paused = !m.paused
	}
	return m, nil
}

func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Connected != nil {
		m.connected = *msg.Connected
	}
	if msg.Address != "" {
		m.address = msg.Address
	}
	if msg.Connects != 0 {
		m.connects = msg.Connects
	}
	if msg.Errors != 0 {
		m.errors = msg.Errors
	}
	if msg.RelayAddr != "" {
		m.relayAddr = msg.RelayAddr
	}
	if msg.RelayClients != nil {
		m.relayClients = *msg.RelayClients
	}
}

func (m *Model) applySnapshot(msg SnapshotMsg) {
	m.cursor = msg.Cursor
	m.capacity = msg.Capacity
	m.snapshots = msg.Snapshots
	m.levels = msg.Levels
	m.envelope = msg.Envelope
}

// Columns returns the waveform width for the current terminal size
func (m Model) Columns() int {
	return max(8, m.width-4)
}

// View renders the TUI
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("nanometers scope"))
	b.WriteString("\n\n")

	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderMeters())
	b.WriteString("\n")
	b.WriteString(m.renderWave())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("p:Pause  q:Quit"))

	return b.String()
}

func (m Model) renderHeader() string {
	status := downStyle.Render("Disconnected")
	if m.connected {
		status = waveStyle.Render("Connected")
	}
	if m.paused {
		status += peakStyle.Render(" (paused)")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s\n", labelStyle.Render("Status:"), status, valueStyle.Render(m.address))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Cursor:"),
		valueStyle.Render(fmt.Sprintf("%d / %d", m.cursor, m.capacity)))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Stats: "),
		valueStyle.Render(fmt.Sprintf("snapshots %d, connects %d, errors %d", m.snapshots, m.connects, m.errors)))
	if m.relayAddr != "" {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Relay: "),
			valueStyle.Render(fmt.Sprintf("ws://%s/scope (%d clients)", m.relayAddr, m.relayClients)))
	}
	return b.String()
}

func (m Model) renderMeters() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s\n", labelStyle.Render("Peak:"),
		peakStyle.Render(renderBar(m.levels.Peak, meterWidth)), valueStyle.Render(formatDB(m.levels.Peak)))
	fmt.Fprintf(&b, "%s %s %s\n", labelStyle.Render("RMS: "),
		waveStyle.Render(renderBar(m.levels.RMS, meterWidth)), valueStyle.Render(formatDB(m.levels.RMS)))
	return b.String()
}

func (m Model) renderWave() string {
	if len(m.envelope) == 0 {
		return valueStyle.Render("  (no signal)") + "\n"
	}

	var b strings.Builder
	for _, line := range RenderWave(m.envelope, waveRows) {
		b.WriteString("  ")
		b.WriteString(waveStyle.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

func formatDB(level float64) string {
	db := DBFS(level)
	if math.IsInf(db, -1) {
		return "  -inf dBFS"
	}
	return fmt.Sprintf("%6.1f dBFS", db)
}
