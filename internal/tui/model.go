// Package tui is the terminal console shown by "plink play --tui": transport
// status, channel list, console scrollback and a command line.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cbegin/plink-go/internal/code"
	"github.com/cbegin/plink-go/internal/ticktime"
	"github.com/cbegin/plink-go/internal/transport"
)

// Session is the live system the console drives.
type Session interface {
	State() transport.State
	Position() ticktime.Time
	Tempo() float64
	SetTempo(bpm float64) error
	Start()
	Stop()
	// Eval runs a command; its result lands in the console.
	Eval(cmd string)
	Console() []code.Entry
	Channels() []string
}

const (
	refreshInterval = 100 * time.Millisecond
	tempoStep       = 5
	defaultLines    = 12
)

type Model struct {
	Session  Session
	Title    string
	input    []rune
	history  []string
	histPos  int
	status   string
	height   int
	quitting bool
}

type TickMsg time.Time

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	resultStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	exceptionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

func NewModel(s Session, title string) Model {
	return Model{Session: s, Title: title}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd { return tick() }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.key(msg)
	case tea.WindowSizeMsg:
		m.height = msg.Height
	case TickMsg:
		return m, tick()
	}
	return m, nil
}

func (m Model) key(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.status = ""
	switch msg.String() {
	case "ctrl+c", "esc":
		m.quitting = true
		m.Session.Stop()
		return m, tea.Quit

	case "enter":
		cmd := strings.TrimSpace(string(m.input))
		m.input = m.input[:0]
		if cmd != "" {
			m.history = append(m.history, cmd)
			m.histPos = len(m.history)
			m.Session.Eval(cmd)
		}

	case "backspace":
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}

	case "up":
		if m.histPos > 0 {
			m.histPos--
			m.input = []rune(m.history[m.histPos])
		}

	case "down":
		if m.histPos < len(m.history)-1 {
			m.histPos++
			m.input = []rune(m.history[m.histPos])
		} else {
			m.histPos = len(m.history)
			m.input = m.input[:0]
		}

	case "tab":
		if m.Session.State() == transport.Stopped {
			m.Session.Start()
		} else {
			m.Session.Stop()
		}

	case "pgup":
		m.nudgeTempo(tempoStep)
	case "pgdown":
		m.nudgeTempo(-tempoStep)

	default:
		switch msg.Type {
		case tea.KeyRunes:
			m.input = append(m.input, msg.Runes...)
		case tea.KeySpace:
			m.input = append(m.input, ' ')
		}
	}
	return m, nil
}

func (m *Model) nudgeTempo(delta float64) {
	if err := m.Session.SetTempo(m.Session.Tempo() + delta); err != nil {
		m.status = err.Error()
	}
}

// Input is the pending command line.
func (m Model) Input() string { return string(m.input) }

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%s  %-8s %5.1fbpm  %s",
		m.Title, strings.ToUpper(m.Session.State().String()), m.Session.Tempo(), m.Session.Position())))
	b.WriteString("\n")

	channels := m.Session.Channels()
	if len(channels) == 0 {
		b.WriteString(dimStyle.Render("no channels"))
	} else {
		b.WriteString(dimStyle.Render("channels: " + strings.Join(channels, " ")))
	}
	b.WriteString("\n\n")

	lines := defaultLines
	if m.height > 6 {
		lines = m.height - 6
	}
	entries := m.Session.Console()
	if len(entries) > lines {
		entries = entries[len(entries)-lines:]
	}
	for _, e := range entries {
		b.WriteString(renderEntry(e))
		b.WriteString("\n")
	}

	if m.status != "" {
		b.WriteString(statusStyle.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString("> " + string(m.input) + "█\n")
	b.WriteString(dimStyle.Render("enter:eval  tab:start/stop  pgup/pgdn:tempo  up/down:history  esc:quit"))
	return b.String()
}

func renderEntry(e code.Entry) string {
	switch e.Kind {
	case code.EntryCommand:
		return dimStyle.Render("> " + e.Text)
	case code.EntryResult:
		return resultStyle.Render(e.Text)
	case code.EntryException:
		return exceptionStyle.Render("! " + e.Text)
	default:
		return e.Text
	}
}
