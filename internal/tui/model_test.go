package tui

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/plink-go/internal/code"
	"github.com/cbegin/plink-go/internal/ticktime"
	"github.com/cbegin/plink-go/internal/transport"
)

type fakeSession struct {
	state    transport.State
	tempo    float64
	evals    []string
	console  []code.Entry
	channels []string
}

func (s *fakeSession) State() transport.State  { return s.state }
func (s *fakeSession) Position() ticktime.Time { return 30 }
func (s *fakeSession) Tempo() float64          { return s.tempo }
func (s *fakeSession) Start()                  { s.state = transport.Starting }
func (s *fakeSession) Stop()                   { s.state = transport.Stopped }
func (s *fakeSession) Console() []code.Entry   { return s.console }
func (s *fakeSession) Channels() []string      { return s.channels }

func (s *fakeSession) SetTempo(bpm float64) error {
	if bpm <= 0 {
		return errors.New("bad tempo")
	}
	s.tempo = bpm
	return nil
}

func (s *fakeSession) Eval(cmd string) {
	s.evals = append(s.evals, cmd)
	s.console = append(s.console, code.Entry{Kind: code.EntryCommand, Text: cmd}, code.Entry{Kind: code.EntryResult, Text: "ok"})
}

func send(t *testing.T, m Model, msgs ...tea.Msg) Model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		var ok bool
		m, ok = next.(Model)
		require.True(t, ok)
	}
	return m
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func TestTypingAndEval(t *testing.T) {
	s := &fakeSession{tempo: 120}
	m := send(t, NewModel(s, "plink"),
		runes("1+"),
		tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}},
		runes("22"),
		tea.KeyMsg{Type: tea.KeyBackspace},
	)
	assert.Equal(t, "1+ 2", m.Input())

	m = send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, []string{"1+ 2"}, s.evals)
	assert.Empty(t, m.Input())

	// blank lines are not evaluated
	send(t, m, runes("  "), tea.KeyMsg{Type: tea.KeyEnter})
	assert.Len(t, s.evals, 1)
}

func TestHistory(t *testing.T) {
	s := &fakeSession{tempo: 120}
	m := send(t, NewModel(s, "plink"),
		runes("a"), tea.KeyMsg{Type: tea.KeyEnter},
		runes("b"), tea.KeyMsg{Type: tea.KeyEnter},
		tea.KeyMsg{Type: tea.KeyUp},
	)
	assert.Equal(t, "b", m.Input())
	m = send(t, m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, "a", m.Input())
	m = send(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, "b", m.Input())
	m = send(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Empty(t, m.Input())
}

func TestTransportKeys(t *testing.T) {
	s := &fakeSession{tempo: 120}
	m := send(t, NewModel(s, "plink"), tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, transport.Starting, s.state)
	m = send(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, transport.Stopped, s.state)

	m = send(t, m, tea.KeyMsg{Type: tea.KeyPgUp})
	assert.InDelta(t, 125, s.tempo, 1e-9)

	s.tempo = 5
	m = send(t, m, tea.KeyMsg{Type: tea.KeyPgDown})
	assert.InDelta(t, 5, s.tempo, 1e-9)
	assert.Contains(t, m.View(), "bad tempo")
}

func TestQuitStopsTransport(t *testing.T) {
	s := &fakeSession{tempo: 120, state: transport.Running}
	next, cmd := NewModel(s, "plink").Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, transport.Stopped, s.state)
	assert.Empty(t, next.View())
}

func TestView(t *testing.T) {
	s := &fakeSession{
		tempo:    90,
		state:    transport.Running,
		channels: []string{"lead", "bass"},
		console: []code.Entry{
			{Kind: code.EntryLog, Text: "hello"},
			{Kind: code.EntryException, Text: "boom"},
		},
	}
	m := send(t, NewModel(s, "plink"), runes("x"))
	v := m.View()
	assert.Contains(t, v, "RUNNING")
	assert.Contains(t, v, "90.0bpm")
	assert.Contains(t, v, "1∙6")
	assert.Contains(t, v, "channels: lead bass")
	assert.Contains(t, v, "hello")
	assert.Contains(t, v, "! boom")
	assert.Contains(t, v, "> x")

	// a short window keeps only the newest entries
	m = send(t, m, tea.WindowSizeMsg{Width: 80, Height: 7})
	v = m.View()
	assert.NotContains(t, v, "hello")
	assert.Contains(t, v, "! boom")
}
