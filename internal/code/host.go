package code

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/cbegin/plink-go/internal/audiosys"
	"github.com/cbegin/plink-go/internal/metronome"
	"github.com/cbegin/plink-go/internal/scheduler"
	"github.com/cbegin/plink-go/internal/ticktime"
	"github.com/cbegin/plink-go/internal/transport"
	"gitlab.com/gomidi/midi/v2"
)

// Environment holds the parts of the world scripts may manipulate.
type Environment struct {
	Audio     *audiosys.System
	Metronome *metronome.Metronome
	Transport *transport.Transport
	Scheduler *scheduler.Scheduler
	// Delegate hears about failures in work the host runs later. May be nil.
	Delegate Delegate
}

// Host is the language-independent side of the scripting API. It remembers
// the actions scripts schedule so that a reset can cancel them.
type Host struct {
	env Environment

	mu    sync.Mutex
	owned map[scheduler.ActionID]struct{}
}

func NewHost(env Environment) *Host {
	return &Host{env: env, owned: map[scheduler.ActionID]struct{}{}}
}

func (h *Host) Environment() Environment { return h.env }

func (h *Host) track(id scheduler.ActionID) {
	h.mu.Lock()
	h.owned[id] = struct{}{}
	h.mu.Unlock()
}

func (h *Host) untrack(id scheduler.ActionID) {
	h.mu.Lock()
	delete(h.owned, id)
	h.mu.Unlock()
}

// oneShot registers a self-forgetting action. h.mu is held across schedule so
// the action cannot fire before its id is recorded.
func (h *Host) oneShot(schedule func(fn func()) scheduler.ActionID, fn func()) scheduler.ActionID {
	h.mu.Lock()
	defer h.mu.Unlock()
	var id scheduler.ActionID
	id = schedule(func() {
		h.mu.Lock()
		delete(h.owned, id)
		h.mu.Unlock()
		fn()
	})
	h.owned[id] = struct{}{}
	return id
}

// EveryTickMultiple runs fn on every program tick divisible by n.
func (h *Host) EveryTickMultiple(n int64, fn scheduler.PeriodicFunc) (scheduler.ActionID, error) {
	if n < 1 {
		return 0, fmt.Errorf("%w: %d ticks", ErrInvalidInterval, n)
	}
	id, err := h.env.Scheduler.CreatePeriodicAction(ticktime.Duration(n), fn)
	if err != nil {
		return 0, err
	}
	h.track(id)
	return id, nil
}

// EveryBeatFraction runs fn every num/denom of a beat.
func (h *Host) EveryBeatFraction(num, denom int64, fn scheduler.PeriodicFunc) (scheduler.ActionID, error) {
	if denom == 0 {
		return 0, fmt.Errorf("%w: %d/%d beat", ErrInvalidInterval, num, denom)
	}
	ticks := ticktime.TicksPerBeat * num / denom
	if ticks < 1 {
		return 0, fmt.Errorf("%w: %d/%d beat is shorter than 1/%d", ErrInvalidInterval, num, denom, ticktime.TicksPerBeat)
	}
	return h.EveryTickMultiple(ticks, fn)
}

// AtTickTime runs fn once when the program reaches tick t.
func (h *Host) AtTickTime(t ticktime.Time, fn func()) scheduler.ActionID {
	return h.oneShot(func(fn func()) scheduler.ActionID {
		return h.env.Scheduler.CreateSingleAction(t, fn)
	}, fn)
}

// AtBeatTime runs fn once when the program reaches beat, truncated to a tick.
func (h *Host) AtBeatTime(beat float64, fn func()) scheduler.ActionID {
	return h.AtTickTime(ticktime.Time(beat*ticktime.TicksPerBeat), fn)
}

// SetTimeout runs fn after beats on the master clock, whether or not the
// transport is running.
func (h *Host) SetTimeout(beats float64, fn func()) scheduler.ActionID {
	at := h.env.Metronome.MasterTime() + ticktime.Time(math.Round(beats*ticktime.TicksPerBeat))
	return h.oneShot(func(fn func()) scheduler.ActionID {
		return h.env.Scheduler.ScheduleMaster(at, fn)
	}, fn)
}

// Cancel deletes an action. Unknown ids are ignored.
func (h *Host) Cancel(id scheduler.ActionID) {
	h.env.Scheduler.DeleteAction(id)
	h.untrack(id)
}

// CancelAll deletes every action scheduled through h.
func (h *Host) CancelAll() {
	h.mu.Lock()
	owned := h.owned
	h.owned = map[scheduler.ActionID]struct{}{}
	h.mu.Unlock()
	for id := range owned {
		h.env.Scheduler.DeleteAction(id)
	}
}

// Pending is the number of live actions scheduled through h.
func (h *Host) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.owned)
}

func (h *Host) Tempo() float64 { return h.env.Metronome.Tempo() }

func (h *Host) SetTempo(bpm float64) error { return h.env.Metronome.SetTempo(bpm) }

func (h *Host) Start() { h.env.Transport.StartInPlace() }

func (h *Host) Stop() { h.env.Transport.Stop() }

func (h *Host) Position() ticktime.Time { return h.env.Transport.ProgramPosition() }

func (h *Host) Channel(name string) (*audiosys.Channel, bool) {
	if h.env.Audio == nil {
		return nil, false
	}
	return h.env.Audio.Channel(name)
}

// Play sends a note-on now and the matching note-off dur ticks later on the
// master clock.
func (h *Host) Play(c *audiosys.Channel, note, velocity uint8, dur ticktime.Duration) error {
	if err := c.Send(midi.NoteOn(0, note, velocity)); err != nil {
		return err
	}
	at := h.env.Metronome.MasterTime() + dur
	h.oneShot(func(fn func()) scheduler.ActionID {
		return h.env.Scheduler.ScheduleMaster(at, fn)
	}, func() {
		if err := c.Send(midi.NoteOff(0, note)); err != nil {
			h.report(fmt.Errorf("note-off %d on %q: %w", note, c.Name(), err))
		}
	})
	return nil
}

func (h *Host) report(err error) {
	if h.env.Delegate != nil {
		h.env.Delegate.ExceptionOccurred(err.Error())
	}
}

// GraphDump lists the audio graph.
func (h *Host) GraphDump() (string, error) {
	var b strings.Builder
	if h.env.Audio == nil {
		return "", nil
	}
	if err := h.env.Audio.Dump(&b); err != nil {
		return "", err
	}
	return b.String(), nil
}

// ChannelDump lists each channel as "i: name: instrument |> [inserts]".
func (h *Host) ChannelDump() string {
	if h.env.Audio == nil {
		return ""
	}
	g := h.env.Audio.Graph()
	var b strings.Builder
	for i, c := range h.env.Audio.Channels() {
		inst := "-"
		if n := c.Instrument(); !n.IsZero() {
			if d, err := g.Description(n); err == nil {
				inst = d.String()
			}
		}
		var inserts []string
		for _, n := range c.Inserts() {
			if d, err := g.Description(n); err == nil {
				inserts = append(inserts, d.String())
			}
		}
		fmt.Fprintf(&b, "%d: %s: %s |> [%s]\n", i, c.Name(), inst, strings.Join(inserts, ", "))
	}
	return b.String()
}
