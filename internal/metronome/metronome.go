// Package metronome turns elapsed audio frames into discrete master ticks.
package metronome

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cbegin/plink-go/internal/ticktime"
)

// ErrInvalidTempo is returned for tempos that are not positive and finite.
var ErrInvalidTempo = errors.New("metronome: tempo must be positive")

// DefaultTempo is used when none is given.
const DefaultTempo = 120.0

// TickFunc receives the master tick being fired.
type TickFunc func(t ticktime.Time)

// Metronome is driven from the render path by Advance. Tempo may be read and
// changed from any goroutine. Listeners must be registered before the render
// path starts calling Advance.
type Metronome struct {
	tempo atomic.Uint64 // float64 bits

	tickFrac float64
	tickInt  ticktime.Time
	next     atomic.Int64

	listeners []TickFunc

	tempoMu        sync.Mutex
	tempoListeners []func(bpm float64)
}

func New(bpm float64) (*Metronome, error) {
	m := &Metronome{}
	if err := m.SetTempo(bpm); err != nil {
		return nil, err
	}
	return m, nil
}

// Tempo returns the current tempo in beats per minute.
func (m *Metronome) Tempo() float64 {
	return math.Float64frombits(m.tempo.Load())
}

// SetTempo changes the tempo and notifies tempo listeners on the caller's
// goroutine. The new tempo applies from the next Advance.
func (m *Metronome) SetTempo(bpm float64) error {
	if !(bpm > 0) || math.IsInf(bpm, 0) {
		return ErrInvalidTempo
	}
	m.tempo.Store(math.Float64bits(bpm))
	m.tempoMu.Lock()
	listeners := m.tempoListeners
	m.tempoMu.Unlock()
	for _, fn := range listeners {
		fn(bpm)
	}
	return nil
}

// TickSeconds is the length of one tick at the current tempo.
func (m *Metronome) TickSeconds() float64 { return ticktime.TickSeconds(m.Tempo()) }

// TickDuration is TickSeconds as a time.Duration.
func (m *Metronome) TickDuration() time.Duration { return ticktime.TickDuration(m.Tempo()) }

// OnTick registers a per-tick listener. Listeners run in registration order.
func (m *Metronome) OnTick(fn TickFunc) {
	m.listeners = append(m.listeners, fn)
}

// OnTempoChange registers a tempo listener.
func (m *Metronome) OnTempoChange(fn func(bpm float64)) {
	m.tempoMu.Lock()
	defer m.tempoMu.Unlock()
	m.tempoListeners = append(m.tempoListeners[:len(m.tempoListeners):len(m.tempoListeners)], fn)
}

// MasterTime is the next master tick to fire; it equals the number of ticks
// fired so far.
func (m *Metronome) MasterTime() ticktime.Time {
	return ticktime.Time(m.next.Load())
}

// Advance accumulates frames worth of time and fires the listeners once for
// every tick reached, in order. A tick fires as soon as the continuous
// position reaches it, so the first Advance fires tick 0.
func (m *Metronome) Advance(frames int, sampleRate float64) {
	if frames <= 0 || sampleRate <= 0 {
		return
	}
	ticksPerFrame := m.Tempo() * ticktime.TicksPerBeat / (60 * sampleRate)
	m.tickFrac += ticksPerFrame * float64(frames)
	for float64(m.tickInt) <= m.tickFrac {
		t := m.tickInt
		m.tickInt++
		m.next.Store(int64(m.tickInt))
		for _, fn := range m.listeners {
			fn(t)
		}
	}
}

// Reset returns the master clock to zero.
func (m *Metronome) Reset() {
	m.tickFrac = 0
	m.tickInt = 0
	m.next.Store(0)
}
