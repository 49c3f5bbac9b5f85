// Package instrument adapts note-level synth engines into graph units fed by
// MIDI messages.
package instrument

import (
	"math"
	"sync/atomic"

	"github.com/cbegin/plink-go/internal/param"
	"gitlab.com/gomidi/midi/v2"
)

// DefaultQueueSize bounds the messages that may be pending between renders.
const DefaultQueueSize = 256

// Voicer is the note-level surface of a synth engine.
type Voicer interface {
	NoteOn(key, velocity uint8)
	NoteOff(key uint8)
	ControlChange(cc, value uint8)
	ProgramChange(program uint8)
	AllNotesOff()
}

// Engine is a Voicer that renders frame by frame.
type Engine interface {
	Voicer
	Configure(p *param.Set)
	RenderFrame() (float32, float32)
	Reset()
}

// Receiver accepts instrument events from any goroutine.
type Receiver interface {
	Send(msg midi.Message) bool
}

// Queue carries messages from general goroutines to the render path.
type Queue struct {
	events  chan midi.Message
	dropped atomic.Uint64
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{events: make(chan midi.Message, size)}
}

// Send enqueues msg without blocking. It reports false, and counts the
// drop, when the queue is full.
func (q *Queue) Send(msg midi.Message) bool {
	select {
	case q.events <- msg:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Dropped returns how many messages Send has discarded.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }

// Drain dispatches every pending message to v.
func (q *Queue) Drain(v Voicer) {
	for {
		select {
		case msg := <-q.events:
			Dispatch(msg, v)
		default:
			return
		}
	}
}

func (q *Queue) discard() {
	for {
		select {
		case <-q.events:
		default:
			return
		}
	}
}

// Control numbers with fixed meaning.
const (
	CCModulation  = 1
	CCVolume      = 7
	CCPan         = 10
	CCAllSoundOff = 120
	CCAllNotesOff = 123
)

// Dispatch decodes msg and calls the matching Voicer method. A note on with
// zero velocity is a note off. Channel numbers are ignored.
func Dispatch(msg midi.Message, v Voicer) {
	var ch, key, vel, cc, val, prog uint8
	switch {
	case msg.GetNoteOn(&ch, &key, &vel):
		if vel == 0 {
			v.NoteOff(key)
		} else {
			v.NoteOn(key, vel)
		}
	case msg.GetNoteOff(&ch, &key, &vel):
		v.NoteOff(key)
	case msg.GetControlChange(&ch, &cc, &val):
		if cc == CCAllSoundOff || cc == CCAllNotesOff {
			v.AllNotesOff()
			return
		}
		v.ControlChange(cc, val)
	case msg.GetProgramChange(&ch, &prog):
		v.ProgramChange(prog)
	}
}

// Freq converts a MIDI key to Hz (A4 = 69 = 440Hz).
func Freq(key float64) float64 {
	return 440 * math.Pow(2, (key-69)/12)
}

// Pan maps a CC value (0..127, 64 centre) to -1..1.
func Pan(value uint8) float64 {
	return max(-1, (float64(value)-64)/63)
}

// Unit is a zero-input graph unit that renders an Engine.
type Unit struct {
	*param.Set
	*Queue
	engine Engine
	seen   uint64
}

func NewUnit(e Engine, queueSize int, defs ...param.Def) *Unit {
	u := &Unit{Set: param.NewSet(defs...), Queue: NewQueue(queueSize), engine: e}
	e.Configure(u.Set)
	return u
}

func (u *Unit) Inputs() int { return 0 }

// Render applies parameter changes, then pending events, then synthesizes.
func (u *Unit) Render(out []float32, _ [][]float32) {
	if u.Changed(&u.seen) {
		u.engine.Configure(u.Set)
	}
	u.Drain(u.engine)
	for i := 0; i+1 < len(out); i += 2 {
		out[i], out[i+1] = u.engine.RenderFrame()
	}
}

// Reset silences the engine and discards pending events.
func (u *Unit) Reset() {
	u.discard()
	u.engine.Reset()
}

func (u *Unit) Engine() Engine { return u.engine }
