// Package transport implements the play/stop/seek state machine that maps
// master ticks onto program position.
package transport

import (
	"errors"
	"sync"

	"github.com/cbegin/plink-go/internal/ticktime"
)

// ErrNotStopped is returned by RewindStopped while playing.
var ErrNotStopped = errors.New("transport: not stopped")

type State int

const (
	Stopped State = iota
	Starting
	Running
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	}
	return "unknown"
}

// Client receives every program tick while the transport runs.
type Client interface {
	TransportTick(t ticktime.Time)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(t ticktime.Time)

func (f ClientFunc) TransportTick(t ticktime.Time) { f(t) }

// Clock reports the next master tick to fire.
type Clock interface {
	MasterTime() ticktime.Time
}

// Change describes a running-state transition.
type Change struct {
	From, To State
	// At is the program position at the transition.
	At ticktime.Time
}

// Transport is driven by Tick from the render path; the remaining methods may
// be called from any goroutine. Clients and observers must be registered
// before the render path starts.
type Transport struct {
	clock Clock

	mu     sync.Mutex
	state  State
	at     ticktime.Time // position while stopped or starting
	offset ticktime.Time // program position = master tick + offset while running

	clients   []Client
	observers []func(Change)
}

func New(clock Clock) *Transport {
	return &Transport{clock: clock}
}

// AddClient registers c. Clients run in registration order.
func (tr *Transport) AddClient(c Client) {
	tr.clients = append(tr.clients, c)
}

// OnRunningStateChange registers an observer for state transitions.
func (tr *Transport) OnRunningStateChange(fn func(Change)) {
	tr.observers = append(tr.observers, fn)
}

func (tr *Transport) State() State {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.state
}

// ProgramPosition is the next program tick to play while running, or the
// stored position otherwise.
func (tr *Transport) ProgramPosition() ticktime.Time {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.positionLocked()
}

func (tr *Transport) positionLocked() ticktime.Time {
	if tr.state == Running {
		return tr.clock.MasterTime() + tr.offset
	}
	return tr.at
}

// StartInPlace starts from the stored position. It does nothing unless stopped.
func (tr *Transport) StartInPlace() {
	tr.mu.Lock()
	if tr.state != Stopped {
		tr.mu.Unlock()
		return
	}
	ch := Change{From: tr.state, To: Starting, At: tr.at}
	tr.state = Starting
	tr.mu.Unlock()
	tr.notify(ch)
}

// Start seeks to at and starts, from any state.
func (tr *Transport) Start(at ticktime.Time) {
	tr.mu.Lock()
	ch := Change{From: tr.state, To: Starting, At: at}
	tr.state, tr.at = Starting, at
	tr.mu.Unlock()
	tr.notify(ch)
}

// Stop stores the current program position and stops.
func (tr *Transport) Stop() {
	tr.mu.Lock()
	if tr.state == Stopped {
		tr.mu.Unlock()
		return
	}
	pos := tr.positionLocked()
	ch := Change{From: tr.state, To: Stopped, At: pos}
	tr.state, tr.at = Stopped, pos
	tr.mu.Unlock()
	tr.notify(ch)
}

// RewindStopped resets the stored position to zero.
func (tr *Transport) RewindStopped() error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.state != Stopped {
		return ErrNotStopped
	}
	tr.at = 0
	return nil
}

// Tick is the metronome listener. A starting transport begins running on the
// first tick it sees; a running transport hands the program position to every
// client.
func (tr *Transport) Tick(master ticktime.Time) {
	tr.mu.Lock()
	var (
		ch      Change
		changed bool
	)
	switch tr.state {
	case Stopped:
		tr.mu.Unlock()
		return
	case Starting:
		tr.offset = tr.at - master
		ch = Change{From: Starting, To: Running, At: tr.at}
		tr.state, changed = Running, true
	}
	pos := master + tr.offset
	tr.mu.Unlock()

	if changed {
		tr.notify(ch)
	}
	for _, c := range tr.clients {
		c.TransportTick(pos)
	}
}

func (tr *Transport) notify(ch Change) {
	for _, fn := range tr.observers {
		fn(ch)
	}
}
