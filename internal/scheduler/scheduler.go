// Package scheduler keeps the periodic and one-shot actions that run against
// program time, plus a small queue of actions keyed to the master clock.
package scheduler

import (
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/cbegin/plink-go/internal/ticktime"
	"github.com/cbegin/plink-go/internal/transport"
)

// ErrInvalidPeriod is returned for periodic actions with period <= 0.
var ErrInvalidPeriod = errors.New("scheduler: period must be positive")

// ActionID identifies a scheduled action. IDs increase monotonically and are
// never reused by a Scheduler.
type ActionID int64

// PeriodicFunc receives the cycle index (t / period) and the tick.
type PeriodicFunc func(cycle int64, t ticktime.Time)

type periodicAction struct {
	id      ActionID
	period  ticktime.Duration
	modulus ticktime.Time
	enabled bool
	fn      PeriodicFunc
}

type singleAction struct {
	id      ActionID
	enabled bool
	fn      func()
}

type masterAction struct {
	id ActionID
	at ticktime.Time
	fn func()
}

// ActionOption adjusts an action at creation.
type ActionOption func(*actionConfig)

type actionConfig struct {
	modulus ticktime.Time
	enabled bool
}

// WithModulus sets the tick offset inside the period at which a periodic
// action fires. A modulus outside [0, period) never fires.
func WithModulus(m ticktime.Time) ActionOption {
	return func(c *actionConfig) { c.modulus = m }
}

// Disabled registers the action without enabling it.
func Disabled() ActionOption {
	return func(c *actionConfig) { c.enabled = false }
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger used to report recovered panics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithPanicHandler installs a hook called when an action panics. The tick
// keeps running the remaining actions either way.
func WithPanicHandler(fn func(id ActionID, v any)) Option {
	return func(s *Scheduler) { s.onPanic = fn }
}

// Scheduler registration calls are safe for concurrent use. RunFor and
// MasterTick belong to a single goroutine (the render path); actions run there
// without the internal lock held, so actions may create or delete other actions.
type Scheduler struct {
	mu       sync.Mutex
	nextID   ActionID
	periodic []periodicAction
	singles  map[ticktime.Time][]singleAction
	master   []masterAction
	lastRun  ticktime.Time
	hasRun   bool

	// scratch buffers reused across ticks
	duePeriodic []periodicAction
	dueSingle   []singleAction
	dueMaster   []masterAction

	log     *slog.Logger
	onPanic func(id ActionID, v any)
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		singles: make(map[ticktime.Time][]singleAction),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "scheduler")
	return s
}

func (s *Scheduler) allocID() ActionID {
	s.nextID++
	return s.nextID
}

func resolve(opts []ActionOption) actionConfig {
	cfg := actionConfig{enabled: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// CreatePeriodicAction registers fn to run at every tick t with
// t mod period == modulus.
func (s *Scheduler) CreatePeriodicAction(period ticktime.Duration, fn PeriodicFunc, opts ...ActionOption) (ActionID, error) {
	if period <= 0 {
		return 0, ErrInvalidPeriod
	}
	cfg := resolve(opts)
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.allocID()
	s.periodic = append(s.periodic, periodicAction{id: id, period: period, modulus: cfg.modulus, enabled: cfg.enabled, fn: fn})
	return id, nil
}

// CreateSingleAction registers fn to run once, when RunFor(at) is called.
// The action is removed after it runs.
func (s *Scheduler) CreateSingleAction(at ticktime.Time, fn func(), opts ...ActionOption) ActionID {
	cfg := resolve(opts)
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.allocID()
	s.singles[at] = append(s.singles[at], singleAction{id: id, enabled: cfg.enabled, fn: fn})
	return id
}

// ScheduleMaster registers fn to run once when MasterTick reaches at. Master
// actions follow the metronome and ignore the transport state.
func (s *Scheduler) ScheduleMaster(at ticktime.Time, fn func()) ActionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.allocID()
	s.master = append(s.master, masterAction{id: id, at: at, fn: fn})
	return id
}

// DeleteAction removes id from every registry. Unknown ids are ignored.
func (s *Scheduler) DeleteAction(id ActionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.periodic = slices.DeleteFunc(s.periodic, func(a periodicAction) bool { return a.id == id })
	for t, list := range s.singles {
		list = slices.DeleteFunc(list, func(a singleAction) bool { return a.id == id })
		if len(list) == 0 {
			delete(s.singles, t)
		} else {
			s.singles[t] = list
		}
	}
	s.master = slices.DeleteFunc(s.master, func(a masterAction) bool { return a.id == id })
}

// SetEnabled toggles a periodic or single action. It reports whether id was found.
func (s *Scheduler) SetEnabled(id ActionID, enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.periodic {
		if s.periodic[i].id == id {
			s.periodic[i].enabled = enabled
			return true
		}
	}
	for _, list := range s.singles {
		for i := range list {
			if list[i].id == id {
				list[i].enabled = enabled
				return true
			}
		}
	}
	return false
}

// Len reports the number of registered actions.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.periodic) + len(s.master)
	for _, list := range s.singles {
		n += len(list)
	}
	return n
}

// Clear drops every pending action.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.periodic = nil
	clear(s.singles)
	s.master = nil
	s.hasRun = false
}

// RunFor runs the actions due at program tick t: enabled periodic actions
// first, then enabled single actions, each group in creation order. Calling
// RunFor again with the tick it last processed does nothing until the next
// session starts.
func (s *Scheduler) RunFor(t ticktime.Time) {
	s.mu.Lock()
	if s.hasRun && s.lastRun == t {
		s.mu.Unlock()
		return
	}
	s.lastRun, s.hasRun = t, true

	s.duePeriodic = s.duePeriodic[:0]
	for _, a := range s.periodic {
		if a.enabled && t%a.period == a.modulus {
			s.duePeriodic = append(s.duePeriodic, a)
		}
	}
	s.dueSingle = s.dueSingle[:0]
	if list, ok := s.singles[t]; ok {
		for _, a := range list {
			if a.enabled {
				s.dueSingle = append(s.dueSingle, a)
			}
		}
		delete(s.singles, t)
	}
	periodic, single := s.duePeriodic, s.dueSingle
	s.mu.Unlock()

	for _, a := range periodic {
		s.guard(a.id, func() { a.fn(int64(t/a.period), t) })
	}
	for _, a := range single {
		s.guard(a.id, a.fn)
	}
}

// MasterTick runs and removes the master actions due at or before t.
func (s *Scheduler) MasterTick(t ticktime.Time) {
	s.mu.Lock()
	if len(s.master) == 0 {
		s.mu.Unlock()
		return
	}
	s.dueMaster = s.dueMaster[:0]
	kept := s.master[:0]
	for _, a := range s.master {
		if a.at <= t {
			s.dueMaster = append(s.dueMaster, a)
		} else {
			kept = append(kept, a)
		}
	}
	s.master = kept
	due := s.dueMaster
	s.mu.Unlock()

	for _, a := range due {
		s.guard(a.id, a.fn)
	}
}

// TransportStateChanged forgets the last processed tick when a session
// starts, so a session may begin on the tick the previous one ended on.
func (s *Scheduler) TransportStateChanged(ch transport.Change) {
	if ch.To != transport.Starting {
		return
	}
	s.mu.Lock()
	s.hasRun = false
	s.mu.Unlock()
}

// TransportTick makes the Scheduler a transport client.
func (s *Scheduler) TransportTick(t ticktime.Time) { s.RunFor(t) }

func (s *Scheduler) guard(id ActionID, fn func()) {
	defer func() {
		if v := recover(); v != nil {
			if s.onPanic != nil {
				s.onPanic(id, v)
				return
			}
			s.log.Error("action panicked", "id", id, "panic", v)
		}
	}()
	fn()
}
