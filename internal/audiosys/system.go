// Package audiosys arranges the audio graph into named channels, each an
// optional instrument followed by inserts, summed by a mixer into the
// output.
package audiosys

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/cbegin/plink-go/internal/graph"
	"github.com/cbegin/plink-go/internal/units"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var (
	ErrNoSuchChannel    = errors.New("audiosys: no such channel")
	ErrDuplicateChannel = errors.New("audiosys: channel name in use")
	ErrNoFreeBus        = errors.New("audiosys: every mixer input is in use")
	ErrNoInstrument     = errors.New("audiosys: channel has no instrument")
	ErrNotReceiver      = errors.New("audiosys: instrument does not accept events")
	ErrQueueFull        = errors.New("audiosys: instrument event queue full")
	ErrInsertIndex      = errors.New("audiosys: insert index out of range")
)

// Option configures a System.
type Option func(*System)

func WithLogger(l *slog.Logger) Option { return func(s *System) { s.log = l } }

// WithBuses must match the mixer built by the graph's factory.
func WithBuses(n int) Option { return func(s *System) { s.buses = n } }

// System owns the mixer and output nodes of a graph and the channels feeding
// them. Structural calls may come from any goroutine; they are serialized
// and bracketed by stopping the graph.
type System struct {
	graph  *graph.Graph
	mixer  graph.Node
	output graph.Node
	buses  int
	log    *slog.Logger

	mu        sync.Mutex
	channels  atomic.Pointer[[]*Channel]
	observers []func()
}

// New adds a mixer and an output to g, connects them and opens g.
func New(g *graph.Graph, opts ...Option) (*System, error) {
	s := &System{graph: g, buses: units.DefaultBuses, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "audiosys")
	s.channels.Store(&[]*Channel{})

	var err error
	if s.mixer, err = g.AddNode(units.MixerUnit); err != nil {
		return nil, fmt.Errorf("cannot create mixer: %w", err)
	}
	if s.output, err = g.AddNode(units.OutputUnit); err != nil {
		return nil, fmt.Errorf("cannot create output: %w", err)
	}
	if err := g.Connect(s.mixer, 0, s.output, 0); err != nil {
		return nil, err
	}
	if err := g.Open(); err != nil {
		return nil, err
	}
	if err := g.Initialize(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *System) Graph() *graph.Graph { return s.graph }
func (s *System) Mixer() graph.Node   { return s.mixer }
func (s *System) Output() graph.Node  { return s.output }

// Start lets audio flow.
func (s *System) Start() error { return s.graph.Start() }

// Stop silences the graph.
func (s *System) Stop() { s.graph.Stop() }

// Render pulls one buffer of interleaved stereo frames.
func (s *System) Render(out []float32) { s.graph.Render(out) }

// Peak is the output level of the last rendered block.
func (s *System) Peak() float32 {
	u, err := s.graph.Unit(s.output)
	if err != nil {
		return 0
	}
	if o, ok := u.(interface{ Peak() float32 }); ok {
		return o.Peak()
	}
	return 0
}

// Dump writes the graph listing.
func (s *System) Dump(w io.Writer) error { return s.graph.Dump(w) }

// OnChannelsChanged registers fn to run after channels are added or removed.
func (s *System) OnChannelsChanged(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *System) notifyLocked() {
	for _, fn := range s.observers {
		fn()
	}
}

// modifyingGraph stops audio around fn and restarts it if it was running.
// Callers hold s.mu.
func (s *System) modifyingGraph(fn func() error) error {
	wasRunning := s.graph.IsRunning()
	s.graph.Stop()
	err := fn()
	if ierr := s.graph.Initialize(); ierr != nil {
		err = errors.Join(err, ierr)
	}
	if wasRunning {
		if serr := s.graph.Start(); serr != nil {
			err = errors.Join(err, serr)
		}
	}
	return err
}

func channelKey(name string) string {
	return cases.Fold().String(norm.NFC.String(name))
}

// Channels returns the channels in creation order.
func (s *System) Channels() []*Channel {
	return slices.Clone(*s.channels.Load())
}

// Channel finds a channel by name, ignoring case and Unicode normalization
// differences. It does not block.
func (s *System) Channel(name string) (*Channel, bool) {
	key := channelKey(name)
	for _, c := range *s.channels.Load() {
		if c.key == key {
			return c, true
		}
	}
	return nil, false
}

// CreateChannel adds an empty channel named chN.
func (s *System) CreateChannel() (*Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(*s.channels.Load()) + 1
	for {
		name := "ch" + strconv.Itoa(n)
		if _, taken := s.Channel(name); !taken {
			return s.addLocked(name)
		}
		n++
	}
}

// AddChannel adds an empty channel.
func (s *System) AddChannel(name string) (*Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(name)
}

func (s *System) addLocked(name string) (*Channel, error) {
	if _, taken := s.Channel(name); taken {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateChannel, name)
	}
	bus, err := s.freeBusLocked()
	if err != nil {
		return nil, err
	}
	c := &Channel{sys: s, name: name, key: channelKey(name), bus: bus}
	c.inst.Store(&graph.Node{})
	c.OnHeadChanged(s.rewire)
	list := append(slices.Clone(*s.channels.Load()), c)
	s.channels.Store(&list)
	s.log.Debug("channel added", "channel", name, "bus", bus)
	s.notifyLocked()
	return c, nil
}

func (s *System) freeBusLocked() (int, error) {
	used := make([]bool, s.buses)
	for _, c := range *s.channels.Load() {
		used[c.bus] = true
	}
	if i := slices.Index(used, false); i >= 0 {
		return i, nil
	}
	return 0, ErrNoFreeBus
}

// rewire points the channel's mixer input at its current head.
func (s *System) rewire(c *Channel, _ graph.Node) error {
	if err := s.graph.Disconnect(s.mixer, c.bus); err != nil {
		return err
	}
	if c.head.IsZero() {
		return nil
	}
	if err := s.graph.DisconnectOutput(c.head, 0); err != nil {
		return err
	}
	return s.graph.Connect(c.head, 0, s.mixer, c.bus)
}

// RemoveChannel deletes a channel with its nodes and frees its mixer input.
func (s *System) RemoveChannel(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.Channel(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoSuchChannel, name)
	}
	err := s.modifyingGraph(func() error { return s.teardownLocked(c) })
	list := slices.DeleteFunc(slices.Clone(*s.channels.Load()), func(o *Channel) bool { return o == c })
	s.channels.Store(&list)
	s.notifyLocked()
	return err
}

func (s *System) teardownLocked(c *Channel) error {
	var errs []error
	for _, n := range c.inserts {
		errs = append(errs, s.graph.RemoveNode(n))
	}
	if !c.instrument.IsZero() {
		errs = append(errs, s.graph.RemoveNode(c.instrument))
	}
	c.inserts, c.instrument, c.head = nil, graph.Node{}, graph.Node{}
	c.inst.Store(&graph.Node{})
	errs = append(errs,
		s.graph.Disconnect(s.mixer, c.bus),
		s.graph.SetParam(s.mixer, units.GainParam(c.bus), 1),
		s.graph.SetParam(s.mixer, units.PanParam(c.bus), 0),
	)
	c.removed = true
	return errors.Join(errs...)
}

// Clear removes every channel, leaving the mixer connected to the output.
func (s *System) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearLocked()
}

func (s *System) clearLocked() error {
	err := s.modifyingGraph(func() error {
		var errs []error
		for _, c := range *s.channels.Load() {
			errs = append(errs, s.teardownLocked(c))
		}
		return errors.Join(errs...)
	})
	s.channels.Store(&[]*Channel{})
	s.notifyLocked()
	return err
}

// Snapshot captures every channel with its presets, gain and pan.
func (s *System) Snapshot() (Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var m Model
	for _, c := range *s.channels.Load() {
		cm, err := c.snapshotLocked()
		if err != nil {
			return Model{}, fmt.Errorf("cannot snapshot channel %q: %w", c.name, err)
		}
		m.Channels = append(m.Channels, cm)
	}
	return m, nil
}

// Restore replaces every channel with those in m.
func (s *System) Restore(m Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.clearLocked(); err != nil {
		return err
	}
	for _, cm := range m.Channels {
		c, err := s.addLocked(cm.Name)
		if err != nil {
			return err
		}
		if err := c.restoreLocked(cm); err != nil {
			return fmt.Errorf("cannot restore channel %q: %w", cm.Name, err)
		}
	}
	return nil
}
