// Package graph is an audio processing graph over opaque units. The graph owns
// its nodes in an arena; a Node is a (graph, slot) handle. Rendering pulls
// from the output node through the connected units.
package graph

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

var (
	ErrUnknownUnit    = errors.New("graph: no unit matches description")
	ErrNodeRemoved    = errors.New("graph: node was removed")
	ErrForeignNode    = errors.New("graph: node belongs to another graph")
	ErrInvalidPort    = errors.New("graph: invalid port")
	ErrInputInUse     = errors.New("graph: input already connected")
	ErrOutputInUse    = errors.New("graph: output already connected")
	ErrCycle          = errors.New("graph: connection would create a cycle")
	ErrNotOpen        = errors.New("graph: not open")
	ErrNotInitialized = errors.New("graph: not initialized")
	ErrNotParametric  = errors.New("graph: unit has no parameters")
)

// Node is a handle to a unit in a graph. Handles are equal iff they refer to
// the same slot of the same graph.
type Node struct {
	graph uuid.UUID
	slot  int
}

func (n Node) IsZero() bool { return n.graph == uuid.Nil }

func (n Node) String() string {
	if n.IsZero() {
		return "node(none)"
	}
	return fmt.Sprintf("node(%d)", n.slot)
}

// Endpoint is one end of a connection.
type Endpoint struct {
	Node Node
	Port int
}

type lifecycle int

const (
	closed lifecycle = iota
	open
	initialized
)

type slot struct {
	desc    Description
	unit    Unit
	inputs  int
	removed bool
	dests   map[int]Endpoint // output port -> destination input
	srcs    map[int]Endpoint // input port -> source output
	params  map[string]float64

	out []float32
	in  [][]float32
}

// Option configures a Graph.
type Option func(*Graph)

func WithSampleRate(rate int) Option { return func(g *Graph) { g.sampleRate = rate } }

// WithMaxFrames bounds the frames rendered per unit call; larger requests are
// split.
func WithMaxFrames(n int) Option { return func(g *Graph) { g.maxFrames = n } }

func WithLogger(l *slog.Logger) Option { return func(g *Graph) { g.log = l } }

// Graph follows the lifecycle Open, Initialize, Start/Stop (repeatable),
// Uninitialize, Close. Structural calls hold the write lock; Render never
// waits for it and outputs silence instead. Units must accept SetParam
// concurrently with Render.
type Graph struct {
	id         uuid.UUID
	factory    Factory
	sampleRate int
	maxFrames  int
	log        *slog.Logger

	mu      sync.RWMutex
	paramMu sync.Mutex
	state   lifecycle
	running atomic.Bool
	slots   []*slot
	onOpen  []openOp
	order   []int
	output  int
}

func New(factory Factory, opts ...Option) *Graph {
	g := &Graph{
		id:         uuid.New(),
		factory:    factory,
		sampleRate: 48000,
		maxFrames:  1024,
		log:        slog.Default(),
		output:     -1,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.log = g.log.With("component", "graph", "graph", g.id.String())
	return g
}

func (g *Graph) ID() uuid.UUID    { return g.id }
func (g *Graph) SampleRate() int  { return g.sampleRate }
func (g *Graph) MaxFrames() int   { return g.maxFrames }
func (g *Graph) IsRunning() bool  { return g.running.Load() }

func (g *Graph) IsOpen() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state >= open
}

func (g *Graph) IsInitialized() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state >= initialized
}

func (g *Graph) lookup(n Node) (*slot, error) {
	if n.graph != g.id {
		return nil, ErrForeignNode
	}
	if n.slot < 0 || n.slot >= len(g.slots) {
		return nil, ErrForeignNode
	}
	s := g.slots[n.slot]
	if s.removed {
		return nil, ErrNodeRemoved
	}
	return s, nil
}

func (g *Graph) node(i int) Node { return Node{graph: g.id, slot: i} }

func (g *Graph) instantiate(s *slot) error {
	u, err := g.factory.New(s.desc, g.sampleRate)
	if err != nil {
		return fmt.Errorf("cannot instantiate %s: %w", s.desc, err)
	}
	s.unit = u
	s.inputs = u.Inputs()
	return nil
}

// AddNode creates a unit matching desc.
func (g *Graph) AddNode(desc Description) (Node, error) {
	if !g.factory.Supports(desc) {
		return Node{}, fmt.Errorf("%w: %s", ErrUnknownUnit, desc)
	}
	s := &slot{desc: desc, dests: map[int]Endpoint{}, srcs: map[int]Endpoint{}}
	if err := g.instantiate(s); err != nil {
		return Node{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.slots = append(g.slots, s)
	n := g.node(len(g.slots) - 1)
	if err := g.rebuildLocked(); err != nil {
		return Node{}, err
	}
	g.log.Debug("node added", "node", n.slot, "unit", desc.String())
	return n, nil
}

// AddNodePreset creates a unit from a preset blob. The preset is applied
// whenever the graph opens, and right away if it is open already.
func (g *Graph) AddNodePreset(data []byte) (Node, error) {
	p, err := DecodePreset(data)
	if err != nil {
		return Node{}, err
	}
	n, err := g.AddNode(p.Description)
	if err != nil {
		return Node{}, err
	}
	apply := func() error {
		s, err := g.lookup(n)
		if errors.Is(err, ErrNodeRemoved) {
			return nil
		}
		if err != nil {
			return err
		}
		return applyParams(s, p.Params)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onOpen = append(g.onOpen, openOp{slot: n.slot, apply: apply})
	if g.state >= open {
		if err := apply(); err != nil {
			if rerr := g.removeNodeLocked(n); rerr != nil {
				g.log.Warn("cannot remove node after failed preset", "node", n.slot, "error", rerr)
			}
			return Node{}, err
		}
	}
	return n, nil
}

// openOp is work replayed each time the graph opens.
type openOp struct {
	slot  int
	apply func() error
}

func applyParams(s *slot, params map[string]float64) error {
	if len(params) == 0 {
		return nil
	}
	pu, ok := s.unit.(Parameterized)
	if !ok {
		return fmt.Errorf("%s: %w", s.desc, ErrNotParametric)
	}
	for _, name := range slices.Sorted(maps.Keys(params)) {
		if err := pu.SetParam(name, params[name]); err != nil {
			return fmt.Errorf("%s: %s: %w", s.desc, name, err)
		}
	}
	return nil
}

// RemoveNode disconnects n and releases its unit. n becomes inert.
func (g *Graph) RemoveNode(n Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.removeNodeLocked(n)
}

func (g *Graph) removeNodeLocked(n Node) error {
	s, err := g.lookup(n)
	if err != nil {
		return err
	}
	g.disconnectAllLocked(n.slot, s)
	if r, ok := s.unit.(Releaser); ok {
		r.Release()
	}
	s.unit, s.removed = nil, true
	s.out, s.in = nil, nil
	g.onOpen = slices.DeleteFunc(g.onOpen, func(op openOp) bool { return op.slot == n.slot })
	g.log.Debug("node removed", "node", n.slot, "unit", s.desc.String())
	return g.rebuildLocked()
}

// Connect routes output port outPort of src into input port inPort of dst.
// Either both ends record the edge or neither does.
func (g *Graph) Connect(src Node, outPort int, dst Node, inPort int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	ss, err := g.lookup(src)
	if err != nil {
		return err
	}
	ds, err := g.lookup(dst)
	if err != nil {
		return err
	}
	if outPort != 0 {
		return fmt.Errorf("%w: output %d of %s", ErrInvalidPort, outPort, ss.desc)
	}
	if inPort < 0 || inPort >= ds.inputs {
		return fmt.Errorf("%w: input %d of %s", ErrInvalidPort, inPort, ds.desc)
	}
	if _, used := ds.srcs[inPort]; used {
		return fmt.Errorf("%w: input %d of %s", ErrInputInUse, inPort, ds.desc)
	}
	if _, used := ss.dests[outPort]; used {
		return fmt.Errorf("%w: output %d of %s", ErrOutputInUse, outPort, ss.desc)
	}
	if src == dst || g.reachesLocked(dst.slot, src.slot) {
		return ErrCycle
	}
	ss.dests[outPort] = Endpoint{Node: dst, Port: inPort}
	ds.srcs[inPort] = Endpoint{Node: src, Port: outPort}
	return g.rebuildLocked()
}

func (g *Graph) reachesLocked(from, to int) bool {
	seen := map[int]bool{}
	var walk func(i int) bool
	walk = func(i int) bool {
		if i == to {
			return true
		}
		if seen[i] {
			return false
		}
		seen[i] = true
		for _, e := range g.slots[i].dests {
			if walk(e.Node.slot) {
				return true
			}
		}
		return false
	}
	return walk(from)
}

// Disconnect removes whatever feeds input port inPort of n. An unconnected
// port is left alone and no error is returned.
func (g *Graph) Disconnect(n Node, inPort int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, err := g.lookup(n)
	if err != nil {
		return err
	}
	src, ok := s.srcs[inPort]
	if !ok {
		return nil
	}
	delete(g.slots[src.Node.slot].dests, src.Port)
	delete(s.srcs, inPort)
	return g.rebuildLocked()
}

// DisconnectOutput removes the edge leaving output port outPort of n, if any.
func (g *Graph) DisconnectOutput(n Node, outPort int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, err := g.lookup(n)
	if err != nil {
		return err
	}
	dst, ok := s.dests[outPort]
	if !ok {
		return nil
	}
	delete(g.slots[dst.Node.slot].srcs, dst.Port)
	delete(s.dests, outPort)
	return g.rebuildLocked()
}

// DisconnectAll removes every edge touching n.
func (g *Graph) DisconnectAll(n Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, err := g.lookup(n)
	if err != nil {
		return err
	}
	g.disconnectAllLocked(n.slot, s)
	return g.rebuildLocked()
}

func (g *Graph) disconnectAllLocked(i int, s *slot) {
	for port, src := range s.srcs {
		delete(g.slots[src.Node.slot].dests, src.Port)
		delete(s.srcs, port)
	}
	for port, dst := range s.dests {
		delete(g.slots[dst.Node.slot].srcs, dst.Port)
		delete(s.dests, port)
	}
}

// IsConnected reports whether some output of a feeds some input of b.
func (g *Graph) IsConnected(a, b Node) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, err := g.lookup(a)
	if err != nil {
		return false
	}
	for _, e := range s.dests {
		if e.Node == b {
			return true
		}
	}
	return false
}

// IsConnectedTo reports whether the output of a feeds input port inPort of b.
func (g *Graph) IsConnectedTo(a, b Node, inPort int) bool {
	e, ok := g.Source(b, inPort)
	return ok && e.Node == a
}

// Source returns what feeds input port inPort of n.
func (g *Graph) Source(n Node, inPort int) (Endpoint, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, err := g.lookup(n)
	if err != nil {
		return Endpoint{}, false
	}
	e, ok := s.srcs[inPort]
	return e, ok
}

// Destination returns where output port outPort of n goes.
func (g *Graph) Destination(n Node, outPort int) (Endpoint, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, err := g.lookup(n)
	if err != nil {
		return Endpoint{}, false
	}
	e, ok := s.dests[outPort]
	return e, ok
}

// NodeCount counts live nodes.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, s := range g.slots {
		if !s.removed {
			n++
		}
	}
	return n
}

// Nodes lists live nodes in creation order.
func (g *Graph) Nodes() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Node
	for i, s := range g.slots {
		if !s.removed {
			out = append(out, g.node(i))
		}
	}
	return out
}

func (g *Graph) Description(n Node) (Description, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, err := g.lookup(n)
	if err != nil {
		return Description{}, err
	}
	return s.desc, nil
}

// Unit returns the unit behind n. It is nil from Close until the next Open.
func (g *Graph) Unit(n Node) (Unit, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, err := g.lookup(n)
	if err != nil {
		return nil, err
	}
	return s.unit, nil
}

// Preset captures the description and current parameters of n.
func (g *Graph) Preset(n Node) ([]byte, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, err := g.lookup(n)
	if err != nil {
		return nil, err
	}
	p := Preset{Description: s.desc}
	if pu, ok := s.unit.(Parameterized); ok {
		p.Params = pu.Params()
	}
	return p.Encode()
}

// SetParam changes one parameter of n. The value survives reopening the graph.
func (g *Graph) SetParam(n Node, name string, v float64) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, err := g.lookup(n)
	if err != nil {
		return err
	}
	if s.unit == nil {
		return ErrNotOpen
	}
	if err := applyParams(s, map[string]float64{name: v}); err != nil {
		return err
	}
	g.paramMu.Lock()
	defer g.paramMu.Unlock()
	if s.params == nil {
		s.params = map[string]float64{}
	}
	s.params[name] = v
	return nil
}
