package graph

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
)

// Open instantiates any units released by a previous Close, then replays the
// deferred preset queue in order. The queue is kept for the next Open.
func (g *Graph) Open() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state >= open {
		return nil
	}
	for _, s := range g.slots {
		if s.removed || s.unit != nil {
			continue
		}
		if err := g.instantiate(s); err != nil {
			return err
		}
	}
	g.state = open
	for _, op := range g.onOpen {
		if err := op.apply(); err != nil {
			return fmt.Errorf("cannot apply deferred preset: %w", err)
		}
	}
	g.paramMu.Lock()
	defer g.paramMu.Unlock()
	for _, s := range g.slots {
		if !s.removed {
			if err := applyParams(s, s.params); err != nil {
				return err
			}
		}
	}
	g.log.Debug("graph opened", "nodes", len(g.slots))
	return nil
}

// Initialize allocates render buffers and computes the render order.
func (g *Graph) Initialize() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch g.state {
	case closed:
		return ErrNotOpen
	case initialized:
		return nil
	}
	g.state = initialized
	return g.rebuildLocked()
}

// Start lets Render pull audio.
func (g *Graph) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state < initialized {
		return ErrNotInitialized
	}
	g.running.Store(true)
	return nil
}

// Stop silences Render. When Stop returns no render is in progress.
func (g *Graph) Stop() {
	g.running.Store(false)
	// the write lock waits out an in-flight Render
	g.mu.Lock()
	defer g.mu.Unlock()
}

// Uninitialize stops the graph, resets every unit and frees render buffers.
func (g *Graph) Uninitialize() {
	g.Stop()
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state < initialized {
		return
	}
	for _, s := range g.slots {
		if s.unit != nil {
			s.unit.Reset()
		}
		s.out, s.in = nil, nil
	}
	g.order = nil
	g.state = open
}

// Close uninitializes the graph and releases every unit. Topology and the
// deferred preset queue survive for the next Open.
func (g *Graph) Close() {
	g.Uninitialize()
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == closed {
		return
	}
	for _, s := range g.slots {
		if r, ok := s.unit.(Releaser); ok {
			r.Release()
		}
		s.unit = nil
	}
	g.state = closed
	g.log.Debug("graph closed")
}

// rebuildLocked recomputes the render order and sizes buffers. It runs on
// the caller's goroutine so that Render itself never allocates.
func (g *Graph) rebuildLocked() error {
	if g.state < initialized {
		return nil
	}
	g.output = -1
	for i, s := range g.slots {
		if s.removed {
			continue
		}
		if s.out == nil {
			s.out = make([]float32, g.maxFrames*2)
		}
		if len(s.in) != s.inputs {
			s.in = make([][]float32, s.inputs)
		}
		if g.output < 0 && s.desc.Type == Output {
			g.output = i
		}
	}
	g.order = g.order[:0]
	if g.output < 0 {
		return nil
	}
	seen := make(map[int]bool, len(g.slots))
	var visit func(i int)
	visit = func(i int) {
		if seen[i] {
			return
		}
		seen[i] = true
		s := g.slots[i]
		for _, port := range slices.Sorted(maps.Keys(s.srcs)) {
			visit(s.srcs[port].Node.slot)
		}
		g.order = append(g.order, i)
	}
	visit(g.output)
	return nil
}

// Render fills out with interleaved stereo frames pulled from the output
// node. It outputs silence while stopped, while a structural change holds the
// graph, or when there is no output node.
func (g *Graph) Render(out []float32) {
	if !g.running.Load() || !g.mu.TryRLock() {
		clear(out)
		return
	}
	defer g.mu.RUnlock()
	if g.output < 0 {
		clear(out)
		return
	}
	for len(out) > 0 {
		n := min(len(out), g.maxFrames*2)
		g.renderChunk(out[:n])
		out = out[n:]
	}
}

func (g *Graph) renderChunk(out []float32) {
	n := len(out)
	for _, i := range g.order {
		s := g.slots[i]
		for port := range s.in {
			if src, ok := s.srcs[port]; ok {
				s.in[port] = g.slots[src.Node.slot].out[:n]
			} else {
				s.in[port] = nil
			}
		}
		s.unit.Render(s.out[:n], s.in)
	}
	copy(out, g.slots[g.output].out[:n])
}

// Dump writes a readable listing of nodes and connections.
func (g *Graph) Dump(w io.Writer) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var b strings.Builder
	state := [...]string{"closed", "open", "initialized"}[g.state]
	if g.running.Load() {
		state = "running"
	}
	fmt.Fprintf(&b, "graph %s (%s)\n", g.id, state)
	for i, s := range g.slots {
		if s.removed {
			continue
		}
		fmt.Fprintf(&b, "  [%d] %s\n", i, s.desc)
		for _, port := range slices.Sorted(maps.Keys(s.dests)) {
			e := s.dests[port]
			fmt.Fprintf(&b, "      out %d -> [%d] in %d\n", port, e.Node.slot, e.Port)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
