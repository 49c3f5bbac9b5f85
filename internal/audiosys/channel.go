package audiosys

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/cbegin/plink-go/internal/graph"
	"github.com/cbegin/plink-go/internal/instrument"
	"github.com/cbegin/plink-go/internal/units"
	"gitlab.com/gomidi/midi/v2"
)

// HeadFunc observes a channel's head moving away from prev.
type HeadFunc func(c *Channel, prev graph.Node) error

// Channel is an optional instrument followed by inserts. Its head, the last
// node of the chain, feeds one mixer input.
type Channel struct {
	sys  *System
	name string
	key  string
	bus  int

	// guarded by sys.mu
	instrument graph.Node
	inserts    []graph.Node
	head       graph.Node
	onHead     []HeadFunc
	removed    bool

	inst atomic.Pointer[graph.Node] // mirrors instrument for Send
}

func (c *Channel) Name() string { return c.name }

// Bus is the mixer input the channel feeds.
func (c *Channel) Bus() int { return c.bus }

func (c *Channel) Instrument() graph.Node {
	c.sys.mu.Lock()
	defer c.sys.mu.Unlock()
	return c.instrument
}

func (c *Channel) Inserts() []graph.Node {
	c.sys.mu.Lock()
	defer c.sys.mu.Unlock()
	return slices.Clone(c.inserts)
}

// Head is the last insert, else the instrument, else the zero Node.
func (c *Channel) Head() graph.Node {
	c.sys.mu.Lock()
	defer c.sys.mu.Unlock()
	return c.head
}

// OnHeadChanged registers fn to run whenever the head changes.
func (c *Channel) OnHeadChanged(fn HeadFunc) {
	c.onHead = append(c.onHead, fn)
}

func (c *Channel) findHead() graph.Node {
	if len(c.inserts) > 0 {
		return c.inserts[len(c.inserts)-1]
	}
	return c.instrument
}

// updateHeadLocked recomputes the head and notifies observers if it moved.
func (c *Channel) updateHeadLocked() error {
	prev := c.head
	c.head = c.findHead()
	if c.head == prev {
		return nil
	}
	var errs []error
	for _, fn := range c.onHead {
		errs = append(errs, fn(c, prev))
	}
	return errors.Join(errs...)
}

func (c *Channel) check() error {
	if c.removed {
		return fmt.Errorf("%w: %q", ErrNoSuchChannel, c.name)
	}
	return nil
}

// LoadInstrument replaces the instrument with a new unit.
func (c *Channel) LoadInstrument(desc graph.Description) error {
	c.sys.mu.Lock()
	defer c.sys.mu.Unlock()
	return c.loadLocked(func() (graph.Node, error) { return c.sys.graph.AddNode(desc) })
}

// LoadInstrumentPreset replaces the instrument with one built from a preset.
func (c *Channel) LoadInstrumentPreset(preset []byte) error {
	c.sys.mu.Lock()
	defer c.sys.mu.Unlock()
	return c.loadLocked(func() (graph.Node, error) { return c.sys.graph.AddNodePreset(preset) })
}

// ClearInstrument removes the instrument, leaving any inserts.
func (c *Channel) ClearInstrument() error {
	c.sys.mu.Lock()
	defer c.sys.mu.Unlock()
	if err := c.check(); err != nil {
		return err
	}
	return c.sys.modifyingGraph(func() error { return c.setInstrumentLocked(graph.Node{}) })
}

func (c *Channel) loadLocked(add func() (graph.Node, error)) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.sys.modifyingGraph(func() error {
		n, err := add()
		if err != nil {
			return err
		}
		return c.setInstrumentLocked(n)
	})
}

func (c *Channel) setInstrumentLocked(n graph.Node) error {
	prev := c.instrument
	if prev == n {
		return nil
	}
	if !prev.IsZero() {
		if err := c.sys.graph.RemoveNode(prev); err != nil {
			return err
		}
	}
	c.instrument = n
	c.inst.Store(&n)
	if !n.IsZero() && len(c.inserts) > 0 {
		if err := c.sys.graph.Connect(n, 0, c.inserts[0], 0); err != nil {
			return err
		}
	}
	c.sys.log.Debug("instrument changed", "channel", c.name, "node", n.String())
	return c.updateHeadLocked()
}

// AddInsert appends a new effect unit to the chain.
func (c *Channel) AddInsert(desc graph.Description) error {
	c.sys.mu.Lock()
	defer c.sys.mu.Unlock()
	return c.addInsertLocked(func() (graph.Node, error) { return c.sys.graph.AddNode(desc) })
}

// AddInsertPreset appends an effect unit built from a preset.
func (c *Channel) AddInsertPreset(preset []byte) error {
	c.sys.mu.Lock()
	defer c.sys.mu.Unlock()
	return c.addInsertLocked(func() (graph.Node, error) { return c.sys.graph.AddNodePreset(preset) })
}

func (c *Channel) addInsertLocked(add func() (graph.Node, error)) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.sys.modifyingGraph(func() error {
		n, err := add()
		if err != nil {
			return err
		}
		if last := c.head; !last.IsZero() {
			if err := c.sys.graph.DisconnectOutput(last, 0); err != nil {
				return c.discardLocked(n, err)
			}
			if err := c.sys.graph.Connect(last, 0, n, 0); err != nil {
				return c.discardLocked(n, err)
			}
		}
		c.inserts = append(c.inserts, n)
		return c.updateHeadLocked()
	})
}

// discardLocked drops a node that never joined the chain and reconnects the
// head to the mixer.
func (c *Channel) discardLocked(n graph.Node, cause error) error {
	return errors.Join(cause, c.sys.graph.RemoveNode(n), c.sys.rewire(c, c.head))
}

// ReplaceInsert swaps insert i for a new unit, keeping its position.
func (c *Channel) ReplaceInsert(i int, desc graph.Description) error {
	c.sys.mu.Lock()
	defer c.sys.mu.Unlock()
	if err := c.check(); err != nil {
		return err
	}
	if i < 0 || i >= len(c.inserts) {
		return fmt.Errorf("%w: %d", ErrInsertIndex, i)
	}
	return c.sys.modifyingGraph(func() error {
		n, err := c.sys.graph.AddNode(desc)
		if err != nil {
			return err
		}
		prev := c.instrument
		if i > 0 {
			prev = c.inserts[i-1]
		}
		if err := c.sys.graph.RemoveNode(c.inserts[i]); err != nil {
			return err
		}
		c.inserts[i] = n
		if !prev.IsZero() {
			if err := c.sys.graph.Connect(prev, 0, n, 0); err != nil {
				return err
			}
		}
		if i+1 < len(c.inserts) {
			return c.sys.graph.Connect(n, 0, c.inserts[i+1], 0)
		}
		return c.updateHeadLocked()
	})
}

// RemoveInsert deletes insert i and closes the gap.
func (c *Channel) RemoveInsert(i int) error {
	c.sys.mu.Lock()
	defer c.sys.mu.Unlock()
	if err := c.check(); err != nil {
		return err
	}
	if i < 0 || i >= len(c.inserts) {
		return fmt.Errorf("%w: %d", ErrInsertIndex, i)
	}
	return c.sys.modifyingGraph(func() error {
		prev := c.instrument
		if i > 0 {
			prev = c.inserts[i-1]
		}
		if err := c.sys.graph.RemoveNode(c.inserts[i]); err != nil {
			return err
		}
		c.inserts = slices.Delete(c.inserts, i, i+1)
		if i < len(c.inserts) && !prev.IsZero() {
			return c.sys.graph.Connect(prev, 0, c.inserts[i], 0)
		}
		return c.updateHeadLocked()
	})
}

// SetGain sets the channel's mixer gain.
func (c *Channel) SetGain(v float64) error {
	return c.sys.graph.SetParam(c.sys.mixer, units.GainParam(c.bus), v)
}

// SetPan sets the channel's mixer pan, -1 (left) to 1 (right).
func (c *Channel) SetPan(v float64) error {
	return c.sys.graph.SetParam(c.sys.mixer, units.PanParam(c.bus), v)
}

func (c *Channel) Gain() float64 { return c.mixerParam(units.GainParam(c.bus), 1) }
func (c *Channel) Pan() float64  { return c.mixerParam(units.PanParam(c.bus), 0) }

func (c *Channel) mixerParam(name string, def float64) float64 {
	u, err := c.sys.graph.Unit(c.sys.mixer)
	if err != nil {
		return def
	}
	if p, ok := u.(graph.Parameterized); ok {
		if v, ok := p.Params()[name]; ok {
			return v
		}
	}
	return def
}

// SetParam changes a parameter of the instrument.
func (c *Channel) SetParam(name string, v float64) error {
	n := *c.inst.Load()
	if n.IsZero() {
		return ErrNoInstrument
	}
	return c.sys.graph.SetParam(n, name, v)
}

// Param reads a parameter of the instrument.
func (c *Channel) Param(name string) (float64, error) {
	n := *c.inst.Load()
	if n.IsZero() {
		return 0, ErrNoInstrument
	}
	u, err := c.sys.graph.Unit(n)
	if err != nil {
		return 0, err
	}
	p, ok := u.(graph.Parameterized)
	if !ok {
		return 0, graph.ErrNotParametric
	}
	v, ok := p.Params()[name]
	if !ok {
		return 0, fmt.Errorf("%w %q", graph.ErrUnknownParam, name)
	}
	return v, nil
}

// Send queues an event for the instrument. The channel lock is not taken, so
// scripts may call it while another goroutine edits the channel.
func (c *Channel) Send(msg midi.Message) error {
	n := *c.inst.Load()
	if n.IsZero() {
		return fmt.Errorf("%w: %q", ErrNoInstrument, c.name)
	}
	u, err := c.sys.graph.Unit(n)
	if err != nil {
		return err
	}
	r, ok := u.(instrument.Receiver)
	if !ok {
		return ErrNotReceiver
	}
	if !r.Send(msg) {
		return ErrQueueFull
	}
	return nil
}

func (c *Channel) snapshotLocked() (ChannelModel, error) {
	cm := ChannelModel{Name: c.name, Gain: c.Gain(), Pan: c.Pan(), Inserts: []Blob{}}
	if !c.instrument.IsZero() {
		blob, err := c.sys.graph.Preset(c.instrument)
		if err != nil {
			return ChannelModel{}, err
		}
		cm.Instrument = blob
	}
	for _, n := range c.inserts {
		blob, err := c.sys.graph.Preset(n)
		if err != nil {
			return ChannelModel{}, err
		}
		cm.Inserts = append(cm.Inserts, blob)
	}
	return cm, nil
}

func (c *Channel) restoreLocked(cm ChannelModel) error {
	if cm.Instrument != nil {
		if err := c.loadLocked(func() (graph.Node, error) { return c.sys.graph.AddNodePreset(cm.Instrument) }); err != nil {
			return err
		}
	}
	for _, blob := range cm.Inserts {
		if err := c.addInsertLocked(func() (graph.Node, error) { return c.sys.graph.AddNodePreset(blob) }); err != nil {
			return err
		}
	}
	return errors.Join(c.SetGain(cm.Gain), c.SetPan(cm.Pan))
}
