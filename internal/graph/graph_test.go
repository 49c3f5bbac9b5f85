package graph

import (
	"bytes"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type constUnit struct{ level float32 }

func (u *constUnit) Inputs() int { return 0 }
func (u *constUnit) Reset()      {}
func (u *constUnit) Render(out []float32, _ [][]float32) {
	for i := range out {
		out[i] = u.level
	}
}

type gainUnit struct {
	gain     atomic.Value
	released bool
}

func newGain() *gainUnit {
	u := &gainUnit{}
	u.gain.Store(1.0)
	return u
}

func (u *gainUnit) Inputs() int { return 1 }
func (u *gainUnit) Reset()      {}
func (u *gainUnit) Release()    { u.released = true }
func (u *gainUnit) Render(out []float32, in [][]float32) {
	g := float32(u.gain.Load().(float64))
	for i := range out {
		if in[0] == nil {
			out[i] = 0
		} else {
			out[i] = in[0][i] * g
		}
	}
}
func (u *gainUnit) Params() map[string]float64 { return map[string]float64{"gain": u.gain.Load().(float64)} }
func (u *gainUnit) SetParam(name string, v float64) error {
	if name != "gain" {
		return ErrUnknownParam
	}
	u.gain.Store(v)
	return nil
}

type sumUnit struct{ inputs int }

func (u *sumUnit) Inputs() int { return u.inputs }
func (u *sumUnit) Reset()      {}
func (u *sumUnit) Render(out []float32, in [][]float32) {
	clear(out)
	for _, b := range in {
		for i := range b {
			out[i] += b[i]
		}
	}
}

var (
	srcDesc  = Description{Type: Instrument, SubType: "const"}
	gainDesc = Description{Type: Effect, SubType: "gain"}
	sumDesc  = Description{Type: Mixer, SubType: "sum"}
	outDesc  = Description{Type: Output, SubType: "out"}
)

type testFactory struct {
	created []Unit
	fail    bool
}

func (f *testFactory) Supports(d Description) bool {
	switch d {
	case srcDesc, gainDesc, sumDesc, outDesc:
		return true
	}
	return false
}

func (f *testFactory) New(d Description, _ int) (Unit, error) {
	if f.fail {
		return nil, errors.New("device busy")
	}
	var u Unit
	switch d {
	case srcDesc:
		u = &constUnit{level: 0.5}
	case gainDesc:
		u = newGain()
	case sumDesc:
		u = &sumUnit{inputs: 4}
	case outDesc:
		u = &sumUnit{inputs: 1}
	}
	f.created = append(f.created, u)
	return u, nil
}

func running(t *testing.T) (*Graph, *testFactory) {
	t.Helper()
	f := &testFactory{}
	g := New(f, WithMaxFrames(64))
	require.NoError(t, g.Open())
	require.NoError(t, g.Initialize())
	require.NoError(t, g.Start())
	return g, f
}

func TestAddNodeUnknown(t *testing.T) {
	g, _ := running(t)
	_, err := g.AddNode(Description{Type: Effect, SubType: "nope"})
	assert.ErrorIs(t, err, ErrUnknownUnit)
	assert.Zero(t, g.NodeCount())
}

func TestAddNodeConstructionFailure(t *testing.T) {
	g, f := running(t)
	f.fail = true
	_, err := g.AddNode(gainDesc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device busy")
	assert.Zero(t, g.NodeCount())
}

func TestRenderChain(t *testing.T) {
	g, _ := running(t)
	src, err := g.AddNode(srcDesc)
	require.NoError(t, err)
	gain, err := g.AddNode(gainDesc)
	require.NoError(t, err)
	out, err := g.AddNode(outDesc)
	require.NoError(t, err)

	buf := make([]float32, 200)
	g.Render(buf)
	assert.Equal(t, float32(0), buf[0], "no path to output yet")

	require.NoError(t, g.Connect(src, 0, gain, 0))
	require.NoError(t, g.Connect(gain, 0, out, 0))
	require.NoError(t, g.SetParam(gain, "gain", 0.5))
	g.Render(buf)
	for i, v := range buf {
		require.Equal(t, float32(0.25), v, "sample %d", i)
	}

	g.Stop()
	g.Render(buf)
	assert.Equal(t, float32(0), buf[10])
}

func TestConnectValidation(t *testing.T) {
	g, _ := running(t)
	a, _ := g.AddNode(srcDesc)
	b, _ := g.AddNode(gainDesc)
	c, _ := g.AddNode(gainDesc)
	mix, _ := g.AddNode(sumDesc)

	assert.ErrorIs(t, g.Connect(a, 1, b, 0), ErrInvalidPort)
	assert.ErrorIs(t, g.Connect(a, 0, b, 1), ErrInvalidPort)
	assert.ErrorIs(t, g.Connect(b, 0, a, 0), ErrInvalidPort, "sources have no inputs")

	require.NoError(t, g.Connect(a, 0, b, 0))
	assert.ErrorIs(t, g.Connect(c, 0, b, 0), ErrInputInUse)
	assert.ErrorIs(t, g.Connect(a, 0, c, 0), ErrOutputInUse)

	require.NoError(t, g.Connect(b, 0, c, 0))
	assert.ErrorIs(t, g.Connect(c, 0, b, 0), ErrInputInUse)
	require.NoError(t, g.Disconnect(b, 0))
	assert.ErrorIs(t, g.Connect(c, 0, b, 0), ErrCycle)
	assert.ErrorIs(t, g.Connect(mix, 0, mix, 1), ErrCycle)

	assert.False(t, g.IsConnected(a, b))
	assert.True(t, g.IsConnected(b, c))
	assert.True(t, g.IsConnectedTo(b, c, 0))
	assert.False(t, g.IsConnectedTo(a, c, 0))
	_, ok := g.Source(b, 0)
	assert.False(t, ok, "failed connects leave both ends untouched")
	_, ok = g.Destination(a, 0)
	assert.False(t, ok)
}

func TestDisconnectUnconnectedIsNoop(t *testing.T) {
	g, _ := running(t)
	b, _ := g.AddNode(gainDesc)
	assert.NoError(t, g.Disconnect(b, 0))
	assert.NoError(t, g.DisconnectOutput(b, 0))
	assert.NoError(t, g.Disconnect(b, 7))
}

func TestRemoveNode(t *testing.T) {
	g, f := running(t)
	a, _ := g.AddNode(srcDesc)
	b, _ := g.AddNode(gainDesc)
	c, _ := g.AddNode(outDesc)
	require.NoError(t, g.Connect(a, 0, b, 0))
	require.NoError(t, g.Connect(b, 0, c, 0))

	require.NoError(t, g.RemoveNode(b))
	assert.Equal(t, 2, g.NodeCount())
	assert.True(t, f.created[1].(*gainUnit).released)
	_, ok := g.Destination(a, 0)
	assert.False(t, ok)
	_, ok = g.Source(c, 0)
	assert.False(t, ok)

	assert.ErrorIs(t, g.RemoveNode(b), ErrNodeRemoved)
	assert.ErrorIs(t, g.Connect(a, 0, b, 0), ErrNodeRemoved)
	_, err := g.Description(b)
	assert.ErrorIs(t, err, ErrNodeRemoved)

	d, _ := g.AddNode(gainDesc)
	assert.NotEqual(t, b, d, "slots are not reused")
	assert.Equal(t, []Node{a, c, d}, g.Nodes())
}

func TestForeignNode(t *testing.T) {
	g1, _ := running(t)
	g2, _ := running(t)
	a, _ := g1.AddNode(gainDesc)
	b, _ := g2.AddNode(gainDesc)
	assert.ErrorIs(t, g1.Connect(a, 0, b, 0), ErrForeignNode)
	assert.ErrorIs(t, g2.RemoveNode(a), ErrForeignNode)
	assert.ErrorIs(t, g1.RemoveNode(Node{}), ErrForeignNode)
}

func TestNodeEquality(t *testing.T) {
	g, _ := running(t)
	a, _ := g.AddNode(gainDesc)
	nodes := g.Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, a, nodes[0])
	assert.True(t, a == nodes[0])
	assert.True(t, Node{}.IsZero())
}

func TestLifecycleErrors(t *testing.T) {
	g := New(&testFactory{})
	assert.ErrorIs(t, g.Initialize(), ErrNotOpen)
	assert.ErrorIs(t, g.Start(), ErrNotInitialized)
	require.NoError(t, g.Open())
	assert.ErrorIs(t, g.Start(), ErrNotInitialized)
	require.NoError(t, g.Initialize())
	require.NoError(t, g.Start())
	assert.True(t, g.IsRunning())
	g.Close()
	assert.False(t, g.IsRunning())
	assert.False(t, g.IsOpen())
}

func TestDeferredPresetReplaysOnEveryOpen(t *testing.T) {
	f := &testFactory{}
	g := New(f)
	blob, err := Preset{Description: gainDesc, Params: map[string]float64{"gain": 0.25}}.Encode()
	require.NoError(t, err)

	n, err := g.AddNodePreset(blob)
	require.NoError(t, err)
	u, _ := g.Unit(n)
	assert.Equal(t, 1.0, u.(*gainUnit).gain.Load(), "not applied while closed")

	require.NoError(t, g.Open())
	u, _ = g.Unit(n)
	assert.Equal(t, 0.25, u.(*gainUnit).gain.Load())

	g.Close()
	u, _ = g.Unit(n)
	assert.Nil(t, u)

	require.NoError(t, g.Open())
	u, _ = g.Unit(n)
	require.NotNil(t, u)
	assert.Equal(t, 0.25, u.(*gainUnit).gain.Load(), "reapplied on reopen")

	require.NoError(t, g.SetParam(n, "gain", 0.75))
	g.Close()
	require.NoError(t, g.Open())
	u, _ = g.Unit(n)
	assert.Equal(t, 0.75, u.(*gainUnit).gain.Load(), "explicit params override the preset")
}

func TestPresetOnOpenGraphAppliesNow(t *testing.T) {
	g, _ := running(t)
	blob, err := Preset{Description: gainDesc, Params: map[string]float64{"gain": 2}}.Encode()
	require.NoError(t, err)
	n, err := g.AddNodePreset(blob)
	require.NoError(t, err)

	data, err := g.Preset(n)
	require.NoError(t, err)
	p, err := DecodePreset(data)
	require.NoError(t, err)
	assert.Equal(t, gainDesc, p.Description)
	assert.Equal(t, map[string]float64{"gain": 2}, p.Params)
}

func TestFailedPresetLeavesNoNode(t *testing.T) {
	g, _ := running(t)
	blob, err := Preset{Description: gainDesc, Params: map[string]float64{"drive": 2}}.Encode()
	require.NoError(t, err)

	n, err := g.AddNodePreset(blob)
	assert.ErrorIs(t, err, ErrUnknownParam)
	assert.Equal(t, Node{}, n)
	assert.Zero(t, g.NodeCount())
	assert.Empty(t, g.onOpen)
}

func TestRemoveNodeDropsDeferredPreset(t *testing.T) {
	g := New(&testFactory{})
	blob, err := Preset{Description: gainDesc, Params: map[string]float64{"gain": 0.5}}.Encode()
	require.NoError(t, err)
	a, err := g.AddNodePreset(blob)
	require.NoError(t, err)
	b, err := g.AddNodePreset(blob)
	require.NoError(t, err)
	require.Len(t, g.onOpen, 2)

	require.NoError(t, g.RemoveNode(a))
	require.Len(t, g.onOpen, 1)
	assert.Equal(t, b.slot, g.onOpen[0].slot)

	require.NoError(t, g.Open())
	u, _ := g.Unit(b)
	assert.Equal(t, 0.5, u.(*gainUnit).gain.Load())
}

func TestDecodePresetErrors(t *testing.T) {
	_, err := DecodePreset([]byte("{{"))
	assert.Error(t, err)
	_, err = DecodePreset([]byte("params: {a: 1}\n"))
	assert.Error(t, err)
	_, err = DecodePreset([]byte("description: {type: bogus, subType: x}\n"))
	assert.Error(t, err)
}

func TestDump(t *testing.T) {
	g, _ := running(t)
	a, _ := g.AddNode(srcDesc)
	b, _ := g.AddNode(outDesc)
	require.NoError(t, g.Connect(a, 0, b, 0))
	var buf bytes.Buffer
	require.NoError(t, g.Dump(&buf))
	assert.Contains(t, buf.String(), "[0] instrument/const\n      out 0 -> [1] in 0\n")
	assert.Contains(t, buf.String(), "(running)")
}

func TestRenderSplitsLargeBuffers(t *testing.T) {
	g, _ := running(t)
	a, _ := g.AddNode(srcDesc)
	b, _ := g.AddNode(outDesc)
	require.NoError(t, g.Connect(a, 0, b, 0))
	buf := make([]float32, 64*2*3+10)
	g.Render(buf)
	for i, v := range buf {
		require.Equal(t, float32(0.5), v, "sample %d", i)
	}
}

func TestRenderAllocatesNothing(t *testing.T) {
	g, _ := running(t)
	a, _ := g.AddNode(srcDesc)
	b, _ := g.AddNode(gainDesc)
	c, _ := g.AddNode(outDesc)
	require.NoError(t, g.Connect(a, 0, b, 0))
	require.NoError(t, g.Connect(b, 0, c, 0))
	buf := make([]float32, 128)
	allocs := testing.AllocsPerRun(50, func() { g.Render(buf) })
	assert.Zero(t, allocs)
}
