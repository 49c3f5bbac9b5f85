package audiosys

import (
	"bytes"
	"testing"

	"github.com/cbegin/plink-go/internal/graph"
	"github.com/cbegin/plink-go/internal/units"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2"
)

func newSystem(t *testing.T) *System {
	t.Helper()
	f := units.NewFactory(units.WithMaxFrames(64), units.WithBuses(4))
	g := graph.New(f, graph.WithMaxFrames(64))
	s, err := New(g, WithBuses(4))
	require.NoError(t, err)
	t.Cleanup(g.Close)
	return s
}

func audible(buf []float32) bool {
	for _, v := range buf {
		if v != 0 {
			return true
		}
	}
	return false
}

func TestNewSystem(t *testing.T) {
	s := newSystem(t)
	assert.Equal(t, 2, s.Graph().NodeCount())
	assert.True(t, s.Graph().IsConnectedTo(s.Mixer(), s.Output(), 0))
	assert.Empty(t, s.Channels())
}

func TestCreateChannel(t *testing.T) {
	s := newSystem(t)
	var changes int
	s.OnChannelsChanged(func() { changes++ })

	c, err := s.CreateChannel()
	require.NoError(t, err)
	assert.Equal(t, "ch1", c.Name())
	assert.Equal(t, 0, c.Bus())
	assert.True(t, c.Head().IsZero())

	c2, err := s.CreateChannel()
	require.NoError(t, err)
	assert.Equal(t, "ch2", c2.Name())
	assert.Equal(t, 1, c2.Bus())
	assert.Equal(t, 2, changes)

	found, ok := s.Channel("CH2")
	require.True(t, ok)
	assert.Same(t, c2, found)

	_, err = s.AddChannel("Ch1")
	assert.ErrorIs(t, err, ErrDuplicateChannel)
}

func TestBusesRunOut(t *testing.T) {
	s := newSystem(t)
	for range 4 {
		_, err := s.CreateChannel()
		require.NoError(t, err)
	}
	_, err := s.CreateChannel()
	assert.ErrorIs(t, err, ErrNoFreeBus)

	require.NoError(t, s.RemoveChannel("ch2"))
	c, err := s.AddChannel("lead")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Bus())
}

func TestInstrumentLoadAndClear(t *testing.T) {
	s := newSystem(t)
	c, err := s.AddChannel("lead")
	require.NoError(t, err)
	assert.ErrorIs(t, c.Send(midi.NoteOn(0, 60, 100)), ErrNoInstrument)

	require.NoError(t, c.LoadInstrument(units.FM))
	inst := c.Instrument()
	assert.Equal(t, inst, c.Head())
	assert.True(t, s.Graph().IsConnectedTo(inst, s.Mixer(), c.Bus()))
	assert.Equal(t, 3, s.Graph().NodeCount())

	require.NoError(t, c.LoadInstrument(units.Chip))
	assert.NotEqual(t, inst, c.Instrument())
	assert.Equal(t, 3, s.Graph().NodeCount())
	assert.True(t, s.Graph().IsConnectedTo(c.Instrument(), s.Mixer(), c.Bus()))

	require.NoError(t, c.ClearInstrument())
	assert.True(t, c.Head().IsZero())
	assert.Equal(t, 2, s.Graph().NodeCount())
	_, connected := s.Graph().Source(s.Mixer(), c.Bus())
	assert.False(t, connected)
}

func TestInsertChain(t *testing.T) {
	s := newSystem(t)
	c, err := s.AddChannel("lead")
	require.NoError(t, err)
	require.NoError(t, c.LoadInstrument(units.FM))
	require.NoError(t, c.AddInsert(units.Delay))
	require.NoError(t, c.AddInsert(units.Reverb))

	g := s.Graph()
	inst, ins := c.Instrument(), c.Inserts()
	require.Len(t, ins, 2)
	assert.True(t, g.IsConnectedTo(inst, ins[0], 0))
	assert.True(t, g.IsConnectedTo(ins[0], ins[1], 0))
	assert.True(t, g.IsConnectedTo(ins[1], s.Mixer(), c.Bus()))
	assert.Equal(t, ins[1], c.Head())

	require.NoError(t, c.ReplaceInsert(0, units.Chorus))
	ins = c.Inserts()
	d, err := g.Description(ins[0])
	require.NoError(t, err)
	assert.Equal(t, units.Chorus, d)
	assert.True(t, g.IsConnectedTo(inst, ins[0], 0))
	assert.True(t, g.IsConnectedTo(ins[0], ins[1], 0))
	assert.Equal(t, 5, g.NodeCount())

	require.NoError(t, c.RemoveInsert(1))
	ins = c.Inserts()
	require.Len(t, ins, 1)
	assert.True(t, g.IsConnectedTo(ins[0], s.Mixer(), c.Bus()))

	require.NoError(t, c.RemoveInsert(0))
	assert.True(t, g.IsConnectedTo(inst, s.Mixer(), c.Bus()))
	assert.ErrorIs(t, c.RemoveInsert(0), ErrInsertIndex)
	assert.ErrorIs(t, c.ReplaceInsert(3, units.Delay), ErrInsertIndex)
}

func TestClearInstrumentKeepsInsert(t *testing.T) {
	s := newSystem(t)
	g := s.Graph()
	c, err := s.AddChannel("lead")
	require.NoError(t, err)
	require.Equal(t, 2, g.NodeCount())

	require.NoError(t, c.LoadInstrument(units.FM))
	assert.Equal(t, 3, g.NodeCount())
	inst := c.Instrument()

	require.NoError(t, c.AddInsert(units.Delay))
	assert.Equal(t, 4, g.NodeCount())
	insert := c.Inserts()[0]
	assert.True(t, g.IsConnected(inst, insert))
	assert.True(t, g.IsConnectedTo(insert, s.Mixer(), c.Bus()))

	require.NoError(t, c.ClearInstrument())
	assert.Equal(t, 3, g.NodeCount())
	assert.True(t, c.Instrument().IsZero())
	assert.Equal(t, insert, c.Head())
	assert.True(t, g.IsConnectedTo(insert, s.Mixer(), c.Bus()))
	_, fed := g.Source(insert, 0)
	assert.False(t, fed)
}

func TestBadInstrumentPresetLeavesChannelAlone(t *testing.T) {
	s := newSystem(t)
	g := s.Graph()
	c, err := s.AddChannel("lead")
	require.NoError(t, err)
	require.NoError(t, c.LoadInstrument(units.Chip))
	inst := c.Instrument()
	before := g.NodeCount()

	blob, err := graph.Preset{Description: units.FM, Params: map[string]float64{"noSuchParam": 1}}.Encode()
	require.NoError(t, err)
	assert.ErrorIs(t, c.LoadInstrumentPreset(blob), graph.ErrUnknownParam)
	assert.Equal(t, before, g.NodeCount())
	assert.Equal(t, inst, c.Instrument())
	assert.True(t, g.IsConnectedTo(inst, s.Mixer(), c.Bus()))

	assert.ErrorIs(t, c.AddInsertPreset(blob), graph.ErrUnknownParam)
	assert.Equal(t, before, g.NodeCount())
	assert.Empty(t, c.Inserts())
	assert.True(t, g.IsConnectedTo(inst, s.Mixer(), c.Bus()))
}

func TestChannelParam(t *testing.T) {
	s := newSystem(t)
	c, err := s.AddChannel("lead")
	require.NoError(t, err)
	_, err = c.Param("gain")
	assert.ErrorIs(t, err, ErrNoInstrument)

	require.NoError(t, c.LoadInstrument(units.FM))
	require.NoError(t, c.SetParam("gain", 0.25))
	v, err := c.Param("gain")
	require.NoError(t, err)
	assert.InDelta(t, 0.25, v, 1e-9)
	_, err = c.Param("bogus")
	assert.ErrorIs(t, err, graph.ErrUnknownParam)
}

func TestInsertBeforeInstrument(t *testing.T) {
	s := newSystem(t)
	c, err := s.AddChannel("fx")
	require.NoError(t, err)
	require.NoError(t, c.AddInsert(units.Gain))
	ins := c.Inserts()
	assert.True(t, s.Graph().IsConnectedTo(ins[0], s.Mixer(), c.Bus()))

	require.NoError(t, c.LoadInstrument(units.FM))
	assert.True(t, s.Graph().IsConnectedTo(c.Instrument(), ins[0], 0))
	assert.Equal(t, ins[0], c.Head())
}

func TestSendPlaysThroughMixer(t *testing.T) {
	s := newSystem(t)
	c, err := s.AddChannel("lead")
	require.NoError(t, err)
	require.NoError(t, c.LoadInstrument(units.FM))
	require.NoError(t, s.Start())

	buf := make([]float32, 256)
	s.Render(buf)
	assert.False(t, audible(buf))

	require.NoError(t, c.Send(midi.NoteOn(0, 69, 120)))
	s.Render(buf)
	assert.True(t, audible(buf))
	assert.Greater(t, s.Peak(), float32(0))

	require.NoError(t, c.SetGain(0))
	assert.InDelta(t, 0, c.Gain(), 1e-9)
}

func TestMultipleChannelsKeepRunning(t *testing.T) {
	s := newSystem(t)
	require.NoError(t, s.Start())
	a, err := s.AddChannel("a")
	require.NoError(t, err)
	b, err := s.AddChannel("b")
	require.NoError(t, err)
	require.NoError(t, a.LoadInstrument(units.FM))
	require.NoError(t, b.LoadInstrument(units.Chip))
	assert.True(t, s.Graph().IsRunning())

	require.NoError(t, s.RemoveChannel("a"))
	assert.True(t, s.Graph().IsRunning())
	assert.Equal(t, 3, s.Graph().NodeCount())
	assert.ErrorIs(t, a.LoadInstrument(units.FM), ErrNoSuchChannel)
	assert.ErrorIs(t, s.RemoveChannel("a"), ErrNoSuchChannel)
}

func TestClear(t *testing.T) {
	s := newSystem(t)
	for _, name := range []string{"a", "b"} {
		c, err := s.AddChannel(name)
		require.NoError(t, err)
		require.NoError(t, c.LoadInstrument(units.FM))
		require.NoError(t, c.AddInsert(units.Delay))
		require.NoError(t, c.SetPan(-1))
	}
	require.NoError(t, s.Clear())
	assert.Empty(t, s.Channels())
	assert.Equal(t, 2, s.Graph().NodeCount())

	c, err := s.AddChannel("fresh")
	require.NoError(t, err)
	assert.InDelta(t, 0, c.Pan(), 1e-9)
	assert.InDelta(t, 1, c.Gain(), 1e-9)
}

func TestSnapshotRestore(t *testing.T) {
	s := newSystem(t)
	c, err := s.AddChannel("lead")
	require.NoError(t, err)
	require.NoError(t, c.LoadInstrument(units.FM))
	require.NoError(t, c.SetParam("gain", 0.25))
	require.NoError(t, c.AddInsert(units.Delay))
	require.NoError(t, c.SetGain(0.5))
	require.NoError(t, c.SetPan(0.75))
	_, err = s.AddChannel("empty")
	require.NoError(t, err)

	m, err := s.Snapshot()
	require.NoError(t, err)
	require.Len(t, m.Channels, 2)
	assert.NotEmpty(t, m.Channels[0].Instrument)
	assert.Len(t, m.Channels[0].Inserts, 1)
	assert.Nil(t, m.Channels[1].Instrument)

	other := newSystem(t)
	require.NoError(t, other.Restore(m))
	require.Len(t, other.Channels(), 2)
	lead, ok := other.Channel("lead")
	require.True(t, ok)
	assert.InDelta(t, 0.5, lead.Gain(), 1e-9)
	assert.InDelta(t, 0.75, lead.Pan(), 1e-9)
	require.Len(t, lead.Inserts(), 1)
	assert.True(t, other.Graph().IsConnectedTo(lead.Instrument(), lead.Inserts()[0], 0))

	u, err := other.Graph().Unit(lead.Instrument())
	require.NoError(t, err)
	params := u.(graph.Parameterized).Params()
	assert.InDelta(t, 0.25, params["gain"], 1e-9)
}

func TestDump(t *testing.T) {
	s := newSystem(t)
	c, err := s.AddChannel("lead")
	require.NoError(t, err)
	require.NoError(t, c.LoadInstrument(units.FM))
	var b bytes.Buffer
	require.NoError(t, s.Dump(&b))
	assert.Contains(t, b.String(), "fm")
}
