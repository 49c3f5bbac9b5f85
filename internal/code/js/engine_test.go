package js

import (
	"testing"
	"time"

	"github.com/cbegin/plink-go/internal/audiosys"
	"github.com/cbegin/plink-go/internal/code"
	"github.com/cbegin/plink-go/internal/graph"
	"github.com/cbegin/plink-go/internal/metronome"
	"github.com/cbegin/plink-go/internal/scheduler"
	"github.com/cbegin/plink-go/internal/score"
	"github.com/cbegin/plink-go/internal/ticktime"
	"github.com/cbegin/plink-go/internal/transport"
	"github.com/cbegin/plink-go/internal/units"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	env     code.Environment
	console *code.Console
	engine  *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	g := graph.New(units.NewFactory(units.WithMaxFrames(64)), graph.WithMaxFrames(64))
	sys, err := audiosys.New(g)
	require.NoError(t, err)
	t.Cleanup(g.Close)
	m, err := metronome.New(120)
	require.NoError(t, err)
	env := code.Environment{Audio: sys, Metronome: m, Transport: transport.New(m), Scheduler: scheduler.New()}
	console := code.NewConsole(0)
	e, err := New(code.NewHost(env), console)
	require.NoError(t, err)
	return &fixture{env: env, console: console, engine: e}
}

func (f *fixture) logs() []string {
	var out []string
	for _, e := range f.console.Entries() {
		if e.Kind == code.EntryLog {
			out = append(out, e.Text)
		}
	}
	return out
}

func TestEvalCommand(t *testing.T) {
	f := newFixture(t)
	res, ok, err := f.engine.EvalCommand("1 + 2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "3", res)

	_, ok, err = f.engine.EvalCommand("var x = 4")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = f.engine.EvalCommand("throw new Error('nope')")
	assert.ErrorContains(t, err, "nope")
}

func TestScriptDefinitionsAndProcedures(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.EvalScript(`
		var hits = [];
		function fanfare(time) { hits.push(time); log("fanfare", time); }
	`))
	require.NoError(t, f.engine.CallProcedure("fanfare", int64(48)))
	assert.Equal(t, []string{"fanfare 48"}, f.logs())

	err := f.engine.CallProcedure("missing")
	assert.ErrorIs(t, err, code.ErrUnknownProcedure)

	r := code.Runner{Engine: f.engine, Delegate: f.console}
	r.RunAction(score.ParseAction("fanfare"), int64(96))
	r.RunAction(score.ParseAction("hits.length"))
	res, _, err := f.engine.EvalCommand("hits.join(',')")
	require.NoError(t, err)
	assert.Equal(t, "48,96", res)
}

func TestEvalCommandTimeout(t *testing.T) {
	f := newFixture(t)
	WithEvalTimeout(50 * time.Millisecond)(f.engine)

	_, _, err := f.engine.EvalCommand("for (;;) {}")
	assert.ErrorIs(t, err, ErrEvalTimeout)

	res, ok, err := f.engine.EvalCommand("1 + 1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", res)
}

func TestSchedulerBindings(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.EvalScript(`
		var seen = [];
		var h = scheduler.everyTickMultiple(6, function(i, t) { seen.push(i + ":" + t); });
		scheduler.atBeatTime(1, function() { log("beat one"); });
		scheduler.atTickTime(2, function() { throw new Error("bad cue"); });
	`))
	for tick := range ticktime.Time(25) {
		f.env.Scheduler.RunFor(tick)
	}
	res, _, err := f.engine.EvalCommand("seen.join(' ')")
	require.NoError(t, err)
	assert.Equal(t, "0:0 1:6 2:12 3:18 4:24", res)
	assert.Equal(t, []string{"beat one"}, f.logs())

	var exceptions int
	for _, e := range f.console.Entries() {
		if e.Kind == code.EntryException {
			exceptions++
			assert.Contains(t, e.Text, "bad cue")
		}
	}
	assert.Equal(t, 1, exceptions)

	_, _, err = f.engine.EvalCommand("h.cancel()")
	require.NoError(t, err)
	assert.Zero(t, f.env.Scheduler.Len())

	_, _, err = f.engine.EvalCommand("scheduler.everyBeatFraction(48, function() {})")
	assert.ErrorContains(t, err, "at least one tick")
	_, _, err = f.engine.EvalCommand("scheduler.everyBeatFraction(3, 4, function() {}).id > 0")
	require.NoError(t, err)
}

func TestTransportBindings(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.engine.EvalCommand("transport.tempo = 90")
	require.NoError(t, err)
	assert.InDelta(t, 90, f.env.Metronome.Tempo(), 1e-9)

	res, _, err := f.engine.EvalCommand("metronome.tempo")
	require.NoError(t, err)
	assert.Equal(t, "90", res)

	_, _, err = f.engine.EvalCommand("transport.tempo = -1")
	assert.Error(t, err)

	_, _, err = f.engine.EvalCommand("transport.setTimeout(function() { log('later'); }, 1)")
	require.NoError(t, err)
	f.env.Scheduler.MasterTick(23)
	assert.Empty(t, f.logs())
	f.env.Scheduler.MasterTick(24)
	assert.Equal(t, []string{"later"}, f.logs())

	_, _, err = f.engine.EvalCommand("transport.start()")
	require.NoError(t, err)
	assert.Equal(t, transport.Starting, f.env.Transport.State())
}

func TestChannelBindings(t *testing.T) {
	f := newFixture(t)
	c, err := f.env.Audio.AddChannel("Lead")
	require.NoError(t, err)

	res, _, err := f.engine.EvalCommand("channel('nope') === null")
	require.NoError(t, err)
	assert.Equal(t, "true", res)

	_, _, err = f.engine.EvalCommand("channel('lead').noteOn(60, 100)")
	assert.ErrorContains(t, err, "no instrument")

	require.NoError(t, c.LoadInstrument(units.FM))
	require.NoError(t, f.engine.EvalScript(`
		var ch = channel("lead");
		ch.noteOn(60, 100);
		ch.noteOff(60);
		ch.cc(1, 64);
		ch.play(64, 90, 12);
		ch.setParam("gain", 0.3);
		ch.gain = 0.5;
		ch.pan = -0.25;
	`))
	assert.InDelta(t, 0.5, c.Gain(), 1e-9)
	assert.InDelta(t, -0.25, c.Pan(), 1e-9)

	res, _, err = f.engine.EvalCommand("channels().join()")
	require.NoError(t, err)
	assert.Equal(t, "Lead", res)

	_, _, err = f.engine.EvalCommand("channel('lead').setParam('bogus', 1)")
	assert.Error(t, err)

	res, _, err = f.engine.EvalCommand("channel('lead').getParam('gain')")
	require.NoError(t, err)
	assert.Equal(t, "0.3", res)
	_, _, err = f.engine.EvalCommand("channel('lead').getParam('bogus')")
	assert.ErrorContains(t, err, "unknown parameter")

	_, _, err = f.engine.EvalCommand("channel('lead').sendMIDIEvent(0x90, 62, 80)")
	require.NoError(t, err)
}

func TestDiag(t *testing.T) {
	f := newFixture(t)
	res, ok, err := f.engine.EvalCommand("diag.graph()")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, res, "mixer/mixer")

	_, _, err = f.engine.EvalCommand("$diag.gdump()")
	require.NoError(t, err)
	require.Len(t, f.logs(), 1)
	assert.Contains(t, f.logs()[0], "output/output")
}

func TestResetState(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.EvalScript(`
		var defined = 1;
		scheduler.everyTickMultiple(1, function() { log("tick"); });
		transport.setTimeout(function() { log("timeout"); }, 0);
	`))
	require.Equal(t, 2, f.env.Scheduler.Len())

	require.NoError(t, f.engine.ResetState())
	assert.Zero(t, f.env.Scheduler.Len())
	res, _, err := f.engine.EvalCommand("typeof defined")
	require.NoError(t, err)
	assert.Equal(t, "undefined", res)

	f.env.Scheduler.RunFor(0)
	f.env.Scheduler.MasterTick(0)
	assert.Empty(t, f.logs())
}
