package score

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/plink-go/internal/metronome"
	"github.com/cbegin/plink-go/internal/scheduler"
	"github.com/cbegin/plink-go/internal/ticktime"
	"github.com/cbegin/plink-go/internal/transport"
)

func drain(p *PlayContext, t ticktime.Time) []string {
	var out []string
	for {
		c, ok := p.NextCue(t)
		if !ok {
			return out
		}
		out = append(out, c.Action.Text)
	}
}

func TestPlayContextReturnsEachCueOnce(t *testing.T) {
	m := NewModel(nil)
	m.AddCues(cue(0, "a"), cue(3, "b"), cue(3, "c"), cue(7, "d"))
	p := NewPlayContext(m, 0)

	var got []string
	for tick := ticktime.Time(0); tick < 10; tick++ {
		got = append(got, drain(p, tick)...)
		p.Advance(tick + 1)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, got)
	assert.Equal(t, 4, p.Cursor())
}

func TestPlayContextStartsAtFirstCueNotBefore(t *testing.T) {
	m := NewModel(nil)
	m.AddCues(cue(0, "a"), cue(10, "b"), cue(20, "c"))
	p := NewPlayContext(m, 10)
	assert.Equal(t, 1, p.Cursor())
	assert.Empty(t, drain(p, 9))
	assert.Equal(t, []string{"b"}, drain(p, 10))
}

func TestPlayContextAdvanceSkips(t *testing.T) {
	m := NewModel(nil)
	m.AddCues(cue(0, "a"), cue(5, "b"), cue(9, "c"))
	p := NewPlayContext(m, 0)
	p.Advance(6)
	assert.Equal(t, ticktime.Time(6), p.CurrentTime())
	assert.Equal(t, []string{"c"}, drain(p, 100))
	p.Advance(2)
	assert.Equal(t, ticktime.Time(6), p.CurrentTime(), "advance never goes backward")
	assert.Equal(t, 3, p.Cursor())
}

func TestPlayContextAdjustsForEdits(t *testing.T) {
	cases := []struct {
		name string
		edit func(m *Model)
		want []string
	}{
		{"insert before cursor", func(m *Model) { m.AddCue(cue(2, "early")) }, []string{"c", "d"}},
		{"insert at playhead", func(m *Model) { m.AddCue(cue(5, "now")) }, []string{"now", "c", "d"}},
		{"insert after cursor", func(m *Model) { m.AddCue(cue(8, "late")) }, []string{"c", "late", "d"}},
		{"delete before cursor", func(m *Model) { require.NoError(t, m.RemoveCue(0)) }, []string{"c", "d"}},
		{"delete after cursor", func(m *Model) { require.NoError(t, m.RemoveCue(2)) }, []string{"d"}},
		{"clear", func(m *Model) { m.ClearCues() }, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewModel(nil)
			m.AddCues(cue(0, "a"), cue(4, "b"), cue(6, "c"), cue(9, "d"))
			p := NewPlayContext(m, 0)
			for tick := ticktime.Time(0); tick < 5; tick++ {
				drain(p, tick)
				p.Advance(tick + 1)
			}
			tc.edit(m)
			p.AdjustForCueListChange()

			var got []string
			for tick := ticktime.Time(5); tick < 12; tick++ {
				got = append(got, drain(p, tick)...)
				p.Advance(tick + 1)
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPlayContextMarkDefersAdjustment(t *testing.T) {
	m := NewModel(nil)
	m.AddCues(cue(4, "b"))
	p := NewPlayContext(m, 0)
	m.AddCue(cue(2, "a"))
	p.MarkCueListChanged()
	assert.Equal(t, []string{"a"}, drain(p, 2))
}

type recorder struct{ calls []string }

func (r *recorder) RunAction(a CuedAction, args ...any) {
	r.calls = append(r.calls, fmt.Sprintf("%s%v", a.Text, args))
}

func TestPerformerWithTransport(t *testing.T) {
	m := NewModel(nil)
	m.AddCues(cue(0, "intro"), cue(24, "drop(1)"))
	require.NoError(t, m.AddCycle(Cycle{Name: "hat", IsActive: true, Period: 12, Modulus: 6, Action: Procedure("hat")}))
	require.NoError(t, m.AddCycle(Cycle{Name: "off", Period: 1, Action: Procedure("never")}))

	met, err := metronome.New(120)
	require.NoError(t, err)
	tr := transport.New(met)
	sched := scheduler.New()
	rec := &recorder{}
	perf := NewPerformer(m, rec, nil)
	tr.OnRunningStateChange(perf.TransportStateChanged)
	tr.AddClient(sched)
	tr.AddClient(perf)
	met.OnTick(tr.Tick)

	var order []string
	sched.CreateSingleAction(6, func() { order = append(order, fmt.Sprint(len(rec.calls))) })

	tr.Start(0)
	for met.MasterTime() < 30 {
		met.Advance(64, 48000)
	}
	assert.Equal(t, []string{
		"intro[0]",
		"hat[0 6]",
		"hat[1 18]",
		"drop(1)[24]",
	}, rec.calls)
	assert.Equal(t, []string{"1"}, order, "scheduler client runs before the performer")

	tr.Stop()
	assert.Nil(t, perf.Session())
	m.AddCue(cue(40, "later"))
	tr.Start(40)
	met.Advance(2000, 48000)
	assert.Equal(t, "later[40]", rec.calls[len(rec.calls)-1])
}

func TestPerformerRecoversPanics(t *testing.T) {
	m := NewModel(nil)
	m.AddCues(cue(1, "bad"), cue(1, "good"))
	var ran []string
	perf := NewPerformer(m, RunnerFunc(func(a CuedAction, args ...any) {
		if a.Text == "bad" {
			panic("boom")
		}
		ran = append(ran, a.Text)
	}), nil)
	perf.TransportStateChanged(transport.Change{From: transport.Starting, To: transport.Running, At: 0})
	perf.TransportTick(0)
	perf.TransportTick(1)
	assert.Equal(t, []string{"good"}, ran)
}
