package fm

import (
	"math"
	"testing"

	"github.com/cbegin/plink-go/internal/instrument"
	"github.com/cbegin/plink-go/internal/param"
	"gitlab.com/gomidi/midi/v2"
)

func configured(t *testing.T, settings map[string]float64) *Engine {
	t.Helper()
	e := NewEngine(48000, 8)
	p := param.NewSet(Params()...)
	for name, v := range settings {
		if err := p.SetParam(name, v); err != nil {
			t.Fatalf("SetParam(%s): %v", name, err)
		}
	}
	e.Configure(p)
	return e
}

func peak(e *Engine, frames int) float64 {
	var maxAbs float64
	for i := 0; i < frames; i++ {
		l, r := e.RenderFrame()
		maxAbs = max(maxAbs, math.Abs(float64(l)), math.Abs(float64(r)))
	}
	return maxAbs
}

func TestEngineGeneratesSignal(t *testing.T) {
	e := NewEngine(48000, 0)
	e.NoteOn(60, 100)
	if peak(e, 5000) == 0 {
		t.Fatalf("expected non-zero output")
	}
	if n := e.ActiveVoiceCount(); n != 1 {
		t.Fatalf("expected 1 active voice, got %d", n)
	}
}

func TestNoteOffReleasesVoice(t *testing.T) {
	e := NewEngine(48000, 4)
	e.NoteOn(60, 100)
	e.NoteOn(64, 100)
	peak(e, 1000)
	e.NoteOff(60)
	peak(e, 30000)
	if n := e.ActiveVoiceCount(); n != 1 {
		t.Fatalf("expected only the held note left, got %d voices", n)
	}
	e.AllNotesOff()
	peak(e, 30000)
	if n := e.ActiveVoiceCount(); n != 0 {
		t.Fatalf("expected silence, got %d voices", n)
	}
}

func TestRetriggerReusesVoice(t *testing.T) {
	e := NewEngine(48000, 4)
	e.NoteOn(60, 100)
	e.NoteOn(60, 80)
	if n := e.ActiveVoiceCount(); n != 1 {
		t.Fatalf("expected retrigger to reuse the voice, got %d voices", n)
	}
}

func TestVoiceStealing(t *testing.T) {
	e := NewEngine(48000, 2)
	for key := uint8(60); key < 66; key++ {
		e.NoteOn(key, 100)
		peak(e, 10)
	}
	if n := e.ActiveVoiceCount(); n != 2 {
		t.Fatalf("expected polyphony cap of 2, got %d", n)
	}
}

func TestPanExtremesBiasChannels(t *testing.T) {
	e := NewEngine(48000, 4)
	e.ControlChange(instrument.CCPan, 0)
	e.NoteOn(60, 127)
	var leftEnergy, rightEnergy float64
	for i := 0; i < 4096; i++ {
		l, r := e.RenderFrame()
		leftEnergy += math.Abs(float64(l))
		rightEnergy += math.Abs(float64(r))
	}
	if leftEnergy <= rightEnergy {
		t.Fatalf("expected left-biased signal, left=%f right=%f", leftEnergy, rightEnergy)
	}
}

func TestMultiOperatorAlgorithms(t *testing.T) {
	for _, tc := range []struct {
		name    string
		opCount int
		alg     int
	}{
		{"1-op", 1, 0},
		{"2-op serial", 2, 0},
		{"2-op parallel", 2, 1},
		{"3-op cascade", 3, 0},
		{"3-op serial feedback", 3, 1},
		{"3-op all-parallel", 3, 3},
		{"4-op cascade", 4, 0},
		{"4-op two pairs", 4, 3},
		{"4-op all-parallel", 4, 5},
	} {
		t.Run(tc.name, func(t *testing.T) {
			e := configured(t, map[string]float64{
				"operators": float64(tc.opCount),
				"algorithm": float64(tc.alg),
			})
			e.NoteOn(60, 100)
			if peak(e, 2000) < 0.001 {
				t.Errorf("expected non-zero output for %s", tc.name)
			}
		})
	}
}

func TestWaveformTypes(t *testing.T) {
	for wf := 0; wf < 8; wf++ {
		t.Run("waveform_"+string(rune('0'+wf)), func(t *testing.T) {
			e := configured(t, map[string]float64{"waveform": float64(wf)})
			e.NoteOn(60, 100)
			if peak(e, 1000) < 0.001 {
				t.Errorf("waveform %d produced no output", wf)
			}
		})
	}
}

func TestFilterTypes(t *testing.T) {
	for _, ft := range []float64{0, 1, 2} {
		e := configured(t, map[string]float64{"filter": ft})
		e.NoteOn(60, 100)
		if peak(e, 2000) < 0.001 {
			t.Errorf("filter type %v produced no output", ft)
		}
	}
}

func TestFeedbackProducesDifferentOutput(t *testing.T) {
	sum := func(fb float64) float64 {
		e := configured(t, map[string]float64{"feedback": fb})
		e.NoteOn(60, 100)
		var s float64
		for i := 0; i < 1000; i++ {
			l, _ := e.RenderFrame()
			s += float64(l)
		}
		return s
	}
	if sum(0) == sum(0.7) {
		t.Error("feedback should change the output")
	}
}

func TestOPMPatchSelectedByProgram(t *testing.T) {
	data := []int{4, 5}
	for op := 0; op < 4; op++ {
		data = append(data, 31, 5, 0, 7, 2, 20, 0, op+1, 0, 0, 0)
	}
	e := NewEngine(48000, 4)
	if !e.LoadOPMPatch(3, data) {
		t.Fatal("patch rejected")
	}
	if e.LoadOPMPatch(4, data[:10]) {
		t.Fatal("short patch accepted")
	}
	e.ProgramChange(3)
	e.NoteOn(60, 100)
	if e.voices[0].numOps != 4 || e.voices[0].alg != 4 {
		t.Fatalf("expected 4-op alg 4 voice, got %d ops alg %d", e.voices[0].numOps, e.voices[0].alg)
	}
	if peak(e, 2000) < 0.001 {
		t.Fatal("patched voice produced no output")
	}
}

func TestUnitPlaysMIDI(t *testing.T) {
	u := New(48000)
	if u.Inputs() != 0 {
		t.Fatalf("instrument should have no inputs")
	}
	u.Send(midi.NoteOn(0, 69, 120))
	out := make([]float32, 2048)
	u.Render(out, nil)
	var nonZero bool
	for _, v := range out {
		if v != 0 {
			nonZero = true
			break
		}
	}
	if !nonZero {
		t.Fatal("expected sound after note on")
	}

	allocs := testing.AllocsPerRun(10, func() { u.Render(out, nil) })
	if allocs != 0 {
		t.Fatalf("render allocated %v times", allocs)
	}
}
