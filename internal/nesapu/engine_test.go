package nesapu

import (
	"math"
	"testing"

	"github.com/cbegin/plink-go/internal/instrument"
	"gitlab.com/gomidi/midi/v2"
)

func peak(e *Engine, frames int) float64 {
	var maxAbs float64
	for i := 0; i < frames; i++ {
		l, r := e.RenderFrame()
		maxAbs = max(maxAbs, math.Abs(float64(l)), math.Abs(float64(r)))
	}
	return maxAbs
}

func TestEngineGeneratesSignal(t *testing.T) {
	e := NewEngine(48000)
	e.NoteOn(60, 100)
	if peak(e, 5000) == 0 {
		t.Fatalf("expected non-zero output")
	}
}

func TestEngineSupportsStereoPan(t *testing.T) {
	e := NewEngine(48000)
	e.ControlChange(instrument.CCPan, 127)
	e.NoteOn(60, 127)
	var leftEnergy, rightEnergy float64
	for i := 0; i < 4096; i++ {
		l, r := e.RenderFrame()
		leftEnergy += math.Abs(float64(l))
		rightEnergy += math.Abs(float64(r))
	}
	if rightEnergy <= leftEnergy {
		t.Fatalf("expected right-biased signal, left=%f right=%f", leftEnergy, rightEnergy)
	}
}

func TestAssignSlot(t *testing.T) {
	cases := []struct {
		key, program uint8
		counter      int
		want         slotKind
	}{
		{60, 0, 0, slotPulse1},
		{60, 0, 1, slotPulse2},
		{40, 0, 0, slotTriangle},
		{60, 70, 0, slotTriangle},
		{60, 9, 0, slotNoise},
		{90, 0, 0, slotNoise},
		{60, 100, 0, slotNoise},
	}
	for _, c := range cases {
		if got := assignSlot(c.key, c.program, 84, c.counter); got != c.want {
			t.Errorf("assignSlot(%d, %d, 84, %d) = %d, want %d", c.key, c.program, c.counter, got, c.want)
		}
	}
}

func TestChannelsAreMonophonic(t *testing.T) {
	e := NewEngine(48000)
	e.ProgramChange(70)
	e.NoteOn(60, 100)
	e.NoteOn(64, 100)
	if n := e.ActiveVoiceCount(); n != 1 {
		t.Fatalf("expected one triangle voice, got %d", n)
	}
	if k := e.slots[slotTriangle].key; k != 64 {
		t.Fatalf("expected the later note to take the triangle, got key %d", k)
	}
}

func TestReleaseFadesOnFrameClock(t *testing.T) {
	e := NewEngine(48000)
	e.NoteOn(60, 127)
	e.NoteOn(62, 127)
	peak(e, 1000)
	e.NoteOff(60)
	e.NoteOff(62)
	peak(e, 48000/2)
	if n := e.ActiveVoiceCount(); n != 0 {
		t.Fatalf("expected released channels to stop, got %d", n)
	}
}

func TestUnitVolumeControl(t *testing.T) {
	u := New(48000)
	u.Send(midi.NoteOn(0, 60, 127))
	u.Send(midi.ControlChange(0, instrument.CCVolume, 0))
	out := make([]float32, 1024)
	u.Render(out, nil)
	for i, v := range out {
		if v != 0 {
			t.Fatalf("expected silence at volume 0, sample %d = %f", i, v)
		}
	}
}
