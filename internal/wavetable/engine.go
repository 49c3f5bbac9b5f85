// Package wavetable plays single-cycle waveforms with an ADSR envelope. The
// program number picks one of 16 table slots.
package wavetable

import (
	"encoding/hex"
	"math"
	"math/rand/v2"

	"github.com/cbegin/plink-go/internal/instrument"
	"github.com/cbegin/plink-go/internal/lfo"
	"github.com/cbegin/plink-go/internal/param"
)

const (
	twoPi         = math.Pi * 2
	Slots         = 16
	DefaultVoices = 16
	tableLen      = 64
)

// Built-in 8-bit tables, signed bytes in hex.
var builtin = map[int]string{
	4: "00183048607080706050403020100000f0e0d0c0b0a09090a0b0c0d0e0f00000",
	5: "7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f40404040404040408181818181818181",
}

type filterType int

const (
	filterLP filterType = iota
	filterBP
	filterHP
)

type envState int

const (
	envAttack envState = iota
	envDecay
	envSustain
	envRelease
	envOff
)

type voice struct {
	active           bool
	key              uint8
	velocity         float64
	freq             float64
	phase            float64 // [0, len(table))
	env              float64
	envState         envState
	pan              float64
	slot             int
	portamentoTarget float64
	portamentoFrames int
	portamentoStep   float64
}

// Engine is a polyphonic wavetable synthesizer.
type Engine struct {
	sampleRate float64
	voices     []voice
	tables     [Slots][]float64
	slot       int

	attack   float64
	decay    float64
	sustain  float64
	release  float64
	gain     float64
	velAmp   float64
	phaseArg int
	glideSec float64

	vibratoDepth float64
	vibratoRate  float64
	modWheel     float64
	volume       float64
	pan          float64
	lastKey      int

	baseCutoff float64
	lpfL, lpfR float64
	bpfL, bpfR float64
	lpfAlpha   float64
	filterKind filterType
	pitchLFO   lfo.LFO
	ampLFO     lfo.LFO
	filterLFO  lfo.LFO
}

// NewEngine returns an engine with the built-in tables installed: sine,
// triangle, saw, square, then two 8-bit tables in slots 4 and 5.
func NewEngine(sampleRate, voices int) *Engine {
	if voices <= 0 {
		voices = DefaultVoices
	}
	e := &Engine{
		sampleRate: float64(sampleRate),
		voices:     make([]voice, voices),
		volume:     1,
		lastKey:    -1,
	}
	sine := make([]float64, tableLen)
	tri := make([]float64, tableLen)
	saw := make([]float64, tableLen)
	square := make([]float64, tableLen)
	for i := range tableLen {
		ph := float64(i) / tableLen
		sine[i] = math.Sin(twoPi * ph)
		tri[i] = 1 - 4*math.Abs(ph-0.5)
		saw[i] = 2*ph - 1
		square[i] = 1
		if ph >= 0.5 {
			square[i] = -1
		}
	}
	e.tables[0], e.tables[1], e.tables[2], e.tables[3] = sine, tri, saw, square
	for slot, h := range builtin {
		e.tables[slot] = ParseWAVB(h)
	}
	e.Configure(param.NewSet(Params()...))
	return e
}

// SetWavetable copies a single-cycle waveform into slot. Out of range slots
// are ignored.
func (e *Engine) SetWavetable(slot int, samples []float64) {
	if slot < 0 || slot >= Slots {
		return
	}
	e.tables[slot] = append([]float64(nil), samples...)
}

// ParseWAVB converts hex pairs, each a signed 8-bit sample, into samples in
// [-1, 1]. Malformed input yields nil.
func ParseWAVB(h string) []float64 {
	data, err := hex.DecodeString(h)
	if err != nil {
		return nil
	}
	out := make([]float64, len(data))
	for i, b := range data {
		out[i] = max(float64(int8(b))/127.0, -1)
	}
	return out
}

// Configure reads the engine settings from p, laid out as Params.
func (e *Engine) Configure(p *param.Set) {
	e.slot = p.Int(pTable)
	e.attack = p.Get(pAttack)
	e.decay = p.Get(pDecay)
	e.sustain = p.Get(pSustain)
	e.release = p.Get(pRelease)
	e.gain = p.Get(pGain)
	e.velAmp = p.Get(pVelocity)
	e.phaseArg = p.Int(pPhase)
	e.glideSec = p.Get(pGlide) / 1000
	e.filterKind = filterType(p.Int(pFilter))
	e.vibratoDepth = p.Get(pVibratoDepth)
	e.vibratoRate = p.Get(pVibratoRate)
	e.ampLFO.Set(p.Get(pTremoloDepth), p.Get(pTremoloRate), lfo.Sine)
	e.filterLFO.Set(p.Get(pSweepDepth), p.Get(pSweepRate), lfo.Triangle)
	e.baseCutoff = 0
	e.lpfAlpha = 0
	if hz := p.Get(pCutoff); hz > 0 && hz < e.sampleRate/2 {
		e.baseCutoff = hz
		e.lpfAlpha = e.alpha(hz)
	}
	e.updateVibrato()
}

func (e *Engine) alpha(hz float64) float64 {
	rc := 1.0 / (twoPi * hz)
	dt := 1.0 / e.sampleRate
	return dt / (rc + dt)
}

func (e *Engine) updateVibrato() {
	e.pitchLFO.Set(e.vibratoDepth+e.modWheel, e.vibratoRate, lfo.Triangle)
}

// ProgramChange selects the table slot for following notes.
func (e *Engine) ProgramChange(program uint8) {
	e.slot = int(program) % Slots
}

func (e *Engine) ControlChange(cc, value uint8) {
	switch cc {
	case instrument.CCModulation:
		e.modWheel = float64(value) / 127
		e.updateVibrato()
	case instrument.CCVolume:
		e.volume = float64(value) / 127
	case instrument.CCPan:
		e.pan = instrument.Pan(value)
	}
}

func (e *Engine) NoteOn(key, velocity uint8) {
	slot := e.slot
	if slot < 0 || slot >= Slots || len(e.tables[slot]) == 0 {
		slot = 0
	}
	n := float64(len(e.tables[slot]))
	v := &e.voices[e.voiceFor(key)]
	*v = voice{
		active:   true,
		key:      key,
		velocity: clamp(float64(velocity)/127.0, 0, 1),
		freq:     instrument.Freq(float64(key)),
		envState: envAttack,
		pan:      e.pan,
		slot:     slot,
	}
	switch {
	case e.phaseArg < 0:
		v.phase = rand.Float64() * n
	case e.phaseArg > 0:
		v.phase = math.Mod(float64(e.phaseArg)/128.0*n/2.0, n)
	}
	if e.glideSec > 0 && e.lastKey >= 0 {
		frames := max(int(e.glideSec*e.sampleRate), 1)
		v.portamentoTarget = v.freq
		v.freq = instrument.Freq(float64(e.lastKey))
		v.portamentoFrames = frames
		v.portamentoStep = (v.portamentoTarget - v.freq) / float64(frames)
	}
	e.lastKey = int(key)
}

func (e *Engine) NoteOff(key uint8) {
	for i := range e.voices {
		v := &e.voices[i]
		if v.active && v.key == key && v.envState != envRelease {
			v.envState = envRelease
		}
	}
}

func (e *Engine) AllNotesOff() {
	for i := range e.voices {
		if e.voices[i].active {
			e.voices[i].envState = envRelease
		}
	}
}

// Reset silences every voice and clears filter state. Tables are kept.
func (e *Engine) Reset() {
	clear(e.voices)
	e.lpfL, e.lpfR, e.bpfL, e.bpfR = 0, 0, 0, 0
	e.pitchLFO.Reset()
	e.ampLFO.Reset()
	e.filterLFO.Reset()
	e.lastKey = -1
}

func (e *Engine) RenderFrame() (float32, float32) {
	pitchMod := e.pitchLFO.Sample(e.sampleRate)
	ampMod := e.ampLFO.Sample(e.sampleRate)
	filterMod := e.filterLFO.Sample(e.sampleRate)
	freqMul := 1.0
	if pitchMod != 0 {
		freqMul = math.Pow(2, pitchMod/12.0)
	}
	gain := e.gain * e.volume * (1 + ampMod)

	var l, r float64
	for i := range e.voices {
		v := &e.voices[i]
		if !v.active {
			continue
		}
		env := e.advanceEnv(v)
		if !v.active {
			continue
		}
		table := e.tables[v.slot]
		n := float64(len(table))
		i0 := int(v.phase) % len(table)
		i1 := (i0 + 1) % len(table)
		frac := v.phase - math.Floor(v.phase)
		sig := (table[i0]*(1-frac) + table[i1]*frac) * env * gain * (0.2 + v.velocity*e.velAmp)

		angle := (v.pan + 1) / 2 * (math.Pi / 2.0)
		l += sig * math.Cos(angle)
		r += sig * math.Sin(angle)

		if v.portamentoFrames > 0 {
			v.portamentoFrames--
			v.freq += v.portamentoStep
			if v.portamentoFrames <= 0 {
				v.freq = v.portamentoTarget
			}
		}
		v.phase += v.freq * freqMul * n / e.sampleRate
		for v.phase >= n {
			v.phase -= n
		}
	}

	if e.baseCutoff > 0 && filterMod != 0 {
		e.lpfAlpha = e.alpha(clamp(e.baseCutoff+filterMod*100.0, 20, e.sampleRate/2))
	}
	if e.lpfAlpha > 0 {
		e.lpfL += e.lpfAlpha * (l - e.lpfL)
		e.lpfR += e.lpfAlpha * (r - e.lpfR)
		switch e.filterKind {
		case filterHP:
			l = l - e.lpfL
			r = r - e.lpfR
		case filterBP:
			e.bpfL += e.lpfAlpha * (e.lpfL - e.bpfL)
			e.bpfR += e.lpfAlpha * (e.lpfR - e.bpfR)
			l = e.lpfL - e.bpfL
			r = e.lpfR - e.bpfR
		default:
			l = e.lpfL
			r = e.lpfR
		}
	}
	return float32(clamp(l, -1, 1)), float32(clamp(r, -1, 1))
}

// ActiveVoiceCount reports sounding voices.
func (e *Engine) ActiveVoiceCount() int {
	n := 0
	for i := range e.voices {
		if e.voices[i].active {
			n++
		}
	}
	return n
}

// voiceFor retriggers the voice holding key, else takes a free voice, else
// the quietest.
func (e *Engine) voiceFor(key uint8) int {
	for i := range e.voices {
		if e.voices[i].active && e.voices[i].key == key {
			return i
		}
	}
	for i := range e.voices {
		if !e.voices[i].active {
			return i
		}
	}
	quiet := 0
	for i := 1; i < len(e.voices); i++ {
		if e.voices[i].env < e.voices[quiet].env {
			quiet = i
		}
	}
	return quiet
}

func (e *Engine) advanceEnv(v *voice) float64 {
	switch v.envState {
	case envAttack:
		v.env += 1.0 / max(e.attack*e.sampleRate, 1)
		if v.env >= 1 {
			v.env = 1
			v.envState = envDecay
		}
	case envDecay:
		v.env -= (1 - e.sustain) / max(e.decay*e.sampleRate, 1)
		if v.env <= e.sustain {
			v.env = e.sustain
			v.envState = envSustain
		}
	case envSustain:
	case envRelease:
		v.env -= max(e.sustain, 0.05) / max(e.release*e.sampleRate, 1)
		if v.env <= 0.0001 {
			v.env = 0
			v.envState = envOff
			v.active = false
		}
	case envOff:
		v.active = false
		v.env = 0
	}
	return v.env
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
