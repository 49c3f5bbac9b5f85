// Package chiptune is a band-limited pulse, triangle and noise synthesizer
// with stepped volume envelopes, played through MIDI note events.
package chiptune

import (
	"math"

	"github.com/cbegin/plink-go/internal/instrument"
	"github.com/cbegin/plink-go/internal/lfo"
	"github.com/cbegin/plink-go/internal/param"
)

const twoPi = math.Pi * 2

type waveType int

const (
	wavePulseA waveType = iota
	wavePulseB
	waveTriangle
	waveNoise
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
	age              int
	wave             waveType
	freq             float64
	phase            float64
	velocity         float64
	env              float64
	envState         envState
	pan              float64
	noiseLFSR        uint16
	portamentoTarget float64
	portamentoFrames int
	portamentoStep   float64
}

type filterType int

const (
	filterLP filterType = iota
	filterBP
	filterHP
)

// Engine renders chiptune voices on the render goroutine.
type Engine struct {
	sampleRate float64
	voices     []voice

	wave       waveType
	dutyA      float64
	dutyB      float64
	attack     float64
	decay      float64
	sustain    float64
	release    float64
	gain       float64
	velAmp     float64
	stepLevels int
	glideSec   float64

	vibratoDepth float64
	vibratoRate  float64
	modWheel     float64
	volume       float64
	pan          float64
	lastKey      int

	dcPrevInL  float64
	dcPrevOutL float64
	dcPrevInR  float64
	dcPrevOutR float64
	lpfL, lpfR float64
	bpfL, bpfR float64
	lpfAlpha   float64
	filterKind filterType
	pitchLFO   lfo.LFO
}

// NewEngine returns an engine with the given number of voices at default
// settings.
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
	e.seedNoise()
	e.Configure(param.NewSet(Params()...))
	return e
}

func (e *Engine) seedNoise() {
	for i := range e.voices {
		e.voices[i].noiseLFSR = uint16(0xACE1 + i*97)
	}
}

// Configure reads the engine settings from p, laid out as Params.
func (e *Engine) Configure(p *param.Set) {
	e.wave = waveType(p.Int(pWave))
	e.dutyA = p.Get(pDutyA)
	e.dutyB = p.Get(pDutyB)
	e.attack = p.Get(pAttack)
	e.decay = p.Get(pDecay)
	e.sustain = p.Get(pSustain)
	e.release = p.Get(pRelease)
	e.gain = p.Get(pGain)
	e.velAmp = p.Get(pVelocity)
	e.stepLevels = p.Int(pSteps)
	e.filterKind = filterType(p.Int(pFilter))
	e.vibratoDepth = p.Get(pVibratoDepth)
	e.vibratoRate = p.Get(pVibratoRate)
	e.glideSec = p.Get(pGlide) / 1000
	e.lpfAlpha = 0
	if hz := p.Get(pCutoff); hz > 0 && hz < e.sampleRate/2 {
		rc := 1.0 / (twoPi * hz)
		dt := 1.0 / e.sampleRate
		e.lpfAlpha = dt / (rc + dt)
	}
	e.updateVibrato()
}

func (e *Engine) updateVibrato() {
	e.pitchLFO.Set(e.vibratoDepth+e.modWheel, e.vibratoRate, lfo.Triangle)
}

// ProgramChange picks the wave: 0-31 pulse A, 32-63 pulse B, 64-95
// triangle, 96+ noise.
func (e *Engine) ProgramChange(program uint8) {
	e.wave = waveForProgram(program)
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
	v := &e.voices[e.voiceFor(key)]
	v.active = true
	v.key = key
	v.age = 0
	v.wave = e.wave
	targetFreq := instrument.Freq(float64(key))
	if e.glideSec > 0 && e.lastKey >= 0 {
		frames := max(int(e.glideSec*e.sampleRate), 1)
		v.freq = instrument.Freq(float64(e.lastKey))
		v.portamentoTarget = targetFreq
		v.portamentoFrames = frames
		v.portamentoStep = (targetFreq - v.freq) / float64(frames)
	} else {
		v.freq = targetFreq
		v.portamentoFrames = 0
	}
	e.lastKey = int(key)
	v.phase = 0
	v.velocity = clamp(float64(velocity)/127.0, 0, 1)
	v.env = 0
	v.envState = envAttack
	v.pan = e.pan
	if v.noiseLFSR == 0 {
		v.noiseLFSR = 0xACE1
	}
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

// Reset silences every voice and clears filter state.
func (e *Engine) Reset() {
	clear(e.voices)
	e.seedNoise()
	e.dcPrevInL, e.dcPrevOutL, e.dcPrevInR, e.dcPrevOutR = 0, 0, 0, 0
	e.lpfL, e.lpfR, e.bpfL, e.bpfR = 0, 0, 0, 0
	e.pitchLFO.Reset()
	e.lastKey = -1
}

func (e *Engine) RenderFrame() (float32, float32) {
	pitchMod := e.pitchLFO.Sample(e.sampleRate)
	freqMul := 1.0
	if pitchMod != 0 {
		freqMul = math.Pow(2, pitchMod/12.0)
	}
	gain := e.gain * e.volume

	var l, r float64
	for i := range e.voices {
		v := &e.voices[i]
		if !v.active {
			continue
		}
		v.age++
		if v.portamentoFrames > 0 {
			v.portamentoFrames--
			v.freq += v.portamentoStep
			if v.portamentoFrames <= 0 {
				v.freq = v.portamentoTarget
			}
		}
		env := e.advanceEnv(v)
		if !v.active {
			continue
		}
		sample := e.renderWave(v, v.freq*freqMul)
		level := quantize(env*(0.15+v.velocity*e.velAmp), e.stepLevels)
		sig := sample * level * gain
		angle := (v.pan + 1) / 2 * (math.Pi / 2.0)
		l += sig * math.Cos(angle)
		r += sig * math.Sin(angle)
	}
	l = dcBlock(l, &e.dcPrevInL, &e.dcPrevOutL)
	r = dcBlock(r, &e.dcPrevInR, &e.dcPrevOutR)
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

func dcBlock(x float64, prevIn, prevOut *float64) float64 {
	const r = 0.995
	y := x - *prevIn + r*(*prevOut)
	*prevIn = x
	*prevOut = y
	return y
}

// polyBLEP reduces aliasing at waveform discontinuities.
// t is the phase position [0,1), dt is the phase increment per sample.
func polyBLEP(t, dt float64) float64 {
	if t < dt {
		t /= dt
		return t + t - t*t - 1
	}
	if t > 1-dt {
		t = (t - 1) / dt
		return t*t + t + t + 1
	}
	return 0
}

func (e *Engine) pulse(v *voice, duty, dt float64) float64 {
	out := -1.0
	if v.phase < duty {
		out = 1
	}
	out += polyBLEP(v.phase, dt)
	out -= polyBLEP(math.Mod(v.phase-duty+1, 1), dt)
	return out
}

func (e *Engine) renderWave(v *voice, freq float64) float64 {
	dt := freq / e.sampleRate
	v.phase += dt
	if v.phase >= 1 {
		v.phase -= 1
	}
	switch v.wave {
	case wavePulseA:
		return e.pulse(v, e.dutyA, dt)
	case wavePulseB:
		return e.pulse(v, e.dutyB, dt)
	case waveTriangle:
		return 2*math.Abs(2*v.phase-1) - 1
	case waveNoise:
		if v.phase < dt {
			bit := (v.noiseLFSR ^ (v.noiseLFSR >> 1)) & 1
			v.noiseLFSR = (v.noiseLFSR >> 1) | (bit << 15)
		}
		if v.noiseLFSR&1 == 1 {
			return 1
		}
		return -1
	default:
		return 0
	}
}

func waveForProgram(program uint8) waveType {
	switch {
	case program >= 96:
		return waveNoise
	case program >= 64:
		return waveTriangle
	case program >= 32:
		return wavePulseB
	}
	return wavePulseA
}

// voiceFor retriggers the voice holding key, else takes a free voice, else
// steals the oldest releasing voice, else the oldest voice.
func (e *Engine) voiceFor(key uint8) int {
	free := -1
	for i := range e.voices {
		v := &e.voices[i]
		if v.active && v.key == key {
			return i
		}
		if !v.active && free < 0 {
			free = i
		}
	}
	if free >= 0 {
		return free
	}
	oldestRelease := -1
	oldestReleaseAge := -1
	oldestActive := 0
	oldestActiveAge := -1
	for i := range e.voices {
		v := &e.voices[i]
		if v.envState == envRelease && v.age > oldestReleaseAge {
			oldestRelease = i
			oldestReleaseAge = v.age
		}
		if v.age > oldestActiveAge {
			oldestActive = i
			oldestActiveAge = v.age
		}
	}
	if oldestRelease >= 0 {
		return oldestRelease
	}
	return oldestActive
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

func quantize(v float64, steps int) float64 {
	if steps <= 1 {
		return v
	}
	n := math.Round(v*float64(steps-1)) / float64(steps-1)
	return clamp(n, 0, 1)
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
