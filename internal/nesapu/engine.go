// Package nesapu models a four channel console sound chip: two pulses, a
// triangle and an LFSR noise channel, each monophonic. Release fades on a
// 240Hz frame clock and volumes are quantized to 16 steps.
package nesapu

import (
	"math"

	"github.com/cbegin/plink-go/internal/instrument"
	"github.com/cbegin/plink-go/internal/lfo"
	"github.com/cbegin/plink-go/internal/param"
)

const (
	twoPi     = math.Pi * 2
	frameRate = 240.0
	drumProg  = 9
)

type slotKind int

const (
	slotPulse1 slotKind = iota
	slotPulse2
	slotTriangle
	slotNoise
	slotCount
)

type channel struct {
	active           bool
	released         bool
	key              uint8
	freq             float64
	phase            float64
	vol              float64
	pan              float64
	lfsr             uint16
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

// Engine renders the four chip channels.
type Engine struct {
	sampleRate float64
	slots      [slotCount]channel
	program    uint8
	counter    int

	frameCounter int
	framePeriod  int

	gain         float64
	dutyA        float64
	dutyB        float64
	releaseStep  float64
	noiseCutoff  uint8
	pulseGain    float64
	triangleGain float64
	noiseGain    float64
	glideSec     float64

	vibratoDepth float64
	vibratoRate  float64
	modWheel     float64
	volume       float64
	pan          float64
	lastKey      int

	lpfL, lpfR float64
	bpfL, bpfR float64
	lpfAlpha   float64
	filterKind filterType
	pitchLFO   lfo.LFO
	ampLFO     lfo.LFO
}

func NewEngine(sampleRate int) *Engine {
	e := &Engine{
		sampleRate:  float64(sampleRate),
		framePeriod: max(int(float64(sampleRate)/frameRate), 1),
		volume:      1,
		lastKey:     -1,
	}
	e.slots[slotNoise].lfsr = 0xACE1
	e.Configure(param.NewSet(Params()...))
	return e
}

// Configure reads the engine settings from p, laid out as Params.
func (e *Engine) Configure(p *param.Set) {
	e.gain = p.Get(pGain)
	e.dutyA = p.Get(pDutyA)
	e.dutyB = p.Get(pDutyB)
	e.releaseStep = 1 / max(p.Get(pRelease)*frameRate, 1)
	e.noiseCutoff = uint8(p.Int(pNoiseCutoff))
	e.pulseGain = p.Get(pPulseGain)
	e.triangleGain = p.Get(pTriangleGain)
	e.noiseGain = p.Get(pNoiseGain)
	e.filterKind = filterType(p.Int(pFilter))
	e.vibratoDepth = p.Get(pVibratoDepth)
	e.vibratoRate = p.Get(pVibratoRate)
	e.ampLFO.Set(p.Get(pTremoloDepth), p.Get(pTremoloRate), lfo.Sine)
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

// ProgramChange steers slot routing: 9 and 96+ play noise, 64-95 the
// triangle, anything else the pulses.
func (e *Engine) ProgramChange(program uint8) {
	e.program = program
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

// NoteOn takes over the slot chosen for key, cutting whatever it played.
func (e *Engine) NoteOn(key, velocity uint8) {
	kind := assignSlot(key, e.program, e.noiseCutoff, e.counter)
	e.counter++
	c := &e.slots[kind]
	prev := c.lfsr
	*c = channel{
		active: true,
		key:    key,
		vol:    clamp(float64(velocity)/127, 0, 1),
		pan:    e.pan,
	}
	if kind == slotNoise {
		c.lfsr = seedLFSR(prev, key, e.counter)
		return
	}
	target := instrument.Freq(float64(key))
	c.freq = target
	if e.glideSec > 0 && e.lastKey >= 0 {
		frames := max(int(e.glideSec*e.sampleRate), 1)
		c.freq = instrument.Freq(float64(e.lastKey))
		c.portamentoTarget = target
		c.portamentoFrames = frames
		c.portamentoStep = (target - c.freq) / float64(frames)
	}
	e.lastKey = int(key)
}

// assignSlot routes a note by register and program. Pulses alternate.
func assignSlot(key, program, noiseCutoff uint8, counter int) slotKind {
	switch {
	case key >= noiseCutoff || program == drumProg || program >= 96:
		return slotNoise
	case program >= 64:
		return slotTriangle
	case key < 48:
		return slotTriangle
	case counter%2 == 0:
		return slotPulse1
	}
	return slotPulse2
}

func (e *Engine) NoteOff(key uint8) {
	for i := range e.slots {
		if c := &e.slots[i]; c.active && c.key == key {
			c.released = true
		}
	}
}

func (e *Engine) AllNotesOff() {
	for i := range e.slots {
		if e.slots[i].active {
			e.slots[i].released = true
		}
	}
}

// Reset silences every channel and clears filter state.
func (e *Engine) Reset() {
	e.slots = [slotCount]channel{}
	e.slots[slotNoise].lfsr = 0xACE1
	e.frameCounter = 0
	e.counter = 0
	e.lpfL, e.lpfR, e.bpfL, e.bpfR = 0, 0, 0, 0
	e.pitchLFO.Reset()
	e.ampLFO.Reset()
	e.lastKey = -1
}

func (e *Engine) RenderFrame() (float32, float32) {
	pitchMod := e.pitchLFO.Sample(e.sampleRate)
	ampMod := e.ampLFO.Sample(e.sampleRate)
	freqMul := 1.0
	if pitchMod != 0 {
		freqMul = math.Pow(2, pitchMod/12.0)
	}

	e.frameCounter++
	if e.frameCounter >= e.framePeriod {
		e.frameCounter = 0
		e.clockFrame()
	}

	var l, r float64
	mix := func(sig, pan, g float64) {
		angle := (pan + 1) / 2 * (math.Pi / 2.0)
		l += sig * g * math.Cos(angle)
		r += sig * g * math.Sin(angle)
	}
	if c := &e.slots[slotPulse1]; c.active {
		mix(e.renderPulse(c, e.dutyA, freqMul), c.pan, e.pulseGain)
	}
	if c := &e.slots[slotPulse2]; c.active {
		mix(e.renderPulse(c, e.dutyB, freqMul), c.pan, e.pulseGain)
	}
	if c := &e.slots[slotTriangle]; c.active {
		mix(e.renderTriangle(c, freqMul), c.pan, e.triangleGain)
	}
	if c := &e.slots[slotNoise]; c.active {
		mix(renderNoise(c), c.pan, e.noiseGain)
	}

	scale := e.gain * e.volume * (1 + ampMod)
	l *= scale
	r *= scale
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

// clockFrame steps released channels toward silence.
func (e *Engine) clockFrame() {
	for i := range e.slots {
		c := &e.slots[i]
		if !c.active || !c.released {
			continue
		}
		c.vol -= e.releaseStep
		if c.vol <= 0 {
			lfsr := c.lfsr
			*c = channel{lfsr: lfsr}
		}
	}
}

func glide(c *channel) {
	if c.portamentoFrames > 0 {
		c.portamentoFrames--
		c.freq += c.portamentoStep
		if c.portamentoFrames <= 0 {
			c.freq = c.portamentoTarget
		}
	}
}

// polyBLEP reduces aliasing at waveform discontinuities.
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

func (e *Engine) renderPulse(c *channel, duty, freqMul float64) float64 {
	glide(c)
	dt := c.freq * freqMul / e.sampleRate
	c.phase += dt
	if c.phase >= 1 {
		c.phase -= 1
	}
	v := -1.0
	if c.phase < duty {
		v = 1
	}
	v += polyBLEP(c.phase, dt)
	v -= polyBLEP(math.Mod(c.phase-duty+1, 1), dt)
	return v * quantize(c.vol, 16)
}

func (e *Engine) renderTriangle(c *channel, freqMul float64) float64 {
	glide(c)
	c.phase += c.freq * freqMul / e.sampleRate
	if c.phase >= 1 {
		c.phase -= 1
	}
	return (2*math.Abs(2*c.phase-1) - 1) * quantize(c.vol, 16)
}

func renderNoise(c *channel) float64 {
	bit := (c.lfsr ^ (c.lfsr >> 1)) & 1
	c.lfsr = (c.lfsr >> 1) | (bit << 15)
	v := -1.0
	if c.lfsr&1 == 1 {
		v = 1
	}
	return v * quantize(c.vol, 16)
}

// ActiveVoiceCount reports sounding channels.
func (e *Engine) ActiveVoiceCount() int {
	n := 0
	for i := range e.slots {
		if e.slots[i].active {
			n++
		}
	}
	return n
}

func quantize(v float64, steps int) float64 {
	if steps <= 1 {
		return clamp(v, 0, 1)
	}
	return clamp(math.Round(v*float64(steps-1))/float64(steps-1), 0, 1)
}

func seedLFSR(prev uint16, key uint8, n int) uint16 {
	s := prev ^ uint16(key&0x7f)<<1 ^ uint16(n*73)
	if s == 0 {
		return 0xACE1
	}
	return s
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
