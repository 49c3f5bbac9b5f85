// Package fm is a 1-4 operator FM synthesizer with eight algorithms, OPM
// patch import and per-engine LFOs, played through MIDI note events.
package fm

import (
	"maps"
	"math"
	"sync/atomic"

	"github.com/cbegin/plink-go/internal/instrument"
	"github.com/cbegin/plink-go/internal/lfo"
	"github.com/cbegin/plink-go/internal/param"
)

const twoPi = math.Pi * 2

type filterType int

const (
	filterLP filterType = iota
	filterBP
	filterHP
)

// opmPatch holds OPM-format operator parameters for one program.
type opmPatch struct {
	alg int
	fb  float64
	op  [4]opmOperator
}

type opmOperator struct {
	ar, dr, sr, rr float64 // envelope rates (converted to sec)
	sl             float64 // sustain level 0-1
	tl             float64 // total level 0-1
	mul            float64
}

type patchBank map[uint8]*opmPatch

type envState int

const (
	envAttack envState = iota
	envDecay
	envSustain
	envRelease
	envOff
)

type operator struct {
	phase    float64
	env      float64
	envState envState
	mul      float64
	tl       float64 // total level (1.0 = full output, 0 = silent)
	ar       float64
	dr       float64
	sl       float64
	rr       float64
	prevOut  float64
}

type voice struct {
	active           bool
	key              uint8
	age              int
	velocity         float64
	freq             float64
	ops              [4]operator
	numOps           int
	alg              int
	fb               float64
	pan              float64
	portamentoTarget float64
	portamentoFrames int
	portamentoStep   float64
}

// Engine renders FM voices. Everything except LoadOPMPatch belongs to the
// render goroutine.
type Engine struct {
	sampleRate float64
	voices     []voice
	patches    atomic.Pointer[patchBank]

	algorithm  int
	opCount    int
	feedback   float64
	modIndex   float64
	carrierMul float64
	modMul     float64
	attack     float64
	decay      float64
	sustain    float64
	release    float64
	gain       float64
	velAmp     float64
	waveform   int
	glideSec   float64

	vibratoDepth float64
	vibratoRate  float64
	modWheel     float64
	volume       float64
	pan          float64
	program      uint8
	lastKey      int

	lpfL, lpfR float64
	bpfL, bpfR float64
	lpfAlpha   float64
	filterKind filterType
	pitchLFO   lfo.LFO
	ampLFO     lfo.LFO
	noiseLFSR  uint32
}

// NewEngine returns an engine with the given polyphony at default settings.
func NewEngine(sampleRate, polyphony int) *Engine {
	if polyphony <= 0 {
		polyphony = DefaultPolyphony
	}
	e := &Engine{
		sampleRate: float64(sampleRate),
		voices:     make([]voice, polyphony),
		volume:     1,
		lastKey:    -1,
		noiseLFSR:  0x7FFF,
	}
	e.patches.Store(&patchBank{})
	e.Configure(param.NewSet(Params()...))
	return e
}

// Configure reads the engine settings from p, laid out as Params.
func (e *Engine) Configure(p *param.Set) {
	e.algorithm = p.Int(pAlgorithm)
	e.opCount = p.Int(pOperators)
	e.feedback = p.Get(pFeedback)
	e.modIndex = p.Get(pModIndex)
	e.carrierMul = p.Get(pCarrierMul)
	e.modMul = p.Get(pModMul)
	e.attack = p.Get(pAttack)
	e.decay = p.Get(pDecay)
	e.sustain = p.Get(pSustain)
	e.release = p.Get(pRelease)
	e.gain = p.Get(pGain)
	e.velAmp = p.Get(pVelocity)
	e.waveform = p.Int(pWaveform)
	e.filterKind = filterType(p.Int(pFilter))
	e.setCutoff(p.Get(pCutoff))
	e.vibratoDepth = p.Get(pVibratoDepth)
	e.vibratoRate = p.Get(pVibratoRate)
	e.ampLFO.Set(p.Get(pTremoloDepth), p.Get(pTremoloRate), lfo.Sine)
	e.glideSec = p.Get(pGlide) / 1000
	e.updateVibrato()
}

func (e *Engine) setCutoff(hz float64) {
	e.lpfAlpha = 0
	if hz > 0 && hz < e.sampleRate/2 {
		rc := 1.0 / (twoPi * hz)
		dt := 1.0 / e.sampleRate
		e.lpfAlpha = dt / (rc + dt)
	}
}

// updateVibrato lets the mod wheel add up to a semitone of vibrato.
func (e *Engine) updateVibrato() {
	e.pitchLFO.Set(e.vibratoDepth+e.modWheel, e.vibratoRate, lfo.Sine)
}

// LoadOPMPatch stores OPM-format patch data for a program number. The data
// is alg, fb, then 4 operators with AR,D1R,D2R,RR,D1L,TL,KS,MUL,DT1,DT2,AMS
// each. It may be called while the engine renders.
func (e *Engine) LoadOPMPatch(program uint8, data []int) bool {
	if len(data) < 2+4*11 {
		return false
	}
	p := &opmPatch{
		alg: clampInt(data[0], 0, 7),
		fb:  float64(clampInt(data[1], 0, 7)) / 7.0,
	}
	for oi := 0; oi < 4; oi++ {
		base := 2 + oi*11
		ar, d1r, d2r, rr, d1l, tl, mul := data[base], data[base+1], data[base+2], data[base+3], data[base+4], data[base+5], data[base+7]
		op := &p.op[oi]
		op.ar = clamp(0.001+float64(31-clampInt(ar, 0, 31))/31.0*0.3, 0.001, 8)
		op.dr = clamp(0.01+float64(31-clampInt(d1r, 0, 31))/31.0*0.2, 0.01, 4)
		op.sr = clamp(0.01+float64(31-clampInt(d2r, 0, 31))/31.0*0.2, 0.01, 4)
		op.rr = clamp(0.01+float64(15-clampInt(rr, 0, 15))/15.0*0.3, 0.01, 4)
		op.sl = clamp(float64(clampInt(d1l, 0, 15))/15.0, 0, 1)
		op.tl = clamp((127-float64(clampInt(tl, 0, 127)))/127.0, 0, 1)
		if mul == 0 {
			op.mul = 0.5
		} else {
			op.mul = float64(clampInt(mul, 0, 15))
		}
	}
	for {
		old := e.patches.Load()
		bank := maps.Clone(*old)
		bank[program] = p
		if e.patches.CompareAndSwap(old, &bank) {
			return true
		}
	}
}

func (e *Engine) ProgramChange(program uint8) { e.program = program }

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
	slot := e.voiceFor(key)
	v := &e.voices[slot]
	targetFreq := instrument.Freq(float64(key))
	freq := targetFreq
	var portTgt, portStep float64
	var portFrames int
	if e.glideSec > 0 && e.lastKey >= 0 {
		portFrames = int(e.glideSec * e.sampleRate)
		freq = instrument.Freq(float64(e.lastKey))
		portTgt = targetFreq
		portStep = (targetFreq - freq) / float64(max(portFrames, 1))
	}
	e.lastKey = int(key)

	numOps := clampInt(e.opCount, 1, 4)
	alg := e.algorithm
	fb := e.feedback
	pat := (*e.patches.Load())[e.program]
	if pat != nil {
		alg = pat.alg
		fb = pat.fb
		numOps = 4
	}
	*v = voice{
		active:           true,
		key:              key,
		velocity:         clamp(float64(velocity)/127.0, 0, 1),
		freq:             freq,
		numOps:           numOps,
		alg:              alg,
		fb:               fb,
		pan:              e.pan,
		portamentoTarget: portTgt,
		portamentoFrames: portFrames,
		portamentoStep:   portStep,
	}
	muls := [4]float64{e.carrierMul, e.modMul, 3.0, 4.0}
	for oi := 0; oi < numOps; oi++ {
		if pat != nil {
			op := &pat.op[oi]
			v.ops[oi] = operator{envState: envAttack, mul: op.mul, tl: op.tl, ar: op.ar, dr: op.dr, sl: op.sl, rr: op.rr}
			continue
		}
		tl := 1.0
		if oi > 0 {
			tl = e.modIndex / 8.0
		}
		v.ops[oi] = operator{envState: envAttack, mul: muls[oi], tl: tl, ar: e.attack, dr: e.decay, sl: e.sustain, rr: e.release}
	}
}

func (e *Engine) NoteOff(key uint8) {
	for i := range e.voices {
		v := &e.voices[i]
		if v.active && v.key == key {
			v.releaseOps()
		}
	}
}

func (e *Engine) AllNotesOff() {
	for i := range e.voices {
		if e.voices[i].active {
			e.voices[i].releaseOps()
		}
	}
}

func (v *voice) releaseOps() {
	for oi := 0; oi < v.numOps; oi++ {
		if v.ops[oi].envState != envOff {
			v.ops[oi].envState = envRelease
		}
	}
}

// Reset silences every voice and clears filter and LFO state.
func (e *Engine) Reset() {
	clear(e.voices)
	e.lpfL, e.lpfR, e.bpfL, e.bpfR = 0, 0, 0, 0
	e.pitchLFO.Reset()
	e.ampLFO.Reset()
	e.lastKey = -1
}

func (e *Engine) RenderFrame() (float32, float32) {
	pitchMod := e.pitchLFO.Sample(e.sampleRate) // in semitones
	ampMod := e.ampLFO.Sample(e.sampleRate)

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
		allOff := true
		for oi := 0; oi < v.numOps; oi++ {
			advanceOpEnv(&v.ops[oi], e.sampleRate)
			if v.ops[oi].envState != envOff {
				allOff = false
			}
		}
		if allOff {
			v.active = false
			continue
		}
		sig := e.renderVoice(v)
		sig *= gain * (0.2 + v.velocity*e.velAmp)
		sig *= 1.0 + ampMod
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
		for oi := 0; oi < v.numOps; oi++ {
			op := &v.ops[oi]
			op.phase += twoPi * (v.freq * freqMul * op.mul) / e.sampleRate
			if op.phase > twoPi {
				op.phase -= twoPi
			}
		}
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

// renderVoice computes the output of a voice for its algorithm, which fixes
// how operators modulate each other.
func (e *Engine) renderVoice(v *voice) float64 {
	ops := &v.ops
	var out [4]float64
	for oi := 0; oi < v.numOps; oi++ {
		out[oi] = ops[oi].env * ops[oi].tl
	}
	wave := func(phase float64) float64 { return e.waveformSample(phase) }
	mi := e.modIndex
	switch v.numOps {
	case 1:
		fb := ops[0].prevOut * v.fb * math.Pi
		s := wave(ops[0].phase+fb) * out[0]
		ops[0].prevOut = s
		return s
	case 2:
		switch v.alg {
		case 1: // op0 + op1
			return (wave(ops[0].phase)*out[0] + wave(ops[1].phase)*out[1]) * (1.0 / math.Sqrt2)
		default: // op1 -> op0
			fb := ops[1].prevOut * v.fb * math.Pi
			m := math.Sin(ops[1].phase+fb) * out[1]
			ops[1].prevOut = m
			return wave(ops[0].phase+m*mi) * out[0]
		}
	case 3:
		switch v.alg {
		case 1: // op2 -> op1 -> op0 with feedback on op2
			fb := ops[2].prevOut * v.fb * math.Pi
			m2 := math.Sin(ops[2].phase+fb) * out[2]
			ops[2].prevOut = m2
			s1 := math.Sin(ops[1].phase+m2*mi) * out[1] * mi
			return wave(ops[0].phase+s1) * out[0]
		case 2: // (op1 + op2) -> op0
			s1 := math.Sin(ops[1].phase) * out[1] * mi
			s2 := math.Sin(ops[2].phase) * out[2] * mi
			return wave(ops[0].phase+s1+s2) * out[0]
		case 3: // all parallel
			s := wave(ops[0].phase)*out[0] + wave(ops[1].phase)*out[1] + wave(ops[2].phase)*out[2]
			return s * (1.0 / math.Sqrt(3))
		default: // op2 -> op1 -> op0
			s2 := math.Sin(ops[2].phase) * out[2] * mi
			s1 := math.Sin(ops[1].phase+s2) * out[1] * mi
			return wave(ops[0].phase+s1) * out[0]
		}
	default:
		switch v.alg {
		case 1: // op3 -> op2 -> op1 -> op0
			s3 := math.Sin(ops[3].phase) * out[3] * mi
			s2 := math.Sin(ops[2].phase+s3) * out[2] * mi
			s1 := math.Sin(ops[1].phase+s2) * out[1] * mi
			return wave(ops[0].phase+s1) * out[0]
		case 2: // (op2 + op3) -> op1 -> op0
			s2 := math.Sin(ops[2].phase) * out[2] * mi
			s3 := math.Sin(ops[3].phase) * out[3] * mi
			s1 := math.Sin(ops[1].phase+s2+s3) * out[1] * mi
			return wave(ops[0].phase+s1) * out[0]
		case 3: // op2 -> op1, op3 -> op0
			s2 := math.Sin(ops[2].phase) * out[2] * mi
			s3 := math.Sin(ops[3].phase) * out[3] * mi
			c0 := wave(ops[0].phase+s3) * out[0]
			c1 := wave(ops[1].phase+s2) * out[1]
			return (c0 + c1) * (1.0 / math.Sqrt2)
		case 4: // op3 -> op2 -> op1, plus op0
			s3 := math.Sin(ops[3].phase) * out[3] * mi
			s2 := math.Sin(ops[2].phase+s3) * out[2] * mi
			s1 := math.Sin(ops[1].phase+s2) * out[1]
			s0 := wave(ops[0].phase) * out[0]
			return (s0 + s1) * (1.0 / math.Sqrt2)
		case 5: // all parallel
			s := 0.0
			for oi := 0; oi < 4; oi++ {
				s += wave(ops[oi].phase) * out[oi]
			}
			return s * 0.5
		default: // cascade with feedback on op3
			fb := ops[3].prevOut * v.fb * math.Pi
			m3 := math.Sin(ops[3].phase+fb) * out[3]
			ops[3].prevOut = m3
			s2 := math.Sin(ops[2].phase+m3*mi) * out[2] * mi
			s1 := math.Sin(ops[1].phase+s2) * out[1] * mi
			return wave(ops[0].phase+s1) * out[0]
		}
	}
}

// voiceFor retriggers the voice already holding key, else takes a free
// voice, else steals the quietest.
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
	quiet := 0
	minEnv := e.voices[0].ops[0].env
	for i := 1; i < len(e.voices); i++ {
		if e.voices[i].ops[0].env < minEnv {
			minEnv = e.voices[i].ops[0].env
			quiet = i
		}
	}
	return quiet
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

func advanceOpEnv(op *operator, sampleRate float64) {
	switch op.envState {
	case envAttack:
		step := 1.0 / (op.ar * sampleRate)
		if step <= 0 || math.IsInf(step, 0) {
			step = 1
		}
		op.env += step
		if op.env >= 1 {
			op.env = 1
			op.envState = envDecay
		}
	case envDecay:
		step := (1 - op.sl) / (op.dr * sampleRate)
		if step <= 0 || math.IsInf(step, 0) {
			step = 1
		}
		op.env -= step
		if op.env <= op.sl {
			op.env = op.sl
			op.envState = envSustain
		}
	case envSustain:
	case envRelease:
		step := max(op.sl, 0.05) / (op.rr * sampleRate)
		if step <= 0 || math.IsInf(step, 0) {
			step = 1
		}
		op.env -= step
		if op.env <= 0.0001 {
			op.env = 0
			op.envState = envOff
		}
	case envOff:
		op.env = 0
	}
}

func (e *Engine) waveformSample(phase float64) float64 {
	switch e.waveform {
	case 1: // saw
		return 1.0 - 2.0*math.Mod(phase, twoPi)/twoPi
	case 2: // triangle
		return 2.0*math.Abs(2.0*math.Mod(phase, twoPi)/twoPi-1.0) - 1.0
	case 3: // square
		if math.Mod(phase, twoPi) < math.Pi {
			return 1.0
		}
		return -1.0
	case 4: // pulse 25%
		if math.Mod(phase, twoPi) < math.Pi/2 {
			return 1.0
		}
		return -1.0
	case 5: // pulse 12.5%
		if math.Mod(phase, twoPi) < math.Pi/4 {
			return 1.0
		}
		return -1.0
	case 6: // half-rectified sine
		return max(math.Sin(phase), 0)
	case 7: // noise
		e.noiseLFSR = (e.noiseLFSR >> 1) ^ (-(e.noiseLFSR & 1) & 0xB400)
		return float64(e.noiseLFSR)/float64(0x7FFF)*2.0 - 1.0
	default:
		return math.Sin(phase)
	}
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

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
