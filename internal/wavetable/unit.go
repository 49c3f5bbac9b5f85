package wavetable

import (
	"github.com/cbegin/plink-go/internal/instrument"
	"github.com/cbegin/plink-go/internal/param"
)

const (
	pTable = iota
	pAttack
	pDecay
	pSustain
	pRelease
	pGain
	pVelocity
	pPhase
	pCutoff
	pFilter
	pVibratoDepth
	pVibratoRate
	pTremoloDepth
	pTremoloRate
	pSweepDepth
	pSweepRate
	pGlide
)

// Params lists the instrument parameters. phase sets the note-on start
// point: 0 restarts the cycle, -1 picks a random point, 1..255 a fixed one.
func Params() []param.Def {
	return []param.Def{
		{Name: "table", Default: 0, Min: 0, Max: Slots - 1},
		{Name: "attack", Default: 0.005, Min: 0.001, Max: 8},
		{Name: "decay", Default: 0.12, Min: 0.001, Max: 8},
		{Name: "sustain", Default: 0.75, Min: 0, Max: 1},
		{Name: "release", Default: 0.2, Min: 0.001, Max: 8},
		{Name: "gain", Default: 0.42, Min: 0, Max: 2},
		{Name: "velocity", Default: 0.8, Min: 0, Max: 1},
		{Name: "phase", Default: 0, Min: -1, Max: 255},
		{Name: "cutoff", Default: 12000, Min: 0, Max: 20000},
		{Name: "filter", Default: 0, Min: 0, Max: 2},
		{Name: "vibratoDepth", Default: 0, Min: 0, Max: 2},
		{Name: "vibratoRate", Default: 6, Min: 0, Max: 20},
		{Name: "tremoloDepth", Default: 0, Min: 0, Max: 1},
		{Name: "tremoloRate", Default: 4, Min: 0, Max: 20},
		{Name: "sweepDepth", Default: 0, Min: 0, Max: 100},
		{Name: "sweepRate", Default: 0.5, Min: 0, Max: 20},
		{Name: "glide", Default: 0, Min: 0, Max: 2000},
	}
}

// New returns a wavetable instrument unit.
func New(sampleRate int) *instrument.Unit {
	return instrument.NewUnit(NewEngine(sampleRate, DefaultVoices), instrument.DefaultQueueSize, Params()...)
}
