package fm

import (
	"github.com/cbegin/plink-go/internal/instrument"
	"github.com/cbegin/plink-go/internal/param"
)

const DefaultPolyphony = 16

const (
	pAlgorithm = iota
	pOperators
	pFeedback
	pModIndex
	pCarrierMul
	pModMul
	pAttack
	pDecay
	pSustain
	pRelease
	pGain
	pVelocity
	pWaveform
	pCutoff
	pFilter
	pVibratoDepth
	pVibratoRate
	pTremoloDepth
	pTremoloRate
	pGlide
)

// Params lists the instrument parameters. Times are in seconds except
// glide (ms); filter is 0 lowpass, 1 bandpass, 2 highpass; waveform 0-7 is
// sine, saw, triangle, square, pulse25, pulse12, half-sine, noise.
func Params() []param.Def {
	return []param.Def{
		{Name: "algorithm", Default: 0, Min: 0, Max: 7},
		{Name: "operators", Default: 2, Min: 1, Max: 4},
		{Name: "feedback", Default: 0, Min: 0, Max: 1},
		{Name: "modIndex", Default: 1.6, Min: 0, Max: 8},
		{Name: "carrierMul", Default: 1, Min: 0.5, Max: 16},
		{Name: "modMul", Default: 2, Min: 0.5, Max: 16},
		{Name: "attack", Default: 0.005, Min: 0.001, Max: 8},
		{Name: "decay", Default: 0.12, Min: 0.001, Max: 8},
		{Name: "sustain", Default: 0.75, Min: 0, Max: 1},
		{Name: "release", Default: 0.2, Min: 0.001, Max: 8},
		{Name: "gain", Default: 0.45, Min: 0, Max: 2},
		{Name: "velocity", Default: 0.8, Min: 0, Max: 1},
		{Name: "waveform", Default: 0, Min: 0, Max: 7},
		{Name: "cutoff", Default: 12000, Min: 0, Max: 20000},
		{Name: "filter", Default: 0, Min: 0, Max: 2},
		{Name: "vibratoDepth", Default: 0, Min: 0, Max: 2},
		{Name: "vibratoRate", Default: 5, Min: 0, Max: 20},
		{Name: "tremoloDepth", Default: 0, Min: 0, Max: 1},
		{Name: "tremoloRate", Default: 4, Min: 0, Max: 20},
		{Name: "glide", Default: 0, Min: 0, Max: 2000},
	}
}

// New returns an FM instrument unit.
func New(sampleRate int) *instrument.Unit {
	return instrument.NewUnit(NewEngine(sampleRate, DefaultPolyphony), instrument.DefaultQueueSize, Params()...)
}
