package chiptune

import (
	"github.com/cbegin/plink-go/internal/instrument"
	"github.com/cbegin/plink-go/internal/param"
)

const DefaultVoices = 12

const (
	pWave = iota
	pDutyA
	pDutyB
	pAttack
	pDecay
	pSustain
	pRelease
	pGain
	pVelocity
	pSteps
	pCutoff
	pFilter
	pVibratoDepth
	pVibratoRate
	pGlide
)

// Params lists the instrument parameters. wave is 0 pulse A, 1 pulse B,
// 2 triangle, 3 noise; steps quantizes the volume envelope.
func Params() []param.Def {
	return []param.Def{
		{Name: "wave", Default: 0, Min: 0, Max: 3},
		{Name: "dutyA", Default: 0.125, Min: 0.01, Max: 0.99},
		{Name: "dutyB", Default: 0.25, Min: 0.01, Max: 0.99},
		{Name: "attack", Default: 0.005, Min: 0.001, Max: 8},
		{Name: "decay", Default: 0.15, Min: 0.001, Max: 8},
		{Name: "sustain", Default: 0.65, Min: 0, Max: 1},
		{Name: "release", Default: 0.2, Min: 0.001, Max: 8},
		{Name: "gain", Default: 0.28, Min: 0, Max: 2},
		{Name: "velocity", Default: 0.85, Min: 0, Max: 1},
		{Name: "steps", Default: 16, Min: 1, Max: 256},
		{Name: "cutoff", Default: 12000, Min: 0, Max: 20000},
		{Name: "filter", Default: 0, Min: 0, Max: 2},
		{Name: "vibratoDepth", Default: 0, Min: 0, Max: 2},
		{Name: "vibratoRate", Default: 6, Min: 0, Max: 20},
		{Name: "glide", Default: 0, Min: 0, Max: 2000},
	}
}

// New returns a chiptune instrument unit.
func New(sampleRate int) *instrument.Unit {
	return instrument.NewUnit(NewEngine(sampleRate, DefaultVoices), instrument.DefaultQueueSize, Params()...)
}
