package nesapu

import (
	"github.com/cbegin/plink-go/internal/instrument"
	"github.com/cbegin/plink-go/internal/param"
)

const (
	pGain = iota
	pDutyA
	pDutyB
	pRelease
	pNoiseCutoff
	pPulseGain
	pTriangleGain
	pNoiseGain
	pCutoff
	pFilter
	pVibratoDepth
	pVibratoRate
	pTremoloDepth
	pTremoloRate
	pGlide
)

// Params lists the instrument parameters. release is the fade time in
// seconds from full volume; keys at or above noiseCutoff play on the noise
// channel.
func Params() []param.Def {
	return []param.Def{
		{Name: "gain", Default: 0.32, Min: 0, Max: 2},
		{Name: "dutyA", Default: 0.125, Min: 0.01, Max: 0.99},
		{Name: "dutyB", Default: 0.25, Min: 0.01, Max: 0.99},
		{Name: "release", Default: 0.2, Min: 0.001, Max: 8},
		{Name: "noiseCutoff", Default: 84, Min: 0, Max: 128},
		{Name: "pulseGain", Default: 1, Min: 0, Max: 2},
		{Name: "triangleGain", Default: 0.85, Min: 0, Max: 2},
		{Name: "noiseGain", Default: 0.45, Min: 0, Max: 2},
		{Name: "cutoff", Default: 12000, Min: 0, Max: 20000},
		{Name: "filter", Default: 0, Min: 0, Max: 2},
		{Name: "vibratoDepth", Default: 0, Min: 0, Max: 2},
		{Name: "vibratoRate", Default: 6, Min: 0, Max: 20},
		{Name: "tremoloDepth", Default: 0, Min: 0, Max: 1},
		{Name: "tremoloRate", Default: 4, Min: 0, Max: 20},
		{Name: "glide", Default: 0, Min: 0, Max: 2000},
	}
}

// New returns a sound chip instrument unit.
func New(sampleRate int) *instrument.Unit {
	return instrument.NewUnit(NewEngine(sampleRate), instrument.DefaultQueueSize, Params()...)
}
