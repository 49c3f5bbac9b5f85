package effects

import (
	"math"
	"sync/atomic"

	"github.com/cbegin/plink-go/internal/param"
)

// EQ5Band is a five-band EQ split at 200Hz, 800Hz, 2.5kHz and 8kHz. Band
// gains are atomics so they can move while the EQ runs.
type EQ5Band struct {
	gains  [5]atomic.Uint32 // float32 bits; 1.0 = unity
	alphas [4]float32
	lpL    [4]float32
	lpR    [4]float32
}

var crossovers = [4]float64{200, 800, 2500, 8000}

// NewEQ5Band returns a bare five-band EQ at unity.
func NewEQ5Band(sampleRate int) *EQ5Band {
	eq := &EQ5Band{}
	for i, f := range crossovers {
		eq.alphas[i] = onePoleAlpha(f, sampleRate)
	}
	for i := range eq.gains {
		eq.gains[i].Store(math.Float32bits(1))
	}
	return eq
}

// NewEQ5BandInsert wraps NewEQ5Band as an insert with parameters b0..b4.
func NewEQ5BandInsert(sampleRate int) *Insert {
	return newInsert(NewEQ5Band(sampleRate),
		param.Def{Name: "b0", Default: 1, Min: 0, Max: 4},
		param.Def{Name: "b1", Default: 1, Min: 0, Max: 4},
		param.Def{Name: "b2", Default: 1, Min: 0, Max: 4},
		param.Def{Name: "b3", Default: 1, Min: 0, Max: 4},
		param.Def{Name: "b4", Default: 1, Min: 0, Max: 4},
	)
}

func (eq *EQ5Band) configure(p *param.Set) {
	for i := range eq.gains {
		eq.SetGain(i, p.Float32(i))
	}
}

// SetGain sets band (0-4). 1.0 = unity, 2.0 = +6dB.
func (eq *EQ5Band) SetGain(band int, gain float32) {
	if band >= 0 && band < len(eq.gains) {
		eq.gains[band].Store(math.Float32bits(gain))
	}
}

// Gain returns the gain of band (0-4).
func (eq *EQ5Band) Gain(band int) float32 {
	if band >= 0 && band < len(eq.gains) {
		return math.Float32frombits(eq.gains[band].Load())
	}
	return 1
}

func (eq *EQ5Band) Process(l, r float32) (float32, float32) {
	var outL, outR float32
	remL, remR := l, r
	for i := range eq.alphas {
		eq.lpL[i] += eq.alphas[i] * (remL - eq.lpL[i])
		eq.lpR[i] += eq.alphas[i] * (remR - eq.lpR[i])
		g := eq.Gain(i)
		outL += eq.lpL[i] * g
		outR += eq.lpR[i] * g
		remL -= eq.lpL[i]
		remR -= eq.lpR[i]
	}
	g := eq.Gain(4)
	return outL + remL*g, outR + remR*g
}

func (eq *EQ5Band) Reset() {
	clear(eq.lpL[:])
	clear(eq.lpR[:])
}
