package effects

import "github.com/cbegin/plink-go/internal/param"

// EQ3Band splits the signal at two one-pole crossovers and weights the
// low, mid and high bands.
type EQ3Band struct {
	sampleRate int
	low        float32
	mid        float32
	high       float32
	lpAlpha    float32
	hpAlpha    float32
	lpL, lpR   float32
	hpL, hpR   float32
}

const (
	eqLow = iota
	eqMid
	eqHigh
	eqLowFreq
	eqHighFreq
)

// NewEQ3Band returns a three-band EQ insert. Parameters: low, mid, high
// (linear gain), lowFreq and highFreq (crossovers in Hz).
func NewEQ3Band(sampleRate int) *Insert {
	return newInsert(&EQ3Band{sampleRate: sampleRate},
		param.Def{Name: "low", Default: 1, Min: 0, Max: 4},
		param.Def{Name: "mid", Default: 1, Min: 0, Max: 4},
		param.Def{Name: "high", Default: 1, Min: 0, Max: 4},
		param.Def{Name: "lowFreq", Default: 300, Min: 20, Max: 2000},
		param.Def{Name: "highFreq", Default: 3000, Min: 500, Max: 16000},
	)
}

func (eq *EQ3Band) configure(p *param.Set) {
	eq.low = p.Float32(eqLow)
	eq.mid = p.Float32(eqMid)
	eq.high = p.Float32(eqHigh)
	eq.lpAlpha = onePoleAlpha(p.Get(eqLowFreq), eq.sampleRate)
	eq.hpAlpha = onePoleAlpha(p.Get(eqHighFreq), eq.sampleRate)
}

func (eq *EQ3Band) Process(l, r float32) (float32, float32) {
	eq.lpL += eq.lpAlpha * (l - eq.lpL)
	eq.lpR += eq.lpAlpha * (r - eq.lpR)
	lowL, lowR := eq.lpL, eq.lpR

	eq.hpL += eq.hpAlpha * (l - eq.hpL)
	eq.hpR += eq.hpAlpha * (r - eq.hpR)
	highL, highR := l-eq.hpL, r-eq.hpR

	midL := l - lowL - highL
	midR := r - lowR - highR
	return lowL*eq.low + midL*eq.mid + highL*eq.high,
		lowR*eq.low + midR*eq.mid + highR*eq.high
}

func (eq *EQ3Band) Reset() {
	eq.lpL, eq.lpR = 0, 0
	eq.hpL, eq.hpR = 0, 0
}
