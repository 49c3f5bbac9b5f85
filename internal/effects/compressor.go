package effects

import (
	"math"

	"github.com/cbegin/plink-go/internal/param"
)

// Compressor is a per-channel peak compressor with makeup gain.
type Compressor struct {
	sampleRate float64
	threshold  float32
	ratio      float32
	attack     float32 // envelope coefficient
	release    float32 // envelope coefficient
	makeup     float32
	envL, envR float32
}

const (
	compThreshold = iota
	compRatio
	compAttack
	compRelease
	compMakeup
)

// NewCompressor returns a compressor insert. Parameters: threshold (dB),
// ratio, attack (ms), release (ms), makeup (dB).
func NewCompressor(sampleRate int) *Insert {
	return newInsert(&Compressor{sampleRate: float64(sampleRate)},
		param.Def{Name: "threshold", Default: -20, Min: -60, Max: 0},
		param.Def{Name: "ratio", Default: 4, Min: 1, Max: 20},
		param.Def{Name: "attack", Default: 5, Min: 0.1, Max: 200},
		param.Def{Name: "release", Default: 100, Min: 1, Max: 2000},
		param.Def{Name: "makeup", Default: 6, Min: 0, Max: 24},
	)
}

func dbToGain(db float64) float32 { return float32(math.Pow(10, db/20)) }

func (c *Compressor) envCoef(ms float64) float32 {
	return float32(1 - math.Exp(-1/(ms*c.sampleRate/1000)))
}

func (c *Compressor) configure(p *param.Set) {
	c.threshold = dbToGain(p.Get(compThreshold))
	c.ratio = p.Float32(compRatio)
	c.attack = c.envCoef(p.Get(compAttack))
	c.release = c.envCoef(p.Get(compRelease))
	c.makeup = dbToGain(p.Get(compMakeup))
}

func (c *Compressor) follow(env *float32, x float32) {
	if x < 0 {
		x = -x
	}
	if x > *env {
		*env += c.attack * (x - *env)
	} else {
		*env += c.release * (x - *env)
	}
}

func (c *Compressor) Process(l, r float32) (float32, float32) {
	c.follow(&c.envL, l)
	c.follow(&c.envR, r)
	return l * c.gain(c.envL) * c.makeup, r * c.gain(c.envR) * c.makeup
}

// gain reduces the excess over threshold by ratio.
func (c *Compressor) gain(env float32) float32 {
	if env <= c.threshold || c.threshold <= 0 {
		return 1
	}
	over := env / c.threshold
	return float32(math.Pow(float64(over), float64(1/c.ratio-1)))
}

func (c *Compressor) Reset() {
	c.envL, c.envR = 0, 0
}
