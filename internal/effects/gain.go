package effects

import (
	"math"

	"github.com/cbegin/plink-go/internal/param"
)

// Gain is a utility insert: linear gain with constant-power pan.
type Gain struct {
	l, r float32
}

const (
	gainGain = iota
	gainPan
)

// NewGain returns a gain insert. Parameters: gain, pan (-1..1).
func NewGain(int) *Insert {
	return newInsert(&Gain{},
		param.Def{Name: "gain", Default: 1, Min: 0, Max: 4},
		param.Def{Name: "pan", Default: 0, Min: -1, Max: 1},
	)
}

func (g *Gain) configure(p *param.Set) {
	g.l, g.r = PanGains(p.Get(gainGain), p.Get(gainPan))
}

// PanGains returns constant-power left and right gains. Centre pan gives
// each side gain*cos(pi/4).
func PanGains(gain, pan float64) (float32, float32) {
	theta := (pan + 1) * math.Pi / 4
	return float32(gain * math.Cos(theta)), float32(gain * math.Sin(theta))
}

func (g *Gain) Process(l, r float32) (float32, float32) { return l * g.l, r * g.r }

func (g *Gain) Reset() {}
