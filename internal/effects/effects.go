// Package effects provides the insert effects a channel can chain after its
// instrument. Each effect is a graph unit with named, clamped parameters that
// may be changed while the effect renders.
package effects

import (
	"math"

	"github.com/cbegin/plink-go/internal/param"
)

// Effector processes one stereo frame.
type Effector interface {
	Process(l, r float32) (float32, float32)
	Reset()
}

// Chain applies a sequence of effects in order.
type Chain struct {
	effects []Effector
}

func NewChain(effects ...Effector) *Chain {
	return &Chain{effects: effects}
}

func (c *Chain) Process(l, r float32) (float32, float32) {
	for _, e := range c.effects {
		l, r = e.Process(l, r)
	}
	return l, r
}

func (c *Chain) Reset() {
	for _, e := range c.effects {
		e.Reset()
	}
}

func (c *Chain) Add(e Effector) {
	c.effects = append(c.effects, e)
}

// kernel is a per-frame processor whose coefficients derive from its
// parameters.
type kernel interface {
	Effector
	configure(p *param.Set)
}

// Insert wraps a kernel as a one-input graph unit.
type Insert struct {
	*param.Set
	kernel kernel
	seen   uint64
}

func newInsert(k kernel, defs ...param.Def) *Insert {
	u := &Insert{Set: param.NewSet(defs...), kernel: k}
	k.configure(u.Set)
	return u
}

func (u *Insert) Inputs() int { return 1 }

// Render processes input bus 0. An unconnected input is treated as silence
// so tails keep decaying.
func (u *Insert) Render(out []float32, in [][]float32) {
	if u.Changed(&u.seen) {
		u.kernel.configure(u.Set)
	}
	src := in[0]
	for i := 0; i+1 < len(out); i += 2 {
		var l, r float32
		if src != nil {
			l, r = src[i], src[i+1]
		}
		out[i], out[i+1] = u.kernel.Process(l, r)
	}
}

func (u *Insert) Reset() { u.kernel.Reset() }

// Kernel exposes the wrapped processor.
func (u *Insert) Kernel() Effector { return u.kernel }

func msToSamples(ms float64, sampleRate int) int {
	return max(1, int(ms*float64(sampleRate)/1000))
}

func onePoleAlpha(cutoff float64, sampleRate int) float32 {
	if cutoff <= 0 || cutoff >= float64(sampleRate)/2 {
		return 0
	}
	rc := 1 / (2 * math.Pi * cutoff)
	dt := 1 / float64(sampleRate)
	return float32(dt / (rc + dt))
}
