package units

import (
	"math"
	"sync/atomic"

	"github.com/cbegin/plink-go/internal/effects"
	"github.com/cbegin/plink-go/internal/param"
	"github.com/viterin/vek/vek32"
)

// Output is the final stage: master gain, five-band master EQ, then a hard
// clip to [-1, 1]. It records the peak of the last block.
type Output struct {
	*param.Set
	eq      *effects.EQ5Band
	chain   *effects.Chain
	scratch []float32
	gain    float32
	peak    atomic.Uint32
	seen    uint64
}

func NewOutput(sampleRate, maxFrames int) *Output {
	eq := effects.NewEQ5Band(sampleRate)
	o := &Output{
		Set: param.NewSet(
			param.Def{Name: "gain", Default: 1, Min: 0, Max: 4},
			param.Def{Name: "b0", Default: 1, Min: 0, Max: 4},
			param.Def{Name: "b1", Default: 1, Min: 0, Max: 4},
			param.Def{Name: "b2", Default: 1, Min: 0, Max: 4},
			param.Def{Name: "b3", Default: 1, Min: 0, Max: 4},
			param.Def{Name: "b4", Default: 1, Min: 0, Max: 4},
		),
		eq:      eq,
		chain:   effects.NewChain(eq),
		scratch: make([]float32, maxFrames*2),
	}
	o.configure()
	return o
}

func (o *Output) configure() {
	o.gain = o.Float32(0)
	for b := 0; b < 5; b++ {
		o.eq.SetGain(b, o.Float32(1+b))
	}
}

func (o *Output) Inputs() int { return 1 }

func (o *Output) Render(out []float32, in [][]float32) {
	if o.Changed(&o.seen) {
		o.configure()
	}
	if in[0] == nil {
		clear(out)
		o.peak.Store(0)
		return
	}
	for i := 0; i+1 < len(out); i += 2 {
		l, r := o.chain.Process(in[0][i]*o.gain, in[0][i+1]*o.gain)
		out[i] = max(-1, min(1, l))
		out[i+1] = max(-1, min(1, r))
	}
	var peak float32
	if len(out) <= len(o.scratch) {
		abs := vek32.Abs_Into(o.scratch[:len(out)], out)
		if len(abs) > 0 {
			peak = vek32.Max(abs)
		}
	}
	o.peak.Store(math.Float32bits(peak))
}

// Peak returns the largest absolute sample of the most recent block.
func (o *Output) Peak() float32 { return math.Float32frombits(o.peak.Load()) }

func (o *Output) Reset() {
	o.chain.Reset()
	o.peak.Store(0)
}
