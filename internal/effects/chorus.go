package effects

import (
	"github.com/cbegin/plink-go/internal/lfo"
	"github.com/cbegin/plink-go/internal/param"
)

const (
	maxChorusDelayMs = 40
	maxChorusDepthMs = 10
)

// Chorus is a modulated delay; short delays with feedback give a flanger.
type Chorus struct {
	sampleRate float64
	bufL, bufR []float32
	size       int
	pos        int
	mod        lfo.LFO
	feedback   float32
	wet        float32
}

const (
	chorusDelay = iota
	chorusFeedback
	chorusDepth
	chorusRate
	chorusMix
)

// NewChorus returns a chorus insert. Parameters: delay (ms), feedback,
// depth (ms), rate (Hz), mix.
func NewChorus(sampleRate int) *Insert {
	n := msToSamples(maxChorusDelayMs+maxChorusDepthMs, sampleRate) + 2
	c := &Chorus{sampleRate: float64(sampleRate), bufL: make([]float32, n), bufR: make([]float32, n)}
	return newInsert(c,
		param.Def{Name: "delay", Default: 15, Min: 1, Max: maxChorusDelayMs},
		param.Def{Name: "feedback", Default: 0.3, Min: 0, Max: 0.9},
		param.Def{Name: "depth", Default: 3, Min: 0, Max: maxChorusDepthMs},
		param.Def{Name: "rate", Default: 1.5, Min: 0.01, Max: 10},
		param.Def{Name: "mix", Default: 0.4, Min: 0, Max: 1},
	)
}

func (c *Chorus) configure(p *param.Set) {
	sr := int(c.sampleRate)
	depth := p.Get(chorusDepth) * c.sampleRate / 1000
	size := min(msToSamples(p.Get(chorusDelay), sr)+int(depth)+2, len(c.bufL))
	size = max(size, 4)
	if size != c.size {
		c.size = size
		if c.pos >= size {
			c.pos = 0
		}
	}
	c.mod.Set(depth, p.Get(chorusRate), lfo.Sine)
	c.feedback = p.Float32(chorusFeedback)
	c.wet = p.Float32(chorusMix)
}

func (c *Chorus) Process(l, r float32) (float32, float32) {
	mod := float32(c.mod.Sample(c.sampleRate))
	c.bufL[c.pos] = l
	c.bufR[c.pos] = r

	// fractional read behind the write head
	read := float32(c.pos) - (float32(c.size/2) + mod)
	for read < 0 {
		read += float32(c.size)
	}
	idx := int(read) % c.size
	frac := read - float32(int(read))
	idx2 := idx + 1
	if idx2 >= c.size {
		idx2 = 0
	}
	delL := c.bufL[idx]*(1-frac) + c.bufL[idx2]*frac
	delR := c.bufR[idx]*(1-frac) + c.bufR[idx2]*frac

	c.bufL[c.pos] += delL * c.feedback
	c.bufR[c.pos] += delR * c.feedback

	c.pos++
	if c.pos >= c.size {
		c.pos = 0
	}
	return l*(1-c.wet) + delL*c.wet, r*(1-c.wet) + delR*c.wet
}

func (c *Chorus) Reset() {
	clear(c.bufL)
	clear(c.bufR)
	c.pos = 0
	c.mod.Reset()
}
