package effects

import "github.com/cbegin/plink-go/internal/param"

const maxDelayMs = 2000

// Delay is a stereo delay with feedback and cross-channel feedback.
type Delay struct {
	sampleRate int
	bufL, bufR []float32
	size       int
	pos        int
	feedback   float32
	cross      float32
	wet        float32
}

const (
	delayTime = iota
	delayFeedback
	delayCross
	delayMix
)

// NewDelay returns a delay insert. Parameters: time (ms), feedback, cross, mix.
func NewDelay(sampleRate int) *Insert {
	n := msToSamples(maxDelayMs, sampleRate)
	d := &Delay{sampleRate: sampleRate, bufL: make([]float32, n), bufR: make([]float32, n)}
	return newInsert(d,
		param.Def{Name: "time", Default: 250, Min: 1, Max: maxDelayMs},
		param.Def{Name: "feedback", Default: 0.4, Min: 0, Max: 0.95},
		param.Def{Name: "cross", Default: 0.2, Min: 0, Max: 1},
		param.Def{Name: "mix", Default: 0.3, Min: 0, Max: 1},
	)
}

func (d *Delay) configure(p *param.Set) {
	size := min(msToSamples(p.Get(delayTime), d.sampleRate), len(d.bufL))
	if size != d.size {
		d.size = size
		if d.pos >= size {
			d.pos = 0
		}
	}
	d.feedback = p.Float32(delayFeedback)
	d.cross = p.Float32(delayCross)
	d.wet = p.Float32(delayMix)
}

func (d *Delay) Process(l, r float32) (float32, float32) {
	delL := d.bufL[d.pos]
	delR := d.bufR[d.pos]
	fbL := delL*d.feedback*(1-d.cross) + delR*d.feedback*d.cross
	fbR := delR*d.feedback*(1-d.cross) + delL*d.feedback*d.cross
	d.bufL[d.pos] = l + fbL
	d.bufR[d.pos] = r + fbR
	d.pos++
	if d.pos >= d.size {
		d.pos = 0
	}
	return l*(1-d.wet) + delL*d.wet, r*(1-d.wet) + delR*d.wet
}

func (d *Delay) Reset() {
	clear(d.bufL)
	clear(d.bufR)
	d.pos = 0
}
