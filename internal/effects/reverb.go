package effects

import "github.com/cbegin/plink-go/internal/param"

// Reverb is a Schroeder reverb: four parallel combs into two allpasses.
type Reverb struct {
	sampleRate int
	combs      [4]delayLine
	allpass    [2]delayLine
	wet        float32
}

// delayLine is a circular buffer whose active length can shrink without
// reallocating.
type delayLine struct {
	buf []float32
	n   int
	pos int
	fb  float32
}

func (d *delayLine) comb(in float32) float32 {
	out := d.buf[d.pos]
	d.buf[d.pos] = in + out*d.fb
	d.step()
	return out
}

func (d *delayLine) allpassStep(in float32) float32 {
	held := d.buf[d.pos]
	d.buf[d.pos] = in + held*d.fb
	d.step()
	return held - in
}

func (d *delayLine) step() {
	d.pos++
	if d.pos >= d.n {
		d.pos = 0
	}
}

func (d *delayLine) resize(n int) {
	n = max(1, min(n, len(d.buf)))
	if n != d.n {
		d.n = n
		if d.pos >= n {
			d.pos = 0
		}
	}
}

// comb and allpass lengths relative to the room base length
var (
	combRatios    = [4]int{1000, 1117, 1271, 1437}
	allpassRatios = [2]int{347, 213}
)

const (
	reverbRoom = iota
	reverbFeedback
	reverbMix
)

// NewReverb returns a reverb insert. Parameters: room (0.05..1), feedback, mix.
func NewReverb(sampleRate int) *Insert {
	r := &Reverb{sampleRate: sampleRate}
	maxBase := reverbBase(sampleRate, 1)
	for i := range r.combs {
		r.combs[i].buf = make([]float32, maxBase*combRatios[i]/1000)
	}
	for i := range r.allpass {
		r.allpass[i].buf = make([]float32, max(1, maxBase*allpassRatios[i]/1000))
		r.allpass[i].fb = 0.5
	}
	return newInsert(r,
		param.Def{Name: "room", Default: 0.5, Min: 0.05, Max: 1},
		param.Def{Name: "feedback", Default: 0.7, Min: 0, Max: 0.95},
		param.Def{Name: "mix", Default: 0.25, Min: 0, Max: 1},
	)
}

func reverbBase(sampleRate int, room float64) int {
	return max(10, int(float64(sampleRate)*room*0.05))
}

func (r *Reverb) configure(p *param.Set) {
	base := reverbBase(r.sampleRate, p.Get(reverbRoom))
	fb := p.Float32(reverbFeedback)
	for i := range r.combs {
		r.combs[i].resize(base * combRatios[i] / 1000)
		r.combs[i].fb = fb
	}
	for i := range r.allpass {
		r.allpass[i].resize(base * allpassRatios[i] / 1000)
	}
	r.wet = p.Float32(reverbMix)
}

func (r *Reverb) Process(l, r2 float32) (float32, float32) {
	mono := (l + r2) * 0.5
	var out float32
	for i := range r.combs {
		out += r.combs[i].comb(mono)
	}
	out *= 0.25
	for i := range r.allpass {
		out = r.allpass[i].allpassStep(out)
	}
	return l*(1-r.wet) + out*r.wet, r2*(1-r.wet) + out*r.wet
}

func (r *Reverb) Reset() {
	for i := range r.combs {
		clear(r.combs[i].buf)
		r.combs[i].pos = 0
	}
	for i := range r.allpass {
		clear(r.allpass[i].buf)
		r.allpass[i].pos = 0
	}
}
