package effects

import (
	"math"

	"github.com/cbegin/plink-go/internal/param"
)

// Distortion is tanh waveshaping between a drive and an output level, with
// an optional one-pole lowpass for tone.
type Distortion struct {
	sampleRate int
	drive      float32
	level      float32
	lpfAlpha   float32
	lpfL, lpfR float32
}

const (
	distDrive = iota
	distLevel
	distTone
)

// NewDistortion returns a distortion insert. Parameters: drive, level,
// tone (lowpass cutoff in Hz, 0 disables it).
func NewDistortion(sampleRate int) *Insert {
	return newInsert(&Distortion{sampleRate: sampleRate},
		param.Def{Name: "drive", Default: 4, Min: 0.1, Max: 100},
		param.Def{Name: "level", Default: 0.5, Min: 0, Max: 2},
		param.Def{Name: "tone", Default: 8000, Min: 0, Max: 20000},
	)
}

func (d *Distortion) configure(p *param.Set) {
	d.drive = p.Float32(distDrive)
	d.level = p.Float32(distLevel)
	d.lpfAlpha = onePoleAlpha(p.Get(distTone), d.sampleRate)
}

func (d *Distortion) Process(l, r float32) (float32, float32) {
	l = float32(math.Tanh(float64(l*d.drive))) * d.level
	r = float32(math.Tanh(float64(r*d.drive))) * d.level
	if d.lpfAlpha > 0 {
		d.lpfL += d.lpfAlpha * (l - d.lpfL)
		d.lpfR += d.lpfAlpha * (r - d.lpfR)
		l, r = d.lpfL, d.lpfR
	}
	return l, r
}

func (d *Distortion) Reset() {
	d.lpfL, d.lpfR = 0, 0
}
