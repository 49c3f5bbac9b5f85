package units

import (
	"strconv"

	"github.com/cbegin/plink-go/internal/effects"
	"github.com/cbegin/plink-go/internal/param"
	"github.com/viterin/vek/vek32"
)

const DefaultBuses = 16

// GainParam and PanParam name the per-bus mixer parameters.
func GainParam(bus int) string { return "gain" + strconv.Itoa(bus) }
func PanParam(bus int) string  { return "pan" + strconv.Itoa(bus) }

// Mixer sums its input buses into one stereo output. Each bus has a gain and
// a constant-power pan; "master" scales the sum.
type Mixer struct {
	*param.Set
	buses   int
	weights [][]float32 // per bus, interleaved left/right gains
	scratch []float32
	master  float32
	seen    uint64
}

func NewMixer(buses, maxFrames int) *Mixer {
	defs := []param.Def{{Name: "master", Default: 1, Min: 0, Max: 4}}
	for b := 0; b < buses; b++ {
		defs = append(defs,
			param.Def{Name: GainParam(b), Default: 1, Min: 0, Max: 4},
			param.Def{Name: PanParam(b), Default: 0, Min: -1, Max: 1},
		)
	}
	m := &Mixer{
		Set:     param.NewSet(defs...),
		buses:   buses,
		weights: make([][]float32, buses),
		scratch: make([]float32, maxFrames*2),
	}
	for b := range m.weights {
		m.weights[b] = make([]float32, maxFrames*2)
	}
	m.configure()
	return m
}

func (m *Mixer) configure() {
	m.master = m.Float32(0)
	for b, w := range m.weights {
		l, r := effects.PanGains(m.Get(1+2*b), m.Get(2+2*b))
		for i := 0; i+1 < len(w); i += 2 {
			w[i], w[i+1] = l, r
		}
	}
}

func (m *Mixer) Inputs() int { return m.buses }

func (m *Mixer) Render(out []float32, in [][]float32) {
	if m.Changed(&m.seen) {
		m.configure()
	}
	n := len(out)
	clear(out)
	for b, src := range in {
		if src == nil {
			continue
		}
		if n > len(m.scratch) {
			w := m.weights[b]
			for i := 0; i+1 < n; i += 2 {
				out[i] += src[i] * w[0]
				out[i+1] += src[i+1] * w[1]
			}
			continue
		}
		vek32.Mul_Into(m.scratch[:n], src[:n], m.weights[b][:n])
		vek32.Add_Inplace(out, m.scratch[:n])
	}
	if m.master != 1 {
		vek32.MulNumber_Inplace(out, m.master)
	}
}

func (m *Mixer) Reset() {}
