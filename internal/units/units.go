// Package units is the registry of built-in graph units: instruments,
// insert effects, the channel mixer and the output stage.
package units

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/cbegin/plink-go/internal/chiptune"
	"github.com/cbegin/plink-go/internal/effects"
	"github.com/cbegin/plink-go/internal/fm"
	"github.com/cbegin/plink-go/internal/graph"
	"github.com/cbegin/plink-go/internal/nesapu"
	"github.com/cbegin/plink-go/internal/wavetable"
)

var (
	FM         = graph.Description{Type: graph.Instrument, SubType: "fm"}
	Chip       = graph.Description{Type: graph.Instrument, SubType: "chip"}
	NES        = graph.Description{Type: graph.Instrument, SubType: "nes"}
	Wavetable  = graph.Description{Type: graph.Instrument, SubType: "wavetable"}
	Delay      = graph.Description{Type: graph.Effect, SubType: "delay"}
	Reverb     = graph.Description{Type: graph.Effect, SubType: "reverb"}
	Chorus     = graph.Description{Type: graph.Effect, SubType: "chorus"}
	Distortion = graph.Description{Type: graph.Effect, SubType: "distortion"}
	EQ3        = graph.Description{Type: graph.Effect, SubType: "eq3"}
	EQ5        = graph.Description{Type: graph.Effect, SubType: "eq5"}
	Compressor = graph.Description{Type: graph.Effect, SubType: "compressor"}
	Gain       = graph.Description{Type: graph.Effect, SubType: "gain"}
	MixerUnit  = graph.Description{Type: graph.Mixer, SubType: "mixer"}
	OutputUnit = graph.Description{Type: graph.Output, SubType: "output"}
)

// Constructor builds a unit for a sample rate.
type Constructor func(sampleRate int) (graph.Unit, error)

// Option configures a Factory.
type Option func(*Factory)

// WithMaxFrames sizes mixer scratch buffers; it must match the graph's.
func WithMaxFrames(n int) Option { return func(f *Factory) { f.maxFrames = n } }

// WithBuses sets the number of mixer inputs.
func WithBuses(n int) Option { return func(f *Factory) { f.buses = n } }

// Factory implements graph.Factory over a table of constructors.
type Factory struct {
	ctors     map[graph.Description]Constructor
	maxFrames int
	buses     int
}

func NewFactory(opts ...Option) *Factory {
	f := &Factory{
		ctors:     map[graph.Description]Constructor{},
		maxFrames: 1024,
		buses:     DefaultBuses,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.Register(FM, func(sr int) (graph.Unit, error) { return fm.New(sr), nil })
	f.Register(Chip, func(sr int) (graph.Unit, error) { return chiptune.New(sr), nil })
	f.Register(NES, func(sr int) (graph.Unit, error) { return nesapu.New(sr), nil })
	f.Register(Wavetable, func(sr int) (graph.Unit, error) { return wavetable.New(sr), nil })
	for desc, ctor := range map[graph.Description]func(int) *effects.Insert{
		Delay:      effects.NewDelay,
		Reverb:     effects.NewReverb,
		Chorus:     effects.NewChorus,
		Distortion: effects.NewDistortion,
		EQ3:        effects.NewEQ3Band,
		EQ5:        effects.NewEQ5BandInsert,
		Compressor: effects.NewCompressor,
		Gain:       effects.NewGain,
	} {
		f.Register(desc, func(sr int) (graph.Unit, error) { return ctor(sr), nil })
	}
	f.Register(MixerUnit, func(int) (graph.Unit, error) { return NewMixer(f.buses, f.maxFrames), nil })
	f.Register(OutputUnit, func(sr int) (graph.Unit, error) { return NewOutput(sr, f.maxFrames), nil })
	return f
}

// Register adds or replaces the constructor for desc.
func (f *Factory) Register(desc graph.Description, ctor Constructor) {
	f.ctors[desc] = ctor
}

func (f *Factory) Supports(desc graph.Description) bool {
	_, ok := f.ctors[desc]
	return ok
}

func (f *Factory) New(desc graph.Description, sampleRate int) (graph.Unit, error) {
	ctor, ok := f.ctors[desc]
	if !ok {
		return nil, fmt.Errorf("%w: %s", graph.ErrUnknownUnit, desc)
	}
	return ctor(sampleRate)
}

// Buses is the mixer input count.
func (f *Factory) Buses() int { return f.buses }

// Descriptions lists every registered unit ordered by type then name.
func (f *Factory) Descriptions() []graph.Description {
	return slices.SortedFunc(maps.Keys(f.ctors), func(a, b graph.Description) int {
		return cmp.Or(cmp.Compare(a.Type, b.Type), cmp.Compare(a.SubType, b.SubType))
	})
}

// Lookup finds a registered description of type t by its subtype name,
// ignoring case.
func (f *Factory) Lookup(t graph.UnitType, name string) (graph.Description, bool) {
	for desc := range f.ctors {
		if desc.Type == t && strings.EqualFold(desc.SubType, strings.TrimSpace(name)) {
			return desc, true
		}
	}
	return graph.Description{}, false
}
