package graph

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// UnitType is the broad role of a processing unit.
type UnitType int

const (
	Instrument UnitType = iota
	Effect
	Mixer
	Output
)

var unitTypeNames = [...]string{"instrument", "effect", "mixer", "output"}

func (t UnitType) String() string {
	if t >= 0 && int(t) < len(unitTypeNames) {
		return unitTypeNames[t]
	}
	return fmt.Sprintf("UnitType(%d)", int(t))
}

func (t UnitType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *UnitType) UnmarshalText(b []byte) error {
	for i, name := range unitTypeNames {
		if strings.EqualFold(string(b), name) {
			*t = UnitType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown unit type %q", b)
}

// Description identifies a kind of unit the way a component registry would.
type Description struct {
	Type         UnitType `yaml:"type" json:"type"`
	SubType      string   `yaml:"subType" json:"subType"`
	Manufacturer string   `yaml:"manufacturer,omitempty" json:"manufacturer,omitempty"`
}

func (d Description) String() string {
	if d.Manufacturer != "" {
		return d.Type.String() + "/" + d.SubType + "@" + d.Manufacturer
	}
	return d.Type.String() + "/" + d.SubType
}

// Unit is an opaque stereo processor. Render writes len(out)/2 interleaved
// frames; inputs[i] holds bus i, or nil when the bus is unconnected. Render
// runs on the render path and must not block or allocate.
type Unit interface {
	Inputs() int
	Render(out []float32, inputs [][]float32)
	Reset()
}

// Parameterized units expose named parameters, which make up their preset.
type Parameterized interface {
	Params() map[string]float64
	SetParam(name string, v float64) error
}

// Releaser is implemented by units holding resources beyond memory.
type Releaser interface {
	Release()
}

// Factory instantiates units.
type Factory interface {
	Supports(desc Description) bool
	New(desc Description, sampleRate int) (Unit, error)
}

// ErrUnknownParam is returned by SetParam implementations for unknown names.
var ErrUnknownParam = errors.New("graph: unknown parameter")

// Preset is a serializable unit configuration.
type Preset struct {
	Description Description        `yaml:"description"`
	Params      map[string]float64 `yaml:"params,omitempty"`
}

// Encode returns the preset as an opaque blob.
func (p Preset) Encode() ([]byte, error) {
	return yaml.Marshal(p)
}

// DecodePreset parses a blob produced by Preset.Encode.
func DecodePreset(data []byte) (Preset, error) {
	var p Preset
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Preset{}, fmt.Errorf("cannot decode preset: %w", err)
	}
	if p.Description.SubType == "" {
		return Preset{}, errors.New("cannot decode preset: missing description")
	}
	return p, nil
}
