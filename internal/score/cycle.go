package score

import (
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/cbegin/plink-go/internal/ticktime"
)

var (
	ErrInvalidPeriod  = errors.New("score: cycle period must be positive")
	ErrUnnamedCycle   = errors.New("score: cycle name is empty")
	ErrDuplicateCycle = errors.New("score: duplicate cycle name")
	ErrNoSuchCycle    = errors.New("score: no such cycle")
)

// Cycle is a named, toggleable action that fires at every tick t with
// t mod Period == Modulus.
type Cycle struct {
	Name     string
	IsActive bool
	Period   ticktime.Duration
	Modulus  ticktime.Time
	Action   CuedAction
}

// Due reports whether the cycle fires at t, and with which cycle index.
func (c Cycle) Due(t ticktime.Time) (int64, bool) {
	if !c.IsActive || c.Period <= 0 || t%c.Period != c.Modulus {
		return 0, false
	}
	return int64(t / c.Period), true
}

func (c Cycle) validate() error {
	if c.Name == "" {
		return ErrUnnamedCycle
	}
	if c.Period <= 0 {
		return fmt.Errorf("cycle %q: %w", c.Name, ErrInvalidPeriod)
	}
	return nil
}

type cycleWire struct {
	Name         string            `json:"name" yaml:"name"`
	IsActive     bool              `json:"isActive" yaml:"isActive"`
	Period       ticktime.Duration `json:"period" yaml:"period"`
	Modulus      ticktime.Time     `json:"modulus,omitempty" yaml:"modulus,omitempty"`
	actionFields `yaml:",inline"`
}

func (c Cycle) wire() cycleWire {
	return cycleWire{Name: c.Name, IsActive: c.IsActive, Period: c.Period, Modulus: c.Modulus, actionFields: c.Action.fields()}
}

func (w cycleWire) cycle() (Cycle, error) {
	a, err := w.action()
	if err != nil {
		return Cycle{}, fmt.Errorf("cycle %q: %w", w.Name, err)
	}
	return Cycle{Name: w.Name, IsActive: w.IsActive, Period: w.Period, Modulus: w.Modulus, Action: a}, nil
}

func (c Cycle) MarshalJSON() ([]byte, error) { return json.Marshal(c.wire()) }

func (c *Cycle) UnmarshalJSON(data []byte) error {
	var w cycleWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	v, err := w.cycle()
	if err != nil {
		return err
	}
	*c = v
	return nil
}

func (c Cycle) MarshalYAML() (any, error) { return c.wire(), nil }

func (c *Cycle) UnmarshalYAML(n *yaml.Node) error {
	var w cycleWire
	if err := n.Decode(&w); err != nil {
		return err
	}
	v, err := w.cycle()
	if err != nil {
		return err
	}
	*c = v
	return nil
}
