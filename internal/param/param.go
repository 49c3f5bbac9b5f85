// Package param holds named unit parameters that may be written from any
// goroutine while the owning unit renders.
package param

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"sync/atomic"

	"github.com/cbegin/plink-go/internal/graph"
)

// Def describes one parameter.
type Def struct {
	Name     string
	Default  float64
	Min, Max float64
}

// Set holds parameter values as atomics so SetParam may race with Render.
type Set struct {
	defs []Def
	vals []atomic.Uint64
	gen  atomic.Uint64
}

func NewSet(defs ...Def) *Set {
	p := &Set{defs: defs, vals: make([]atomic.Uint64, len(defs))}
	for i, d := range defs {
		p.vals[i].Store(math.Float64bits(d.Default))
	}
	return p
}

// Get returns parameter i.
func (p *Set) Get(i int) float64 { return math.Float64frombits(p.vals[i].Load()) }

func (p *Set) Float32(i int) float32 { return float32(p.Get(i)) }

// Int returns parameter i rounded to the nearest integer.
func (p *Set) Int(i int) int { return int(math.Round(p.Get(i))) }

// Params returns every value by name.
func (p *Set) Params() map[string]float64 {
	out := make(map[string]float64, len(p.defs))
	for i, d := range p.defs {
		out[d.Name] = p.Get(i)
	}
	return out
}

// Names lists parameter names in declaration order.
func (p *Set) Names() []string {
	out := make([]string, len(p.defs))
	for i, d := range p.defs {
		out[i] = d.Name
	}
	return out
}

func (p *Set) Defs() []Def { return slices.Clone(p.defs) }

// SetParam stores v, clamped to the parameter's range.
func (p *Set) SetParam(name string, v float64) error {
	for i, d := range p.defs {
		if d.Name != name {
			continue
		}
		if math.IsNaN(v) {
			return fmt.Errorf("%s: not a number", name)
		}
		v = math.Max(d.Min, math.Min(d.Max, v))
		p.vals[i].Store(math.Float64bits(v))
		p.gen.Add(1)
		return nil
	}
	return fmt.Errorf("%w %q (have %v)", graph.ErrUnknownParam, name, slices.Sorted(maps.Keys(p.Params())))
}

// Changed reports whether any parameter moved since *seen, updating *seen.
// Only the rendering goroutine should own seen.
func (p *Set) Changed(seen *uint64) bool {
	g := p.gen.Load()
	if g == *seen {
		return false
	}
	*seen = g
	return true
}
