package score

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// ErrCueIndex is returned for cue indexes outside the list.
var ErrCueIndex = errors.New("score: cue index out of range")

// DefaultBaseTempo is the tempo of a new score.
const DefaultBaseTempo = 120.0

// Score is an immutable snapshot of a piece. Build modified copies through
// Model rather than changing a Score in place.
type Score struct {
	BaseTempo float64
	Cues      CueList
	Cycles    map[string]Cycle

	ordered []Cycle
}

func New() *Score {
	return &Score{BaseTempo: DefaultBaseTempo, Cycles: map[string]Cycle{}}
}

// normalized returns a copy with sorted cues and a name-ordered cycle view.
func (s *Score) normalized() *Score {
	out := &Score{
		BaseTempo: s.BaseTempo,
		Cues:      CueList(nil).Merge(s.Cues...),
		Cycles:    maps.Clone(s.Cycles),
	}
	if out.Cycles == nil {
		out.Cycles = map[string]Cycle{}
	}
	out.index()
	return out
}

func (s *Score) index() {
	s.ordered = slices.SortedFunc(maps.Values(s.Cycles), func(a, b Cycle) int { return strings.Compare(a.Name, b.Name) })
}

// OrderedCycles returns the cycles sorted by name.
func (s *Score) OrderedCycles() []Cycle {
	if s.ordered == nil && len(s.Cycles) > 0 {
		s.index()
	}
	return s.ordered
}

// Cue list accessor used by PlayContext.
func (s *Score) CueList() CueList { return s.Cues }

type scoreWire struct {
	BaseTempo float64 `json:"baseTempo" yaml:"baseTempo"`
	CueList   []Cue   `json:"cueList" yaml:"cueList"`
	Cycles    []Cycle `json:"cycles" yaml:"cycles"`
}

func (s *Score) wire() scoreWire {
	return scoreWire{BaseTempo: s.BaseTempo, CueList: nonNil(s.Cues), Cycles: nonNil(s.OrderedCycles())}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (w scoreWire) score() (*Score, error) {
	s := &Score{BaseTempo: w.BaseTempo, Cues: w.CueList, Cycles: make(map[string]Cycle, len(w.Cycles))}
	for _, c := range w.Cycles {
		if err := c.validate(); err != nil {
			return nil, err
		}
		if _, dup := s.Cycles[c.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateCycle, c.Name)
		}
		s.Cycles[c.Name] = c
	}
	return s.normalized(), nil
}

func (s *Score) MarshalJSON() ([]byte, error) { return json.Marshal(s.wire()) }

func (s *Score) UnmarshalJSON(data []byte) error {
	var w scoreWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	v, err := w.score()
	if err != nil {
		return err
	}
	*s = *v
	return nil
}

func (s *Score) MarshalYAML() (any, error) { return s.wire(), nil }

func (s *Score) UnmarshalYAML(n *yaml.Node) error {
	var w scoreWire
	if err := n.Decode(&w); err != nil {
		return err
	}
	v, err := w.score()
	if err != nil {
		return err
	}
	*s = *v
	return nil
}

// Model owns the current Score. Readers take snapshots with Snapshot, which
// never change; each edit publishes a new snapshot and then notifies
// observers on the editing goroutine.
type Model struct {
	mu  sync.Mutex
	cur atomic.Pointer[Score]

	obsMu    sync.Mutex
	cueObs   []func(*Score)
	cycleObs []func(*Score)
}

func NewModel(s *Score) *Model {
	if s == nil {
		s = New()
	}
	m := &Model{}
	m.cur.Store(s.normalized())
	return m
}

// Snapshot returns the current score.
func (m *Model) Snapshot() *Score { return m.cur.Load() }

// CueList returns the current cue list.
func (m *Model) CueList() CueList { return m.cur.Load().Cues }

// OnCueListChanged registers fn to run after every cue edit.
func (m *Model) OnCueListChanged(fn func(*Score)) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.cueObs = append(m.cueObs, fn)
}

// OnCyclesChanged registers fn to run after every cycle edit.
func (m *Model) OnCyclesChanged(fn func(*Score)) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.cycleObs = append(m.cycleObs, fn)
}

func (m *Model) notify(s *Score, cues, cycles bool) {
	m.obsMu.Lock()
	cueObs, cycleObs := slices.Clone(m.cueObs), slices.Clone(m.cycleObs)
	m.obsMu.Unlock()
	if cues {
		for _, fn := range cueObs {
			fn(s)
		}
	}
	if cycles {
		for _, fn := range cycleObs {
			fn(s)
		}
	}
}

// edit copies the current snapshot, applies fn and publishes the result.
func (m *Model) edit(cues, cycles bool, fn func(next *Score) error) error {
	m.mu.Lock()
	cur := m.cur.Load()
	next := &Score{
		BaseTempo: cur.BaseTempo,
		Cues:      cur.Cues,
		Cycles:    cur.Cycles,
	}
	if cycles {
		next.Cycles = maps.Clone(cur.Cycles)
	}
	if err := fn(next); err != nil {
		m.mu.Unlock()
		return err
	}
	next.index()
	m.cur.Store(next)
	m.mu.Unlock()
	m.notify(next, cues, cycles)
	return nil
}

// Load replaces the whole score.
func (m *Model) Load(s *Score) {
	n := s.normalized()
	m.mu.Lock()
	m.cur.Store(n)
	m.mu.Unlock()
	m.notify(n, true, true)
}

func (m *Model) SetBaseTempo(bpm float64) {
	_ = m.edit(false, false, func(next *Score) error {
		next.BaseTempo = bpm
		return nil
	})
}

// AddCues inserts cues in time order.
func (m *Model) AddCues(cues ...Cue) {
	_ = m.edit(true, false, func(next *Score) error {
		next.Cues = next.Cues.Merge(cues...)
		return nil
	})
}

func (m *Model) AddCue(c Cue) { m.AddCues(c) }

// ReplaceCue swaps the cue at index i for c, re-sorting as needed.
func (m *Model) ReplaceCue(i int, c Cue) error {
	return m.edit(true, false, func(next *Score) error {
		if i < 0 || i >= len(next.Cues) {
			return ErrCueIndex
		}
		next.Cues = slices.Delete(slices.Clone(next.Cues), i, i+1).Merge(c)
		return nil
	})
}

// RemoveCue deletes the cue at index i.
func (m *Model) RemoveCue(i int) error {
	return m.edit(true, false, func(next *Score) error {
		if i < 0 || i >= len(next.Cues) {
			return ErrCueIndex
		}
		next.Cues = slices.Delete(slices.Clone(next.Cues), i, i+1)
		return nil
	})
}

// ClearCues removes every cue.
func (m *Model) ClearCues() {
	_ = m.edit(true, false, func(next *Score) error {
		next.Cues = nil
		return nil
	})
}

// AddCycle adds c; its name must be unused.
func (m *Model) AddCycle(c Cycle) error {
	if err := c.validate(); err != nil {
		return err
	}
	return m.edit(false, true, func(next *Score) error {
		if _, dup := next.Cycles[c.Name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateCycle, c.Name)
		}
		next.Cycles[c.Name] = c
		return nil
	})
}

// ReplaceCycle swaps the cycle called name for c, which may carry a new name.
func (m *Model) ReplaceCycle(name string, c Cycle) error {
	if err := c.validate(); err != nil {
		return err
	}
	return m.edit(false, true, func(next *Score) error {
		if _, ok := next.Cycles[name]; !ok {
			return fmt.Errorf("%w: %q", ErrNoSuchCycle, name)
		}
		if _, dup := next.Cycles[c.Name]; dup && c.Name != name {
			return fmt.Errorf("%w: %q", ErrDuplicateCycle, c.Name)
		}
		delete(next.Cycles, name)
		next.Cycles[c.Name] = c
		return nil
	})
}

// RemoveCycle deletes the named cycle, reporting whether it existed.
func (m *Model) RemoveCycle(name string) bool {
	err := m.edit(false, true, func(next *Score) error {
		if _, ok := next.Cycles[name]; !ok {
			return ErrNoSuchCycle
		}
		delete(next.Cycles, name)
		return nil
	})
	return err == nil
}

func (m *Model) SetCycleActive(name string, active bool) error {
	return m.edit(false, true, func(next *Score) error {
		c, ok := next.Cycles[name]
		if !ok {
			return fmt.Errorf("%w: %q", ErrNoSuchCycle, name)
		}
		c.IsActive = active
		next.Cycles[name] = c
		return nil
	})
}
