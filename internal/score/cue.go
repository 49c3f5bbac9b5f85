package score

import (
	"encoding/json"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/cbegin/plink-go/internal/stream"
	"github.com/cbegin/plink-go/internal/ticktime"
)

// Cue is a one-shot action at an absolute tick.
type Cue struct {
	Time   ticktime.Time
	Action CuedAction
}

func cueTime(c Cue) ticktime.Time { return c.Time }

func cueLess(a, b Cue) bool { return a.Time < b.Time }

type cueWire struct {
	Time         ticktime.Time `json:"time" yaml:"time"`
	actionFields `yaml:",inline"`
}

func (c Cue) wire() cueWire { return cueWire{Time: c.Time, actionFields: c.Action.fields()} }

func (w cueWire) cue() (Cue, error) {
	a, err := w.action()
	if err != nil {
		return Cue{}, fmt.Errorf("cue at %d: %w", w.Time, err)
	}
	return Cue{Time: w.Time, Action: a}, nil
}

func (c Cue) MarshalJSON() ([]byte, error) { return json.Marshal(c.wire()) }

func (c *Cue) UnmarshalJSON(data []byte) error {
	var w cueWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	v, err := w.cue()
	if err != nil {
		return err
	}
	*c = v
	return nil
}

func (c Cue) MarshalYAML() (any, error) { return c.wire(), nil }

func (c *Cue) UnmarshalYAML(n *yaml.Node) error {
	var w cueWire
	if err := n.Decode(&w); err != nil {
		return err
	}
	v, err := w.cue()
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// CueList is kept sorted by time. Cues sharing a time keep the order in which
// they were added.
type CueList []Cue

// Seek returns the index of the first cue not before t, walking from index from.
func (l CueList) Seek(from int, t ticktime.Time) int {
	return ticktime.Seek(l, from, t, cueTime)
}

// Merge returns a new list holding l and add. add need not be sorted; its
// cues land after any existing cues with the same time.
func (l CueList) Merge(add ...Cue) CueList {
	add = slices.Clone(add)
	slices.SortStableFunc(add, func(a, b Cue) int { return ticktime.Compare(a.Time, b.Time) })
	out := make(CueList, 0, len(l)+len(add))
	for c := range stream.Merge(slices.Values(l), slices.Values(add), cueLess) {
		out = append(out, c)
	}
	return out
}

// Between returns the cues with from <= time < to.
func (l CueList) Between(from, to ticktime.Time) CueList {
	i := l.Seek(0, from)
	j := l.Seek(i, to)
	return l[i:j]
}
