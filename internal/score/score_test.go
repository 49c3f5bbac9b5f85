package score

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/cbegin/plink-go/internal/ticktime"
)

func cue(t ticktime.Time, text string) Cue { return Cue{Time: t, Action: ParseAction(text)} }

func cueTexts(l CueList) []string {
	out := make([]string, len(l))
	for i, c := range l {
		out[i] = c.Action.Text
	}
	return out
}

func TestModelKeepsCuesSortedAndStable(t *testing.T) {
	m := NewModel(nil)
	m.AddCues(cue(20, "c"), cue(10, "a"), cue(10, "b"))
	m.AddCue(cue(10, "a2"))
	m.AddCue(cue(0, "zero"))
	assert.Equal(t, []string{"zero", "a", "b", "a2", "c"}, cueTexts(m.CueList()))

	require.NoError(t, m.ReplaceCue(0, cue(30, "last")))
	assert.Equal(t, []string{"a", "b", "a2", "c", "last"}, cueTexts(m.CueList()))

	require.NoError(t, m.RemoveCue(1))
	assert.Equal(t, []string{"a", "a2", "c", "last"}, cueTexts(m.CueList()))

	assert.ErrorIs(t, m.RemoveCue(4), ErrCueIndex)
	assert.ErrorIs(t, m.ReplaceCue(-1, cue(1, "x")), ErrCueIndex)
}

func TestSnapshotsAreImmutable(t *testing.T) {
	m := NewModel(nil)
	m.AddCue(cue(1, "a"))
	before := m.Snapshot()
	m.AddCue(cue(0, "b"))
	require.NoError(t, m.AddCycle(Cycle{Name: "hat", IsActive: true, Period: 6, Action: Procedure("hat")}))
	assert.Len(t, before.Cues, 1)
	assert.Empty(t, before.Cycles)
	assert.Len(t, m.Snapshot().Cues, 2)
}

func TestCycleNamesUnique(t *testing.T) {
	m := NewModel(nil)
	bd := Cycle{Name: "BD", IsActive: true, Period: 24, Action: Procedure("kick")}
	require.NoError(t, m.AddCycle(bd))
	assert.ErrorIs(t, m.AddCycle(bd), ErrDuplicateCycle)
	assert.ErrorIs(t, m.AddCycle(Cycle{Name: "x", Period: 0}), ErrInvalidPeriod)
	assert.ErrorIs(t, m.AddCycle(Cycle{Period: 3}), ErrUnnamedCycle)

	require.NoError(t, m.AddCycle(Cycle{Name: "SD", Period: 48, Modulus: 24, Action: Procedure("snare")}))
	assert.ErrorIs(t, m.ReplaceCycle("SD", bd), ErrDuplicateCycle)
	assert.ErrorIs(t, m.ReplaceCycle("nope", bd), ErrNoSuchCycle)

	renamed := bd
	renamed.Name = "Kick"
	require.NoError(t, m.ReplaceCycle("BD", renamed))
	names := []string{}
	for _, c := range m.Snapshot().OrderedCycles() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Kick", "SD"}, names)

	require.NoError(t, m.SetCycleActive("SD", true))
	assert.True(t, m.Snapshot().Cycles["SD"].IsActive)
	assert.ErrorIs(t, m.SetCycleActive("BD", true), ErrNoSuchCycle)
	assert.True(t, m.RemoveCycle("Kick"))
	assert.False(t, m.RemoveCycle("Kick"))
}

func TestObservers(t *testing.T) {
	m := NewModel(nil)
	cueEdits, cycleEdits := 0, 0
	m.OnCueListChanged(func(s *Score) { cueEdits++ })
	m.OnCyclesChanged(func(s *Score) { cycleEdits++ })
	m.AddCue(cue(1, "a"))
	_ = m.RemoveCue(5)
	require.NoError(t, m.AddCycle(Cycle{Name: "c", Period: 1, Action: Procedure("c")}))
	m.SetBaseTempo(99)
	assert.Equal(t, 1, cueEdits)
	assert.Equal(t, 1, cycleEdits)
	m.Load(New())
	assert.Equal(t, 2, cueEdits)
	assert.Equal(t, 2, cycleEdits)
}

func TestScoreEncoding(t *testing.T) {
	s := &Score{
		BaseTempo: 96,
		Cues:      CueList{cue(48, "drop()"), cue(0, "intro")},
		Cycles: map[string]Cycle{
			"SD": {Name: "SD", IsActive: true, Period: 48, Modulus: 24, Action: Procedure("snare")},
			"BD": {Name: "BD", Period: 24, Action: Statement("kick(1)")},
		},
	}
	data, err := yaml.Marshal(s.normalized())
	require.NoError(t, err)
	assert.Equal(t, `baseTempo: 96
cueList:
    - time: 0
      procedure: intro
    - time: 48
      code: drop()
cycles:
    - name: BD
      isActive: false
      period: 24
      code: kick(1)
    - name: SD
      isActive: true
      period: 48
      modulus: 24
      procedure: snare
`, string(data))

	var back Score
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.Equal(t, s.normalized().Cues, back.Cues)
	assert.Equal(t, s.Cycles, back.Cycles)

	js, err := json.Marshal(&back)
	require.NoError(t, err)
	var fromJSON Score
	require.NoError(t, json.Unmarshal(js, &fromJSON))
	assert.Equal(t, back.Cues, fromJSON.Cues)
	assert.Equal(t, 96.0, fromJSON.BaseTempo)
}

func TestScoreDecodeRejectsDuplicates(t *testing.T) {
	var s Score
	err := yaml.Unmarshal([]byte(`
baseTempo: 120
cueList: []
cycles:
  - {name: a, isActive: true, period: 4, procedure: x}
  - {name: a, isActive: true, period: 8, procedure: y}
`), &s)
	assert.ErrorIs(t, err, ErrDuplicateCycle)
}

func TestCueListBetween(t *testing.T) {
	l := CueList{cue(0, "a"), cue(5, "b"), cue(5, "c"), cue(9, "d")}
	assert.Equal(t, []string{"b", "c"}, cueTexts(l.Between(1, 9)))
	assert.Empty(t, l.Between(10, 20))
}
