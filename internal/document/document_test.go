package document

import (
	"path/filepath"
	"testing"

	"github.com/cbegin/plink-go/internal/audiosys"
	"github.com/cbegin/plink-go/internal/code"
	"github.com/cbegin/plink-go/internal/score"
	"github.com/google/uuid"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedID = uuid.MustParse("3b241101-e2bb-4255-8caf-4136c566a962")

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func sampleDocument(t *testing.T) *Document {
	t.Helper()
	m := score.NewModel(score.New())
	m.SetBaseTempo(100)
	m.AddCue(score.Cue{Time: 24, Action: score.Procedure("fanfare")})
	require.NoError(t, m.AddCycle(score.Cycle{Name: "drums", IsActive: true, Period: 24, Action: score.Statement("kick()")}))

	d := New()
	d.ID = fixedID
	d.Metronome.Tempo = 100
	d.Score = m.Snapshot()
	d.AudioSystem.Channels = []audiosys.ChannelModel{{
		Name:       "lead",
		Gain:       0.5,
		Pan:        -0.25,
		Instrument: audiosys.Blob("preset"),
	}}
	d.CodeSystem = CodeSystem{
		Script:     "function fanfare() {}",
		Scrollback: []code.Entry{{Kind: code.EntryResult, Text: "3"}},
	}
	return d
}

func TestVersion(t *testing.T) {
	assert.Equal(t, Version(0x000100020000), V1_2_0)
	assert.Equal(t, "1.2.0", Current.String())
	assert.Less(t, V1_0_0, V1_1_0)
}

func TestEncodeGolden(t *testing.T) {
	data, err := Encode(sampleDocument(t), JSON)
	require.NoError(t, err)
	golden(t).Assert(t, "document", data)
}

func TestLegacyMigrationGolden(t *testing.T) {
	d, err := Load(filepath.Join("testdata", "legacy-1.0.0.yaml"))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, d.ID)
	assert.InDelta(t, 90, d.Metronome.Tempo, 1e-9)

	d.ID = fixedID
	data, err := Encode(d, JSON)
	require.NoError(t, err)
	golden(t).Assert(t, "legacy-1.0.0", data)
}

func TestYAMLRoundTrip(t *testing.T) {
	d := sampleDocument(t)
	data, err := Encode(d, YAML)
	require.NoError(t, err)
	assert.Contains(t, string(data), "!!binary")

	back, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, audiosys.Blob("preset"), back.AudioSystem.Channels[0].Instrument)

	want, err := Encode(d, JSON)
	require.NoError(t, err)
	got, err := Encode(back, JSON)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(got))
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"song.yaml", "song.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, Save(path, sampleDocument(t)))
			d, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, fixedID, d.ID)
			assert.Equal(t, Current, d.Version)
			require.Len(t, d.Score.Cues, 1)
			assert.Equal(t, score.Procedure("fanfare"), d.Score.Cues[0].Action)
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"unversioned", "metronome: {tempo: 120}\n", ErrUnversioned},
		{"future", "documentVersion: 0x000200000000\n", ErrFutureVersion},
		{"garbage", "{not json", ErrMalformed},
		{"empty", "", ErrMalformed},
		{"cycles", "documentVersion: 0x000100010000\nscore: {cycles: 3}\n", ErrMalformed},
		{"both actions", `{"documentVersion": 4295098368, "score": {"cueList": [{"time": 0, "code": "a", "procedure": "b"}]}}`, score.ErrAmbiguousAction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestMigrateSteps(t *testing.T) {
	doc := map[string]any{
		"documentVersion": 0x000100010000,
		"score": map[string]any{
			"cycles": []any{map[string]any{"name": "a", "period": 4}},
		},
		"transport": map[string]any{"tempo": 80},
	}
	from, err := Migrate(doc)
	require.NoError(t, err)
	assert.Equal(t, V1_1_0, from)
	assert.Equal(t, int64(Current), doc["documentVersion"])
	// transport was renamed by 1.1.0, which this document already had
	assert.Contains(t, doc, "transport")

	cycles := doc["score"].(map[string]any)["cycles"].([]any)
	assert.Equal(t, true, cycles[0].(map[string]any)["isActive"])
}
