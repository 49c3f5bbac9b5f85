// Package document reads and writes workspace files: the audio system, the
// metronome, the score and the code system, tagged with a format version and
// migrated forward on load.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cbegin/plink-go/internal/audiosys"
	"github.com/cbegin/plink-go/internal/code"
	"github.com/cbegin/plink-go/internal/score"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnversioned   = errors.New("document: missing documentVersion")
	ErrFutureVersion = errors.New("document: written by a newer version")
	ErrMalformed     = errors.New("document: malformed")
)

// Version packs A.B.C as 0xAAAABBBBCCCC.
type Version int64

func MakeVersion(major, minor, patch int) Version {
	return Version(major)<<32 | Version(minor)<<16 | Version(patch)
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v>>32, (v>>16)&0xffff, v&0xffff)
}

var (
	V1_0_0 = MakeVersion(1, 0, 0)
	V1_1_0 = MakeVersion(1, 1, 0)
	V1_2_0 = MakeVersion(1, 2, 0)

	Current = V1_2_0
)

// Format selects the file encoding.
type Format int

const (
	YAML Format = iota
	JSON
)

// FormatFor picks JSON for .json paths and YAML otherwise.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return JSON
	}
	return YAML
}

// sniff guesses the encoding of data.
func sniff(data []byte) Format {
	if t := bytes.TrimSpace(data); len(t) > 0 && t[0] == '{' {
		return JSON
	}
	return YAML
}

type Metronome struct {
	Tempo float64 `yaml:"tempo" json:"tempo"`
}

type CodeSystem struct {
	Script     string       `yaml:"script" json:"script"`
	Scrollback []code.Entry `yaml:"scrollback" json:"scrollback"`
}

// Document is a whole workspace.
type Document struct {
	Version     Version        `yaml:"documentVersion" json:"documentVersion"`
	ID          uuid.UUID      `yaml:"id" json:"id"`
	AudioSystem audiosys.Model `yaml:"audioSystem" json:"audioSystem"`
	Metronome   Metronome      `yaml:"metronome" json:"metronome"`
	Score       *score.Score   `yaml:"score" json:"score"`
	CodeSystem  CodeSystem     `yaml:"codeSystem" json:"codeSystem"`
}

// New returns an empty current-version document.
func New() *Document {
	return &Document{
		Version:     Current,
		ID:          uuid.New(),
		AudioSystem: audiosys.Model{Channels: []audiosys.ChannelModel{}},
		Metronome:   Metronome{Tempo: score.DefaultBaseTempo},
		Score:       score.New(),
		CodeSystem:  CodeSystem{Scrollback: []code.Entry{}},
	}
}

func (d *Document) normalize() {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Score == nil {
		d.Score = score.New()
	}
	if d.AudioSystem.Channels == nil {
		d.AudioSystem.Channels = []audiosys.ChannelModel{}
	}
	for i, c := range d.AudioSystem.Channels {
		if c.Inserts == nil {
			d.AudioSystem.Channels[i].Inserts = []audiosys.Blob{}
		}
	}
	if d.CodeSystem.Scrollback == nil {
		d.CodeSystem.Scrollback = []code.Entry{}
	}
	if d.Metronome.Tempo <= 0 {
		d.Metronome.Tempo = d.Score.BaseTempo
	}
}

// Encode writes d at the current version.
func Encode(d *Document, f Format) ([]byte, error) {
	out := *d
	out.Version = Current
	out.normalize()
	switch f {
	case JSON:
		data, err := json.MarshalIndent(&out, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	default:
		var b bytes.Buffer
		enc := yaml.NewEncoder(&b)
		enc.SetIndent(2)
		if err := enc.Encode(&out); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return b.Bytes(), nil
	}
}

// Decode reads a document in either encoding, migrating older versions
// before typed decoding.
func Decode(data []byte) (*Document, error) {
	f := sniff(data)
	var raw map[string]any
	var err error
	if f == JSON {
		err = json.Unmarshal(data, &raw)
	} else {
		err = yaml.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: empty", ErrMalformed)
	}
	if _, err := Migrate(raw); err != nil {
		return nil, err
	}

	var d Document
	if f == JSON {
		data, err = json.Marshal(raw)
		if err == nil {
			err = json.Unmarshal(data, &d)
		}
	} else {
		data, err = yaml.Marshal(raw)
		if err == nil {
			err = yaml.Unmarshal(data, &d)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	d.normalize()
	return &d, nil
}

// Load reads and decodes the file at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	d, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("cannot load %s: %w", path, err)
	}
	return d, nil
}

// Save encodes d in the format its extension implies and writes it to path.
func Save(path string, d *Document) error {
	data, err := Encode(d, FormatFor(path))
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
