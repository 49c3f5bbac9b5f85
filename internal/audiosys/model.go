package audiosys

import (
	"encoding/base64"
	"strings"

	"gopkg.in/yaml.v3"
)

// Blob is an opaque preset. It is stored as !!binary in YAML and as base64
// in JSON.
type Blob []byte

func (b Blob) MarshalYAML() (any, error) {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!binary", Value: base64.StdEncoding.EncodeToString(b)}, nil
}

func (b *Blob) UnmarshalYAML(n *yaml.Node) error {
	switch {
	case n.Kind == yaml.SequenceNode:
		var raw []byte
		if err := n.Decode(&raw); err != nil {
			return err
		}
		*b = raw
		return nil
	case n.ShortTag() != "!!binary":
		*b = Blob(n.Value)
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(n.Value), ""))
	if err != nil {
		return err
	}
	*b = data
	return nil
}

// ChannelModel is the saved form of a channel. Instrument and Inserts hold
// preset blobs.
type ChannelModel struct {
	Name       string  `yaml:"name" json:"name"`
	Gain       float64 `yaml:"gain" json:"gain"`
	Pan        float64 `yaml:"pan" json:"pan"`
	Instrument Blob    `yaml:"instrument,omitempty" json:"instrument,omitempty"`
	Inserts    []Blob  `yaml:"inserts" json:"inserts"`
}

// Model is the saved form of the audio system.
type Model struct {
	Channels []ChannelModel `yaml:"channels" json:"channels"`
}
