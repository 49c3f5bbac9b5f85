// Package report renders human-readable summaries of a workspace document.
package report

import (
	"embed"
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"

	"github.com/cbegin/plink-go/internal/audiosys"
	"github.com/cbegin/plink-go/internal/document"
	"github.com/cbegin/plink-go/internal/graph"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

type Channel struct {
	Name       string
	Gain, Pan  float64
	Instrument string
	Inserts    []string
}

type Cue struct {
	Time   string
	Action string
}

type Cycle struct {
	Name    string
	Active  bool
	Period  int64
	Modulus int64
	Action  string
}

// Summary is the data handed to the templates.
type Summary struct {
	Title       string
	Version     string
	ID          string
	Tempo       float64
	BaseTempo   float64
	Channels    []Channel
	Cues        []Cue
	Cycles      []Cycle
	ScriptLines int
	Scrollback  int
	// Graph is an optional live graph dump.
	Graph string
}

// Summarize extracts a Summary from d. Unreadable presets show as "?".
func Summarize(title string, d *document.Document) Summary {
	s := Summary{
		Title:      title,
		Version:    d.Version.String(),
		ID:         d.ID.String(),
		Tempo:      d.Metronome.Tempo,
		Scrollback: len(d.CodeSystem.Scrollback),
	}
	if script := strings.TrimSpace(d.CodeSystem.Script); script != "" {
		s.ScriptLines = strings.Count(script, "\n") + 1
	}
	for _, c := range d.AudioSystem.Channels {
		ch := Channel{Name: c.Name, Gain: c.Gain, Pan: c.Pan, Instrument: presetName(c.Instrument)}
		for _, in := range c.Inserts {
			ch.Inserts = append(ch.Inserts, presetName(in))
		}
		s.Channels = append(s.Channels, ch)
	}
	if sc := d.Score; sc != nil {
		s.BaseTempo = sc.BaseTempo
		for _, c := range sc.Cues {
			s.Cues = append(s.Cues, Cue{Time: c.Time.String(), Action: c.Action.String()})
		}
		for _, c := range sc.OrderedCycles() {
			s.Cycles = append(s.Cycles, Cycle{
				Name:    c.Name,
				Active:  c.IsActive,
				Period:  int64(c.Period),
				Modulus: int64(c.Modulus),
				Action:  c.Action.String(),
			})
		}
	}
	return s
}

func presetName(b audiosys.Blob) string {
	if len(b) == 0 {
		return ""
	}
	p, err := graph.DecodePreset(b)
	if err != nil {
		return "?"
	}
	return p.Description.String()
}

// Renderer executes the embedded templates.
type Renderer struct {
	tmpl *template.Template
}

func New() (*Renderer, error) {
	tmpl, err := template.New("base").Funcs(sprig.TxtFuncMap()).ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("could not create templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Document writes the summary of s.
func (r *Renderer) Document(w io.Writer, s Summary) error {
	if err := r.tmpl.ExecuteTemplate(w, "document", s); err != nil {
		return fmt.Errorf("could not execute template %q: %w", "document", err)
	}
	return nil
}
