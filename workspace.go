package plink

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/cbegin/plink-go/internal/document"
	"github.com/cbegin/plink-go/internal/score"
)

// Snapshot captures the workspace as a current-version document.
func (w *World) Snapshot() (*document.Document, error) {
	audio, err := w.audio.Snapshot()
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	id, script := w.id, w.script
	w.mu.Unlock()

	d := document.New()
	d.ID = id
	if audio.Channels != nil {
		d.AudioSystem = audio
	}
	d.Metronome.Tempo = w.metronome.Tempo()
	d.Score = w.model.Snapshot()
	d.CodeSystem.Script = script
	if entries := w.console.Entries(); entries != nil {
		d.CodeSystem.Scrollback = entries
	}
	return d, nil
}

// Load replaces the workspace with d. The transport stops and every
// scheduled action is dropped first. A script that fails to run is reported
// to the console and does not fail the load.
func (w *World) Load(d *document.Document) error {
	sc := d.Score
	if sc == nil {
		sc = score.New()
	}
	tempo := d.Metronome.Tempo
	if tempo <= 0 {
		tempo = sc.BaseTempo
	}

	w.Interrupt()
	if err := w.audio.Restore(d.AudioSystem); err != nil {
		return fmt.Errorf("cannot restore audio system: %w", err)
	}
	if err := w.metronome.SetTempo(tempo); err != nil {
		return err
	}
	w.model.Load(sc)
	w.console.Load(d.CodeSystem.Scrollback)

	w.mu.Lock()
	w.id = d.ID
	if w.id == uuid.Nil {
		w.id = uuid.New()
	}
	w.script = d.CodeSystem.Script
	w.mu.Unlock()

	if err := w.runScript(d.CodeSystem.Script); err != nil {
		w.log.Warn("workspace script failed", "error", err)
	}
	w.log.Info("workspace loaded", "id", d.ID, "channels", len(d.AudioSystem.Channels), "cues", len(sc.Cues))
	return nil
}

func (w *World) LoadFile(path string) error {
	d, err := document.Load(path)
	if err != nil {
		return err
	}
	return w.Load(d)
}

func (w *World) SaveFile(path string) error {
	d, err := w.Snapshot()
	if err != nil {
		return err
	}
	return document.Save(path, d)
}
