package plink

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	intaudio "github.com/cbegin/plink-go/internal/audio"
	"github.com/cbegin/plink-go/internal/ticktime"
)

// runoutSilenceFrames is how long the output must stay quiet to end a runout.
const runoutSilenceFrames = 512

var ErrEmptyRender = errors.New("render: duration must be positive")

// RenderRequest selects a stretch of the score to render offline.
type RenderRequest struct {
	From     ticktime.Time
	Duration ticktime.Duration
	// Runout is the longest time to keep rendering after the score stretch
	// while sound decays. Zero stops right away.
	Runout time.Duration
	// Progress, when set, receives the completed fraction of the score stretch.
	Progress func(float64)
}

// RenderScore plays the score from req.From for req.Duration ticks into a
// 16-bit stereo WAV. The world must not be playing live at the same time.
func (w *World) RenderScore(out io.WriteSeeker, req RenderRequest) error {
	if req.Duration <= 0 {
		return ErrEmptyRender
	}
	w.transport.Stop()
	wav := intaudio.NewWAVWriter(out, w.cfg.sampleRate)
	buf := make([]float32, w.cfg.bufferFrames*2)

	end := req.From + req.Duration
	w.transport.Start(req.From)
	for w.transport.ProgramPosition() < end {
		if err := w.pull(wav, buf); err != nil {
			w.transport.Stop()
			return err
		}
		if req.Progress != nil {
			done := float64(w.transport.ProgramPosition()-req.From) / float64(req.Duration)
			req.Progress(min(max(done, 0), 1))
		}
	}
	w.transport.Stop()

	if err := w.runout(wav, buf, req.Runout); err != nil {
		return err
	}
	w.log.Info("rendered score", "from", req.From, "duration", int64(req.Duration), "frames", wav.Frames())
	return wav.Close()
}

// RenderCommand evaluates cmd and renders the following seconds of output.
func (w *World) RenderCommand(out io.WriteSeeker, cmd string, seconds float64) error {
	if !(seconds > 0) {
		return ErrEmptyRender
	}
	w.transport.Stop()
	wav := intaudio.NewWAVWriter(out, w.cfg.sampleRate)
	buf := make([]float32, w.cfg.bufferFrames*2)

	w.Eval(cmd)
	blocks := int(math.Ceil(seconds * float64(w.cfg.sampleRate) / float64(w.cfg.bufferFrames)))
	for range blocks {
		if err := w.pull(wav, buf); err != nil {
			return err
		}
	}
	w.log.Info("rendered command", "command", cmd, "frames", wav.Frames())
	return wav.Close()
}

func (w *World) pull(wav *intaudio.WAVWriter, buf []float32) error {
	w.Render(buf)
	if err := wav.Write(buf); err != nil {
		return fmt.Errorf("cannot write audio: %w", err)
	}
	return nil
}

// runout keeps rendering until the output has been quiet for
// runoutSilenceFrames or limit has passed.
func (w *World) runout(wav *intaudio.WAVWriter, buf []float32, limit time.Duration) error {
	if limit <= 0 {
		return nil
	}
	blocks := int(math.Ceil(limit.Seconds() * float64(w.cfg.sampleRate) / float64(w.cfg.bufferFrames)))
	silence := intaudio.SilenceCounter{Threshold: w.cfg.threshold, Channels: 2}
	for range blocks {
		if err := w.pull(wav, buf); err != nil {
			return err
		}
		silence.Feed(buf)
		if silence.Count >= runoutSilenceFrames {
			break
		}
	}
	return nil
}
