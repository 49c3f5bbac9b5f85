// Package audio connects a pull-model renderer to the outside world: the
// live ebiten output, WAV files and silence detection.
package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

// Renderer fills interleaved stereo frames on demand.
type Renderer interface {
	Render(out []float32)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(out []float32)

func (f RendererFunc) Render(out []float32) { f(out) }

// StreamReader presents a Renderer as a stream of little-endian float32
// stereo frames. Each Read renders exactly the frames asked for.
type StreamReader struct {
	mu     sync.Mutex
	source Renderer
	buf    []float32
	frames int64
	closed bool
}

func NewStreamReader(source Renderer) *StreamReader {
	return &StreamReader{source: source}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, io.EOF
	}

	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	r.source.Render(r.buf)
	for i, v := range r.buf {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(v))
	}
	r.frames += int64(frames)
	return frames * 8, nil
}

// Frames is the number of frames rendered so far.
func (r *StreamReader) Frames() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Close makes further reads return io.EOF.
func (r *StreamReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Player streams a Renderer to the default output device.
type Player struct {
	player *ebitaudio.Player
	reader *StreamReader
}

var (
	audioContextOnce sync.Once
	audioContext     *ebitaudio.Context
	audioSampleRate  int
)

// ebiten allows one context per process.
func sharedAudioContext(sampleRate int) (*ebitaudio.Context, error) {
	audioContextOnce.Do(func() {
		audioSampleRate = sampleRate
		audioContext = ebitaudio.NewContext(sampleRate)
	})
	if audioSampleRate != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", audioSampleRate, sampleRate)
	}
	return audioContext, nil
}

// NewPlayer opens the output at sampleRate. bufferFrames sizes the device
// buffer; zero keeps ebiten's default.
func NewPlayer(sampleRate, bufferFrames int, source Renderer) (*Player, error) {
	ctx, err := sharedAudioContext(sampleRate)
	if err != nil {
		return nil, err
	}
	reader := NewStreamReader(source)
	pl, err := ctx.NewPlayerF32(reader)
	if err != nil {
		return nil, fmt.Errorf("cannot open audio output: %w", err)
	}
	if bufferFrames > 0 {
		pl.SetBufferSize(time.Duration(bufferFrames) * time.Second / time.Duration(sampleRate))
	}
	return &Player{player: pl, reader: reader}, nil
}

func (p *Player) Play()  { p.player.Play() }
func (p *Player) Pause() { p.player.Pause() }
func (p *Player) IsPlaying() bool {
	return p.player.IsPlaying()
}

// Position returns the current playback position (what the listener actually hears).
func (p *Player) Position() time.Duration {
	return p.player.Position()
}

// Frames is the number of frames pulled from the renderer.
func (p *Player) Frames() int64 { return p.reader.Frames() }

func (p *Player) Close() error {
	p.player.Pause()
	if err := p.player.Close(); err != nil {
		return err
	}
	return p.reader.Close()
}
