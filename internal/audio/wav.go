package audio

import (
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVWriter encodes interleaved float stereo frames as 16-bit PCM.
type WAVWriter struct {
	enc    *wav.Encoder
	buf    *goaudio.IntBuffer
	frames int64
}

const pcmFormat = 1

// NewWAVWriter writes a stereo WAV to w. Close finalizes the headers but
// does not close w.
func NewWAVWriter(w io.WriteSeeker, sampleRate int) *WAVWriter {
	return &WAVWriter{
		enc: wav.NewEncoder(w, sampleRate, 16, 2, pcmFormat),
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: 2, SampleRate: sampleRate},
			SourceBitDepth: 16,
		},
	}
}

// Write appends a block of interleaved frames, clipping to ±1.
func (w *WAVWriter) Write(frames []float32) error {
	if cap(w.buf.Data) < len(frames) {
		w.buf.Data = make([]int, len(frames))
	}
	w.buf.Data = w.buf.Data[:len(frames)]
	for i, v := range frames {
		w.buf.Data[i] = int(max(-1, min(1, v)) * 32767)
	}
	w.frames += int64(len(frames) / 2)
	return w.enc.Write(w.buf)
}

// Frames is the number of frames written.
func (w *WAVWriter) Frames() int64 { return w.frames }

func (w *WAVWriter) Close() error { return w.enc.Close() }
