// Package lfo is the low-frequency oscillator shared by the chorus insert and
// instrument vibrato.
package lfo

import (
	"fmt"
	"math"
	"strings"
)

// Waveform selects the LFO shape.
type Waveform int

const (
	Saw Waveform = iota
	Square
	Triangle
	Random
	Sine
)

var waveNames = [...]string{"saw", "square", "triangle", "random", "sine"}

func (w Waveform) String() string {
	if w >= 0 && int(w) < len(waveNames) {
		return waveNames[w]
	}
	return fmt.Sprintf("Waveform(%d)", int(w))
}

// ParseWaveform accepts a waveform name.
func ParseWaveform(name string) (Waveform, error) {
	for i, n := range waveNames {
		if strings.EqualFold(strings.TrimSpace(name), n) {
			return Waveform(i), nil
		}
	}
	return Triangle, fmt.Errorf("unknown waveform %q", name)
}

// LFO produces per-sample modulation in [-depth, +depth]. The unit of depth
// belongs to the caller: semitones for vibrato, samples for chorus delay.
type LFO struct {
	depth   float64
	rateHz  float64
	wave    Waveform
	phase   float64 // [0, 1)
	randVal float64 // sample-and-hold value for Random
}

// Set configures the LFO. Unknown waveforms fall back to Triangle.
func (l *LFO) Set(depth, rateHz float64, wave Waveform) {
	l.depth = depth
	l.rateHz = rateHz
	if wave < Saw || wave > Sine {
		wave = Triangle
	}
	l.wave = wave
}

// Sample returns the current value and advances one sample. It returns 0
// while depth or rate is zero.
func (l *LFO) Sample(sampleRate float64) float64 {
	if !l.Active() || sampleRate == 0 {
		return 0
	}
	v := l.value()

	prev := l.phase
	l.phase += l.rateHz / sampleRate
	for l.phase >= 1 {
		l.phase--
	}
	if l.wave == Random && l.phase < prev {
		h := math.Sin(l.phase*12345.6789+l.randVal*67890.1234) * 2
		h -= math.Floor(h)
		l.randVal = h*2 - 1
	}
	return v * l.depth
}

func (l *LFO) value() float64 {
	switch l.wave {
	case Saw:
		return 1 - 2*l.phase
	case Square:
		if l.phase < 0.5 {
			return 1
		}
		return -1
	case Random:
		return l.randVal
	case Sine:
		return math.Sin(2 * math.Pi * l.phase)
	}
	if l.phase < 0.5 {
		return 4*l.phase - 1
	}
	return 3 - 4*l.phase
}

func (l *LFO) Active() bool { return l.depth != 0 && l.rateHz != 0 }

func (l *LFO) Reset() {
	l.phase = 0
	l.randVal = 0
}
