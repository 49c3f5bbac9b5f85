// Package ticktime defines the discrete musical clock shared by every
// time-aware component: an integer count of ticks, 24 to the beat.
package ticktime

import (
	"fmt"
	"time"
)

// TicksPerBeat partitions ticks into beats.
const TicksPerBeat = 24

// Time is a count of ticks since an arbitrary epoch.
//
// Beats and SubTick use Go's truncated division, so a negative Time
// decomposes into a non-positive beat count and a non-positive sub-tick.
type Time int64

// Duration is a span of ticks. It shares Time's representation so the two
// can be mixed freely in arithmetic.
type Duration = Time

// FromBeats builds a Time from a beat count plus extra ticks.
func FromBeats(beats, ticks int) Time {
	return Time(beats)*TicksPerBeat + Time(ticks)
}

func (t Time) Add(d Duration) Time { return t + d }
func (t Time) Sub(d Duration) Time { return t - d }

// Beats returns the whole beats contained in t.
func (t Time) Beats() int { return int(t / TicksPerBeat) }

// SubTick returns the ticks past the last whole beat.
func (t Time) SubTick() int { return int(t % TicksPerBeat) }

// String formats t as "beat∙tick".
func (t Time) String() string {
	return fmt.Sprintf("%d∙%d", t.Beats(), t.SubTick())
}

// Compare orders two times the way cmp.Compare does.
func Compare(a, b Time) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// TickSeconds is the wall-clock length of one tick at the given tempo.
func TickSeconds(bpm float64) float64 {
	return 60 / bpm / TicksPerBeat
}

// TickDuration is TickSeconds as a time.Duration.
func TickDuration(bpm float64) time.Duration {
	return time.Duration(TickSeconds(bpm) * float64(time.Second))
}

// Timed pairs a value with the tick it belongs to.
type Timed[V any] struct {
	At    Time
	Value V
}

// Less orders Timed values by time only.
func Less[V any](a, b Timed[V]) bool { return a.At < b.At }
