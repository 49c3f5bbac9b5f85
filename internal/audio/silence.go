package audio

import "math"

// TrailingSilence counts the frames at the end of an interleaved buffer
// whose every channel is quieter than threshold.
func TrailingSilence(buf []float32, channels int, threshold float32) int {
	if channels < 1 {
		return 0
	}
	n := 0
	for i := len(buf)/channels - 1; i >= 0; i-- {
		for _, v := range buf[i*channels : (i+1)*channels] {
			if float32(math.Abs(float64(v))) >= threshold {
				return n
			}
		}
		n++
	}
	return n
}

// SilenceCounter tracks how many consecutive quiet frames end the stream fed
// to it so far.
type SilenceCounter struct {
	Count     int
	Threshold float32
	Channels  int
}

// Feed accounts for the next block of frames.
func (c *SilenceCounter) Feed(buf []float32) {
	tail := TrailingSilence(buf, c.Channels, c.Threshold)
	if tail == len(buf)/max(c.Channels, 1) {
		c.Count += tail
	} else {
		c.Count = tail
	}
}
