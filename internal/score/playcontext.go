package score

import (
	"sync/atomic"

	"github.com/cbegin/plink-go/internal/ticktime"
)

// CueSource supplies the current cue list.
type CueSource interface {
	CueList() CueList
}

// PlayContext is the cursor of one playback session. Every cue before the
// cursor has been returned by NextCue or skipped by Advance; none after it
// has. A PlayContext belongs to the goroutine that plays it, except for
// MarkCueListChanged.
type PlayContext struct {
	src     CueSource
	cues    CueList
	cursor  int
	current ticktime.Time
	stale   atomic.Bool
}

// NewPlayContext starts a session at start, with the cursor on the first cue
// not before start.
func NewPlayContext(src CueSource, start ticktime.Time) *PlayContext {
	cues := src.CueList()
	return &PlayContext{
		src:     src,
		cues:    cues,
		cursor:  cues.Seek(0, start),
		current: start,
	}
}

func (p *PlayContext) CurrentTime() ticktime.Time { return p.current }

func (p *PlayContext) Cursor() int { return p.cursor }

// Advance moves past every cue earlier than to. It never moves backward.
func (p *PlayContext) Advance(to ticktime.Time) {
	p.refresh()
	if to < p.current {
		return
	}
	p.current = to
	if i := p.cues.Seek(p.cursor, to); i > p.cursor {
		p.cursor = i
	}
}

// NextCue returns the cue at the cursor if it is due by t, and steps past it.
func (p *PlayContext) NextCue(t ticktime.Time) (Cue, bool) {
	p.refresh()
	if p.cursor >= len(p.cues) || p.cues[p.cursor].Time > t {
		return Cue{}, false
	}
	c := p.cues[p.cursor]
	p.cursor++
	return c, true
}

// AdjustForCueListChange reloads the cue list from the source and re-seeks
// the cursor, from where it was, to the first cue not before the current time.
func (p *PlayContext) AdjustForCueListChange() {
	p.stale.Store(false)
	p.cues = p.src.CueList()
	p.cursor = p.cues.Seek(min(p.cursor, len(p.cues)), p.current)
}

// MarkCueListChanged may be called from any goroutine. The adjustment happens
// on the playing goroutine at its next Advance or NextCue.
func (p *PlayContext) MarkCueListChanged() { p.stale.Store(true) }

func (p *PlayContext) refresh() {
	if p.stale.Load() {
		p.AdjustForCueListChange()
	}
}
