package score

import (
	"log/slog"
	"sync/atomic"

	"github.com/cbegin/plink-go/internal/ticktime"
	"github.com/cbegin/plink-go/internal/transport"
)

// Runner executes cued actions. Cues pass their time as the argument; cycles
// pass the cycle index and the time.
type Runner interface {
	RunAction(a CuedAction, args ...any)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(a CuedAction, args ...any)

func (f RunnerFunc) RunAction(a CuedAction, args ...any) { f(a, args...) }

// Performer is the transport client that plays a Model: at each program tick
// it runs the cues due, then the active cycles due, in name order.
type Performer struct {
	model  *Model
	runner Runner
	log    *slog.Logger
	ctx    atomic.Pointer[PlayContext]
}

func NewPerformer(model *Model, runner Runner, log *slog.Logger) *Performer {
	if log == nil {
		log = slog.Default()
	}
	p := &Performer{model: model, runner: runner, log: log.With("component", "performer")}
	model.OnCueListChanged(func(*Score) {
		if ctx := p.ctx.Load(); ctx != nil {
			ctx.MarkCueListChanged()
		}
	})
	return p
}

// TransportStateChanged opens a PlayContext when a session starts running and
// drops it when the transport stops.
func (p *Performer) TransportStateChanged(ch transport.Change) {
	switch ch.To {
	case transport.Running:
		p.ctx.Store(NewPlayContext(p.model, ch.At))
	case transport.Stopped:
		p.ctx.Store(nil)
	}
}

// Session returns the active PlayContext, if any.
func (p *Performer) Session() *PlayContext { return p.ctx.Load() }

func (p *Performer) TransportTick(t ticktime.Time) {
	ctx := p.ctx.Load()
	if ctx == nil {
		ctx = NewPlayContext(p.model, t)
		p.ctx.Store(ctx)
	}
	for {
		c, ok := ctx.NextCue(t)
		if !ok {
			break
		}
		p.run(c.Action, int64(c.Time))
	}
	ctx.Advance(t + 1)

	for _, c := range p.model.Snapshot().OrderedCycles() {
		if n, ok := c.Due(t); ok {
			p.run(c.Action, n, int64(t))
		}
	}
}

func (p *Performer) run(a CuedAction, args ...any) {
	defer func() {
		if v := recover(); v != nil {
			p.log.Error("cued action panicked", "action", a.String(), "panic", v)
		}
	}()
	p.runner.RunAction(a, args...)
}
