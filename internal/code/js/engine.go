// Package js runs scripts in JavaScript on the goja interpreter.
package js

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cbegin/plink-go/internal/audiosys"
	"github.com/cbegin/plink-go/internal/code"
	"github.com/cbegin/plink-go/internal/scheduler"
	"github.com/cbegin/plink-go/internal/ticktime"
	"github.com/dop251/goja"
	"gitlab.com/gomidi/midi/v2"
)

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.log = l } }

// WithEvalTimeout bounds how long a console command may run. Zero disables
// the limit.
func WithEvalTimeout(d time.Duration) Option { return func(e *Engine) { e.evalTimeout = d } }

// DefaultEvalTimeout limits console commands unless WithEvalTimeout says
// otherwise.
const DefaultEvalTimeout = 2 * time.Second

// ErrEvalTimeout is returned by EvalCommand when a command runs too long.
var ErrEvalTimeout = errors.New("js: command timed out")

// Engine is a code.Engine backed by a goja runtime. A mutex serializes the
// runtime between the console and scheduled callbacks.
type Engine struct {
	host        *code.Host
	delegate    code.Delegate
	log         *slog.Logger
	evalTimeout time.Duration

	mu  sync.Mutex
	vm  *goja.Runtime
	gen uint64
}

var _ code.Engine = (*Engine)(nil)

// New builds an engine with a fresh global environment.
func New(host *code.Host, d code.Delegate, opts ...Option) (*Engine, error) {
	if d == nil {
		d = code.DelegateFuncs{}
	}
	e := &Engine{host: host, delegate: d, log: slog.Default(), evalTimeout: DefaultEvalTimeout}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("component", "js")
	if err := e.ResetState(); err != nil {
		return nil, err
	}
	return e, nil
}

// Factory adapts New to code.NewEngineFunc.
func Factory(opts ...Option) code.NewEngineFunc {
	return func(host *code.Host, d code.Delegate) (code.Engine, error) {
		return New(host, d, opts...)
	}
}

func (e *Engine) ResetState() error {
	e.host.CancelAll()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gen++
	e.vm = goja.New()
	return e.setupLocked()
}

func (e *Engine) EvalScript(src string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.vm.RunString(src)
	return scriptError(err)
}

// EvalCommand runs a console command. A command still running after the
// eval timeout is interrupted and reported as ErrEvalTimeout.
func (e *Engine) EvalCommand(cmd string) (string, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evalTimeout > 0 {
		defer e.interruptAfter(e.evalTimeout)()
	}
	v, err := e.vm.RunString(cmd)
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		e.log.Warn("console command interrupted", "timeout", e.evalTimeout)
		return "", false, fmt.Errorf("%w after %s", ErrEvalTimeout, e.evalTimeout)
	}
	if err != nil {
		return "", false, scriptError(err)
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "", false, nil
	}
	return v.String(), true, nil
}

func (e *Engine) CallProcedure(name string, args ...any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn, ok := goja.AssertFunction(e.vm.Get(name))
	if !ok {
		return fmt.Errorf("%w: %s", code.ErrUnknownProcedure, name)
	}
	vals := make([]goja.Value, len(args))
	for i, a := range args {
		vals[i] = e.vm.ToValue(a)
	}
	_, err := fn(goja.Undefined(), vals...)
	return scriptError(err)
}

func (e *Engine) Set(name string, v any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vm.Set(name, v)
}

// interruptAfter arms an interrupt of the runtime. The returned func disarms
// it and leaves the runtime ready for the next run.
func (e *Engine) interruptAfter(d time.Duration) func() {
	vm := e.vm
	fired := make(chan struct{})
	t := time.AfterFunc(d, func() {
		vm.Interrupt(ErrEvalTimeout)
		close(fired)
	})
	return func() {
		if !t.Stop() {
			<-fired
		}
		vm.ClearInterrupt()
	}
}

// scriptError strips goja's wrapping from exceptions thrown by scripts.
func scriptError(err error) error {
	var exc *goja.Exception
	if errors.As(err, &exc) {
		return errors.New(exc.Error())
	}
	return err
}

// callback turns a script function into a Go func run later by the
// scheduler. It does nothing once the runtime it came from has been reset.
func (e *Engine) callback(fn goja.Callable) func(args ...any) {
	gen := e.gen
	return func(args ...any) {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.gen != gen {
			return
		}
		vals := make([]goja.Value, len(args))
		for i, a := range args {
			vals[i] = e.vm.ToValue(a)
		}
		if _, err := fn(goja.Undefined(), vals...); err != nil {
			e.delegate.ExceptionOccurred(scriptError(err).Error())
		}
	}
}

// throw raises err as a script exception.
func (e *Engine) throw(err error) {
	panic(e.vm.NewGoError(err))
}

func (e *Engine) function(v goja.Value) goja.Callable {
	fn, ok := goja.AssertFunction(v)
	if !ok {
		panic(e.vm.NewTypeError("expected a function"))
	}
	return fn
}

func (e *Engine) setupLocked() error {
	vm := e.vm
	vm.SetFieldNameMapper(goja.UncapFieldNameMapper())

	globals := map[string]any{
		"log": func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, a := range call.Arguments {
				parts[i] = a.String()
			}
			e.delegate.LogMessage(strings.Join(parts, " "))
			return goja.Undefined()
		},
		"channel":   e.channelFunc,
		"channels":  e.channelsFunc,
		"transport": e.transportObject(),
		"scheduler": e.schedulerObject(),
		"diag":      e.diagObject(),
	}
	for name, v := range globals {
		if err := vm.Set(name, v); err != nil {
			return err
		}
	}
	// older scripts spell these metronome and $diag
	if err := vm.Set("metronome", vm.Get("transport")); err != nil {
		return err
	}
	return vm.Set("$diag", vm.Get("diag"))
}

func (e *Engine) transportObject() *goja.Object {
	vm := e.vm
	o := vm.NewObject()
	getTempo := vm.ToValue(func() float64 { return e.host.Tempo() })
	setTempo := vm.ToValue(func(bpm float64) {
		if err := e.host.SetTempo(bpm); err != nil {
			e.throw(err)
		}
	})
	_ = o.DefineAccessorProperty("tempo", getTempo, setTempo, goja.FLAG_FALSE, goja.FLAG_TRUE)
	getPos := vm.ToValue(func() int64 { return int64(e.host.Position()) })
	_ = o.DefineAccessorProperty("position", getPos, nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	_ = o.Set("setTimeout", func(fn goja.Value, beats float64) goja.Value {
		cb := e.callback(e.function(fn))
		return e.handle(int64(e.host.SetTimeout(beats, func() { cb() })))
	})
	_ = o.Set("start", func() { e.host.Start() })
	_ = o.Set("stop", func() { e.host.Stop() })
	return o
}

func (e *Engine) schedulerObject() *goja.Object {
	vm := e.vm
	o := vm.NewObject()
	periodic := func(fn goja.Value) func(cycle int64, t ticktime.Time) {
		cb := e.callback(e.function(fn))
		return func(cycle int64, t ticktime.Time) { cb(cycle, int64(t)) }
	}
	_ = o.Set("everyTickMultiple", func(n int64, fn goja.Value) goja.Value {
		id, err := e.host.EveryTickMultiple(n, periodic(fn))
		if err != nil {
			e.throw(err)
		}
		return e.handle(int64(id))
	})
	// everyBeatFraction(denom, fn) or everyBeatFraction(num, denom, fn)
	_ = o.Set("everyBeatFraction", func(call goja.FunctionCall) goja.Value {
		num, denom, fn := int64(1), call.Argument(0).ToInteger(), call.Argument(1)
		if len(call.Arguments) > 2 {
			num, denom, fn = call.Argument(0).ToInteger(), call.Argument(1).ToInteger(), call.Argument(2)
		}
		id, err := e.host.EveryBeatFraction(num, denom, periodic(fn))
		if err != nil {
			e.throw(err)
		}
		return e.handle(int64(id))
	})
	_ = o.Set("atBeatTime", func(beat float64, fn goja.Value) goja.Value {
		cb := e.callback(e.function(fn))
		return e.handle(int64(e.host.AtBeatTime(beat, func() { cb() })))
	})
	_ = o.Set("atTickTime", func(tick int64, fn goja.Value) goja.Value {
		cb := e.callback(e.function(fn))
		return e.handle(int64(e.host.AtTickTime(ticktime.Time(tick), func() { cb() })))
	})
	_ = o.Set("cancel", func(id int64) { e.host.Cancel(scheduler.ActionID(id)) })
	return o
}

// handle is the script view of a scheduled action.
func (e *Engine) handle(id int64) goja.Value {
	o := e.vm.NewObject()
	_ = o.Set("id", id)
	_ = o.Set("cancel", func() { e.host.Cancel(scheduler.ActionID(id)) })
	return o
}

func (e *Engine) diagObject() *goja.Object {
	o := e.vm.NewObject()
	_ = o.Set("graph", func() string {
		s, err := e.host.GraphDump()
		if err != nil {
			e.throw(err)
		}
		return s
	})
	_ = o.Set("channels", func() string { return e.host.ChannelDump() })
	// gdump and cdump log instead of returning
	_ = o.Set("gdump", func() {
		s, err := e.host.GraphDump()
		if err != nil {
			e.throw(err)
		}
		e.delegate.LogMessage(strings.TrimRight(s, "\n"))
	})
	_ = o.Set("cdump", func() { e.delegate.LogMessage(strings.TrimRight(e.host.ChannelDump(), "\n")) })
	return o
}

func (e *Engine) channelFunc(name string) goja.Value {
	c, ok := e.host.Channel(name)
	if !ok {
		return goja.Null()
	}
	return e.channelObject(c)
}

func (e *Engine) channelsFunc() []any {
	env := e.host.Environment()
	if env.Audio == nil {
		return nil
	}
	var names []any
	for _, c := range env.Audio.Channels() {
		names = append(names, c.Name())
	}
	return names
}

func (e *Engine) channelObject(c *audiosys.Channel) *goja.Object {
	vm := e.vm
	o := vm.NewObject()
	send := func(msg midi.Message) {
		if err := c.Send(msg); err != nil {
			e.throw(err)
		}
	}
	_ = o.Set("name", c.Name())
	_ = o.Set("noteOn", func(note, velocity uint8) { send(midi.NoteOn(0, note&0x7f, velocity&0x7f)) })
	_ = o.Set("noteOff", func(note uint8) { send(midi.NoteOff(0, note&0x7f)) })
	_ = o.Set("cc", func(cc, value uint8) { send(midi.ControlChange(0, cc&0x7f, value&0x7f)) })
	_ = o.Set("program", func(p uint8) { send(midi.ProgramChange(0, p&0x7f)) })
	_ = o.Set("play", func(note, velocity uint8, dur int64) {
		if err := e.host.Play(c, note&0x7f, velocity&0x7f, ticktime.Duration(max(dur, 1))); err != nil {
			e.throw(err)
		}
	})
	_ = o.Set("setParam", func(name string, v float64) {
		if err := c.SetParam(name, v); err != nil {
			e.throw(err)
		}
	})
	_ = o.Set("getParam", func(name string) float64 {
		v, err := c.Param(name)
		if err != nil {
			e.throw(err)
		}
		return v
	})
	_ = o.Set("sendMIDIEvent", func(b1, b2, b3 uint8) {
		send(midi.Message{b1, b2 & 0x7f, b3 & 0x7f})
	})
	getGain := vm.ToValue(func() float64 { return c.Gain() })
	setGain := vm.ToValue(func(v float64) {
		if err := c.SetGain(v); err != nil {
			e.throw(err)
		}
	})
	_ = o.DefineAccessorProperty("gain", getGain, setGain, goja.FLAG_FALSE, goja.FLAG_TRUE)
	getPan := vm.ToValue(func() float64 { return c.Pan() })
	setPan := vm.ToValue(func(v float64) {
		if err := c.SetPan(v); err != nil {
			e.throw(err)
		}
	})
	_ = o.DefineAccessorProperty("pan", getPan, setPan, goja.FLAG_FALSE, goja.FLAG_TRUE)
	return o
}
