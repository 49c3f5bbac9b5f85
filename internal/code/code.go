// Package code is the contract between the workstation and an embedded
// scripting language: the engine interface, the host API scripts reach
// through, and the adapters that let cues and the console drive an engine.
package code

import (
	"errors"

	"github.com/cbegin/plink-go/internal/score"
)

var (
	ErrInvalidInterval  = errors.New("code: interval must be at least one tick")
	ErrUnknownProcedure = errors.New("code: no such procedure")
)

// Delegate receives console output and script exceptions.
type Delegate interface {
	LogMessage(msg string)
	ExceptionOccurred(msg string)
}

// Engine is a stateful interpreter. Implementations serialize calls, so
// methods may be used from the render goroutine and the console at once.
type Engine interface {
	// ResetState discards every definition and every action the scripts
	// scheduled, then rebuilds the global environment.
	ResetState() error
	// EvalScript runs a block of statements for their side effects.
	EvalScript(src string) error
	// EvalCommand runs one expression. ok is false when it produced no value.
	EvalCommand(cmd string) (result string, ok bool, err error)
	CallProcedure(name string, args ...any) error
	Set(name string, v any) error
}

// NewEngineFunc builds an engine over env that reports to d.
type NewEngineFunc func(env *Host, d Delegate) (Engine, error)

// Run executes a cued action: statements are evaluated as commands,
// procedures are called with args.
func Run(e Engine, a score.CuedAction, args ...any) error {
	switch a.Kind {
	case score.CallProcedure:
		return e.CallProcedure(a.Text, args...)
	default:
		_, _, err := e.EvalCommand(a.Text)
		return err
	}
}

// Runner plays cued actions on an engine, reporting failures to the delegate
// so the tick that triggered them carries on.
type Runner struct {
	Engine   Engine
	Delegate Delegate
}

func (r Runner) RunAction(a score.CuedAction, args ...any) {
	if err := Run(r.Engine, a, args...); err != nil && r.Delegate != nil {
		r.Delegate.ExceptionOccurred(err.Error())
	}
}

// DelegateFuncs adapts a pair of functions to Delegate. Nil fields discard.
type DelegateFuncs struct {
	Log       func(string)
	Exception func(string)
}

func (d DelegateFuncs) LogMessage(msg string) {
	if d.Log != nil {
		d.Log(msg)
	}
}

func (d DelegateFuncs) ExceptionOccurred(msg string) {
	if d.Exception != nil {
		d.Exception(msg)
	}
}

// Fanout forwards to every delegate in order.
type Fanout []Delegate

func (f Fanout) LogMessage(msg string) {
	for _, d := range f {
		d.LogMessage(msg)
	}
}

func (f Fanout) ExceptionOccurred(msg string) {
	for _, d := range f {
		d.ExceptionOccurred(msg)
	}
}
