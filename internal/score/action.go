// Package score holds the cue list and cycle map of a piece, the
// copy-on-write Model that edits them, and the playback cursor and dispatcher
// that walk them in time.
package score

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrNoAction        = errors.New("score: missing code or procedure")
	ErrAmbiguousAction = errors.New("score: both code and procedure present")
)

// ActionKind tags a CuedAction.
type ActionKind uint8

const (
	// CodeStatement is arbitrary script text evaluated as-is.
	CodeStatement ActionKind = iota
	// CallProcedure names a script procedure called with ambient arguments.
	CallProcedure
)

func (k ActionKind) String() string {
	if k == CallProcedure {
		return "procedure"
	}
	return "code"
}

// CuedAction is what a cue or cycle does when it fires.
type CuedAction struct {
	Kind ActionKind
	Text string
}

var symbolPattern = regexp.MustCompile(`^[a-zA-Z$_][a-zA-Z0-9$_]*$`)

func Statement(code string) CuedAction { return CuedAction{Kind: CodeStatement, Text: code} }

func Procedure(name string) CuedAction { return CuedAction{Kind: CallProcedure, Text: name} }

// ParseAction trims text and classifies it: a bare identifier becomes a
// procedure call, anything else a statement.
func ParseAction(text string) CuedAction {
	text = strings.TrimSpace(text)
	if symbolPattern.MatchString(text) {
		return Procedure(text)
	}
	return Statement(text)
}

func (a CuedAction) String() string {
	if a.Kind == CallProcedure {
		return a.Text + "()"
	}
	return a.Text
}

// actionFields is the serialized form: exactly one key is set.
type actionFields struct {
	Code      *string `json:"code,omitempty" yaml:"code,omitempty"`
	Procedure *string `json:"procedure,omitempty" yaml:"procedure,omitempty"`
}

func (a CuedAction) fields() actionFields {
	text := a.Text
	if a.Kind == CallProcedure {
		return actionFields{Procedure: &text}
	}
	return actionFields{Code: &text}
}

func (f actionFields) action() (CuedAction, error) {
	switch {
	case f.Code != nil && f.Procedure != nil:
		return CuedAction{}, ErrAmbiguousAction
	case f.Code != nil:
		return Statement(*f.Code), nil
	case f.Procedure != nil:
		return Procedure(*f.Procedure), nil
	}
	return CuedAction{}, ErrNoAction
}
