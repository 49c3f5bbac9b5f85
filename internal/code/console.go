package code

import (
	"slices"
	"sync"
)

// EntryKind tells console lines apart.
type EntryKind string

const (
	EntryCommand   EntryKind = "command"
	EntryResult    EntryKind = "result"
	EntryLog       EntryKind = "log"
	EntryException EntryKind = "exception"
)

// Entry is one console line.
type Entry struct {
	Kind EntryKind `yaml:"kind" json:"kind"`
	Text string    `yaml:"text" json:"text"`
}

// DefaultScrollback is the number of entries a Console keeps.
const DefaultScrollback = 500

// Console is a Delegate that records a bounded scrollback of commands,
// results, log output and exceptions.
type Console struct {
	mu       sync.Mutex
	entries  []Entry
	limit    int
	onAppend []func(Entry)
}

func NewConsole(limit int) *Console {
	if limit <= 0 {
		limit = DefaultScrollback
	}
	return &Console{limit: limit}
}

// OnAppend registers fn to see each new entry.
func (c *Console) OnAppend(fn func(Entry)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAppend = append(c.onAppend, fn)
}

func (c *Console) append(e Entry) {
	c.mu.Lock()
	c.entries = append(c.entries, e)
	if over := len(c.entries) - c.limit; over > 0 {
		c.entries = slices.Delete(c.entries, 0, over)
	}
	observers := c.onAppend
	c.mu.Unlock()
	for _, fn := range observers {
		fn(e)
	}
}

func (c *Console) LogMessage(msg string)        { c.append(Entry{EntryLog, msg}) }
func (c *Console) ExceptionOccurred(msg string) { c.append(Entry{EntryException, msg}) }

// Entries returns a copy of the scrollback, oldest first.
func (c *Console) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.entries)
}

// Load replaces the scrollback, keeping the newest entries that fit.
func (c *Console) Load(entries []Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if over := len(entries) - c.limit; over > 0 {
		entries = entries[over:]
	}
	c.entries = slices.Clone(entries)
}

// Eval records cmd, evaluates it and records the result or the error.
func (c *Console) Eval(e Engine, cmd string) (string, bool, error) {
	c.append(Entry{EntryCommand, cmd})
	res, ok, err := e.EvalCommand(cmd)
	switch {
	case err != nil:
		c.append(Entry{EntryException, err.Error()})
	case ok:
		c.append(Entry{EntryResult, res})
	}
	return res, ok, err
}
