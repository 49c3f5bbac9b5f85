package document

import (
	"fmt"
	"maps"
	"slices"
)

// Migration upgrades a decoded document to Version.
type Migration struct {
	Version Version
	Apply   func(doc map[string]any) error
}

// Migrations are applied in order to documents older than their version.
var Migrations = []Migration{
	{V1_1_0, renameTransportToMetronome},
	{V1_2_0, cyclesAsList},
}

// Migrate upgrades doc in place to Current and returns the version it was
// written at.
func Migrate(doc map[string]any) (Version, error) {
	v, ok := versionOf(doc["documentVersion"])
	if !ok {
		return 0, ErrUnversioned
	}
	if v > Current {
		return v, fmt.Errorf("%w: %s > %s", ErrFutureVersion, v, Current)
	}
	for _, m := range Migrations {
		if m.Version <= v || m.Version > Current {
			continue
		}
		if err := m.Apply(doc); err != nil {
			return v, fmt.Errorf("cannot migrate to %s: %w", m.Version, err)
		}
	}
	doc["documentVersion"] = int64(Current)
	return v, nil
}

func versionOf(x any) (Version, bool) {
	switch n := x.(type) {
	case int:
		return Version(n), true
	case int64:
		return Version(n), true
	case uint64:
		return Version(n), true
	case float64:
		return Version(n), n == float64(int64(n))
	}
	return 0, false
}

// 1.1.0 renamed the transport section.
func renameTransportToMetronome(doc map[string]any) error {
	if t, ok := doc["transport"]; ok {
		doc["metronome"] = t
		delete(doc, "transport")
	}
	return nil
}

// 1.2.0 stores cycles as a name-ordered list with an explicit isActive, and
// the console scrollback as entries rather than one string.
func cyclesAsList(doc map[string]any) error {
	if s, ok := doc["score"].(map[string]any); ok {
		list, err := cycleList(s["cycles"])
		if err != nil {
			return err
		}
		s["cycles"] = list
	}
	if cs, ok := doc["codeSystem"].(map[string]any); ok {
		if text, ok := cs["scrollback"].(string); ok {
			entries := []any{}
			if text != "" {
				entries = append(entries, map[string]any{"kind": "log", "text": text})
			}
			cs["scrollback"] = entries
		}
	}
	return nil
}

func cycleList(v any) ([]any, error) {
	var list []any
	switch c := v.(type) {
	case nil:
		return []any{}, nil
	case []any:
		list = c
	case map[string]any:
		for _, name := range slices.Sorted(maps.Keys(c)) {
			m, ok := c[name].(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: cycle %q", ErrMalformed, name)
			}
			if _, named := m["name"]; !named {
				m["name"] = name
			}
			list = append(list, m)
		}
	default:
		return nil, fmt.Errorf("%w: cycles", ErrMalformed)
	}
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			if _, set := m["isActive"]; !set {
				m["isActive"] = true
			}
		}
	}
	if list == nil {
		list = []any{}
	}
	return list, nil
}
