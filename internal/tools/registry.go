package tools

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrDuplicateTool   = errors.New("duplicate tool name")
	ErrInvalidToolName = errors.New("invalid tool name")
)

var validName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Registry is an immutable set of tools keyed by name. Build it once with
// NewRegistry and share it freely between requests.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry validates and indexes the given tools. Names must match
// [A-Za-z0-9_]+ and be unique.
func NewRegistry(ts ...Tool) (*Registry, error) {
	r := &Registry{
		tools: make(map[string]Tool, len(ts)),
		order: make([]string, 0, len(ts)),
	}
	for _, t := range ts {
		if t == nil {
			continue
		}
		name := t.Name()
		if !validName.MatchString(name) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidToolName, name)
		}
		if _, dup := r.tools[name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateTool, name)
		}
		r.tools[name] = t
		r.order = append(r.order, name)
	}
	return r, nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	if r == nil {
		return nil, false
	}
	t, ok := r.tools[name]
	return t, ok
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len reports how many tools are registered.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// Catalogue renders the plain-text tool listing embedded in the system
// prompt, one tool per line.
func (r *Registry) Catalogue() string {
	if r.Len() == 0 {
		return ""
	}
	var b strings.Builder
	for _, name := range r.order {
		t := r.tools[name]
		fmt.Fprintf(&b, "- %s(%s): %s\n", name, strings.Join(t.Params(), ", "), t.Description())
	}
	return strings.TrimRight(b.String(), "\n")
}
