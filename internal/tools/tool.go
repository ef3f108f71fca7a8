package tools

import (
	"context"
	"fmt"
)

// Tool defines the interface for all agent capabilities, remote or builtin.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any // JSON Schema for the tool's inputs
	Execute(ctx context.Context, input string) (string, error)
}

// Registry manages the set of available tools. Names are unique for the
// session; a collision at registration time is a fatal startup condition.
type Registry struct {
	byName map[string]Tool
	order  []string
}

func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Tool),
	}
}

func (r *Registry) Register(t Tool) error {
	if _, exists := r.byName[t.Name()]; exists {
		return fmt.Errorf("duplicate tool name %q", t.Name())
	}
	r.byName[t.Name()] = t
	r.order = append(r.order, t.Name())
	return nil
}

func (r *Registry) Get(name string) Tool {
	return r.byName[name]
}

// All returns the tools in registration order.
func (r *Registry) All() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

func (r *Registry) Len() int {
	return len(r.order)
}
