// Package tools provides the tool catalog: the set of callable tools
// exposed to the reasoning model, both built-in and bridged from remote
// servers.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mnemo-agent/mnemo/internal/llm"
)

// Handler executes a tool call. Arguments arrive as a decoded JSON
// object. The returned string is fed back to the model verbatim.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Tool is one entry in the catalog.
type Tool struct {
	Name        string
	Description string
	// Parameters is a JSON Schema object describing the arguments.
	Parameters map[string]any
	Handler    Handler
}

// ErrDuplicateTool is returned when a tool name is registered twice.
// Names are global; a collision means the model could not address one
// of the tools unambiguously, so registration fails instead.
var ErrDuplicateTool = errors.New("tools: duplicate tool name")

// ErrUnknownTool is returned by Resolve for names not in the catalog.
var ErrUnknownTool = errors.New("tools: unknown tool")

// Registry holds the tool catalog. Registration order is preserved so
// the model always sees a stable tool list.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
	order []string
}

// NewRegistry creates an empty catalog.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool to the catalog. Names must be unique across all
// sources; registering a duplicate returns ErrDuplicateTool.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tools: tool has no name")
	}
	if t.Handler == nil {
		return fmt.Errorf("tools: tool %q has no handler", t.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateTool, t.Name)
	}
	r.tools[t.Name] = &t
	r.order = append(r.order, t.Name)
	return nil
}

// Resolve looks up a tool by name.
func (r *Registry) Resolve(name string) (*Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return t, nil
}

// List returns all tools in registration order.
func (r *Registry) List() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Tool, len(r.order))
	for i, name := range r.order {
		out[i] = r.tools[name]
	}
	return out
}

// Len returns the catalog size.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Schemas returns the catalog in the shape reasoning providers expect,
// in registration order.
func (r *Registry) Schemas() []llm.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]llm.ToolSchema, len(r.order))
	for i, name := range r.order {
		t := r.tools[name]
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out[i] = llm.ToolSchema{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  params,
		}
	}
	return out
}
