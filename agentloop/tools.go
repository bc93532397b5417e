package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/martinemde/sfagent/unifiedllm"
)

// ToolHandler executes a tool. args have already been validated against the
// tool's schema. Handlers must honor ctx; the executor stops waiting for a
// handler once ctx is done.
type ToolHandler func(ctx context.Context, args map[string]any) (any, error)

// ToolDefinition pairs the schema advertised to the model with its handler.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  *unifiedllm.Schema
	Handler     ToolHandler
}

// Advertised returns the serializable projection sent to providers.
func (d ToolDefinition) Advertised() unifiedllm.ToolDefinition {
	params := d.Parameters
	if params == nil {
		params = unifiedllm.Object(nil)
	}
	return unifiedllm.ToolDefinition{Name: d.Name, Description: d.Description, Parameters: params}
}

// ToolRegistry holds tool definitions by name and lists them in
// registration order. It is safe for concurrent use.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]ToolDefinition
	order []string
}

// NewToolRegistry creates an empty ToolRegistry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]ToolDefinition)}
}

// Register adds a tool. Names are unique; registering a taken name returns
// *DuplicateToolError and leaves the existing definition in place.
func (r *ToolRegistry) Register(def ToolDefinition) error {
	if def.Name == "" {
		return &InvalidToolError{Reason: "name is empty"}
	}
	if def.Handler == nil {
		return &InvalidToolError{Name: def.Name, Reason: "handler is nil"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists {
		return &DuplicateToolError{Name: def.Name}
	}
	r.tools[def.Name] = def
	r.order = append(r.order, def.Name)
	return nil
}

// Unregister removes a tool and reports whether it was present.
func (r *ToolRegistry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; !ok {
		return false
	}
	delete(r.tools, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns the tool registered under name, or *UnknownToolError.
func (r *ToolRegistry) Get(name string) (ToolDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	if !ok {
		return ToolDefinition{}, &UnknownToolError{Name: name}
	}
	return def, nil
}

// List returns all tools in registration order.
func (r *ToolRegistry) List() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name])
	}
	return defs
}

// Definitions returns the advertised listing in registration order.
func (r *ToolRegistry) Definitions() []unifiedllm.ToolDefinition {
	list := r.List()
	defs := make([]unifiedllm.ToolDefinition, len(list))
	for i, def := range list {
		defs[i] = def.Advertised()
	}
	return defs
}

// Names returns tool names in registration order.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Count returns the number of registered tools.
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// NewTypedTool builds a tool whose schema is reflected from T and whose
// arguments are decoded into a T before fn runs.
func NewTypedTool[T any](name, description string, fn func(ctx context.Context, args T) (any, error)) ToolDefinition {
	return ToolDefinition{
		Name:        name,
		Description: description,
		Parameters:  unifiedllm.SchemaFor[T](),
		Handler: func(ctx context.Context, raw map[string]any) (any, error) {
			var args T
			data, err := json.Marshal(raw)
			if err != nil {
				return nil, fmt.Errorf("encode arguments: %w", err)
			}
			if err := json.Unmarshal(data, &args); err != nil {
				return nil, fmt.Errorf("decode arguments: %w", err)
			}
			return fn(ctx, args)
		},
	}
}

// GetStringArg extracts a string argument.
func GetStringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetIntArg extracts an integer argument. JSON numbers arrive as float64.
func GetIntArg(args map[string]any, key string) (int, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

// GetBoolArg extracts a boolean argument.
func GetBoolArg(args map[string]any, key string) (bool, bool) {
	v, ok := args[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}
