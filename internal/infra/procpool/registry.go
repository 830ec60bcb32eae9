package procpool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Handler runs one task invocation inside a child process.
type Handler func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)

// Registry maps task names to handlers. A child can only run tasks that were
// registered before Serve was called.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds h under name. Names must be unique and non-empty.
func (r *Registry) Register(name string, h Handler) error {
	if name == "" {
		return fmt.Errorf("register task: empty name")
	}
	if h == nil {
		return fmt.Errorf("register task %q: nil handler", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("register task %q: already registered", name)
	}
	r.handlers[name] = h
	return nil
}

// Lookup returns the handler registered under name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns the registered task names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handle adapts a typed function to a Handler. Arguments and results travel
// as JSON, so T and R must round-trip through encoding/json.
func Handle[T, R any](fn func(context.Context, T) (R, error)) Handler {
	return func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
		var in T
		if err := json.Unmarshal(payload, &in); err != nil {
			return nil, fmt.Errorf("decode argument: %w", err)
		}
		out, err := fn(ctx, in)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("encode result: %w", err)
		}
		return data, nil
	}
}
