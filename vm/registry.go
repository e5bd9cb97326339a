package vm

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/tolelom/tolchallenge/core"
)

// Handler is the function signature every transaction module must implement.
type Handler func(ctx *Context, payload json.RawMessage) error

// Module is implemented by transaction modules that register their handlers
// into a Registry at node start-up.
type Module interface {
	Register(r *Registry)
}

// Registry maps TxTypes to Handlers. Thread-safe for concurrent registration.
type Registry struct {
	mu       sync.RWMutex
	handlers map[core.TxType]Handler
}

// NewRegistry creates a Registry with the given modules registered.
func NewRegistry(modules ...Module) *Registry {
	r := &Registry{handlers: make(map[core.TxType]Handler)}
	for _, m := range modules {
		m.Register(r)
	}
	return r
}

// Register associates typ with h. Panics on duplicate registration.
func (r *Registry) Register(typ core.TxType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[typ]; exists {
		panic(fmt.Sprintf("vm: handler already registered for TxType %q", typ))
	}
	r.handlers[typ] = h
}

// Types lists every registered TxType in sorted order.
func (r *Registry) Types() []core.TxType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]core.TxType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Execute dispatches payload to the handler registered for typ.
func (r *Registry) Execute(typ core.TxType, ctx *Context, payload json.RawMessage) error {
	r.mu.RLock()
	h, ok := r.handlers[typ]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("vm: no handler registered for TxType %q", typ)
	}
	return h(ctx, payload)
}
