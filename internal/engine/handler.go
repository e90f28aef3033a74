// Package engine contains the execution machinery: the handler registry,
// the per-run interpreter loop, the execution store and the prompt broker.
package engine

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gemihub/gemiflow/internal/expressions"
	"github.com/gemihub/gemiflow/internal/services"
	"github.com/gemihub/gemiflow/pkg/schema"
)

// Services bundles the external collaborators and expression engines the
// handlers draw on. Wired once at startup.
type Services struct {
	Drive      services.Drive
	Workspace  services.Workspace
	MCP        services.MCPCaller
	HTTPClient *http.Client
	Conditions *expressions.CELEngine
	Arithmetic *expressions.ExprEngine
	JQ         *expressions.GoJQEngine
}

// Result is the outcome of one node dispatch.
type Result struct {
	// Input is the node's resolved input, recorded on the step. Handlers
	// fill it with the property values after template resolution.
	Input any
	// Output is the node's produced value, bound into the variable scope
	// under SaveTo when SaveTo is non-empty.
	Output any
	SaveTo string
	// Branch selects the successor edge label for if/while nodes.
	Branch string
	// Summary is a short human-readable message for the step log.
	Summary string
}

// NodeContext is everything a handler may touch while executing one node.
// Variables is the execution's live scope; handlers run on the interpreter
// goroutine, so reads and writes need no locking.
type NodeContext struct {
	ExecutionID string
	Node        *schema.Node
	Variables   map[string]any
	Services    *Services
	Logger      *slog.Logger

	// Publish emits an out-of-band event on the execution stream.
	Publish func(event schema.Event)
	// SetStatus transitions the execution status and emits a status event.
	SetStatus func(status schema.ExecutionStatus)
	// AwaitPrompt parks until an external response arrives or ctx ends.
	AwaitPrompt func(ctx context.Context) (any, error)
	// RunWorkflow executes another workflow as a nested run and returns its
	// final variable scope.
	RunWorkflow func(ctx context.Context, workflowID string, input map[string]any) (map[string]any, error)
}

// Handler executes nodes of a single kind.
type Handler interface {
	Kind() schema.NodeType
	Execute(ctx context.Context, nc *NodeContext) (*Result, error)
}

// Registry maps node kinds to their handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[schema.NodeType]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[schema.NodeType]Handler)}
}

// Register adds a handler. Registering the same kind twice is an error.
func (r *Registry) Register(h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[h.Kind()]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "handler for %q already registered", h.Kind())
	}
	r.handlers[h.Kind()] = h
	return nil
}

// MustRegister registers a set of handlers, panicking on duplicates. Used
// in wiring code where a duplicate is a programming error.
func (r *Registry) MustRegister(handlers ...Handler) {
	for _, h := range handlers {
		if err := r.Register(h); err != nil {
			panic(err)
		}
	}
}

// Get returns the handler for a node kind.
func (r *Registry) Get(t schema.NodeType) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	return h, ok
}

// Kinds lists the registered node kinds.
func (r *Registry) Kinds() []schema.NodeType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]schema.NodeType, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	return out
}
