package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"twind/internal/types"
)

// Registry holds all registered tools and routes calls to their handlers.
// It is thread-safe; beyond the handler table it holds no state.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
	log   *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		tools: make(map[string]*Tool),
		log:   log.Named("tools"),
	}
}

// Register adds a tool. Duplicate and malformed definitions are rejected
// eagerly, at startup, rather than at call time.
func (r *Registry) Register(tool *Tool) error {
	if err := tool.Validate(); err != nil {
		return fmt.Errorf("invalid tool: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, tool.Name)
	}
	r.tools[tool.Name] = tool

	r.log.Debug("registered tool", zap.String("name", tool.Name))
	return nil
}

// MustRegister registers a tool and panics on error.
// Use for static registration at startup.
func (r *Registry) MustRegister(tool *Tool) {
	if err := r.Register(tool); err != nil {
		panic(fmt.Sprintf("failed to register tool %s: %v", tool.Name, err))
	}
}

// Get returns a tool by name, or nil if not found.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	return r.Get(name) != nil
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Dispatch routes a tool call to its handler.
//
// Arguments are validated against the tool schema first; a call that fails
// validation is rejected before the handler runs, so no side effects occur.
// A Pending outcome suspends the call until its subchats finish.
func (r *Registry) Dispatch(ctx context.Context, call types.ToolCall) (Outcome, error) {
	tool := r.Get(call.Name)
	if tool == nil {
		return Outcome{}, fmt.Errorf("%w: %s", ErrToolNotFound, call.Name)
	}

	if err := tool.Schema.Validate(call.Args); err != nil {
		r.log.Warn("rejected tool call",
			zap.String("tool", call.Name),
			zap.String("call_id", call.ID),
			zap.Error(err))
		return Outcome{}, err
	}

	start := time.Now()
	outcome, err := tool.Handler(ctx, call)

	r.log.Debug("dispatched tool call",
		zap.String("tool", call.Name),
		zap.String("call_id", call.ID),
		zap.Bool("pending", outcome.Pending()),
		zap.Duration("took", time.Since(start)),
		zap.Error(err))

	return outcome, err
}
