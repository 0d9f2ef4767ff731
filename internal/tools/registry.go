// ABOUTME: Thread-safe tool registry with startup-only registration and dispatch.
// ABOUTME: Dispatch handles permission gating, parameter validation, timing, and the result envelope.

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/fortunamind/persistent-gateway/internal/auth"
	"github.com/fortunamind/persistent-gateway/internal/store"
)

// ErrToolCollision indicates a tool name is already registered.
var ErrToolCollision = errors.New("tool name collision")

// Registry holds the process-wide tool collection. Registration happens at
// startup only; extension is a code change, not a filesystem scan.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	logger *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default().With("component", "tools")
	}
	return &Registry{
		tools:  make(map[string]Tool),
		logger: logger,
	}
}

// Register adds a tool. Names are unique; a collision is a startup error.
func (r *Registry) Register(tool Tool) error {
	name := tool.Schema().Name
	if name == "" {
		return errors.New("tool has empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrToolCollision, name)
	}
	r.tools[name] = tool

	r.logger.Debug("registered tool", "name", name, "category", tool.Schema().Category)
	return nil
}

// Get returns a tool by name, or nil.
func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Schemas returns every registered tool schema sorted by name.
func (r *Registry) Schemas() []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]Schema, 0, len(r.tools))
	for _, tool := range r.tools {
		schemas = append(schemas, tool.Schema())
	}
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
	return schemas
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Dispatch resolves and executes a tool for an authenticated request.
//
// The pipeline is fixed: resolve, permission gate against the caller's tier,
// execute with timing, wrap in the Result envelope. Parameter validation
// happens inside Execute via typed decoding; validation failures surface as
// InvalidParametersError and are never retryable.
func (r *Registry) Dispatch(ctx context.Context, authCtx *auth.Context, name string, params json.RawMessage) (*Result, error) {
	tool := r.Get(name)
	if tool == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	schema := tool.Schema()
	granted := tierPermissions(authCtx.Tier)
	for _, p := range schema.Permissions {
		if !granted[p] {
			return nil, &PermissionDeniedError{Tool: name, Permission: p}
		}
	}

	if len(params) == 0 || string(params) == "null" {
		params = json.RawMessage(`{}`)
	}

	start := time.Now()
	data, err := tool.Execute(ctx, authCtx, params)
	elapsed := time.Since(start)

	result := &Result{
		ExecutionTimeMS: elapsed.Milliseconds(),
		Metadata: map[string]any{
			"tool":       name,
			"request_id": authCtx.RequestID,
		},
	}

	if err != nil {
		kind, retryable := classify(err)
		var invalid *InvalidParametersError
		if errors.As(err, &invalid) {
			// Parameter errors carry their path through to the client.
			return nil, invalid
		}
		result.Success = false
		result.Error = &ErrorInfo{
			Kind:      kind,
			Message:   publicMessage(err),
			Retryable: retryable,
		}
		r.logger.Warn("tool execution failed",
			"tool", name,
			"request_id", authCtx.RequestID,
			"kind", kind,
			"error", err,
		)
		return result, nil
	}

	result.Success = true
	result.Data = data

	r.logger.Debug("tool executed",
		"tool", name,
		"request_id", authCtx.RequestID,
		"elapsed_ms", result.ExecutionTimeMS,
	)
	return result, nil
}

// classify maps an execution error to an envelope kind and retryability.
func classify(err error) (string, bool) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return "not_found", false
	case errors.Is(err, store.ErrConflict):
		return "conflict", false
	case errors.Is(err, store.ErrUnavailable):
		return "unavailable", true
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout", true
	case errors.Is(err, context.Canceled):
		return "cancelled", false
	default:
		return "execution_error", false
	}
}

// publicMessage keeps internal detail out of client-visible errors.
func publicMessage(err error) string {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return "not found"
	case errors.Is(err, store.ErrConflict):
		return "conflict"
	case errors.Is(err, store.ErrUnavailable):
		return "storage unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "operation timed out"
	case errors.Is(err, context.Canceled):
		return "request cancelled"
	default:
		return "tool execution failed"
	}
}
