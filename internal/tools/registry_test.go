// ABOUTME: Tests for the tool registry and dispatch pipeline.
// ABOUTME: Covers permission gating, validation errors, timing, and the result envelope.

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortunamind/persistent-gateway/internal/auth"
	"github.com/fortunamind/persistent-gateway/internal/store"
	"github.com/fortunamind/persistent-gateway/internal/subscription"
)

// echoTool is a trivial read tool for dispatch tests.
type echoTool struct {
	err error
}

func (e *echoTool) Schema() Schema {
	return Schema{
		Name:        "echo",
		Description: "Echo the input back",
		Category:    "test",
		Permissions: []Permission{PermissionRead},
		InputSchema: json.RawMessage(`{"type":"object"}`),
	}
}

func (e *echoTool) Execute(_ context.Context, _ *auth.Context, params json.RawMessage) (json.RawMessage, error) {
	if e.err != nil {
		return nil, e.err
	}
	return params, nil
}

// writeTool requires the write permission.
type writeTool struct{}

func (w *writeTool) Schema() Schema {
	return Schema{
		Name:        "write-things",
		Description: "A write tool",
		Category:    "test",
		Permissions: []Permission{PermissionWrite},
		InputSchema: json.RawMessage(`{"type":"object"}`),
	}
}

func (w *writeTool) Execute(_ context.Context, _ *auth.Context, _ json.RawMessage) (json.RawMessage, error) {
	return json.RawMessage(`{"ok":true}`), nil
}

func authFor(tier subscription.Tier) *auth.Context {
	return &auth.Context{
		UserHandle: "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
		Email:      "user@example.com",
		Tier:       tier,
		RequestID:  "req-1",
		ReceivedAt: time.Now(),
	}
}

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(&echoTool{}))

	assert.NotNil(t, r.Get("echo"))
	assert.Nil(t, r.Get("missing"))
	assert.Equal(t, 1, r.Len())
}

func TestRegisterCollision(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(&echoTool{}))
	assert.ErrorIs(t, r.Register(&echoTool{}), ErrToolCollision)
}

func TestSchemasSorted(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(&writeTool{}))
	require.NoError(t, r.Register(&echoTool{}))

	schemas := r.Schemas()
	require.Len(t, schemas, 2)
	assert.Equal(t, "echo", schemas[0].Name)
	assert.Equal(t, "write-things", schemas[1].Name)
}

func TestDispatchSuccess(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(&echoTool{}))

	result, err := r.Dispatch(context.Background(), authFor(subscription.TierFree), "echo",
		json.RawMessage(`{"hello":"world"}`))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.JSONEq(t, `{"hello":"world"}`, string(result.Data))
	assert.GreaterOrEqual(t, result.ExecutionTimeMS, int64(0))
	assert.Equal(t, "echo", result.Metadata["tool"])
}

func TestDispatchUnknownTool(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Dispatch(context.Background(), authFor(subscription.TierFree), "nope", nil)
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestDispatchPermissionGate(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(&writeTool{}))

	// Free tier is read-only.
	_, err := r.Dispatch(context.Background(), authFor(subscription.TierFree), "write-things", nil)
	var denied *PermissionDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, PermissionWrite, denied.Permission)

	// Starter has write.
	result, err := r.Dispatch(context.Background(), authFor(subscription.TierStarter), "write-things", nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestDispatchNullParams(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(&echoTool{}))

	result, err := r.Dispatch(context.Background(), authFor(subscription.TierFree), "echo", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(result.Data))
}

func TestDispatchInvalidParametersSurface(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(&echoTool{err: InvalidParam("field", "is required")}))

	_, err := r.Dispatch(context.Background(), authFor(subscription.TierFree), "echo",
		json.RawMessage(`{}`))
	var invalid *InvalidParametersError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "field", invalid.Path)
}

func TestDispatchErrorEnvelope(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      string
		retryable bool
	}{
		{"not found", store.ErrNotFound, "not_found", false},
		{"conflict", store.ErrConflict, "conflict", false},
		{"unavailable", store.ErrUnavailable, "unavailable", true},
		{"timeout", context.DeadlineExceeded, "timeout", true},
		{"internal", errors.New("secret database path leaked"), "execution_error", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(nil)
			require.NoError(t, r.Register(&echoTool{err: tt.err}))

			result, err := r.Dispatch(context.Background(), authFor(subscription.TierFree), "echo",
				json.RawMessage(`{}`))
			require.NoError(t, err)
			assert.False(t, result.Success)
			require.NotNil(t, result.Error)
			assert.Equal(t, tt.kind, result.Error.Kind)
			assert.Equal(t, tt.retryable, result.Error.Retryable)
			assert.NotContains(t, result.Error.Message, "secret")
		})
	}
}
