// ABOUTME: Tests for the stdio transport: line framing, parse errors, and ordering.

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortunamind/persistent-gateway/internal/gateway"
	"github.com/fortunamind/persistent-gateway/internal/identity"
	"github.com/fortunamind/persistent-gateway/internal/ratelimit"
	"github.com/fortunamind/persistent-gateway/internal/store"
	"github.com/fortunamind/persistent-gateway/internal/subscription"
	"github.com/fortunamind/persistent-gateway/internal/tools"
)

func newStdioFixture(t *testing.T, input string) (*StdioServer, *bytes.Buffer) {
	t.Helper()

	backend := store.NewMockBackend()
	require.NoError(t, backend.UpsertSubscription(context.Background(), &subscription.Record{
		Email:  "user@example.com",
		Key:    "fm_sub_abcdefgh",
		Tier:   subscription.TierPremium,
		Status: subscription.StatusActive,
	}))

	validator, err := subscription.NewValidator(subscription.ValidatorConfig{Registry: backend})
	require.NoError(t, err)

	registry := tools.NewRegistry(nil)
	require.NoError(t, tools.RegisterBuiltins(registry, backend, nil))

	adapter, err := gateway.NewAdapter(gateway.Config{
		Deriver:   identity.NewDeriver(""),
		Validator: validator,
		Limiter:   ratelimit.New(nil, 0),
		Registry:  registry,
		Backend:   backend,
	})
	require.NoError(t, err)

	var out bytes.Buffer
	server, err := NewStdioServer(StdioConfig{
		Adapter: adapter,
		In:      strings.NewReader(input),
		Out:     &out,
		Credentials: gateway.Credentials{
			Email:           "user@example.com",
			SubscriptionKey: "fm_sub_abcdefgh",
		},
	})
	require.NoError(t, err)
	return server, &out
}

func responseLines(t *testing.T, out *bytes.Buffer) []JSONRPCResponse {
	t.Helper()
	var responses []JSONRPCResponse
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var resp JSONRPCResponse
		require.NoError(t, json.Unmarshal([]byte(line), &resp), "each output line must be valid JSON")
		responses = append(responses, resp)
	}
	return responses
}

func TestStdioOneLinePerRequestInOrder(t *testing.T) {
	input := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}
{"jsonrpc":"2.0","id":2,"method":"tools/list"}
{"jsonrpc":"2.0","id":3,"method":"ping"}
`
	server, out := newStdioFixture(t, input)
	require.NoError(t, server.Run(context.Background()))

	responses := responseLines(t, out)
	require.Len(t, responses, 3)
	assert.Equal(t, "1", string(responses[0].ID))
	assert.Equal(t, "2", string(responses[1].ID))
	assert.Equal(t, "3", string(responses[2].ID))
	for _, resp := range responses {
		assert.Nil(t, resp.Error)
	}
}

func TestStdioParseErrorNullID(t *testing.T) {
	server, out := newStdioFixture(t, "this is not json\n")
	require.NoError(t, server.Run(context.Background()))

	responses := responseLines(t, out)
	require.Len(t, responses, 1)
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, JSONRPCParseError, responses[0].Error.Code)
	assert.Equal(t, "null", string(responses[0].ID))
}

func TestStdioToolCallUsesProcessCredentials(t *testing.T) {
	input := `{"jsonrpc":"2.0","id":"c1","method":"tools/call","params":{"name":"store_journal_entry","arguments":{"entry_text":"from stdio"}}}
{"jsonrpc":"2.0","id":"c2","method":"tools/call","params":{"name":"get_journal_entries","arguments":{}}}
`
	server, out := newStdioFixture(t, input)
	require.NoError(t, server.Run(context.Background()))

	responses := responseLines(t, out)
	require.Len(t, responses, 2)
	require.Nil(t, responses[0].Error)
	require.Nil(t, responses[1].Error)

	raw, err := json.Marshal(responses[1].Result)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "from stdio")
}

func TestStdioUnknownMethod(t *testing.T) {
	server, out := newStdioFixture(t, `{"jsonrpc":"2.0","id":9,"method":"bogus"}`+"\n")
	require.NoError(t, server.Run(context.Background()))

	responses := responseLines(t, out)
	require.Len(t, responses, 1)
	assert.Equal(t, JSONRPCMethodNotFound, responses[0].Error.Code)
}

func TestStdioSkipsBlankLines(t *testing.T) {
	server, out := newStdioFixture(t, "\n\n"+`{"jsonrpc":"2.0","id":1,"method":"ping"}`+"\n\n")
	require.NoError(t, server.Run(context.Background()))
	assert.Len(t, responseLines(t, out), 1)
}

func TestStdioEOFIsCleanShutdown(t *testing.T) {
	server, _ := newStdioFixture(t, "")
	assert.NoError(t, server.Run(context.Background()))
}
