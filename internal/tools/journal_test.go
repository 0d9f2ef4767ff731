// ABOUTME: Tests for the journal, preference, and stats tools against the mock backend.

package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortunamind/persistent-gateway/internal/store"
	"github.com/fortunamind/persistent-gateway/internal/subscription"
)

func setupJournalTools(t *testing.T) (*Registry, *store.MockBackend) {
	t.Helper()
	backend := store.NewMockBackend()
	registry := NewRegistry(nil)
	require.NoError(t, RegisterBuiltins(registry, backend, nil))
	return registry, backend
}

func TestStoreAndFetchEntry(t *testing.T) {
	registry, _ := setupJournalTools(t)
	ctx := context.Background()
	authCtx := authFor(subscription.TierPremium)

	result, err := registry.Dispatch(ctx, authCtx, "store_journal_entry",
		json.RawMessage(`{"entry_text":"took profits on ETH","entry_type":"trade","tags":["eth"]}`))
	require.NoError(t, err)
	require.True(t, result.Success)

	var stored struct {
		EntryID string `json:"entry_id"`
	}
	require.NoError(t, json.Unmarshal(result.Data, &stored))
	require.NotEmpty(t, stored.EntryID)

	fetch, err := registry.Dispatch(ctx, authCtx, "get_journal_entry",
		json.RawMessage(`{"entry_id":"`+stored.EntryID+`"}`))
	require.NoError(t, err)
	require.True(t, fetch.Success)

	var entry struct {
		EntryText string `json:"entry_text"`
	}
	require.NoError(t, json.Unmarshal(fetch.Data, &entry))
	assert.Equal(t, "took profits on ETH", entry.EntryText)
}

func TestStoreEntryRequiresText(t *testing.T) {
	registry, _ := setupJournalTools(t)

	_, err := registry.Dispatch(context.Background(), authFor(subscription.TierPremium),
		"store_journal_entry", json.RawMessage(`{"entry_type":"trade"}`))

	var invalid *InvalidParametersError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "entry_text", invalid.Path)
}

func TestStarterTierEntryQuota(t *testing.T) {
	registry, backend := setupJournalTools(t)
	ctx := context.Background()
	authCtx := authFor(subscription.TierStarter)

	limit := subscription.Limits(subscription.TierStarter).JournalEntries
	for i := 0; i < limit; i++ {
		_, err := backend.StoreJournalEntry(ctx, authCtx.UserHandle, "entry", "trade", nil, nil)
		require.NoError(t, err)
	}

	_, err := registry.Dispatch(ctx, authCtx, "store_journal_entry",
		json.RawMessage(`{"entry_text":"one too many"}`))
	var invalid *InvalidParametersError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Message, "limit")
}

func TestListEntriesEmpty(t *testing.T) {
	registry, _ := setupJournalTools(t)

	result, err := registry.Dispatch(context.Background(), authFor(subscription.TierPremium),
		"get_journal_entries", json.RawMessage(`{}`))
	require.NoError(t, err)
	require.True(t, result.Success)

	var out struct {
		Entries []any `json:"entries"`
		Count   int   `json:"count"`
	}
	require.NoError(t, json.Unmarshal(result.Data, &out))
	assert.Equal(t, 0, out.Count)
	assert.NotNil(t, out.Entries, "entries must serialize as [] not null")
}

func TestListEntriesRejectsBadLimit(t *testing.T) {
	registry, _ := setupJournalTools(t)

	_, err := registry.Dispatch(context.Background(), authFor(subscription.TierPremium),
		"get_journal_entries", json.RawMessage(`{"limit":9999}`))
	var invalid *InvalidParametersError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "limit", invalid.Path)
}

func TestSearchEntries(t *testing.T) {
	registry, backend := setupJournalTools(t)
	ctx := context.Background()
	authCtx := authFor(subscription.TierPremium)

	_, err := backend.StoreJournalEntry(ctx, authCtx.UserHandle, "revenge trading again", "reflection", nil, nil)
	require.NoError(t, err)

	result, err := registry.Dispatch(ctx, authCtx, "search_journal_entries",
		json.RawMessage(`{"query":"revenge"}`))
	require.NoError(t, err)

	var out struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(result.Data, &out))
	assert.Equal(t, 1, out.Count)
}

func TestDeleteEntryNotFoundEnvelope(t *testing.T) {
	registry, _ := setupJournalTools(t)

	result, err := registry.Dispatch(context.Background(), authFor(subscription.TierPremium),
		"delete_journal_entry", json.RawMessage(`{"entry_id":"missing"}`))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "not_found", result.Error.Kind)
}

func TestPreferenceRoundTrip(t *testing.T) {
	registry, _ := setupJournalTools(t)
	ctx := context.Background()
	authCtx := authFor(subscription.TierPremium)

	_, err := registry.Dispatch(ctx, authCtx, "set_preference",
		json.RawMessage(`{"key":"base_currency","value":"USD"}`))
	require.NoError(t, err)

	result, err := registry.Dispatch(ctx, authCtx, "get_preference",
		json.RawMessage(`{"key":"base_currency"}`))
	require.NoError(t, err)
	require.True(t, result.Success)

	var pref struct {
		Value json.RawMessage `json:"value"`
	}
	require.NoError(t, json.Unmarshal(result.Data, &pref))
	assert.JSONEq(t, `"USD"`, string(pref.Value))
}

func TestUserStatsTool(t *testing.T) {
	registry, backend := setupJournalTools(t)
	ctx := context.Background()
	authCtx := authFor(subscription.TierPremium)

	_, err := backend.StoreJournalEntry(ctx, authCtx.UserHandle, "entry", "trade", nil, nil)
	require.NoError(t, err)

	result, err := registry.Dispatch(ctx, authCtx, "get_user_stats", nil)
	require.NoError(t, err)

	var out struct {
		Stats struct {
			EntriesTotal int `json:"entries_total"`
		} `json:"stats"`
		Tier string `json:"tier"`
	}
	require.NoError(t, json.Unmarshal(result.Data, &out))
	assert.Equal(t, 1, out.Stats.EntriesTotal)
	assert.Equal(t, "premium", out.Tier)
}
