// ABOUTME: Tests for the persistence adapter pipeline and its short-circuit behavior.

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortunamind/persistent-gateway/internal/identity"
	"github.com/fortunamind/persistent-gateway/internal/ratelimit"
	"github.com/fortunamind/persistent-gateway/internal/store"
	"github.com/fortunamind/persistent-gateway/internal/subscription"
	"github.com/fortunamind/persistent-gateway/internal/tools"
)

// failingLimiter simulates an unreachable rate limiter backing store.
type failingLimiter struct{}

func (failingLimiter) CheckAndRecord(string, subscription.Tier) (ratelimit.Result, error) {
	return ratelimit.Result{}, errors.New("backing store unreachable")
}

// fixture wires an adapter over the mock backend with one premium subscriber.
type fixture struct {
	adapter *Adapter
	backend *store.MockBackend
}

func validCreds() Credentials {
	return Credentials{Email: "user@example.com", SubscriptionKey: "fm_sub_abcdefgh"}
}

func newFixture(t *testing.T, limiter ratelimit.Checker, tier subscription.Tier) *fixture {
	t.Helper()

	backend := store.NewMockBackend()
	expires := time.Now().Add(30 * 24 * time.Hour)
	require.NoError(t, backend.UpsertSubscription(context.Background(), &subscription.Record{
		Email:     "user@example.com",
		Key:       "fm_sub_abcdefgh",
		Tier:      tier,
		Status:    subscription.StatusActive,
		ExpiresAt: &expires,
	}))

	validator, err := subscription.NewValidator(subscription.ValidatorConfig{Registry: backend})
	require.NoError(t, err)

	registry := tools.NewRegistry(nil)
	require.NoError(t, tools.RegisterBuiltins(registry, backend, nil))

	if limiter == nil {
		limiter = ratelimit.New(nil, 0)
	}

	adapter, err := NewAdapter(Config{
		Deriver:   identity.NewDeriver(""),
		Validator: validator,
		Limiter:   limiter,
		Registry:  registry,
		Backend:   backend,
	})
	require.NoError(t, err)

	return &fixture{adapter: adapter, backend: backend}
}

func TestCallToolHappyPath(t *testing.T) {
	f := newFixture(t, nil, subscription.TierPremium)

	result, warnings, err := f.adapter.CallTool(context.Background(), validCreds(),
		"store_journal_entry", json.RawMessage(`{"entry_text":"hello"}`))
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.True(t, result.Success)
}

func TestCallToolMissingCredentials(t *testing.T) {
	f := newFixture(t, nil, subscription.TierPremium)

	_, _, err := f.adapter.CallTool(context.Background(),
		Credentials{Email: "user@example.com"}, "get_user_stats", nil)
	assert.ErrorIs(t, err, ErrMissingCredentials)

	_, _, err = f.adapter.CallTool(context.Background(),
		Credentials{SubscriptionKey: "fm_sub_abcdefgh"}, "get_user_stats", nil)
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestCallToolUnauthorized(t *testing.T) {
	f := newFixture(t, nil, subscription.TierPremium)

	creds := Credentials{Email: "x@y.z", SubscriptionKey: "fm_sub_DOESNOTEXIST"}
	_, _, err := f.adapter.CallTool(context.Background(), creds,
		"store_journal_entry", json.RawMessage(`{"entry_text":"t"}`))

	var unauthorized *UnauthorizedError
	require.ErrorAs(t, err, &unauthorized)
	assert.Equal(t, subscription.ReasonNotFound, unauthorized.Reason)

	// No row was created.
	entries, err := f.backend.GetJournalEntries(context.Background(),
		"any", store.EntryFilter{}, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCallToolUnknownTool(t *testing.T) {
	f := newFixture(t, nil, subscription.TierPremium)

	_, _, err := f.adapter.CallTool(context.Background(), validCreds(), "no_such_tool", nil)
	assert.ErrorIs(t, err, tools.ErrUnknownTool)
}

func TestRateLimitedBlocksStorageMutation(t *testing.T) {
	f := newFixture(t, nil, subscription.TierFree)
	ctx := context.Background()

	// Free tier permits reads only, so exhaust quota with a read tool, then
	// verify the limit blocks subsequent calls, including a write, before
	// anything reaches storage.
	limit := subscription.Limits(subscription.TierFree).PerHour
	for i := 0; i < limit; i++ {
		_, _, err := f.adapter.CallTool(ctx, validCreds(), "get_user_stats", nil)
		require.NoError(t, err)
	}

	_, _, err := f.adapter.CallTool(ctx, validCreds(), "get_user_stats", nil)
	var limited *RateLimitedError
	require.ErrorAs(t, err, &limited)
	assert.Greater(t, limited.RetryAfter, time.Duration(0))

	_, _, err = f.adapter.CallTool(ctx, validCreds(), "store_journal_entry",
		json.RawMessage(`{"entry_text":"blocked"}`))
	require.ErrorAs(t, err, &limited)

	entries, lerr := f.backend.GetJournalEntries(ctx, mustHandle(t), store.EntryFilter{}, 10, 0)
	require.NoError(t, lerr)
	assert.Empty(t, entries)
}

func TestLimiterFailurePolicy(t *testing.T) {
	f := newFixture(t, failingLimiter{}, subscription.TierPremium)
	ctx := context.Background()

	// Reads fail open with a warning.
	result, warnings, err := f.adapter.CallTool(ctx, validCreds(), "get_user_stats", nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Contains(t, warnings, "rate-limiter-degraded")

	// Writes fail closed.
	_, _, err = f.adapter.CallTool(ctx, validCreds(), "store_journal_entry",
		json.RawMessage(`{"entry_text":"x"}`))
	require.Error(t, err)

	entries, lerr := f.backend.GetJournalEntries(ctx, mustHandle(t), store.EntryFilter{}, 10, 0)
	require.NoError(t, lerr)
	assert.Empty(t, entries, "fail-closed write must not reach storage")
}

func TestTenantIsolationAcrossUsers(t *testing.T) {
	f := newFixture(t, nil, subscription.TierPremium)
	ctx := context.Background()

	// Second subscriber.
	require.NoError(t, f.backend.UpsertSubscription(ctx, &subscription.Record{
		Email:  "other@example.com",
		Key:    "fm_sub_otherkey",
		Tier:   subscription.TierPremium,
		Status: subscription.StatusActive,
	}))

	_, _, err := f.adapter.CallTool(ctx, validCreds(), "store_journal_entry",
		json.RawMessage(`{"entry_text":"t1"}`))
	require.NoError(t, err)

	otherCreds := Credentials{Email: "other@example.com", SubscriptionKey: "fm_sub_otherkey"}
	result, _, err := f.adapter.CallTool(ctx, otherCreds, "get_journal_entries", nil)
	require.NoError(t, err)

	var out struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(result.Data, &out))
	assert.Equal(t, 0, out.Count, "another subscriber must not see t1")
}

func TestGmailAliasesShareJournal(t *testing.T) {
	f := newFixture(t, nil, subscription.TierPremium)
	ctx := context.Background()

	require.NoError(t, f.backend.UpsertSubscription(ctx, &subscription.Record{
		Email:  "ab@gmail.com", // normalized form
		Key:    "fm_sub_gmailkey",
		Tier:   subscription.TierPremium,
		Status: subscription.StatusActive,
	}))

	aliased := Credentials{Email: "a.b+promo@gmail.com", SubscriptionKey: "fm_sub_gmailkey"}
	_, _, err := f.adapter.CallTool(ctx, aliased, "store_journal_entry",
		json.RawMessage(`{"entry_text":"hello"}`))
	require.NoError(t, err)

	canonical := Credentials{Email: "AB@GMAIL.com", SubscriptionKey: "fm_sub_gmailkey"}
	result, _, err := f.adapter.CallTool(ctx, canonical, "get_journal_entries", nil)
	require.NoError(t, err)

	var out struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(result.Data, &out))
	assert.Equal(t, 1, out.Count, "both addresses must resolve to the same handle")
}

func TestStatusReport(t *testing.T) {
	f := newFixture(t, nil, subscription.TierPremium)

	overall, components := f.adapter.Status(context.Background())
	assert.Equal(t, "healthy", overall)
	assert.Equal(t, "healthy", components["storage"].Status)
	assert.Contains(t, components, "validator")
	assert.Contains(t, components, "rate_limiter")
	assert.Contains(t, components, "tool_registry")

	// Storage down is critical: the overall state is unhealthy, not degraded.
	f.backend.SetFailing(true)
	overall, components = f.adapter.Status(context.Background())
	assert.Equal(t, "unhealthy", overall)
	assert.Equal(t, "unhealthy", components["storage"].Status)
}

func mustHandle(t *testing.T) string {
	t.Helper()
	handle, err := identity.NewDeriver("").DeriveHandle("user@example.com")
	require.NoError(t, err)
	return handle
}
