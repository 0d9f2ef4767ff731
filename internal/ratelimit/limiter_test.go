// ABOUTME: Tests for the sliding-window rate limiter.
// ABOUTME: Covers limit boundaries, retry hints, atomicity, and unlimited tiers.

package ratelimit

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortunamind/persistent-gateway/internal/subscription"
)

const testHandle = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func TestAcceptsUpToHourlyLimit(t *testing.T) {
	l := New(nil, 0)
	limit := subscription.Limits(subscription.TierFree).PerHour

	for i := 0; i < limit; i++ {
		result, err := l.CheckAndRecord(testHandle, subscription.TierFree)
		require.NoError(t, err)
		require.True(t, result.Allowed, "call %d within the limit should be allowed", i+1)
	}

	result, err := l.CheckAndRecord(testHandle, subscription.TierFree)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, WindowHour, result.Window)
	assert.Greater(t, result.RetryAfter.Seconds(), 0.0)
}

func TestRejectionDoesNotConsumeQuota(t *testing.T) {
	l := New(nil, 0)
	limit := subscription.Limits(subscription.TierFree).PerHour

	for i := 0; i < limit; i++ {
		_, err := l.CheckAndRecord(testHandle, subscription.TierFree)
		require.NoError(t, err)
	}

	// Repeated rejected calls must not extend the window.
	for i := 0; i < 5; i++ {
		result, err := l.CheckAndRecord(testHandle, subscription.TierFree)
		require.NoError(t, err)
		assert.False(t, result.Allowed)
	}
}

func TestRemainingCountsDown(t *testing.T) {
	l := New(nil, 0)

	first, err := l.CheckAndRecord(testHandle, subscription.TierFree)
	require.NoError(t, err)
	second, err := l.CheckAndRecord(testHandle, subscription.TierFree)
	require.NoError(t, err)

	assert.Equal(t, first.Remaining-1, second.Remaining)
}

func TestUnlimitedTierSkipsCounters(t *testing.T) {
	l := New(nil, 0)

	for i := 0; i < 10000; i++ {
		result, err := l.CheckAndRecord(testHandle, subscription.TierEnterprise)
		require.NoError(t, err)
		require.True(t, result.Allowed)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	assert.Empty(t, l.users, "unlimited tiers should not allocate counters")
}

func TestUsersDoNotShareCounters(t *testing.T) {
	l := New(nil, 0)
	limit := subscription.Limits(subscription.TierFree).PerHour

	for i := 0; i < limit; i++ {
		_, err := l.CheckAndRecord("user-a", subscription.TierFree)
		require.NoError(t, err)
	}

	result, err := l.CheckAndRecord("user-b", subscription.TierFree)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestPerMinuteFloor(t *testing.T) {
	l := New(nil, 3)

	for i := 0; i < 3; i++ {
		result, err := l.CheckAndRecord(testHandle, subscription.TierEnterprise)
		require.NoError(t, err)
		require.True(t, result.Allowed)
	}

	result, err := l.CheckAndRecord(testHandle, subscription.TierEnterprise)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, WindowMinute, result.Window)
}

func TestConcurrentCallsDoNotDoubleCount(t *testing.T) {
	l := New(nil, 0)
	limit := subscription.Limits(subscription.TierFree).PerHour

	var wg sync.WaitGroup
	allowed := make(chan bool, limit*2)

	for i := 0; i < limit*2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := l.CheckAndRecord(testHandle, subscription.TierFree)
			assert.NoError(t, err)
			allowed <- result.Allowed
		}()
	}
	wg.Wait()
	close(allowed)

	count := 0
	for ok := range allowed {
		if ok {
			count++
		}
	}
	assert.Equal(t, limit, count, "exactly the limit should be admitted under concurrency")
}

func TestPrune(t *testing.T) {
	l := New(nil, 0)
	for i := 0; i < 5; i++ {
		_, err := l.CheckAndRecord(fmt.Sprintf("user-%d", i), subscription.TierFree)
		require.NoError(t, err)
	}

	// Nothing is stale yet.
	assert.Equal(t, 0, l.Prune())

	l.mu.RLock()
	assert.Len(t, l.users, 5)
	l.mu.RUnlock()
}
