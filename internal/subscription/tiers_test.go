// ABOUTME: Tests for the tier catalog: limits, features, and unlimited handling.

package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLimitsKnownTiers(t *testing.T) {
	assert.Equal(t, 60, Limits(TierFree).PerHour)
	assert.Equal(t, 300, Limits(TierStarter).PerHour)
	assert.Equal(t, 1000, Limits(TierPremium).PerHour)
	assert.Equal(t, Unlimited, Limits(TierEnterprise).PerHour)
}

func TestLimitsUnknownTierFallsBackToFree(t *testing.T) {
	assert.Equal(t, Limits(TierFree), Limits(Tier("platinum")))
}

func TestHasFeature(t *testing.T) {
	assert.True(t, HasFeature(TierFree, "price_check"))
	assert.False(t, HasFeature(TierFree, "journal_persistence"))
	assert.True(t, HasFeature(TierStarter, "journal_persistence"))
	assert.True(t, HasFeature(TierEnterprise, "api_access"))
	assert.False(t, HasFeature(TierPremium, "api_access"))
}

func TestAllUnlimited(t *testing.T) {
	assert.True(t, Limits(TierEnterprise).AllUnlimited())
	assert.False(t, Limits(TierPremium).AllUnlimited())
}

func TestTierValid(t *testing.T) {
	assert.True(t, TierFree.Valid())
	assert.True(t, TierEnterprise.Valid())
	assert.False(t, Tier("gold").Valid())
}
