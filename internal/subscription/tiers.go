// ABOUTME: Subscription tier catalog mapping tiers to usage limits and features.
// ABOUTME: The tier set is closed; adding a tier requires a release.

package subscription

// Tier identifies a subscription level.
type Tier string

// Subscription tiers, ordered free < starter < premium < enterprise.
const (
	TierFree       Tier = "free"
	TierStarter    Tier = "starter"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

// Unlimited marks a limit with no cap.
const Unlimited = -1

// TierLimits describes what a tier may consume.
type TierLimits struct {
	PerHour        int
	PerDay         int
	PerMonth       int
	JournalEntries int
	StorageMB      int
	BurstLimit     int
	Features       []string
}

var tierTable = map[Tier]TierLimits{
	TierFree: {
		PerHour:        60,
		PerDay:         1000,
		PerMonth:       20000,
		JournalEntries: 0,
		StorageMB:      0,
		BurstLimit:     10,
		Features: []string{
			"portfolio_view", "price_check", "basic_analysis",
		},
	},
	TierStarter: {
		PerHour:        300,
		PerDay:         5000,
		PerMonth:       100000,
		JournalEntries: 100,
		StorageMB:      50,
		BurstLimit:     50,
		Features: []string{
			"portfolio_view", "price_check", "basic_analysis",
			"journal_persistence", "historical_analysis",
		},
	},
	TierPremium: {
		PerHour:        1000,
		PerDay:         20000,
		PerMonth:       500000,
		JournalEntries: Unlimited,
		StorageMB:      1000,
		BurstLimit:     100,
		Features: []string{
			"portfolio_view", "price_check", "basic_analysis",
			"journal_persistence", "historical_analysis", "performance_metrics",
			"risk_analysis", "advanced_charts", "export_data", "custom_alerts",
		},
	},
	TierEnterprise: {
		PerHour:        Unlimited,
		PerDay:         Unlimited,
		PerMonth:       Unlimited,
		JournalEntries: Unlimited,
		StorageMB:      Unlimited,
		BurstLimit:     Unlimited,
		Features: []string{
			"portfolio_view", "price_check", "basic_analysis",
			"journal_persistence", "historical_analysis", "performance_metrics",
			"risk_analysis", "advanced_charts", "export_data", "custom_alerts",
			"api_access", "bulk_operations", "priority_support",
			"custom_integrations", "dedicated_account_manager",
		},
	},
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	_, ok := tierTable[t]
	return ok
}

// Limits returns the limits for a tier. Unknown tiers get the free limits.
func Limits(t Tier) TierLimits {
	if limits, ok := tierTable[t]; ok {
		return limits
	}
	return tierTable[TierFree]
}

// HasFeature reports whether a tier includes the named feature.
func HasFeature(t Tier, name string) bool {
	for _, f := range Limits(t).Features {
		if f == name {
			return true
		}
	}
	return false
}

// AllUnlimited reports whether every API window limit of the tier is uncapped.
func (l TierLimits) AllUnlimited() bool {
	return l.PerHour == Unlimited && l.PerDay == Unlimited && l.PerMonth == Unlimited
}
