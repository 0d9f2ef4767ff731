// ABOUTME: Subscription validation with bounded-staleness caching and registry lookup.
// ABOUTME: Maps (email, key) to a tier via the subscription registry, never raising for user errors.

package subscription

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fortunamind/persistent-gateway/internal/identity"
)

// Status values for a subscription record.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
	StatusGrace   Status = "grace"
)

// Record is a row in the subscription registry. Email is always stored in
// normalized form; there is exactly one row per normalized email.
type Record struct {
	Email     string
	Key       string
	Tier      Tier
	Status    Status
	ExpiresAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Registry is the read side of the subscription registry consulted by the
// validator. Implementations must look up by normalized email.
type Registry interface {
	GetSubscription(ctx context.Context, emailNormalized string) (*Record, error)
}

// Reason explains why a validation result is what it is.
type Reason string

const (
	ReasonValid              Reason = "valid"
	ReasonMalformedKey       Reason = "malformed_key"
	ReasonInvalidEmail       Reason = "invalid_email"
	ReasonNotFound           Reason = "not_found"
	ReasonKeyMismatch        Reason = "key_mismatch"
	ReasonExpired            Reason = "expired"
	ReasonRevoked            Reason = "revoked"
	ReasonBackendUnavailable Reason = "backend_unavailable"
)

// ValidationResult is the outcome of a subscription check.
type ValidationResult struct {
	Valid      bool
	Tier       Tier
	Reason     Reason
	ExpiresAt  *time.Time
	GraceUntil *time.Time
	CachedAt   time.Time
}

// keyPattern is the syntactic shape of a subscription key: the fm_sub_ prefix
// followed by at least 8 URL-safe characters.
var keyPattern = regexp.MustCompile(`^fm_sub_[A-Za-z0-9_-]{8,}$`)

// ValidKeyFormat reports whether key matches the subscription key syntax.
func ValidKeyFormat(key string) bool {
	return keyPattern.MatchString(key)
}

// GenerateKey produces a fresh subscription key with 16 random bytes of
// URL-safe entropy. Used by the admin tooling when issuing subscriptions.
func GenerateKey() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating key entropy: %w", err)
	}
	return "fm_sub_" + base64.RawURLEncoding.EncodeToString(buf), nil
}

// graceExtension is how long past expiry a grace-status subscription keeps
// validating. The registry schema has no dedicated grace column; grace is a
// status value and the window is derived from expires_at.
const graceExtension = 72 * time.Hour

// ValidatorConfig holds the tunables for a Validator.
type ValidatorConfig struct {
	Registry    Registry
	Logger      *slog.Logger
	TTL         time.Duration // positive-result TTL, default 5m
	NegativeTTL time.Duration // negative-result TTL, default 30s
	CacheSize   int           // max cached entries, default 10000
}

// Validator answers (email, key) -> ValidationResult with bounded staleness.
// Safe for concurrent use. Registry lookups for the same cache key are
// collapsed through singleflight so two rapid calls hit the registry at most
// once even before the cache is warm.
type Validator struct {
	registry    Registry
	logger      *slog.Logger
	cache       *resultCache
	flight      singleflight.Group
	ttl         time.Duration
	negativeTTL time.Duration
}

// NewValidator creates a Validator with the given configuration.
func NewValidator(cfg ValidatorConfig) (*Validator, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "subscription")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.NegativeTTL <= 0 {
		cfg.NegativeTTL = 30 * time.Second
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 10000
	}

	return &Validator{
		registry:    cfg.Registry,
		logger:      logger,
		cache:       newResultCache(cfg.CacheSize),
		ttl:         cfg.TTL,
		negativeTTL: cfg.NegativeTTL,
	}, nil
}

// Validate checks a subscription. Every outcome, including syntactic and
// authorization failures, is a structured result; there is no error return.
// Registry outages yield ReasonBackendUnavailable and are not cached
// so the next request re-attempts.
func (v *Validator) Validate(ctx context.Context, email, key string) ValidationResult {
	if !ValidKeyFormat(key) {
		return invalid(ReasonMalformedKey)
	}

	normalized, err := identity.Normalize(email)
	if err != nil {
		return invalid(ReasonInvalidEmail)
	}

	cacheKey := normalized + "\x00" + key
	if cached, ok := v.cache.get(cacheKey); ok {
		return cached
	}

	// Collapse concurrent lookups for the same (email, key).
	result, _, _ := v.flight.Do(cacheKey, func() (any, error) {
		return v.validateUncached(ctx, normalized, key, cacheKey), nil
	})
	return result.(ValidationResult)
}

func (v *Validator) validateUncached(ctx context.Context, normalized, key, cacheKey string) ValidationResult {
	// Re-check the cache: a concurrent flight may have filled it between our
	// miss and acquiring the flight slot.
	if cached, ok := v.cache.get(cacheKey); ok {
		return cached
	}

	record, err := v.registry.GetSubscription(ctx, normalized)
	if err != nil && !isNotFound(err) {
		v.logger.Warn("subscription registry unavailable", "error", err)
		return invalid(ReasonBackendUnavailable) // deliberately not cached
	}

	result := v.evaluate(record, key)
	ttl := v.ttl
	if !result.Valid {
		ttl = v.negativeTTL // short TTL absorbs key probing without pinning stale denials
	}
	v.cache.set(cacheKey, result, ttl)
	return result
}

// evaluate applies the validity rules to a registry row (nil means no row).
func (v *Validator) evaluate(record *Record, key string) ValidationResult {
	now := time.Now()

	switch {
	case record == nil:
		return invalid(ReasonNotFound)
	case record.Key != key:
		return invalid(ReasonKeyMismatch)
	case record.Status == StatusRevoked:
		return invalid(ReasonRevoked)
	case record.Status == StatusGrace:
		graceUntil := now.Add(graceExtension)
		if record.ExpiresAt != nil {
			graceUntil = record.ExpiresAt.Add(graceExtension)
		}
		if now.After(graceUntil) {
			return invalid(ReasonExpired)
		}
		return ValidationResult{
			Valid:      true,
			Tier:       record.Tier,
			Reason:     ReasonValid,
			ExpiresAt:  record.ExpiresAt,
			GraceUntil: &graceUntil,
			CachedAt:   now,
		}
	case record.Status == StatusExpired,
		record.ExpiresAt != nil && record.ExpiresAt.Before(now):
		return invalid(ReasonExpired)
	case record.Status != StatusActive:
		return invalid(ReasonNotFound)
	default:
		return ValidationResult{
			Valid:     true,
			Tier:      record.Tier,
			Reason:    ReasonValid,
			ExpiresAt: record.ExpiresAt,
			CachedAt:  now,
		}
	}
}

// InvalidateCache drops all cached results for an email, e.g. after an
// administrative tier change. Staleness otherwise resolves within TTL.
func (v *Validator) InvalidateCache(email string) {
	normalized, err := identity.Normalize(email)
	if err != nil {
		return
	}
	v.cache.invalidatePrefix(normalized + "\x00")
}

// CacheLen reports the number of cached validation results.
func (v *Validator) CacheLen() int {
	return v.cache.len()
}

// ErrNoSubscription is returned by Registry implementations when no row
// exists for the email.
var ErrNoSubscription = errors.New("no subscription record")

func isNotFound(err error) bool {
	return errors.Is(err, ErrNoSubscription)
}

func invalid(reason Reason) ValidationResult {
	return ValidationResult{Valid: false, Reason: reason, CachedAt: time.Now()}
}
