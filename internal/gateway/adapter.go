// ABOUTME: Persistence adapter: the authenticated call pipeline shared by every tool.
// ABOUTME: extract -> validate subscription -> derive handle -> rate limit -> auth context -> dispatch.

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fortunamind/persistent-gateway/internal/auth"
	"github.com/fortunamind/persistent-gateway/internal/identity"
	"github.com/fortunamind/persistent-gateway/internal/ratelimit"
	"github.com/fortunamind/persistent-gateway/internal/store"
	"github.com/fortunamind/persistent-gateway/internal/subscription"
	"github.com/fortunamind/persistent-gateway/internal/tools"
)

// ErrMissingCredentials is returned when the email or subscription key is absent.
var ErrMissingCredentials = errors.New("missing credentials")

// UnauthorizedError carries the specific validation failure reason.
type UnauthorizedError struct {
	Reason subscription.Reason
}

func (e *UnauthorizedError) Error() string {
	return "unauthorized: " + string(e.Reason)
}

// Retryable reports whether the client should retry; only registry outages are.
func (e *UnauthorizedError) Retryable() bool {
	return e.Reason == subscription.ReasonBackendUnavailable
}

// RateLimitedError tells the client when to come back.
type RateLimitedError struct {
	RetryAfter time.Duration
	Window     string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s (%s window)", e.RetryAfter, e.Window)
}

// Credentials is what the transport extracted from a request.
type Credentials struct {
	Email             string
	SubscriptionKey   string
	UpstreamAPIKey    string
	UpstreamAPISecret string
}

// Config wires an Adapter.
type Config struct {
	Deriver   *identity.Deriver
	Validator *subscription.Validator
	Limiter   ratelimit.Checker
	Registry  *tools.Registry
	Backend   store.Backend
	Logger    *slog.Logger
}

// Adapter composes identity, subscription validation, rate limiting, and the
// tool registry into one authenticated call path. Both transports share a
// single Adapter; it owns no per-request state.
type Adapter struct {
	deriver   *identity.Deriver
	validator *subscription.Validator
	limiter   ratelimit.Checker
	registry  *tools.Registry
	backend   store.Backend
	logger    *slog.Logger
}

// NewAdapter creates an Adapter from its components.
func NewAdapter(cfg Config) (*Adapter, error) {
	if cfg.Deriver == nil || cfg.Validator == nil || cfg.Limiter == nil || cfg.Registry == nil {
		return nil, errors.New("deriver, validator, limiter, and registry are required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "gateway")
	}

	return &Adapter{
		deriver:   cfg.Deriver,
		validator: cfg.Validator,
		limiter:   cfg.Limiter,
		registry:  cfg.Registry,
		backend:   cfg.Backend,
		logger:    logger,
	}, nil
}

// Registry exposes the tool registry for tools/list.
func (a *Adapter) Registry() *tools.Registry {
	return a.registry
}

// CallTool runs the full pipeline for one tool invocation. Warnings are
// non-fatal conditions the transport should surface (e.g. a degraded rate
// limiter on a read-only call). Every failure short-circuits before any
// storage mutation or upstream call.
func (a *Adapter) CallTool(ctx context.Context, creds Credentials, toolName string, params json.RawMessage) (*tools.Result, []string, error) {
	if creds.Email == "" || creds.SubscriptionKey == "" {
		return nil, nil, ErrMissingCredentials
	}

	// Resolve the tool early: resolution does no work, and the rate limiter
	// failure policy depends on whether the tool writes.
	tool := a.registry.Get(toolName)
	if tool == nil {
		return nil, nil, fmt.Errorf("%w: %s", tools.ErrUnknownTool, toolName)
	}

	vr := a.validator.Validate(ctx, creds.Email, creds.SubscriptionKey)
	if !vr.Valid {
		return nil, nil, &UnauthorizedError{Reason: vr.Reason}
	}

	handle, err := a.deriver.DeriveHandle(creds.Email)
	if err != nil {
		// Validate already normalized the same address; reaching this means a
		// config mismatch, not client error.
		return nil, nil, fmt.Errorf("deriving user handle: %w", err)
	}

	var warnings []string
	rl, err := a.limiter.CheckAndRecord(handle, vr.Tier)
	if err != nil {
		// Limiter backing store unreachable: fail closed for writes, open
		// with a warning for reads. The asymmetry trades availability of
		// harmless reads against abuse of quota-bearing writes.
		if tool.Schema().RequiresWrite() {
			return nil, nil, fmt.Errorf("rate limiter unavailable (%v): %w", err, store.ErrUnavailable)
		}
		warnings = append(warnings, "rate-limiter-degraded")
		a.logger.Warn("rate limiter unavailable, allowing read-only call",
			"tool", toolName, "error", err)
	} else if !rl.Allowed {
		return nil, nil, &RateLimitedError{RetryAfter: rl.RetryAfter, Window: rl.Window}
	}

	normalized, _ := identity.Normalize(creds.Email)
	authCtx := &auth.Context{
		UserHandle:      handle,
		Email:           normalized,
		Tier:            vr.Tier,
		SubscriptionKey: creds.SubscriptionKey,
		Upstream: auth.UpstreamCredentials{
			APIKey:    creds.UpstreamAPIKey,
			APISecret: creds.UpstreamAPISecret,
		},
		RequestID:  uuid.New().String(),
		ReceivedAt: time.Now(),
	}

	result, err := a.registry.Dispatch(auth.WithAuth(ctx, authCtx), authCtx, toolName, params)
	if err != nil {
		return nil, warnings, err
	}
	return result, warnings, nil
}

// ComponentStatus is one subsystem's health in the /status report.
type ComponentStatus struct {
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	LatencyMS int64  `json:"latency_ms,omitempty"`
}

// Status probes every subsystem for the extended health endpoint.
func (a *Adapter) Status(ctx context.Context) (string, map[string]ComponentStatus) {
	components := make(map[string]ComponentStatus)

	if a.backend != nil {
		health, err := a.backend.Health(ctx)
		switch {
		case err != nil:
			components["storage"] = ComponentStatus{Status: "unhealthy", Detail: "health probe failed"}
		case !health.OK:
			components["storage"] = ComponentStatus{Status: "unhealthy", LatencyMS: health.LatencyMS}
		default:
			components["storage"] = ComponentStatus{Status: "healthy", LatencyMS: health.LatencyMS}
		}
	} else {
		components["storage"] = ComponentStatus{Status: "unhealthy", Detail: "no backend configured"}
	}

	components["validator"] = ComponentStatus{
		Status: "healthy",
		Detail: fmt.Sprintf("%d cached results", a.validator.CacheLen()),
	}
	components["rate_limiter"] = ComponentStatus{Status: "healthy"}
	components["tool_registry"] = ComponentStatus{
		Status: "healthy",
		Detail: fmt.Sprintf("%d tools", a.registry.Len()),
	}

	// Storage is critical: without it every tool call fails, so the overall
	// state is unhealthy rather than merely degraded.
	overall := "healthy"
	if components["storage"].Status != "healthy" {
		overall = "unhealthy"
	} else {
		for _, c := range components {
			if c.Status != "healthy" {
				overall = "degraded"
				break
			}
		}
	}
	return overall, components
}
