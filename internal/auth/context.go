// ABOUTME: Per-request authentication context carried through the tool pipeline.
// ABOUTME: Provides WithAuth/FromContext for propagating identity via context.

package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/fortunamind/persistent-gateway/internal/subscription"
)

// UpstreamCredentials are third-party exchange credentials forwarded with a
// single request. They live only in memory for the request's lifetime and
// are never written to logs, cache keys, or storage.
type UpstreamCredentials struct {
	APIKey    string
	APISecret string
}

// Empty reports whether no upstream credentials were supplied.
func (c UpstreamCredentials) Empty() bool {
	return c.APIKey == "" && c.APISecret == ""
}

// Context is the authenticated identity for exactly one request.
type Context struct {
	UserHandle      string
	Email           string // normalized form
	Tier            subscription.Tier
	SubscriptionKey string
	Upstream        UpstreamCredentials
	RequestID       string
	ReceivedAt      time.Time
}

// LogValue renders the context for structured logging with all secrets and
// the raw email omitted.
func (a *Context) LogValue() slog.Value {
	handle := a.UserHandle
	if len(handle) > 8 {
		handle = handle[:8]
	}
	return slog.GroupValue(
		slog.String("user_handle", handle),
		slog.String("tier", string(a.Tier)),
		slog.String("request_id", a.RequestID),
	)
}

// HasFeature reports whether the request's tier includes the named feature.
func (a *Context) HasFeature(name string) bool {
	return subscription.HasFeature(a.Tier, name)
}

// authContextKey is the key type for storing Context in context.Context.
type authContextKey struct{}

// WithAuth returns a new context with the auth Context attached.
func WithAuth(ctx context.Context, auth *Context) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext retrieves the auth Context, returning nil if not present.
func FromContext(ctx context.Context) *Context {
	val := ctx.Value(authContextKey{})
	if val == nil {
		return nil
	}
	auth, ok := val.(*Context)
	if !ok {
		return nil
	}
	return auth
}

// MustFromContext retrieves the auth Context, panicking if not present.
func MustFromContext(ctx context.Context) *Context {
	auth := FromContext(ctx)
	if auth == nil {
		panic("auth: Context not found in context")
	}
	return auth
}
