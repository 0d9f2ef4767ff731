// ABOUTME: Tests for auth context propagation and secret redaction in logs.

package auth

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortunamind/persistent-gateway/internal/subscription"
)

func testAuthContext() *Context {
	return &Context{
		UserHandle:      "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
		Email:           "user@example.com",
		Tier:            subscription.TierPremium,
		SubscriptionKey: "fm_sub_secretkey",
		Upstream: UpstreamCredentials{
			APIKey:    "upstream-key-123",
			APISecret: "upstream-secret-456",
		},
		RequestID:  "req-1",
		ReceivedAt: time.Now(),
	}
}

func TestWithAuthRoundTrip(t *testing.T) {
	authCtx := testAuthContext()
	ctx := WithAuth(context.Background(), authCtx)
	assert.Same(t, authCtx, FromContext(ctx))
}

func TestFromContextMissing(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
}

func TestMustFromContextPanics(t *testing.T) {
	assert.Panics(t, func() {
		MustFromContext(context.Background())
	})
}

func TestLogValueOmitsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	logger.Info("request", "auth", testAuthContext())

	out := buf.String()
	assert.NotContains(t, out, "fm_sub_secretkey")
	assert.NotContains(t, out, "upstream-key-123")
	assert.NotContains(t, out, "upstream-secret-456")
	assert.NotContains(t, out, "user@example.com")
	assert.Contains(t, out, "01234567") // truncated handle prefix is fine to log
}

func TestHasFeature(t *testing.T) {
	authCtx := testAuthContext()
	assert.True(t, authCtx.HasFeature("journal_persistence"))
	assert.False(t, authCtx.HasFeature("api_access"))
}

func TestUpstreamCredentialsEmpty(t *testing.T) {
	assert.True(t, UpstreamCredentials{}.Empty())
	assert.False(t, UpstreamCredentials{APIKey: "k"}.Empty())
}

func TestJWTVerifierRoundTrip(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	v, err := NewJWTVerifier(secret)
	require.NoError(t, err)

	token, err := v.Generate("user@example.com", time.Hour)
	require.NoError(t, err)

	email, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", email)
}

func TestJWTVerifierExpired(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	v, err := NewJWTVerifier(secret)
	require.NoError(t, err)

	token, err := v.Generate("user@example.com", -time.Hour)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTVerifierRejectsShortSecret(t *testing.T) {
	_, err := NewJWTVerifier([]byte("short"))
	assert.ErrorIs(t, err, ErrWeakSecret)
}
