// ABOUTME: Tests for email normalization and user handle derivation.
// ABOUTME: Covers alias-domain canonicalization, determinism, and format invariants.

package identity

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var handlePattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercases", "User@Example.COM", "user@example.com"},
		{"trims whitespace", "  user@example.com  ", "user@example.com"},
		{"gmail dots stripped", "a.b.c@gmail.com", "abc@gmail.com"},
		{"gmail plus tag stripped", "user+promo@gmail.com", "user@gmail.com"},
		{"gmail dots and tag", "A.B+x@Gmail.com", "ab@gmail.com"},
		{"googlemail aliasing", "a.b+x@googlemail.com", "ab@googlemail.com"},
		{"non-alias domain keeps dots", "a.b@example.com", "a.b@example.com"},
		{"non-alias domain keeps plus", "a+b@example.com", "a+b@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeInvalid(t *testing.T) {
	for _, input := range []string{"", "   ", "no-at-sign", "@example.com", "user@", "...+@gmail.com"} {
		t.Run("input "+input, func(t *testing.T) {
			_, err := Normalize(input)
			assert.ErrorIs(t, err, ErrInvalidEmail)
		})
	}
}

func TestDeriveHandleEquivalence(t *testing.T) {
	d := NewDeriver("")

	// All forms of the same gmail address must collapse to one handle.
	base, err := d.DeriveHandle("ab@gmail.com")
	require.NoError(t, err)

	for _, variant := range []string{"A.B+x@gmail.com", "ab@gmail.com", "AB@Gmail.com", " a.b@GMAIL.COM "} {
		h, err := d.DeriveHandle(variant)
		require.NoError(t, err)
		assert.Equal(t, base, h, "variant %q should derive the same handle", variant)
	}
}

func TestDeriveHandleFormat(t *testing.T) {
	d := NewDeriver("")

	for _, email := range []string{"user@example.com", "a@b.co", "x.y+z@gmail.com", "UPPER@CASE.ORG"} {
		h, err := d.DeriveHandle(email)
		require.NoError(t, err)
		assert.Regexp(t, handlePattern, h)
	}
}

func TestDeriveHandleDeterministic(t *testing.T) {
	d := NewDeriver("")

	h1, err := d.DeriveHandle("user@example.com")
	require.NoError(t, err)
	h2, err := d.DeriveHandle("user@example.com")
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestNamespaceSeparatesHandles(t *testing.T) {
	a := NewDeriver("fm-identity-v1")
	b := NewDeriver("fm-identity-v2")

	ha, err := a.DeriveHandle("user@example.com")
	require.NoError(t, err)
	hb, err := b.DeriveHandle("user@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)
}

func TestDeriveHandleInvalidEmail(t *testing.T) {
	d := NewDeriver("")
	_, err := d.DeriveHandle("not-an-email")
	assert.ErrorIs(t, err, ErrInvalidEmail)
}
