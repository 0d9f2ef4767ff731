// ABOUTME: Email-based identity derivation producing stable opaque user handles.
// ABOUTME: Normalizes aliased addresses and hashes them under a deployment namespace.

package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidEmail is returned when an email address fails basic validation.
var ErrInvalidEmail = errors.New("invalid email address")

// DefaultNamespace is the handle derivation namespace used when no
// deployment-specific namespace is configured. Bumping the version suffix
// invalidates every derived handle and requires a storage migration.
const DefaultNamespace = "fm-identity-v1"

// aliasDomains are domains where the local part is dot-insensitive and
// supports +tag suffixes. Addresses on these domains are canonicalized so
// "a.b+promo@gmail.com" and "ab@gmail.com" derive the same handle.
var aliasDomains = map[string]bool{
	"gmail.com":      true,
	"googlemail.com": true,
}

// Deriver derives stable user handles from email addresses.
type Deriver struct {
	namespace string
}

// NewDeriver creates a Deriver with the given namespace.
// An empty namespace falls back to DefaultNamespace.
func NewDeriver(namespace string) *Deriver {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Deriver{namespace: namespace}
}

// Normalize canonicalizes an email address: whitespace trimmed, lowercased,
// and alias-domain local parts stripped of dots and +tags.
func Normalize(email string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return "", fmt.Errorf("%w: empty address", ErrInvalidEmail)
	}

	at := strings.LastIndex(normalized, "@")
	if at <= 0 || at == len(normalized)-1 {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, redact(email))
	}

	local, domain := normalized[:at], normalized[at+1:]
	if aliasDomains[domain] {
		if plus := strings.Index(local, "+"); plus >= 0 {
			local = local[:plus]
		}
		local = strings.ReplaceAll(local, ".", "")
		if local == "" {
			return "", fmt.Errorf("%w: %q", ErrInvalidEmail, redact(email))
		}
	}

	return local + "@" + domain, nil
}

// DeriveHandle maps an email address to its 64-hex-character user handle.
// The mapping is total, pure and deterministic: equal addresses under
// normalization always yield the identical handle.
func (d *Deriver) DeriveHandle(email string) (string, error) {
	normalized, err := Normalize(email)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256([]byte(d.namespace + ":" + normalized))
	return hex.EncodeToString(sum[:]), nil
}

// redact keeps error messages free of full addresses.
func redact(email string) string {
	email = strings.TrimSpace(email)
	if len(email) <= 2 {
		return "***"
	}
	return email[:1] + "***" + email[len(email)-1:]
}
