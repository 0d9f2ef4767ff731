// ABOUTME: Backend interface and data types for user-scoped persistence.
// ABOUTME: Defines journal, preference, and generic record types plus the store contracts.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fortunamind/persistent-gateway/internal/subscription"
)

// Storage errors, translated to the public taxonomy at the protocol boundary.
var (
	// ErrNotFound is returned when a requested row does not exist for the
	// caller's user handle. A row owned by another tenant is indistinguishable
	// from a missing row.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a uniqueness constraint is violated.
	ErrConflict = errors.New("conflict")

	// ErrUnavailable is returned when the backing engine cannot be reached.
	ErrUnavailable = errors.New("storage unavailable")

	// ErrTenantViolation is returned when a scanned row's user_handle does not
	// match the session handle. It indicates a bug in query construction and
	// is never caused by client input.
	ErrTenantViolation = errors.New("tenant isolation violation")
)

// JournalEntry is one user journal record.
type JournalEntry struct {
	ID         string          `json:"id"`
	UserHandle string          `json:"-"`
	EntryText  string          `json:"entry_text"`
	EntryType  string          `json:"entry_type"`
	Tags       []string        `json:"tags"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	DeletedAt  *time.Time      `json:"-"`
}

// Preference is a per-user key/value setting with a JSON value.
type Preference struct {
	UserHandle string          `json:"-"`
	Key        string          `json:"key"`
	Value      json.RawMessage `json:"value"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Record is a generic extension row scoped to a user.
type Record struct {
	ID         string          `json:"id"`
	UserHandle string          `json:"-"`
	RecordType string          `json:"record_type"`
	RecordKey  string          `json:"record_key"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}

// EntryFilter narrows a journal listing.
type EntryFilter struct {
	EntryType string
	Tag       string
	Since     *time.Time
}

// UserStats summarizes a user's stored footprint.
type UserStats struct {
	EntriesTotal     int   `json:"entries_total"`
	EntriesThisMonth int   `json:"entries_this_month"`
	StorageBytes     int64 `json:"storage_bytes"`
}

// Health reports store reachability and round-trip latency.
type Health struct {
	OK        bool  `json:"ok"`
	LatencyMS int64 `json:"latency_ms"`
}

// Backend is the user-scoped record store. Every operation takes the caller's
// user handle and returns only rows owned by it; cross-tenant reads are
// impossible by construction. Mutations for the same (user_handle, key) are
// serializable.
type Backend interface {
	// Journal
	StoreJournalEntry(ctx context.Context, userHandle, text, entryType string, tags []string, metadata json.RawMessage) (string, error)
	GetJournalEntries(ctx context.Context, userHandle string, filter EntryFilter, limit, offset int) ([]*JournalEntry, error)
	GetJournalEntry(ctx context.Context, userHandle, entryID string) (*JournalEntry, error)
	SearchJournalEntries(ctx context.Context, userHandle, query string, limit int) ([]*JournalEntry, error)
	// DeleteJournalEntry soft-deletes by default; hard removes the row
	// physically. The delete tool passes hard only for enterprise callers.
	DeleteJournalEntry(ctx context.Context, userHandle, entryID string, hard bool) error

	// Preferences
	SetPreference(ctx context.Context, userHandle, key string, value json.RawMessage) error
	GetPreference(ctx context.Context, userHandle, key string) (*Preference, error)

	// Generic records
	PutRecord(ctx context.Context, userHandle, recordType, recordKey string, payload json.RawMessage) (string, error)
	GetRecords(ctx context.Context, userHandle, recordType, keyPrefix string) ([]*Record, error)

	// Aggregates and lifecycle
	UserStats(ctx context.Context, userHandle string) (*UserStats, error)
	PurgeSoftDeleted(ctx context.Context, before time.Time) (int64, error)

	Health(ctx context.Context) (*Health, error)
	// Migrate applies pending schema versions and returns the versions applied
	// by this call. It is idempotent: a second call applies zero versions.
	Migrate(ctx context.Context) ([]string, error)

	Close() error
}

// SubscriptionStore is the administrative surface over subscription records.
// It embeds the validator's read-side Registry. Rows are keyed by normalized
// email; revocation marks rather than deletes.
type SubscriptionStore interface {
	subscription.Registry

	UpsertSubscription(ctx context.Context, record *subscription.Record) error
	SetSubscriptionStatus(ctx context.Context, emailNormalized string, status subscription.Status) error
	ListSubscriptions(ctx context.Context, limit int) ([]*subscription.Record, error)
}
