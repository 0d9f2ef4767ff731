// ABOUTME: SQLite implementation of the Backend and SubscriptionStore interfaces.
// ABOUTME: Uses modernc.org/sqlite with WAL mode and versioned idempotent migrations.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/fortunamind/persistent-gateway/internal/subscription"
)

// timeLayout stores UTC timestamps with sub-millisecond precision. The
// fraction is always nine digits, so text order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteBackend implements Backend and SubscriptionStore on a single SQLite
// database. Tenant isolation is enforced by an explicit user_handle predicate
// on every query plus a row guard that rejects any scanned row whose handle
// differs from the session's.
type SQLiteBackend struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteBackend opens (or creates) the database at path and applies all
// pending migrations. Parent directories are created if needed.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteBackend{db: db, logger: logger}

	applied, err := s.Migrate(context.Background())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if len(applied) > 0 {
		logger.Info("applied migrations", "versions", applied)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// migration is one idempotent schema step identified by version.
type migration struct {
	version string
	apply   string
}

var migrations = []migration{
	{
		version: "001_subscriptions",
		apply: `
			CREATE TABLE IF NOT EXISTS user_subscriptions (
				email            TEXT PRIMARY KEY,
				subscription_key TEXT NOT NULL,
				tier             TEXT NOT NULL,
				status           TEXT NOT NULL DEFAULT 'active',
				expires_at       TEXT,
				created_at       TEXT NOT NULL,
				updated_at       TEXT NOT NULL,

				CHECK (status IN ('active', 'expired', 'revoked', 'grace')),
				CHECK (tier IN ('free', 'starter', 'premium', 'enterprise'))
			);

			CREATE INDEX IF NOT EXISTS idx_subscriptions_key
				ON user_subscriptions(subscription_key);
		`,
	},
	{
		version: "002_journal",
		apply: `
			CREATE TABLE IF NOT EXISTS journal_entries (
				id          TEXT PRIMARY KEY,
				user_handle TEXT NOT NULL,
				entry_text  TEXT NOT NULL,
				entry_type  TEXT NOT NULL DEFAULT 'reflection',
				tags        TEXT NOT NULL DEFAULT '[]',
				metadata    TEXT,
				created_at  TEXT NOT NULL,
				updated_at  TEXT NOT NULL,
				deleted_at  TEXT
			);

			CREATE INDEX IF NOT EXISTS idx_journal_user_created
				ON journal_entries(user_handle, created_at DESC);
			CREATE INDEX IF NOT EXISTS idx_journal_user_type
				ON journal_entries(user_handle, entry_type);
		`,
	},
	{
		version: "003_preferences",
		apply: `
			CREATE TABLE IF NOT EXISTS user_preferences (
				user_handle TEXT NOT NULL,
				key         TEXT NOT NULL,
				value       TEXT NOT NULL,
				updated_at  TEXT NOT NULL,

				PRIMARY KEY (user_handle, key)
			);
		`,
	},
	{
		version: "004_storage_records",
		apply: `
			CREATE TABLE IF NOT EXISTS storage_records (
				id          TEXT PRIMARY KEY,
				user_handle TEXT NOT NULL,
				record_type TEXT NOT NULL,
				record_key  TEXT NOT NULL,
				payload     TEXT NOT NULL,
				created_at  TEXT NOT NULL,

				UNIQUE (user_handle, record_type, record_key)
			);

			CREATE INDEX IF NOT EXISTS idx_records_user_type
				ON storage_records(user_handle, record_type);
		`,
	},
}

// Migrate applies pending migrations in order and records them in
// schema_migrations. Safe to call repeatedly; a second call applies nothing.
func (s *SQLiteBackend) Migrate(ctx context.Context) ([]string, error) {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`); err != nil {
		return nil, fmt.Errorf("creating schema_migrations: %w", err)
	}

	var applied []string
	for _, m := range migrations {
		var exists int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, m.version).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("checking migration %s: %w", m.version, err)
		}
		if exists > 0 {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("beginning migration %s: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, m.apply); err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("applying migration %s: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
			m.version, now()); err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("recording migration %s: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("committing migration %s: %w", m.version, err)
		}
		applied = append(applied, m.version)
	}

	return applied, nil
}

// Journal

// StoreJournalEntry inserts a journal entry and returns its ID.
func (s *SQLiteBackend) StoreJournalEntry(ctx context.Context, userHandle, text, entryType string, tags []string, metadata json.RawMessage) (string, error) {
	if entryType == "" {
		entryType = "reflection"
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encoding tags: %w", err)
	}

	id := uuid.New().String()
	ts := now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO journal_entries (id, user_handle, entry_text, entry_type, tags, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, userHandle, text, entryType, string(tagsJSON), nullJSON(metadata), ts, ts)
	if err != nil {
		return "", s.mapError("inserting journal entry", err)
	}

	s.logger.Debug("stored journal entry", "entry_id", id, "entry_type", entryType)
	return id, nil
}

// GetJournalEntries lists a user's entries, newest first. Soft-deleted rows
// are excluded.
func (s *SQLiteBackend) GetJournalEntries(ctx context.Context, userHandle string, filter EntryFilter, limit, offset int) ([]*JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, user_handle, entry_text, entry_type, tags, metadata, created_at, updated_at
		FROM journal_entries
		WHERE user_handle = ? AND deleted_at IS NULL
	`
	args := []any{userHandle}

	if filter.EntryType != "" {
		query += " AND entry_type = ?"
		args = append(args, filter.EntryType)
	}
	if filter.Since != nil {
		query += " AND created_at >= ?"
		args = append(args, filter.Since.UTC().Format(timeLayout))
	}
	if filter.Tag != "" {
		// Tags are stored as a JSON array of strings.
		query += ` AND EXISTS (SELECT 1 FROM json_each(journal_entries.tags) WHERE json_each.value = ?)`
		args = append(args, filter.Tag)
	}

	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.mapError("querying journal entries", err)
	}
	defer func() { _ = rows.Close() }()

	return s.scanEntries(rows, userHandle)
}

// GetJournalEntry fetches one entry by ID. Rows owned by other tenants are
// reported as ErrNotFound.
func (s *SQLiteBackend) GetJournalEntry(ctx context.Context, userHandle, entryID string) (*JournalEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_handle, entry_text, entry_type, tags, metadata, created_at, updated_at
		FROM journal_entries
		WHERE user_handle = ? AND id = ? AND deleted_at IS NULL
	`, userHandle, entryID)

	entry, err := scanEntry(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, s.mapError("querying journal entry", err)
	}
	if entry.UserHandle != userHandle {
		return nil, ErrTenantViolation
	}
	return entry, nil
}

// SearchJournalEntries does a substring search over entry text.
func (s *SQLiteBackend) SearchJournalEntries(ctx context.Context, userHandle, query string, limit int) ([]*JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_handle, entry_text, entry_type, tags, metadata, created_at, updated_at
		FROM journal_entries
		WHERE user_handle = ? AND deleted_at IS NULL AND entry_text LIKE ? ESCAPE '\'
		ORDER BY created_at DESC
		LIMIT ?
	`, userHandle, "%"+escapeLike(query)+"%", limit)
	if err != nil {
		return nil, s.mapError("searching journal entries", err)
	}
	defer func() { _ = rows.Close() }()

	return s.scanEntries(rows, userHandle)
}

// DeleteJournalEntry soft-deletes by default; hard physically removes the row.
func (s *SQLiteBackend) DeleteJournalEntry(ctx context.Context, userHandle, entryID string, hard bool) error {
	var result sql.Result
	var err error
	if hard {
		result, err = s.db.ExecContext(ctx,
			`DELETE FROM journal_entries WHERE user_handle = ? AND id = ?`,
			userHandle, entryID)
	} else {
		result, err = s.db.ExecContext(ctx,
			`UPDATE journal_entries SET deleted_at = ?, updated_at = ? WHERE user_handle = ? AND id = ? AND deleted_at IS NULL`,
			now(), now(), userHandle, entryID)
	}
	if err != nil {
		return s.mapError("deleting journal entry", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Preferences

// SetPreference upserts a preference value. Re-putting the same payload is a
// semantic no-op.
func (s *SQLiteBackend) SetPreference(ctx context.Context, userHandle, key string, value json.RawMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_preferences (user_handle, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_handle, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, userHandle, key, string(value), now())
	if err != nil {
		return s.mapError("setting preference", err)
	}
	return nil
}

// GetPreference fetches one preference by key.
func (s *SQLiteBackend) GetPreference(ctx context.Context, userHandle, key string) (*Preference, error) {
	var pref Preference
	var value, updatedAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT user_handle, key, value, updated_at
		FROM user_preferences
		WHERE user_handle = ? AND key = ?
	`, userHandle, key).Scan(&pref.UserHandle, &pref.Key, &value, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, s.mapError("querying preference", err)
	}
	if pref.UserHandle != userHandle {
		return nil, ErrTenantViolation
	}

	pref.Value = json.RawMessage(value)
	pref.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	return &pref, nil
}

// Generic records

// PutRecord upserts an extension record and returns its ID.
func (s *SQLiteBackend) PutRecord(ctx context.Context, userHandle, recordType, recordKey string, payload json.RawMessage) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO storage_records (id, user_handle, record_type, record_key, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_handle, record_type, record_key) DO UPDATE SET payload = excluded.payload
	`, id, userHandle, recordType, recordKey, string(payload), now())
	if err != nil {
		return "", s.mapError("putting record", err)
	}

	// On conflict the original row keeps its ID; read it back.
	var storedID string
	err = s.db.QueryRowContext(ctx, `
		SELECT id FROM storage_records WHERE user_handle = ? AND record_type = ? AND record_key = ?
	`, userHandle, recordType, recordKey).Scan(&storedID)
	if err != nil {
		return "", s.mapError("reading record id", err)
	}
	return storedID, nil
}

// GetRecords lists a user's records of one type, optionally filtered by key prefix.
func (s *SQLiteBackend) GetRecords(ctx context.Context, userHandle, recordType, keyPrefix string) ([]*Record, error) {
	query := `
		SELECT id, user_handle, record_type, record_key, payload, created_at
		FROM storage_records
		WHERE user_handle = ? AND record_type = ?
	`
	args := []any{userHandle, recordType}
	if keyPrefix != "" {
		query += ` AND record_key LIKE ? ESCAPE '\'`
		args = append(args, escapeLike(keyPrefix)+"%")
	}
	query += " ORDER BY record_key"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.mapError("querying records", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*Record
	for rows.Next() {
		var rec Record
		var payload, createdAt string
		if err := rows.Scan(&rec.ID, &rec.UserHandle, &rec.RecordType, &rec.RecordKey, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		if rec.UserHandle != userHandle {
			return nil, ErrTenantViolation
		}
		rec.Payload = json.RawMessage(payload)
		if rec.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return records, nil
}

// Aggregates

// UserStats summarizes the user's stored footprint.
func (s *SQLiteBackend) UserStats(ctx context.Context, userHandle string) (*UserStats, error) {
	monthStart := time.Now().UTC().AddDate(0, 0, -30).Format(timeLayout)

	var stats UserStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(LENGTH(entry_text) + LENGTH(tags) + COALESCE(LENGTH(metadata), 0)), 0)
		FROM journal_entries
		WHERE user_handle = ? AND deleted_at IS NULL
	`, monthStart, userHandle).Scan(&stats.EntriesTotal, &stats.EntriesThisMonth, &stats.StorageBytes)
	if err != nil {
		return nil, s.mapError("querying user stats", err)
	}
	return &stats, nil
}

// PurgeSoftDeleted physically removes soft-deleted entries older than before.
// Run by the retention job.
func (s *SQLiteBackend) PurgeSoftDeleted(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM journal_entries WHERE deleted_at IS NOT NULL AND deleted_at < ?`,
		before.UTC().Format(timeLayout))
	if err != nil {
		return 0, s.mapError("purging soft-deleted entries", err)
	}
	return result.RowsAffected()
}

// Health pings the database and reports round-trip latency.
func (s *SQLiteBackend) Health(ctx context.Context) (*Health, error) {
	start := time.Now()
	if err := s.db.PingContext(ctx); err != nil {
		return &Health{OK: false, LatencyMS: time.Since(start).Milliseconds()}, nil
	}
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return &Health{OK: false, LatencyMS: time.Since(start).Milliseconds()}, nil
	}
	return &Health{OK: true, LatencyMS: time.Since(start).Milliseconds()}, nil
}

// Close releases the database handle.
func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

// Subscriptions

// GetSubscription looks up a subscription by normalized email.
func (s *SQLiteBackend) GetSubscription(ctx context.Context, emailNormalized string) (*subscription.Record, error) {
	var record subscription.Record
	var tier, status, createdAt, updatedAt string
	var expiresAt sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT email, subscription_key, tier, status, expires_at, created_at, updated_at
		FROM user_subscriptions
		WHERE email = ?
	`, emailNormalized).Scan(&record.Email, &record.Key, &tier, &status, &expiresAt, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, subscription.ErrNoSubscription
		}
		return nil, s.mapError("querying subscription", err)
	}

	record.Tier = subscription.Tier(tier)
	record.Status = subscription.Status(status)
	if expiresAt.Valid {
		t, err := parseTime(expiresAt.String)
		if err != nil {
			return nil, err
		}
		record.ExpiresAt = &t
	}
	if record.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if record.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &record, nil
}

// UpsertSubscription creates or replaces the row for the record's email.
func (s *SQLiteBackend) UpsertSubscription(ctx context.Context, record *subscription.Record) error {
	var expiresAt any
	if record.ExpiresAt != nil {
		expiresAt = record.ExpiresAt.UTC().Format(timeLayout)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_subscriptions (email, subscription_key, tier, status, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (email) DO UPDATE SET
			subscription_key = excluded.subscription_key,
			tier = excluded.tier,
			status = excluded.status,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, record.Email, record.Key, string(record.Tier), string(record.Status), expiresAt, now(), now())
	if err != nil {
		return s.mapError("upserting subscription", err)
	}
	return nil
}

// SetSubscriptionStatus updates the status of an existing row. Revocation is
// a status change; rows are never deleted.
func (s *SQLiteBackend) SetSubscriptionStatus(ctx context.Context, emailNormalized string, status subscription.Status) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE user_subscriptions SET status = ?, updated_at = ? WHERE email = ?`,
		string(status), now(), emailNormalized)
	if err != nil {
		return s.mapError("updating subscription status", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSubscriptions returns up to limit subscription rows, newest first.
func (s *SQLiteBackend) ListSubscriptions(ctx context.Context, limit int) ([]*subscription.Record, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT email, subscription_key, tier, status, expires_at, created_at, updated_at
		FROM user_subscriptions
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, s.mapError("listing subscriptions", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*subscription.Record
	for rows.Next() {
		var record subscription.Record
		var tier, status, createdAt, updatedAt string
		var expiresAt sql.NullString
		if err := rows.Scan(&record.Email, &record.Key, &tier, &status, &expiresAt, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning subscription: %w", err)
		}
		record.Tier = subscription.Tier(tier)
		record.Status = subscription.Status(status)
		if expiresAt.Valid {
			t, err := parseTime(expiresAt.String)
			if err != nil {
				return nil, err
			}
			record.ExpiresAt = &t
		}
		if record.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if record.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating subscriptions: %w", err)
	}
	return records, nil
}

// Helpers

type rowScanner interface {
	Scan(dest ...any) error
}

// scanEntry scans one journal entry row.
func scanEntry(row rowScanner) (*JournalEntry, error) {
	var entry JournalEntry
	var tags, createdAt, updatedAt string
	var metadata sql.NullString

	err := row.Scan(&entry.ID, &entry.UserHandle, &entry.EntryText, &entry.EntryType,
		&tags, &metadata, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tags), &entry.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags: %w", err)
	}
	if metadata.Valid && metadata.String != "" {
		entry.Metadata = json.RawMessage(metadata.String)
	}
	if entry.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if entry.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &entry, nil
}

// scanEntries scans all rows, enforcing the tenant guard on each.
func (s *SQLiteBackend) scanEntries(rows *sql.Rows, userHandle string) ([]*JournalEntry, error) {
	var entries []*JournalEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}
		if entry.UserHandle != userHandle {
			return nil, ErrTenantViolation
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal entries: %w", err)
	}
	return entries, nil
}

// mapError classifies driver errors into the store error taxonomy.
func (s *SQLiteBackend) mapError(op string, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "constraint"):
		return fmt.Errorf("%s: %w", op, ErrConflict)
	case strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "unable to open"):
		return fmt.Errorf("%s: %w", op, ErrUnavailable)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func now() string {
	return time.Now().UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// escapeLike escapes LIKE wildcards in user-supplied patterns.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

var (
	_ Backend           = (*SQLiteBackend)(nil)
	_ SubscriptionStore = (*SQLiteBackend)(nil)
)
