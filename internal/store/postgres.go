// ABOUTME: Postgres implementation of Backend and SubscriptionStore using gorm.
// ABOUTME: Enforces tenant isolation with row-level-security policies plus explicit predicates.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fortunamind/persistent-gateway/internal/subscription"
)

// PostgresBackend implements Backend and SubscriptionStore on Postgres.
// Isolation is enforced at two independent layers: every query carries an
// explicit user_handle predicate, and the tables carry RLS policies of the
// form user_handle = current_setting('app.user_handle'). The session variable
// is set transaction-locally on every operation, so a pooled connection never
// leaks one tenant's context into another's transaction.
type PostgresBackend struct {
	db  *gorm.DB
	log *slog.Logger
}

// gorm row types. Tags/metadata/payload columns hold JSON-encoded text.

type journalRow struct {
	ID         string `gorm:"type:uuid;primaryKey"`
	UserHandle string `gorm:"size:64;not null;index:idx_journal_user_created,priority:1"`
	EntryText  string `gorm:"not null"`
	EntryType  string `gorm:"not null;default:reflection;index:idx_journal_user_type"`
	Tags       string `gorm:"not null;default:'[]'"`
	Metadata   *string
	CreatedAt  time.Time `gorm:"not null;index:idx_journal_user_created,priority:2,sort:desc"`
	UpdatedAt  time.Time `gorm:"not null"`
	DeletedAt  *time.Time
}

func (journalRow) TableName() string { return "journal_entries" }

type preferenceRow struct {
	UserHandle string    `gorm:"size:64;primaryKey"`
	Key        string    `gorm:"primaryKey"`
	Value      string    `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (preferenceRow) TableName() string { return "user_preferences" }

type storageRecordRow struct {
	ID         string    `gorm:"type:uuid;primaryKey"`
	UserHandle string    `gorm:"size:64;not null;uniqueIndex:idx_records_identity,priority:1"`
	RecordType string    `gorm:"not null;uniqueIndex:idx_records_identity,priority:2"`
	RecordKey  string    `gorm:"not null;uniqueIndex:idx_records_identity,priority:3"`
	Payload    string    `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (storageRecordRow) TableName() string { return "storage_records" }

type subscriptionRow struct {
	Email     string `gorm:"primaryKey"`
	Key       string `gorm:"column:subscription_key;not null;index"`
	Tier      string `gorm:"not null"`
	Status    string `gorm:"not null;default:active"`
	ExpiresAt *time.Time
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (subscriptionRow) TableName() string { return "user_subscriptions" }

type migrationRow struct {
	Version   string    `gorm:"primaryKey"`
	AppliedAt time.Time `gorm:"not null"`
}

func (migrationRow) TableName() string { return "schema_migrations" }

// NewPostgresBackend connects to the database at dsn and applies all pending
// migrations, including the RLS policies.
func NewPostgresBackend(dsn string) (*PostgresBackend, error) {
	log := slog.Default().With("component", "store")

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	s := &PostgresBackend{db: db, log: log}

	applied, err := s.Migrate(context.Background())
	if err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if len(applied) > 0 {
		log.Info("applied migrations", "versions", applied)
	}

	log.Info("Postgres store initialized")
	return s, nil
}

// rlsPolicySQL builds the enable + policy statements for one user-scoped table.
func rlsPolicySQL(table string) []string {
	return []string{
		fmt.Sprintf(`ALTER TABLE %s ENABLE ROW LEVEL SECURITY`, table),
		fmt.Sprintf(`ALTER TABLE %s FORCE ROW LEVEL SECURITY`, table),
		fmt.Sprintf(`DROP POLICY IF EXISTS %s_tenant ON %s`, table, table),
		fmt.Sprintf(`CREATE POLICY %s_tenant ON %s
			USING (user_handle = current_setting('app.user_handle', true))
			WITH CHECK (user_handle = current_setting('app.user_handle', true))`, table, table),
	}
}

type pgMigration struct {
	version string
	apply   func(tx *gorm.DB) error
}

var pgMigrations = []pgMigration{
	{
		version: "001_tables",
		apply: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&subscriptionRow{}, &journalRow{}, &preferenceRow{}, &storageRecordRow{})
		},
	},
	{
		version: "002_rls_policies",
		apply: func(tx *gorm.DB) error {
			for _, table := range []string{"journal_entries", "user_preferences", "storage_records"} {
				for _, stmt := range rlsPolicySQL(table) {
					if err := tx.Exec(stmt).Error; err != nil {
						return fmt.Errorf("applying RLS to %s: %w", table, err)
					}
				}
			}
			return nil
		},
	},
}

// Migrate applies pending versions and records them. Idempotent.
func (s *PostgresBackend) Migrate(ctx context.Context) ([]string, error) {
	if err := s.db.WithContext(ctx).AutoMigrate(&migrationRow{}); err != nil {
		return nil, fmt.Errorf("creating schema_migrations: %w", err)
	}

	var applied []string
	for _, m := range pgMigrations {
		var count int64
		if err := s.db.WithContext(ctx).Model(&migrationRow{}).
			Where("version = ?", m.version).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("checking migration %s: %w", m.version, err)
		}
		if count > 0 {
			continue
		}

		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := m.apply(tx); err != nil {
				return err
			}
			return tx.Create(&migrationRow{Version: m.version, AppliedAt: time.Now().UTC()}).Error
		})
		if err != nil {
			return nil, fmt.Errorf("applying migration %s: %w", m.version, err)
		}
		applied = append(applied, m.version)
	}
	return applied, nil
}

// inTenantTx runs fn inside a transaction with the RLS session variable set
// transaction-locally to the caller's handle. Setting and clearing happen on
// every checkout; set_config(..., true) resets at transaction end so pooled
// connections cannot leak context.
func (s *PostgresBackend) inTenantTx(ctx context.Context, userHandle string, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`SELECT set_config('app.user_handle', ?, true)`, userHandle).Error; err != nil {
			return fmt.Errorf("setting session context: %w", err)
		}
		return fn(tx)
	})
}

// Journal

func (s *PostgresBackend) StoreJournalEntry(ctx context.Context, userHandle, text, entryType string, tags []string, metadata json.RawMessage) (string, error) {
	if entryType == "" {
		entryType = "reflection"
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encoding tags: %w", err)
	}

	row := journalRow{
		ID:         uuid.New().String(),
		UserHandle: userHandle,
		EntryText:  text,
		EntryType:  entryType,
		Tags:       string(tagsJSON),
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	if len(metadata) > 0 {
		m := string(metadata)
		row.Metadata = &m
	}

	err = s.inTenantTx(ctx, userHandle, func(tx *gorm.DB) error {
		return tx.Create(&row).Error
	})
	if err != nil {
		return "", s.mapError("inserting journal entry", err)
	}
	return row.ID, nil
}

func (s *PostgresBackend) GetJournalEntries(ctx context.Context, userHandle string, filter EntryFilter, limit, offset int) ([]*JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []journalRow
	err := s.inTenantTx(ctx, userHandle, func(tx *gorm.DB) error {
		q := tx.Where("user_handle = ? AND deleted_at IS NULL", userHandle)
		if filter.EntryType != "" {
			q = q.Where("entry_type = ?", filter.EntryType)
		}
		if filter.Since != nil {
			q = q.Where("created_at >= ?", filter.Since.UTC())
		}
		if filter.Tag != "" {
			q = q.Where("jsonb_exists(tags::jsonb, ?)", filter.Tag)
		}
		return q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&rows).Error
	})
	if err != nil {
		return nil, s.mapError("querying journal entries", err)
	}

	entries := make([]*JournalEntry, 0, len(rows))
	for i := range rows {
		entry, err := rows[i].toEntry(userHandle)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *PostgresBackend) GetJournalEntry(ctx context.Context, userHandle, entryID string) (*JournalEntry, error) {
	var row journalRow
	err := s.inTenantTx(ctx, userHandle, func(tx *gorm.DB) error {
		return tx.Where("user_handle = ? AND id = ? AND deleted_at IS NULL", userHandle, entryID).
			First(&row).Error
	})
	if err != nil {
		return nil, s.mapError("querying journal entry", err)
	}
	return row.toEntry(userHandle)
}

func (s *PostgresBackend) SearchJournalEntries(ctx context.Context, userHandle, query string, limit int) ([]*JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []journalRow
	err := s.inTenantTx(ctx, userHandle, func(tx *gorm.DB) error {
		return tx.Where("user_handle = ? AND deleted_at IS NULL AND entry_text ILIKE ?",
			userHandle, "%"+escapeLike(query)+"%").
			Order("created_at DESC").Limit(limit).Find(&rows).Error
	})
	if err != nil {
		return nil, s.mapError("searching journal entries", err)
	}

	entries := make([]*JournalEntry, 0, len(rows))
	for i := range rows {
		entry, err := rows[i].toEntry(userHandle)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *PostgresBackend) DeleteJournalEntry(ctx context.Context, userHandle, entryID string, hard bool) error {
	err := s.inTenantTx(ctx, userHandle, func(tx *gorm.DB) error {
		var result *gorm.DB
		if hard {
			result = tx.Where("user_handle = ? AND id = ?", userHandle, entryID).
				Delete(&journalRow{})
		} else {
			now := time.Now().UTC()
			result = tx.Model(&journalRow{}).
				Where("user_handle = ? AND id = ? AND deleted_at IS NULL", userHandle, entryID).
				Updates(map[string]any{"deleted_at": now, "updated_at": now})
		}
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return s.mapError("deleting journal entry", err)
	}
	return nil
}

// Preferences

func (s *PostgresBackend) SetPreference(ctx context.Context, userHandle, key string, value json.RawMessage) error {
	err := s.inTenantTx(ctx, userHandle, func(tx *gorm.DB) error {
		return tx.Exec(`
			INSERT INTO user_preferences (user_handle, key, value, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (user_handle, key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
		`, userHandle, key, string(value), time.Now().UTC()).Error
	})
	if err != nil {
		return s.mapError("setting preference", err)
	}
	return nil
}

func (s *PostgresBackend) GetPreference(ctx context.Context, userHandle, key string) (*Preference, error) {
	var row preferenceRow
	err := s.inTenantTx(ctx, userHandle, func(tx *gorm.DB) error {
		return tx.Where("user_handle = ? AND key = ?", userHandle, key).First(&row).Error
	})
	if err != nil {
		return nil, s.mapError("querying preference", err)
	}
	return &Preference{
		UserHandle: row.UserHandle,
		Key:        row.Key,
		Value:      json.RawMessage(row.Value),
		UpdatedAt:  row.UpdatedAt,
	}, nil
}

// Generic records

func (s *PostgresBackend) PutRecord(ctx context.Context, userHandle, recordType, recordKey string, payload json.RawMessage) (string, error) {
	var id string
	err := s.inTenantTx(ctx, userHandle, func(tx *gorm.DB) error {
		return tx.Raw(`
			INSERT INTO storage_records (id, user_handle, record_type, record_key, payload, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_handle, record_type, record_key) DO UPDATE SET payload = EXCLUDED.payload
			RETURNING id
		`, uuid.New().String(), userHandle, recordType, recordKey, string(payload), time.Now().UTC()).
			Scan(&id).Error
	})
	if err != nil {
		return "", s.mapError("putting record", err)
	}
	return id, nil
}

func (s *PostgresBackend) GetRecords(ctx context.Context, userHandle, recordType, keyPrefix string) ([]*Record, error) {
	var rows []storageRecordRow
	err := s.inTenantTx(ctx, userHandle, func(tx *gorm.DB) error {
		q := tx.Where("user_handle = ? AND record_type = ?", userHandle, recordType)
		if keyPrefix != "" {
			q = q.Where("record_key LIKE ?", escapeLike(keyPrefix)+"%")
		}
		return q.Order("record_key").Find(&rows).Error
	})
	if err != nil {
		return nil, s.mapError("querying records", err)
	}

	records := make([]*Record, 0, len(rows))
	for i := range rows {
		records = append(records, &Record{
			ID:         rows[i].ID,
			UserHandle: rows[i].UserHandle,
			RecordType: rows[i].RecordType,
			RecordKey:  rows[i].RecordKey,
			Payload:    json.RawMessage(rows[i].Payload),
			CreatedAt:  rows[i].CreatedAt,
		})
	}
	return records, nil
}

// Aggregates

func (s *PostgresBackend) UserStats(ctx context.Context, userHandle string) (*UserStats, error) {
	var stats UserStats
	monthStart := time.Now().UTC().AddDate(0, 0, -30)

	err := s.inTenantTx(ctx, userHandle, func(tx *gorm.DB) error {
		return tx.Raw(`
			SELECT
				COUNT(*) AS entries_total,
				COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0) AS entries_this_month,
				COALESCE(SUM(LENGTH(entry_text) + LENGTH(tags) + COALESCE(LENGTH(metadata), 0)), 0) AS storage_bytes
			FROM journal_entries
			WHERE user_handle = ? AND deleted_at IS NULL
		`, monthStart, userHandle).Scan(&stats).Error
	})
	if err != nil {
		return nil, s.mapError("querying user stats", err)
	}
	return &stats, nil
}

func (s *PostgresBackend) PurgeSoftDeleted(ctx context.Context, before time.Time) (int64, error) {
	// Retention runs outside any tenant session. The journal table carries
	// FORCE ROW LEVEL SECURITY, so without a session handle the tenant
	// policy matches zero rows even for the owning role; row security is
	// switched off transaction-locally for the purge.
	var affected int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`SET LOCAL row_security = off`).Error; err != nil {
			return fmt.Errorf("disabling row security: %w", err)
		}
		result := tx.Where("deleted_at IS NOT NULL AND deleted_at < ?", before.UTC()).
			Delete(&journalRow{})
		if result.Error != nil {
			return result.Error
		}
		affected = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, s.mapError("purging soft-deleted entries", err)
	}
	return affected, nil
}

func (s *PostgresBackend) Health(ctx context.Context) (*Health, error) {
	start := time.Now()
	sqlDB, err := s.db.DB()
	if err != nil {
		return &Health{OK: false}, nil
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return &Health{OK: false, LatencyMS: time.Since(start).Milliseconds()}, nil
	}
	return &Health{OK: true, LatencyMS: time.Since(start).Milliseconds()}, nil
}

func (s *PostgresBackend) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Subscriptions

func (s *PostgresBackend) GetSubscription(ctx context.Context, emailNormalized string) (*subscription.Record, error) {
	var row subscriptionRow
	err := s.db.WithContext(ctx).Where("email = ?", emailNormalized).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, subscription.ErrNoSubscription
		}
		return nil, s.mapError("querying subscription", err)
	}
	return row.toRecord(), nil
}

func (s *PostgresBackend) UpsertSubscription(ctx context.Context, record *subscription.Record) error {
	err := s.db.WithContext(ctx).Exec(`
		INSERT INTO user_subscriptions (email, subscription_key, tier, status, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (email) DO UPDATE SET
			subscription_key = EXCLUDED.subscription_key,
			tier = EXCLUDED.tier,
			status = EXCLUDED.status,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`, record.Email, record.Key, string(record.Tier), string(record.Status),
		record.ExpiresAt, time.Now().UTC(), time.Now().UTC()).Error
	if err != nil {
		return s.mapError("upserting subscription", err)
	}
	return nil
}

func (s *PostgresBackend) SetSubscriptionStatus(ctx context.Context, emailNormalized string, status subscription.Status) error {
	result := s.db.WithContext(ctx).Model(&subscriptionRow{}).
		Where("email = ?", emailNormalized).
		Updates(map[string]any{"status": string(status), "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return s.mapError("updating subscription status", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresBackend) ListSubscriptions(ctx context.Context, limit int) ([]*subscription.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []subscriptionRow
	err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, s.mapError("listing subscriptions", err)
	}
	records := make([]*subscription.Record, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].toRecord())
	}
	return records, nil
}

// Helpers

func (r *journalRow) toEntry(userHandle string) (*JournalEntry, error) {
	if r.UserHandle != userHandle {
		return nil, ErrTenantViolation
	}

	entry := &JournalEntry{
		ID:         r.ID,
		UserHandle: r.UserHandle,
		EntryText:  r.EntryText,
		EntryType:  r.EntryType,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
		DeletedAt:  r.DeletedAt,
	}
	if err := json.Unmarshal([]byte(r.Tags), &entry.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags: %w", err)
	}
	if r.Metadata != nil && *r.Metadata != "" {
		entry.Metadata = json.RawMessage(*r.Metadata)
	}
	return entry, nil
}

func (r *subscriptionRow) toRecord() *subscription.Record {
	return &subscription.Record{
		Email:     r.Email,
		Key:       r.Key,
		Tier:      subscription.Tier(r.Tier),
		Status:    subscription.Status(r.Status),
		ExpiresAt: r.ExpiresAt,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// mapError classifies gorm/driver errors into the store taxonomy.
func (s *PostgresBackend) mapError(op string, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ErrTenantViolation):
		return err
	case strings.Contains(err.Error(), "duplicate key"):
		return fmt.Errorf("%s: %w", op, ErrConflict)
	case strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "connection reset"):
		return fmt.Errorf("%s: %w", op, ErrUnavailable)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

var (
	_ Backend           = (*PostgresBackend)(nil)
	_ SubscriptionStore = (*PostgresBackend)(nil)
)
