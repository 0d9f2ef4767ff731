// ABOUTME: In-memory Backend and SubscriptionStore implementation for testing.
// ABOUTME: Selected by configuration as a test aid, never a production fallback.

package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fortunamind/persistent-gateway/internal/subscription"
)

// MockBackend is an in-memory store with the same isolation semantics as the
// real backends: every read filters on user handle.
type MockBackend struct {
	mu            sync.RWMutex
	entries       map[string]*JournalEntry            // keyed by entry ID
	preferences   map[string]map[string]*Preference   // user handle -> key -> pref
	records       map[string]map[string]*Record       // user handle -> "type:key" -> record
	subscriptions map[string]*subscription.Record     // keyed by normalized email
	migrated      bool
	failing       bool // simulate an unavailable engine
}

// NewMockBackend creates an empty MockBackend.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		entries:       make(map[string]*JournalEntry),
		preferences:   make(map[string]map[string]*Preference),
		records:       make(map[string]map[string]*Record),
		subscriptions: make(map[string]*subscription.Record),
	}
}

// SetFailing toggles simulated unavailability for failure-path tests.
func (m *MockBackend) SetFailing(failing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing = failing
}

func (m *MockBackend) checkAvailable() error {
	if m.failing {
		return ErrUnavailable
	}
	return nil
}

// Journal

func (m *MockBackend) StoreJournalEntry(_ context.Context, userHandle, text, entryType string, tags []string, metadata json.RawMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkAvailable(); err != nil {
		return "", err
	}

	if entryType == "" {
		entryType = "reflection"
	}
	if tags == nil {
		tags = []string{}
	}

	now := time.Now().UTC()
	entry := &JournalEntry{
		ID:         uuid.New().String(),
		UserHandle: userHandle,
		EntryText:  text,
		EntryType:  entryType,
		Tags:       append([]string(nil), tags...),
		Metadata:   append(json.RawMessage(nil), metadata...),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.entries[entry.ID] = entry
	return entry.ID, nil
}

func (m *MockBackend) GetJournalEntries(_ context.Context, userHandle string, filter EntryFilter, limit, offset int) ([]*JournalEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkAvailable(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	var matched []*JournalEntry
	for _, entry := range m.entries {
		if entry.UserHandle != userHandle || entry.DeletedAt != nil {
			continue
		}
		if filter.EntryType != "" && entry.EntryType != filter.EntryType {
			continue
		}
		if filter.Since != nil && entry.CreatedAt.Before(*filter.Since) {
			continue
		}
		if filter.Tag != "" && !containsTag(entry.Tags, filter.Tag) {
			continue
		}
		matched = append(matched, copyEntry(entry))
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *MockBackend) GetJournalEntry(_ context.Context, userHandle, entryID string) (*JournalEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkAvailable(); err != nil {
		return nil, err
	}

	entry, ok := m.entries[entryID]
	if !ok || entry.UserHandle != userHandle || entry.DeletedAt != nil {
		return nil, ErrNotFound
	}
	return copyEntry(entry), nil
}

func (m *MockBackend) SearchJournalEntries(_ context.Context, userHandle, query string, limit int) ([]*JournalEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkAvailable(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	lowered := strings.ToLower(query)
	var matched []*JournalEntry
	for _, entry := range m.entries {
		if entry.UserHandle != userHandle || entry.DeletedAt != nil {
			continue
		}
		if strings.Contains(strings.ToLower(entry.EntryText), lowered) {
			matched = append(matched, copyEntry(entry))
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *MockBackend) DeleteJournalEntry(_ context.Context, userHandle, entryID string, hard bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkAvailable(); err != nil {
		return err
	}

	entry, ok := m.entries[entryID]
	if !ok || entry.UserHandle != userHandle || entry.DeletedAt != nil {
		return ErrNotFound
	}
	if hard {
		delete(m.entries, entryID)
		return nil
	}
	now := time.Now().UTC()
	entry.DeletedAt = &now
	entry.UpdatedAt = now
	return nil
}

// Preferences

func (m *MockBackend) SetPreference(_ context.Context, userHandle, key string, value json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkAvailable(); err != nil {
		return err
	}

	if m.preferences[userHandle] == nil {
		m.preferences[userHandle] = make(map[string]*Preference)
	}
	m.preferences[userHandle][key] = &Preference{
		UserHandle: userHandle,
		Key:        key,
		Value:      append(json.RawMessage(nil), value...),
		UpdatedAt:  time.Now().UTC(),
	}
	return nil
}

func (m *MockBackend) GetPreference(_ context.Context, userHandle, key string) (*Preference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkAvailable(); err != nil {
		return nil, err
	}

	pref, ok := m.preferences[userHandle][key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *pref
	return &cp, nil
}

// Generic records

func (m *MockBackend) PutRecord(_ context.Context, userHandle, recordType, recordKey string, payload json.RawMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkAvailable(); err != nil {
		return "", err
	}

	if m.records[userHandle] == nil {
		m.records[userHandle] = make(map[string]*Record)
	}
	mapKey := recordType + ":" + recordKey
	if existing, ok := m.records[userHandle][mapKey]; ok {
		existing.Payload = append(json.RawMessage(nil), payload...)
		return existing.ID, nil
	}
	rec := &Record{
		ID:         uuid.New().String(),
		UserHandle: userHandle,
		RecordType: recordType,
		RecordKey:  recordKey,
		Payload:    append(json.RawMessage(nil), payload...),
		CreatedAt:  time.Now().UTC(),
	}
	m.records[userHandle][mapKey] = rec
	return rec.ID, nil
}

func (m *MockBackend) GetRecords(_ context.Context, userHandle, recordType, keyPrefix string) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkAvailable(); err != nil {
		return nil, err
	}

	var out []*Record
	for _, rec := range m.records[userHandle] {
		if rec.RecordType != recordType {
			continue
		}
		if keyPrefix != "" && !strings.HasPrefix(rec.RecordKey, keyPrefix) {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordKey < out[j].RecordKey })
	return out, nil
}

// Aggregates

func (m *MockBackend) UserStats(_ context.Context, userHandle string) (*UserStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkAvailable(); err != nil {
		return nil, err
	}

	monthStart := time.Now().UTC().AddDate(0, 0, -30)
	stats := &UserStats{}
	for _, entry := range m.entries {
		if entry.UserHandle != userHandle || entry.DeletedAt != nil {
			continue
		}
		stats.EntriesTotal++
		if !entry.CreatedAt.Before(monthStart) {
			stats.EntriesThisMonth++
		}
		stats.StorageBytes += int64(len(entry.EntryText) + len(entry.Metadata))
		for _, tag := range entry.Tags {
			stats.StorageBytes += int64(len(tag))
		}
	}
	return stats, nil
}

func (m *MockBackend) PurgeSoftDeleted(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkAvailable(); err != nil {
		return 0, err
	}

	var purged int64
	for id, entry := range m.entries {
		if entry.DeletedAt != nil && entry.DeletedAt.Before(before) {
			delete(m.entries, id)
			purged++
		}
	}
	return purged, nil
}

func (m *MockBackend) Health(_ context.Context) (*Health, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &Health{OK: !m.failing, LatencyMS: 0}, nil
}

// Migrate records that migrations ran; only the first call reports a version.
func (m *MockBackend) Migrate(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkAvailable(); err != nil {
		return nil, err
	}
	if m.migrated {
		return nil, nil
	}
	m.migrated = true
	return []string{"mock"}, nil
}

func (m *MockBackend) Close() error { return nil }

// Subscriptions

func (m *MockBackend) GetSubscription(_ context.Context, emailNormalized string) (*subscription.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkAvailable(); err != nil {
		return nil, err
	}

	record, ok := m.subscriptions[emailNormalized]
	if !ok {
		return nil, subscription.ErrNoSubscription
	}
	cp := *record
	return &cp, nil
}

func (m *MockBackend) UpsertSubscription(_ context.Context, record *subscription.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkAvailable(); err != nil {
		return err
	}

	cp := *record
	if existing, ok := m.subscriptions[record.Email]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.UpdatedAt = time.Now().UTC()
	m.subscriptions[record.Email] = &cp
	return nil
}

func (m *MockBackend) SetSubscriptionStatus(_ context.Context, emailNormalized string, status subscription.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkAvailable(); err != nil {
		return err
	}

	record, ok := m.subscriptions[emailNormalized]
	if !ok {
		return ErrNotFound
	}
	record.Status = status
	record.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MockBackend) ListSubscriptions(_ context.Context, limit int) ([]*subscription.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkAvailable(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	var out []*subscription.Record
	for _, record := range m.subscriptions {
		cp := *record
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Helpers

func copyEntry(entry *JournalEntry) *JournalEntry {
	cp := *entry
	cp.Tags = append([]string(nil), entry.Tags...)
	cp.Metadata = append(json.RawMessage(nil), entry.Metadata...)
	return &cp
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

var (
	_ Backend           = (*MockBackend)(nil)
	_ SubscriptionStore = (*MockBackend)(nil)
)
