// Package store provides user-scoped persistence for the gateway.
//
// # Architecture
//
// Two interfaces cover the storage surface:
//
//   - Backend: journal entries, preferences, generic records, stats,
//     health, and migrations, all keyed by user handle
//   - SubscriptionStore: the subscription registry consulted by the
//     validator and managed by the admin CLI
//
// Three implementations exist: SQLiteBackend (modernc.org/sqlite, the
// default), PostgresBackend (gorm, production deployments), and
// MockBackend (in-memory test aid).
//
// # Tenant Isolation
//
// Isolation is enforced at two independent layers. Every query carries an
// explicit user_handle predicate, and the Postgres tables additionally
// carry row-level-security policies bound to the app.user_handle session
// variable, set transaction-locally on every operation. SQLite has no RLS;
// there the second layer is a row guard that rejects any scanned row whose
// handle differs from the session's (ErrTenantViolation).
//
// # Migrations
//
// Schema changes are versioned and recorded in schema_migrations. Migrate
// is idempotent; backends refuse to start if migrations fail.
package store
