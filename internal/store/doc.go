// Package store provides persistent storage for the gateway using SQLite.
//
// # Architecture
//
// The store package uses an interface-driven architecture with small
// specialized interfaces composed into Store:
//
//   - UserStore: identity records resolved by the auth layer
//   - ProfileStore: one public-facing profile per user
//   - DreamStore: journal entries and their generated media
//   - SubscriptionStore: paid plans; keeps users.tier in step
//   - TaskStore: asynchronous generation jobs
//   - AuditStore: append-only log of privileged actions
//
// SQLiteStore implements all interfaces in a single struct. MockStore is an
// in-memory implementation for handler tests; setting MockStore.Err makes
// every call fail, which is how tests simulate an unreachable datastore.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// The pure-Go modernc.org/sqlite driver ("sqlite") is the default. Builds
// with cgo also register github.com/mattn/go-sqlite3 as "sqlite3", selected
// with OpenSQLiteStore.
//
// # Error Handling
//
//   - ErrNotFound: requested entity does not exist
//   - ErrDuplicate: unique id, email or username already taken
//   - ErrAlreadyCanceled: subscription is not active
//
// All methods accept context.Context for cancellation support.
//
// # Migrations
//
// createSchema is idempotent. Columns added after the first release are
// applied by runMigrations, which checks pragma_table_info before altering.
package store
