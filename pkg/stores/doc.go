// Package stores provides the persistence layer for the release engine.
// It includes SQLite-based storage with WAL mode, connection pooling,
// embedded schema migrations, and CRUD operations for releases, build
// ownership links, release events, and audit logs. It also provides the
// per-release exclusive critical section used by commit, update and
// revert.
package stores
