package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/rpmforge/rpmforge/pkg/release"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db   *sql.DB
	path string

	// locks holds one semaphore per release id, backing WithReleaseLock.
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		path:  cfg.Path,
		locks: make(map[string]chan struct{}),
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	// Open database with SQLite-specific connection parameters
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection and set PRAGMAs
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Ensure foreign keys are enabled (connection-level setting)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	// Create migration source from embedded FS
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	// Create database driver
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	// Create migration instance
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	// Run migrations
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// BeginTx starts a new transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
}

// CommitTx commits a transaction
func (s *SQLiteStore) CommitTx(tx *sql.Tx) error {
	return tx.Commit()
}

// RollbackTx rolls back a transaction
func (s *SQLiteStore) RollbackTx(tx *sql.Tx) error {
	return tx.Rollback()
}

// CreateRelease persists a new release and its plan
func (s *SQLiteStore) CreateRelease(ctx context.Context, rel *release.Release) error {
	planJSON, err := release.EncodePlan(rel.Plan)
	if err != nil {
		return fmt.Errorf("failed to encode release plan: %w", err)
	}

	buildIDs, err := json.Marshal(rel.BuildIDs)
	if err != nil {
		return fmt.Errorf("failed to encode build ids: %w", err)
	}
	taskIDs, err := json.Marshal(rel.BuildTaskIDs)
	if err != nil {
		return fmt.Errorf("failed to encode build task ids: %w", err)
	}

	query := `
		INSERT INTO releases (id, status, platform, created_by, build_ids, build_task_ids, plan, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = now
	}
	rel.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, query,
		rel.ID,
		string(rel.Status),
		rel.Platform,
		rel.CreatedBy,
		string(buildIDs),
		string(taskIDs),
		string(planJSON),
		rel.CreatedAt,
		rel.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create release: %w", err)
	}

	return nil
}

// GetRelease retrieves a release by ID. Returns nil without error when the
// release does not exist.
func (s *SQLiteStore) GetRelease(ctx context.Context, id string) (*release.Release, error) {
	query := `
		SELECT id, status, platform, created_by, build_ids, build_task_ids, plan, created_at, updated_at
		FROM releases WHERE id = ?
	`

	var (
		rel      release.Release
		status   string
		buildIDs string
		taskIDs  string
		planJSON string
	)

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rel.ID,
		&status,
		&rel.Platform,
		&rel.CreatedBy,
		&buildIDs,
		&taskIDs,
		&planJSON,
		&rel.CreatedAt,
		&rel.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get release: %w", err)
	}

	rel.Status = release.Status(status)

	if err := json.Unmarshal([]byte(buildIDs), &rel.BuildIDs); err != nil {
		return nil, fmt.Errorf("failed to decode build ids: %w", err)
	}
	if err := json.Unmarshal([]byte(taskIDs), &rel.BuildTaskIDs); err != nil {
		return nil, fmt.Errorf("failed to decode build task ids: %w", err)
	}

	plan, err := release.DecodePlan([]byte(planJSON))
	if err != nil {
		return nil, err
	}
	rel.Plan = plan

	return &rel, nil
}

// UpdateRelease replaces the stored release row, plan included
func (s *SQLiteStore) UpdateRelease(ctx context.Context, rel *release.Release) error {
	planJSON, err := release.EncodePlan(rel.Plan)
	if err != nil {
		return fmt.Errorf("failed to encode release plan: %w", err)
	}

	buildIDs, err := json.Marshal(rel.BuildIDs)
	if err != nil {
		return fmt.Errorf("failed to encode build ids: %w", err)
	}
	taskIDs, err := json.Marshal(rel.BuildTaskIDs)
	if err != nil {
		return fmt.Errorf("failed to encode build task ids: %w", err)
	}

	query := `
		UPDATE releases
		SET status = ?, platform = ?, created_by = ?, build_ids = ?, build_task_ids = ?, plan = ?, updated_at = ?
		WHERE id = ?
	`

	rel.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, query,
		string(rel.Status),
		rel.Platform,
		rel.CreatedBy,
		string(buildIDs),
		string(taskIDs),
		string(planJSON),
		rel.UpdatedAt,
		rel.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update release: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("release not found: %s", rel.ID)
	}

	return nil
}

// ListReleases retrieves releases, optionally filtered by status, newest
// first
func (s *SQLiteStore) ListReleases(ctx context.Context, status *release.Status, limit, offset int) ([]*release.Release, error) {
	query := `
		SELECT id, status, platform, created_by, build_ids, build_task_ids, plan, created_at, updated_at
		FROM releases
	`
	args := []interface{}{}

	if status != nil {
		query += " WHERE status = ?"
		args = append(args, string(*status))
	}

	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list releases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var releases []*release.Release
	for rows.Next() {
		var (
			rel      release.Release
			st       string
			buildIDs string
			taskIDs  string
			planJSON string
		)

		err := rows.Scan(
			&rel.ID,
			&st,
			&rel.Platform,
			&rel.CreatedBy,
			&buildIDs,
			&taskIDs,
			&planJSON,
			&rel.CreatedAt,
			&rel.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan release: %w", err)
		}

		rel.Status = release.Status(st)
		if err := json.Unmarshal([]byte(buildIDs), &rel.BuildIDs); err != nil {
			return nil, fmt.Errorf("failed to decode build ids: %w", err)
		}
		if err := json.Unmarshal([]byte(taskIDs), &rel.BuildTaskIDs); err != nil {
			return nil, fmt.Errorf("failed to decode build task ids: %w", err)
		}
		plan, err := release.DecodePlan([]byte(planJSON))
		if err != nil {
			return nil, err
		}
		rel.Plan = plan

		releases = append(releases, &rel)
	}

	return releases, rows.Err()
}

// DeleteRelease deletes a release and, via cascade, its build links and
// events
func (s *SQLiteStore) DeleteRelease(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM releases WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete release: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("release not found: %s", id)
	}

	return nil
}

// LinkBuilds marks builds as owned by a release. Linking the same build
// twice is a no-op.
func (s *SQLiteStore) LinkBuilds(ctx context.Context, releaseID string, buildIDs []int64) error {
	if len(buildIDs) == 0 {
		return nil
	}

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO release_builds (release_id, build_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (release_id, build_id) DO NOTHING
	`

	now := time.Now().UTC()
	for _, buildID := range buildIDs {
		if _, err := tx.ExecContext(ctx, query, releaseID, buildID, now); err != nil {
			return fmt.Errorf("failed to link build %d: %w", buildID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit build links: %w", err)
	}

	return nil
}

// UnlinkBuilds removes all build ownership links of a release
func (s *SQLiteStore) UnlinkBuilds(ctx context.Context, releaseID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM release_builds WHERE release_id = ?", releaseID)
	if err != nil {
		return fmt.Errorf("failed to unlink builds: %w", err)
	}
	return nil
}

// ListBuildLinks returns the releases owning a build
func (s *SQLiteStore) ListBuildLinks(ctx context.Context, buildID int64) ([]*BuildLink, error) {
	query := `
		SELECT release_id, build_id, created_at
		FROM release_builds WHERE build_id = ?
		ORDER BY created_at
	`

	rows, err := s.db.QueryContext(ctx, query, buildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list build links: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var links []*BuildLink
	for rows.Next() {
		var link BuildLink
		if err := rows.Scan(&link.ReleaseID, &link.BuildID, &link.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan build link: %w", err)
		}
		links = append(links, &link)
	}

	return links, rows.Err()
}

// IsBuildLinked reports whether any release owns the build
func (s *SQLiteStore) IsBuildLinked(ctx context.Context, buildID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM release_builds WHERE build_id = ?", buildID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check build link: %w", err)
	}
	return count > 0, nil
}

// WithReleaseLock runs fn while holding the exclusive critical section for
// the release id. Lock acquisition honors context cancellation.
func (s *SQLiteStore) WithReleaseLock(ctx context.Context, releaseID string, fn func(ctx context.Context) error) error {
	sem := s.releaseLock(releaseID)

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("failed to acquire release lock for %s: %w", releaseID, ctx.Err())
	}
	defer func() { <-sem }()

	return fn(ctx)
}

// releaseLock returns the semaphore channel for a release id, creating it
// on first use.
func (s *SQLiteStore) releaseLock(releaseID string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	sem, ok := s.locks[releaseID]
	if !ok {
		sem = make(chan struct{}, 1)
		s.locks[releaseID] = sem
	}
	return sem
}

// AppendEvent records one audit event for a release
func (s *SQLiteStore) AppendEvent(ctx context.Context, releaseID, level, message string) error {
	query := `
		INSERT INTO events (release_id, level, message, timestamp)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query, releaseID, level, message, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	return nil
}

// GetEvents retrieves events for a release with optional level filter
func (s *SQLiteStore) GetEvents(ctx context.Context, releaseID string, level *EventLevel, limit, offset int) ([]*Event, error) {
	query := "SELECT id, release_id, level, message, timestamp FROM events WHERE release_id = ?"
	args := []interface{}{releaseID}

	if level != nil {
		query += " AND level = ?"
		args = append(args, string(*level))
	}

	query += " ORDER BY id LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*Event
	for rows.Next() {
		var event Event
		if err := rows.Scan(&event.ID, &event.ReleaseID, &event.Level, &event.Message, &event.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, &event)
	}

	return events, rows.Err()
}

// CreateAuditEntry creates a new audit trail entry
func (s *SQLiteStore) CreateAuditEntry(ctx context.Context, entry *AuditEntry) error {
	query := `
		INSERT INTO audit_entries (action, actor, release_id, details, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, query,
		entry.Action,
		entry.Actor,
		entry.ReleaseID,
		entry.Details,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get audit entry id: %w", err)
	}
	entry.ID = id

	return nil
}

// ListAuditEntries retrieves audit entries with optional filters
func (s *SQLiteStore) ListAuditEntries(ctx context.Context, action *string, actor *string, limit, offset int) ([]*AuditEntry, error) {
	query := "SELECT id, action, actor, release_id, details, timestamp FROM audit_entries"
	args := []interface{}{}
	conditions := []string{}

	if action != nil {
		conditions = append(conditions, "action = ?")
		args = append(args, *action)
	}
	if actor != nil {
		conditions = append(conditions, "actor = ?")
		args = append(args, *actor)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY timestamp DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*AuditEntry
	for rows.Next() {
		var entry AuditEntry
		if err := rows.Scan(&entry.ID, &entry.Action, &entry.Actor, &entry.ReleaseID, &entry.Details, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

// HealthCheck verifies the database is accessible
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	var result int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	return nil
}
