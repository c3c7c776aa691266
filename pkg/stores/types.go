package stores

import (
	"context"
	"database/sql"
	"time"

	"github.com/rpmforge/rpmforge/pkg/release"
)

// EventLevel represents the severity level of a release event
type EventLevel string

const (
	EventLevelDebug   EventLevel = "debug"
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// Event represents an append-only release audit log event
type Event struct {
	ID        int64      `json:"id"`
	ReleaseID string     `json:"release_id"`
	Level     EventLevel `json:"level"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
}

// BuildLink ties a build to the release that owns it. A linked build must
// not be garbage-collected while the owning release exists.
type BuildLink struct {
	ReleaseID string    `json:"release_id"`
	BuildID   int64     `json:"build_id"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditEntry represents an audit trail entry
type AuditEntry struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"` // e.g. "release.created", "release.committed"
	Actor     string    `json:"actor"`  // user or system identifier
	ReleaseID *string   `json:"release_id,omitempty"`
	Details   *string   `json:"details,omitempty"` // JSON blob
	Timestamp time.Time `json:"timestamp"`
}

// Store defines the interface for the persistence layer. It is a superset
// of the lifecycle coordinator's store contract, adding listing, audit and
// maintenance operations used by the CLI.
type Store interface {
	release.Store

	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)
	CommitTx(tx *sql.Tx) error
	RollbackTx(tx *sql.Tx) error

	// Release listing
	ListReleases(ctx context.Context, status *release.Status, limit, offset int) ([]*release.Release, error)
	DeleteRelease(ctx context.Context, id string) error

	// Build link queries
	ListBuildLinks(ctx context.Context, buildID int64) ([]*BuildLink, error)
	IsBuildLinked(ctx context.Context, buildID int64) (bool, error)

	// Event operations
	GetEvents(ctx context.Context, releaseID string, level *EventLevel, limit, offset int) ([]*Event, error)

	// Audit operations
	CreateAuditEntry(ctx context.Context, entry *AuditEntry) error
	ListAuditEntries(ctx context.Context, action *string, actor *string, limit, offset int) ([]*AuditEntry, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
