package stores

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rpmforge/rpmforge/pkg/release"
	"github.com/rpmforge/rpmforge/pkg/rpm"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	return store
}

// testPlan builds a minimal valid plan with one package and one repository
func testPlan() *release.Plan {
	repo := release.RepositoryKey{ID: 10, Name: "el-9-appstream", Arch: "x86_64"}
	return &release.Plan{
		SchemaVersion: release.PlanSchemaVersion,
		Packages: []release.PackageEntry{
			{
				Package: release.CandidatePackage{
					NEVRA: rpm.NEVRA{
						Name:    "bash",
						Epoch:   "0",
						Version: "5.1.8",
						Release: "1.el9",
						Arch:    "x86_64",
					},
					FullName:     "bash-5.1.8-1.el9.x86_64.rpm",
					ArtifactHref: "/artifacts/bash/1",
					BuildID:      42,
					BuildTaskID:  420,
					TaskArch:     "x86_64",
				},
				Repositories:     []release.RepositoryKey{repo},
				RepoArchLocation: []string{"x86_64"},
			},
		},
		Repositories: []release.RepositoryKey{repo},
	}
}

// testRelease builds a release ready for persistence
func testRelease(id string) *release.Release {
	return &release.Release{
		ID:        id,
		Status:    release.StatusScheduled,
		Platform:  "el-9",
		CreatedBy: "releng@example.com",
		BuildIDs:  []int64{42},
		Plan:      testPlan(),
	}
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	// Check that tables exist by querying them
	tables := []string{"releases", "release_builds", "events", "audit_entries"}
	for _, table := range tables {
		query := "SELECT COUNT(*) FROM " + table
		var count int
		err := store.db.QueryRowContext(ctx, query).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

// TestReleaseCRUD tests release CRUD operations
func TestReleaseCRUD(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	// Create
	rel := testRelease("rel-001")
	if err := store.CreateRelease(ctx, rel); err != nil {
		t.Fatalf("failed to create release: %v", err)
	}

	// Read
	retrieved, err := store.GetRelease(ctx, rel.ID)
	if err != nil {
		t.Fatalf("failed to get release: %v", err)
	}
	if retrieved == nil {
		t.Fatal("expected release, got nil")
	}

	if retrieved.ID != rel.ID {
		t.Errorf("expected ID %s, got %s", rel.ID, retrieved.ID)
	}
	if retrieved.Status != release.StatusScheduled {
		t.Errorf("expected status %s, got %s", release.StatusScheduled, retrieved.Status)
	}
	if retrieved.Platform != "el-9" {
		t.Errorf("expected platform el-9, got %s", retrieved.Platform)
	}
	if len(retrieved.BuildIDs) != 1 || retrieved.BuildIDs[0] != 42 {
		t.Errorf("expected build ids [42], got %v", retrieved.BuildIDs)
	}
	if retrieved.Plan == nil || len(retrieved.Plan.Packages) != 1 {
		t.Fatalf("expected plan with 1 package, got %+v", retrieved.Plan)
	}
	if got := retrieved.Plan.Packages[0].Package.FullName; got != "bash-5.1.8-1.el9.x86_64.rpm" {
		t.Errorf("unexpected package full name: %s", got)
	}

	// Update
	rel.Status = release.StatusInProgress
	rel.Plan.LastLog = "repository el-9-appstream: 1 added, 0 removed"
	if err := store.UpdateRelease(ctx, rel); err != nil {
		t.Fatalf("failed to update release: %v", err)
	}

	updated, err := store.GetRelease(ctx, rel.ID)
	if err != nil {
		t.Fatalf("failed to get updated release: %v", err)
	}

	if updated.Status != release.StatusInProgress {
		t.Errorf("expected status %s, got %s", release.StatusInProgress, updated.Status)
	}
	if updated.Plan.LastLog != rel.Plan.LastLog {
		t.Errorf("expected last log %q, got %q", rel.Plan.LastLog, updated.Plan.LastLog)
	}

	// List
	releases, err := store.ListReleases(ctx, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to list releases: %v", err)
	}
	if len(releases) != 1 {
		t.Errorf("expected 1 release, got %d", len(releases))
	}

	// List filtered by status
	scheduled := release.StatusScheduled
	filtered, err := store.ListReleases(ctx, &scheduled, 10, 0)
	if err != nil {
		t.Fatalf("failed to list scheduled releases: %v", err)
	}
	if len(filtered) != 0 {
		t.Errorf("expected 0 scheduled releases, got %d", len(filtered))
	}

	// Delete
	if err := store.DeleteRelease(ctx, rel.ID); err != nil {
		t.Fatalf("failed to delete release: %v", err)
	}

	gone, err := store.GetRelease(ctx, rel.ID)
	if err != nil {
		t.Fatalf("unexpected error after delete: %v", err)
	}
	if gone != nil {
		t.Error("expected nil release after delete")
	}
}

// TestGetReleaseAbsent verifies that a missing release is not an error
func TestGetReleaseAbsent(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	rel, err := store.GetRelease(context.Background(), "no-such-release")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rel != nil {
		t.Errorf("expected nil for absent release, got %+v", rel)
	}
}

// TestUpdateReleaseNotFound verifies updates of unknown releases fail
func TestUpdateReleaseNotFound(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	rel := testRelease("rel-missing")
	if err := store.UpdateRelease(context.Background(), rel); err == nil {
		t.Error("expected error when updating a release that does not exist")
	}
}

// TestBuildLinks tests build ownership link operations
func TestBuildLinks(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	rel := testRelease("rel-002")
	if err := store.CreateRelease(ctx, rel); err != nil {
		t.Fatalf("failed to create release: %v", err)
	}

	// Link builds, twice to exercise idempotency
	if err := store.LinkBuilds(ctx, rel.ID, []int64{42, 43}); err != nil {
		t.Fatalf("failed to link builds: %v", err)
	}
	if err := store.LinkBuilds(ctx, rel.ID, []int64{42, 43}); err != nil {
		t.Fatalf("failed to re-link builds: %v", err)
	}

	links, err := store.ListBuildLinks(ctx, 42)
	if err != nil {
		t.Fatalf("failed to list build links: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("expected 1 link for build 42, got %d", len(links))
	}
	if links[0].ReleaseID != rel.ID {
		t.Errorf("expected release %s, got %s", rel.ID, links[0].ReleaseID)
	}

	linked, err := store.IsBuildLinked(ctx, 43)
	if err != nil {
		t.Fatalf("failed to check build link: %v", err)
	}
	if !linked {
		t.Error("expected build 43 to be linked")
	}

	// Unlink
	if err := store.UnlinkBuilds(ctx, rel.ID); err != nil {
		t.Fatalf("failed to unlink builds: %v", err)
	}

	linked, err = store.IsBuildLinked(ctx, 42)
	if err != nil {
		t.Fatalf("failed to check build link after unlink: %v", err)
	}
	if linked {
		t.Error("expected build 42 to be unlinked")
	}
}

// TestReleaseLockSerializes verifies the per-release critical section
// admits one holder at a time
func TestReleaseLockSerializes(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	var mu sync.Mutex
	var active, maxActive int

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.WithReleaseLock(ctx, "rel-lock", func(ctx context.Context) error {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("lock holder failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("expected at most 1 concurrent holder, observed %d", maxActive)
	}
}

// TestReleaseLockDistinctIDs verifies locks on different releases do not
// block each other
func TestReleaseLockDistinctIDs(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	release1Held := make(chan struct{})
	proceed := make(chan struct{})

	go func() {
		_ = store.WithReleaseLock(ctx, "rel-a", func(ctx context.Context) error {
			close(release1Held)
			<-proceed
			return nil
		})
	}()

	<-release1Held

	// Must not block on rel-a's critical section
	done := make(chan struct{})
	go func() {
		_ = store.WithReleaseLock(ctx, "rel-b", func(ctx context.Context) error {
			return nil
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("lock on rel-b blocked behind lock on rel-a")
	}
	close(proceed)
}

// TestReleaseLockContextCancel verifies a cancelled context aborts lock
// acquisition
func TestReleaseLockContextCancel(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	held := make(chan struct{})
	proceed := make(chan struct{})

	go func() {
		_ = store.WithReleaseLock(context.Background(), "rel-c", func(ctx context.Context) error {
			close(held)
			<-proceed
			return nil
		})
	}()

	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := store.WithReleaseLock(ctx, "rel-c", func(ctx context.Context) error {
		t.Error("critical section entered despite cancelled context")
		return nil
	})
	if err == nil {
		t.Error("expected error from cancelled lock acquisition")
	}
	close(proceed)
}

// TestEventOperations tests release event operations
func TestEventOperations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	rel := testRelease("rel-003")
	if err := store.CreateRelease(ctx, rel); err != nil {
		t.Fatalf("failed to create release: %v", err)
	}

	messages := []struct {
		level   string
		message string
	}{
		{"info", "release created"},
		{"info", "commit started"},
		{"error", "commit failed: signature error"},
	}

	for _, m := range messages {
		if err := store.AppendEvent(ctx, rel.ID, m.level, m.message); err != nil {
			t.Fatalf("failed to append event: %v", err)
		}
	}

	// Get all events for the release
	events, err := store.GetEvents(ctx, rel.ID, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Message != "release created" {
		t.Errorf("expected oldest event first, got %q", events[0].Message)
	}

	// Filter by level
	errorLevel := EventLevelError
	filtered, err := store.GetEvents(ctx, rel.ID, &errorLevel, 10, 0)
	if err != nil {
		t.Fatalf("failed to get filtered events: %v", err)
	}
	if len(filtered) != 1 {
		t.Fatalf("expected 1 error event, got %d", len(filtered))
	}
	if filtered[0].Level != EventLevelError {
		t.Errorf("expected level %s, got %s", EventLevelError, filtered[0].Level)
	}
}

// TestAuditOperations tests audit trail operations
func TestAuditOperations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	relID := "rel-004"
	entries := []*AuditEntry{
		{
			Action:    "release.created",
			Actor:     "admin",
			ReleaseID: &relID,
			Timestamp: now,
		},
		{
			Action:    "release.committed",
			Actor:     "system",
			ReleaseID: &relID,
			Timestamp: now.Add(1 * time.Second),
		},
		{
			Action:    "release.created",
			Actor:     "user1",
			Timestamp: now.Add(2 * time.Second),
		},
	}

	for _, entry := range entries {
		if err := store.CreateAuditEntry(ctx, entry); err != nil {
			t.Fatalf("failed to create audit entry: %v", err)
		}
		if entry.ID == 0 {
			t.Error("expected audit entry ID to be set after insert")
		}
	}

	// List all
	retrieved, err := store.ListAuditEntries(ctx, nil, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to list audit entries: %v", err)
	}
	if len(retrieved) != 3 {
		t.Errorf("expected 3 audit entries, got %d", len(retrieved))
	}

	// Filter by action
	action := "release.created"
	filtered, err := store.ListAuditEntries(ctx, &action, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to list filtered audit entries: %v", err)
	}
	if len(filtered) != 2 {
		t.Errorf("expected 2 release.created entries, got %d", len(filtered))
	}

	// Filter by actor
	actor := "admin"
	actorFiltered, err := store.ListAuditEntries(ctx, nil, &actor, 10, 0)
	if err != nil {
		t.Fatalf("failed to list actor filtered audit entries: %v", err)
	}
	if len(actorFiltered) != 1 {
		t.Errorf("expected 1 admin entry, got %d", len(actorFiltered))
	}
}

// TestTransactions tests transaction support
func TestTransactions(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	// Begin transaction
	tx, err := store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("failed to begin transaction: %v", err)
	}

	query := `
		INSERT INTO releases (id, status, platform, created_by, build_ids, build_task_ids, plan, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	planJSON, err := release.EncodePlan(testPlan())
	if err != nil {
		t.Fatalf("failed to encode plan: %v", err)
	}

	_, err = tx.ExecContext(ctx, query,
		"rel-tx-001", "scheduled", "el-9", "admin", "[42]", "[]", string(planJSON), now, now)
	if err != nil {
		store.RollbackTx(tx)
		t.Fatalf("failed to insert release in transaction: %v", err)
	}

	// Rollback
	if err := store.RollbackTx(tx); err != nil {
		t.Fatalf("failed to rollback transaction: %v", err)
	}

	// Verify release was not created
	rel, err := store.GetRelease(ctx, "rel-tx-001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rel != nil {
		t.Error("expected rolled back release to be absent")
	}

	// Begin new transaction and commit
	tx, err = store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("failed to begin second transaction: %v", err)
	}

	_, err = tx.ExecContext(ctx, query,
		"rel-tx-001", "scheduled", "el-9", "admin", "[42]", "[]", string(planJSON), now, now)
	if err != nil {
		store.RollbackTx(tx)
		t.Fatalf("failed to insert release in second transaction: %v", err)
	}

	if err := store.CommitTx(tx); err != nil {
		t.Fatalf("failed to commit transaction: %v", err)
	}

	// Verify release was created
	rel, err = store.GetRelease(ctx, "rel-tx-001")
	if err != nil {
		t.Fatalf("failed to get committed release: %v", err)
	}
	if rel == nil {
		t.Fatal("expected committed release to exist")
	}
}

// TestCascadeDelete tests foreign key cascading
func TestCascadeDelete(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	rel := testRelease("rel-cascade-001")
	if err := store.CreateRelease(ctx, rel); err != nil {
		t.Fatalf("failed to create release: %v", err)
	}

	if err := store.LinkBuilds(ctx, rel.ID, []int64{42}); err != nil {
		t.Fatalf("failed to link builds: %v", err)
	}
	if err := store.AppendEvent(ctx, rel.ID, "info", "test event"); err != nil {
		t.Fatalf("failed to append event: %v", err)
	}

	// Delete release (should cascade to release_builds and events)
	if err := store.DeleteRelease(ctx, rel.ID); err != nil {
		t.Fatalf("failed to delete release: %v", err)
	}

	linked, err := store.IsBuildLinked(ctx, 42)
	if err != nil {
		t.Fatalf("failed to check build link: %v", err)
	}
	if linked {
		t.Error("expected build links to be deleted by cascade")
	}

	events, err := store.GetEvents(ctx, rel.ID, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected 0 events after cascade delete, got %d", len(events))
	}
}

// TestMain sets up and tears down test environment
func TestMain(m *testing.M) {
	// Run tests
	code := m.Run()

	// Exit
	os.Exit(code)
}
