package stores_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/rpmforge/rpmforge/pkg/release"
	"github.com/rpmforge/rpmforge/pkg/rpm"
	"github.com/rpmforge/rpmforge/pkg/stores"
)

// examplePlan builds a minimal valid plan for the examples.
func examplePlan() *release.Plan {
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
				},
				Repositories: []release.RepositoryKey{repo},
			},
		},
		Repositories: []release.RepositoryKey{repo},
	}
}

// ExampleNewSQLiteStore demonstrates creating and initializing a new SQLite store.
func ExampleNewSQLiteStore() {
	// Create store configuration
	store, err := stores.NewSQLiteStore(stores.Config{
		Path:            ":memory:", // Use in-memory database for example
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		log.Fatal(err)
	}

	// Initialize the database connection
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}

	// Run migrations
	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	defer store.Close()

	// Store is now ready to use
	fmt.Println("Store initialized successfully")
	// Output: Store initialized successfully
}

// ExampleSQLiteStore_CreateRelease demonstrates persisting a new release.
func ExampleSQLiteStore_CreateRelease() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	// Create a new release
	rel := &release.Release{
		ID:        "rel-001",
		Status:    release.StatusScheduled,
		Platform:  "el-9",
		CreatedBy: "releng@example.com",
		BuildIDs:  []int64{42},
		Plan:      examplePlan(),
	}

	if err := store.CreateRelease(ctx, rel); err != nil {
		log.Fatal(err)
	}

	// Retrieve the release
	retrieved, err := store.GetRelease(ctx, "rel-001")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Release ID: %s, Status: %s\n", retrieved.ID, retrieved.Status)
	// Output: Release ID: rel-001, Status: scheduled
}

// ExampleSQLiteStore_LinkBuilds demonstrates build ownership links.
func ExampleSQLiteStore_LinkBuilds() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	rel := &release.Release{
		ID:       "rel-002",
		Status:   release.StatusScheduled,
		Platform: "el-9",
		BuildIDs: []int64{42, 43},
		Plan:     examplePlan(),
	}
	_ = store.CreateRelease(ctx, rel)

	// Link the builds so they cannot be garbage-collected
	if err := store.LinkBuilds(ctx, rel.ID, rel.BuildIDs); err != nil {
		log.Fatal(err)
	}

	linked, err := store.IsBuildLinked(ctx, 42)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Build 42 linked: %t\n", linked)
	// Output: Build 42 linked: true
}

// ExampleSQLiteStore_AppendEvent demonstrates the release audit log.
func ExampleSQLiteStore_AppendEvent() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	rel := &release.Release{
		ID:       "rel-003",
		Status:   release.StatusScheduled,
		Platform: "el-9",
		Plan:     examplePlan(),
	}
	_ = store.CreateRelease(ctx, rel)

	// Log an event
	if err := store.AppendEvent(ctx, rel.ID, "info", "commit started"); err != nil {
		log.Fatal(err)
	}

	// Retrieve events
	events, err := store.GetEvents(ctx, rel.ID, nil, 10, 0)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Event count: %d, Message: %s\n", len(events), events[0].Message)
	// Output: Event count: 1, Message: commit started
}

// ExampleSQLiteStore_WithReleaseLock demonstrates the per-release critical
// section used by commit and revert.
func ExampleSQLiteStore_WithReleaseLock() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	err := store.WithReleaseLock(ctx, "rel-004", func(ctx context.Context) error {
		// Only one commit of rel-004 can run this section at a time
		fmt.Println("Critical section held")
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	// Output: Critical section held
}

// ExampleSQLiteStore_BeginTx demonstrates using transactions.
func ExampleSQLiteStore_BeginTx() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	rel := &release.Release{
		ID:       "rel-tx-001",
		Status:   release.StatusScheduled,
		Platform: "el-9",
		Plan:     examplePlan(),
	}
	_ = store.CreateRelease(ctx, rel)

	// Begin transaction
	tx, err := store.BeginTx(ctx)
	if err != nil {
		log.Fatal(err)
	}

	// Perform operations within transaction
	_, err = tx.ExecContext(ctx,
		"UPDATE releases SET status = ? WHERE id = ?", "in_progress", rel.ID)
	if err != nil {
		_ = store.RollbackTx(tx)
		log.Fatal(err)
	}

	// Commit transaction
	if err := store.CommitTx(tx); err != nil {
		log.Fatal(err)
	}

	// Verify the update
	updated, err := store.GetRelease(ctx, rel.ID)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Transaction committed: release is %s\n", updated.Status)
	// Output: Transaction committed: release is in_progress
}
