// Package repomanager abstracts the external package repository manager: a
// content store with repository versioning where readers only observe
// published snapshots. All mutating operations are asynchronous tasks that
// the client polls to a terminal state; there is no internal retry beyond
// that single poll loop.
package repomanager

import "context"

// Client is the capability set the release engine needs from the repository
// manager. Implementations must treat ModifyRepository as idempotent at the
// content-set level: adding content already present, or removing content
// already absent, is a no-op, not an error.
type Client interface {
	// GetOrCreateRepository returns the repository with the given name,
	// creating it if it does not exist.
	GetOrCreateRepository(ctx context.Context, name string) (*RepoHandle, error)

	// GetRepository returns the repository with the given name, or nil if it
	// does not exist.
	GetRepository(ctx context.Context, name string) (*RepoHandle, error)

	// ListPackages lists content units of a published repository version,
	// following pagination cursors until exhausted. The filter's name list
	// must not exceed MaxBatchSize.
	ListPackages(ctx context.Context, versionHref string, filter PackageFilter) ([]PackageRecord, error)

	// ModifyRepository adds and removes content units and returns the
	// resulting task. The caller awaits it with WaitForTask.
	ModifyRepository(ctx context.Context, repoHref string, add, remove []string) (*Task, error)

	// Publish materializes a new queryable repository version from the
	// current content set. It must be invoked after every modification that
	// changes visible content.
	Publish(ctx context.Context, repoHref string) (*Task, error)

	// WaitForTask polls a task until it reaches a terminal state. A failed
	// terminal state is returned as *TaskFailedError.
	WaitForTask(ctx context.Context, taskHref string) (*Task, error)

	// GetModuleDocument fetches the raw module-index text of a published
	// repository, resolving the repodata index to find the modules document.
	// It returns "" when the repository advertises no module metadata.
	GetModuleDocument(ctx context.Context, repoURL string) (string, error)

	// CreateModule uploads a rendered module stream document as a content
	// unit and returns its handle and checksum.
	CreateModule(ctx context.Context, document, name, stream, context_, arch string) (*ModuleContent, error)
}
