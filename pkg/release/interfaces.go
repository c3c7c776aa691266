package release

import "context"

// BuildArtifact is one artifact of a finished build task, as reported by
// the external build scheduler.
type BuildArtifact struct {
	// Name is the artifact file name. Package architecture and debug-ness
	// are derived from it.
	Name string `json:"name"`

	// Type distinguishes rpm artifacts from build logs.
	Type string `json:"type"`

	// Href is the artifact handle in the build repository.
	Href string `json:"href"`

	// Epoch is the package epoch, known to the scheduler from the build.
	Epoch string `json:"epoch,omitempty"`

	BuildID  int64  `json:"build_id"`
	TaskID   int64  `json:"task_id"`
	TaskArch string `json:"task_arch"`
	Beta     bool   `json:"is_beta"`
}

// ModuleTemplate is the module metadata associated with a modular build
// task.
type ModuleTemplate struct {
	Name     string `json:"name"`
	Stream   string `json:"stream"`
	BuildID  int64  `json:"build_id"`
	TaskArch string `json:"task_arch"`
	Document string `json:"document"`
}

// BuildSource is the read-only view of the external build scheduler the
// planner consumes. Builds and build tasks are referenced by id only; the
// task dependency graph lives on the scheduler side, and the planner
// tolerates being invoked before all sibling tasks of a build finish by
// filtering to explicitly supplied task ids.
type BuildSource interface {
	// CompletedArtifacts returns the artifacts of all completed tasks of
	// the given builds, filtered to taskIDs when non-empty.
	CompletedArtifacts(ctx context.Context, buildIDs, taskIDs []int64) ([]BuildArtifact, error)

	// ModuleTemplates returns the module metadata of modular build tasks.
	ModuleTemplates(ctx context.Context, buildIDs []int64) ([]ModuleTemplate, error)

	// SourceRPMNames returns the source package names referenced by the
	// builds, used for the batched oracle query.
	SourceRPMNames(ctx context.Context, buildIDs []int64) ([]string, error)
}

// SignatureVerifier checks that every artifact of a build carries a valid
// signature. Verification itself is delegated to an external service.
type SignatureVerifier interface {
	VerifyBuilds(ctx context.Context, buildIDs []int64) error
}

// PolicyGate evaluates a release plan before commit. A denial is returned
// as a validation-class error with CodePolicyDenied.
type PolicyGate interface {
	EvaluatePlan(ctx context.Context, release *Release) error
}

// Store persists releases and their audit trail. Commit, revert and update
// each run inside an exclusive critical section per release id so two
// concurrent commits of the same release cannot both proceed.
type Store interface {
	CreateRelease(ctx context.Context, release *Release) error
	GetRelease(ctx context.Context, id string) (*Release, error)
	UpdateRelease(ctx context.Context, release *Release) error

	// LinkBuilds marks builds as owned by a release, blocking their
	// deletion while the release exists.
	LinkBuilds(ctx context.Context, releaseID string, buildIDs []int64) error
	UnlinkBuilds(ctx context.Context, releaseID string) error

	// WithReleaseLock runs fn while holding the exclusive critical section
	// for the release id.
	WithReleaseLock(ctx context.Context, releaseID string, fn func(ctx context.Context) error) error

	// AppendEvent records one audit event for the release.
	AppendEvent(ctx context.Context, releaseID, level, message string) error
}
