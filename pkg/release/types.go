package release

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/rpmforge/rpmforge/pkg/rpm"
)

// PlanSchemaVersion is the current serialization version of a release plan.
// Plans are validated on deserialize rather than trusted at use sites.
const PlanSchemaVersion = 1

// CandidatePackage is a package produced by a build and considered for
// release. The architecture and debug flag are derived from the artifact
// name, never passed explicitly by the build scheduler.
type CandidatePackage struct {
	rpm.NEVRA

	// FullName is the artifact file name, the deduplication key of a plan.
	FullName string `json:"full_name" validate:"required"`

	// ArtifactHref is the opaque handle of the built artifact in the store.
	ArtifactHref string `json:"artifact_href"`

	// HrefFromRepo is the handle of an existing production copy when the
	// presence check matched one; reused instead of the build artifact
	// unless Force is set.
	HrefFromRepo string `json:"href_from_repo,omitempty"`

	// Force releases the build's own artifact even when an identical NEVRA
	// already exists in production.
	Force bool `json:"force"`

	// BuildID is the build that produced this package.
	BuildID int64 `json:"build_id"`

	// BuildTaskID is the build task that produced this package.
	BuildTaskID int64 `json:"build_task_id"`

	// TaskArch is the architecture the build task ran under, distinct from
	// the package architecture for noarch and src packages.
	TaskArch string `json:"task_arch,omitempty"`

	// Beta marks packages built from a beta snapshot.
	Beta bool `json:"is_beta"`

	// Debug marks debuginfo/debugsource packages; derived from FullName.
	Debug bool `json:"is_debug"`
}

// RepositoryKey identifies a logical production repository within a
// platform. It resolves to a concrete repository handle via a lookup built
// once per planning run.
type RepositoryKey struct {
	ID    int64  `json:"id"`
	Name  string `json:"name" validate:"required"`
	Arch  string `json:"arch" validate:"required"`
	Debug bool   `json:"debug"`
	URL   string `json:"url,omitempty"`
}

// PackageEntry is one plan row: a candidate package and the repositories it
// should be copied into. A package placed in N repositories produces N
// entries sharing the same NEVRA so per-repository architecture display
// stays correct.
type PackageEntry struct {
	Package      CandidatePackage `json:"package" validate:"required"`
	Repositories []RepositoryKey  `json:"repositories"`

	// RepoArchLocation is the architecture placement hint shown to
	// operators: the full platform list for noarch packages, the package
	// arch otherwise, plus i686 when placed alongside x86_64.
	RepoArchLocation []string `json:"repo_arch_location,omitempty"`
}

// ModuleRef identifies a modular stream scheduled for release, carrying its
// rendered document template.
type ModuleRef struct {
	Name     string `json:"name" validate:"required"`
	Stream   string `json:"stream" validate:"required"`
	Version  int64  `json:"version"`
	Context  string `json:"context"`
	Arch     string `json:"arch"`
	Template string `json:"template"`
}

// ModuleEntry maps a module to its target repositories.
type ModuleEntry struct {
	Module       ModuleRef       `json:"module"`
	Repositories []RepositoryKey `json:"repositories"`
}

// Plan is the reconciliation instruction set computed for a release. A plan
// is immutable once built; updates replace it wholesale. Only the audit log
// field is mutated in place.
type Plan struct {
	SchemaVersion int `json:"schema_version" validate:"required,eq=1"`

	Packages []PackageEntry `json:"packages"`
	Modules  []ModuleEntry  `json:"modules,omitempty"`

	// Repositories is the flat list of every repository the plan touches,
	// kept for display and audit.
	Repositories []RepositoryKey `json:"repositories"`

	// PackagesFromRepos maps a package full name to the repository id whose
	// existing copy will be reused instead of the build artifact.
	PackagesFromRepos map[string]int64 `json:"packages_from_repos,omitempty"`

	// PackagesInRepos maps a package full name to the ids of repositories
	// already containing its NEVRA. Recomputed on every execution to avoid
	// staleness.
	PackagesInRepos map[string][]int64 `json:"packages_in_repos,omitempty"`

	// LastLog is the free-text outcome of the most recent commit or revert
	// attempt. Always persisted, success or failure.
	LastLog string `json:"last_log,omitempty"`
}

// IsEmpty reports whether the plan has nothing to do. An empty plan is
// invalid and must not be executed.
func (p *Plan) IsEmpty() bool {
	return len(p.Packages) == 0 && len(p.Repositories) == 0
}

// planValidator validates plans on deserialize.
var planValidator = validator.New()

// DecodePlan deserializes and validates a persisted plan document.
func DecodePlan(data []byte) (*Plan, error) {
	var plan Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to decode release plan: %w", err)
	}
	if err := planValidator.Struct(&plan); err != nil {
		return nil, fmt.Errorf("invalid release plan document: %w", err)
	}
	return &plan, nil
}

// EncodePlan serializes a plan for persistence.
func EncodePlan(plan *Plan) ([]byte, error) {
	return json.Marshal(plan)
}

// Status is the lifecycle state of a release.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusReverted   Status = "reverted"
)

// CanTransition reports whether the lifecycle allows moving to next.
// InProgress re-enters itself so a release stranded by an unhandled commit
// fault can be committed again after the operator clears the cause.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusScheduled:
		return next == StatusInProgress
	case StatusInProgress:
		return next == StatusInProgress || next == StatusCompleted || next == StatusFailed
	case StatusCompleted:
		return next == StatusInProgress || next == StatusReverted
	}
	return false
}

// IsTerminal reports whether the status permits no further commits.
func (s Status) IsTerminal() bool {
	return s == StatusFailed || s == StatusReverted
}

// Release is the persisted release entity. A release owns its plan
// exclusively, one to one.
type Release struct {
	ID           string    `json:"id"`
	Status       Status    `json:"status"`
	Platform     string    `json:"platform"`
	CreatedBy    string    `json:"created_by"`
	BuildIDs     []int64   `json:"build_ids"`
	BuildTaskIDs []int64   `json:"build_task_ids,omitempty"`
	Plan         *Plan     `json:"plan"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Platform is the target platform configuration a release is planned
// against. Parsed and validated by pkg/config.
type Platform struct {
	// Name is the platform identifier releases reference.
	Name string `json:"name" validate:"required"`

	// Distribution is the distribution name used as repository prefix.
	Distribution string `json:"distribution" validate:"required"`

	// Version is the major distribution version.
	Version string `json:"version" validate:"required"`

	// Arches are the declared platform architectures.
	Arches []string `json:"arches" validate:"min=1"`

	// WeakArches maps a strong architecture to the weak architectures whose
	// packages piggyback on its placements, e.g. x86_64 -> [i686].
	WeakArches map[string][]string `json:"weak_arches,omitempty"`

	// CopyPriorityArches orders repository architectures when a package is
	// found in several; earlier entries win.
	CopyPriorityArches []string `json:"copy_priority_arches,omitempty"`

	// ModuleFilterPrefixes hides matching sub-packages from module
	// artifact lists.
	ModuleFilterPrefixes []string `json:"module_filter_prefixes,omitempty"`

	// OracleEnabled switches planning between affinity matching and the
	// plain devel placement policy.
	OracleEnabled bool `json:"oracle_enabled"`

	// Repositories are the platform's production repositories.
	Repositories []RepositoryKey `json:"repositories" validate:"min=1"`
}

// RepositoryFor finds the production repository with the given name, arch
// and debug flag, or nil.
func (p *Platform) RepositoryFor(name, arch string, debug bool) *RepositoryKey {
	for i := range p.Repositories {
		repo := &p.Repositories[i]
		if repo.Name == name && repo.Arch == arch && repo.Debug == debug {
			return repo
		}
	}
	return nil
}

// DevelRepository finds the devel bucket repository for an architecture.
func (p *Platform) DevelRepository(arch string, debug bool) *RepositoryKey {
	name := fmt.Sprintf("%s-%s-devel", p.Distribution, p.Version)
	if debug {
		name += "-debuginfo"
	}
	return p.RepositoryFor(name, arch, debug)
}
