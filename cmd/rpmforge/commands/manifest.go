package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rpmforge/rpmforge/pkg/release"
)

// buildManifest is the CLI's stand-in for the build scheduler: a JSON export
// of the finished builds a release should ship, including their module
// metadata and signing state. It implements both the planner's build source
// and the executor's signature verifier.
type buildManifest struct {
	// Artifacts are the completed build task artifacts.
	Artifacts []release.BuildArtifact `json:"artifacts"`

	// Modules carry the module metadata of modular build tasks.
	Modules []release.ModuleTemplate `json:"module_templates,omitempty"`

	// SRPMNames are the source package names of the builds, used for the
	// batched oracle query.
	SRPMNames []string `json:"source_rpm_names,omitempty"`

	// UnsignedBuilds lists build ids whose artifacts are not signed yet.
	// Committing a release that references one fails verification.
	UnsignedBuilds []int64 `json:"unsigned_builds,omitempty"`
}

// loadBuildManifest reads and decodes a manifest file.
func loadBuildManifest(path string) (*buildManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read build manifest: %w", err)
	}
	var manifest buildManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse build manifest %s: %w", path, err)
	}
	return &manifest, nil
}

// CompletedArtifacts returns the manifest artifacts of the given builds,
// filtered to taskIDs when non-empty.
func (m *buildManifest) CompletedArtifacts(_ context.Context, buildIDs, taskIDs []int64) ([]release.BuildArtifact, error) {
	builds := toIDSet(buildIDs)
	tasks := toIDSet(taskIDs)

	var artifacts []release.BuildArtifact
	for _, artifact := range m.Artifacts {
		if !builds[artifact.BuildID] {
			continue
		}
		if len(tasks) > 0 && !tasks[artifact.TaskID] {
			continue
		}
		artifacts = append(artifacts, artifact)
	}
	return artifacts, nil
}

// ModuleTemplates returns the module metadata of the given builds.
func (m *buildManifest) ModuleTemplates(_ context.Context, buildIDs []int64) ([]release.ModuleTemplate, error) {
	builds := toIDSet(buildIDs)

	var templates []release.ModuleTemplate
	for _, template := range m.Modules {
		if builds[template.BuildID] {
			templates = append(templates, template)
		}
	}
	return templates, nil
}

// SourceRPMNames returns the source package names declared by the manifest.
func (m *buildManifest) SourceRPMNames(context.Context, []int64) ([]string, error) {
	return m.SRPMNames, nil
}

// VerifyBuilds fails when any requested build is listed as unsigned.
func (m *buildManifest) VerifyBuilds(_ context.Context, buildIDs []int64) error {
	unsigned := toIDSet(m.UnsignedBuilds)
	for _, id := range buildIDs {
		if unsigned[id] {
			return fmt.Errorf("build %d is not signed", id)
		}
	}
	return nil
}

func toIDSet(ids []int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
