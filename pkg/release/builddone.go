package release

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rpmforge/rpmforge/pkg/rpm"
)

// ArtifactTypeRPM is the artifact type carrying a package; build logs and
// other artifact types are ignored by planning.
const ArtifactTypeRPM = "rpm"

// CandidatesFromArtifacts converts build-scheduler artifacts into candidate
// packages. Architecture and debug-ness are derived from the artifact file
// name. Candidates are deduplicated by full artifact name, first occurrence
// wins, so a package appearing in multiple build tasks is planned once.
func CandidatesFromArtifacts(artifacts []BuildArtifact, logger zerolog.Logger) ([]*CandidatePackage, error) {
	seen := make(map[string]struct{}, len(artifacts))
	candidates := make([]*CandidatePackage, 0, len(artifacts))

	for _, artifact := range artifacts {
		if artifact.Type != ArtifactTypeRPM {
			continue
		}
		if _, dup := seen[artifact.Name]; dup {
			logger.Debug().
				Str("artifact", artifact.Name).
				Int64("build_task_id", artifact.TaskID).
				Msg("skipping duplicate artifact")
			continue
		}

		nevra, err := rpm.ParseArtifactName(artifact.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to parse artifact name: %w", err)
		}
		if artifact.Epoch != "" {
			nevra.Epoch = rpm.NormalizeEpoch(artifact.Epoch)
		}

		seen[artifact.Name] = struct{}{}
		candidates = append(candidates, &CandidatePackage{
			NEVRA:        nevra,
			FullName:     artifact.Name,
			ArtifactHref: artifact.Href,
			BuildID:      artifact.BuildID,
			BuildTaskID:  artifact.TaskID,
			TaskArch:     artifact.TaskArch,
			Beta:         artifact.Beta,
			Debug:        rpm.IsDebugArtifactName(artifact.Name),
		})
	}

	return candidates, nil
}
