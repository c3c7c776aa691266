package release

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rpmforge/rpmforge/pkg/repomanager"
	"github.com/rpmforge/rpmforge/pkg/rpm"
	"github.com/rpmforge/rpmforge/pkg/telemetry"
)

// PresenceResult is the outcome of one presence check run.
type PresenceResult struct {
	// ResolvedHrefs maps a package full name to the href of the existing
	// production copy chosen for reuse.
	ResolvedHrefs map[string]string

	// SourceRepos maps a package full name to the repository id whose copy
	// ResolvedHrefs points at.
	SourceRepos map[string]int64

	// ContainingRepos maps a package full name to the ids of every
	// repository already containing its NEVRA.
	ContainingRepos map[string][]int64
}

// presenceHit is one package occurrence found in a production repository.
type presenceHit struct {
	fullName string
	href     string
	repoID   int64
	repoArch string
}

// presenceQuery is one batched listing against a single repository version.
type presenceQuery struct {
	repo    RepositoryKey
	version string
	bucket  []*CandidatePackage
	arch    string
}

// Checker determines which candidate packages already exist in which
// production repositories. Queries are batched to the repository manager's
// listing limit and run concurrently; each query owns a private accumulator
// merged at the end, so no shared state needs locking.
type Checker struct {
	client repomanager.Client
	logger zerolog.Logger
}

// NewChecker creates a presence checker.
func NewChecker(client repomanager.Client, logger zerolog.Logger) *Checker {
	return &Checker{
		client: client,
		logger: logger.With().Str("component", "presence").Logger(),
	}
}

// Check queries the platform's latest published repository versions for the
// candidates' NEVRAs. A transport failure in any chunk fails the whole
// check; chunks are not retried individually.
func (c *Checker) Check(ctx context.Context, candidates []*CandidatePackage, platform *Platform) (*PresenceResult, error) {
	queries, err := c.buildQueries(ctx, candidates, platform)
	if err != nil {
		return nil, err
	}
	if tel := telemetry.FromTelemetryContext(ctx); tel != nil {
		tel.Metrics.RecordPresenceCheck(len(queries), len(candidates))
	}

	hits := make([][]presenceHit, len(queries))
	errs := make(chan error, len(queries))
	var wg sync.WaitGroup

	for i, query := range queries {
		wg.Add(1)
		go func(i int, query presenceQuery) {
			defer wg.Done()
			found, err := c.runQuery(ctx, query)
			if err != nil {
				errs <- err
				return
			}
			hits[i] = found
		}(i, query)
	}
	wg.Wait()
	close(errs)

	if err := <-errs; err != nil {
		return nil, err
	}

	return c.resolve(candidates, hits, platform), nil
}

// buildQueries partitions the candidates by debug flag and architecture,
// pairs each bucket with the matching repositories, and chunks the name
// lists to the listing limit. Noarch and src buckets are checked against
// repositories of their exact architecture only when such repositories
// exist; noarch is additionally checked against every binary repository.
func (c *Checker) buildQueries(ctx context.Context, candidates []*CandidatePackage, platform *Platform) ([]presenceQuery, error) {
	type partition struct {
		debug bool
		arch  string
	}
	buckets := make(map[partition][]*CandidatePackage)
	for _, candidate := range candidates {
		p := partition{debug: candidate.Debug, arch: candidate.Arch}
		buckets[p] = append(buckets[p], candidate)
	}

	versions := make(map[int64]string)
	var queries []presenceQuery

	for part, bucket := range buckets {
		for _, repo := range platform.Repositories {
			if repo.Debug != part.debug {
				continue
			}
			if part.arch != "noarch" && repo.Arch != part.arch {
				continue
			}

			version, ok := versions[repo.ID]
			if !ok {
				handle, err := c.client.GetRepository(ctx, repo.Name)
				if err != nil {
					return nil, NewExternalError(CodeMissingRepository,
						fmt.Sprintf("failed to look up repository %s", repo.Name), err).WithRepository(repo.Name)
				}
				if handle == nil {
					c.logger.Warn().Str("repository", repo.Name).Msg("repository not registered, skipping presence check")
					versions[repo.ID] = ""
					continue
				}
				version = handle.LatestVersionHref
				versions[repo.ID] = version
			}
			if version == "" {
				continue
			}

			for start := 0; start < len(bucket); start += repomanager.MaxBatchSize {
				end := start + repomanager.MaxBatchSize
				if end > len(bucket) {
					end = len(bucket)
				}
				queries = append(queries, presenceQuery{
					repo:    repo,
					version: version,
					bucket:  bucket[start:end],
					arch:    part.arch,
				})
			}
		}
	}

	return queries, nil
}

// runQuery lists one chunk against one repository version and records every
// NEVRA-equal hit.
func (c *Checker) runQuery(ctx context.Context, query presenceQuery) ([]presenceHit, error) {
	filter := repomanager.PackageFilter{
		Arch:   query.arch,
		Fields: []string{"pulp_href", "name", "epoch", "version", "release", "arch", "location_href"},
	}
	byNEVRA := make(map[rpm.NEVRA]*CandidatePackage, len(query.bucket))
	for _, candidate := range query.bucket {
		filter.Names = append(filter.Names, candidate.Name)
		filter.Epochs = append(filter.Epochs, rpm.NormalizeEpoch(candidate.Epoch))
		filter.Versions = append(filter.Versions, candidate.Version)
		filter.Releases = append(filter.Releases, candidate.Release)
		byNEVRA[candidate.NEVRA.Normalized()] = candidate
	}

	records, err := c.client.ListPackages(ctx, query.version, filter)
	if err != nil {
		return nil, NewExternalError(CodeMissingRepository,
			fmt.Sprintf("presence check failed for repository %s", query.repo.Name), err).WithRepository(query.repo.Name)
	}

	var hits []presenceHit
	for _, record := range records {
		nevra := rpm.NEVRA{
			Name:    record.Name,
			Epoch:   record.Epoch,
			Version: record.Version,
			Release: record.Release,
			Arch:    record.Arch,
		}
		candidate, ok := byNEVRA[nevra.Normalized()]
		if !ok {
			continue
		}
		hits = append(hits, presenceHit{
			fullName: candidate.FullName,
			href:     record.Href,
			repoID:   query.repo.ID,
			repoArch: query.repo.Arch,
		})
	}

	return hits, nil
}

// refreshPlanPresence re-checks presence for every package of a plan and
// rewrites the plan's presence maps and resolved hrefs in place. Used both
// before execution, when the plan may be stale, and when storing an
// operator-edited plan.
func refreshPlanPresence(ctx context.Context, checker *Checker, plan *Plan, platform *Platform) error {
	seen := make(map[string]struct{}, len(plan.Packages))
	var candidates []*CandidatePackage
	for i := range plan.Packages {
		pkg := &plan.Packages[i].Package
		if _, dup := seen[pkg.FullName]; dup {
			continue
		}
		seen[pkg.FullName] = struct{}{}
		candidates = append(candidates, pkg)
	}

	presence, err := checker.Check(ctx, candidates, platform)
	if err != nil {
		return err
	}

	plan.PackagesFromRepos = presence.SourceRepos
	plan.PackagesInRepos = presence.ContainingRepos
	for i := range plan.Packages {
		pkg := &plan.Packages[i].Package
		pkg.HrefFromRepo = presence.ResolvedHrefs[pkg.FullName]
	}
	return nil
}

// resolve merges all query accumulators and picks, per package, the hit used
// for href reuse. When a package is found under several repository
// architectures the platform's copy priority list wins; remaining ties are
// broken by repository id so the output is reproducible.
func (c *Checker) resolve(candidates []*CandidatePackage, hits [][]presenceHit, platform *Platform) *PresenceResult {
	byPackage := make(map[string][]presenceHit)
	for _, chunk := range hits {
		for _, hit := range chunk {
			byPackage[hit.fullName] = append(byPackage[hit.fullName], hit)
		}
	}

	priority := make(map[string]int, len(platform.CopyPriorityArches))
	for i, arch := range platform.CopyPriorityArches {
		priority[arch] = i
	}
	rank := func(arch string) int {
		if r, ok := priority[arch]; ok {
			return r
		}
		return len(priority)
	}

	result := &PresenceResult{
		ResolvedHrefs:   make(map[string]string),
		SourceRepos:     make(map[string]int64),
		ContainingRepos: make(map[string][]int64),
	}

	for _, candidate := range candidates {
		found := byPackage[candidate.FullName]
		if len(found) == 0 {
			continue
		}

		sort.Slice(found, func(i, j int) bool {
			ri, rj := rank(found[i].repoArch), rank(found[j].repoArch)
			if ri != rj {
				return ri < rj
			}
			return found[i].repoID < found[j].repoID
		})

		best := found[0]
		result.ResolvedHrefs[candidate.FullName] = best.href
		result.SourceRepos[candidate.FullName] = best.repoID

		seen := make(map[int64]struct{}, len(found))
		for _, hit := range found {
			if _, dup := seen[hit.repoID]; dup {
				continue
			}
			seen[hit.repoID] = struct{}{}
			result.ContainingRepos[candidate.FullName] = append(result.ContainingRepos[candidate.FullName], hit.repoID)
		}
		sort.Slice(result.ContainingRepos[candidate.FullName], func(i, j int) bool {
			ids := result.ContainingRepos[candidate.FullName]
			return ids[i] < ids[j]
		})
	}

	return result
}
