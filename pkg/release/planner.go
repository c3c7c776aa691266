package release

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rpmforge/rpmforge/pkg/matching"
	"github.com/rpmforge/rpmforge/pkg/modularity"
	"github.com/rpmforge/rpmforge/pkg/oracle"
	"github.com/rpmforge/rpmforge/pkg/telemetry"
)

// Planner builds release plans from finished builds. All per-run state (the
// affinity cache, the repository lookup) is scoped to one BuildPlan call and
// never shared across concurrent planning runs.
type Planner struct {
	builds  BuildSource
	oracle  oracle.Client
	checker *Checker
	logger  zerolog.Logger
}

// NewPlanner creates a release planner. The oracle client may be nil; a nil
// client forces the plain devel placement policy regardless of platform
// configuration.
func NewPlanner(builds BuildSource, oracleClient oracle.Client, checker *Checker, logger zerolog.Logger) *Planner {
	return &Planner{
		builds:  builds,
		oracle:  oracleClient,
		checker: checker,
		logger:  logger.With().Str("component", "planner").Logger(),
	}
}

// BuildPlan computes the reconciliation plan for a set of builds against a
// platform. When buildTaskIDs is non-empty only artifacts of those tasks are
// planned, so the planner tolerates being invoked before all sibling tasks
// of a build finish.
func (p *Planner) BuildPlan(ctx context.Context, platform *Platform, buildIDs, buildTaskIDs []int64) (*Plan, error) {
	ic := telemetry.StartOperation(ctx, "plan.build",
		telemetry.AttrPlatformName.String(platform.Name))
	plan, err := p.buildPlan(ic.Ctx, platform, buildIDs, buildTaskIDs)
	ic.End(err)
	return plan, err
}

func (p *Planner) buildPlan(ctx context.Context, platform *Platform, buildIDs, buildTaskIDs []int64) (*Plan, error) {
	artifacts, err := p.builds.CompletedArtifacts(ctx, buildIDs, buildTaskIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch build artifacts: %w", err)
	}
	candidates, err := CandidatesFromArtifacts(artifacts, p.logger)
	if err != nil {
		return nil, err
	}

	templates, err := p.builds.ModuleTemplates(ctx, buildIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch module templates: %w", err)
	}

	p.logger.Info().
		Ints64("build_ids", buildIDs).
		Int("candidates", len(candidates)).
		Int("module_templates", len(templates)).
		Bool("oracle_enabled", platform.OracleEnabled && p.oracle != nil).
		Msg("building release plan")

	var targetsByPackage map[string][]RepositoryKey
	if platform.OracleEnabled && p.oracle != nil {
		cache, err := p.populateCache(ctx, platform, buildIDs, templates)
		if err != nil {
			return nil, err
		}
		cache.PropagateWeakArches(platform.WeakArches)
		targetsByPackage, err = p.matchAll(platform, candidates, cache)
		if err != nil {
			return nil, err
		}
	} else {
		targetsByPackage = p.plainPlacement(platform, candidates)
	}

	presence, err := p.checker.Check(ctx, candidates, platform)
	if err != nil {
		return nil, err
	}
	for _, candidate := range candidates {
		candidate.HrefFromRepo = presence.ResolvedHrefs[candidate.FullName]
	}

	plan := &Plan{
		SchemaVersion:     PlanSchemaVersion,
		PackagesFromRepos: presence.SourceRepos,
		PackagesInRepos:   presence.ContainingRepos,
	}
	for _, candidate := range candidates {
		targets := targetsByPackage[candidate.FullName]
		plan.Packages = append(plan.Packages, PackageEntry{
			Package:          *candidate,
			Repositories:     targets,
			RepoArchLocation: archPlacementHint(candidate, targets, platform),
		})
	}

	modules, err := p.planModules(templates, plan.Packages)
	if err != nil {
		return nil, err
	}
	plan.Modules = modules
	plan.Repositories = collectRepositories(plan)

	return plan, nil
}

// populateCache queries the oracle for every modular stream and once, in
// batch, for all source package names of the builds, and fills the affinity
// cache for this planning run.
func (p *Planner) populateCache(ctx context.Context, platform *Platform, buildIDs []int64, templates []ModuleTemplate) (*matching.Cache, error) {
	cache := matching.NewCache()

	for _, tpl := range templates {
		arches := append([]string{tpl.TaskArch}, platform.WeakArches[tpl.TaskArch]...)
		responses, err := p.oracle.QueryModule(ctx, oracle.ModuleQuery{
			Name:   tpl.Name,
			Stream: tpl.Stream,
			Arches: arches,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query oracle for module %s:%s: %w", tpl.Name, tpl.Stream, err)
		}
		for _, resp := range responses {
			cache.Populate(resp, isBetaSnapshot(resp))
		}
	}

	names, err := p.builds.SourceRPMNames(ctx, buildIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source package names: %w", err)
	}
	if len(names) > 0 {
		responses, err := p.oracle.QueryPackages(ctx, oracle.PackagesQuery{SourceRPMNames: names})
		if err != nil {
			return nil, fmt.Errorf("failed to query oracle for packages: %w", err)
		}
		for _, resp := range responses {
			cache.Populate(resp, isBetaSnapshot(resp))
		}
	}

	return cache, nil
}

// matchAll runs the matching engine for every candidate under both the devel
// and non-devel variants and unions the resulting repository sets, resolved
// against the platform's production repositories.
func (p *Planner) matchAll(platform *Platform, candidates []*CandidatePackage, cache *matching.Cache) (map[string][]RepositoryKey, error) {
	engine := matching.NewEngine(platform.Distribution, platform.Version)
	targetsByPackage := make(map[string][]RepositoryKey, len(candidates))

	for _, candidate := range candidates {
		var targets []matching.TargetRepo
		for _, devel := range []bool{false, true} {
			key := matching.Key{
				Name:    candidate.Name,
				Version: candidate.Version,
				Arch:    candidate.Arch,
				Beta:    candidate.Beta,
				Devel:   devel,
			}
			matched, err := engine.Match(cache, key, candidate.Debug)
			if err != nil {
				return nil, fmt.Errorf("failed to match package %s: %w", candidate.FullName, err)
			}
			targets = append(targets, matched...)
		}
		targetsByPackage[candidate.FullName] = p.resolveTargets(platform, candidate, targets)
	}

	return targetsByPackage, nil
}

// resolveTargets maps matched repository names onto the platform's configured
// production repositories. A match with no configured repository is dropped
// with a warning; a package resolving to zero repositories stays in the plan
// as unplaced rather than being removed.
func (p *Planner) resolveTargets(platform *Platform, candidate *CandidatePackage, targets []matching.TargetRepo) []RepositoryKey {
	seen := make(map[int64]struct{}, len(targets))
	var keys []RepositoryKey

	for _, target := range targets {
		repo := platform.RepositoryFor(target.Name, target.Arch, target.Debug)
		if repo == nil {
			p.logger.Warn().
				Str("package", candidate.FullName).
				Str("repository", target.Name).
				Str("arch", target.Arch).
				Msg("matched repository not configured on platform")
			continue
		}
		if _, dup := seen[repo.ID]; dup {
			continue
		}
		seen[repo.ID] = struct{}{}
		keys = append(keys, *repo)
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i].ID < keys[j].ID })
	return keys
}

// plainPlacement implements the fallback policy used when the oracle is
// disabled: every package goes to the platform's devel bucket under its own
// architecture, and noarch packages are placed under every declared
// architecture.
func (p *Planner) plainPlacement(platform *Platform, candidates []*CandidatePackage) map[string][]RepositoryKey {
	targetsByPackage := make(map[string][]RepositoryKey, len(candidates))

	for _, candidate := range candidates {
		arches := []string{candidate.Arch}
		if candidate.Arch == "noarch" {
			arches = platform.Arches
		}

		var keys []RepositoryKey
		for _, arch := range arches {
			repo := platform.DevelRepository(arch, candidate.Debug)
			if repo == nil {
				p.logger.Warn().
					Str("package", candidate.FullName).
					Str("arch", arch).
					Bool("debug", candidate.Debug).
					Msg("platform has no devel repository for architecture")
				continue
			}
			keys = append(keys, *repo)
		}
		targetsByPackage[candidate.FullName] = keys
	}

	return targetsByPackage
}

// planModules turns module templates into plan entries. The targets of a
// module are the non-debug repositories its build's binary packages were
// placed in, restricted to the module's architecture. NSVCA-equal streams
// from different templates collapse into one entry.
func (p *Planner) planModules(templates []ModuleTemplate, entries []PackageEntry) ([]ModuleEntry, error) {
	var modules []ModuleEntry
	seen := make(map[modularity.NSVCA]struct{})

	for _, tpl := range templates {
		index, err := modularity.ParseWithDefaults(tpl.Document, tpl.Name, tpl.Stream)
		if err != nil {
			return nil, classifyModuleError(err,
				fmt.Sprintf("failed to parse module template %s:%s", tpl.Name, tpl.Stream))
		}

		for _, stream := range index.Streams() {
			arch := stream.Arch()
			if arch == "" {
				arch = tpl.TaskArch
				stream.SetArch(arch)
			}

			id := stream.NSVCA()
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}

			modules = append(modules, ModuleEntry{
				Module: ModuleRef{
					Name:     id.Name,
					Stream:   id.Stream,
					Version:  id.Version,
					Context:  id.Context,
					Arch:     arch,
					Template: tpl.Document,
				},
				Repositories: moduleTargets(entries, tpl.BuildID, arch),
			})
		}
	}

	return modules, nil
}

// moduleTargets collects the distinct non-debug repositories of a build's
// package placements under one architecture.
func moduleTargets(entries []PackageEntry, buildID int64, arch string) []RepositoryKey {
	seen := make(map[int64]struct{})
	var keys []RepositoryKey

	for _, entry := range entries {
		if entry.Package.BuildID != buildID {
			continue
		}
		for _, repo := range entry.Repositories {
			if repo.Debug || repo.Arch != arch {
				continue
			}
			if _, dup := seen[repo.ID]; dup {
				continue
			}
			seen[repo.ID] = struct{}{}
			keys = append(keys, repo)
		}
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i].ID < keys[j].ID })
	return keys
}

// archPlacementHint computes the architecture placement hint shown to
// operators. Noarch packages always carry the full platform list; a package
// whose own architecture piggybacks on a different repository architecture
// keeps its own architecture in the hint.
func archPlacementHint(candidate *CandidatePackage, targets []RepositoryKey, platform *Platform) []string {
	if candidate.Arch == "noarch" {
		return append([]string(nil), platform.Arches...)
	}

	seen := make(map[string]struct{}, len(targets))
	var arches []string
	for _, repo := range targets {
		if _, dup := seen[repo.Arch]; dup {
			continue
		}
		seen[repo.Arch] = struct{}{}
		arches = append(arches, repo.Arch)
	}
	if _, ok := seen[candidate.Arch]; !ok && len(arches) > 0 {
		arches = append(arches, candidate.Arch)
	}

	sort.Strings(arches)
	return arches
}

// collectRepositories flattens every repository the plan touches into one
// deduplicated list for display and audit.
func collectRepositories(plan *Plan) []RepositoryKey {
	seen := make(map[int64]struct{})
	var keys []RepositoryKey

	add := func(repos []RepositoryKey) {
		for _, repo := range repos {
			if _, dup := seen[repo.ID]; dup {
				continue
			}
			seen[repo.ID] = struct{}{}
			keys = append(keys, repo)
		}
	}
	for _, entry := range plan.Packages {
		add(entry.Repositories)
	}
	for _, module := range plan.Modules {
		add(module.Repositories)
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i].ID < keys[j].ID })
	return keys
}

// isBetaSnapshot reports whether an oracle response was computed from a beta
// distribution snapshot.
func isBetaSnapshot(resp oracle.Response) bool {
	return strings.Contains(strings.ToLower(resp.Distribution.Version), "beta")
}
