// Package matching decides which production repositories a candidate
// package belongs in. It cross-references a per-run affinity cache built
// from oracle responses against a deterministic, ordered fallback chain.
// Everything here is a pure function of the cache and the lookup key; all
// mutation happens in the release planner.
package matching

import (
	"sort"

	"github.com/rpmforge/rpmforge/pkg/oracle"
	"github.com/rpmforge/rpmforge/pkg/rpm"
)

// Key is the affinity cache lookup tuple.
type Key struct {
	Name    string
	Version string
	Arch    string
	Beta    bool
	Devel   bool
}

// TargetRepo is a resolved placement in the target distribution's naming
// scheme.
type TargetRepo struct {
	Name  string
	Arch  string
	Debug bool
}

// Cache is the per-planning-run affinity cache: oracle predictions keyed by
// the lookup tuple. It is scoped to one build_plan call and never shared
// across concurrent planning runs.
type Cache struct {
	entries map[Key][]oracle.RepositoryRef
}

// NewCache creates an empty affinity cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[Key][]oracle.RepositoryRef)}
}

// Add records the oracle's predicted repositories under a lookup key,
// merging with any repositories already cached for it.
func (c *Cache) Add(key Key, repos []oracle.RepositoryRef) {
	c.entries[key] = append(c.entries[key], repos...)
}

// Populate ingests a full oracle response taken from a beta or stable
// snapshot. Repositories whose name carries a devel suffix are cached under
// the devel variant of the key.
func (c *Cache) Populate(resp oracle.Response, beta bool) {
	for _, pkg := range resp.Packages {
		for _, repo := range pkg.Repositories {
			key := Key{
				Name:    pkg.Name,
				Version: pkg.Version,
				Arch:    pkg.Arch,
				Beta:    beta,
				Devel:   isDevelRepoName(repo.Name),
			}
			c.entries[key] = append(c.entries[key], repo)
		}
	}
}

// PropagateWeakArches duplicates every strong-architecture entry under its
// weak architectures. A weak-specific entry already in the cache is never
// overridden.
func (c *Cache) PropagateWeakArches(weakByStrong map[string][]string) {
	// Collect first so the duplication does not observe its own writes.
	type pending struct {
		key   Key
		repos []oracle.RepositoryRef
	}
	var additions []pending

	for key, repos := range c.entries {
		for _, weak := range weakByStrong[key.Arch] {
			weakKey := key
			weakKey.Arch = weak
			if _, exists := c.entries[weakKey]; exists {
				continue
			}
			additions = append(additions, pending{key: weakKey, repos: repos})
		}
	}

	for _, add := range additions {
		if _, exists := c.entries[add.key]; !exists {
			c.entries[add.key] = add.repos
		}
	}
}

// Len returns the number of cached keys.
func (c *Cache) Len() int {
	return len(c.entries)
}

// Engine resolves candidate packages against the affinity cache for one
// target distribution.
type Engine struct {
	distribution string
	version      string
}

// NewEngine creates a matching engine for the target distribution.
func NewEngine(distribution, version string) *Engine {
	return &Engine{distribution: distribution, version: version}
}

// Match resolves a lookup key to target repositories using the ordered
// fallback chain: exact match, flipped beta flag, any cached version of the
// same name/arch (highest version wins, a deliberate deviation from the
// upstream last-match-wins behavior), and finally the synthesized devel
// bucket for non-devel lookups. Devel lookups that match nothing produce no
// placement at all.
func (e *Engine) Match(cache *Cache, key Key, debug bool) ([]TargetRepo, error) {
	repos := cache.entries[key]

	if len(repos) == 0 {
		flipped := key
		flipped.Beta = !key.Beta
		repos = cache.entries[flipped]
	}

	if len(repos) == 0 {
		repos = bestVersionMatch(cache, key)
	}

	if len(repos) == 0 {
		if key.Devel {
			return nil, nil
		}
		return []TargetRepo{{
			Name:  DevelRepoName(e.distribution, e.version, debug),
			Arch:  key.Arch,
			Debug: debug,
		}}, nil
	}

	return e.rewriteAll(repos, debug)
}

// bestVersionMatch scans the cache for any version of (name, arch, devel)
// and returns the entry with the highest version.
func bestVersionMatch(cache *Cache, key Key) []oracle.RepositoryRef {
	bestVersion := ""
	var best []oracle.RepositoryRef

	for cached, repos := range cache.entries {
		if cached.Name != key.Name || cached.Arch != key.Arch || cached.Devel != key.Devel {
			continue
		}
		if bestVersion == "" || rpm.CompareVersions(cached.Version, bestVersion) > 0 {
			bestVersion = cached.Version
			best = repos
		}
	}

	return best
}

// rewriteAll maps oracle repository names onto the target naming scheme and
// deduplicates the result, sorted for reproducible plans.
func (e *Engine) rewriteAll(repos []oracle.RepositoryRef, debug bool) ([]TargetRepo, error) {
	seen := make(map[TargetRepo]struct{}, len(repos))
	var targets []TargetRepo

	for _, repo := range repos {
		name, err := RewriteRepoName(repo.Name, e.distribution, e.version, debug)
		if err != nil {
			return nil, err
		}
		target := TargetRepo{Name: name, Arch: repo.Arch, Debug: debug}
		if _, dup := seen[target]; dup {
			continue
		}
		seen[target] = struct{}{}
		targets = append(targets, target)
	}

	sort.Slice(targets, func(i, j int) bool {
		if targets[i].Name != targets[j].Name {
			return targets[i].Name < targets[j].Name
		}
		return targets[i].Arch < targets[j].Arch
	})

	return targets, nil
}

func isDevelRepoName(name string) bool {
	match := repoNameRe.FindStringSubmatch(name)
	if match == nil {
		return false
	}
	suffix := match[repoNameRe.SubexpIndex("name")]
	return suffix == "devel" || suffix == "devel-debuginfo"
}
