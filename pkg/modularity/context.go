package modularity

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
)

// BuildContext returns the deterministic hash of the stream's build
// dependencies. Two builds of the same module that differ only in
// non-semantic ways produce the same context.
func (s *Stream) BuildContext() string {
	return hashDependencyMap(s.mergedDependencies(func(d Dependency) map[string][]string {
		return d.BuildRequires
	}))
}

// RuntimeContext returns the deterministic hash of the stream's runtime
// dependencies.
func (s *Stream) RuntimeContext() string {
	return hashDependencyMap(s.mergedDependencies(func(d Dependency) map[string][]string {
		return d.Requires
	}))
}

// ComputeContext derives and sets the stream context from the build and
// runtime contexts: hash(build || runtime) truncated to eight characters.
func (s *Stream) ComputeContext() string {
	digest := sha256.Sum256([]byte(s.BuildContext() + s.RuntimeContext()))
	context := fmt.Sprintf("%x", digest)[:8]
	s.SetContext(context)
	return context
}

// mergedDependencies flattens the dependency list into one map with sorted
// stream lists so serialization is stable.
func (s *Stream) mergedDependencies(pick func(Dependency) map[string][]string) map[string][]string {
	merged := make(map[string][]string)
	for _, dep := range s.Dependencies() {
		for module, streams := range pick(dep) {
			merged[module] = append(merged[module], streams...)
		}
	}
	for module := range merged {
		sort.Strings(merged[module])
	}
	return merged
}

// hashDependencyMap serializes a dependency map to JSON (map keys are
// sorted by the encoder) and hashes it.
func hashDependencyMap(deps map[string][]string) string {
	data, err := json.Marshal(deps)
	if err != nil {
		// A map of strings to string slices cannot fail to serialize.
		panic(err)
	}
	return fmt.Sprintf("%x", sha256.Sum256(data))
}
