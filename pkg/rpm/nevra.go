// Package rpm provides the package identity primitives used throughout the
// release engine: the NEVRA value type and parsing of architecture and
// debug-ness out of built artifact file names.
package rpm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// debugRe matches debuginfo and debugsource sub-package names.
var debugRe = regexp.MustCompile(`-debug(info|source)(-|$)`)

// NEVRA is the canonical identity tuple for an RPM package:
// Name-Epoch-Version-Release-Architecture. It is an immutable value and is
// used as a hashable matching key; two NEVRAs are equal iff all five fields
// match with the epoch normalized.
type NEVRA struct {
	Name    string `json:"name"`
	Epoch   string `json:"epoch"`
	Version string `json:"version"`
	Release string `json:"release"`
	Arch    string `json:"arch"`
}

// NormalizeEpoch maps the empty epoch and "(none)" to "0" and strips leading
// zeroes so that "0", "00" and "" all compare equal.
func NormalizeEpoch(epoch string) string {
	if epoch == "" || epoch == "(none)" {
		return "0"
	}
	if n, err := strconv.Atoi(epoch); err == nil {
		return strconv.Itoa(n)
	}
	return epoch
}

// Normalized returns a copy with the epoch in canonical form.
func (n NEVRA) Normalized() NEVRA {
	n.Epoch = NormalizeEpoch(n.Epoch)
	return n
}

// Equal reports whether two NEVRAs identify the same package.
func (n NEVRA) Equal(other NEVRA) bool {
	return n.Normalized() == other.Normalized()
}

// String renders the tuple as name-epoch:version-release.arch.
func (n NEVRA) String() string {
	return fmt.Sprintf("%s-%s:%s-%s.%s", n.Name, NormalizeEpoch(n.Epoch), n.Version, n.Release, n.Arch)
}

// FullName renders the conventional artifact file name name-version-release.arch.rpm.
func (n NEVRA) FullName() string {
	return fmt.Sprintf("%s-%s-%s.%s.rpm", n.Name, n.Version, n.Release, n.Arch)
}

// IsDebug reports whether the package is a debuginfo or debugsource variant.
func (n NEVRA) IsDebug() bool {
	return debugRe.MatchString(n.Name)
}

// IsSource reports whether the package is a source RPM.
func (n NEVRA) IsSource() bool {
	return n.Arch == "src"
}

// ArchFromArtifactName extracts the package architecture from an artifact
// file name: the token between the last two dots (foo-1.2-3.el8.x86_64.rpm).
// Per the build-scheduler contract the architecture is never passed
// explicitly and is always derived from the name.
func ArchFromArtifactName(name string) (string, error) {
	trimmed := strings.TrimSuffix(name, ".rpm")
	if trimmed == name {
		return "", fmt.Errorf("artifact %q is not an rpm", name)
	}
	idx := strings.LastIndex(trimmed, ".")
	if idx < 0 || idx == len(trimmed)-1 {
		return "", fmt.Errorf("artifact %q has no architecture suffix", name)
	}
	return trimmed[idx+1:], nil
}

// IsDebugArtifactName reports whether an artifact file name belongs to a
// debuginfo/debugsource package.
func IsDebugArtifactName(name string) bool {
	return debugRe.MatchString(name)
}

// ParseArtifactName splits a full artifact file name into a NEVRA. The
// epoch is not encoded in file names and is returned as "0"; callers that
// know the real epoch overwrite it.
func ParseArtifactName(name string) (NEVRA, error) {
	arch, err := ArchFromArtifactName(name)
	if err != nil {
		return NEVRA{}, err
	}
	base := strings.TrimSuffix(name, "."+arch+".rpm")

	relIdx := strings.LastIndex(base, "-")
	if relIdx <= 0 {
		return NEVRA{}, fmt.Errorf("artifact %q has no release segment", name)
	}
	verIdx := strings.LastIndex(base[:relIdx], "-")
	if verIdx <= 0 {
		return NEVRA{}, fmt.Errorf("artifact %q has no version segment", name)
	}

	return NEVRA{
		Name:    base[:verIdx],
		Epoch:   "0",
		Version: base[verIdx+1 : relIdx],
		Release: base[relIdx+1:],
		Arch:    arch,
	}, nil
}

// CompareVersions orders two version strings segment by segment, comparing
// numeric segments as integers and everything else lexically. It is used by
// the matching engine to pick a deterministic winner where several cached
// versions match; it is not a full RPM version comparison.
func CompareVersions(a, b string) int {
	as := splitVersion(a)
	bs := splitVersion(b)
	for i := 0; i < len(as) && i < len(bs); i++ {
		an, aerr := strconv.Atoi(as[i])
		bn, berr := strconv.Atoi(bs[i])
		switch {
		case aerr == nil && berr == nil:
			if an != bn {
				if an < bn {
					return -1
				}
				return 1
			}
		default:
			if as[i] != bs[i] {
				if as[i] < bs[i] {
					return -1
				}
				return 1
			}
		}
	}
	switch {
	case len(as) < len(bs):
		return -1
	case len(as) > len(bs):
		return 1
	}
	return 0
}

func splitVersion(v string) []string {
	return strings.FieldsFunc(v, func(r rune) bool {
		return r == '.' || r == '-' || r == '_' || r == '~'
	})
}
