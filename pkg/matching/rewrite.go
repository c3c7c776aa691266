package matching

import (
	"fmt"
	"regexp"
	"strings"
)

// repoNameRe extracts the canonical suffix from an oracle repository name
// such as "upstream-8-appstream" or "upstream-9-beta-crb-extras". The
// suffix is re-prefixed with the target distribution's own naming scheme.
var repoNameRe = regexp.MustCompile(`\w+-\d+-(beta-)?(?P<name>\w+(-\w+)?)$`)

// RewriteError indicates an oracle repository name the canonical pattern
// could not parse. It is a typed error so callers can distinguish a naming
// scheme drift from transport failures.
type RewriteError struct {
	RawName string
}

func (e *RewriteError) Error() string {
	return fmt.Sprintf("cannot extract canonical name from repository %q", e.RawName)
}

// RewriteRepoName maps an oracle repository name onto the target
// distribution's naming scheme, appending the debuginfo suffix for debug
// packages. The regex lives here and nowhere else; a miss is a typed error,
// not a panic at a call site.
func RewriteRepoName(rawName, distribution, version string, debug bool) (string, error) {
	match := repoNameRe.FindStringSubmatch(rawName)
	if match == nil {
		return "", &RewriteError{RawName: rawName}
	}

	suffix := match[repoNameRe.SubexpIndex("name")]
	name := fmt.Sprintf("%s-%s-%s", strings.ToLower(distribution), version, suffix)
	if debug {
		name += "-debuginfo"
	}
	return name, nil
}

// DevelRepoName is the synthesized fallback bucket every unmatched
// non-devel package lands in.
func DevelRepoName(distribution, version string, debug bool) string {
	name := fmt.Sprintf("%s-%s-devel", strings.ToLower(distribution), version)
	if debug {
		name += "-debuginfo"
	}
	return name
}
