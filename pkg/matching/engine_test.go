package matching

import (
	"errors"
	"testing"

	"github.com/rpmforge/rpmforge/pkg/oracle"
)

func cacheWith(key Key, names ...string) *Cache {
	cache := NewCache()
	refs := make([]oracle.RepositoryRef, 0, len(names))
	for _, name := range names {
		refs = append(refs, oracle.RepositoryRef{Name: name, Arch: key.Arch})
	}
	cache.Add(key, refs)
	return cache
}

func TestMatchExact(t *testing.T) {
	key := Key{Name: "foo", Version: "1.0", Arch: "x86_64"}
	cache := cacheWith(key, "upstream-9-appstream")
	engine := NewEngine("targetos", "9")

	targets, err := engine.Match(cache, key, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(targets) != 1 {
		t.Fatalf("expected 1 target, got %d", len(targets))
	}
	if targets[0].Name != "targetos-9-appstream" {
		t.Errorf("unexpected repo name %q", targets[0].Name)
	}
}

func TestMatchFlipsBetaFlag(t *testing.T) {
	cached := Key{Name: "foo", Version: "1.0", Arch: "x86_64", Beta: true}
	cache := cacheWith(cached, "upstream-9-beta-baseos")
	engine := NewEngine("targetos", "9")

	lookup := cached
	lookup.Beta = false
	targets, err := engine.Match(cache, lookup, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(targets) != 1 || targets[0].Name != "targetos-9-baseos" {
		t.Fatalf("expected beta-flipped match, got %+v", targets)
	}
}

func TestMatchAnyVersionPicksHighest(t *testing.T) {
	cache := NewCache()
	cache.Add(Key{Name: "foo", Version: "1.2", Arch: "x86_64"},
		[]oracle.RepositoryRef{{Name: "upstream-9-old", Arch: "x86_64"}})
	cache.Add(Key{Name: "foo", Version: "1.10", Arch: "x86_64"},
		[]oracle.RepositoryRef{{Name: "upstream-9-new", Arch: "x86_64"}})
	engine := NewEngine("targetos", "9")

	targets, err := engine.Match(cache, Key{Name: "foo", Version: "2.0", Arch: "x86_64"}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(targets) != 1 || targets[0].Name != "targetos-9-new" {
		t.Fatalf("expected highest cached version to win, got %+v", targets)
	}
}

func TestMatchFallsBackToDevel(t *testing.T) {
	engine := NewEngine("targetos", "9")

	targets, err := engine.Match(NewCache(), Key{Name: "foo", Version: "1.0", Arch: "x86_64"}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(targets) != 1 || targets[0].Name != "targetos-9-devel" {
		t.Fatalf("expected devel fallback, got %+v", targets)
	}
	if targets[0].Arch != "x86_64" {
		t.Errorf("devel fallback must keep the package arch, got %q", targets[0].Arch)
	}
}

func TestMatchDevelLookupWithoutMatchIsDropped(t *testing.T) {
	engine := NewEngine("targetos", "9")

	targets, err := engine.Match(NewCache(), Key{Name: "foo", Version: "1.0", Arch: "x86_64", Devel: true}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(targets) != 0 {
		t.Fatalf("devel lookups must produce no fallback, got %+v", targets)
	}
}

func TestMatchDebugSuffix(t *testing.T) {
	key := Key{Name: "foo-debuginfo", Version: "1.0", Arch: "x86_64"}
	cache := cacheWith(key, "upstream-9-appstream")
	engine := NewEngine("targetos", "9")

	targets, err := engine.Match(cache, key, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if targets[0].Name != "targetos-9-appstream-debuginfo" {
		t.Errorf("expected debuginfo suffix, got %q", targets[0].Name)
	}
}

func TestPropagateWeakArches(t *testing.T) {
	cache := NewCache()
	cache.Add(Key{Name: "foo", Version: "1.0", Arch: "x86_64"},
		[]oracle.RepositoryRef{{Name: "upstream-9-appstream", Arch: "x86_64"}})
	cache.PropagateWeakArches(map[string][]string{"x86_64": {"i686"}})

	engine := NewEngine("targetos", "9")
	targets, err := engine.Match(cache, Key{Name: "foo", Version: "1.0", Arch: "i686"}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(targets) != 1 || targets[0].Name != "targetos-9-appstream" {
		t.Fatalf("expected strong-arch match under weak arch, got %+v", targets)
	}
}

func TestPropagateWeakArchesKeepsExistingEntries(t *testing.T) {
	cache := NewCache()
	cache.Add(Key{Name: "foo", Version: "1.0", Arch: "x86_64"},
		[]oracle.RepositoryRef{{Name: "upstream-9-appstream", Arch: "x86_64"}})
	cache.Add(Key{Name: "foo", Version: "1.0", Arch: "i686"},
		[]oracle.RepositoryRef{{Name: "upstream-9-crb", Arch: "i686"}})
	cache.PropagateWeakArches(map[string][]string{"x86_64": {"i686"}})

	engine := NewEngine("targetos", "9")
	targets, err := engine.Match(cache, Key{Name: "foo", Version: "1.0", Arch: "i686"}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(targets) != 1 || targets[0].Name != "targetos-9-crb" {
		t.Fatalf("weak-specific entry must not be overridden, got %+v", targets)
	}
}

func TestRewriteRepoName(t *testing.T) {
	cases := []struct {
		raw   string
		debug bool
		want  string
	}{
		{"upstream-9-appstream", false, "targetos-9-appstream"},
		{"upstream-9-beta-baseos", false, "targetos-9-baseos"},
		{"upstream-8-crb-extras", false, "targetos-9-crb-extras"},
		{"upstream-9-appstream", true, "targetos-9-appstream-debuginfo"},
	}

	for _, tc := range cases {
		got, err := RewriteRepoName(tc.raw, "TargetOS", "9", tc.debug)
		if err != nil {
			t.Errorf("RewriteRepoName(%q) unexpected error: %v", tc.raw, err)
			continue
		}
		if got != tc.want {
			t.Errorf("RewriteRepoName(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestRewriteRepoNameMiss(t *testing.T) {
	_, err := RewriteRepoName("???", "targetos", "9", false)
	var rewriteErr *RewriteError
	if !errors.As(err, &rewriteErr) {
		t.Fatalf("expected *RewriteError, got %v", err)
	}
}
