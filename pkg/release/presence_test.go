package release

import (
	"context"
	"fmt"
	"testing"
)

func TestCheckBatchesLargeCandidateSets(t *testing.T) {
	platform := &Platform{
		Name:         "el-9",
		Distribution: "el",
		Version:      "9",
		Arches:       []string{"x86_64"},
		Repositories: []RepositoryKey{
			{ID: 1, Name: "el-9-appstream", Arch: "x86_64"},
		},
	}
	client := newFakeRepoClient(platform)
	checker := NewChecker(client, testLogger())

	candidates := make([]*CandidatePackage, 0, 250)
	for i := 0; i < 250; i++ {
		pkg := candidate(fmt.Sprintf("pkg%03d", i), "1.0", "1.el9", "x86_64", fmt.Sprintf("/a/pkg%03d", i))
		candidates = append(candidates, &pkg)
	}

	result, err := checker.Check(context.Background(), candidates, platform)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	if lists := client.callsMatching("list:"); len(lists) != 3 {
		t.Errorf("250 candidates must produce 3 listing chunks, got %d", len(lists))
	}
	if lookups := client.callsMatching("getrepo:"); len(lookups) != 1 {
		t.Errorf("repository handle must be resolved once, got %d lookups", len(lookups))
	}
	if len(result.ResolvedHrefs) != 0 {
		t.Errorf("no candidate is present, got resolutions %v", result.ResolvedHrefs)
	}
}

func TestCheckCopyPriorityWins(t *testing.T) {
	platform := &Platform{
		Name:               "el-9",
		Distribution:       "el",
		Version:            "9",
		Arches:             []string{"x86_64", "aarch64"},
		CopyPriorityArches: []string{"aarch64", "x86_64"},
		Repositories: []RepositoryKey{
			{ID: 1, Name: "el-9-appstream-x86", Arch: "x86_64"},
			{ID: 2, Name: "el-9-appstream-a64", Arch: "aarch64"},
		},
	}
	client := newFakeRepoClient(platform)
	checker := NewChecker(client, testLogger())

	pkg := candidate("docs", "1.0", "1.el9", "noarch", "/a/docs")
	client.addPackage("el-9-appstream-x86", pkg.NEVRA, "/content/docs-x86")
	client.addPackage("el-9-appstream-a64", pkg.NEVRA, "/content/docs-a64")

	result, err := checker.Check(context.Background(), []*CandidatePackage{&pkg}, platform)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	if href := result.ResolvedHrefs[pkg.FullName]; href != "/content/docs-a64" {
		t.Errorf("copy priority must prefer the aarch64 copy, got %q", href)
	}
	if repo := result.SourceRepos[pkg.FullName]; repo != 2 {
		t.Errorf("source repository = %d, want 2", repo)
	}
	containing := result.ContainingRepos[pkg.FullName]
	if len(containing) != 2 || containing[0] != 1 || containing[1] != 2 {
		t.Errorf("containing repositories = %v, want [1 2]", containing)
	}
}

func TestCheckTiesBreakOnRepositoryID(t *testing.T) {
	platform := &Platform{
		Name:         "el-9",
		Distribution: "el",
		Version:      "9",
		Arches:       []string{"x86_64"},
		Repositories: []RepositoryKey{
			{ID: 6, Name: "el-9-baseos", Arch: "x86_64"},
			{ID: 5, Name: "el-9-appstream", Arch: "x86_64"},
		},
	}
	client := newFakeRepoClient(platform)
	checker := NewChecker(client, testLogger())

	pkg := candidate("bash", "5.1", "1.el9", "x86_64", "/a/bash")
	client.addPackage("el-9-baseos", pkg.NEVRA, "/content/bash-baseos")
	client.addPackage("el-9-appstream", pkg.NEVRA, "/content/bash-appstream")

	result, err := checker.Check(context.Background(), []*CandidatePackage{&pkg}, platform)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	if repo := result.SourceRepos[pkg.FullName]; repo != 5 {
		t.Errorf("equal-rank hits must resolve to the lowest repository id, got %d", repo)
	}
	if href := result.ResolvedHrefs[pkg.FullName]; href != "/content/bash-appstream" {
		t.Errorf("resolved href = %q, want the appstream copy", href)
	}
}

func TestCheckSkipsUnregisteredRepository(t *testing.T) {
	platform := &Platform{
		Name:         "el-9",
		Distribution: "el",
		Version:      "9",
		Arches:       []string{"x86_64"},
		Repositories: []RepositoryKey{
			{ID: 1, Name: "el-9-unprovisioned", Arch: "x86_64"},
		},
	}
	// The client knows nothing about the platform's repositories.
	client := newFakeRepoClient(nil)
	checker := NewChecker(client, testLogger())

	pkg := candidate("bash", "5.1", "1.el9", "x86_64", "/a/bash")
	result, err := checker.Check(context.Background(), []*CandidatePackage{&pkg}, platform)
	if err != nil {
		t.Fatalf("an unregistered repository must be skipped, got error: %v", err)
	}
	if len(result.ContainingRepos) != 0 {
		t.Errorf("expected an empty result, got %v", result.ContainingRepos)
	}
	if lists := client.callsMatching("list:"); len(lists) != 0 {
		t.Error("no listing may be issued against an unregistered repository")
	}
}

func TestCheckDebugCandidatesOnlyHitDebugRepos(t *testing.T) {
	platform := testPlatform()
	client := newFakeRepoClient(platform)
	checker := NewChecker(client, testLogger())

	pkg := candidate("bash-debuginfo", "5.1", "1.el9", "x86_64", "/a/bash-dbg")
	if !pkg.Debug {
		t.Fatal("test candidate must be classified as debug")
	}
	// Seed the same NEVRA into a non-debug repository; it must not count.
	client.addPackage("el-9-appstream", pkg.NEVRA, "/content/bash-dbg-wrong")
	client.addPackage("el-9-devel-debuginfo", pkg.NEVRA, "/content/bash-dbg")

	result, err := checker.Check(context.Background(), []*CandidatePackage{&pkg}, platform)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	if repo := result.SourceRepos[pkg.FullName]; repo != 4 {
		t.Errorf("debug candidate resolved against repository %d, want the debuginfo repository 4", repo)
	}
	if href := result.ResolvedHrefs[pkg.FullName]; href != "/content/bash-dbg" {
		t.Errorf("resolved href = %q, want the debuginfo copy", href)
	}
}
