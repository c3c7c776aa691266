package release

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rpmforge/rpmforge/pkg/oracle"
	"github.com/rpmforge/rpmforge/pkg/repomanager"
	"github.com/rpmforge/rpmforge/pkg/rpm"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

// testPlatform returns a platform with devel buckets for every architecture
// plus a pair of production repositories.
func testPlatform() *Platform {
	return &Platform{
		Name:               "el-9",
		Distribution:       "el",
		Version:            "9",
		Arches:             []string{"x86_64", "aarch64"},
		WeakArches:         map[string][]string{"x86_64": {"i686"}},
		CopyPriorityArches: []string{"x86_64", "aarch64"},
		OracleEnabled:      false,
		Repositories: []RepositoryKey{
			{ID: 1, Name: "el-9-devel", Arch: "x86_64"},
			{ID: 2, Name: "el-9-devel", Arch: "aarch64"},
			{ID: 3, Name: "el-9-devel", Arch: "src"},
			{ID: 4, Name: "el-9-devel-debuginfo", Arch: "x86_64", Debug: true},
			{ID: 5, Name: "el-9-appstream", Arch: "x86_64"},
			{ID: 6, Name: "el-9-baseos", Arch: "x86_64"},
		},
	}
}

// fakeRepoClient is an in-memory repository manager that records every call
// in order.
type fakeRepoClient struct {
	mu    sync.Mutex
	calls []string

	repos    map[string]*repomanager.RepoHandle
	packages map[string][]repomanager.PackageRecord
	docs     map[string]string

	modifyDelay time.Duration
	modifyErr   map[string]error

	added   map[string][]string
	removed map[string][]string
}

func newFakeRepoClient(platform *Platform) *fakeRepoClient {
	c := &fakeRepoClient{
		repos:     make(map[string]*repomanager.RepoHandle),
		packages:  make(map[string][]repomanager.PackageRecord),
		docs:      make(map[string]string),
		modifyErr: make(map[string]error),
		added:     make(map[string][]string),
		removed:   make(map[string][]string),
	}
	if platform != nil {
		for _, repo := range platform.Repositories {
			c.registerRepo(repo.Name)
		}
	}
	return c
}

func (c *fakeRepoClient) registerRepo(name string) *repomanager.RepoHandle {
	if handle, ok := c.repos[name]; ok {
		return handle
	}
	handle := &repomanager.RepoHandle{
		Name:              name,
		Href:              "/repos/" + name + "/",
		LatestVersionHref: "/repos/" + name + "/versions/1/",
		URL:               "https://cdn.example.com/" + name,
	}
	c.repos[name] = handle
	return handle
}

// addPackage makes a NEVRA visible in the latest version of a repository.
func (c *fakeRepoClient) addPackage(repoName string, n rpm.NEVRA, href string) {
	handle := c.registerRepo(repoName)
	c.packages[handle.LatestVersionHref] = append(c.packages[handle.LatestVersionHref], repomanager.PackageRecord{
		Href:    href,
		Name:    n.Name,
		Epoch:   rpm.NormalizeEpoch(n.Epoch),
		Version: n.Version,
		Release: n.Release,
		Arch:    n.Arch,
	})
}

func (c *fakeRepoClient) record(call string) {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	c.mu.Unlock()
}

func (c *fakeRepoClient) callsMatching(prefix string) []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var indexes []int
	for i, call := range c.calls {
		if len(call) >= len(prefix) && call[:len(prefix)] == prefix {
			indexes = append(indexes, i)
		}
	}
	return indexes
}

func (c *fakeRepoClient) GetOrCreateRepository(_ context.Context, name string) (*repomanager.RepoHandle, error) {
	c.record("getorcreate:" + name)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registerRepo(name), nil
}

func (c *fakeRepoClient) GetRepository(_ context.Context, name string) (*repomanager.RepoHandle, error) {
	c.record("getrepo:" + name)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.repos[name], nil
}

func (c *fakeRepoClient) ListPackages(_ context.Context, versionHref string, filter repomanager.PackageFilter) ([]repomanager.PackageRecord, error) {
	c.record("list:" + versionHref)
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make(map[string]struct{}, len(filter.Names))
	for _, name := range filter.Names {
		names[name] = struct{}{}
	}

	var records []repomanager.PackageRecord
	for _, record := range c.packages[versionHref] {
		if _, ok := names[record.Name]; !ok {
			continue
		}
		if filter.Arch != "" && record.Arch != filter.Arch {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func (c *fakeRepoClient) ModifyRepository(_ context.Context, repoHref string, add, remove []string) (*repomanager.Task, error) {
	c.record("modify:" + repoHref)
	if c.modifyDelay > 0 {
		time.Sleep(c.modifyDelay)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.modifyErr[repoHref]; err != nil {
		return nil, err
	}
	c.added[repoHref] = append(c.added[repoHref], add...)
	c.removed[repoHref] = append(c.removed[repoHref], remove...)
	return &repomanager.Task{Href: "/tasks/modify" + repoHref, State: repomanager.TaskStateCompleted}, nil
}

func (c *fakeRepoClient) Publish(_ context.Context, repoHref string) (*repomanager.Task, error) {
	c.record("publish:" + repoHref)
	return &repomanager.Task{Href: "/tasks/publish" + repoHref, State: repomanager.TaskStateCompleted}, nil
}

func (c *fakeRepoClient) WaitForTask(_ context.Context, taskHref string) (*repomanager.Task, error) {
	c.record("wait:" + taskHref)
	return &repomanager.Task{Href: taskHref, State: repomanager.TaskStateCompleted}, nil
}

func (c *fakeRepoClient) GetModuleDocument(_ context.Context, repoURL string) (string, error) {
	c.record("moduledoc:" + repoURL)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.docs[repoURL], nil
}

func (c *fakeRepoClient) CreateModule(_ context.Context, _, name, stream, context_, _ string) (*repomanager.ModuleContent, error) {
	c.record("createmodule:" + name + ":" + stream)
	return &repomanager.ModuleContent{
		Href:     fmt.Sprintf("/content/modules/%s-%s-%s/", name, stream, context_),
		Checksum: "deadbeef",
	}, nil
}

// fakeBuildSource serves canned build-scheduler data.
type fakeBuildSource struct {
	artifacts []BuildArtifact
	templates []ModuleTemplate
	srpmNames []string
	err       error
}

func (f *fakeBuildSource) CompletedArtifacts(_ context.Context, _, taskIDs []int64) ([]BuildArtifact, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(taskIDs) == 0 {
		return f.artifacts, nil
	}
	wanted := make(map[int64]struct{}, len(taskIDs))
	for _, id := range taskIDs {
		wanted[id] = struct{}{}
	}
	var filtered []BuildArtifact
	for _, artifact := range f.artifacts {
		if _, ok := wanted[artifact.TaskID]; ok {
			filtered = append(filtered, artifact)
		}
	}
	return filtered, nil
}

func (f *fakeBuildSource) ModuleTemplates(_ context.Context, _ []int64) ([]ModuleTemplate, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.templates, nil
}

func (f *fakeBuildSource) SourceRPMNames(_ context.Context, _ []int64) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.srpmNames, nil
}

// fakeOracle serves canned affinity responses.
type fakeOracle struct {
	mu               sync.Mutex
	moduleResponses  []oracle.Response
	packageResponses []oracle.Response
	moduleQueries    []oracle.ModuleQuery
	packageQueries   []oracle.PackagesQuery
}

func (f *fakeOracle) QueryModule(_ context.Context, query oracle.ModuleQuery) ([]oracle.Response, error) {
	f.mu.Lock()
	f.moduleQueries = append(f.moduleQueries, query)
	f.mu.Unlock()
	return f.moduleResponses, nil
}

func (f *fakeOracle) QueryPackages(_ context.Context, query oracle.PackagesQuery) ([]oracle.Response, error) {
	f.mu.Lock()
	f.packageQueries = append(f.packageQueries, query)
	f.mu.Unlock()
	return f.packageResponses, nil
}

// fakeVerifier fails verification with a fixed error when set.
type fakeVerifier struct {
	err   error
	calls int
}

func (f *fakeVerifier) VerifyBuilds(_ context.Context, _ []int64) error {
	f.calls++
	return f.err
}

// fakeGate denies every plan with a fixed error when set.
type fakeGate struct {
	err   error
	calls int
}

func (f *fakeGate) EvaluatePlan(_ context.Context, _ *Release) error {
	f.calls++
	return f.err
}

// fakeHook applies a transform function to every plan it sees.
type fakeHook struct {
	transform func(*Plan) *Plan
}

func (f *fakeHook) TransformPlan(_ context.Context, _ string, plan *Plan) (*Plan, error) {
	if f.transform == nil {
		return plan, nil
	}
	return f.transform(plan), nil
}

type storedEvent struct {
	releaseID string
	level     string
	message   string
}

// memStore is an in-memory release store.
type memStore struct {
	mu        sync.Mutex
	releases  map[string]*Release
	events    []storedEvent
	links     map[string][]int64
	locks     map[string]*sync.Mutex
	updateErr error
}

func newMemStore() *memStore {
	return &memStore{
		releases: make(map[string]*Release),
		links:    make(map[string][]int64),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *memStore) CreateRelease(_ context.Context, release *Release) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.releases[release.ID]; dup {
		return fmt.Errorf("release %s already exists", release.ID)
	}
	s.releases[release.ID] = release
	return nil
}

func (s *memStore) GetRelease(_ context.Context, id string) (*Release, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releases[id], nil
}

func (s *memStore) UpdateRelease(_ context.Context, release *Release) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	if _, ok := s.releases[release.ID]; !ok {
		return fmt.Errorf("release %s not found", release.ID)
	}
	s.releases[release.ID] = release
	return nil
}

func (s *memStore) LinkBuilds(_ context.Context, releaseID string, buildIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[releaseID] = append([]int64(nil), buildIDs...)
	return nil
}

func (s *memStore) UnlinkBuilds(_ context.Context, releaseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.links, releaseID)
	return nil
}

func (s *memStore) WithReleaseLock(ctx context.Context, releaseID string, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	lock, ok := s.locks[releaseID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[releaseID] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn(ctx)
}

func (s *memStore) AppendEvent(_ context.Context, releaseID, level, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, storedEvent{releaseID: releaseID, level: level, message: message})
	return nil
}

// candidate builds a candidate package for tests.
func candidate(name, version, releaseStr, arch, href string) CandidatePackage {
	n := rpm.NEVRA{Name: name, Epoch: "0", Version: version, Release: releaseStr, Arch: arch}
	return CandidatePackage{
		NEVRA:        n,
		FullName:     fmt.Sprintf("%s-%s-%s.%s.rpm", name, version, releaseStr, arch),
		ArtifactHref: href,
		BuildID:      42,
		BuildTaskID:  420,
		TaskArch:     "x86_64",
		Debug:        rpm.IsDebugArtifactName(name),
	}
}

// planFor assembles a plan around the given entries with the repository list
// derived from them.
func planFor(entries []PackageEntry, modules []ModuleEntry) *Plan {
	plan := &Plan{
		SchemaVersion: PlanSchemaVersion,
		Packages:      entries,
		Modules:       modules,
	}
	plan.Repositories = collectRepositories(plan)
	return plan
}
