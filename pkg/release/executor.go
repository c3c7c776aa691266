package release

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rpmforge/rpmforge/pkg/modularity"
	"github.com/rpmforge/rpmforge/pkg/repomanager"
	"github.com/rpmforge/rpmforge/pkg/telemetry"
)

// Executor applies an approved release plan against the repository manager.
// Validation and grouping happen before any remote mutating call; once the
// modify phase starts, failures are reported but already-applied
// modifications are not rolled back. Re-running a commit is safe because
// repository modification has content-set semantics.
type Executor struct {
	client   repomanager.Client
	checker  *Checker
	verifier SignatureVerifier
	logger   zerolog.Logger
}

// NewExecutor creates a release executor.
func NewExecutor(client repomanager.Client, checker *Checker, verifier SignatureVerifier, logger zerolog.Logger) *Executor {
	return &Executor{
		client:   client,
		checker:  checker,
		verifier: verifier,
		logger:   logger.With().Str("component", "executor").Logger(),
	}
}

// Execute runs one commit pass over the release's plan and returns the
// accumulated informational messages. The caller persists the plan's audit
// log regardless of the outcome.
func (e *Executor) Execute(ctx context.Context, release *Release, platform *Platform) ([]string, error) {
	plan := release.Plan
	if plan == nil || plan.IsEmpty() {
		return nil, ErrEmptyPlan().WithRelease(release.ID)
	}

	if err := e.verifier.VerifyBuilds(ctx, release.BuildIDs); err != nil {
		return nil, NewExternalError(CodeSignatureError,
			"build signature verification failed", err).WithRelease(release.ID)
	}

	// The plan may be stale relative to repository state since creation.
	if err := e.refreshPresence(ctx, plan, platform); err != nil {
		return nil, err
	}

	handles, err := e.resolveRepositories(ctx, plan, release.ID)
	if err != nil {
		return nil, err
	}

	adds := make(map[int64][]string)
	var messages []string

	for i := range plan.Packages {
		entry := &plan.Packages[i]
		for _, repo := range entry.Repositories {
			present := containsID(plan.PackagesInRepos[entry.Package.FullName], repo.ID)
			if present && !entry.Package.Force {
				continue
			}

			effective := entry.Package.HrefFromRepo
			if entry.Package.Force || effective == "" {
				effective = entry.Package.ArtifactHref
			}
			if effective == "" {
				return nil, NewValidationError(CodeReleaseLogicError,
					fmt.Sprintf("package %s has no resolvable content for repository %s",
						entry.Package.FullName, repo.Name)).WithRelease(release.ID).WithRepository(repo.Name)
			}
			adds[repo.ID] = appendUnique(adds[repo.ID], effective)
		}
	}

	moduleMessages, err := e.stageModules(ctx, plan, handles, adds, release.ID)
	if err != nil {
		return nil, err
	}
	messages = append(messages, moduleMessages...)

	phaseMessages, err := e.modifyAndPublish(ctx, handles, adds, nil)
	messages = append(messages, phaseMessages...)
	return messages, err
}

// Revert removes the content a completed release placed. Packages whose
// production copy predated the release are left untouched; module streams
// are left in place because other releases may reference them.
func (e *Executor) Revert(ctx context.Context, release *Release, platform *Platform) ([]string, error) {
	plan := release.Plan
	if plan == nil || plan.IsEmpty() {
		return nil, ErrEmptyPlan().WithRelease(release.ID)
	}

	handles, err := e.resolveRepositories(ctx, plan, release.ID)
	if err != nil {
		return nil, err
	}

	removes := make(map[int64][]string)
	var messages []string

	for i := range plan.Packages {
		entry := &plan.Packages[i]
		for _, repo := range entry.Repositories {
			present := containsID(plan.PackagesInRepos[entry.Package.FullName], repo.ID)
			if present && !entry.Package.Force {
				// Never added by this release.
				continue
			}
			if !entry.Package.Force && plan.PackagesFromRepos[entry.Package.FullName] == repo.ID {
				// The copy in this repository predates the release. A forced
				// package was added from its build artifact regardless, so
				// that copy is still the release's to remove.
				continue
			}

			effective := entry.Package.HrefFromRepo
			if entry.Package.Force || effective == "" {
				effective = entry.Package.ArtifactHref
			}
			if effective == "" {
				continue
			}
			removes[repo.ID] = appendUnique(removes[repo.ID], effective)
		}
	}

	for _, module := range plan.Modules {
		messages = append(messages, fmt.Sprintf(
			"module %s:%s left in place, streams are not removed on revert",
			module.Module.Name, module.Module.Stream))
	}

	phaseMessages, err := e.modifyAndPublish(ctx, handles, nil, removes)
	messages = append(messages, phaseMessages...)
	return messages, err
}

// refreshPresence re-runs the presence check over the plan's candidates and
// updates the plan in place.
func (e *Executor) refreshPresence(ctx context.Context, plan *Plan, platform *Platform) error {
	return refreshPlanPresence(ctx, e.checker, plan, platform)
}

// resolveRepositories looks up the manager handle of every repository the
// plan touches. A repository missing on the manager side fails the whole
// execution before any mutating call.
func (e *Executor) resolveRepositories(ctx context.Context, plan *Plan, releaseID string) (map[int64]*repomanager.RepoHandle, error) {
	handles := make(map[int64]*repomanager.RepoHandle, len(plan.Repositories))
	for _, repo := range plan.Repositories {
		handle, err := e.client.GetRepository(ctx, repo.Name)
		if err != nil {
			return nil, NewExternalError(CodeMissingRepository,
				fmt.Sprintf("failed to look up repository %s", repo.Name), err).
				WithRelease(releaseID).WithRepository(repo.Name)
		}
		if handle == nil {
			return nil, NewValidationError(CodeMissingRepository,
				fmt.Sprintf("repository %s is not registered with the repository manager", repo.Name)).
				WithRelease(releaseID).WithRepository(repo.Name)
		}
		handles[repo.ID] = handle
	}
	return handles, nil
}

// stageModules adds the plan's module streams to the repository add-sets.
// The target repository's current module index is fetched once per
// repository URL; an NSVCA-equal stream already present is skipped with an
// informational message instead of being re-added.
func (e *Executor) stageModules(ctx context.Context, plan *Plan, handles map[int64]*repomanager.RepoHandle, adds map[int64][]string, releaseID string) ([]string, error) {
	indexByURL := make(map[string]*modularity.ModuleIndex)
	created := make(map[modularity.NSVCA]string)
	var messages []string

	for _, entry := range plan.Modules {
		id := modularity.NSVCA{
			Name:    entry.Module.Name,
			Stream:  entry.Module.Stream,
			Version: entry.Module.Version,
			Context: entry.Module.Context,
			Arch:    entry.Module.Arch,
		}

		for _, repo := range entry.Repositories {
			handle := handles[repo.ID]
			if handle == nil {
				return nil, NewValidationError(CodeMissingRepository,
					fmt.Sprintf("module %s targets unresolved repository %s", id, repo.Name)).
					WithRelease(releaseID).WithRepository(repo.Name)
			}

			index, err := e.moduleIndex(ctx, handle, indexByURL)
			if err != nil {
				return nil, err
			}
			if index != nil && index.Has(id) {
				messages = append(messages, fmt.Sprintf(
					"module %s already present in repository %s, skipping", id, repo.Name))
				continue
			}

			href, ok := created[id]
			if !ok {
				content, err := e.client.CreateModule(ctx, entry.Module.Template,
					id.Name, id.Stream, id.Context, id.Arch)
				if err != nil {
					return nil, fmt.Errorf("failed to create module %s: %w", id, err)
				}
				href = content.Href
				created[id] = href
			}
			adds[repo.ID] = appendUnique(adds[repo.ID], href)
		}
	}

	return messages, nil
}

// moduleIndex fetches and parses a repository's module index, caching per
// repository URL. A repository without module metadata yields a nil index.
func (e *Executor) moduleIndex(ctx context.Context, handle *repomanager.RepoHandle, cache map[string]*modularity.ModuleIndex) (*modularity.ModuleIndex, error) {
	if index, ok := cache[handle.URL]; ok {
		return index, nil
	}

	document, err := e.client.GetModuleDocument(ctx, handle.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch module index of %s: %w", handle.Name, err)
	}

	var index *modularity.ModuleIndex
	if document != "" {
		index, err = modularity.Parse(document)
		if err != nil {
			return nil, classifyModuleError(err,
				fmt.Sprintf("failed to parse module index of %s", handle.Name)).
				WithRepository(handle.Name)
		}
	}
	cache[handle.URL] = index
	return index, nil
}

// classifyModuleError maps modular metadata parse failures onto the handled
// validation codes so the lifecycle marks the release Failed instead of
// leaving it InProgress.
func classifyModuleError(err error, message string) *Error {
	code := CodeMalformedModuleDocument
	var noStream *modularity.NoStreamError
	if errors.As(err, &noStream) {
		code = CodeNoModuleStream
	}
	ve := NewValidationError(code, message)
	ve.Err = err
	return ve
}

// modifyAndPublish issues all repository modifications concurrently, waits
// for every one to reach a terminal state, then issues all publications
// concurrently. Publishing before all modifications land would expose an
// inconsistent intermediate state, so the two phases are strictly ordered.
func (e *Executor) modifyAndPublish(ctx context.Context, handles map[int64]*repomanager.RepoHandle, adds, removes map[int64][]string) ([]string, error) {
	touched := make(map[int64]struct{}, len(adds)+len(removes))
	for id := range adds {
		touched[id] = struct{}{}
	}
	for id := range removes {
		touched[id] = struct{}{}
	}

	ids := make([]int64, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var (
		mu       sync.Mutex
		messages []string
		wg       sync.WaitGroup
	)
	errs := make(chan error, len(ids))

	for _, id := range ids {
		handle := handles[id]
		add, remove := adds[id], removes[id]

		wg.Add(1)
		go func(handle *repomanager.RepoHandle, add, remove []string) {
			defer wg.Done()
			err := telemetry.RecordRepositoryOperation(ctx, handle.Name, "modify", func() error {
				task, err := e.client.ModifyRepository(ctx, handle.Href, add, remove)
				if err == nil {
					_, err = e.client.WaitForTask(ctx, task.Href)
				}
				return err
			})
			if err != nil {
				errs <- fmt.Errorf("failed to modify repository %s: %w", handle.Name, err)
				return
			}
			mu.Lock()
			messages = append(messages, fmt.Sprintf(
				"repository %s: %d added, %d removed", handle.Name, len(add), len(remove)))
			mu.Unlock()
		}(handle, add, remove)
	}
	wg.Wait()
	close(errs)
	if err := <-errs; err != nil {
		return messages, err
	}

	// Barrier reached: every modification is terminal, publish everything.
	errs = make(chan error, len(ids))
	for _, id := range ids {
		handle := handles[id]
		wg.Add(1)
		go func(handle *repomanager.RepoHandle) {
			defer wg.Done()
			err := telemetry.RecordRepositoryOperation(ctx, handle.Name, "publish", func() error {
				task, err := e.client.Publish(ctx, handle.Href)
				if err == nil {
					_, err = e.client.WaitForTask(ctx, task.Href)
				}
				return err
			})
			if err != nil {
				errs <- fmt.Errorf("failed to publish repository %s: %w", handle.Name, err)
			}
		}(handle)
	}
	wg.Wait()
	close(errs)
	if err := <-errs; err != nil {
		return messages, err
	}

	sort.Strings(messages)
	return messages, nil
}

func containsID(ids []int64, id int64) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func appendUnique(hrefs []string, href string) []string {
	for _, existing := range hrefs {
		if existing == href {
			return hrefs
		}
	}
	return append(hrefs, href)
}
