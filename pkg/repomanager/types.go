package repomanager

// RepoHandle identifies a repository inside the external package repository
// manager. Hrefs are opaque to callers; only the manager interprets them.
type RepoHandle struct {
	// Name is the repository name as registered with the manager.
	Name string `json:"name"`

	// Href is the opaque repository handle.
	Href string `json:"href"`

	// LatestVersionHref is the handle of the latest published version.
	// Readers only observe published versions.
	LatestVersionHref string `json:"latest_version_href"`

	// URL is the public base URL of the published repository, used to fetch
	// repodata such as the module index.
	URL string `json:"url,omitempty"`
}

// PackageRecord is a single content unit returned by a package listing.
type PackageRecord struct {
	Href    string `json:"pulp_href"`
	Name    string `json:"name"`
	Epoch   string `json:"epoch"`
	Version string `json:"version"`
	Release string `json:"release"`
	Arch    string `json:"arch"`

	// Location is the artifact file name within the repository.
	Location string `json:"location_href,omitempty"`
}

// PackageFilter restricts a package listing. List fields use "in" semantics;
// scalar fields require exact equality. Names is bounded by MaxBatchSize per
// request, larger sets must be chunked by the caller.
type PackageFilter struct {
	Names    []string
	Epochs   []string
	Versions []string
	Releases []string
	Arch     string

	// Fields projects the response to the listed fields when non-empty.
	Fields []string
}

// MaxBatchSize is the maximum number of names accepted by a single package
// listing request. Larger candidate sets must be chunked client-side; a
// failed chunk fails the whole presence check, chunks are not retried
// individually.
const MaxBatchSize = 100

// TaskState is the terminal or intermediate state of an asynchronous
// repository-manager task.
type TaskState string

const (
	TaskStateWaiting   TaskState = "waiting"
	TaskStateRunning   TaskState = "running"
	TaskStateCompleted TaskState = "completed"
	TaskStateFailed    TaskState = "failed"
	TaskStateCanceled  TaskState = "canceled"
)

// IsTerminal reports whether the task has finished.
func (s TaskState) IsTerminal() bool {
	return s == TaskStateCompleted || s == TaskStateFailed || s == TaskStateCanceled
}

// Task is an asynchronous repository-manager operation that must be polled
// to completion.
type Task struct {
	Href  string    `json:"pulp_href"`
	State TaskState `json:"state"`
	Error string    `json:"error,omitempty"`

	// CreatedResources lists hrefs of resources the task created, such as
	// the content unit of an uploaded module document.
	CreatedResources []string `json:"created_resources,omitempty"`
}

// ModuleContent is the handle and checksum of a created module content unit.
type ModuleContent struct {
	Href     string `json:"pulp_href"`
	Checksum string `json:"checksum"`
}
