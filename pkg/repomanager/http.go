package repomanager

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// modulesPathRe locates the modules document inside a repomd.xml index.
var modulesPathRe = regexp.MustCompile(`href="(repodata/[^"]*modules\.yaml[^"]*)"`)

// HTTPClient implements Client against the repository manager's REST API.
type HTTPClient struct {
	baseURL      string
	httpClient   *http.Client
	logger       zerolog.Logger
	pollInterval time.Duration
	username     string
	password     string
}

// HTTPConfig contains HTTP client configuration options.
type HTTPConfig struct {
	BaseURL        string
	Username       string
	Password       string
	RequestTimeout time.Duration
	PollInterval   time.Duration
}

// NewHTTPClient creates a new repository manager client.
func NewHTTPClient(cfg HTTPConfig, logger zerolog.Logger) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 2 * time.Second
	}

	return &HTTPClient{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:   &http.Client{Timeout: cfg.RequestTimeout},
		logger:       logger.With().Str("component", "repomanager").Logger(),
		pollInterval: cfg.PollInterval,
		username:     cfg.Username,
		password:     cfg.Password,
	}, nil
}

// repoListResponse is the paginated repository listing shape.
type repoListResponse struct {
	Count   int          `json:"count"`
	Next    string       `json:"next"`
	Results []RepoHandle `json:"results"`
}

// packageListResponse is the paginated package listing shape.
type packageListResponse struct {
	Count   int             `json:"count"`
	Next    string          `json:"next"`
	Results []PackageRecord `json:"results"`
}

// GetRepository returns the repository with the given name, or nil when the
// manager does not know it.
func (c *HTTPClient) GetRepository(ctx context.Context, name string) (*RepoHandle, error) {
	query := url.Values{"name": []string{name}}

	var resp repoListResponse
	if err := c.get(ctx, "/api/v3/repositories/rpm/rpm/?"+query.Encode(), &resp); err != nil {
		return nil, err
	}

	if len(resp.Results) == 0 {
		return nil, nil
	}

	repo := resp.Results[0]
	return &repo, nil
}

// GetOrCreateRepository returns the named repository, creating it on first use.
func (c *HTTPClient) GetOrCreateRepository(ctx context.Context, name string) (*RepoHandle, error) {
	repo, err := c.GetRepository(ctx, name)
	if err != nil {
		return nil, err
	}
	if repo != nil {
		return repo, nil
	}

	c.logger.Info().Str("repository", name).Msg("Creating repository")

	var created RepoHandle
	if err := c.post(ctx, "/api/v3/repositories/rpm/rpm/", map[string]string{"name": name}, &created); err != nil {
		return nil, err
	}

	return &created, nil
}

// ListPackages lists content units of a repository version, following
// pagination cursors until the listing is exhausted.
func (c *HTTPClient) ListPackages(ctx context.Context, versionHref string, filter PackageFilter) ([]PackageRecord, error) {
	if len(filter.Names) > MaxBatchSize {
		return nil, fmt.Errorf("filter exceeds %d names, chunk the request", MaxBatchSize)
	}

	query := url.Values{"repository_version": []string{versionHref}}
	if len(filter.Names) > 0 {
		query.Set("name__in", strings.Join(filter.Names, ","))
	}
	if len(filter.Epochs) > 0 {
		query.Set("epoch__in", strings.Join(filter.Epochs, ","))
	}
	if len(filter.Versions) > 0 {
		query.Set("version__in", strings.Join(filter.Versions, ","))
	}
	if len(filter.Releases) > 0 {
		query.Set("release__in", strings.Join(filter.Releases, ","))
	}
	if filter.Arch != "" {
		query.Set("arch", filter.Arch)
	}
	if len(filter.Fields) > 0 {
		query.Set("fields", strings.Join(filter.Fields, ","))
	}

	path := "/api/v3/content/rpm/packages/?" + query.Encode()

	var records []PackageRecord
	for path != "" {
		var page packageListResponse
		if err := c.get(ctx, path, &page); err != nil {
			return nil, err
		}
		records = append(records, page.Results...)

		path = ""
		if page.Next != "" {
			next, err := url.Parse(page.Next)
			if err != nil {
				return nil, &UnavailableError{Op: "list packages", Err: err}
			}
			path = next.Path + "?" + next.RawQuery
		}
	}

	return records, nil
}

// ModifyRepository adds and removes content units and returns the pending task.
func (c *HTTPClient) ModifyRepository(ctx context.Context, repoHref string, add, remove []string) (*Task, error) {
	body := map[string][]string{}
	if len(add) > 0 {
		body["add_content_units"] = add
	}
	if len(remove) > 0 {
		body["remove_content_units"] = remove
	}

	var resp struct {
		Task string `json:"task"`
	}
	if err := c.post(ctx, repoHref+"modify/", body, &resp); err != nil {
		return nil, err
	}

	return &Task{Href: resp.Task, State: TaskStateWaiting}, nil
}

// Publish creates a publication of the repository's current content set.
func (c *HTTPClient) Publish(ctx context.Context, repoHref string) (*Task, error) {
	var resp struct {
		Task string `json:"task"`
	}
	if err := c.post(ctx, "/api/v3/publications/rpm/rpm/", map[string]string{"repository": repoHref}, &resp); err != nil {
		return nil, err
	}

	return &Task{Href: resp.Task, State: TaskStateWaiting}, nil
}

// WaitForTask polls a task until it reaches a terminal state.
func (c *HTTPClient) WaitForTask(ctx context.Context, taskHref string) (*Task, error) {
	for {
		var task Task
		if err := c.get(ctx, taskHref, &task); err != nil {
			return nil, err
		}

		if task.State.IsTerminal() {
			if task.State != TaskStateCompleted {
				return &task, &TaskFailedError{TaskHref: taskHref, Details: task.Error}
			}
			return &task, nil
		}

		select {
		case <-time.After(c.pollInterval):
		case <-ctx.Done():
			return nil, &UnavailableError{Op: "wait for task", Err: ctx.Err()}
		}
	}
}

// GetModuleDocument fetches the module index of a published repository by
// resolving the repodata index to the modules document path.
func (c *HTTPClient) GetModuleDocument(ctx context.Context, repoURL string) (string, error) {
	base := strings.TrimRight(repoURL, "/")

	repomd, err := c.fetchRaw(ctx, base+"/repodata/repomd.xml")
	if err != nil {
		return "", err
	}

	match := modulesPathRe.FindStringSubmatch(string(repomd))
	if match == nil {
		return "", nil
	}

	raw, err := c.fetchRaw(ctx, base+"/"+match[1])
	if err != nil {
		return "", err
	}

	if strings.HasSuffix(match[1], ".gz") {
		reader, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return "", &UnavailableError{Op: "decompress module document", Err: err}
		}
		defer reader.Close()
		raw, err = io.ReadAll(reader)
		if err != nil {
			return "", &UnavailableError{Op: "decompress module document", Err: err}
		}
	}

	return string(raw), nil
}

// CreateModule uploads a rendered module stream document as a content unit.
func (c *HTTPClient) CreateModule(ctx context.Context, document, name, stream, context_, arch string) (*ModuleContent, error) {
	body := map[string]string{
		"relative_path": "modules.yaml",
		"artifact":      document,
		"name":          name,
		"stream":        stream,
		"context":       context_,
		"arch":          arch,
	}

	var resp struct {
		Task string `json:"task"`
	}
	if err := c.post(ctx, "/api/v3/content/rpm/modulemds/", body, &resp); err != nil {
		return nil, err
	}

	task, err := c.WaitForTask(ctx, resp.Task)
	if err != nil {
		return nil, err
	}
	if len(task.CreatedResources) == 0 {
		return nil, &TaskFailedError{TaskHref: resp.Task, Details: "module creation reported no created resources"}
	}

	var content ModuleContent
	if err := c.get(ctx, task.CreatedResources[0], &content); err != nil {
		return nil, err
	}

	return &content, nil
}

// get performs an authenticated GET and decodes the JSON response.
func (c *HTTPClient) get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// post performs an authenticated POST with a JSON body.
func (c *HTTPClient) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, payload, out)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	target := path
	if !strings.HasPrefix(path, "http") {
		target = c.baseURL + path
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return &UnavailableError{Op: method + " " + path, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &UnavailableError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &UnavailableError{
			Op:  method + " " + path,
			Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data))),
		}
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &UnavailableError{Op: method + " " + path, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	return nil
}

// fetchRaw performs a plain GET of a published artifact.
func (c *HTTPClient) fetchRaw(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &UnavailableError{Op: "fetch " + target, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UnavailableError{Op: "fetch " + target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &UnavailableError{
			Op:  "fetch " + target,
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	return io.ReadAll(resp.Body)
}
