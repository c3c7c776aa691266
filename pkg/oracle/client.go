// Package oracle is a client for the external package-affinity service. The
// oracle predicts, for a package name observed in an upstream distribution,
// which production repositories it belongs in. The release planner builds a
// per-run cache from its responses; nothing here is cached between runs.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// RepositoryRef is a repository membership predicted by the oracle. Names
// are the oracle's own and are rewritten to the target distribution's naming
// scheme by the matching engine.
type RepositoryRef struct {
	Name string `json:"name"`
	Arch string `json:"arch"`
}

// PackageRecord is one predicted package placement.
type PackageRecord struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Arch         string          `json:"arch"`
	Repositories []RepositoryRef `json:"repositories"`
}

// Distribution identifies the upstream snapshot a response was computed from.
type Distribution struct {
	Version string `json:"version"`
}

// Response is a single affinity answer.
type Response struct {
	Distribution Distribution    `json:"distribution"`
	Packages     []PackageRecord `json:"packages"`
}

// ModuleQuery asks for the placement of a modular stream.
type ModuleQuery struct {
	Name     string   `json:"name"`
	Stream   string   `json:"stream"`
	Arches   []string `json:"arches"`
	IsModule bool     `json:"is_module"`
}

// PackagesQuery asks for the closest-match placement of a set of source
// package names in one round trip.
type PackagesQuery struct {
	SourceRPMNames []string `json:"source_rpm_names"`
	Match          string   `json:"match"`
}

// Client queries the affinity oracle. The planner treats it as optional: a
// disabled oracle switches planning to the plain placement policy.
type Client interface {
	QueryModule(ctx context.Context, query ModuleQuery) ([]Response, error)
	QueryPackages(ctx context.Context, query PackagesQuery) ([]Response, error)
}

// HTTPClient implements Client over the oracle's REST surface.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewHTTPClient creates a new oracle client.
func NewHTTPClient(baseURL string, timeout time.Duration, logger zerolog.Logger) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "oracle").Logger(),
	}, nil
}

// QueryModule queries placement for one modular stream across architectures.
func (c *HTTPClient) QueryModule(ctx context.Context, query ModuleQuery) ([]Response, error) {
	query.IsModule = true
	return c.post(ctx, "/api/v1/distros/module/", query)
}

// QueryPackages issues one batched closest-match query for a set of source
// package names.
func (c *HTTPClient) QueryPackages(ctx context.Context, query PackagesQuery) ([]Response, error) {
	if query.Match == "" {
		query.Match = "closest"
	}
	return c.post(ctx, "/api/v1/distros/packages/", query)
}

func (c *HTTPClient) post(ctx context.Context, path string, body interface{}) ([]Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode oracle query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build oracle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oracle request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("oracle returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var responses []Response
	if err := json.NewDecoder(resp.Body).Decode(&responses); err != nil {
		return nil, fmt.Errorf("failed to decode oracle response: %w", err)
	}

	return responses, nil
}
