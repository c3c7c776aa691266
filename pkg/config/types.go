package config

import (
	"fmt"
	"time"

	"github.com/rpmforge/rpmforge/pkg/release"
	"github.com/rpmforge/rpmforge/pkg/telemetry"
)

// ServiceConfig is the service-level configuration of the release engine.
type ServiceConfig struct {
	// Listen is the address the API server binds to.
	Listen string `json:"listen"`

	// Database configures the release store.
	Database DatabaseConfig `json:"database"`

	// RepoManager configures the repository manager client.
	RepoManager RepoManagerConfig `json:"repo_manager" validate:"required"`

	// Oracle configures the package affinity oracle client.
	Oracle OracleConfig `json:"oracle,omitempty"`

	// Telemetry configures logging, metrics and tracing.
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`

	// Policy configures the commit policy gate.
	Policy PolicyConfig `json:"policy,omitempty"`

	// Hooks configures scripted plan transformation.
	Hooks HooksConfig `json:"hooks,omitempty"`
}

// DatabaseConfig configures the SQLite release store.
type DatabaseConfig struct {
	// Path is the database file path.
	Path string `json:"path" validate:"required"`

	// MaxOpenConns limits concurrent database connections.
	MaxOpenConns int `json:"max_open_conns,omitempty"`

	// MaxIdleConns limits idle pooled connections.
	MaxIdleConns int `json:"max_idle_conns,omitempty"`

	// ConnMaxLifetimeSeconds bounds connection reuse.
	ConnMaxLifetimeSeconds int `json:"conn_max_lifetime_seconds,omitempty"`
}

// ConnMaxLifetime returns the connection lifetime as a duration.
func (d DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(d.ConnMaxLifetimeSeconds) * time.Second
}

// RepoManagerConfig configures the repository manager client.
type RepoManagerConfig struct {
	// URL is the repository manager API base URL.
	URL string `json:"url" validate:"required,url"`

	// Username and Password authenticate API requests.
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// RequestTimeoutSeconds bounds individual API calls.
	RequestTimeoutSeconds int `json:"request_timeout_seconds,omitempty"`

	// PollIntervalSeconds is the async task polling interval.
	PollIntervalSeconds int `json:"poll_interval_seconds,omitempty"`
}

// RequestTimeout returns the request timeout as a duration.
func (r RepoManagerConfig) RequestTimeout() time.Duration {
	return time.Duration(r.RequestTimeoutSeconds) * time.Second
}

// PollInterval returns the polling interval as a duration.
func (r RepoManagerConfig) PollInterval() time.Duration {
	return time.Duration(r.PollIntervalSeconds) * time.Second
}

// OracleConfig configures the package affinity oracle client.
type OracleConfig struct {
	// URL is the oracle API base URL. Empty disables affinity matching
	// globally regardless of per-platform settings.
	URL string `json:"url,omitempty" validate:"omitempty,url"`

	// TimeoutSeconds bounds oracle queries.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// Timeout returns the oracle query timeout as a duration.
func (o OracleConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// TelemetryConfig is the CUE-facing telemetry section.
type TelemetryConfig struct {
	// Environment is the deployment environment (development, production).
	Environment string `json:"environment,omitempty" validate:"omitempty,oneof=development staging production"`

	// LogLevel sets the minimum log level.
	LogLevel string `json:"log_level,omitempty"`

	// LogFormat selects console or json output.
	LogFormat string `json:"log_format,omitempty" validate:"omitempty,oneof=console json"`

	// MetricsListen is the Prometheus endpoint listen address.
	MetricsListen string `json:"metrics_listen,omitempty"`

	// TracingExporter selects the trace exporter (otlp, stdout, none).
	TracingExporter string `json:"tracing_exporter,omitempty" validate:"omitempty,oneof=otlp stdout none"`

	// TracingEndpoint is the OTLP collector endpoint.
	TracingEndpoint string `json:"tracing_endpoint,omitempty"`

	// TracingSampleRate is the trace sampling rate between 0 and 1.
	TracingSampleRate float64 `json:"tracing_sample_rate,omitempty" validate:"min=0,max=1"`
}

// ToTelemetry merges the section over the default telemetry configuration.
func (t TelemetryConfig) ToTelemetry(serviceVersion string) *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	if t.Environment == "production" {
		cfg = telemetry.ProductionConfig()
	}
	cfg.ServiceVersion = serviceVersion
	if t.Environment != "" {
		cfg.Environment = t.Environment
	}
	if t.LogLevel != "" {
		cfg.Logging.Level = t.LogLevel
	}
	if t.LogFormat != "" {
		cfg.Logging.Format = t.LogFormat
	}
	if t.MetricsListen != "" {
		cfg.Metrics.ListenAddress = t.MetricsListen
	}
	if t.TracingExporter != "" {
		cfg.Tracing.Exporter = t.TracingExporter
		cfg.Tracing.Enabled = t.TracingExporter != "none"
	}
	if t.TracingEndpoint != "" {
		cfg.Tracing.Endpoint = t.TracingEndpoint
	}
	if t.TracingSampleRate > 0 {
		cfg.Tracing.SamplingRate = t.TracingSampleRate
	}
	return cfg
}

// PolicyConfig configures the commit policy gate.
type PolicyConfig struct {
	// Enabled turns policy evaluation on.
	Enabled bool `json:"enabled"`

	// Dir is the directory holding rego policy files.
	Dir string `json:"dir,omitempty"`

	// Watch reloads policies when files in Dir change.
	Watch bool `json:"watch,omitempty"`

	// Mode is the enforcement mode (advisory, enforcing).
	Mode string `json:"mode,omitempty" validate:"omitempty,oneof=advisory enforcing"`
}

// HooksConfig configures scripted plan transformation.
type HooksConfig struct {
	// PlanScript is the path of a Starlark script applied to every plan on
	// create and update.
	PlanScript string `json:"plan_script,omitempty"`

	// TimeoutSeconds bounds script execution.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// Timeout returns the script timeout as a duration.
func (h HooksConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutSeconds) * time.Second
}

// RepositoryConfig is one production repository declaration.
type RepositoryConfig struct {
	// ID is the stable repository identifier referenced by plans.
	ID int64 `json:"id" validate:"required"`

	// Name is the repository name on the repository manager.
	Name string `json:"name" validate:"required"`

	// Arch is the repository architecture.
	Arch string `json:"arch" validate:"required"`

	// Debug marks debuginfo repositories.
	Debug bool `json:"debug,omitempty"`

	// URL overrides the published content URL.
	URL string `json:"url,omitempty"`
}

// PlatformConfig is one target platform declaration.
type PlatformConfig struct {
	// Name is the platform identifier releases reference.
	Name string `json:"name" validate:"required"`

	// Distribution is the distribution name used as repository prefix.
	Distribution string `json:"distribution" validate:"required"`

	// Version is the major distribution version.
	Version string `json:"version" validate:"required"`

	// Arches are the platform architectures.
	Arches []string `json:"arches" validate:"min=1"`

	// WeakArches maps strong architectures to piggybacking weak ones.
	WeakArches map[string][]string `json:"weak_arches,omitempty"`

	// CopyPriorityArches orders copy-source repositories.
	CopyPriorityArches []string `json:"copy_priority_arches,omitempty"`

	// ModuleFilterPrefixes hides matching sub-packages from module
	// artifact lists.
	ModuleFilterPrefixes []string `json:"module_filter_prefixes,omitempty"`

	// OracleEnabled switches planning to affinity matching.
	OracleEnabled bool `json:"oracle_enabled,omitempty"`

	// Repositories are the production repositories.
	Repositories []RepositoryConfig `json:"repositories" validate:"min=1,dive"`
}

// ToPlatform converts the declaration to the release engine's platform type.
func (pc *PlatformConfig) ToPlatform() (*release.Platform, error) {
	seen := make(map[int64]string, len(pc.Repositories))
	repos := make([]release.RepositoryKey, 0, len(pc.Repositories))
	for _, repo := range pc.Repositories {
		if prior, dup := seen[repo.ID]; dup {
			return nil, fmt.Errorf("platform %s: repository id %d declared by both %s and %s",
				pc.Name, repo.ID, prior, repo.Name)
		}
		seen[repo.ID] = repo.Name
		repos = append(repos, release.RepositoryKey{
			ID:    repo.ID,
			Name:  repo.Name,
			Arch:  repo.Arch,
			Debug: repo.Debug,
			URL:   repo.URL,
		})
	}

	platform := &release.Platform{
		Name:                 pc.Name,
		Distribution:         pc.Distribution,
		Version:              pc.Version,
		Arches:               pc.Arches,
		WeakArches:           pc.WeakArches,
		CopyPriorityArches:   pc.CopyPriorityArches,
		ModuleFilterPrefixes: pc.ModuleFilterPrefixes,
		OracleEnabled:        pc.OracleEnabled,
		Repositories:         repos,
	}

	for _, arch := range platform.Arches {
		if platform.DevelRepository(arch, false) == nil {
			return nil, fmt.Errorf("platform %s: no devel repository declared for architecture %s", pc.Name, arch)
		}
	}

	return platform, nil
}

// ParsedConfig is the fully parsed configuration tree.
type ParsedConfig struct {
	// Service is the service-level configuration.
	Service ServiceConfig `json:"service"`

	// Platforms are the target platform declarations.
	Platforms []PlatformConfig `json:"platforms"`

	// SourceFiles are the CUE files that were parsed.
	SourceFiles []string `json:"source_files"`

	// ParsedAt is when the configuration was parsed.
	ParsedAt time.Time `json:"parsed_at"`

	// Errors lists validation errors collected during parsing.
	Errors []ValidationError `json:"errors,omitempty"`
}

// PlatformMap converts every declaration and keys the result by name.
func (pc *ParsedConfig) PlatformMap() (map[string]*release.Platform, error) {
	platforms := make(map[string]*release.Platform, len(pc.Platforms))
	for i := range pc.Platforms {
		decl := &pc.Platforms[i]
		if _, dup := platforms[decl.Name]; dup {
			return nil, fmt.Errorf("platform %s declared twice", decl.Name)
		}
		platform, err := decl.ToPlatform()
		if err != nil {
			return nil, err
		}
		platforms[decl.Name] = platform
	}
	return platforms, nil
}

// ValidationError is a configuration error with source location.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the CUE path to the error (e.g., "platforms.el9").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is the error severity (error, warning, info).
	Severity string `json:"severity" validate:"required,oneof=error warning info"`
}
