package telemetry

import (
	"fmt"
	"time"
)

// Config is the root telemetry configuration of the release engine. The CLI
// fills it from the CUE service section; tests and examples construct it
// through DefaultConfig and the environment presets.
type Config struct {
	// ServiceName identifies the engine in exported telemetry.
	ServiceName string

	// ServiceVersion is the engine build version.
	ServiceVersion string

	// Environment is the deployment environment (development, staging,
	// production).
	Environment string

	// Logging configures the zerolog-backed logger.
	Logging LoggingConfig

	// Tracing configures the OpenTelemetry tracer.
	Tracing TracingConfig

	// Metrics configures the Prometheus registry and endpoint.
	Metrics MetricsConfig

	// Events configures the in-process release event publisher.
	Events EventsConfig

	// ResourceAttributes are extra attributes attached to every exported
	// span resource.
	ResourceAttributes map[string]string
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the minimum level (trace, debug, info, warn, error, fatal).
	Level string

	// Format is console or json.
	Format string

	// Output is stdout, stderr, or a file path. Diagnostic output defaults
	// to stderr so command results on stdout stay machine-readable.
	Output string

	// EnableCaller adds file:line fields.
	EnableCaller bool

	// EnableSampling rate-limits repetitive log lines; presence checks and
	// task polling log per batch, which adds up on large releases.
	EnableSampling bool

	// SamplingInitial is the per-second burst logged before sampling kicks
	// in.
	SamplingInitial int

	// SamplingThereafter logs every Nth line once sampling is active.
	SamplingThereafter int

	// TimeFormat is the timestamp encoding (unix, unixms, unixmicro,
	// rfc3339).
	TimeFormat string
}

func (c LoggingConfig) validate() error {
	switch c.Level {
	case "trace", "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("invalid log level: %s", c.Level)
	}
	if c.Format != "console" && c.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'console' or 'json')", c.Format)
	}
	return nil
}

// TracingConfig configures distributed tracing. Commit spans wrap executor
// and repository spans, so one trace covers a whole commit attempt.
type TracingConfig struct {
	// Enabled switches span generation on.
	Enabled bool

	// Exporter is otlp, stdout, or none.
	Exporter string

	// Endpoint is the OTLP collector address, host:port.
	Endpoint string

	// SamplingRate is the head sampling ratio, 0 to 1.
	SamplingRate float64

	// MaxExportBatchSize caps spans per export call.
	MaxExportBatchSize int

	// ExportTimeout bounds one export call.
	ExportTimeout time.Duration

	// Headers are sent with every OTLP request.
	Headers map[string]string

	// Insecure disables TLS on the OTLP connection.
	Insecure bool
}

func (c TracingConfig) validate() error {
	if !c.Enabled {
		return nil
	}
	switch c.Exporter {
	case "otlp", "stdout", "none":
	default:
		return fmt.Errorf("invalid trace exporter: %s", c.Exporter)
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0 and 1, got: %f", c.SamplingRate)
	}
	return nil
}

// MetricsConfig configures metrics collection.
type MetricsConfig struct {
	// Enabled switches metric recording on.
	Enabled bool

	// ListenAddress is the scrape endpoint bind address.
	ListenAddress string

	// Path is the scrape endpoint path.
	Path string

	// Namespace prefixes every metric name.
	Namespace string

	// DefaultHistogramBuckets are latency buckets in seconds, shared by the
	// commit duration and repository call histograms.
	DefaultHistogramBuckets []float64
}

func (c MetricsConfig) validate() error {
	if c.Enabled && c.ListenAddress == "" {
		return fmt.Errorf("metrics listen address is required when metrics are enabled")
	}
	return nil
}

// EventsConfig configures the release event publisher.
type EventsConfig struct {
	// Enabled switches event publishing on.
	Enabled bool

	// BufferSize is the async delivery queue length.
	BufferSize int

	// FlushInterval is how often buffered events are flushed.
	FlushInterval time.Duration

	// MaxBatchSize caps events delivered per flush.
	MaxBatchSize int

	// EnableAsync delivers events off the publishing goroutine.
	EnableAsync bool
}

func (c EventsConfig) validate() error {
	if c.Enabled && c.BufferSize <= 0 {
		return fmt.Errorf("event buffer size must be positive, got: %d", c.BufferSize)
	}
	return nil
}

// DefaultConfig returns the baseline configuration: console logging on
// stderr with metrics enabled. Tracing stays off until an exporter is
// chosen.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "rpmforge",
		ServiceVersion: "dev",
		Environment:    "development",
		Logging: LoggingConfig{
			Level:              "info",
			Format:             "console",
			Output:             "stderr",
			EnableCaller:       false,
			EnableSampling:     false,
			SamplingInitial:    100,
			SamplingThereafter: 100,
			TimeFormat:         "rfc3339",
		},
		Tracing: TracingConfig{
			Enabled:            false,
			Exporter:           "none",
			SamplingRate:       1.0,
			MaxExportBatchSize: 512,
			ExportTimeout:      30 * time.Second,
			Headers:            make(map[string]string),
			Insecure:           true,
		},
		Metrics: MetricsConfig{
			Enabled:       true,
			ListenAddress: ":9090",
			Path:          "/metrics",
			Namespace:     "rpmforge",
			// Repository modifications finish in milliseconds; publications
			// and full commits run into the tens of seconds.
			DefaultHistogramBuckets: []float64{
				0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
			},
		},
		Events: EventsConfig{
			Enabled:       true,
			BufferSize:    1000,
			FlushInterval: 5 * time.Second,
			MaxBatchSize:  100,
			EnableAsync:   true,
		},
		ResourceAttributes: make(map[string]string),
	}
}

// ProductionConfig returns the production preset: json logs with sampling,
// OTLP tracing at 10% sampling over TLS.
func ProductionConfig() *Config {
	cfg := DefaultConfig()
	cfg.Environment = "production"
	cfg.Logging.Format = "json"
	cfg.Logging.EnableSampling = true
	cfg.Logging.TimeFormat = "unix"
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "otlp"
	cfg.Tracing.SamplingRate = 0.1
	cfg.Tracing.Insecure = false
	return cfg
}

// DevelopmentConfig returns the development preset: debug-level console logs
// with caller info, every trace exported to the console.
func DevelopmentConfig() *Config {
	cfg := DefaultConfig()
	cfg.Logging.Level = "debug"
	cfg.Logging.EnableCaller = true
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "stdout"
	cfg.Tracing.SamplingRate = 1.0
	return cfg
}

// Validate checks the configuration section by section.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}
	if c.ServiceVersion == "" {
		return fmt.Errorf("service version is required")
	}
	if err := c.Logging.validate(); err != nil {
		return err
	}
	if err := c.Tracing.validate(); err != nil {
		return err
	}
	if err := c.Metrics.validate(); err != nil {
		return err
	}
	return c.Events.validate()
}
