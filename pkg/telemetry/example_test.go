package telemetry_test

import (
	"context"
	"fmt"
	"time"

	"github.com/rpmforge/rpmforge/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Example_basicSetup demonstrates basic telemetry setup.
func Example_basicSetup() {
	// Create configuration
	cfg := telemetry.DefaultConfig()
	cfg.ServiceName = "rpmforge"
	cfg.ServiceVersion = "1.0.0"

	// Initialize telemetry
	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	// Start metrics server (non-blocking)
	if err := tel.StartMetricsServer(); err != nil {
		panic(err)
	}

	// Add telemetry to context
	ctx := tel.WithContext(context.Background())

	// Use telemetry
	logger := telemetry.FromContext(ctx)
	logger.Info("Release engine started")

	// Output can vary, so we don't specify output for this example
}

// Example_structuredLogging demonstrates structured logging features.
func Example_structuredLogging() {
	cfg := telemetry.DevelopmentConfig()
	cfg.Logging.Output = "stdout"

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	// Component-specific logger
	logger := tel.Logger.NewComponentLogger("executor")

	// Add context fields
	logger = logger.WithReleaseID("rel-123").WithRepository("el-9-appstream")

	// Log at different levels
	logger.Debug("Resolving repository handles")
	logger.Info("Repository modified")
	logger.Warn("Package already present, skipping")

	// Log with error
	err := fmt.Errorf("network timeout")
	logger.WithError(err).Error("Failed to reach repository manager")

	// Output varies, no output specified
}

// Example_distributedTracing demonstrates distributed tracing usage.
func Example_distributedTracing() {
	cfg := telemetry.DevelopmentConfig()
	cfg.Tracing.Exporter = "stdout"

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	// Start a commit span
	ctx, span := tel.Tracer.StartCommitSpan(ctx, "rel-789", "commit")
	defer span.End()

	// Add attributes
	span.SetAttributes(
		telemetry.AttrPlatformName.String("el-9"),
		attribute.Int("plan.packages", 5),
	)

	// Add event
	span.AddEvent("presence.refreshed")

	// Nested repository span
	ctx, childSpan := tel.Tracer.StartRepositorySpan(ctx, "el-9-appstream", "modify")
	defer childSpan.End()

	// Simulate work
	time.Sleep(10 * time.Millisecond)

	// Record success
	telemetry.RecordSuccess(childSpan)

	// Output varies, no output specified
}

// Example_metricsCollection demonstrates metrics collection.
func Example_metricsCollection() {
	cfg := telemetry.DefaultConfig()
	cfg.Metrics.Enabled = true

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	// Record lifecycle metrics
	tel.Metrics.RecordReleaseCreated("el-9")
	tel.Metrics.RecordCommitStarted("el-9")

	// Simulate commit execution
	start := time.Now()
	time.Sleep(50 * time.Millisecond)
	duration := time.Since(start)

	tel.Metrics.RecordCommitCompleted("el-9", "completed", duration)

	// Record repository manager metrics
	tel.Metrics.RecordRepositoryCall("modify", 15*time.Millisecond)
	tel.Metrics.RecordRepositoryCall("publish", 25*time.Millisecond)

	// Record presence check metrics
	tel.Metrics.RecordPresenceCheck(4, 320)

	// Record error metrics
	tel.Metrics.RecordError("external", "SIGNATURE_ERROR")

	fmt.Println("Metrics recorded successfully")
	// Output: Metrics recorded successfully
}

// Example_eventPublishing demonstrates event publishing and subscription.
func Example_eventPublishing() {
	cfg := telemetry.DefaultConfig()
	cfg.Events.Enabled = true
	cfg.Events.EnableAsync = false // Synchronous for example

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	// Subscribe to events
	tel.Events.Subscribe(func(event telemetry.Event) {
		fmt.Printf("Event: %s - %s\n", event.Type, event.Message)
	}, nil) // No filter, receive all events

	// Publish events
	tel.Events.PublishReleaseCreated("rel-123", "el-9", "releng@example.com")
	tel.Events.PublishCommitStarted("rel-123", "el-9")
	tel.Events.PublishRepositoryModified("rel-123", "el-9-appstream", 12, 0)

	// Output varies due to async nature, no output specified
}

// Example_commitInstrumentation demonstrates instrumenting a complete commit.
func Example_commitInstrumentation() {
	cfg := telemetry.DevelopmentConfig()
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	// Start commit context
	releaseID := "rel-123"
	platform := "el-9"
	ctx = telemetry.WithCommitContext(ctx, releaseID, platform)

	// Execute commit (simulated)
	logger := telemetry.FromContext(ctx)
	logger.Info("Executing release plan")
	time.Sleep(10 * time.Millisecond)

	// End commit context
	telemetry.EndCommitContext(ctx, releaseID, platform, "completed", nil)

	fmt.Println("Commit instrumentation complete")
	// Output: Commit instrumentation complete
}

// Example_repositoryInstrumentation demonstrates instrumenting repository calls.
func Example_repositoryInstrumentation() {
	cfg := telemetry.DevelopmentConfig()
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	// Record repository operation
	err := telemetry.RecordRepositoryOperation(ctx, "el-9-appstream", "publish", func() error {
		// Simulate a publish round trip
		time.Sleep(15 * time.Millisecond)
		return nil
	})

	if err == nil {
		fmt.Println("Repository operation completed successfully")
	}

	// Output: Repository operation completed successfully
}

// Example_instrumentedOperation demonstrates using the InstrumentedContext helper.
func Example_instrumentedOperation() {
	cfg := telemetry.DevelopmentConfig()
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	// Start instrumented operation
	ic := telemetry.StartOperation(ctx, "plan.build",
		attribute.String("platform.name", "el-9"),
	)
	defer ic.End(nil)

	// Use the instrumented context
	ic.Logger.Info("Building release plan")

	// Simulate planning
	time.Sleep(5 * time.Millisecond)

	ic.Logger.Debug("Release plan built")

	fmt.Println("Operation instrumentation complete")
	// Output: Operation instrumentation complete
}

// Example_eventFiltering demonstrates event filtering.
func Example_eventFiltering() {
	cfg := telemetry.DefaultConfig()
	cfg.Events.Enabled = true
	cfg.Events.EnableAsync = false

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	// Subscribe with level filter (only warnings and errors)
	tel.Events.Subscribe(func(event telemetry.Event) {
		fmt.Printf("Important event: %s\n", event.Type)
	}, telemetry.FilterByLevel(telemetry.EventLevelWarning))

	// Subscribe with type filter (only policy events)
	tel.Events.Subscribe(func(event telemetry.Event) {
		fmt.Printf("Policy event: %s\n", event.Message)
	}, telemetry.FilterByType(telemetry.EventTypePolicyViolation))

	// Publish various events
	tel.Events.PublishCommitStarted("rel-123", "el-9")                     // Info - filtered by level filter
	tel.Events.PublishPolicyViolation("rel-123", "freeze-window", "denied") // Error - passes both filters
	tel.Events.PublishCommitFailed("rel-123", "signature error")            // Error - passes level filter

	// Output varies, no output specified
}

// Example_productionConfiguration demonstrates production-ready configuration.
func Example_productionConfiguration() {
	cfg := telemetry.ProductionConfig()

	// Customize for your environment
	cfg.ServiceName = "rpmforge"
	cfg.ServiceVersion = "1.2.3"
	cfg.Environment = "production"

	// Configure OTLP exporter
	cfg.Tracing.Exporter = "otlp"
	cfg.Tracing.Endpoint = "otel-collector.monitoring.svc.cluster.local:4317"
	cfg.Tracing.SamplingRate = 0.1 // 10% sampling
	cfg.Tracing.Insecure = false   // Use TLS in production

	// Configure metrics
	cfg.Metrics.ListenAddress = ":9090"
	cfg.Metrics.Namespace = "rpmforge"

	// Configure events
	cfg.Events.BufferSize = 10000
	cfg.Events.FlushInterval = 5 * time.Second

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	fmt.Println("Production configuration validated")
	// Output: Production configuration validated
}

// Example_errorRecording demonstrates error recording with proper classification.
func Example_errorRecording() {
	cfg := telemetry.DevelopmentConfig()
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	// Start a span
	ctx, span := tel.Tracer.Start(ctx, "repository.modify")
	defer span.End()

	// Simulate an error
	err := fmt.Errorf("connection timeout")

	if err != nil {
		// Record error on span
		telemetry.RecordError(span, err)

		// Record error metric with classification
		tel.Metrics.RecordError("external", "MISSING_REPOSITORY")

		// Log error
		logger := telemetry.FromContext(ctx)
		logger.WithError(err).Error("Repository modification failed")
	}

	fmt.Println("Error recording complete")
	// Output: Error recording complete
}

// Example_multipleComponents demonstrates telemetry in a multi-component system.
func Example_multipleComponents() {
	cfg := telemetry.DevelopmentConfig()
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	// Component-specific loggers
	plannerLogger := tel.Logger.NewComponentLogger("planner")
	presenceLogger := tel.Logger.NewComponentLogger("presence")
	executorLogger := tel.Logger.NewComponentLogger("executor")

	plannerLogger.Info("Building release plan")
	presenceLogger.Info("Checking production repositories")
	executorLogger.Info("Applying plan")

	fmt.Println("Multi-component logging complete")
	// Output: Multi-component logging complete
}
