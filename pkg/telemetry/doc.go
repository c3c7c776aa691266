// Package telemetry provides observability instrumentation for the release
// engine.
//
// The telemetry package integrates structured logging (zerolog), distributed
// tracing (OpenTelemetry), metrics (Prometheus), and event publishing into a
// unified system for monitoring release planning and execution.
//
// # Architecture
//
// The telemetry system is built on four pillars:
//
//  1. Structured Logging - Context-aware logging with zerolog
//  2. Distributed Tracing - OpenTelemetry traces with multiple exporters
//  3. Metrics Collection - Prometheus metrics for operational insights
//  4. Event Publishing - Async event system for audit and notifications
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "rpmforge"
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	// Start metrics server
//	if err := tel.StartMetricsServer(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Structured Logging
//
// The logger provides component-specific logging with automatic context
// propagation:
//
//	logger := tel.Logger.NewComponentLogger("executor")
//	logger = logger.WithReleaseID("rel-123").WithRepository("el-9-appstream")
//	logger.Info("Modifying repository")
//	logger.WithError(err).Error("Publish failed")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Distributed Tracing
//
// Tracing provides visibility into commit flow and repository-manager
// latency:
//
//	ctx, span := tel.Tracer.StartCommitSpan(ctx, releaseID, "commit")
//	defer span.End()
//
//	if err != nil {
//	    telemetry.RecordError(span, err)
//	}
//
// Supported exporters: OTLP (production), Stdout (development)
//
// # Metrics
//
// Prometheus metrics track lifecycle and repository-manager behavior:
//
//	tel.Metrics.RecordReleaseCreated("el-9")
//	tel.Metrics.RecordCommitStarted("el-9")
//	tel.Metrics.RecordCommitCompleted("el-9", "completed", duration)
//	tel.Metrics.RecordRepositoryCall("modify", duration)
//	tel.Metrics.RecordPresenceCheck(batches, packages)
//	tel.Metrics.RecordError("validation", "EMPTY_RELEASE_PLAN")
//
// Key metrics exposed:
//
//   - rpmforge_releases_created_total{platform}
//   - rpmforge_commits_started_total{platform}
//   - rpmforge_commits_completed_total{platform,status}
//   - rpmforge_commit_duration_seconds{platform,status}
//   - rpmforge_repository_calls_total{operation}
//   - rpmforge_repository_call_duration_seconds{operation}
//   - rpmforge_presence_batches_total
//   - rpmforge_errors_by_class_total{class}
//   - rpmforge_active_commits
//
// Metrics are exposed via HTTP at /metrics (default: :9090/metrics)
//
// # Event Publishing
//
// The event system provides async publishing with buffering and filtering:
//
//	tel.Events.PublishReleaseCreated(releaseID, platform, user)
//	tel.Events.PublishRepositoryModified(releaseID, repo, added, removed)
//
//	tel.Events.Subscribe(func(event telemetry.Event) {
//	    fmt.Printf("Event: %s - %s\n", event.Type, event.Message)
//	}, telemetry.FilterByLevel("warning"))
//
// Event filters: FilterByLevel, FilterByType, FilterByReleaseID,
// FilterByRepository
//
// # Graceful Shutdown
//
// Always shut down telemetry gracefully to flush pending data:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//
//	if err := tel.Shutdown(ctx); err != nil {
//	    log.Printf("Telemetry shutdown error: %v", err)
//	}
//
// # Security Considerations
//
//   - Never log repository-manager credentials
//   - Use secure connections (TLS) for trace exporters in production
//   - Limit metrics endpoint access via network policies
package telemetry
