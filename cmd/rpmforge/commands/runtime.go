package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rpmforge/rpmforge/pkg/config"
	"github.com/rpmforge/rpmforge/pkg/oracle"
	"github.com/rpmforge/rpmforge/pkg/policy"
	"github.com/rpmforge/rpmforge/pkg/release"
	"github.com/rpmforge/rpmforge/pkg/repomanager"
	"github.com/rpmforge/rpmforge/pkg/stores"
	"github.com/rpmforge/rpmforge/pkg/telemetry"
)

// runtime bundles the wired-up engine behind the CLI commands. Every command
// that touches releases builds one, runs, and closes it.
type runtime struct {
	service   config.ServiceConfig
	platforms map[string]*release.Platform
	tel       *telemetry.Telemetry
	store     *stores.SQLiteStore
	coord     *release.Coordinator
	engine    *policy.Engine
	loader    *policy.Loader
	logger    zerolog.Logger
}

// newRuntime parses the configuration and wires the full release stack.
// builds and verifier come from the command's build manifest; commands that
// never plan or commit pass a nil manifest.
func newRuntime(ctx context.Context, manifest *buildManifest, version string) (*runtime, error) {
	if len(configPaths) == 0 {
		return nil, fmt.Errorf("no configuration given, use --config")
	}

	parser := config.NewCUEParser()
	parsed, err := parser.Load(ctx, configPaths)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	platforms, err := parsed.PlatformMap()
	if err != nil {
		return nil, fmt.Errorf("invalid platform configuration: %w", err)
	}
	service := parsed.Service

	tel, err := telemetry.NewTelemetry(service.Telemetry.ToTelemetry(version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	logger := tel.Logger.Zerolog()

	store, err := stores.NewSQLiteStore(stores.Config{
		Path:            service.Database.Path,
		MaxOpenConns:    service.Database.MaxOpenConns,
		MaxIdleConns:    service.Database.MaxIdleConns,
		ConnMaxLifetime: service.Database.ConnMaxLifetime(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate store: %w", err)
	}

	client, err := repomanager.NewHTTPClient(repomanager.HTTPConfig{
		BaseURL:        service.RepoManager.URL,
		Username:       service.RepoManager.Username,
		Password:       service.RepoManager.Password,
		RequestTimeout: service.RepoManager.RequestTimeout(),
		PollInterval:   service.RepoManager.PollInterval(),
	}, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create repository manager client: %w", err)
	}

	var oracleClient oracle.Client
	if service.Oracle.URL != "" {
		oracleClient, err = oracle.NewHTTPClient(service.Oracle.URL, service.Oracle.Timeout(), logger)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to create oracle client: %w", err)
		}
	}

	var builds release.BuildSource = noManifest{}
	var verifier release.SignatureVerifier = noManifest{}
	if manifest != nil {
		builds = manifest
		verifier = manifest
	}

	checker := release.NewChecker(client, logger)
	planner := release.NewPlanner(builds, oracleClient, checker, logger)
	executor := release.NewExecutor(client, checker, verifier, logger)

	opts := release.CoordinatorOptions{Metrics: tel.Metrics}

	rt := &runtime{
		service:   service,
		platforms: platforms,
		tel:       tel,
		store:     store,
		logger:    logger,
	}

	if service.Policy.Enabled {
		engine, err := policy.NewEngine(logger)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to create policy engine: %w", err)
		}
		if service.Policy.Dir != "" {
			if err := engine.LoadPolicies(ctx, []string{service.Policy.Dir}); err != nil {
				_ = store.Close()
				return nil, err
			}
			if service.Policy.Watch {
				loader := policy.NewLoader(logger)
				err := loader.Watch(ctx, []string{service.Policy.Dir}, func(policies []policy.Policy) error {
					return engine.ReplacePolicies(ctx, policies)
				})
				if err != nil {
					_ = store.Close()
					return nil, fmt.Errorf("failed to watch policy directory: %w", err)
				}
				rt.loader = loader
			}
		}
		opts.Gate = policy.NewGate(engine, policy.GateOptions{
			Mode:        policy.Mode(service.Policy.Mode),
			Environment: service.Telemetry.Environment,
		}, logger)
		rt.engine = engine
	}

	if service.Hooks.PlanScript != "" {
		hook, err := config.NewPlanTransformHookFromFile(service.Hooks.PlanScript, service.Hooks.Timeout())
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		opts.Hook = hook
	}

	rt.coord = release.NewCoordinator(store, planner, executor, checker, platforms, opts, logger)
	return rt, nil
}

// Context returns ctx carrying the runtime's telemetry, so spans and call
// metrics recorded down the stack land in the wired exporters.
func (rt *runtime) Context(ctx context.Context) context.Context {
	return rt.tel.WithContext(ctx)
}

// Close releases the runtime's resources.
func (rt *runtime) Close(ctx context.Context) {
	if rt.loader != nil {
		if err := rt.loader.StopWatching(); err != nil {
			rt.logger.Warn().Err(err).Msg("failed to stop policy watcher")
		}
	}
	if err := rt.store.Close(); err != nil {
		rt.logger.Warn().Err(err).Msg("failed to close store")
	}
	if err := rt.tel.Shutdown(ctx); err != nil {
		rt.logger.Warn().Err(err).Msg("failed to shut down telemetry")
	}
}

// noManifest backs commands invoked without a build manifest; any attempt to
// reach the build scheduler reports the missing flag instead of failing
// opaquely.
type noManifest struct{}

func (noManifest) CompletedArtifacts(context.Context, []int64, []int64) ([]release.BuildArtifact, error) {
	return nil, fmt.Errorf("no build manifest supplied, use --builds-file")
}

func (noManifest) ModuleTemplates(context.Context, []int64) ([]release.ModuleTemplate, error) {
	return nil, fmt.Errorf("no build manifest supplied, use --builds-file")
}

func (noManifest) SourceRPMNames(context.Context, []int64) ([]string, error) {
	return nil, fmt.Errorf("no build manifest supplied, use --builds-file")
}

func (noManifest) VerifyBuilds(context.Context, []int64) error {
	return fmt.Errorf("no build manifest supplied, use --builds-file")
}
