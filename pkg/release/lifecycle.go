package release

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rpmforge/rpmforge/pkg/telemetry"
)

// PlanHook transforms a freshly built or operator-edited plan before it is
// stored. Hooks are evaluated outside the engine, typically as scripted
// policy, and must return a complete plan.
type PlanHook interface {
	TransformPlan(ctx context.Context, releaseID string, plan *Plan) (*Plan, error)
}

// Coordinator wraps planning and execution behind the release lifecycle:
// create, update, commit and revert over a persisted release entity with
// enforced status transitions. Commit, revert and update each run inside the
// store's exclusive critical section per release id.
type Coordinator struct {
	store     Store
	planner   *Planner
	executor  *Executor
	checker   *Checker
	gate      PolicyGate
	hook      PlanHook
	platforms map[string]*Platform
	metrics   *telemetry.Metrics
	logger    zerolog.Logger
}

// CoordinatorOptions configures optional coordinator collaborators.
type CoordinatorOptions struct {
	// Gate is evaluated against the release before every commit; a denial
	// fails the release with CodePolicyDenied.
	Gate PolicyGate

	// Hook transforms plans on create and update.
	Hook PlanHook

	// Metrics receives lifecycle counters and durations when non-nil.
	Metrics *telemetry.Metrics
}

// NewCoordinator creates the lifecycle coordinator over the given platforms.
func NewCoordinator(store Store, planner *Planner, executor *Executor, checker *Checker, platforms map[string]*Platform, opts CoordinatorOptions, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		store:     store,
		planner:   planner,
		executor:  executor,
		checker:   checker,
		gate:      opts.Gate,
		hook:      opts.Hook,
		platforms: platforms,
		metrics:   opts.Metrics,
		logger:    logger.With().Str("component", "lifecycle").Logger(),
	}
}

// CreateRequest describes a new release.
type CreateRequest struct {
	Platform     string  `json:"platform" validate:"required"`
	BuildIDs     []int64 `json:"build_ids" validate:"min=1"`
	BuildTaskIDs []int64 `json:"build_task_ids,omitempty"`
	User         string  `json:"user"`
}

// Create builds the plan for the requested builds and persists a new release
// in Scheduled state.
func (c *Coordinator) Create(ctx context.Context, req CreateRequest) (*Release, error) {
	platform, err := c.platform(req.Platform)
	if err != nil {
		return nil, err
	}

	plan, err := c.planner.BuildPlan(ctx, platform, req.BuildIDs, req.BuildTaskIDs)
	if err != nil {
		return nil, err
	}

	release := &Release{
		ID:           uuid.NewString(),
		Status:       StatusScheduled,
		Platform:     req.Platform,
		CreatedBy:    req.User,
		BuildIDs:     req.BuildIDs,
		BuildTaskIDs: req.BuildTaskIDs,
		Plan:         plan,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	if c.hook != nil {
		transformed, err := c.hook.TransformPlan(ctx, release.ID, plan)
		if err != nil {
			return nil, fmt.Errorf("plan hook failed: %w", err)
		}
		release.Plan = transformed
	}

	if err := c.store.CreateRelease(ctx, release); err != nil {
		return nil, fmt.Errorf("failed to persist release: %w", err)
	}
	c.appendEvent(ctx, release.ID, "info", fmt.Sprintf("release created for platform %s by %s", req.Platform, req.User))

	if c.metrics != nil {
		c.metrics.RecordReleaseCreated(req.Platform)
	}
	c.logger.Info().
		Str("release_id", release.ID).
		Str("platform", req.Platform).
		Int("packages", len(release.Plan.Packages)).
		Msg("release created")

	return release, nil
}

// Update replaces a Scheduled release's plan. An operator-supplied plan is
// presence-checked and stored as-is; when only the build set changed the
// plan is rebuilt from scratch.
func (c *Coordinator) Update(ctx context.Context, releaseID string, buildIDs []int64, newPlan *Plan) (*Release, error) {
	var updated *Release
	err := c.store.WithReleaseLock(ctx, releaseID, func(ctx context.Context) error {
		release, platform, err := c.load(ctx, releaseID)
		if err != nil {
			return err
		}
		if release.Status != StatusScheduled {
			return NewConflictError(CodeInvalidStatus,
				fmt.Sprintf("release in status %s cannot be updated", release.Status)).WithRelease(releaseID)
		}

		switch {
		case newPlan != nil:
			if err := refreshPlanPresence(ctx, c.checker, newPlan, platform); err != nil {
				return err
			}
			release.Plan = newPlan
		case len(buildIDs) > 0:
			plan, err := c.planner.BuildPlan(ctx, platform, buildIDs, nil)
			if err != nil {
				return err
			}
			release.BuildIDs = buildIDs
			release.BuildTaskIDs = nil
			release.Plan = plan
		default:
			return NewValidationError(CodeReleaseLogicError, "update requires a new plan or a new build set").WithRelease(releaseID)
		}

		if c.hook != nil {
			transformed, err := c.hook.TransformPlan(ctx, release.ID, release.Plan)
			if err != nil {
				return fmt.Errorf("plan hook failed: %w", err)
			}
			release.Plan = transformed
		}

		release.UpdatedAt = time.Now().UTC()
		if err := c.store.UpdateRelease(ctx, release); err != nil {
			return fmt.Errorf("failed to persist release: %w", err)
		}
		c.appendEvent(ctx, releaseID, "info", "release plan updated")
		updated = release
		return nil
	})
	return updated, err
}

// Commit executes the release plan. The status transition and the plan's
// audit log are always persisted, success or failure; errors outside the
// handled categories leave the release InProgress for operator inspection,
// and committing again retries the plan once the cause is cleared.
func (c *Coordinator) Commit(ctx context.Context, releaseID string) (*Release, string, error) {
	var (
		committed *Release
		message   string
	)
	err := c.store.WithReleaseLock(ctx, releaseID, func(ctx context.Context) error {
		release, platform, err := c.load(ctx, releaseID)
		if err != nil {
			return err
		}
		if !release.Status.CanTransition(StatusInProgress) {
			return NewConflictError(CodeInvalidStatus,
				fmt.Sprintf("release in status %s cannot be committed", release.Status)).WithRelease(releaseID)
		}

		release.Status = StatusInProgress
		release.UpdatedAt = time.Now().UTC()
		if err := c.store.UpdateRelease(ctx, release); err != nil {
			return fmt.Errorf("failed to persist release: %w", err)
		}
		c.appendEvent(ctx, releaseID, "info", "commit started")
		if c.metrics != nil {
			c.metrics.RecordCommitStarted(release.Platform)
		}
		started := time.Now()

		if err := c.store.LinkBuilds(ctx, releaseID, release.BuildIDs); err != nil {
			return fmt.Errorf("failed to link builds: %w", err)
		}

		// Nest executor spans and repository calls under one commit span
		// when the caller's context carries telemetry.
		ctx = telemetry.WithCommitContext(ctx, releaseID, release.Platform)
		execErr := c.gateAndExecute(ctx, release, platform)
		telemetry.EndCommitContext(ctx, releaseID, release.Platform, string(release.Status), execErr)
		committed = release
		message = release.Plan.LastLog

		status := string(release.Status)
		if c.metrics != nil {
			c.metrics.RecordCommitCompleted(release.Platform, status, time.Since(started))
		}
		return execErr
	})
	return committed, message, err
}

// gateAndExecute runs the policy gate and the executor, applies the
// resulting status transition and persists the audit log. It returns nil for
// handled failures, which are fully recorded on the release, and the raw
// error for unhandled ones.
func (c *Coordinator) gateAndExecute(ctx context.Context, release *Release, platform *Platform) error {
	var messages []string
	var execErr error

	if c.gate != nil {
		if err := c.gate.EvaluatePlan(ctx, release); err != nil {
			execErr = NewValidationError(CodePolicyDenied, err.Error()).WithRelease(release.ID)
		}
	}
	if execErr == nil {
		messages, execErr = c.executor.Execute(ctx, release, platform)
	}

	switch {
	case execErr == nil:
		release.Status = StatusCompleted
		messages = append(messages, "release committed successfully")
	case IsHandled(execErr):
		release.Status = StatusFailed
		messages = append(messages, execErr.Error())
		c.appendEvent(ctx, release.ID, "error", execErr.Error())
		var relErr *Error
		if c.metrics != nil && errors.As(execErr, &relErr) {
			c.metrics.RecordError(string(relErr.Class), relErr.Code)
		}
	default:
		// Unhandled fault: the release stays InProgress and the operator
		// must inspect and re-commit.
		messages = append(messages, fmt.Sprintf("unhandled failure: %v", execErr))
		c.appendEvent(ctx, release.ID, "error", execErr.Error())
	}

	release.Plan.LastLog = strings.Join(messages, "\n")
	release.UpdatedAt = time.Now().UTC()
	if err := c.store.UpdateRelease(ctx, release); err != nil {
		c.logger.Error().Err(err).Str("release_id", release.ID).Msg("failed to persist commit outcome")
		if execErr == nil {
			execErr = fmt.Errorf("failed to persist release: %w", err)
		}
	}

	if IsHandled(execErr) {
		return nil
	}
	return execErr
}

// Revert computes and applies the inverse content-removal plan of a
// Completed release, unlinks its builds and marks it Reverted. Reverting a
// release in any other status is a hard error.
func (c *Coordinator) Revert(ctx context.Context, releaseID string) (*Release, string, error) {
	var (
		reverted *Release
		message  string
	)
	err := c.store.WithReleaseLock(ctx, releaseID, func(ctx context.Context) error {
		release, platform, err := c.load(ctx, releaseID)
		if err != nil {
			return err
		}
		if release.Status != StatusCompleted {
			return NewConflictError(CodeInvalidStatus,
				fmt.Sprintf("only completed releases can be reverted, status is %s", release.Status)).WithRelease(releaseID)
		}

		release.Status = StatusInProgress
		release.UpdatedAt = time.Now().UTC()
		if err := c.store.UpdateRelease(ctx, release); err != nil {
			return fmt.Errorf("failed to persist release: %w", err)
		}
		c.appendEvent(ctx, releaseID, "info", "revert started")

		messages, execErr := c.executor.Revert(ctx, release, platform)
		switch {
		case execErr == nil:
			if err := c.store.UnlinkBuilds(ctx, releaseID); err != nil {
				return fmt.Errorf("failed to unlink builds: %w", err)
			}
			release.Status = StatusReverted
			messages = append(messages, "release reverted successfully")
		case IsHandled(execErr):
			// The release content is still published, so the release goes
			// back to Completed and the revert can be retried.
			release.Status = StatusCompleted
			messages = append(messages, execErr.Error())
			c.appendEvent(ctx, releaseID, "error", execErr.Error())
		default:
			messages = append(messages, fmt.Sprintf("unhandled failure: %v", execErr))
			c.appendEvent(ctx, releaseID, "error", execErr.Error())
		}

		release.Plan.LastLog = strings.Join(messages, "\n")
		release.UpdatedAt = time.Now().UTC()
		if err := c.store.UpdateRelease(ctx, release); err != nil {
			return fmt.Errorf("failed to persist revert outcome: %w", err)
		}

		reverted = release
		message = release.Plan.LastLog
		if IsHandled(execErr) {
			return nil
		}
		return execErr
	})
	return reverted, message, err
}

// Get returns a release by id.
func (c *Coordinator) Get(ctx context.Context, releaseID string) (*Release, error) {
	release, err := c.store.GetRelease(ctx, releaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load release: %w", err)
	}
	if release == nil {
		return nil, NewValidationError(CodeNotFound, fmt.Sprintf("release %s not found", releaseID))
	}
	return release, nil
}

func (c *Coordinator) load(ctx context.Context, releaseID string) (*Release, *Platform, error) {
	release, err := c.Get(ctx, releaseID)
	if err != nil {
		return nil, nil, err
	}
	platform, err := c.platform(release.Platform)
	if err != nil {
		return nil, nil, err
	}
	return release, platform, nil
}

func (c *Coordinator) platform(name string) (*Platform, error) {
	platform, ok := c.platforms[name]
	if !ok {
		return nil, NewValidationError(CodeNotFound, fmt.Sprintf("platform %s is not configured", name))
	}
	return platform, nil
}

// appendEvent records an audit event, logging instead of failing when the
// event store is unavailable.
func (c *Coordinator) appendEvent(ctx context.Context, releaseID, level, message string) {
	if err := c.store.AppendEvent(ctx, releaseID, level, message); err != nil {
		c.logger.Warn().Err(err).Str("release_id", releaseID).Msg("failed to record audit event")
	}
}
