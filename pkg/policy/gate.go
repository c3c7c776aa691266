package policy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rpmforge/rpmforge/pkg/release"
)

// Mode controls how a Gate reacts to blocking violations.
type Mode string

const (
	// ModeAdvisory logs blocking violations but allows the commit.
	ModeAdvisory Mode = "advisory"

	// ModeEnforcing rejects commits with blocking violations.
	ModeEnforcing Mode = "enforcing"
)

// Gate adapts the policy engine to the release coordinator's pre-commit
// check. It implements release.PolicyGate.
type Gate struct {
	engine      *Engine
	mode        Mode
	environment string
	logger      zerolog.Logger
}

// GateOptions configures a Gate.
type GateOptions struct {
	// Mode selects advisory or enforcing behaviour. Empty means enforcing.
	Mode Mode

	// Environment is passed to policies as evaluation context.
	Environment string
}

// NewGate creates a gate over the given engine.
func NewGate(engine *Engine, opts GateOptions, logger zerolog.Logger) *Gate {
	mode := opts.Mode
	if mode == "" {
		mode = ModeEnforcing
	}
	return &Gate{
		engine:      engine,
		mode:        mode,
		environment: opts.Environment,
		logger:      logger.With().Str("component", "policy-gate").Logger(),
	}
}

// EvaluatePlan evaluates all policies against the release and returns an
// error when a blocking violation is found in enforcing mode. Warnings and
// advisory-mode violations are logged and allowed through.
func (g *Gate) EvaluatePlan(ctx context.Context, rel *release.Release) error {
	result, err := g.engine.EvaluateRelease(ctx, rel, &Context{
		User:        rel.CreatedBy,
		Environment: g.environment,
		Timestamp:   time.Now(),
		Operation:   "commit",
	})
	if err != nil {
		return fmt.Errorf("policy evaluation failed: %w", err)
	}

	for _, warning := range result.Warnings {
		g.logger.Warn().
			Str("release_id", rel.ID).
			Str("policy", warning.Policy).
			Str("severity", string(warning.Severity)).
			Msg(warning.Message)
	}

	if result.Allowed {
		return nil
	}

	messages := make([]string, 0, len(result.Violations))
	for _, violation := range result.Violations {
		messages = append(messages, violation.Message)
		g.logger.Error().
			Str("release_id", rel.ID).
			Str("policy", violation.Policy).
			Str("severity", string(violation.Severity)).
			Msg(violation.Message)
	}

	if g.mode == ModeAdvisory {
		g.logger.Warn().
			Str("release_id", rel.ID).
			Int("violations", len(result.Violations)).
			Msg("advisory mode, allowing commit despite violations")
		return nil
	}

	return fmt.Errorf("release blocked by policy: %s", strings.Join(messages, "; "))
}
