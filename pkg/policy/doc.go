// Package policy provides Rego-based policy evaluation for release commits.
//
// # Overview
//
// The policy package gates release commits behind Open Policy Agent rules.
// Each policy is a Rego module whose deny rules produce violations; a
// violation with error or critical severity blocks the commit, while
// warnings are logged and allowed through.
//
// # Components
//
// Engine: Compiles policies and prepares one deny query per policy. All
// enabled policies are evaluated against the release and its plan.
//
// Loader: Loads policies from .rego and .json files, with fsnotify-based
// hot reload for watched directories.
//
// Gate: Adapts the engine to the release coordinator's pre-commit check.
// In enforcing mode a blocked release fails with a policy denial; in
// advisory mode violations are logged and the commit proceeds.
//
// # Built-in Policies
//
// The engine ships with built-in policies:
//   - beta-quarantine: beta builds may only target devel repositories
//   - debug-placement: debuginfo content belongs in debuginfo repositories
//   - forced-release: warns when presence checks are overridden
//   - repository-fanout: warns on unusually wide releases
//
// # Usage Example
//
//	engine, err := policy.NewEngine(logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := engine.LoadPolicies(ctx, []string{"/etc/rpmforge/policies"}); err != nil {
//	    log.Fatal(err)
//	}
//
//	gate := policy.NewGate(engine, policy.GateOptions{Mode: policy.ModeEnforcing}, logger)
//
// # Writing Policies
//
// Policies receive the release, its plan and an evaluation context as
// input. Deny rules emit either a plain string or an object with message
// and severity fields:
//
//	package rpmforge.policies.freeze
//
//	import rego.v1
//
//	deny contains violation if {
//	    input.context.environment == "production"
//	    violation := {
//	        "message": "production releases are frozen",
//	        "severity": "error",
//	    }
//	}
//
// # Thread Safety
//
// Engine, Loader and Gate are safe for concurrent use.
package policy
