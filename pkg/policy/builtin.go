package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		betaQuarantinePolicy(),
		debugPlacementPolicy(),
		forcedReleasePolicy(),
		repositoryFanoutPolicy(),
	}
}

// betaQuarantinePolicy keeps beta builds out of production repositories.
func betaQuarantinePolicy() Policy {
	return Policy{
		Name:        "beta-quarantine",
		Description: "Keeps packages built from beta snapshots out of production repositories",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"beta", "safety"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package rpmforge.policies.beta

import rego.v1

# Beta packages may only land in devel buckets
deny contains violation if {
	input.plan
	some entry in input.plan.packages
	entry.package.is_beta
	some repo in entry.repositories
	not contains(repo.name, "-devel")
	violation := {
		"message": sprintf("beta package %s may not be released to production repository %s", [entry.package.full_name, repo.name]),
		"severity": "error",
	}
}`,
	}
}

// debugPlacementPolicy keeps debuginfo content out of regular repositories.
func debugPlacementPolicy() Policy {
	return Policy{
		Name:        "debug-placement",
		Description: "Requires debuginfo packages to target debuginfo repositories only",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"debuginfo", "placement"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package rpmforge.policies.debuginfo

import rego.v1

deny contains violation if {
	input.plan
	some entry in input.plan.packages
	entry.package.is_debug
	some repo in entry.repositories
	not repo.debug
	violation := {
		"message": sprintf("debuginfo package %s targets non-debuginfo repository %s", [entry.package.full_name, repo.name]),
		"severity": "error",
	}
}

deny contains violation if {
	input.plan
	some entry in input.plan.packages
	not entry.package.is_debug
	some repo in entry.repositories
	repo.debug
	violation := {
		"message": sprintf("package %s targets debuginfo repository %s", [entry.package.full_name, repo.name]),
		"severity": "error",
	}
}`,
	}
}

// forcedReleasePolicy surfaces force-flagged packages for review.
func forcedReleasePolicy() Policy {
	return Policy{
		Name:        "forced-release",
		Description: "Warns when a plan overrides presence checks with the force flag",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"force", "review"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package rpmforge.policies.force

import rego.v1

deny contains violation if {
	input.plan
	forced := count([e |
		some e in input.plan.packages
		e.package.force
	])
	forced > 0
	violation := {
		"message": sprintf("plan forces %d package(s) past the presence check - please review", [forced]),
		"severity": "warning",
	}
}`,
	}
}

// repositoryFanoutPolicy surfaces unusually wide plans for review.
func repositoryFanoutPolicy() Policy {
	return Policy{
		Name:        "repository-fanout",
		Description: "Warns when a single release touches an unusually large number of repositories",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"fanout", "review"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package rpmforge.policies.fanout

import rego.v1

max_repositories := 25

deny contains violation if {
	input.plan
	touched := count(input.plan.repositories)
	touched > max_repositories
	violation := {
		"message": sprintf("release touches %d repositories (threshold %d) - please review", [touched, max_repositories]),
		"severity": "warning",
	}
}`,
	}
}
