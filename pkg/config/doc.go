// Package config provides CUE configuration parsing and Starlark plan hooks
// for the release engine.
//
// # Overview
//
// The config package implements the configuration loading phase of the
// service: parsing CUE files, validating schemas, converting platform
// declarations into the release engine's platform type, and executing
// Starlark scripts that transform release plans.
//
// # Components
//
// CUEParser: Main parser for CUE configuration files. Loads files and
// directories, unifies them into a single value, and extracts the service
// section plus the platform declarations.
//
// SchemaRegistry: Manages CUE schemas for validation. Provides built-in
// schemas for platforms, repositories and the service section, and supports
// custom schema registration.
//
// StarlarkEvaluator and PlanTransformHook: Safe Starlark script execution
// with timeout enforcement. The hook feeds a release plan through a script
// before it is stored, so operators can force packages, drop entries or
// retarget repositories without patching the engine.
//
// # Usage Example
//
//	parser := config.NewCUEParser()
//
//	parsed, err := parser.Load(ctx, []string{"/etc/rpmforge/config.cue"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	platforms, err := parsed.PlatformMap()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # CUE Configuration Structure
//
// A typical configuration declares the service section and the platforms:
//
//	service: {
//	    listen: ":8080"
//	    database: {path: "/var/lib/rpmforge/releases.db"}
//	    repo_manager: {url: "https://pulp.example.com"}
//	}
//
//	platforms: {
//	    "el-9": {
//	        distribution: "el"
//	        version:      "9"
//	        arches: ["x86_64", "aarch64"]
//	        weak_arches: {x86_64: ["i686"]}
//	        repositories: [
//	            {id: 1, name: "el-9-devel", arch: "x86_64"},
//	            {id: 2, name: "el-9-devel", arch: "aarch64"},
//	        ]
//	    }
//	}
//
// # Starlark Plan Hooks
//
// The plan hook script receives an "input" dict carrying the plan and the
// release id, and exports the transformed plan as a "plan" global:
//
//	def _force_all(p):
//	    for entry in p["packages"]:
//	        entry["package"]["force"] = True
//	    return p
//
//	plan = _force_all(input["plan"])
//
// # Security
//
// Starlark execution is sandboxed:
//   - No filesystem access
//   - No network access
//   - Timeout enforcement (default 30 seconds)
//   - Print statements suppressed
//   - Only safe built-in functions provided
//
// # Thread Safety
//
// All types in this package are safe for concurrent use.
package config
