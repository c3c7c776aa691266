package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

const freezeRego = `# Blocks releases during a freeze window
package rpmforge.policies.freeze

import rego.v1

deny contains msg if {
	input.context.metadata.frozen
	msg := "releases are frozen"
}`

func writePolicyFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadRegoFromDirectory(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "freeze.rego", freezeRego)
	writePolicyFile(t, dir, "notes.txt", "not a policy")

	loader := NewLoader(zerolog.Nop())
	policies, err := loader.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("LoadFromPaths failed: %v", err)
	}

	if len(policies) != 1 {
		t.Fatalf("expected 1 policy, got %d", len(policies))
	}
	p := policies[0]
	if p.Name != "freeze" {
		t.Errorf("policy name = %q, want freeze", p.Name)
	}
	if p.Description != "Blocks releases during a freeze window" {
		t.Errorf("description = %q", p.Description)
	}
	if p.Severity != SeverityWarning {
		t.Errorf("default severity = %q, want warning", p.Severity)
	}
	if !p.Enabled {
		t.Error("loaded policies must be enabled by default")
	}
}

func TestLoadJSONPolicy(t *testing.T) {
	dir := t.TempDir()
	definition := Policy{
		Name:        "freeze",
		Description: "Blocks releases during a freeze window",
		Rego:        freezeRego,
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"freeze"},
	}
	data, err := json.Marshal(definition)
	if err != nil {
		t.Fatalf("failed to marshal policy: %v", err)
	}
	path := writePolicyFile(t, dir, "freeze.json", string(data))

	loader := NewLoader(zerolog.Nop())
	policies, err := loader.LoadFromPaths(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("LoadFromPaths failed: %v", err)
	}

	if len(policies) != 1 {
		t.Fatalf("expected 1 policy, got %d", len(policies))
	}
	if policies[0].Severity != SeverityError {
		t.Errorf("severity = %q, want error", policies[0].Severity)
	}
	if policies[0].CreatedAt.IsZero() {
		t.Error("missing timestamps must be defaulted")
	}
}

func TestLoadMissingPath(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	if _, err := loader.LoadFromPaths(context.Background(), []string{"/nonexistent/policies"}); err == nil {
		t.Fatal("expected an error for a missing path")
	}
}

func TestLoadCachesUntilCleared(t *testing.T) {
	dir := t.TempDir()
	path := writePolicyFile(t, dir, "freeze.rego", freezeRego)

	loader := NewLoader(zerolog.Nop())
	first, err := loader.LoadFromPaths(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("LoadFromPaths failed: %v", err)
	}

	updated := "# Updated description\n" + freezeRego
	writePolicyFile(t, dir, "freeze.rego", updated)

	cached, err := loader.LoadFromPaths(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("LoadFromPaths failed: %v", err)
	}
	if cached[0].Description != first[0].Description {
		t.Error("second load must come from the cache")
	}

	loader.ClearCache()
	fresh, err := loader.LoadFromPaths(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("LoadFromPaths failed: %v", err)
	}
	if fresh[0].Description == first[0].Description {
		t.Error("load after ClearCache must re-read the file")
	}
}

func TestLoadBundle(t *testing.T) {
	dir := t.TempDir()
	bundle := Bundle{
		Name:    "release-guards",
		Version: "1.0.0",
		Policies: []Policy{
			{Name: "freeze", Rego: freezeRego, Severity: SeverityError, Enabled: true},
		},
	}
	data, err := json.Marshal(bundle)
	if err != nil {
		t.Fatalf("failed to marshal bundle: %v", err)
	}
	path := writePolicyFile(t, dir, "bundle.json", string(data))

	loader := NewLoader(zerolog.Nop())
	loaded, err := loader.LoadBundle(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadBundle failed: %v", err)
	}
	if loaded.Name != "release-guards" || len(loaded.Policies) != 1 {
		t.Errorf("unexpected bundle: %+v", loaded)
	}
}

func TestEngineLoadsPoliciesFromDisk(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "freeze.rego", freezeRego)

	engine := testEngine(t)
	if err := engine.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("LoadPolicies failed: %v", err)
	}

	if _, err := engine.GetPolicy("freeze"); err != nil {
		t.Errorf("loaded policy not registered: %v", err)
	}
}
