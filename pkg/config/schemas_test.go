package config

import (
	"context"
	"testing"
)

func TestBuiltInSchemasRegistered(t *testing.T) {
	sr := NewSchemaRegistry()

	for _, name := range []string{"platform", "repository", "service"} {
		if _, ok := sr.GetSchema(name); !ok {
			t.Errorf("built-in schema %s not registered", name)
		}
	}
	if names := sr.ListSchemas(); len(names) != 3 {
		t.Errorf("expected 3 built-in schemas, got %v", names)
	}
}

func TestValidateRepositoryAgainstSchema(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	valid := map[string]interface{}{
		"id":   1,
		"name": "el-9-appstream",
		"arch": "x86_64",
	}
	if err := sr.ValidateAgainstSchema(ctx, "repository", valid); err != nil {
		t.Errorf("valid repository rejected: %v", err)
	}

	invalid := map[string]interface{}{
		"id":   0,
		"name": "el-9-appstream",
		"arch": "x86_64",
	}
	if err := sr.ValidateAgainstSchema(ctx, "repository", invalid); err == nil {
		t.Error("repository with id 0 must be rejected")
	}

	badName := map[string]interface{}{
		"id":   1,
		"name": "EL 9 Appstream",
		"arch": "x86_64",
	}
	if err := sr.ValidateAgainstSchema(ctx, "repository", badName); err == nil {
		t.Error("repository with an invalid name must be rejected")
	}
}

func TestValidatePlatformAgainstSchema(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	valid := map[string]interface{}{
		"name":         "el-9",
		"distribution": "el",
		"version":      "9",
		"arches":       []interface{}{"x86_64"},
		"repositories": []interface{}{
			map[string]interface{}{"id": 1, "name": "el-9-devel", "arch": "x86_64"},
		},
	}
	if err := sr.ValidateAgainstSchema(ctx, "platform", valid); err != nil {
		t.Errorf("valid platform rejected: %v", err)
	}

	noArches := map[string]interface{}{
		"name":         "el-9",
		"distribution": "el",
		"version":      "9",
		"arches":       []interface{}{},
		"repositories": []interface{}{
			map[string]interface{}{"id": 1, "name": "el-9-devel", "arch": "x86_64"},
		},
	}
	if err := sr.ValidateAgainstSchema(ctx, "platform", noArches); err == nil {
		t.Error("platform without arches must be rejected")
	}
}

func TestRegisterCustomSchema(t *testing.T) {
	sr := NewSchemaRegistry()

	err := sr.RegisterSchema("freeze", `
#Freeze: {
	platform: string
	until:    string
}
`)
	if err != nil {
		t.Fatalf("RegisterSchema failed: %v", err)
	}
	if _, ok := sr.GetSchema("freeze"); !ok {
		t.Error("custom schema not retrievable")
	}

	if err := sr.RegisterSchema("broken", `#Broken: {x: int`); err == nil {
		t.Error("malformed schema must fail to register")
	}
}

func TestValidateUnknownSchema(t *testing.T) {
	sr := NewSchemaRegistry()
	if err := sr.ValidateAgainstSchema(context.Background(), "nonexistent", map[string]interface{}{}); err == nil {
		t.Error("unknown schema name must fail")
	}
}
