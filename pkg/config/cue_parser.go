package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"github.com/go-playground/validator/v10"
)

// CUEParser parses and validates CUE configuration files.
type CUEParser struct {
	ctx            *cue.Context
	schemaRegistry *SchemaRegistry
	validator      *validator.Validate
}

// NewCUEParser creates a new CUE parser.
func NewCUEParser() *CUEParser {
	return &CUEParser{
		ctx:            cuecontext.New(),
		schemaRegistry: NewSchemaRegistry(),
		validator:      validator.New(),
	}
}

// Load parses the sources and fails on any collected error. This is the
// entry point service startup uses.
func (cp *CUEParser) Load(ctx context.Context, sources []string) (*ParsedConfig, error) {
	parsed, err := cp.Parse(ctx, sources)
	if err != nil {
		return nil, err
	}
	if len(parsed.Errors) > 0 {
		details := make([]string, 0, len(parsed.Errors))
		for _, verr := range parsed.Errors {
			details = append(details, verr.Message)
		}
		return nil, fmt.Errorf("configuration is invalid: %s", strings.Join(details, "; "))
	}
	return parsed, nil
}

// Parse parses CUE configuration from the given sources. Files and
// directories may be mixed; all values are unified before extraction.
func (cp *CUEParser) Parse(ctx context.Context, sources []string) (*ParsedConfig, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources provided")
	}

	var cueValue cue.Value
	var sourceFiles []string
	var parseErrors []ValidationError

	for _, source := range sources {
		info, err := os.Stat(source)
		if err != nil {
			return nil, fmt.Errorf("failed to stat source %s: %w", source, err)
		}

		if info.IsDir() {
			val, files, errs := cp.loadDirectory(source)
			if len(errs) > 0 {
				parseErrors = append(parseErrors, errs...)
			}
			if val.Exists() {
				if cueValue.Exists() {
					cueValue = cueValue.Unify(val)
				} else {
					cueValue = val
				}
			}
			sourceFiles = append(sourceFiles, files...)
		} else {
			val, errs := cp.loadFile(source)
			if len(errs) > 0 {
				parseErrors = append(parseErrors, errs...)
			}
			if val.Exists() {
				if cueValue.Exists() {
					cueValue = cueValue.Unify(val)
				} else {
					cueValue = val
				}
			}
			sourceFiles = append(sourceFiles, source)
		}
	}

	if len(parseErrors) > 0 {
		return &ParsedConfig{
			SourceFiles: sourceFiles,
			ParsedAt:    time.Now(),
			Errors:      parseErrors,
		}, nil
	}

	if err := cueValue.Err(); err != nil {
		parseErrors = append(parseErrors, cp.convertCUEErrors(err)...)
		return &ParsedConfig{
			SourceFiles: sourceFiles,
			ParsedAt:    time.Now(),
			Errors:      parseErrors,
		}, nil
	}

	return cp.extractConfig(cueValue, sourceFiles)
}

// ParseInline parses inline CUE content, mainly for tests and tooling.
func (cp *CUEParser) ParseInline(ctx context.Context, content string) (*ParsedConfig, error) {
	val := cp.ctx.CompileString(content)
	if err := val.Err(); err != nil {
		return &ParsedConfig{
			SourceFiles: []string{"inline"},
			ParsedAt:    time.Now(),
			Errors:      cp.convertCUEErrors(err),
		}, nil
	}

	return cp.extractConfig(val, []string{"inline"})
}

// loadDirectory loads a directory as a CUE package.
func (cp *CUEParser) loadDirectory(dir string) (cue.Value, []string, []ValidationError) {
	buildInstances := load.Instances([]string{dir}, nil)
	if len(buildInstances) == 0 {
		return cue.Value{}, nil, []ValidationError{{
			File:     dir,
			Message:  "no CUE files found",
			Severity: "error",
		}}
	}

	inst := buildInstances[0]
	if inst.Err != nil {
		return cue.Value{}, nil, cp.convertCUEErrors(inst.Err)
	}

	val := cp.ctx.BuildInstance(inst)
	if err := val.Err(); err != nil {
		return cue.Value{}, nil, cp.convertCUEErrors(err)
	}

	var files []string
	for _, file := range inst.Files {
		if file.Filename != "" {
			files = append(files, file.Filename)
		}
	}

	return val, files, nil
}

// loadFile loads a single CUE file.
func (cp *CUEParser) loadFile(path string) (cue.Value, []ValidationError) {
	content, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, []ValidationError{{
			File:     path,
			Message:  fmt.Sprintf("failed to read file: %v", err),
			Severity: "error",
		}}
	}

	val := cp.ctx.CompileString(string(content), cue.Filename(path))
	if err := val.Err(); err != nil {
		return cue.Value{}, cp.convertCUEErrors(err)
	}

	return val, nil
}

// extractConfig extracts the service section and the platform declarations
// from a unified CUE value.
func (cp *CUEParser) extractConfig(val cue.Value, sourceFiles []string) (*ParsedConfig, error) {
	parsed := &ParsedConfig{
		SourceFiles: sourceFiles,
		ParsedAt:    time.Now(),
	}

	serviceVal := val.LookupPath(cue.ParsePath("service"))
	if serviceVal.Exists() {
		var service ServiceConfig
		if err := serviceVal.Decode(&service); err != nil {
			parsed.Errors = append(parsed.Errors, ValidationError{
				Path:     "service",
				Message:  fmt.Sprintf("failed to decode service config: %v", err),
				Severity: "error",
			})
		} else if err := cp.validator.Struct(&service); err != nil {
			parsed.Errors = append(parsed.Errors, ValidationError{
				Path:     "service",
				Message:  fmt.Sprintf("service config validation failed: %v", err),
				Severity: "error",
			})
		} else {
			parsed.Service = service
		}
	}

	platformsVal := val.LookupPath(cue.ParsePath("platforms"))
	if platformsVal.Exists() {
		switch platformsVal.Kind() {
		case cue.StructKind:
			iter, err := platformsVal.Fields(cue.All())
			if err != nil {
				parsed.Errors = append(parsed.Errors, ValidationError{
					Path:     "platforms",
					Message:  fmt.Sprintf("failed to iterate platforms: %v", err),
					Severity: "error",
				})
				break
			}
			for iter.Next() {
				name := iter.Selector().String()
				platform, err := cp.extractPlatform(name, iter.Value())
				if err != nil {
					parsed.Errors = append(parsed.Errors, ValidationError{
						Path:     fmt.Sprintf("platforms.%s", name),
						Message:  err.Error(),
						Severity: "error",
					})
					continue
				}
				parsed.Platforms = append(parsed.Platforms, platform)
			}
		case cue.ListKind:
			list, err := platformsVal.List()
			if err != nil {
				parsed.Errors = append(parsed.Errors, ValidationError{
					Path:     "platforms",
					Message:  fmt.Sprintf("failed to list platforms: %v", err),
					Severity: "error",
				})
				break
			}
			idx := 0
			for list.Next() {
				platform, err := cp.extractPlatform("", list.Value())
				if err != nil {
					parsed.Errors = append(parsed.Errors, ValidationError{
						Path:     fmt.Sprintf("platforms[%d]", idx),
						Message:  err.Error(),
						Severity: "error",
					})
				} else {
					parsed.Platforms = append(parsed.Platforms, platform)
				}
				idx++
			}
		default:
			parsed.Errors = append(parsed.Errors, ValidationError{
				Path:     "platforms",
				Message:  "platforms must be a struct or a list",
				Severity: "error",
			})
		}
	}

	return parsed, nil
}

// extractPlatform decodes and validates a single platform declaration. A
// struct key doubles as the platform name when the body omits it.
func (cp *CUEParser) extractPlatform(name string, val cue.Value) (PlatformConfig, error) {
	var platform PlatformConfig
	if err := val.Decode(&platform); err != nil {
		return platform, fmt.Errorf("failed to decode platform: %w", err)
	}

	if platform.Name == "" && name != "" {
		platform.Name = name
	}

	if err := cp.validator.Struct(&platform); err != nil {
		return platform, fmt.Errorf("validation failed: %w", err)
	}

	return platform, nil
}

// convertCUEErrors converts CUE errors to ValidationError slice.
func (cp *CUEParser) convertCUEErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	errs := errors.Errors(err)
	for _, e := range errs {
		pos := errors.Positions(e)
		var file string
		var line, column int

		if len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		validationErrors = append(validationErrors, ValidationError{
			File:     file,
			Line:     line,
			Column:   column,
			Message:  errors.Details(e, nil),
			Severity: "error",
		})
	}

	return validationErrors
}

// ValidateWithSchema validates data against a named built-in schema.
func (cp *CUEParser) ValidateWithSchema(ctx context.Context, data interface{}, schemaName string) error {
	return cp.schemaRegistry.ValidateAgainstSchema(ctx, schemaName, data)
}

// GetSchemaRegistry returns the schema registry.
func (cp *CUEParser) GetSchemaRegistry() *SchemaRegistry {
	return cp.schemaRegistry
}

// ExportJSON exports a CUE value to indented JSON.
func (cp *CUEParser) ExportJSON(val cue.Value) ([]byte, error) {
	var data interface{}
	if err := val.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}

	return json.MarshalIndent(data, "", "  ")
}

// ListCUEFiles lists all CUE files under a directory.
func (cp *CUEParser) ListCUEFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && strings.HasSuffix(path, ".cue") {
			files = append(files, path)
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	return files, nil
}
