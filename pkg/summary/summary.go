// Package summary reads end-of-test summaries written by
// `hello-load run --summary-export`: it validates them against the
// summary JSON Schema and extracts values by path.
package summary

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed summary.schema.json
var schemaJSON string

const schemaURL = "summary.schema.json"

var (
	compileOnce sync.Once
	schema      *jsonschema.Schema
	compileErr  error
)

// ValidationErrors represents a collection of validation errors
type ValidationErrors []error

// Error implements the error interface for ValidationErrors
func (ve ValidationErrors) Error() string {
	var sb strings.Builder
	for i, err := range ve {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Schema returns the JSON Schema summaries are validated against.
func Schema() string {
	return schemaJSON
}

func compiled() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
			compileErr = fmt.Errorf("invalid schema: %w", err)
			return
		}
		schema, compileErr = compiler.Compile(schemaURL)
	})
	return schema, compileErr
}

// Validate checks data against the summary schema. A nil error means the
// document is a well-formed summary; otherwise the error is either a JSON
// syntax error or ValidationErrors listing every violation.
func Validate(data []byte) error {
	s, err := compiled()
	if err != nil {
		return err
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := s.Validate(doc); err != nil {
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			return extractValidationErrors(ve)
		}
		return ValidationErrors{err}
	}
	return nil
}

// extractValidationErrors flattens the leaf causes of a schema violation.
func extractValidationErrors(err *jsonschema.ValidationError) ValidationErrors {
	if len(err.Causes) == 0 {
		return ValidationErrors{fmt.Errorf("validation error at %s: %s", locationOf(err), err.Message)}
	}

	var errs ValidationErrors
	for _, cause := range err.Causes {
		errs = append(errs, extractValidationErrors(cause)...)
	}
	return errs
}

func locationOf(err *jsonschema.ValidationError) string {
	if err.InstanceLocation == "" {
		return "/"
	}
	return err.InstanceLocation
}

// File is a loaded and validated summary.
type File struct {
	Path string
	Data []byte
}

// Load reads and validates the summary at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read summary: %w", err)
	}
	if err := Validate(data); err != nil {
		return nil, fmt.Errorf("%s is not a valid summary: %w", path, err)
	}
	return &File{Path: path, Data: data}, nil
}

// Passed reports the verdict recorded in the summary.
func (f *File) Passed() bool {
	v, err := Extract(f.Data, "$.passed")
	return err == nil && v == "true"
}

// FailedThresholds returns "metric: expression" for every threshold that
// did not pass, sorted by metric.
func (f *File) FailedThresholds() []string {
	return failedThresholds(f.Data)
}
