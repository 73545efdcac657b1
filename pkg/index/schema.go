package index

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrSchemaViolation is returned when an item does not match its index schema.
var ErrSchemaViolation = errors.New("index item violates schema")

// Schema is a compiled JSON schema for the items of one kind of index.
type Schema struct {
	name   string
	schema *gojsonschema.Schema
}

// Compile compiles a JSON schema given as a Go value.
func Compile(name string, schema map[string]any) (*Schema, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s schema: %w", name, err)
	}

	return &Schema{name: name, schema: compiled}, nil
}

// MustCompile is like Compile but panics on error. Use it for package level schemas.
func MustCompile(name string, schema map[string]any) *Schema {
	s, err := Compile(name, schema)
	if err != nil {
		panic(err)
	}

	return s
}

// Name identifies the schema in logs.
func (s *Schema) Name() string {
	return s.name
}

// Validate checks a Go value against the schema.
func (s *Schema) Validate(item any) error {
	return s.validate(gojsonschema.NewGoLoader(item))
}

func (s *Schema) validateBytes(raw []byte) error {
	return s.validate(gojsonschema.NewBytesLoader(raw))
}

func (s *Schema) validate(loader gojsonschema.JSONLoader) error {
	result, err := s.schema.Validate(loader)
	if err != nil {
		return fmt.Errorf("failed to validate %s item: %w", s.name, err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			messages = append(messages, e.String())
		}

		return fmt.Errorf("%w %s: %s", ErrSchemaViolation, s.name, strings.Join(messages, "; "))
	}

	return nil
}
