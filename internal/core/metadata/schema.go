package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	schemagen "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/custodia-labs/archivist/internal/core/domain"
)

const schemaURL = "https://archivist.local/schemas/record.json"

var originType = reflect.TypeOf((*domain.Origin)(nil)).Elem()

// Schema returns the sidecar JSON Schema, reflected from domain.Record.
func Schema() ([]byte, error) {
	r := schemagen.Reflector{
		Anonymous:                 true,
		DoNotReference:            true,
		AllowAdditionalProperties: true,
		Mapper: func(t reflect.Type) *schemagen.Schema {
			if t == originType {
				return &schemagen.Schema{Type: "object"}
			}
			return nil
		},
	}
	s := r.Reflect(&domain.Record{})
	s.Title = "archivist metadata sidecar"
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling schema: %w", err)
	}
	return data, nil
}

// Validator checks sidecar bytes against the compiled schema.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the sidecar schema.
func NewValidator() (*Validator, error) {
	raw, err := Schema()
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("adding schema resource: %w", err)
	}
	sch, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compiling schema: %w", err)
	}
	return &Validator{schema: sch}, nil
}

// CheckSchema validates raw sidecar JSON against the schema.
func (v *Validator) CheckSchema(data []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return domain.NewValidationError("record", "", fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
	}
	if err := v.schema.Validate(inst); err != nil {
		return domain.NewValidationError("record", "", err)
	}
	return nil
}

// Decode checks data against the schema, unmarshals it and runs the
// semantic checks.
func (v *Validator) Decode(data []byte) (*domain.Record, error) {
	if err := v.CheckSchema(data); err != nil {
		return nil, err
	}
	var rec domain.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, domain.NewValidationError("record", "", fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
	}
	if err := Validate(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Encode renders a record as indented JSON with a trailing newline.
func Encode(rec *domain.Record) ([]byte, error) {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	return append(data, '\n'), nil
}
