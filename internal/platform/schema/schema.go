// Package schema describes and validates the document shape of each local
// collection. A Schema is a declarative description (field kinds, required
// fields, enumerated value sets, string length bounds, indexed fields) that
// the local store consults before any document is written.
package schema

import (
	"fmt"
	"strings"
)

// Kind identifies the expected type of a document field.
type Kind int

const (
	// String is a plain string field.
	String Kind = iota
	// Number accepts any JSON numeric value.
	Number
	// Bool is a boolean field.
	Bool
	// Object is a nested JSON object.
	Object
	// Array is a JSON array; element validation is not enforced beyond
	// reference normalization.
	Array
	// Reference is a foreign key: either a bare id string or an expanded
	// {_id, name} object, depending on whether the record came from a
	// populated server response or a raw local write.
	Reference
	// ReferenceList is an array of Reference values.
	ReferenceList
)

// Field describes a single document field.
type Field struct {
	Kind      Kind
	Enum      []string // allowed values for String fields; empty = any
	MaxLength int      // maximum length for String fields; 0 = unbounded
	// RefCollection names the collection a Reference field points into.
	// Used by the reconciler's id-rewrite cascade.
	RefCollection string
}

// Schema describes one collection.
type Schema struct {
	Name    string
	Version int
	Fields  map[string]Field
	// Required lists the fields that must be present and non-empty.
	Required []string
	// Indexes lists fields the store maintains side indexes for.
	Indexes []string
}

// RefFields returns the names of all Reference and ReferenceList fields.
func (s *Schema) RefFields() []string {
	var refs []string
	for name, f := range s.Fields {
		if f.Kind == Reference || f.Kind == ReferenceList {
			refs = append(refs, name)
		}
	}
	return refs
}

// HasIndex reports whether the schema declares an index on the given field.
func (s *Schema) HasIndex(field string) bool {
	for _, idx := range s.Indexes {
		if idx == field {
			return true
		}
	}
	return false
}

// ValidationError describes a single schema violation.
type ValidationError struct {
	Collection string
	Field      string
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Collection, e.Field, e.Reason)
}

// Validate checks a document against the schema. The first violation found is
// returned; a nil return means the document may be stored.
func (s *Schema) Validate(doc map[string]interface{}) error {
	for _, req := range s.Required {
		v, ok := doc[req]
		if !ok || v == nil {
			return &ValidationError{Collection: s.Name, Field: req, Reason: "required field is missing"}
		}
		if str, isStr := v.(string); isStr && strings.TrimSpace(str) == "" {
			return &ValidationError{Collection: s.Name, Field: req, Reason: "required field is empty"}
		}
	}

	for name, v := range doc {
		f, known := s.Fields[name]
		if !known || v == nil {
			// Unknown fields pass through untouched; the server owns the
			// authoritative shape and may add fields we have not modeled yet.
			continue
		}
		if err := s.validateField(name, f, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *Schema) validateField(name string, f Field, v interface{}) error {
	switch f.Kind {
	case String:
		str, ok := v.(string)
		if !ok {
			return &ValidationError{Collection: s.Name, Field: name, Reason: fmt.Sprintf("expected string, got %T", v)}
		}
		if f.MaxLength > 0 && len(str) > f.MaxLength {
			return &ValidationError{Collection: s.Name, Field: name,
				Reason: fmt.Sprintf("length %d exceeds maximum %d", len(str), f.MaxLength)}
		}
		if len(f.Enum) > 0 && !contains(f.Enum, str) {
			return &ValidationError{Collection: s.Name, Field: name,
				Reason: fmt.Sprintf("value %q not in %v", str, f.Enum)}
		}
	case Number:
		switch v.(type) {
		case float64, float32, int, int32, int64:
		default:
			return &ValidationError{Collection: s.Name, Field: name, Reason: fmt.Sprintf("expected number, got %T", v)}
		}
	case Bool:
		if _, ok := v.(bool); !ok {
			return &ValidationError{Collection: s.Name, Field: name, Reason: fmt.Sprintf("expected bool, got %T", v)}
		}
	case Object:
		if _, ok := v.(map[string]interface{}); !ok {
			return &ValidationError{Collection: s.Name, Field: name, Reason: fmt.Sprintf("expected object, got %T", v)}
		}
	case Array, ReferenceList:
		if _, ok := v.([]interface{}); !ok {
			return &ValidationError{Collection: s.Name, Field: name, Reason: fmt.Sprintf("expected array, got %T", v)}
		}
	case Reference:
		switch v.(type) {
		case string, map[string]interface{}:
		default:
			return &ValidationError{Collection: s.Name, Field: name,
				Reason: fmt.Sprintf("expected id string or reference object, got %T", v)}
		}
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
