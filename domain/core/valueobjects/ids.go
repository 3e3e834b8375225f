package valueobjects

import (
	"strings"

	"github.com/google/uuid"

	pkgerrors "fluxstore/pkg/errors"
)

// AtomID uniquely identifies an immutable atom record
type AtomID struct {
	value string
}

// NewAtomID generates a new unique atom ID
func NewAtomID() AtomID {
	return AtomID{value: uuid.New().String()}
}

// NewAtomIDFromString creates an AtomID from an existing string
func NewAtomIDFromString(s string) (AtomID, error) {
	if s == "" {
		return AtomID{}, pkgerrors.NewValidation("atom ID cannot be empty")
	}
	return AtomID{value: s}, nil
}

// String returns the string representation
func (id AtomID) String() string { return id.value }

// IsZero reports whether the ID is unset
func (id AtomID) IsZero() bool { return id.value == "" }

// Equals compares two atom IDs
func (id AtomID) Equals(other AtomID) bool { return id.value == other.value }

// ReferenceID uniquely identifies a mutable reference record
type ReferenceID struct {
	value string
}

// NewReferenceID generates a new unique reference ID
func NewReferenceID() ReferenceID {
	return ReferenceID{value: uuid.New().String()}
}

// NewReferenceIDFromString creates a ReferenceID from an existing string
func NewReferenceIDFromString(s string) (ReferenceID, error) {
	if s == "" {
		return ReferenceID{}, pkgerrors.NewValidation("reference ID cannot be empty")
	}
	return ReferenceID{value: s}, nil
}

// String returns the string representation
func (id ReferenceID) String() string { return id.value }

// IsZero reports whether the ID is unset
func (id ReferenceID) IsZero() bool { return id.value == "" }

// Equals compares two reference IDs
func (id ReferenceID) Equals(other ReferenceID) bool { return id.value == other.value }

// TransformID identifies a registered transform. Unlike atom and reference
// IDs it is caller-assigned, so re-registration can replace an earlier
// definition under the same name.
type TransformID string

// String returns the string representation
func (id TransformID) String() string { return string(id) }

// FieldPath is a "Schema.field" path naming one field of one schema
type FieldPath struct {
	schema string
	field  string
}

// NewFieldPath builds a path from its parts
func NewFieldPath(schema, field string) (FieldPath, error) {
	if schema == "" || field == "" {
		return FieldPath{}, pkgerrors.NewValidation("field path requires both schema and field")
	}
	if strings.Contains(schema, ".") || strings.Contains(field, ".") {
		return FieldPath{}, pkgerrors.NewValidation("schema and field names cannot contain '.'")
	}
	return FieldPath{schema: schema, field: field}, nil
}

// ParseFieldPath parses a "Schema.field" string
func ParseFieldPath(s string) (FieldPath, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return FieldPath{}, pkgerrors.NewValidation("malformed field path: " + s)
	}
	return FieldPath{schema: parts[0], field: parts[1]}, nil
}

// Schema returns the schema component
func (p FieldPath) Schema() string { return p.schema }

// Field returns the field component
func (p FieldPath) Field() string { return p.field }

// String returns the canonical "Schema.field" form
func (p FieldPath) String() string { return p.schema + "." + p.field }

// IsZero reports whether the path is unset
func (p FieldPath) IsZero() bool { return p.schema == "" && p.field == "" }

// Equals compares two field paths
func (p FieldPath) Equals(other FieldPath) bool {
	return p.schema == other.schema && p.field == other.field
}
