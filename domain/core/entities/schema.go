package entities

import (
	"fluxstore/domain/core/valueobjects"
	pkgerrors "fluxstore/pkg/errors"
)

// SchemaStatus is the lifecycle state of a schema. Transitions only move
// forward: Available -> Approved -> Blocked.
type SchemaStatus string

const (
	SchemaStatusAvailable SchemaStatus = "available"
	SchemaStatusApproved  SchemaStatus = "approved"
	SchemaStatusBlocked   SchemaStatus = "blocked"
)

// FieldVariant says which kind of reference backs a field
type FieldVariant string

const (
	FieldVariantSingle     FieldVariant = "single"
	FieldVariantCollection FieldVariant = "collection"
	FieldVariantRange      FieldVariant = "range"
)

// PermissionPolicy is the write policy attached to a field. Enforcement
// happens at the API boundary; the core only carries the declaration.
type PermissionPolicy string

const (
	PermissionOpen       PermissionPolicy = "open"
	PermissionOwnerOnly  PermissionPolicy = "owner_only"
	PermissionSystemOnly PermissionPolicy = "system_only"
)

// Field describes one field of a schema: which reference variant backs it,
// where its reference record lives, who may write it, and optionally the
// transform that computes it.
type Field struct {
	name        string
	variant     FieldVariant
	referenceID valueobjects.ReferenceID
	permission  PermissionPolicy
	transformID valueobjects.TransformID
}

// NewField creates a field definition
func NewField(name string, variant FieldVariant, refID valueobjects.ReferenceID, permission PermissionPolicy) (*Field, error) {
	if name == "" {
		return nil, pkgerrors.NewValidation("field name cannot be empty")
	}
	switch variant {
	case FieldVariantSingle, FieldVariantCollection, FieldVariantRange:
	default:
		return nil, pkgerrors.NewValidation("unknown field variant: " + string(variant))
	}
	if permission == "" {
		permission = PermissionOpen
	}
	return &Field{
		name:        name,
		variant:     variant,
		referenceID: refID,
		permission:  permission,
	}, nil
}

// Name returns the field name
func (f *Field) Name() string { return f.name }

// Variant returns which reference kind backs the field
func (f *Field) Variant() FieldVariant { return f.variant }

// ReferenceID returns the backing reference record's ID
func (f *Field) ReferenceID() valueobjects.ReferenceID { return f.referenceID }

// Permission returns the field's write policy
func (f *Field) Permission() PermissionPolicy { return f.permission }

// TransformID returns the attached transform, empty if the field is plain
func (f *Field) TransformID() valueobjects.TransformID { return f.transformID }

// AttachTransform marks the field as computed by the given transform
func (f *Field) AttachTransform(id valueobjects.TransformID) error {
	if id == "" {
		return pkgerrors.NewValidation("transform ID cannot be empty")
	}
	if f.transformID != "" && f.transformID != id {
		return pkgerrors.NewConflict("field " + f.name + " already computed by transform " + f.transformID.String())
	}
	f.transformID = id
	return nil
}

// Schema owns a named set of field definitions and a lifecycle status
type Schema struct {
	name   string
	fields map[string]*Field
	status SchemaStatus
}

// NewSchema creates an empty schema in the Available state
func NewSchema(name string) (*Schema, error) {
	if name == "" {
		return nil, pkgerrors.NewValidation("schema name cannot be empty")
	}
	return &Schema{
		name:   name,
		fields: make(map[string]*Field),
		status: SchemaStatusAvailable,
	}, nil
}

// Name returns the schema name
func (s *Schema) Name() string { return s.name }

// Status returns the schema's lifecycle state
func (s *Schema) Status() SchemaStatus { return s.status }

// IsLive reports whether the schema's data participates in triggering
func (s *Schema) IsLive() bool { return s.status == SchemaStatusApproved }

// AddField registers a field definition; duplicate names are rejected
func (s *Schema) AddField(field *Field) error {
	if field == nil {
		return pkgerrors.NewValidation("field cannot be nil")
	}
	if _, exists := s.fields[field.Name()]; exists {
		return pkgerrors.NewConflict("field already defined: " + s.name + "." + field.Name())
	}
	s.fields[field.Name()] = field
	return nil
}

// Field looks up a field definition by name
func (s *Schema) Field(name string) (*Field, error) {
	field, ok := s.fields[name]
	if !ok {
		return nil, pkgerrors.NewNotFound("field not found: " + s.name + "." + name)
	}
	return field, nil
}

// FieldNames returns the names of all defined fields
func (s *Schema) FieldNames() []string {
	names := make([]string, 0, len(s.fields))
	for name := range s.fields {
		names = append(names, name)
	}
	return names
}

// Approve moves the schema from Available to Approved
func (s *Schema) Approve() error {
	if s.status != SchemaStatusAvailable {
		return pkgerrors.NewConflict("schema " + s.name + " cannot be approved from state " + string(s.status))
	}
	s.status = SchemaStatusApproved
	return nil
}

// Block moves the schema from Approved to Blocked
func (s *Schema) Block() error {
	if s.status != SchemaStatusApproved {
		return pkgerrors.NewConflict("schema " + s.name + " cannot be blocked from state " + string(s.status))
	}
	s.status = SchemaStatusBlocked
	return nil
}
