package valuestore

import (
	"context"
	"sync"

	"fluxstore/domain/core/entities"
	"fluxstore/domain/core/valueobjects"
	pkgerrors "fluxstore/pkg/errors"
)

// Catalog is the in-memory schema directory: it maps "Schema.field" paths
// to the field definitions whose references the store resolves. Schema
// parsing and approval live outside the core; the catalog only consumes
// the resulting definitions.
type Catalog struct {
	mu      sync.RWMutex
	store   *Store
	schemas map[string]*entities.Schema
}

// NewCatalog creates an empty catalog backed by the given store
func NewCatalog(store *Store) *Catalog {
	return &Catalog{
		store:   store,
		schemas: make(map[string]*entities.Schema),
	}
}

// RegisterSchema adds a schema definition; duplicate names are rejected
func (c *Catalog) RegisterSchema(schema *entities.Schema) error {
	if schema == nil {
		return pkgerrors.NewValidation("schema cannot be nil")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.schemas[schema.Name()]; exists {
		return pkgerrors.NewConflict("schema already registered: " + schema.Name())
	}
	c.schemas[schema.Name()] = schema
	return nil
}

// Schema looks up a schema by name
func (c *Catalog) Schema(name string) (*entities.Schema, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	schema, ok := c.schemas[name]
	if !ok {
		return nil, pkgerrors.NewNotFound("schema not found: " + name)
	}
	return schema, nil
}

// ResolveField finds the field definition for a path
func (c *Catalog) ResolveField(path valueobjects.FieldPath) (*entities.Field, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	schema, ok := c.schemas[path.Schema()]
	if !ok {
		return nil, pkgerrors.NewNotFound("schema not found: " + path.Schema())
	}
	return schema.Field(path.Field())
}

// EnsureSingleField resolves the field for a path, creating the schema, a
// single-variant field, and its backing reference when absent. Transform
// outputs use this so a first execution does not require pre-declared
// output schemas.
func (c *Catalog) EnsureSingleField(ctx context.Context, path valueobjects.FieldPath) (*entities.Field, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	schema, ok := c.schemas[path.Schema()]
	if !ok {
		created, err := entities.NewSchema(path.Schema())
		if err != nil {
			return nil, err
		}
		c.schemas[path.Schema()] = created
		schema = created
	}

	if field, err := schema.Field(path.Field()); err == nil {
		return field, nil
	}

	ref, err := c.store.CreateSingleReference(ctx)
	if err != nil {
		return nil, err
	}
	field, err := entities.NewField(path.Field(), entities.FieldVariantSingle, ref.ID(), entities.PermissionOpen)
	if err != nil {
		return nil, err
	}
	if err := schema.AddField(field); err != nil {
		return nil, err
	}
	return field, nil
}

// ReadField resolves a path's current value through its reference. The
// variant decides the resolution shape: a single reference yields the
// atom's content, a collection the ordered content list, a range the full
// aggregated mapping.
func (c *Catalog) ReadField(ctx context.Context, path valueobjects.FieldPath) (interface{}, error) {
	field, err := c.ResolveField(path)
	if err != nil {
		return nil, err
	}

	switch field.Variant() {
	case entities.FieldVariantSingle:
		return c.store.ReadSingle(ctx, field.ReferenceID())
	case entities.FieldVariantCollection:
		contents, err := c.store.ReadCollection(ctx, field.ReferenceID())
		if err != nil {
			return nil, err
		}
		return contents, nil
	case entities.FieldVariantRange:
		result, err := c.store.QueryRange(ctx, field.ReferenceID(), RangeFilter{})
		if err != nil {
			return nil, err
		}
		return result.Matches, nil
	default:
		return nil, pkgerrors.NewInternal("unknown field variant: "+string(field.Variant()), nil)
	}
}

// SchemaNames returns all registered schema names
func (c *Catalog) SchemaNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.schemas))
	for name := range c.schemas {
		names = append(names, name)
	}
	return names
}
