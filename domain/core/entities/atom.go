package entities

import (
	"time"

	"fluxstore/domain/core/valueobjects"
	pkgerrors "fluxstore/pkg/errors"
)

// AtomStatus represents the state of an atom record
type AtomStatus string

const (
	AtomStatusActive   AtomStatus = "active"
	AtomStatusArchived AtomStatus = "archived"
)

// Atom is an immutable, versioned content record. Atoms are never mutated
// after creation; a new value for a field is a new atom whose previous
// pointer links back to the one it supersedes, so walking previous
// reconstructs the full history of a field.
type Atom struct {
	id         valueobjects.AtomID
	schemaName string
	author     string
	previous   valueobjects.AtomID
	content    interface{}
	status     AtomStatus
	createdAt  time.Time
}

// NewAtom creates a new atom with validation. previous may be the zero
// AtomID for the first version of a value.
func NewAtom(schemaName, author string, previous valueobjects.AtomID, content interface{}, status AtomStatus) (*Atom, error) {
	if schemaName == "" {
		return nil, pkgerrors.NewValidation("schema name cannot be empty")
	}
	if author == "" {
		return nil, pkgerrors.NewValidation("author cannot be empty")
	}
	if status == "" {
		status = AtomStatusActive
	}

	return &Atom{
		id:         valueobjects.NewAtomID(),
		schemaName: schemaName,
		author:     author,
		previous:   previous,
		content:    content,
		status:     status,
		createdAt:  time.Now(),
	}, nil
}

// ReconstructAtom rebuilds an atom from repository data with its original
// identity and timestamp preserved.
func ReconstructAtom(
	id valueobjects.AtomID,
	schemaName, author string,
	previous valueobjects.AtomID,
	content interface{},
	status AtomStatus,
	createdAt time.Time,
) (*Atom, error) {
	if id.IsZero() {
		return nil, pkgerrors.NewValidation("atom ID cannot be empty")
	}
	if schemaName == "" {
		return nil, pkgerrors.NewValidation("schema name cannot be empty")
	}

	return &Atom{
		id:         id,
		schemaName: schemaName,
		author:     author,
		previous:   previous,
		content:    content,
		status:     status,
		createdAt:  createdAt,
	}, nil
}

// ID returns the atom's unique identifier
func (a *Atom) ID() valueobjects.AtomID { return a.id }

// SchemaName returns the schema this atom was written under
func (a *Atom) SchemaName() string { return a.schemaName }

// Author returns who created the atom
func (a *Atom) Author() string { return a.author }

// Previous returns the atom this one supersedes; zero for the first version
func (a *Atom) Previous() valueobjects.AtomID { return a.previous }

// HasPrevious reports whether this atom supersedes an earlier one
func (a *Atom) HasPrevious() bool { return !a.previous.IsZero() }

// Content returns the structured value carried by the atom
func (a *Atom) Content() interface{} { return a.content }

// Status returns the atom's status
func (a *Atom) Status() AtomStatus { return a.status }

// CreatedAt returns the creation timestamp
func (a *Atom) CreatedAt() time.Time { return a.createdAt }
