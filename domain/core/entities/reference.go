package entities

import (
	"fmt"
	"time"

	"fluxstore/domain/core/valueobjects"
	pkgerrors "fluxstore/pkg/errors"
)

// SingleReference is the mutable pointer used by scalar fields. Writes
// repoint currentAtom at a newly created atom; the superseded atom stays
// reachable through the atom's previous chain.
type SingleReference struct {
	id          valueobjects.ReferenceID
	currentAtom valueobjects.AtomID
	lastWriter  string
	updatedAt   time.Time
}

// NewSingleReference creates an empty single reference
func NewSingleReference() *SingleReference {
	return &SingleReference{
		id:        valueobjects.NewReferenceID(),
		updatedAt: time.Now(),
	}
}

// ReconstructSingleReference rebuilds a single reference from repository data
func ReconstructSingleReference(id valueobjects.ReferenceID, current valueobjects.AtomID, lastWriter string, updatedAt time.Time) *SingleReference {
	return &SingleReference{
		id:          id,
		currentAtom: current,
		lastWriter:  lastWriter,
		updatedAt:   updatedAt,
	}
}

// ID returns the reference's identifier
func (r *SingleReference) ID() valueobjects.ReferenceID { return r.id }

// CurrentAtom returns the atom currently pointed at; zero when unset
func (r *SingleReference) CurrentAtom() valueobjects.AtomID { return r.currentAtom }

// LastWriter returns the author of the most recent repoint
func (r *SingleReference) LastWriter() string { return r.lastWriter }

// UpdatedAt returns the time of the most recent repoint
func (r *SingleReference) UpdatedAt() time.Time { return r.updatedAt }

// IsEmpty reports whether the reference points at nothing yet
func (r *SingleReference) IsEmpty() bool { return r.currentAtom.IsZero() }

// Repoint moves the reference to a new atom. Repointing at the atom the
// reference already holds is a no-op overwrite, not an error.
func (r *SingleReference) Repoint(atomID valueobjects.AtomID, author string) error {
	if atomID.IsZero() {
		return pkgerrors.NewValidation("cannot repoint reference at empty atom ID")
	}
	if author == "" {
		return pkgerrors.NewValidation("author cannot be empty")
	}
	r.currentAtom = atomID
	r.lastWriter = author
	r.updatedAt = time.Now()
	return nil
}

// CollectionOpKind enumerates the supported collection mutations
type CollectionOpKind string

const (
	CollectionOpAdd          CollectionOpKind = "add"
	CollectionOpInsertAt     CollectionOpKind = "insert_at"
	CollectionOpReplaceAt    CollectionOpKind = "replace_at"
	CollectionOpRemoveByAtom CollectionOpKind = "remove_by_atom"
	CollectionOpClear        CollectionOpKind = "clear"
)

// CollectionOp describes one mutation of a collection reference
type CollectionOp struct {
	Kind  CollectionOpKind
	Index int
	Atom  valueobjects.AtomID
}

// CollectionReference is the mutable ordered pointer list used by
// list-valued fields.
type CollectionReference struct {
	id    valueobjects.ReferenceID
	atoms []valueobjects.AtomID
}

// NewCollectionReference creates an empty collection reference
func NewCollectionReference() *CollectionReference {
	return &CollectionReference{
		id:    valueobjects.NewReferenceID(),
		atoms: []valueobjects.AtomID{},
	}
}

// ReconstructCollectionReference rebuilds a collection reference from repository data
func ReconstructCollectionReference(id valueobjects.ReferenceID, atoms []valueobjects.AtomID) *CollectionReference {
	if atoms == nil {
		atoms = []valueobjects.AtomID{}
	}
	return &CollectionReference{id: id, atoms: atoms}
}

// ID returns the reference's identifier
func (r *CollectionReference) ID() valueobjects.ReferenceID { return r.id }

// Atoms returns a copy of the ordered atom list
func (r *CollectionReference) Atoms() []valueobjects.AtomID {
	out := make([]valueobjects.AtomID, len(r.atoms))
	copy(out, r.atoms)
	return out
}

// Len returns the number of atoms in the collection
func (r *CollectionReference) Len() int { return len(r.atoms) }

// Apply performs one mutation and returns the resulting order for
// confirmation. InsertAt and ReplaceAt reject out-of-range indexes rather
// than clamping.
func (r *CollectionReference) Apply(op CollectionOp) ([]valueobjects.AtomID, error) {
	switch op.Kind {
	case CollectionOpAdd:
		if op.Atom.IsZero() {
			return nil, pkgerrors.NewValidation("add requires an atom ID")
		}
		r.atoms = append(r.atoms, op.Atom)

	case CollectionOpInsertAt:
		if op.Atom.IsZero() {
			return nil, pkgerrors.NewValidation("insert requires an atom ID")
		}
		// Inserting at len() is appending, still in range.
		if op.Index < 0 || op.Index > len(r.atoms) {
			return nil, pkgerrors.NewOutOfRange(fmt.Sprintf("insert index %d out of range for collection of %d", op.Index, len(r.atoms)))
		}
		r.atoms = append(r.atoms, valueobjects.AtomID{})
		copy(r.atoms[op.Index+1:], r.atoms[op.Index:])
		r.atoms[op.Index] = op.Atom

	case CollectionOpReplaceAt:
		if op.Atom.IsZero() {
			return nil, pkgerrors.NewValidation("replace requires an atom ID")
		}
		if op.Index < 0 || op.Index >= len(r.atoms) {
			return nil, pkgerrors.NewOutOfRange(fmt.Sprintf("replace index %d out of range for collection of %d", op.Index, len(r.atoms)))
		}
		r.atoms[op.Index] = op.Atom

	case CollectionOpRemoveByAtom:
		if op.Atom.IsZero() {
			return nil, pkgerrors.NewValidation("remove requires an atom ID")
		}
		kept := r.atoms[:0]
		for _, id := range r.atoms {
			if !id.Equals(op.Atom) {
				kept = append(kept, id)
			}
		}
		r.atoms = kept

	case CollectionOpClear:
		r.atoms = r.atoms[:0]

	default:
		return nil, pkgerrors.NewValidation("unknown collection operation: " + string(op.Kind))
	}

	return r.Atoms(), nil
}

// RangeReference is the mutable keyed pointer map used by range-valued
// fields. A key may accumulate several atoms; appends never implicitly
// overwrite.
type RangeReference struct {
	id      valueobjects.ReferenceID
	entries map[string][]valueobjects.AtomID
}

// NewRangeReference creates an empty range reference
func NewRangeReference() *RangeReference {
	return &RangeReference{
		id:      valueobjects.NewReferenceID(),
		entries: make(map[string][]valueobjects.AtomID),
	}
}

// ReconstructRangeReference rebuilds a range reference from repository data
func ReconstructRangeReference(id valueobjects.ReferenceID, entries map[string][]valueobjects.AtomID) *RangeReference {
	if entries == nil {
		entries = make(map[string][]valueobjects.AtomID)
	}
	return &RangeReference{id: id, entries: entries}
}

// ID returns the reference's identifier
func (r *RangeReference) ID() valueobjects.ReferenceID { return r.id }

// Append adds an atom under the key, keeping any atoms already there
func (r *RangeReference) Append(key string, atomID valueobjects.AtomID) error {
	if key == "" {
		return pkgerrors.NewValidation("range key cannot be empty")
	}
	if atomID.IsZero() {
		return pkgerrors.NewValidation("append requires an atom ID")
	}
	r.entries[key] = append(r.entries[key], atomID)
	return nil
}

// Replace discards everything under the key and stores the single atom.
// This is the only way to shrink a key; Append never overwrites.
func (r *RangeReference) Replace(key string, atomID valueobjects.AtomID) error {
	if key == "" {
		return pkgerrors.NewValidation("range key cannot be empty")
	}
	if atomID.IsZero() {
		return pkgerrors.NewValidation("replace requires an atom ID")
	}
	r.entries[key] = []valueobjects.AtomID{atomID}
	return nil
}

// Get returns the atoms stored under the key in insertion order
func (r *RangeReference) Get(key string) []valueobjects.AtomID {
	atoms := r.entries[key]
	out := make([]valueobjects.AtomID, len(atoms))
	copy(out, atoms)
	return out
}

// Keys returns all keys present in the range
func (r *RangeReference) Keys() []string {
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	return keys
}

// Entries returns a copy of the full key to atom list mapping
func (r *RangeReference) Entries() map[string][]valueobjects.AtomID {
	out := make(map[string][]valueobjects.AtomID, len(r.entries))
	for k, v := range r.entries {
		atoms := make([]valueobjects.AtomID, len(v))
		copy(atoms, v)
		out[k] = atoms
	}
	return out
}
