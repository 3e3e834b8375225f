package valuestore

import (
	"encoding/json"
	"time"

	"fluxstore/domain/core/entities"
	"fluxstore/domain/core/valueobjects"
	pkgerrors "fluxstore/pkg/errors"
)

// Key prefixes under which the store serializes its records. The encoding
// must stay stable across restarts: crash recovery reads these back.
const (
	atomKeyPrefix          = "atom/"
	singleRefKeyPrefix     = "ref/single/"
	collectionRefKeyPrefix = "ref/collection/"
	rangeRefKeyPrefix      = "ref/range/"
)

func atomKey(id valueobjects.AtomID) string             { return atomKeyPrefix + id.String() }
func singleRefKey(id valueobjects.ReferenceID) string   { return singleRefKeyPrefix + id.String() }
func collectionRefKey(id valueobjects.ReferenceID) string {
	return collectionRefKeyPrefix + id.String()
}
func rangeRefKey(id valueobjects.ReferenceID) string { return rangeRefKeyPrefix + id.String() }

type atomRecord struct {
	ID         string      `json:"id"`
	SchemaName string      `json:"schema_name"`
	Author     string      `json:"author"`
	Previous   string      `json:"previous_atom_id,omitempty"`
	Content    interface{} `json:"content"`
	Status     string      `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
}

type singleRefRecord struct {
	ID          string    `json:"id"`
	CurrentAtom string    `json:"current_atom_id,omitempty"`
	LastWriter  string    `json:"last_writer"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type collectionRefRecord struct {
	ID    string   `json:"id"`
	Atoms []string `json:"atom_ids"`
}

type rangeRefRecord struct {
	ID      string              `json:"id"`
	Entries map[string][]string `json:"entries"`
}

func encodeAtom(atom *entities.Atom) ([]byte, error) {
	record := atomRecord{
		ID:         atom.ID().String(),
		SchemaName: atom.SchemaName(),
		Author:     atom.Author(),
		Content:    atom.Content(),
		Status:     string(atom.Status()),
		CreatedAt:  atom.CreatedAt(),
	}
	if atom.HasPrevious() {
		record.Previous = atom.Previous().String()
	}
	return json.Marshal(record)
}

func decodeAtom(data []byte) (*entities.Atom, error) {
	var record atomRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, pkgerrors.NewInternal("corrupt atom record", err)
	}

	id, err := valueobjects.NewAtomIDFromString(record.ID)
	if err != nil {
		return nil, err
	}
	var previous valueobjects.AtomID
	if record.Previous != "" {
		previous, err = valueobjects.NewAtomIDFromString(record.Previous)
		if err != nil {
			return nil, err
		}
	}

	return entities.ReconstructAtom(id, record.SchemaName, record.Author, previous,
		record.Content, entities.AtomStatus(record.Status), record.CreatedAt)
}

func encodeSingleRef(ref *entities.SingleReference) ([]byte, error) {
	record := singleRefRecord{
		ID:         ref.ID().String(),
		LastWriter: ref.LastWriter(),
		UpdatedAt:  ref.UpdatedAt(),
	}
	if !ref.IsEmpty() {
		record.CurrentAtom = ref.CurrentAtom().String()
	}
	return json.Marshal(record)
}

func decodeSingleRef(data []byte) (*entities.SingleReference, error) {
	var record singleRefRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, pkgerrors.NewInternal("corrupt single reference record", err)
	}

	id, err := valueobjects.NewReferenceIDFromString(record.ID)
	if err != nil {
		return nil, err
	}
	var current valueobjects.AtomID
	if record.CurrentAtom != "" {
		current, err = valueobjects.NewAtomIDFromString(record.CurrentAtom)
		if err != nil {
			return nil, err
		}
	}

	return entities.ReconstructSingleReference(id, current, record.LastWriter, record.UpdatedAt), nil
}

func encodeCollectionRef(ref *entities.CollectionReference) ([]byte, error) {
	atoms := ref.Atoms()
	record := collectionRefRecord{
		ID:    ref.ID().String(),
		Atoms: make([]string, len(atoms)),
	}
	for i, atomID := range atoms {
		record.Atoms[i] = atomID.String()
	}
	return json.Marshal(record)
}

func decodeCollectionRef(data []byte) (*entities.CollectionReference, error) {
	var record collectionRefRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, pkgerrors.NewInternal("corrupt collection reference record", err)
	}

	id, err := valueobjects.NewReferenceIDFromString(record.ID)
	if err != nil {
		return nil, err
	}
	atoms := make([]valueobjects.AtomID, len(record.Atoms))
	for i, raw := range record.Atoms {
		atoms[i], err = valueobjects.NewAtomIDFromString(raw)
		if err != nil {
			return nil, err
		}
	}

	return entities.ReconstructCollectionReference(id, atoms), nil
}

func encodeRangeRef(ref *entities.RangeReference) ([]byte, error) {
	entries := ref.Entries()
	record := rangeRefRecord{
		ID:      ref.ID().String(),
		Entries: make(map[string][]string, len(entries)),
	}
	for key, atoms := range entries {
		raw := make([]string, len(atoms))
		for i, atomID := range atoms {
			raw[i] = atomID.String()
		}
		record.Entries[key] = raw
	}
	return json.Marshal(record)
}

func decodeRangeRef(data []byte) (*entities.RangeReference, error) {
	var record rangeRefRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, pkgerrors.NewInternal("corrupt range reference record", err)
	}

	id, err := valueobjects.NewReferenceIDFromString(record.ID)
	if err != nil {
		return nil, err
	}
	entries := make(map[string][]valueobjects.AtomID, len(record.Entries))
	for key, raws := range record.Entries {
		atoms := make([]valueobjects.AtomID, len(raws))
		for i, raw := range raws {
			atoms[i], err = valueobjects.NewAtomIDFromString(raw)
			if err != nil {
				return nil, err
			}
		}
		entries[key] = atoms
	}

	return entities.ReconstructRangeReference(id, entries), nil
}
