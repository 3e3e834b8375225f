package valuestore

import (
	"context"

	"go.uber.org/zap"

	"fluxstore/application/ports"
	"fluxstore/domain/core/entities"
	"fluxstore/domain/core/valueobjects"
	pkgerrors "fluxstore/pkg/errors"
	"fluxstore/pkg/observability"
)

// Store is the versioned value layer: immutable atoms plus the three
// mutable reference kinds, all serialized through the persistence port.
// It is a pure data layer; mutations never emit events, the caller
// publishes FieldValueSet after a successful write.
type Store struct {
	kv      ports.KVStore
	logger  *zap.Logger
	metrics *observability.Collector
}

// NewStore creates a value store on the given persistence port. metrics
// may be nil.
func NewStore(kv ports.KVStore, logger *zap.Logger, metrics *observability.Collector) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{kv: kv, logger: logger, metrics: metrics}
}

func (s *Store) observe(operation string) {
	if s.metrics != nil {
		s.metrics.StoreOperations.WithLabelValues(operation).Inc()
	}
}

// CreateAtom writes a new immutable atom. previous may be zero for the
// first version of a value.
func (s *Store) CreateAtom(ctx context.Context, schemaName, author string, previous valueobjects.AtomID, content interface{}, status entities.AtomStatus) (*entities.Atom, error) {
	atom, err := entities.NewAtom(schemaName, author, previous, content, status)
	if err != nil {
		return nil, err
	}

	data, err := encodeAtom(atom)
	if err != nil {
		return nil, pkgerrors.NewInternal("encode atom", err)
	}
	if err := s.kv.Put(ctx, atomKey(atom.ID()), data); err != nil {
		return nil, pkgerrors.Wrap(err, "persist atom")
	}

	s.observe("create_atom")
	s.logger.Debug("atom created",
		zap.String("atomID", atom.ID().String()),
		zap.String("schema", schemaName),
		zap.String("author", author),
	)
	return atom, nil
}

// GetAtom loads an atom by ID
func (s *Store) GetAtom(ctx context.Context, id valueobjects.AtomID) (*entities.Atom, error) {
	data, err := s.kv.Get(ctx, atomKey(id))
	if err != nil {
		return nil, err
	}
	return decodeAtom(data)
}

// History walks the previous chain from the given atom back to the first
// version, newest first.
func (s *Store) History(ctx context.Context, id valueobjects.AtomID) ([]*entities.Atom, error) {
	var chain []*entities.Atom
	current := id
	for !current.IsZero() {
		atom, err := s.GetAtom(ctx, current)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "broken version chain at "+current.String())
		}
		chain = append(chain, atom)
		current = atom.Previous()
	}
	return chain, nil
}

// CreateSingleReference creates and persists an empty single reference
func (s *Store) CreateSingleReference(ctx context.Context) (*entities.SingleReference, error) {
	ref := entities.NewSingleReference()
	if err := s.putSingleRef(ctx, ref); err != nil {
		return nil, err
	}
	s.observe("create_single_reference")
	return ref, nil
}

// GetSingleReference loads a single reference by ID
func (s *Store) GetSingleReference(ctx context.Context, id valueobjects.ReferenceID) (*entities.SingleReference, error) {
	data, err := s.kv.Get(ctx, singleRefKey(id))
	if err != nil {
		return nil, err
	}
	return decodeSingleRef(data)
}

// UpdateSingleReference repoints a single reference at an atom. The write
// is an idempotent overwrite; last writer wins.
func (s *Store) UpdateSingleReference(ctx context.Context, refID valueobjects.ReferenceID, atomID valueobjects.AtomID, author string) (*entities.SingleReference, error) {
	ref, err := s.GetSingleReference(ctx, refID)
	if err != nil {
		return nil, err
	}
	if err := ref.Repoint(atomID, author); err != nil {
		return nil, err
	}
	if err := s.putSingleRef(ctx, ref); err != nil {
		return nil, err
	}

	s.observe("update_single_reference")
	s.logger.Debug("single reference repointed",
		zap.String("refID", refID.String()),
		zap.String("atomID", atomID.String()),
		zap.String("author", author),
	)
	return ref, nil
}

// ReadSingle resolves a single reference to its current atom's content.
// An unset reference or a reference pointing at a missing atom is a
// NotFound error, never a panic.
func (s *Store) ReadSingle(ctx context.Context, refID valueobjects.ReferenceID) (interface{}, error) {
	ref, err := s.GetSingleReference(ctx, refID)
	if err != nil {
		return nil, err
	}
	if ref.IsEmpty() {
		return nil, pkgerrors.NewNotFound("reference " + refID.String() + " points at nothing")
	}
	atom, err := s.GetAtom(ctx, ref.CurrentAtom())
	if err != nil {
		return nil, pkgerrors.Wrap(err, "reference "+refID.String()+" points at missing atom")
	}
	return atom.Content(), nil
}

// CreateCollectionReference creates and persists an empty collection reference
func (s *Store) CreateCollectionReference(ctx context.Context) (*entities.CollectionReference, error) {
	ref := entities.NewCollectionReference()
	if err := s.putCollectionRef(ctx, ref); err != nil {
		return nil, err
	}
	s.observe("create_collection_reference")
	return ref, nil
}

// GetCollectionReference loads a collection reference by ID
func (s *Store) GetCollectionReference(ctx context.Context, id valueobjects.ReferenceID) (*entities.CollectionReference, error) {
	data, err := s.kv.Get(ctx, collectionRefKey(id))
	if err != nil {
		return nil, err
	}
	return decodeCollectionRef(data)
}

// MutateCollection applies one mutation to a collection reference and
// returns the resulting order for confirmation.
func (s *Store) MutateCollection(ctx context.Context, refID valueobjects.ReferenceID, op entities.CollectionOp, author string) ([]valueobjects.AtomID, error) {
	if author == "" {
		return nil, pkgerrors.NewValidation("author cannot be empty")
	}
	ref, err := s.GetCollectionReference(ctx, refID)
	if err != nil {
		return nil, err
	}
	result, err := ref.Apply(op)
	if err != nil {
		return nil, err
	}
	if err := s.putCollectionRef(ctx, ref); err != nil {
		return nil, err
	}

	s.observe("mutate_collection")
	s.logger.Debug("collection mutated",
		zap.String("refID", refID.String()),
		zap.String("op", string(op.Kind)),
		zap.String("author", author),
	)
	return result, nil
}

// ReadCollection resolves every atom in the collection to its content, in
// collection order.
func (s *Store) ReadCollection(ctx context.Context, refID valueobjects.ReferenceID) ([]interface{}, error) {
	ref, err := s.GetCollectionReference(ctx, refID)
	if err != nil {
		return nil, err
	}
	contents := make([]interface{}, 0, ref.Len())
	for _, atomID := range ref.Atoms() {
		atom, err := s.GetAtom(ctx, atomID)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "collection "+refID.String()+" holds missing atom")
		}
		contents = append(contents, atom.Content())
	}
	return contents, nil
}

// CreateRangeReference creates and persists an empty range reference
func (s *Store) CreateRangeReference(ctx context.Context) (*entities.RangeReference, error) {
	ref := entities.NewRangeReference()
	if err := s.putRangeRef(ctx, ref); err != nil {
		return nil, err
	}
	s.observe("create_range_reference")
	return ref, nil
}

// GetRangeReference loads a range reference by ID
func (s *Store) GetRangeReference(ctx context.Context, id valueobjects.ReferenceID) (*entities.RangeReference, error) {
	data, err := s.kv.Get(ctx, rangeRefKey(id))
	if err != nil {
		return nil, err
	}
	return decodeRangeRef(data)
}

// MutateRange appends an atom under a key. Appends never overwrite what a
// key already holds; ReplaceRange is the explicit overwrite.
func (s *Store) MutateRange(ctx context.Context, refID valueobjects.ReferenceID, key string, atomID valueobjects.AtomID, author string) error {
	if author == "" {
		return pkgerrors.NewValidation("author cannot be empty")
	}
	ref, err := s.GetRangeReference(ctx, refID)
	if err != nil {
		return err
	}
	if err := ref.Append(key, atomID); err != nil {
		return err
	}
	if err := s.putRangeRef(ctx, ref); err != nil {
		return err
	}

	s.observe("mutate_range")
	return nil
}

// ReplaceRange discards a key's atoms and stores the single given atom
func (s *Store) ReplaceRange(ctx context.Context, refID valueobjects.ReferenceID, key string, atomID valueobjects.AtomID, author string) error {
	if author == "" {
		return pkgerrors.NewValidation("author cannot be empty")
	}
	ref, err := s.GetRangeReference(ctx, refID)
	if err != nil {
		return err
	}
	if err := ref.Replace(key, atomID); err != nil {
		return err
	}
	if err := s.putRangeRef(ctx, ref); err != nil {
		return err
	}

	s.observe("replace_range")
	return nil
}

// RangeFilter selects keys of a range query: an exact key match when Key
// is set, otherwise a predicate over keys. An empty filter matches
// everything.
type RangeFilter struct {
	Key       string
	Predicate func(key string) bool
}

func (f RangeFilter) matches(key string) bool {
	if f.Key != "" {
		return key == f.Key
	}
	if f.Predicate != nil {
		return f.Predicate(key)
	}
	return true
}

// RangeQueryResult aggregates matched keys: a key with exactly one atom
// maps to the bare content, a key with several maps to an array.
type RangeQueryResult struct {
	Matches    map[string]interface{}
	TotalCount int
}

// QueryRange resolves the filtered keys of a range reference to content
func (s *Store) QueryRange(ctx context.Context, refID valueobjects.ReferenceID, filter RangeFilter) (*RangeQueryResult, error) {
	ref, err := s.GetRangeReference(ctx, refID)
	if err != nil {
		return nil, err
	}

	result := &RangeQueryResult{Matches: make(map[string]interface{})}
	for key, atomIDs := range ref.Entries() {
		if !filter.matches(key) {
			continue
		}
		contents := make([]interface{}, 0, len(atomIDs))
		for _, atomID := range atomIDs {
			atom, err := s.GetAtom(ctx, atomID)
			if err != nil {
				return nil, pkgerrors.Wrap(err, "range "+refID.String()+" key "+key+" holds missing atom")
			}
			contents = append(contents, atom.Content())
		}
		result.TotalCount += len(contents)
		if len(contents) == 1 {
			result.Matches[key] = contents[0]
		} else {
			result.Matches[key] = contents
		}
	}

	s.observe("query_range")
	return result, nil
}

func (s *Store) putSingleRef(ctx context.Context, ref *entities.SingleReference) error {
	data, err := encodeSingleRef(ref)
	if err != nil {
		return pkgerrors.NewInternal("encode single reference", err)
	}
	return pkgerrors.Wrap(s.kv.Put(ctx, singleRefKey(ref.ID()), data), "persist single reference")
}

func (s *Store) putCollectionRef(ctx context.Context, ref *entities.CollectionReference) error {
	data, err := encodeCollectionRef(ref)
	if err != nil {
		return pkgerrors.NewInternal("encode collection reference", err)
	}
	return pkgerrors.Wrap(s.kv.Put(ctx, collectionRefKey(ref.ID()), data), "persist collection reference")
}

func (s *Store) putRangeRef(ctx context.Context, ref *entities.RangeReference) error {
	data, err := encodeRangeRef(ref)
	if err != nil {
		return pkgerrors.NewInternal("encode range reference", err)
	}
	return pkgerrors.Wrap(s.kv.Put(ctx, rangeRefKey(ref.ID()), data), "persist range reference")
}
