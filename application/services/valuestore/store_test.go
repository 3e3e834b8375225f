package valuestore

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fluxstore/domain/core/entities"
	"fluxstore/domain/core/valueobjects"
	"fluxstore/infrastructure/persistence/memory"
	pkgerrors "fluxstore/pkg/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(memory.NewKVStore(), zap.NewNop(), nil)
}

func TestStore_AtomVersionChain(t *testing.T) {
	// Arrange
	ctx := context.Background()
	store := newTestStore(t)

	// Act: three versions, each linked to its predecessor
	v1, err := store.CreateAtom(ctx, "Order", "writer-1", valueobjects.AtomID{}, 1.0, entities.AtomStatusActive)
	require.NoError(t, err)
	v2, err := store.CreateAtom(ctx, "Order", "writer-1", v1.ID(), 2.0, entities.AtomStatusActive)
	require.NoError(t, err)
	v3, err := store.CreateAtom(ctx, "Order", "writer-2", v2.ID(), 3.0, entities.AtomStatusActive)
	require.NoError(t, err)

	history, err := store.History(ctx, v3.ID())

	// Assert: newest first, back to the unversioned root
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, v3.ID(), history[0].ID())
	assert.Equal(t, v2.ID(), history[1].ID())
	assert.Equal(t, v1.ID(), history[2].ID())
	assert.False(t, history[2].HasPrevious())
}

func TestStore_HistoryReportsBrokenChain(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	// An atom whose previous was never persisted
	orphan, err := store.CreateAtom(ctx, "Order", "writer-1", valueobjects.NewAtomID(), 2.0, entities.AtomStatusActive)
	require.NoError(t, err)

	_, err = store.History(ctx, orphan.ID())

	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestStore_GetAtomMissing(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.GetAtom(ctx, valueobjects.NewAtomID())

	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestStore_SingleReferenceReadThrough(t *testing.T) {
	// Arrange
	ctx := context.Background()
	store := newTestStore(t)
	ref, err := store.CreateSingleReference(ctx)
	require.NoError(t, err)

	// An unset reference reads as NotFound
	_, err = store.ReadSingle(ctx, ref.ID())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))

	// Act: point it at content and read back
	atom, err := store.CreateAtom(ctx, "Order", "writer-1", valueobjects.AtomID{}, "hello", entities.AtomStatusActive)
	require.NoError(t, err)
	_, err = store.UpdateSingleReference(ctx, ref.ID(), atom.ID(), "writer-1")
	require.NoError(t, err)

	content, err := store.ReadSingle(ctx, ref.ID())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "hello", content)
}

func TestStore_SingleReferenceSurvivesReload(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	ref, err := store.CreateSingleReference(ctx)
	require.NoError(t, err)
	atom, err := store.CreateAtom(ctx, "Order", "writer-1", valueobjects.AtomID{}, 42.0, entities.AtomStatusActive)
	require.NoError(t, err)
	_, err = store.UpdateSingleReference(ctx, ref.ID(), atom.ID(), "writer-1")
	require.NoError(t, err)

	reloaded, err := store.GetSingleReference(ctx, ref.ID())

	require.NoError(t, err)
	assert.Equal(t, atom.ID(), reloaded.CurrentAtom())
	assert.Equal(t, "writer-1", reloaded.LastWriter())
}

func TestStore_DanglingReferenceIsNotFound(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	ref, err := store.CreateSingleReference(ctx)
	require.NoError(t, err)
	atom, err := store.CreateAtom(ctx, "Order", "writer-1", valueobjects.AtomID{}, 1.0, entities.AtomStatusActive)
	require.NoError(t, err)
	_, err = store.UpdateSingleReference(ctx, ref.ID(), atom.ID(), "writer-1")
	require.NoError(t, err)

	// Simulate a lost atom record
	require.NoError(t, store.kv.Delete(ctx, atomKey(atom.ID())))

	_, err = store.ReadSingle(ctx, ref.ID())

	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestStore_CollectionMutationAndRead(t *testing.T) {
	// Arrange
	ctx := context.Background()
	store := newTestStore(t)
	ref, err := store.CreateCollectionReference(ctx)
	require.NoError(t, err)

	a1, err := store.CreateAtom(ctx, "Item", "writer-1", valueobjects.AtomID{}, "first", entities.AtomStatusActive)
	require.NoError(t, err)
	a2, err := store.CreateAtom(ctx, "Item", "writer-1", valueobjects.AtomID{}, "second", entities.AtomStatusActive)
	require.NoError(t, err)
	a3, err := store.CreateAtom(ctx, "Item", "writer-1", valueobjects.AtomID{}, "third", entities.AtomStatusActive)
	require.NoError(t, err)

	// Act
	_, err = store.MutateCollection(ctx, ref.ID(), entities.CollectionOp{Kind: entities.CollectionOpAdd, Atom: a1.ID()}, "writer-1")
	require.NoError(t, err)
	_, err = store.MutateCollection(ctx, ref.ID(), entities.CollectionOp{Kind: entities.CollectionOpAdd, Atom: a2.ID()}, "writer-1")
	require.NoError(t, err)
	order, err := store.MutateCollection(ctx, ref.ID(), entities.CollectionOp{Kind: entities.CollectionOpInsertAt, Index: 1, Atom: a3.ID()}, "writer-1")
	require.NoError(t, err)
	assert.Equal(t, []valueobjects.AtomID{a1.ID(), a3.ID(), a2.ID()}, order)

	contents, err := store.ReadCollection(ctx, ref.ID())

	// Assert: content resolves in collection order
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"first", "third", "second"}, contents)
}

func TestStore_CollectionOutOfRangeLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	ref, err := store.CreateCollectionReference(ctx)
	require.NoError(t, err)
	atom, err := store.CreateAtom(ctx, "Item", "writer-1", valueobjects.AtomID{}, "only", entities.AtomStatusActive)
	require.NoError(t, err)
	_, err = store.MutateCollection(ctx, ref.ID(), entities.CollectionOp{Kind: entities.CollectionOpAdd, Atom: atom.ID()}, "writer-1")
	require.NoError(t, err)

	_, err = store.MutateCollection(ctx, ref.ID(), entities.CollectionOp{Kind: entities.CollectionOpReplaceAt, Index: 7, Atom: atom.ID()}, "writer-1")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsOutOfRange(err))

	contents, err := store.ReadCollection(ctx, ref.ID())
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"only"}, contents)
}

func TestStore_RangeQueryAggregation(t *testing.T) {
	// Arrange: key "red" holds two atoms, key "blue" holds one
	ctx := context.Background()
	store := newTestStore(t)
	ref, err := store.CreateRangeReference(ctx)
	require.NoError(t, err)

	r1, err := store.CreateAtom(ctx, "Sample", "writer-1", valueobjects.AtomID{}, map[string]interface{}{"v": 1.0}, entities.AtomStatusActive)
	require.NoError(t, err)
	r2, err := store.CreateAtom(ctx, "Sample", "writer-1", valueobjects.AtomID{}, map[string]interface{}{"v": 2.0}, entities.AtomStatusActive)
	require.NoError(t, err)
	b1, err := store.CreateAtom(ctx, "Sample", "writer-1", valueobjects.AtomID{}, map[string]interface{}{"v": 3.0}, entities.AtomStatusActive)
	require.NoError(t, err)

	require.NoError(t, store.MutateRange(ctx, ref.ID(), "red", r1.ID(), "writer-1"))
	require.NoError(t, store.MutateRange(ctx, ref.ID(), "red", r2.ID(), "writer-1"))
	require.NoError(t, store.MutateRange(ctx, ref.ID(), "blue", b1.ID(), "writer-1"))

	// Act
	all, err := store.QueryRange(ctx, ref.ID(), RangeFilter{})

	// Assert: multi-atom keys aggregate to arrays, single-atom keys to bare content
	require.NoError(t, err)
	assert.Equal(t, 3, all.TotalCount)
	assert.Equal(t, []interface{}{
		map[string]interface{}{"v": 1.0},
		map[string]interface{}{"v": 2.0},
	}, all.Matches["red"])
	assert.Equal(t, map[string]interface{}{"v": 3.0}, all.Matches["blue"])
}

func TestStore_RangeQueryFilters(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	ref, err := store.CreateRangeReference(ctx)
	require.NoError(t, err)

	for _, key := range []string{"sensor-a", "sensor-b", "pump-a"} {
		atom, err := store.CreateAtom(ctx, "Reading", "writer-1", valueobjects.AtomID{}, key, entities.AtomStatusActive)
		require.NoError(t, err)
		require.NoError(t, store.MutateRange(ctx, ref.ID(), key, atom.ID(), "writer-1"))
	}

	byKey, err := store.QueryRange(ctx, ref.ID(), RangeFilter{Key: "sensor-a"})
	require.NoError(t, err)
	assert.Equal(t, 1, byKey.TotalCount)
	assert.Contains(t, byKey.Matches, "sensor-a")

	byPredicate, err := store.QueryRange(ctx, ref.ID(), RangeFilter{Predicate: func(key string) bool {
		return strings.HasPrefix(key, "sensor-")
	}})
	require.NoError(t, err)
	assert.Equal(t, 2, byPredicate.TotalCount)
	assert.NotContains(t, byPredicate.Matches, "pump-a")
}

func TestStore_RangeReplace(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	ref, err := store.CreateRangeReference(ctx)
	require.NoError(t, err)

	old, err := store.CreateAtom(ctx, "Sample", "writer-1", valueobjects.AtomID{}, "old", entities.AtomStatusActive)
	require.NoError(t, err)
	replacement, err := store.CreateAtom(ctx, "Sample", "writer-1", valueobjects.AtomID{}, "new", entities.AtomStatusActive)
	require.NoError(t, err)

	require.NoError(t, store.MutateRange(ctx, ref.ID(), "k", old.ID(), "writer-1"))
	require.NoError(t, store.ReplaceRange(ctx, ref.ID(), "k", replacement.ID(), "writer-1"))

	result, err := store.QueryRange(ctx, ref.ID(), RangeFilter{Key: "k"})
	require.NoError(t, err)
	assert.Equal(t, "new", result.Matches["k"])
}
