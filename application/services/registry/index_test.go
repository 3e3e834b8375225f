package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluxstore/domain/core/valueobjects"
)

func mustPath(t *testing.T, schema, field string) valueobjects.FieldPath {
	t.Helper()
	path, err := valueobjects.NewFieldPath(schema, field)
	require.NoError(t, err)
	return path
}

func TestDependencyIndex_ReplaceAndLookup(t *testing.T) {
	// Arrange
	idx := NewDependencyIndex()
	ax := mustPath(t, "A", "x")
	ay := mustPath(t, "A", "y")
	ref := valueobjects.NewReferenceID()

	// Act
	idx.Replace("t-1", []valueobjects.FieldPath{ax, ay}, []valueobjects.ReferenceID{ref})

	// Assert: both directions answer
	assert.Equal(t, []valueobjects.TransformID{"t-1"}, idx.TransformsForField(ax))
	assert.Equal(t, []string{"A.x", "A.y"}, idx.FieldsForTransform("t-1"))
	assert.Equal(t, []valueobjects.TransformID{"t-1"}, idx.TransformsForReference(ref))
	assert.Empty(t, idx.CheckConsistency())
}

func TestDependencyIndex_MultipleTransformsPerField(t *testing.T) {
	idx := NewDependencyIndex()
	shared := mustPath(t, "A", "x")

	idx.Replace("t-b", []valueobjects.FieldPath{shared}, nil)
	idx.Replace("t-a", []valueobjects.FieldPath{shared}, nil)

	// Sorted for deterministic trigger order
	assert.Equal(t, []valueobjects.TransformID{"t-a", "t-b"}, idx.TransformsForField(shared))
}

func TestDependencyIndex_ReplaceSwapsEntriesAtomically(t *testing.T) {
	idx := NewDependencyIndex()
	old := mustPath(t, "A", "x")
	updated := mustPath(t, "B", "y")
	idx.Replace("t-1", []valueobjects.FieldPath{old}, nil)

	idx.Replace("t-1", []valueobjects.FieldPath{updated}, nil)

	assert.Empty(t, idx.TransformsForField(old))
	assert.Equal(t, []valueobjects.TransformID{"t-1"}, idx.TransformsForField(updated))
	assert.Empty(t, idx.CheckConsistency())
}

func TestDependencyIndex_RemoveClearsAllSides(t *testing.T) {
	idx := NewDependencyIndex()
	field := mustPath(t, "A", "x")
	ref := valueobjects.NewReferenceID()
	idx.Replace("t-1", []valueobjects.FieldPath{field}, []valueobjects.ReferenceID{ref})

	idx.Remove("t-1")

	assert.Empty(t, idx.TransformsForField(field))
	assert.Empty(t, idx.FieldsForTransform("t-1"))
	assert.Empty(t, idx.TransformsForReference(ref))
	assert.Empty(t, idx.CheckConsistency())
}

func TestDependencyIndex_CheckConsistencyReportsWithoutRepairing(t *testing.T) {
	// Arrange: corrupt one side directly
	idx := NewDependencyIndex()
	field := mustPath(t, "A", "x")
	idx.Replace("t-1", []valueobjects.FieldPath{field}, nil)
	idx.mu.Lock()
	delete(idx.transformToFields, "t-1")
	idx.mu.Unlock()

	// Act
	first := idx.CheckConsistency()
	second := idx.CheckConsistency()

	// Assert: the violation is reported on every call, never repaired
	require.Len(t, first, 1)
	assert.Contains(t, first[0], "t-1")
	assert.Equal(t, first, second)
}
