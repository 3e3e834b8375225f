package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluxstore/domain/core/valueobjects"
	pkgerrors "fluxstore/pkg/errors"
)

func TestNewAtom_FirstVersionHasNoPrevious(t *testing.T) {
	// Act
	atom, err := NewAtom("Order", "writer-1", valueobjects.AtomID{}, map[string]interface{}{"total": 10.0}, AtomStatusActive)

	// Assert
	require.NoError(t, err)
	assert.False(t, atom.HasPrevious())
	assert.Equal(t, "Order", atom.SchemaName())
	assert.Equal(t, "writer-1", atom.Author())
	assert.Equal(t, AtomStatusActive, atom.Status())
}

func TestNewAtom_LinksToPreviousVersion(t *testing.T) {
	first, err := NewAtom("Order", "writer-1", valueobjects.AtomID{}, 1.0, AtomStatusActive)
	require.NoError(t, err)

	second, err := NewAtom("Order", "writer-1", first.ID(), 2.0, AtomStatusActive)

	require.NoError(t, err)
	assert.True(t, second.HasPrevious())
	assert.Equal(t, first.ID(), second.Previous())
}

func TestNewAtom_Validation(t *testing.T) {
	_, err := NewAtom("", "writer-1", valueobjects.AtomID{}, nil, AtomStatusActive)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))

	_, err = NewAtom("Order", "", valueobjects.AtomID{}, nil, AtomStatusActive)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
}
