package entities

import (
	"fluxstore/domain/core/valueobjects"
	pkgerrors "fluxstore/pkg/errors"
)

// MissingInputKind selects what the trigger engine does when an input of a
// transform cannot be resolved from the value store at execution time.
type MissingInputKind string

const (
	// MissingInputFail aborts the execution with an error.
	MissingInputFail MissingInputKind = "fail"
	// MissingInputUseNull substitutes Null for the unresolved input.
	MissingInputUseNull MissingInputKind = "use_null"
	// MissingInputUseDefault substitutes a caller-supplied value.
	MissingInputUseDefault MissingInputKind = "use_default"
)

// MissingInputPolicy is chosen per registration, never inferred. Default is
// a per-path substitute value used only when Kind is MissingInputUseDefault.
type MissingInputPolicy struct {
	Kind    MissingInputKind
	Default interface{}
}

// FailOnMissingInput returns the strict policy
func FailOnMissingInput() MissingInputPolicy {
	return MissingInputPolicy{Kind: MissingInputFail}
}

// NullOnMissingInput returns the policy that binds Null for absent inputs
func NullOnMissingInput() MissingInputPolicy {
	return MissingInputPolicy{Kind: MissingInputUseNull}
}

// DefaultOnMissingInput returns the policy that binds the given value for
// absent inputs
func DefaultOnMissingInput(value interface{}) MissingInputPolicy {
	return MissingInputPolicy{Kind: MissingInputUseDefault, Default: value}
}

// TransformState tracks one transform's execution lifecycle
type TransformState string

const (
	TransformStateRegistered TransformState = "registered"
	TransformStateExecuting  TransformState = "executing"
	TransformStateSucceeded  TransformState = "succeeded"
	TransformStateFailed     TransformState = "failed"
)

// Transform is a named computation over fields: expression source text, an
// ordered set of declared input paths, and one output path. Immutable after
// registration; registering the same ID again replaces the definition.
type Transform struct {
	id             valueobjects.TransformID
	logic          string
	declaredInputs []valueobjects.FieldPath
	output         valueobjects.FieldPath
	missingInput   MissingInputPolicy
}

// NewTransform creates a transform definition. declaredInputs may be empty,
// in which case the registry infers inputs from the logic text.
func NewTransform(id valueobjects.TransformID, logic string, declaredInputs []valueobjects.FieldPath, output valueobjects.FieldPath, missing MissingInputPolicy) (*Transform, error) {
	if id == "" {
		return nil, pkgerrors.NewValidation("transform ID cannot be empty")
	}
	if logic == "" {
		return nil, pkgerrors.NewValidation("transform logic cannot be empty")
	}
	if output.IsZero() {
		return nil, pkgerrors.NewValidation("transform output path cannot be empty")
	}
	if missing.Kind == "" {
		missing = NullOnMissingInput()
	}

	inputs := make([]valueobjects.FieldPath, len(declaredInputs))
	copy(inputs, declaredInputs)

	return &Transform{
		id:             id,
		logic:          logic,
		declaredInputs: inputs,
		output:         output,
		missingInput:   missing,
	}, nil
}

// ID returns the transform's identifier
func (t *Transform) ID() valueobjects.TransformID { return t.id }

// Logic returns the expression source text
func (t *Transform) Logic() string { return t.logic }

// DeclaredInputs returns a copy of the declared input paths
func (t *Transform) DeclaredInputs() []valueobjects.FieldPath {
	out := make([]valueobjects.FieldPath, len(t.declaredInputs))
	copy(out, t.declaredInputs)
	return out
}

// Output returns the output field path
func (t *Transform) Output() valueobjects.FieldPath { return t.output }

// MissingInput returns the policy applied when an input cannot be resolved
func (t *Transform) MissingInput() MissingInputPolicy { return t.missingInput }
