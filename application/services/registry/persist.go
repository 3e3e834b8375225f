package registry

import (
	"encoding/json"

	"fluxstore/domain/core/entities"
	"fluxstore/domain/core/valueobjects"
	pkgerrors "fluxstore/pkg/errors"
)

const transformKeyPrefix = "transform/"

type missingInputRecord struct {
	Kind    string      `json:"kind"`
	Default interface{} `json:"default,omitempty"`
}

type transformRecord struct {
	ID             string             `json:"id"`
	Logic          string             `json:"logic"`
	DeclaredInputs []string           `json:"declared_inputs,omitempty"`
	Output         string             `json:"output"`
	MissingInput   missingInputRecord `json:"missing_input"`
}

func encodeTransform(t *entities.Transform) ([]byte, error) {
	record := transformRecord{
		ID:     t.ID().String(),
		Logic:  t.Logic(),
		Output: t.Output().String(),
		MissingInput: missingInputRecord{
			Kind:    string(t.MissingInput().Kind),
			Default: t.MissingInput().Default,
		},
	}
	for _, input := range t.DeclaredInputs() {
		record.DeclaredInputs = append(record.DeclaredInputs, input.String())
	}
	return json.Marshal(record)
}

func decodeTransform(data []byte) (*entities.Transform, error) {
	var record transformRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, pkgerrors.NewInternal("corrupt transform record", err)
	}

	output, err := valueobjects.ParseFieldPath(record.Output)
	if err != nil {
		return nil, err
	}
	inputs := make([]valueobjects.FieldPath, 0, len(record.DeclaredInputs))
	for _, raw := range record.DeclaredInputs {
		path, err := valueobjects.ParseFieldPath(raw)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, path)
	}

	policy := entities.MissingInputPolicy{
		Kind:    entities.MissingInputKind(record.MissingInput.Kind),
		Default: record.MissingInput.Default,
	}
	return entities.NewTransform(valueobjects.TransformID(record.ID), record.Logic, inputs, output, policy)
}
