package registry

import (
	"fmt"
	"sort"
	"sync"

	"fluxstore/domain/core/valueobjects"
)

// DependencyIndex is the bidirectional field/transform mapping. All four
// maps mutate together under one lock so the forward and inverse sides
// can never drift apart; lookups vastly outnumber registrations, so reads
// take the read side.
type DependencyIndex struct {
	mu sync.RWMutex

	fieldToTransforms map[string]map[valueobjects.TransformID]bool
	transformToFields map[valueobjects.TransformID]map[string]bool
	refToTransforms   map[string]map[valueobjects.TransformID]bool
	transformToRefs   map[valueobjects.TransformID]map[string]bool
}

// NewDependencyIndex creates an empty index
func NewDependencyIndex() *DependencyIndex {
	return &DependencyIndex{
		fieldToTransforms: make(map[string]map[valueobjects.TransformID]bool),
		transformToFields: make(map[valueobjects.TransformID]map[string]bool),
		refToTransforms:   make(map[string]map[valueobjects.TransformID]bool),
		transformToRefs:   make(map[valueobjects.TransformID]map[string]bool),
	}
}

// Replace atomically swaps a transform's entries: the old ones disappear
// and the new ones appear inside the same critical section, so no reader
// ever sees stale and new entries together.
func (idx *DependencyIndex) Replace(transformID valueobjects.TransformID, fields []valueobjects.FieldPath, refs []valueobjects.ReferenceID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.removeLocked(transformID)

	for _, field := range fields {
		key := field.String()
		if idx.fieldToTransforms[key] == nil {
			idx.fieldToTransforms[key] = make(map[valueobjects.TransformID]bool)
		}
		idx.fieldToTransforms[key][transformID] = true

		if idx.transformToFields[transformID] == nil {
			idx.transformToFields[transformID] = make(map[string]bool)
		}
		idx.transformToFields[transformID][key] = true
	}

	for _, ref := range refs {
		key := ref.String()
		if idx.refToTransforms[key] == nil {
			idx.refToTransforms[key] = make(map[valueobjects.TransformID]bool)
		}
		idx.refToTransforms[key][transformID] = true

		if idx.transformToRefs[transformID] == nil {
			idx.transformToRefs[transformID] = make(map[string]bool)
		}
		idx.transformToRefs[transformID][key] = true
	}
}

// Remove deletes all four sides of a transform's entries
func (idx *DependencyIndex) Remove(transformID valueobjects.TransformID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(transformID)
}

func (idx *DependencyIndex) removeLocked(transformID valueobjects.TransformID) {
	for field := range idx.transformToFields[transformID] {
		delete(idx.fieldToTransforms[field], transformID)
		if len(idx.fieldToTransforms[field]) == 0 {
			delete(idx.fieldToTransforms, field)
		}
	}
	delete(idx.transformToFields, transformID)

	for ref := range idx.transformToRefs[transformID] {
		delete(idx.refToTransforms[ref], transformID)
		if len(idx.refToTransforms[ref]) == 0 {
			delete(idx.refToTransforms, ref)
		}
	}
	delete(idx.transformToRefs, transformID)
}

// TransformsForField returns the transforms consuming a field, sorted for
// deterministic trigger order
func (idx *DependencyIndex) TransformsForField(field valueobjects.FieldPath) []valueobjects.TransformID {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	ids := make([]valueobjects.TransformID, 0, len(idx.fieldToTransforms[field.String()]))
	for id := range idx.fieldToTransforms[field.String()] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// FieldsForTransform returns the field paths a transform consumes
func (idx *DependencyIndex) FieldsForTransform(transformID valueobjects.TransformID) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	fields := make([]string, 0, len(idx.transformToFields[transformID]))
	for field := range idx.transformToFields[transformID] {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// TransformsForReference returns the transforms reading through a reference
func (idx *DependencyIndex) TransformsForReference(refID valueobjects.ReferenceID) []valueobjects.TransformID {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	ids := make([]valueobjects.TransformID, 0, len(idx.refToTransforms[refID.String()]))
	for id := range idx.refToTransforms[refID.String()] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CheckConsistency walks all four maps and reports one-sided entries.
// It never repairs: a violation means a bug elsewhere that silent repair
// would hide.
func (idx *DependencyIndex) CheckConsistency() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var violations []string

	for field, transforms := range idx.fieldToTransforms {
		for id := range transforms {
			if !idx.transformToFields[id][field] {
				violations = append(violations, fmt.Sprintf("field %s lists transform %s, but the inverse entry is missing", field, id))
			}
		}
	}
	for id, fields := range idx.transformToFields {
		for field := range fields {
			if !idx.fieldToTransforms[field][id] {
				violations = append(violations, fmt.Sprintf("transform %s lists field %s, but the inverse entry is missing", id, field))
			}
		}
	}
	for ref, transforms := range idx.refToTransforms {
		for id := range transforms {
			if !idx.transformToRefs[id][ref] {
				violations = append(violations, fmt.Sprintf("reference %s lists transform %s, but the inverse entry is missing", ref, id))
			}
		}
	}
	for id, refs := range idx.transformToRefs {
		for ref := range refs {
			if !idx.refToTransforms[ref][id] {
				violations = append(violations, fmt.Sprintf("transform %s lists reference %s, but the inverse entry is missing", id, ref))
			}
		}
	}

	sort.Strings(violations)
	return violations
}
