package events

import (
	"time"

	"fluxstore/domain/core/valueobjects"
)

// FieldValueSet is raised after a field's reference has been repointed at a
// new atom. It is the single write-triggering event: the trigger engine
// subscribes to it and executes every transform that consumes the field.
type FieldValueSet struct {
	BaseEvent
	Field  valueobjects.FieldPath `json:"field"`
	Value  interface{}            `json:"value"`
	Source string                 `json:"source"`
}

// EventTag returns the subscription tag independent of instance state
func (FieldValueSet) EventTag() string { return EventTypeFieldValueSet }

// NewFieldValueSet creates a FieldValueSet event
func NewFieldValueSet(field valueobjects.FieldPath, value interface{}, source string) FieldValueSet {
	return FieldValueSet{
		BaseEvent: BaseEvent{
			AggregateID: field.String(),
			EventType:   EventTypeFieldValueSet,
			Timestamp:   time.Now(),
			Version:     1,
		},
		Field:  field,
		Value:  value,
		Source: source,
	}
}

// TransformExecuted is raised after a transform evaluation succeeded and its
// output reference was repointed. Absence of this event is how a failed
// execution is observed from the outside.
type TransformExecuted struct {
	BaseEvent
	TransformID valueobjects.TransformID `json:"transform_id"`
	Result      interface{}              `json:"result"`
}

// EventTag returns the subscription tag independent of instance state
func (TransformExecuted) EventTag() string { return EventTypeTransformExecuted }

// NewTransformExecuted creates a TransformExecuted event
func NewTransformExecuted(transformID valueobjects.TransformID, result interface{}) TransformExecuted {
	return TransformExecuted{
		BaseEvent: BaseEvent{
			AggregateID: transformID.String(),
			EventType:   EventTypeTransformExecuted,
			Timestamp:   time.Now(),
			Version:     1,
		},
		TransformID: transformID,
		Result:      result,
	}
}

// FieldValueRequested asks whoever serves reads to resolve a field's current
// value. CorrelationID is caller-assigned and echoed on the response so the
// caller can match the pair across the bus.
type FieldValueRequested struct {
	BaseEvent
	CorrelationID string                 `json:"correlation_id"`
	Field         valueobjects.FieldPath `json:"field"`
	Requester     string                 `json:"requester"`
}

// EventTag returns the subscription tag independent of instance state
func (FieldValueRequested) EventTag() string { return EventTypeFieldValueRequest }

// NewFieldValueRequested creates a FieldValueRequested event
func NewFieldValueRequested(correlationID string, field valueobjects.FieldPath, requester string) FieldValueRequested {
	return FieldValueRequested{
		BaseEvent: BaseEvent{
			AggregateID: field.String(),
			EventType:   EventTypeFieldValueRequest,
			Timestamp:   time.Now(),
			Version:     1,
		},
		CorrelationID: correlationID,
		Field:         field,
		Requester:     requester,
	}
}

// FieldValueResolved answers a FieldValueRequested with the same
// CorrelationID. Err carries a description when resolution failed.
type FieldValueResolved struct {
	BaseEvent
	CorrelationID string                 `json:"correlation_id"`
	Field         valueobjects.FieldPath `json:"field"`
	Value         interface{}            `json:"value"`
	Err           string                 `json:"error,omitempty"`
}

// EventTag returns the subscription tag independent of instance state
func (FieldValueResolved) EventTag() string { return EventTypeFieldValueResponse }

// NewFieldValueResolved creates a FieldValueResolved event
func NewFieldValueResolved(correlationID string, field valueobjects.FieldPath, value interface{}, errMsg string) FieldValueResolved {
	return FieldValueResolved{
		BaseEvent: BaseEvent{
			AggregateID: field.String(),
			EventType:   EventTypeFieldValueResponse,
			Timestamp:   time.Now(),
			Version:     1,
		},
		CorrelationID: correlationID,
		Field:         field,
		Value:         value,
		Err:           errMsg,
	}
}
