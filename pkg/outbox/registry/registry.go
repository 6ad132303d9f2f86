// Package registry maps outbox event types to their topics and payload
// schemas for the publisher binary.
package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/budget-france/chorus-backend/pkg/config"
	"github.com/budget-france/chorus-backend/pkg/db/models"
	"github.com/budget-france/chorus-backend/pkg/enums"
	"github.com/budget-france/chorus-backend/pkg/outbox"
	"github.com/budget-france/chorus-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate/topic/payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() interface{}
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewNonRetryableError wraps err as terminal for the publisher.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// NewEventRegistry builds the registry with the configured topic names.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.IngestTopic == "" {
		return nil, fmt.Errorf("ingest topic is required")
	}
	if cfg.DomainTopic == "" {
		return nil, fmt.Errorf("domain topic is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}

	for _, desc := range []EventDescriptor{
		{
			EventType:      enums.EventChunkDispatchAE,
			AggregateType:  enums.AggregateImportChunk,
			Topic:          cfg.IngestTopic,
			PayloadFactory: func() interface{} { return &payloads.ChunkDispatched{} },
		},
		{
			EventType:      enums.EventChunkDispatchCP,
			AggregateType:  enums.AggregateImportChunk,
			Topic:          cfg.IngestTopic,
			PayloadFactory: func() interface{} { return &payloads.ChunkDispatched{} },
		},
		{
			EventType:      enums.EventChunkRetryScheduled,
			AggregateType:  enums.AggregateImportChunk,
			Topic:          cfg.IngestTopic,
			PayloadFactory: func() interface{} { return &payloads.ChunkRetryScheduled{} },
		},
		{
			EventType:      enums.EventImportTaskCompleted,
			AggregateType:  enums.AggregateImportTask,
			Topic:          cfg.DomainTopic,
			PayloadFactory: func() interface{} { return &payloads.ImportTaskCompleted{} },
		},
		{
			EventType:      enums.EventReconciliationComplete,
			AggregateType:  enums.AggregateDemarche,
			Topic:          cfg.DomainTopic,
			PayloadFactory: func() interface{} { return &payloads.ReconciliationCompleted{} },
		},
	} {
		reg.register(desc)
	}

	return reg, nil
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.EventType] = desc
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == "" {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decoding envelope: %w", err))
	}

	payload := desc.PayloadFactory()
	decoder := json.NewDecoder(bytes.NewReader(envelope.Data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decoding %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}
