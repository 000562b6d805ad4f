package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/learnbill-backend/pkg/db/models"
	"github.com/angelmondragon/learnbill-backend/pkg/enums"
	"github.com/angelmondragon/learnbill-backend/pkg/outbox"
	"github.com/angelmondragon/learnbill-backend/pkg/outbox/payloads"
)

// EventDescriptor links a sync event to the entity, operation, and payload
// schema the accounting connector expects.
type EventDescriptor struct {
	Event          enums.SyncEvent
	EntityType     enums.SyncEntityType
	Operation      enums.SyncOperation
	PayloadFactory func() any
}

// ResolvedJob is the result of decoding a sync job row.
type ResolvedJob struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry maps each supported sync event to its descriptor.
type EventRegistry struct {
	entries map[enums.SyncEvent]EventDescriptor
}

// NonRetryableError signals the worker should dead-letter the job immediately.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// NewEventRegistry builds the registry of accounting sync events.
func NewEventRegistry() *EventRegistry {
	reg := &EventRegistry{entries: make(map[enums.SyncEvent]EventDescriptor)}
	reg.register(EventDescriptor{
		Event:          enums.SyncEventChargeCreated,
		EntityType:     enums.SyncEntityCharge,
		Operation:      enums.SyncOperationCreateInvoice,
		PayloadFactory: func() any { return &payloads.ChargeCreatedEvent{} },
	})
	reg.register(EventDescriptor{
		Event:          enums.SyncEventPaymentCaptured,
		EntityType:     enums.SyncEntityPayment,
		Operation:      enums.SyncOperationCreatePayment,
		PayloadFactory: func() any { return &payloads.PaymentCapturedEvent{} },
	})
	return reg
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.Event] = desc
}

// Descriptor returns the descriptor registered for event.
func (r *EventRegistry) Descriptor(event enums.SyncEvent) (EventDescriptor, bool) {
	desc, ok := r.entries[event]
	return desc, ok
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(job models.SyncJob) (*ResolvedJob, error) {
	if job.EntityID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("missing entity_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(job.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}

	desc, ok := r.entries[envelope.Event]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported sync event %q", envelope.Event))
	}
	if desc.EntityType != job.EntityType {
		return nil, NewNonRetryableError(fmt.Errorf("entity mismatch: expected %s got %s", desc.EntityType, job.EntityType))
	}
	if desc.Operation != job.Operation {
		return nil, NewNonRetryableError(fmt.Errorf("operation mismatch: expected %s got %s", desc.Operation, job.Operation))
	}

	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", envelope.Event))
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", envelope.Event, err))
	}

	return &ResolvedJob{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}
