package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/learnbill-backend/pkg/db/models"
	"github.com/angelmondragon/learnbill-backend/pkg/enums"
	"github.com/angelmondragon/learnbill-backend/pkg/outbox"
	"github.com/angelmondragon/learnbill-backend/pkg/outbox/payloads"
)

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := NewEventRegistry()

	chargeID := uuid.New()
	data := mustMarshal(t, payloads.ChargeCreatedEvent{
		ChargeID:     chargeID,
		ChargeStatus: enums.ChargeStatusCaptured,
		CoverageMode: enums.PaymentModeToken,
		AmountCents:  4500,
		TotalCents:   0,
		Currency:     "usd",
	})

	job := models.SyncJob{
		EntityType: enums.SyncEntityCharge,
		EntityID:   chargeID,
		Operation:  enums.SyncOperationCreateInvoice,
		Payload:    mustEnvelope(t, enums.SyncEventChargeCreated, data),
	}

	resolved, err := reg.Resolve(job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload, ok := resolved.Payload.(*payloads.ChargeCreatedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.ChargeID != chargeID || payload.AmountCents != 4500 {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if resolved.Envelope.EventID == "" {
		t.Fatalf("envelope missing event id")
	}
}

func TestEventRegistryResolveRejections(t *testing.T) {
	reg := NewEventRegistry()
	valid := mustMarshal(t, payloads.PaymentCapturedEvent{PaymentID: uuid.New()})

	tests := []struct {
		name string
		job  models.SyncJob
	}{
		{
			name: "unknown event",
			job: models.SyncJob{
				EntityType: enums.SyncEntityPayment,
				EntityID:   uuid.New(),
				Operation:  enums.SyncOperationCreatePayment,
				Payload:    mustEnvelope(t, "CHARGE_VOIDED", valid),
			},
		},
		{
			name: "entity mismatch",
			job: models.SyncJob{
				EntityType: enums.SyncEntityCharge,
				EntityID:   uuid.New(),
				Operation:  enums.SyncOperationCreatePayment,
				Payload:    mustEnvelope(t, enums.SyncEventPaymentCaptured, valid),
			},
		},
		{
			name: "operation mismatch",
			job: models.SyncJob{
				EntityType: enums.SyncEntityPayment,
				EntityID:   uuid.New(),
				Operation:  enums.SyncOperationCreateInvoice,
				Payload:    mustEnvelope(t, enums.SyncEventPaymentCaptured, valid),
			},
		},
		{
			name: "missing entity id",
			job: models.SyncJob{
				EntityType: enums.SyncEntityPayment,
				Operation:  enums.SyncOperationCreatePayment,
				Payload:    mustEnvelope(t, enums.SyncEventPaymentCaptured, valid),
			},
		},
		{
			name: "null payload",
			job: models.SyncJob{
				EntityType: enums.SyncEntityPayment,
				EntityID:   uuid.New(),
				Operation:  enums.SyncOperationCreatePayment,
				Payload:    mustEnvelope(t, enums.SyncEventPaymentCaptured, []byte("null")),
			},
		},
		{
			name: "garbage envelope",
			job: models.SyncJob{
				EntityType: enums.SyncEntityPayment,
				EntityID:   uuid.New(),
				Operation:  enums.SyncOperationCreatePayment,
				Payload:    json.RawMessage(`{not json`),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Resolve(tt.job)
			if err == nil {
				t.Fatalf("expected error")
			}
			var nonRetry NonRetryableError
			if !errors.As(err, &nonRetry) {
				t.Fatalf("expected non-retryable error, got %T", err)
			}
		})
	}
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func mustEnvelope(t *testing.T, event enums.SyncEvent, payload []byte) json.RawMessage {
	t.Helper()
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		Event:      event,
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return data
}
