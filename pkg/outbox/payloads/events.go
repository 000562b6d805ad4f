package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/learnbill-backend/pkg/enums"
)

// ChargeCreatedEvent asks the accounting connector to create an invoice for a
// session charge. Covered charges are sent with a zero total for reconciliation.
type ChargeCreatedEvent struct {
	ChargeID      uuid.UUID          `json:"charge_id"`
	SessionID     uuid.UUID          `json:"session_id"`
	ClientID      uuid.UUID          `json:"client_id"`
	ChargeStatus  enums.ChargeStatus `json:"charge_status"`
	CoverageMode  enums.PaymentMode  `json:"coverage_mode"`
	AmountCents   int64              `json:"amount_cents"`
	TaxCents      int64              `json:"tax_cents"`
	DiscountCents int64              `json:"discount_cents"`
	TotalCents    int64              `json:"total_cents"`
	Currency      string             `json:"currency"`
	ServiceCode   *string            `json:"service_code,omitempty"`
	Units         *int               `json:"units,omitempty"`
	ServiceDate   *string            `json:"service_date,omitempty"`
}

// PaymentCapturedEvent asks the connector to record a payment against the
// charge's invoice.
type PaymentCapturedEvent struct {
	PaymentID       uuid.UUID  `json:"payment_id"`
	ChargeID        uuid.UUID  `json:"charge_id"`
	ClientID        uuid.UUID  `json:"client_id"`
	PaymentMethodID *uuid.UUID `json:"payment_method_id,omitempty"`
	IntentRef       string     `json:"intent_ref"`
	AmountCents     int64      `json:"amount_cents"`
	Currency        string     `json:"currency"`
	CapturedAt      time.Time  `json:"captured_at"`
}
