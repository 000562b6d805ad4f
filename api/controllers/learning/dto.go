package learning

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/learnbill-backend/internal/coverage"
	"github.com/angelmondragon/learnbill-backend/pkg/db/models"
	"github.com/angelmondragon/learnbill-backend/pkg/enums"
)

type sessionResponse struct {
	ID                 uuid.UUID           `json:"id"`
	OfficeEventID      *uuid.UUID          `json:"office_event_id,omitempty"`
	ClientID           uuid.UUID           `json:"client_id"`
	GuardianUserID     *uuid.UUID          `json:"guardian_user_id,omitempty"`
	AssignedProviderID *uuid.UUID          `json:"assigned_provider_id,omitempty"`
	LearningServiceID  *uuid.UUID          `json:"learning_service_id,omitempty"`
	ServiceCode        *string             `json:"service_code,omitempty"`
	CredentialTier     string              `json:"credential_tier,omitempty"`
	PaymentMode        enums.PaymentMode   `json:"payment_mode"`
	Status             enums.SessionStatus `json:"status"`
	ScheduledStartAt   string              `json:"scheduled_start_at"`
	ScheduledEndAt     string              `json:"scheduled_end_at"`
	Timezone           string              `json:"timezone"`
	StartAtUTC         time.Time           `json:"start_at_utc"`
	EndAtUTC           time.Time           `json:"end_at_utc"`
}

func newSessionResponse(s *models.ProgramSession) *sessionResponse {
	if s == nil {
		return nil
	}
	return &sessionResponse{
		ID:                 s.ID,
		OfficeEventID:      s.OfficeEventID,
		ClientID:           s.ClientID,
		GuardianUserID:     s.GuardianUserID,
		AssignedProviderID: s.AssignedProviderID,
		LearningServiceID:  s.LearningServiceID,
		ServiceCode:        s.ServiceCode,
		CredentialTier:     s.CredentialTier,
		PaymentMode:        s.PaymentMode,
		Status:             s.Status,
		ScheduledStartAt:   s.ScheduledStartAt,
		ScheduledEndAt:     s.ScheduledEndAt,
		Timezone:           s.SourceTimezone,
		StartAtUTC:         s.StartAtUTC,
		EndAtUTC:           s.EndAtUTC,
	}
}

type chargeResponse struct {
	ID            uuid.UUID          `json:"id"`
	SessionID     uuid.UUID          `json:"session_id"`
	ClientID      uuid.UUID          `json:"client_id"`
	AmountCents   int64              `json:"amount_cents"`
	TaxCents      int64              `json:"tax_cents"`
	DiscountCents int64              `json:"discount_cents"`
	TotalCents    int64              `json:"total_cents"`
	Currency      string             `json:"currency"`
	Status        enums.ChargeStatus `json:"status"`
	PaymentMode   enums.PaymentMode  `json:"payment_mode"`
	ServiceCode   *string            `json:"service_code,omitempty"`
	Units         *int               `json:"units,omitempty"`
	ServiceDate   *string            `json:"service_date,omitempty"`
	Metadata      json.RawMessage    `json:"metadata,omitempty"`
	CapturedAt    *time.Time         `json:"captured_at,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
}

func newChargeResponse(c *models.SessionCharge) *chargeResponse {
	if c == nil {
		return nil
	}
	resp := &chargeResponse{
		ID:            c.ID,
		SessionID:     c.SessionID,
		ClientID:      c.ClientID,
		AmountCents:   c.AmountCents,
		TaxCents:      c.TaxCents,
		DiscountCents: c.DiscountCents,
		TotalCents:    c.TotalCents,
		Currency:      c.Currency,
		Status:        c.ChargeStatus,
		PaymentMode:   c.PaymentMode,
		ServiceCode:   c.ServiceCode,
		Units:         c.Units,
		Metadata:      c.Metadata,
		CapturedAt:    c.CapturedAt,
		CreatedAt:     c.CreatedAt,
	}
	if c.ServiceDate != nil {
		day := c.ServiceDate.String()
		resp.ServiceDate = &day
	}
	return resp
}

func newChargeResponses(list []models.SessionCharge) []chargeResponse {
	out := make([]chargeResponse, 0, len(list))
	for i := range list {
		out = append(out, *newChargeResponse(&list[i]))
	}
	return out
}

type coverageResponse struct {
	Mode      enums.PaymentMode `json:"mode"`
	Captured  bool              `json:"captured"`
	Fallback  bool              `json:"fallback"`
	Reason    string            `json:"reason,omitempty"`
	SyncJobID *uuid.UUID        `json:"sync_job_id,omitempty"`
	Charge    *chargeResponse   `json:"charge,omitempty"`
}

func newCoverageResponse(r *coverage.Result) *coverageResponse {
	if r == nil {
		return nil
	}
	resp := &coverageResponse{
		Mode:     r.Mode,
		Captured: r.Captured,
		Fallback: r.Fallback,
		Reason:   string(r.Reason),
		Charge:   newChargeResponse(r.Charge),
	}
	if r.SyncJobID != uuid.Nil {
		id := r.SyncJobID
		resp.SyncJobID = &id
	}
	return resp
}

type paymentResponse struct {
	ID              uuid.UUID           `json:"id"`
	ChargeID        uuid.UUID           `json:"charge_id"`
	PaymentMethodID *uuid.UUID          `json:"payment_method_id,omitempty"`
	AmountCents     int64               `json:"amount_cents"`
	Currency        string              `json:"currency"`
	Status          enums.PaymentStatus `json:"status"`
	IntentRef       string              `json:"intent_ref"`
	CapturedAt      *time.Time          `json:"captured_at,omitempty"`
}

func newPaymentResponse(p *models.Payment) paymentResponse {
	return paymentResponse{
		ID:              p.ID,
		ChargeID:        p.ChargeID,
		PaymentMethodID: p.PaymentMethodID,
		AmountCents:     p.AmountCents,
		Currency:        p.Currency,
		Status:          p.Status,
		IntentRef:       p.IntentRef,
		CapturedAt:      p.CapturedAt,
	}
}

type ledgerEntryResponse struct {
	ID             uuid.UUID             `json:"id"`
	TokenType      enums.TokenType       `json:"token_type"`
	Direction      enums.LedgerDirection `json:"direction"`
	Quantity       int64                 `json:"quantity"`
	Reason         enums.LedgerReason    `json:"reason"`
	SubscriptionID *uuid.UUID            `json:"subscription_id,omitempty"`
	SessionID      *uuid.UUID            `json:"session_id,omitempty"`
	ActorUserID    *uuid.UUID            `json:"actor_user_id,omitempty"`
	EffectiveAt    time.Time             `json:"effective_at"`
	ExpiresAt      *time.Time            `json:"expires_at,omitempty"`
}

func newLedgerEntryResponse(e *models.TokenLedgerEntry) ledgerEntryResponse {
	return ledgerEntryResponse{
		ID:             e.ID,
		TokenType:      e.TokenType,
		Direction:      e.Direction,
		Quantity:       e.Quantity,
		Reason:         e.ReasonCode,
		SubscriptionID: e.SubscriptionID,
		SessionID:      e.SessionID,
		ActorUserID:    e.ActorUserID,
		EffectiveAt:    e.EffectiveAt,
		ExpiresAt:      e.ExpiresAt,
	}
}

type planResponse struct {
	ID                       uuid.UUID `json:"id"`
	Name                     string    `json:"name"`
	IncludedIndividualTokens int64     `json:"included_individual_tokens"`
	IncludedGroupTokens      int64     `json:"included_group_tokens"`
	PeriodDays               int       `json:"period_days"`
	PriceCents               int64     `json:"price_cents"`
	Currency                 string    `json:"currency"`
	Active                   bool      `json:"active"`
}

func newPlanResponse(p *models.SubscriptionPlan) planResponse {
	return planResponse{
		ID:                       p.ID,
		Name:                     p.Name,
		IncludedIndividualTokens: p.IncludedIndividualTokens,
		IncludedGroupTokens:      p.IncludedGroupTokens,
		PeriodDays:               p.PeriodDays,
		PriceCents:               p.PriceCents,
		Currency:                 p.Currency,
		Active:                   p.Active,
	}
}

type subscriptionResponse struct {
	ID                 uuid.UUID                `json:"id"`
	PlanID             uuid.UUID                `json:"plan_id"`
	ClientID           uuid.UUID                `json:"client_id"`
	GuardianUserID     *uuid.UUID               `json:"guardian_user_id,omitempty"`
	Status             enums.SubscriptionStatus `json:"status"`
	CurrentPeriodStart time.Time                `json:"current_period_start"`
	CurrentPeriodEnd   time.Time                `json:"current_period_end"`
	AutoRenew          bool                     `json:"auto_renew"`
	CancelledAt        *time.Time               `json:"cancelled_at,omitempty"`
}

func newSubscriptionResponse(s *models.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:                 s.ID,
		PlanID:             s.PlanID,
		ClientID:           s.ClientID,
		GuardianUserID:     s.GuardianUserID,
		Status:             s.Status,
		CurrentPeriodStart: s.CurrentPeriodStart,
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
		AutoRenew:          s.AutoRenew,
		CancelledAt:        s.CancelledAt,
	}
}

type paymentMethodResponse struct {
	ID        uuid.UUID               `json:"id"`
	ClientID  uuid.UUID               `json:"client_id"`
	Type      enums.PaymentMethodType `json:"type"`
	Brand     *string                 `json:"brand,omitempty"`
	Last4     *string                 `json:"last4,omitempty"`
	ExpMonth  *int                    `json:"exp_month,omitempty"`
	ExpYear   *int                    `json:"exp_year,omitempty"`
	IsDefault bool                    `json:"is_default"`
}

func newPaymentMethodResponse(m *models.PaymentMethod) paymentMethodResponse {
	return paymentMethodResponse{
		ID:        m.ID,
		ClientID:  m.ClientID,
		Type:      m.Type,
		Brand:     m.CardBrand,
		Last4:     m.CardLast4,
		ExpMonth:  m.CardExpMonth,
		ExpYear:   m.CardExpYear,
		IsDefault: m.IsDefault,
	}
}
