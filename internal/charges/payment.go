package charges

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/learnbill-backend/pkg/db"
	"github.com/angelmondragon/learnbill-backend/pkg/db/models"
	"github.com/angelmondragon/learnbill-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/learnbill-backend/pkg/errors"
	"github.com/angelmondragon/learnbill-backend/pkg/outbox"
	"github.com/angelmondragon/learnbill-backend/pkg/outbox/payloads"
)

const paymentChargeConstraint = "learning_payments_charge_id_key"

// PaymentInput captures a pay-per-event charge with a stored payment method.
type PaymentInput struct {
	AgencyID        uuid.UUID
	ChargeID        uuid.UUID
	PaymentMethodID *uuid.UUID
	Actor           *outbox.ActorRef
}

// CapturePayment settles a PENDING charge through the placeholder payment
// intent flow, records the payment and queues PAYMENT_CAPTURED. Repeating the
// call returns the recorded payment.
func (s *Service) CapturePayment(ctx context.Context, input PaymentInput) (*models.Payment, error) {
	if input.AgencyID == uuid.Nil || input.ChargeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "agency id and charge id are required")
	}

	var payment *models.Payment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		charge, err := repo.FindByID(ctx, input.AgencyID, input.ChargeID, true)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load charge")
		}
		if charge == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "charge not found")
		}

		existing, err := repo.FindPaymentByCharge(ctx, charge.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup payment")
		}
		if existing != nil {
			payment = existing
			return nil
		}
		if charge.ChargeStatus != enums.ChargeStatusPending && charge.ChargeStatus != enums.ChargeStatusAuthorized {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "charge is not payable").
				WithDetails(map[string]any{"charge_status": charge.ChargeStatus})
		}

		now := s.now()
		row := &models.Payment{
			ID:              uuid.New(),
			AgencyID:        charge.AgencyID,
			ChargeID:        charge.ID,
			PaymentMethodID: input.PaymentMethodID,
			AmountCents:     charge.TotalCents,
			Currency:        charge.Currency,
			Status:          enums.PaymentStatusCaptured,
			IntentRef:       newIntentRef(),
			CapturedAt:      &now,
		}
		meta, err := json.Marshal(CoverageMetadata{
			Version:      metadataVersion,
			CoverageMode: enums.PaymentModePayPerEvent,
			CoveredAt:    now,
			PolicyRuleID: charge.BillingPolicyRuleID,
			PaymentID:    &row.ID,
		})
		if err != nil {
			return err
		}

		ok, err := repo.Transition(ctx, charge.ID,
			[]enums.ChargeStatus{enums.ChargeStatusPending, enums.ChargeStatusAuthorized},
			map[string]any{
				"charge_status": enums.ChargeStatusCaptured,
				"metadata":      json.RawMessage(meta),
				"captured_at":   now,
				"updated_at":    now,
			})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "capture charge")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "charge changed while paying")
		}

		if err := repo.CreatePayment(ctx, row); err != nil {
			if db.IsUniqueViolation(err, paymentChargeConstraint) {
				return pkgerrors.New(pkgerrors.CodeConflict, "charge already has a payment")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment")
		}

		if _, err := s.outbox.Enqueue(ctx, tx, outbox.JobRequest{
			AgencyID:   row.AgencyID,
			EntityType: enums.SyncEntityPayment,
			EntityID:   row.ID,
			Operation:  enums.SyncOperationCreatePayment,
			Event:      enums.SyncEventPaymentCaptured,
			Actor:      input.Actor,
			Data: payloads.PaymentCapturedEvent{
				PaymentID:       row.ID,
				ChargeID:        charge.ID,
				ClientID:        charge.ClientID,
				PaymentMethodID: row.PaymentMethodID,
				IntentRef:       row.IntentRef,
				AmountCents:     row.AmountCents,
				Currency:        row.Currency,
				CapturedAt:      now,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enqueue payment sync")
		}
		payment = row
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"agency_id":  payment.AgencyID.String(),
		"charge_id":  payment.ChargeID.String(),
		"payment_id": payment.ID.String(),
	}), "charge payment captured")
	return payment, nil
}

// newIntentRef stands in for a processor payment intent id.
func newIntentRef() string {
	return "pi_local_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
