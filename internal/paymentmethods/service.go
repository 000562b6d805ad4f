// Package paymentmethods keeps the tokenized cards guardians use to pay
// pay-per-event charges. Tokens are opaque references; no card network is
// contacted.
package paymentmethods

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/learnbill-backend/pkg/db"
	"github.com/angelmondragon/learnbill-backend/pkg/db/models"
	"github.com/angelmondragon/learnbill-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/learnbill-backend/pkg/errors"
	"github.com/angelmondragon/learnbill-backend/pkg/logger"
)

var last4Pattern = regexp.MustCompile(`^[0-9]{4}$`)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups dependencies for the payment method service.
type ServiceParams struct {
	Repo   Repository
	TX     txRunner
	Logger *logger.Logger
	Clock  func() time.Time
}

type Service struct {
	repo Repository
	tx   txRunner
	logg *logger.Logger
	now  func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Repo == nil:
		return nil, errors.New("repo is required")
	case params.TX == nil:
		return nil, errors.New("tx runner is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Service{repo: params.Repo, tx: params.TX, logg: params.Logger, now: clock}, nil
}

// AddInput describes a tokenized card to keep on file.
type AddInput struct {
	AgencyID  uuid.UUID
	ClientID  uuid.UUID
	Type      enums.PaymentMethodType
	TokenRef  string
	Brand     string
	Last4     string
	ExpMonth  int
	ExpYear   int
	IsDefault bool
}

// Add stores a payment method. The client's first method always becomes the
// default; later ones only when asked.
func (s *Service) Add(ctx context.Context, input AddInput) (*models.PaymentMethod, error) {
	method, err := s.build(input)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindDefault(ctx, input.AgencyID, input.ClientID)
		if err != nil {
			return err
		}
		method.IsDefault = current == nil || input.IsDefault
		if method.IsDefault && current != nil {
			if err := repo.ClearDefault(ctx, input.AgencyID, input.ClientID); err != nil {
				return err
			}
		}
		return repo.Create(ctx, method)
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment method already stored")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist payment method")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"agency_id":         method.AgencyID.String(),
		"client_id":         method.ClientID.String(),
		"payment_method_id": method.ID.String(),
		"is_default":        method.IsDefault,
	}), "payment method stored")
	return method, nil
}

func (s *Service) build(input AddInput) (*models.PaymentMethod, error) {
	if input.AgencyID == uuid.Nil || input.ClientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "agency id and client id are required")
	}
	token := strings.TrimSpace(input.TokenRef)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "token reference is required")
	}
	kind := input.Type
	if kind == "" {
		kind = enums.PaymentMethodTypeCard
	}
	if !kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method type")
	}

	method := &models.PaymentMethod{
		ID:       uuid.New(),
		AgencyID: input.AgencyID,
		ClientID: input.ClientID,
		Type:     kind,
		TokenRef: token,
	}
	if !kind.HasExpiry() {
		return method, nil
	}

	if !last4Pattern.MatchString(input.Last4) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card last4 must be four digits")
	}
	if input.ExpMonth < 1 || input.ExpMonth > 12 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card expiry month is invalid")
	}
	now := s.now()
	if input.ExpYear < now.Year() || (input.ExpYear == now.Year() && input.ExpMonth < int(now.Month())) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card is expired")
	}
	if brand := strings.ToLower(strings.TrimSpace(input.Brand)); brand != "" {
		method.CardBrand = &brand
	}
	last4, month, year := input.Last4, input.ExpMonth, input.ExpYear
	method.CardLast4 = &last4
	method.CardExpMonth = &month
	method.CardExpYear = &year
	return method, nil
}

// List returns a client's stored methods, default first.
func (s *Service) List(ctx context.Context, agencyID, clientID uuid.UUID) ([]models.PaymentMethod, error) {
	methods, err := s.repo.ListByClient(ctx, agencyID, clientID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payment methods")
	}
	return methods, nil
}

// Default returns the client's default method or nil.
func (s *Service) Default(ctx context.Context, agencyID, clientID uuid.UUID) (*models.PaymentMethod, error) {
	method, err := s.repo.FindDefault(ctx, agencyID, clientID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load default payment method")
	}
	return method, nil
}

// Get loads one method scoped to its agency.
func (s *Service) Get(ctx context.Context, agencyID, methodID uuid.UUID) (*models.PaymentMethod, error) {
	method, err := s.repo.FindByID(ctx, agencyID, methodID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment method")
	}
	if method == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment method not found")
	}
	return method, nil
}

func (s *Service) SetDefault(ctx context.Context, agencyID, methodID uuid.UUID) (*models.PaymentMethod, error) {
	method, err := s.Get(ctx, agencyID, methodID)
	if err != nil {
		return nil, err
	}
	if method.IsDefault {
		return method, nil
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.ClearDefault(ctx, agencyID, method.ClientID); err != nil {
			return err
		}
		return repo.MarkDefault(ctx, method.ID)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "set default payment method")
	}
	method.IsDefault = true
	return method, nil
}
