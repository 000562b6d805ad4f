package policy

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/learnbill-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/learnbill-backend/pkg/db/types"
	"github.com/angelmondragon/learnbill-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/learnbill-backend/pkg/errors"
)

type ServiceParams struct {
	Repo Repository
}

// Service resolves unit rules and enforces daily unit caps.
type Service struct {
	repo Repository
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	return &Service{repo: params.Repo}, nil
}

// ResolveRule returns the rule governing serviceCode for the tier, or nil when
// the code is not policy governed.
func (s *Service) ResolveRule(ctx context.Context, tx *gorm.DB, agencyID uuid.UUID, serviceCode, credentialTier string) (*models.BillingPolicyRule, error) {
	serviceCode = strings.TrimSpace(serviceCode)
	if serviceCode == "" {
		return nil, nil
	}
	rule, err := s.repo.WithTx(tx).FindRule(ctx, agencyID, serviceCode, strings.TrimSpace(credentialTier))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve billing policy rule")
	}
	return rule, nil
}

// CapCheck identifies the client day a new charge would bill against.
type CapCheck struct {
	AgencyID       uuid.UUID
	ClientID       uuid.UUID
	ServiceCode    string
	CredentialTier string
	ServiceDate    dbtypes.Date
	UnitsToAdd     int
}

// EnforceDailyCap fails with DAILY_UNITS_CAP_EXCEEDED when the units already
// billed for the day plus UnitsToAdd exceed the tier's cap. Run it in the same
// transaction as the charge insert.
func (s *Service) EnforceDailyCap(ctx context.Context, tx *gorm.DB, check CapCheck) error {
	if check.ServiceCode == "" || check.UnitsToAdd <= 0 {
		return nil
	}
	if check.ServiceDate.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "service date is required for cap enforcement")
	}
	repo := s.repo.WithTx(tx)

	dailyCap, err := repo.FindDailyCap(ctx, check.AgencyID, check.ServiceCode, check.CredentialTier)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load daily cap")
	}
	if dailyCap == nil {
		return nil
	}

	billed, err := repo.SumUnitsForDay(ctx, check.AgencyID, check.ClientID, check.ServiceCode, check.ServiceDate)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum billed units")
	}
	if billed+check.UnitsToAdd > dailyCap.MaxUnitsPerDay {
		return pkgerrors.New(pkgerrors.CodeDailyCapExceeded, "daily units cap exceeded").
			WithDetails(map[string]any{
				"service_code":      check.ServiceCode,
				"service_date":      check.ServiceDate.String(),
				"max_units_per_day": dailyCap.MaxUnitsPerDay,
				"units_billed":      billed,
				"units_requested":   check.UnitsToAdd,
			})
	}
	return nil
}

// Evaluation is the policy outcome recorded on a charge.
type Evaluation struct {
	ProfileID *uuid.UUID
	RuleID    *uuid.UUID
	Units     *int
}

// Evaluate resolves the rule, computes units for minutes and enforces the
// daily cap in one pass.
func (s *Service) Evaluate(ctx context.Context, tx *gorm.DB, check CapCheck, minutes int) (Evaluation, error) {
	rule, err := s.ResolveRule(ctx, tx, check.AgencyID, check.ServiceCode, check.CredentialTier)
	if err != nil {
		return Evaluation{}, err
	}
	if rule == nil {
		return Evaluation{}, nil
	}
	units := ComputeUnits(minutes, rule)
	check.UnitsToAdd = units
	if err := s.EnforceDailyCap(ctx, tx, check); err != nil {
		return Evaluation{}, err
	}
	profileID, ruleID := rule.ProfileID, rule.ID
	return Evaluation{ProfileID: &profileID, RuleID: &ruleID, Units: &units}, nil
}

// RuleInput defines a unit rule for CreateRule.
type RuleInput struct {
	ProfileID      uuid.UUID
	ServiceCode    string
	CredentialTier string
	MinMinutes     *int
	MaxMinutes     *int
	UnitMinutes    int
	UnitCalcMode   enums.UnitCalcMode
}

func (s *Service) CreateProfile(ctx context.Context, agencyID uuid.UUID, name string) (*models.BillingPolicyProfile, error) {
	if agencyID == uuid.Nil || strings.TrimSpace(name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "agency id and name are required")
	}
	profile := &models.BillingPolicyProfile{AgencyID: agencyID, Name: strings.TrimSpace(name), Active: true}
	if err := s.repo.CreateProfile(ctx, profile); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create billing policy profile")
	}
	return profile, nil
}

func (s *Service) CreateRule(ctx context.Context, input RuleInput) (*models.BillingPolicyRule, error) {
	mode := input.UnitCalcMode
	if mode == "" {
		mode = enums.UnitCalcFloor
	}
	switch {
	case input.ProfileID == uuid.Nil || strings.TrimSpace(input.ServiceCode) == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "profile id and service code are required")
	case !mode.IsValid():
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid unit calc mode")
	case input.UnitMinutes <= 0:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unit minutes must be positive")
	case input.MinMinutes != nil && input.MaxMinutes != nil && *input.MinMinutes > *input.MaxMinutes:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "min minutes exceeds max minutes")
	}
	rule := &models.BillingPolicyRule{
		ProfileID:      input.ProfileID,
		ServiceCode:    strings.TrimSpace(input.ServiceCode),
		CredentialTier: strings.TrimSpace(input.CredentialTier),
		MinMinutes:     input.MinMinutes,
		MaxMinutes:     input.MaxMinutes,
		UnitMinutes:    input.UnitMinutes,
		UnitCalcMode:   mode,
	}
	if err := s.repo.CreateRule(ctx, rule); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create billing policy rule")
	}
	return rule, nil
}

func (s *Service) CreateDailyCap(ctx context.Context, profileID uuid.UUID, serviceCode, credentialTier string, maxUnits int) (*models.BillingPolicyDailyCap, error) {
	if profileID == uuid.Nil || strings.TrimSpace(serviceCode) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "profile id and service code are required")
	}
	if maxUnits < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "max units per day must be non-negative")
	}
	dailyCap := &models.BillingPolicyDailyCap{
		ProfileID:      profileID,
		ServiceCode:    strings.TrimSpace(serviceCode),
		CredentialTier: strings.TrimSpace(credentialTier),
		MaxUnitsPerDay: maxUnits,
	}
	if err := s.repo.CreateDailyCap(ctx, dailyCap); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create daily cap")
	}
	return dailyCap, nil
}
