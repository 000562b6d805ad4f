package learning

import (
	"errors"

	"gorm.io/gorm"

	"github.com/angelmondragon/learnbill-backend/internal/charges"
	"github.com/angelmondragon/learnbill-backend/internal/coverage"
	"github.com/angelmondragon/learnbill-backend/internal/gate"
	"github.com/angelmondragon/learnbill-backend/internal/ledger"
	"github.com/angelmondragon/learnbill-backend/internal/paymentmethods"
	"github.com/angelmondragon/learnbill-backend/internal/policy"
	"github.com/angelmondragon/learnbill-backend/internal/renewals"
	"github.com/angelmondragon/learnbill-backend/internal/sessions"
	"github.com/angelmondragon/learnbill-backend/internal/subscriptions"
	"github.com/angelmondragon/learnbill-backend/pkg/config"
	"github.com/angelmondragon/learnbill-backend/pkg/db"
	"github.com/angelmondragon/learnbill-backend/pkg/logger"
	"github.com/angelmondragon/learnbill-backend/pkg/metrics"
	"github.com/angelmondragon/learnbill-backend/pkg/outbox"
	pkgredis "github.com/angelmondragon/learnbill-backend/pkg/redis"
)

// BuildParams carries the clients shared by every learning component.
// Cache and Metrics are optional.
type BuildParams struct {
	Config   *config.Config
	DB       *gorm.DB
	Cache    *pkgredis.Client
	Metrics  *metrics.BillingMetrics
	Logger   *logger.Logger
	RunnerID string
}

// Components exposes the facade plus the services the workers drive
// directly.
type Components struct {
	Service  *Service
	Charges  *charges.Service
	Renewals *renewals.Service
	SyncJobs *outbox.Repository
}

// Build wires the learning billing graph on a single database handle.
func Build(params BuildParams) (*Components, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.DB == nil:
		return nil, errors.New("database is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	}
	cfg := params.Config
	conn := params.DB
	logg := params.Logger
	runner := db.Wrap(conn)

	gateParams := gate.CheckerParams{
		Repo:   gate.NewRepository(conn),
		TTL:    cfg.Eventing.GateCacheTTL,
		Logger: logg,
	}
	if params.Cache != nil {
		gateParams.Cache = params.Cache
	}
	checker, err := gate.NewChecker(gateParams)
	if err != nil {
		return nil, err
	}

	sessionSvc, err := sessions.NewService(sessions.ServiceParams{Repo: sessions.NewRepository(conn), Logger: logg})
	if err != nil {
		return nil, err
	}
	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{Repo: ledger.NewRepository(conn), TX: runner, Logger: logg})
	if err != nil {
		return nil, err
	}
	policySvc, err := policy.NewService(policy.ServiceParams{Repo: policy.NewRepository(conn)})
	if err != nil {
		return nil, err
	}
	syncJobs := outbox.NewRepository(conn)
	chargeSvc, err := charges.NewService(charges.ServiceParams{
		Repo:     charges.NewRepository(conn),
		TX:       runner,
		Policy:   policySvc,
		Accounts: ledgerSvc,
		Outbox:   outbox.NewService(syncJobs, logg),
		Logger:   logg,
		Currency: cfg.Billing.Currency,
	})
	if err != nil {
		return nil, err
	}
	subSvc, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:       subscriptions.NewRepository(conn),
		Logger:     logg,
		PeriodDays: cfg.Renewal.PeriodDays,
	})
	if err != nil {
		return nil, err
	}
	coverageSvc, err := coverage.NewService(coverage.ServiceParams{
		TX:            runner,
		Ledger:        ledgerSvc,
		Subscriptions: subSvc,
		Charges:       chargeSvc,
		Metrics:       params.Metrics,
		Logger:        logg,
	})
	if err != nil {
		return nil, err
	}
	renewalSvc, err := renewals.NewService(renewals.ServiceParams{
		Repo:          renewals.NewRepository(conn),
		TX:            runner,
		Gate:          checker,
		Subscriptions: subSvc,
		Ledger:        ledgerSvc,
		Metrics:       params.Metrics,
		Logger:        logg,
		RunnerID:      params.RunnerID,
	})
	if err != nil {
		return nil, err
	}
	methodSvc, err := paymentmethods.NewService(paymentmethods.ServiceParams{
		Repo:   paymentmethods.NewRepository(conn),
		TX:     runner,
		Logger: logg,
	})
	if err != nil {
		return nil, err
	}

	svc, err := NewService(ServiceParams{
		Gate:           checker,
		Sessions:       sessionSvc,
		Charges:        chargeSvc,
		Coverage:       coverageSvc,
		Ledger:         ledgerSvc,
		Subscriptions:  subSvc,
		Renewals:       renewalSvc,
		PaymentMethods: methodSvc,
		Logger:         logg,
		RenewalLimit:   cfg.Renewal.BatchLimit,
	})
	if err != nil {
		return nil, err
	}
	return &Components{
		Service:  svc,
		Charges:  chargeSvc,
		Renewals: renewalSvc,
		SyncJobs: syncJobs,
	}, nil
}
