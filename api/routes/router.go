package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/learnbill-backend/api/controllers"
	learningcontrollers "github.com/angelmondragon/learnbill-backend/api/controllers/learning"
	"github.com/angelmondragon/learnbill-backend/api/middleware"
	"github.com/angelmondragon/learnbill-backend/pkg/config"
	"github.com/angelmondragon/learnbill-backend/pkg/enums"
	"github.com/angelmondragon/learnbill-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/learnbill-backend/pkg/redis"
)

// RequestStore backs idempotency replay and rate limiting.
type RequestStore interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

// Dependencies are the long-lived clients and services the API routes use.
// A nil Store disables idempotency replay and rate limiting.
type Dependencies struct {
	DB       controllers.Pinger
	Store    RequestStore
	Learning learningcontrollers.Service
	Metrics  http.Handler
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	readiness := map[string]controllers.Pinger{"db": deps.DB}
	if deps.Store != nil {
		readiness["redis"] = deps.Store
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	var (
		idemStore pkgredis.IdempotencyStore
		limiter   middleware.RateLimiterStore
	)
	if deps.Store != nil {
		idemStore = deps.Store
		limiter = deps.Store
	}
	policy := middleware.NewRateLimitPolicy(cfg.RateLimit.Window, cfg.RateLimit.AgencyLimit)
	svc := deps.Learning

	r.Route("/api/v1/learning", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RateLimit(policy, limiter, logg))
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.MemberRoleAdmin, enums.MemberRoleStaff))
			r.Post("/sessions/link", learningcontrollers.LinkSession(svc, logg))
			r.Get("/sessions/{sessionId}", learningcontrollers.GetSession(svc, logg))
			r.Post("/sessions/{sessionId}/status", learningcontrollers.UpdateSessionStatus(svc, logg))
			r.Get("/charges/pending", learningcontrollers.PendingCharges(svc, logg))
			r.Post("/charges/{chargeId}/coverage", learningcontrollers.ApplyCoverage(svc, logg))
			r.Post("/subscriptions", learningcontrollers.CreateSubscription(svc, logg))
			r.Post("/clients/{clientId}/payment-methods", learningcontrollers.AddPaymentMethod(svc, logg))
			r.Post("/payment-methods/{methodId}/default", learningcontrollers.SetDefaultPaymentMethod(svc, logg))
		})

		r.Get("/charges/{chargeId}", learningcontrollers.GetCharge(svc, logg))
		r.Post("/charges/{chargeId}/pay", learningcontrollers.PayCharge(svc, logg))
		r.Get("/clients/{clientId}/balance", learningcontrollers.Balance(svc, logg))
		r.Get("/clients/{clientId}/ledger", learningcontrollers.LedgerEntries(svc, logg))
		r.Get("/clients/{clientId}/payment-methods", learningcontrollers.ListPaymentMethods(svc, logg))
		r.Get("/subscriptions/{subscriptionId}", learningcontrollers.GetSubscription(svc, logg))
		r.Post("/subscriptions/{subscriptionId}/status", learningcontrollers.TransitionSubscription(svc, logg))
	})

	r.Route("/api/admin/v1/learning", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.MemberRoleAdmin))
		r.Use(middleware.RateLimit(policy, limiter, logg))
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Post("/clients/{clientId}/credits", learningcontrollers.AdminCredit(svc, logg))
		r.Post("/plans", learningcontrollers.CreatePlan(svc, logg))
		r.Post("/subscriptions/{subscriptionId}/replenish", learningcontrollers.ReplenishSubscription(svc, logg))
		r.Post("/renewals/run", learningcontrollers.RunRenewals(svc, logg))
		r.Post("/charges/{chargeId}/fail", learningcontrollers.FailCharge(svc, logg))
	})

	return r
}
