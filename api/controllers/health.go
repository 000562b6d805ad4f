package controllers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/learnbill-backend/api/responses"
	"github.com/angelmondragon/learnbill-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/learnbill-backend/pkg/errors"
	"github.com/angelmondragon/learnbill-backend/pkg/logger"
)

const readyTimeout = 2 * time.Second

// Pinger is satisfied by the database and redis clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Learnbill-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency concurrently and reports 503 when any
// of them fails.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Learnbill-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		results := make([]string, len(names))
		var g errgroup.Group
		for i, name := range names {
			pinger := deps[name]
			g.Go(func() error {
				if pinger == nil {
					results[i] = "missing"
					return pkgerrors.New(pkgerrors.CodeDependency, name+" not configured")
				}
				if err := pinger.Ping(ctx); err != nil {
					results[i] = "down"
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" ping failed")
				}
				results[i] = "ok"
				return nil
			})
		}
		err := g.Wait()

		checks := make(map[string]string, len(names))
		for i, name := range names {
			checks[name] = results[i]
		}
		if err != nil {
			if logg != nil {
				logg.Error(logg.WithField(r.Context(), "checks", checks), "health.ready_failed", err)
			}
			responses.WriteSuccessStatus(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "checks": checks})
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
