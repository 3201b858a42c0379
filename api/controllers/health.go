package controllers

import (
	"context"
	"net/http"

	"github.com/SeaWiser/shoes-sync/api/responses"
	"github.com/SeaWiser/shoes-sync/pkg/config"
	"github.com/SeaWiser/shoes-sync/pkg/logger"
)

// Pinger is any dependency that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Shoes-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every wired dependency. A failing dependency flips the
// response to 503 but still names the healthy ones.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		w.Header().Set("X-Shoes-Env", cfg.App.Env)

		status := map[string]string{}
		healthy := true
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				healthy = false
				status[name] = "unreachable"
				if logg != nil {
					logg.Error(logg.WithField(ctx, "dependency", name), "readiness ping failed", err)
				}
				continue
			}
			status[name] = "ok"
		}

		code := http.StatusOK
		if !healthy {
			code = http.StatusServiceUnavailable
		}
		responses.WriteSuccessStatus(w, code, status)
	}
}
