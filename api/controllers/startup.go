package controllers

import (
	"net/http"

	"github.com/SeaWiser/shoes-sync/api/responses"
	"github.com/SeaWiser/shoes-sync/internal/startup"
	"github.com/SeaWiser/shoes-sync/pkg/logger"
)

func StartupStatus(orch *startup.Orchestrator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, orch.Status())
	}
}
