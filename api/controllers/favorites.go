package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/SeaWiser/shoes-sync/api/middleware"
	"github.com/SeaWiser/shoes-sync/api/responses"
	"github.com/SeaWiser/shoes-sync/internal/favorites"
	pkgerrors "github.com/SeaWiser/shoes-sync/pkg/errors"
	"github.com/SeaWiser/shoes-sync/pkg/logger"
)

// FavoritesList returns the effective wishlist for the current user.
func FavoritesList(svc favorites.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ids := svc.IDs(ctx, middleware.UserIDFromContext(ctx))
		if ids == nil {
			ids = []string{}
		}
		responses.WriteSuccess(w, map[string]any{"ids": ids})
	}
}

// FavoriteToggle flips a product in the wishlist. A transport failure still
// reports the optimistic state so the UI does not flicker.
func FavoriteToggle(svc favorites.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		productID := strings.TrimSpace(chi.URLParam(r, "productId"))
		if productID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "product id required"))
			return
		}

		on, err := svc.Toggle(ctx, middleware.UserIDFromContext(ctx), productID)
		if err != nil && !pkgerrors.IsTransport(err) {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"productId": productID,
			"favorite":  on,
			"offline":   err != nil,
		})
	}
}
