package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/SeaWiser/shoes-sync/api/responses"
	"github.com/SeaWiser/shoes-sync/api/validators"
	"github.com/SeaWiser/shoes-sync/internal/cart"
	pkgerrors "github.com/SeaWiser/shoes-sync/pkg/errors"
	"github.com/SeaWiser/shoes-sync/pkg/logger"
)

type addLinePayload struct {
	ProductID string          `json:"id" validate:"required"`
	Name      string          `json:"name" validate:"required"`
	ImageURL  string          `json:"image"`
	Size      string          `json:"size" validate:"required"`
	Price     decimal.Decimal `json:"price" validate:"required"`
	Quantity  int             `json:"quantity"`
}

type setQuantityPayload struct {
	Size     string `json:"size" validate:"required"`
	Quantity int    `json:"quantity" validate:"required"`
}

func CartFetch(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, svc.Current())
	}
}

func CartAddLine(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var payload addLinePayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if payload.Price.IsNegative() {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative"))
			return
		}

		updated, err := svc.Add(ctx, cart.Line{
			ProductID: payload.ProductID,
			Name:      payload.Name,
			ImageURL:  payload.ImageURL,
			Size:      payload.Size,
			Price:     payload.Price,
			Quantity:  payload.Quantity,
		})
		writeCartResult(ctx, logg, w, updated, err)
	}
}

func CartRemoveLine(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		productID := strings.TrimSpace(chi.URLParam(r, "productId"))
		if productID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "product id required"))
			return
		}

		updated, err := svc.Remove(ctx, productID)
		writeCartResult(ctx, logg, w, updated, err)
	}
}

func CartSetQuantity(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		productID := strings.TrimSpace(chi.URLParam(r, "productId"))
		if productID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "product id required"))
			return
		}

		var payload setQuantityPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		updated, err := svc.SetQuantity(ctx, productID, payload.Size, payload.Quantity)
		writeCartResult(ctx, logg, w, updated, err)
	}
}

// writeCartResult returns the cart even on a transport failure: the local
// change is committed, only the remote push is pending.
func writeCartResult(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, updated cart.Cart, err error) {
	if err != nil && !pkgerrors.IsTransport(err) {
		responses.WriteError(ctx, logg, w, err)
		return
	}
	responses.WriteSuccess(w, map[string]any{
		"cart":    updated,
		"offline": err != nil,
	})
}
