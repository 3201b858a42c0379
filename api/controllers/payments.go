package controllers

import (
	"net/http"

	"github.com/SeaWiser/shoes-sync/api/middleware"
	"github.com/SeaWiser/shoes-sync/api/responses"
	"github.com/SeaWiser/shoes-sync/internal/cart"
	"github.com/SeaWiser/shoes-sync/internal/identity"
	"github.com/SeaWiser/shoes-sync/internal/payments"
	pkgerrors "github.com/SeaWiser/shoes-sync/pkg/errors"
	"github.com/SeaWiser/shoes-sync/pkg/logger"
)

// PaymentSheet charges whatever the cart currently totals, so the amount is
// derived server side rather than taken from the request body.
func PaymentSheet(paySvc *payments.Service, cartSvc cart.Service, idSvc identity.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID := middleware.UserIDFromContext(ctx)
		if userID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "not signed in"))
			return
		}

		current := cartSvc.Current()
		if current.IsEmpty() {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty"))
			return
		}

		email := ""
		if state, ok := idSvc.State(); ok {
			email = state.Email
		}

		sheet, err := paySvc.PaymentSheet(ctx, userID, email, current.Total())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, sheet)
	}
}
