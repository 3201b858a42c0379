package controllers

import (
	"net/http"

	"github.com/SeaWiser/shoes-sync/api/responses"
	"github.com/SeaWiser/shoes-sync/api/validators"
	"github.com/SeaWiser/shoes-sync/internal/identity"
	pkgerrors "github.com/SeaWiser/shoes-sync/pkg/errors"
	"github.com/SeaWiser/shoes-sync/pkg/logger"
)

type loginPayload struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func AuthLogin(svc identity.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var payload loginPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		state, err := svc.SignIn(ctx, payload.Email, payload.Password)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{
			"userId": state.UserID,
			"email":  state.Email,
		})
	}
}

func AuthLogout(svc identity.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if err := svc.SignOut(ctx); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "signed_out"})
	}
}

func AuthMe(svc identity.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		user, err := svc.CurrentUser(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if user == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "not signed in"))
			return
		}

		responses.WriteSuccess(w, map[string]string{
			"userId": user.ID,
			"email":  user.Email,
			"name":   user.Name,
		})
	}
}
