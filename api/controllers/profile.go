package controllers

import (
	"net/http"
	"strings"

	"github.com/SeaWiser/shoes-sync/api/middleware"
	"github.com/SeaWiser/shoes-sync/api/responses"
	"github.com/SeaWiser/shoes-sync/api/validators"
	"github.com/SeaWiser/shoes-sync/internal/profile"
	pkgerrors "github.com/SeaWiser/shoes-sync/pkg/errors"
	"github.com/SeaWiser/shoes-sync/pkg/logger"
)

const maxAvatarBytes = 8 << 20

type updateProfilePayload struct {
	Name  *string `json:"name" validate:"omitempty,min=1"`
	Email *string `json:"email" validate:"omitempty,email"`
}

func ProfileFetch(svc profile.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		p, err := svc.Current(ctx, middleware.UserIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, p)
	}
}

func ProfileUpdate(svc profile.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var payload updateProfilePayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		fields := map[string]string{}
		if payload.Name != nil {
			fields[profile.FieldName] = *payload.Name
		}
		if payload.Email != nil {
			fields[profile.FieldEmail] = *payload.Email
		}
		if len(fields) == 0 {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "no fields to update"))
			return
		}

		p, err := svc.UpdateFields(ctx, middleware.UserIDFromContext(ctx), fields)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, p)
	}
}

func ProfileUploadPhoto(svc profile.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		r.Body = http.MaxBytesReader(w, r.Body, maxAvatarBytes)
		if err := r.ParseMultipartForm(maxAvatarBytes); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid multipart form"))
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "file is required"))
			return
		}
		defer file.Close()

		contentType := header.Header.Get("Content-Type")
		if !strings.HasPrefix(contentType, "image/") {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "file must be an image"))
			return
		}

		p, err := svc.UploadPhoto(ctx, middleware.UserIDFromContext(ctx), header.Filename, contentType, file)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, p)
	}
}
