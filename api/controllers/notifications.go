package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/SeaWiser/shoes-sync/api/middleware"
	"github.com/SeaWiser/shoes-sync/api/responses"
	"github.com/SeaWiser/shoes-sync/internal/notifications"
	pkgerrors "github.com/SeaWiser/shoes-sync/pkg/errors"
	"github.com/SeaWiser/shoes-sync/pkg/logger"
)

type notificationView struct {
	notifications.Notification
	Seen bool `json:"seen"`
}

func NotificationsList(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		catalog, err := svc.Catalog(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		views := make([]notificationView, 0, len(catalog))
		for _, n := range catalog {
			views = append(views, notificationView{
				Notification: n,
				Seen:         svc.IsSeen(n.ID),
			})
		}
		responses.WriteSuccess(w, views)
	}
}

func NotificationMarkSeen(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		notificationID := strings.TrimSpace(chi.URLParam(r, "notificationId"))
		if notificationID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "notification id required"))
			return
		}

		userID := middleware.UserIDFromContext(ctx)
		err := svc.MarkSeen(ctx, userID, notificationID)
		if err != nil && !pkgerrors.IsTransport(err) {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		// The local mark sticks even when the push did not reach the server.
		responses.WriteSuccess(w, map[string]any{
			"notificationId": notificationID,
			"seen":           true,
			"offline":        err != nil,
		})
	}
}

func NotificationsUnreadCount(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		count, err := svc.UnreadCount(ctx, middleware.UserIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int{"unread": count})
	}
}
