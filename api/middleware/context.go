package middleware

import (
	"context"
	"net/http"

	"github.com/SeaWiser/shoes-sync/internal/identity"
	"github.com/SeaWiser/shoes-sync/internal/localstore"
	"github.com/SeaWiser/shoes-sync/pkg/logger"
)

type userIDKey struct{}

// Identity attaches the signed-in user from the persisted local store, if
// any. Routes stay available signed out; handlers decide what requires a
// user.
func Identity(store *localstore.Store, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var state identity.State
			if store != nil && store.Get(localstore.DomainIdentity, &state) && state.UserID != "" {
				ctx = context.WithValue(ctx, userIDKey{}, state.UserID)
				if logg != nil {
					ctx = logg.WithUserID(ctx, state.UserID)
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithUserID attaches a user id directly, bypassing the store lookup.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext returns the signed-in user id, empty when signed out.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}
