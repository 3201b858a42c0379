package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SeaWiser/shoes-sync/api/controllers"
	"github.com/SeaWiser/shoes-sync/api/middleware"
	"github.com/SeaWiser/shoes-sync/internal/cart"
	"github.com/SeaWiser/shoes-sync/internal/favorites"
	"github.com/SeaWiser/shoes-sync/internal/identity"
	"github.com/SeaWiser/shoes-sync/internal/localstore"
	"github.com/SeaWiser/shoes-sync/internal/notifications"
	"github.com/SeaWiser/shoes-sync/internal/payments"
	"github.com/SeaWiser/shoes-sync/internal/profile"
	"github.com/SeaWiser/shoes-sync/internal/startup"
	"github.com/SeaWiser/shoes-sync/pkg/config"
	"github.com/SeaWiser/shoes-sync/pkg/logger"
)

type RouterParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	Store         *localstore.Store
	Pingers       map[string]controllers.Pinger
	Identity      identity.Service
	Profiles      profile.Service
	Cart          cart.Service
	Favorites     favorites.Service
	Notifications notifications.Service
	Payments      *payments.Service
	Orchestrator  *startup.Orchestrator
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Pingers))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Identity(p.Store, logg))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", controllers.AuthLogin(p.Identity, logg))
			r.Post("/logout", controllers.AuthLogout(p.Identity, logg))
			r.Get("/me", controllers.AuthMe(p.Identity, logg))
		})

		r.Get("/startup", controllers.StartupStatus(p.Orchestrator, logg))

		r.Route("/profile", func(r chi.Router) {
			r.Get("/", controllers.ProfileFetch(p.Profiles, logg))
			r.Patch("/", controllers.ProfileUpdate(p.Profiles, logg))
			r.Post("/photo", controllers.ProfileUploadPhoto(p.Profiles, logg))
		})

		r.Route("/favorites", func(r chi.Router) {
			r.Get("/", controllers.FavoritesList(p.Favorites, logg))
			r.Post("/{productId}/toggle", controllers.FavoriteToggle(p.Favorites, logg))
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartFetch(p.Cart, logg))
			r.Post("/lines", controllers.CartAddLine(p.Cart, logg))
			r.Delete("/lines/{productId}", controllers.CartRemoveLine(p.Cart, logg))
			r.Patch("/lines/{productId}", controllers.CartSetQuantity(p.Cart, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.NotificationsList(p.Notifications, logg))
			r.Get("/unread-count", controllers.NotificationsUnreadCount(p.Notifications, logg))
			r.Post("/{notificationId}/seen", controllers.NotificationMarkSeen(p.Notifications, logg))
		})

		r.Post("/payments/sheet", controllers.PaymentSheet(p.Payments, p.Cart, p.Identity, logg))
	})

	return r
}
