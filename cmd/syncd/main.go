package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/SeaWiser/shoes-sync/api/controllers"
	"github.com/SeaWiser/shoes-sync/api/routes"
	"github.com/SeaWiser/shoes-sync/internal/cart"
	"github.com/SeaWiser/shoes-sync/internal/favorites"
	"github.com/SeaWiser/shoes-sync/internal/identity"
	"github.com/SeaWiser/shoes-sync/internal/localstore"
	"github.com/SeaWiser/shoes-sync/internal/notifications"
	"github.com/SeaWiser/shoes-sync/internal/payments"
	"github.com/SeaWiser/shoes-sync/internal/profile"
	"github.com/SeaWiser/shoes-sync/internal/querycache"
	"github.com/SeaWiser/shoes-sync/internal/reconciler"
	"github.com/SeaWiser/shoes-sync/internal/remote"
	"github.com/SeaWiser/shoes-sync/internal/startup"
	"github.com/SeaWiser/shoes-sync/internal/syncevents"
	"github.com/SeaWiser/shoes-sync/pkg/config"
	"github.com/SeaWiser/shoes-sync/pkg/db"
	"github.com/SeaWiser/shoes-sync/pkg/logger"
	"github.com/SeaWiser/shoes-sync/pkg/metrics"
	"github.com/SeaWiser/shoes-sync/pkg/migrate"
	"github.com/SeaWiser/shoes-sync/pkg/pubsub"
	"github.com/SeaWiser/shoes-sync/pkg/redis"
	"github.com/SeaWiser/shoes-sync/pkg/storage/gcs"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "syncd"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "syncd",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	pingers := map[string]controllers.Pinger{}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		requireResource(ctx, logg, "redis", err)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(ctx, "error closing redis", err)
			}
		}()
		pingers["redis"] = redisClient
	}

	var backend localstore.Backend
	if cfg.Store.Driver == config.StoreDriverRedis {
		backend, err = localstore.NewRedisBackend(redisClient)
		requireResource(ctx, logg, "redis store backend", err)
	} else {
		dbClient, dbErr := db.New(ctx, cfg.Store, logg)
		requireResource(ctx, logg, "database", dbErr)
		defer func() {
			if err := dbClient.Close(); err != nil {
				logg.Error(ctx, "error closing database", err)
			}
		}()

		err = migrate.MaybeRunDev(ctx, cfg, logg, dbClient)
		requireResource(ctx, logg, "dev migrations", err)

		backend, err = localstore.NewGormBackend(dbClient.DB())
		requireResource(ctx, logg, "store backend", err)
		pingers["store"] = dbClient
	}

	store, err := localstore.New(ctx, backend, logg)
	requireResource(ctx, logg, "local store", err)

	syncMetrics := metrics.NewSyncMetrics(prometheus.DefaultRegisterer)
	cache := querycache.NewCache(logg, syncMetrics)

	remoteClient, err := remote.NewClient(cfg.Appwrite, logg)
	requireResource(ctx, logg, "remote client", err)

	var files profile.FileStore
	if cfg.GCS.Enabled() {
		gcsClient, gcsErr := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
		requireResource(ctx, logg, "gcs", gcsErr)
		pingers["gcs"] = gcsClient
		files = gcsClient
	}

	profileService, err := profile.NewService(profile.ServiceParams{
		Cache:      cache,
		Client:     remoteClient,
		Files:      files,
		Logger:     logg,
		Collection: cfg.Appwrite.UsersCollectionID,
		StaleTime:  cfg.Sync.ProfileStaleTime,
		RetryDelay: cfg.Sync.LookupRetryDelay,
	})
	requireResource(ctx, logg, "profile service", err)

	identityService, err := identity.NewService(identity.ServiceParams{
		Store:  store,
		Client: remoteClient,
		Logger: logg,
		// a sign-out drops everything fetched for the previous user
		OnSignOut: cache.Clear,
	})
	requireResource(ctx, logg, "identity service", err)

	cartService, err := cart.NewService(cart.ServiceParams{
		Store:   store,
		Remote:  sessionCartWriter{profiles: profileService, identity: identityService},
		Logger:  logg,
		Metrics: syncMetrics,
	})
	requireResource(ctx, logg, "cart service", err)

	recon, err := reconciler.New(reconciler.Params{
		Store:   store,
		Logger:  logg,
		Metrics: syncMetrics,
	})
	requireResource(ctx, logg, "reconciler", err)

	favoritesService, err := favorites.NewService(favorites.ServiceParams{
		Store:      store,
		Profiles:   profileService,
		Reconciler: recon,
		Logger:     logg,
		Metrics:    syncMetrics,
	})
	requireResource(ctx, logg, "favorites service", err)

	notificationsService, err := notifications.NewService(notifications.ServiceParams{
		Store:      store,
		Cache:      cache,
		Client:     remoteClient,
		Profiles:   profileService,
		Reconciler: recon,
		Logger:     logg,
		Collection: cfg.Appwrite.NotificationsCollectionID,
		StaleTime:  cfg.Sync.CatalogStaleTime,
	})
	requireResource(ctx, logg, "notifications service", err)

	var paymentsService *payments.Service
	if cfg.Stripe.APIKey != "" {
		paymentsService, err = payments.NewService(ctx, cfg.Stripe, logg)
		requireResource(ctx, logg, "payments service", err)
	}

	orchestrator, err := startup.New(startup.Params{
		Identity: identityService,
		Profiles: profileService,
		Cart:     cartService,
		Syncers:  []startup.DomainSyncer{favoritesService, notificationsService},
		Logger:   logg,
		Metrics:  syncMetrics,
		MinDwell: cfg.Sync.StageMinDwell,
		Timeout:  cfg.Sync.StartupTimeout,
	})
	requireResource(ctx, logg, "startup orchestrator", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":  cfg.App.Env,
		"port": cfg.App.Port,
	})

	go func() {
		status := orchestrator.Run(runCtx)
		statusCtx := logg.WithFields(runCtx, map[string]any{
			"degraded": status.Degraded,
			"user_id":  status.UserID,
		})
		logg.Info(statusCtx, "startup sequence finished")
	}()

	if cfg.PubSub.Enabled() && redisClient != nil {
		pubsubClient, psErr := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		requireResource(ctx, logg, "pubsub", psErr)
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(ctx, "error closing pubsub", err)
			}
		}()

		consumer, consErr := syncevents.NewConsumer(pubsubClient.ProfileSubscription(), redisClient, profileService, notificationsService, logg)
		requireResource(ctx, logg, "sync-events consumer", consErr)

		go func() {
			if err := consumer.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				logg.Error(runCtx, "sync-events consumer stopped", err)
			}
		}()
	}

	server := &http.Server{
		Addr: ":" + cfg.App.Port,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:        cfg,
			Logger:        logg,
			Store:         store,
			Pingers:       pingers,
			Identity:      identityService,
			Profiles:      profileService,
			Cart:          cartService,
			Favorites:     favoritesService,
			Notifications: notificationsService,
			Payments:      paymentsService,
			Orchestrator:  orchestrator,
		}),
	}

	go func() {
		<-runCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "error shutting down http server", err)
		}
	}()

	logg.Info(runCtx, "syncd ready")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(runCtx, "syncd stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "syncd shut down gracefully")
}

// sessionCartWriter routes cart pushes to the profile document of whoever is
// signed in right now. With nobody signed in the cart stays local only.
type sessionCartWriter struct {
	profiles profile.Service
	identity identity.Service
}

func (w sessionCartWriter) WriteCart(ctx context.Context, serialized string) error {
	state, ok := w.identity.State()
	if !ok {
		return nil
	}
	return w.profiles.CartWriter(state.UserID).WriteCart(ctx, serialized)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
