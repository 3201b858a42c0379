// Package favorites keeps the wishlist in the persisted local store and
// mirrors it onto the remote profile. The local set answers instantly; the
// remote one extends it, never trims it.
package favorites

import (
	"context"
	"slices"

	"github.com/SeaWiser/shoes-sync/internal/localstore"
	"github.com/SeaWiser/shoes-sync/internal/profile"
	"github.com/SeaWiser/shoes-sync/internal/reconciler"
	pkgerrors "github.com/SeaWiser/shoes-sync/pkg/errors"
	"github.com/SeaWiser/shoes-sync/pkg/logger"
	"github.com/SeaWiser/shoes-sync/pkg/metrics"
)

// ProfileSource is the slice of the profile service the wishlist needs.
type ProfileSource interface {
	Current(ctx context.Context, userID string) (*profile.Profile, error)
	Peek(userID string) (*profile.Profile, bool)
	UpdateFields(ctx context.Context, userID string, fields map[string]string) (*profile.Profile, error)
}

type ServiceParams struct {
	Store      *localstore.Store
	Profiles   ProfileSource
	Reconciler *reconciler.Reconciler
	Logger     *logger.Logger
	Metrics    *metrics.SyncMetrics
}

type Service interface {
	// IDs returns the effective wishlist: local entries first, then remote
	// ones the device has not seen. With no signed-in user, or when the
	// remote lookup fails, the local set alone is returned.
	IDs(ctx context.Context, userID string) []string
	// IsFavorite answers from the local set plus the last-cached remote
	// favorites, so it never blocks on the network and agrees with IDs.
	IsFavorite(userID, productID string) bool
	// Toggle flips the product locally, then pushes the new effective set to
	// the profile. A definite rejection restores the previous local set.
	Toggle(ctx context.Context, userID, productID string) (bool, error)
	// Sync folds remote favorites into the local set.
	Sync(ctx context.Context, userID string) error
}

type service struct {
	store      *localstore.Store
	profiles   ProfileSource
	reconciler *reconciler.Reconciler
	logg       *logger.Logger
	metrics    *metrics.SyncMetrics
}

func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "favorites service requires a local store")
	}
	return &service{
		store:      params.Store,
		profiles:   params.Profiles,
		reconciler: params.Reconciler,
		logg:       params.Logger,
		metrics:    params.Metrics,
	}, nil
}

func (s *service) IDs(ctx context.Context, userID string) []string {
	local := s.store.StringSet(localstore.DomainFavorites)
	if userID == "" || s.profiles == nil {
		return local
	}
	p, err := s.profiles.Current(ctx, userID)
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(s.logg.WithUserID(ctx, userID), "remote favorites unavailable, serving local set only")
		}
		return local
	}
	return reconciler.Union(local, p.Favorites)
}

func (s *service) IsFavorite(userID, productID string) bool {
	if slices.Contains(s.store.StringSet(localstore.DomainFavorites), productID) {
		return true
	}
	if userID == "" || s.profiles == nil {
		return false
	}
	p, ok := s.profiles.Peek(userID)
	return ok && slices.Contains(p.Favorites, productID)
}

func (s *service) Toggle(ctx context.Context, userID, productID string) (bool, error) {
	if productID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}

	prev := s.store.StringSet(localstore.DomainFavorites)
	var next []string
	nowFavorite := !slices.Contains(prev, productID)
	if nowFavorite {
		next = append(append([]string(nil), prev...), productID)
	} else {
		next = slices.DeleteFunc(append([]string(nil), prev...), func(id string) bool {
			return id == productID
		})
	}
	if err := s.store.SetStringSet(ctx, localstore.DomainFavorites, next); err != nil {
		return !nowFavorite, err
	}

	if userID == "" || s.profiles == nil {
		return nowFavorite, nil
	}

	if err := s.push(ctx, userID, productID, next, nowFavorite); err != nil {
		if pkgerrors.IsTransport(err) {
			// ambiguous: the write may have landed, keep the local flip
			return nowFavorite, err
		}
		s.metrics.IncRollback(string(localstore.DomainFavorites))
		if restoreErr := s.store.SetStringSet(ctx, localstore.DomainFavorites, prev); restoreErr != nil && s.logg != nil {
			s.logg.Error(ctx, "restoring favorites after rejected push", restoreErr)
		}
		return !nowFavorite, err
	}
	return nowFavorite, nil
}

// push sends the new effective set: the local flip plus whatever remote
// entries the device knows about. Toggling off removes the product from that
// union as well, otherwise the remote copy would resurrect it.
func (s *service) push(ctx context.Context, userID, productID string, local []string, nowFavorite bool) error {
	effective := local
	if p, err := s.profiles.Current(ctx, userID); err == nil {
		effective = reconciler.Union(local, p.Favorites)
		if !nowFavorite {
			effective = slices.DeleteFunc(effective, func(id string) bool { return id == productID })
		}
	}
	_, err := s.profiles.UpdateFields(ctx, userID, map[string]string{
		profile.FieldFavorites: profile.EncodeStringList(effective),
	})
	return err
}

func (s *service) Sync(ctx context.Context, userID string) error {
	if userID == "" || s.profiles == nil || s.reconciler == nil {
		return nil
	}
	p, err := s.profiles.Current(ctx, userID)
	if err != nil {
		return err
	}
	return s.reconciler.Reconcile(ctx, localstore.DomainFavorites, p.Favorites)
}
