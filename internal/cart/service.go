package cart

import (
	"context"
	"encoding/json"

	"github.com/SeaWiser/shoes-sync/internal/localstore"
	pkgerrors "github.com/SeaWiser/shoes-sync/pkg/errors"
	"github.com/SeaWiser/shoes-sync/pkg/logger"
	"github.com/SeaWiser/shoes-sync/pkg/metrics"
)

// RemoteWriter pushes the serialized cart to the signed-in user's remote
// profile. A nil writer means the device is operating locally only.
type RemoteWriter interface {
	WriteCart(ctx context.Context, serialized string) error
}

type ServiceParams struct {
	Store   *localstore.Store
	Remote  RemoteWriter
	Logger  *logger.Logger
	Metrics *metrics.SyncMetrics
}

type Service interface {
	// Current returns the cart as persisted locally, empty when absent.
	Current() Cart
	Add(ctx context.Context, line Line) (Cart, error)
	Remove(ctx context.Context, productID string) (Cart, error)
	SetQuantity(ctx context.Context, productID, size string, quantity int) (Cart, error)
	// AdoptRemote replaces the local cart with the remote one, but only when
	// the local cart is empty. A device that already holds items keeps them.
	AdoptRemote(ctx context.Context, serialized string) error
	Clear(ctx context.Context) error
}

type service struct {
	store   *localstore.Store
	remote  RemoteWriter
	logg    *logger.Logger
	metrics *metrics.SyncMetrics
}

func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart service requires a local store")
	}
	return &service{
		store:   params.Store,
		remote:  params.Remote,
		logg:    params.Logger,
		metrics: params.Metrics,
	}, nil
}

func (s *service) Current() Cart {
	var c Cart
	s.store.Get(localstore.DomainCart, &c)
	return c
}

func (s *service) Add(ctx context.Context, line Line) (Cart, error) {
	return s.apply(ctx, s.Current().AddLine(line))
}

func (s *service) Remove(ctx context.Context, productID string) (Cart, error) {
	return s.apply(ctx, s.Current().RemoveLine(productID))
}

func (s *service) SetQuantity(ctx context.Context, productID, size string, quantity int) (Cart, error) {
	return s.apply(ctx, s.Current().ChangeQuantity(productID, size, quantity))
}

func (s *service) AdoptRemote(ctx context.Context, serialized string) error {
	if !s.Current().IsEmpty() {
		return nil
	}
	var remote Cart
	if err := json.Unmarshal([]byte(serialized), &remote); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDecode, err, "remote cart payload is not valid")
	}
	if remote.IsEmpty() {
		return nil
	}
	return s.store.Set(ctx, localstore.DomainCart, remote)
}

func (s *service) Clear(ctx context.Context) error {
	_, err := s.apply(ctx, Cart{})
	return err
}

// apply commits next locally, then pushes it to the remote profile. A
// definite remote rejection rolls the local cart back to the previous state;
// a transport failure keeps the optimistic state since the write may have
// landed.
func (s *service) apply(ctx context.Context, next Cart) (Cart, error) {
	prev := s.Current()
	if err := s.store.Set(ctx, localstore.DomainCart, next); err != nil {
		return prev, err
	}
	if s.remote == nil {
		return next, nil
	}

	payload, err := json.Marshal(next)
	if err != nil {
		return next, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "serializing cart")
	}
	if err := s.remote.WriteCart(ctx, string(payload)); err != nil {
		if pkgerrors.IsTransport(err) {
			if s.logg != nil {
				s.logg.Warn(s.logg.WithDomain(ctx, string(localstore.DomainCart)), "cart push failed in transit, keeping local state")
			}
			return next, err
		}
		s.metrics.IncRollback("cart")
		if restoreErr := s.store.Set(ctx, localstore.DomainCart, prev); restoreErr != nil && s.logg != nil {
			s.logg.Error(ctx, "restoring cart after rejected push", restoreErr)
		}
		return prev, err
	}
	return next, nil
}
