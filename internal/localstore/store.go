package localstore

import (
	"context"
	"encoding/json"
	"sync"

	pkgerrors "github.com/SeaWiser/shoes-sync/pkg/errors"
	"github.com/SeaWiser/shoes-sync/pkg/logger"
	"go.uber.org/multierr"
)

// Store is the process-wide persisted local store. The in-memory copy is
// authoritative for the session; the backend is a write-through best-effort
// cache whose failures are logged, never raised to callers. The remote
// document remains the eventual source of truth for favorites/cart/notifs.
type Store struct {
	mu      sync.RWMutex
	values  map[Domain]json.RawMessage
	subs    map[Domain][]chan struct{}
	backend Backend
	logg    *logger.Logger
}

// New loads every domain from the backend. A load failure leaves the domain
// empty for the session rather than failing startup.
func New(ctx context.Context, backend Backend, logg *logger.Logger) (*Store, error) {
	if backend == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "local store backend required")
	}
	s := &Store{
		values:  make(map[Domain]json.RawMessage, len(Domains())),
		subs:    make(map[Domain][]chan struct{}),
		backend: backend,
		logg:    logg,
	}
	for _, domain := range Domains() {
		raw, found, err := backend.Load(ctx, domain)
		if err != nil {
			if logg != nil {
				logg.Error(logg.WithDomain(ctx, string(domain)), "local store load failed, starting empty", err)
			}
			continue
		}
		if found {
			s.values[domain] = json.RawMessage(raw)
		}
	}
	return s, nil
}

// Get unmarshals the domain's current value into dest. A missing domain
// returns false. A corrupt stored value is treated as absent and logged.
func (s *Store) Get(domain Domain, dest any) bool {
	s.mu.RLock()
	raw, ok := s.values[domain]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		if s.logg != nil {
			ctx := s.logg.WithDomain(context.Background(), string(domain))
			s.logg.Error(ctx, "local store value corrupt, treating as absent", err)
		}
		return false
	}
	return true
}

// Set updates the in-memory copy, notifies subscribers, and flushes the
// backend write-through. Persistence errors are logged only.
func (s *Store) Set(ctx context.Context, domain Domain, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode local store value")
	}

	s.mu.Lock()
	s.values[domain] = json.RawMessage(raw)
	subs := append([]chan struct{}(nil), s.subs[domain]...)
	s.mu.Unlock()

	notify(subs)

	if err := s.backend.Save(ctx, domain, raw); err != nil && s.logg != nil {
		s.logg.Error(s.logg.WithDomain(ctx, string(domain)), "local store flush failed, keeping in-memory copy", err)
	}
	return nil
}

// Subscribe returns a channel signalled on every change to the domain, plus a
// cancel func. Signals are coalesced; subscribers re-read current state.
func (s *Store) Subscribe(domain Domain) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.subs[domain] = append(s.subs[domain], ch)
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.subs[domain]
		for i, sub := range subs {
			if sub == ch {
				s.subs[domain] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
	return ch, cancel
}

// Clear wipes every domain from memory and the backend. Used on logout only.
// Backend delete failures are aggregated and returned for logging; the
// in-memory wipe always succeeds.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.values = make(map[Domain]json.RawMessage, len(Domains()))
	var subs []chan struct{}
	for _, domainSubs := range s.subs {
		subs = append(subs, domainSubs...)
	}
	s.mu.Unlock()

	notify(subs)

	var errs error
	for _, domain := range Domains() {
		if err := s.backend.Delete(ctx, domain); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// StringSet reads a domain holding a set of identifiers, empty when absent.
func (s *Store) StringSet(domain Domain) []string {
	var ids []string
	if !s.Get(domain, &ids) {
		return nil
	}
	return ids
}

// SetStringSet stores a set of identifiers for the domain.
func (s *Store) SetStringSet(ctx context.Context, domain Domain, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	return s.Set(ctx, domain, ids)
}

func notify(subs []chan struct{}) {
	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
