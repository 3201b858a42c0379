// Package notifications serves the notification catalog and tracks which
// entries the user has seen. Seen state is a grow-only set: an entry marked
// seen on any device stays seen everywhere.
package notifications

import (
	"context"
	"slices"
	"time"

	"github.com/SeaWiser/shoes-sync/internal/localstore"
	"github.com/SeaWiser/shoes-sync/internal/profile"
	"github.com/SeaWiser/shoes-sync/internal/querycache"
	"github.com/SeaWiser/shoes-sync/internal/reconciler"
	"github.com/SeaWiser/shoes-sync/internal/remote"
	pkgerrors "github.com/SeaWiser/shoes-sync/pkg/errors"
	"github.com/SeaWiser/shoes-sync/pkg/logger"
)

// Notification is one catalog entry.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// CatalogClient lists the notification collection.
type CatalogClient interface {
	ListDocuments(ctx context.Context, collectionID string) ([]remote.Document, error)
}

// ProfileSource exposes the remote seen set and lets us extend it.
type ProfileSource interface {
	Current(ctx context.Context, userID string) (*profile.Profile, error)
	UpdateFields(ctx context.Context, userID string, fields map[string]string) (*profile.Profile, error)
}

type ServiceParams struct {
	Store      *localstore.Store
	Cache      *querycache.Cache
	Client     CatalogClient
	Profiles   ProfileSource
	Reconciler *reconciler.Reconciler
	Logger     *logger.Logger
	Collection string
	StaleTime  time.Duration
}

type Service interface {
	// Catalog returns every notification, newest first, served through the
	// query cache.
	Catalog(ctx context.Context) ([]Notification, error)
	// IsSeen answers from the local set only.
	IsSeen(notificationID string) bool
	// MarkSeen adds the entry to the local seen set and pushes the combined
	// set to the profile. Marking is monotonic: the local entry stays seen
	// even when the push fails.
	MarkSeen(ctx context.Context, userID, notificationID string) error
	// UnreadCount is the catalog minus everything seen locally or remotely.
	UnreadCount(ctx context.Context, userID string) (int, error)
	// Sync folds the remote seen set into the local one.
	Sync(ctx context.Context, userID string) error
	Invalidate()
}

type service struct {
	store      *localstore.Store
	cache      *querycache.Cache
	client     CatalogClient
	profiles   ProfileSource
	reconciler *reconciler.Reconciler
	logg       *logger.Logger
	collection string
	staleTime  time.Duration
}

func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil || params.Cache == nil || params.Client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifications service requires a store, a cache and a remote client")
	}
	if params.Collection == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notifications collection is required")
	}
	return &service{
		store:      params.Store,
		cache:      params.Cache,
		client:     params.Client,
		profiles:   params.Profiles,
		reconciler: params.Reconciler,
		logg:       params.Logger,
		collection: params.Collection,
		staleTime:  params.StaleTime,
	}, nil
}

var catalogKey = querycache.Key{"notifications"}

func (s *service) Catalog(ctx context.Context) ([]Notification, error) {
	data, err := s.cache.Read(ctx, catalogKey, func(ctx context.Context) (any, error) {
		docs, err := s.client.ListDocuments(ctx, s.collection)
		if err != nil {
			return nil, err
		}
		catalog := make([]Notification, 0, len(docs))
		for _, doc := range docs {
			catalog = append(catalog, fromDocument(doc))
		}
		slices.SortFunc(catalog, func(a, b Notification) int {
			return b.CreatedAt.Compare(a.CreatedAt)
		})
		return catalog, nil
	}, querycache.ReadOptions{StaleTime: s.staleTime})
	if err != nil {
		return nil, err
	}
	catalog, ok := data.([]Notification)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "unexpected cached catalog payload")
	}
	return catalog, nil
}

func fromDocument(doc remote.Document) Notification {
	n := Notification{
		ID:        doc.ID,
		Title:     doc.Data["title"],
		Body:      doc.Data["body"],
		ImageURL:  doc.Data["image"],
		CreatedAt: doc.UpdatedAt,
	}
	if raw, ok := doc.Data["createdAt"]; ok {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			n.CreatedAt = ts
		}
	}
	return n
}

func (s *service) IsSeen(notificationID string) bool {
	return slices.Contains(s.store.StringSet(localstore.DomainSeenNotifs), notificationID)
}

func (s *service) MarkSeen(ctx context.Context, userID, notificationID string) error {
	if notificationID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}
	local := s.store.StringSet(localstore.DomainSeenNotifs)
	if !slices.Contains(local, notificationID) {
		local = append(local, notificationID)
		if err := s.store.SetStringSet(ctx, localstore.DomainSeenNotifs, local); err != nil {
			return err
		}
	}
	if userID == "" || s.profiles == nil {
		return nil
	}

	seen := local
	if p, err := s.profiles.Current(ctx, userID); err == nil {
		seen = reconciler.Union(local, p.SeenNotifs)
	}
	if _, err := s.profiles.UpdateFields(ctx, userID, map[string]string{profile.FieldSeenNotifs: profile.EncodeStringList(seen)}); err != nil {
		// the local mark stays: seen state only ever grows
		if s.logg != nil {
			s.logg.Warn(s.logg.WithUserID(ctx, userID), "seen-set push failed, local mark kept")
		}
		return err
	}
	return nil
}

func (s *service) UnreadCount(ctx context.Context, userID string) (int, error) {
	catalog, err := s.Catalog(ctx)
	if err != nil {
		return 0, err
	}
	seen := s.store.StringSet(localstore.DomainSeenNotifs)
	if userID != "" && s.profiles != nil {
		if p, profErr := s.profiles.Current(ctx, userID); profErr == nil {
			seen = reconciler.Union(seen, p.SeenNotifs)
		}
	}

	count := 0
	for _, n := range catalog {
		if !slices.Contains(seen, n.ID) {
			count++
		}
	}
	return count, nil
}

func (s *service) Sync(ctx context.Context, userID string) error {
	if userID == "" || s.profiles == nil || s.reconciler == nil {
		return nil
	}
	p, err := s.profiles.Current(ctx, userID)
	if err != nil {
		return err
	}
	return s.reconciler.Reconcile(ctx, localstore.DomainSeenNotifs, p.SeenNotifs)
}

func (s *service) Invalidate() {
	s.cache.Invalidate(catalogKey)
}
