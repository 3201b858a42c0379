package profile

import (
	"context"
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/SeaWiser/shoes-sync/internal/cart"
	"github.com/SeaWiser/shoes-sync/internal/querycache"
	"github.com/SeaWiser/shoes-sync/internal/remote"
	pkgerrors "github.com/SeaWiser/shoes-sync/pkg/errors"
	"github.com/SeaWiser/shoes-sync/pkg/logger"
	"github.com/SeaWiser/shoes-sync/pkg/storage/gcs"
)

// DocumentClient is the slice of the remote client the profile sync needs.
type DocumentClient interface {
	GetDocument(ctx context.Context, collectionID, documentID string) (*remote.Document, error)
	CreateDocument(ctx context.Context, collectionID, documentID string, data map[string]string) (*remote.Document, error)
	UpdateDocument(ctx context.Context, collectionID, documentID string, data map[string]string) (*remote.Document, error)
}

// FileStore holds uploaded avatars. Nil disables photo uploads.
type FileStore interface {
	Upload(ctx context.Context, objectName, contentType string, body io.Reader) (gcs.StoredFile, error)
}

type ServiceParams struct {
	Cache      *querycache.Cache
	Client     DocumentClient
	Files      FileStore
	Logger     *logger.Logger
	Collection string
	// StaleTime is how long a fetched profile is served without refetching.
	StaleTime time.Duration
	// RetryDelay spaces the single retry attempted when the profile lookup
	// fails in transit.
	RetryDelay time.Duration
}

type Service interface {
	// Current returns the profile, fetched at most once per StaleTime
	// window. Concurrent callers share one request. A missing document is
	// created with empty defaults, once per process.
	Current(ctx context.Context, userID string) (*Profile, error)
	// UpdateFields writes raw attributes optimistically: the cached profile
	// reflects them immediately and rolls back if the backend rejects them.
	UpdateFields(ctx context.Context, userID string, fields map[string]string) (*Profile, error)
	// UploadPhoto stores the image and points the profile's avatar at it.
	UploadPhoto(ctx context.Context, userID, filename, contentType string, content io.Reader) (*Profile, error)
	// Peek returns the cached profile without any network activity.
	Peek(userID string) (*Profile, bool)
	Invalidate(userID string)
	// CartWriter adapts the profile updater to the cart push interface,
	// binding it to one user.
	CartWriter(userID string) cart.RemoteWriter
}

type service struct {
	cache      *querycache.Cache
	client     DocumentClient
	files      FileStore
	logg       *logger.Logger
	collection string
	staleTime  time.Duration
	retryDelay time.Duration

	mu      sync.Mutex
	created map[string]bool
}

func NewService(params ServiceParams) (Service, error) {
	if params.Cache == nil || params.Client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "profile service requires a cache and a remote client")
	}
	if params.Collection == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "profile collection is required")
	}
	retryDelay := params.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 250 * time.Millisecond
	}
	return &service{
		cache:      params.Cache,
		client:     params.Client,
		files:      params.Files,
		logg:       params.Logger,
		collection: params.Collection,
		staleTime:  params.StaleTime,
		retryDelay: retryDelay,
		created:    make(map[string]bool),
	}, nil
}

func cacheKey(userID string) querycache.Key {
	return querycache.Key{"user", userID}
}

func (s *service) Current(ctx context.Context, userID string) (*Profile, error) {
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	data, err := s.cache.Read(ctx, cacheKey(userID), func(ctx context.Context) (any, error) {
		return s.fetchOrCreate(ctx, userID)
	}, querycache.ReadOptions{StaleTime: s.staleTime})
	if err != nil {
		return nil, err
	}
	p, ok := data.(*Profile)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "unexpected cached profile payload")
	}
	return p, nil
}

// fetchOrCreate looks the document up, retrying once on a transport failure.
// A missing document means first sign-in on this backend: it is created with
// empty defaults, but only once per process so a flapping backend cannot
// trigger duplicate-create loops.
func (s *service) fetchOrCreate(ctx context.Context, userID string) (*Profile, error) {
	var doc *remote.Document
	backoff := retry.WithMaxRetries(1, retry.NewConstant(s.retryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		d, lookupErr := s.client.GetDocument(ctx, s.collection, userID)
		if lookupErr != nil {
			if pkgerrors.IsTransport(lookupErr) {
				return retry.RetryableError(lookupErr)
			}
			return lookupErr
		}
		doc = d
		return nil
	})
	if err == nil {
		return fromDocument(ctx, doc, s.logg), nil
	}

	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		return nil, err
	}

	s.mu.Lock()
	alreadyTried := s.created[userID]
	s.created[userID] = true
	s.mu.Unlock()
	if alreadyTried {
		return nil, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithUserID(ctx, userID), "no profile document yet, creating one with defaults")
	}
	doc, err = s.client.CreateDocument(ctx, s.collection, userID, map[string]string{
		FieldFavorites:  "[]",
		FieldSeenNotifs: "[]",
		FieldCart:       "{}",
	})
	if err != nil {
		return nil, err
	}
	return fromDocument(ctx, doc, s.logg), nil
}

func (s *service) UpdateFields(ctx context.Context, userID string, fields map[string]string) (*Profile, error) {
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if len(fields) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no fields to update")
	}

	final, err := s.cache.Mutate(ctx, cacheKey(userID),
		func(ctx context.Context) (any, error) {
			doc, err := s.client.UpdateDocument(ctx, s.collection, userID, fields)
			if err != nil {
				return nil, err
			}
			return fromDocument(ctx, doc, s.logg), nil
		},
		querycache.MutateHooks{
			OnOptimistic: func(current any, hasData bool) any {
				base, _ := current.(*Profile)
				if base == nil {
					base = &Profile{ID: userID}
				}
				return base.applyFields(ctx, fields, s.logg)
			},
		})
	if err != nil {
		return nil, err
	}
	p, _ := final.(*Profile)
	return p, nil
}

func (s *service) UploadPhoto(ctx context.Context, userID, filename, contentType string, content io.Reader) (*Profile, error) {
	if s.files == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "file storage is not configured")
	}
	objectName := fmt.Sprintf("avatars/%s/%s%s", userID, uuid.NewString(), path.Ext(filename))
	stored, err := s.files.Upload(ctx, objectName, contentType, content)
	if err != nil {
		return nil, err
	}
	return s.UpdateFields(ctx, userID, map[string]string{FieldAvatarURL: stored.URL})
}

func (s *service) Peek(userID string) (*Profile, bool) {
	data, ok := s.cache.Get(cacheKey(userID))
	if !ok {
		return nil, false
	}
	p, ok := data.(*Profile)
	return p, ok
}

func (s *service) Invalidate(userID string) {
	s.cache.Invalidate(cacheKey(userID))
}

func (s *service) CartWriter(userID string) cart.RemoteWriter {
	return cartWriter{svc: s, userID: userID}
}

type cartWriter struct {
	svc    *service
	userID string
}

func (w cartWriter) WriteCart(ctx context.Context, serialized string) error {
	_, err := w.svc.UpdateFields(ctx, w.userID, map[string]string{FieldCart: serialized})
	return err
}
