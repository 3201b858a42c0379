package profile

import (
	"context"
	"io"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SeaWiser/shoes-sync/internal/querycache"
	"github.com/SeaWiser/shoes-sync/internal/remote"
	pkgerrors "github.com/SeaWiser/shoes-sync/pkg/errors"
	"github.com/SeaWiser/shoes-sync/pkg/storage/gcs"
)

type stubDocs struct {
	getDoc    *remote.Document
	getErrs   []error
	gets      atomic.Int64
	createDoc *remote.Document
	createErr error
	creates   atomic.Int64
	updateDoc *remote.Document
	updateErr error
	updates   atomic.Int64
	lastData  map[string]string
}

func (s *stubDocs) GetDocument(ctx context.Context, collectionID, documentID string) (*remote.Document, error) {
	n := s.gets.Add(1)
	if int(n) <= len(s.getErrs) {
		if err := s.getErrs[n-1]; err != nil {
			return nil, err
		}
	}
	return s.getDoc, nil
}

func (s *stubDocs) CreateDocument(ctx context.Context, collectionID, documentID string, data map[string]string) (*remote.Document, error) {
	s.creates.Add(1)
	s.lastData = data
	return s.createDoc, s.createErr
}

func (s *stubDocs) UpdateDocument(ctx context.Context, collectionID, documentID string, data map[string]string) (*remote.Document, error) {
	s.updates.Add(1)
	s.lastData = data
	return s.updateDoc, s.updateErr
}

func userDoc(id string, data map[string]string) *remote.Document {
	return &remote.Document{ID: id, Data: data}
}

func newProfileService(t *testing.T, docs DocumentClient, files FileStore) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Cache:      querycache.NewCache(nil, nil),
		Client:     docs,
		Files:      files,
		Collection: "users",
		StaleTime:  time.Minute,
		RetryDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestCurrentDecodesDocument(t *testing.T) {
	t.Parallel()

	docs := &stubDocs{getDoc: userDoc("u1", map[string]string{
		FieldName:       "Ann",
		FieldFavorites:  `["a","b"]`,
		FieldSeenNotifs: `["n1"]`,
		FieldCart:       `{"lines":[]}`,
	})}
	svc := newProfileService(t, docs, nil)

	p, err := svc.Current(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if p.Name != "Ann" || !reflect.DeepEqual(p.Favorites, []string{"a", "b"}) {
		t.Fatalf("unexpected profile %+v", p)
	}

	// second call inside the stale window is served from cache
	if _, err := svc.Current(context.Background(), "u1"); err != nil {
		t.Fatalf("second Current: %v", err)
	}
	if n := docs.gets.Load(); n != 1 {
		t.Fatalf("expected a single lookup, got %d", n)
	}
}

func TestCurrentCorruptListFieldFallsBackToEmpty(t *testing.T) {
	t.Parallel()

	docs := &stubDocs{getDoc: userDoc("u1", map[string]string{
		FieldFavorites: `{not json`,
	})}
	svc := newProfileService(t, docs, nil)

	p, err := svc.Current(context.Background(), "u1")
	if err != nil {
		t.Fatalf("a corrupt attribute must not fail the profile: %v", err)
	}
	if len(p.Favorites) != 0 {
		t.Fatalf("expected empty favorites, got %v", p.Favorites)
	}
}

func TestCurrentRetriesOnceOnTransportFailure(t *testing.T) {
	t.Parallel()

	docs := &stubDocs{
		getErrs: []error{pkgerrors.New(pkgerrors.CodeTransport, "blip")},
		getDoc:  userDoc("u1", nil),
	}
	svc := newProfileService(t, docs, nil)

	p, err := svc.Current(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Current should survive one transport blip: %v", err)
	}
	if p.ID != "u1" {
		t.Fatalf("unexpected profile %+v", p)
	}
	if n := docs.gets.Load(); n != 2 {
		t.Fatalf("expected exactly one retry, got %d lookups", n)
	}
}

func TestCurrentDoesNotRetryDefiniteErrors(t *testing.T) {
	t.Parallel()

	docs := &stubDocs{
		getErrs: []error{
			pkgerrors.New(pkgerrors.CodeUnauthorized, "no"),
			pkgerrors.New(pkgerrors.CodeUnauthorized, "no"),
		},
	}
	svc := newProfileService(t, docs, nil)

	if _, err := svc.Current(context.Background(), "u1"); err == nil {
		t.Fatalf("expected error")
	}
	if n := docs.gets.Load(); n != 1 {
		t.Fatalf("definite failures must not retry, got %d lookups", n)
	}
}

func TestCurrentCreatesMissingDocumentOnce(t *testing.T) {
	t.Parallel()

	notFound := pkgerrors.New(pkgerrors.CodeNotFound, "no document")
	docs := &stubDocs{
		getErrs:   []error{notFound, notFound},
		createDoc: userDoc("u1", map[string]string{FieldFavorites: "[]"}),
	}
	svc := newProfileService(t, docs, nil)

	p, err := svc.Current(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if p.ID != "u1" {
		t.Fatalf("unexpected profile %+v", p)
	}
	if got := docs.lastData[FieldCart]; got != "{}" {
		t.Fatalf("defaults should seed an empty cart, got %q", got)
	}

	// a second miss must not create again
	svc.Invalidate("u1")
	if _, err := svc.Current(context.Background(), "u1"); err == nil {
		t.Fatalf("expected not-found to surface once creation was already attempted")
	}
	if n := docs.creates.Load(); n != 1 {
		t.Fatalf("document must be created at most once, got %d", n)
	}
}

func TestUpdateFieldsAppliesOptimisticallyAndRollsBack(t *testing.T) {
	t.Parallel()

	docs := &stubDocs{
		getDoc:    userDoc("u1", map[string]string{FieldName: "Ann"}),
		updateErr: pkgerrors.New(pkgerrors.CodeValidation, "name too long"),
	}
	svc := newProfileService(t, docs, nil)
	if _, err := svc.Current(context.Background(), "u1"); err != nil {
		t.Fatalf("prime: %v", err)
	}

	if _, err := svc.UpdateFields(context.Background(), "u1", map[string]string{FieldName: "A very long name"}); err == nil {
		t.Fatalf("expected rejection")
	}

	p, ok := svc.Peek("u1")
	if !ok || p.Name != "Ann" {
		t.Fatalf("expected rollback to previous profile, got %+v", p)
	}
}

func TestUpdateFieldsServerResponseWins(t *testing.T) {
	t.Parallel()

	docs := &stubDocs{
		getDoc:    userDoc("u1", map[string]string{FieldName: "Ann"}),
		updateDoc: userDoc("u1", map[string]string{FieldName: "Ann B."}),
	}
	svc := newProfileService(t, docs, nil)
	if _, err := svc.Current(context.Background(), "u1"); err != nil {
		t.Fatalf("prime: %v", err)
	}

	p, err := svc.UpdateFields(context.Background(), "u1", map[string]string{FieldName: "ann b"})
	if err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	if p.Name != "Ann B." {
		t.Fatalf("server-normalized value must win, got %q", p.Name)
	}
}

type stubFiles struct {
	stored gcs.StoredFile
	err    error
	name   string
}

func (f *stubFiles) Upload(ctx context.Context, objectName, contentType string, body io.Reader) (gcs.StoredFile, error) {
	f.name = objectName
	return f.stored, f.err
}

func TestUploadPhotoStoresFileAndUpdatesAvatar(t *testing.T) {
	t.Parallel()

	files := &stubFiles{stored: gcs.StoredFile{ID: "f1", URL: "https://cdn.example/avatars/u1/f1.png"}}
	docs := &stubDocs{updateDoc: userDoc("u1", map[string]string{FieldAvatarURL: files.stored.URL})}
	svc := newProfileService(t, docs, files)

	p, err := svc.UploadPhoto(context.Background(), "u1", "me.png", "image/png", strings.NewReader("img"))
	if err != nil {
		t.Fatalf("UploadPhoto: %v", err)
	}
	if p.AvatarURL != files.stored.URL {
		t.Fatalf("avatar not updated: %+v", p)
	}
	if !strings.HasPrefix(files.name, "avatars/u1/") || !strings.HasSuffix(files.name, ".png") {
		t.Fatalf("unexpected object name %q", files.name)
	}
	if docs.lastData[FieldAvatarURL] != files.stored.URL {
		t.Fatalf("update payload %v", docs.lastData)
	}
}

func TestUploadPhotoWithoutFileStore(t *testing.T) {
	t.Parallel()

	svc := newProfileService(t, &stubDocs{}, nil)
	_, err := svc.UploadPhoto(context.Background(), "u1", "me.png", "image/png", strings.NewReader("img"))
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestEncodeStringListNeverNull(t *testing.T) {
	t.Parallel()

	if got := EncodeStringList(nil); got != "[]" {
		t.Fatalf("nil list encoded as %q", got)
	}
	if got := EncodeStringList([]string{"a", "b"}); got != `["a","b"]` {
		t.Fatalf("got %q", got)
	}
}
