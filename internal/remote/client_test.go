package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SeaWiser/shoes-sync/pkg/config"
	pkgerrors "github.com/SeaWiser/shoes-sync/pkg/errors"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(config.AppwriteConfig{
		Endpoint:   srv.URL,
		ProjectID:  "proj",
		DatabaseID: "db",
		Timeout:    2 * time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestRequestCarriesProjectAndSessionHeaders(t *testing.T) {
	t.Parallel()

	var gotProject, gotSession string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotProject = r.Header.Get("X-Appwrite-Project")
		gotSession = r.Header.Get("X-Appwrite-Session")
		w.Write([]byte(`{"$id":"u1","email":"a@b.c","name":"Ann"}`))
	}))
	client.SetSession("sess-secret")

	user, err := client.Account(context.Background())
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	if user.ID != "u1" || user.Email != "a@b.c" {
		t.Fatalf("unexpected user %+v", user)
	}
	if gotProject != "proj" || gotSession != "sess-secret" {
		t.Fatalf("headers project=%q session=%q", gotProject, gotSession)
	}
}

func TestStatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		code   pkgerrors.Code
	}{
		{http.StatusUnauthorized, pkgerrors.CodeUnauthorized},
		{http.StatusNotFound, pkgerrors.CodeNotFound},
		{http.StatusConflict, pkgerrors.CodeConflict},
		{http.StatusBadRequest, pkgerrors.CodeValidation},
		{http.StatusInternalServerError, pkgerrors.CodeDependency},
	}
	for _, tc := range tests {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			w.Write([]byte(`{"message":"nope"}`))
		}))

		_, err := client.Account(context.Background())
		typed := pkgerrors.As(err)
		if typed == nil || typed.Code() != tc.code {
			t.Fatalf("status %d: expected %s, got %v", tc.status, tc.code, err)
		}
	}
}

func TestUnreachableBackendIsTransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // nothing is listening anymore

	client, err := NewClient(config.AppwriteConfig{
		Endpoint:   srv.URL,
		ProjectID:  "proj",
		DatabaseID: "db",
	}, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, err = client.Account(context.Background())
	if !pkgerrors.IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestListDocumentsStripsSystemAttributes(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/databases/db/collections/users/documents" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"total":1,"documents":[
			{"$id":"d1","$collectionId":"users","$updatedAt":"2026-01-02T03:04:05.000+00:00",
			 "favorites":"[\"a\"]","cart":"{}","count":3}
		]}`))
	}))

	docs, err := client.ListDocuments(context.Background(), "users")
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	doc := docs[0]
	if doc.ID != "d1" {
		t.Fatalf("id = %q", doc.ID)
	}
	if _, ok := doc.Data["$collectionId"]; ok {
		t.Fatalf("system attributes must be stripped")
	}
	if doc.Data["favorites"] != `["a"]` || doc.Data["count"] != "3" {
		t.Fatalf("unexpected data %v", doc.Data)
	}
	if doc.UpdatedAt.IsZero() {
		t.Fatalf("expected parsed update timestamp")
	}
}

func TestCreateAndUpdateDocument(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			w.Write([]byte(`{"$id":"new-doc","cart":"{}"}`))
		case r.Method == http.MethodPatch:
			if r.URL.Path != "/databases/db/collections/users/documents/new-doc" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			w.Write([]byte(`{"$id":"new-doc","cart":"{\"lines\":[]}"}`))
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}))

	created, err := client.CreateDocument(context.Background(), "users", "new-doc", map[string]string{"cart": "{}"})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if created.ID != "new-doc" {
		t.Fatalf("created id = %q", created.ID)
	}

	updated, err := client.UpdateDocument(context.Background(), "users", "new-doc", map[string]string{"cart": `{"lines":[]}`})
	if err != nil {
		t.Fatalf("UpdateDocument: %v", err)
	}
	if updated.Data["cart"] != `{"lines":[]}` {
		t.Fatalf("unexpected data %v", updated.Data)
	}
}

func TestCreateEmailSession(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/account/sessions/email" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"$id":"s1","userId":"u1","secret":"tok","expire":"2026-09-01T00:00:00.000+00:00"}`))
	}))

	session, err := client.CreateEmailSession(context.Background(), "a@b.c", "hunter2")
	if err != nil {
		t.Fatalf("CreateEmailSession: %v", err)
	}
	if session.UserID != "u1" || session.Secret != "tok" {
		t.Fatalf("unexpected session %+v", session)
	}
}
