// Package remote talks to the hosted backend over its REST API. Every
// resource lives in a collection of documents whose attributes are flat
// string fields; richer values are serialized JSON inside those strings.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/SeaWiser/shoes-sync/pkg/config"
	pkgerrors "github.com/SeaWiser/shoes-sync/pkg/errors"
	"github.com/SeaWiser/shoes-sync/pkg/logger"
)

const defaultTimeout = 10 * time.Second

// Document is a stored record. System attributes (the $-prefixed ones) are
// stripped into the struct fields; everything else lands in Data.
type Document struct {
	ID        string
	UpdatedAt time.Time
	Data      map[string]string
}

// User is the account owning the current session.
type User struct {
	ID    string `json:"$id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Session is an authenticated session. Secret is only populated on creation.
type Session struct {
	ID     string `json:"$id"`
	UserID string `json:"userId"`
	Secret string `json:"secret"`
	Expire string `json:"expire"`
}

type Client struct {
	endpoint   string
	projectID  string
	databaseID string
	httpClient *http.Client
	logg       *logger.Logger

	mu      sync.RWMutex
	session string
}

func NewClient(cfg config.AppwriteConfig, logg *logger.Logger) (*Client, error) {
	if cfg.Endpoint == "" || cfg.ProjectID == "" || cfg.DatabaseID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "remote endpoint, project and database are required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		projectID:  cfg.ProjectID,
		databaseID: cfg.DatabaseID,
		httpClient: &http.Client{Timeout: timeout},
		logg:       logg,
	}, nil
}

// SetSession installs the session secret used on subsequent requests. An
// empty secret returns the client to anonymous mode.
func (c *Client) SetSession(secret string) {
	c.mu.Lock()
	c.session = secret
	c.mu.Unlock()
}

func (c *Client) currentSession() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// Account returns the user bound to the current session.
func (c *Client) Account(ctx context.Context) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/account", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateEmailSession signs the user in and returns the new session. The
// caller is responsible for installing the secret via SetSession.
func (c *Client) CreateEmailSession(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}
	var session Session
	if err := c.do(ctx, http.MethodPost, "/account/sessions/email", body, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// DeleteSession revokes the current session server-side.
func (c *Client) DeleteSession(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/account/sessions/current", nil, nil)
}

func (c *Client) collectionPath(collectionID string) string {
	return fmt.Sprintf("/databases/%s/collections/%s/documents", c.databaseID, collectionID)
}

// ListDocuments fetches every document of the collection.
func (c *Client) ListDocuments(ctx context.Context, collectionID string) ([]Document, error) {
	var out struct {
		Documents []json.RawMessage `json:"documents"`
	}
	if err := c.do(ctx, http.MethodGet, c.collectionPath(collectionID), nil, &out); err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(out.Documents))
	for _, raw := range out.Documents {
		doc, err := decodeDocument(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (c *Client) GetDocument(ctx context.Context, collectionID, documentID string) (*Document, error) {
	var raw json.RawMessage
	path := c.collectionPath(collectionID) + "/" + url.PathEscape(documentID)
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	doc, err := decodeDocument(raw)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *Client) CreateDocument(ctx context.Context, collectionID, documentID string, data map[string]string) (*Document, error) {
	body := map[string]any{"documentId": documentID, "data": data}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, c.collectionPath(collectionID), body, &raw); err != nil {
		return nil, err
	}
	doc, err := decodeDocument(raw)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *Client) UpdateDocument(ctx context.Context, collectionID, documentID string, data map[string]string) (*Document, error) {
	body := map[string]any{"data": data}
	path := c.collectionPath(collectionID) + "/" + url.PathEscape(documentID)
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPatch, path, body, &raw); err != nil {
		return nil, err
	}
	doc, err := decodeDocument(raw)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *Client) DeleteDocument(ctx context.Context, collectionID, documentID string) error {
	path := c.collectionPath(collectionID) + "/" + url.PathEscape(documentID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding request body")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Appwrite-Project", c.projectID)
	if session := c.currentSession(); session != "" {
		req.Header.Set("X-Appwrite-Session", session)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeTransport, err, "request did not complete")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDecode, err, "decoding response body")
	}
	return nil
}

func statusError(resp *http.Response) error {
	var apiErr struct {
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &apiErr)
	msg := apiErr.Message
	if msg == "" {
		msg = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return pkgerrors.New(pkgerrors.CodeUnauthorized, msg)
	case http.StatusNotFound:
		return pkgerrors.New(pkgerrors.CodeNotFound, msg)
	case http.StatusConflict:
		return pkgerrors.New(pkgerrors.CodeConflict, msg)
	case http.StatusBadRequest:
		return pkgerrors.New(pkgerrors.CodeValidation, msg)
	default:
		return pkgerrors.New(pkgerrors.CodeDependency, msg)
	}
}

func decodeDocument(raw json.RawMessage) (Document, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Document{}, pkgerrors.Wrap(pkgerrors.CodeDecode, err, "decoding document")
	}

	doc := Document{Data: make(map[string]string, len(fields))}
	for key, value := range fields {
		switch key {
		case "$id":
			_ = json.Unmarshal(value, &doc.ID)
		case "$updatedAt":
			var ts string
			if json.Unmarshal(value, &ts) == nil {
				doc.UpdatedAt, _ = time.Parse(time.RFC3339, ts)
			}
		default:
			if strings.HasPrefix(key, "$") {
				continue
			}
			var s string
			if err := json.Unmarshal(value, &s); err == nil {
				doc.Data[key] = s
			} else {
				doc.Data[key] = string(value)
			}
		}
	}
	if doc.ID == "" {
		return Document{}, pkgerrors.New(pkgerrors.CodeDecode, "document payload has no identifier")
	}
	return doc, nil
}
