package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/SeaWiser/shoes-sync/internal/cart"
	pkgerrors "github.com/SeaWiser/shoes-sync/pkg/errors"
)

type stubCartService struct {
	current  cart.Cart
	err      error
	lastLine cart.Line
	removed  string
}

func (s *stubCartService) Current() cart.Cart { return s.current }

func (s *stubCartService) Add(ctx context.Context, line cart.Line) (cart.Cart, error) {
	s.lastLine = line
	return s.current.AddLine(line), s.err
}

func (s *stubCartService) Remove(ctx context.Context, productID string) (cart.Cart, error) {
	s.removed = productID
	return s.current.RemoveLine(productID), s.err
}

func (s *stubCartService) SetQuantity(ctx context.Context, productID, size string, quantity int) (cart.Cart, error) {
	return s.current.ChangeQuantity(productID, size, quantity), s.err
}

func (s *stubCartService) AdoptRemote(ctx context.Context, serialized string) error { return nil }

func (s *stubCartService) Clear(ctx context.Context) error { return nil }

func withURLParam(r *http.Request, key, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, routeCtx))
}

func TestCartAddLineSuccess(t *testing.T) {
	svc := &stubCartService{}
	handler := CartAddLine(svc, nil)

	body := `{"id":"p1","name":"Runner","size":"42","price":"99.90","quantity":2}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/lines", strings.NewReader(body))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.lastLine.ProductID != "p1" || svc.lastLine.Quantity != 2 {
		t.Fatalf("unexpected line passed to service: %+v", svc.lastLine)
	}

	var envelope struct {
		Data struct {
			Cart    cart.Cart `json:"cart"`
			Offline bool      `json:"offline"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Offline {
		t.Fatal("expected offline=false")
	}
	if got := envelope.Data.Cart.Total(); !got.Equal(decimal.RequireFromString("199.80")) {
		t.Fatalf("unexpected total: %s", got)
	}
}

func TestCartAddLineNegativePrice(t *testing.T) {
	handler := CartAddLine(&stubCartService{}, nil)

	body := `{"id":"p1","name":"Runner","size":"42","price":"-5","quantity":1}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/lines", strings.NewReader(body))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCartAddLineOfflineKeepsCart(t *testing.T) {
	svc := &stubCartService{err: pkgerrors.New(pkgerrors.CodeTransport, "network down")}
	handler := CartAddLine(svc, nil)

	body := `{"id":"p1","name":"Runner","size":"42","price":"50","quantity":1}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/lines", strings.NewReader(body))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}

	var envelope struct {
		Data struct {
			Offline bool `json:"offline"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !envelope.Data.Offline {
		t.Fatal("expected offline=true on a transport failure")
	}
}

func TestCartAddLineRejectionSurfaces(t *testing.T) {
	svc := &stubCartService{err: pkgerrors.New(pkgerrors.CodeValidation, "product retired")}
	handler := CartAddLine(svc, nil)

	body := `{"id":"p1","name":"Runner","size":"42","price":"50","quantity":1}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/lines", strings.NewReader(body))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCartRemoveLine(t *testing.T) {
	svc := &stubCartService{current: cart.Cart{}.AddLine(cart.Line{
		ProductID: "p1", Name: "Runner", Size: "42",
		Price: decimal.RequireFromString("50"), Quantity: 1,
	})}
	handler := CartRemoveLine(svc, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/cart/lines/p1", nil)
	req = withURLParam(req, "productId", "p1")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.removed != "p1" {
		t.Fatalf("expected removal of p1, got %q", svc.removed)
	}
}

func TestCartRemoveLineMissingParam(t *testing.T) {
	handler := CartRemoveLine(&stubCartService{}, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/cart/lines/", nil)
	req = withURLParam(req, "productId", "")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
