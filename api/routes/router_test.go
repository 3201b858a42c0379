package routes

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/SeaWiser/shoes-sync/api/controllers"
	"github.com/SeaWiser/shoes-sync/pkg/config"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error { return s.err }

func newTestRouter(pingers map[string]controllers.Pinger) http.Handler {
	cfg := &config.Config{}
	cfg.App.Env = "dev"
	return NewRouter(RouterParams{
		Config:  cfg,
		Pingers: pingers,
	})
}

func TestHealthLive(t *testing.T) {
	router := newTestRouter(nil)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if got := resp.Header().Get("X-Shoes-Env"); got != "dev" {
		t.Fatalf("expected env header dev, got %q", got)
	}
}

func TestHealthReadyFailingDependency(t *testing.T) {
	router := newTestRouter(map[string]controllers.Pinger{
		"store": stubPinger{},
		"redis": stubPinger{err: errors.New("connection refused")},
	})

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}

func TestMetricsEndpointRegistered(t *testing.T) {
	router := newTestRouter(nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	router := newTestRouter(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/unknown", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}
