package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestLoggerErrorIncludesContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})

	ctx := context.Background()
	ctx = log.WithRequestID(ctx, "req-123")
	ctx = log.WithDomain(ctx, "favorites")

	log.Error(ctx, "boom", errors.New("boom"))

	if !bytes.Contains(buf.Bytes(), []byte("\"request_id\"")) {
		t.Fatalf("expected request_id to be preserved; entry=%s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte("\"domain\"")) {
		t.Fatalf("expected domain to be preserved; entry=%s", buf.String())
	}
}

func TestLoggerCacheKeyField(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})

	ctx := log.WithCacheKey(context.Background(), "user/abc")
	log.Info(ctx, "cache.hit")

	if !bytes.Contains(buf.Bytes(), []byte("\"cache_key\"")) {
		t.Fatalf("expected cache_key field; entry=%s", buf.String())
	}
}
