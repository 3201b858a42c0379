package config

import (
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SHOES_APPWRITE_ENDPOINT", "https://backend.example.com/v1")
	t.Setenv("SHOES_APPWRITE_PROJECT_ID", "shoes")
	t.Setenv("SHOES_APPWRITE_DATABASE_ID", "main")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Store.Driver != StoreDriverSQLite {
		t.Fatalf("expected sqlite default driver, got %q", cfg.Store.Driver)
	}
	if !cfg.App.IsDev() {
		t.Fatalf("expected dev env by default")
	}
	if cfg.Sync.ProfileStaleTime.Minutes() != 5 {
		t.Fatalf("unexpected profile stale time: %v", cfg.Sync.ProfileStaleTime)
	}
	if cfg.Appwrite.UsersCollectionID != "users" {
		t.Fatalf("unexpected users collection: %q", cfg.Appwrite.UsersCollectionID)
	}
}

func TestLoadRejectsUnknownStoreDriver(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SHOES_STORE_DRIVER", "cassandra")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

func TestLoadRedisDriverRequiresRedisConfig(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SHOES_STORE_DRIVER", "redis")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error when redis driver has no connection config")
	}

	t.Setenv("SHOES_REDIS_ADDR", "localhost:6379")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Redis.Enabled() {
		t.Fatalf("redis should report enabled")
	}
}

func TestStripeEnvironmentNormalization(t *testing.T) {
	cfg := StripeConfig{Env: "  LIVE "}
	if cfg.Environment() != "live" {
		t.Fatalf("expected live, got %q", cfg.Environment())
	}
	if (StripeConfig{}).Environment() != "test" {
		t.Fatalf("expected test fallback")
	}
}
