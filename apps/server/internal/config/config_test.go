package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.Store.Mode != StoreModeSQLite {
		t.Fatalf("expected sqlite store by default, got %q", cfg.Store.Mode)
	}
	if cfg.Images.Mode != ImagesModeMock {
		t.Fatalf("expected mock images by default, got %q", cfg.Images.Mode)
	}
	if cfg.Images.ImageTimeout != 30*time.Second || cfg.Images.MetadataTimeout != 15*time.Second {
		t.Fatalf("unexpected image timeouts: %+v", cfg.Images)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Fatalf("expected :8080, got %q", cfg.HTTP.Addr)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SCHOLAVERSE_STORE_MODE", "mem")
	t.Setenv("SCHOLAVERSE_HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("SCHOLAVERSE_LOG_FORMAT", "JSON")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Mode != StoreModeMemory {
		t.Fatalf("expected memory store, got %q", cfg.Store.Mode)
	}
	if cfg.HTTP.Addr != "127.0.0.1:9000" {
		t.Fatalf("expected env addr, got %q", cfg.HTTP.Addr)
	}
	if cfg.Log.Format != "json" {
		t.Fatalf("expected json log format, got %q", cfg.Log.Format)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scholaverse.yaml")
	body := "store:\n  mode: postgres\n  postgres_dsn: postgres://x@db/rules\nimages:\n  mode: http\n  base_url: http://images.local/\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Mode != StoreModePostgres || cfg.Store.PostgresDSN != "postgres://x@db/rules" {
		t.Fatalf("unexpected store config: %+v", cfg.Store)
	}
	if cfg.Images.BaseURL != "http://images.local" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Images.BaseURL)
	}
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	t.Setenv("SCHOLAVERSE_STORE_MODE", "redis")
	_, err := Load("")
	var cfgErr *Error
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if cfgErr.Field != "store.mode" {
		t.Fatalf("expected store.mode field, got %q", cfgErr.Field)
	}
}

func TestValidateHTTPImagesNeedsBaseURL(t *testing.T) {
	t.Setenv("SCHOLAVERSE_IMAGES_MODE", "http")
	_, err := Load("")
	if !IsError(err) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
