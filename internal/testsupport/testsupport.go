// Package testsupport provides shared helpers for package tests.
package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"subgen/internal/config"
	"subgen/internal/logging"
	"subgen/internal/registry"
)

// NewConfig returns a validated configuration rooted in a per-test temp
// directory.
func NewConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()

	cfg := config.Default()
	cfg.Paths.TempDir = filepath.Join(base, "tmp")
	cfg.Paths.OutputDir = filepath.Join(base, "output")
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.ASR.APIKey = "test-key"
	cfg.Translation.APIKey = "test-key"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return &cfg
}

// MustOpenStore opens a SQLite task store in the test's data directory and
// closes it on cleanup.
func MustOpenStore(t *testing.T, cfg *config.Config) *registry.Store {
	t.Helper()
	store, err := registry.OpenStore(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// MustNewRegistry builds a registry over a fresh store.
func MustNewRegistry(t *testing.T, cfg *config.Config) *registry.Registry {
	t.Helper()
	store := MustOpenStore(t, cfg)
	reg, err := registry.New(context.Background(), store, logging.NewNop())
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return reg
}
