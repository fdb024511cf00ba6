package testsupport

import (
	"testing"

	"storycut/internal/config"
	"storycut/internal/registry"
)

// Env bundles the config and open registry store most handler tests need.
type Env struct {
	Config *config.Config
	Store  *registry.Store
}

// NewEnv builds a test environment with temp directories and an open
// registry.
func NewEnv(t testing.TB, opts ...ConfigOption) *Env {
	t.Helper()
	cfg := NewConfig(t, opts...)
	return &Env{Config: cfg, Store: MustOpenStore(t, cfg)}
}
