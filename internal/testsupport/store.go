package testsupport

import (
	"testing"

	"tapedeck/internal/config"
	"tapedeck/internal/kvstore"
)

// MustOpenStore opens the state database for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *kvstore.Store {
	t.Helper()

	store, err := kvstore.Open(cfg)
	if err != nil {
		t.Fatalf("kvstore.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
