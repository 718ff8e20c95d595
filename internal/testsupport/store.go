package testsupport

import (
	"context"
	"testing"
	"time"

	"tvship/internal/config"
	"tvship/internal/registry"
)

// MustOpenStore opens a registry.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *registry.Store {
	t.Helper()

	store, err := registry.Open(cfg)
	if err != nil {
		t.Fatalf("registry.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// PairedDevice inserts a paired device for tests using the provided store.
func PairedDevice(t testing.TB, store *registry.Store, alias, host string, port int) *registry.Device {
	t.Helper()

	now := time.Now().UTC()
	device := &registry.Device{
		Alias:    alias,
		Host:     host,
		Port:     port,
		Token:    "test-token-" + alias,
		State:    registry.StatePaired,
		LastSeen: &now,
	}
	if err := store.Upsert(context.Background(), device); err != nil {
		t.Fatalf("Upsert paired device: %v", err)
	}
	return device
}
