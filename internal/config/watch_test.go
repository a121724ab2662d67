package config

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"longform-transcriber/internal/domain"
)

// TestWatchReloadsOnWrite checks hot reload after a save.
func TestWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	store := NewFileStore(path)
	if err := store.Save(DefaultSettings()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan domain.Settings, 8)
	if err := Watch(ctx, store, func(s domain.Settings) { changes <- s }); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	updated := DefaultSettings()
	updated.Concurrency = 7
	if err := store.Save(updated); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case s := <-changes:
			if s.Concurrency == 7 {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for reload")
		}
	}
}
