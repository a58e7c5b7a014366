package core

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpenPersistentStoreMemoryDriver(t *testing.T) {
	t.Setenv("ASSETCORE_STORAGE_DRIVER", "memory")
	store, err := OpenPersistentStore(NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("open memory store: %v", err)
	}
	svc := NewService(store)
	if _, _, err := svc.CreateLocation(context.Background(), Location{Name: "HQ"}); err != nil {
		t.Fatalf("create location on memory store: %v", err)
	}
}

func TestOpenPersistentStoreSQLiteDefault(t *testing.T) {
	t.Setenv("ASSETCORE_STORAGE_DRIVER", "")
	t.Setenv("ASSETCORE_SQLITE_PATH", filepath.Join(t.TempDir(), "register.db"))
	store, err := OpenPersistentStore(NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("open default store: %v", err)
	}
	svc := NewService(store)
	if _, _, err := svc.CreateLocation(context.Background(), Location{Name: "HQ"}); err != nil {
		t.Fatalf("create location on sqlite store: %v", err)
	}
}

func TestOpenPersistentStoreUnknownDriver(t *testing.T) {
	t.Setenv("ASSETCORE_STORAGE_DRIVER", "tape")
	if _, err := OpenPersistentStore(NewDefaultRulesEngine()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
