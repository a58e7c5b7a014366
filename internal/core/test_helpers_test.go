package core

import (
	"context"
	"testing"
	"time"

	"assetcore/pkg/domain"
)

// strPtr is a lightweight helper for pointer fields in core package tests.
func strPtr(v string) *string {
	return &v
}

func mustChangePayload[T any](t *testing.T, value T) domain.ChangePayload {
	t.Helper()
	payload, err := domain.NewChangePayloadFromValue(value)
	if err != nil {
		t.Fatalf("build change payload: %v", err)
	}
	return payload
}

// newSeededService builds an in-memory service preloaded with a small office
// forest (HQ and Annex at top level, Lab under HQ), one user and one project.
func newSeededService(t *testing.T, opts ...ServiceOption) (*Service, User, Project) {
	return newSeededServiceClock(t, nil, opts...)
}

// newSeededServiceClock is newSeededService with the given time source wired
// into both the service and the store, so history timestamps and maintenance
// dates agree in tests that move time around.
func newSeededServiceClock(t *testing.T, clock func() time.Time, opts ...ServiceOption) (*Service, User, Project) {
	t.Helper()
	ctx := context.Background()
	store := NewMemoryStore(NewDefaultRulesEngine())
	if clock != nil {
		store.SetNowFunc(clock)
		opts = append(opts, WithClock(clock))
	}
	svc := NewService(store, opts...)

	for _, loc := range []Location{
		{Name: "HQ", Kind: "office"},
		{Name: "Annex", Kind: "office"},
		{Name: "Lab", Parent: "HQ", Kind: "room"},
	} {
		if _, _, err := svc.CreateLocation(ctx, loc); err != nil {
			t.Fatalf("seed location %q: %v", loc.Name, err)
		}
	}
	user, _, err := svc.CreateUser(ctx, User{Name: "Dana Reyes", Email: "dana@example.com", Location: "HQ"})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	project, _, err := svc.CreateProject(ctx, Project{Code: "PRJ-7", Title: "Field kit refresh", Location: "Annex"})
	if err != nil {
		t.Fatalf("seed project: %v", err)
	}
	return svc, user, project
}

func mustIntake(t *testing.T, svc *Service, office string) Asset {
	t.Helper()
	asset, _, err := svc.IntakeAsset(context.Background(), AssetIntake{
		Name:     "ThinkPad X9",
		Serial:   "SN-100",
		Category: "laptop",
		Office:   office,
		IssuedBy: "ops",
	})
	if err != nil {
		t.Fatalf("intake asset: %v", err)
	}
	return asset
}
