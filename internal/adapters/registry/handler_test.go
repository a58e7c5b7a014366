package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"assetcore/internal/blob"
	"assetcore/internal/core"
	"assetcore/pkg/domain"
)

func newTestHandler(t *testing.T) (*Handler, *core.Service) {
	t.Helper()
	ctx := context.Background()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine(), core.WithDocumentStore(blob.NewMemory()))
	for _, loc := range []core.Location{
		{Name: "HQ"},
		{Name: "Lab", Parent: "HQ"},
		{Name: "Annex"},
	} {
		if _, _, err := svc.CreateLocation(ctx, loc); err != nil {
			t.Fatalf("seed location: %v", err)
		}
	}
	return NewHandler(svc), svc
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHandlerLocationLifecycle(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/locations", map[string]any{"name": "Vault", "parent": "HQ"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create location status = %d body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/locations", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list locations status = %d", rec.Code)
	}
	var listing struct {
		Locations []domain.Location `json:"locations"`
	}
	decodeInto(t, rec, &listing)
	if len(listing.Locations) != 4 {
		t.Fatalf("locations = %+v, want 4", listing.Locations)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/locations", map[string]any{"name": "Lost", "parent": "Nowhere"}, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("bad parent status = %d", rec.Code)
	}
}

func TestHandlerAssetIntakeAndFetch(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/assets", map[string]any{
		"name":      "ThinkPad X9",
		"serial":    "SN-100",
		"category":  "laptop",
		"office":    "HQ",
		"issued_by": "ops",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("intake status = %d body %s", rec.Code, rec.Body.String())
	}
	var asset domain.Asset
	decodeInto(t, rec, &asset)
	if asset.ID == "" || asset.Status != domain.StatusAvailable {
		t.Fatalf("created asset = %+v", asset)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/assets/"+asset.ID, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get asset status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/assets/ghost", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing asset status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/assets", map[string]any{"name": "Mouse"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid intake status = %d", rec.Code)
	}
}

func TestHandlerScopeHeaderNarrowsListing(t *testing.T) {
	h, svc := newTestHandler(t)
	ctx := context.Background()
	for _, intake := range []core.AssetIntake{
		{Name: "Laptop", Office: "Lab", IssuedBy: "ops"},
		{Name: "Desk", Office: "Annex", IssuedBy: "ops"},
	} {
		if _, _, err := svc.IntakeAsset(ctx, intake); err != nil {
			t.Fatalf("intake: %v", err)
		}
	}

	rec := doJSON(t, h, http.MethodGet, "/api/v1/assets", nil, map[string]string{scopeHeader: "HQ"})
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var listing struct {
		Assets []domain.Asset `json:"assets"`
	}
	decodeInto(t, rec, &listing)
	if len(listing.Assets) != 1 || listing.Assets[0].Office != "Lab" {
		t.Fatalf("scoped listing = %+v", listing.Assets)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/assets", nil, map[string]string{scopeHeader: "Atlantis"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown scope status = %d", rec.Code)
	}
}

func TestHandlerScopeHeaderNarrowsHolders(t *testing.T) {
	h, svc := newTestHandler(t)
	ctx := context.Background()
	for _, user := range []core.User{
		{Name: "Dana Reyes", Location: "Lab"},
		{Name: "Annex Person", Location: "Annex"},
	} {
		if _, _, err := svc.CreateUser(ctx, user); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	if _, _, err := svc.CreateProject(ctx, core.Project{Code: "PRJ-7", Title: "Refit", Location: "Annex"}); err != nil {
		t.Fatalf("create project: %v", err)
	}

	rec := doJSON(t, h, http.MethodGet, "/api/v1/users", nil, map[string]string{scopeHeader: "HQ"})
	if rec.Code != http.StatusOK {
		t.Fatalf("list users status = %d", rec.Code)
	}
	var users struct {
		Users []domain.User `json:"users"`
	}
	decodeInto(t, rec, &users)
	if len(users.Users) != 1 || users.Users[0].Name != "Dana Reyes" {
		t.Fatalf("scoped users = %+v, want only the Lab user", users.Users)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/projects", nil, map[string]string{scopeHeader: "HQ"})
	if rec.Code != http.StatusOK {
		t.Fatalf("list projects status = %d", rec.Code)
	}
	var projects struct {
		Projects []domain.Project `json:"projects"`
	}
	decodeInto(t, rec, &projects)
	if len(projects.Projects) != 0 {
		t.Fatalf("scoped projects = %+v, want none", projects.Projects)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/users?q=annex", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("search users status = %d", rec.Code)
	}
	users.Users = nil
	decodeInto(t, rec, &users)
	if len(users.Users) != 1 || users.Users[0].Name != "Annex Person" {
		t.Fatalf("user search = %+v", users.Users)
	}
}

func TestHandlerCustodyActions(t *testing.T) {
	h, svc := newTestHandler(t)
	ctx := context.Background()
	user, _, err := svc.CreateUser(ctx, core.User{Name: "Dana Reyes"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	asset, _, err := svc.IntakeAsset(ctx, core.AssetIntake{Name: "Camera", Office: "HQ", IssuedBy: "ops"})
	if err != nil {
		t.Fatalf("intake: %v", err)
	}

	rec := doJSON(t, h, http.MethodPost, "/api/v1/assets/"+asset.ID+"/assign", map[string]any{
		"holder_kind":  "user",
		"holder_id":    user.ID,
		"performed_by": "admin",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("assign status = %d body %s", rec.Code, rec.Body.String())
	}
	var assigned domain.Asset
	decodeInto(t, rec, &assigned)
	if assigned.Status != domain.StatusUnavailable {
		t.Fatalf("assigned asset = %+v", assigned)
	}

	// Conflict while held.
	rec = doJSON(t, h, http.MethodPost, "/api/v1/assets/"+asset.ID+"/assign", map[string]any{
		"holder_kind": "user",
		"holder_id":   user.ID,
	}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("double assign status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/assets/"+asset.ID+"/transfer", map[string]any{
		"new_office":   "Annex",
		"performed_by": "admin",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("transfer status = %d body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/assets/"+asset.ID+"/deactivate", map[string]any{
		"performed_by": "admin",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("deactivate status = %d body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/assets/"+asset.ID+"/history", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d", rec.Code)
	}
	var history struct {
		History []domain.HistoryEntry `json:"history"`
	}
	decodeInto(t, rec, &history)
	if len(history.History) < 4 {
		t.Fatalf("history = %+v, want added/assigned/unassigned/transferred/removed", history.History)
	}
}

func TestHandlerEditAssetConflictMapping(t *testing.T) {
	h, svc := newTestHandler(t)
	asset, _, err := svc.IntakeAsset(context.Background(), core.AssetIntake{Name: "Camera", Office: "HQ", IssuedBy: "ops"})
	if err != nil {
		t.Fatalf("intake: %v", err)
	}

	rec := doJSON(t, h, http.MethodPatch, "/api/v1/assets/"+asset.ID, map[string]any{
		"name":             "Camera Mk II",
		"expected_version": asset.Version,
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("edit status = %d body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodPatch, "/api/v1/assets/"+asset.ID, map[string]any{
		"name":             "Stale",
		"expected_version": asset.Version,
	}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("stale edit status = %d", rec.Code)
	}
}

func TestHandlerMaintenanceEndpoints(t *testing.T) {
	h, svc := newTestHandler(t)
	asset, _, err := svc.IntakeAsset(context.Background(), core.AssetIntake{Name: "Drill", Office: "HQ", IssuedBy: "ops"})
	if err != nil {
		t.Fatalf("intake: %v", err)
	}

	rec := doJSON(t, h, http.MethodPost, "/api/v1/assets/"+asset.ID+"/maintenance", map[string]any{
		"kind":            "repair",
		"vendor":          map[string]any{"name": "FixIt"},
		"expected_return": time.Now().AddDate(0, 0, 14).Format(time.RFC3339),
		"sent_by":         "admin",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("send maintenance status = %d body %s", rec.Code, rec.Body.String())
	}
	var record domain.MaintenanceRecord
	decodeInto(t, rec, &record)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/assets/"+asset.ID+"/maintenance", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list maintenance status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/maintenance/"+record.ID+"/complete", map[string]any{
		"completed_by": "admin",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete status = %d body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/assets/"+asset.ID+"/timeline", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("timeline status = %d", rec.Code)
	}
	var timeline struct {
		Timeline []domain.TimelineEvent `json:"timeline"`
	}
	decodeInto(t, rec, &timeline)
	if len(timeline.Timeline) != 3 {
		t.Fatalf("timeline = %+v, want added/sent/returned", timeline.Timeline)
	}
}

func TestHandlerDocumentUploadAndDownload(t *testing.T) {
	h, svc := newTestHandler(t)
	asset, _, err := svc.IntakeAsset(context.Background(), core.AssetIntake{Name: "Camera", Office: "HQ", IssuedBy: "ops"})
	if err != nil {
		t.Fatalf("intake: %v", err)
	}

	req := httptest.NewRequest(http.MethodPut, "/api/v1/assets/"+asset.ID+"/documents/invoice.pdf", strings.NewReader("%PDF fake"))
	req.Header.Set("Content-Type", "application/pdf")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/assets/"+asset.ID+"/documents/invoice.pdf", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("download status = %d", rec.Code)
	}
	if rec.Body.String() != "%PDF fake" {
		t.Fatalf("downloaded body = %q", rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "application/pdf" {
		t.Fatalf("content type = %q", got)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/assets/"+asset.ID+"/documents", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list documents status = %d", rec.Code)
	}
}

func TestHandlerExportsFlow(t *testing.T) {
	h, svc := newTestHandler(t)
	if _, _, err := svc.IntakeAsset(context.Background(), core.AssetIntake{Name: "Camera", Office: "HQ", IssuedBy: "ops"}); err != nil {
		t.Fatalf("intake: %v", err)
	}
	worker := NewWorker(svc, blob.NewMemory(), nil)
	worker.Start()
	defer func() { _ = worker.Stop(context.Background()) }()
	h.Exports = worker

	rec := doJSON(t, h, http.MethodPost, "/api/v1/exports", map[string]any{
		"formats":      []string{"csv"},
		"requested_by": "admin",
	}, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("enqueue status = %d body %s", rec.Code, rec.Body.String())
	}
	var queued ExportRecord
	decodeInto(t, rec, &queued)
	record := waitForExport(t, worker, queued.ID)
	if record.Status != ExportStatusSucceeded {
		t.Fatalf("export = %+v", record)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/exports/"+queued.ID, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get export status = %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/api/v1/exports/missing", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing export status = %d", rec.Code)
	}
}

func TestHandlerRuleViolationMapsTo422(t *testing.T) {
	_, svc := newTestHandler(t)
	asset, _, err := svc.IntakeAsset(context.Background(), core.AssetIntake{Name: "Camera", Office: "HQ", IssuedBy: "ops"})
	if err != nil {
		t.Fatalf("intake: %v", err)
	}

	err = fmt.Errorf("wrapped: %w", domain.RuleViolationError{Result: domain.Result{Violations: []domain.Violation{{
		Rule:     "custody_exclusivity",
		Severity: domain.SeverityBlock,
		Message:  "two holders",
		Entity:   domain.EntityAsset,
		EntityID: asset.ID,
	}}}})
	rec := httptest.NewRecorder()
	writeDomainError(rec, err)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("rule violation status = %d body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "custody_exclusivity") {
		t.Fatalf("body missing violations: %s", rec.Body.String())
	}
}

func TestHandlerMethodNotAllowed(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := doJSON(t, h, http.MethodDelete, "/api/v1/locations", nil, nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/api/v1/unknown", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown path status = %d", rec.Code)
	}
}
