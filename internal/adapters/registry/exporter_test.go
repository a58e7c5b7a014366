package registry

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"assetcore/internal/blob"
	"assetcore/internal/core"
	"assetcore/pkg/domain"
)

func newExportService(t *testing.T) *core.Service {
	t.Helper()
	ctx := context.Background()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	for _, name := range []string{"HQ", "Annex"} {
		if _, _, err := svc.CreateLocation(ctx, core.Location{Name: name}); err != nil {
			t.Fatalf("create location %q: %v", name, err)
		}
	}
	for _, intake := range []core.AssetIntake{
		{Name: "Laptop", Serial: "SN-1", Category: "laptop", Office: "HQ", IssuedBy: "ops"},
		{Name: "Projector", Serial: "SN-2", Category: "av", Office: "Annex", IssuedBy: "ops"},
	} {
		if _, _, err := svc.IntakeAsset(ctx, intake); err != nil {
			t.Fatalf("intake %q: %v", intake.Name, err)
		}
	}
	return svc
}

func waitForExport(t *testing.T, worker *Worker, id string) ExportRecord {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		record, ok := worker.GetExport(id)
		if !ok {
			t.Fatalf("export %q disappeared", id)
		}
		if record.Status == ExportStatusSucceeded || record.Status == ExportStatusFailed {
			return record
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("export %q did not finish in time", id)
	return ExportRecord{}
}

func TestExportWorkerProducesArtifacts(t *testing.T) {
	svc := newExportService(t)
	store := blob.NewMemory()
	worker := NewWorker(svc, store, nil)
	worker.Start()
	defer func() { _ = worker.Stop(context.Background()) }()

	queued, err := worker.EnqueueExport(context.Background(), ExportInput{RequestedBy: "admin"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if queued.Status != ExportStatusQueued || len(queued.Formats) != 2 {
		t.Fatalf("queued record = %+v", queued)
	}

	record := waitForExport(t, worker, queued.ID)
	if record.Status != ExportStatusSucceeded {
		t.Fatalf("export failed: %+v", record)
	}
	if len(record.Artifacts) != 2 {
		t.Fatalf("artifacts = %+v, want csv and json", record.Artifacts)
	}
	if record.CompletedAt == nil {
		t.Fatal("completed export missing completion time")
	}

	_, rc, err := store.Get(context.Background(), "exports/"+record.ID+"/register.csv")
	if err != nil {
		t.Fatalf("fetch csv artifact: %v", err)
	}
	defer func() { _ = rc.Close() }()
	rows, err := csv.NewReader(rc).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	// header plus both assets
	if len(rows) != 3 {
		t.Fatalf("csv rows = %d, want 3", len(rows))
	}
	if rows[0][0] != "id" || rows[0][1] != "name" {
		t.Fatalf("csv header = %v", rows[0])
	}
}

func TestExportWorkerScopesAssets(t *testing.T) {
	svc := newExportService(t)
	store := blob.NewMemory()
	worker := NewWorker(svc, store, nil)
	worker.Start()
	defer func() { _ = worker.Stop(context.Background()) }()

	queued, err := worker.EnqueueExport(context.Background(), ExportInput{
		Scope:   "Annex",
		Formats: []ExportFormat{FormatJSON},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	record := waitForExport(t, worker, queued.ID)
	if record.Status != ExportStatusSucceeded {
		t.Fatalf("export failed: %+v", record)
	}

	_, rc, err := store.Get(context.Background(), "exports/"+record.ID+"/register.json")
	if err != nil {
		t.Fatalf("fetch json artifact: %v", err)
	}
	defer func() { _ = rc.Close() }()
	payload, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	var rendered struct {
		Assets []domain.Asset `json:"assets"`
	}
	if err := json.Unmarshal(payload, &rendered); err != nil {
		t.Fatalf("decode artifact: %v", err)
	}
	if len(rendered.Assets) != 1 || rendered.Assets[0].Office != "Annex" {
		t.Fatalf("scoped export = %+v", rendered.Assets)
	}
}

func TestEnqueueExportValidation(t *testing.T) {
	svc := newExportService(t)
	worker := NewWorker(svc, blob.NewMemory(), nil)

	if _, err := worker.EnqueueExport(context.Background(), ExportInput{Scope: "Atlantis"}); domain.KindOf(err) != domain.ErrKindNotFound {
		t.Fatalf("unknown scope: expected not_found, got %v", err)
	}
	if _, err := worker.EnqueueExport(context.Background(), ExportInput{Formats: []ExportFormat{"xml"}}); err == nil || !strings.Contains(err.Error(), "unsupported export format") {
		t.Fatalf("bad format: got %v", err)
	}

	noStore := NewWorker(svc, nil, nil)
	if _, err := noStore.EnqueueExport(context.Background(), ExportInput{}); err == nil {
		t.Fatal("expected error without object store")
	}
}

func TestGetExportUnknownID(t *testing.T) {
	worker := NewWorker(newExportService(t), blob.NewMemory(), nil)
	if _, ok := worker.GetExport("missing"); ok {
		t.Fatal("unknown export id should not resolve")
	}
}

func TestRenderRegisterCSVEscapes(t *testing.T) {
	assets := []core.Asset{{
		Base:   domain.Base{ID: "a1"},
		Name:   "Desk, standing",
		Office: "HQ",
		Status: domain.StatusAvailable,
	}}
	payload, contentType, err := renderRegister(assets, FormatCSV)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if contentType != "text/csv" {
		t.Fatalf("content type = %q", contentType)
	}
	rows, err := csv.NewReader(bytes.NewReader(payload)).ReadAll()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if rows[1][1] != "Desk, standing" {
		t.Fatalf("name cell = %q", rows[1][1])
	}
}
