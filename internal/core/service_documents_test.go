package core

import (
	"context"
	"io"
	"strings"
	"testing"

	"assetcore/internal/blob"
	"assetcore/pkg/domain"
)

func TestAttachAndGetDocument(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newSeededService(t, WithDocumentStore(blob.NewMemory()))
	asset := mustIntake(t, svc, "HQ")

	info, err := svc.AttachDocument(ctx, asset.ID, "invoice.pdf", "application/pdf", strings.NewReader("%PDF-1.7 fake"))
	if err != nil {
		t.Fatalf("attach document: %v", err)
	}
	if info.Size == 0 || info.ContentType != "application/pdf" {
		t.Fatalf("attached info = %+v", info)
	}

	if _, err := svc.AttachDocument(ctx, asset.ID, "invoice.pdf", "application/pdf", strings.NewReader("other")); domain.KindOf(err) != domain.ErrKindAlreadyExists {
		t.Fatalf("duplicate attach: expected already_exists, got %v", err)
	}

	got, rc, err := svc.GetDocument(ctx, asset.ID, "invoice.pdf")
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	defer func() { _ = rc.Close() }()
	body, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read document: %v", err)
	}
	if string(body) != "%PDF-1.7 fake" {
		t.Fatalf("document body = %q", body)
	}
	if got.ETag != info.ETag {
		t.Fatalf("etag mismatch: %q vs %q", got.ETag, info.ETag)
	}
}

func TestDocumentValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newSeededService(t, WithDocumentStore(blob.NewMemory()))
	asset := mustIntake(t, svc, "HQ")

	for _, name := range []string{"", "  ", "../escape.pdf", "a/b.pdf", "."} {
		if _, err := svc.AttachDocument(ctx, asset.ID, name, "", strings.NewReader("x")); domain.KindOf(err) != domain.ErrKindInvalidInput {
			t.Fatalf("filename %q: expected invalid_input, got %v", name, err)
		}
	}
	if _, err := svc.AttachDocument(ctx, "ghost", "doc.pdf", "", strings.NewReader("x")); domain.KindOf(err) != domain.ErrKindNotFound {
		t.Fatalf("unknown asset: expected not_found, got %v", err)
	}
	if _, _, err := svc.GetDocument(ctx, asset.ID, "missing.pdf"); domain.KindOf(err) != domain.ErrKindNotFound {
		t.Fatalf("missing document: expected not_found, got %v", err)
	}
}

func TestListDocumentsScopedToAsset(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newSeededService(t, WithDocumentStore(blob.NewMemory()))
	first := mustIntake(t, svc, "HQ")
	second, _, err := svc.IntakeAsset(ctx, AssetIntake{Name: "Monitor", Office: "HQ", IssuedBy: "ops"})
	if err != nil {
		t.Fatalf("intake second asset: %v", err)
	}

	for _, name := range []string{"invoice.pdf", "warranty.pdf"} {
		if _, err := svc.AttachDocument(ctx, first.ID, name, "", strings.NewReader("doc")); err != nil {
			t.Fatalf("attach %q: %v", name, err)
		}
	}
	if _, err := svc.AttachDocument(ctx, second.ID, "handover.pdf", "", strings.NewReader("doc")); err != nil {
		t.Fatalf("attach to second asset: %v", err)
	}

	docs, err := svc.ListDocuments(ctx, first.ID)
	if err != nil {
		t.Fatalf("list documents: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("listed %d documents, want 2", len(docs))
	}
}

func TestDocumentOpsWithoutStore(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newSeededService(t)
	asset := mustIntake(t, svc, "HQ")

	if _, err := svc.AttachDocument(ctx, asset.ID, "doc.pdf", "", strings.NewReader("x")); domain.KindOf(err) != domain.ErrKindInvalidState {
		t.Fatalf("expected invalid_state without store, got %v", err)
	}
	if _, err := svc.ListDocuments(ctx, asset.ID); domain.KindOf(err) != domain.ErrKindInvalidState {
		t.Fatalf("expected invalid_state without store, got %v", err)
	}
}

// "." and ".." are rejected as filenames even though they contain no slash.
func TestValidFilenameTable(t *testing.T) {
	cases := map[string]bool{
		"invoice.pdf":  true,
		"photo 1.jpg":  true,
		"..":           false,
		".":            false,
		"a\\b.pdf":     false,
		"nested/x.pdf": false,
		"":             false,
		".hidden":      true,
	}
	for name, want := range cases {
		if got := validFilename(name); got != want {
			t.Fatalf("validFilename(%q) = %v, want %v", name, got, want)
		}
	}
}
