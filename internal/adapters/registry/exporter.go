// Package registry provides HTTP and export adapters over the asset service.
// The export worker renders register snapshots asynchronously and stores the
// artifacts in the document store.
package registry

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	blobcore "assetcore/internal/blob/core"
	"assetcore/internal/core"
)

// ExportFormat names a register export rendering.
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// ExportStatus describes the lifecycle stage of an export request.
type ExportStatus string

const (
	ExportStatusQueued    ExportStatus = "queued"
	ExportStatusRunning   ExportStatus = "running"
	ExportStatusSucceeded ExportStatus = "succeeded"
	ExportStatusFailed    ExportStatus = "failed"
)

// ExportInput is an enqueue request for the worker.
type ExportInput struct {
	Scope       string
	Filter      core.AssetFilter
	Formats     []ExportFormat
	RequestedBy string
	Reason      string
}

// ExportArtifact captures one stored register rendering.
type ExportArtifact struct {
	Key         string       `json:"key"`
	Format      ExportFormat `json:"format"`
	ContentType string       `json:"content_type"`
	SizeBytes   int64        `json:"size_bytes"`
	URL         string       `json:"url,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ExportRecord tracks an export request and its artifacts.
type ExportRecord struct {
	ID          string           `json:"id"`
	Scope       string           `json:"scope,omitempty"`
	Formats     []ExportFormat   `json:"formats"`
	Status      ExportStatus     `json:"status"`
	Error       string           `json:"error,omitempty"`
	Artifacts   []ExportArtifact `json:"artifacts,omitempty"`
	RequestedBy string           `json:"requested_by"`
	Reason      string           `json:"reason,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

func (r ExportRecord) copy() ExportRecord {
	cp := r
	cp.Formats = append([]ExportFormat(nil), r.Formats...)
	cp.Artifacts = append([]ExportArtifact(nil), r.Artifacts...)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	return cp
}

// ExportScheduler queues register export requests and exposes status.
type ExportScheduler interface {
	EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error)
	GetExport(id string) (ExportRecord, bool)
}

// Worker executes register exports asynchronously.
type Worker struct {
	service *core.Service
	store   blobcore.Store
	logger  core.Logger

	queue chan exportTask
	mu    sync.RWMutex
	jobs  map[string]*ExportRecord

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type exportTask struct {
	id    string
	input ExportInput
}

// NewWorker constructs an export worker over the service and document store.
func NewWorker(service *core.Service, store blobcore.Store, logger core.Logger) *Worker {
	if logger == nil {
		logger = noopLogger{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		service: service,
		store:   store,
		logger:  logger,
		queue:   make(chan exportTask, 32),
		jobs:    make(map[string]*ExportRecord),
		ctx:     ctx,
		cancel:  cancel,
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case task := <-w.queue:
			w.process(task)
		}
	}
}

// EnqueueExport schedules an export job and returns the queued record.
func (w *Worker) EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error) {
	if w.store == nil {
		return ExportRecord{}, fmt.Errorf("export object store not configured")
	}
	if _, err := w.service.ResolveVisibleLocations(ctx, input.Scope); err != nil {
		return ExportRecord{}, err
	}

	formats := input.Formats
	if len(formats) == 0 {
		formats = []ExportFormat{FormatJSON, FormatCSV}
	}
	seen := make(map[ExportFormat]struct{}, len(formats))
	uniq := make([]ExportFormat, 0, len(formats))
	for _, format := range formats {
		if format != FormatCSV && format != FormatJSON {
			return ExportRecord{}, fmt.Errorf("unsupported export format %s", format)
		}
		if _, dup := seen[format]; dup {
			continue
		}
		seen[format] = struct{}{}
		uniq = append(uniq, format)
	}

	id := newID()
	now := time.Now().UTC()
	record := ExportRecord{
		ID:          id,
		Scope:       input.Scope,
		Formats:     uniq,
		Status:      ExportStatusQueued,
		RequestedBy: input.RequestedBy,
		Reason:      input.Reason,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[id] = &record
	queued := record.copy()
	w.mu.Unlock()

	select {
	case w.queue <- exportTask{id: id, input: input}:
	default:
		w.mu.Lock()
		delete(w.jobs, id)
		w.mu.Unlock()
		return ExportRecord{}, fmt.Errorf("export queue full")
	}

	w.logger.Info("register export queued", "export_id", id, "scope", input.Scope)
	return queued, nil
}

// GetExport returns a snapshot of the export record.
func (w *Worker) GetExport(id string) (ExportRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return ExportRecord{}, false
	}
	return record.copy(), true
}

func (w *Worker) process(task exportTask) {
	w.setStatus(task.id, ExportStatusRunning, "")

	assets, err := w.service.ListAssets(w.ctx, task.input.Scope, task.input.Filter)
	if err != nil {
		w.fail(task.id, fmt.Sprintf("list assets: %v", err))
		return
	}

	var artifacts []ExportArtifact
	for _, format := range w.formats(task.id) {
		payload, contentType, err := renderRegister(assets, format)
		if err != nil {
			w.fail(task.id, fmt.Sprintf("render %s: %v", format, err))
			return
		}
		key := fmt.Sprintf("exports/%s/register.%s", task.id, format)
		info, err := w.store.Put(w.ctx, key, bytes.NewReader(payload), blobcore.PutOptions{
			ContentType: contentType,
			Metadata:    map[string]string{"export_id": task.id},
		})
		if err != nil {
			w.fail(task.id, fmt.Sprintf("store %s: %v", format, err))
			return
		}
		artifacts = append(artifacts, ExportArtifact{
			Key:         info.Key,
			Format:      format,
			ContentType: contentType,
			SizeBytes:   info.Size,
			URL:         info.URL,
			CreatedAt:   info.LastModified,
		})
	}

	w.succeed(task.id, artifacts)
	w.logger.Info("register export finished", "export_id", task.id, "artifacts", len(artifacts))
}

func (w *Worker) formats(id string) []ExportFormat {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if record, ok := w.jobs[id]; ok {
		return append([]ExportFormat(nil), record.Formats...)
	}
	return nil
}

func (w *Worker) setStatus(id string, status ExportStatus, errMsg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	record, ok := w.jobs[id]
	if !ok {
		return
	}
	record.Status = status
	record.Error = errMsg
	record.UpdatedAt = time.Now().UTC()
}

func (w *Worker) fail(id, message string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	record, ok := w.jobs[id]
	if !ok {
		return
	}
	now := time.Now().UTC()
	record.Status = ExportStatusFailed
	record.Error = message
	record.UpdatedAt = now
	record.CompletedAt = &now
	w.logger.Error("register export failed", "export_id", id, "error", message)
}

func (w *Worker) succeed(id string, artifacts []ExportArtifact) {
	w.mu.Lock()
	defer w.mu.Unlock()
	record, ok := w.jobs[id]
	if !ok {
		return
	}
	now := time.Now().UTC()
	record.Status = ExportStatusSucceeded
	record.Error = ""
	record.Artifacts = artifacts
	record.UpdatedAt = now
	record.CompletedAt = &now
}

var registerColumns = []string{
	"id", "name", "serial", "category", "office", "status",
	"custody_kind", "custody_ref", "issued_by", "sticker_seq",
	"price", "quantity",
}

func renderRegister(assets []core.Asset, format ExportFormat) ([]byte, string, error) {
	switch format {
	case FormatJSON:
		payload, err := json.MarshalIndent(map[string]any{"assets": assets}, "", "  ")
		if err != nil {
			return nil, "", err
		}
		return payload, "application/json", nil
	case FormatCSV:
		var buf bytes.Buffer
		writer := csv.NewWriter(&buf)
		if err := writer.Write(registerColumns); err != nil {
			return nil, "", err
		}
		for _, asset := range assets {
			custodyRef := ""
			if asset.CustodyRef != nil {
				custodyRef = *asset.CustodyRef
			}
			row := []string{
				asset.ID, asset.Name, asset.Serial, asset.Category, asset.Office, string(asset.Status),
				string(asset.CustodyKind), custodyRef, asset.IssuedBy, asset.StickerSeq,
				strconv.FormatFloat(asset.Price, 'f', 2, 64), strconv.Itoa(asset.Quantity),
			}
			if err := writer.Write(row); err != nil {
				return nil, "", err
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "text/csv", nil
	default:
		return nil, "", fmt.Errorf("unsupported export format %s", format)
	}
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}
