package registry

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"assetcore/internal/core"
	"assetcore/pkg/domain"
)

// scopeHeader carries the caller's administrative office scope. Resolving the
// scope into visible offices happens in the service; the header is only an
// edge concern.
const scopeHeader = "X-Admin-Location"

// Handler provides HTTP access to the asset register.
type Handler struct {
	Service *core.Service
	Exports ExportScheduler
}

// NewHandler constructs a register HTTP handler.
func NewHandler(service *core.Service) *Handler {
	return &Handler{Service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		writeError(w, http.StatusInternalServerError, "asset service not configured")
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/api/v1/locations":
		h.handleLocations(w, r)
	case path == "/api/v1/users":
		h.handleUsers(w, r)
	case path == "/api/v1/projects":
		h.handleProjects(w, r)
	case path == "/api/v1/assets":
		h.handleAssets(w, r)
	case path == "/api/v1/assets/batch":
		h.handleAssetBatch(w, r)
	case strings.HasPrefix(path, "/api/v1/assets/"):
		h.handleAsset(w, r, strings.TrimPrefix(path, "/api/v1/assets/"))
	case strings.HasPrefix(path, "/api/v1/maintenance/"):
		h.handleMaintenance(w, r, strings.TrimPrefix(path, "/api/v1/maintenance/"))
	case path == "/api/v1/exports" || strings.HasPrefix(path, "/api/v1/exports/"):
		h.handleExports(w, r, path)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleLocations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"locations": h.Service.ListLocations(r.Context())})
	case http.MethodPost:
		var location core.Location
		if err := decodeBody(r, &location); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		created, _, err := h.Service.CreateLocation(r.Context(), location)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		scope := r.Header.Get(scopeHeader)
		var (
			users []core.User
			err   error
		)
		if q := r.URL.Query().Get("q"); q != "" {
			users, err = h.Service.SearchUsers(r.Context(), scope, q)
		} else {
			users, err = h.Service.ListUsers(r.Context(), scope)
		}
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": users})
	case http.MethodPost:
		var user core.User
		if err := decodeBody(r, &user); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		created, _, err := h.Service.CreateUser(r.Context(), user)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleProjects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		scope := r.Header.Get(scopeHeader)
		var (
			projects []core.Project
			err      error
		)
		if q := r.URL.Query().Get("q"); q != "" {
			projects, err = h.Service.SearchProjects(r.Context(), scope, q)
		} else {
			projects, err = h.Service.ListProjects(r.Context(), scope)
		}
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
	case http.MethodPost:
		var project core.Project
		if err := decodeBody(r, &project); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		created, _, err := h.Service.CreateProject(r.Context(), project)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type intakeRequest struct {
	Name          string     `json:"name"`
	Serial        string     `json:"serial"`
	Category      string     `json:"category"`
	Office        string     `json:"office"`
	IssuedBy      string     `json:"issued_by"`
	InvoiceRef    string     `json:"invoice_ref"`
	Description   string     `json:"description"`
	StickerSeq    string     `json:"sticker_seq"`
	WarrantyUntil *time.Time `json:"warranty_until"`
	InsuredUntil  *time.Time `json:"insured_until"`
	Price         float64    `json:"price"`
	Quantity      int        `json:"quantity"`
	Comment       string     `json:"comment"`
}

func (req intakeRequest) toIntake() core.AssetIntake {
	return core.AssetIntake{
		Name:          req.Name,
		Serial:        req.Serial,
		Category:      req.Category,
		Office:        req.Office,
		IssuedBy:      req.IssuedBy,
		InvoiceRef:    req.InvoiceRef,
		Description:   req.Description,
		StickerSeq:    req.StickerSeq,
		WarrantyUntil: req.WarrantyUntil,
		InsuredUntil:  req.InsuredUntil,
		Price:         req.Price,
		Quantity:      req.Quantity,
		Comment:       req.Comment,
	}
}

func (h *Handler) handleAssets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		scope := r.Header.Get(scopeHeader)
		query := r.URL.Query()
		filter := core.AssetFilter{
			Status:   domain.AssetStatus(query.Get("status")),
			Category: query.Get("category"),
			Holder:   domain.HolderKind(query.Get("holder")),
			Office:   query.Get("office"),
		}
		var (
			assets []core.Asset
			err    error
		)
		if q := query.Get("q"); q != "" {
			assets, err = h.Service.SearchAssets(r.Context(), scope, q)
		} else {
			assets, err = h.Service.ListAssets(r.Context(), scope, filter)
		}
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"assets": assets})
	case http.MethodPost:
		var req intakeRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		created, _, err := h.Service.IntakeAsset(r.Context(), req.toIntake())
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleAssetBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		Assets []intakeRequest `json:"assets"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	intakes := make([]core.AssetIntake, 0, len(req.Assets))
	for _, item := range req.Assets {
		intakes = append(intakes, item.toIntake())
	}
	created, _, err := h.Service.IntakeBatch(r.Context(), intakes)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"assets": created})
}

type custodyRequest struct {
	HolderKind  string `json:"holder_kind"`
	HolderID    string `json:"holder_id"`
	PerformedBy string `json:"performed_by"`
	Comment     string `json:"comment"`
}

type transferRequest struct {
	NewOffice      string `json:"new_office"`
	KeepAssignment bool   `json:"keep_assignment"`
	PerformedBy    string `json:"performed_by"`
	Comment        string `json:"comment"`
}

type patchRequest struct {
	Name                   *string    `json:"name"`
	Serial                 *string    `json:"serial"`
	Category               *string    `json:"category"`
	Office                 *string    `json:"office"`
	InvoiceRef             *string    `json:"invoice_ref"`
	Description            *string    `json:"description"`
	StickerSeq             *string    `json:"sticker_seq"`
	WarrantyUntil          *time.Time `json:"warranty_until"`
	InsuredUntil           *time.Time `json:"insured_until"`
	Price                  *float64   `json:"price"`
	Quantity               *int       `json:"quantity"`
	Status                 *string    `json:"status"`
	ExpectedVersion        *int64     `json:"expected_version"`
	UnassignOnOfficeChange bool       `json:"unassign_on_office_change"`
	PerformedBy            string     `json:"performed_by"`
	Comment                string     `json:"comment"`
}

type maintenanceRequest struct {
	Kind           string        `json:"kind"`
	Vendor         domain.Vendor `json:"vendor"`
	ExpectedReturn time.Time     `json:"expected_return"`
	Cost           float64       `json:"cost"`
	SentBy         string        `json:"sent_by"`
}

func (h *Handler) handleAsset(w http.ResponseWriter, r *http.Request, remainder string) {
	segments := strings.Split(remainder, "/")
	id := segments[0]
	if id == "" {
		http.NotFound(w, r)
		return
	}

	if len(segments) == 1 {
		switch r.Method {
		case http.MethodGet:
			asset, err := h.Service.GetAsset(r.Context(), id)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, asset)
		case http.MethodPatch:
			var req patchRequest
			if err := decodeBody(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			var status *core.AssetStatus
			if req.Status != nil {
				s := domain.AssetStatus(*req.Status)
				status = &s
			}
			updated, _, err := h.Service.EditAsset(r.Context(), id, core.AssetPatch{
				Name:                   req.Name,
				Serial:                 req.Serial,
				Category:               req.Category,
				Office:                 req.Office,
				InvoiceRef:             req.InvoiceRef,
				Description:            req.Description,
				StickerSeq:             req.StickerSeq,
				WarrantyUntil:          req.WarrantyUntil,
				InsuredUntil:           req.InsuredUntil,
				Price:                  req.Price,
				Quantity:               req.Quantity,
				Status:                 status,
				ExpectedVersion:        req.ExpectedVersion,
				UnassignOnOfficeChange: req.UnassignOnOfficeChange,
				PerformedBy:            req.PerformedBy,
				Comment:                req.Comment,
			})
			if err != nil {
				writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, updated)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	if len(segments) == 3 && segments[1] == "documents" {
		h.handleDocument(w, r, id, segments[2])
		return
	}
	if len(segments) != 2 {
		http.NotFound(w, r)
		return
	}

	action := segments[1]
	switch action {
	case "documents":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		infos, err := h.Service.ListDocuments(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": infos})
	case "history":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		entries, err := h.Service.AssetHistory(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"history": entries})
	case "timeline":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		events, err := h.Service.AssetTimeline(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"timeline": events})
	case "assign":
		h.postAction(w, r, func(req custodyRequest) (any, error) {
			asset, _, err := h.Service.AssignAsset(r.Context(), id, domain.HolderKind(req.HolderKind), req.HolderID, req.PerformedBy, req.Comment)
			return asset, err
		})
	case "unassign":
		h.postAction(w, r, func(req custodyRequest) (any, error) {
			asset, _, err := h.Service.UnassignAsset(r.Context(), id, req.PerformedBy, req.Comment)
			return asset, err
		})
	case "deactivate":
		h.postAction(w, r, func(req custodyRequest) (any, error) {
			asset, _, err := h.Service.DeactivateAsset(r.Context(), id, req.PerformedBy, req.Comment)
			return asset, err
		})
	case "transfer":
		h.postAction(w, r, func(req transferRequest) (any, error) {
			asset, _, err := h.Service.TransferAsset(r.Context(), id, req.NewOffice, req.PerformedBy, req.Comment, req.KeepAssignment)
			return asset, err
		})
	case "maintenance":
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, map[string]any{"maintenance": h.Service.ListMaintenance(r.Context(), id)})
		case http.MethodPost:
			var req maintenanceRequest
			if err := decodeBody(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			record, _, err := h.Service.SendToMaintenance(r.Context(), id, core.MaintenanceRequest{
				Kind:           domain.MaintenanceKind(req.Kind),
				Vendor:         req.Vendor,
				ExpectedReturn: req.ExpectedReturn,
				Cost:           req.Cost,
				SentBy:         req.SentBy,
			})
			if err != nil {
				writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, record)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleDocument(w http.ResponseWriter, r *http.Request, assetID, filename string) {
	switch r.Method {
	case http.MethodPut:
		info, err := h.Service.AttachDocument(r.Context(), assetID, filename, r.Header.Get("Content-Type"), r.Body)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, info)
	case http.MethodGet:
		info, rc, err := h.Service.GetDocument(r.Context(), assetID, filename)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		defer func() { _ = rc.Close() }()
		if info.ContentType != "" {
			w.Header().Set("Content-Type", info.ContentType)
		}
		if info.Size > 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
		}
		w.WriteHeader(http.StatusOK)
		_, _ = io.Copy(w, rc)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type completionRequest struct {
	ReturnedAt  time.Time `json:"returned_at"`
	Cost        *float64  `json:"cost"`
	CompletedBy string    `json:"completed_by"`
}

func (h *Handler) handleMaintenance(w http.ResponseWriter, r *http.Request, remainder string) {
	segments := strings.Split(remainder, "/")
	if len(segments) != 2 || segments[1] != "complete" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req completionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	record, _, err := h.Service.CompleteMaintenance(r.Context(), segments[0], core.MaintenanceCompletion{
		ReturnedAt:  req.ReturnedAt,
		Cost:        req.Cost,
		CompletedBy: req.CompletedBy,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type exportRequest struct {
	Formats     []ExportFormat `json:"formats"`
	Status      string         `json:"status"`
	Category    string         `json:"category"`
	Office      string         `json:"office"`
	RequestedBy string         `json:"requested_by"`
	Reason      string         `json:"reason"`
}

func (h *Handler) handleExports(w http.ResponseWriter, r *http.Request, path string) {
	if h.Exports == nil {
		http.NotFound(w, r)
		return
	}
	if path == "/api/v1/exports" {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var req exportRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		record, err := h.Exports.EnqueueExport(r.Context(), ExportInput{
			Scope: r.Header.Get(scopeHeader),
			Filter: core.AssetFilter{
				Status:   domain.AssetStatus(req.Status),
				Category: req.Category,
				Office:   req.Office,
			},
			Formats:     req.Formats,
			RequestedBy: req.RequestedBy,
			Reason:      req.Reason,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, record)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(path, "/api/v1/exports/")
	record, ok := h.Exports.GetExport(id)
	if !ok {
		writeError(w, http.StatusNotFound, "export not found")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) postAction(w http.ResponseWriter, r *http.Request, fn any) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	switch action := fn.(type) {
	case func(custodyRequest) (any, error):
		var req custodyRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		result, err := action(req)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case func(transferRequest) (any, error):
		var req transferRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		result, err := action(req)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	default:
		writeError(w, http.StatusInternalServerError, "unsupported action")
	}
}

func decodeBody(r *http.Request, v any) error {
	defer func() { _ = r.Body.Close() }()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeDomainError(w http.ResponseWriter, err error) {
	var ruleErr domain.RuleViolationError
	if errors.As(err, &ruleErr) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":      "rule violations",
			"violations": ruleErr.Result.Violations,
		})
		return
	}
	switch domain.KindOf(err) {
	case domain.ErrKindNotFound:
		writeError(w, http.StatusNotFound, err.Error())
	case domain.ErrKindInvalidInput:
		writeError(w, http.StatusBadRequest, err.Error())
	case domain.ErrKindAlreadyExists, domain.ErrKindConflict, domain.ErrKindInvalidState:
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
