package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	blobcore "assetcore/internal/blob/core"
	"assetcore/pkg/domain"
)

// Service exposes the transactional asset register operations. Every mutation
// runs inside a store transaction so rule evaluation sees the full change set
// and either everything commits or nothing does.
type Service struct {
	store                    PersistentStore
	logger                   Logger
	audit                    AuditRecorder
	metrics                  MetricsRecorder
	tracer                   Tracer
	clock                    ClockFunc
	clearCustodyOnDeactivate bool
	documents                blobcore.Store
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		logger:  noopLogger{},
		audit:   noopAuditRecorder{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
		clock:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// AssetIntake carries the fields accepted when registering a new asset.
type AssetIntake struct {
	Name          string
	Serial        string
	Category      string
	Office        string
	IssuedBy      string
	InvoiceRef    string
	Description   string
	StickerSeq    string
	WarrantyUntil *time.Time
	InsuredUntil  *time.Time
	Price         float64
	Quantity      int
	Comment       string
}

// AssetPatch carries optional field updates for EditAsset. Nil pointers leave
// the field untouched.
type AssetPatch struct {
	Name          *string
	Serial        *string
	Category      *string
	Office        *string
	InvoiceRef    *string
	Description   *string
	StickerSeq    *string
	WarrantyUntil *time.Time
	InsuredUntil  *time.Time
	Price         *float64
	Quantity      *int
	// Status may only request reactivation: an inactive asset patched to
	// available returns to circulation, as unavailable when a holder
	// survived deactivation. All other status moves go through the
	// assign, maintenance and deactivate operations.
	Status *AssetStatus
	// ExpectedVersion, when set, must match the asset's current version or
	// the edit is rejected with a conflict error.
	ExpectedVersion *int64
	// UnassignOnOfficeChange releases custody when the patch moves the asset
	// to a different office.
	UnassignOnOfficeChange bool
	PerformedBy            string
	Comment                string
}

// AssetFilter narrows asset listings.
type AssetFilter struct {
	Status   AssetStatus
	Category string
	Holder   HolderKind
	Office   string
}

// MaintenanceRequest carries the fields required to send an asset out for
// maintenance.
type MaintenanceRequest struct {
	Kind           domain.MaintenanceKind
	Vendor         domain.Vendor
	ExpectedReturn time.Time
	Cost           float64
	SentBy         string
}

// MaintenanceCompletion carries the fields recorded when an asset returns
// from maintenance.
type MaintenanceCompletion struct {
	ReturnedAt  time.Time
	Cost        *float64
	CompletedBy string
}

// CreateLocation registers a new office. Parent defaults to the root
// sentinel; a non-root parent must already exist.
func (s *Service) CreateLocation(ctx context.Context, location Location) (Location, Result, error) {
	var created Location
	var res Result
	err := s.observe(ctx, "create_location", func(ctx context.Context) (string, error) {
		if strings.TrimSpace(location.Name) == "" {
			return "", domain.MissingFieldError("name")
		}
		if location.Name == domain.RootLocation {
			return "", domain.InvalidInputError(fmt.Sprintf("%q is a reserved location name", domain.RootLocation))
		}
		if location.Parent == "" {
			location.Parent = domain.RootLocation
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if location.Parent != domain.RootLocation {
				if _, ok := tx.FindLocationByName(location.Parent); !ok {
					return domain.NotFoundError(EntityLocation, location.Parent)
				}
			}
			created, err = tx.CreateLocation(location)
			return err
		})
		return created.ID, err
	})
	return created, res, err
}

// ListLocations returns all registered offices.
func (s *Service) ListLocations(_ context.Context) []Location {
	return s.store.ListLocations()
}

// LocationIndex builds a descendant index over the current office forest.
func (s *Service) LocationIndex(_ context.Context) *LocationIndex {
	return NewLocationIndex(s.store.ListLocations())
}

// ResolveVisibleLocations expands an administrative scope into the set of
// office names it may see. The root sentinel and the empty scope see every
// office; any other scope must name an existing office and sees itself plus
// its descendants.
func (s *Service) ResolveVisibleLocations(ctx context.Context, scope string) ([]string, error) {
	idx := s.LocationIndex(ctx)
	if scope == "" || scope == domain.RootLocation {
		var names []string
		for _, l := range s.store.ListLocations() {
			names = append(names, l.Name)
		}
		sort.Strings(names)
		return names, nil
	}
	if !idx.Known(scope) {
		return nil, domain.NotFoundError(EntityLocation, scope)
	}
	return idx.Descendants(scope), nil
}

// CreateUser registers a holder of kind user.
func (s *Service) CreateUser(ctx context.Context, user User) (User, Result, error) {
	var created User
	var res Result
	err := s.observe(ctx, "create_user", func(ctx context.Context) (string, error) {
		if strings.TrimSpace(user.Name) == "" {
			return "", domain.MissingFieldError("name")
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			created, err = tx.CreateUser(user)
			return err
		})
		return created.ID, err
	})
	return created, res, err
}

// CreateProject registers a holder of kind project.
func (s *Service) CreateProject(ctx context.Context, project Project) (Project, Result, error) {
	var created Project
	var res Result
	err := s.observe(ctx, "create_project", func(ctx context.Context) (string, error) {
		if strings.TrimSpace(project.Code) == "" {
			return "", domain.MissingFieldError("code")
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			created, err = tx.CreateProject(project)
			return err
		})
		return created.ID, err
	})
	return created, res, err
}

// holderVisible reports whether a holder bound to office belongs to the
// visibility set. Holders without an office binding are visible everywhere.
func holderVisible(office string, unrestricted bool, allowed map[string]bool) bool {
	return unrestricted || office == "" || allowed[office]
}

func visibilitySet(visible []string) map[string]bool {
	allowed := make(map[string]bool, len(visible))
	for _, name := range visible {
		allowed[name] = true
	}
	return allowed
}

// ListUsers returns the users visible from the given administrative scope.
// See ResolveVisibleLocations for scope semantics.
func (s *Service) ListUsers(ctx context.Context, scope string) ([]User, error) {
	visible, err := s.ResolveVisibleLocations(ctx, scope)
	if err != nil {
		return nil, err
	}
	allowed := visibilitySet(visible)
	unrestricted := scope == "" || scope == domain.RootLocation
	var out []User
	for _, user := range s.store.ListUsers() {
		if holderVisible(user.Location, unrestricted, allowed) {
			out = append(out, user)
		}
	}
	return out, nil
}

// ListProjects returns the projects visible from the given administrative
// scope.
func (s *Service) ListProjects(ctx context.Context, scope string) ([]Project, error) {
	visible, err := s.ResolveVisibleLocations(ctx, scope)
	if err != nil {
		return nil, err
	}
	allowed := visibilitySet(visible)
	unrestricted := scope == "" || scope == domain.RootLocation
	var out []Project
	for _, project := range s.store.ListProjects() {
		if holderVisible(project.Location, unrestricted, allowed) {
			out = append(out, project)
		}
	}
	return out, nil
}

// SearchUsers returns visible users whose name or email contains the query,
// case-insensitively.
func (s *Service) SearchUsers(ctx context.Context, scope, query string) ([]User, error) {
	users, err := s.ListUsers(ctx, scope)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return users, nil
	}
	var out []User
	for _, user := range users {
		haystack := strings.ToLower(user.Name + "\n" + user.Email)
		if strings.Contains(haystack, needle) {
			out = append(out, user)
		}
	}
	return out, nil
}

// SearchProjects returns visible projects whose code or title contains the
// query, case-insensitively.
func (s *Service) SearchProjects(ctx context.Context, scope, query string) ([]Project, error) {
	projects, err := s.ListProjects(ctx, scope)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return projects, nil
	}
	var out []Project
	for _, project := range projects {
		haystack := strings.ToLower(project.Code + "\n" + project.Title)
		if strings.Contains(haystack, needle) {
			out = append(out, project)
		}
	}
	return out, nil
}

func validateIntake(intake AssetIntake) error {
	if strings.TrimSpace(intake.Name) == "" {
		return domain.MissingFieldError("name")
	}
	if strings.TrimSpace(intake.Office) == "" {
		return domain.MissingFieldError("office")
	}
	if strings.TrimSpace(intake.IssuedBy) == "" {
		return domain.MissingFieldError("issued_by")
	}
	if intake.Quantity < 0 {
		return domain.InvalidInputError("quantity cannot be negative")
	}
	if intake.Price < 0 {
		return domain.InvalidInputError("price cannot be negative")
	}
	return nil
}

func intakeWithin(tx Transaction, intake AssetIntake) (Asset, error) {
	if _, ok := tx.FindLocationByName(intake.Office); !ok {
		return Asset{}, domain.NotFoundError(EntityLocation, intake.Office)
	}
	quantity := intake.Quantity
	if quantity == 0 {
		quantity = 1
	}
	asset, err := tx.CreateAsset(Asset{
		Name:          intake.Name,
		Serial:        intake.Serial,
		Category:      intake.Category,
		Office:        intake.Office,
		Status:        StatusAvailable,
		IssuedBy:      intake.IssuedBy,
		InvoiceRef:    intake.InvoiceRef,
		Description:   intake.Description,
		StickerSeq:    intake.StickerSeq,
		WarrantyUntil: intake.WarrantyUntil,
		InsuredUntil:  intake.InsuredUntil,
		Price:         intake.Price,
		Quantity:      quantity,
	})
	if err != nil {
		return Asset{}, err
	}
	_, err = tx.AppendHistory(HistoryEntry{
		AssetID:     asset.ID,
		PerformedBy: intake.IssuedBy,
		Op:          domain.OpAdded,
		NewOffice:   asset.Office,
		Comment:     intake.Comment,
	})
	return asset, err
}

// IntakeAsset registers a new asset. The asset starts available and receives
// an added history entry.
func (s *Service) IntakeAsset(ctx context.Context, intake AssetIntake) (Asset, Result, error) {
	var created Asset
	var res Result
	err := s.observe(ctx, "intake_asset", func(ctx context.Context) (string, error) {
		if err := validateIntake(intake); err != nil {
			return "", err
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			created, err = intakeWithin(tx, intake)
			return err
		})
		return created.ID, err
	})
	return created, res, err
}

// IntakeBatch registers several assets in a single transaction. Either all of
// them commit or none does.
func (s *Service) IntakeBatch(ctx context.Context, intakes []AssetIntake) ([]Asset, Result, error) {
	var created []Asset
	var res Result
	err := s.observe(ctx, "intake_batch", func(ctx context.Context) (string, error) {
		if len(intakes) == 0 {
			return "", domain.InvalidInputError("batch is empty")
		}
		for _, intake := range intakes {
			if err := validateIntake(intake); err != nil {
				return "", err
			}
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			created = created[:0]
			for _, intake := range intakes {
				asset, err := intakeWithin(tx, intake)
				if err != nil {
					return err
				}
				created = append(created, asset)
			}
			return nil
		})
		if err != nil {
			return "", err
		}
		return created[0].ID, nil
	})
	if err != nil {
		return nil, res, err
	}
	return created, res, nil
}

// GetAsset retrieves a single asset by id.
func (s *Service) GetAsset(_ context.Context, id string) (Asset, error) {
	asset, ok := s.store.GetAsset(id)
	if !ok {
		return Asset{}, domain.NotFoundError(EntityAsset, id)
	}
	return asset, nil
}

func matchFilter(asset Asset, filter AssetFilter) bool {
	if filter.Status != "" && asset.Status != filter.Status {
		return false
	}
	if filter.Category != "" && asset.Category != filter.Category {
		return false
	}
	if filter.Holder != domain.HolderNone && asset.CustodyKind != filter.Holder {
		return false
	}
	if filter.Office != "" && asset.Office != filter.Office {
		return false
	}
	return true
}

// ListAssets returns the assets visible from the given administrative scope,
// narrowed by the filter. See ResolveVisibleLocations for scope semantics.
func (s *Service) ListAssets(ctx context.Context, scope string, filter AssetFilter) ([]Asset, error) {
	visible, err := s.ResolveVisibleLocations(ctx, scope)
	if err != nil {
		return nil, err
	}
	allowed := make(map[string]bool, len(visible))
	for _, name := range visible {
		allowed[name] = true
	}
	unrestricted := scope == "" || scope == domain.RootLocation
	var out []Asset
	for _, asset := range s.store.ListAssets() {
		if !unrestricted && !allowed[asset.Office] {
			continue
		}
		if matchFilter(asset, filter) {
			out = append(out, asset)
		}
	}
	return out, nil
}

// SearchAssets returns visible assets whose name, serial, category or sticker
// sequence contains the query, case-insensitively.
func (s *Service) SearchAssets(ctx context.Context, scope, query string) ([]Asset, error) {
	assets, err := s.ListAssets(ctx, scope, AssetFilter{})
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return assets, nil
	}
	var out []Asset
	for _, asset := range assets {
		haystack := strings.ToLower(strings.Join([]string{asset.Name, asset.Serial, asset.Category, asset.StickerSeq}, "\n"))
		if strings.Contains(haystack, needle) {
			out = append(out, asset)
		}
	}
	return out, nil
}

// AssignAsset places an available asset into the custody of a user or
// project. The asset becomes unavailable and an assigned history entry is
// appended.
func (s *Service) AssignAsset(ctx context.Context, assetID string, kind HolderKind, holderID, performedBy, comment string) (Asset, Result, error) {
	var updated Asset
	var res Result
	err := s.observe(ctx, "assign_asset", func(ctx context.Context) (string, error) {
		if kind != domain.HolderUser && kind != domain.HolderProject {
			return assetID, domain.InvalidInputError(fmt.Sprintf("unknown holder kind %q", kind))
		}
		if holderID == "" {
			return assetID, domain.MissingFieldError("holder_id")
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			asset, ok := tx.FindAsset(assetID)
			if !ok {
				return domain.NotFoundError(EntityAsset, assetID)
			}
			if asset.Status != StatusAvailable {
				return domain.InvalidStateError(EntityAsset, assetID, fmt.Sprintf("asset is %s, not available", asset.Status))
			}
			switch kind {
			case domain.HolderUser:
				if _, ok := tx.FindUser(holderID); !ok {
					return domain.NotFoundError(EntityUser, holderID)
				}
			case domain.HolderProject:
				if _, ok := tx.FindProject(holderID); !ok {
					return domain.NotFoundError(EntityProject, holderID)
				}
			}
			if _, err := tx.AssignCustody(assetID, kind, holderID); err != nil {
				return err
			}
			updated, err = tx.UpdateAsset(assetID, func(a *Asset) error {
				a.Status = StatusUnavailable
				a.CustodyKind = kind
				holder := holderID
				a.CustodyRef = &holder
				return nil
			})
			if err != nil {
				return err
			}
			holder := holderID
			_, err = tx.AppendHistory(HistoryEntry{
				AssetID:     assetID,
				PerformedBy: performedBy,
				Op:          domain.OpAssigned,
				HolderKind:  kind,
				HolderID:    &holder,
				Comment:     comment,
			})
			return err
		})
		return assetID, err
	})
	return updated, res, err
}

// UnassignAsset releases the asset from custody, restoring availability and
// appending an unassigned history entry.
func (s *Service) UnassignAsset(ctx context.Context, assetID, performedBy, comment string) (Asset, Result, error) {
	var updated Asset
	var res Result
	err := s.observe(ctx, "unassign_asset", func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if _, ok := tx.FindAsset(assetID); !ok {
				return domain.NotFoundError(EntityAsset, assetID)
			}
			released, err := tx.ReleaseCustody(assetID)
			if err != nil {
				return err
			}
			updated, err = tx.UpdateAsset(assetID, func(a *Asset) error {
				a.Status = StatusAvailable
				a.CustodyKind = domain.HolderNone
				a.CustodyRef = nil
				return nil
			})
			if err != nil {
				return err
			}
			holder := released.HolderID
			_, err = tx.AppendHistory(HistoryEntry{
				AssetID:     assetID,
				PerformedBy: performedBy,
				Op:          domain.OpUnassigned,
				HolderKind:  released.Holder,
				HolderID:    &holder,
				Comment:     comment,
			})
			return err
		})
		return assetID, err
	})
	return updated, res, err
}

// TransferAsset moves the asset to another office. With keepAssignment the
// current holder survives the move; otherwise any custody is released first
// and the release is recorded alongside the transfer.
func (s *Service) TransferAsset(ctx context.Context, assetID, newOffice, performedBy, comment string, keepAssignment bool) (Asset, Result, error) {
	var updated Asset
	var res Result
	err := s.observe(ctx, "transfer_asset", func(ctx context.Context) (string, error) {
		if strings.TrimSpace(newOffice) == "" {
			return assetID, domain.MissingFieldError("new_office")
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			asset, ok := tx.FindAsset(assetID)
			if !ok {
				return domain.NotFoundError(EntityAsset, assetID)
			}
			if asset.Status == StatusInactive {
				return domain.InvalidStateError(EntityAsset, assetID, "asset is inactive")
			}
			if _, ok := tx.FindLocationByName(newOffice); !ok {
				return domain.NotFoundError(EntityLocation, newOffice)
			}
			oldOffice := asset.Office
			if oldOffice == newOffice {
				return domain.InvalidInputError("asset is already at " + newOffice)
			}
			releaseHolder := asset.Held() && !keepAssignment
			var released CustodyRecord
			if releaseHolder {
				released, err = tx.ReleaseCustody(assetID)
				if err != nil {
					return err
				}
			}
			updated, err = tx.UpdateAsset(assetID, func(a *Asset) error {
				a.Office = newOffice
				if releaseHolder {
					a.Status = StatusAvailable
					a.CustodyKind = domain.HolderNone
					a.CustodyRef = nil
				}
				return nil
			})
			if err != nil {
				return err
			}
			if releaseHolder {
				holder := released.HolderID
				if _, err := tx.AppendHistory(HistoryEntry{
					AssetID:     assetID,
					PerformedBy: performedBy,
					Op:          domain.OpUnassigned,
					HolderKind:  released.Holder,
					HolderID:    &holder,
					Comment:     comment,
				}); err != nil {
					return err
				}
			}
			_, err = tx.AppendHistory(HistoryEntry{
				AssetID:     assetID,
				PerformedBy: performedBy,
				Op:          domain.OpTransferred,
				OldOffice:   oldOffice,
				NewOffice:   newOffice,
				Comment:     comment,
			})
			return err
		})
		return assetID, err
	})
	return updated, res, err
}

// DeactivateAsset retires the asset from the register. Deactivating an
// already inactive asset is a no-op. Custody is left in place unless the
// service was built with WithClearCustodyOnDeactivate.
func (s *Service) DeactivateAsset(ctx context.Context, assetID, performedBy, comment string) (Asset, Result, error) {
	var updated Asset
	var res Result
	err := s.observe(ctx, "deactivate_asset", func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			asset, ok := tx.FindAsset(assetID)
			if !ok {
				return domain.NotFoundError(EntityAsset, assetID)
			}
			if asset.Status == StatusInactive {
				updated = asset
				return nil
			}
			clearCustody := s.clearCustodyOnDeactivate && asset.Held()
			if clearCustody {
				if _, err := tx.ReleaseCustody(assetID); err != nil {
					return err
				}
			}
			updated, err = tx.UpdateAsset(assetID, func(a *Asset) error {
				a.Status = StatusInactive
				if clearCustody {
					a.CustodyKind = domain.HolderNone
					a.CustodyRef = nil
				}
				return nil
			})
			if err != nil {
				return err
			}
			_, err = tx.AppendHistory(HistoryEntry{
				AssetID:     assetID,
				PerformedBy: performedBy,
				Op:          domain.OpRemoved,
				Comment:     comment,
			})
			return err
		})
		return assetID, err
	})
	return updated, res, err
}

// EditAsset applies a partial update. Office changes append a location change
// history entry; combined with UnassignOnOfficeChange they also release
// custody. A Status patch of available reactivates an inactive asset and
// appends a restored entry. ExpectedVersion guards against concurrent
// editors.
func (s *Service) EditAsset(ctx context.Context, assetID string, patch AssetPatch) (Asset, Result, error) {
	var updated Asset
	var res Result
	err := s.observe(ctx, "edit_asset", func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			asset, ok := tx.FindAsset(assetID)
			if !ok {
				return domain.NotFoundError(EntityAsset, assetID)
			}
			if patch.ExpectedVersion != nil && asset.Version != *patch.ExpectedVersion {
				return domain.ConflictError(EntityAsset, assetID, fmt.Sprintf("version %d expected, have %d", *patch.ExpectedVersion, asset.Version))
			}
			reactivated := false
			if patch.Status != nil && *patch.Status != asset.Status {
				if asset.Status != StatusInactive || *patch.Status != StatusAvailable {
					return domain.InvalidInputError("status can only be edited to reactivate an inactive asset")
				}
				reactivated = true
			}
			oldOffice := asset.Office
			officeChanged := patch.Office != nil && *patch.Office != oldOffice
			if officeChanged {
				if _, ok := tx.FindLocationByName(*patch.Office); !ok {
					return domain.NotFoundError(EntityLocation, *patch.Office)
				}
			}
			releaseHolder := officeChanged && patch.UnassignOnOfficeChange && asset.Held()
			var released CustodyRecord
			if releaseHolder {
				released, err = tx.ReleaseCustody(assetID)
				if err != nil {
					return err
				}
			}
			updated, err = tx.UpdateAsset(assetID, func(a *Asset) error {
				if patch.Name != nil {
					a.Name = *patch.Name
				}
				if patch.Serial != nil {
					a.Serial = *patch.Serial
				}
				if patch.Category != nil {
					a.Category = *patch.Category
				}
				if patch.Office != nil {
					a.Office = *patch.Office
				}
				if patch.InvoiceRef != nil {
					a.InvoiceRef = *patch.InvoiceRef
				}
				if patch.Description != nil {
					a.Description = *patch.Description
				}
				if patch.StickerSeq != nil {
					a.StickerSeq = *patch.StickerSeq
				}
				if patch.WarrantyUntil != nil {
					t := *patch.WarrantyUntil
					a.WarrantyUntil = &t
				}
				if patch.InsuredUntil != nil {
					t := *patch.InsuredUntil
					a.InsuredUntil = &t
				}
				if patch.Price != nil {
					a.Price = *patch.Price
				}
				if patch.Quantity != nil {
					a.Quantity = *patch.Quantity
				}
				if reactivated {
					if a.Held() {
						a.Status = StatusUnavailable
					} else {
						a.Status = StatusAvailable
					}
				}
				if releaseHolder {
					a.Status = StatusAvailable
					a.CustodyKind = domain.HolderNone
					a.CustodyRef = nil
				}
				return nil
			})
			if err != nil {
				return err
			}
			if releaseHolder {
				holder := released.HolderID
				if _, err := tx.AppendHistory(HistoryEntry{
					AssetID:     assetID,
					PerformedBy: patch.PerformedBy,
					Op:          domain.OpUnassigned,
					HolderKind:  released.Holder,
					HolderID:    &holder,
					Comment:     patch.Comment,
				}); err != nil {
					return err
				}
			}
			if officeChanged {
				if _, err := tx.AppendHistory(HistoryEntry{
					AssetID:     assetID,
					PerformedBy: patch.PerformedBy,
					Op:          domain.OpLocationChanged,
					OldOffice:   oldOffice,
					NewOffice:   *patch.Office,
					Comment:     patch.Comment,
				}); err != nil {
					return err
				}
			}
			if reactivated {
				if _, err := tx.AppendHistory(HistoryEntry{
					AssetID:     assetID,
					PerformedBy: patch.PerformedBy,
					Op:          domain.OpRestored,
					Comment:     patch.Comment,
				}); err != nil {
					return err
				}
			}
			return nil
		})
		return assetID, err
	})
	return updated, res, err
}

// SendToMaintenance opens a pending maintenance record for an available
// asset and moves it into maintenance status.
func (s *Service) SendToMaintenance(ctx context.Context, assetID string, req MaintenanceRequest) (MaintenanceRecord, Result, error) {
	var record MaintenanceRecord
	var res Result
	err := s.observe(ctx, "send_maintenance", func(ctx context.Context) (string, error) {
		if strings.TrimSpace(req.Vendor.Name) == "" {
			return "", domain.MissingFieldError("vendor")
		}
		if req.ExpectedReturn.IsZero() {
			return "", domain.MissingFieldError("expected_return")
		}
		if req.Kind == "" {
			req.Kind = domain.MaintenanceRepair
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			asset, ok := tx.FindAsset(assetID)
			if !ok {
				return domain.NotFoundError(EntityAsset, assetID)
			}
			if asset.Status != StatusAvailable {
				return domain.InvalidStateError(EntityAsset, assetID, fmt.Sprintf("asset is %s, not available", asset.Status))
			}
			if pending, ok := tx.Snapshot().PendingMaintenanceFor(assetID); ok {
				return domain.AlreadyExistsError(EntityMaintenanceRecord, pending.ID, "asset already has pending maintenance")
			}
			record, err = tx.CreateMaintenance(MaintenanceRecord{
				AssetID:        assetID,
				ExpectedReturn: req.ExpectedReturn,
				Status:         domain.MaintenancePending,
				Kind:           req.Kind,
				Cost:           req.Cost,
				Vendor:         req.Vendor,
				SentBy:         req.SentBy,
			})
			if err != nil {
				return err
			}
			_, err = tx.UpdateAsset(assetID, func(a *Asset) error {
				a.Status = StatusMaintenance
				return nil
			})
			return err
		})
		return record.ID, err
	})
	return record, res, err
}

// CompleteMaintenance closes a pending maintenance record and restores the
// asset to availability. ReturnedAt defaults to now and must not precede the
// send date.
func (s *Service) CompleteMaintenance(ctx context.Context, recordID string, completion MaintenanceCompletion) (MaintenanceRecord, Result, error) {
	var record MaintenanceRecord
	var res Result
	err := s.observe(ctx, "complete_maintenance", func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			current, ok := tx.FindMaintenance(recordID)
			if !ok {
				return domain.NotFoundError(EntityMaintenanceRecord, recordID)
			}
			if current.Status != domain.MaintenancePending {
				return domain.InvalidStateError(EntityMaintenanceRecord, recordID, fmt.Sprintf("record is %s, not pending", current.Status))
			}
			returnedAt := completion.ReturnedAt
			if returnedAt.IsZero() {
				returnedAt = s.clock()
			}
			if returnedAt.Before(current.SentAt) {
				return domain.InvalidInputError("returned_at precedes the send date")
			}
			record, err = tx.UpdateMaintenance(recordID, func(m *MaintenanceRecord) error {
				m.Status = domain.MaintenanceCompleted
				m.ReturnedAt = &returnedAt
				m.CompletedBy = completion.CompletedBy
				if completion.Cost != nil {
					m.Cost = *completion.Cost
				}
				return nil
			})
			if err != nil {
				return err
			}
			_, err = tx.UpdateAsset(current.AssetID, func(a *Asset) error {
				a.Status = StatusAvailable
				return nil
			})
			return err
		})
		return recordID, err
	})
	return record, res, err
}

// ListMaintenance returns the maintenance records for one asset.
func (s *Service) ListMaintenance(_ context.Context, assetID string) []MaintenanceRecord {
	return s.store.MaintenanceForAsset(assetID)
}

// ListMaintenanceRecords returns every maintenance record in the register.
func (s *Service) ListMaintenanceRecords(_ context.Context) []MaintenanceRecord {
	return s.store.ListMaintenanceRecords()
}

// AssetHistory returns the raw history ledger for an asset, oldest first.
func (s *Service) AssetHistory(_ context.Context, assetID string) ([]HistoryEntry, error) {
	if _, ok := s.store.GetAsset(assetID); !ok {
		return nil, domain.NotFoundError(EntityAsset, assetID)
	}
	return s.store.HistoryForAsset(assetID), nil
}

// AssetTimeline merges the history ledger with maintenance sent and returned
// events into one timeline, newest first. Ties on timestamp order by record
// id so repeated calls agree.
func (s *Service) AssetTimeline(_ context.Context, assetID string) ([]TimelineEvent, error) {
	if _, ok := s.store.GetAsset(assetID); !ok {
		return nil, domain.NotFoundError(EntityAsset, assetID)
	}
	var events []TimelineEvent
	for _, h := range s.store.HistoryForAsset(assetID) {
		entry := h
		events = append(events, TimelineEvent{
			Kind:      domain.TimelineHistory,
			Timestamp: h.Timestamp,
			Seq:       h.Seq,
			RecordID:  h.ID,
			History:   &entry,
		})
	}
	for _, m := range s.store.MaintenanceForAsset(assetID) {
		record := m
		events = append(events, TimelineEvent{
			Kind:        domain.TimelineMaintenanceSent,
			Timestamp:   m.SentAt,
			RecordID:    m.ID,
			Maintenance: &record,
		})
		if m.ReturnedAt != nil {
			returned := m
			events = append(events, TimelineEvent{
				Kind:        domain.TimelineMaintenanceReturned,
				Timestamp:   *m.ReturnedAt,
				RecordID:    m.ID,
				Maintenance: &returned,
			})
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.After(events[j].Timestamp)
		}
		if events[i].Seq != events[j].Seq {
			return events[i].Seq > events[j].Seq
		}
		return events[i].RecordID < events[j].RecordID
	})
	return events, nil
}
