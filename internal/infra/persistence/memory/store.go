// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"assetcore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Location aliases domain.Location for in-memory persistence operations.
	Location = domain.Location
	// User aliases domain.User.
	User = domain.User
	// Project aliases domain.Project.
	Project = domain.Project
	// Asset aliases domain.Asset.
	Asset = domain.Asset
	// CustodyRecord aliases domain.CustodyRecord.
	CustodyRecord = domain.CustodyRecord
	// HistoryEntry aliases domain.HistoryEntry.
	HistoryEntry = domain.HistoryEntry
	// MaintenanceRecord aliases domain.MaintenanceRecord.
	MaintenanceRecord = domain.MaintenanceRecord
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
	// PersistentStore aliases domain.PersistentStore abstraction.
	PersistentStore = domain.PersistentStore
)

type memoryState struct {
	locations      map[string]Location
	users          map[string]User
	projects       map[string]Project
	assets         map[string]Asset
	userCustody    map[string]CustodyRecord // keyed by asset id
	projectCustody map[string]CustodyRecord // keyed by asset id
	history        map[string]HistoryEntry
	maintenance    map[string]MaintenanceRecord
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Locations      map[string]Location          `json:"locations"`
	Users          map[string]User              `json:"users"`
	Projects       map[string]Project           `json:"projects"`
	Assets         map[string]Asset             `json:"assets"`
	UserCustody    map[string]CustodyRecord     `json:"user_custody"`
	ProjectCustody map[string]CustodyRecord     `json:"project_custody"`
	History        map[string]HistoryEntry      `json:"history"`
	Maintenance    map[string]MaintenanceRecord `json:"maintenance"`
}

func newMemoryState() memoryState {
	return memoryState{
		locations:      make(map[string]Location),
		users:          make(map[string]User),
		projects:       make(map[string]Project),
		assets:         make(map[string]Asset),
		userCustody:    make(map[string]CustodyRecord),
		projectCustody: make(map[string]CustodyRecord),
		history:        make(map[string]HistoryEntry),
		maintenance:    make(map[string]MaintenanceRecord),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Locations:      make(map[string]Location, len(state.locations)),
		Users:          make(map[string]User, len(state.users)),
		Projects:       make(map[string]Project, len(state.projects)),
		Assets:         make(map[string]Asset, len(state.assets)),
		UserCustody:    make(map[string]CustodyRecord, len(state.userCustody)),
		ProjectCustody: make(map[string]CustodyRecord, len(state.projectCustody)),
		History:        make(map[string]HistoryEntry, len(state.history)),
		Maintenance:    make(map[string]MaintenanceRecord, len(state.maintenance)),
	}
	for k, v := range state.locations {
		s.Locations[k] = v
	}
	for k, v := range state.users {
		s.Users[k] = v
	}
	for k, v := range state.projects {
		s.Projects[k] = v
	}
	for k, v := range state.assets {
		s.Assets[k] = cloneAsset(v)
	}
	for k, v := range state.userCustody {
		s.UserCustody[k] = v
	}
	for k, v := range state.projectCustody {
		s.ProjectCustody[k] = v
	}
	for k, v := range state.history {
		s.History[k] = cloneHistory(v)
	}
	for k, v := range state.maintenance {
		s.Maintenance[k] = cloneMaintenance(v)
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Locations {
		state.locations[k] = v
	}
	for k, v := range s.Users {
		state.users[k] = v
	}
	for k, v := range s.Projects {
		state.projects[k] = v
	}
	for k, v := range s.Assets {
		state.assets[k] = cloneAsset(v)
	}
	for k, v := range s.UserCustody {
		state.userCustody[k] = v
	}
	for k, v := range s.ProjectCustody {
		state.projectCustody[k] = v
	}
	for k, v := range s.History {
		state.history[k] = cloneHistory(v)
	}
	for k, v := range s.Maintenance {
		state.maintenance[k] = cloneMaintenance(v)
	}
	return state
}

// migrateSnapshot repairs referential drift in imported snapshots: custody
// rows for unknown assets are dropped, an asset held in both relations keeps
// only the row matching its denormalized custody kind, and the denormalized
// custody fields are re-derived from the surviving ledger rows. History is
// retained verbatim; the register never forgets.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Locations == nil {
		snapshot.Locations = map[string]Location{}
	}
	if snapshot.Users == nil {
		snapshot.Users = map[string]User{}
	}
	if snapshot.Projects == nil {
		snapshot.Projects = map[string]Project{}
	}
	if snapshot.Assets == nil {
		snapshot.Assets = map[string]Asset{}
	}
	if snapshot.UserCustody == nil {
		snapshot.UserCustody = map[string]CustodyRecord{}
	}
	if snapshot.ProjectCustody == nil {
		snapshot.ProjectCustody = map[string]CustodyRecord{}
	}
	if snapshot.History == nil {
		snapshot.History = map[string]HistoryEntry{}
	}
	if snapshot.Maintenance == nil {
		snapshot.Maintenance = map[string]MaintenanceRecord{}
	}

	assetExists := func(id string) bool {
		_, ok := snapshot.Assets[id]
		return ok
	}

	for assetID, rec := range snapshot.UserCustody {
		if rec.AssetID == "" || !assetExists(rec.AssetID) || rec.AssetID != assetID {
			delete(snapshot.UserCustody, assetID)
			continue
		}
		rec.Holder = domain.HolderUser
		snapshot.UserCustody[assetID] = rec
	}
	for assetID, rec := range snapshot.ProjectCustody {
		if rec.AssetID == "" || !assetExists(rec.AssetID) || rec.AssetID != assetID {
			delete(snapshot.ProjectCustody, assetID)
			continue
		}
		rec.Holder = domain.HolderProject
		snapshot.ProjectCustody[assetID] = rec
	}

	for id, asset := range snapshot.Assets {
		userRec, inUser := snapshot.UserCustody[id]
		projectRec, inProject := snapshot.ProjectCustody[id]
		if inUser && inProject {
			// Duplicate custody across relations: keep the row the asset's
			// denormalized kind points at, defaulting to the user relation.
			if asset.CustodyKind == domain.HolderProject {
				delete(snapshot.UserCustody, id)
				inUser = false
			} else {
				delete(snapshot.ProjectCustody, id)
				inProject = false
			}
		}
		switch {
		case inUser:
			asset.CustodyKind = domain.HolderUser
			holder := userRec.HolderID
			asset.CustodyRef = &holder
		case inProject:
			asset.CustodyKind = domain.HolderProject
			holder := projectRec.HolderID
			asset.CustodyRef = &holder
		default:
			asset.CustodyKind = domain.HolderNone
			asset.CustodyRef = nil
		}
		if asset.Status == "" {
			asset.Status = domain.StatusAvailable
		}
		snapshot.Assets[id] = asset
	}

	for id, rec := range snapshot.Maintenance {
		if rec.AssetID == "" || !assetExists(rec.AssetID) {
			delete(snapshot.Maintenance, id)
			continue
		}
		if rec.Status == "" {
			rec.Status = domain.MaintenancePending
		}
		snapshot.Maintenance[id] = rec
	}

	return snapshot
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.locations {
		cloned.locations[k] = v
	}
	for k, v := range s.users {
		cloned.users[k] = v
	}
	for k, v := range s.projects {
		cloned.projects[k] = v
	}
	for k, v := range s.assets {
		cloned.assets[k] = cloneAsset(v)
	}
	for k, v := range s.userCustody {
		cloned.userCustody[k] = v
	}
	for k, v := range s.projectCustody {
		cloned.projectCustody[k] = v
	}
	for k, v := range s.history {
		cloned.history[k] = cloneHistory(v)
	}
	for k, v := range s.maintenance {
		cloned.maintenance[k] = cloneMaintenance(v)
	}
	return cloned
}

func cloneAsset(a Asset) Asset {
	cp := a
	if a.CustodyRef != nil {
		ref := *a.CustodyRef
		cp.CustodyRef = &ref
	}
	if a.WarrantyUntil != nil {
		t := *a.WarrantyUntil
		cp.WarrantyUntil = &t
	}
	if a.InsuredUntil != nil {
		t := *a.InsuredUntil
		cp.InsuredUntil = &t
	}
	return cp
}

func cloneHistory(h HistoryEntry) HistoryEntry {
	cp := h
	if h.HolderID != nil {
		id := *h.HolderID
		cp.HolderID = &id
	}
	return cp
}

func cloneMaintenance(m MaintenanceRecord) MaintenanceRecord {
	cp := m
	if m.ReturnedAt != nil {
		t := *m.ReturnedAt
		cp.ReturnedAt = &t
	}
	return cp
}

func payloadOf[T any](value T) domain.ChangePayload {
	payload, err := domain.NewChangePayloadFromValue(value)
	if err != nil {
		panic(fmt.Errorf("memory store: encode change payload: %w", err))
	}
	return payload
}

// Store provides an in-memory transactional store for the asset domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
	seq    uint64
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot. The
// history sequence counter resumes past the highest imported sequence.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
	s.seq = 0
	for _, h := range s.state.history {
		if h.Seq > s.seq {
			s.seq = h.Seq
		}
	}
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// SetNowFunc overrides the time provider, primarily for tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
	seq     uint64
}

// transactionView exposes a read-only snapshot of the transactional state.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListAssets returns all assets within the transaction snapshot.
func (v transactionView) ListAssets() []Asset {
	out := make([]Asset, 0, len(v.state.assets))
	for _, a := range v.state.assets {
		out = append(out, cloneAsset(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindAsset retrieves an asset by ID from the snapshot.
func (v transactionView) FindAsset(id string) (Asset, bool) {
	a, ok := v.state.assets[id]
	if !ok {
		return Asset{}, false
	}
	return cloneAsset(a), true
}

// ListLocations returns all locations in the snapshot.
func (v transactionView) ListLocations() []Location {
	out := make([]Location, 0, len(v.state.locations))
	for _, l := range v.state.locations {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FindLocationByName retrieves a location by its unique name.
func (v transactionView) FindLocationByName(name string) (Location, bool) {
	for _, l := range v.state.locations {
		if l.Name == name {
			return l, true
		}
	}
	return Location{}, false
}

// ListCustodyRecords returns the union of both custody relations.
func (v transactionView) ListCustodyRecords() []CustodyRecord {
	out := make([]CustodyRecord, 0, len(v.state.userCustody)+len(v.state.projectCustody))
	for _, r := range v.state.userCustody {
		out = append(out, r)
	}
	for _, r := range v.state.projectCustody {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CustodyOf retrieves the custody record for an asset from either relation.
func (v transactionView) CustodyOf(assetID string) (CustodyRecord, bool) {
	if r, ok := v.state.userCustody[assetID]; ok {
		return r, true
	}
	if r, ok := v.state.projectCustody[assetID]; ok {
		return r, true
	}
	return CustodyRecord{}, false
}

// ListMaintenanceRecords returns all maintenance records in the snapshot.
func (v transactionView) ListMaintenanceRecords() []MaintenanceRecord {
	out := make([]MaintenanceRecord, 0, len(v.state.maintenance))
	for _, m := range v.state.maintenance {
		out = append(out, cloneMaintenance(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PendingMaintenanceFor retrieves the pending maintenance record for an asset, if any.
func (v transactionView) PendingMaintenanceFor(assetID string) (MaintenanceRecord, bool) {
	for _, m := range v.state.maintenance {
		if m.AssetID == assetID && m.Status == domain.MaintenancePending {
			return cloneMaintenance(m), true
		}
	}
	return MaintenanceRecord{}, false
}

// HistoryFor returns the asset's history entries ordered by timestamp, then id.
func (v transactionView) HistoryFor(assetID string) []HistoryEntry {
	var out []HistoryEntry
	for _, h := range v.state.history {
		if h.AssetID == assetID {
			out = append(out, cloneHistory(h))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		if out[i].Seq != out[j].Seq {
			return out[i].Seq < out[j].Seq
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ListUsers returns all users in the snapshot.
func (v transactionView) ListUsers() []User {
	out := make([]User, 0, len(v.state.users))
	for _, u := range v.state.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindUser retrieves a user by ID from the snapshot.
func (v transactionView) FindUser(id string) (User, bool) {
	u, ok := v.state.users[id]
	return u, ok
}

// ListProjects returns all projects in the snapshot.
func (v transactionView) ListProjects() []Project {
	out := make([]Project, 0, len(v.state.projects))
	for _, p := range v.state.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindProject retrieves a project by ID from the snapshot.
func (v transactionView) FindProject(id string) (Project, bool) {
	p, ok := v.state.projects[id]
	return p, ok
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
		seq:   s.seq,
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	s.seq = tx.seq
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindAsset exposes asset lookup within the transaction scope.
func (tx *transaction) FindAsset(id string) (Asset, bool) {
	a, ok := tx.state.assets[id]
	if !ok {
		return Asset{}, false
	}
	return cloneAsset(a), true
}

// FindLocationByName exposes location lookup within the transaction scope.
func (tx *transaction) FindLocationByName(name string) (Location, bool) {
	for _, l := range tx.state.locations {
		if l.Name == name {
			return l, true
		}
	}
	return Location{}, false
}

// FindUser exposes user lookup within the transaction scope.
func (tx *transaction) FindUser(id string) (User, bool) {
	u, ok := tx.state.users[id]
	return u, ok
}

// FindProject exposes project lookup within the transaction scope.
func (tx *transaction) FindProject(id string) (Project, bool) {
	p, ok := tx.state.projects[id]
	return p, ok
}

// FindMaintenance exposes maintenance record lookup within the transaction scope.
func (tx *transaction) FindMaintenance(id string) (MaintenanceRecord, bool) {
	m, ok := tx.state.maintenance[id]
	if !ok {
		return MaintenanceRecord{}, false
	}
	return cloneMaintenance(m), true
}

// CreateLocation stores a new location within the transaction.
func (tx *transaction) CreateLocation(l Location) (Location, error) {
	if l.ID == "" {
		l.ID = tx.store.newID()
	}
	if _, exists := tx.state.locations[l.ID]; exists {
		return Location{}, domain.AlreadyExistsError(domain.EntityLocation, l.ID, fmt.Sprintf("location %q already exists", l.ID))
	}
	for _, existing := range tx.state.locations {
		if existing.Name == l.Name {
			return Location{}, domain.AlreadyExistsError(domain.EntityLocation, l.Name, fmt.Sprintf("location name %q already in use", l.Name))
		}
	}
	l.CreatedAt = tx.now
	l.UpdatedAt = tx.now
	tx.state.locations[l.ID] = l
	tx.recordChange(Change{Entity: domain.EntityLocation, Action: domain.ActionCreate, EntityID: l.ID, After: payloadOf(l)})
	return l, nil
}

// UpdateLocation mutates a location using the provided mutator function.
func (tx *transaction) UpdateLocation(id string, mutator func(*Location) error) (Location, error) {
	current, ok := tx.state.locations[id]
	if !ok {
		return Location{}, domain.NotFoundError(domain.EntityLocation, id)
	}
	before := current
	if err := mutator(&current); err != nil {
		return Location{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.locations[id] = current
	tx.recordChange(Change{Entity: domain.EntityLocation, Action: domain.ActionUpdate, EntityID: id, Before: payloadOf(before), After: payloadOf(current)})
	return current, nil
}

// CreateUser stores a new user within the transaction.
func (tx *transaction) CreateUser(u User) (User, error) {
	if u.ID == "" {
		u.ID = tx.store.newID()
	}
	if _, exists := tx.state.users[u.ID]; exists {
		return User{}, domain.AlreadyExistsError(domain.EntityUser, u.ID, fmt.Sprintf("user %q already exists", u.ID))
	}
	u.CreatedAt = tx.now
	u.UpdatedAt = tx.now
	tx.state.users[u.ID] = u
	tx.recordChange(Change{Entity: domain.EntityUser, Action: domain.ActionCreate, EntityID: u.ID, After: payloadOf(u)})
	return u, nil
}

// CreateProject stores a new project within the transaction.
func (tx *transaction) CreateProject(p Project) (Project, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.projects[p.ID]; exists {
		return Project{}, domain.AlreadyExistsError(domain.EntityProject, p.ID, fmt.Sprintf("project %q already exists", p.ID))
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.projects[p.ID] = p
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionCreate, EntityID: p.ID, After: payloadOf(p)})
	return p, nil
}

// CreateAsset stores a new asset within the transaction.
func (tx *transaction) CreateAsset(a Asset) (Asset, error) {
	if a.ID == "" {
		a.ID = tx.store.newID()
	}
	if _, exists := tx.state.assets[a.ID]; exists {
		return Asset{}, domain.AlreadyExistsError(domain.EntityAsset, a.ID, fmt.Sprintf("asset %q already exists", a.ID))
	}
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	if a.Status == "" {
		a.Status = domain.StatusAvailable
	}
	if a.Version == 0 {
		a.Version = 1
	}
	tx.state.assets[a.ID] = cloneAsset(a)
	tx.recordChange(Change{Entity: domain.EntityAsset, Action: domain.ActionCreate, EntityID: a.ID, After: payloadOf(a)})
	return cloneAsset(a), nil
}

// UpdateAsset mutates an asset using the provided mutator function. The
// version counter advances on every update so optimistic checks can detect
// concurrent writers.
func (tx *transaction) UpdateAsset(id string, mutator func(*Asset) error) (Asset, error) {
	current, ok := tx.state.assets[id]
	if !ok {
		return Asset{}, domain.NotFoundError(domain.EntityAsset, id)
	}
	before := cloneAsset(current)
	if err := mutator(&current); err != nil {
		return Asset{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	current.Version = before.Version + 1
	tx.state.assets[id] = cloneAsset(current)
	tx.recordChange(Change{Entity: domain.EntityAsset, Action: domain.ActionUpdate, EntityID: id, Before: payloadOf(before), After: payloadOf(current)})
	return cloneAsset(current), nil
}

// AssignCustody inserts a custody record for the asset into the relation
// matching kind, enforcing the at-most-one-holder invariant.
func (tx *transaction) AssignCustody(assetID string, kind domain.HolderKind, holderID string) (CustodyRecord, error) {
	if _, held := tx.state.userCustody[assetID]; held {
		return CustodyRecord{}, domain.AlreadyExistsError(domain.EntityCustodyRecord, assetID, fmt.Sprintf("asset %q already assigned", assetID))
	}
	if _, held := tx.state.projectCustody[assetID]; held {
		return CustodyRecord{}, domain.AlreadyExistsError(domain.EntityCustodyRecord, assetID, fmt.Sprintf("asset %q already assigned", assetID))
	}
	rec := CustodyRecord{
		AssetID:  assetID,
		Holder:   kind,
		HolderID: holderID,
	}
	rec.ID = tx.store.newID()
	rec.CreatedAt = tx.now
	rec.UpdatedAt = tx.now
	switch kind {
	case domain.HolderUser:
		tx.state.userCustody[assetID] = rec
	case domain.HolderProject:
		tx.state.projectCustody[assetID] = rec
	default:
		return CustodyRecord{}, domain.InvalidInputError(fmt.Sprintf("unknown holder kind %q", kind))
	}
	tx.recordChange(Change{Entity: domain.EntityCustodyRecord, Action: domain.ActionCreate, EntityID: rec.ID, After: payloadOf(rec)})
	return rec, nil
}

// ReleaseCustody removes the asset's custody record from whichever relation
// holds it.
func (tx *transaction) ReleaseCustody(assetID string) (CustodyRecord, error) {
	if rec, ok := tx.state.userCustody[assetID]; ok {
		delete(tx.state.userCustody, assetID)
		tx.recordChange(Change{Entity: domain.EntityCustodyRecord, Action: domain.ActionDelete, EntityID: rec.ID, Before: payloadOf(rec)})
		return rec, nil
	}
	if rec, ok := tx.state.projectCustody[assetID]; ok {
		delete(tx.state.projectCustody, assetID)
		tx.recordChange(Change{Entity: domain.EntityCustodyRecord, Action: domain.ActionDelete, EntityID: rec.ID, Before: payloadOf(rec)})
		return rec, nil
	}
	return CustodyRecord{}, domain.InvalidStateError(domain.EntityCustodyRecord, assetID, fmt.Sprintf("asset %q is not assigned", assetID))
}

// CurrentHolder reports the asset's custody record from either relation.
func (tx *transaction) CurrentHolder(assetID string) (CustodyRecord, bool) {
	if rec, ok := tx.state.userCustody[assetID]; ok {
		return rec, true
	}
	if rec, ok := tx.state.projectCustody[assetID]; ok {
		return rec, true
	}
	return CustodyRecord{}, false
}

// AppendHistory inserts an append-only history entry. The timestamp defaults
// to the transaction time when unset; entries appended within one transaction
// share that timestamp, so each is stamped with the next store-wide sequence
// number to keep their order stable.
func (tx *transaction) AppendHistory(h HistoryEntry) (HistoryEntry, error) {
	if h.AssetID == "" {
		return HistoryEntry{}, domain.MissingFieldError("asset_id")
	}
	if h.Op == "" {
		return HistoryEntry{}, domain.MissingFieldError("op")
	}
	if h.ID == "" {
		h.ID = tx.store.newID()
	}
	if _, exists := tx.state.history[h.ID]; exists {
		return HistoryEntry{}, domain.AlreadyExistsError(domain.EntityHistoryEntry, h.ID, fmt.Sprintf("history entry %q already exists", h.ID))
	}
	if h.Timestamp.IsZero() {
		h.Timestamp = tx.now
	}
	if h.Seq == 0 {
		tx.seq++
		h.Seq = tx.seq
	}
	tx.state.history[h.ID] = cloneHistory(h)
	tx.recordChange(Change{Entity: domain.EntityHistoryEntry, Action: domain.ActionCreate, EntityID: h.ID, After: payloadOf(h)})
	return cloneHistory(h), nil
}

// CreateMaintenance stores a new maintenance record within the transaction.
func (tx *transaction) CreateMaintenance(m MaintenanceRecord) (MaintenanceRecord, error) {
	if m.ID == "" {
		m.ID = tx.store.newID()
	}
	if _, exists := tx.state.maintenance[m.ID]; exists {
		return MaintenanceRecord{}, domain.AlreadyExistsError(domain.EntityMaintenanceRecord, m.ID, fmt.Sprintf("maintenance record %q already exists", m.ID))
	}
	m.CreatedAt = tx.now
	m.UpdatedAt = tx.now
	if m.Status == "" {
		m.Status = domain.MaintenancePending
	}
	if m.SentAt.IsZero() {
		m.SentAt = tx.now
	}
	tx.state.maintenance[m.ID] = cloneMaintenance(m)
	tx.recordChange(Change{Entity: domain.EntityMaintenanceRecord, Action: domain.ActionCreate, EntityID: m.ID, After: payloadOf(m)})
	return cloneMaintenance(m), nil
}

// UpdateMaintenance mutates a maintenance record.
func (tx *transaction) UpdateMaintenance(id string, mutator func(*MaintenanceRecord) error) (MaintenanceRecord, error) {
	current, ok := tx.state.maintenance[id]
	if !ok {
		return MaintenanceRecord{}, domain.NotFoundError(domain.EntityMaintenanceRecord, id)
	}
	before := cloneMaintenance(current)
	if err := mutator(&current); err != nil {
		return MaintenanceRecord{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.maintenance[id] = cloneMaintenance(current)
	tx.recordChange(Change{Entity: domain.EntityMaintenanceRecord, Action: domain.ActionUpdate, EntityID: id, Before: payloadOf(before), After: payloadOf(current)})
	return cloneMaintenance(current), nil
}

// Read helpers ---------------------------------------------------------------

// GetAsset retrieves an asset by ID from committed state.
func (s *Store) GetAsset(id string) (Asset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.state.assets[id]
	if !ok {
		return Asset{}, false
	}
	return cloneAsset(a), true
}

// ListAssets returns all assets from committed state.
func (s *Store) ListAssets() []Asset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Asset, 0, len(s.state.assets))
	for _, a := range s.state.assets {
		out = append(out, cloneAsset(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetLocation retrieves a location by ID.
func (s *Store) GetLocation(id string) (Location, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.state.locations[id]
	return l, ok
}

// ListLocations returns all locations.
func (s *Store) ListLocations() []Location {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Location, 0, len(s.state.locations))
	for _, l := range s.state.locations {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListUsers returns all users.
func (s *Store) ListUsers() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, 0, len(s.state.users))
	for _, u := range s.state.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListProjects returns all projects.
func (s *Store) ListProjects() []Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Project, 0, len(s.state.projects))
	for _, p := range s.state.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListCustodyRecords returns the union of both custody relations.
func (s *Store) ListCustodyRecords() []CustodyRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CustodyRecord, 0, len(s.state.userCustody)+len(s.state.projectCustody))
	for _, r := range s.state.userCustody {
		out = append(out, r)
	}
	for _, r := range s.state.projectCustody {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// HistoryForAsset returns the asset's history ordered by timestamp, then id.
func (s *Store) HistoryForAsset(assetID string) []HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []HistoryEntry
	for _, h := range s.state.history {
		if h.AssetID == assetID {
			out = append(out, cloneHistory(h))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		if out[i].Seq != out[j].Seq {
			return out[i].Seq < out[j].Seq
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// MaintenanceForAsset returns the asset's maintenance records ordered by sent date, then id.
func (s *Store) MaintenanceForAsset(assetID string) []MaintenanceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []MaintenanceRecord
	for _, m := range s.state.maintenance {
		if m.AssetID == assetID {
			out = append(out, cloneMaintenance(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SentAt.Equal(out[j].SentAt) {
			return out[i].SentAt.Before(out[j].SentAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ListMaintenanceRecords returns all maintenance records.
func (s *Store) ListMaintenanceRecords() []MaintenanceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]MaintenanceRecord, 0, len(s.state.maintenance))
	for _, m := range s.state.maintenance {
		out = append(out, cloneMaintenance(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
