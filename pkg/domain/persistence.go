package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. Either every mutation performed through
// a transaction commits, or none does.
type Transaction interface {
	Snapshot() TransactionView

	CreateLocation(Location) (Location, error)
	UpdateLocation(id string, mutator func(*Location) error) (Location, error)
	CreateUser(User) (User, error)
	CreateProject(Project) (Project, error)

	CreateAsset(Asset) (Asset, error)
	UpdateAsset(id string, mutator func(*Asset) error) (Asset, error)

	// AssignCustody inserts exactly one custody record into the relation
	// matching kind. It fails when any record already exists for the asset in
	// either relation.
	AssignCustody(assetID string, kind HolderKind, holderID string) (CustodyRecord, error)
	// ReleaseCustody removes the asset's custody record from whichever
	// relation holds it, failing when none exists.
	ReleaseCustody(assetID string) (CustodyRecord, error)
	CurrentHolder(assetID string) (CustodyRecord, bool)

	AppendHistory(HistoryEntry) (HistoryEntry, error)

	CreateMaintenance(MaintenanceRecord) (MaintenanceRecord, error)
	UpdateMaintenance(id string, mutator func(*MaintenanceRecord) error) (MaintenanceRecord, error)

	FindAsset(id string) (Asset, bool)
	FindLocationByName(name string) (Location, bool)
	FindUser(id string) (User, bool)
	FindProject(id string) (Project, bool)
	FindMaintenance(id string) (MaintenanceRecord, bool)
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	RuleView
	ListUsers() []User
	FindUser(id string) (User, bool)
	ListProjects() []Project
	FindProject(id string) (Project, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetAsset(id string) (Asset, bool)
	ListAssets() []Asset
	GetLocation(id string) (Location, bool)
	ListLocations() []Location
	ListUsers() []User
	ListProjects() []Project
	ListCustodyRecords() []CustodyRecord
	HistoryForAsset(assetID string) []HistoryEntry
	MaintenanceForAsset(assetID string) []MaintenanceRecord
	ListMaintenanceRecords() []MaintenanceRecord
}
