// Package domain defines the persistent entities, value types, and rule
// evaluation primitives used by assetcore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityLocation identifies an office location record.
	EntityLocation EntityType = "location"
	// EntityUser identifies a user record acting as a custody holder.
	EntityUser EntityType = "user"
	// EntityProject identifies a project record acting as a custody holder.
	EntityProject EntityType = "project"
	// EntityAsset identifies an asset register record.
	EntityAsset EntityType = "asset"
	// EntityCustodyRecord identifies a custody join record.
	EntityCustodyRecord EntityType = "custody_record"
	// EntityHistoryEntry identifies an append-only history entry.
	EntityHistoryEntry EntityType = "history_entry"
	// EntityMaintenanceRecord identifies a maintenance cycle record.
	EntityMaintenanceRecord EntityType = "maintenance_record"
)

// RootLocation is the synthetic parent of every top-level office node.
const RootLocation = "ROOT"

// AssetStatus represents the canonical asset custody states.
type AssetStatus string

// Canonical asset statuses. Maintenance is a first-class status rather than
// an overload of Unavailable so that a pending cycle is visible in the status
// field itself.
const (
	// StatusAvailable indicates an asset free for assignment.
	StatusAvailable AssetStatus = "available"
	// StatusUnavailable indicates an asset held by a user or project.
	StatusUnavailable AssetStatus = "unavailable"
	// StatusMaintenance indicates an asset away on a pending maintenance cycle.
	StatusMaintenance AssetStatus = "maintenance"
	// StatusInactive indicates a deactivated asset; assets are never physically deleted.
	StatusInactive AssetStatus = "inactive"
)

// HolderKind identifies which custody relation holds an asset.
type HolderKind string

// Custody holder kinds. An asset is held by at most one holder at a time
// across both relations.
const (
	HolderNone    HolderKind = ""
	HolderUser    HolderKind = "user"
	HolderProject HolderKind = "project"
)

// OperationType enumerates the closed set of history entry operations.
type OperationType string

// History operations. One entry is appended per state transition; a transfer
// that forces an unassignment appends two.
const (
	OpAdded           OperationType = "added"
	OpAssigned        OperationType = "assigned"
	OpUnassigned      OperationType = "unassigned"
	OpRemoved         OperationType = "removed"
	OpLocationChanged OperationType = "location_changed"
	OpTransferred     OperationType = "transferred"
	OpRestored        OperationType = "restored"
)

// MaintenanceStatus enumerates maintenance cycle states.
type MaintenanceStatus string

// Maintenance cycle states; Completed is terminal.
const (
	MaintenancePending   MaintenanceStatus = "pending"
	MaintenanceCompleted MaintenanceStatus = "completed"
)

// MaintenanceKind distinguishes repair from replacement cycles.
type MaintenanceKind string

// Supported maintenance kinds.
const (
	MaintenanceRepair      MaintenanceKind = "repair"
	MaintenanceReplacement MaintenanceKind = "replacement"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Location is one node of the office forest rooted at RootLocation. Parent is
// the parent location's name, or RootLocation for top-level offices.
type Location struct {
	Base
	Name    string `json:"name"`
	Parent  string `json:"parent"`
	Kind    string `json:"kind"`
	Address string `json:"address,omitempty"`
}

// User is a person who may hold assets.
type User struct {
	Base
	Name     string `json:"name"`
	Email    string `json:"email"`
	Location string `json:"location"`
}

// Project is an organizational unit that may hold assets.
type Project struct {
	Base
	Code     string `json:"code"`
	Title    string `json:"title"`
	Location string `json:"location"`
}

// Asset is one register entry. Status, CustodyKind and CustodyRef are
// denormalized from the custody ledger and must agree with it; the rules
// engine enforces the agreement on every commit.
type Asset struct {
	Base
	Name          string      `json:"name"`
	Serial        string      `json:"serial"`
	Category      string      `json:"category"`
	Office        string      `json:"office"`
	Status        AssetStatus `json:"status"`
	CustodyKind   HolderKind  `json:"custody_kind"`
	CustodyRef    *string     `json:"custody_ref"`
	IssuedBy      string      `json:"issued_by"`
	InvoiceRef    string      `json:"invoice_ref,omitempty"`
	Description   string      `json:"description,omitempty"`
	StickerSeq    string      `json:"sticker_seq,omitempty"`
	WarrantyUntil *time.Time  `json:"warranty_until,omitempty"`
	InsuredUntil  *time.Time  `json:"insured_until,omitempty"`
	Price         float64     `json:"price"`
	Quantity      int         `json:"quantity"`
	Version       int64       `json:"version"`
}

// Held reports whether the asset currently has a custody holder.
func (a Asset) Held() bool {
	return a.CustodyKind != HolderNone
}

// CustodyRecord is one row of the custody ledger. At most one record exists
// per asset across the user and project relations.
type CustodyRecord struct {
	Base
	AssetID  string     `json:"asset_id"`
	Holder   HolderKind `json:"holder"`
	HolderID string     `json:"holder_id"`
}

// HistoryEntry is one append-only audit record. Entries are never mutated or
// deleted; Timestamp orders the timeline and Seq breaks ties between entries
// appended within the same transaction, which share one timestamp.
type HistoryEntry struct {
	ID          string        `json:"id"`
	Seq         uint64        `json:"seq,omitempty"`
	AssetID     string        `json:"asset_id"`
	PerformedBy string        `json:"performed_by"`
	Op          OperationType `json:"op"`
	HolderKind  HolderKind    `json:"holder_kind,omitempty"`
	HolderID    *string       `json:"holder_id,omitempty"`
	OldOffice   string        `json:"old_office,omitempty"`
	NewOffice   string        `json:"new_office,omitempty"`
	Comment     string        `json:"comment,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
}

// Vendor identifies the external party performing maintenance.
type Vendor struct {
	Name    string `json:"name"`
	Contact string `json:"contact,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

// MaintenanceRecord tracks one maintenance cycle for an asset.
type MaintenanceRecord struct {
	Base
	AssetID        string            `json:"asset_id"`
	SentAt         time.Time         `json:"sent_at"`
	ExpectedReturn time.Time         `json:"expected_return"`
	ReturnedAt     *time.Time        `json:"returned_at,omitempty"`
	Status         MaintenanceStatus `json:"status"`
	Kind           MaintenanceKind   `json:"kind"`
	Cost           float64           `json:"cost"`
	Vendor         Vendor            `json:"vendor"`
	SentBy         string            `json:"sent_by"`
	CompletedBy    string            `json:"completed_by,omitempty"`
}

// TimelineEventKind discriminates merged timeline events.
type TimelineEventKind string

// Timeline event kinds. History entries surface as-is; each maintenance
// record contributes a sent event and, once completed, a returned event.
const (
	TimelineHistory             TimelineEventKind = "history"
	TimelineMaintenanceSent     TimelineEventKind = "maintenance_sent"
	TimelineMaintenanceReturned TimelineEventKind = "maintenance_returned"
)

// TimelineEvent is one element of the merged per-asset timeline. Seq carries
// the history entry's sequence number and is zero for maintenance events.
type TimelineEvent struct {
	Kind        TimelineEventKind  `json:"kind"`
	Timestamp   time.Time          `json:"timestamp"`
	Seq         uint64             `json:"seq,omitempty"`
	RecordID    string             `json:"record_id"`
	History     *HistoryEntry      `json:"history,omitempty"`
	Maintenance *MaintenanceRecord `json:"maintenance,omitempty"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity   EntityType
	Action   Action
	EntityID string
	Before   ChangePayload
	After    ChangePayload
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported mutations captured for rule evaluation.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
