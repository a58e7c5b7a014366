package core

import "assetcore/pkg/domain"

type (
	EntityType         = domain.EntityType
	AssetStatus        = domain.AssetStatus
	HolderKind         = domain.HolderKind
	OperationType      = domain.OperationType
	Severity           = domain.Severity
	Base               = domain.Base
	Location           = domain.Location
	User               = domain.User
	Project            = domain.Project
	Asset              = domain.Asset
	CustodyRecord      = domain.CustodyRecord
	HistoryEntry       = domain.HistoryEntry
	MaintenanceRecord  = domain.MaintenanceRecord
	TimelineEvent      = domain.TimelineEvent
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
	PersistentStore    = domain.PersistentStore
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
)

const (
	EntityLocation          = domain.EntityLocation
	EntityUser              = domain.EntityUser
	EntityProject           = domain.EntityProject
	EntityAsset             = domain.EntityAsset
	EntityCustodyRecord     = domain.EntityCustodyRecord
	EntityHistoryEntry      = domain.EntityHistoryEntry
	EntityMaintenanceRecord = domain.EntityMaintenanceRecord
)

const (
	StatusAvailable   = domain.StatusAvailable
	StatusUnavailable = domain.StatusUnavailable
	StatusMaintenance = domain.StatusMaintenance
	StatusInactive    = domain.StatusInactive
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)
