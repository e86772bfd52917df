package core

import "collectcore/pkg/domain"

type (
	EntityType         = domain.EntityType
	OrgKind            = domain.OrgKind
	Role               = domain.Role
	Assignment         = domain.Assignment
	CategoryStatus     = domain.CategoryStatus
	ColumnType         = domain.ColumnType
	EntryStatus        = domain.EntryStatus
	Severity           = domain.Severity
	Base               = domain.Base
	OrgNode            = domain.OrgNode
	Principal          = domain.Principal
	Category           = domain.Category
	Column             = domain.Column
	DataEntry          = domain.DataEntry
	DataHistory        = domain.DataHistory
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	EntityOrgNode     = domain.EntityOrgNode
	EntityCategory    = domain.EntityCategory
	EntityColumn      = domain.EntityColumn
	EntityDataEntry   = domain.EntityDataEntry
	EntityDataHistory = domain.EntityDataHistory
)

const (
	OrgRegion = domain.OrgRegion
	OrgSector = domain.OrgSector
	OrgSchool = domain.OrgSchool
)

const (
	RoleSuperAdmin  = domain.RoleSuperAdmin
	RoleRegionAdmin = domain.RoleRegionAdmin
	RoleSectorAdmin = domain.RoleSectorAdmin
	RoleSchoolAdmin = domain.RoleSchoolAdmin
)

const (
	AssignAll     = domain.AssignAll
	AssignRegions = domain.AssignRegions
	AssignSectors = domain.AssignSectors
	AssignSchools = domain.AssignSchools
)

const (
	EntryDraft     = domain.EntryDraft
	EntrySubmitted = domain.EntrySubmitted
	EntryApproved  = domain.EntryApproved
	EntryRejected  = domain.EntryRejected
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

// NewRulesEngine constructs an empty rules engine.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(EntryTransitionRule())
	engine.Register(CategoryPriorityRule())
	return engine
}
