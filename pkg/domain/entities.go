// Package domain defines the persistent entities, value types, error
// taxonomy, and rule evaluation primitives used by collectcore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityOrgNode identifies an organization tree node record.
	EntityOrgNode EntityType = "org_node"
	// EntityCategory identifies a data-collection category record.
	EntityCategory EntityType = "category"
	// EntityColumn identifies a category column record.
	EntityColumn EntityType = "column"
	// EntityDataEntry identifies a school data submission record.
	EntityDataEntry EntityType = "data_entry"
	// EntityDataHistory identifies an append-only audit snapshot record.
	EntityDataHistory EntityType = "data_history"
)

// OrgKind enumerates the levels of the organization tree.
type OrgKind string

// Organization node kinds, ordered root to leaf.
const (
	OrgRegion OrgKind = "region"
	OrgSector OrgKind = "sector"
	OrgSchool OrgKind = "school"
)

// Role enumerates administrative roles bound to organization nodes.
type Role string

// Administrative roles in descending order of authority.
const (
	RoleSuperAdmin  Role = "super_admin"
	RoleRegionAdmin Role = "region_admin"
	RoleSectorAdmin Role = "sector_admin"
	RoleSchoolAdmin Role = "school_admin"
)

// Assignment constrains which organization kinds a category is collected for.
type Assignment string

// Category assignment scopes.
const (
	AssignAll     Assignment = "all"
	AssignRegions Assignment = "regions"
	AssignSectors Assignment = "sectors"
	AssignSchools Assignment = "schools"
)

// CategoryStatus enumerates category activation states.
type CategoryStatus string

// Category statuses.
const (
	CategoryActive   CategoryStatus = "active"
	CategoryInactive CategoryStatus = "inactive"
)

// ColumnType enumerates the fixed primitive set for column values.
type ColumnType string

// Supported column value types. Unknown types are rejected, never coerced.
const (
	ColumnText     ColumnType = "text"
	ColumnNumber   ColumnType = "number"
	ColumnDate     ColumnType = "date"
	ColumnSelect   ColumnType = "select"
	ColumnTextarea ColumnType = "textarea"
	ColumnCheckbox ColumnType = "checkbox"
	ColumnFile     ColumnType = "file"
)

// EntryStatus enumerates the data entry lifecycle states.
type EntryStatus string

// Entry lifecycle states. The only legal transitions are draft→submitted,
// submitted→approved, submitted→rejected and rejected→draft; a new draft may
// supersede an approved entry after the old one is archived to history.
const (
	EntryDraft     EntryStatus = "draft"
	EntrySubmitted EntryStatus = "submitted"
	EntryApproved  EntryStatus = "approved"
	EntryRejected  EntryStatus = "rejected"
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

// OrgNode is one node of the region→sector→school hierarchy. The tree is
// maintained by external collaborators and is read-only to the core: stores
// accept it through snapshot import and seeding, never through core operations.
type OrgNode struct {
	Base
	Kind     OrgKind `json:"kind"`
	Name     string  `json:"name"`
	ParentID *string `json:"parent_id"`
}

// Principal identifies an acting administrator. It is a plain value passed
// explicitly to every core operation; the core never reads an ambient user.
type Principal struct {
	ID       string  `json:"id"`
	Role     Role    `json:"role"`
	RegionID *string `json:"region_id,omitempty"`
	SectorID *string `json:"sector_id,omitempty"`
	SchoolID *string `json:"school_id,omitempty"`
}

// BoundNodeID returns the organization node id the principal's role is bound
// to. Super admins are unbound and return an empty id.
func (p Principal) BoundNodeID() string {
	switch p.Role {
	case RoleRegionAdmin:
		if p.RegionID != nil {
			return *p.RegionID
		}
	case RoleSectorAdmin:
		if p.SectorID != nil {
			return *p.SectorID
		}
	case RoleSchoolAdmin:
		if p.SchoolID != nil {
			return *p.SchoolID
		}
	}
	return ""
}

// Category is an admin-defined unit of data collection with its own column
// schema, assignment scope, and display priority. Priorities form a total
// order; ties are broken by creation time.
type Category struct {
	Base
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Assignment  Assignment     `json:"assignment"`
	Status      CategoryStatus `json:"status"`
	Priority    int            `json:"priority"`
	Deadline    *time.Time     `json:"deadline,omitempty"`
}

// Column is one typed field within a category's schema. Columns are owned by
// exactly one category. Deleted columns are archived, not erased, so that
// historical payload keys stay resolvable.
type Column struct {
	Base
	CategoryID  string     `json:"category_id"`
	Name        string     `json:"name"`
	Type        ColumnType `json:"type"`
	Required    bool       `json:"required"`
	Description *string    `json:"description,omitempty"`
	Options     []string   `json:"options,omitempty"`
	Order       int        `json:"order"`
	ArchivedAt  *time.Time `json:"archived_at,omitempty"`
}

// Archived reports whether the column has been soft-deleted.
func (c Column) Archived() bool { return c.ArchivedAt != nil }

// DataEntry is the current submission of one school's data for one category.
// At most one current entry exists per (CategoryID, SchoolID) pair; superseded
// states live in DataHistory. Version increments on every committed mutation
// and backs optimistic concurrency control.
type DataEntry struct {
	Base
	CategoryID      string         `json:"category_id"`
	SchoolID        string         `json:"school_id"`
	SubmittedBy     string         `json:"submitted_by"`
	Payload         map[string]any `json:"payload"`
	Status          EntryStatus    `json:"status"`
	Version         int64          `json:"version"`
	SubmittedAt     *time.Time     `json:"submitted_at,omitempty"`
	ApprovedBy      *string        `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time     `json:"approved_at,omitempty"`
	RejectionReason *string        `json:"rejection_reason,omitempty"`
}

// DataHistory is an immutable audit snapshot written on every DataEntry
// mutation. Records are append-only: never updated, never deleted.
type DataHistory struct {
	Base
	DataEntryID      string         `json:"data_entry_id"`
	Seq              int64          `json:"seq"`
	SnapshotPayload  map[string]any `json:"snapshot_payload"`
	StatusAtSnapshot EntryStatus    `json:"status_at_snapshot"`
	ChangedBy        string         `json:"changed_by"`
	ChangedAt        time.Time      `json:"changed_at"`
}

// Change describes a mutation applied to an entity during a transaction.
// Before and After hold JSON snapshots of the entity state.
type Change struct {
	Entity EntityType
	Action Action
	Before ChangePayload
	After  ChangePayload
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in the audit trail.
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
