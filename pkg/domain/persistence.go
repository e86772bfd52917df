package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. A transition and its history append
// commit together or not at all.
type Transaction interface {
	Snapshot() TransactionView
	SeedOrgNode(OrgNode) (OrgNode, error)
	CreateCategory(Category) (Category, error)
	UpdateCategory(id string, mutator func(*Category) error) (Category, error)
	DeleteCategory(id string) error
	CreateColumn(Column) (Column, error)
	UpdateColumn(id string, mutator func(*Column) error) (Column, error)
	CreateDataEntry(DataEntry) (DataEntry, error)
	UpdateDataEntry(id string, mutator func(*DataEntry) error) (DataEntry, error)
	AppendHistory(DataHistory) (DataHistory, error)
}

// TransactionView provides read-only access to snapshot data for rules and
// query paths. Views read a consistent snapshot; they may lag committed
// writers by the accepted staleness window.
type TransactionView = RuleView

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	ListOrgNodes() []OrgNode
	ListCategories() []Category
	ListDataEntries() []DataEntry
}
