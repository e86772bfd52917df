// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"collectcore/pkg/domain"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// OrgNode aliases domain.OrgNode for in-memory persistence operations.
	OrgNode = domain.OrgNode
	// Category aliases domain.Category.
	Category = domain.Category
	// Column aliases domain.Column.
	Column = domain.Column
	// DataEntry aliases domain.DataEntry.
	DataEntry = domain.DataEntry
	// DataHistory aliases domain.DataHistory.
	DataHistory = domain.DataHistory
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
)

type memoryState struct {
	orgNodes   map[string]OrgNode
	categories map[string]Category
	columns    map[string]Column
	entries    map[string]DataEntry
	history    map[string]DataHistory
}

// Snapshot captures a point-in-time clone of the store state, keyed the same
// way the durable backends bucket it.
type Snapshot struct {
	OrgNodes   map[string]OrgNode     `json:"org_nodes"`
	Categories map[string]Category    `json:"categories"`
	Columns    map[string]Column      `json:"columns"`
	Entries    map[string]DataEntry   `json:"entries"`
	History    map[string]DataHistory `json:"history"`
}

func newMemoryState() memoryState {
	return memoryState{
		orgNodes:   make(map[string]OrgNode),
		categories: make(map[string]Category),
		columns:    make(map[string]Column),
		entries:    make(map[string]DataEntry),
		history:    make(map[string]DataHistory),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.orgNodes {
		cloned.orgNodes[k] = cloneOrgNode(v)
	}
	for k, v := range s.categories {
		cloned.categories[k] = cloneCategory(v)
	}
	for k, v := range s.columns {
		cloned.columns[k] = cloneColumn(v)
	}
	for k, v := range s.entries {
		cloned.entries[k] = cloneEntry(v)
	}
	for k, v := range s.history {
		cloned.history[k] = cloneHistory(v)
	}
	return cloned
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		OrgNodes:   make(map[string]OrgNode, len(state.orgNodes)),
		Categories: make(map[string]Category, len(state.categories)),
		Columns:    make(map[string]Column, len(state.columns)),
		Entries:    make(map[string]DataEntry, len(state.entries)),
		History:    make(map[string]DataHistory, len(state.history)),
	}
	for k, v := range state.orgNodes {
		s.OrgNodes[k] = cloneOrgNode(v)
	}
	for k, v := range state.categories {
		s.Categories[k] = cloneCategory(v)
	}
	for k, v := range state.columns {
		s.Columns[k] = cloneColumn(v)
	}
	for k, v := range state.entries {
		s.Entries[k] = cloneEntry(v)
	}
	for k, v := range state.history {
		s.History[k] = cloneHistory(v)
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.OrgNodes {
		state.orgNodes[k] = cloneOrgNode(v)
	}
	for k, v := range s.Categories {
		state.categories[k] = cloneCategory(v)
	}
	for k, v := range s.Columns {
		state.columns[k] = cloneColumn(v)
	}
	for k, v := range s.Entries {
		state.entries[k] = cloneEntry(v)
	}
	for k, v := range s.History {
		state.history[k] = cloneHistory(v)
	}
	return state
}

// migrateSnapshot normalizes snapshots loaded from durable backends: nil maps
// are initialized, dangling org parents are pruned, and duplicate current
// entries for the same (category, school) pair collapse to the highest
// version. History records are never dropped.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.OrgNodes == nil {
		snapshot.OrgNodes = map[string]OrgNode{}
	}
	if snapshot.Categories == nil {
		snapshot.Categories = map[string]Category{}
	}
	if snapshot.Columns == nil {
		snapshot.Columns = map[string]Column{}
	}
	if snapshot.Entries == nil {
		snapshot.Entries = map[string]DataEntry{}
	}
	if snapshot.History == nil {
		snapshot.History = map[string]DataHistory{}
	}

	nodeExists := func(id string) bool {
		_, ok := snapshot.OrgNodes[id]
		return ok
	}

	for id, node := range snapshot.OrgNodes {
		if node.Kind == domain.OrgRegion {
			node.ParentID = nil
			snapshot.OrgNodes[id] = node
		}
	}
	// Prune top-down by kind so a school whose sector just lost its region is
	// seen after the sector is gone, whatever the map iteration order.
	for _, kind := range []domain.OrgKind{domain.OrgSector, domain.OrgSchool} {
		for id, node := range snapshot.OrgNodes {
			if node.Kind != kind {
				continue
			}
			if node.ParentID == nil || !nodeExists(*node.ParentID) {
				delete(snapshot.OrgNodes, id)
			}
		}
	}

	for id, entry := range snapshot.Entries {
		if entry.Payload == nil {
			entry.Payload = map[string]any{}
		}
		snapshot.Entries[id] = entry
	}

	current := make(map[string]string, len(snapshot.Entries))
	for id, entry := range snapshot.Entries {
		key := entry.CategoryID + "\x00" + entry.SchoolID
		prevID, ok := current[key]
		if !ok {
			current[key] = id
			continue
		}
		prev := snapshot.Entries[prevID]
		if entry.Version > prev.Version {
			delete(snapshot.Entries, prevID)
			current[key] = id
		} else {
			delete(snapshot.Entries, id)
		}
	}

	return snapshot
}

func cloneOrgNode(n OrgNode) OrgNode {
	cp := n
	if n.ParentID != nil {
		v := *n.ParentID
		cp.ParentID = &v
	}
	return cp
}

func cloneCategory(c Category) Category {
	cp := c
	if c.Deadline != nil {
		t := *c.Deadline
		cp.Deadline = &t
	}
	return cp
}

func cloneColumn(c Column) Column {
	cp := c
	cp.Options = append([]string(nil), c.Options...)
	if c.Description != nil {
		v := *c.Description
		cp.Description = &v
	}
	if c.ArchivedAt != nil {
		t := *c.ArchivedAt
		cp.ArchivedAt = &t
	}
	return cp
}

func cloneEntry(e DataEntry) DataEntry {
	cp := e
	if e.Payload != nil {
		cp.Payload = make(map[string]any, len(e.Payload))
		for k, v := range e.Payload {
			cp.Payload[k] = v
		}
	}
	if e.SubmittedAt != nil {
		t := *e.SubmittedAt
		cp.SubmittedAt = &t
	}
	if e.ApprovedBy != nil {
		v := *e.ApprovedBy
		cp.ApprovedBy = &v
	}
	if e.ApprovedAt != nil {
		t := *e.ApprovedAt
		cp.ApprovedAt = &t
	}
	if e.RejectionReason != nil {
		v := *e.RejectionReason
		cp.RejectionReason = &v
	}
	return cp
}

func cloneHistory(h DataHistory) DataHistory {
	cp := h
	if h.SnapshotPayload != nil {
		cp.SnapshotPayload = make(map[string]any, len(h.SnapshotPayload))
		for k, v := range h.SnapshotPayload {
			cp.SnapshotPayload[k] = v
		}
	}
	return cp
}

func changePayloadOf[T any](value T) domain.ChangePayload {
	payload, err := domain.NewChangePayloadFromValue(value)
	if err != nil {
		return domain.ChangePayload{}
	}
	return payload
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu         sync.RWMutex
	state      memoryState
	engine     *RulesEngine
	nowFn      func() time.Time
	historySeq int64
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

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
	s.historySeq = 0
	for _, h := range s.state.history {
		if h.Seq > s.historySeq {
			s.historySeq = h.Seq
		}
	}
}

// RulesEngine exposes the currently configured engine for integration points.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// SetNowFunc overrides the store clock; tests use it for deterministic stamps.
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
}

// transactionView exposes a read-only snapshot of the transactional state.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListOrgNodes returns all organization nodes within the snapshot.
func (v transactionView) ListOrgNodes() []OrgNode {
	out := make([]OrgNode, 0, len(v.state.orgNodes))
	for _, n := range v.state.orgNodes {
		out = append(out, cloneOrgNode(n))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindOrgNode retrieves an organization node by id from the snapshot.
func (v transactionView) FindOrgNode(id string) (OrgNode, bool) {
	n, ok := v.state.orgNodes[id]
	if !ok {
		return OrgNode{}, false
	}
	return cloneOrgNode(n), true
}

// ListCategories returns all categories ordered by priority, ties broken by
// creation time then id.
func (v transactionView) ListCategories() []Category {
	out := make([]Category, 0, len(v.state.categories))
	for _, c := range v.state.categories {
		out = append(out, cloneCategory(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// FindCategory retrieves a category by id from the snapshot.
func (v transactionView) FindCategory(id string) (Category, bool) {
	c, ok := v.state.categories[id]
	if !ok {
		return Category{}, false
	}
	return cloneCategory(c), true
}

// ListColumns returns the columns of a category, archived ones included,
// ascending by order.
func (v transactionView) ListColumns(categoryID string) []Column {
	var out []Column
	for _, c := range v.state.columns {
		if c.CategoryID == categoryID {
			out = append(out, cloneColumn(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// FindColumn retrieves a column by id from the snapshot.
func (v transactionView) FindColumn(id string) (Column, bool) {
	c, ok := v.state.columns[id]
	if !ok {
		return Column{}, false
	}
	return cloneColumn(c), true
}

// ListDataEntries returns all current entries in the snapshot.
func (v transactionView) ListDataEntries() []DataEntry {
	out := make([]DataEntry, 0, len(v.state.entries))
	for _, e := range v.state.entries {
		out = append(out, cloneEntry(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindDataEntry retrieves an entry by id from the snapshot.
func (v transactionView) FindDataEntry(id string) (DataEntry, bool) {
	e, ok := v.state.entries[id]
	if !ok {
		return DataEntry{}, false
	}
	return cloneEntry(e), true
}

// FindCurrentEntry retrieves the current entry for a (category, school) pair.
func (v transactionView) FindCurrentEntry(categoryID, schoolID string) (DataEntry, bool) {
	for _, e := range v.state.entries {
		if e.CategoryID == categoryID && e.SchoolID == schoolID {
			return cloneEntry(e), true
		}
	}
	return DataEntry{}, false
}

// ListHistory returns the audit trail for an entry in append order.
func (v transactionView) ListHistory(entryID string) []DataHistory {
	var out []DataHistory
	for _, h := range v.state.history {
		if h.DataEntryID == entryID {
			out = append(out, cloneHistory(h))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The mutated copy replaces the live state only when fn succeeds and no
// registered rule reports a blocking violation.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
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

// ListOrgNodes returns all organization nodes from the live state.
func (s *Store) ListOrgNodes() []OrgNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListOrgNodes()
}

// ListCategories returns all categories from the live state.
func (s *Store) ListCategories() []Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListCategories()
}

// ListDataEntries returns all current entries from the live state.
func (s *Store) ListDataEntries() []DataEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListDataEntries()
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// SeedOrgNode inserts an organization node. The org tree is maintained
// externally; this exists for snapshot import and test fixtures only.
func (tx *transaction) SeedOrgNode(n OrgNode) (OrgNode, error) {
	if n.ID == "" {
		n.ID = tx.store.newID()
	}
	if _, exists := tx.state.orgNodes[n.ID]; exists {
		return OrgNode{}, fmt.Errorf("org node %q already exists", n.ID)
	}
	switch n.Kind {
	case domain.OrgRegion:
		if n.ParentID != nil {
			return OrgNode{}, fmt.Errorf("region %q must not have a parent", n.ID)
		}
	case domain.OrgSector, domain.OrgSchool:
		if n.ParentID == nil {
			return OrgNode{}, fmt.Errorf("%s %q requires a parent", n.Kind, n.ID)
		}
		parent, ok := tx.state.orgNodes[*n.ParentID]
		if !ok {
			return OrgNode{}, fmt.Errorf("org node %q parent %q not found", n.ID, *n.ParentID)
		}
		want := domain.OrgRegion
		if n.Kind == domain.OrgSchool {
			want = domain.OrgSector
		}
		if parent.Kind != want {
			return OrgNode{}, fmt.Errorf("%s %q parent must be a %s", n.Kind, n.ID, want)
		}
	default:
		return OrgNode{}, fmt.Errorf("unknown org kind %q", n.Kind)
	}
	n.CreatedAt = tx.now
	n.UpdatedAt = tx.now
	tx.state.orgNodes[n.ID] = cloneOrgNode(n)
	tx.recordChange(Change{Entity: domain.EntityOrgNode, Action: domain.ActionCreate, After: changePayloadOf(n)})
	return cloneOrgNode(n), nil
}

// CreateCategory stores a new category within the transaction.
func (tx *transaction) CreateCategory(c Category) (Category, error) {
	if c.ID == "" {
		c.ID = tx.store.newID()
	}
	if _, exists := tx.state.categories[c.ID]; exists {
		return Category{}, fmt.Errorf("category %q already exists", c.ID)
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.categories[c.ID] = cloneCategory(c)
	tx.recordChange(Change{Entity: domain.EntityCategory, Action: domain.ActionCreate, After: changePayloadOf(c)})
	return cloneCategory(c), nil
}

// UpdateCategory mutates a category using the provided mutator function.
func (tx *transaction) UpdateCategory(id string, mutator func(*Category) error) (Category, error) {
	current, ok := tx.state.categories[id]
	if !ok {
		return Category{}, &domain.NotFoundError{Entity: domain.EntityCategory, ID: id}
	}
	before := cloneCategory(current)
	if err := mutator(&current); err != nil {
		return Category{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.categories[id] = cloneCategory(current)
	tx.recordChange(Change{Entity: domain.EntityCategory, Action: domain.ActionUpdate, Before: changePayloadOf(before), After: changePayloadOf(current)})
	return cloneCategory(current), nil
}

// DeleteCategory removes a category record. Columns and entries are left to
// the caller: columns archive via UpdateColumn, entries stay for audit.
func (tx *transaction) DeleteCategory(id string) error {
	current, ok := tx.state.categories[id]
	if !ok {
		return &domain.NotFoundError{Entity: domain.EntityCategory, ID: id}
	}
	delete(tx.state.categories, id)
	tx.recordChange(Change{Entity: domain.EntityCategory, Action: domain.ActionDelete, Before: changePayloadOf(current)})
	return nil
}

// CreateColumn stores a new column within the transaction.
func (tx *transaction) CreateColumn(c Column) (Column, error) {
	if c.ID == "" {
		c.ID = tx.store.newID()
	}
	if _, exists := tx.state.columns[c.ID]; exists {
		return Column{}, fmt.Errorf("column %q already exists", c.ID)
	}
	if _, ok := tx.state.categories[c.CategoryID]; !ok {
		return Column{}, &domain.NotFoundError{Entity: domain.EntityCategory, ID: c.CategoryID}
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.columns[c.ID] = cloneColumn(c)
	tx.recordChange(Change{Entity: domain.EntityColumn, Action: domain.ActionCreate, After: changePayloadOf(c)})
	return cloneColumn(c), nil
}

// UpdateColumn mutates a column using the provided mutator function.
func (tx *transaction) UpdateColumn(id string, mutator func(*Column) error) (Column, error) {
	current, ok := tx.state.columns[id]
	if !ok {
		return Column{}, &domain.NotFoundError{Entity: domain.EntityColumn, ID: id}
	}
	before := cloneColumn(current)
	if err := mutator(&current); err != nil {
		return Column{}, err
	}
	current.ID = id
	current.CategoryID = before.CategoryID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.columns[id] = cloneColumn(current)
	tx.recordChange(Change{Entity: domain.EntityColumn, Action: domain.ActionUpdate, Before: changePayloadOf(before), After: changePayloadOf(current)})
	return cloneColumn(current), nil
}

// CreateDataEntry stores a new current entry for a (category, school) pair.
func (tx *transaction) CreateDataEntry(e DataEntry) (DataEntry, error) {
	if e.ID == "" {
		e.ID = tx.store.newID()
	}
	if _, exists := tx.state.entries[e.ID]; exists {
		return DataEntry{}, fmt.Errorf("data entry %q already exists", e.ID)
	}
	for _, existing := range tx.state.entries {
		if existing.CategoryID == e.CategoryID && existing.SchoolID == e.SchoolID {
			return DataEntry{}, fmt.Errorf("data entry for category %q school %q already current", e.CategoryID, e.SchoolID)
		}
	}
	if e.Payload == nil {
		e.Payload = map[string]any{}
	}
	e.Version = 1
	e.CreatedAt = tx.now
	e.UpdatedAt = tx.now
	tx.state.entries[e.ID] = cloneEntry(e)
	tx.recordChange(Change{Entity: domain.EntityDataEntry, Action: domain.ActionCreate, After: changePayloadOf(e)})
	return cloneEntry(e), nil
}

// UpdateDataEntry mutates an entry and bumps its optimistic version.
func (tx *transaction) UpdateDataEntry(id string, mutator func(*DataEntry) error) (DataEntry, error) {
	current, ok := tx.state.entries[id]
	if !ok {
		return DataEntry{}, &domain.NotFoundError{Entity: domain.EntityDataEntry, ID: id}
	}
	before := cloneEntry(current)
	if err := mutator(&current); err != nil {
		return DataEntry{}, err
	}
	current.ID = id
	current.CategoryID = before.CategoryID
	current.SchoolID = before.SchoolID
	current.CreatedAt = before.CreatedAt
	current.Version = before.Version + 1
	current.UpdatedAt = tx.now
	tx.state.entries[id] = cloneEntry(current)
	tx.recordChange(Change{Entity: domain.EntityDataEntry, Action: domain.ActionUpdate, Before: changePayloadOf(before), After: changePayloadOf(current)})
	return cloneEntry(current), nil
}

// AppendHistory adds an immutable audit snapshot. History is append-only;
// there is no update or delete counterpart.
func (tx *transaction) AppendHistory(h DataHistory) (DataHistory, error) {
	if h.ID == "" {
		h.ID = tx.store.newID()
	}
	if _, exists := tx.state.history[h.ID]; exists {
		return DataHistory{}, fmt.Errorf("history record %q already exists", h.ID)
	}
	if _, ok := tx.state.entries[h.DataEntryID]; !ok {
		return DataHistory{}, &domain.NotFoundError{Entity: domain.EntityDataEntry, ID: h.DataEntryID}
	}
	tx.store.historySeq++
	h.Seq = tx.store.historySeq
	if h.ChangedAt.IsZero() {
		h.ChangedAt = tx.now
	}
	if h.SnapshotPayload == nil {
		h.SnapshotPayload = map[string]any{}
	}
	h.CreatedAt = tx.now
	h.UpdatedAt = tx.now
	tx.state.history[h.ID] = cloneHistory(h)
	tx.recordChange(Change{Entity: domain.EntityDataHistory, Action: domain.ActionCreate, After: changePayloadOf(h)})
	return cloneHistory(h), nil
}
