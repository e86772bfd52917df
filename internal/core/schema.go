package core

import (
	"collectcore/pkg/domain"
	"context"
	"fmt"
	"time"
)

// NewCategory is the input for category creation. A zero Priority asks for
// the next free slot.
type NewCategory struct {
	Name        string     `json:"name" validate:"required,min=1,max=160"`
	Description string     `json:"description" validate:"max=2000"`
	Assignment  Assignment `json:"assignment" validate:"required,oneof=all regions sectors schools"`
	Priority    int        `json:"priority" validate:"omitempty,gte=1"`
	Deadline    *time.Time `json:"deadline"`
}

// CategoryPatch is a partial category update; nil fields are left untouched.
type CategoryPatch struct {
	Name        *string         `json:"name" validate:"omitempty,min=1,max=160"`
	Description *string         `json:"description" validate:"omitempty,max=2000"`
	Assignment  *Assignment     `json:"assignment" validate:"omitempty,oneof=all regions sectors schools"`
	Status      *CategoryStatus `json:"status" validate:"omitempty,oneof=active inactive"`
	Priority    *int            `json:"priority" validate:"omitempty,gte=1"`
	Deadline    *time.Time      `json:"deadline"`
}

// NewColumn is the input for column creation. Order is always assigned by the
// registry, never by the caller.
type NewColumn struct {
	CategoryID  string     `json:"category_id" validate:"required"`
	Name        string     `json:"name" validate:"required,min=1,max=160"`
	Type        ColumnType `json:"type" validate:"required,oneof=text number date select textarea checkbox file"`
	Required    bool       `json:"required"`
	Description *string    `json:"description" validate:"omitempty,max=2000"`
	Options     []string   `json:"options"`
}

// ColumnPatch is a partial column update. Type and order are immutable.
type ColumnPatch struct {
	Name        *string  `json:"name" validate:"omitempty,min=1,max=160"`
	Required    *bool    `json:"required"`
	Description *string  `json:"description" validate:"omitempty,max=2000"`
	Options     []string `json:"options"`
}

// CreateCategory registers a new collection category. Priority defaults to
// one past the current maximum when omitted.
func (s *Service) CreateCategory(ctx context.Context, principal Principal, input NewCategory) (Category, Result, error) {
	var created Category
	var res Result
	err := s.instrument(ctx, "create_category", principal.ID, func(ctx context.Context) (string, error) {
		if !canManageSchema(principal.Role) {
			return "", &domain.ScopeError{Principal: principal.ID, Reason: fmt.Sprintf("role %s may not manage the schema", principal.Role)}
		}
		if err := validateStruct(input); err != nil {
			return "", err
		}
		var err error
		res, err = s.runInTransaction(ctx, func(tx Transaction) error {
			priority := input.Priority
			if priority == 0 {
				priority = nextPriority(tx.Snapshot())
			}
			var err error
			created, err = tx.CreateCategory(Category{
				Name:        input.Name,
				Description: input.Description,
				Assignment:  input.Assignment,
				Status:      domain.CategoryActive,
				Priority:    priority,
				Deadline:    input.Deadline,
			})
			return err
		})
		return created.ID, err
	})
	return created, res, err
}

// UpdateCategory applies a partial patch. Assignment changes are refused when
// entries exist for the category so no submission is orphaned.
func (s *Service) UpdateCategory(ctx context.Context, principal Principal, id string, patch CategoryPatch) (Category, Result, error) {
	var updated Category
	var res Result
	err := s.instrument(ctx, "update_category", principal.ID, func(ctx context.Context) (string, error) {
		if !canManageSchema(principal.Role) {
			return id, &domain.ScopeError{Principal: principal.ID, Reason: fmt.Sprintf("role %s may not manage the schema", principal.Role)}
		}
		if err := validateStruct(patch); err != nil {
			return id, err
		}
		var err error
		res, err = s.runInTransaction(ctx, func(tx Transaction) error {
			if patch.Assignment != nil {
				view := tx.Snapshot()
				current, ok := view.FindCategory(id)
				if !ok {
					return notFound(EntityCategory, id)
				}
				if current.Assignment != *patch.Assignment && categoryHasEntries(view, id) {
					return domain.NewValidationError(domain.FieldViolation{
						Field:   "assignment",
						Message: "cannot change assignment while entries exist",
					})
				}
			}
			var err error
			updated, err = tx.UpdateCategory(id, func(c *Category) error {
				if patch.Name != nil {
					c.Name = *patch.Name
				}
				if patch.Description != nil {
					c.Description = *patch.Description
				}
				if patch.Assignment != nil {
					c.Assignment = *patch.Assignment
				}
				if patch.Status != nil {
					c.Status = *patch.Status
				}
				if patch.Priority != nil {
					c.Priority = *patch.Priority
				}
				if patch.Deadline != nil {
					c.Deadline = patch.Deadline
				}
				return nil
			})
			return err
		})
		return id, err
	})
	return updated, res, err
}

// DeleteCategory removes a category. Its columns are archived in the same
// transaction; existing entries and history are left in place for audit.
func (s *Service) DeleteCategory(ctx context.Context, principal Principal, id string) (Result, error) {
	var res Result
	err := s.instrument(ctx, "delete_category", principal.ID, func(ctx context.Context) (string, error) {
		if !canManageSchema(principal.Role) {
			return id, &domain.ScopeError{Principal: principal.ID, Reason: fmt.Sprintf("role %s may not manage the schema", principal.Role)}
		}
		var err error
		res, err = s.runInTransaction(ctx, func(tx Transaction) error {
			view := tx.Snapshot()
			if _, ok := view.FindCategory(id); !ok {
				return notFound(EntityCategory, id)
			}
			now := time.Now().UTC()
			for _, col := range view.ListColumns(id) {
				if col.Archived() {
					continue
				}
				if _, err := tx.UpdateColumn(col.ID, func(c *Column) error {
					c.ArchivedAt = &now
					return nil
				}); err != nil {
					return err
				}
			}
			return tx.DeleteCategory(id)
		})
		return id, err
	})
	return res, err
}

// ReorderCategories atomically reassigns priorities following the given id
// order. The id list must cover every category exactly once; any unknown or
// duplicate id rejects the whole batch before a single write.
func (s *Service) ReorderCategories(ctx context.Context, principal Principal, orderedIDs []string) (Result, error) {
	var res Result
	err := s.instrument(ctx, "reorder_categories", principal.ID, func(ctx context.Context) (string, error) {
		if !canManageSchema(principal.Role) {
			return "", &domain.ScopeError{Principal: principal.ID, Reason: fmt.Sprintf("role %s may not manage the schema", principal.Role)}
		}
		var err error
		res, err = s.runInTransaction(ctx, func(tx Transaction) error {
			view := tx.Snapshot()
			existing := view.ListCategories()
			if len(orderedIDs) != len(existing) {
				return domain.NewValidationError(domain.FieldViolation{
					Field:   "ids",
					Message: fmt.Sprintf("expected %d category ids, got %d", len(existing), len(orderedIDs)),
				})
			}
			known := make(map[string]struct{}, len(existing))
			for _, cat := range existing {
				known[cat.ID] = struct{}{}
			}
			seen := make(map[string]struct{}, len(orderedIDs))
			var fields []domain.FieldViolation
			for _, id := range orderedIDs {
				if _, dup := seen[id]; dup {
					fields = append(fields, domain.FieldViolation{Field: "ids", Message: fmt.Sprintf("duplicate category id %s", id)})
					continue
				}
				seen[id] = struct{}{}
				if _, ok := known[id]; !ok {
					fields = append(fields, domain.FieldViolation{Field: "ids", Message: fmt.Sprintf("unknown category id %s", id)})
				}
			}
			if len(fields) > 0 {
				return domain.NewValidationError(fields...)
			}
			for i, id := range orderedIDs {
				priority := i + 1
				if _, err := tx.UpdateCategory(id, func(c *Category) error {
					c.Priority = priority
					return nil
				}); err != nil {
					return err
				}
			}
			return nil
		})
		return "", err
	})
	return res, err
}

// ListCategories returns all categories ordered by priority.
func (s *Service) ListCategories(ctx context.Context, principal Principal) ([]Category, error) {
	var out []Category
	err := s.view(ctx, func(view TransactionView) error {
		if _, err := s.resolveScope(view, principal); err != nil {
			return err
		}
		out = view.ListCategories()
		return nil
	})
	return out, err
}

// CreateColumn appends a typed column to a category. Order is one past the
// current maximum, archived columns included, so orders never collide.
func (s *Service) CreateColumn(ctx context.Context, principal Principal, input NewColumn) (Column, Result, error) {
	var created Column
	var res Result
	err := s.instrument(ctx, "create_column", principal.ID, func(ctx context.Context) (string, error) {
		if !canManageSchema(principal.Role) {
			return "", &domain.ScopeError{Principal: principal.ID, Reason: fmt.Sprintf("role %s may not manage the schema", principal.Role)}
		}
		if err := validateStruct(input); err != nil {
			return "", err
		}
		if input.Type == domain.ColumnSelect && len(input.Options) == 0 {
			return "", domain.NewValidationError(domain.FieldViolation{Field: "options", Message: "select columns require at least one option"})
		}
		if input.Type != domain.ColumnSelect && len(input.Options) > 0 {
			return "", domain.NewValidationError(domain.FieldViolation{Field: "options", Message: fmt.Sprintf("options are not allowed on %s columns", input.Type)})
		}
		var err error
		res, err = s.runInTransaction(ctx, func(tx Transaction) error {
			view := tx.Snapshot()
			if _, ok := view.FindCategory(input.CategoryID); !ok {
				return notFound(EntityCategory, input.CategoryID)
			}
			order := 0
			for _, col := range view.ListColumns(input.CategoryID) {
				if col.Order > order {
					order = col.Order
				}
			}
			var err error
			created, err = tx.CreateColumn(Column{
				CategoryID:  input.CategoryID,
				Name:        input.Name,
				Type:        input.Type,
				Required:    input.Required,
				Description: input.Description,
				Options:     input.Options,
				Order:       order + 1,
			})
			return err
		})
		return created.ID, err
	})
	return created, res, err
}

// UpdateColumn applies a partial patch. Column type and order are immutable;
// archived columns cannot be modified.
func (s *Service) UpdateColumn(ctx context.Context, principal Principal, id string, patch ColumnPatch) (Column, Result, error) {
	var updated Column
	var res Result
	err := s.instrument(ctx, "update_column", principal.ID, func(ctx context.Context) (string, error) {
		if !canManageSchema(principal.Role) {
			return id, &domain.ScopeError{Principal: principal.ID, Reason: fmt.Sprintf("role %s may not manage the schema", principal.Role)}
		}
		if err := validateStruct(patch); err != nil {
			return id, err
		}
		var err error
		res, err = s.runInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateColumn(id, func(c *Column) error {
				if c.Archived() {
					return domain.NewValidationError(domain.FieldViolation{Field: "id", Message: "column is archived"})
				}
				if patch.Name != nil {
					c.Name = *patch.Name
				}
				if patch.Required != nil {
					c.Required = *patch.Required
				}
				if patch.Description != nil {
					c.Description = patch.Description
				}
				if patch.Options != nil {
					if c.Type != domain.ColumnSelect {
						return domain.NewValidationError(domain.FieldViolation{Field: "options", Message: fmt.Sprintf("options are not allowed on %s columns", c.Type)})
					}
					c.Options = patch.Options
				}
				return nil
			})
			return err
		})
		return id, err
	})
	return updated, res, err
}

// DeleteColumn archives a column. The record survives so historical payload
// keys remain resolvable; remaining column orders are never renumbered.
func (s *Service) DeleteColumn(ctx context.Context, principal Principal, id string) (Column, Result, error) {
	var archived Column
	var res Result
	err := s.instrument(ctx, "delete_column", principal.ID, func(ctx context.Context) (string, error) {
		if !canManageSchema(principal.Role) {
			return id, &domain.ScopeError{Principal: principal.ID, Reason: fmt.Sprintf("role %s may not manage the schema", principal.Role)}
		}
		var err error
		res, err = s.runInTransaction(ctx, func(tx Transaction) error {
			now := time.Now().UTC()
			var err error
			archived, err = tx.UpdateColumn(id, func(c *Column) error {
				if c.Archived() {
					return nil
				}
				c.ArchivedAt = &now
				return nil
			})
			return err
		})
		return id, err
	})
	return archived, res, err
}

// GetColumns returns a category's columns ascending by order. Archived
// columns are excluded unless includeArchived is set.
func (s *Service) GetColumns(ctx context.Context, principal Principal, categoryID string, includeArchived bool) ([]Column, error) {
	var out []Column
	err := s.view(ctx, func(view TransactionView) error {
		if _, err := s.resolveScope(view, principal); err != nil {
			return err
		}
		if _, ok := view.FindCategory(categoryID); !ok {
			return notFound(EntityCategory, categoryID)
		}
		for _, col := range view.ListColumns(categoryID) {
			if !includeArchived && col.Archived() {
				continue
			}
			out = append(out, col)
		}
		return nil
	})
	return out, err
}

func nextPriority(view TransactionView) int {
	max := 0
	for _, cat := range view.ListCategories() {
		if cat.Priority > max {
			max = cat.Priority
		}
	}
	return max + 1
}

func categoryHasEntries(view TransactionView, categoryID string) bool {
	for _, entry := range view.ListDataEntries() {
		if entry.CategoryID == categoryID {
			return true
		}
	}
	return false
}
