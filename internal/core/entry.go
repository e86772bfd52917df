package core

import (
	"collectcore/pkg/domain"
	"context"
	"fmt"
	"time"
)

// DraftInput carries a draft save. BaseVersion must match the current entry
// version when one exists; zero is accepted only for brand-new entries.
type DraftInput struct {
	CategoryID  string         `json:"category_id" validate:"required"`
	SchoolID    string         `json:"school_id" validate:"required"`
	Payload     map[string]any `json:"payload"`
	BaseVersion int64          `json:"base_version" validate:"gte=0"`
}

// roleMayCollect gates entry mutation by the category's assignment scope.
func roleMayCollect(assignment Assignment, role Role) bool {
	if role == RoleSuperAdmin {
		return true
	}
	switch assignment {
	case AssignAll:
		return true
	case AssignRegions:
		return role == RoleRegionAdmin
	case AssignSectors:
		return role == RoleSectorAdmin
	case AssignSchools:
		return role == RoleSchoolAdmin
	default:
		return false
	}
}

// SaveDraft creates or updates the draft entry for a (category, school)
// pair. Payload values are shape-checked against the column schema; required
// columns may still be missing at this stage. A rejected entry returns to
// draft; an approved entry is superseded, its snapshot preserved in history.
func (s *Service) SaveDraft(ctx context.Context, principal Principal, input DraftInput) (DataEntry, Result, error) {
	var saved DataEntry
	var res Result
	err := s.instrument(ctx, "save_draft", principal.ID, func(ctx context.Context) (string, error) {
		if err := validateStruct(input); err != nil {
			return "", err
		}
		var err error
		res, err = s.runInTransaction(ctx, func(tx Transaction) error {
			view := tx.Snapshot()
			if err := s.guardEntryAccess(view, principal, input.CategoryID, input.SchoolID); err != nil {
				return err
			}
			columns := view.ListColumns(input.CategoryID)
			if fields := validatePayloadShape(columns, input.Payload); len(fields) > 0 {
				return domain.NewValidationError(fields...)
			}

			current, exists := view.FindCurrentEntry(input.CategoryID, input.SchoolID)
			if !exists {
				var err error
				saved, err = tx.CreateDataEntry(DataEntry{
					CategoryID:  input.CategoryID,
					SchoolID:    input.SchoolID,
					SubmittedBy: principal.ID,
					Payload:     mergePayload(nil, input.Payload),
					Status:      EntryDraft,
				})
				if err != nil {
					return err
				}
				return s.appendSnapshot(tx, saved, principal.ID)
			}

			if current.Status == EntrySubmitted {
				return domain.NewValidationError(domain.FieldViolation{
					Field:   "status",
					Message: "entry is submitted and awaiting review",
				})
			}
			if input.BaseVersion != current.Version {
				return &domain.ConflictError{Entity: EntityDataEntry, ID: current.ID, BaseVersion: input.BaseVersion, Version: current.Version}
			}

			before := current
			var err error
			saved, err = tx.UpdateDataEntry(current.ID, func(e *DataEntry) error {
				e.Payload = mergePayload(e.Payload, input.Payload)
				e.Status = EntryDraft
				e.SubmittedBy = principal.ID
				e.SubmittedAt = nil
				e.ApprovedBy = nil
				e.ApprovedAt = nil
				e.RejectionReason = nil
				return nil
			})
			if err != nil {
				return err
			}
			return s.appendSnapshot(tx, before, principal.ID)
		})
		return saved.ID, err
	})
	return saved, res, err
}

// Submit moves a draft to submitted after full validation of the payload:
// type shape plus required-column coverage, with every violation enumerated.
func (s *Service) Submit(ctx context.Context, principal Principal, entryID string, baseVersion int64) (DataEntry, Result, error) {
	var submitted DataEntry
	var res Result
	err := s.instrument(ctx, "submit_entry", principal.ID, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.runInTransaction(ctx, func(tx Transaction) error {
			view := tx.Snapshot()
			current, ok := view.FindDataEntry(entryID)
			if !ok {
				return notFound(EntityDataEntry, entryID)
			}
			if err := s.guardEntryAccess(view, principal, current.CategoryID, current.SchoolID); err != nil {
				return err
			}
			// Version before status: when two submits race from the same
			// base, the loser must see the conflict, not a status complaint
			// about the winner's result.
			if baseVersion != current.Version {
				return &domain.ConflictError{Entity: EntityDataEntry, ID: current.ID, BaseVersion: baseVersion, Version: current.Version}
			}
			if current.Status != EntryDraft {
				return domain.NewValidationError(domain.FieldViolation{
					Field:   "status",
					Message: fmt.Sprintf("only draft entries can be submitted, entry is %s", current.Status),
				})
			}

			columns := view.ListColumns(current.CategoryID)
			fields := validatePayloadShape(columns, current.Payload)
			fields = append(fields, validateRequired(columns, current.Payload)...)
			if len(fields) > 0 {
				return domain.NewValidationError(fields...)
			}

			before := current
			now := time.Now().UTC()
			var err error
			submitted, err = tx.UpdateDataEntry(current.ID, func(e *DataEntry) error {
				e.Status = EntrySubmitted
				e.SubmittedBy = principal.ID
				e.SubmittedAt = &now
				return nil
			})
			if err != nil {
				return err
			}
			return s.appendSnapshot(tx, before, principal.ID)
		})
		return entryID, err
	})
	return submitted, res, err
}

// Approve moves a submitted entry to approved. Approving an already-approved
// entry is a no-op returning the current state, so reviewer retries are safe.
func (s *Service) Approve(ctx context.Context, principal Principal, entryID string) (DataEntry, Result, error) {
	var approved DataEntry
	var res Result
	err := s.instrument(ctx, "approve_entry", principal.ID, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.runInTransaction(ctx, func(tx Transaction) error {
			view := tx.Snapshot()
			current, ok := view.FindDataEntry(entryID)
			if !ok {
				return notFound(EntityDataEntry, entryID)
			}
			if err := s.guardReviewAccess(view, principal, current.SchoolID); err != nil {
				return err
			}
			if current.Status == EntryApproved {
				approved = current
				return nil
			}
			if current.Status != EntrySubmitted {
				return domain.NewValidationError(domain.FieldViolation{
					Field:   "status",
					Message: fmt.Sprintf("only submitted entries can be approved, entry is %s", current.Status),
				})
			}

			before := current
			now := time.Now().UTC()
			var err error
			approved, err = tx.UpdateDataEntry(current.ID, func(e *DataEntry) error {
				e.Status = EntryApproved
				e.ApprovedBy = &principal.ID
				e.ApprovedAt = &now
				e.RejectionReason = nil
				return nil
			})
			if err != nil {
				return err
			}
			return s.appendSnapshot(tx, before, principal.ID)
		})
		return entryID, err
	})
	return approved, res, err
}

// Reject moves a submitted entry to rejected with a mandatory reason.
func (s *Service) Reject(ctx context.Context, principal Principal, entryID, reason string) (DataEntry, Result, error) {
	var rejected DataEntry
	var res Result
	err := s.instrument(ctx, "reject_entry", principal.ID, func(ctx context.Context) (string, error) {
		if reason == "" {
			return entryID, domain.NewValidationError(domain.FieldViolation{Field: "reason", Message: "is required"})
		}
		var err error
		res, err = s.runInTransaction(ctx, func(tx Transaction) error {
			view := tx.Snapshot()
			current, ok := view.FindDataEntry(entryID)
			if !ok {
				return notFound(EntityDataEntry, entryID)
			}
			if err := s.guardReviewAccess(view, principal, current.SchoolID); err != nil {
				return err
			}
			if current.Status != EntrySubmitted {
				return domain.NewValidationError(domain.FieldViolation{
					Field:   "status",
					Message: fmt.Sprintf("only submitted entries can be rejected, entry is %s", current.Status),
				})
			}

			before := current
			var err error
			rejected, err = tx.UpdateDataEntry(current.ID, func(e *DataEntry) error {
				e.Status = EntryRejected
				e.RejectionReason = &reason
				return nil
			})
			if err != nil {
				return err
			}
			return s.appendSnapshot(tx, before, principal.ID)
		})
		return entryID, err
	})
	return rejected, res, err
}

// GetEntry returns the current entry for a (category, school) pair.
func (s *Service) GetEntry(ctx context.Context, principal Principal, categoryID, schoolID string) (DataEntry, error) {
	var entry DataEntry
	err := s.view(ctx, func(view TransactionView) error {
		scope, err := s.resolveScope(view, principal)
		if err != nil {
			return err
		}
		if !scope.ContainsSchool(schoolID) {
			return &domain.ScopeError{Principal: principal.ID, Target: schoolID, Reason: "school is outside the principal's scope"}
		}
		current, ok := view.FindCurrentEntry(categoryID, schoolID)
		if !ok {
			return notFound(EntityDataEntry, categoryID+"/"+schoolID)
		}
		entry = current
		return nil
	})
	return entry, err
}

// History returns an entry's audit trail in append order.
func (s *Service) History(ctx context.Context, principal Principal, entryID string) ([]DataHistory, error) {
	var out []DataHistory
	err := s.view(ctx, func(view TransactionView) error {
		scope, err := s.resolveScope(view, principal)
		if err != nil {
			return err
		}
		entry, ok := view.FindDataEntry(entryID)
		if !ok {
			return notFound(EntityDataEntry, entryID)
		}
		if !scope.ContainsSchool(entry.SchoolID) {
			return &domain.ScopeError{Principal: principal.ID, Target: entry.SchoolID, Reason: "school is outside the principal's scope"}
		}
		out = view.ListHistory(entryID)
		return nil
	})
	return out, err
}

// guardEntryAccess checks scope, category existence and activity, and the
// assignment gate before any entry mutation. All checks fail closed.
func (s *Service) guardEntryAccess(view TransactionView, principal Principal, categoryID, schoolID string) error {
	scope, err := s.resolveScope(view, principal)
	if err != nil {
		return err
	}
	if !scope.ContainsSchool(schoolID) {
		return &domain.ScopeError{Principal: principal.ID, Target: schoolID, Reason: "school is outside the principal's scope"}
	}
	school, ok := view.FindOrgNode(schoolID)
	if !ok || school.Kind != OrgSchool {
		return notFound(EntityOrgNode, schoolID)
	}
	category, ok := view.FindCategory(categoryID)
	if !ok {
		return notFound(EntityCategory, categoryID)
	}
	if category.Status != domain.CategoryActive {
		return domain.NewValidationError(domain.FieldViolation{Field: "category_id", Message: "category is inactive"})
	}
	if !roleMayCollect(category.Assignment, principal.Role) {
		return &domain.ScopeError{Principal: principal.ID, Target: categoryID, Reason: fmt.Sprintf("role %s may not collect for assignment %s", principal.Role, category.Assignment)}
	}
	return nil
}

// guardReviewAccess checks that the principal sits on the approval side and
// oversees the entry's school.
func (s *Service) guardReviewAccess(view TransactionView, principal Principal, schoolID string) error {
	if !canApprove(principal.Role) {
		return &domain.ScopeError{Principal: principal.ID, Target: schoolID, Reason: fmt.Sprintf("role %s may not review submissions", principal.Role)}
	}
	scope, err := s.resolveScope(view, principal)
	if err != nil {
		return err
	}
	if !scope.ContainsSchool(schoolID) {
		return &domain.ScopeError{Principal: principal.ID, Target: schoolID, Reason: "school is outside the principal's scope"}
	}
	return nil
}

// appendSnapshot records the entry state prior to (or at) a transition.
// Failure aborts the surrounding transaction, keeping transition and history
// atomic.
func (s *Service) appendSnapshot(tx Transaction, entry DataEntry, changedBy string) error {
	_, err := tx.AppendHistory(DataHistory{
		DataEntryID:      entry.ID,
		SnapshotPayload:  entry.Payload,
		StatusAtSnapshot: entry.Status,
		ChangedBy:        changedBy,
		ChangedAt:        time.Now().UTC(),
	})
	return err
}
