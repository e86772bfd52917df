package core

import (
	"collectcore/pkg/domain"
	"context"
	"errors"
	"fmt"
	"sort"
)

// SkippedEntry records why a bulk review left an entry untouched.
type SkippedEntry struct {
	EntryID string `json:"entry_id"`
	Reason  string `json:"reason"`
}

// BulkOutcome reports per-entry results of a bulk review. Skips never abort
// the batch; each entry commits in its own transaction.
type BulkOutcome struct {
	Succeeded []string       `json:"succeeded"`
	Skipped   []SkippedEntry `json:"skipped"`
}

// ListPending returns submitted entries awaiting review in the principal's
// scope, oldest submission first.
func (s *Service) ListPending(ctx context.Context, principal Principal) ([]DataEntry, error) {
	var pending []DataEntry
	err := s.instrument(ctx, "list_pending", principal.ID, func(ctx context.Context) (string, error) {
		if !canApprove(principal.Role) {
			return "", &domain.ScopeError{Principal: principal.ID, Reason: fmt.Sprintf("role %s may not review submissions", principal.Role)}
		}
		return "", s.view(ctx, func(view TransactionView) error {
			scope, err := s.resolveScope(view, principal)
			if err != nil {
				return err
			}
			for _, entry := range view.ListDataEntries() {
				if entry.Status == EntrySubmitted && scope.ContainsSchool(entry.SchoolID) {
					pending = append(pending, entry)
				}
			}
			sort.Slice(pending, func(i, j int) bool {
				a, b := pending[i], pending[j]
				switch {
				case a.SubmittedAt == nil && b.SubmittedAt == nil:
					return a.ID < b.ID
				case a.SubmittedAt == nil:
					return true
				case b.SubmittedAt == nil:
					return false
				case a.SubmittedAt.Equal(*b.SubmittedAt):
					return a.ID < b.ID
				default:
					return a.SubmittedAt.Before(*b.SubmittedAt)
				}
			})
			return nil
		})
	})
	return pending, err
}

// BulkApprove approves each listed entry independently. Entries outside the
// principal's scope, missing, or not submitted are reported as skipped while
// the rest proceed.
func (s *Service) BulkApprove(ctx context.Context, principal Principal, entryIDs []string) (BulkOutcome, error) {
	var outcome BulkOutcome
	err := s.instrument(ctx, "bulk_approve", principal.ID, func(ctx context.Context) (string, error) {
		for _, id := range entryIDs {
			_, _, err := s.Approve(ctx, principal, id)
			if err := outcome.record(id, err); err != nil {
				return "", err
			}
		}
		return "", nil
	})
	return outcome, err
}

// BulkReject rejects each listed entry independently with a shared reason.
func (s *Service) BulkReject(ctx context.Context, principal Principal, entryIDs []string, reason string) (BulkOutcome, error) {
	var outcome BulkOutcome
	err := s.instrument(ctx, "bulk_reject", principal.ID, func(ctx context.Context) (string, error) {
		if reason == "" {
			return "", domain.NewValidationError(domain.FieldViolation{Field: "reason", Message: "is required"})
		}
		for _, id := range entryIDs {
			_, _, err := s.Reject(ctx, principal, id, reason)
			if err := outcome.record(id, err); err != nil {
				return "", err
			}
		}
		return "", nil
	})
	return outcome, err
}

// record classifies a per-entry review error: domain refusals become skips,
// anything else (storage failure, rule engine error) aborts the batch.
func (o *BulkOutcome) record(entryID string, err error) error {
	if err == nil {
		o.Succeeded = append(o.Succeeded, entryID)
		return nil
	}
	var notFoundErr *domain.NotFoundError
	var scopeErr *domain.ScopeError
	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &notFoundErr), errors.As(err, &scopeErr), errors.As(err, &validationErr):
		o.Skipped = append(o.Skipped, SkippedEntry{EntryID: entryID, Reason: err.Error()})
		return nil
	default:
		return err
	}
}
