package core

import (
	"context"
	"errors"
	"testing"

	"collectcore/pkg/domain"
)

// submitFor walks an entry to submitted and returns it.
func submitFor(t *testing.T, svc *Service, submitter Principal, cols map[string]string, categoryID, schoolID string) DataEntry {
	t.Helper()
	ctx := context.Background()
	draft, _, err := svc.SaveDraft(ctx, submitter, DraftInput{
		CategoryID: categoryID,
		SchoolID:   schoolID,
		Payload: map[string]any{
			cols["Students"]: float64(90),
			cols["Head"]:     "Head Teacher",
		},
	})
	if err != nil {
		t.Fatalf("save draft for %s: %v", schoolID, err)
	}
	submitted, _, err := svc.Submit(ctx, submitter, draft.ID, draft.Version)
	if err != nil {
		t.Fatalf("submit for %s: %v", schoolID, err)
	}
	return submitted
}

func TestListPendingOldestFirst(t *testing.T) {
	svc := newTestService(t)
	cat, cols := enrollmentFixture(t, svc, AssignAll)

	first := submitFor(t, svc, schoolOneAdmin, cols, cat.ID, schoolOneID)
	second := submitFor(t, svc, schoolTwoAdmin, cols, cat.ID, schoolTwoID)
	third := submitFor(t, svc, schoolThreeAdmin, cols, cat.ID, schoolThreeID)

	pending, err := svc.ListPending(context.Background(), regionNorthAdmin)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending entries, got %d", len(pending))
	}
	wantOrder := []string{first.ID, second.ID, third.ID}
	for i, entry := range pending {
		if entry.ID != wantOrder[i] {
			t.Errorf("position %d: expected %s, got %s", i, wantOrder[i], entry.ID)
		}
	}
}

func TestListPendingScopeFiltered(t *testing.T) {
	svc := newTestService(t)
	cat, cols := enrollmentFixture(t, svc, AssignAll)
	inScope := submitFor(t, svc, schoolOneAdmin, cols, cat.ID, schoolOneID)
	submitFor(t, svc, schoolThreeAdmin, cols, cat.ID, schoolThreeID)

	pending, err := svc.ListPending(context.Background(), sectorOneAdmin)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != inScope.ID {
		t.Fatalf("expected only the in-scope submission, got %+v", pending)
	}
}

func TestListPendingRefusedForSchoolAdmin(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.ListPending(context.Background(), schoolOneAdmin)
	var scopeErr *domain.ScopeError
	if !errors.As(err, &scopeErr) {
		t.Fatalf("expected ScopeError, got %v", err)
	}
}

func TestBulkApprovePartialSuccess(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	cat, cols := enrollmentFixture(t, svc, AssignAll)

	ok := submitFor(t, svc, schoolOneAdmin, cols, cat.ID, schoolOneID)
	outOfScope := submitFor(t, svc, schoolThreeAdmin, cols, cat.ID, schoolThreeID)
	stillDraft, _, err := svc.SaveDraft(ctx, schoolTwoAdmin, DraftInput{
		CategoryID: cat.ID,
		SchoolID:   schoolTwoID,
		Payload:    map[string]any{cols["Students"]: float64(50)},
	})
	if err != nil {
		t.Fatalf("save draft: %v", err)
	}

	outcome, err := svc.BulkApprove(ctx, sectorOneAdmin, []string{
		ok.ID,
		outOfScope.ID,
		stillDraft.ID,
		"entry-ghost",
	})
	if err != nil {
		t.Fatalf("bulk approve: %v", err)
	}
	if len(outcome.Succeeded) != 1 || outcome.Succeeded[0] != ok.ID {
		t.Fatalf("expected exactly %s approved, got %v", ok.ID, outcome.Succeeded)
	}
	if len(outcome.Skipped) != 3 {
		t.Fatalf("expected 3 skips, got %+v", outcome.Skipped)
	}

	entry, err := svc.GetEntry(ctx, superAdmin, cat.ID, schoolOneID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if entry.Status != EntryApproved {
		t.Fatalf("approved entry should persist, got %s", entry.Status)
	}
	other, err := svc.GetEntry(ctx, superAdmin, cat.ID, schoolThreeID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if other.Status != EntrySubmitted {
		t.Fatalf("skipped entry must be untouched, got %s", other.Status)
	}
}

func TestBulkRejectSharedReason(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	cat, cols := enrollmentFixture(t, svc, AssignAll)
	a := submitFor(t, svc, schoolOneAdmin, cols, cat.ID, schoolOneID)
	b := submitFor(t, svc, schoolTwoAdmin, cols, cat.ID, schoolTwoID)

	if _, err := svc.BulkReject(ctx, sectorOneAdmin, []string{a.ID, b.ID}, ""); err == nil {
		t.Fatal("empty reason must be refused")
	}

	outcome, err := svc.BulkReject(ctx, sectorOneAdmin, []string{a.ID, b.ID}, "resubmit with audited figures")
	if err != nil {
		t.Fatalf("bulk reject: %v", err)
	}
	if len(outcome.Succeeded) != 2 || len(outcome.Skipped) != 0 {
		t.Fatalf("expected both rejected, got %+v", outcome)
	}
	entry, err := svc.GetEntry(ctx, superAdmin, cat.ID, schoolOneID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if entry.Status != EntryRejected || entry.RejectionReason == nil {
		t.Fatalf("expected rejected with reason, got %+v", entry)
	}
}
