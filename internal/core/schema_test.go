package core

import (
	"context"
	"errors"
	"testing"

	"collectcore/pkg/domain"
)

func TestCreateCategoryAssignsNextPriority(t *testing.T) {
	svc := newTestService(t)
	first := mustCreateCategory(t, svc, "Enrollment", AssignAll)
	second := mustCreateCategory(t, svc, "Staffing", AssignAll)
	if first.Priority != 1 || second.Priority != 2 {
		t.Fatalf("expected priorities 1 and 2, got %d and %d", first.Priority, second.Priority)
	}
	if first.Status != domain.CategoryActive {
		t.Errorf("new categories start active, got %s", first.Status)
	}
}

func TestCreateCategoryDuplicatePriorityBlocked(t *testing.T) {
	svc := newTestService(t)
	mustCreateCategory(t, svc, "Enrollment", AssignAll)
	_, _, err := svc.CreateCategory(context.Background(), superAdmin, NewCategory{
		Name:       "Staffing",
		Assignment: AssignAll,
		Priority:   1,
	})
	var ruleErr RuleViolationError
	if !errors.As(err, &ruleErr) {
		t.Fatalf("expected RuleViolationError, got %v", err)
	}
}

func TestCreateCategoryRequiresSchemaRole(t *testing.T) {
	svc := newTestService(t)
	for _, principal := range []Principal{regionNorthAdmin, sectorOneAdmin, schoolOneAdmin} {
		_, _, err := svc.CreateCategory(context.Background(), principal, NewCategory{
			Name:       "Enrollment",
			Assignment: AssignAll,
		})
		var scopeErr *domain.ScopeError
		if !errors.As(err, &scopeErr) {
			t.Errorf("principal %s: expected ScopeError, got %v", principal.ID, err)
		}
	}
}

func TestCreateCategoryEnumeratesAllViolations(t *testing.T) {
	svc := newTestService(t)
	_, _, err := svc.CreateCategory(context.Background(), superAdmin, NewCategory{
		Name:       "",
		Assignment: Assignment("everyone"),
	})
	var valErr *domain.ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(valErr.Fields) != 2 {
		t.Fatalf("expected 2 field violations, got %d: %v", len(valErr.Fields), valErr.Fields)
	}
}

func TestUpdateCategoryRefusesAssignmentChangeWithEntries(t *testing.T) {
	svc := newTestService(t)
	cat := mustCreateCategory(t, svc, "Enrollment", AssignAll)
	if _, _, err := svc.SaveDraft(context.Background(), schoolOneAdmin, DraftInput{
		CategoryID: cat.ID,
		SchoolID:   schoolOneID,
	}); err != nil {
		t.Fatalf("save draft: %v", err)
	}

	sectors := AssignSectors
	_, _, err := svc.UpdateCategory(context.Background(), superAdmin, cat.ID, CategoryPatch{Assignment: &sectors})
	var valErr *domain.ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	// Other fields remain patchable.
	name := "Enrollment 2026"
	updated, _, err := svc.UpdateCategory(context.Background(), superAdmin, cat.ID, CategoryPatch{Name: &name})
	if err != nil {
		t.Fatalf("update name: %v", err)
	}
	if updated.Name != name || updated.Assignment != AssignAll {
		t.Fatalf("unexpected category after patch: %+v", updated)
	}
}

func TestDeleteCategoryArchivesColumnsAndKeepsEntries(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	cat := mustCreateCategory(t, svc, "Enrollment", AssignAll)
	students := mustCreateColumn(t, svc, NewColumn{CategoryID: cat.ID, Name: "Students", Type: domain.ColumnNumber})
	if _, _, err := svc.SaveDraft(ctx, schoolOneAdmin, DraftInput{
		CategoryID: cat.ID,
		SchoolID:   schoolOneID,
		Payload:    map[string]any{students.ID: float64(120)},
	}); err != nil {
		t.Fatalf("save draft: %v", err)
	}

	if _, err := svc.DeleteCategory(ctx, superAdmin, cat.ID); err != nil {
		t.Fatalf("delete category: %v", err)
	}

	if err := svc.Store().View(ctx, func(view TransactionView) error {
		if _, ok := view.FindCategory(cat.ID); ok {
			t.Error("category should be gone")
		}
		for _, col := range view.ListColumns(cat.ID) {
			if !col.Archived() {
				t.Errorf("column %s should be archived", col.ID)
			}
		}
		if _, ok := view.FindCurrentEntry(cat.ID, schoolOneID); !ok {
			t.Error("entries must survive category deletion for audit")
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestReorderCategoriesAtomic(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	a := mustCreateCategory(t, svc, "A", AssignAll)
	b := mustCreateCategory(t, svc, "B", AssignAll)
	c := mustCreateCategory(t, svc, "C", AssignAll)

	// An unknown id rejects the whole batch before any write.
	_, err := svc.ReorderCategories(ctx, superAdmin, []string{c.ID, b.ID, "category-ghost"})
	var valErr *domain.ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	cats, err := svc.ListCategories(ctx, superAdmin)
	if err != nil {
		t.Fatalf("list categories: %v", err)
	}
	if cats[0].ID != a.ID || cats[0].Priority != 1 {
		t.Fatal("failed reorder must leave priorities untouched")
	}

	if _, err := svc.ReorderCategories(ctx, superAdmin, []string{c.ID, a.ID, b.ID}); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	cats, err = svc.ListCategories(ctx, superAdmin)
	if err != nil {
		t.Fatalf("list categories: %v", err)
	}
	wantOrder := []string{c.ID, a.ID, b.ID}
	for i, cat := range cats {
		if cat.ID != wantOrder[i] || cat.Priority != i+1 {
			t.Errorf("position %d: got %s priority %d", i, cat.ID, cat.Priority)
		}
	}
}

func TestReorderCategoriesRequiresFullCover(t *testing.T) {
	svc := newTestService(t)
	a := mustCreateCategory(t, svc, "A", AssignAll)
	mustCreateCategory(t, svc, "B", AssignAll)
	_, err := svc.ReorderCategories(context.Background(), superAdmin, []string{a.ID})
	var valErr *domain.ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestCreateColumnOrderNeverReused(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	cat := mustCreateCategory(t, svc, "Enrollment", AssignAll)
	first := mustCreateColumn(t, svc, NewColumn{CategoryID: cat.ID, Name: "Students", Type: domain.ColumnNumber})
	second := mustCreateColumn(t, svc, NewColumn{CategoryID: cat.ID, Name: "Notes", Type: domain.ColumnTextarea})
	if first.Order != 1 || second.Order != 2 {
		t.Fatalf("expected orders 1 and 2, got %d and %d", first.Order, second.Order)
	}

	if _, _, err := svc.DeleteColumn(ctx, superAdmin, second.ID); err != nil {
		t.Fatalf("delete column: %v", err)
	}
	third := mustCreateColumn(t, svc, NewColumn{CategoryID: cat.ID, Name: "Opened", Type: domain.ColumnDate})
	if third.Order != 3 {
		t.Fatalf("archived columns keep their order slot, expected 3, got %d", third.Order)
	}
}

func TestCreateColumnOptionRules(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	cat := mustCreateCategory(t, svc, "Enrollment", AssignAll)

	_, _, err := svc.CreateColumn(ctx, superAdmin, NewColumn{CategoryID: cat.ID, Name: "Level", Type: domain.ColumnSelect})
	var valErr *domain.ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("select without options: expected ValidationError, got %v", err)
	}

	_, _, err = svc.CreateColumn(ctx, superAdmin, NewColumn{
		CategoryID: cat.ID,
		Name:       "Students",
		Type:       domain.ColumnNumber,
		Options:    []string{"a"},
	})
	if !errors.As(err, &valErr) {
		t.Fatalf("options on number column: expected ValidationError, got %v", err)
	}
}

func TestUpdateColumnArchivedAndImmutableFields(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	cat := mustCreateCategory(t, svc, "Enrollment", AssignAll)
	col := mustCreateColumn(t, svc, NewColumn{CategoryID: cat.ID, Name: "Students", Type: domain.ColumnNumber})

	required := true
	updated, _, err := svc.UpdateColumn(ctx, superAdmin, col.ID, ColumnPatch{Required: &required})
	if err != nil {
		t.Fatalf("update column: %v", err)
	}
	if !updated.Required || updated.Type != domain.ColumnNumber || updated.Order != col.Order {
		t.Fatalf("unexpected column after patch: %+v", updated)
	}

	if _, _, err := svc.DeleteColumn(ctx, superAdmin, col.ID); err != nil {
		t.Fatalf("delete column: %v", err)
	}
	name := "Pupils"
	_, _, err = svc.UpdateColumn(ctx, superAdmin, col.ID, ColumnPatch{Name: &name})
	var valErr *domain.ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("archived column update: expected ValidationError, got %v", err)
	}
}

func TestDeleteColumnIdempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	cat := mustCreateCategory(t, svc, "Enrollment", AssignAll)
	col := mustCreateColumn(t, svc, NewColumn{CategoryID: cat.ID, Name: "Students", Type: domain.ColumnNumber})

	first, _, err := svc.DeleteColumn(ctx, superAdmin, col.ID)
	if err != nil {
		t.Fatalf("first delete: %v", err)
	}
	second, _, err := svc.DeleteColumn(ctx, superAdmin, col.ID)
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if first.ArchivedAt == nil || second.ArchivedAt == nil {
		t.Fatal("column should be archived")
	}
	if !first.ArchivedAt.Equal(*second.ArchivedAt) {
		t.Fatal("repeated delete must not move the archive timestamp")
	}
}

func TestGetColumnsFiltersArchived(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	cat := mustCreateCategory(t, svc, "Enrollment", AssignAll)
	keep := mustCreateColumn(t, svc, NewColumn{CategoryID: cat.ID, Name: "Students", Type: domain.ColumnNumber})
	gone := mustCreateColumn(t, svc, NewColumn{CategoryID: cat.ID, Name: "Notes", Type: domain.ColumnTextarea})
	if _, _, err := svc.DeleteColumn(ctx, superAdmin, gone.ID); err != nil {
		t.Fatalf("delete column: %v", err)
	}

	visible, err := svc.GetColumns(ctx, schoolOneAdmin, cat.ID, false)
	if err != nil {
		t.Fatalf("get columns: %v", err)
	}
	if len(visible) != 1 || visible[0].ID != keep.ID {
		t.Fatalf("expected only the live column, got %+v", visible)
	}

	all, err := svc.GetColumns(ctx, schoolOneAdmin, cat.ID, true)
	if err != nil {
		t.Fatalf("get columns with archived: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 columns including archived, got %d", len(all))
	}
}
