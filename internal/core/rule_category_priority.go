package core

import (
	"collectcore/pkg/domain"
	"context"
	"fmt"
)

// CategoryPriorityRule enforces the total order on category priorities: every
// priority is positive and no two categories share one.
func CategoryPriorityRule() domain.Rule {
	return categoryPriorityRule{}
}

type categoryPriorityRule struct{}

func (categoryPriorityRule) Name() string { return "category_priority" }

func (categoryPriorityRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	touched := false
	for _, change := range changes {
		if change.Entity == EntityCategory {
			touched = true
			break
		}
	}
	if !touched {
		return res, nil
	}

	seen := make(map[int]string)
	for _, cat := range view.ListCategories() {
		if cat.Priority < 1 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "category_priority",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("category %s has non-positive priority %d", cat.ID, cat.Priority),
				Entity:   EntityCategory,
				EntityID: cat.ID,
			})
			continue
		}
		if otherID, dup := seen[cat.Priority]; dup {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "category_priority",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("categories %s and %s share priority %d", otherID, cat.ID, cat.Priority),
				Entity:   EntityCategory,
				EntityID: cat.ID,
			})
			continue
		}
		seen[cat.Priority] = cat.ID
	}
	return res, nil
}
