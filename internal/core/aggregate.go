package core

import (
	"collectcore/pkg/domain"
	"context"
	"math"
	"time"
)

// CompletionCount pairs approved entries against applicable (category, school)
// slots. Rollups sum counts, never percentages, so a sector's rate reflects
// its real denominator instead of an average of school rates.
type CompletionCount struct {
	Approved   int `json:"approved"`
	Applicable int `json:"applicable"`
}

// Rate returns the completion percentage rounded to the nearest integer. An
// empty denominator yields zero rather than a division error.
func (c CompletionCount) Rate() int {
	if c.Applicable == 0 {
		return 0
	}
	return int(math.Round(float64(c.Approved) / float64(c.Applicable) * 100))
}

func (c *CompletionCount) add(other CompletionCount) {
	c.Approved += other.Approved
	c.Applicable += other.Applicable
}

// appliesToSchools reports whether a category's assignment makes schools its
// unit of collection. Region- and sector-assigned categories never enter a
// school's denominator: school admins cannot fill them, so counting them
// would deflate rates the school has no way to raise.
func appliesToSchools(assignment Assignment) bool {
	return assignment == AssignAll || assignment == AssignSchools
}

// CompletionReport aggregates approval completion across the org tree slice
// visible to a principal. Every active category whose assignment applies to
// schools counts as one applicable slot per school in scope.
type CompletionReport struct {
	GeneratedAt time.Time                  `json:"generated_at"`
	Overall     CompletionCount            `json:"overall"`
	Regions     map[string]CompletionCount `json:"regions"`
	Sectors     map[string]CompletionCount `json:"sectors"`
	Schools     map[string]CompletionCount `json:"schools"`
	Categories  map[string]CompletionCount `json:"categories"`
}

// CompletionReport computes completion rollups over the principal's scope.
func (s *Service) CompletionReport(ctx context.Context, principal Principal) (CompletionReport, error) {
	report := CompletionReport{
		Regions:    map[string]CompletionCount{},
		Sectors:    map[string]CompletionCount{},
		Schools:    map[string]CompletionCount{},
		Categories: map[string]CompletionCount{},
	}
	err := s.instrument(ctx, "completion_report", principal.ID, func(ctx context.Context) (string, error) {
		return "", s.view(ctx, func(view TransactionView) error {
			scope, err := s.resolveScope(view, principal)
			if err != nil {
				return err
			}

			var active []Category
			for _, cat := range view.ListCategories() {
				if cat.Status == domain.CategoryActive && appliesToSchools(cat.Assignment) {
					active = append(active, cat)
				}
			}

			parents := map[string]string{}
			for _, node := range view.ListOrgNodes() {
				if node.ParentID != nil {
					parents[node.ID] = *node.ParentID
				}
				if node.Kind != OrgSchool || !scope.ContainsSchool(node.ID) {
					continue
				}
				count := CompletionCount{Applicable: len(active)}
				for _, cat := range active {
					entry, ok := view.FindCurrentEntry(cat.ID, node.ID)
					approved := ok && entry.Status == EntryApproved
					if approved {
						count.Approved++
					}
					catCount := report.Categories[cat.ID]
					catCount.Applicable++
					if approved {
						catCount.Approved++
					}
					report.Categories[cat.ID] = catCount
				}
				report.Schools[node.ID] = count
			}

			for schoolID, count := range report.Schools {
				report.Overall.add(count)
				sectorID, ok := parents[schoolID]
				if !ok {
					continue
				}
				sectorCount := report.Sectors[sectorID]
				sectorCount.add(count)
				report.Sectors[sectorID] = sectorCount
				regionID, ok := parents[sectorID]
				if !ok {
					continue
				}
				regionCount := report.Regions[regionID]
				regionCount.add(count)
				report.Regions[regionID] = regionCount
			}

			report.GeneratedAt = time.Now().UTC()
			return nil
		})
	})
	return report, err
}

// CompletionRate returns the completion percentage of one category across the
// principal's scope. The rate is zero when no school in scope is applicable,
// which covers inactive categories and assignments not collected per school.
func (s *Service) CompletionRate(ctx context.Context, principal Principal, categoryID string) (int, error) {
	var count CompletionCount
	err := s.instrument(ctx, "completion_rate", principal.ID, func(ctx context.Context) (string, error) {
		return categoryID, s.view(ctx, func(view TransactionView) error {
			scope, err := s.resolveScope(view, principal)
			if err != nil {
				return err
			}
			cat, ok := view.FindCategory(categoryID)
			if !ok {
				return notFound(domain.EntityCategory, categoryID)
			}
			if cat.Status != domain.CategoryActive || !appliesToSchools(cat.Assignment) {
				return nil
			}
			for _, node := range view.ListOrgNodes() {
				if node.Kind != OrgSchool || !scope.ContainsSchool(node.ID) {
					continue
				}
				count.Applicable++
				if entry, ok := view.FindCurrentEntry(cat.ID, node.ID); ok && entry.Status == EntryApproved {
					count.Approved++
				}
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return count.Rate(), nil
}
