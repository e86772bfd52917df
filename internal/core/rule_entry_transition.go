package core

import (
	"collectcore/pkg/domain"
	"context"
	"fmt"
)

// EntryTransitionRule blocks illegal data entry status transitions at commit
// time, regardless of which code path produced the change.
func EntryTransitionRule() domain.Rule {
	return entryTransitionRule{}
}

type entryTransitionRule struct{}

var validEntryStatuses = toSet(
	string(EntryDraft),
	string(EntrySubmitted),
	string(EntryApproved),
	string(EntryRejected),
)

// legalEntryTransitions maps from-status to the set of allowed to-statuses.
// approved→draft covers supersede: the approved snapshot is archived to
// history in the same transaction.
var legalEntryTransitions = map[string]map[string]struct{}{
	string(EntryDraft):     toSet(string(EntrySubmitted)),
	string(EntrySubmitted): toSet(string(EntryApproved), string(EntryRejected)),
	string(EntryRejected):  toSet(string(EntryDraft)),
	string(EntryApproved):  toSet(string(EntryDraft)),
}

func (entryTransitionRule) Name() string { return "entry_transition" }

func (entryTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != EntityDataEntry {
			continue
		}

		after, ok := domain.DecodeChangePayload[DataEntry](change.After)
		if !ok {
			continue
		}
		if _, valid := validEntryStatuses[string(after.Status)]; !valid {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "entry_transition",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("data entry %s is set to invalid status %s", after.ID, after.Status),
				Entity:   EntityDataEntry,
				EntityID: after.ID,
			})
			continue
		}

		before, ok := domain.DecodeChangePayload[DataEntry](change.Before)
		if !ok {
			// New entries must start in draft.
			if change.Action == ActionCreate && after.Status != EntryDraft {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "entry_transition",
					Severity: SeverityBlock,
					Message:  fmt.Sprintf("data entry %s must be created as draft, not %s", after.ID, after.Status),
					Entity:   EntityDataEntry,
					EntityID: after.ID,
				})
			}
			continue
		}
		if before.Status == after.Status {
			continue
		}
		allowed := legalEntryTransitions[string(before.Status)]
		if _, ok := allowed[string(after.Status)]; !ok {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "entry_transition",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("data entry %s cannot move from %s to %s", after.ID, before.Status, after.Status),
				Entity:   EntityDataEntry,
				EntityID: after.ID,
			})
		}
	}
	return res, nil
}

func toSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
