// Command schema-check validates an exported store snapshot for structural
// consistency: org tree shape, category priorities, column orders, entry
// references and history sequencing.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"collectcore/internal/infra/persistence/memory"
	"collectcore/pkg/domain"
)

var exitFunc = os.Exit

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("schema-check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var snapshotPath string
	fs.StringVar(&snapshotPath, "snapshot", "snapshot.json", "path to exported store snapshot")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := run(snapshotPath); err != nil {
		if _, writeErr := fmt.Fprintf(stderr, "Snapshot validation failed: %v\n", err); writeErr != nil {
			return 1
		}
		return 1
	}
	if _, writeErr := fmt.Fprintln(stdout, "Snapshot validation passed."); writeErr != nil {
		return 1
	}
	return 0
}

// validatePath rejects absolute and path-traversing references so the check
// only reads files within the working tree.
func validatePath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("empty path")
	}
	if filepath.IsAbs(p) {
		return "", fmt.Errorf("absolute paths not allowed: %s", p)
	}
	clean := filepath.Clean(p)
	if strings.Contains(clean, "..") {
		return "", fmt.Errorf("path traversal not allowed: %s", p)
	}
	return clean, nil
}

func run(snapshotPath string) error {
	safePath, err := validatePath(snapshotPath)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(safePath) // #nosec G304: path validated by validatePath
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	var snapshot memory.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("parse snapshot: %w", err)
	}
	return validateSnapshot(snapshot)
}

func validateSnapshot(s memory.Snapshot) error {
	if err := validateOrgTree(s); err != nil {
		return err
	}
	if err := validateCategories(s); err != nil {
		return err
	}
	if err := validateColumns(s); err != nil {
		return err
	}
	if err := validateEntries(s); err != nil {
		return err
	}
	return validateHistory(s)
}

func validateOrgTree(s memory.Snapshot) error {
	for id, node := range s.OrgNodes {
		if node.Name == "" {
			return fmt.Errorf("org node %s: missing name", id)
		}
		switch node.Kind {
		case domain.OrgRegion:
			if node.ParentID != nil {
				return fmt.Errorf("region %s: must not have a parent", id)
			}
		case domain.OrgSector, domain.OrgSchool:
			if node.ParentID == nil {
				return fmt.Errorf("%s %s: missing parent", node.Kind, id)
			}
			parent, ok := s.OrgNodes[*node.ParentID]
			if !ok {
				return fmt.Errorf("%s %s: parent %s not found", node.Kind, id, *node.ParentID)
			}
			want := domain.OrgRegion
			if node.Kind == domain.OrgSchool {
				want = domain.OrgSector
			}
			if parent.Kind != want {
				return fmt.Errorf("%s %s: parent must be a %s", node.Kind, id, want)
			}
		default:
			return fmt.Errorf("org node %s: unknown kind %q", id, node.Kind)
		}
	}
	return nil
}

func validateCategories(s memory.Snapshot) error {
	byPriority := make(map[int]string, len(s.Categories))
	for id, cat := range s.Categories {
		if cat.Name == "" {
			return fmt.Errorf("category %s: missing name", id)
		}
		switch cat.Assignment {
		case domain.AssignAll, domain.AssignRegions, domain.AssignSectors, domain.AssignSchools:
		default:
			return fmt.Errorf("category %s: unknown assignment %q", id, cat.Assignment)
		}
		switch cat.Status {
		case domain.CategoryActive, domain.CategoryInactive:
		default:
			return fmt.Errorf("category %s: unknown status %q", id, cat.Status)
		}
		if other, dup := byPriority[cat.Priority]; dup {
			return fmt.Errorf("category %s: priority %d already held by %s", id, cat.Priority, other)
		}
		byPriority[cat.Priority] = id
	}
	return nil
}

func validateColumns(s memory.Snapshot) error {
	type orderKey struct {
		categoryID string
		order      int
	}
	byOrder := make(map[orderKey]string, len(s.Columns))
	for id, col := range s.Columns {
		// Deleting a category archives its columns but drops the category
		// record, so archived columns may legitimately outlive their owner.
		if !col.Archived() {
			if _, ok := s.Categories[col.CategoryID]; !ok {
				return fmt.Errorf("column %s: category %s not found", id, col.CategoryID)
			}
		}
		if col.Name == "" {
			return fmt.Errorf("column %s: missing name", id)
		}
		switch col.Type {
		case domain.ColumnText, domain.ColumnTextarea, domain.ColumnNumber,
			domain.ColumnDate, domain.ColumnSelect, domain.ColumnCheckbox, domain.ColumnFile:
		default:
			return fmt.Errorf("column %s: unknown type %q", id, col.Type)
		}
		if col.Type == domain.ColumnSelect && len(col.Options) == 0 {
			return fmt.Errorf("column %s: select column without options", id)
		}
		if col.Order < 1 {
			return fmt.Errorf("column %s: order must be positive", id)
		}
		key := orderKey{col.CategoryID, col.Order}
		if other, dup := byOrder[key]; dup {
			return fmt.Errorf("column %s: order %d already held by %s", id, col.Order, other)
		}
		byOrder[key] = id
	}
	return nil
}

func validateEntries(s memory.Snapshot) error {
	columnsByCategory := make(map[string]map[string]struct{})
	for id, col := range s.Columns {
		if columnsByCategory[col.CategoryID] == nil {
			columnsByCategory[col.CategoryID] = make(map[string]struct{})
		}
		columnsByCategory[col.CategoryID][id] = struct{}{}
	}

	// Entries survive category deletion for audit, so the category id is not
	// required to resolve. Payload keys are checked against the column table
	// directly; archived columns keep them resolvable.
	current := make(map[string]string, len(s.Entries))
	for id, entry := range s.Entries {
		school, ok := s.OrgNodes[entry.SchoolID]
		if !ok {
			return fmt.Errorf("entry %s: school %s not found", id, entry.SchoolID)
		}
		if school.Kind != domain.OrgSchool {
			return fmt.Errorf("entry %s: node %s is not a school", id, entry.SchoolID)
		}
		switch entry.Status {
		case domain.EntryDraft, domain.EntrySubmitted, domain.EntryApproved, domain.EntryRejected:
		default:
			return fmt.Errorf("entry %s: unknown status %q", id, entry.Status)
		}
		if entry.Version < 1 {
			return fmt.Errorf("entry %s: version must be at least 1", id)
		}
		key := entry.CategoryID + "\x00" + entry.SchoolID
		if other, dup := current[key]; dup {
			return fmt.Errorf("entry %s: duplicate current entry with %s for category %s school %s", id, other, entry.CategoryID, entry.SchoolID)
		}
		current[key] = id
		for payloadKey := range entry.Payload {
			if _, ok := columnsByCategory[entry.CategoryID][payloadKey]; !ok {
				return fmt.Errorf("entry %s: payload key %s is not a column of category %s", id, payloadKey, entry.CategoryID)
			}
		}
	}
	return nil
}

func validateHistory(s memory.Snapshot) error {
	seqs := make(map[int64]string, len(s.History))
	for id, h := range s.History {
		if _, ok := s.Entries[h.DataEntryID]; !ok {
			return fmt.Errorf("history %s: entry %s not found", id, h.DataEntryID)
		}
		if h.Seq < 1 {
			return fmt.Errorf("history %s: sequence must be positive", id)
		}
		if other, dup := seqs[h.Seq]; dup {
			return fmt.Errorf("history %s: sequence %d already held by %s", id, h.Seq, other)
		}
		seqs[h.Seq] = id
		if h.ChangedBy == "" {
			return fmt.Errorf("history %s: missing actor", id)
		}
	}
	return nil
}
