package core

import (
	"collectcore/internal/attach"
	"collectcore/pkg/domain"
	"fmt"
	"time"
)

// dateLayout is the wire format for date column values.
const dateLayout = "2006-01-02"

// validatePayloadShape checks that every value in the payload matches its
// column's declared type. Unknown keys and archived-column writes are
// violations. Required-ness is not enforced here; drafts may be partial.
func validatePayloadShape(columns []Column, payload map[string]any) []domain.FieldViolation {
	byID := make(map[string]Column, len(columns))
	for _, col := range columns {
		byID[col.ID] = col
	}

	var fields []domain.FieldViolation
	for key, value := range payload {
		col, ok := byID[key]
		if !ok {
			fields = append(fields, domain.FieldViolation{Field: key, Message: "unknown column"})
			continue
		}
		if col.Archived() {
			fields = append(fields, domain.FieldViolation{Field: key, Message: "column is archived"})
			continue
		}
		if value == nil {
			continue
		}
		if v := validateColumnValue(col, value); v != nil {
			fields = append(fields, *v)
		}
	}
	return fields
}

// validateRequired checks that every required, non-archived column has a
// non-empty value in the payload. Used at submit time over the full payload.
func validateRequired(columns []Column, payload map[string]any) []domain.FieldViolation {
	var fields []domain.FieldViolation
	for _, col := range columns {
		if !col.Required || col.Archived() {
			continue
		}
		value, ok := payload[col.ID]
		if !ok || value == nil || isEmptyValue(col, value) {
			fields = append(fields, domain.FieldViolation{Field: col.ID, Message: fmt.Sprintf("column %q is required", col.Name)})
		}
	}
	return fields
}

func isEmptyValue(col Column, value any) bool {
	switch col.Type {
	case domain.ColumnText, domain.ColumnTextarea, domain.ColumnDate, domain.ColumnSelect, domain.ColumnFile:
		s, ok := value.(string)
		return ok && s == ""
	default:
		return false
	}
}

// validateColumnValue validates a single non-nil value against its column
// type. Values are never coerced; a mismatch is a violation.
func validateColumnValue(col Column, value any) *domain.FieldViolation {
	switch col.Type {
	case domain.ColumnText, domain.ColumnTextarea:
		if _, ok := value.(string); !ok {
			return &domain.FieldViolation{Field: col.ID, Message: "must be a string"}
		}
	case domain.ColumnNumber:
		if !isNumeric(value) {
			return &domain.FieldViolation{Field: col.ID, Message: "must be a number"}
		}
	case domain.ColumnDate:
		s, ok := value.(string)
		if !ok {
			return &domain.FieldViolation{Field: col.ID, Message: "must be a date string"}
		}
		if s != "" {
			if _, err := time.Parse(dateLayout, s); err != nil {
				return &domain.FieldViolation{Field: col.ID, Message: "must be a date in YYYY-MM-DD form"}
			}
		}
	case domain.ColumnSelect:
		s, ok := value.(string)
		if !ok {
			return &domain.FieldViolation{Field: col.ID, Message: "must be a string option"}
		}
		if s != "" && !containsOption(col.Options, s) {
			return &domain.FieldViolation{Field: col.ID, Message: fmt.Sprintf("%q is not an allowed option", s)}
		}
	case domain.ColumnCheckbox:
		if _, ok := value.(bool); !ok {
			return &domain.FieldViolation{Field: col.ID, Message: "must be a boolean"}
		}
	case domain.ColumnFile:
		s, ok := value.(string)
		if !ok {
			return &domain.FieldViolation{Field: col.ID, Message: "must be an attachment reference"}
		}
		if s != "" && !attach.IsReference(s) {
			return &domain.FieldViolation{Field: col.ID, Message: "must be an attachment reference"}
		}
	default:
		return &domain.FieldViolation{Field: col.ID, Message: fmt.Sprintf("unsupported column type %q", col.Type)}
	}
	return nil
}

func isNumeric(value any) bool {
	switch value.(type) {
	case float64, float32, int, int32, int64:
		return true
	default:
		return false
	}
}

func containsOption(options []string, v string) bool {
	for _, o := range options {
		if o == v {
			return true
		}
	}
	return false
}

// mergePayload overlays patch onto base without mutating either. A nil value
// in patch clears the key.
func mergePayload(base, patch map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range patch {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	return merged
}
