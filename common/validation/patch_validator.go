package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/DEEPML1818/dsoc/common/models"
)

// MaxEvidenceURLs caps the evidence list on a single report
const MaxEvidenceURLs = 20

// immutableReportFields cannot be changed through a merge patch.
// ticket_id is set when a ticket is opened from the report.
var immutableReportFields = map[string]bool{
	"id":               true,
	"ticket_id":        true,
	"reporter_address": true,
	"ai_analysis":      true,
	"created_at":       true,
	"updated_at":       true,
}

// requiredReportFields may be replaced but never removed with null
var requiredReportFields = map[string]bool{
	"title":       true,
	"description": true,
	"severity":    true,
	"status":      true,
}

// PatchValidator validates RFC 7396 merge patches against incident reports
type PatchValidator struct{}

// NewPatchValidator creates a new patch validator
func NewPatchValidator() *PatchValidator {
	return &PatchValidator{}
}

// ValidateReportPatch checks a raw merge patch document before it is applied
func (v *PatchValidator) ValidateReportPatch(patch []byte) error {
	var doc map[string]interface{}
	if err := json.Unmarshal(patch, &doc); err != nil {
		return fmt.Errorf("patch validation failed: patch must be a JSON object: %w", err)
	}
	if len(doc) == 0 {
		return fmt.Errorf("patch validation failed: patch is empty")
	}

	for field, value := range doc {
		if err := v.validateField(field, value); err != nil {
			return fmt.Errorf("patch validation failed: %w", err)
		}
	}
	return nil
}

// validateField validates a single top-level member of the patch
func (v *PatchValidator) validateField(field string, value interface{}) error {
	if immutableReportFields[field] {
		return fmt.Errorf("field %q is immutable", field)
	}

	if value == nil {
		if requiredReportFields[field] {
			return fmt.Errorf("field %q cannot be removed", field)
		}
		return nil
	}

	switch field {
	case "title", "description":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("field %q must be a string, got %T", field, value)
		}
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("field %q cannot be empty", field)
		}

	case "category", "affected_systems":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("field %q must be a string, got %T", field, value)
		}

	case "severity":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("field %q must be a string, got %T", field, value)
		}
		if _, err := models.ParseSeverity(s); err != nil {
			return err
		}

	case "status":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("field %q must be a string, got %T", field, value)
		}
		switch models.ReportStatus(s) {
		case models.ReportSubmitted, models.ReportTriaged, models.ReportClosed:
		case models.ReportLinked:
			return fmt.Errorf("status %q is set when a ticket is opened", s)
		default:
			return fmt.Errorf("invalid report status: %q", s)
		}

	case "evidence_urls":
		// Arrays are replaced wholesale by a merge patch
		items, ok := value.([]interface{})
		if !ok {
			return fmt.Errorf("field %q must be an array, got %T (hint: use [\"https://...\"])", field, value)
		}
		if len(items) > MaxEvidenceURLs {
			return fmt.Errorf("field %q cannot hold more than %d entries (attempted: %d)", field, MaxEvidenceURLs, len(items))
		}
		for i, item := range items {
			if _, ok := item.(string); !ok {
				return fmt.Errorf("%s[%d] must be a string, got %T", field, i, item)
			}
		}

	default:
		return fmt.Errorf("unknown field %q", field)
	}

	return nil
}
