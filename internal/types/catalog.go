// Package types defines the shared domain types for the compliance pipeline.
package types

// CheckCategory distinguishes the two kinds of checks in the rule catalog.
type CheckCategory string

// Check categories
const (
	// CategoryCompleteness asks whether required information is present
	CategoryCompleteness CheckCategory = "completeness"
	// CategoryCompliance asks whether the content meets a rule
	CategoryCompliance CheckCategory = "compliance"
)

// ExecutionMode controls how a check is dispatched to the model.
type ExecutionMode string

// Execution modes
const (
	// ModeBatched evaluates the check across all pages of a batch in one call
	ModeBatched ExecutionMode = "batched"
	// ModePerPage evaluates the check against each page individually
	ModePerPage ExecutionMode = "per_page"
)

// CheckDefinition is one entry in the static rule catalog.
type CheckDefinition struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Question      string        `json:"question"`
	Category      CheckCategory `json:"category"`
	PageTypes     []string      `json:"page_types"`
	RuleReference string        `json:"rule_reference,omitempty"`
	Mode          ExecutionMode `json:"mode,omitempty"`
}

// AppliesTo reports whether the check is applicable to the given page type.
func (c CheckDefinition) AppliesTo(pageType string) bool {
	for _, pt := range c.PageTypes {
		if pt == pageType {
			return true
		}
	}
	return false
}

// PageTypeInfo describes one semantic page type from the catalog.
type PageTypeInfo struct {
	Name                  string   `json:"name"`
	Description           string   `json:"description"`
	ClassificationSignals []string `json:"classification_signals,omitempty"`
}

// DocumentTypeInfo describes a document type with its legacy document-level
// check lists, kept for the pre-page-classification check path.
type DocumentTypeInfo struct {
	Name               string            `json:"name"`
	Description        string            `json:"description"`
	CompletenessChecks []CheckDefinition `json:"completeness_checks,omitempty"`
	ComplianceChecks   []CheckDefinition `json:"compliance_checks,omitempty"`
}

// PageTypeUnknown is assigned when classification cannot determine a type.
const PageTypeUnknown = "unknown"
