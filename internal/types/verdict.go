package types

import (
	"time"

	"github.com/google/uuid"
)

// CheckStatus is the outcome of one check against one page.
type CheckStatus string

// Check statuses
const (
	StatusPass        CheckStatus = "pass"
	StatusFail        CheckStatus = "fail"
	StatusNeedsReview CheckStatus = "needs_review"
	StatusNA          CheckStatus = "na"
)

// CheckVerdict is the outcome of one check evaluated against one page.
type CheckVerdict struct {
	CheckID       string        `json:"check_id"`
	CheckName     string        `json:"check_name"`
	Category      CheckCategory `json:"check_type"`
	PageNumber    int           `json:"page_number"`
	PageType      string        `json:"page_type,omitempty"`
	Status        CheckStatus   `json:"status"`
	Confidence    int           `json:"confidence"`
	FoundValue    string        `json:"found_value,omitempty"`
	Notes         string        `json:"notes,omitempty"`
	RuleReference string        `json:"rule_reference,omitempty"`
	ChunkIDs      []string      `json:"chunk_ids,omitempty"`
}

// Summary counts verdicts by status.
type Summary struct {
	TotalChecks int `json:"total_checks"`
	Passed      int `json:"passed"`
	Failed      int `json:"failed"`
	NeedsReview int `json:"needs_review"`
	NA          int `json:"na"`
}

// Count records one verdict status in the summary.
func (s *Summary) Count(status CheckStatus) {
	s.TotalChecks++
	switch status {
	case StatusPass:
		s.Passed++
	case StatusNeedsReview:
		s.NeedsReview++
	case StatusNA:
		s.NA++
	default:
		// Unrecognized statuses count as failures, matching the
		// conservative default for missing model output.
		s.Failed++
	}
}

// Usage holds token counts for completion calls.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add returns the element-wise sum of two usages.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + o.InputTokens,
		OutputTokens: u.OutputTokens + o.OutputTokens,
	}
}

// CheckCompleted is the status of a persisted check result. Results are
// written only after a run finishes, so this is the sole value today.
const CheckCompleted = "completed"

// CheckResult is one immutable check run for a document. History is
// append-only; the latest run is the one with the greatest created_at.
type CheckResult struct {
	ID            uuid.UUID  `json:"id"`
	DocumentID    uuid.UUID  `json:"document_id"`
	ParseResultID uuid.UUID  `json:"parse_result_id"`
	ProjectID     uuid.UUID  `json:"project_id"`
	BatchRunID    *uuid.UUID `json:"batch_run_id,omitempty"`
	RunNumber     int        `json:"run_number"`
	DocumentType  string     `json:"document_type,omitempty"`

	Completeness []CheckVerdict `json:"completeness_results"`
	Compliance   []CheckVerdict `json:"compliance_results"`
	Summary      Summary        `json:"summary"`

	Model      string    `json:"model,omitempty"`
	Usage      Usage     `json:"usage"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	DurationMS int       `json:"processing_time_ms,omitempty"`
}

// Verdicts returns completeness and compliance verdicts as one slice.
func (r *CheckResult) Verdicts() []CheckVerdict {
	out := make([]CheckVerdict, 0, len(r.Completeness)+len(r.Compliance))
	out = append(out, r.Completeness...)
	out = append(out, r.Compliance...)
	return out
}

// BatchRunStatus is the lifecycle state of a batch check run.
type BatchRunStatus string

// Batch run statuses
const (
	BatchPending             BatchRunStatus = "pending"
	BatchProcessing          BatchRunStatus = "processing"
	BatchCompleted           BatchRunStatus = "completed"
	BatchCompletedWithErrors BatchRunStatus = "completed_with_errors"
	BatchFailed              BatchRunStatus = "failed"
	BatchCancelled           BatchRunStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s BatchRunStatus) Terminal() bool {
	switch s {
	case BatchCompleted, BatchCompletedWithErrors, BatchFailed, BatchCancelled:
		return true
	}
	return false
}

// BatchCheckRun is the job record for one project-wide check run.
type BatchCheckRun struct {
	ID        uuid.UUID      `json:"id"`
	ProjectID uuid.UUID      `json:"project_id"`
	Status    BatchRunStatus `json:"status"`

	TotalDocuments     int `json:"total_documents"`
	CompletedDocuments int `json:"completed_documents"`
	FailedDocuments    int `json:"failed_documents"`
	SkippedDocuments   int `json:"skipped_documents"`

	TotalPassed      int   `json:"total_passed"`
	TotalFailed      int   `json:"total_failed"`
	TotalNeedsReview int   `json:"total_needs_review"`
	Usage            Usage `json:"usage"`

	Model        string     `json:"model,omitempty"`
	ForceRerun   bool       `json:"force_rerun"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}
