package types

import (
	"time"

	"github.com/google/uuid"
)

// Project organizes documents into a logical group.
type Project struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProjectSettings holds per-project model selection and usage accounting.
type ProjectSettings struct {
	ProjectID       uuid.UUID `json:"project_id"`
	ComplianceModel string    `json:"compliance_model,omitempty"`
	TotalUsage      Usage     `json:"total_usage"`
}

// Document is an uploaded file within a project.
type Document struct {
	ID               uuid.UUID `json:"id"`
	ProjectID        uuid.UUID `json:"project_id"`
	Filename         string    `json:"filename"`
	OriginalFilename string    `json:"original_filename"`
	ContentType      string    `json:"content_type,omitempty"`
	FileSize         int64     `json:"file_size,omitempty"`
	FileHash         string    `json:"file_hash,omitempty"`
	BlobKey          string    `json:"blob_key"`
	PageCount        int       `json:"page_count,omitempty"`

	// Document-level classification (legacy check path)
	DocumentType             string   `json:"document_type,omitempty"`
	ClassificationConfidence int      `json:"classification_confidence,omitempty"`
	ClassificationSignals    []string `json:"classification_signals,omitempty"`
	ClassificationModel      string   `json:"classification_model,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ParseStatus tracks the lifecycle of a parse result.
type ParseStatus string

// Parse statuses
const (
	ParsePending    ParseStatus = "pending"
	ParseProcessing ParseStatus = "processing"
	ParseCompleted  ParseStatus = "completed"
	ParseFailed     ParseStatus = "failed"
)

// ParseResult is one parse of a document by a specific parser.
type ParseResult struct {
	ID           uuid.UUID   `json:"id"`
	DocumentID   uuid.UUID   `json:"document_id"`
	Parser       string      `json:"parser"`
	Model        string      `json:"model,omitempty"`
	BlobKey      string      `json:"blob_key,omitempty"`
	Markdown     string      `json:"markdown,omitempty"`
	ChunkCount   int         `json:"chunk_count"`
	PageCount    int         `json:"page_count"`
	Usage        Usage       `json:"usage"`
	Status       ParseStatus `json:"status"`
	ErrorMessage string      `json:"error_message,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	DurationMS   int         `json:"processing_time_ms,omitempty"`
}

// BoundingBox is a chunk's position on its page, normalized 0-1.
type BoundingBox struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// Chunk is an atomic extracted content unit. Immutable once created.
type Chunk struct {
	ID            uuid.UUID    `json:"id"`
	ParseResultID uuid.UUID    `json:"parse_result_id"`
	Index         int          `json:"chunk_index"`
	ChunkID       string       `json:"chunk_id"`
	Type          string       `json:"chunk_type,omitempty"`
	Markdown      string       `json:"markdown,omitempty"`
	PageNumber    int          `json:"page_number"` // 1-indexed
	BBox          *BoundingBox `json:"bbox,omitempty"`
}

// PageClassification assigns one page of a parse result a semantic page type.
// Rows are created once per classification pass and only ever deleted
// wholesale, never partially mutated.
type PageClassification struct {
	ID            uuid.UUID `json:"id"`
	ParseResultID uuid.UUID `json:"parse_result_id"`
	PageNumber    int       `json:"page_number"`
	PageType      string    `json:"page_type"`
	Confidence    int       `json:"confidence"`
	Signals       []string  `json:"signals,omitempty"`
	Model         string    `json:"classification_model,omitempty"`
	Error         string    `json:"error,omitempty"`
	ClassifiedAt  time.Time `json:"classified_at"`
}
