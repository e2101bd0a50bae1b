package models

import "time"

// Span is a half-open byte range [Start, End) into the normalized document text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Chunk represents one window of normalized text with its position
type Chunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	Span  Span   `json:"span"`
}

// Document is the raw input of one extraction run.
type Document struct {
	Data     []byte
	Filename string
}

// Field tags a piece of metadata the pipeline extracts.
type Field string

const (
	FieldTitle         Field = "title"
	FieldDOI           Field = "doi"
	FieldDataStatement Field = "data_statement"
	FieldCodeStatement Field = "code_statement"
	FieldDataLicense   Field = "data_license"
	FieldCodeLicense   Field = "code_license"
	FieldDataLinks     Field = "data_links"
	FieldCodeLinks     Field = "code_links"
)

// Fields lists the scalar fields in extraction order. Link fields are
// resolved after the statements they depend on.
var Fields = []Field{
	FieldDOI,
	FieldTitle,
	FieldDataStatement,
	FieldCodeStatement,
	FieldDataLicense,
	FieldCodeLicense,
}

// IsStatement reports whether f is an availability statement field.
func (f Field) IsStatement() bool {
	return f == FieldDataStatement || f == FieldCodeStatement
}

// IsLicense reports whether f is a license field.
func (f Field) IsLicense() bool {
	return f == FieldDataLicense || f == FieldCodeLicense
}

// IsData reports whether f belongs to the data side (statement, license, links).
func (f Field) IsData() bool {
	return f == FieldDataStatement || f == FieldDataLicense || f == FieldDataLinks
}

type Source string

const (
	SourceHeuristic Source = "heuristic"
	SourceLLM       Source = "llm"
)

// Candidate is one proposed value for a field together with where it came from.
type Candidate struct {
	Field      Field    `json:"field"`
	Value      string   `json:"value"`
	Links      []string `json:"links,omitempty"`
	Source     Source   `json:"source"`
	Confidence float64  `json:"confidence"`
}

// AnalysisResult is the final record produced for one document.
// Optional fields are nil unless an explicit, validated value was found.
type AnalysisResult struct {
	SourceFile                string             `json:"source_file"`
	Title                     *string            `json:"title"`
	DOI                       *string            `json:"doi"`
	DataAvailabilityStatement *string            `json:"data_availability_statement"`
	CodeAvailabilityStatement *string            `json:"code_availability_statement"`
	DataSharingLicense        *string            `json:"data_sharing_license"`
	CodeLicense               *string            `json:"code_license"`
	DataLinks                 []string           `json:"data_links"`
	CodeLinks                 []string           `json:"code_links"`
	ConfidenceScores          map[string]float64 `json:"confidence_scores"`
	Error                     *string            `json:"error,omitempty"`
}

// NewAnalysisResult returns an empty result for filename.
func NewAnalysisResult(filename string) *AnalysisResult {
	return &AnalysisResult{
		SourceFile:       filename,
		DataLinks:        []string{},
		CodeLinks:        []string{},
		ConfidenceScores: map[string]float64{},
	}
}

// Set stores a scalar field value and its confidence.
func (r *AnalysisResult) Set(field Field, value string, confidence float64) {
	v := value
	switch field {
	case FieldTitle:
		r.Title = &v
	case FieldDOI:
		r.DOI = &v
	case FieldDataStatement:
		r.DataAvailabilityStatement = &v
	case FieldCodeStatement:
		r.CodeAvailabilityStatement = &v
	case FieldDataLicense:
		r.DataSharingLicense = &v
	case FieldCodeLicense:
		r.CodeLicense = &v
	default:
		return
	}
	r.ConfidenceScores[string(field)] = confidence
}

// Get returns the scalar value stored for field, or "" when absent.
func (r *AnalysisResult) Get(field Field) string {
	var p *string
	switch field {
	case FieldTitle:
		p = r.Title
	case FieldDOI:
		p = r.DOI
	case FieldDataStatement:
		p = r.DataAvailabilityStatement
	case FieldCodeStatement:
		p = r.CodeAvailabilityStatement
	case FieldDataLicense:
		p = r.DataSharingLicense
	case FieldCodeLicense:
		p = r.CodeLicense
	}
	if p == nil {
		return ""
	}
	return *p
}

// SetError marks the result as failed with msg.
func (r *AnalysisResult) SetError(msg string) {
	r.Error = &msg
}

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobDone      JobStatus = "done"
	JobError     JobStatus = "error"
	JobCancelled JobStatus = "cancelled"
)

type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Job tracks a batch of documents analyzed together.
type Job struct {
	ID         string           `json:"job_id"`
	Status     JobStatus        `json:"status"`
	Progress   Progress         `json:"progress"`
	Results    []AnalysisResult `json:"results,omitempty"`
	Error      string           `json:"error,omitempty"`
	CreatedBy  string           `json:"created_by,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
	StartedAt  *time.Time       `json:"started_at,omitempty"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
}

// Duration returns the wall time of a finished job.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil || j.FinishedAt == nil {
		return 0
	}
	return j.FinishedAt.Sub(*j.StartedAt)
}

// Health reports whether the external services answer.
type Health struct {
	Status              string `json:"status"`
	AgentModel          string `json:"agent_model"`
	AgentReachable      bool   `json:"agent_reachable"`
	EmbeddingsReachable bool   `json:"embeddings_reachable"`
}
