package common

import "time"

// JobState is the lifecycle state of an ingest job.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCanceled  JobState = "canceled"
)

// Terminal reports whether the state admits no further transitions.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCanceled
}

// DocumentState is the per-document outcome inside a job. Documents are
// independent; one failure never changes a sibling's state.
type DocumentState string

const (
	DocPending    DocumentState = "pending"
	DocProcessing DocumentState = "processing"
	DocProcessed  DocumentState = "processed"
	DocFailed     DocumentState = "failed"
	DocSkipped    DocumentState = "skipped"
)

// IngestMode selects how much of the corpus a job covers.
type IngestMode string

const (
	ModeSample IngestMode = "sample"
	ModeFull   IngestMode = "full"
)

// JobDocument is one document's slot within an ingest job.
type JobDocument struct {
	JobID         string        `json:"job_id"`
	Document      Document      `json:"document"`
	State         DocumentState `json:"state"`
	PublicationID string        `json:"pub_id,omitempty"`
	Pages         int           `json:"pages"`
	FailedPages   int           `json:"failed_pages"`
	Error         string        `json:"error,omitempty"`
}

// IngestJob tracks one ingestion run over a set of documents. Progress is
// (Processed+Failed)/Total and never decreases.
type IngestJob struct {
	ID        string        `json:"job_id"`
	Mode      IngestMode    `json:"mode"`
	State     JobState      `json:"state"`
	Total     int           `json:"total"`
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
	Error     string        `json:"error,omitempty"`
	Documents []JobDocument `json:"documents,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Progress returns the completed fraction in [0,1].
func (j *IngestJob) Progress() float64 {
	if j.Total == 0 {
		return 0
	}
	return float64(j.Processed+j.Failed) / float64(j.Total)
}
