package domain

import "time"

type JobStatus string

const (
	JobIdle       JobStatus = "idle"
	JobUploading  JobStatus = "uploading"
	JobProcessing JobStatus = "processing"
	JobComplete   JobStatus = "complete"
	JobError      JobStatus = "error"
)

type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in-progress"
	StepComplete   StepStatus = "complete"
	StepError      StepStatus = "error"
)

// PipelineStatus is the overall status the backend reports for a document.
type PipelineStatus string

const (
	PipelineProcessing PipelineStatus = "processing"
	PipelineComplete   PipelineStatus = "complete"
	PipelineError      PipelineStatus = "error"
)

// Step is one named unit of the backend pipeline. The set of steps is fixed
// when the job is created and only their statuses change afterwards.
type Step struct {
	Name      string     `json:"name"`
	Status    StepStatus `json:"status"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// UploadJob tracks one document from file selection to terminal state.
type UploadJob struct {
	DocumentID string    `json:"document_id,omitempty"`
	Status     JobStatus `json:"status"`
	Progress   int       `json:"progress"`
	Steps      []Step    `json:"steps"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}

// DefaultStepTemplate mirrors the backend pipeline's reported step names.
var DefaultStepTemplate = []string{
	"Document Validation",
	"Text Extraction",
	"Profile Analysis",
	"Recommendation Matching",
}

func NewUploadJob(template []string) *UploadJob {
	if len(template) == 0 {
		template = DefaultStepTemplate
	}
	steps := make([]Step, 0, len(template))
	for _, name := range template {
		steps = append(steps, Step{Name: name, Status: StepPending})
	}
	return &UploadJob{
		Status: JobIdle,
		Steps:  steps,
	}
}

// ApplyStepUpdate merges a backend-reported step status into the job by name.
// Unknown names are ignored and a step already complete is never regressed
// to pending or in-progress.
func (j *UploadJob) ApplyStepUpdate(name string, status StepStatus, timestamp *time.Time) {
	for i := range j.Steps {
		if j.Steps[i].Name != name {
			continue
		}
		if j.Steps[i].Status == StepComplete && status != StepComplete {
			return
		}
		j.Steps[i].Status = status
		if timestamp != nil {
			j.Steps[i].Timestamp = timestamp
		}
		return
	}
}

// Clone returns a copy safe to hand to presentation code.
func (j *UploadJob) Clone() UploadJob {
	out := *j
	out.Steps = make([]Step, len(j.Steps))
	copy(out.Steps, j.Steps)
	return out
}

// StepUpdate is one step entry of a backend status response.
type StepUpdate struct {
	Status    StepStatus `json:"status"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// StatusReport is the backend's answer to a single status poll.
type StatusReport struct {
	Status PipelineStatus        `json:"status"`
	Steps  map[string]StepUpdate `json:"steps"`
	Error  string                `json:"error,omitempty"`
}

func (r StatusReport) Terminal() bool {
	return r.Status == PipelineComplete || r.Status == PipelineError
}

// UploadRequest asks the backend for an upload target for a new document.
type UploadRequest struct {
	Filename string `json:"filename"`
	FileType string `json:"fileType"`
}

// UploadTarget is the backend-assigned destination and identifier.
type UploadTarget struct {
	UploadURL  string `json:"uploadUrl"`
	DocumentID string `json:"documentId"`
}

// FileInput is a user-selected file held in memory for validation and
// transfer. Uploads are capped well below anything worth streaming.
type FileInput struct {
	Name        string
	ContentType string
	Data        []byte
}

func (f FileInput) Size() int64 {
	return int64(len(f.Data))
}

// ProcessingSnapshot is the small best-effort mirror persisted across page
// reloads. It is never authoritative over in-memory state.
type ProcessingSnapshot struct {
	DocumentID string `json:"document_id"`
	Processed  bool   `json:"processed"`
}
