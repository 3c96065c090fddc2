package domain

import (
	"time"
)

// Annotation is a hand-drawn region on an image, as stored by the platform.
// Location holds the region as WKT in image pixel space.
type Annotation struct {
	ID        int64   `json:"id"`
	ImageID   int64   `json:"image"`
	ProjectID int64   `json:"project"`
	TermIDs   []int64 `json:"term"`
	UserID    int64   `json:"user"`
	Area      float64 `json:"area"`
	Perimeter float64 `json:"perimeter"`
	Location  string  `json:"location"`
}

// AnnotationFilter selects annotations of a project. Zero-valued fields do
// not filter.
type AnnotationFilter struct {
	ProjectID    int64   `json:"project_id"`
	SoftwareID   int64   `json:"software_id,omitempty"`
	TermIDs      []int64 `json:"term_ids,omitempty"`
	ImageIDs     []int64 `json:"image_ids,omitempty"`
	AnnotationID int64   `json:"annotation_id,omitempty"`
}

// Job status codes used by the platform.
const (
	JobStatusNotLaunched   = 0
	JobStatusInQueue       = 1
	JobStatusRunning       = 2
	JobStatusSuccess       = 3
	JobStatusFailed        = 4
	JobStatusIndeterminate = 5
	JobStatusWait          = 6
	JobStatusPreviewed     = 7
	JobStatusKilled        = 8
)

// Job is a software execution registered on the platform.
type Job struct {
	ID            int64  `json:"id"`
	SoftwareID    int64  `json:"software"`
	ProjectID     int64  `json:"project"`
	Status        int    `json:"status"`
	Progress      int    `json:"progress"`
	StatusComment string `json:"statusComment,omitempty"`
}

// Job parameter names that tie a detection file to its image and terms.
const (
	ParamImage = "cytomine_image"
	ParamTerms = "cytomine_id_term"
)

// JobParameter is a named input value of a job.
type JobParameter struct {
	ID    int64  `json:"id"`
	JobID int64  `json:"job"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// JobData is a file attached to a job.
type JobData struct {
	ID       int64  `json:"id"`
	JobID    int64  `json:"job"`
	Key      string `json:"key"`
	Filename string `json:"filename"`
}

// Property is a key/value pair attached to an annotation.
type Property struct {
	ID          int64  `json:"id,omitempty"`
	DomainIdent int64  `json:"domainIdent,omitempty"`
	Key         string `json:"key"`
	Value       string `json:"value"`
}

// Term is an ontology class annotations and detections are tagged with.
type Term struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Color      string `json:"color"`
	OntologyID int64  `json:"ontology"`
}

// NewAnnotation is a region to be created on the platform.
type NewAnnotation struct {
	ImageID  int64   `json:"image"`
	TermIDs  []int64 `json:"term,omitempty"`
	Location string  `json:"location"`
}

// DetectionResult is one detection file produced by an earlier job, with the
// image and terms its job parameters point at.
type DetectionResult struct {
	JobID     int64         `json:"job_id"`
	JobDataID int64         `json:"job_data_id"`
	ImageID   int64         `json:"image_id"`
	TermIDs   []int64       `json:"term_ids,omitempty"`
	Filename  string        `json:"filename"`
	File      DetectionFile `json:"detections"`
}

// TermID returns the term zipped with the label at position i, or 0.
func (r DetectionResult) TermID(i int) int64 {
	if i < 0 || i >= len(r.TermIDs) {
		return 0
	}
	return r.TermIDs[i]
}

// ImageInfo summarises a whole image.
type ImageInfo struct {
	Counts         map[string]int `json:"counts"`
	Total          int            `json:"total"`
	AnnotationArea float64        `json:"annotation_area"`
}

// TermStats summarises one label inside an annotation.
type TermStats struct {
	Label   string  `json:"label"`
	TermID  int64   `json:"term_id,omitempty"`
	Count   int     `json:"count"`
	Density float64 `json:"density"`
}

// AnnotationStats is the outcome of counting one detection result inside one
// annotation. Inside carries the matched points until they are uploaded and
// is dropped before the stats are stored.
type AnnotationStats struct {
	AnnotationID int64          `json:"annotation_id"`
	ImageID      int64          `json:"image_id"`
	JobID        int64          `json:"job_id,omitempty"`
	Image        ImageInfo      `json:"image"`
	Terms        []TermStats    `json:"terms"`
	Skipped      int            `json:"skipped"`
	Inside       *DetectionFile `json:"inside_points,omitempty"`
}

// AnnotationSkip records an annotation that could not be analysed.
type AnnotationSkip struct {
	AnnotationID int64  `json:"annotation_id"`
	Reason       string `json:"reason"`
}

// AnalysisReport collects the stats of one run.
type AnalysisReport struct {
	Stats   []AnnotationStats `json:"stats"`
	Skipped []AnnotationSkip  `json:"skipped,omitempty"`
}

// RunStatus is the lifecycle state of an analysis run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// AnalysisRun is a persisted record of one pipeline execution.
type AnalysisRun struct {
	ID            string            `json:"id"`
	JobID         int64             `json:"job_id"`
	ProjectID     int64             `json:"project_id"`
	Status        RunStatus         `json:"status"`
	Progress      int               `json:"progress"`
	StatusComment string            `json:"status_comment,omitempty"`
	Request       AnalysisRequest   `json:"request"`
	Stats         []AnnotationStats `json:"stats,omitempty"`
	Error         string            `json:"error,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	FinishedAt    *time.Time        `json:"finished_at,omitempty"`
}

// Progress is a status update emitted while a run advances.
type Progress struct {
	RunID   string    `json:"run_id"`
	JobID   int64     `json:"job_id"`
	Status  RunStatus `json:"status"`
	Percent int       `json:"percent"`
	Comment string    `json:"comment"`
	Time    time.Time `json:"time"`
}

// AnalysisRequest describes one run of the pipeline.
type AnalysisRequest struct {
	RunID             string   `json:"run_id,omitempty"`
	ProjectID         int64    `json:"project_id"`
	JobID             int64    `json:"job_id,omitempty"`
	SoftwareID        int64    `json:"software_id,omitempty"`
	TermIDs           []int64  `json:"term_ids,omitempty"`
	ImageIDs          []int64  `json:"image_ids,omitempty"`
	AnnotationID      int64    `json:"annotation_id,omitempty"`
	OntologyID        int64    `json:"ontology_id,omitempty"`
	Rule              string   `json:"rule,omitempty"`
	OutputFormats     []string `json:"output_formats,omitempty"`
	UploadProperties  bool     `json:"upload_properties"`
	UploadAnnotations bool     `json:"upload_annotations"`
	CleanupResults    bool     `json:"cleanup_results"`
	CreateTerms       bool     `json:"create_terms"`
}

// Filter returns the annotation filter the request selects.
func (r AnalysisRequest) Filter() AnnotationFilter {
	return AnnotationFilter{
		ProjectID:    r.ProjectID,
		SoftwareID:   r.SoftwareID,
		TermIDs:      r.TermIDs,
		ImageIDs:     r.ImageIDs,
		AnnotationID: r.AnnotationID,
	}
}
