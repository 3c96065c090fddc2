package ports

import (
	"context"
	"io"

	"github.com/cellsia/S-Show-Region-Stats/internal/core/domain"
)

// AnnotationRepository reads and writes annotations on the platform.
type AnnotationRepository interface {
	List(ctx context.Context, filter domain.AnnotationFilter) ([]domain.Annotation, error)
	GetByID(ctx context.Context, id int64) (*domain.Annotation, error)
	Create(ctx context.Context, ann domain.NewAnnotation) (*domain.Annotation, error)
	Delete(ctx context.Context, id int64) error
}

// JobRepository reads jobs and their attachments and reports job status.
type JobRepository interface {
	ListByProject(ctx context.Context, projectID int64) ([]domain.Job, error)
	ListParameters(ctx context.Context, jobID int64) ([]domain.JobParameter, error)
	ListData(ctx context.Context, jobID int64) ([]domain.JobData, error)
	DownloadData(ctx context.Context, dataID int64, w io.Writer) error
	// UploadData creates a job data record and attaches content to it.
	UploadData(ctx context.Context, jobID int64, key, filename string, content []byte) (*domain.JobData, error)
	UpdateStatus(ctx context.Context, jobID int64, status, progress int, comment string) error
}

// PropertyRepository manages annotation properties.
type PropertyRepository interface {
	ListByAnnotation(ctx context.Context, annotationID int64) ([]domain.Property, error)
	Create(ctx context.Context, annotationID int64, key, value string) (*domain.Property, error)
	Update(ctx context.Context, annotationID int64, prop domain.Property) error
}

// TermRepository manages ontology terms.
type TermRepository interface {
	ListByOntology(ctx context.Context, ontologyID int64) ([]domain.Term, error)
	Create(ctx context.Context, term domain.Term) (*domain.Term, error)
	Delete(ctx context.Context, id int64) error
}

// AnalysisRepository persists analysis runs.
type AnalysisRepository interface {
	Create(ctx context.Context, run *domain.AnalysisRun) error
	UpdateProgress(ctx context.Context, id string, status domain.RunStatus, progress int, comment string) error
	Complete(ctx context.Context, id string, stats []domain.AnnotationStats) error
	Fail(ctx context.Context, id string, reason string) error
	GetByID(ctx context.Context, id string) (*domain.AnalysisRun, error)
	List(ctx context.Context, limit, offset int) ([]domain.AnalysisRun, error)
}
