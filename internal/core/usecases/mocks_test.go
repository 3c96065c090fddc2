package usecases_test

import (
	"context"
	"io"
	"sync"

	"github.com/cellsia/S-Show-Region-Stats/internal/core/domain"
	"github.com/cellsia/S-Show-Region-Stats/internal/core/ports"
)

// --- Mock AnnotationRepository ---

type mockAnnotationRepo struct {
	listFn   func(ctx context.Context, filter domain.AnnotationFilter) ([]domain.Annotation, error)
	getFn    func(ctx context.Context, id int64) (*domain.Annotation, error)
	createFn func(ctx context.Context, ann domain.NewAnnotation) (*domain.Annotation, error)

	created []domain.NewAnnotation
	deleted []int64
}

func (m *mockAnnotationRepo) List(ctx context.Context, filter domain.AnnotationFilter) ([]domain.Annotation, error) {
	if m.listFn != nil {
		return m.listFn(ctx, filter)
	}
	return nil, nil
}

func (m *mockAnnotationRepo) GetByID(ctx context.Context, id int64) (*domain.Annotation, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, ports.ErrNotFound
}

func (m *mockAnnotationRepo) Create(ctx context.Context, ann domain.NewAnnotation) (*domain.Annotation, error) {
	m.created = append(m.created, ann)
	if m.createFn != nil {
		return m.createFn(ctx, ann)
	}
	return &domain.Annotation{ID: int64(1000 + len(m.created)), ImageID: ann.ImageID, Location: ann.Location}, nil
}

func (m *mockAnnotationRepo) Delete(ctx context.Context, id int64) error {
	m.deleted = append(m.deleted, id)
	return nil
}

// --- Mock JobRepository ---

type statusUpdate struct {
	jobID    int64
	status   int
	progress int
	comment  string
}

type upload struct {
	jobID    int64
	key      string
	filename string
	content  []byte
}

type mockJobRepo struct {
	listByProjectFn  func(ctx context.Context, projectID int64) ([]domain.Job, error)
	listParametersFn func(ctx context.Context, jobID int64) ([]domain.JobParameter, error)
	listDataFn       func(ctx context.Context, jobID int64) ([]domain.JobData, error)
	files            map[int64]string
	uploadErr        error

	downloads int
	uploads   []upload
	statuses  []statusUpdate
}

func (m *mockJobRepo) ListByProject(ctx context.Context, projectID int64) ([]domain.Job, error) {
	if m.listByProjectFn != nil {
		return m.listByProjectFn(ctx, projectID)
	}
	return nil, nil
}

func (m *mockJobRepo) ListParameters(ctx context.Context, jobID int64) ([]domain.JobParameter, error) {
	if m.listParametersFn != nil {
		return m.listParametersFn(ctx, jobID)
	}
	return nil, nil
}

func (m *mockJobRepo) ListData(ctx context.Context, jobID int64) ([]domain.JobData, error) {
	if m.listDataFn != nil {
		return m.listDataFn(ctx, jobID)
	}
	return nil, nil
}

func (m *mockJobRepo) DownloadData(ctx context.Context, dataID int64, w io.Writer) error {
	m.downloads++
	body, ok := m.files[dataID]
	if !ok {
		return ports.ErrNotFound
	}
	_, err := io.WriteString(w, body)
	return err
}

func (m *mockJobRepo) UploadData(ctx context.Context, jobID int64, key, filename string, content []byte) (*domain.JobData, error) {
	if m.uploadErr != nil {
		return nil, m.uploadErr
	}
	m.uploads = append(m.uploads, upload{jobID: jobID, key: key, filename: filename, content: content})
	return &domain.JobData{ID: int64(len(m.uploads)), JobID: jobID, Key: key, Filename: filename}, nil
}

func (m *mockJobRepo) UpdateStatus(ctx context.Context, jobID int64, status, progress int, comment string) error {
	m.statuses = append(m.statuses, statusUpdate{jobID: jobID, status: status, progress: progress, comment: comment})
	return nil
}

// --- Mock PropertyRepository ---

type mockPropertyRepo struct {
	existing  map[int64][]domain.Property
	createErr error

	created []domain.Property
	updated []domain.Property
}

func (m *mockPropertyRepo) ListByAnnotation(ctx context.Context, annotationID int64) ([]domain.Property, error) {
	return m.existing[annotationID], nil
}

func (m *mockPropertyRepo) Create(ctx context.Context, annotationID int64, key, value string) (*domain.Property, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	p := domain.Property{ID: int64(len(m.created) + 1), DomainIdent: annotationID, Key: key, Value: value}
	m.created = append(m.created, p)
	return &p, nil
}

func (m *mockPropertyRepo) Update(ctx context.Context, annotationID int64, prop domain.Property) error {
	m.updated = append(m.updated, prop)
	return nil
}

// --- Mock TermRepository ---

type mockTermRepo struct {
	terms   []domain.Term
	nextID  int64
	deleted []int64
}

func (m *mockTermRepo) ListByOntology(ctx context.Context, ontologyID int64) ([]domain.Term, error) {
	var out []domain.Term
	for _, t := range m.terms {
		if t.OntologyID == ontologyID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockTermRepo) Create(ctx context.Context, term domain.Term) (*domain.Term, error) {
	m.nextID++
	term.ID = m.nextID
	m.terms = append(m.terms, term)
	return &term, nil
}

func (m *mockTermRepo) Delete(ctx context.Context, id int64) error {
	m.deleted = append(m.deleted, id)
	return nil
}

// --- Mock AnalysisRepository ---

type mockAnalysisRepo struct {
	mu      sync.Mutex
	runs    map[string]*domain.AnalysisRun
	failErr error
}

func newMockAnalysisRepo() *mockAnalysisRepo {
	return &mockAnalysisRepo{runs: map[string]*domain.AnalysisRun{}}
}

func (m *mockAnalysisRepo) Create(ctx context.Context, run *domain.AnalysisRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

func (m *mockAnalysisRepo) UpdateProgress(ctx context.Context, id string, status domain.RunStatus, progress int, comment string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return ports.ErrNotFound
	}
	r.Status, r.Progress, r.StatusComment = status, progress, comment
	return nil
}

func (m *mockAnalysisRepo) Complete(ctx context.Context, id string, stats []domain.AnnotationStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return ports.ErrNotFound
	}
	r.Status, r.Progress, r.Stats = domain.RunSucceeded, 100, stats
	return nil
}

func (m *mockAnalysisRepo) Fail(ctx context.Context, id string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	r, ok := m.runs[id]
	if !ok {
		return ports.ErrNotFound
	}
	r.Status, r.Error = domain.RunFailed, reason
	return nil
}

func (m *mockAnalysisRepo) GetByID(ctx context.Context, id string) (*domain.AnalysisRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockAnalysisRepo) List(ctx context.Context, limit, offset int) ([]domain.AnalysisRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AnalysisRun
	for _, r := range m.runs {
		out = append(out, *r)
	}
	return out, nil
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	requestErr error

	requests  []domain.AnalysisRequest
	progress  []domain.Progress
	completed []domain.AnalysisRun
}

func (m *mockPublisher) PublishAnalysisRequest(ctx context.Context, req *domain.AnalysisRequest) error {
	if m.requestErr != nil {
		return m.requestErr
	}
	m.requests = append(m.requests, *req)
	return nil
}

func (m *mockPublisher) PublishProgress(ctx context.Context, p *domain.Progress) error {
	m.progress = append(m.progress, *p)
	return nil
}

func (m *mockPublisher) PublishAnalysisCompleted(ctx context.Context, run *domain.AnalysisRun) error {
	m.completed = append(m.completed, *run)
	return nil
}

// --- Mock CacheService ---

type mockCache struct {
	data map[string][]byte
}

func newMockCache() *mockCache {
	return &mockCache{data: map[string][]byte{}}
}

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	v, ok := m.data[key]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return v, nil
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	m.data[key] = value
	return nil
}

func (m *mockCache) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}
