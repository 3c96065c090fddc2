package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cellsia/S-Show-Region-Stats/internal/core/domain"
	"github.com/cellsia/S-Show-Region-Stats/internal/core/ports"
)

// AnalysisRepo implements ports.AnalysisRepository with pgx. Runs live in
// analysis_runs, their per-annotation stats in annotation_stats.
type AnalysisRepo struct {
	db *DB
}

// NewAnalysisRepo creates a new AnalysisRepo.
func NewAnalysisRepo(db *DB) *AnalysisRepo {
	return &AnalysisRepo{db: db}
}

const runColumns = `id, job_id, project_id, status, progress, status_comment, request, error,
		       created_at, updated_at, finished_at`

// Create inserts a new run.
func (r *AnalysisRepo) Create(ctx context.Context, run *domain.AnalysisRun) error {
	req, err := json.Marshal(run.Request)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = now
	}

	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO analysis_runs (id, job_id, project_id, status, progress, status_comment, request, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, run.ID, run.JobID, run.ProjectID, string(run.Status), run.Progress, run.StatusComment,
		req, run.Error, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// UpdateProgress records the latest stage of a run.
func (r *AnalysisRepo) UpdateProgress(ctx context.Context, id string, status domain.RunStatus, progress int, comment string) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE analysis_runs
		SET status = $2, progress = $3, status_comment = $4, updated_at = now()
		WHERE id = $1
	`, id, string(status), progress, comment)
	if err != nil {
		return fmt.Errorf("update run %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// Complete marks a run succeeded and stores its stats in one transaction.
func (r *AnalysisRepo) Complete(ctx context.Context, id string, stats []domain.AnnotationStats) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx, `
		UPDATE analysis_runs
		SET status = $2, progress = 100, status_comment = 'Terminated', error = '',
		    updated_at = now(), finished_at = now()
		WHERE id = $1
	`, id, string(domain.RunSucceeded))
	if err != nil {
		return fmt.Errorf("complete run %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM annotation_stats WHERE run_id = $1`, id); err != nil {
		return fmt.Errorf("clear stats: %w", err)
	}

	batch := &pgx.Batch{}
	for _, st := range stats {
		st.Inside = nil
		body, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("encode stats %d: %w", st.AnnotationID, err)
		}
		batch.Queue(`
			INSERT INTO annotation_stats (run_id, annotation_id, image_id, job_id, stats)
			VALUES ($1, $2, $3, $4, $5)
		`, id, st.AnnotationID, st.ImageID, st.JobID, body)
	}
	br := tx.SendBatch(ctx, batch)
	for range stats {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("batch close: %w", err)
	}

	return tx.Commit(ctx)
}

// Fail marks a run failed with a reason.
func (r *AnalysisRepo) Fail(ctx context.Context, id string, reason string) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE analysis_runs
		SET status = $2, error = $3, status_comment = $3, updated_at = now(), finished_at = now()
		WHERE id = $1
	`, id, string(domain.RunFailed), reason)
	if err != nil {
		return fmt.Errorf("fail run %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// GetByID returns a run with its stats.
func (r *AnalysisRepo) GetByID(ctx context.Context, id string) (*domain.AnalysisRun, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+runColumns+` FROM analysis_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT stats FROM annotation_stats WHERE run_id = $1 ORDER BY annotation_id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var st domain.AnnotationStats
		if err := json.Unmarshal(body, &st); err != nil {
			return nil, fmt.Errorf("decode stats: %w", err)
		}
		run.Stats = append(run.Stats, st)
	}
	return run, rows.Err()
}

// List returns runs newest first, without their stats.
func (r *AnalysisRepo) List(ctx context.Context, limit, offset int) ([]domain.AnalysisRun, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+runColumns+`
		FROM analysis_runs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.AnalysisRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func scanRun(row pgx.Row) (*domain.AnalysisRun, error) {
	var (
		run    domain.AnalysisRun
		status string
		req    []byte
	)
	if err := row.Scan(
		&run.ID, &run.JobID, &run.ProjectID, &status, &run.Progress, &run.StatusComment,
		&req, &run.Error, &run.CreatedAt, &run.UpdatedAt, &run.FinishedAt,
	); err != nil {
		return nil, err
	}
	run.Status = domain.RunStatus(status)
	if len(req) > 0 {
		if err := json.Unmarshal(req, &run.Request); err != nil {
			return nil, fmt.Errorf("decode request: %w", err)
		}
	}
	return &run, nil
}
