package cytomine

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/cellsia/S-Show-Region-Stats/internal/core/domain"
)

// JobRepo implements ports.JobRepository over the REST API.
type JobRepo struct {
	c *Client
}

// NewJobRepo creates a new JobRepo.
func NewJobRepo(c *Client) *JobRepo {
	return &JobRepo{c: c}
}

func (r *JobRepo) ListByProject(ctx context.Context, projectID int64) ([]domain.Job, error) {
	q := url.Values{}
	q.Set("project", strconv.FormatInt(projectID, 10))

	var out collection[domain.Job]
	if err := r.c.getJSON(ctx, "job.list", "job.json", q, &out); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return out.Collection, nil
}

func (r *JobRepo) ListParameters(ctx context.Context, jobID int64) ([]domain.JobParameter, error) {
	var out collection[domain.JobParameter]
	if err := r.c.getJSON(ctx, "jobparameter.list", fmt.Sprintf("job/%d/jobparameter.json", jobID), nil, &out); err != nil {
		return nil, fmt.Errorf("list job %d parameters: %w", jobID, err)
	}
	return out.Collection, nil
}

func (r *JobRepo) ListData(ctx context.Context, jobID int64) ([]domain.JobData, error) {
	var out collection[domain.JobData]
	if err := r.c.getJSON(ctx, "jobdata.list", fmt.Sprintf("job/%d/jobdata.json", jobID), nil, &out); err != nil {
		return nil, fmt.Errorf("list job %d data: %w", jobID, err)
	}
	return out.Collection, nil
}

// DownloadData streams the content of a job data file into w.
func (r *JobRepo) DownloadData(ctx context.Context, dataID int64, w io.Writer) error {
	req, err := r.c.newRequest(ctx, http.MethodGet, fmt.Sprintf("jobdata/%d/download", dataID), nil, nil, "", "")
	if err != nil {
		return err
	}
	body, err := r.c.do(req, "jobdata.download")
	if err != nil {
		return fmt.Errorf("download job data %d: %w", dataID, err)
	}
	defer body.Close()

	if _, err := io.Copy(w, body); err != nil {
		return fmt.Errorf("download job data %d: %w", dataID, err)
	}
	return nil
}

// UploadData creates the job data record, then uploads content as a
// multipart file.
func (r *JobRepo) UploadData(ctx context.Context, jobID int64, key, filename string, content []byte) (*domain.JobData, error) {
	in := domain.JobData{JobID: jobID, Key: key, Filename: filename}
	var out struct {
		JobData domain.JobData `json:"jobdata"`
	}
	if err := r.c.sendJSON(ctx, "jobdata.create", http.MethodPost, "jobdata.json", in, &out); err != nil {
		return nil, fmt.Errorf("create job data %s: %w", filename, err)
	}
	data := out.JobData

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("files[]", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(content); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	sum := md5.Sum(buf.Bytes())
	req, err := r.c.newRequest(ctx, http.MethodPost, fmt.Sprintf("jobdata/%d/upload", data.ID), nil,
		bytes.NewReader(buf.Bytes()), mw.FormDataContentType(), hex.EncodeToString(sum[:]))
	if err != nil {
		return nil, err
	}
	body, err := r.c.do(req, "jobdata.upload")
	if err != nil {
		return nil, fmt.Errorf("upload job data %d: %w", data.ID, err)
	}
	_, _ = io.Copy(io.Discard, body)
	body.Close()

	return &data, nil
}

// UpdateStatus sets the job status, progress and status comment.
func (r *JobRepo) UpdateStatus(ctx context.Context, jobID int64, status, progress int, comment string) error {
	in := domain.Job{ID: jobID, Status: status, Progress: progress, StatusComment: comment}
	if err := r.c.sendJSON(ctx, "job.update", http.MethodPut, fmt.Sprintf("job/%d.json", jobID), in, nil); err != nil {
		return fmt.Errorf("update job %d: %w", jobID, err)
	}
	return nil
}
