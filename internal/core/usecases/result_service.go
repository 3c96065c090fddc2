package usecases

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/cellsia/S-Show-Region-Stats/internal/core/domain"
	"github.com/cellsia/S-Show-Region-Stats/internal/core/ports"
	"github.com/cellsia/S-Show-Region-Stats/internal/pkg/metrics"
)

// ResultService collects detection files attached to the jobs of a project.
type ResultService struct {
	jobs     ports.JobRepository
	cache    ports.CacheService
	cacheTTL int
}

// NewResultService creates a new ResultService. cache may be nil.
func NewResultService(jobs ports.JobRepository, cache ports.CacheService, cacheTTL int) *ResultService {
	if cacheTTL <= 0 {
		cacheTTL = 3600
	}
	return &ResultService{jobs: jobs, cache: cache, cacheTTL: cacheTTL}
}

// IsDetectionFile reports whether a job data filename holds detections.
func IsDetectionFile(filename string) bool {
	return strings.Contains(filename, "detections") && strings.HasSuffix(filename, ".json")
}

// Collect walks every job of the project and returns the detection files
// that can be tied to an image. Unreadable files and jobs are skipped.
func (s *ResultService) Collect(ctx context.Context, projectID int64) ([]domain.DetectionResult, error) {
	jobs, err := s.jobs.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	var results []domain.DetectionResult
	for _, job := range jobs {
		rs, err := s.collectJob(ctx, job.ID)
		if err != nil {
			slog.Warn("skipping job", "job", job.ID, "error", err)
			continue
		}
		results = append(results, rs...)
	}
	return results, nil
}

func (s *ResultService) collectJob(ctx context.Context, jobID int64) ([]domain.DetectionResult, error) {
	params, err := s.jobs.ListParameters(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("list parameters: %w", err)
	}
	data, err := s.jobs.ListData(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("list data: %w", err)
	}

	var (
		imageID int64
		termIDs []int64
	)
	for _, p := range params {
		switch p.Name {
		case domain.ParamImage:
			imageID, err = strconv.ParseInt(strings.TrimSpace(p.Value), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parameter %s: %w", p.Name, err)
			}
		case domain.ParamTerms:
			termIDs, err = domain.ParseIDList(p.Value)
			if err != nil {
				return nil, fmt.Errorf("parameter %s: %w", p.Name, err)
			}
		}
	}

	var results []domain.DetectionResult
	for _, d := range data {
		if !IsDetectionFile(d.Filename) {
			continue
		}
		if imageID == 0 {
			metrics.DetectionFilesLoaded.WithLabelValues("no_image").Inc()
			slog.Warn("detection file has no image parameter", "job", jobID, "file", d.Filename)
			continue
		}

		file, err := s.Load(ctx, d.ID)
		if err != nil {
			metrics.DetectionFilesLoaded.WithLabelValues("error").Inc()
			slog.Warn("skipping detection file", "job", jobID, "file", d.Filename, "error", err)
			continue
		}
		metrics.DetectionFilesLoaded.WithLabelValues("ok").Inc()

		results = append(results, domain.DetectionResult{
			JobID:     jobID,
			JobDataID: d.ID,
			ImageID:   imageID,
			TermIDs:   termIDs,
			Filename:  d.Filename,
			File:      file,
		})
	}
	return results, nil
}

func cacheKey(dataID int64) string {
	return "jobdata:" + strconv.FormatInt(dataID, 10)
}

// Load downloads and decodes one detection file, going through the cache.
func (s *ResultService) Load(ctx context.Context, dataID int64) (domain.DetectionFile, error) {
	var file domain.DetectionFile

	key := cacheKey(dataID)
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key); err == nil {
			if err := json.Unmarshal(raw, &file); err == nil {
				metrics.CacheHits.WithLabelValues("jobdata").Inc()
				return file, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("jobdata").Inc()
	}

	var buf bytes.Buffer
	if err := s.jobs.DownloadData(ctx, dataID, &buf); err != nil {
		return file, fmt.Errorf("download job data %d: %w", dataID, err)
	}
	if err := json.Unmarshal(buf.Bytes(), &file); err != nil {
		return file, fmt.Errorf("decode job data %d: %w", dataID, err)
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, key, buf.Bytes(), s.cacheTTL)
	}
	return file, nil
}

// Cleanup drops the cached copies of downloaded detection files.
func (s *ResultService) Cleanup(ctx context.Context, results []domain.DetectionResult) {
	if s.cache == nil || len(results) == 0 {
		return
	}
	keys := make([]string, 0, len(results))
	for _, r := range results {
		keys = append(keys, cacheKey(r.JobDataID))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		slog.Debug("cache cleanup failed", "files", len(keys), "error", err)
	}
}
