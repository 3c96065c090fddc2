package ports

import (
	"context"
	"errors"

	"github.com/cellsia/S-Show-Region-Stats/internal/core/domain"
)

// ErrNotFound is returned by repositories when a record does not exist.
var ErrNotFound = errors.New("not found")

// EventPublisher publishes analysis events to a message broker.
type EventPublisher interface {
	PublishAnalysisRequest(ctx context.Context, req *domain.AnalysisRequest) error
	PublishProgress(ctx context.Context, p *domain.Progress) error
	PublishAnalysisCompleted(ctx context.Context, run *domain.AnalysisRun) error
}

// EventSubscriber subscribes to analysis events from a message broker.
type EventSubscriber interface {
	SubscribeAnalysisRequests(ctx context.Context, handler func(ctx context.Context, req *domain.AnalysisRequest) error) error
	SubscribeProgress(ctx context.Context, handler func(ctx context.Context, p *domain.Progress) error) error
}

// CacheService stores downloaded detection files between pipeline stages.
// Get reports a missing key as ErrNotFound.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, keys ...string) error
}
