package http

import (
	"github.com/nats-io/nats.go"

	"github.com/cellsia/S-Show-Region-Stats/internal/adapters/postgres"
	"github.com/cellsia/S-Show-Region-Stats/internal/adapters/valkey"
	"github.com/cellsia/S-Show-Region-Stats/internal/core/usecases"
	"github.com/cellsia/S-Show-Region-Stats/internal/pkg/config"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Classification *usecases.ClassificationService
	Annotations    *usecases.AnnotationService
	Analyses       *usecases.AnalysisService
	// Defaults fill the fields an analysis request leaves unset.
	Defaults config.AnalysisConfig
	NATS     *nats.Conn
	DB       *postgres.DB
	Cache    *valkey.Cache
}
