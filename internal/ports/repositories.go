package ports

import (
	"context"

	"github.com/longregen/reprompt/internal/domain/models"
)

// ArtifactSink is a write-only store for generated images.
type ArtifactSink interface {
	// Put stores data under key and returns where it can be found.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// SinkFactory resolves an output location to a sink.
type SinkFactory interface {
	Open(ctx context.Context, location string) (ArtifactSink, error)
}

// RunRepository archives submitted searches and their results.
type RunRepository interface {
	Create(ctx context.Context, run *models.SearchRun) error
	UpdateStatus(ctx context.Context, id string, status models.RunStatus, errMsg string) error
	SaveResult(ctx context.Context, id string, result *models.RunResult) error
	GetByID(ctx context.Context, id string) (*models.SearchRun, error)
	List(ctx context.Context, limit, offset int) ([]*models.SearchRun, error)
}

// IDGenerator generates unique IDs for entities
type IDGenerator interface {
	// GenerateRunID generates a new search run ID (sr_xxx)
	GenerateRunID() string

	// GenerateArtifactID generates a new artifact ID (img_xxx)
	GenerateArtifactID() string
}
