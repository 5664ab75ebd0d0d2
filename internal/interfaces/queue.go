package interfaces

import (
	"context"

	"github.com/ternarybob/stash/internal/models"
)

// JobQueue is the blob operation surface the HTTP handlers sit on.
type JobQueue interface {
	Upload(blob *models.Blob) (*models.JobMetadata, error)
	Download(ctx context.Context, blob *models.Blob) ([]byte, *models.JobMetadata, error)
	Delete(ctx context.Context, blob *models.Blob) (*models.JobMetadata, error)
	GetJobMetadata(ctx context.Context, namespace, key string) (*models.JobMetadata, error)
	GetBlobMetadata(ctx context.Context, namespace, key string, op models.OperationType) (*models.Blob, error)
	Cancel(jobID string) (*models.JobMetadata, error)
	Stats() map[string]int
}
