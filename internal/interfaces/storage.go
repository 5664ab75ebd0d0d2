package interfaces

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ternarybob/stash/internal/models"
)

// TransactionResult carries the outcome of one metadata store call.
// Err is nil on success; Data holds the rows the call produced or
// touched.
type TransactionResult struct {
	Message string
	Data    []*models.JobMetadata
	Err     error
}

// MetadataStore is the durable path -> JobMetadata mapping. Every call
// runs inside its own transaction with bounded retries; a later write
// for the same path replaces the earlier row (path is unique).
type MetadataStore interface {
	Init(ctx context.Context) TransactionResult
	Select(ctx context.Context, filters map[string]interface{}) TransactionResult
	Insert(ctx context.Context, rows []*models.JobMetadata) TransactionResult
	Update(ctx context.Context, rows []*models.JobMetadata) TransactionResult
	UpsertByPath(ctx context.Context, rows []*models.JobMetadata) TransactionResult
	Delete(ctx context.Context, filters map[string]interface{}) TransactionResult
	Drop(ctx context.Context) TransactionResult
	Close() error
}

// BlobStore holds blob bytes addressed by their canonical path. The
// store is namespaced but flat: MakeDirs marks a namespace as present,
// it does not create a hierarchy.
type BlobStore interface {
	Exists(path string) bool
	MakeDirs(namespace string) error
	Write(path string, data []byte) error
	Read(path string) ([]byte, error)
	Remove(path string) error
	// Sweep removes blobs written more than maxAge ago and returns
	// the paths it removed.
	Sweep(maxAge time.Duration) ([]string, error)
	Close() error
}

// UserStore persists user accounts.
type UserStore interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id uuid.UUID) error
	Close() error
}
