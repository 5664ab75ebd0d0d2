package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/stash/internal/interfaces"
	"github.com/ternarybob/stash/internal/models"
)

// Job binds one blob request to one execution. Every status transition
// is persisted through the metadata store before the next action runs,
// so the durable record never lags the in-memory state.
type Job struct {
	ID uuid.UUID

	blob   *models.Blob
	blobs  interfaces.BlobStore
	meta   interfaces.MetadataStore
	logger arbor.ILogger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	metadata *models.JobMetadata
	result   []byte
}

// NewJob builds a job for the given blob request with a bounded
// execution window. Create must be called before Run.
func NewJob(parent context.Context, timeout time.Duration, blob *models.Blob, blobs interfaces.BlobStore, meta interfaces.MetadataStore, logger arbor.ILogger) *Job {
	jobCtx, cancel := context.WithTimeout(parent, timeout)
	metadata := models.NewJobMetadata(blob)
	return &Job{
		ID:       metadata.ID,
		blob:     blob,
		blobs:    blobs,
		meta:     meta,
		logger:   logger,
		ctx:      jobCtx,
		cancel:   cancel,
		metadata: metadata,
	}
}

// Metadata returns a snapshot of the current persisted state.
func (j *Job) Metadata() *models.JobMetadata {
	j.mu.Lock()
	defer j.mu.Unlock()
	snapshot := *j.metadata
	return &snapshot
}

// Status returns the current status.
func (j *Job) Status() models.JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.metadata.Status
}

// Create validates the request, persists the CREATING row and prepares
// the namespace. The job stays CREATING until its operation makes the
// first transition, so a queued job can still be cancelled.
func (j *Job) Create() error {
	if err := j.blob.Validate(); err != nil {
		j.fail(fmt.Sprintf("Job %s create rejected", j.ID), err)
		return err
	}

	if err := j.persist(j.Metadata()); err != nil {
		return err
	}

	if err := j.blobs.MakeDirs(j.blob.Namespace); err != nil {
		j.fail(fmt.Sprintf("Job %s namespace setup failed", j.ID), err)
		return err
	}

	return nil
}

// Run executes the job's operation. Upload writes the request bytes,
// download loads them into the job result, delete removes them. An
// absent path on download or delete is a PathNotFoundError and does not
// mark the job FAILED.
func (j *Job) Run() error {
	if err := j.ctx.Err(); err != nil {
		return err
	}

	switch j.blob.OperationType {
	case models.OperationUpload:
		return j.runUpload()
	case models.OperationDownload:
		return j.runDownload()
	case models.OperationDelete:
		return j.runDelete()
	default:
		err := fmt.Errorf("unsupported operation %q", j.blob.OperationType)
		j.fail(fmt.Sprintf("Job %s rejected", j.ID), err)
		return err
	}
}

func (j *Job) runUpload() error {
	if err := j.transition(models.JobStatusWriting, fmt.Sprintf("Job %s writing blob %s", j.ID, j.blob.Path)); err != nil {
		return err
	}

	if err := j.checkCancelled(); err != nil {
		return err
	}

	if err := j.blobs.Write(j.blob.Path, j.blob.Data); err != nil {
		j.fail(fmt.Sprintf("Job %s write failed", j.ID), err)
		return err
	}

	return j.transition(models.JobStatusDone, fmt.Sprintf("Job %s complete", j.ID))
}

func (j *Job) runDownload() error {
	if !j.blobs.Exists(j.blob.Path) {
		return models.NewPathNotFoundError(j.blob.Namespace, j.blob.Key)
	}

	if err := j.transition(models.JobStatusReading, fmt.Sprintf("Job %s reading blob %s", j.ID, j.blob.Path)); err != nil {
		return err
	}

	if err := j.checkCancelled(); err != nil {
		return err
	}

	data, err := j.blobs.Read(j.blob.Path)
	if err != nil {
		j.fail(fmt.Sprintf("Job %s read failed", j.ID), err)
		return err
	}

	j.mu.Lock()
	j.result = data
	j.mu.Unlock()

	return j.transition(models.JobStatusDone, fmt.Sprintf("Job %s complete", j.ID))
}

func (j *Job) runDelete() error {
	if !j.blobs.Exists(j.blob.Path) {
		return models.NewPathNotFoundError(j.blob.Namespace, j.blob.Key)
	}

	if err := j.transition(models.JobStatusDeleting, fmt.Sprintf("Job %s deleting blob %s", j.ID, j.blob.Path)); err != nil {
		return err
	}

	if err := j.checkCancelled(); err != nil {
		return err
	}

	if err := j.blobs.Remove(j.blob.Path); err != nil {
		j.fail(fmt.Sprintf("Job %s delete failed", j.ID), err)
		return err
	}

	return j.transition(models.JobStatusDone, fmt.Sprintf("Job %s complete", j.ID))
}

// Result returns the bytes a completed download produced.
func (j *Job) Result() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

// Cancel stops the job if it is still in a cancellable state. Returns
// false when the job has already reached a terminal status.
func (j *Job) Cancel() bool {
	j.mu.Lock()
	if !j.metadata.Status.IsCancellable() {
		j.mu.Unlock()
		return false
	}
	next := j.metadata.WithStatus(models.JobStatusCancelled, fmt.Sprintf("Job %s cancelled", j.ID))
	j.metadata = next
	j.mu.Unlock()

	j.cancel()
	if result := j.meta.UpsertByPath(j.ctx, []*models.JobMetadata{next}); result.Err != nil {
		// Persist with a fresh context; the job context is already
		// cancelled at this point.
		j.meta.UpsertByPath(context.Background(), []*models.JobMetadata{next})
	}
	j.logger.Info().Str("job_id", j.ID.String()).Str("path", j.blob.Path).Msg("Job cancelled")
	return true
}

// Close releases the job's context. The job itself runs on a goroutine
// owned by the queue, so no other resources need reclaiming.
func (j *Job) Close() {
	j.cancel()
}

// checkCancelled bails out without touching the metadata when Cancel
// already won the race and wrote CANCELLED.
func (j *Job) checkCancelled() error {
	if err := j.ctx.Err(); err != nil {
		return fmt.Errorf("job %s stopped: %w", j.ID, err)
	}
	return nil
}

// transition persists the next status before any later action runs.
// Terminal states are absorbing.
func (j *Job) transition(status models.JobStatus, context string) error {
	j.mu.Lock()
	if j.metadata.Status.IsTerminal() {
		j.mu.Unlock()
		return fmt.Errorf("job %s already %s", j.ID, j.metadata.Status)
	}
	next := j.metadata.WithStatus(status, context)
	j.metadata = next
	j.mu.Unlock()

	return j.persist(next)
}

// fail records a FAILED row with the error text. Best effort: if the
// metadata store itself is down there is nowhere left to record it.
func (j *Job) fail(context string, err error) {
	j.mu.Lock()
	if j.metadata.Status.IsTerminal() {
		j.mu.Unlock()
		return
	}
	next := j.metadata.WithFailure(context, err)
	j.metadata = next
	j.mu.Unlock()

	if persistErr := j.persist(next); persistErr != nil {
		j.logger.Error().Err(persistErr).Str("job_id", j.ID.String()).Msg("Failed to persist job failure")
	}
	j.logger.Warn().Str("job_id", j.ID.String()).Str("path", j.blob.Path).Err(err).Msg("Job failed")
}

func (j *Job) persist(row *models.JobMetadata) error {
	result := j.meta.UpsertByPath(j.ctx, []*models.JobMetadata{row})
	if result.Err != nil {
		return fmt.Errorf("failed to persist job %s: %w", j.ID, result.Err)
	}
	return nil
}
