package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/stash/internal/common"
	"github.com/ternarybob/stash/internal/interfaces"
	"github.com/ternarybob/stash/internal/models"
)

// Queue is the admission-controlled job queue. Uploads run
// asynchronously on goroutines owned by the queue, bounded by
// max_jobs running and max_pending_jobs waiting; when both bounds are
// reached new uploads are refused. Downloads and deletes run
// synchronously and bypass admission, but still leave a job record
// behind for audit.
type Queue struct {
	config *common.Config
	logger arbor.ILogger
	blobs  interfaces.BlobStore
	meta   interfaces.MetadataStore

	mu      sync.Mutex
	running map[uuid.UUID]*Job
	pending []*Job
	closed  bool

	// Slots reserved by uploads that are between admission and
	// placement. Counted against both caps so concurrent uploads
	// cannot overrun them while the job row is being written.
	reservedRunning int
	reservedPending int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	pruner sync.WaitGroup
}

// NewQueue builds the queue. Start launches the pruner.
func NewQueue(config *common.Config, logger arbor.ILogger, blobs interfaces.BlobStore, meta interfaces.MetadataStore) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		config:  config,
		logger:  logger,
		blobs:   blobs,
		meta:    meta,
		running: make(map[uuid.UUID]*Job),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the background pruner loop.
func (q *Queue) Start() {
	q.pruner.Add(1)
	go func() {
		defer q.pruner.Done()
		ticker := time.NewTicker(q.config.PruneInterval())
		defer ticker.Stop()
		for {
			select {
			case <-q.ctx.Done():
				return
			case <-ticker.C:
				q.prune()
			}
		}
	}()

	q.logger.Info().
		Int("max_jobs", q.config.Storage.MaxJobs).
		Int("max_pending_jobs", q.config.Storage.MaxPendingJobs).
		Str("blob_max_age", q.config.Storage.BlobMaxAge).
		Msg("Job queue started")
}

// Upload admits an asynchronous upload job. When the running set is
// full the job waits in the pending queue; when both are full no job is
// created or persisted and a ServerLimitError comes back.
func (q *Queue) Upload(blob *models.Blob) (*models.JobMetadata, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, fmt.Errorf("queue is closed")
	}

	// Reserve the slot before the job row is written. A refusal must
	// leave no record behind, and the reservation keeps concurrent
	// uploads from overrunning either cap while Create runs unlocked.
	runNow := len(q.running)+q.reservedRunning < q.config.Storage.MaxJobs
	if !runNow && len(q.pending)+q.reservedPending >= q.config.Storage.MaxPendingJobs {
		limit := q.config.Storage.MaxPendingJobs
		current := len(q.pending) + q.reservedPending
		q.mu.Unlock()
		return nil, models.NewServerLimitError(limit, current)
	}
	if runNow {
		q.reservedRunning++
	} else {
		q.reservedPending++
	}
	q.mu.Unlock()

	job := NewJob(q.ctx, q.config.UploadTimeout(), blob, q.blobs, q.meta, q.logger)

	if err := job.Create(); err != nil {
		q.unreserve(runNow)
		job.Close()
		return job.Metadata(), err
	}

	// Snapshot before launch so the caller sees the admission-time
	// record, not a race with the running goroutine.
	metadata := job.Metadata()

	q.mu.Lock()
	if q.closed {
		q.releaseLocked(runNow)
		q.mu.Unlock()
		job.Cancel()
		return job.Metadata(), fmt.Errorf("queue is closed")
	}
	q.releaseLocked(runNow)
	if runNow {
		q.running[job.ID] = job
		q.mu.Unlock()
		q.launch(job)
	} else {
		q.pending = append(q.pending, job)
		q.mu.Unlock()
	}

	return metadata, nil
}

// unreserve drops a reservation taken in Upload.
func (q *Queue) unreserve(runNow bool) {
	q.mu.Lock()
	q.releaseLocked(runNow)
	q.mu.Unlock()
}

func (q *Queue) releaseLocked(runNow bool) {
	if runNow {
		q.reservedRunning--
	} else {
		q.reservedPending--
	}
}

// Download reads a blob synchronously. The operation is not admission
// controlled but still records a job.
func (q *Queue) Download(ctx context.Context, blob *models.Blob) ([]byte, *models.JobMetadata, error) {
	job := NewJob(ctx, q.config.DownloadTimeout(), blob, q.blobs, q.meta, q.logger)
	defer job.Close()

	if !q.blobs.Exists(blob.Path) {
		return nil, nil, models.NewPathNotFoundError(blob.Namespace, blob.Key)
	}

	if err := job.Create(); err != nil {
		return nil, job.Metadata(), err
	}
	if err := job.Run(); err != nil {
		return nil, job.Metadata(), err
	}
	return job.Result(), job.Metadata(), nil
}

// Delete removes a blob synchronously. Not admission controlled; the
// job record is kept for audit.
func (q *Queue) Delete(ctx context.Context, blob *models.Blob) (*models.JobMetadata, error) {
	job := NewJob(ctx, q.config.DownloadTimeout(), blob, q.blobs, q.meta, q.logger)
	defer job.Close()

	if !q.blobs.Exists(blob.Path) {
		return nil, models.NewPathNotFoundError(blob.Namespace, blob.Key)
	}

	if err := job.Create(); err != nil {
		return job.Metadata(), err
	}
	if err := job.Run(); err != nil {
		return job.Metadata(), err
	}
	return job.Metadata(), nil
}

// GetJobMetadata returns the persisted job record for a path.
func (q *Queue) GetJobMetadata(ctx context.Context, namespace, key string) (*models.JobMetadata, error) {
	path := models.BlobPath(namespace, key)
	result := q.meta.Select(ctx, map[string]interface{}{"path": path})
	if result.Err != nil {
		return nil, result.Err
	}
	if len(result.Data) == 0 {
		return nil, models.NewPathNotFoundError(namespace, key)
	}
	return result.Data[0], nil
}

// GetBlobMetadata projects the persisted job record for a path into a
// blob envelope shaped for the requested operation. Pure metadata; the
// blob bytes themselves may already be gone.
func (q *Queue) GetBlobMetadata(ctx context.Context, namespace, key string, op models.OperationType) (*models.Blob, error) {
	metadata, err := q.GetJobMetadata(ctx, namespace, key)
	if err != nil {
		return nil, err
	}
	return metadata.ToBlob(op), nil
}

// Cancel stops a running or pending job by id. A job that has already
// reached a terminal status, or an unknown id, is a JobNotFoundError.
func (q *Queue) Cancel(jobID string) (*models.JobMetadata, error) {
	id, err := uuid.Parse(jobID)
	if err != nil {
		return nil, models.NewJobNotFoundError(jobID)
	}

	q.mu.Lock()
	job, ok := q.running[id]
	if !ok {
		for i, pending := range q.pending {
			if pending.ID == id {
				job = pending
				q.pending = append(q.pending[:i], q.pending[i+1:]...)
				break
			}
		}
	}
	q.mu.Unlock()

	if job == nil || !job.Cancel() {
		return nil, models.NewJobNotFoundError(jobID)
	}
	return job.Metadata(), nil
}

// Close stops admission, cancels everything still waiting, and waits
// for running jobs to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, job := range pending {
		job.Cancel()
	}

	// Cancel the queue context before waiting so running jobs observe
	// shutdown at their next suspension point instead of running out
	// their timeouts.
	q.cancel()
	q.wg.Wait()
	q.pruner.Wait()

	q.mu.Lock()
	for _, job := range q.running {
		job.Close()
	}
	q.running = make(map[uuid.UUID]*Job)
	q.mu.Unlock()

	q.logger.Info().Msg("Job queue stopped")
}

// launch runs an admitted job on its own goroutine.
func (q *Queue) launch(job *Job) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		if err := job.Run(); err != nil {
			q.logger.Debug().Str("job_id", job.ID.String()).Err(err).Msg("Job finished with error")
		}
	}()
}

// prune is one tick of the background loop: reap finished jobs, promote
// waiting jobs into freed slots, and expire old blobs.
func (q *Queue) prune() {
	q.mu.Lock()
	// Terminal jobs release their slot on the first tick; the durable
	// metadata row remains. Blob expiry runs separately off the store's
	// write timestamps rather than the job records.
	for id, job := range q.running {
		if job.Status().IsTerminal() {
			job.Close()
			delete(q.running, id)
		}
	}

	var promoted []*Job
	for len(q.running)+q.reservedRunning < q.config.Storage.MaxJobs && len(q.pending) > 0 {
		job := q.pending[0]
		q.pending = q.pending[1:]
		if job.Status().IsTerminal() {
			job.Close()
			continue
		}
		q.running[job.ID] = job
		promoted = append(promoted, job)
	}
	q.mu.Unlock()

	for _, job := range promoted {
		q.launch(job)
	}

	if _, err := q.blobs.Sweep(q.config.BlobMaxAge()); err != nil {
		q.logger.Warn().Err(err).Msg("Blob sweep failed")
	}
}

// Stats reports the queue occupancy for the status endpoint.
func (q *Queue) Stats() map[string]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return map[string]int{
		"running_jobs":     len(q.running),
		"pending_jobs":     len(q.pending),
		"max_jobs":         q.config.Storage.MaxJobs,
		"max_pending_jobs": q.config.Storage.MaxPendingJobs,
	}
}
