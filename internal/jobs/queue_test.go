package jobs

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/stash/internal/common"
	"github.com/ternarybob/stash/internal/interfaces"
	"github.com/ternarybob/stash/internal/models"
)

func testConfig(maxJobs, maxPending int) *common.Config {
	config := common.NewDefaultConfig()
	config.Storage.MaxJobs = maxJobs
	config.Storage.MaxPendingJobs = maxPending
	config.Storage.PruneInterval = "10ms"
	config.Storage.BlobMaxAge = "1h"
	return config
}

func newTestQueue(t *testing.T, config *common.Config, store *memoryBlobStore, meta *memoryMetaStore) *Queue {
	t.Helper()
	queue := NewQueue(config, arbor.NewLogger(), store, meta)
	t.Cleanup(queue.Close)
	return queue
}

func waitForStatus(t *testing.T, meta *memoryMetaStore, path string, status models.JobStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		row := meta.row(path)
		return row != nil && row.Status == status
	}, 2*time.Second, 5*time.Millisecond, "path %s never reached %s", path, status)
}

func TestUploadRoundTrip(t *testing.T) {
	meta := newMemoryMetaStore()
	store := newMemoryBlobStore()
	queue := newTestQueue(t, testConfig(2, 2), store, meta)
	queue.Start()

	metadata, err := queue.Upload(uploadBlob("images", "logo.png", []byte("payload")))
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCreating, metadata.Status)

	waitForStatus(t, meta, "images/logo.png", models.JobStatusDone)

	data, result, err := queue.Download(context.Background(), models.NewBlob("images", "logo.png", "logo.png", models.OperationDownload))
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
	assert.Equal(t, models.JobStatusDone, result.Status)
}

func TestAdmissionRefusesWhenBothQueuesFull(t *testing.T) {
	meta := newMemoryMetaStore()
	store := newMemoryBlobStore()
	store.gate = make(chan struct{})

	queue := newTestQueue(t, testConfig(1, 1), store, meta)
	queue.Start()

	// First upload occupies the single running slot, blocked in Write.
	_, err := queue.Upload(uploadBlob("ns", "first", []byte("a")))
	require.NoError(t, err)
	waitForStatus(t, meta, "ns/first", models.JobStatusWriting)

	// Second upload waits in the pending queue.
	second, err := queue.Upload(uploadBlob("ns", "second", []byte("b")))
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCreating, second.Status)

	// Third upload is refused without creating a job record.
	_, err = queue.Upload(uploadBlob("ns", "third", []byte("c")))
	var limitErr *models.ServerLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 1, limitErr.Limit)
	assert.Nil(t, meta.row("ns/third"))

	// Releasing the gate drains both jobs through the pruner.
	close(store.gate)
	waitForStatus(t, meta, "ns/first", models.JobStatusDone)
	waitForStatus(t, meta, "ns/second", models.JobStatusDone)
}

func TestConcurrentUploadsRespectPendingCap(t *testing.T) {
	meta := newMemoryMetaStore()
	store := newMemoryBlobStore()
	store.gate = make(chan struct{})

	queue := newTestQueue(t, testConfig(1, 1), store, meta)
	queue.Start()

	_, err := queue.Upload(uploadBlob("ns", "running", []byte("x")))
	require.NoError(t, err)
	waitForStatus(t, meta, "ns/running", models.JobStatusWriting)

	// With the single running slot held, a burst of concurrent uploads
	// may fill exactly one pending slot; the rest are refused with no
	// record written.
	const burst = 8
	errs := make([]error, burst)
	var wg sync.WaitGroup
	for i := 0; i < burst; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = queue.Upload(uploadBlob("ns", fmt.Sprintf("burst-%d", i), []byte("y")))
		}(i)
	}
	wg.Wait()

	admitted := 0
	for i, err := range errs {
		if err == nil {
			admitted++
			continue
		}
		var limitErr *models.ServerLimitError
		require.ErrorAs(t, err, &limitErr)
		assert.Equal(t, 1, limitErr.Limit)
		assert.Nil(t, meta.row(fmt.Sprintf("ns/burst-%d", i)))
	}
	assert.Equal(t, 1, admitted)
	assert.LessOrEqual(t, queue.Stats()["pending_jobs"], 1)

	close(store.gate)
}

func TestPrunerReclaimsFinishedSlots(t *testing.T) {
	meta := newMemoryMetaStore()
	store := newMemoryBlobStore()
	queue := newTestQueue(t, testConfig(1, 5), store, meta)
	queue.Start()

	for _, key := range []string{"a", "b", "c"} {
		_, err := queue.Upload(uploadBlob("ns", key, []byte(key)))
		require.NoError(t, err)
	}

	for _, key := range []string{"a", "b", "c"} {
		waitForStatus(t, meta, "ns/"+key, models.JobStatusDone)
	}

	require.Eventually(t, func() bool {
		stats := queue.Stats()
		return stats["running_jobs"] == 0 && stats["pending_jobs"] == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCancelRunningJob(t *testing.T) {
	meta := newMemoryMetaStore()
	store := newMemoryBlobStore()
	store.gate = make(chan struct{})

	queue := newTestQueue(t, testConfig(1, 1), store, meta)
	queue.Start()

	metadata, err := queue.Upload(uploadBlob("ns", "held", []byte("x")))
	require.NoError(t, err)
	waitForStatus(t, meta, "ns/held", models.JobStatusWriting)

	cancelled, err := queue.Cancel(metadata.ID.String())
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, cancelled.Status)
	waitForStatus(t, meta, "ns/held", models.JobStatusCancelled)

	close(store.gate)
}

func TestCancelPendingJob(t *testing.T) {
	meta := newMemoryMetaStore()
	store := newMemoryBlobStore()
	store.gate = make(chan struct{})

	queue := newTestQueue(t, testConfig(1, 1), store, meta)
	queue.Start()

	_, err := queue.Upload(uploadBlob("ns", "running", []byte("x")))
	require.NoError(t, err)
	waitForStatus(t, meta, "ns/running", models.JobStatusWriting)

	pending, err := queue.Upload(uploadBlob("ns", "queued", []byte("y")))
	require.NoError(t, err)

	cancelled, err := queue.Cancel(pending.ID.String())
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, cancelled.Status)

	close(store.gate)
	waitForStatus(t, meta, "ns/running", models.JobStatusDone)

	// The cancelled job never runs.
	row := meta.row("ns/queued")
	require.NotNil(t, row)
	assert.Equal(t, models.JobStatusCancelled, row.Status)
}

func TestCancelUnknownJob(t *testing.T) {
	meta := newMemoryMetaStore()
	store := newMemoryBlobStore()
	queue := newTestQueue(t, testConfig(1, 1), store, meta)

	_, err := queue.Cancel("not-a-uuid")
	var notFound *models.JobNotFoundError
	assert.ErrorAs(t, err, &notFound)

	_, err = queue.Cancel("00000000-0000-0000-0000-000000000000")
	assert.ErrorAs(t, err, &notFound)
}

func TestCancelFinishedJob(t *testing.T) {
	meta := newMemoryMetaStore()
	store := newMemoryBlobStore()
	queue := newTestQueue(t, testConfig(1, 1), store, meta)
	queue.Start()

	metadata, err := queue.Upload(uploadBlob("ns", "done", []byte("x")))
	require.NoError(t, err)
	waitForStatus(t, meta, "ns/done", models.JobStatusDone)

	_, err = queue.Cancel(metadata.ID.String())
	var notFound *models.JobNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestDownloadMissingPath(t *testing.T) {
	meta := newMemoryMetaStore()
	store := newMemoryBlobStore()
	queue := newTestQueue(t, testConfig(1, 1), store, meta)

	_, _, err := queue.Download(context.Background(), models.NewBlob("ns", "absent", "absent", models.OperationDownload))
	var notFound *models.PathNotFoundError
	require.ErrorAs(t, err, &notFound)

	// No job record is created for a request that never had a blob.
	assert.Nil(t, meta.row("ns/absent"))
}

func TestDeleteRoundTrip(t *testing.T) {
	meta := newMemoryMetaStore()
	store := newMemoryBlobStore()
	queue := newTestQueue(t, testConfig(1, 1), store, meta)
	queue.Start()

	_, err := queue.Upload(uploadBlob("ns", "key", []byte("x")))
	require.NoError(t, err)
	waitForStatus(t, meta, "ns/key", models.JobStatusDone)

	metadata, err := queue.Delete(context.Background(), models.NewBlob("ns", "key", "key", models.OperationDelete))
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusDone, metadata.Status)
	assert.False(t, store.Exists("ns/key"))

	_, err = queue.Delete(context.Background(), models.NewBlob("ns", "key", "key", models.OperationDelete))
	var notFound *models.PathNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestGetJobMetadata(t *testing.T) {
	meta := newMemoryMetaStore()
	store := newMemoryBlobStore()
	queue := newTestQueue(t, testConfig(1, 1), store, meta)
	queue.Start()

	_, err := queue.Upload(uploadBlob("ns", "key", []byte("x")))
	require.NoError(t, err)
	waitForStatus(t, meta, "ns/key", models.JobStatusDone)

	metadata, err := queue.GetJobMetadata(context.Background(), "ns", "key")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusDone, metadata.Status)

	_, err = queue.GetJobMetadata(context.Background(), "ns", "absent")
	var notFound *models.PathNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestGetBlobMetadata(t *testing.T) {
	meta := newMemoryMetaStore()
	store := newMemoryBlobStore()
	queue := newTestQueue(t, testConfig(1, 1), store, meta)
	queue.Start()

	_, err := queue.Upload(uploadBlob("ns", "key", []byte("x")))
	require.NoError(t, err)
	waitForStatus(t, meta, "ns/key", models.JobStatusDone)

	blob, err := queue.GetBlobMetadata(context.Background(), "ns", "key", models.OperationList)
	require.NoError(t, err)
	assert.Equal(t, models.OperationList, blob.OperationType)
	assert.Equal(t, "ns/key", blob.Path)

	_, err = queue.GetBlobMetadata(context.Background(), "ns", "absent", models.OperationList)
	var notFound *models.PathNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestGetBlobMetadataSurvivesDelete(t *testing.T) {
	meta := newMemoryMetaStore()
	store := newMemoryBlobStore()
	queue := newTestQueue(t, testConfig(1, 1), store, meta)
	queue.Start()

	_, err := queue.Upload(uploadBlob("ns", "key", []byte("x")))
	require.NoError(t, err)
	waitForStatus(t, meta, "ns/key", models.JobStatusDone)

	_, err = queue.Delete(context.Background(), models.NewBlob("ns", "key", "key", models.OperationDelete))
	require.NoError(t, err)
	assert.False(t, store.Exists("ns/key"))

	// The delete job's record stays reachable after the blob is gone.
	blob, err := queue.GetBlobMetadata(context.Background(), "ns", "key", models.OperationList)
	require.NoError(t, err)
	assert.Equal(t, models.OperationList, blob.OperationType)
	assert.Equal(t, "ns/key", blob.Path)
}

// stallingMetaStore wedges the WRITING upsert until the caller's
// context is cancelled, standing in for a database call that never
// comes back on its own.
type stallingMetaStore struct {
	*memoryMetaStore
	entered chan struct{}
	once    sync.Once
}

func (m *stallingMetaStore) UpsertByPath(ctx context.Context, rows []*models.JobMetadata) interfaces.TransactionResult {
	if len(rows) == 1 && rows[0].Status == models.JobStatusWriting {
		m.once.Do(func() { close(m.entered) })
		<-ctx.Done()
		return interfaces.TransactionResult{Err: ctx.Err()}
	}
	return m.memoryMetaStore.UpsertByPath(ctx, rows)
}

func TestCloseInterruptsStalledJob(t *testing.T) {
	meta := &stallingMetaStore{
		memoryMetaStore: newMemoryMetaStore(),
		entered:         make(chan struct{}),
	}
	store := newMemoryBlobStore()
	queue := NewQueue(testConfig(1, 1), arbor.NewLogger(), store, meta)
	t.Cleanup(queue.Close)
	queue.Start()

	_, err := queue.Upload(uploadBlob("ns", "stuck", []byte("x")))
	require.NoError(t, err)

	select {
	case <-meta.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("job never reached the stalled store call")
	}

	// Close must cancel the running job rather than wait out its
	// timeout behind the stalled call.
	done := make(chan struct{})
	go func() {
		queue.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("close blocked behind the stalled job")
	}
}

func TestUploadAfterClose(t *testing.T) {
	meta := newMemoryMetaStore()
	store := newMemoryBlobStore()
	queue := NewQueue(testConfig(1, 1), arbor.NewLogger(), store, meta)
	queue.Start()
	queue.Close()

	_, err := queue.Upload(uploadBlob("ns", "key", []byte("x")))
	assert.Error(t, err)
}
