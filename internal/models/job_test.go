package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status   JobStatus
		terminal bool
	}{
		{JobStatusCreating, false},
		{JobStatusCreated, false},
		{JobStatusWriting, false},
		{JobStatusReading, false},
		{JobStatusDeleting, false},
		{JobStatusDone, true},
		{JobStatusFailed, true},
		{JobStatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
		})
	}
}

func TestJobStatusIsCancellable(t *testing.T) {
	cancellable := []JobStatus{JobStatusCreating, JobStatusWriting, JobStatusReading, JobStatusDeleting}
	for _, status := range cancellable {
		assert.True(t, status.IsCancellable(), "expected %s to be cancellable", status)
	}

	notCancellable := []JobStatus{JobStatusCreated, JobStatusDone, JobStatusFailed, JobStatusCancelled}
	for _, status := range notCancellable {
		assert.False(t, status.IsCancellable(), "expected %s to not be cancellable", status)
	}
}

func TestNewJobMetadata(t *testing.T) {
	blob := NewBlob("images", "logo.png", "logo.png", OperationUpload)
	metadata := NewJobMetadata(blob)

	assert.Equal(t, JobStatusCreating, metadata.Status)
	assert.Equal(t, "images/logo.png", metadata.Path)
	assert.Equal(t, OperationUpload, metadata.OperationType)
	assert.Contains(t, metadata.Context, metadata.ID.String())
}

func TestJobMetadataWithStatusCopies(t *testing.T) {
	blob := NewBlob("ns", "key", "file", OperationUpload)
	first := NewJobMetadata(blob)
	second := first.WithStatus(JobStatusWriting, "writing")

	assert.Equal(t, JobStatusCreating, first.Status)
	assert.Equal(t, JobStatusWriting, second.Status)
	assert.Equal(t, first.ID, second.ID)
}

func TestJobMetadataWithFailure(t *testing.T) {
	blob := NewBlob("ns", "key", "file", OperationUpload)
	metadata := NewJobMetadata(blob)

	failed := metadata.WithFailure("write blew up", errors.New("disk full"))
	assert.Equal(t, JobStatusFailed, failed.Status)
	assert.Equal(t, "disk full", failed.Error)
	assert.Empty(t, metadata.Error)
}

func TestBlobValidate(t *testing.T) {
	blob := NewBlob("ns", "key", "file", OperationUpload)
	require.NoError(t, blob.Validate())

	blob.Namespace = ""
	assert.ErrorIs(t, blob.Validate(), ErrEmptyNamespace)

	blob = NewBlob("ns", "", "file", OperationUpload)
	assert.ErrorIs(t, blob.Validate(), ErrEmptyKey)

	blob = NewBlob("ns", "key", "file", OperationUpload)
	blob.Path = "somewhere/else"
	assert.ErrorIs(t, blob.Validate(), ErrPathMismatch)
}

func TestPathNotFoundError(t *testing.T) {
	err := NewPathNotFoundError("ns", "missing")
	assert.Contains(t, err.Error(), "ns/missing")
	assert.Equal(t, "ns", err.Namespace)
}

func TestServerLimitError(t *testing.T) {
	err := NewServerLimitError(100, 100)
	assert.Equal(t, 100, err.Limit)
	assert.Contains(t, err.Error(), "quota")
}
