package models

import (
	"fmt"

	"github.com/google/uuid"
)

// JobStatus is the persisted lifecycle state of a blob job.
//
// Legal paths:
//
//	upload:   CREATING -> WRITING  -> DONE | FAILED | CANCELLED
//	download: CREATING -> READING  -> DONE | FAILED | CANCELLED
//	delete:   CREATING -> DELETING -> DONE | FAILED | CANCELLED
//
// Terminal statuses are absorbing: once a job reaches DONE, FAILED or
// CANCELLED no further transitions occur.
type JobStatus string

const (
	JobStatusCreating  JobStatus = "CREATING"
	JobStatusCreated   JobStatus = "CREATED"
	JobStatusWriting   JobStatus = "WRITING"
	JobStatusReading   JobStatus = "READING"
	JobStatusDeleting  JobStatus = "DELETING"
	JobStatusDone      JobStatus = "DONE"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

// IsTerminal reports whether the status is absorbing.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusFailed || s == JobStatusCancelled
}

// IsCancellable reports whether Cancel may be applied from this status.
func (s JobStatus) IsCancellable() bool {
	switch s {
	case JobStatusCreating, JobStatusWriting, JobStatusReading, JobStatusDeleting:
		return true
	}
	return false
}

// JobMetadata is the persisted row describing one job. Rows are keyed
// by Path: a later job on the same path overwrites the earlier row on
// its first status write.
type JobMetadata struct {
	ID            uuid.UUID     `json:"id"`
	Key           string        `json:"key"`
	Namespace     string        `json:"namespace"`
	Filename      string        `json:"filename"`
	Path          string        `json:"path"`
	ContentType   string        `json:"content_type"`
	OperationType OperationType `json:"operation_type"`
	BackupType    BackupType    `json:"backup_type"`
	Encoding      string        `json:"encoding"`
	Context       string        `json:"context"`
	Status        JobStatus     `json:"status"`
	Error         string        `json:"error,omitempty"`
}

// NewJobMetadata builds the initial CREATING row for a blob request.
func NewJobMetadata(blob *Blob) *JobMetadata {
	id := uuid.New()
	return &JobMetadata{
		ID:            id,
		Key:           blob.Key,
		Namespace:     blob.Namespace,
		Filename:      blob.Filename,
		Path:          blob.Path,
		ContentType:   blob.ContentType,
		OperationType: blob.OperationType,
		BackupType:    blob.BackupType,
		Encoding:      blob.Encoding,
		Context:       fmt.Sprintf("Job %s creating", id),
		Status:        JobStatusCreating,
	}
}

// WithStatus returns a copy of the metadata advanced to the given
// status with a fresh progress context.
func (m *JobMetadata) WithStatus(status JobStatus, context string) *JobMetadata {
	next := *m
	next.Status = status
	next.Context = context
	return &next
}

// WithFailure returns a copy of the metadata marked FAILED with the
// given error text.
func (m *JobMetadata) WithFailure(context string, err error) *JobMetadata {
	next := *m
	next.Status = JobStatusFailed
	next.Context = context
	if err != nil {
		next.Error = err.Error()
	}
	return &next
}

// ToBlob projects the metadata back into a Blob envelope with the
// requested operation type.
func (m *JobMetadata) ToBlob(op OperationType) *Blob {
	return &Blob{
		Key:           m.Key,
		Namespace:     m.Namespace,
		Filename:      m.Filename,
		Path:          m.Path,
		ContentType:   m.ContentType,
		OperationType: op,
		BackupType:    m.BackupType,
		Encoding:      m.Encoding,
	}
}
