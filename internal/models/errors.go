package models

import (
	"errors"
	"fmt"
)

// Validation sentinels for Blob envelopes.
var (
	ErrEmptyNamespace = errors.New("namespace cannot be empty")
	ErrEmptyKey       = errors.New("key cannot be empty")
	ErrPathMismatch   = errors.New("path does not match join(namespace, key)")
)

// PathNotFoundError is a request-shape error: the request addressed a
// path that does not exist. It is not a job failure and never causes a
// FAILED transition.
type PathNotFoundError struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Message   string `json:"message"`
}

func NewPathNotFoundError(namespace, key string) *PathNotFoundError {
	return &PathNotFoundError{
		Namespace: namespace,
		Key:       key,
		Message:   fmt.Sprintf("Blob - %s - not found.", BlobPath(namespace, key)),
	}
}

func (e *PathNotFoundError) Error() string {
	return e.Message
}

// ServerLimitError is returned when admission refuses an upload because
// both the running and pending queues are full. No job is persisted.
type ServerLimitError struct {
	Message string `json:"message"`
	Limit   int    `json:"limit"`
	Current int    `json:"current"`
}

func NewServerLimitError(limit, current int) *ServerLimitError {
	return &ServerLimitError{
		Message: "Pending jobs quota reached. Please try again later.",
		Limit:   limit,
		Current: current,
	}
}

func (e *ServerLimitError) Error() string {
	return e.Message
}

// JobNotFoundError is returned by Cancel when the job id is unknown or
// the job is no longer in a cancellable state.
type JobNotFoundError struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

func NewJobNotFoundError(jobID string) *JobNotFoundError {
	return &JobNotFoundError{
		JobID:   jobID,
		Message: fmt.Sprintf("Job - %s - not found or is not active.", jobID),
	}
}

func (e *JobNotFoundError) Error() string {
	return e.Message
}
