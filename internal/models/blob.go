package models

import "path"

// OperationType identifies the blob operation a request or job performs.
type OperationType string

const (
	OperationUpload   OperationType = "upload"
	OperationDownload OperationType = "download"
	OperationDelete   OperationType = "delete"
	OperationList     OperationType = "list"
)

// BackupType is an opaque persistence tag carried through from the request.
// It has no effect on how the core stores bytes.
type BackupType string

const (
	BackupDisk  BackupType = "disk"
	BackupAWS   BackupType = "aws"
	BackupGCS   BackupType = "gcs"
	BackupAzure BackupType = "azure"
)

// DefaultContentType is used when the request does not carry a MIME type.
const DefaultContentType = "application/octet-stream"

// DefaultEncoding is used when the request does not carry an encoding.
const DefaultEncoding = "utf-8"

// Blob is the request/response envelope for a single blob operation.
// Path is the canonical join of Namespace and Key and is the unique
// address for the blob across the whole system.
type Blob struct {
	Key           string        `json:"key"`
	Namespace     string        `json:"namespace"`
	Filename      string        `json:"filename"`
	Path          string        `json:"path"`
	ContentType   string        `json:"content_type"`
	OperationType OperationType `json:"operation_type"`
	BackupType    BackupType    `json:"backup_type"`
	Encoding      string        `json:"encoding"`
	Data          []byte        `json:"data,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// BlobPath joins a namespace and key into the canonical blob path.
func BlobPath(namespace, key string) string {
	return path.Join(namespace, key)
}

// NewBlob constructs a Blob envelope with defaults applied and the
// canonical path derived from namespace and key.
func NewBlob(namespace, key, filename string, op OperationType) *Blob {
	return &Blob{
		Key:           key,
		Namespace:     namespace,
		Filename:      filename,
		Path:          BlobPath(namespace, key),
		ContentType:   DefaultContentType,
		OperationType: op,
		BackupType:    BackupDisk,
		Encoding:      DefaultEncoding,
	}
}

// Validate checks the fields the core relies on.
func (b *Blob) Validate() error {
	if b.Namespace == "" {
		return ErrEmptyNamespace
	}
	if b.Key == "" {
		return ErrEmptyKey
	}
	if b.Path != BlobPath(b.Namespace, b.Key) {
		return ErrPathMismatch
	}
	return nil
}
