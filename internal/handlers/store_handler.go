package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/stash/internal/interfaces"
	"github.com/ternarybob/stash/internal/models"
)

// maxUploadBytes bounds the multipart form held in memory per request.
const maxUploadBytes = 64 << 20 // 64 MB

// StoreHandler serves the blob endpoints on top of the job queue.
type StoreHandler struct {
	queue  interfaces.JobQueue
	logger arbor.ILogger
}

// NewStoreHandler creates the handler.
func NewStoreHandler(queue interfaces.JobQueue, logger arbor.ILogger) *StoreHandler {
	return &StoreHandler{queue: queue, logger: logger}
}

// UploadHandler handles PUT /store/put/{namespace}/{key}. The blob
// bytes arrive as the multipart form field "blob". Accepted uploads run
// asynchronously; the response is the CREATED job record with 202.
func (h *StoreHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPut) {
		return
	}

	namespace, key, ok := SplitBlobPath(strings.TrimPrefix(r.URL.Path, "/store/put/"))
	if !ok {
		WriteError(w, http.StatusBadRequest, "Expected /store/put/{namespace}/{key}")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("Invalid multipart form: %v", err))
		return
	}

	file, header, err := r.FormFile("blob")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Missing multipart field 'blob'")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read upload: %v", err))
		return
	}

	blob := models.NewBlob(namespace, key, header.Filename, models.OperationUpload)
	blob.Data = data
	if contentType := header.Header.Get("Content-Type"); contentType != "" {
		blob.ContentType = contentType
	}
	if persist := r.URL.Query().Get("persist"); persist != "" {
		blob.BackupType = models.BackupType(persist)
	}
	if encoding := r.URL.Query().Get("encoding"); encoding != "" {
		blob.Encoding = encoding
	}

	metadata, err := h.queue.Upload(blob)
	if err != nil {
		var limitErr *models.ServerLimitError
		if errors.As(err, &limitErr) {
			WriteJSON(w, http.StatusTooManyRequests, limitErr)
			return
		}
		// Create failed; the FAILED record explains why.
		WriteJSON(w, http.StatusBadRequest, metadata)
		return
	}

	WriteJSON(w, http.StatusAccepted, metadata)
}

// DownloadHandler handles GET /store/get/{namespace}/{key} and streams
// the blob bytes back.
func (h *StoreHandler) DownloadHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	namespace, key, ok := SplitBlobPath(strings.TrimPrefix(r.URL.Path, "/store/get/"))
	if !ok {
		WriteError(w, http.StatusBadRequest, "Expected /store/get/{namespace}/{key}")
		return
	}

	blob := models.NewBlob(namespace, key, key, models.OperationDownload)
	data, metadata, err := h.queue.Download(r.Context(), blob)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	filename := key
	if metadata != nil && metadata.Filename != "" {
		filename = metadata.Filename
	}
	contentType := models.DefaultContentType
	if metadata != nil && metadata.ContentType != "" {
		contentType = metadata.ContentType
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// DeleteHandler handles DELETE /store/delete/{namespace}/{key} and
// returns the final job record.
func (h *StoreHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}

	namespace, key, ok := SplitBlobPath(strings.TrimPrefix(r.URL.Path, "/store/delete/"))
	if !ok {
		WriteError(w, http.StatusBadRequest, "Expected /store/delete/{namespace}/{key}")
		return
	}

	blob := models.NewBlob(namespace, key, key, models.OperationDelete)
	metadata, err := h.queue.Delete(r.Context(), blob)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, metadata)
}

// MetadataHandler handles GET /store/metadata/get/{namespace}/{key}.
func (h *StoreHandler) MetadataHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	namespace, key, ok := SplitBlobPath(strings.TrimPrefix(r.URL.Path, "/store/metadata/get/"))
	if !ok {
		WriteError(w, http.StatusBadRequest, "Expected /store/metadata/get/{namespace}/{key}")
		return
	}

	metadata, err := h.queue.GetJobMetadata(r.Context(), namespace, key)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, metadata)
}

// CancelHandler handles DELETE /store/cancel/{job_id}.
func (h *StoreHandler) CancelHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}

	jobID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/store/cancel/"), "/")
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Expected /store/cancel/{job_id}")
		return
	}

	metadata, err := h.queue.Cancel(jobID)
	if err != nil {
		var notFound *models.JobNotFoundError
		if errors.As(err, &notFound) {
			WriteJSON(w, http.StatusNotFound, notFound)
			return
		}
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, metadata)
}

func (h *StoreHandler) writeStoreError(w http.ResponseWriter, err error) {
	var notFound *models.PathNotFoundError
	if errors.As(err, &notFound) {
		WriteJSON(w, http.StatusNotFound, notFound)
		return
	}
	h.logger.Warn().Err(err).Msg("Store operation failed")
	WriteError(w, http.StatusInternalServerError, err.Error())
}
