package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rankforge/rankforge/internal/worker"
)

// ingestRequest is the JSON upload variant: the whole log file inline.
type ingestRequest struct {
	Source  string `json:"source" validate:"omitempty,max=255"`
	Content string `json:"content" validate:"required"`
}

// IngestLogFile handles POST /api/v1/ingest/logfile.
//
// Three upload shapes are accepted: multipart form-data with a "file" field,
// a JSON body with the content inline, and a raw body with the source named
// by the X-Source-Name header. The file is queued and processed async; the
// response only acknowledges receipt.
func (h *Handler) IngestLogFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
	defer r.Body.Close()

	var (
		data   []byte
		source string
	)

	contentType := r.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(contentType, "multipart/form-data"):
		file, header, err := r.FormFile("file")
		if err != nil {
			h.errorResponse(w, http.StatusBadRequest, "Missing file field")
			return
		}
		defer file.Close()
		data, err = io.ReadAll(file)
		if err != nil {
			h.errorResponse(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		source = header.Filename

	case strings.HasPrefix(contentType, "application/json"):
		var req ingestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.errorResponse(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		if err := h.validator.Struct(&req); err != nil {
			h.errorResponse(w, http.StatusBadRequest, "Validation failed: "+err.Error())
			return
		}
		data = []byte(req.Content)
		source = req.Source

	default:
		var err error
		data, err = io.ReadAll(r.Body)
		if err != nil {
			h.errorResponse(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		source = r.Header.Get("X-Source-Name")
	}

	if len(data) == 0 {
		h.errorResponse(w, http.StatusBadRequest, "Empty log file")
		return
	}
	if source == "" {
		source = "upload"
	}

	job := worker.Job{
		ID:       uuid.New(),
		Source:   source,
		Data:     data,
		Received: time.Now(),
	}
	if !h.pool.Enqueue(job) {
		h.errorResponse(w, http.StatusServiceUnavailable, "Ingest queue unavailable")
		return
	}

	h.logger.Infow("Log file queued", "job_id", job.ID, "source", source, "bytes", len(data))
	h.jsonResponse(w, http.StatusAccepted, map[string]interface{}{
		"status": "accepted",
		"job_id": job.ID,
	})
}
