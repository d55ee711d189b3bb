package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"video-narrator/core/models"
	"video-narrator/core/spec"
	"video-narrator/storage"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// JobRegistry is the registry surface the HTTP layer uses
type JobRegistry interface {
	Create(ctx context.Context, job *models.Job) error
	UpdateStatus(ctx context.Context, id string, status models.JobStatus, message string, artifacts ...models.Artifact) error
	Get(ctx context.Context, id string) *models.Job
	List(ctx context.Context, status *models.JobStatus, limit int) ([]*models.Job, error)
	Events(ctx context.Context, id string, limit int) ([]models.JobEvent, error)
}

// Submitter hands a created job to background processing
type Submitter interface {
	Submit(job *models.Job) error
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
	multipartMemory  = 32 << 20
)

// VideoHandler handles intake and job inspection requests
type VideoHandler struct {
	registry  JobRegistry
	scheduler Submitter
	workspace *storage.Workspace
	templates *spec.Catalog
	maxUpload int64
	logger    *zap.Logger
}

// NewVideoHandler creates a new video handler
func NewVideoHandler(
	registry JobRegistry,
	sched Submitter,
	workspace *storage.Workspace,
	templates *spec.Catalog,
	maxUpload int64,
	logger *zap.Logger,
) *VideoHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if templates == nil {
		templates = spec.DefaultCatalog()
	}
	return &VideoHandler{
		registry:  registry,
		scheduler: sched,
		workspace: workspace,
		templates: templates,
		maxUpload: maxUpload,
		logger:    logger.With(zap.String("component", "http")),
	}
}

// ProcessResponse is returned once a job has been accepted
type ProcessResponse struct {
	JobID         string `json:"jobId"`
	Message       string `json:"message"`
	EstimatedTime string `json:"estimatedTime"`
}

// ProcessVideo handles POST /api/video/process
func (h *VideoHandler) ProcessVideo(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Upload exceeds the %s limit", humanize.IBytes(uint64(h.maxUpload))))
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid multipart request: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	appName := strings.TrimSpace(r.FormValue("appName"))
	description := strings.TrimSpace(r.FormValue("description"))
	template := strings.TrimSpace(r.FormValue("template"))
	file, header, err := r.FormFile("demoVideo")
	if err != nil || appName == "" || description == "" {
		if file != nil {
			file.Close()
		}
		writeError(w, http.StatusBadRequest, "Missing required fields: demoVideo, appName, description")
		return
	}
	defer file.Close()
	if template != "" && !h.templates.Has(template) {
		h.logger.Warn("unknown template requested, using default", zap.String("template", template))
	}

	src := h.workspace.UploadPath(uuid.NewString() + strings.ToLower(filepath.Ext(header.Filename)))
	size, err := saveUpload(src, file)
	if err != nil {
		h.logger.Error("save upload", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to store upload")
		return
	}

	job := &models.Job{
		ID:          uuid.NewString(),
		AppName:     appName,
		Description: description,
		Template:    template,
		SourcePath:  src,
	}
	if err := h.registry.Create(r.Context(), job); err != nil {
		h.workspace.Remove(src)
		h.logger.Error("create job", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}
	if err := h.scheduler.Submit(job.Clone()); err != nil {
		h.logger.Warn("job rejected", zap.String("job_id", job.ID), zap.Error(err))
		h.workspace.Remove(src)
		if uerr := h.registry.UpdateStatus(r.Context(), job.ID, models.JobStatusFailed, "Server is shutting down"); uerr != nil {
			h.logger.Error("record rejected job", zap.String("job_id", job.ID), zap.Error(uerr))
		}
		writeError(w, http.StatusServiceUnavailable, "Server is shutting down")
		return
	}

	h.logger.Info("video accepted",
		zap.String("job_id", job.ID),
		zap.String("app_name", appName),
		zap.String("upload", header.Filename),
		zap.String("size", humanize.Bytes(uint64(size))),
	)
	writeJSON(w, http.StatusOK, ProcessResponse{
		JobID:         job.ID,
		Message:       "Video processing started",
		EstimatedTime: "3-5 minutes",
	})
}

func saveUpload(path string, src io.Reader) (int64, error) {
	dst, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
	}
	return n, err
}

// GetStatus handles GET /api/video/status/{jobId}. Unknown ids get the
// not_found record with 200.
func (h *VideoHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]
	writeJSON(w, http.StatusOK, h.registry.Get(r.Context(), jobID))
}

// DebugFiles handles GET /api/video/debug/{jobId}
func (h *VideoHandler) DebugFiles(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]
	files, err := h.workspace.JobFiles(jobID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if files == nil {
		files = []storage.FileInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobId":     jobID,
		"outputDir": h.workspace.Output,
		"files":     files,
	})
}

// ListJobs handles GET /api/video/jobs
func (h *VideoHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	var status *models.JobStatus
	if s := r.URL.Query().Get("status"); s != "" {
		st := models.JobStatus(s)
		if !st.Valid() {
			writeError(w, http.StatusBadRequest, "Invalid status filter")
			return
		}
		status = &st
	}

	limit := defaultListLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = min(n, maxListLimit)
	}

	jobs, err := h.registry.List(r.Context(), status, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list jobs: "+err.Error())
		return
	}
	if jobs == nil {
		jobs = []*models.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": jobs,
	})
}

// GetJobEvents handles GET /api/video/jobs/{jobId}/events
func (h *VideoHandler) GetJobEvents(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]
	if job := h.registry.Get(r.Context(), jobID); job.Status == models.JobStatusNotFound {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}

	events, err := h.registry.Events(r.Context(), jobID, 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch events: "+err.Error())
		return
	}
	if events == nil {
		events = []models.JobEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": events,
	})
}
