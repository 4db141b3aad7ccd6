// -----------------------------------------------------------------------
// JobHandler - REST surface for the job execution engine
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/interfaces"
	"github.com/ternarybob/indago/internal/jobs"
	"github.com/ternarybob/indago/internal/models"
)

// JobHandler exposes job creation, querying and cancellation over HTTP
type JobHandler struct {
	service  interfaces.JobService
	registry *jobs.Registry
	logger   arbor.ILogger
}

// NewJobHandler creates a job handler backed by the given service and
// work-function registry
func NewJobHandler(service interfaces.JobService, registry *jobs.Registry, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		service:  service,
		registry: registry,
		logger:   logger,
	}
}

// CreateJobRequest is the POST /api/jobs request body
type CreateJobRequest struct {
	Kind   string          `json:"kind"`
	Params json.RawMessage `json:"params,omitempty"`
}

// CreateJobHandler handles POST /api/jobs
func (h *JobHandler) CreateJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Kind == "" {
		WriteError(w, http.StatusBadRequest, "Field 'kind' is required")
		return
	}

	fn, err := h.registry.Build(req.Kind, req.Params)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.service.StartJob(r.Context(), req.Kind, fn)
	if err != nil {
		h.logger.Error().Err(err).Str("kind", req.Kind).Msg("Failed to start job")
		WriteError(w, http.StatusInternalServerError, "Failed to start job")
		return
	}

	WriteJSON(w, http.StatusAccepted, job)
}

// ListJobsHandler handles GET /api/jobs
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	limit := GetLimitParam(r, 20)
	jobList, err := h.service.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobList,
		"count": len(jobList),
	})
}

// GetJobHandler handles GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	jobID := extractJobID(r.URL.Path)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	job, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		h.writeJobError(w, jobID, err)
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// CancelJobHandler handles POST /api/jobs/{id}/cancel
func (h *JobHandler) CancelJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	jobID := extractJobID(strings.TrimSuffix(r.URL.Path, "/cancel"))
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	if err := h.service.CancelJob(r.Context(), jobID); err != nil {
		h.writeJobError(w, jobID, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "success",
		"job_id": jobID,
	})
}

// KindsHandler handles GET /api/jobs/kinds
func (h *JobHandler) KindsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"kinds": h.registry.Kinds(),
	})
}

// writeJobError maps domain errors to HTTP status codes
func (h *JobHandler) writeJobError(w http.ResponseWriter, jobID string, err error) {
	var notFound *models.NotFoundError
	if errors.As(err, &notFound) {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	var invalidState *models.InvalidStateError
	if errors.As(err, &invalidState) {
		WriteError(w, http.StatusConflict, err.Error())
		return
	}

	h.logger.Error().Err(err).Str("job_id", jobID).Msg("Job operation failed")
	WriteError(w, http.StatusInternalServerError, "Internal error")
}

// extractJobID pulls the job ID out of /api/jobs/{id} paths
func extractJobID(path string) string {
	const prefix = "/api/jobs/"
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	id := strings.Trim(path[len(prefix):], "/")
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}
