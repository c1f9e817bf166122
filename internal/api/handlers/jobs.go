package handlers

import (
	"errors"
	"net/http"

	"github.com/dvloznov/ownspend/internal/api/middleware"
	"github.com/dvloznov/ownspend/internal/jobs"
	"github.com/rs/zerolog"
)

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	device, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	job, err := h.store.GetJob(r.Context(), jobID)
	if errors.Is(err, jobs.ErrJobNotFound) || (err == nil && job.OwnerID != device.OwnerID) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	device, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	filter := jobs.JobFilter{
		BatchID: query.Get("batch_id"),
		OwnerID: device.OwnerID,
		Status:  jobs.JobStatus(query.Get("status")),
	}
	limit, offset, ok := parsePaging(r)
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid limit or offset")
		return
	}
	filter.Limit = limit
	filter.Offset = offset

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
