package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"lora-console/api/client"
	"lora-console/core/models"
	"lora-console/core/spec"
	"lora-console/core/store"
	"lora-console/core/view"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Controller is what the job handlers drive
type Controller interface {
	Store() *store.Store
	Select(ctx context.Context, jobID int64)
	CreateJob(ctx context.Context, req *models.JobCreateRequest) (*models.Job, error)
	StartJob(ctx context.Context, jobID int64) error
	StopJob(ctx context.Context, jobID int64) error
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	ctrl   Controller
	logger *zap.Logger
}

// NewJobHandler creates a new job handler
func NewJobHandler(ctrl Controller, logger *zap.Logger) *JobHandler {
	return &JobHandler{
		ctrl:   ctrl,
		logger: logger,
	}
}

// SubmitJobRequest carries either a YAML job spec or a ready request
type SubmitJobRequest struct {
	SpecYAML string                   `json:"spec_yaml,omitempty"`
	Job      *models.JobCreateRequest `json:"job,omitempty"`
}

// SubmitJob handles POST /v1/jobs
func (h *JobHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req SubmitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var create *models.JobCreateRequest
	switch {
	case req.SpecYAML != "":
		parsed, err := spec.ParseJobSpec([]byte(req.SpecYAML))
		if err != nil {
			http.Error(w, "Invalid job spec: "+err.Error(), http.StatusBadRequest)
			return
		}
		create = parsed
	case req.Job != nil:
		if err := req.Job.Validate(); err != nil {
			http.Error(w, "Invalid job: "+err.Error(), http.StatusBadRequest)
			return
		}
		create = req.Job
	default:
		http.Error(w, "spec_yaml or job is required", http.StatusBadRequest)
		return
	}

	job, err := h.ctrl.CreateJob(r.Context(), create)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

// StartJob handles POST /v1/jobs/{id}/start
func (h *JobHandler) StartJob(w http.ResponseWriter, r *http.Request) {
	h.runAction(w, r, "start", h.ctrl.StartJob)
}

// StopJob handles POST /v1/jobs/{id}/stop
func (h *JobHandler) StopJob(w http.ResponseWriter, r *http.Request) {
	h.runAction(w, r, "stop", h.ctrl.StopJob)
}

func (h *JobHandler) runAction(w http.ResponseWriter, r *http.Request, name string, action func(context.Context, int64) error) {
	jobID, ok := parseJobID(w, r)
	if !ok {
		return
	}
	if err := action(r.Context(), jobID); err != nil {
		h.logger.Info("job action rejected", zap.String("action", name), zap.Int64("job_id", jobID), zap.Error(err))
		writeUpstreamError(w, err)
		return
	}
	job, found := h.ctrl.Store().Job(jobID)
	if !found {
		writeJSON(w, http.StatusAccepted, map[string]interface{}{"job_id": jobID})
		return
	}
	writeJSON(w, http.StatusOK, view.ActionsFor(&job))
}

// GetActions handles GET /v1/jobs/{id}/actions
func (h *JobHandler) GetActions(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseJobID(w, r)
	if !ok {
		return
	}
	job, found := h.ctrl.Store().Job(jobID)
	if !found {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, view.ActionsFor(&job))
}

// SelectJob handles POST /v1/select/{id}. Selecting 0 clears the selection.
func (h *JobHandler) SelectJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseJobID(w, r)
	if !ok {
		return
	}
	if jobID != 0 {
		if _, found := h.ctrl.Store().Job(jobID); !found {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
	}
	h.ctrl.Select(r.Context(), jobID)
	writeJSON(w, http.StatusOK, h.ctrl.Store().Snapshot())
}

func parseJobID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	jobID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || jobID < 0 {
		http.Error(w, "Invalid job id", http.StatusBadRequest)
		return 0, false
	}
	return jobID, true
}

// writeUpstreamError passes job API rejections through with their status
func writeUpstreamError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	if apiErr, ok := err.(*client.APIError); ok && apiErr.StatusCode >= 400 {
		status = apiErr.StatusCode
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
