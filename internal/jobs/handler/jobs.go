// Package handler exposes the health endpoints and the job admin API.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"classguard/internal/orchestrator"
	"classguard/internal/schedules/service"
	apperrors "classguard/pkg/errors"
	httputil "classguard/pkg/http"
	"classguard/pkg/logger"
	"classguard/pkg/middleware"
)

// JobTable is the orchestrator as seen by the HTTP layer.
type JobTable interface {
	Status() []string
	Jobs() []orchestrator.JobStatus
	RunNow(ctx context.Context, name string) error
}

// ResultStore returns the last sweep result of a job.
type ResultStore interface {
	LastResult(name string) *service.SweepResult
}

type JobsHandler struct {
	jobs    JobTable
	results ResultStore
	log     *logger.Logger
}

func NewJobsHandler(jobs JobTable, results ResultStore, log *logger.Logger) *JobsHandler {
	return &JobsHandler{
		jobs:    jobs,
		results: results,
		log:     log,
	}
}

// List returns the status of every registered job.
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := httputil.WriteSuccess(w, h.jobs.Jobs()); err != nil {
		h.log.Error("failed to write JSON response", "handler", "List", "operation", "WriteSuccess", "error", err)
	}
}

// Run executes a job immediately and returns its sweep result. The run
// shares the reentrancy guard and lock of scheduled firings.
func (h *JobsHandler) Run(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	name := ps.ByName("name")
	log := h.log.With("job", name, "request_id", middleware.RequestID(r))

	err := h.jobs.RunNow(r.Context(), name)
	switch {
	case errors.Is(err, orchestrator.ErrJobNotFound):
		h.writeError(w, apperrors.NotFoundWithID("job", name))
		return
	case errors.Is(err, orchestrator.ErrJobRunning), errors.Is(err, orchestrator.ErrLockHeld):
		h.writeError(w, apperrors.Conflict(err.Error()).WithDetails(map[string]any{"job": name}))
		return
	case errors.Is(err, orchestrator.ErrShuttingDown):
		h.writeError(w, apperrors.Unavailable("orchestrator", err))
		return
	}

	result := h.results.LastResult(name)
	if result == nil {
		h.writeError(w, apperrors.Internal("job produced no result", err))
		return
	}
	if err != nil {
		log.Warn("Manual run finished with errors", "error", err)
	} else {
		log.Info("Manual run finished")
	}

	if err := httputil.WriteSuccess(w, result); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Run", "operation", "WriteSuccess", "error", err)
	}
}

func (h *JobsHandler) writeError(w http.ResponseWriter, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "error", writeErr)
	}
}

func (h *JobsHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/jobs", h.List)
	router.POST("/api/v1/jobs/:name/run", h.Run)
}
