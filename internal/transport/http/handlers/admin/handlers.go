package adminhandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"leaveflow/internal/domain/auth"
	"leaveflow/internal/platform/jobs"
	"leaveflow/internal/transport/http/api"
	"leaveflow/internal/transport/http/middleware"
)

type JobRunner interface {
	RunNow(ctx context.Context, name string) (any, error)
}

type Handler struct {
	Jobs  JobRunner
	Perms middleware.PermissionStore
}

func NewHandler(runner JobRunner, perms middleware.PermissionStore) *Handler {
	return &Handler{Jobs: runner, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/admin/jobs", func(r chi.Router) {
		r.Use(middleware.RequirePermission(auth.PermJobsRun, h.Perms))
		r.Post("/token-cleanup", h.handleRun(jobs.JobTokenCleanup))
		r.Post("/data-retention", h.handleRun(jobs.JobDataRetention))
	})
}

func (h *Handler) handleRun(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetRequestID(r.Context())
		details, err := h.Jobs.RunNow(r.Context(), name)
		if errors.Is(err, jobs.ErrUnknownJob) {
			api.Fail(w, http.StatusNotFound, "not_found", "job not registered", requestID)
			return
		}
		if err != nil {
			slog.Error("job run failed", "job", name, "err", err, "requestId", requestID)
			api.Fail(w, http.StatusInternalServerError, "job_failed", "job run failed", requestID)
			return
		}
		api.Success(w, map[string]any{"job": name, "status": jobs.StatusCompleted, "details": details}, requestID)
	}
}
