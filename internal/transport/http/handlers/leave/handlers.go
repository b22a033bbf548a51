package leavehandler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"leaveflow/internal/domain/auth"
	"leaveflow/internal/domain/leave"
	"leaveflow/internal/transport/http/api"
	"leaveflow/internal/transport/http/middleware"
	"leaveflow/internal/transport/http/shared"
)

// Service is the leave request lifecycle as seen by HTTP.
type Service interface {
	Create(ctx context.Context, p auth.Principal, in leave.Input) (leave.LeaveRequest, error)
	Get(ctx context.Context, p auth.Principal, id string) (leave.LeaveRequest, error)
	List(ctx context.Context, p auth.Principal) ([]leave.LeaveRequest, error)
	UpdateFields(ctx context.Context, p auth.Principal, id string, in leave.Input) (leave.LeaveRequest, error)
	Act(ctx context.Context, p auth.Principal, id, action, comment string) (leave.LeaveRequest, error)
}

type Handler struct {
	Service     Service
	Perms       middleware.PermissionStore
	Idempotency middleware.IdempotencyStorer
}

func NewHandler(service Service, perms middleware.PermissionStore, idem middleware.IdempotencyStorer) *Handler {
	return &Handler{Service: service, Perms: perms, Idempotency: idem}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/requests", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		read := middleware.RequirePermission(auth.PermLeaveRead, h.Perms)
		write := middleware.RequirePermission(auth.PermLeaveWrite, h.Perms)

		r.With(read).Get("/", h.handleList)
		r.With(write, middleware.Idempotency(h.Idempotency)).Post("/", h.handleCreate)
		r.With(write).Put("/", h.handleUpdate)
		// Approval rights depend on the request's stage, so the workflow
		// decides who may act.
		r.With(read).Post("/approve", h.handleAct)
		r.With(read).Get("/{requestID}", h.handleGet)
		r.With(write).Put("/{requestID}", h.handleUpdate)
		r.With(read).Get("/{requestID}/pdf", h.handlePDF)
		r.With(read).Post("/{requestID}/approve", h.handleAct)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	items, err := h.Service.List(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(len(items)))
	api.Success(w, leave.PresentAll(items), middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	req, err := h.Service.Get(r.Context(), user, chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.Success(w, leave.Present(req), middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	var in leave.Input
	if err := api.Decode(r, &in); err != nil {
		api.FailDecode(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	req, err := h.Service.Create(r.Context(), user, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.Created(w, leave.Present(req), middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	var in leave.Input
	if err := api.Decode(r, &in); err != nil {
		api.FailDecode(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	id := chi.URLParam(r, "requestID")
	if id == "" {
		id, _ = in["id"].(string)
	}
	req, err := h.Service.UpdateFields(r.Context(), user, strings.TrimSpace(id), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.Success(w, leave.Present(req), middleware.GetRequestID(r.Context()))
}

type actRequest struct {
	ID      string `json:"id"`
	Action  string `json:"action"`
	Comment string `json:"comment"`
}

func (h *Handler) handleAct(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	var payload actRequest
	if err := api.Decode(r, &payload); err != nil {
		api.FailDecode(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	if id := chi.URLParam(r, "requestID"); id != "" {
		payload.ID = id
	}
	req, err := h.Service.Act(r.Context(), user, strings.TrimSpace(payload.ID), payload.Action, payload.Comment)
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.Success(w, leave.Present(req), middleware.GetRequestID(r.Context()))
}

func (h *Handler) handlePDF(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	req, err := h.Service.Get(r.Context(), user, chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := leave.WritePDF(&buf, req); err != nil {
		writeError(w, r, fmt.Errorf("render pdf: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="leave-request-%s.pdf"`, req.ID))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetRequestID(r.Context())
	var verr *leave.ValidationError
	switch {
	case errors.As(err, &verr):
		issues := make([]shared.ValidationIssue, 0, len(verr.Issues))
		for _, issue := range verr.Issues {
			issues = append(issues, shared.ValidationIssue{Field: issue.Field, Reason: issue.Reason})
		}
		message := verr.Message
		if message == "" {
			message = "payload validation failed"
		}
		shared.FailValidation(w, requestID, message, issues)
	case errors.Is(err, leave.ErrValidation):
		shared.FailValidation(w, requestID, err.Error(), nil)
	case errors.Is(err, leave.ErrForbidden):
		api.Fail(w, http.StatusForbidden, "forbidden", err.Error(), requestID)
	case errors.Is(err, leave.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "leave request not found", requestID)
	case errors.Is(err, leave.ErrStateConflict):
		api.Fail(w, http.StatusConflict, "state_conflict", err.Error(), requestID)
	default:
		slog.Error("leave request failed", "err", err, "path", r.URL.Path, "requestId", requestID)
		api.Fail(w, http.StatusInternalServerError, "internal_error", "internal server error", requestID)
	}
}
