package profileshandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"leaveflow/internal/domain/auth"
	"leaveflow/internal/domain/profiles"
	"leaveflow/internal/transport/http/api"
	"leaveflow/internal/transport/http/middleware"
)

type Service interface {
	Get(ctx context.Context, p auth.Principal, id string) (profiles.Profile, error)
	List(ctx context.Context, p auth.Principal) ([]profiles.Profile, error)
	Update(ctx context.Context, p auth.Principal, in profiles.UpdateInput) (profiles.Profile, error)
}

type Handler struct {
	Service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{Service: service}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/profiles", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/", h.handleList)
		r.Put("/", h.handleUpdate)
		r.Get("/{profileID}", h.handleGet)
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	profile, err := h.Service.Get(r.Context(), user, chi.URLParam(r, "profileID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.Success(w, profile, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	items, err := h.Service.List(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []profiles.Profile{}
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(len(items)))
	api.Success(w, items, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	var in profiles.UpdateInput
	if err := api.Decode(r, &in); err != nil {
		api.FailDecode(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	profile, err := h.Service.Update(r.Context(), user, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.Success(w, profile, middleware.GetRequestID(r.Context()))
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetRequestID(r.Context())
	switch {
	case errors.Is(err, profiles.ErrValidation):
		api.Fail(w, http.StatusBadRequest, "validation_error", detail(err, profiles.ErrValidation), requestID)
	case errors.Is(err, profiles.ErrForbidden):
		api.Fail(w, http.StatusForbidden, "forbidden", detail(err, profiles.ErrForbidden), requestID)
	case errors.Is(err, profiles.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "profile not found", requestID)
	default:
		slog.Error("profile request failed", "err", err, "requestId", requestID)
		api.Fail(w, http.StatusInternalServerError, "internal_error", "internal server error", requestID)
	}
}

// detail strips the sentinel prefix from a wrapped error message.
func detail(err, sentinel error) string {
	msg := strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
	if msg == "" {
		return sentinel.Error()
	}
	return msg
}
