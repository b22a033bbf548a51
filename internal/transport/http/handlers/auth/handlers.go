package authhandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"leaveflow/internal/domain/auth"
	"leaveflow/internal/domain/profiles"
	"leaveflow/internal/transport/http/api"
	"leaveflow/internal/transport/http/middleware"
	"leaveflow/internal/transport/http/shared"
)

const genericLinkMessage = "If an account exists for that email, a link has been sent."

type Service interface {
	Login(ctx context.Context, email, password, mfaCode string) (auth.Session, error)
	Signup(ctx context.Context, email, name, password string) error
	RequestMagicLink(ctx context.Context, email string) error
	VerifyMagicLink(ctx context.Context, token string) (auth.Session, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, token, newPassword string) error
	SetupMFA(ctx context.Context, userID, accountName string) (string, string, error)
	EnableMFA(ctx context.Context, userID, code string) error
	DisableMFA(ctx context.Context, userID, code string) error
}

type ProfileReader interface {
	Get(ctx context.Context, p auth.Principal, id string) (profiles.Profile, error)
}

type Handler struct {
	Service  Service
	Profiles ProfileReader
}

func NewHandler(service Service, profiles ProfileReader) *Handler {
	return &Handler{Service: service, Profiles: profiles}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.handleLogin)
		r.Post("/signup", h.handleSignup)
		r.Post("/magic-link", h.handleMagicLink)
		r.Post("/magic-link/verify", h.handleVerifyMagicLink)
		r.Post("/password-reset", h.handlePasswordReset)
		r.Post("/password-reset/confirm", h.handleConfirmPasswordReset)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Get("/session", h.handleSession)
			r.Post("/mfa/setup", h.handleMFASetup)
			r.Post("/mfa/enable", h.handleMFAEnable)
			r.Post("/mfa/disable", h.handleMFADisable)
		})
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	MFACode  string `json:"mfaCode"`
}

type signupRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type mfaCodeRequest struct {
	Code string `json:"code"`
}

type sessionResponse struct {
	Token   string            `json:"token,omitempty"`
	User    auth.Principal    `json:"user"`
	Profile *profiles.Profile `json:"profile"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload loginRequest
	if !decode(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	v.Required("email", payload.Email, "is required")
	v.Required("password", payload.Password, "is required")
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	session, err := h.Service.Login(r.Context(), payload.Email, payload.Password, payload.MFACode)
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.Success(w, h.sessionPayload(r.Context(), session), middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var payload signupRequest
	if !decode(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	v.Email("email", payload.Email)
	if payload.Password != "" {
		v.MinLength("password", payload.Password, auth.MinPasswordLength)
	}
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	if err := h.Service.Signup(r.Context(), payload.Email, payload.Name, payload.Password); err != nil {
		writeError(w, r, err)
		return
	}
	api.Success(w, messageResponse{Message: "Check your email for a sign-in link."}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleMagicLink(w http.ResponseWriter, r *http.Request) {
	var payload emailRequest
	if !decode(w, r, &payload) {
		return
	}
	if err := h.Service.RequestMagicLink(r.Context(), payload.Email); err != nil {
		writeError(w, r, err)
		return
	}
	api.Success(w, messageResponse{Message: genericLinkMessage}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleVerifyMagicLink(w http.ResponseWriter, r *http.Request) {
	var payload tokenRequest
	if !decode(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	v.Required("token", payload.Token, "is required")
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	session, err := h.Service.VerifyMagicLink(r.Context(), payload.Token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.Success(w, h.sessionPayload(r.Context(), session), middleware.GetRequestID(r.Context()))
}

func (h *Handler) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var payload emailRequest
	if !decode(w, r, &payload) {
		return
	}
	if err := h.Service.RequestPasswordReset(r.Context(), payload.Email); err != nil {
		writeError(w, r, err)
		return
	}
	api.Success(w, messageResponse{Message: genericLinkMessage}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var payload resetPasswordRequest
	if !decode(w, r, &payload) {
		return
	}
	if err := h.Service.ConfirmPasswordReset(r.Context(), payload.Token, payload.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	api.Success(w, messageResponse{Message: "Password updated."}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	api.Success(w, h.sessionPayload(r.Context(), auth.Session{Principal: user}), middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleMFASetup(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	secret, url, err := h.Service.SetupMFA(r.Context(), user.ID, user.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.Success(w, map[string]string{"secret": secret, "otpauthUrl": url}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleMFAEnable(w http.ResponseWriter, r *http.Request) {
	h.toggleMFA(w, r, true)
}

func (h *Handler) handleMFADisable(w http.ResponseWriter, r *http.Request) {
	h.toggleMFA(w, r, false)
}

func (h *Handler) toggleMFA(w http.ResponseWriter, r *http.Request, enable bool) {
	user, _ := middleware.GetUser(r.Context())
	var payload mfaCodeRequest
	if !decode(w, r, &payload) {
		return
	}
	toggle := h.Service.DisableMFA
	if enable {
		toggle = h.Service.EnableMFA
	}
	if err := toggle(r.Context(), user.ID, payload.Code); err != nil {
		writeError(w, r, err)
		return
	}
	api.Success(w, map[string]bool{"mfaEnabled": enable}, middleware.GetRequestID(r.Context()))
}

// sessionPayload attaches the profile. A missing profile is not fatal; the
// client still gets the principal.
func (h *Handler) sessionPayload(ctx context.Context, session auth.Session) sessionResponse {
	out := sessionResponse{Token: session.Token, User: session.Principal}
	if h.Profiles == nil {
		return out
	}
	profile, err := h.Profiles.Get(ctx, session.Principal, session.Principal.ID)
	if err != nil {
		slog.Warn("session profile lookup failed", "userId", session.Principal.ID, "err", err)
		return out
	}
	out.Profile = &profile
	return out
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := api.Decode(r, dst); err != nil {
		api.FailDecode(w, err, middleware.GetRequestID(r.Context()))
		return false
	}
	return true
}

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

var errorMappings = []errorMapping{
	{auth.ErrValidation, http.StatusBadRequest, "validation_error", ""},
	{auth.ErrWeakPassword, http.StatusBadRequest, "weak_password", "password must be at least 6 characters"},
	{auth.ErrMFANotSetUp, http.StatusBadRequest, "mfa_not_setup", "run mfa setup first"},
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials", "invalid credentials"},
	{auth.ErrMFARequired, http.StatusUnauthorized, "mfa_required", "mfa code required"},
	{auth.ErrMFAInvalid, http.StatusUnauthorized, "mfa_invalid", "invalid mfa code"},
	{auth.ErrDomainNotAllowed, http.StatusForbidden, "domain_not_allowed", "email domain not allowed"},
	{auth.ErrSignupDisabled, http.StatusForbidden, "signup_disabled", "self signup is disabled"},
	{auth.ErrTokenNotFound, http.StatusNotFound, "token_not_found", "invalid or unknown token"},
	{auth.ErrUserNotFound, http.StatusNotFound, "user_not_found", "user not found"},
	{auth.ErrTokenExpired, http.StatusGone, "token_expired", "token has expired"},
	{auth.ErrTokenUsed, http.StatusGone, "token_used", "token has already been used"},
	{auth.ErrRateLimited, http.StatusTooManyRequests, "rate_limited", "too many requests, try again later"},
	{auth.ErrMFAUnavailable, http.StatusServiceUnavailable, "mfa_unavailable", "mfa is not available on this server"},
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetRequestID(r.Context())
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			message := m.message
			if message == "" {
				message = err.Error()
			}
			api.Fail(w, m.status, m.code, message, requestID)
			return
		}
	}
	slog.Error("auth request failed", "err", err, "path", r.URL.Path, "requestId", requestID)
	api.Fail(w, http.StatusInternalServerError, "internal_error", "internal server error", requestID)
}
