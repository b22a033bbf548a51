package notificationshandler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"leaveflow/internal/domain/auth"
	"leaveflow/internal/domain/notifications"
	"leaveflow/internal/transport/http/middleware"
)

type stubService struct {
	userID string
}

func (s *stubService) List(ctx context.Context, userID string, limit, offset int) ([]notifications.Notification, error) {
	s.userID = userID
	return nil, nil
}

func (s *stubService) Count(ctx context.Context, userID string) (int, error) {
	return 0, nil
}

func (s *stubService) MarkRead(ctx context.Context, userID, notificationID string) error {
	if notificationID != "n1" {
		return notifications.ErrNotFound
	}
	return nil
}

func router(svc Service, user *auth.Principal) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if user != nil {
				req = req.WithContext(middleware.WithUser(req.Context(), *user))
			}
			next.ServeHTTP(w, req)
		})
	})
	NewHandler(svc).RegisterRoutes(r)
	return r
}

func TestNotifications(t *testing.T) {
	svc := &stubService{}
	h := router(svc, &auth.Principal{ID: "u1"})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/notifications", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
	assert.Equal(t, "u1", svc.userID)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/notifications/n1/read", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/notifications/other/read", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/notifications", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
