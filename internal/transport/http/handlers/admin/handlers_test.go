package adminhandler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"leaveflow/internal/domain/auth"
	"leaveflow/internal/platform/jobs"
	"leaveflow/internal/transport/http/middleware"
)

type stubRunner struct {
	ran string
	err error
}

func (s *stubRunner) RunNow(ctx context.Context, name string) (any, error) {
	s.ran = name
	return map[string]int{"magicLinks": 2}, s.err
}

func serve(runner JobRunner, role string) *httptest.ResponseRecorder {
	return serveJob(runner, role, "token-cleanup")
}

func serveJob(runner JobRunner, role, job string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middleware.WithUser(req.Context(), auth.Principal{ID: "u1", Role: role})))
		})
	})
	NewHandler(runner, auth.StaticPermissions{}).RegisterRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/jobs/"+job, nil))
	return rec
}

func TestTokenCleanup(t *testing.T) {
	tests := []struct {
		name   string
		role   string
		err    error
		status int
	}{
		{"admin", auth.RoleAdmin, nil, http.StatusOK},
		{"hr forbidden", auth.RoleHR, nil, http.StatusForbidden},
		{"unregistered", auth.RoleAdmin, jobs.ErrUnknownJob, http.StatusNotFound},
		{"failure", auth.RoleAdmin, errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			runner := &stubRunner{err: tc.err}
			rec := serve(runner, tc.role)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			if tc.status == http.StatusOK && runner.ran != jobs.JobTokenCleanup {
				t.Fatalf("expected token cleanup to run, got %q", runner.ran)
			}
		})
	}
}

func TestDataRetention(t *testing.T) {
	runner := &stubRunner{}
	rec := serveJob(runner, auth.RoleAdmin, "data-retention")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if runner.ran != jobs.JobDataRetention {
		t.Fatalf("expected data retention to run, got %q", runner.ran)
	}
}
