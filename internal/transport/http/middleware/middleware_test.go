package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leaveflow/internal/domain/auth"
	"leaveflow/internal/platform/requestctx"
)

func TestRequestID(t *testing.T) {
	var seenID, seenIP string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = requestctx.GetRequestID(r.Context())
		seenIP = requestctx.GetClientIP(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seenID)
	assert.Equal(t, "203.0.113.5", seenIP)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "has spaces")
	req.RemoteAddr = "192.0.2.1:5000"
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Len(t, seenID, 36, "unsafe ids are replaced by a uuid")
	assert.Equal(t, "192.0.2.1", seenIP)
}

func TestRecoverer(t *testing.T) {
	handler := Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_error")
}

func TestBodyLimit(t *testing.T) {
	handler := BodyLimit(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":"0123456789"}`)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSecureHeaders(t *testing.T) {
	handler := SecureHeaders(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/requests", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
}

type recordedRequest struct {
	route  string
	status int
}

type httpObserver struct {
	mu       sync.Mutex
	inFlight float64
	requests []recordedRequest
}

func (o *httpObserver) InFlight(delta float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inFlight += delta
}

func (o *httpObserver) ObserveRequest(method, route string, status int, duration time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requests = append(o.requests, recordedRequest{route, status})
}

func TestMetricsUsesRoutePattern(t *testing.T) {
	obs := &httpObserver{}
	r := chi.NewRouter()
	r.Use(Metrics(obs))
	r.Get("/requests/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/requests/42", nil))
	require.Len(t, obs.requests, 1)
	assert.Equal(t, recordedRequest{"/requests/{id}", http.StatusTeapot}, obs.requests[0])
	assert.Equal(t, 0.0, obs.inFlight)
}

type memIdempotency struct {
	mu    sync.Mutex
	items map[string]struct {
		hash string
		resp StoredResponse
	}
}

func (m *memIdempotency) Check(ctx context.Context, userID, endpoint, key, requestHash string) (StoredResponse, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[userID+endpoint+key]
	if !ok {
		return StoredResponse{}, false, nil
	}
	if item.hash != requestHash {
		return StoredResponse{}, false, ErrIdempotencyConflict
	}
	return item.resp, true, nil
}

func (m *memIdempotency) Save(ctx context.Context, userID, endpoint, key, requestHash string, resp StoredResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[userID+endpoint+key] = struct {
		hash string
		resp StoredResponse
	}{requestHash, resp}
	return nil
}

func TestIdempotencyReplaysResponse(t *testing.T) {
	store := &memIdempotency{items: map[string]struct {
		hash string
		resp StoredResponse
	}{}}
	calls := 0
	handler := Idempotency(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]int{"call": calls})
	}))

	send := func(key, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/requests", bytes.NewBufferString(body))
		req.Header.Set("Idempotency-Key", key)
		req = req.WithContext(WithUser(req.Context(), auth.Principal{ID: "u1"}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	first := send("k1", `{"type":"Vacation"}`)
	require.Equal(t, http.StatusCreated, first.Code)
	second := send("k1", `{"type":"Vacation"}`)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replay"))
	assert.JSONEq(t, `{"call":1}`, second.Body.String())
	assert.Equal(t, 1, calls)

	conflict := send("k1", `{"type":"Permission"}`)
	assert.Equal(t, http.StatusConflict, conflict.Code)

	send("k2", `{"type":"Vacation"}`)
	assert.Equal(t, 2, calls)
}

func TestIdempotencyPassThrough(t *testing.T) {
	calls := 0
	handler := Idempotency(&memIdempotency{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/requests", strings.NewReader("{}"))
	req.Header.Set("Idempotency-Key", "k1")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}")))
	assert.Equal(t, 2, calls, "anonymous or unkeyed requests are not deduplicated")
}
