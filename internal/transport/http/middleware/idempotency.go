package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"

	"leaveflow/internal/platform/db"
	"leaveflow/internal/transport/http/api"
)

var ErrIdempotencyConflict = errors.New("idempotency key conflicts with existing request")

const maxIdempotencyKeyLength = 128

// IdempotencyStorer persists the response of a keyed request so a retry with
// the same key and payload replays it.
type IdempotencyStorer interface {
	Check(ctx context.Context, userID, endpoint, key, requestHash string) (StoredResponse, bool, error)
	Save(ctx context.Context, userID, endpoint, key, requestHash string, resp StoredResponse) error
}

type StoredResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

type IdempotencyStore struct {
	db db.Querier
}

func NewIdempotencyStore(q db.Querier) *IdempotencyStore {
	return &IdempotencyStore{db: q}
}

func RequestHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func (s *IdempotencyStore) Check(ctx context.Context, userID, endpoint, key, requestHash string) (StoredResponse, bool, error) {
	var storedHash string
	var raw []byte
	err := s.db.QueryRow(ctx, `
    SELECT request_hash, response_json
    FROM idempotency_keys
    WHERE user_id = $1 AND key = $2 AND endpoint = $3
  `, userID, key, endpoint).Scan(&storedHash, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return StoredResponse{}, false, nil
	}
	if err != nil {
		return StoredResponse{}, false, err
	}
	if storedHash != requestHash {
		return StoredResponse{}, false, ErrIdempotencyConflict
	}
	var resp StoredResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return StoredResponse{}, false, err
	}
	return resp, true, nil
}

func (s *IdempotencyStore) Save(ctx context.Context, userID, endpoint, key, requestHash string, resp StoredResponse) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
    INSERT INTO idempotency_keys (user_id, key, endpoint, request_hash, response_json)
    VALUES ($1, $2, $3, $4, $5)
    ON CONFLICT (user_id, key, endpoint)
    DO UPDATE SET response_json = EXCLUDED.response_json
    WHERE idempotency_keys.request_hash = EXCLUDED.request_hash
  `, userID, key, endpoint, requestHash, payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyConflict
	}
	return nil
}

// Idempotency replays the stored response for a repeated Idempotency-Key.
// Requests without the header, or without an authenticated user, pass
// through. Only successful responses are stored.
func Idempotency(store IdempotencyStorer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
			user, ok := GetUser(r.Context())
			if store == nil || key == "" || !ok {
				next.ServeHTTP(w, r)
				return
			}
			requestID := GetRequestID(r.Context())
			if len(key) > maxIdempotencyKeyLength {
				api.Fail(w, http.StatusBadRequest, "invalid_idempotency_key", "Idempotency-Key is too long", requestID)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				api.FailDecode(w, err, requestID)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			endpoint := r.Method + " " + r.URL.Path
			hash := RequestHash(body)

			stored, found, err := store.Check(r.Context(), user.ID, endpoint, key, hash)
			if errors.Is(err, ErrIdempotencyConflict) {
				api.Fail(w, http.StatusConflict, "idempotency_conflict", "Idempotency-Key was used with a different payload", requestID)
				return
			}
			if err != nil {
				slog.Error("idempotency lookup failed", "err", err, "requestId", requestID)
				api.Fail(w, http.StatusInternalServerError, "internal_error", "internal server error", requestID)
				return
			}
			if found {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Idempotent-Replay", "true")
				w.WriteHeader(stored.Status)
				_, _ = w.Write(stored.Body)
				return
			}

			recorder := newRecorder(w)
			recorder.capture = &bytes.Buffer{}
			next.ServeHTTP(recorder, r)

			if recorder.status < 200 || recorder.status >= 300 || !json.Valid(recorder.capture.Bytes()) {
				return
			}
			resp := StoredResponse{Status: recorder.status, Body: bytes.TrimSpace(recorder.capture.Bytes())}
			if err := store.Save(r.Context(), user.ID, endpoint, key, hash, resp); err != nil {
				slog.Warn("idempotency save failed", "err", err, "requestId", requestID)
			}
		})
	}
}
