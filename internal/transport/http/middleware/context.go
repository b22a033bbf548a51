package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"leaveflow/internal/domain/auth"
	"leaveflow/internal/platform/requestctx"
)

type ctxKey string

const ctxKeyUser ctxKey = "user"

const maxRequestIDLength = 64

// RequestID stores a request id (the caller's X-Request-ID when sane, else a
// fresh uuid) and the client IP on the request context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" || len(id) > maxRequestIDLength || strings.ContainsAny(id, " \r\n\t") {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := requestctx.WithRequestID(r.Context(), id)
		ctx = requestctx.WithClientIP(ctx, ClientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetRequestID(ctx context.Context) string {
	return requestctx.GetRequestID(ctx)
}

// ClientIP prefers the first X-Forwarded-For hop, then RemoteAddr.
func ClientIP(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if value := strings.TrimSpace(first); value != "" {
			return value
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

func WithUser(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, ctxKeyUser, p)
}

func GetUser(ctx context.Context) (auth.Principal, bool) {
	user, ok := ctx.Value(ctxKeyUser).(auth.Principal)
	return user, ok
}
