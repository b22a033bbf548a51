package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

type HTTPObserver interface {
	InFlight(delta float64)
	ObserveRequest(method, route string, status int, duration time.Duration)
}

// Metrics records request counts and latency labelled by the chi route
// pattern.
func Metrics(obs HTTPObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if obs == nil || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}
			obs.InFlight(1)
			defer obs.InFlight(-1)

			start := time.Now()
			recorder := newRecorder(w)
			next.ServeHTTP(recorder, r)

			route := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				route = rctx.RoutePattern()
			}
			obs.ObserveRequest(r.Method, route, recorder.status, time.Since(start))
		})
	}
}
