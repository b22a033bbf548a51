package server

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"leaveflow/internal/domain/auth"
	"leaveflow/internal/transport/http/api"
	adminhandler "leaveflow/internal/transport/http/handlers/admin"
	audithandler "leaveflow/internal/transport/http/handlers/audit"
	authhandler "leaveflow/internal/transport/http/handlers/auth"
	leavehandler "leaveflow/internal/transport/http/handlers/leave"
	notificationshandler "leaveflow/internal/transport/http/handlers/notifications"
	profileshandler "leaveflow/internal/transport/http/handlers/profiles"
	"leaveflow/internal/transport/http/middleware"
)

func (a *App) routes() http.Handler {
	cfg := a.Config
	perms := auth.StaticPermissions{}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.SecureHeaders(cfg.IsProduction()))
	router.Use(middleware.Logger)
	router.Use(middleware.Metrics(a.httpObserver()))
	router.Use(middleware.Recoverer)
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(middleware.Auth(a.Auth))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.DB.Health(r.Context()); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	router.Get("/health", a.handleHealth)
	if a.Metrics != nil {
		router.Handle("/metrics", a.Metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.SensitiveMutationRateLimit(cfg.RateLimitPerMinute, time.Minute))
		r.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))

		authhandler.NewHandler(a.Auth, a.Profiles).RegisterRoutes(r)
		leavehandler.NewHandler(a.Leave, perms, middleware.NewIdempotencyStore(a.DB)).RegisterRoutes(r)
		profileshandler.NewHandler(a.Profiles).RegisterRoutes(r)
		notificationshandler.NewHandler(a.Notifications).RegisterRoutes(r)
		audithandler.NewHandler(a.Audit, perms).RegisterRoutes(r)
		adminhandler.NewHandler(a.Jobs, perms).RegisterRoutes(r)
	})

	if cfg.FrontendDir != "" {
		router.Mount("/", spaHandler{staticPath: cfg.FrontendDir, indexPath: "index.html"})
	}
	return router
}

type healthResponse struct {
	Status    string          `json:"status"`
	Timestamp string          `json:"timestamp"`
	Database  *databaseHealth `json:"database,omitempty"`
}

type databaseHealth struct {
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

// handleHealth reports process health and, with ?db=true, database
// connectivity. A failed database check answers 503.
func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Timestamp: time.Now().UTC().Format(time.RFC3339)}
	status := http.StatusOK
	if r.URL.Query().Get("db") == "true" {
		resp.Database = &databaseHealth{Connected: true}
		if err := a.DB.Health(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Database = &databaseHealth{Connected: false, Error: "database unreachable"}
			status = http.StatusServiceUnavailable
		}
	}
	api.WriteJSON(w, status, api.Envelope{Success: status == http.StatusOK, Data: resp, RequestID: middleware.GetRequestID(r.Context())})
}

type spaHandler struct {
	staticPath string
	indexPath  string
}

func (h spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	path := filepath.Join(h.staticPath, filepath.Clean("/"+r.URL.Path))
	_, err := os.Stat(path)
	if err == nil {
		http.FileServer(http.Dir(h.staticPath)).ServeHTTP(w, r)
		return
	}

	if os.IsNotExist(err) {
		http.ServeFile(w, r, filepath.Join(h.staticPath, h.indexPath))
		return
	}

	http.NotFound(w, r)
}
