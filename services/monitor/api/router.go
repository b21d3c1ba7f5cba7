package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/SaltProphet/SystemZero/services/monitor/internal/auth"
	"github.com/SaltProphet/SystemZero/services/monitor/internal/middleware"
)

// Handler builds the router wrapped in the full middleware chain, outermost
// first: request id + request logging, CORS, trusted hosts, rate limiting,
// body size cap. Authentication is applied per route.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/", s.handleManifest).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/dashboard", s.handleDashboard).Methods(http.MethodGet)

	r.HandleFunc("/templates", s.handleListTemplates).Methods(http.MethodGet)
	r.HandleFunc("/templates", s.authorized(auth.PermWriteTemplates, s.handleCreateTemplate)).Methods(http.MethodPost)
	r.HandleFunc("/templates/{id}", s.handleGetTemplate).Methods(http.MethodGet)

	r.HandleFunc("/captures", s.authorized(auth.PermWriteCaptures, s.handleCreateCapture)).Methods(http.MethodPost)
	r.HandleFunc("/captures/{id}", s.handleGetCapture).Methods(http.MethodGet)

	r.HandleFunc("/events/fleet", s.handleFleetEvents).Methods(http.MethodGet)

	r.HandleFunc("/logs", s.handleLogs).Methods(http.MethodGet)
	r.HandleFunc("/logs/export", s.handleLogExport).Methods(http.MethodGet)
	r.HandleFunc("/logs/stream", s.handleLogStream).Methods(http.MethodGet)

	r.HandleFunc("/auth/token", s.authorized(auth.PermAdminKeys, s.handleCreateToken)).Methods(http.MethodPost)
	r.HandleFunc("/auth/validate", s.handleValidateKey).Methods(http.MethodPost)
	r.HandleFunc("/auth/keys", s.authorized(auth.PermAdminKeys, s.handleListKeys)).Methods(http.MethodGet)
	r.HandleFunc("/auth/revoke", s.authorized(auth.PermAdminKeys, s.handleRevokeKey)).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return middleware.Chain(r,
		middleware.RequestID,
		middleware.Observability(s.logger, s.metrics),
		middleware.CORS(s.cfg.CORSOrigins),
		middleware.TrustedHosts(s.cfg.TrustedHosts),
		s.limiter.Middleware,
		middleware.MaxBody(s.cfg.MaxRequestBytes()),
	)
}

// authorized gates one handler behind key validation and a permission.
func (s *Server) authorized(permission string, h http.HandlerFunc) http.HandlerFunc {
	return middleware.RequireAuth(s.keys, permission)(h).ServeHTTP
}
