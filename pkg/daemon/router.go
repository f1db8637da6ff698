package daemon

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/hack-dev/hack/pkg/gateway"
	"github.com/hack-dev/hack/pkg/metrics"
	"github.com/hack-dev/hack/pkg/types"
)

// buildRouter wires the full route set. The same
// router is shared by the Unix-domain listener (trusted, unauthenticated)
// and the TCP gateway listener (wrapped separately with gateway.Authenticate
// in Server.wrapGateway). Because both listeners share one router, write
// routes enforce scope via requireWriteScope, which is a no-op when no
// token is attached to the request context — i.e. on the trusted socket.
func (s *Server) buildRouter() http.Handler {
	r := mux.NewRouter()
	r.Use(recoverMiddleware(s))

	r.HandleFunc("/v1/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/v1/metrics", s.handleMetrics).Methods(http.MethodGet)

	r.HandleFunc("/v1/projects", s.handleListProjects).Methods(http.MethodGet)
	r.Handle("/v1/projects/register", requireWriteScope(http.HandlerFunc(s.handleRegisterProject))).Methods(http.MethodPost)
	r.Handle("/v1/projects/unregister", requireWriteScope(http.HandlerFunc(s.handleUnregisterProject))).Methods(http.MethodPost)
	r.Handle("/v1/projects/prune", requireWriteScope(http.HandlerFunc(s.handlePruneProjects))).Methods(http.MethodPost)

	r.HandleFunc("/v1/ps", s.handlePS).Methods(http.MethodGet)

	r.Handle("/v1/projects/{id}/jobs", requireWriteScope(http.HandlerFunc(s.handleCreateJob))).Methods(http.MethodPost)
	r.HandleFunc("/v1/projects/{id}/jobs", s.handleListJobs).Methods(http.MethodGet)
	r.HandleFunc("/v1/projects/{id}/jobs/{jobId}", s.handleGetJob).Methods(http.MethodGet)
	r.Handle("/v1/projects/{id}/jobs/{jobId}/cancel", requireWriteScope(http.HandlerFunc(s.handleCancelJob))).Methods(http.MethodPost)
	r.Handle("/v1/projects/{id}/jobs/{jobId}/stream", gateway.RequireUpgrade(http.HandlerFunc(s.handleJobStream))).Methods(http.MethodGet)

	r.Handle("/v1/projects/{id}/shells", requireWriteScope(http.HandlerFunc(s.handleCreateShell))).Methods(http.MethodPost)
	r.HandleFunc("/v1/projects/{id}/shells/{shellId}", s.handleGetShell).Methods(http.MethodGet)
	r.Handle("/v1/projects/{id}/shells/{shellId}/stream", gateway.RequireUpgrade(http.HandlerFunc(s.handleShellStream))).Methods(http.MethodGet)

	r.HandleFunc("/v1/sessions", s.handleListSessions).Methods(http.MethodGet)
	r.Handle("/v1/sessions", requireWriteScope(http.HandlerFunc(s.handleCreateSession))).Methods(http.MethodPost)
	r.Handle("/v1/sessions/{name}/stop", requireWriteScope(http.HandlerFunc(s.handleStopSession))).Methods(http.MethodPost)
	r.Handle("/v1/sessions/{name}/exec", requireWriteScope(http.HandlerFunc(s.handleExecSession))).Methods(http.MethodPost)
	r.Handle("/v1/sessions/{name}/input", requireWriteScope(http.HandlerFunc(s.handleInputSession))).Methods(http.MethodPost)

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", metrics.HealthHandler()).Methods(http.MethodGet)
	r.HandleFunc("/ready", metrics.ReadyHandler()).Methods(http.MethodGet)
	r.HandleFunc("/live", metrics.LivenessHandler()).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no such route")
	})
	return r
}

// requireWriteScope rejects a request with 403 write_scope_required when a
// gateway token is attached to the context and its scope is not "write". A
// request with no attached token (the trusted Unix-socket path, which never
// runs gateway.Authenticate) passes through unchecked.
func requireWriteScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tok, ok := gateway.TokenFromContext(r.Context()); ok {
			if tok.Scope != types.ScopeWrite {
				writeError(w, http.StatusForbidden, "write_scope_required", "this route requires a write-scoped token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func recoverMiddleware(s *Server) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					s.logger.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("handler panic recovered")
					writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
