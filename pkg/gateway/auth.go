package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/hack-dev/hack/pkg/log"
	"github.com/hack-dev/hack/pkg/types"
)

type contextKey int

const tokenContextKey contextKey = iota

// Gateway authenticates and authorizes requests on the daemon's TCP
// listener. The Unix-domain socket listener never wraps its handlers with
// Gateway — same-user access is trusted outright.
type Gateway struct {
	tokens      *TokenStore
	audit       *AuditLog
	allowWrites atomic.Bool
	logger      zerolog.Logger
}

// NewGateway returns a Gateway backed by tokens and audit, with the global
// writes-enabled guardrail initialized to allowWrites.
func NewGateway(tokens *TokenStore, audit *AuditLog, allowWrites bool) *Gateway {
	g := &Gateway{tokens: tokens, audit: audit, logger: log.WithComponent("gateway")}
	g.allowWrites.Store(allowWrites)
	return g
}

// SetAllowWrites flips the global writes-enabled guardrail at runtime.
func (g *Gateway) SetAllowWrites(v bool) { g.allowWrites.Store(v) }

// AllowWrites reports the current value of the writes-enabled guardrail.
func (g *Gateway) AllowWrites() bool { return g.allowWrites.Load() }

func isSafeMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// Authenticate extracts and verifies the bearer token, enforces the global
// writes-enabled guardrail for mutating methods, and attaches the resolved
// token to the request context. It does not check per-route scope — wrap
// mutating routes additionally with RequireScope.
func (g *Gateway) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		raw := extractBearerToken(r)
		if raw == "" {
			g.deny(w, r, start, "", http.StatusUnauthorized, "missing_token", "no bearer token present")
			return
		}

		tok, ok, err := g.tokens.Verify(raw)
		if err != nil {
			g.deny(w, r, start, "", http.StatusUnauthorized, "invalid_token", "token verification failed")
			return
		}
		if !ok {
			g.deny(w, r, start, "", http.StatusUnauthorized, "invalid_token", "token did not verify")
			return
		}

		if !isSafeMethod(r.Method) && !g.allowWrites.Load() {
			g.deny(w, r, start, tok.ID, http.StatusForbidden, "writes_disabled", "writes are currently disabled")
			return
		}

		ctx := context.WithValue(r.Context(), tokenContextKey, tok)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))
		g.audit.Record(tok.ID, r.Method, r.URL.Path, rec.status, start)
	})
}

// RequireScope rejects requests whose resolved token scope is below min.
// Must run after Authenticate in the middleware chain.
func RequireScope(min types.Scope, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, _ := TokenFromContext(r.Context())
		if min == types.ScopeWrite && tok.Scope != types.ScopeWrite {
			writeAuthError(w, http.StatusForbidden, "write_scope_required", "this route requires a write-scoped token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireUpgrade rejects a WebSocket-only route with 426 upgrade_required
// when the request does not carry the Connection: Upgrade handshake.
func RequireUpgrade(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade") ||
			!strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			writeAuthError(w, http.StatusUpgradeRequired, "upgrade_required", "this route requires a WebSocket upgrade")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// TokenFromContext returns the token attached by Authenticate, if any.
func TokenFromContext(ctx context.Context) (types.Token, bool) {
	tok, ok := ctx.Value(tokenContextKey).(types.Token)
	return tok, ok
}

func extractBearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if after, found := strings.CutPrefix(h, "Bearer "); found {
			return strings.TrimSpace(after)
		}
	}
	return strings.TrimSpace(r.Header.Get("x-hack-token"))
}

func (g *Gateway) deny(w http.ResponseWriter, r *http.Request, start time.Time, tokenID string, status int, code, message string) {
	writeAuthError(w, status, code, message)
	g.audit.Record(tokenID, r.Method, r.URL.Path, status, start)
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}

// statusRecorder captures the status code written by a downstream handler
// so the outer middleware can log it to the audit trail.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
