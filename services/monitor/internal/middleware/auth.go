package middleware

import (
	"net/http"
	"strings"

	"github.com/SaltProphet/SystemZero/pkg/telemetry"
	"github.com/SaltProphet/SystemZero/services/monitor/internal/auth"
)

// APIKeyHeader is the primary credential header. A Bearer token in
// Authorization is accepted as an alternative.
const APIKeyHeader = "X-API-Key"

// KeyFromRequest extracts the presented API key, or "" when absent.
func KeyFromRequest(r *http.Request) string {
	return apiKeyFrom(r)
}

func apiKeyFrom(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
		return key
	}
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return ""
}

// RequireAuth validates the caller's API key and, when permission is
// non-empty, checks it against the caller's role. The key record's name and
// role are threaded through the context for logging.
func RequireAuth(keys *auth.KeyManager, permission string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := apiKeyFrom(r)
			if key == "" {
				WriteError(w, http.StatusUnauthorized, "missing API key")
				return
			}
			rec, ok := keys.Validate(key)
			if !ok {
				WriteError(w, http.StatusUnauthorized, "invalid API key")
				return
			}
			if permission != "" && !auth.HasPermission(rec.Role, permission) {
				WriteError(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			ctx := telemetry.WithClient(r.Context(), rec.Name)
			ctx = telemetry.WithRole(ctx, rec.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
