package middleware

import (
	"net/http"
	"strings"

	"github.com/agusgarcia3007/learnbase/backend/internal/model/user"
	"github.com/agusgarcia3007/learnbase/backend/pkg/utils"
)

// TenantHeader optionally narrows a request to one tenant.
const TenantHeader = "X-Tenant-ID"

// Authenticate resolves the bearer token against tokens and stores the
// principal in the request context. A tenant header that disagrees with the
// principal's tenant is rejected.
func Authenticate(tokens map[string]user.Principal) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				utils.RespondError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			principal, ok := tokens[token]
			if !ok {
				utils.RespondError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			if tenant := strings.TrimSpace(r.Header.Get(TenantHeader)); tenant != "" && tenant != principal.TenantID {
				utils.RespondError(w, http.StatusForbidden, "tenant is not accessible with this token")
				return
			}

			next.ServeHTTP(w, r.WithContext(user.WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireElevated only lets owners and admins through.
func RequireElevated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := user.FromContext(r.Context())
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "unauthenticated")
			return
		}
		if !principal.Role.Elevated() {
			utils.RespondError(w, http.StatusForbidden, "course authoring requires an owner or admin role")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		// browsers cannot set headers on a WebSocket handshake
		if q := strings.TrimSpace(r.URL.Query().Get("access_token")); q != "" {
			return q, true
		}
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
