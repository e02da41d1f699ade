package authority

import (
	"context"
	"net/http"

	"github.com/fedid/guestsync/pkg/contextkeys"
	"github.com/fedid/guestsync/pkg/httputil"
)

// PrincipalHeader carries the verified principal name set by the
// fronting gateway after token introspection. Introspection itself is
// an external collaborator; this middleware only resolves grants.
const PrincipalHeader = "X-Verified-Principal"

// Middleware resolves the caller's principal and stores it in the
// request context. Requests without a verified principal are rejected.
func Middleware(checker Checker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			name := r.Header.Get(PrincipalHeader)
			if name == "" {
				httputil.WriteErrorMessage(w, http.StatusUnauthorized, "no verified principal")
				return
			}
			principal, err := checker.PrincipalByName(r.Context(), name)
			if err != nil {
				httputil.WriteInternalError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), contextkeys.AuthorityKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromContext retrieves the principal stored by Middleware.
func FromContext(ctx context.Context) *Principal {
	if principal, ok := ctx.Value(contextkeys.AuthorityKey).(*Principal); ok {
		return principal
	}
	return nil
}

// Require checks one action for the request's principal and writes a
// 403 when denied. Returns true when the caller may proceed.
func Require(w http.ResponseWriter, r *http.Request, checker Checker, action Action, institutionID int64) bool {
	principal := FromContext(r.Context())
	decision := checker.Allowed(principal, action, institutionID)
	if !decision.Allowed {
		httputil.WriteErrorMessage(w, http.StatusForbidden, decision.Reason)
		return false
	}
	return true
}
