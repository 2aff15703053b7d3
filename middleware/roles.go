package middleware

import "net/http"

// RoleChecker reports role membership for the current session.
type RoleChecker interface {
	HasAnyRole(roles ...string) bool
}

// RequireRoles answers 403 unless the session carries at least one of roles.
// Place it after [RequireSession].
func RequireRoles(checker RoleChecker, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if checker == nil || !checker.HasAnyRole(roles...) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
