package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	fedAuth "github.com/MrEthical07/fedAuth"
)

// DefaultLoginFailedPath is where [RequireSession] sends users whose login
// could not be started.
const DefaultLoginFailedPath = "/login-failed"

// Session is the part of the facade the guards need.
type Session interface {
	IsLoading() bool
	IsAuthenticated() bool
	User() *fedAuth.UserProfile
	Login(ctx context.Context) error
}

// SessionOptions configures [RequireSession].
type SessionOptions struct {
	// LoginFailedPath defaults to DefaultLoginFailedPath.
	LoginFailedPath string
	// RetryAfter is advertised while the facade is loading. Defaults to 1s.
	RetryAfter time.Duration
	// LoginContext builds the context passed to Login, typically to hand the
	// provider the response it should redirect.
	LoginContext func(w http.ResponseWriter, r *http.Request) context.Context
}

type userContextKey struct{}

// UserFromContext returns the profile stored by [RequireSession].
func UserFromContext(ctx context.Context) (*fedAuth.UserProfile, bool) {
	user, ok := ctx.Value(userContextKey{}).(*fedAuth.UserProfile)
	return user, ok && user != nil
}

// RequireSession returns middleware that admits authenticated requests and
// stores the user profile in the request context.
//
// While the facade is loading it answers 503 with Retry-After. Otherwise an
// unauthenticated request starts a login; when that fails the client is sent
// to LoginFailedPath, and when the provider did not answer the request itself
// it gets 401.
func RequireSession(session Session, opts SessionOptions) func(http.Handler) http.Handler {
	if opts.LoginFailedPath == "" {
		opts.LoginFailedPath = DefaultLoginFailedPath
	}
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = time.Second
	}
	retryAfter := strconv.Itoa(int((opts.RetryAfter + time.Second - 1) / time.Second))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if session == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if session.IsLoading() {
				w.Header().Set("Retry-After", retryAfter)
				http.Error(w, "authentication pending", http.StatusServiceUnavailable)
				return
			}

			if session.IsAuthenticated() {
				if user := session.User(); user != nil {
					ctx := context.WithValue(r.Context(), userContextKey{}, user)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			tw := &trackingWriter{ResponseWriter: w}
			ctx := r.Context()
			if opts.LoginContext != nil {
				ctx = opts.LoginContext(tw, r)
			}
			if err := session.Login(ctx); err != nil {
				if !tw.wrote {
					http.Redirect(w, r, opts.LoginFailedPath, http.StatusFound)
				}
				return
			}
			if !tw.wrote {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
			}
		})
	}
}

type trackingWriter struct {
	http.ResponseWriter
	wrote bool
}

func (w *trackingWriter) WriteHeader(code int) {
	w.wrote = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *trackingWriter) Write(b []byte) (int, error) {
	w.wrote = true
	return w.ResponseWriter.Write(b)
}
