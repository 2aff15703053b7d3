package main

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	fedAuth "github.com/MrEthical07/fedAuth"
	"github.com/MrEthical07/fedAuth/internal/remotes"
	"github.com/MrEthical07/fedAuth/middleware"
)

// shell is the host application: it owns the facade and mounts the remotes.
type shell struct {
	facade       *fedAuth.Facade
	logger       *slog.Logger
	callbackPath string
	callback     http.Handler
	metrics      http.Handler
	remotes      []*remotes.Remote
	// graph sends requests through a token-attaching transport.
	graph     *http.Client
	graphBase string
	// loginContext hands the provider the response it should redirect.
	loginContext func(w http.ResponseWriter, r *http.Request) context.Context
}

var homePage = template.Must(template.New("home").Parse(`<!doctype html>
<html><head><title>fedauth</title></head>
<body>
<h1>Hello, {{.Name}}</h1>
{{if .Loading}}<p>Signing you in&hellip;</p>
{{else if .Authenticated}}<p><a href="/profile">Profile</a> | {{range .Remotes}}<a href="/{{.}}/">{{.}}</a> | {{end}}<a href="/logout">Sign out</a></p>
{{else}}<p><a href="/login">Sign in</a></p>{{end}}
</body></html>
`))

func (s *shell) router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.home)
	r.Get("/login", s.login)
	r.Get("/logout", s.logout)
	r.Get("/login-failed", s.loginFailed)
	if s.callback != nil {
		r.Handle(s.callbackPath, s.callback)
	}
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	guard := middleware.RequireSession(s.facade, middleware.SessionOptions{LoginContext: s.loginContext})
	r.With(guard).Get("/profile", s.profile)
	for _, rm := range s.remotes {
		mw := []func(http.Handler) http.Handler{guard}
		if roles := rm.RequiredRoles(); len(roles) > 0 {
			mw = append(mw, middleware.RequireRoles(s.facade, roles...))
		}
		r.With(mw...).Route("/"+rm.Name(), rm.Routes)
	}
	return r
}

func (s *shell) home(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.remotes))
	for _, rm := range s.remotes {
		names = append(names, rm.Name())
	}
	sess := s.facade.Session()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := homePage.Execute(w, map[string]any{
		"Name":          s.facade.DisplayName(),
		"Loading":       sess.IsLoading,
		"Authenticated": sess.IsAuthenticated,
		"Remotes":       names,
	})
	if err != nil {
		s.logger.ErrorContext(r.Context(), "render home", slog.Any("error", err))
	}
}

func (s *shell) login(w http.ResponseWriter, r *http.Request) {
	tw := &responseTracker{ResponseWriter: w}
	if err := s.facade.Login(s.requestContext(tw, r)); err != nil {
		if !tw.wrote {
			http.Redirect(w, r, middleware.DefaultLoginFailedPath, http.StatusFound)
		}
		return
	}
	if !tw.wrote {
		http.Redirect(w, r, "/", http.StatusFound)
	}
}

func (s *shell) logout(w http.ResponseWriter, r *http.Request) {
	tw := &responseTracker{ResponseWriter: w}
	if err := s.facade.Logout(s.requestContext(tw, r)); err != nil {
		if !tw.wrote {
			http.Error(w, "logout failed", http.StatusBadGateway)
		}
		return
	}
	if !tw.wrote {
		http.Redirect(w, r, "/", http.StatusFound)
	}
}

func (s *shell) loginFailed(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte("Sign-in could not be started. Try again later.\n"))
}

// graphProfile is the subset of the Graph /me resource shown on /profile.
type graphProfile struct {
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	JobTitle          string `json:"jobTitle"`
	OfficeLocation    string `json:"officeLocation"`
	UserPrincipalName string `json:"userPrincipalName"`
}

type profileResponse struct {
	Name       string        `json:"name"`
	Email      string        `json:"email"`
	Username   string        `json:"username"`
	TenantID   string        `json:"tenant_id"`
	Roles      []string      `json:"roles"`
	Graph      *graphProfile `json:"graph,omitempty"`
	GraphError string        `json:"graph_error,omitempty"`
}

func (s *shell) profile(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	resp := profileResponse{
		Name:     user.Name,
		Email:    user.Email,
		Username: user.Username,
		TenantID: user.TenantID,
		Roles:    user.Roles,
	}
	if s.graph != nil {
		me, err := s.fetchGraphProfile(r.Context())
		if err != nil {
			s.logger.WarnContext(r.Context(), "graph profile fetch failed", slog.Any("error", err))
			resp.GraphError = err.Error()
		} else {
			resp.Graph = me
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *shell) fetchGraphProfile(ctx context.Context) (*graphProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(s.graphBase, "/")+graphMePath, nil)
	if err != nil {
		return nil, err
	}
	res, err := s.graph.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("graph returned %s", res.Status)
	}
	var me graphProfile
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&me); err != nil {
		return nil, fmt.Errorf("decode graph profile: %w", err)
	}
	return &me, nil
}

const graphMePath = "/v1.0/me"

// newGraphClient attaches tokens for scopes to requests under base's /me
// endpoint.
func newGraphClient(tokens middleware.TokenSource, base string, scopes []string) *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &middleware.Transport{
			Tokens:    tokens,
			Resources: []middleware.ProtectedResource{{Prefix: strings.TrimRight(base, "/") + graphMePath, Scopes: scopes}},
		},
	}
}

func (s *shell) requestContext(w http.ResponseWriter, r *http.Request) context.Context {
	if s.loginContext == nil {
		return r.Context()
	}
	return s.loginContext(w, r)
}

type responseTracker struct {
	http.ResponseWriter
	wrote bool
}

func (w *responseTracker) WriteHeader(code int) {
	w.wrote = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseTracker) Write(b []byte) (int, error) {
	w.wrote = true
	return w.ResponseWriter.Write(b)
}
