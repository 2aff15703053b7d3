package remotes

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	fedAuth "github.com/MrEthical07/fedAuth"
	"github.com/MrEthical07/fedAuth/federation"
)

// Item is one catalogue entry served by a remote.
type Item struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price,omitempty"`
}

// Options configures a [Remote].
type Options struct {
	// Name is also the mount path.
	Name string
	// ProviderName is the federation name of the shared identity provider.
	ProviderName string
	Requirement  federation.Requirement
	// TokenScopes, when set, makes the remote acquire a token silently before
	// answering, as a remote calling its own API would.
	TokenScopes []string
	// RequiredRoles, when set, limits the remote to accounts holding one of
	// these app roles.
	RequiredRoles []string
	Items         []Item
	Logger        *slog.Logger
}

// Remote serves a small authenticated feature area.
type Remote struct {
	name     string
	provider fedAuth.IdentityProvider
	scopes   []string
	roles    []string
	items    []Item
	logger   *slog.Logger
}

type listResponse struct {
	Remote        string `json:"remote"`
	Account       string `json:"account"`
	TokenAcquired bool   `json:"token_acquired"`
	Items         []Item `json:"items"`
}

// New resolves the shared provider from scope.
func New(scope *federation.Scope, opts Options) (*Remote, error) {
	if opts.Name == "" {
		return nil, errors.New("remote name is required")
	}
	provider, err := federation.Resolve[fedAuth.IdentityProvider](scope, opts.ProviderName, opts.Requirement)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Remote{
		name:     opts.Name,
		provider: provider,
		scopes:   append([]string(nil), opts.TokenScopes...),
		roles:    append([]string(nil), opts.RequiredRoles...),
		items:    append([]Item(nil), opts.Items...),
		logger:   logger.With("component", "remote", "remote", opts.Name),
	}, nil
}

// Name returns the mount name.
func (rm *Remote) Name() string { return rm.name }

// RequiredRoles returns the roles the host must check before mounting.
func (rm *Remote) RequiredRoles() []string { return append([]string(nil), rm.roles...) }

// Routes registers the remote's handlers on r.
func (rm *Remote) Routes(r chi.Router) {
	r.Get("/", rm.list)
	r.Get("/{id}", rm.get)
}

func (rm *Remote) list(w http.ResponseWriter, r *http.Request) {
	resp, ok := rm.authorize(w, r)
	if !ok {
		return
	}
	resp.Items = rm.items
	writeJSON(w, http.StatusOK, resp)
}

func (rm *Remote) get(w http.ResponseWriter, r *http.Request) {
	resp, ok := rm.authorize(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	for _, item := range rm.items {
		if item.ID == id {
			resp.Items = []Item{item}
			writeJSON(w, http.StatusOK, resp)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
}

// authorize reads the shared provider's active account and, when configured,
// acquires a token for it.
func (rm *Remote) authorize(w http.ResponseWriter, r *http.Request) (listResponse, bool) {
	ctx := r.Context()
	account, err := rm.provider.ActiveAccount(ctx)
	if err != nil {
		rm.logger.ErrorContext(ctx, "active account lookup failed", slog.Any("error", err))
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "identity provider unavailable"})
		return listResponse{}, false
	}
	if account == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not signed in"})
		return listResponse{}, false
	}

	resp := listResponse{Remote: rm.name, Account: account.Username}
	if len(rm.scopes) > 0 {
		result, err := rm.provider.AcquireTokenSilent(ctx, fedAuth.SilentRequest{
			Scopes:  rm.scopes,
			Account: account,
		})
		if err != nil {
			rm.logger.WarnContext(ctx, "silent token acquisition failed", slog.Any("error", err))
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "token unavailable"})
			return listResponse{}, false
		}
		resp.TokenAcquired = result != nil && result.AccessToken != ""
	}
	return resp, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
