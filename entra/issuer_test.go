package entra_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/MrEthical07/fedAuth/idtoken"
)

const testClientID = "client-1"

type testUser struct {
	oid   string
	tid   string
	name  string
	email string
	roles []string
}

type authCode struct {
	nonce     string
	challenge string
	scope     string
	user      testUser
}

// fakeIssuer is a minimal OpenID Connect issuer: discovery, JWKS, token and
// end-session endpoints.
type fakeIssuer struct {
	t      *testing.T
	srv    *httptest.Server
	tokens *idtoken.Manager

	mu            sync.Mutex
	codes         map[string]authCode
	refreshTokens map[string]testUser
	wrongNonce    bool
	seq           int

	refreshes atomic.Int64
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	fi := &fakeIssuer{
		t:             t,
		codes:         map[string]authCode{},
		refreshTokens: map[string]testUser{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", fi.discovery)
	mux.HandleFunc("/keys", fi.keys)
	mux.HandleFunc("/token", fi.token)
	fi.srv = httptest.NewServer(mux)
	t.Cleanup(fi.srv.Close)

	fi.tokens, err = idtoken.NewManager(idtoken.Config{
		SigningMethod: idtoken.MethodRS256,
		PrivateKey:    pemKey,
		Issuer:        fi.srv.URL,
		Audience:      testClientID,
		KeyID:         "k1",
	})
	if err != nil {
		t.Fatalf("new token manager: %v", err)
	}
	return fi
}

func (fi *fakeIssuer) URL() string { return fi.srv.URL }

func (fi *fakeIssuer) discovery(w http.ResponseWriter, r *http.Request) {
	base := fi.srv.URL
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"issuer":                                base,
		"authorization_endpoint":                base + "/authorize",
		"token_endpoint":                        base + "/token",
		"jwks_uri":                              base + "/keys",
		"end_session_endpoint":                  base + "/logout",
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (fi *fakeIssuer) keys(w http.ResponseWriter, r *http.Request) {
	body, err := fi.tokens.JWKS()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

// authorize plays the user agreeing at the authorization endpoint and returns
// a code for the given request parameters.
func (fi *fakeIssuer) authorize(user testUser, nonce, challenge, scope string) string {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	fi.seq++
	code := fmt.Sprintf("code-%d", fi.seq)
	fi.codes[code] = authCode{nonce: nonce, challenge: challenge, scope: scope, user: user}
	return code
}

func (fi *fakeIssuer) setWrongNonce(v bool) {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	fi.wrongNonce = v
}

func (fi *fakeIssuer) revokeRefreshTokens() {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	fi.refreshTokens = map[string]testUser{}
}

func (fi *fakeIssuer) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		tokenError(w, "invalid_request")
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		fi.mu.Lock()
		code, ok := fi.codes[r.PostForm.Get("code")]
		delete(fi.codes, r.PostForm.Get("code"))
		wrongNonce := fi.wrongNonce
		fi.mu.Unlock()
		if !ok {
			tokenError(w, "invalid_grant")
			return
		}
		sum := sha256.Sum256([]byte(r.PostForm.Get("code_verifier")))
		if base64.RawURLEncoding.EncodeToString(sum[:]) != code.challenge {
			tokenError(w, "invalid_grant")
			return
		}
		nonce := code.nonce
		if wrongNonce {
			nonce = "other"
		}
		fi.writeTokens(w, code.user, nonce, code.scope)

	case "refresh_token":
		fi.mu.Lock()
		user, ok := fi.refreshTokens[r.PostForm.Get("refresh_token")]
		delete(fi.refreshTokens, r.PostForm.Get("refresh_token"))
		fi.mu.Unlock()
		if !ok {
			tokenError(w, "invalid_grant")
			return
		}
		fi.refreshes.Add(1)
		fi.writeTokens(w, user, "", "openid profile offline_access User.Read")

	default:
		tokenError(w, "unsupported_grant_type")
	}
}

func (fi *fakeIssuer) writeTokens(w http.ResponseWriter, user testUser, nonce, scope string) {
	idToken, err := fi.tokens.Issue(idtoken.Claims{
		Name:              user.name,
		PreferredUsername: user.email,
		OID:               user.oid,
		TID:               user.tid,
		Roles:             user.roles,
		Nonce:             nonce,
		RegisteredClaims:  jwt.RegisteredClaims{Subject: "sub-" + user.oid},
	})
	if err != nil {
		fi.t.Errorf("issue id token: %v", err)
		tokenError(w, "server_error")
		return
	}

	fi.mu.Lock()
	fi.seq++
	refresh := fmt.Sprintf("rt-%d", fi.seq)
	access := fmt.Sprintf("at-%d", fi.seq)
	fi.refreshTokens[refresh] = user
	fi.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  access,
		"token_type":    "Bearer",
		"expires_in":    3600,
		"refresh_token": refresh,
		"id_token":      idToken,
		"scope":         scope,
	})
}

func tokenError(w http.ResponseWriter, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}
