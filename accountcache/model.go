package accountcache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when an account or token is not cached.
	ErrNotFound = errors.New("not found in account cache")
	// ErrRedisUnavailable wraps transport failures talking to Redis.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrRecordCorrupt is returned when a stored blob cannot be decoded.
	ErrRecordCorrupt = errors.New("account cache record corrupt")
)

// Record is the cached form of a signed-in account.
type Record struct {
	HomeAccountID  string
	LocalAccountID string
	Environment    string
	TenantID       string
	Username       string
	Name           string
	IDToken        string
	RefreshToken   string
	CachedAt       int64
}

// TokenEntry is a cached access token.
type TokenEntry struct {
	AccessToken string
	Scopes      []string
	ExpiresAt   int64
}

// Expired reports whether the token is unusable at now, allowing skew.
func (t *TokenEntry) Expired(now time.Time, skew time.Duration) bool {
	return t == nil || now.Add(skew).Unix() >= t.ExpiresAt
}

// Cache is the account and token cache used by identity providers.
type Cache interface {
	SaveAccount(ctx context.Context, rec *Record) error
	Accounts(ctx context.Context) ([]Record, error)
	Account(ctx context.Context, homeAccountID string) (*Record, error)
	SetActive(ctx context.Context, homeAccountID string) error
	Active(ctx context.Context) (string, error)
	RemoveAccount(ctx context.Context, homeAccountID string) error
	RemoveAll(ctx context.Context) error
	SaveToken(ctx context.Context, homeAccountID string, tok *TokenEntry) error
	Token(ctx context.Context, homeAccountID string, scopes []string) (*TokenEntry, error)
}
