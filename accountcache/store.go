package accountcache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const removeAllScript = `
local homes = redis.call("SMEMBERS", KEYS[1])
for _, home in ipairs(homes) do
  redis.call("DEL", ARGV[1] .. home)
  local index = ARGV[2] .. home
  local toks = redis.call("SMEMBERS", index)
  for _, tk in ipairs(toks) do
    redis.call("DEL", tk)
  end
  redis.call("DEL", index)
end
redis.call("DEL", KEYS[1])
redis.call("DEL", KEYS[2])
return #homes
`

var removeAllLua = redis.NewScript(removeAllScript)

const removeAccountScript = `
local existed = redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
local toks = redis.call("SMEMBERS", KEYS[3])
for _, tk in ipairs(toks) do
  redis.call("DEL", tk)
end
redis.call("DEL", KEYS[3])
if redis.call("GET", KEYS[4]) == ARGV[1] then
  redis.call("DEL", KEYS[4])
end
return existed
`

var removeAccountLua = redis.NewScript(removeAccountScript)

// Store is a Redis-backed [Cache] scoped to one client registration.
type Store struct {
	redis    redis.UniversalClient
	prefix   string
	clientID string
	now      func() time.Time
}

var _ Cache = (*Store)(nil)

// NewStore creates a Store. prefix namespaces every key; clientID separates
// applications sharing one Redis.
func NewStore(rdb redis.UniversalClient, prefix, clientID string) *Store {
	if prefix == "" {
		prefix = "fa"
	}
	return &Store{
		redis:    rdb,
		prefix:   prefix,
		clientID: clientID,
		now:      time.Now,
	}
}

func (s *Store) accountKey(home string) string {
	return s.accountKeyPrefix() + home
}

func (s *Store) accountKeyPrefix() string {
	return s.prefix + ":acct:" + s.clientID + ":"
}

func (s *Store) indexKey() string {
	return s.prefix + ":accts:" + s.clientID
}

func (s *Store) activeKey() string {
	return s.prefix + ":active:" + s.clientID
}

func (s *Store) tokenKey(home string, scopes []string) string {
	return s.prefix + ":tok:" + s.clientID + ":" + home + ":" + ScopeKey(scopes)
}

func (s *Store) tokenIndexKey(home string) string {
	return s.tokenIndexPrefix() + home
}

func (s *Store) tokenIndexPrefix() string {
	return s.prefix + ":toks:" + s.clientID + ":"
}

// SaveAccount writes rec and adds it to the account index.
func (s *Store) SaveAccount(ctx context.Context, rec *Record) error {
	if rec == nil || rec.HomeAccountID == "" {
		return errors.New("record requires home account id")
	}
	if rec.CachedAt == 0 {
		rec.CachedAt = s.now().Unix()
	}
	data, err := EncodeRecord(rec)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.accountKey(rec.HomeAccountID), data, 0)
		pipe.SAdd(ctx, s.indexKey(), rec.HomeAccountID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Accounts returns every cached account, oldest first. Index entries whose
// record has vanished are pruned.
func (s *Store) Accounts(ctx context.Context) ([]Record, error) {
	homes, err := s.redis.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(homes) == 0 {
		return nil, nil
	}
	sort.Strings(homes)

	keys := make([]string, len(homes))
	for i, h := range homes {
		keys[i] = s.accountKey(h)
	}
	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	out := make([]Record, 0, len(values))
	var stale []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, homes[i])
			continue
		}
		rec, version, err := DecodeRecord([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRecordCorrupt, err)
		}
		if err := s.maybeMigrate(ctx, rec, version); err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, s.indexKey(), stale...).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CachedAt < out[j].CachedAt
	})
	return out, nil
}

// Account returns one cached account or [ErrNotFound].
func (s *Store) Account(ctx context.Context, homeAccountID string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.accountKey(homeAccountID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	rec, version, err := DecodeRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecordCorrupt, err)
	}
	if err := s.maybeMigrate(ctx, rec, version); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) maybeMigrate(ctx context.Context, rec *Record, version uint8) error {
	if version == recordFormatVersionCurrent {
		return nil
	}
	data, err := EncodeRecord(rec)
	if err != nil {
		return err
	}
	if err := s.redis.SetArgs(ctx, s.accountKey(rec.HomeAccountID), data, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// SetActive records the active account pointer.
func (s *Store) SetActive(ctx context.Context, homeAccountID string) error {
	if homeAccountID == "" {
		if err := s.redis.Del(ctx, s.activeKey()).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return nil
	}
	if err := s.redis.Set(ctx, s.activeKey(), homeAccountID, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Active returns the active home account id, or "" when none is set.
func (s *Store) Active(ctx context.Context) (string, error) {
	home, err := s.redis.Get(ctx, s.activeKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return home, nil
}

// RemoveAccount deletes one account, its tokens and, if it was active, the
// active pointer. Removing an absent account is not an error.
func (s *Store) RemoveAccount(ctx context.Context, homeAccountID string) error {
	keys := []string{
		s.accountKey(homeAccountID),
		s.indexKey(),
		s.tokenIndexKey(homeAccountID),
		s.activeKey(),
	}
	if err := removeAccountLua.Run(ctx, s.redis, keys, homeAccountID).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// RemoveAll atomically deletes every account, token and the active pointer.
func (s *Store) RemoveAll(ctx context.Context) error {
	keys := []string{s.indexKey(), s.activeKey()}
	if err := removeAllLua.Run(ctx, s.redis, keys, s.accountKeyPrefix(), s.tokenIndexPrefix()).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// SaveToken caches tok until it expires.
func (s *Store) SaveToken(ctx context.Context, homeAccountID string, tok *TokenEntry) error {
	if tok == nil || tok.AccessToken == "" {
		return errors.New("token entry requires an access token")
	}
	ttl := time.Until(time.Unix(tok.ExpiresAt, 0))
	if ttl <= 0 {
		return nil
	}
	data, err := EncodeToken(tok)
	if err != nil {
		return err
	}

	key := s.tokenKey(homeAccountID, tok.Scopes)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, ttl)
		pipe.SAdd(ctx, s.tokenIndexKey(homeAccountID), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Token returns a cached token whose scopes cover scopes, or [ErrNotFound].
func (s *Store) Token(ctx context.Context, homeAccountID string, scopes []string) (*TokenEntry, error) {
	index := s.tokenIndexKey(homeAccountID)
	keys, err := s.redis.SMembers(ctx, index).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(keys) == 0 {
		return nil, ErrNotFound
	}
	sort.Strings(keys)

	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	now := s.now()
	var found *TokenEntry
	var stale []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, keys[i])
			continue
		}
		tok, err := DecodeToken([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRecordCorrupt, err)
		}
		if found == nil && !tok.Expired(now, 0) && CoversScopes(tok.Scopes, scopes) {
			found = tok
		}
	}
	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, index, stale...).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

// ScopeKey normalises scopes into a stable key: lower-cased, de-duplicated
// and sorted.
func ScopeKey(scopes []string) string {
	set := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			set[s] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return strings.Join(out, " ")
}

// CoversScopes reports whether granted includes every requested scope,
// ignoring case.
func CoversScopes(granted, requested []string) bool {
	for _, want := range requested {
		ok := false
		for _, have := range granted {
			if strings.EqualFold(have, want) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}
