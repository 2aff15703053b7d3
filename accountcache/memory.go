package accountcache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process [Cache]. It keeps sign-ins for one process only.
type Memory struct {
	mu       sync.RWMutex
	accounts map[string]Record
	active   string
	tokens   map[string]map[string]TokenEntry
	now      func() time.Time
}

var _ Cache = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[string]Record),
		tokens:   make(map[string]map[string]TokenEntry),
		now:      time.Now,
	}
}

func (m *Memory) SaveAccount(_ context.Context, rec *Record) error {
	if rec == nil || rec.HomeAccountID == "" {
		return errors.New("record requires home account id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.CachedAt == 0 {
		rec.CachedAt = m.now().Unix()
	}
	m.accounts[rec.HomeAccountID] = *rec
	return nil
}

func (m *Memory) Accounts(context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.accounts) == 0 {
		return nil, nil
	}
	out := make([]Record, 0, len(m.accounts))
	for _, r := range m.accounts {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CachedAt != out[j].CachedAt {
			return out[i].CachedAt < out[j].CachedAt
		}
		return out[i].HomeAccountID < out[j].HomeAccountID
	})
	return out, nil
}

func (m *Memory) Account(_ context.Context, homeAccountID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.accounts[homeAccountID]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *Memory) SetActive(_ context.Context, homeAccountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = homeAccountID
	return nil
}

func (m *Memory) Active(context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active, nil
}

func (m *Memory) RemoveAccount(_ context.Context, homeAccountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accounts, homeAccountID)
	delete(m.tokens, homeAccountID)
	if m.active == homeAccountID {
		m.active = ""
	}
	return nil
}

func (m *Memory) RemoveAll(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts = make(map[string]Record)
	m.tokens = make(map[string]map[string]TokenEntry)
	m.active = ""
	return nil
}

func (m *Memory) SaveToken(_ context.Context, homeAccountID string, tok *TokenEntry) error {
	if tok == nil || tok.AccessToken == "" {
		return errors.New("token entry requires an access token")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	byScope, ok := m.tokens[homeAccountID]
	if !ok {
		byScope = make(map[string]TokenEntry)
		m.tokens[homeAccountID] = byScope
	}
	entry := *tok
	entry.Scopes = append([]string(nil), tok.Scopes...)
	byScope[ScopeKey(tok.Scopes)] = entry
	return nil
}

func (m *Memory) Token(_ context.Context, homeAccountID string, scopes []string) (*TokenEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	keys := make([]string, 0, len(m.tokens[homeAccountID]))
	for k := range m.tokens[homeAccountID] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		tok := m.tokens[homeAccountID][k]
		if tok.Expired(now, 0) {
			delete(m.tokens[homeAccountID], k)
			continue
		}
		if CoversScopes(tok.Scopes, scopes) {
			return &tok, nil
		}
	}
	return nil, ErrNotFound
}
