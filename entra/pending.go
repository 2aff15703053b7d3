package entra

import (
	"sync"
	"time"

	fedAuth "github.com/MrEthical07/fedAuth"
)

// pendingLogin is an authorization request waiting for its callback.
type pendingLogin struct {
	state         string
	nonce         string
	verifier      string
	scopes        []string
	interaction   fedAuth.InteractionType
	correlationID string
	created       time.Time
	// waiter is set for popup logins.
	waiter chan loginOutcome
}

type loginOutcome struct {
	result *fedAuth.AuthenticationResult
	err    error
}

// pendingStore tracks in-flight logins by state and expires abandoned ones.
type pendingStore struct {
	mu      sync.Mutex
	entries map[string]*pendingLogin
	ttl     time.Duration
	now     func() time.Time

	// onExpire runs outside the lock after a sweep or take removed expired
	// entries, with the number of entries still pending.
	onExpire func(expired []*pendingLogin, remaining int)

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func newPendingStore(ttl time.Duration, onExpire func([]*pendingLogin, int)) *pendingStore {
	s := &pendingStore{
		entries:  make(map[string]*pendingLogin),
		ttl:      ttl,
		now:      time.Now,
		onExpire: onExpire,
		stop:     make(chan struct{}),
	}

	interval := ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stop:
				return
			}
		}
	}()
	return s
}

func (s *pendingStore) put(p *pendingLogin) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[p.state] = p
}

// take removes and returns the entry for state. An expired entry is handed
// to onExpire as a sweep would, and take returns nil.
func (s *pendingStore) take(state string) *pendingLogin {
	s.mu.Lock()
	p, ok := s.entries[state]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.entries, state)
	if s.now().Sub(p.created) <= s.ttl {
		s.mu.Unlock()
		return p
	}
	remaining := len(s.entries)
	s.mu.Unlock()

	if s.onExpire != nil {
		s.onExpire([]*pendingLogin{p}, remaining)
	}
	return nil
}

func (s *pendingStore) remove(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, state)
}

func (s *pendingStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *pendingStore) sweep() {
	now := s.now()

	s.mu.Lock()
	var expired []*pendingLogin
	for state, p := range s.entries {
		if now.Sub(p.created) > s.ttl {
			expired = append(expired, p)
			delete(s.entries, state)
		}
	}
	remaining := len(s.entries)
	s.mu.Unlock()

	if len(expired) > 0 && s.onExpire != nil {
		s.onExpire(expired, remaining)
	}
}

func (s *pendingStore) close() {
	s.once.Do(func() {
		close(s.stop)
		s.wg.Wait()
	})
}
