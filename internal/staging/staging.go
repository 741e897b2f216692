// Package staging holds uploaded payloads between the preview and confirm
// steps of the two-phase upload flow, addressed by short-lived opaque
// tokens.
package staging

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultTTL is how long a staged payload stays retrievable after preview.
const DefaultTTL = 15 * time.Minute

// Store is the token-addressed holding area for uploaded bytes. Expiry is
// lazy: entries are checked on access and swept by PurgeExpired, which
// upload handlers call at the start of each request. There is no background
// sweeper.
type Store struct {
	ttl   time.Duration
	clock clockwork.Clock

	mu      sync.Mutex
	entries map[string]entry
}

type entry struct {
	payload   []byte
	createdAt time.Time
}

// New builds a store with the given TTL. A zero ttl means DefaultTTL.
func New(ttl time.Duration, clock clockwork.Clock) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]entry),
	}
}

// Save stages a payload under a fresh unpredictable token (256 bits of
// entropy) and returns the token. The payload is copied; the caller's slice
// can be reused.
func (s *Store) Save(payload []byte) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}
	held := make([]byte, len(payload))
	copy(held, payload)

	s.mu.Lock()
	s.entries[token] = entry{payload: held, createdAt: s.clock.Now()}
	s.mu.Unlock()
	return token, nil
}

// Load returns a copy of the staged payload for a token, so callers cannot
// corrupt the held bytes between preview and confirm. Unknown tokens and
// expired entries both report not-found; an expired entry is removed on the
// spot.
func (s *Store) Load(token string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[token]
	if !ok {
		return nil, false
	}
	if s.clock.Since(e.createdAt) >= s.ttl {
		delete(s.entries, token)
		return nil, false
	}
	out := make([]byte, len(e.payload))
	copy(out, e.payload)
	return out, true
}

// Consume removes an entry unconditionally so a confirmed token cannot be
// replayed.
func (s *Store) Consume(token string) {
	s.mu.Lock()
	delete(s.entries, token)
	s.mu.Unlock()
}

// PurgeExpired sweeps every entry past its TTL and returns how many were
// removed.
func (s *Store) PurgeExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, e := range s.entries {
		if s.clock.Since(e.createdAt) >= s.ttl {
			delete(s.entries, token)
			removed++
		}
	}
	return removed
}

// Len reports how many payloads are currently staged, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func newToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate upload token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
