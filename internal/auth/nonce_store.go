package auth

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// nonceStore holds single-use SIWE nonces until they expire.
type nonceStore struct {
	mu     sync.Mutex
	values map[string]time.Time
	ttl    time.Duration
	now    func() time.Time
}

func newNonceStore(ttl time.Duration) *nonceStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &nonceStore{
		values: make(map[string]time.Time),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *nonceStore) Issue() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	nonce := hex.EncodeToString(buf)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked()
	s.values[nonce] = s.now().Add(s.ttl)
	return nonce, nil
}

func (s *nonceStore) Has(nonce string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked()
	_, ok := s.values[nonce]
	return ok
}

// Take consumes nonce. Only one caller can take a given nonce.
func (s *nonceStore) Take(nonce string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked()
	if _, ok := s.values[nonce]; !ok {
		return false
	}
	delete(s.values, nonce)
	return true
}

func (s *nonceStore) cleanupLocked() {
	now := s.now()
	for nonce, expiry := range s.values {
		if now.After(expiry) {
			delete(s.values, nonce)
		}
	}
}
