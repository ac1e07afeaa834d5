package auth

import (
	"context"
	"sync"
	"time"
)

// TokenRevocationStore holds revoked token ids and per-user revocation
// cutoffs in memory. Entries are dropped once the token would have expired.
type TokenRevocationStore struct {
	mu      sync.RWMutex
	entries map[string]RevocationInfo // jti -> entry
	users   map[string]time.Time      // user id -> tokens issued before are revoked
	now     func() time.Time
}

// RevocationInfo is one revoked token.
type RevocationInfo struct {
	JTI       string    `json:"jti"`
	UserID    string    `json:"user_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewTokenRevocationStore() *TokenRevocationStore {
	return &TokenRevocationStore{
		entries: make(map[string]RevocationInfo),
		users:   make(map[string]time.Time),
		now:     time.Now,
	}
}

// Revoke rejects the token jti until expiresAt.
func (s *TokenRevocationStore) Revoke(jti, userID string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[jti] = RevocationInfo{JTI: jti, UserID: userID, ExpiresAt: expiresAt}
}

// RevokeUser rejects every token of userID issued before now.
func (s *TokenRevocationStore) RevokeUser(userID string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	at := s.now()
	s.users[userID] = at
	return at
}

func (s *TokenRevocationStore) IsRevoked(jti string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[jti]
	return ok
}

// IsUserRevoked reports whether a token of userID issued at issuedAt falls
// before the user's revocation cutoff.
func (s *TokenRevocationStore) IsUserRevoked(userID string, issuedAt time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff, ok := s.users[userID]
	return ok && !issuedAt.After(cutoff)
}

func (s *TokenRevocationStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Entries returns a snapshot of the revoked tokens.
func (s *TokenRevocationStore) Entries() []RevocationInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RevocationInfo, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out
}

// Start removes expired entries every interval until ctx is cancelled.
func (s *TokenRevocationStore) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *TokenRevocationStore) cleanup() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for jti, e := range s.entries {
		if now.After(e.ExpiresAt) {
			delete(s.entries, jti)
		}
	}
}
