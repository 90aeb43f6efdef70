// Package session holds the single source of truth for "am I logged in and
// as whom". The store is mutated only by the session validator (hydrate)
// and by logout/delete (clear); everything else reads.
package session

import (
	"sync"
	"time"
)

// User is the authenticated identity as reported by the identity endpoint.
type User struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Phone string   `json:"phone,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// Credential is the short-lived access credential. In cookie-mode
// deployments the token value is held by the browser-style cookie jar and
// the struct may be absent entirely.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// Valid reports whether the credential has not expired at the given
// instant. A zero expiry means the server did not disclose one and the
// credential is taken at face value.
func (c Credential) Valid(at time.Time) bool {
	return c.ExpiresAt.IsZero() || at.Before(c.ExpiresAt)
}

// Store is the session state container. All methods are safe for
// concurrent use; a synchronous reader never observes a half-applied
// hydrate or clear.
type Store struct {
	mu            sync.RWMutex
	user          *User
	credential    *Credential
	authenticated bool
}

func NewStore() *Store {
	return &Store{}
}

// Hydrate installs the identity and its credential together. cred may be
// nil in cookie-mode deployments where the credential never reaches the
// client. After Hydrate the store reports authenticated.
func (s *Store) Hydrate(user User, cred *Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := user
	u.Roles = append([]string(nil), user.Roles...)
	s.user = &u
	if cred != nil {
		c := *cred
		s.credential = &c
	} else {
		s.credential = nil
	}
	s.authenticated = true
}

// Clear unsets identity and credential atomically. Idempotent.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.user = nil
	s.credential = nil
	s.authenticated = false
}

// IsAuthenticated reports whether a hydrated identity is present.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// User returns a copy of the current identity, if any.
func (s *Store) User() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return User{}, false
	}
	u := *s.user
	u.Roles = append([]string(nil), s.user.Roles...)
	return u, true
}

// Credential returns a copy of the current access credential, if any.
func (s *Store) Credential() (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.credential == nil {
		return Credential{}, false
	}
	return *s.credential, true
}

// HasRole reports whether the current user carries the given role. It
// returns false, never an error, when unauthenticated: this is a UI
// convenience, not a security boundary.
func (s *Store) HasRole(role string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.authenticated || s.user == nil {
		return false
	}
	for _, r := range s.user.Roles {
		if r == role {
			return true
		}
	}
	return false
}
