// Package session holds the process-wide authenticated state: the current
// user and the local credentials and cached data that belong to them.
package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// User is the authenticated account as returned by /users/me
type User struct {
	ID        int       `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clearer is anything holding per-user state that must go on logout
type Clearer interface {
	Clear() error
}

// Session tracks the current user. Teardown wipes cookies and cached
// responses so a later login never sees the previous user's data.
type Session struct {
	mu        sync.Mutex
	user      *User
	cleared   bool
	teardowns int
	stores    []Clearer
	logger    zerolog.Logger
}

// New returns a session that owns the given stores. It starts uncleared
// because persisted cookies may still carry a valid login.
func New(logger zerolog.Logger, stores ...Clearer) *Session {
	return &Session{
		stores: stores,
		logger: logger.With().Str("component", "session").Logger(),
	}
}

// User returns the cached user, or nil when nobody is known to be logged in
func (s *Session) User() *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// SetUser records a successful login and starts a new authenticated period
func (s *Session) SetUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = &u
	s.cleared = false
}

// Authenticated reports whether a user is cached
func (s *Session) Authenticated() bool {
	return s.User() != nil
}

// Teardown clears the user and every owned store. It runs at most once per
// authenticated period and reports whether this call did the clearing.
func (s *Session) Teardown(reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cleared {
		return false
	}
	s.cleared = true
	s.user = nil
	s.teardowns++

	for _, st := range s.stores {
		if err := st.Clear(); err != nil {
			s.logger.Error().Err(err).Msg("Failed to clear session store")
		}
	}

	s.logger.Info().Str("reason", reason).Msg("Session cleared")
	return true
}

// Reset drops whatever the stores hold before a new login, even when no user
// is cached in this process. It does not count as a teardown.
func (s *Session) Reset(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.user = nil
	s.cleared = true
	for _, st := range s.stores {
		if err := st.Clear(); err != nil {
			s.logger.Error().Err(err).Msg("Failed to clear session store")
		}
	}
	s.logger.Debug().Str("reason", reason).Msg("Session reset")
}

// Teardowns counts how many times the session was actually cleared
func (s *Session) Teardowns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.teardowns
}
