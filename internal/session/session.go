// Package session provides the tenant/session context for the mobile app:
// the currently authenticated user, the factory the session is scoped to,
// and a subscription surface for authentication-state transitions.
package session

import (
	"errors"
	"sync"
)

// Predefined session errors.
var (
	// ErrNoSession indicates no user is currently authenticated.
	ErrNoSession = errors.New("no active session")

	// ErrMissingFactory indicates the session carries no factory scope.
	ErrMissingFactory = errors.New("session has no factory context")
)

// Session is the authenticated user context. FactoryID scopes every backend
// call to the user's factory (tenant).
type Session struct {
	UserID      string
	FactoryID   string
	AccessToken string
}

// Status is the authentication state of the app.
type Status string

const (
	StatusAuthenticated   Status = "authenticated"
	StatusUnauthenticated Status = "unauthenticated"
)

// Change is an authentication-state transition delivered to subscribers.
// Session is only populated when Status is StatusAuthenticated.
type Change struct {
	Status  Status
	Session Session
}

// Provider exposes the current session and its transitions. The lifecycle
// controller receives a Provider at construction instead of reaching into
// global state.
type Provider interface {
	// Current returns the active session, if any.
	Current() (Session, bool)

	// Subscribe registers a transition observer and returns a disposer.
	Subscribe(fn func(Change)) (unsubscribe func())
}

// Store is an in-memory session Provider driven by the app shell's login
// and logout flows.
type Store struct {
	mu      sync.Mutex
	current *Session
	subs    map[uint64]func(Change)
	nextID  uint64
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{subs: make(map[uint64]func(Change))}
}

// Current returns the active session, if any.
func (s *Store) Current() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Session{}, false
	}
	return *s.current, true
}

// Subscribe registers a transition observer and returns a disposer.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Login installs sess as the active session and notifies subscribers.
func (s *Store) Login(sess Session) {
	s.mu.Lock()
	s.current = &sess
	subs := s.snapshot()
	s.mu.Unlock()

	change := Change{Status: StatusAuthenticated, Session: sess}
	for _, fn := range subs {
		fn(change)
	}
}

// LoginWithToken parses a backend access token and installs the session it
// describes.
func (s *Store) LoginWithToken(accessToken string) (Session, error) {
	sess, err := ParseAccessToken(accessToken)
	if err != nil {
		return Session{}, err
	}
	s.Login(sess)
	return sess, nil
}

// Logout clears the active session and notifies subscribers.
func (s *Store) Logout() {
	s.mu.Lock()
	s.current = nil
	subs := s.snapshot()
	s.mu.Unlock()

	change := Change{Status: StatusUnauthenticated}
	for _, fn := range subs {
		fn(change)
	}
}

// snapshot copies subscribers so notification happens outside the lock.
func (s *Store) snapshot() []func(Change) {
	out := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}
