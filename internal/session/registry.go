// Package session tracks which authenticated identities are connected to the
// relay. The Registry is the single source of truth for presence.
package session

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrDuplicateConnection is returned when a connection id is registered twice.
	ErrDuplicateConnection = errors.New("connection already registered")
	// ErrNotFound is returned when deregistering an unknown connection id.
	ErrNotFound = errors.New("connection not registered")
)

// Session binds one live connection to its authenticated identity.
type Session struct {
	ConnectionID string
	Identity     string
	ConnectedAt  time.Time
}

// Presence is the derived view of who is online: one identity per live
// connection, in registration order.
type Presence struct {
	Users []string
	Count int
}

// Registry maps connection ids to sessions. All methods are safe for
// concurrent use; none perform I/O while holding the lock.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
	order    []string
	now      func() time.Time
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]Session),
		now:      time.Now,
	}
}

// Register inserts a session for connectionID.
func (r *Registry) Register(connectionID, identity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[connectionID]; exists {
		return ErrDuplicateConnection
	}

	r.sessions[connectionID] = Session{
		ConnectionID: connectionID,
		Identity:     identity,
		ConnectedAt:  r.now(),
	}
	r.order = append(r.order, connectionID)
	return nil
}

// Deregister removes and returns the session for connectionID. A second call
// for the same id returns ErrNotFound.
func (r *Registry) Deregister(connectionID string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.sessions[connectionID]
	if !exists {
		return Session{}, ErrNotFound
	}

	delete(r.sessions, connectionID)
	for i, id := range r.order {
		if id == connectionID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return s, nil
}

// Lookup returns the session registered under connectionID.
func (r *Registry) Lookup(connectionID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[connectionID]
	return s, ok
}

// Sessions returns a copy of all live sessions in registration order.
func (r *Registry) Sessions() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Session, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sessions[id])
	}
	return out
}

// Snapshot returns the current presence view.
func (r *Registry) Snapshot() Presence {
	return PresenceOf(r.Sessions())
}

// Size returns the number of live sessions.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// PresenceOf derives the presence view from an ordered session list.
func PresenceOf(sessions []Session) Presence {
	users := make([]string, 0, len(sessions))
	for _, s := range sessions {
		users = append(users, s.Identity)
	}
	return Presence{Users: users, Count: len(users)}
}
