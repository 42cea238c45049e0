package relay

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Tyrowin/presence-relay/internal/event"
	"github.com/Tyrowin/presence-relay/internal/session"
)

// ErrInvalidState is returned when a lifecycle step is attempted from the
// wrong connection state.
var ErrInvalidState = errors.New("invalid connection state")

// Verifier validates a bearer credential and returns the identity it asserts.
type Verifier interface {
	Verify(token string) (string, error)
}

// Transport delivers serialized payloads to open connections. Sends to
// connections that are gone must fail without side effects.
type Transport interface {
	Send(connectionID string, payload []byte) error
}

// State is a connection's position in its lifecycle.
type State int

const (
	StateConnecting State = iota
	StateAuthenticated
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection is the lifecycle record of one transport connection.
type Connection struct {
	mu       sync.Mutex
	id       string
	identity string
	state    State
}

// ID returns the connection id assigned on activation.
func (c *Connection) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Identity returns the authenticated identity, empty before authentication.
func (c *Connection) Identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Option configures a Manager.
type Option func(*Manager)

// WithGreeting makes the manager send a connected event with message to
// every connection as soon as it becomes active.
func WithGreeting(message string) Option {
	return func(m *Manager) { m.greeting = message }
}

// WithDefaultTag makes the manager decode untyped frames as tag.
func WithDefaultTag(tag event.Tag) Option {
	return func(m *Manager) { m.decoder = event.NewDecoder(tag) }
}

// Manager orchestrates authenticate, register, announce, relay, deregister
// and announce-leave for every connection of one channel.
type Manager struct {
	verifier  Verifier
	registry  *session.Registry
	router    *Router
	decoder   *event.Decoder
	transport Transport
	greeting  string
}

// NewManager wires a lifecycle manager. The registry must be the one the
// router reads from.
func NewManager(verifier Verifier, registry *session.Registry, router *Router, transport Transport, opts ...Option) *Manager {
	m := &Manager{
		verifier:  verifier,
		registry:  registry,
		router:    router,
		decoder:   event.NewDecoder(""),
		transport: transport,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Presence returns the channel's current presence view.
func (m *Manager) Presence() session.Presence {
	return m.registry.Snapshot()
}

// Authenticate starts a connection and verifies its credential. On failure
// the returned connection is already closed and no session exists for it.
func (m *Manager) Authenticate(token string) (*Connection, error) {
	conn := &Connection{state: StateConnecting}

	identity, err := m.verifier.Verify(token)
	if err != nil {
		conn.state = StateClosed
		return conn, err
	}

	conn.identity = identity
	conn.state = StateAuthenticated
	return conn, nil
}

// Activate registers the session for an authenticated connection under
// connectionID and announces it. A duplicate id closes this connection only.
func (m *Manager) Activate(conn *Connection, connectionID string) error {
	conn.mu.Lock()
	defer conn.mu.Unlock()

	if conn.state != StateAuthenticated {
		return ErrInvalidState
	}

	if err := m.registry.Register(connectionID, conn.identity); err != nil {
		conn.state = StateClosed
		log.Error().Err(err).Str("conn", connectionID).Str("identity", conn.identity).Msg("Rejecting connection")
		return err
	}
	conn.id = connectionID
	conn.state = StateActive

	log.Info().Str("conn", connectionID).Str("identity", conn.identity).
		Int("clients", m.registry.Size()).Msg("Session registered")

	if plan, err := m.router.Presence(event.PresenceJoined, conn.identity); err != nil {
		log.Error().Err(err).Str("conn", connectionID).Msg("Error building join announcement")
	} else {
		m.dispatch(plan)
	}

	if m.greeting != "" {
		plan, err := m.router.Greet(connectionID, m.greeting)
		if err != nil {
			log.Debug().Err(err).Str("conn", connectionID).Msg("Greeting dropped")
		} else {
			m.dispatch(plan)
		}
	}
	return nil
}

// Handle relays one inbound frame from an active connection. Malformed
// frames return an error wrapping event.ErrMalformedEvent and leave the
// connection open; frames whose origin was already deregistered are dropped
// silently.
func (m *Manager) Handle(conn *Connection, raw []byte) error {
	conn.mu.Lock()
	state, id := conn.state, conn.id
	conn.mu.Unlock()

	if state != StateActive {
		return ErrInvalidState
	}

	in, err := m.decoder.Decode(raw)
	if err != nil {
		return err
	}

	plan, err := m.router.Route(id, in)
	if errors.Is(err, ErrRouteMiss) {
		log.Debug().Str("conn", id).Str("type", string(in.Tag)).Msg("Dropping event from deregistered connection")
		return nil
	}
	if err != nil {
		return err
	}

	m.dispatch(plan)
	return nil
}

// Close moves the connection to Closed. It is safe to call any number of
// times; only the call that actually removes the session announces the
// departure and returns true.
func (m *Manager) Close(conn *Connection) bool {
	conn.mu.Lock()
	if conn.state == StateClosed {
		conn.mu.Unlock()
		return false
	}
	wasActive := conn.state == StateActive
	conn.state = StateClosed
	id := conn.id
	conn.mu.Unlock()

	if !wasActive {
		return false
	}

	s, err := m.registry.Deregister(id)
	if err != nil {
		return false
	}

	log.Info().Str("conn", id).Str("identity", s.Identity).
		Int("clients", m.registry.Size()).Msg("Session deregistered")

	plan, err := m.router.Presence(event.PresenceLeft, s.Identity)
	if err != nil {
		log.Error().Err(err).Str("conn", id).Msg("Error building leave announcement")
		return true
	}
	m.dispatch(plan)
	return true
}

func (m *Manager) dispatch(plan Plan) {
	for _, d := range plan {
		if err := m.transport.Send(d.ConnectionID, d.Payload); err != nil {
			log.Debug().Err(err).Str("conn", d.ConnectionID).Msg("Delivery skipped")
		}
	}
}
