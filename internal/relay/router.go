// Package relay routes events between authenticated connections and drives
// each connection through its lifecycle.
//
// The Router decides who receives an event using a fixed per-tag routing
// table and produces a dispatch plan; the Manager registers and deregisters
// sessions, announces presence and hands plans to the transport.
package relay

import (
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/Tyrowin/presence-relay/internal/event"
	"github.com/Tyrowin/presence-relay/internal/session"
)

// ErrRouteMiss is returned when the origin of an event is no longer registered.
// Callers drop the event without surfacing an error.
var ErrRouteMiss = errors.New("origin not registered")

// Audience selects the recipients of a tag relative to its origin.
type Audience int

const (
	// Everyone delivers to all registered connections, origin included.
	Everyone Audience = iota + 1
	// Others delivers to all registered connections except the origin.
	Others
	// OriginOnly delivers back to the origin alone.
	OriginOnly
)

// Table is a routing table: the tags a channel relays and to whom.
type Table map[event.Tag]Audience

// ChatTable enables every event, presence included.
func ChatTable() Table {
	return Table{
		event.ChatMessage:    Everyone,
		event.EditorDelta:    Others,
		event.TypingState:    Others,
		event.PresenceJoined: Everyone,
		event.PresenceLeft:   Everyone,
		event.Connected:      OriginOnly,
	}
}

// PreviewTable is the minimal broadcast-only relay: chat messages to
// everyone, no presence announcements.
func PreviewTable() Table {
	return Table{
		event.ChatMessage: Everyone,
		event.Connected:   OriginOnly,
	}
}

// Delivery is one payload bound for one connection.
type Delivery struct {
	ConnectionID string
	Payload      []byte
}

// Plan is the ordered set of deliveries produced for one event.
type Plan []Delivery

// Router computes dispatch plans from the session registry.
type Router struct {
	registry *session.Registry
	table    Table
	now      func() time.Time
}

// NewRouter creates a Router over registry using table.
func NewRouter(registry *session.Registry, table Table) *Router {
	return &Router{registry: registry, table: table, now: time.Now}
}

// WithClock returns a copy of the router that timestamps with now.
func (r *Router) WithClock(now func() time.Time) *Router {
	cp := *r
	cp.now = now
	return &cp
}

// Enabled reports whether the routing table relays tag.
func (r *Router) Enabled(tag event.Tag) bool {
	_, ok := r.table[tag]
	return ok
}

// Route builds the plan for an inbound event from originID. The sender
// identity always comes from the origin's session.
func (r *Router) Route(originID string, in event.Inbound) (Plan, error) {
	sessions := r.registry.Sessions()

	origin, ok := lo.Find(sessions, func(s session.Session) bool {
		return s.ConnectionID == originID
	})
	if !ok {
		return nil, ErrRouteMiss
	}

	audience, ok := r.table[in.Tag]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not relayed on this channel", event.ErrMalformedEvent, in.Tag)
	}

	var payload any
	switch in.Tag {
	case event.ChatMessage:
		payload = event.ChatMessagePayload{
			Type:      event.ChatMessage,
			Identity:  origin.Identity,
			Content:   in.Content,
			Timestamp: event.Timestamp(r.now()),
		}
	case event.EditorDelta:
		payload = event.EditorDeltaPayload{
			Type:     event.EditorDelta,
			Identity: origin.Identity,
			Content:  in.Content,
			Cursor:   in.Cursor,
		}
	case event.TypingState:
		payload = event.TypingStatePayload{
			Type:     event.TypingState,
			Identity: origin.Identity,
			IsTyping: in.IsTyping,
		}
	default:
		return nil, fmt.Errorf("%w: %s cannot be sent by clients", event.ErrMalformedEvent, in.Tag)
	}

	return r.plan(sessions, originID, audience, payload)
}

// Presence builds a presence-joined or presence-left announcement for
// identity. It must be called after the registry change it announces. A nil
// plan is returned when the table does not relay tag.
func (r *Router) Presence(tag event.Tag, identity string) (Plan, error) {
	if tag != event.PresenceJoined && tag != event.PresenceLeft {
		return nil, fmt.Errorf("%w: %s is not a presence event", event.ErrMalformedEvent, tag)
	}
	audience, ok := r.table[tag]
	if !ok {
		return nil, nil
	}

	sessions := r.registry.Sessions()
	view := session.PresenceOf(sessions)

	return r.plan(sessions, "", audience, event.PresencePayload{
		Type:      tag,
		Identity:  identity,
		UserCount: view.Count,
		Users:     view.Users,
	})
}

// Greet builds the connected greeting for originID.
func (r *Router) Greet(originID, message string) (Plan, error) {
	audience, ok := r.table[event.Connected]
	if !ok {
		return nil, nil
	}

	sessions := r.registry.Sessions()
	if !lo.ContainsBy(sessions, func(s session.Session) bool { return s.ConnectionID == originID }) {
		return nil, ErrRouteMiss
	}

	return r.plan(sessions, originID, audience, event.ConnectedPayload{
		Type:    event.Connected,
		Message: message,
	})
}

func (r *Router) plan(sessions []session.Session, originID string, audience Audience, payload any) (Plan, error) {
	raw, err := event.Encode(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	recipients := lo.Filter(sessions, func(s session.Session, _ int) bool {
		switch audience {
		case Everyone:
			return true
		case Others:
			return s.ConnectionID != originID
		case OriginOnly:
			return s.ConnectionID == originID
		default:
			return false
		}
	})

	return lo.Map(recipients, func(s session.Session, _ int) Delivery {
		return Delivery{ConnectionID: s.ConnectionID, Payload: raw}
	}), nil
}
