// Package event defines the tagged events exchanged over a relay connection:
// inbound frames sent by clients and the wire payloads fanned out to them.
package event

import (
	"encoding/json"
	"errors"
	"time"
)

// Tag names an event variant. It is also the "type" field on the wire.
type Tag string

const (
	ChatMessage    Tag = "chat-message"
	EditorDelta    Tag = "editor-delta"
	TypingState    Tag = "typing-state"
	PresenceJoined Tag = "presence-joined"
	PresenceLeft   Tag = "presence-left"
	Connected      Tag = "connected"
)

// ErrMalformedEvent is returned for frames that are not valid JSON, carry an
// unknown tag, or miss a field the tag requires.
var ErrMalformedEvent = errors.New("malformed event")

// timestampLayout renders UTC instants as ISO-8601 with millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Inbound is a client-originated event after decoding and validation. It
// never carries an identity; the sender is always resolved from its session.
type Inbound struct {
	Tag      Tag
	Content  string
	Cursor   json.RawMessage
	IsTyping bool
}

// ChatMessagePayload is the outbound form of a chat-message.
type ChatMessagePayload struct {
	Type      Tag    `json:"type"`
	Identity  string `json:"identity"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// EditorDeltaPayload is the outbound form of an editor-delta.
type EditorDeltaPayload struct {
	Type     Tag             `json:"type"`
	Identity string          `json:"identity"`
	Content  string          `json:"content"`
	Cursor   json.RawMessage `json:"cursor,omitempty"`
}

// TypingStatePayload is the outbound form of a typing-state.
type TypingStatePayload struct {
	Type     Tag    `json:"type"`
	Identity string `json:"identity"`
	IsTyping bool   `json:"isTyping"`
}

// PresencePayload announces a join or leave together with the presence view
// computed after the registry change.
type PresencePayload struct {
	Type      Tag      `json:"type"`
	Identity  string   `json:"identity"`
	UserCount int      `json:"userCount"`
	Users     []string `json:"users"`
}

// ConnectedPayload greets a freshly activated connection.
type ConnectedPayload struct {
	Type    Tag    `json:"type"`
	Message string `json:"message"`
}

// Timestamp formats t the way chat-message payloads carry it.
func Timestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// Encode serializes a payload for the wire.
func Encode(payload any) ([]byte, error) {
	return json.Marshal(payload)
}
