// Package server manages individual WebSocket clients, handling read/write
// pumps and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Tyrowin/presence-relay/internal/event"
	"github.com/Tyrowin/presence-relay/internal/relay"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Client represents a WebSocket client connection on a relay channel. It
// binds the transport connection to its relay lifecycle record.
type Client struct {
	id             string
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	manager        *relay.Manager
	session        *relay.Connection
	addr           string
	closed         bool
	maxMessageSize int64
}

// NewClient creates a Client with a fresh connection id. The client's send
// channel is buffered to bufferSize payloads.
func NewClient(conn *websocket.Conn, hub *Hub, manager *relay.Manager, session *relay.Connection, addr string, bufferSize int, maxMessageSize int64) *Client {
	if conn != nil {
		conn.SetReadLimit(maxMessageSize)
	}
	if bufferSize <= 0 {
		bufferSize = defaultSendBufferSize
	}

	return &Client{
		id:             uuid.NewString(),
		conn:           conn,
		send:           make(chan []byte, bufferSize),
		hub:            hub,
		manager:        manager,
		session:        session,
		addr:           addr,
		maxMessageSize: maxMessageSize,
	}
}

// ID returns the connection id assigned to the client.
func (c *Client) ID() string {
	return c.id
}

// GetSendChan returns the client's send channel for reading outgoing messages.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Warn().Err(err).Str("addr", c.addr).Msg("Error setting initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Warn().Err(err).Str("addr", c.addr).Msg("Error setting read deadline in pong handler")
		}
		return nil
	})
}

// logReadError logs the terminal read error at a level matching its cause.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		log.Info().Str("conn", c.id).Str("addr", c.addr).Int64("limit", c.maxMessageSize).
			Msg("Message exceeded maximum size")
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		log.Debug().Str("conn", c.id).Str("addr", c.addr).Err(err).Msg("Client disconnected")
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		log.Debug().Str("conn", c.id).Str("addr", c.addr).Err(err).Msg("Client connection closed")
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		log.Warn().Str("conn", c.id).Str("addr", c.addr).Err(err).Msg("Unexpected WebSocket error")
	default:
		log.Warn().Str("conn", c.id).Str("addr", c.addr).Err(err).Msg("WebSocket read error")
	}
}

// processMessage hands one inbound frame to the relay. Malformed frames are
// dropped without a reply and the connection stays open.
func (c *Client) processMessage(raw []byte) {
	err := c.manager.Handle(c.session, raw)
	switch {
	case err == nil:
	case errors.Is(err, event.ErrMalformedEvent):
		log.Debug().Err(err).Str("conn", c.id).Str("addr", c.addr).Msg("Dropping malformed event")
	default:
		log.Warn().Err(err).Str("conn", c.id).Str("addr", c.addr).Msg("Error relaying event")
	}
}

// readPump owns the connection's inbound side. Whatever ends it (close frame,
// network error, eviction, shutdown) runs the relay close path exactly once.
func (c *Client) readPump() {
	defer func() {
		c.manager.Close(c.session)
		c.hub.Detach(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Warn().Err(err).Str("conn", c.id).Msg("Error closing connection in readPump")
		}
	}()

	c.setupReadConnection()

	for {
		messageType, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		if messageType != websocket.TextMessage {
			log.Debug().Str("conn", c.id).Msg("Ignoring non-text frame")
			continue
		}
		c.processMessage(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		log.Warn().Err(err).Str("conn", c.id).Msg("Error closing connection in writePump")
	}
}

// handleMessage processes outgoing messages and returns false if the connection should be closed
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Debug().Err(err).Str("conn", c.id).Msg("Error setting write deadline")
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			log.Debug().Err(err).Str("conn", c.id).Msg("Error writing message")
		}
		return false
	}
	return true
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteMessage(websocket.CloseMessage, msg); err != nil && !isExpectedCloseError(err) {
		log.Debug().Err(err).Str("conn", c.id).Msg("Error writing close message")
	}
	return false
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Debug().Err(err).Str("conn", c.id).Msg("Error setting write deadline for ping")
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		log.Debug().Err(err).Str("conn", c.id).Msg("Error writing ping message")
		return false
	}
	return true
}
