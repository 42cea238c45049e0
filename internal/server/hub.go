// Package server tracks open WebSocket clients for a relay channel and
// delivers payloads to them via the Hub type.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Hub is the transport side of a relay channel: it owns the open WebSocket
// clients keyed by connection id and implements relay.Transport. Client
// bookkeeping is protected by a mutex; every send happens under the read
// lock and every channel close under the write lock, so a send never races
// a close.
type Hub struct {
	name    string
	clients map[string]*Client
	mutex   sync.RWMutex
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewHub creates an empty hub. Call Run to make it shut down cleanly.
func NewHub(name string) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		name:    name,
		clients: make(map[string]*Client),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Run blocks until the hub is shut down, then closes every client
// connection. It should be called in its own goroutine.
func (h *Hub) Run() {
	defer close(h.done)

	<-h.ctx.Done()
	h.shutdownClients()
}

// Attach adds a client so that payloads can be sent to it.
func (h *Hub) Attach(client *Client) error {
	if client == nil {
		return ErrConnectionGone
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.ctx.Err() != nil {
		return ErrHubClosed
	}
	if _, exists := h.clients[client.id]; exists {
		return ErrDuplicateClient
	}

	client.closed = false
	h.clients[client.id] = client
	log.Debug().Str("channel", h.name).Str("conn", client.id).Str("addr", client.addr).
		Int("clients", len(h.clients)).Msg("Client attached")
	return nil
}

// Detach removes a client and closes its send channel, which makes its write
// pump send a close frame. Detaching twice is a no-op.
func (h *Hub) Detach(client *Client) {
	h.remove(client, "detached")
}

// Send queues payload for the client attached under connectionID. It never
// blocks: a full buffer evicts the client.
func (h *Hub) Send(connectionID string, payload []byte) error {
	h.mutex.RLock()
	client, exists := h.clients[connectionID]
	if !exists || client.closed {
		h.mutex.RUnlock()
		return ErrConnectionGone
	}

	select {
	case client.send <- payload:
		h.mutex.RUnlock()
		return nil
	default:
	}
	h.mutex.RUnlock()

	h.remove(client, "send buffer full")
	return ErrSlowConsumer
}

// Len returns the number of attached clients.
func (h *Hub) Len() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// start launches the client's pumps, tracked for shutdown.
func (h *Hub) start(client *Client) {
	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

func (h *Hub) remove(client *Client, reason string) {
	h.mutex.Lock()
	current, exists := h.clients[client.id]
	if !exists || current != client {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client.id)
	client.closed = true
	close(client.send)
	clientCount := len(h.clients)
	h.mutex.Unlock()

	log.Debug().Str("channel", h.name).Str("conn", client.id).Str("addr", client.addr).
		Str("reason", reason).Int("clients", clientCount).Msg("Client removed")
}

// shutdownClients closes all active client connections. Their read pumps
// then run the normal close path.
func (h *Hub) shutdownClients() {
	log.Info().Str("channel", h.name).Msg("Shutting down all client connections...")

	h.mutex.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.RUnlock()

	for _, client := range clients {
		if client.conn == nil {
			continue
		}
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Warn().Err(err).Str("conn", client.id).Str("addr", client.addr).Msg("Error closing client connection")
		}
	}

	log.Info().Str("channel", h.name).Int("clients", len(clients)).Msg("Closed client connections")
}

// Shutdown initiates graceful shutdown of the hub and waits for all client
// goroutines to complete, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Info().Str("channel", h.name).Msg("Initiating hub shutdown...")

	h.cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.done:
	case <-timer.C:
		log.Warn().Str("channel", h.name).Msg("Hub shutdown timeout reached before Run returned")
		return context.DeadlineExceeded
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Str("channel", h.name).Msg("Hub shutdown completed successfully")
		return nil
	case <-timer.C:
		log.Warn().Str("channel", h.name).Msg("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
