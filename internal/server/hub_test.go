package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDetachedClient(hub *Hub, bufferSize int) *Client {
	return NewClient(nil, hub, nil, nil, "127.0.0.1:0", bufferSize, defaultMaxMessageSize)
}

// TestHubSendDelivers verifies that a payload sent to an attached client
// lands in its send channel unchanged.
func TestHubSendDelivers(t *testing.T) {
	hub := NewHub("test")
	client := newDetachedClient(hub, 4)
	require.NoError(t, hub.Attach(client))

	require.NoError(t, hub.Send(client.ID(), []byte(`{"type":"chat-message"}`)))

	select {
	case msg := <-client.GetSendChan():
		assert.JSONEq(t, `{"type":"chat-message"}`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("payload was not queued")
	}
}

func TestHubSendUnknownConnection(t *testing.T) {
	hub := NewHub("test")
	assert.ErrorIs(t, hub.Send("missing", []byte("x")), ErrConnectionGone)
}

// TestHubEvictsSlowConsumer verifies that a full send buffer removes the
// client and closes its channel instead of blocking the sender.
func TestHubEvictsSlowConsumer(t *testing.T) {
	hub := NewHub("test")
	client := newDetachedClient(hub, 1)
	require.NoError(t, hub.Attach(client))

	require.NoError(t, hub.Send(client.ID(), []byte("first")))
	assert.ErrorIs(t, hub.Send(client.ID(), []byte("second")), ErrSlowConsumer)
	assert.Equal(t, 0, hub.Len())

	msg, ok := <-client.GetSendChan()
	assert.True(t, ok)
	assert.Equal(t, "first", string(msg))
	_, ok = <-client.GetSendChan()
	assert.False(t, ok, "send channel should be closed after eviction")

	assert.ErrorIs(t, hub.Send(client.ID(), []byte("third")), ErrConnectionGone)
}

func TestHubAttachRejectsDuplicates(t *testing.T) {
	hub := NewHub("test")
	client := newDetachedClient(hub, 1)

	require.NoError(t, hub.Attach(client))
	assert.ErrorIs(t, hub.Attach(client), ErrDuplicateClient)
	assert.ErrorIs(t, hub.Attach(nil), ErrConnectionGone)
	assert.Equal(t, 1, hub.Len())
}

func TestHubDetachIsIdempotent(t *testing.T) {
	hub := NewHub("test")
	client := newDetachedClient(hub, 1)
	require.NoError(t, hub.Attach(client))

	hub.Detach(client)
	assert.NotPanics(t, func() { hub.Detach(client) })
	assert.Equal(t, 0, hub.Len())
}

// TestHubShutdown verifies that a running hub with no clients shuts down
// promptly and refuses new clients afterwards.
func TestHubShutdown(t *testing.T) {
	hub := NewHub("test")
	go hub.Run()

	require.NoError(t, hub.Shutdown(time.Second))
	assert.ErrorIs(t, hub.Attach(newDetachedClient(hub, 1)), ErrHubClosed)
}

// TestHubShutdownTimeout verifies that Shutdown gives up when Run was never
// started to acknowledge it.
func TestHubShutdownTimeout(t *testing.T) {
	hub := NewHub("test")
	assert.ErrorIs(t, hub.Shutdown(20*time.Millisecond), context.DeadlineExceeded)
}

// TestConcurrentHubOperations exercises attach, send and detach from many
// goroutines at once; run with -race.
func TestConcurrentHubOperations(t *testing.T) {
	hub := NewHub("test")
	go hub.Run()
	t.Cleanup(func() { _ = hub.Shutdown(time.Second) })

	const workers = 20
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := newDetachedClient(hub, 8)
			if err := hub.Attach(client); err != nil {
				t.Errorf("attach: %v", err)
				return
			}
			for range 4 {
				_ = hub.Send(client.ID(), []byte("payload"))
			}
			hub.Detach(client)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, hub.Len())
}
