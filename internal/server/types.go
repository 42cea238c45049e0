// Package server defines shared transport errors and utility helpers that
// are reused across client and hub logic.
package server

import (
	"errors"
	"strings"
)

var (
	// ErrConnectionGone is returned when sending to a connection that is no
	// longer attached to the hub.
	ErrConnectionGone = errors.New("connection is no longer open")
	// ErrSlowConsumer is returned when a client's send buffer is full. The
	// client is evicted.
	ErrSlowConsumer = errors.New("client send buffer full")
	// ErrHubClosed is returned when attaching to a hub that is shutting down.
	ErrHubClosed = errors.New("hub is shut down")
	// ErrDuplicateClient is returned when a connection id is already attached.
	ErrDuplicateClient = errors.New("client already attached")
)

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
