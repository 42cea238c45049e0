// Package server implements the HTTP and WebSocket transport of the relay.
//
// The implementation is organized into specialized files for configuration,
// logging, hub management, clients, routing, and HTTP handlers. Routing
// decisions and session bookkeeping live in the relay and session packages;
// this package only moves bytes between sockets and the relay.
package server
