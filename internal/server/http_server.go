// Package server constructs and starts the relay HTTP service with helpers
// that apply sensible production defaults.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Tyrowin/presence-relay/internal/auth"
	"github.com/Tyrowin/presence-relay/internal/event"
	"github.com/Tyrowin/presence-relay/internal/relay"
)

const previewGreeting = "Live preview connected"

// App owns the relay channels and token issuers for one process. It is
// created at startup and torn down by Shutdown.
type App struct {
	cfg           Config
	chat          *Channel
	preview       *Channel
	chatIssuer    *auth.Issuer
	previewIssuer *auth.Issuer
}

// NewApp builds the chat and preview channels from cfg. Both channels verify
// credentials with the same secret; the preview channel relays chat messages
// only and greets every new connection.
func NewApp(cfg Config) *App {
	cfg = SanitizeConfig(cfg)
	origins := newOriginPolicy(cfg.Origins())
	verifier := auth.NewVerifier(cfg.Secret)

	return &App{
		cfg:  cfg,
		chat: newChannel("chat", cfg, origins, verifier, relay.ChatTable()),
		preview: newChannel("preview", cfg, origins, verifier, relay.PreviewTable(),
			relay.WithGreeting(previewGreeting),
			relay.WithDefaultTag(event.ChatMessage),
		),
		chatIssuer:    auth.NewIssuer(cfg.Secret, cfg.ChatTokenTTL),
		previewIssuer: auth.NewIssuer(cfg.Secret, cfg.PreviewTokenTTL),
	}
}

// Chat returns the full-featured chat channel.
func (a *App) Chat() *Channel {
	return a.chat
}

// Preview returns the broadcast-only preview channel.
func (a *App) Preview() *Channel {
	return a.preview
}

// Start runs the channel hubs. It should be called before serving requests.
func (a *App) Start() {
	go a.chat.hub.Run()
	go a.preview.hub.Run()
	log.Info().Msg("Hubs started and ready to manage WebSocket connections")
}

// Shutdown closes every client on both channels and waits for their
// goroutines, bounded by timeout.
func (a *App) Shutdown(timeout time.Duration) error {
	return errors.Join(
		a.chat.hub.Shutdown(timeout),
		a.preview.hub.Shutdown(timeout),
	)
}

// CreateServer creates and configures an HTTP server with the specified port and handler.
// It sets reasonable timeout values for production use.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// StartServer starts the HTTP server and begins listening for connections.
// It returns nil once the server has been shut down.
func StartServer(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting active connections.
// It waits for active connections to close or until the timeout is reached.
func ShutdownServer(server *http.Server, timeout time.Duration) error {
	log.Info().Msg("Shutting down HTTP server...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
		return err
	}

	log.Info().Msg("HTTP server shutdown completed")
	return nil
}
