package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/Tyrowin/presence-relay/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := server.NewConfigFromEnv()
	if err != nil {
		return err
	}
	server.InitLogger(*cfg)

	app := server.NewApp(*cfg)
	app.Start()

	httpServer := server.CreateServer(cfg.Port, server.SetupRoutes(app))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.StartServer(httpServer)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down gracefully...")
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout); err != nil {
		log.Error().Err(err).Msg("HTTP server did not shut down cleanly")
	}
	if err := app.Shutdown(cfg.ShutdownTimeout); err != nil {
		log.Error().Err(err).Msg("Hubs did not shut down cleanly")
	}

	log.Info().Msg("Relay stopped cleanly")
	return nil
}
