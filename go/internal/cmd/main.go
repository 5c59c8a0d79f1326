package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/idoltower/go/clients"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg := loadConfig()
	setupLogging(cfg.LogLevel)

	log.Info().
		Str("api_url", cfg.API.URL).
		Str("port", cfg.Viewer.Port).
		Bool("events", cfg.Events.Enabled).
		Msg("starting tower viewer")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services, err := setupServices(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up services")
	}
	defer services.Close()

	go services.Feed.Start(ctx)

	server := setupServer(cfg.Viewer.Port, services)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sessionDone := make(chan error, 1)
	go func() {
		sessionDone <- services.Session.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
		<-sessionDone
	case err := <-sessionDone:
		switch {
		case errors.Is(err, clients.ErrUnauthorized):
			log.Error().Msg("game server rejected the token; log in again and update GAME_API_TOKEN")
		case err != nil:
			log.Error().Err(err).Msg("session failed")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	cancel()

	log.Info().Msg("tower viewer shutdown complete")
}
