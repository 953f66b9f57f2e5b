package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vjranagit/ftdc/internal/config"
	"github.com/vjranagit/ftdc/pkg/api"
	"github.com/vjranagit/ftdc/pkg/sink"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the FTDC query and decode API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	log := newLogger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log.Info().
		Str("listenAddr", cfg.Server.ListenAddr).
		Str("sinkPath", cfg.Sink.Path).
		Int("compressionLevel", cfg.Sink.CompressionLevel).
		Msg("configuration loaded")

	store, err := sink.Open(&sink.Config{
		Path:             cfg.Sink.Path,
		RetentionDays:    cfg.Sink.RetentionDays,
		CompressionLevel: cfg.Sink.CompressionLevel,
		MaxOpenFiles:     cfg.Sink.MaxOpenFiles,
		EnableWAL:        cfg.Sink.EnableWAL,
	})
	if err != nil {
		return fmt.Errorf("open sink: %w", err)
	}
	defer store.Close()

	cached := sink.NewCachedSink(store, cfg.Sink.CacheCapacity, 5*time.Minute)
	defer cached.Close()

	server := api.NewServer(cfg.Server.ListenAddr, cached, log, cfg.Decode.ToOptions())

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-sigCh:
		log.Info().Msg("shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}

func newLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Logger()
}
