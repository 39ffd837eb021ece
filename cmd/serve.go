package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/elecnecta/wifiqr/internal/config"
	"github.com/elecnecta/wifiqr/internal/generator"
	"github.com/elecnecta/wifiqr/internal/handlers"
	"github.com/elecnecta/wifiqr/internal/middleware"
	"github.com/elecnecta/wifiqr/internal/storage"
	"github.com/elecnecta/wifiqr/web"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port string
	var backend string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start web server for the QR generator",
		Long: `Starts the wifiqr web interface on the specified port.

The web interface lets you take a photo with the device camera or upload an
image, send it for processing and then save or share the resulting QR code.`,
		Example: `  # Start server on default port 8888
  wifiqr serve

  # Start server on custom port with a local vision model
  wifiqr serve --port 3000 --backend ollama`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("backend") {
				cfg.Backend = backend
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "8888", "Port to listen on")
	cmd.Flags().StringVarP(&backend, "backend", "b", config.BackendDify, "QR backend: dify, ollama, openai or gemini")

	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	service, err := generator.NewFromConfig(cfg)
	if err != nil {
		return err
	}

	store := storage.New()
	handler := handlers.New(store, service, handlers.Options{
		Locale:         cfg.Locale,
		ReloadDelay:    cfg.ReloadDelay,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		MaxPixels:      cfg.Image.MaxPixels,
		Static:         web.Static(),
	})

	logger := slog.Default()
	chain := middleware.Standard(logger)

	addr := ":" + cfg.Server.Port
	server := &http.Server{
		Addr:              addr,
		Handler:           chain.Apply(handler.Routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("wifiqr interface available",
			"addr", addr,
			"url", "http://localhost"+addr,
			"backend", service.Backend(),
			"locale", cfg.Locale)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		pruneSessions(gctx, store, cfg.Server.SessionTTL)
		return nil
	})

	// Wait for context cancellation (Ctrl+C) or server error
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown failed", "err", err)
			return err
		}
		slog.Info("Server stopped")
		return nil
	})

	return g.Wait()
}

// pruneSessions drops idle sessions until ctx is done
func pruneSessions(ctx context.Context, store *storage.SessionStore, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	interval := ttl / 2
	if interval > 5*time.Minute {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := store.Prune(ttl); n > 0 {
				slog.Info("Pruned idle sessions", "count", n, "remaining", store.Len())
			}
		}
	}
}
