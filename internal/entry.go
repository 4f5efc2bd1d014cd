// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/voss/murmur/internal/api"
	"github.com/voss/murmur/internal/enrich"
	"github.com/voss/murmur/internal/legacy"
	"github.com/voss/murmur/internal/lifecycle"
	"github.com/voss/murmur/internal/mcpserver"
	"github.com/voss/murmur/internal/ratelimit"
	"github.com/voss/murmur/internal/repo"
	"github.com/voss/murmur/internal/storage"
	"github.com/voss/murmur/internal/store"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger. The MCP transport owns stdout,
	// so logs go to stderr in that mode.
	logOut := os.Stdout
	if app.mcp {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("data_dir", cfg.Data.Dir),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure data directory exists.
	if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	files, err := storage.NewFS(cfg.Data.Dir)
	if err != nil {
		return fmt.Errorf("init data storage: %w", err)
	}

	// Record store opens lazily on first use.
	mgr := store.NewManager(cfg.SQLite.Path)
	defer mgr.Close()

	repos := repo.New(mgr)

	if app.mcp {
		logger.Info("Starting MCP stdio server")
		return mcpserver.New(repos).ServeStdio()
	}

	// AI enrichment client.
	var clientOpts []enrich.ClientOption
	if cfg.Enrichment.Token != "" {
		clientOpts = append(clientOpts, enrich.WithToken(cfg.Enrichment.Token))
	}
	client := enrich.NewClient(cfg.Enrichment.BaseURL, clientOpts...)

	ctrl := lifecycle.NewController(repos.Notes, client, logger)
	insights := lifecycle.NewInsightService(repos.Insights, client, logger)

	importer := legacy.NewImporter(files, repos, logger)

	// Pick up a legacy export already present at startup.
	if importer.HasLegacyData() {
		if stats, err := importer.Run(ctx); err != nil {
			logger.Warn("legacy import failed", slog.String("error", err.Error()))
		} else {
			logger.Info("legacy import complete",
				slog.Int("folders", stats.FoldersCreated),
				slog.Int("notes", stats.NotesMigrated))
		}
	}

	limiter := ratelimit.New(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window())

	h := api.NewHandler(repos, ctrl, insights, importer, mgr)
	apiRouter := api.NewRouter(h, cfg.Auth.AuthEnabled(), cfg.Auth.Token, limiter)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := mgr.Open(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the data directory for dropped legacy exports.
	g.Go(func() error {
		if err := legacy.Watch(gCtx, importer, files.Root(), logger); err != nil {
			logger.Warn("legacy watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	// Let in-flight enrichments write their final status before the
	// store closes.
	ctrl.Wait()

	logger.Info("Server stopped successfully")
	return nil
}
