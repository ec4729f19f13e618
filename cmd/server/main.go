package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gogpu/gg"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/furnivision/furnivision/internal/asset"
	"github.com/furnivision/furnivision/internal/config"
	"github.com/furnivision/furnivision/internal/design"
	"github.com/furnivision/furnivision/internal/engine"
	"github.com/furnivision/furnivision/internal/export"
	"github.com/furnivision/furnivision/internal/gallery"
	"github.com/furnivision/furnivision/internal/live"
	mw "github.com/furnivision/furnivision/internal/middleware"
	"github.com/furnivision/furnivision/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)
	gg.SetLogger(logger.With("component", "gg"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, closeRepo := openRepository(ctx, cfg.DatabaseURL)
	defer closeRepo()

	catalog, err := design.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		slog.Error("load catalog", "error", err, "path", cfg.CatalogPath)
		os.Exit(1)
	}

	hub := live.NewHub()
	go hub.Run()

	resolver := asset.NewResolver(cfg.AssetDir, logger)
	resolver.AllowRemote(cfg.RemoteHosts()...)
	sessions := session.NewManager(catalog, session.Options{
		Engine: engine.Config{
			Canvas:   cfg.Engine(),
			Viewport: cfg.Viewport(),
			Logger:   logger,
		},
		Loaders: engine.Loaders{
			Geometry: resolver,
			Images:   resolver,
		},
		ClearOnResize: cfg.ClearOnResize,
		CaptureWait:   cfg.CaptureWait,
	}, hub)
	go sweepSessions(ctx, sessions, cfg.SessionIdle)

	assetHandler := asset.NewHandler(cfg.AssetDir)
	sessionHandler := session.NewHandler(sessions)
	galleryHandler := gallery.NewHandler(repo, sessions)
	exportHandler := export.NewHandler(sessions)
	liveHandler := live.NewHandler(hub, sessions.Exists, mw.OriginHosts(cfg.Origins()))

	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// Asset endpoints
	r.HandleFunc("/assets/upload", assetHandler.Upload).Methods("POST", "OPTIONS")
	r.HandleFunc("/assets/{id}", assetHandler.Remove).Methods("DELETE")
	r.PathPrefix("/assets/").Handler(assetHandler.Serve()).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	sessionHandler.Mount(api)
	api.HandleFunc("/sessions/{id}/render.png", exportHandler.RenderPNG).Methods("GET")

	api.HandleFunc("/designs", galleryHandler.List).Methods("GET")
	api.HandleFunc("/designs", galleryHandler.Save).Methods("POST")
	api.HandleFunc("/designs/{id}", galleryHandler.Get).Methods("GET")
	api.HandleFunc("/designs/{id}", galleryHandler.Delete).Methods("DELETE")
	api.HandleFunc("/designs/{id}/load", galleryHandler.Load).Methods("POST")

	// Change feed
	r.HandleFunc("/ws/sessions/{sessionId}", liveHandler.Watch)

	// CORS runs outside the router so preflights reach it on every path.
	handler := mw.Recovery(mw.Logger(mw.CORS(cfg.Origins())(r)))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down server")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)

		sessions.CloseAll()
		hub.Stop()
	}()

	slog.Info("server starting", "addr", addr, "viewport", cfg.Viewport(), "catalog", len(catalog.Templates))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

// openRepository connects to Postgres, falling back to an in-memory gallery
// when no database is configured or reachable.
func openRepository(ctx context.Context, url string) (gallery.Repository, func()) {
	if url == "" {
		slog.Warn("DATABASE_URL is empty, designs are kept in memory")
		return gallery.NewMemoryRepository(), func() {}
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		slog.Error("parse database url", "error", err)
		os.Exit(1)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		slog.Warn("database unreachable, designs are kept in memory", "error", err)
		return gallery.NewMemoryRepository(), func() {}
	}

	repo := gallery.NewPostgresRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		pool.Close()
		slog.Error("migrate database", "error", err)
		os.Exit(1)
	}
	return repo, pool.Close
}

func sweepSessions(ctx context.Context, sessions *session.Manager, maxIdle time.Duration) {
	if maxIdle <= 0 {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := sessions.Sweep(maxIdle); n > 0 {
				slog.Info("closed idle sessions", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
