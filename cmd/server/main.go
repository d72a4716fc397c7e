package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/Simplici0/invoicecalc/internal/config"
	"github.com/Simplici0/invoicecalc/internal/db"
	"github.com/Simplici0/invoicecalc/internal/live"
	"github.com/Simplici0/invoicecalc/internal/logging"
	"github.com/Simplici0/invoicecalc/internal/metrics"
	"github.com/Simplici0/invoicecalc/internal/migrations"
	"github.com/Simplici0/invoicecalc/internal/seed"
	"github.com/Simplici0/invoicecalc/internal/store"
	"github.com/Simplici0/invoicecalc/internal/workspace"
)

const shutdownTimeout = 10 * time.Second

type server struct {
	ws       *workspace.Workspace
	hub      *live.Hub
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	currency string
	origins  []string
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("json", "info")
		boot.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.New(logFormat(cfg), cfg.LogLevel)

	database, err := db.Open(db.SessionDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer database.Close()

	if err := migrations.Up(database); err != nil {
		logger.Fatal().Err(err).Msg("failed to run database migrations")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := store.New(database)
	entries, err := seed.Load(cfg.SeedPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load seed data")
	}
	stats, err := seed.Run(ctx, st, entries, workspace.NewUUID)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to seed session")
	}
	logger.Info().Int("inserts", stats.Inserts).Msg("session seeded")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	hub := live.NewHub(logger, originChecker(cfg.CORSAllowedOrigins))
	go hub.Run(ctx)

	ws := workspace.New(st, workspace.Options{
		NewID:     workspace.NewUUID,
		Publisher: hub,
		Recorder:  m,
		Logger:    logger,
	})
	snap, err := ws.Snapshot(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load session")
	}
	m.SetItems(len(snap.Items))

	srv := &server{
		ws:       ws,
		hub:      hub,
		metrics:  m,
		logger:   logger,
		currency: cfg.CurrencySymbol,
		origins:  cfg.CORSAllowedOrigins,
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpSrv.Addr).Str("env", cfg.AppEnv).Msg("listening")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server stopped")
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown failed")
		}
		logger.Info().Msg("server stopped")
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger{Logger: s.logger}.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())
	r.Get("/invoice.txt", s.handleInvoiceText)
	r.Get("/ws", s.hub.Handler(workspace.SnapshotMessage, func(ctx context.Context) (any, error) {
		return s.ws.Snapshot(ctx)
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/snapshot", s.handleSnapshot)
		r.Post("/items", s.handleAddItem)
		r.Patch("/items/{id}", s.handleUpdateItem)
		r.Delete("/items/{id}", s.handleDeleteItem)
		r.Put("/split", s.handleUpdateSplit)
	})

	return r
}

// logFormat honours LOG_FORMAT and otherwise uses readable console logs in
// development and JSON everywhere else.
func logFormat(cfg config.Config) string {
	if cfg.LogFormat != "" {
		return cfg.LogFormat
	}
	if cfg.IsDev() {
		return "console"
	}
	return "json"
}

// originChecker matches WebSocket origins against the CORS allow-list.
func originChecker(allowed []string) func(r *http.Request) bool {
	if slices.Contains(allowed, "*") {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
