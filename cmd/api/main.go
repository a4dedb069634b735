// Package main is the entry point for the Wayfare API server.
// Its sole responsibility is wiring dependencies together and starting the
// server. No business logic belongs here.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/wayfare/backend/internal/config"
	"github.com/wayfare/backend/internal/handler"
	"github.com/wayfare/backend/internal/ledger"
	"github.com/wayfare/backend/internal/middleware"
	"github.com/wayfare/backend/internal/refresh"
	"github.com/wayfare/backend/internal/repo"
	"github.com/wayfare/backend/internal/service"
	"github.com/wayfare/backend/migrations"
)

func main() {
	// --- Config -----------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	// --- Logger -----------------------------------------------------------
	// JSON handler writes machine-readable output suitable for log aggregators.
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// --- Database ---------------------------------------------------------
	// pgxpool manages a pool of Postgres connections.
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Verify the DB is reachable before accepting traffic.
	if err := pool.Ping(context.Background()); err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	slog.Info("database connection established")

	if err := migrate(context.Background(), pool); err != nil {
		slog.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	// --- Repositories, ledger, services ------------------------------------
	tripRepo := repo.NewTripRepo(pool)
	expenseRepo := repo.NewExpenseRepo(pool)
	procRepo := repo.NewProcRepo(pool)

	mutator := ledger.SelectMutator(context.Background(), procRepo, expenseRepo, cfg.AtomicProcedures, logger)

	var refresher *refresh.Refresher
	coord := ledger.NewCoordinator(mutator,
		ledger.WithTimeout(cfg.MutationTimeout),
		ledger.WithSettleHook(func(ownerID uuid.UUID) { refresher.Kick(ownerID) }),
	)
	refresher = refresh.New(tripRepo, coord, cfg.RefreshInterval, cfg.RefreshDebounce, logger)

	refreshCtx, stopRefresh := context.WithCancel(context.Background())
	defer stopRefresh()
	go refresher.Run(refreshCtx)

	tripSvc := service.NewTripService(tripRepo, coord)
	expenseSvc := service.NewExpenseService(coord)
	exportSvc := service.NewExportService(tripRepo)
	importSvc := service.NewImportService(tripRepo, tripSvc, expenseSvc)

	api := handler.NewServer(tripSvc, expenseSvc, exportSvc, importSvc, refresher)

	// --- Router -----------------------------------------------------------
	// Middleware order: RequestID -> RealIP -> Logger -> Recoverer -> CORS ->
	// body cap. Auth applies only to the API subtree so /healthz stays open.
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewSlogLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewCORSHandler(cfg.CORSOrigins))
	r.Use(middleware.NewMaxBodySizeHandler(cfg.MaxBodyBytes))

	r.Get("/healthz", api.GetHealth)

	r.Group(func(r chi.Router) {
		// First request from a new owner seeds the in-memory view and puts
		// the owner on the periodic refresh schedule.
		r.Use(middleware.NewAuthHandler(func(ownerID uuid.UUID) {
			if coord.Register(ownerID) {
				refresher.Track(ownerID)
				refresher.Kick(ownerID)
			}
		}))
		r.Mount("/", api.Routes())
	})

	// --- HTTP Server ------------------------------------------------------
	// Explicit timeouts prevent slowloris and resource exhaustion attacks.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown: wait for OS signal, then give in-flight requests
	// up to 15 seconds to complete before forcefully closing.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-stop
	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// migrate applies any pending schema migrations from the embedded files.
// goose speaks database/sql, so the pool is wrapped with the pgx stdlib
// adapter for the duration of the run.
func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		return err
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return err
	}
	for _, res := range results {
		slog.Info("migration applied", "source", res.Source.Path, "duration", res.Duration)
	}
	return nil
}
