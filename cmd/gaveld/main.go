package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gavelhq/gavel/internal/auth"
	"github.com/gavelhq/gavel/internal/catalog"
	"github.com/gavelhq/gavel/internal/clock"
	"github.com/gavelhq/gavel/internal/config"
	"github.com/gavelhq/gavel/internal/health"
	"github.com/gavelhq/gavel/internal/httpapi"
	"github.com/gavelhq/gavel/internal/hub"
	"github.com/gavelhq/gavel/internal/leader"
	"github.com/gavelhq/gavel/internal/lobby"
	"github.com/gavelhq/gavel/internal/store"
	"github.com/gavelhq/gavel/internal/telemetry"

	// Register store drivers so they are available via store.Open.
	_ "github.com/gavelhq/gavel/internal/store/memory"
	_ "github.com/gavelhq/gavel/internal/store/postgres"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load configuration.
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup telemetry.
	tp, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewNopProvider()
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	// Load the team/player catalog (bundled data unless a path is set).
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}
	logger.InfoContext(ctx, "catalog loaded",
		slog.Int("teams", len(cat.Teams)),
		slog.Int("players", len(cat.Players)),
	)

	// Open store using the configured driver (postgres or memory).
	repos, err := store.Open(ctx, cfg.Database, clk)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Database.Driver, err)
	}
	defer repos.Closer.Close()

	logger.InfoContext(ctx, "store opened", slog.String("driver", cfg.Database.Driver))

	// Wire the services.
	authSvc := auth.NewService(repos.Users, cfg.Auth, clk, logger)
	wsHub := hub.New(logger)
	lobbyMgr := lobby.NewManager(cat, cfg, repos, wsHub, logger, tp.TracerProvider, clk)
	defer lobbyMgr.Close()

	api := httpapi.New(authSvc, lobbyMgr, cat, wsHub, logger)

	// Setup health checks.
	healthHandler := health.NewHandler(clk,
		health.Checker{
			Name:  "database",
			Check: repos.Ping,
		},
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler.LivenessHandler())
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler())
	api.Routes(mux)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.InfoContext(ctx, "starting http server", slog.Int("port", cfg.Server.Port))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && listenErr != http.ErrServerClosed {
			logger.ErrorContext(ctx, "http server error", slog.Any("error", listenErr))
		}
	}()

	// serve is the core work that only the leader should run: accepting
	// auction traffic. Followers keep their HTTP server up but report
	// not-ready so no traffic is routed to them.
	serve := func(ctx context.Context) {
		healthHandler.SetReady(true)
		logger.InfoContext(ctx, "gaveld is running", slog.String("version", version))

		<-ctx.Done()

		healthHandler.SetReady(false)
		lobbyMgr.Close()
	}

	if cfg.LeaderElection.Enabled {
		logger.InfoContext(ctx, "leader election enabled, waiting for leadership...")

		if leaderErr := leader.Run(ctx, cfg.LeaderElection, logger, serve, func() {
			logger.Info("lost leadership, shutting down...")
			cancel()
		}); leaderErr != nil {
			return fmt.Errorf("leader election: %w", leaderErr)
		}
	} else {
		serve(ctx)
	}

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", slog.Any("error", err))
	}

	logger.Info("shutdown complete")
	return nil
}
