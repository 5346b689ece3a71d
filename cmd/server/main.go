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

	"golang.org/x/sync/errgroup"

	"tripstore/internal/api"
	"tripstore/internal/config"
	"tripstore/internal/db"
	"tripstore/internal/db/repository"
	"tripstore/internal/domain"
	"tripstore/internal/metrics"
	"tripstore/internal/provider"
	"tripstore/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	writeDB, readDB, err := db.OpenSQLitePair(cfg.TripsDBPath, cfg.ReadPoolSize)
	if err != nil {
		return err
	}
	defer writeDB.Close()
	defer readDB.Close()

	if err := db.RunMigrations(writeDB); err != nil {
		return err
	}

	collector := metrics.NewCollector()
	network := domain.NetworkID(cfg.NetworkID)

	tripRepo := repository.NewTripRepo(writeDB, readDB, logger)
	searchRepo := repository.NewSearchRepo(writeDB, logger)
	planner := provider.NewClient(cfg.ProviderURL, cfg.ProviderTimeout, logger)
	coordinator := service.NewCoordinator(planner, tripRepo, searchRepo, network, logger, collector)
	reloader := service.NewReloader(planner, logger)
	janitor := service.NewJanitor(tripRepo, cfg.TripRetention, cfg.JanitorInterval, logger, collector)

	handler := api.NewHandler(coordinator, reloader, tripRepo, collector, logger)
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler.Router(cfg.CORSAllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := janitor.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", cfg.ListenAddr, "network", cfg.NetworkID, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		coordinator.Stop()
		janitor.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
