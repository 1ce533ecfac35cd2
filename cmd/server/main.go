package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"oficiogen/backend/pkg/config"
	"oficiogen/backend/pkg/di"
	"oficiogen/backend/pkg/grpcserver"
	"oficiogen/backend/pkg/logger"
	"oficiogen/backend/pkg/observability"
	"oficiogen/backend/pkg/router"
)

func main() {
	// Loads .env and the optional TOML file
	cfg := config.New()

	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format != "text"

	log := logger.New(logConfig)
	logger.SetGlobal(log)

	log.Info("Starting application",
		"version", os.Getenv("APP_VERSION"),
		"env", cfg.Server.Env,
		"store", cfg.Store.Backend,
	)

	if cfg.Observability.Tracing {
		shutdownTracing, err := observability.SetupTracing(cfg.Observability.ServiceName, os.Stdout)
		if err != nil {
			log.LogError(err, "Failed to initialize tracing")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTracing(ctx); err != nil {
					log.LogError(err, "Failed to flush traces")
				}
			}()
		}
	}

	container, err := di.New(cfg, log, di.Options{})
	if err != nil {
		log.LogError(err, "Failed to initialize dependency container")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := router.New(container)
	if cfg.OpenAPI.SchemaPath != "" {
		r.AddOpenAPIValidation(cfg.OpenAPI.SchemaPath)
	}
	r.SetupRoutes()
	r.RunBackground(ctx)

	go container.Health.Run(ctx)
	go container.Registry.Run(ctx, cfg.Workspace.CleanupPeriod)

	grpcSrv := grpcserver.New(container.Health, 15*time.Second, log)
	go grpcSrv.Run(ctx)
	go func() {
		if err := grpcSrv.Serve(cfg.Server.GRPCPort); err != nil {
			log.LogError(err, "gRPC server stopped")
		}
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.LogError(err, "Server failed to start")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.Timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.LogError(err, "Server forced to shutdown")
	}
	grpcSrv.Stop()

	if err := container.Close(shutdownCtx); err != nil {
		log.LogError(err, "Failed to release resources")
	}

	log.Info("Server exited gracefully")
}
