package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/authstore/internal/bootstrap"
	"github.com/turtacn/authstore/internal/config"
	"github.com/turtacn/authstore/internal/infrastructure/monitoring"
	grpciface "github.com/turtacn/authstore/internal/interfaces/grpc"
	httpiface "github.com/turtacn/authstore/internal/interfaces/http"
	"github.com/turtacn/authstore/internal/interfaces/http/handlers"
	"github.com/turtacn/authstore/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "path to the configuration file")
	flag.Parse()

	// Logger for startup
	startupLogger, err := monitoring.NewZapLogger(&config.LogConfig{Level: "info", Format: "json", OutputPath: "stdout"})
	if err != nil {
		log.Fatalf("Failed to create startup logger: %v", err)
	}

	// Load config
	loader := config.NewLoader(*configPath, startupLogger)
	cfg, err := loader.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger, err := monitoring.NewZapLogger(&cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	loader.WatchLogLevel(appLogger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	components, err := bootstrap.Build(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize services", err)
	}

	healthChecks := components.HealthChecks()
	router := httpiface.NewRouter(cfg, appLogger, components.Metrics, components.Registry, components.Signer,
		handlers.NewHealthHandler(healthChecks, appLogger),
		handlers.NewJWKSHandler(components.Signer, appLogger),
		handlers.NewAuthorizationHandler(components.Authorizations, appLogger),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(router.Start)
	if cfg.Server.GRPCPort > 0 {
		grpcServer := grpciface.NewServer(cfg.Server, healthChecks, appLogger)
		g.Go(grpcServer.Start)
		g.Go(func() error {
			grpcServer.Health().Run(gctx)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			grpcServer.Stop(shutdownCtx)
			return nil
		})
	}
	if cfg.Rotation.Enabled {
		g.Go(func() error {
			if err := components.Scheduler.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := router.Stop(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	exitCode := 0
	if err := g.Wait(); err != nil {
		appLogger.Error(context.Background(), "Server stopped with error", err)
		exitCode = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	components.Close(shutdownCtx)
	cancel()
	appLogger.Info(context.Background(), "Server stopped", logger.Int("exit_code", exitCode))
	os.Exit(exitCode)
}
