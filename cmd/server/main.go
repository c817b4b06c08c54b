package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/ubi/internal/bootstrap"
	"github.com/turtacn/ubi/internal/config"
	"github.com/turtacn/ubi/internal/infrastructure/monitoring"
	"github.com/turtacn/ubi/internal/infrastructure/persistence/postgres"
	ubihttp "github.com/turtacn/ubi/internal/interfaces/http"
	"github.com/turtacn/ubi/internal/interfaces/http/handlers"
	"github.com/turtacn/ubi/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to the config file")
	flag.Parse()

	// Load config
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger, err := monitoring.NewZapLogger(&cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, appLogger); err != nil {
		appLogger.Error(context.Background(), "Server exited with error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, appLogger logger.Logger) error {
	app, err := bootstrap.New(ctx, cfg, appLogger)
	if err != nil {
		return err
	}
	defer app.Close(context.Background())

	if err := postgres.AutoMigrate(app.DB.DB()); err != nil {
		return err
	}

	deps := map[string]handlers.Pinger{"database": app.DB}
	if app.Redis != nil {
		deps["redis"] = app.Redis
	}

	routerDeps := ubihttp.RouterDeps{
		Config:         cfg,
		Logger:         appLogger,
		Metrics:        app.Metrics,
		Gatherer:       app.Registry,
		Tracing:        app.Tracing,
		HealthHandler:  handlers.NewHealthHandler(app.Table, appLogger, deps),
		PricingHandler: handlers.NewPricingHandler(app.Pricing, appLogger),
		ScoringHandler: handlers.NewScoringHandler(app.Scoring, app.Table, appLogger),
	}
	if app.Redis != nil {
		routerDeps.Redis = app.Redis.GetClient()
	}
	router := ubihttp.NewRouter(routerDeps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(router.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return router.Stop(shutdownCtx)
	})
	if app.Watcher != nil {
		g.Go(func() error { return app.Watcher.Run(gctx) })
	}
	if app.TableSync != nil {
		g.Go(func() error { return app.TableSync.Run(gctx) })
	}

	err = g.Wait()
	appLogger.Info(context.Background(), "HTTP server stopped")
	return err
}
