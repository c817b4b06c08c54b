// Package bootstrap assembles the service graph shared by the HTTP server and the admin CLI.
package bootstrap

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	appService "github.com/turtacn/ubi/internal/application/service"
	"github.com/turtacn/ubi/internal/config"
	"github.com/turtacn/ubi/internal/domain/models"
	"github.com/turtacn/ubi/internal/domain/repository"
	domainService "github.com/turtacn/ubi/internal/domain/service"
	"github.com/turtacn/ubi/internal/infrastructure/cache"
	"github.com/turtacn/ubi/internal/infrastructure/events"
	"github.com/turtacn/ubi/internal/infrastructure/model"
	"github.com/turtacn/ubi/internal/infrastructure/monitoring"
	"github.com/turtacn/ubi/internal/infrastructure/persistence/postgres"
	"github.com/turtacn/ubi/internal/infrastructure/persistence/redis"
	"github.com/turtacn/ubi/internal/infrastructure/pricingfile"
	"github.com/turtacn/ubi/pkg/logger"
)

// App is the fully wired service. Optional backends are nil when disabled.
type App struct {
	Config   *config.Config
	Logger   logger.Logger
	Registry *prometheus.Registry
	Metrics  *monitoring.Metrics
	Tracing  *monitoring.TracingManager
	// InstanceID identifies this process as the source of published events.
	InstanceID string

	DB        *postgres.DBConnection
	Redis     *redis.RedisConnection
	Publisher *events.KafkaPublisher
	TableSync *events.TableSyncConsumer
	Watcher   *pricingfile.Watcher

	Table   *domainService.PricingTable
	Model   domainService.RiskModel
	Scoring appService.ScoringAppService
	Pricing appService.PricingAppService

	closers []func() error
}

// New connects every configured backend and wires the domain and application services.
// On error everything opened so far is closed again.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (a *App, err error) {
	a = &App{
		Config:     cfg,
		Logger:     log,
		Registry:   prometheus.NewRegistry(),
		InstanceID: instanceID(),
	}
	defer func() {
		if err != nil {
			a.Close(ctx)
			a = nil
		}
	}()

	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = monitoring.NewMetrics(a.Registry)
	metrics := monitoring.NewMetricsAdapter(a.Metrics)

	if a.Tracing, err = monitoring.NewTracingManager(cfg, log); err != nil {
		return a, err
	}
	a.closers = append(a.closers, func() error { return a.Tracing.Shutdown(context.Background()) })

	if a.DB, err = postgres.NewDBConnection(ctx, &cfg.Database, log); err != nil {
		return a, err
	}
	a.closers = append(a.closers, func() error { a.DB.Close(); return nil })

	db := a.DB.DB()
	trips := postgres.NewTripRepository(db, log)
	contexts := postgres.NewContextRepository(db, log)
	policies := postgres.NewPolicyRepository(db, log)
	var scores repository.ScoreRepository = postgres.NewScoreRepository(db, log)

	if cfg.Redis.Enabled {
		if a.Redis, err = redis.NewRedisConnection(ctx, &cfg.Redis, log); err != nil {
			return a, err
		}
		a.closers = append(a.closers, a.Redis.Close)
		scores = redis.NewCachedScoreRepository(scores, a.Redis, time.Duration(cfg.Redis.ScoreTTL)*time.Second, metrics, log)
	}

	adjustments := cache.NewCooldownCache(
		postgres.NewAdjustmentRepository(db, log),
		time.Duration(cfg.Pricing.CooldownCacheTTL)*time.Second,
		metrics, log,
	)

	if a.Table, err = NewPricingTable(cfg, domainService.WithWriter(a.InstanceID)); err != nil {
		return a, err
	}
	if cfg.Pricing.TableFile != "" {
		a.Watcher = pricingfile.NewWatcher(cfg.Pricing.TableFile, a.Table, metrics, log)
		if _, err = a.Watcher.Load(ctx); err != nil {
			return a, err
		}
	}

	var publisher domainService.AdjustmentPublisher
	var tableEvents appService.TableEventPublisher
	if cfg.Kafka.Enabled {
		a.Publisher = events.NewKafkaPublisher(cfg.Kafka, a.InstanceID, log)
		a.closers = append(a.closers, a.Publisher.Close)
		a.TableSync = events.NewTableSyncConsumer(cfg.Kafka, a.Table, a.InstanceID, metrics, log)
		a.closers = append(a.closers, a.TableSync.Close)
		publisher, tableEvents = a.Publisher, a.Publisher
	}

	var closeModel func() error
	if a.Model, closeModel, err = NewRiskModel(&cfg.Model, log); err != nil {
		return a, err
	}
	if closeModel != nil {
		a.closers = append(a.closers, closeModel)
	}

	thresholds := Thresholds(&cfg.Scoring)
	calculator := domainService.NewScoreCalculator(a.Model, domainService.ScoreCalculatorConfig{
		Thresholds:   thresholds,
		ModelTimeout: cfg.Scoring.Timeout(),
		NeutralScore: cfg.Scoring.NeutralScore,
		NeutralBand:  cfg.Scoring.Band(),
	}, log)
	a.Scoring = appService.NewScoringAppService(
		trips, scores,
		domainService.NewFeatureExtractor(trips, contexts),
		calculator, metrics, cfg.Pricing.BulkWorkers, log,
	)

	engine := domainService.NewPricingEngine(domainService.PricingEngineConfig{
		Thresholds:       thresholds,
		MaxMonthlyChange: cfg.Pricing.MaxMonthlyChange,
		BulkWorkers:      cfg.Pricing.BulkWorkers,
	}, domainService.PricingEngineDeps{
		Table:       a.Table,
		Adjustments: adjustments,
		History:     adjustments,
		Publisher:   publisher,
		Metrics:     metrics,
		Logger:      log,
	})
	a.Pricing = appService.NewPricingAppService(appService.PricingAppServiceDeps{
		Engine:      engine,
		Policies:    policies,
		Scores:      scores,
		Adjustments: adjustments,
		Scoring:     a.Scoring,
		TableEvents: tableEvents,
		Metrics:     metrics,
		Logger:      log,
	})

	log.Info(ctx, "Service graph assembled",
		logger.String("instance_id", a.InstanceID),
		logger.String("pricing_version", a.Table.Version()),
		logger.Bool("redis", a.Redis != nil),
		logger.Bool("kafka", a.Publisher != nil),
		logger.String("model_version", modelVersion(a.Model)),
	)
	return a, nil
}

// Close releases every backend in reverse order of acquisition.
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn(ctx, "Error during shutdown", logger.Err(err))
		}
	}
	a.closers = nil
}

// NewPricingTable builds the startup table from the pricing section of the config.
func NewPricingTable(cfg *config.Config, opts ...domainService.PricingTableOption) (*domainService.PricingTable, error) {
	rules := models.PricingRules{
		MaxAdjustment: cfg.Pricing.MaxAdjustment,
		MinAdjustment: cfg.Pricing.MinAdjustment,
		CooldownDays:  cfg.Pricing.CooldownDays,
		MinPremium:    cfg.Pricing.MinPremium,
		MaxPremium:    cfg.Pricing.MaxPremium,
	}
	if cfg.Pricing.WarnAdjustment > 0 {
		opts = append(opts, domainService.WithWarnThreshold(cfg.Pricing.WarnAdjustment))
	}
	return domainService.NewPricingTable(cfg.Pricing.BandAdjustments(), rules, opts...)
}

// NewRiskModel selects the model backend. A linear model without a weights file yields a
// nil model, which makes every assessment the neutral fallback.
func NewRiskModel(cfg *config.ModelConfig, log logger.Logger) (domainService.RiskModel, func() error, error) {
	switch cfg.Kind {
	case "grpc":
		m, err := model.NewGRPCModel(cfg.GRPCTarget, cfg.Version)
		if err != nil {
			return nil, nil, err
		}
		return m, m.Close, nil
	default:
		if cfg.WeightsFile == "" {
			log.Warn(context.Background(), "No model weights configured, scoring will use the neutral fallback")
			return nil, nil, nil
		}
		m, err := model.LoadLinearModel(cfg.WeightsFile, cfg.Version)
		if err != nil {
			return nil, nil, err
		}
		return m, nil, nil
	}
}

// Thresholds converts the scoring thresholds, keeping the built-in ones when unset.
func Thresholds(cfg *config.ScoringConfig) domainService.BandThresholds {
	t := cfg.Thresholds
	if t.A == 0 && t.B == 0 && t.C == 0 && t.D == 0 {
		return domainService.DefaultBandThresholds()
	}
	return domainService.BandThresholds{A: t.A, B: t.B, C: t.C, D: t.D}
}

func modelVersion(m domainService.RiskModel) string {
	if m == nil {
		return "none"
	}
	return m.Version()
}

func instanceID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return uuid.NewString()
}

//Personal.AI order the ending
