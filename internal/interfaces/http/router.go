package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/turtacn/ubi/internal/application/dto"
	"github.com/turtacn/ubi/internal/config"
	"github.com/turtacn/ubi/internal/infrastructure/monitoring"
	"github.com/turtacn/ubi/internal/interfaces/http/handlers"
	"github.com/turtacn/ubi/internal/interfaces/http/middleware"
	"github.com/turtacn/ubi/pkg/constants"
	"github.com/turtacn/ubi/pkg/logger"
)

// RouterDeps collects everything the HTTP layer is wired from.
type RouterDeps struct {
	Config         *config.Config
	Logger         logger.Logger
	Metrics        *monitoring.Metrics
	Gatherer       prometheus.Gatherer
	Tracing        *monitoring.TracingManager
	Redis          redis.UniversalClient // optional, enables Idempotency-Key handling
	HealthHandler  *handlers.HealthHandler
	PricingHandler *handlers.PricingHandler
	ScoringHandler *handlers.ScoringHandler
}

// Router HTTP 路由器
type Router struct {
	engine *gin.Engine
	deps   RouterDeps
	server *http.Server
}

// NewRouter 创建路由器并注册全部路由
func NewRouter(deps RouterDeps) *Router {
	engine := gin.New()
	r := &Router{engine: engine, deps: deps}
	r.setupRoutes()

	cfg := deps.Config.Server
	r.server = &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:        engine,
		ReadTimeout:    time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.WriteTimeout) * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}
	return r
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	cfg := r.deps.Config
	log := r.deps.Logger

	// 全局中间件
	r.engine.Use(handlers.RecoveryMiddleware(log))
	r.engine.Use(middleware.RequestID())
	r.engine.Use(middleware.Observability(r.deps.Tracing, r.deps.Metrics))
	r.engine.Use(handlers.LoggingMiddleware(log))
	r.engine.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", constants.HeaderRequestID, constants.HeaderIdempotencyKey, "If-None-Match"},
		ExposeHeaders: []string{constants.HeaderRequestID, "ETag"},
		MaxAge:        12 * time.Hour,
	}))

	// 健康检查
	r.engine.GET("/health/live", r.deps.HealthHandler.LivenessCheck)
	r.engine.GET("/health/ready", r.deps.HealthHandler.ReadinessCheck)

	// Prometheus metrics
	gatherer := r.deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	if cfg.Server.EnablePprof {
		pprof.Register(r.engine)
	}

	ttl := time.Duration(cfg.Redis.IdempotencyTTL) * time.Second
	idempotent := middleware.Idempotency(r.deps.Redis, ttl, log)

	v1 := r.engine.Group("/api/v1")
	{
		pricing := v1.Group("/pricing")
		{
			ph := r.deps.PricingHandler
			pricing.POST("/quote", ph.CalculateQuote)
			pricing.POST("/adjustments", idempotent, ph.ApplyAdjustment)
			pricing.POST("/adjustments/bulk", idempotent, ph.BulkAdjust)
			pricing.GET("/metrics", ph.GetPricingMetrics)
			pricing.GET("/scenarios", ph.SimulateScenarios)
			pricing.GET("/scenarios/analysis", ph.ScenarioAnalysis)
			pricing.POST("/impact", ph.PremiumImpact)

			table := pricing.Group("/table")
			table.GET("", middleware.ETag(), ph.GetPricingTable)
			table.PUT("", ph.UpdatePricingTable)
			table.PUT("/rules", ph.UpdatePricingRules)
			table.POST("/reset", ph.ResetPricingTable)
			table.GET("/validate", ph.ValidatePricingRules)
			table.GET("/export", middleware.ETag(), ph.ExportPricingTable)
			table.POST("/import", ph.ImportPricingTable)
		}

		policies := v1.Group("/policies/:policy_id")
		{
			policies.GET("/premium", r.deps.PricingHandler.CurrentPremium)
			policies.GET("/adjustments", r.deps.PricingHandler.ListPolicyAdjustments)
		}

		scores := v1.Group("/scores")
		{
			sh := r.deps.ScoringHandler
			scores.POST("/trip", sh.ComputeTripScore)
			scores.POST("/daily", sh.ComputeDailyScore)
			scores.POST("/daily/batch", sh.ComputeDailyScores)
			scores.GET("/metrics", sh.ScoringMetrics)
			scores.GET("/:score_id", sh.GetScore)
		}
		users := v1.Group("/users/:user_id/scores")
		{
			users.GET("/latest", r.deps.ScoringHandler.GetLatestScore)
			users.GET("/history", r.deps.ScoringHandler.GetScoreHistory)
			users.GET("/trend", r.deps.ScoringHandler.GetScoreTrend)
		}
		v1.GET("/bands", r.deps.ScoringHandler.BandStatistics)
	}

	// 404 处理
	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, &dto.APIResponse{
			Success: false,
			Error: &dto.ErrorDTO{
				Code:    "NOT_FOUND",
				Message: "The requested resource was not found",
			},
			Timestamp: time.Now().Unix(),
		})
	})
}

// Engine exposes the gin engine, mainly for tests.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// Start 启动 HTTP 服务器, blocking until it is stopped.
func (r *Router) Start() error {
	r.deps.Logger.Info(context.Background(), "Starting HTTP server", logger.String("address", r.server.Addr))
	if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop 停止 HTTP 服务器
func (r *Router) Stop(ctx context.Context) error {
	r.deps.Logger.Info(ctx, "Stopping HTTP server...")
	return r.server.Shutdown(ctx)
}

//Personal.AI order the ending
