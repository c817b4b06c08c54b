package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	domainService "github.com/turtacn/ubi/internal/domain/service"
	"github.com/turtacn/ubi/pkg/logger"
)

// Pinger is a dependency whose reachability gates readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	checks  map[string]Pinger
	table   *domainService.PricingTable
	timeout time.Duration
	log     logger.Logger
}

// NewHealthHandler creates a new HealthHandler. Nil dependencies are skipped, so optional
// backends such as Redis only count once they are configured.
func NewHealthHandler(table *domainService.PricingTable, log logger.Logger, deps map[string]Pinger) *HealthHandler {
	checks := make(map[string]Pinger, len(deps))
	for name, p := range deps {
		if p != nil {
			checks[name] = p
		}
	}
	return &HealthHandler{
		checks:  checks,
		table:   table,
		timeout: 2 * time.Second,
		log:     log.WithComponent("health_handler"),
	}
}

// LivenessCheck answers as long as the process can serve requests.
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().UTC(),
	})
}

// ReadinessCheck pings every dependency concurrently and reports 503 if any is down.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	status := "ready"
	httpStatus := http.StatusOK
	checks := h.performChecks(c.Request.Context())
	for name, result := range checks {
		if result != "ok" {
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
			h.log.Warn(c.Request.Context(), "Dependency check failed", logger.String("dependency", name), logger.String("result", result))
		}
	}

	body := gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	}
	if h.table != nil {
		body["pricing_version"] = h.table.Version()
	}
	c.JSON(httpStatus, body)
}

func (h *HealthHandler) performChecks(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	checks := make(map[string]string, len(h.checks))
	for name, p := range h.checks {
		wg.Add(1)
		go func(name string, p Pinger) {
			defer wg.Done()
			result := "ok"
			if err := p.Ping(ctx); err != nil {
				result = "error: " + err.Error()
			}
			mu.Lock()
			checks[name] = result
			mu.Unlock()
		}(name, p)
	}
	wg.Wait()
	return checks
}

//Personal.AI order the ending
