// Package monitoring provides the zap logger, Prometheus metrics and OpenTelemetry tracing.
package monitoring

import (
	"time"

	"github.com/turtacn/ubi/internal/domain/service"
)

// MetricsAdapter implements the domain's service.Metrics interface, sending metrics to a Prometheus backend.
// MetricsAdapter 实现了域的 service.Metrics 接口，将指标发送到 Prometheus 后端。
type MetricsAdapter struct {
	metrics *Metrics
}

// NewMetricsAdapter creates a new adapter that wraps a concrete Prometheus Metrics object.
// NewMetricsAdapter 创建一个包装具体 Prometheus Metrics 对象的新适配器。
func NewMetricsAdapter(metrics *Metrics) service.Metrics {
	return &MetricsAdapter{metrics: metrics}
}

func (a *MetricsAdapter) RecordScoring(scoreType string, band string, fallback bool, duration time.Duration) {
	a.metrics.RecordScoring(scoreType, band, fallback, duration)
}

func (a *MetricsAdapter) RecordQuote(band string, cooldownApplied bool) {
	a.metrics.RecordQuote(band, cooldownApplied)
}

func (a *MetricsAdapter) RecordAdjustmentApplied(band string) {
	a.metrics.RecordAdjustmentApplied(band)
}

func (a *MetricsAdapter) RecordBulkFailure(kind string) {
	a.metrics.RecordBulkFailure(kind)
}

func (a *MetricsAdapter) RecordPricingTableUpdate(result string) {
	a.metrics.RecordPricingTableUpdate(result)
}

// RecordCacheAccess 将调用委托给底层的 Prometheus Metrics 对象。
func (a *MetricsAdapter) RecordCacheAccess(cacheType string, hit bool) {
	a.metrics.RecordCacheAccess(cacheType, hit)
}
