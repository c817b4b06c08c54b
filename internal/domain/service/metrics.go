// Package service holds the risk-scoring and pricing domain logic.
package service

import (
	"time"
)

// Metrics defines the interface for collecting business metrics.
// This abstraction keeps the domain independent of the monitoring backend (Prometheus).
// Metrics 定义了收集业务指标的接口。
type Metrics interface {
	// RecordScoring records one scoring call, its band and whether the fallback path was taken.
	// RecordScoring 记录一次评分调用。
	RecordScoring(scoreType string, band string, fallback bool, duration time.Duration)

	// RecordQuote records a computed quote.
	// RecordQuote 记录一次报价。
	RecordQuote(band string, cooldownApplied bool)

	// RecordAdjustmentApplied records an appended adjustment record.
	// RecordAdjustmentApplied 记录一次保费调整。
	RecordAdjustmentApplied(band string)

	// RecordBulkFailure records a policy skipped by a bulk run, labelled by failure kind.
	// RecordBulkFailure 记录批量调整中的单个失败。
	RecordBulkFailure(kind string)

	// RecordPricingTableUpdate records the outcome of a table update ("applied" or "rejected").
	// RecordPricingTableUpdate 记录定价表更新结果。
	RecordPricingTableUpdate(result string)

	// RecordCacheAccess records a cache hit or miss.
	// RecordCacheAccess 记录缓存命中或未命中。
	RecordCacheAccess(cacheType string, hit bool)
}

type noopMetrics struct{}

// NewNoopMetrics returns a Metrics that discards everything.
func NewNoopMetrics() Metrics { return noopMetrics{} }

func (noopMetrics) RecordScoring(string, string, bool, time.Duration) {}
func (noopMetrics) RecordQuote(string, bool)                         {}
func (noopMetrics) RecordAdjustmentApplied(string)                   {}
func (noopMetrics) RecordBulkFailure(string)                         {}
func (noopMetrics) RecordPricingTableUpdate(string)                  {}
func (noopMetrics) RecordCacheAccess(string, bool)                   {}
