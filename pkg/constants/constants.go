// Package constants defines system-wide constants for the UBI pricing service.
// This package provides type-safe constant definitions used across all modules.
package constants

import "time"

// ================================================================================
// Risk Band Constants
// ================================================================================

// Band is the ordinal risk category derived from a score. A is best, E is worst.
type Band string

const (
	BandA Band = "A"
	BandB Band = "B"
	BandC Band = "C"
	BandD Band = "D"
	BandE Band = "E"
)

// Bands lists every band in risk order, best first.
var Bands = []Band{BandA, BandB, BandC, BandD, BandE}

// Valid reports whether b is one of the five known bands.
func (b Band) Valid() bool {
	switch b {
	case BandA, BandB, BandC, BandD, BandE:
		return true
	}
	return false
}

// ================================================================================
// Score Constants
// ================================================================================

// ScoreType distinguishes the aggregation level of a risk score
type ScoreType string

const (
	// ScoreTypeTrip is a score computed for a single trip
	ScoreTypeTrip ScoreType = "trip"

	// ScoreTypeDaily is a score computed from one UTC day of trips
	ScoreTypeDaily ScoreType = "daily"
)

const (
	// MinScore and MaxScore bound every score value
	MinScore = 0.0
	MaxScore = 100.0

	// MinClaimSeverity and MaxClaimSeverity bound the model's severity estimate
	MinClaimSeverity = 1000.0
	MaxClaimSeverity = 50000.0

	// DefaultClaimSeverity is used when only the severity estimate is unavailable
	DefaultClaimSeverity = 10000.0

	// ScorePointsPerThousand is the score cost of every 1,000 of expected loss
	ScorePointsPerThousand = 10.0
)

// Default score-to-band thresholds (inclusive lower bounds).
const (
	DefaultThresholdA = 85.0
	DefaultThresholdB = 70.0
	DefaultThresholdC = 55.0
	DefaultThresholdD = 40.0
)

// Neutral fallback scoring values.
const (
	DefaultNeutralScore = 50.0
	DefaultNeutralBand  = BandC

	// FallbackModelVersion marks assessments produced without a usable model
	FallbackModelVersion = "fallback-neutral"

	// FallbackClaimProbability and DefaultClaimSeverity reproduce the neutral score
	// under the expected-loss formula.
	FallbackClaimProbability = 0.5

	// DefaultModelTimeout bounds a single model prediction call
	DefaultModelTimeout = 2 * time.Second
)

// ================================================================================
// Pricing Constants
// ================================================================================

const (
	DefaultMaxMonthlyChange = 0.20
	DefaultMinPremium       = 100.0
	DefaultMaxPremium       = 10000.0
	DefaultCooldownDays     = 30
	DefaultMinAdjustment    = -0.30
	DefaultMaxAdjustment    = 0.50
	DefaultWarnAdjustment   = 0.40
	DefaultBulkWorkers      = 8

	// DeltaPctHardLimit is the absolute bound on any persisted delta_pct
	DeltaPctHardLimit = 0.50

	// InitialPricingVersion is the version of the built-in default table
	InitialPricingVersion = "v1.0.0"

	// ScoreVersionManual is recorded when an adjustment is applied from a caller-supplied score
	ScoreVersionManual = "manual"

	// LargeSpreadWarning is the A-to-E adjustment spread above which validation warns
	LargeSpreadWarning = 0.60
)

// DefaultAdjustments is the built-in band -> delta_pct table.
func DefaultAdjustments() map[Band]float64 {
	return map[Band]float64{
		BandA: -0.15,
		BandB: -0.05,
		BandC: 0.00,
		BandD: 0.10,
		BandE: 0.25,
	}
}

// Score history windows.
const (
	DefaultScoreHistoryDays = 30
	MaxScoreHistoryDays     = 365
	ScoringMetricsDays      = 7

	DefaultPageSize = 50
	MaxPageSize     = 500

	// TrendStableChange is the score change below which a trend counts as stable
	TrendStableChange = 1.0
)

// Score trend directions. Higher scores are safer.
const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

// ================================================================================
// Policy Status Constants
// ================================================================================

// PolicyStatus represents the lifecycle status of an insurance policy
type PolicyStatus string

const (
	PolicyStatusActive    PolicyStatus = "active"
	PolicyStatusCancelled PolicyStatus = "cancelled"
	PolicyStatusExpired   PolicyStatus = "expired"
)

// ================================================================================
// Contextual Feature Defaults
// ================================================================================

// Neutral contextual values used when no context samples exist for a day.
const (
	NeutralTemperatureC    = 20.0
	NeutralPrecipitationMM = 0.0
	NeutralVisibilityKm    = 10.0
	NeutralCrimeIndex      = 50.0
	NeutralAccidentDensity = 2.0
)

// ================================================================================
// Event Constants
// ================================================================================

// EventType names the events published by the service
type EventType string

const (
	// EventPremiumAdjusted is published after an adjustment record is appended
	EventPremiumAdjusted EventType = "premium.adjusted"

	// EventPricingTableUpdated is published after a pricing table swap
	EventPricingTableUpdated EventType = "pricing.table_updated"
)

// ================================================================================
// Logging Constants
// ================================================================================

// LogLevel represents the severity level of log messages
type LogLevel string

const (
	// LogLevelDebug is the most verbose logging level
	LogLevelDebug LogLevel = "debug"

	// LogLevelInfo is the standard informational logging level
	LogLevelInfo LogLevel = "info"

	// LogLevelWarn indicates potential issues
	LogLevelWarn LogLevel = "warn"

	// LogLevelError indicates errors that need attention
	LogLevelError LogLevel = "error"
)

// ================================================================================
// Context Keys
// ================================================================================

// ContextKey represents keys used in context.Context
type ContextKey string

const (
	// ContextKeyRequestID is the key for request ID in context
	ContextKeyRequestID ContextKey = "request_id"

	// ContextKeyTraceID is the key for distributed trace ID in context
	ContextKeyTraceID ContextKey = "trace_id"

	// ContextKeyLogger is the key for a request-scoped logger
	ContextKeyLogger ContextKey = "logger"
)

// ================================================================================
// HTTP Header Constants
// ================================================================================

const (
	// HeaderRequestID carries the request id
	HeaderRequestID = "X-Request-ID"

	// HeaderIdempotencyKey lets callers retry adjustment writes safely
	HeaderIdempotencyKey = "Idempotency-Key"
)
