package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/turtacn/ubi/pkg/constants"
)

// PricingRules are the bounds applied to a pricing table and to every quote.
type PricingRules struct {
	MaxAdjustment float64 `json:"max_adjustment"`
	MinAdjustment float64 `json:"min_adjustment"`
	CooldownDays  int     `json:"cooldown_days"`
	MinPremium    float64 `json:"min_premium"`
	MaxPremium    float64 `json:"max_premium"`
}

// DefaultPricingRules returns the built-in rules.
func DefaultPricingRules() PricingRules {
	return PricingRules{
		MaxAdjustment: constants.DefaultMaxAdjustment,
		MinAdjustment: constants.DefaultMinAdjustment,
		CooldownDays:  constants.DefaultCooldownDays,
		MinPremium:    constants.DefaultMinPremium,
		MaxPremium:    constants.DefaultMaxPremium,
	}
}

// PricingConfig is an immutable snapshot of the band table.
// A new snapshot replaces the old one as a whole; fields are never mutated in place.
type PricingConfig struct {
	Adjustments map[constants.Band]float64 `json:"adjustments"`
	Rules       PricingRules               `json:"rules"`
	Version     string                     `json:"version"`
	LastUpdated time.Time                  `json:"last_updated"`
	// UpdatedBy names the instance that wrote this snapshot, empty for built-in and file tables.
	UpdatedBy   string                     `json:"updated_by,omitempty"`
}

// SameTable reports whether c and other price identically, whatever their version labels.
func (c *PricingConfig) SameTable(other *PricingConfig) bool {
	if c.Rules != other.Rules || len(c.Adjustments) != len(other.Adjustments) {
		return false
	}
	for b, v := range c.Adjustments {
		if ov, ok := other.Adjustments[b]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Supersedes is a total order over snapshots written by different instances:
// the later LastUpdated wins, then the greater writer, then the greater version label.
func (c *PricingConfig) Supersedes(other *PricingConfig) bool {
	if !c.LastUpdated.Equal(other.LastUpdated) {
		return c.LastUpdated.After(other.LastUpdated)
	}
	if c.UpdatedBy != other.UpdatedBy {
		return c.UpdatedBy > other.UpdatedBy
	}
	return c.Version > other.Version
}

// Clone returns a deep copy.
func (c *PricingConfig) Clone() *PricingConfig {
	out := *c
	out.Adjustments = make(map[constants.Band]float64, len(c.Adjustments))
	for k, v := range c.Adjustments {
		out.Adjustments[k] = v
	}
	return &out
}

// ValidationReport is the outcome of validating a pricing table.
type ValidationReport struct {
	IsValid  bool     `json:"is_valid"`
	Warnings []string `json:"warnings"`
	Errors   []string `json:"errors"`
}

// PricingQuote is a transient premium proposal.
type PricingQuote struct {
	PolicyID        *uuid.UUID     `json:"policy_id,omitempty"`
	Score           float64        `json:"score"`
	Band            constants.Band `json:"band"`
	BasePremium     float64        `json:"base_premium"`
	RawDeltaPct     float64        `json:"raw_delta_pct"`
	DeltaPct        float64        `json:"delta_pct"`
	DeltaAmount     float64        `json:"delta_amount"`
	NewPremium      float64        `json:"new_premium"`
	CooldownApplied bool           `json:"cooldown_applied"`
	Rationale       string         `json:"rationale"`
	TableVersion    string         `json:"table_version"`
}

// PremiumAdjustmentRecord is an append-only premium change for a policy.
type PremiumAdjustmentRecord struct {
	ID           uuid.UUID      `json:"id"`
	PolicyID     uuid.UUID      `json:"policy_id"`
	PeriodStart  time.Time      `json:"period_start"`
	PeriodEnd    time.Time      `json:"period_end"`
	Band         constants.Band `json:"band"`
	DeltaPct     float64        `json:"delta_pct"`
	DeltaAmount  float64        `json:"delta_amount"`
	NewPremium   float64        `json:"new_premium"`
	Reason       string         `json:"reason"`
	ScoreVersion string         `json:"score_version"`
	RiskScoreID  *uuid.UUID     `json:"risk_score_id,omitempty"`
	// CooldownHeld marks a record that repeats the rate of the adjustment whose
	// cooldown window it fell into.
	CooldownHeld bool           `json:"cooldown_held"`
	CreatedAt    time.Time      `json:"created_at"`
}

// IsEffective reports whether the record set a new premium rate.
// Only effective records open a cooldown window.
func (r *PremiumAdjustmentRecord) IsEffective() bool {
	return r.DeltaPct != 0 && !r.CooldownHeld
}

// BulkFailure describes one policy skipped by a bulk adjustment.
type BulkFailure struct {
	PolicyID uuid.UUID `json:"policy_id"`
	Kind     string    `json:"kind"`
	Message  string    `json:"message"`
}

// BulkAdjustResult summarises a bulk adjustment run.
type BulkAdjustResult struct {
	Total      int                        `json:"total"`
	Successful int                        `json:"successful"`
	Records    []*PremiumAdjustmentRecord `json:"records"`
	Failures   []BulkFailure              `json:"failures"`
}

// BandAdjustmentStats aggregates adjustment history for one band.
type BandAdjustmentStats struct {
	Band        constants.Band `json:"band"`
	Count       int64          `json:"count"`
	AvgDeltaPct float64        `json:"avg_delta_pct"`
	TotalChange float64        `json:"total_change"`
}

// AdjustmentAggregate is the raw aggregate read from adjustment history.
type AdjustmentAggregate struct {
	TotalAdjustments int64
	AvgDeltaPct      float64
	TotalChange      float64
	TotalIncreases   float64
	TotalDecreases   float64
	LastAdjustmentAt *time.Time
	ByBand           []BandAdjustmentStats
}

// PricingMetrics is the aggregate view returned to operators.
type PricingMetrics struct {
	RulesVersion           string                `json:"rules_version"`
	TotalAdjustments       int64                 `json:"total_adjustments"`
	AverageDeltaPct        float64               `json:"average_delta_pct"`
	AdjustmentDistribution []BandAdjustmentStats `json:"adjustment_distribution"`
	RevenueImpact          RevenueImpact         `json:"revenue_impact"`
	LastAdjustmentAt       *time.Time            `json:"last_adjustment_at,omitempty"`
}

// RevenueImpact sums premium changes across all adjustments.
type RevenueImpact struct {
	TotalChange    float64 `json:"total_change"`
	TotalIncreases float64 `json:"total_increases"`
	TotalDecreases float64 `json:"total_decreases"`
}

// ScenarioQuote prices one named score range.
type ScenarioQuote struct {
	Name       string        `json:"name"`
	ScoreRange string        `json:"score_range"`
	Score      float64       `json:"score"`
	Quote      *PricingQuote `json:"quote"`
}

// BandScenario is the effect of one band's adjustment on a base premium.
type BandScenario struct {
	Band          constants.Band `json:"band"`
	DeltaPct      float64        `json:"delta_pct"`
	NewPremium    float64        `json:"new_premium"`
	PremiumChange float64        `json:"premium_change"`
}

// ScenarioAnalysis is the table-level premium spread for a base premium.
type ScenarioAnalysis struct {
	BasePremium  float64        `json:"base_premium"`
	Scenarios    []BandScenario `json:"scenarios"`
	MinPremium   float64        `json:"min_premium"`
	MaxPremium   float64        `json:"max_premium"`
	PremiumRange float64        `json:"premium_range"`
}

// PremiumImpact is the portfolio-weighted effect of the current table.
type PremiumImpact struct {
	WeightedAdjustment float64                    `json:"weighted_adjustment"`
	BandShares         map[constants.Band]float64 `json:"band_shares"`
	TotalPolicies      int                        `json:"total_policies"`
}

// BandInfo describes a band and the score range it covers.
type BandInfo struct {
	Band        constants.Band `json:"band"`
	Description string         `json:"description"`
	MinScore    float64        `json:"min_score"`
	MaxScore    float64        `json:"max_score"`
	DeltaPct    float64        `json:"delta_pct"`
}
