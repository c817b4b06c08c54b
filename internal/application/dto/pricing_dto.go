package dto

import (
	"time"

	"github.com/turtacn/ubi/internal/domain/models"
)

// QuoteRequest 报价请求
type QuoteRequest struct {
	Score       *float64 `json:"score" validate:"required,min=0,max=100"`
	BasePremium float64  `json:"base_premium" validate:"required,gt=0"`
	PolicyID    string   `json:"policy_id,omitempty" validate:"omitempty,uuid"`
}

// ApplyAdjustmentRequest 保费调整请求
// When Score is omitted the policy holder's latest stored score is used.
type ApplyAdjustmentRequest struct {
	PolicyID string   `json:"policy_id" validate:"required,uuid"`
	Score    *float64 `json:"score,omitempty" validate:"omitempty,min=0,max=100"`
}

// BulkAdjustRequest 批量调整请求
// An empty PolicyIDs list adjusts every active policy.
type BulkAdjustRequest struct {
	PolicyIDs []string `json:"policy_ids,omitempty" validate:"omitempty,dive,uuid"`
	// Rescore computes a fresh daily score for RescoreDate (default: today, UTC)
	// instead of reading the latest stored one.
	Rescore     bool   `json:"rescore,omitempty"`
	RescoreDate string `json:"rescore_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// BulkAdjustResponse 批量调整结果
type BulkAdjustResponse struct {
	Total      int                  `json:"total"`
	Successful int                  `json:"successful"`
	Failed     int                  `json:"failed"`
	Failures   []models.BulkFailure `json:"failures,omitempty"`
}

// UpdatePricingTableRequest merges the given band adjustments into the current table.
type UpdatePricingTableRequest struct {
	Adjustments map[string]float64 `json:"adjustments" validate:"required,min=1"`
}

// UpdatePricingRulesRequest replaces the table's rules.
type UpdatePricingRulesRequest struct {
	MaxAdjustment float64 `json:"max_adjustment"`
	MinAdjustment float64 `json:"min_adjustment"`
	CooldownDays  int     `json:"cooldown_days" validate:"min=0"`
	MinPremium    float64 `json:"min_premium" validate:"gt=0"`
	MaxPremium    float64 `json:"max_premium" validate:"gtfield=MinPremium"`
}

// PricingTableResponse 当前定价表
type PricingTableResponse struct {
	Version     string              `json:"version"`
	LastUpdated time.Time           `json:"last_updated"`
	Adjustments map[string]float64  `json:"adjustments"`
	Rules       models.PricingRules `json:"rules"`
}

// PricingTableUpdateResponse carries the validation report of an accepted or rejected update.
type PricingTableUpdateResponse struct {
	Applied bool                    `json:"applied"`
	Report  models.ValidationReport `json:"report"`
	Table   *PricingTableResponse   `json:"table,omitempty"`
}

// PremiumImpactRequest is a band -> policy count distribution.
type PremiumImpactRequest struct {
	Distribution map[string]int `json:"distribution" validate:"required,min=1"`
}

// CurrentPremiumResponse 当前保费
type CurrentPremiumResponse struct {
	PolicyID       string     `json:"policy_id"`
	BasePremium    float64    `json:"base_premium"`
	CurrentPremium float64    `json:"current_premium"`
	LastAdjustedAt *time.Time `json:"last_adjusted_at,omitempty"`
}

// PricingTableToDTO converts a table snapshot.
func PricingTableToDTO(cfg *models.PricingConfig) *PricingTableResponse {
	adj := make(map[string]float64, len(cfg.Adjustments))
	for b, v := range cfg.Adjustments {
		adj[string(b)] = v
	}
	return &PricingTableResponse{
		Version:     cfg.Version,
		LastUpdated: cfg.LastUpdated,
		Adjustments: adj,
		Rules:       cfg.Rules,
	}
}

// BulkResultToDTO converts a bulk adjustment result.
func BulkResultToDTO(r *models.BulkAdjustResult) *BulkAdjustResponse {
	return &BulkAdjustResponse{
		Total:      r.Total,
		Successful: r.Successful,
		Failed:     len(r.Failures),
		Failures:   r.Failures,
	}
}
