package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/turtacn/ubi/pkg/constants"
)

// RiskAssessment is the immutable result of one scoring call.
type RiskAssessment struct {
	ID               uuid.UUID           `json:"id"`
	UserID           uuid.UUID           `json:"user_id"`
	TripID           *uuid.UUID          `json:"trip_id,omitempty"`
	ScoreType        constants.ScoreType `json:"score_type"`
	ScoreValue       float64             `json:"score_value"`
	Band             constants.Band      `json:"band"`
	ClaimProbability float64             `json:"claim_probability"`
	ClaimSeverity    float64             `json:"claim_severity"`
	ExpectedLoss     float64             `json:"expected_loss"`
	Explanations     []string            `json:"explanations"`
	Features         FeatureVector       `json:"features"`
	ModelVersion     string              `json:"model_version"`
	ComputedAt       time.Time           `json:"computed_at"`
}

// IsFallback reports whether the assessment was produced without a usable model.
func (r *RiskAssessment) IsFallback() bool {
	return r.ModelVersion == constants.FallbackModelVersion
}

// ScoreStats summarises the assessments computed since a point in time.
type ScoreStats struct {
	TotalScores  int64
	AverageScore float64
	ByBand       map[constants.Band]int64
}

// ScoreTrendPoint is one assessment on a user's score trend.
type ScoreTrendPoint struct {
	Date  time.Time      `json:"date"`
	Score float64        `json:"score"`
	Band  constants.Band `json:"band"`
}

// ScoreTrend is a user's scores over a window, oldest first.
type ScoreTrend struct {
	UserID    uuid.UUID         `json:"user_id"`
	Days      int               `json:"days"`
	Trend     []ScoreTrendPoint `json:"trend"`
	Change    float64           `json:"change"`
	Direction string            `json:"direction"`
}

// ScoringMetrics describes recent scoring activity.
type ScoringMetrics struct {
	ModelVersion      string                   `json:"model_version"`
	WindowDays        int                      `json:"window_days"`
	TotalScores       int64                    `json:"total_scores"`
	AverageScore      float64                  `json:"average_score"`
	ScoreDistribution map[constants.Band]int64 `json:"score_distribution"`
}
