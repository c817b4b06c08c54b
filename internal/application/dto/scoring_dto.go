package dto

import "github.com/turtacn/ubi/internal/domain/models"

// ComputeTripScoreRequest identifies the trip to score.
type ComputeTripScoreRequest struct {
	TripID string `json:"trip_id" validate:"required,uuid"`
}

// ComputeDailyScoreRequest identifies the user and UTC day to score.
type ComputeDailyScoreRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
	// Date is a calendar day in YYYY-MM-DD form, interpreted in UTC.
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}

// ComputeDailyScoresRequest scores every given user for one day.
type ComputeDailyScoresRequest struct {
	UserIDs []string `json:"user_ids" validate:"required,min=1,dive,uuid"`
	Date    string   `json:"date" validate:"required,datetime=2006-01-02"`
}

// DailyScoresResponse summarises a multi-user daily scoring run.
type DailyScoresResponse struct {
	Total      int                 `json:"total"`
	Successful int                 `json:"successful"`
	Fallbacks  int                 `json:"fallbacks"`
	Failures   map[string]ErrorDTO `json:"failures,omitempty"`
}

// ScoreHistoryRequest selects one page of a user's assessments over the last Days days.
// Zero values take the defaults.
type ScoreHistoryRequest struct {
	Days     int `form:"days" validate:"omitempty,min=1,max=365"`
	Page     int `form:"page" validate:"omitempty,min=1"`
	PageSize int `form:"page_size" validate:"omitempty,min=1,max=500"`
}

// ScoreHistoryResponse 评分历史, newest first.
type ScoreHistoryResponse struct {
	UserID     string                   `json:"user_id"`
	Days       int                      `json:"days"`
	Scores     []*models.RiskAssessment `json:"scores"`
	Pagination PaginationResponse       `json:"pagination"`
}
