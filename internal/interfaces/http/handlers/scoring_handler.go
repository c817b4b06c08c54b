package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/ubi/internal/application/dto"
	"github.com/turtacn/ubi/internal/application/service"
	domainService "github.com/turtacn/ubi/internal/domain/service"
	"github.com/turtacn/ubi/pkg/errors"
	"github.com/turtacn/ubi/pkg/logger"
	"github.com/turtacn/ubi/pkg/utils"
)

// ScoringHandler exposes trip and daily risk scoring over HTTP.
type ScoringHandler struct {
	scoring service.ScoringAppService
	table   *domainService.PricingTable
	logger  logger.Logger
}

// NewScoringHandler creates a new ScoringHandler. table supplies the delta column of band statistics.
func NewScoringHandler(scoring service.ScoringAppService, table *domainService.PricingTable, log logger.Logger) *ScoringHandler {
	return &ScoringHandler{
		scoring: scoring,
		table:   table,
		logger:  log.WithComponent("scoring_handler"),
	}
}

// ComputeTripScore handles POST /scores/trip.
func (h *ScoringHandler) ComputeTripScore(c *gin.Context) {
	var req dto.ComputeTripScoreRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	a, err := h.scoring.ComputeTripScore(c.Request.Context(), &req)
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	sendSuccess(c, http.StatusCreated, a)
}

// ComputeDailyScore handles POST /scores/daily.
func (h *ScoringHandler) ComputeDailyScore(c *gin.Context) {
	var req dto.ComputeDailyScoreRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	a, err := h.scoring.ComputeDailyScore(c.Request.Context(), &req)
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	sendSuccess(c, http.StatusCreated, a)
}

// ComputeDailyScores handles POST /scores/daily/batch.
func (h *ScoringHandler) ComputeDailyScores(c *gin.Context) {
	var req dto.ComputeDailyScoresRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	resp, err := h.scoring.ComputeDailyScores(c.Request.Context(), &req)
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	sendSuccess(c, http.StatusOK, resp)
}

// GetScore handles GET /scores/:score_id.
func (h *ScoringHandler) GetScore(c *gin.Context) {
	id, err := utils.ParseUUID("score_id", c.Param("score_id"))
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	a, err := h.scoring.GetScore(c.Request.Context(), id)
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	sendSuccess(c, http.StatusOK, a)
}

// GetLatestScore handles GET /users/:user_id/scores/latest.
func (h *ScoringHandler) GetLatestScore(c *gin.Context) {
	userID, err := utils.ParseUUID("user_id", c.Param("user_id"))
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	a, err := h.scoring.GetLatestScore(c.Request.Context(), userID)
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	sendSuccess(c, http.StatusOK, a)
}

// GetScoreHistory handles GET /users/:user_id/scores/history?days=&page=&page_size=.
func (h *ScoringHandler) GetScoreHistory(c *gin.Context) {
	userID, err := utils.ParseUUID("user_id", c.Param("user_id"))
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	var req dto.ScoreHistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		sendError(c, h.logger, errors.ErrInvalidInput("malformed query: %v", err))
		return
	}
	resp, err := h.scoring.ScoreHistory(c.Request.Context(), userID, &req)
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	sendSuccess(c, http.StatusOK, resp)
}

// GetScoreTrend handles GET /users/:user_id/scores/trend?days=.
func (h *ScoringHandler) GetScoreTrend(c *gin.Context) {
	userID, err := utils.ParseUUID("user_id", c.Param("user_id"))
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	days := 0
	if raw := c.Query("days"); raw != "" {
		if days, err = strconv.Atoi(raw); err != nil {
			sendError(c, h.logger, errors.ErrInvalidInput("days must be an integer, got %q", raw))
			return
		}
	}
	trend, err := h.scoring.ScoreTrend(c.Request.Context(), userID, days)
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	sendSuccess(c, http.StatusOK, trend)
}

// ScoringMetrics handles GET /scores/metrics.
func (h *ScoringHandler) ScoringMetrics(c *gin.Context) {
	m, err := h.scoring.ScoringMetrics(c.Request.Context())
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	sendSuccess(c, http.StatusOK, m)
}

// BandStatistics handles GET /bands.
func (h *ScoringHandler) BandStatistics(c *gin.Context) {
	sendSuccess(c, http.StatusOK, h.scoring.BandStatistics(c.Request.Context(), h.table))
}

//Personal.AI order the ending
