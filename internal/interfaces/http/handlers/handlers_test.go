package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ubi/internal/application/dto"
	"github.com/turtacn/ubi/internal/domain/models"
	domainService "github.com/turtacn/ubi/internal/domain/service"
	"github.com/turtacn/ubi/internal/interfaces/http/handlers"
	"github.com/turtacn/ubi/pkg/constants"
	"github.com/turtacn/ubi/pkg/errors"
	"github.com/turtacn/ubi/pkg/logger"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *dto.ErrorDTO   `json:"error"`
}

func init() {
	gin.SetMode(gin.TestMode)
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	var env envelope
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") && rr.Body.Len() > 0 {
		_ = json.Unmarshal(rr.Body.Bytes(), &env)
	}
	return rr, env
}

func newPricingRouter(svc *MockPricingAppService) *gin.Engine {
	h := handlers.NewPricingHandler(svc, logger.NewNoopLogger())
	router := gin.New()
	router.POST("/quote", h.CalculateQuote)
	router.POST("/adjustments", h.ApplyAdjustment)
	router.POST("/adjustments/bulk", h.BulkAdjust)
	router.PUT("/table", h.UpdatePricingTable)
	router.POST("/table/reset", h.ResetPricingTable)
	router.GET("/table/export", h.ExportPricingTable)
	router.POST("/table/import", h.ImportPricingTable)
	router.GET("/scenarios", h.SimulateScenarios)
	router.GET("/metrics", h.GetPricingMetrics)
	router.GET("/policies/:policy_id/premium", h.CurrentPremium)
	router.GET("/policies/:policy_id/adjustments", h.ListPolicyAdjustments)
	return router
}

func TestPricingHandler_CalculateQuote(t *testing.T) {
	t.Run("Successfully quote", func(t *testing.T) {
		svc := new(MockPricingAppService)
		router := newPricingRouter(svc)

		svc.On("CalculateQuote", mock.Anything, mock.MatchedBy(func(r *dto.QuoteRequest) bool {
			return r.Score != nil && *r.Score == 92 && r.BasePremium == 1200
		})).Return(&models.PricingQuote{Score: 92, Band: constants.BandA, BasePremium: 1200, DeltaPct: -0.15, NewPremium: 1020}, nil).Once()

		rr, env := doJSON(t, router, http.MethodPost, "/quote", map[string]interface{}{"score": 92, "base_premium": 1200})

		require.Equal(t, http.StatusOK, rr.Code)
		assert.True(t, env.Success)
		var quote models.PricingQuote
		require.NoError(t, json.Unmarshal(env.Data, &quote))
		assert.Equal(t, constants.BandA, quote.Band)
		assert.Equal(t, 1020.0, quote.NewPremium)
		svc.AssertExpectations(t)
	})

	t.Run("Malformed body", func(t *testing.T) {
		svc := new(MockPricingAppService)
		router := newPricingRouter(svc)

		rr, env := doJSON(t, router, http.MethodPost, "/quote", `{"score":`)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, string(errors.CodeInvalidInput), env.Error.Code)
		svc.AssertNotCalled(t, "CalculateQuote", mock.Anything, mock.Anything)
	})

	t.Run("Out of domain score", func(t *testing.T) {
		svc := new(MockPricingAppService)
		router := newPricingRouter(svc)
		svc.On("CalculateQuote", mock.Anything, mock.Anything).
			Return(nil, errors.ErrInvalidInput("score must be within [0, 100], got 120")).Once()

		rr, env := doJSON(t, router, http.MethodPost, "/quote", map[string]interface{}{"score": 120, "base_premium": 1200})

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.False(t, env.Success)
		assert.Equal(t, string(errors.CodeInvalidInput), env.Error.Code)
	})
}

func TestPricingHandler_ApplyAdjustment(t *testing.T) {
	policyID := uuid.New()

	t.Run("Created", func(t *testing.T) {
		svc := new(MockPricingAppService)
		router := newPricingRouter(svc)
		svc.On("ApplyAdjustment", mock.Anything, &dto.ApplyAdjustmentRequest{PolicyID: policyID.String()}).
			Return(&models.PremiumAdjustmentRecord{ID: uuid.New(), PolicyID: policyID, Band: constants.BandD, DeltaPct: 0.10, NewPremium: 1100}, nil).Once()

		rr, env := doJSON(t, router, http.MethodPost, "/adjustments", map[string]string{"policy_id": policyID.String()})

		require.Equal(t, http.StatusCreated, rr.Code)
		var record models.PremiumAdjustmentRecord
		require.NoError(t, json.Unmarshal(env.Data, &record))
		assert.Equal(t, policyID, record.PolicyID)
		assert.Equal(t, 0.10, record.DeltaPct)
	})

	t.Run("Unknown policy", func(t *testing.T) {
		svc := new(MockPricingAppService)
		router := newPricingRouter(svc)
		svc.On("ApplyAdjustment", mock.Anything, mock.Anything).Return(nil, errors.ErrNotFound("policy", policyID)).Once()

		rr, env := doJSON(t, router, http.MethodPost, "/adjustments", map[string]string{"policy_id": policyID.String()})

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, string(errors.CodeNotFound), env.Error.Code)
	})

	t.Run("Model unavailable", func(t *testing.T) {
		svc := new(MockPricingAppService)
		router := newPricingRouter(svc)
		svc.On("ApplyAdjustment", mock.Anything, mock.Anything).Return(nil, errors.ErrModelUnavailable(context.DeadlineExceeded)).Once()

		rr, env := doJSON(t, router, http.MethodPost, "/adjustments", map[string]string{"policy_id": policyID.String()})

		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.Equal(t, string(errors.CodeModelUnavailable), env.Error.Code)
	})
}

func TestPricingHandler_BulkAdjust(t *testing.T) {
	svc := new(MockPricingAppService)
	router := newPricingRouter(svc)
	failed := uuid.New()
	svc.On("BulkAdjust", mock.Anything, mock.Anything).Return(&dto.BulkAdjustResponse{
		Total:      3,
		Successful: 2,
		Failed:     1,
		Failures:   []models.BulkFailure{{PolicyID: failed, Kind: string(errors.CodeModelUnavailable), Message: "timeout"}},
	}, nil).Once()

	rr, env := doJSON(t, router, http.MethodPost, "/adjustments/bulk", map[string]interface{}{})

	require.Equal(t, http.StatusOK, rr.Code)
	var resp dto.BulkAdjustResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, 2, resp.Successful)
	require.Len(t, resp.Failures, 1)
	assert.Equal(t, failed, resp.Failures[0].PolicyID)
}

func TestPricingHandler_TableUpdates(t *testing.T) {
	t.Run("Rejected update carries the report", func(t *testing.T) {
		svc := new(MockPricingAppService)
		router := newPricingRouter(svc)
		report := models.ValidationReport{IsValid: false, Errors: []string{"band B adjustment -0.20 is below band A adjustment -0.15"}}
		svc.On("UpdatePricingTable", mock.Anything, mock.Anything).
			Return(&dto.PricingTableUpdateResponse{Applied: false, Report: report}, errors.ErrValidation(report.Errors)).Once()

		rr, env := doJSON(t, router, http.MethodPut, "/table", map[string]interface{}{"adjustments": map[string]float64{"B": -0.20}})

		require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		assert.Equal(t, string(errors.CodeValidation), env.Error.Code)
		var resp dto.PricingTableUpdateResponse
		require.NoError(t, json.Unmarshal(env.Data, &resp))
		assert.False(t, resp.Applied)
		assert.Equal(t, report.Errors, resp.Report.Errors)
	})

	t.Run("Reset applied", func(t *testing.T) {
		svc := new(MockPricingAppService)
		router := newPricingRouter(svc)
		svc.On("ResetPricingTable", mock.Anything).Return(&dto.PricingTableUpdateResponse{
			Applied: true,
			Report:  models.ValidationReport{IsValid: true},
			Table:   &dto.PricingTableResponse{Version: "v1.0.1"},
		}, nil).Once()

		rr, env := doJSON(t, router, http.MethodPost, "/table/reset", nil)

		require.Equal(t, http.StatusOK, rr.Code)
		var resp dto.PricingTableUpdateResponse
		require.NoError(t, json.Unmarshal(env.Data, &resp))
		assert.True(t, resp.Applied)
		assert.Equal(t, "v1.0.1", resp.Table.Version)
	})

	t.Run("Export writes the raw document", func(t *testing.T) {
		svc := new(MockPricingAppService)
		router := newPricingRouter(svc)
		svc.On("ExportPricingTable", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			_, _ = io.WriteString(args.Get(1).(io.Writer), `{"version":"v1.0.0"}`)
		}).Return(nil).Once()

		rr, _ := doJSON(t, router, http.MethodGet, "/table/export", nil)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"version":"v1.0.0"}`, rr.Body.String())
		assert.Contains(t, rr.Header().Get("Content-Disposition"), "pricing_table.json")
	})

	t.Run("Import hands the body to the service", func(t *testing.T) {
		svc := new(MockPricingAppService)
		router := newPricingRouter(svc)
		svc.On("ImportPricingTable", mock.Anything, mock.MatchedBy(func(r io.Reader) bool {
			raw, _ := io.ReadAll(r)
			return strings.Contains(string(raw), "v2.0.0")
		})).Return(&dto.PricingTableUpdateResponse{Applied: true, Table: &dto.PricingTableResponse{Version: "v2.0.0"}}, nil).Once()

		rr, _ := doJSON(t, router, http.MethodPost, "/table/import", `{"version":"v2.0.0"}`)

		assert.Equal(t, http.StatusOK, rr.Code)
		svc.AssertExpectations(t)
	})
}

func TestPricingHandler_Scenarios(t *testing.T) {
	svc := new(MockPricingAppService)
	router := newPricingRouter(svc)

	rr, env := doJSON(t, router, http.MethodGet, "/scenarios", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, string(errors.CodeInvalidInput), env.Error.Code)

	rr, _ = doJSON(t, router, http.MethodGet, "/scenarios?base_premium=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	svc.On("SimulateScenarios", mock.Anything, 1000.0).Return([]models.ScenarioQuote{
		{Name: "Excellent", ScoreRange: "90-100", Score: 95},
		{Name: "Poor", ScoreRange: "0-29", Score: 15},
	}, nil).Once()
	rr, env = doJSON(t, router, http.MethodGet, "/scenarios?base_premium=1000", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var scenarios []models.ScenarioQuote
	require.NoError(t, json.Unmarshal(env.Data, &scenarios))
	assert.Len(t, scenarios, 2)
}

func TestPricingHandler_PolicyRoutes(t *testing.T) {
	svc := new(MockPricingAppService)
	router := newPricingRouter(svc)
	policyID := uuid.New()

	rr, env := doJSON(t, router, http.MethodGet, "/policies/not-a-uuid/premium", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, string(errors.CodeInvalidInput), env.Error.Code)

	svc.On("CurrentPremium", mock.Anything, policyID).Return(&dto.CurrentPremiumResponse{
		PolicyID:       policyID.String(),
		BasePremium:    1000,
		CurrentPremium: 1100,
	}, nil).Once()
	rr, env = doJSON(t, router, http.MethodGet, "/policies/"+policyID.String()+"/premium", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var premium dto.CurrentPremiumResponse
	require.NoError(t, json.Unmarshal(env.Data, &premium))
	assert.Equal(t, 1100.0, premium.CurrentPremium)

	svc.On("ListPolicyAdjustments", mock.Anything, policyID).Return(nil, errors.ErrPersistence("find policy adjustments", stderrors.New("connection reset"))).Once()
	rr, env = doJSON(t, router, http.MethodGet, "/policies/"+policyID.String()+"/adjustments", nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, string(errors.CodePersistence), env.Error.Code)
}

func newScoringRouter(svc *MockScoringAppService, table *domainService.PricingTable) *gin.Engine {
	h := handlers.NewScoringHandler(svc, table, logger.NewNoopLogger())
	router := gin.New()
	router.POST("/scores/trip", h.ComputeTripScore)
	router.POST("/scores/daily", h.ComputeDailyScore)
	router.POST("/scores/daily/batch", h.ComputeDailyScores)
	router.GET("/scores/metrics", h.ScoringMetrics)
	router.GET("/scores/:score_id", h.GetScore)
	router.GET("/users/:user_id/scores/latest", h.GetLatestScore)
	router.GET("/users/:user_id/scores/history", h.GetScoreHistory)
	router.GET("/users/:user_id/scores/trend", h.GetScoreTrend)
	router.GET("/bands", h.BandStatistics)
	return router
}

func TestScoringHandler(t *testing.T) {
	table := domainService.NewDefaultPricingTable()

	t.Run("Trip score created", func(t *testing.T) {
		svc := new(MockScoringAppService)
		router := newScoringRouter(svc, table)
		tripID := uuid.New()
		svc.On("ComputeTripScore", mock.Anything, &dto.ComputeTripScoreRequest{TripID: tripID.String()}).
			Return(&models.RiskAssessment{ID: uuid.New(), TripID: &tripID, ScoreType: constants.ScoreTypeTrip, ScoreValue: 88, Band: constants.BandA}, nil).Once()

		rr, env := doJSON(t, router, http.MethodPost, "/scores/trip", map[string]string{"trip_id": tripID.String()})

		require.Equal(t, http.StatusCreated, rr.Code)
		var a models.RiskAssessment
		require.NoError(t, json.Unmarshal(env.Data, &a))
		assert.Equal(t, constants.BandA, a.Band)
		assert.Equal(t, &tripID, a.TripID)
	})

	t.Run("Daily batch", func(t *testing.T) {
		svc := new(MockScoringAppService)
		router := newScoringRouter(svc, table)
		svc.On("ComputeDailyScores", mock.Anything, mock.Anything).Return(&dto.DailyScoresResponse{Total: 2, Successful: 2, Fallbacks: 1}, nil).Once()

		rr, env := doJSON(t, router, http.MethodPost, "/scores/daily/batch", map[string]interface{}{
			"user_ids": []string{uuid.NewString(), uuid.NewString()},
			"date":     "2024-06-01",
		})

		require.Equal(t, http.StatusOK, rr.Code)
		var resp dto.DailyScoresResponse
		require.NoError(t, json.Unmarshal(env.Data, &resp))
		assert.Equal(t, 1, resp.Fallbacks)
	})

	t.Run("Unknown score", func(t *testing.T) {
		svc := new(MockScoringAppService)
		router := newScoringRouter(svc, table)
		id := uuid.New()
		svc.On("GetScore", mock.Anything, id).Return(nil, errors.ErrNotFound("risk score", id)).Once()

		rr, env := doJSON(t, router, http.MethodGet, "/scores/"+id.String(), nil)

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, string(errors.CodeNotFound), env.Error.Code)
	})

	t.Run("Latest score rejects bad user id", func(t *testing.T) {
		svc := new(MockScoringAppService)
		router := newScoringRouter(svc, table)

		rr, _ := doJSON(t, router, http.MethodGet, "/users/42/scores/latest", nil)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		svc.AssertNotCalled(t, "GetLatestScore", mock.Anything, mock.Anything)
	})

	t.Run("Band statistics use the live table", func(t *testing.T) {
		svc := new(MockScoringAppService)
		router := newScoringRouter(svc, table)
		svc.On("BandStatistics", mock.Anything, table).Return([]models.BandInfo{
			{Band: constants.BandA, MinScore: 85, MaxScore: 100, DeltaPct: -0.15},
		}).Once()

		rr, env := doJSON(t, router, http.MethodGet, "/bands", nil)

		require.Equal(t, http.StatusOK, rr.Code)
		var bands []models.BandInfo
		require.NoError(t, json.Unmarshal(env.Data, &bands))
		require.Len(t, bands, 1)
		assert.Equal(t, -0.15, bands[0].DeltaPct)
		svc.AssertExpectations(t)
	})
}

func TestScoringHandler_HistoryTrendAndMetrics(t *testing.T) {
	table := domainService.NewDefaultPricingTable()
	user := uuid.New()

	t.Run("History binds the query", func(t *testing.T) {
		svc := new(MockScoringAppService)
		router := newScoringRouter(svc, table)
		svc.On("ScoreHistory", mock.Anything, user, &dto.ScoreHistoryRequest{Days: 14, Page: 2, PageSize: 10}).Return(&dto.ScoreHistoryResponse{
			UserID:     user.String(),
			Days:       14,
			Scores:     []*models.RiskAssessment{{ID: uuid.New(), ScoreValue: 81, Band: constants.BandB}},
			Pagination: dto.NewPagination(2, 10, 11),
		}, nil).Once()

		rr, env := doJSON(t, router, http.MethodGet, "/users/"+user.String()+"/scores/history?days=14&page=2&page_size=10", nil)

		require.Equal(t, http.StatusOK, rr.Code)
		var resp dto.ScoreHistoryResponse
		require.NoError(t, json.Unmarshal(env.Data, &resp))
		require.Len(t, resp.Scores, 1)
		assert.Equal(t, 2, resp.Pagination.TotalPages)
		svc.AssertExpectations(t)
	})

	t.Run("History rejects a non-numeric page", func(t *testing.T) {
		svc := new(MockScoringAppService)
		router := newScoringRouter(svc, table)

		rr, env := doJSON(t, router, http.MethodGet, "/users/"+user.String()+"/scores/history?page=x", nil)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, string(errors.CodeInvalidInput), env.Error.Code)
		svc.AssertNotCalled(t, "ScoreHistory", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Trend defaults days", func(t *testing.T) {
		svc := new(MockScoringAppService)
		router := newScoringRouter(svc, table)
		svc.On("ScoreTrend", mock.Anything, user, 0).Return(&models.ScoreTrend{
			UserID: user, Days: 30, Direction: constants.TrendImproving, Change: 12,
			Trend: []models.ScoreTrendPoint{{Score: 60, Band: constants.BandC}, {Score: 72, Band: constants.BandB}},
		}, nil).Once()

		rr, env := doJSON(t, router, http.MethodGet, "/users/"+user.String()+"/scores/trend", nil)

		require.Equal(t, http.StatusOK, rr.Code)
		var trend models.ScoreTrend
		require.NoError(t, json.Unmarshal(env.Data, &trend))
		assert.Equal(t, constants.TrendImproving, trend.Direction)
		assert.Len(t, trend.Trend, 2)
	})

	t.Run("Trend rejects bad days", func(t *testing.T) {
		svc := new(MockScoringAppService)
		router := newScoringRouter(svc, table)

		rr, _ := doJSON(t, router, http.MethodGet, "/users/"+user.String()+"/scores/trend?days=week", nil)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		svc.AssertNotCalled(t, "ScoreTrend", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Metrics route is not a score id", func(t *testing.T) {
		svc := new(MockScoringAppService)
		router := newScoringRouter(svc, table)
		svc.On("ScoringMetrics", mock.Anything).Return(&models.ScoringMetrics{
			ModelVersion: "gbm-1", WindowDays: 7, TotalScores: 3, AverageScore: 70,
			ScoreDistribution: map[constants.Band]int64{constants.BandB: 3},
		}, nil).Once()

		rr, env := doJSON(t, router, http.MethodGet, "/scores/metrics", nil)

		require.Equal(t, http.StatusOK, rr.Code)
		var m models.ScoringMetrics
		require.NoError(t, json.Unmarshal(env.Data, &m))
		assert.Equal(t, "gbm-1", m.ModelVersion)
		assert.EqualValues(t, 3, m.ScoreDistribution[constants.BandB])
		svc.AssertNotCalled(t, "GetScore", mock.Anything, mock.Anything)
	})
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthHandler(t *testing.T) {
	ok := pingerFunc(func(context.Context) error { return nil })
	down := pingerFunc(func(context.Context) error { return stderrors.New("connection refused") })
	table := domainService.NewDefaultPricingTable()

	newRouter := func(deps map[string]handlers.Pinger) *gin.Engine {
		h := handlers.NewHealthHandler(table, logger.NewNoopLogger(), deps)
		router := gin.New()
		router.GET("/live", h.LivenessCheck)
		router.GET("/ready", h.ReadinessCheck)
		return router
	}

	t.Run("Ready", func(t *testing.T) {
		rr, _ := doJSON(t, newRouter(map[string]handlers.Pinger{"database": ok, "redis": nil}), http.MethodGet, "/ready", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "ready", body["status"])
		assert.Equal(t, constants.InitialPricingVersion, body["pricing_version"])
		assert.Equal(t, map[string]interface{}{"database": "ok"}, body["checks"])
	})

	t.Run("Dependency down", func(t *testing.T) {
		rr, _ := doJSON(t, newRouter(map[string]handlers.Pinger{"database": ok, "redis": down}), http.MethodGet, "/ready", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.Contains(t, rr.Body.String(), "connection refused")
	})

	t.Run("Live ignores dependencies", func(t *testing.T) {
		rr, _ := doJSON(t, newRouter(map[string]handlers.Pinger{"database": down}), http.MethodGet, "/live", nil)
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(handlers.RecoveryMiddleware(logger.NewNoopLogger()))
	router.GET("/boom", func(c *gin.Context) { panic("boom") })

	rr, env := doJSON(t, router, http.MethodGet, "/boom", nil)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(errors.CodeInternal), env.Error.Code)
}
