package handlers_test

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/turtacn/ubi/internal/application/dto"
	"github.com/turtacn/ubi/internal/domain/models"
	domainService "github.com/turtacn/ubi/internal/domain/service"
)

// MockPricingAppService is a mock for the PricingAppService
type MockPricingAppService struct {
	mock.Mock
}

func (m *MockPricingAppService) CalculateQuote(ctx context.Context, req *dto.QuoteRequest) (*models.PricingQuote, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PricingQuote), args.Error(1)
}

func (m *MockPricingAppService) ApplyAdjustment(ctx context.Context, req *dto.ApplyAdjustmentRequest) (*models.PremiumAdjustmentRecord, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PremiumAdjustmentRecord), args.Error(1)
}

func (m *MockPricingAppService) BulkAdjust(ctx context.Context, req *dto.BulkAdjustRequest) (*dto.BulkAdjustResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.BulkAdjustResponse), args.Error(1)
}

func (m *MockPricingAppService) ValidatePricingRules(ctx context.Context) models.ValidationReport {
	return m.Called(ctx).Get(0).(models.ValidationReport)
}

func (m *MockPricingAppService) GetPricingTable(ctx context.Context) *dto.PricingTableResponse {
	return m.Called(ctx).Get(0).(*dto.PricingTableResponse)
}

func (m *MockPricingAppService) UpdatePricingTable(ctx context.Context, req *dto.UpdatePricingTableRequest) (*dto.PricingTableUpdateResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.PricingTableUpdateResponse), args.Error(1)
}

func (m *MockPricingAppService) UpdatePricingRules(ctx context.Context, req *dto.UpdatePricingRulesRequest) (*dto.PricingTableUpdateResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.PricingTableUpdateResponse), args.Error(1)
}

func (m *MockPricingAppService) ResetPricingTable(ctx context.Context) (*dto.PricingTableUpdateResponse, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.PricingTableUpdateResponse), args.Error(1)
}

func (m *MockPricingAppService) ExportPricingTable(ctx context.Context, w io.Writer) error {
	return m.Called(ctx, w).Error(0)
}

func (m *MockPricingAppService) ImportPricingTable(ctx context.Context, r io.Reader) (*dto.PricingTableUpdateResponse, error) {
	args := m.Called(ctx, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.PricingTableUpdateResponse), args.Error(1)
}

func (m *MockPricingAppService) GetPricingMetrics(ctx context.Context) (*models.PricingMetrics, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PricingMetrics), args.Error(1)
}

func (m *MockPricingAppService) SimulateScenarios(ctx context.Context, basePremium float64) ([]models.ScenarioQuote, error) {
	args := m.Called(ctx, basePremium)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ScenarioQuote), args.Error(1)
}

func (m *MockPricingAppService) ScenarioAnalysis(ctx context.Context, basePremium float64) (*models.ScenarioAnalysis, error) {
	args := m.Called(ctx, basePremium)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ScenarioAnalysis), args.Error(1)
}

func (m *MockPricingAppService) PremiumImpact(ctx context.Context, req *dto.PremiumImpactRequest) (*models.PremiumImpact, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PremiumImpact), args.Error(1)
}

func (m *MockPricingAppService) CurrentPremium(ctx context.Context, policyID uuid.UUID) (*dto.CurrentPremiumResponse, error) {
	args := m.Called(ctx, policyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.CurrentPremiumResponse), args.Error(1)
}

func (m *MockPricingAppService) ListPolicyAdjustments(ctx context.Context, policyID uuid.UUID) ([]*models.PremiumAdjustmentRecord, error) {
	args := m.Called(ctx, policyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.PremiumAdjustmentRecord), args.Error(1)
}

// MockScoringAppService is a mock for the ScoringAppService
type MockScoringAppService struct {
	mock.Mock
}

func (m *MockScoringAppService) ComputeTripScore(ctx context.Context, req *dto.ComputeTripScoreRequest) (*models.RiskAssessment, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RiskAssessment), args.Error(1)
}

func (m *MockScoringAppService) ComputeDailyScore(ctx context.Context, req *dto.ComputeDailyScoreRequest) (*models.RiskAssessment, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RiskAssessment), args.Error(1)
}

func (m *MockScoringAppService) ComputeDailyScores(ctx context.Context, req *dto.ComputeDailyScoresRequest) (*dto.DailyScoresResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.DailyScoresResponse), args.Error(1)
}

func (m *MockScoringAppService) GetScore(ctx context.Context, id uuid.UUID) (*models.RiskAssessment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RiskAssessment), args.Error(1)
}

func (m *MockScoringAppService) GetLatestScore(ctx context.Context, userID uuid.UUID) (*models.RiskAssessment, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RiskAssessment), args.Error(1)
}

func (m *MockScoringAppService) BandStatistics(ctx context.Context, table *domainService.PricingTable) []models.BandInfo {
	return m.Called(ctx, table).Get(0).([]models.BandInfo)
}

func (m *MockScoringAppService) ScoreHistory(ctx context.Context, userID uuid.UUID, req *dto.ScoreHistoryRequest) (*dto.ScoreHistoryResponse, error) {
	args := m.Called(ctx, userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.ScoreHistoryResponse), args.Error(1)
}

func (m *MockScoringAppService) ScoreTrend(ctx context.Context, userID uuid.UUID, days int) (*models.ScoreTrend, error) {
	args := m.Called(ctx, userID, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ScoreTrend), args.Error(1)
}

func (m *MockScoringAppService) ScoringMetrics(ctx context.Context) (*models.ScoringMetrics, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ScoringMetrics), args.Error(1)
}
