package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/turtacn/ubi/internal/domain/models"
)

// MockScoreSource is a mock implementation of service.ScoreSource
type MockScoreSource struct {
	mock.Mock
}

func (m *MockScoreSource) ScoreForPolicy(ctx context.Context, policy *models.Policy) (*models.RiskAssessment, error) {
	args := m.Called(ctx, policy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RiskAssessment), args.Error(1)
}

// MockAdjustmentPublisher is a mock implementation of service.AdjustmentPublisher
type MockAdjustmentPublisher struct {
	mock.Mock
}

func (m *MockAdjustmentPublisher) PublishAdjustment(ctx context.Context, record *models.PremiumAdjustmentRecord) error {
	return m.Called(ctx, record).Error(0)
}
