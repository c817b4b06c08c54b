package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/turtacn/ubi/internal/domain/models"
)

// MockRiskModel is a mock implementation of service.RiskModel
type MockRiskModel struct {
	mock.Mock
}

func (m *MockRiskModel) PredictProbability(ctx context.Context, features models.FeatureVector) (float64, error) {
	args := m.Called(ctx, features)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockRiskModel) PredictSeverity(ctx context.Context, features models.FeatureVector) (float64, error) {
	args := m.Called(ctx, features)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockRiskModel) Version() string {
	args := m.Called()
	return args.String(0)
}
