package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/turtacn/ubi/internal/domain/models"
)

// MockTripRepository is a mock implementation of repository.TripRepository
type MockTripRepository struct {
	mock.Mock
}

func (m *MockTripRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Trip, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Trip), args.Error(1)
}

func (m *MockTripRepository) FindByUserBetween(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]*models.Trip, error) {
	args := m.Called(ctx, userID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Trip), args.Error(1)
}

func (m *MockTripRepository) Save(ctx context.Context, trip *models.Trip) error {
	return m.Called(ctx, trip).Error(0)
}

// MockContextRepository is a mock implementation of repository.ContextRepository
type MockContextRepository struct {
	mock.Mock
}

func (m *MockContextRepository) FindBetween(ctx context.Context, from, to time.Time) ([]*models.ContextSample, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ContextSample), args.Error(1)
}

func (m *MockContextRepository) Save(ctx context.Context, sample *models.ContextSample) error {
	return m.Called(ctx, sample).Error(0)
}

// MockPolicyRepository is a mock implementation of repository.PolicyRepository
type MockPolicyRepository struct {
	mock.Mock
}

func (m *MockPolicyRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Policy, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Policy), args.Error(1)
}

func (m *MockPolicyRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Policy, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Policy), args.Error(1)
}

func (m *MockPolicyRepository) ListActive(ctx context.Context, limit, offset int) ([]*models.Policy, int64, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*models.Policy), args.Get(1).(int64), args.Error(2)
}

func (m *MockPolicyRepository) Save(ctx context.Context, policy *models.Policy) error {
	return m.Called(ctx, policy).Error(0)
}

// MockScoreRepository is a mock implementation of repository.ScoreRepository
type MockScoreRepository struct {
	mock.Mock
}

func (m *MockScoreRepository) Save(ctx context.Context, assessment *models.RiskAssessment) error {
	return m.Called(ctx, assessment).Error(0)
}

func (m *MockScoreRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.RiskAssessment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RiskAssessment), args.Error(1)
}

func (m *MockScoreRepository) FindLatestByUser(ctx context.Context, userID uuid.UUID) (*models.RiskAssessment, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RiskAssessment), args.Error(1)
}

func (m *MockScoreRepository) FindByUserSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]*models.RiskAssessment, error) {
	args := m.Called(ctx, userID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.RiskAssessment), args.Error(1)
}

func (m *MockScoreRepository) Stats(ctx context.Context, since time.Time) (*models.ScoreStats, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ScoreStats), args.Error(1)
}

// MockAdjustmentRepository mocks both repository.AdjustmentRepository and
// repository.AdjustmentHistoryRepository.
type MockAdjustmentRepository struct {
	mock.Mock
}

func (m *MockAdjustmentRepository) Append(ctx context.Context, record *models.PremiumAdjustmentRecord) error {
	return m.Called(ctx, record).Error(0)
}

func (m *MockAdjustmentRepository) FindByPolicy(ctx context.Context, policyID uuid.UUID) ([]*models.PremiumAdjustmentRecord, error) {
	args := m.Called(ctx, policyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.PremiumAdjustmentRecord), args.Error(1)
}

func (m *MockAdjustmentRepository) Aggregate(ctx context.Context) (*models.AdjustmentAggregate, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AdjustmentAggregate), args.Error(1)
}

func (m *MockAdjustmentRepository) LastEffectiveAdjustment(ctx context.Context, policyID uuid.UUID) (*models.PremiumAdjustmentRecord, error) {
	args := m.Called(ctx, policyID)
	if fn, ok := args.Get(0).(func(context.Context, uuid.UUID) *models.PremiumAdjustmentRecord); ok {
		return fn(ctx, policyID), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PremiumAdjustmentRecord), args.Error(1)
}
