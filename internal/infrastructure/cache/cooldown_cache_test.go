package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ubi/internal/domain/models"
	repomocks "github.com/turtacn/ubi/internal/domain/repository/mocks"
	servicemocks "github.com/turtacn/ubi/internal/domain/service/mocks"
	"github.com/turtacn/ubi/internal/infrastructure/cache"
	"github.com/turtacn/ubi/pkg/constants"
	"github.com/turtacn/ubi/pkg/errors"
	"github.com/turtacn/ubi/pkg/logger"
)

func newCooldownCache() (*cache.CooldownCache, *repomocks.MockAdjustmentRepository, *servicemocks.MockMetrics) {
	store := new(repomocks.MockAdjustmentRepository)
	metrics := new(servicemocks.MockMetrics)
	metrics.On("RecordCacheAccess", "cooldown", mock.Anything).Maybe()
	return cache.NewCooldownCache(store, time.Minute, metrics, logger.NewNoopLogger()), store, metrics
}

func TestCooldownCache_CachesAbsence(t *testing.T) {
	c, store, metrics := newCooldownCache()
	ctx := context.Background()
	policy := uuid.New()
	store.On("LastEffectiveAdjustment", ctx, policy).Return(nil, nil).Once()

	for i := 0; i < 3; i++ {
		last, err := c.LastEffectiveAdjustment(ctx, policy)
		require.NoError(t, err)
		assert.Nil(t, last)
	}
	store.AssertNumberOfCalls(t, "LastEffectiveAdjustment", 1)
	metrics.AssertNumberOfCalls(t, "RecordCacheAccess", 3)
}

func TestCooldownCache_EffectiveAppendOpensWindow(t *testing.T) {
	c, store, _ := newCooldownCache()
	ctx := context.Background()
	policy := uuid.New()
	store.On("LastEffectiveAdjustment", ctx, policy).Return(nil, nil).Once()

	_, err := c.LastEffectiveAdjustment(ctx, policy)
	require.NoError(t, err)

	created := time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)
	record := &models.PremiumAdjustmentRecord{PolicyID: policy, Band: constants.BandA, DeltaPct: -0.15, CreatedAt: created}
	store.On("Append", ctx, record).Return(nil).Once()
	require.NoError(t, c.Append(ctx, record))

	last, err := c.LastEffectiveAdjustment(ctx, policy)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, created, last.CreatedAt)
	assert.Equal(t, -0.15, last.DeltaPct)
	assert.NotSame(t, record, last)
	store.AssertNumberOfCalls(t, "LastEffectiveAdjustment", 1)
}

func TestCooldownCache_HeldAppendKeepsWindow(t *testing.T) {
	c, store, _ := newCooldownCache()
	ctx := context.Background()
	policy := uuid.New()
	opened := &models.PremiumAdjustmentRecord{PolicyID: policy, DeltaPct: 0.2, NewPremium: 1200, CreatedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
	store.On("LastEffectiveAdjustment", ctx, policy).Return(opened, nil).Once()
	_, _ = c.LastEffectiveAdjustment(ctx, policy)

	held := &models.PremiumAdjustmentRecord{PolicyID: policy, DeltaPct: 0.2, NewPremium: 1200, CooldownHeld: true, CreatedAt: time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)}
	store.On("Append", ctx, held).Return(nil)
	require.NoError(t, c.Append(ctx, held))

	last, err := c.LastEffectiveAdjustment(ctx, policy)
	require.NoError(t, err)
	assert.Equal(t, opened.CreatedAt, last.CreatedAt)
	assert.False(t, last.CooldownHeld)
}

func TestCooldownCache_ZeroDeltaKeepsEntry(t *testing.T) {
	c, store, _ := newCooldownCache()
	ctx := context.Background()
	policy := uuid.New()
	store.On("LastEffectiveAdjustment", ctx, policy).Return(nil, nil).Once()
	_, _ = c.LastEffectiveAdjustment(ctx, policy)

	record := &models.PremiumAdjustmentRecord{PolicyID: policy, Band: constants.BandC, CreatedAt: time.Now().UTC()}
	store.On("Append", ctx, record).Return(nil)
	require.NoError(t, c.Append(ctx, record))

	last, err := c.LastEffectiveAdjustment(ctx, policy)
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestCooldownCache_ErrorsAreNotCached(t *testing.T) {
	c, store, _ := newCooldownCache()
	ctx := context.Background()
	policy := uuid.New()
	store.On("LastEffectiveAdjustment", ctx, policy).Return(nil, errors.ErrPersistence("read adjustment history", assert.AnError)).Twice()

	_, err := c.LastEffectiveAdjustment(ctx, policy)
	assert.True(t, errors.IsPersistence(err))
	_, err = c.LastEffectiveAdjustment(ctx, policy)
	assert.True(t, errors.IsPersistence(err))
	store.AssertExpectations(t)
}

func TestCooldownCache_FailedAppendDropsEntry(t *testing.T) {
	c, store, _ := newCooldownCache()
	ctx := context.Background()
	policy := uuid.New()
	earlier := &models.PremiumAdjustmentRecord{PolicyID: policy, DeltaPct: -0.05, CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	store.On("LastEffectiveAdjustment", ctx, policy).Return(earlier, nil).Twice()
	_, _ = c.LastEffectiveAdjustment(ctx, policy)

	record := &models.PremiumAdjustmentRecord{PolicyID: policy, DeltaPct: 0.1, CreatedAt: time.Now().UTC()}
	store.On("Append", ctx, record).Return(errors.ErrPersistence("append premium adjustment", assert.AnError))
	assert.Error(t, c.Append(ctx, record))

	last, err := c.LastEffectiveAdjustment(ctx, policy)
	require.NoError(t, err)
	assert.Equal(t, earlier.CreatedAt, last.CreatedAt)
	store.AssertNumberOfCalls(t, "LastEffectiveAdjustment", 2)
}

func TestCooldownCache_DelegatesReads(t *testing.T) {
	c, store, _ := newCooldownCache()
	ctx := context.Background()
	agg := &models.AdjustmentAggregate{TotalAdjustments: 4}
	store.On("Aggregate", ctx).Return(agg, nil)

	got, err := c.Aggregate(ctx)
	require.NoError(t, err)
	assert.Same(t, agg, got)
}
