package service_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ubi/internal/application/dto"
	appService "github.com/turtacn/ubi/internal/application/service"
	"github.com/turtacn/ubi/internal/domain/models"
	repomocks "github.com/turtacn/ubi/internal/domain/repository/mocks"
	domainService "github.com/turtacn/ubi/internal/domain/service"
	"github.com/turtacn/ubi/pkg/constants"
	"github.com/turtacn/ubi/pkg/errors"
	"github.com/turtacn/ubi/pkg/logger"
)

type mockTableEvents struct {
	mock.Mock
}

func (m *mockTableEvents) PublishTableUpdate(ctx context.Context, cfg *models.PricingConfig) error {
	return m.Called(ctx, cfg).Error(0)
}

var pricingNow = time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)

type pricingFixture struct {
	svc      appService.PricingAppService
	table    *domainService.PricingTable
	policies *repomocks.MockPolicyRepository
	scores   *repomocks.MockScoreRepository
	adj      *repomocks.MockAdjustmentRepository
	events   *mockTableEvents
	metrics  *recordingMetrics
}

func newPricingFixture() *pricingFixture {
	f := &pricingFixture{
		table:    domainService.NewDefaultPricingTable(),
		policies: new(repomocks.MockPolicyRepository),
		scores:   new(repomocks.MockScoreRepository),
		adj:      new(repomocks.MockAdjustmentRepository),
		events:   new(mockTableEvents),
		metrics:  &recordingMetrics{},
	}
	now := func() time.Time { return pricingNow }
	engine := domainService.NewPricingEngine(domainService.DefaultPricingEngineConfig(), domainService.PricingEngineDeps{
		Table:       f.table,
		Adjustments: f.adj,
		History:     f.adj,
		Metrics:     f.metrics,
		Logger:      logger.NewNoopLogger(),
		Now:         now,
	})
	f.svc = appService.NewPricingAppService(appService.PricingAppServiceDeps{
		Engine:      engine,
		Policies:    f.policies,
		Scores:      f.scores,
		Adjustments: f.adj,
		TableEvents: f.events,
		Metrics:     f.metrics,
		Logger:      logger.NewNoopLogger(),
		Now:         now,
	})
	return f
}

func newPolicy(base float64) *models.Policy {
	return &models.Policy{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		BasePremium: base,
		Status:      constants.PolicyStatusActive,
		StartDate:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
	}
}

func score(v float64) *float64 { return &v }

func TestPricingApp_CalculateQuote(t *testing.T) {
	f := newPricingFixture()

	q, err := f.svc.CalculateQuote(context.Background(), &dto.QuoteRequest{Score: score(75), BasePremium: 1000})
	require.NoError(t, err)
	assert.Equal(t, 950.0, q.NewPremium)
	assert.Equal(t, "v1.0.0", q.TableVersion)

	_, err = f.svc.CalculateQuote(context.Background(), &dto.QuoteRequest{Score: score(120), BasePremium: 1000})
	assert.True(t, errors.IsInvalidInput(err))
}

func TestPricingApp_ApplyAdjustmentFromLatestScore(t *testing.T) {
	f := newPricingFixture()
	p := newPolicy(1000)
	latest := &models.RiskAssessment{ID: uuid.New(), UserID: p.UserID, ScoreValue: 30, Band: constants.BandE, ModelVersion: "gbm-3"}

	f.policies.On("FindByID", mock.Anything, p.ID).Return(p, nil)
	f.scores.On("FindLatestByUser", mock.Anything, p.UserID).Return(latest, nil)
	f.adj.On("LastEffectiveAdjustment", mock.Anything, p.ID).Return(nil, nil)
	f.adj.On("Append", mock.Anything, mock.Anything).Return(nil)

	rec, err := f.svc.ApplyAdjustment(context.Background(), &dto.ApplyAdjustmentRequest{PolicyID: p.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, 1200.0, rec.NewPremium)
	assert.Equal(t, "gbm-3", rec.ScoreVersion)
	assert.Equal(t, latest.ID, *rec.RiskScoreID)
	assert.Equal(t, 1, f.metrics.applied)
}

func TestPricingApp_ApplyAdjustmentManualScore(t *testing.T) {
	f := newPricingFixture()
	p := newPolicy(1000)

	f.policies.On("FindByID", mock.Anything, p.ID).Return(p, nil)
	f.adj.On("LastEffectiveAdjustment", mock.Anything, p.ID).Return(nil, nil)
	f.adj.On("Append", mock.Anything, mock.Anything).Return(nil)

	rec, err := f.svc.ApplyAdjustment(context.Background(), &dto.ApplyAdjustmentRequest{PolicyID: p.ID.String(), Score: score(90)})
	require.NoError(t, err)
	assert.Equal(t, constants.ScoreVersionManual, rec.ScoreVersion)
	assert.Nil(t, rec.RiskScoreID)
	f.scores.AssertNotCalled(t, "FindLatestByUser", mock.Anything, mock.Anything)
}

func TestPricingApp_ApplyAdjustmentRejectsFallbackScore(t *testing.T) {
	f := newPricingFixture()
	p := newPolicy(1000)
	f.policies.On("FindByID", mock.Anything, p.ID).Return(p, nil)
	f.scores.On("FindLatestByUser", mock.Anything, p.UserID).Return(&models.RiskAssessment{
		ID: uuid.New(), ScoreValue: 50, ModelVersion: constants.FallbackModelVersion,
	}, nil)

	_, err := f.svc.ApplyAdjustment(context.Background(), &dto.ApplyAdjustmentRequest{PolicyID: p.ID.String()})
	assert.True(t, errors.IsModelUnavailable(err))
	f.adj.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestPricingApp_ApplyAdjustmentUnknownPolicy(t *testing.T) {
	f := newPricingFixture()
	id := uuid.New()
	f.policies.On("FindByID", mock.Anything, id).Return(nil, errors.ErrNotFound("policy", id))

	_, err := f.svc.ApplyAdjustment(context.Background(), &dto.ApplyAdjustmentRequest{PolicyID: id.String(), Score: score(50)})
	assert.True(t, errors.IsNotFound(err))
}

func TestPricingApp_BulkAdjustReportsMissingPolicies(t *testing.T) {
	f := newPricingFixture()
	p1, p2 := newPolicy(1000), newPolicy(500)
	missing := uuid.New()

	f.policies.On("FindByIDs", mock.Anything, []uuid.UUID{p1.ID, missing, p2.ID}).Return([]*models.Policy{p2, p1}, nil)
	f.scores.On("FindLatestByUser", mock.Anything, p1.UserID).Return(&models.RiskAssessment{ID: uuid.New(), ScoreValue: 88, ModelVersion: "m"}, nil)
	f.scores.On("FindLatestByUser", mock.Anything, p2.UserID).Return(nil, errors.ErrNotFound("risk score for user", p2.UserID))
	f.adj.On("LastEffectiveAdjustment", mock.Anything, mock.Anything).Return(nil, nil)
	f.adj.On("Append", mock.Anything, mock.Anything).Return(nil)

	resp, err := f.svc.BulkAdjust(context.Background(), &dto.BulkAdjustRequest{
		PolicyIDs: []string{p1.ID.String(), missing.String(), p2.ID.String(), p1.ID.String()},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 1, resp.Successful)
	assert.Equal(t, 2, resp.Failed)

	kinds := map[uuid.UUID]string{}
	for _, fl := range resp.Failures {
		kinds[fl.PolicyID] = fl.Kind
	}
	assert.Equal(t, string(errors.CodeNotFound), kinds[missing])
	assert.Equal(t, string(errors.CodeNotFound), kinds[p2.ID])
	assert.ElementsMatch(t, []string{"NOT_FOUND", "NOT_FOUND"}, f.metrics.bulkFailures)
}

func TestPricingApp_BulkAdjustAllActivePages(t *testing.T) {
	f := newPricingFixture()
	p := newPolicy(1000)
	f.policies.On("ListActive", mock.Anything, 500, 0).Return([]*models.Policy{p}, int64(1), nil)
	f.scores.On("FindLatestByUser", mock.Anything, p.UserID).Return(&models.RiskAssessment{ID: uuid.New(), ScoreValue: 60, ModelVersion: "m"}, nil)
	f.adj.On("Append", mock.Anything, mock.Anything).Return(nil)

	resp, err := f.svc.BulkAdjust(context.Background(), &dto.BulkAdjustRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, 1, resp.Successful)
}

func TestPricingApp_UpdatePricingTable(t *testing.T) {
	f := newPricingFixture()
	f.events.On("PublishTableUpdate", mock.Anything, mock.Anything).Return(nil)

	resp, err := f.svc.UpdatePricingTable(context.Background(), &dto.UpdatePricingTableRequest{
		Adjustments: map[string]float64{"b": -0.08},
	})
	require.NoError(t, err)
	assert.True(t, resp.Applied)
	assert.Equal(t, "v1.0.1", resp.Table.Version)
	assert.Equal(t, -0.08, resp.Table.Adjustments["B"])
	f.events.AssertNumberOfCalls(t, "PublishTableUpdate", 1)

	resp, err = f.svc.UpdatePricingTable(context.Background(), &dto.UpdatePricingTableRequest{
		Adjustments: map[string]float64{"A": 0.30},
	})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	require.NotNil(t, resp)
	assert.False(t, resp.Applied)
	assert.NotEmpty(t, resp.Report.Errors)
	assert.Equal(t, "v1.0.1", f.table.Version())
	f.events.AssertNumberOfCalls(t, "PublishTableUpdate", 1)

	assert.Equal(t, []string{"applied", "rejected"}, f.metrics.tableUpdates)
}

func TestPricingApp_UpdatePricingTableUnknownBand(t *testing.T) {
	f := newPricingFixture()
	_, err := f.svc.UpdatePricingTable(context.Background(), &dto.UpdatePricingTableRequest{
		Adjustments: map[string]float64{"F": 0.1},
	})
	assert.True(t, errors.IsInvalidInput(err))
}

func TestPricingApp_PublishFailureDoesNotFailUpdate(t *testing.T) {
	f := newPricingFixture()
	f.events.On("PublishTableUpdate", mock.Anything, mock.Anything).Return(assert.AnError)

	resp, err := f.svc.ResetPricingTable(context.Background())
	require.NoError(t, err)
	assert.True(t, resp.Applied)
}

func TestPricingApp_ExportImport(t *testing.T) {
	f := newPricingFixture()
	f.events.On("PublishTableUpdate", mock.Anything, mock.Anything).Return(nil)

	var buf bytes.Buffer
	require.NoError(t, f.svc.ExportPricingTable(context.Background(), &buf))

	resp, err := f.svc.ImportPricingTable(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, "v1.0.0", resp.Table.Version)

	_, err = f.svc.ImportPricingTable(context.Background(), bytes.NewBufferString("{"))
	assert.True(t, errors.IsInvalidInput(err))
}

func TestPricingApp_GetPricingMetrics(t *testing.T) {
	f := newPricingFixture()
	last := pricingNow.Add(-time.Hour)
	f.adj.On("Aggregate", mock.Anything).Return(&models.AdjustmentAggregate{
		TotalAdjustments: 3,
		AvgDeltaPct:      0.05,
		TotalChange:      150,
		TotalIncreases:   200,
		TotalDecreases:   -50,
		LastAdjustmentAt: &last,
		ByBand: []models.BandAdjustmentStats{
			{Band: constants.BandB, Count: 1, AvgDeltaPct: -0.05, TotalChange: -50},
			{Band: constants.BandE, Count: 2, AvgDeltaPct: 0.10, TotalChange: 200},
		},
	}, nil)

	m, err := f.svc.GetPricingMetrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v1.0.0", m.RulesVersion)
	assert.Equal(t, int64(3), m.TotalAdjustments)
	assert.Equal(t, 150.0, m.RevenueImpact.TotalChange)
	assert.Equal(t, -50.0, m.RevenueImpact.TotalDecreases)
	assert.Len(t, m.AdjustmentDistribution, 2)
	assert.Equal(t, &last, m.LastAdjustmentAt)
}

func TestPricingApp_CurrentPremium(t *testing.T) {
	f := newPricingFixture()
	p := newPolicy(1000)
	f.policies.On("FindByID", mock.Anything, p.ID).Return(p, nil)

	t.Run("no adjustments", func(t *testing.T) {
		f.adj.On("FindByPolicy", mock.Anything, p.ID).Return(nil, nil).Once()
		resp, err := f.svc.CurrentPremium(context.Background(), p.ID)
		require.NoError(t, err)
		assert.Equal(t, 1000.0, resp.CurrentPremium)
		assert.Nil(t, resp.LastAdjustedAt)
	})

	t.Run("latest record wins", func(t *testing.T) {
		f.adj.On("FindByPolicy", mock.Anything, p.ID).Return([]*models.PremiumAdjustmentRecord{
			{NewPremium: 1100, CreatedAt: pricingNow},
			{NewPremium: 950, CreatedAt: pricingNow.Add(-40 * 24 * time.Hour)},
		}, nil).Once()
		resp, err := f.svc.CurrentPremium(context.Background(), p.ID)
		require.NoError(t, err)
		assert.Equal(t, 1100.0, resp.CurrentPremium)
		assert.Equal(t, pricingNow, *resp.LastAdjustedAt)
	})
}

func TestPricingApp_CurrentPremiumHeldDuringCooldown(t *testing.T) {
	f := newPricingFixture()
	p := newPolicy(1000)
	f.policies.On("FindByID", mock.Anything, p.ID).Return(p, nil)

	var history []*models.PremiumAdjustmentRecord
	f.adj.On("Append", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		rec := args.Get(1).(*models.PremiumAdjustmentRecord)
		history = append([]*models.PremiumAdjustmentRecord{rec}, history...)
	}).Return(nil)
	f.adj.On("LastEffectiveAdjustment", mock.Anything, p.ID).Return(func(context.Context, uuid.UUID) *models.PremiumAdjustmentRecord {
		for _, r := range history {
			if r.IsEffective() {
				return r
			}
		}
		return nil
	}, nil)

	_, err := f.svc.ApplyAdjustment(context.Background(), &dto.ApplyAdjustmentRequest{PolicyID: p.ID.String(), Score: score(20)})
	require.NoError(t, err)
	_, err = f.svc.ApplyAdjustment(context.Background(), &dto.ApplyAdjustmentRequest{PolicyID: p.ID.String(), Score: score(95)})
	require.NoError(t, err)

	f.adj.On("FindByPolicy", mock.Anything, p.ID).Return(history, nil)
	resp, err := f.svc.CurrentPremium(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1200.0, resp.CurrentPremium)
	require.Len(t, history, 2)
	assert.True(t, history[0].CooldownHeld)
}

func TestPricingApp_ScenarioAndImpact(t *testing.T) {
	f := newPricingFixture()

	a, err := f.svc.ScenarioAnalysis(context.Background(), 1000)
	require.NoError(t, err)
	assert.InDelta(t, 850.0, a.MinPremium, 1e-9)
	assert.InDelta(t, 1250.0, a.MaxPremium, 1e-9)

	_, err = f.svc.ScenarioAnalysis(context.Background(), 0)
	assert.True(t, errors.IsInvalidInput(err))

	impact, err := f.svc.PremiumImpact(context.Background(), &dto.PremiumImpactRequest{
		Distribution: map[string]int{"A": 1, "E": 1},
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.05, impact.WeightedAdjustment, 1e-9)
	assert.Equal(t, 2, impact.TotalPolicies)
}
