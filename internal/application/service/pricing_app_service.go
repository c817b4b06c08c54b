package service

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/ubi/internal/application/dto"
	"github.com/turtacn/ubi/internal/domain/models"
	"github.com/turtacn/ubi/internal/domain/repository"
	domainService "github.com/turtacn/ubi/internal/domain/service"
	"github.com/turtacn/ubi/pkg/errors"
	"github.com/turtacn/ubi/pkg/logger"
	"github.com/turtacn/ubi/pkg/utils"
)

// listPageSize is the page size used when a bulk run walks every active policy.
const listPageSize = 500

// TableEventPublisher is notified after a pricing table swap.
type TableEventPublisher interface {
	PublishTableUpdate(ctx context.Context, cfg *models.PricingConfig) error
}

// PricingAppService exposes the pricing operations.
// PricingAppService 定价应用服务接口
type PricingAppService interface {
	CalculateQuote(ctx context.Context, req *dto.QuoteRequest) (*models.PricingQuote, error)
	ApplyAdjustment(ctx context.Context, req *dto.ApplyAdjustmentRequest) (*models.PremiumAdjustmentRecord, error)
	BulkAdjust(ctx context.Context, req *dto.BulkAdjustRequest) (*dto.BulkAdjustResponse, error)

	ValidatePricingRules(ctx context.Context) models.ValidationReport
	GetPricingTable(ctx context.Context) *dto.PricingTableResponse
	UpdatePricingTable(ctx context.Context, req *dto.UpdatePricingTableRequest) (*dto.PricingTableUpdateResponse, error)
	UpdatePricingRules(ctx context.Context, req *dto.UpdatePricingRulesRequest) (*dto.PricingTableUpdateResponse, error)
	ResetPricingTable(ctx context.Context) (*dto.PricingTableUpdateResponse, error)
	ExportPricingTable(ctx context.Context, w io.Writer) error
	ImportPricingTable(ctx context.Context, r io.Reader) (*dto.PricingTableUpdateResponse, error)

	GetPricingMetrics(ctx context.Context) (*models.PricingMetrics, error)
	SimulateScenarios(ctx context.Context, basePremium float64) ([]models.ScenarioQuote, error)
	ScenarioAnalysis(ctx context.Context, basePremium float64) (*models.ScenarioAnalysis, error)
	PremiumImpact(ctx context.Context, req *dto.PremiumImpactRequest) (*models.PremiumImpact, error)
	CurrentPremium(ctx context.Context, policyID uuid.UUID) (*dto.CurrentPremiumResponse, error)
	ListPolicyAdjustments(ctx context.Context, policyID uuid.UUID) ([]*models.PremiumAdjustmentRecord, error)
}

// PricingAppServiceDeps are the collaborators of the pricing application service.
// Scoring is only needed for rescore bulk runs; TableEvents is optional.
type PricingAppServiceDeps struct {
	Engine      domainService.PricingEngine
	Policies    repository.PolicyRepository
	Scores      repository.ScoreRepository
	Adjustments repository.AdjustmentRepository
	Scoring     ScoringAppService
	TableEvents TableEventPublisher
	Metrics     domainService.Metrics
	Logger      logger.Logger
	Now         func() time.Time
}

type pricingAppServiceImpl struct {
	engine      domainService.PricingEngine
	policies    repository.PolicyRepository
	scores      repository.ScoreRepository
	adjustments repository.AdjustmentRepository
	scoring     ScoringAppService
	tableEvents TableEventPublisher
	metrics     domainService.Metrics
	logger      logger.Logger
	now         func() time.Time
}

// NewPricingAppService creates a new PricingAppService.
func NewPricingAppService(deps PricingAppServiceDeps) PricingAppService {
	if deps.Metrics == nil {
		deps.Metrics = domainService.NewNoopMetrics()
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &pricingAppServiceImpl{
		engine:      deps.Engine,
		policies:    deps.Policies,
		scores:      deps.Scores,
		adjustments: deps.Adjustments,
		scoring:     deps.Scoring,
		tableEvents: deps.TableEvents,
		metrics:     deps.Metrics,
		logger:      deps.Logger.WithComponent("pricing_app_service"),
		now:         deps.Now,
	}
}

func (s *pricingAppServiceImpl) CalculateQuote(ctx context.Context, req *dto.QuoteRequest) (*models.PricingQuote, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	var policyID *uuid.UUID
	if req.PolicyID != "" {
		id, err := utils.ParseUUID("policy_id", req.PolicyID)
		if err != nil {
			return nil, err
		}
		policyID = &id
	}
	return s.engine.CalculateQuote(ctx, *req.Score, req.BasePremium, policyID)
}

func (s *pricingAppServiceImpl) ApplyAdjustment(ctx context.Context, req *dto.ApplyAdjustmentRequest) (*models.PremiumAdjustmentRecord, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	policyID, err := utils.ParseUUID("policy_id", req.PolicyID)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "pricing.apply_adjustment", trace.WithAttributes(attribute.String("policy_id", req.PolicyID)))
	defer span.End()

	policy, err := s.findPolicy(ctx, policyID)
	if err != nil {
		return nil, spanError(span, err)
	}

	if req.Score != nil {
		rec, err := s.engine.ApplyAdjustment(ctx, policy, *req.Score, nil)
		if err != nil {
			return nil, spanError(span, err)
		}
		return rec, nil
	}

	source, err := domainService.LatestScoreSource{Scores: s.scores}.ScoreForPolicy(ctx, policy)
	if err != nil {
		return nil, spanError(span, err)
	}
	if source == nil {
		return nil, spanError(span, errors.ErrNotFound("risk score for user", policy.UserID))
	}
	if source.IsFallback() {
		return nil, spanError(span, errors.ErrModelUnavailable(nil).WithMetadata("risk_score_id", source.ID.String()))
	}
	rec, err := s.engine.ApplyAdjustment(ctx, policy, source.ScoreValue, source)
	if err != nil {
		return nil, spanError(span, err)
	}
	return rec, nil
}

func (s *pricingAppServiceImpl) findPolicy(ctx context.Context, id uuid.UUID) (*models.Policy, error) {
	policy, err := s.policies.FindByID(ctx, id)
	if err != nil {
		return nil, repoErr("find policy", err)
	}
	if policy == nil {
		return nil, errors.ErrNotFound("policy", id)
	}
	return policy, nil
}

func (s *pricingAppServiceImpl) BulkAdjust(ctx context.Context, req *dto.BulkAdjustRequest) (*dto.BulkAdjustResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	var source domainService.ScoreSource = domainService.LatestScoreSource{Scores: s.scores}
	if req.Rescore {
		if s.scoring == nil {
			return nil, errors.New(errors.CodeInternal, "rescore requested but no scoring service is configured")
		}
		date := s.now().UTC().Truncate(24 * time.Hour)
		if req.RescoreDate != "" {
			d, err := utils.ParseDate("rescore_date", req.RescoreDate)
			if err != nil {
				return nil, err
			}
			date = d
		}
		source = &dailyRescoreSource{scoring: s.scoring, date: date}
	}

	ctx, span := tracer.Start(ctx, "pricing.bulk_adjust", trace.WithAttributes(
		attribute.Int("requested", len(req.PolicyIDs)),
		attribute.Bool("rescore", req.Rescore),
	))
	defer span.End()

	policies, missing, err := s.resolvePolicies(ctx, req.PolicyIDs)
	if err != nil {
		return nil, spanError(span, err)
	}

	result := s.engine.BulkAdjust(ctx, policies, source)
	for _, id := range missing {
		f := models.BulkFailure{PolicyID: id, Kind: string(errors.CodeNotFound), Message: errors.ErrNotFound("policy", id).Error()}
		result.Failures = append(result.Failures, f)
		result.Total++
		s.metrics.RecordBulkFailure(f.Kind)
	}

	span.SetAttributes(attribute.Int("total", result.Total), attribute.Int("successful", result.Successful))
	return dto.BulkResultToDTO(result), nil
}

// resolvePolicies returns the policies to adjust and the requested ids that do not exist.
// An empty request means every active policy.
func (s *pricingAppServiceImpl) resolvePolicies(ctx context.Context, raw []string) ([]*models.Policy, []uuid.UUID, error) {
	if len(raw) == 0 {
		var all []*models.Policy
		for offset := 0; ; offset += listPageSize {
			page, total, err := s.policies.ListActive(ctx, listPageSize, offset)
			if err != nil {
				return nil, nil, repoErr("list active policies", err)
			}
			all = append(all, page...)
			if len(page) < listPageSize || int64(len(all)) >= total {
				break
			}
		}
		return all, nil, nil
	}

	ids := make([]uuid.UUID, 0, len(raw))
	seen := make(map[uuid.UUID]bool, len(raw))
	for _, r := range raw {
		id, err := utils.ParseUUID("policy_ids", r)
		if err != nil {
			return nil, nil, err
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	found, err := s.policies.FindByIDs(ctx, ids)
	if err != nil {
		return nil, nil, repoErr("find policies", err)
	}
	byID := make(map[uuid.UUID]*models.Policy, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	policies := make([]*models.Policy, 0, len(ids))
	var missing []uuid.UUID
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			policies = append(policies, p)
		} else {
			missing = append(missing, id)
		}
	}
	return policies, missing, nil
}

// dailyRescoreSource scores each policy holder's day on demand.
type dailyRescoreSource struct {
	scoring ScoringAppService
	date    time.Time
}

func (d *dailyRescoreSource) ScoreForPolicy(ctx context.Context, policy *models.Policy) (*models.RiskAssessment, error) {
	return d.scoring.ComputeDailyScore(ctx, &dto.ComputeDailyScoreRequest{
		UserID: policy.UserID.String(),
		Date:   d.date.Format(utils.DateLayout),
	})
}

func (s *pricingAppServiceImpl) ValidatePricingRules(ctx context.Context) models.ValidationReport {
	return s.engine.Table().Validate()
}

func (s *pricingAppServiceImpl) GetPricingTable(ctx context.Context) *dto.PricingTableResponse {
	return dto.PricingTableToDTO(s.engine.Table().Snapshot())
}

func (s *pricingAppServiceImpl) UpdatePricingTable(ctx context.Context, req *dto.UpdatePricingTableRequest) (*dto.PricingTableUpdateResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	changes, err := utils.ParseBandMap(req.Adjustments)
	if err != nil {
		return nil, err
	}
	report, err := s.engine.Table().Update(changes)
	return s.tableUpdated(ctx, "update", report, err)
}

func (s *pricingAppServiceImpl) UpdatePricingRules(ctx context.Context, req *dto.UpdatePricingRulesRequest) (*dto.PricingTableUpdateResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	report, err := s.engine.Table().UpdateRules(models.PricingRules{
		MaxAdjustment: req.MaxAdjustment,
		MinAdjustment: req.MinAdjustment,
		CooldownDays:  req.CooldownDays,
		MinPremium:    req.MinPremium,
		MaxPremium:    req.MaxPremium,
	})
	return s.tableUpdated(ctx, "update_rules", report, err)
}

func (s *pricingAppServiceImpl) ResetPricingTable(ctx context.Context) (*dto.PricingTableUpdateResponse, error) {
	report, err := s.engine.Table().ResetToDefaults()
	return s.tableUpdated(ctx, "reset", report, err)
}

func (s *pricingAppServiceImpl) ExportPricingTable(ctx context.Context, w io.Writer) error {
	return s.engine.Table().Export(w)
}

func (s *pricingAppServiceImpl) ImportPricingTable(ctx context.Context, r io.Reader) (*dto.PricingTableUpdateResponse, error) {
	report, err := s.engine.Table().Import(r)
	return s.tableUpdated(ctx, "import", report, err)
}

// tableUpdated records the outcome of a table write and announces accepted swaps.
// A rejected candidate returns the VALIDATION_ERROR together with its report.
func (s *pricingAppServiceImpl) tableUpdated(ctx context.Context, op string, report models.ValidationReport, err error) (*dto.PricingTableUpdateResponse, error) {
	if err != nil {
		s.metrics.RecordPricingTableUpdate("rejected")
		s.logger.Warn(ctx, "Pricing table change rejected",
			logger.String("operation", op),
			logger.Any("errors", report.Errors),
			logger.Err(err),
		)
		if errors.IsValidation(err) {
			return &dto.PricingTableUpdateResponse{Applied: false, Report: report}, err
		}
		return nil, err
	}

	snap := s.engine.Table().Snapshot()
	s.metrics.RecordPricingTableUpdate("applied")
	s.logger.Info(ctx, "Pricing table updated",
		logger.String("operation", op),
		logger.String("version", snap.Version),
		logger.Any("warnings", report.Warnings),
	)
	if s.tableEvents != nil {
		if perr := s.tableEvents.PublishTableUpdate(ctx, snap); perr != nil {
			s.logger.Warn(ctx, "Failed to publish pricing table update", logger.String("version", snap.Version), logger.Err(perr))
		}
	}
	return &dto.PricingTableUpdateResponse{Applied: true, Report: report, Table: dto.PricingTableToDTO(snap)}, nil
}

func (s *pricingAppServiceImpl) GetPricingMetrics(ctx context.Context) (*models.PricingMetrics, error) {
	agg, err := s.adjustments.Aggregate(ctx)
	if err != nil {
		return nil, repoErr("aggregate adjustments", err)
	}
	out := &models.PricingMetrics{
		RulesVersion:           s.engine.Table().Version(),
		AdjustmentDistribution: []models.BandAdjustmentStats{},
	}
	if agg == nil {
		return out, nil
	}
	out.TotalAdjustments = agg.TotalAdjustments
	out.AverageDeltaPct = agg.AvgDeltaPct
	out.RevenueImpact = models.RevenueImpact{
		TotalChange:    agg.TotalChange,
		TotalIncreases: agg.TotalIncreases,
		TotalDecreases: agg.TotalDecreases,
	}
	out.LastAdjustmentAt = agg.LastAdjustmentAt
	if agg.ByBand != nil {
		out.AdjustmentDistribution = agg.ByBand
	}
	return out, nil
}

func (s *pricingAppServiceImpl) SimulateScenarios(ctx context.Context, basePremium float64) ([]models.ScenarioQuote, error) {
	return s.engine.SimulateScenarios(ctx, basePremium)
}

func (s *pricingAppServiceImpl) ScenarioAnalysis(ctx context.Context, basePremium float64) (*models.ScenarioAnalysis, error) {
	if basePremium <= 0 {
		return nil, errors.ErrInvalidInput("base premium must be positive, got %v", basePremium)
	}
	a := s.engine.Table().ScenarioAnalysis(basePremium)
	return &a, nil
}

func (s *pricingAppServiceImpl) PremiumImpact(ctx context.Context, req *dto.PremiumImpactRequest) (*models.PremiumImpact, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	dist, err := utils.ParseBandMap(req.Distribution)
	if err != nil {
		return nil, err
	}
	impact, err := s.engine.Table().PremiumImpact(dist)
	if err != nil {
		return nil, err
	}
	return &impact, nil
}

func (s *pricingAppServiceImpl) CurrentPremium(ctx context.Context, policyID uuid.UUID) (*dto.CurrentPremiumResponse, error) {
	policy, err := s.findPolicy(ctx, policyID)
	if err != nil {
		return nil, err
	}
	records, err := s.adjustments.FindByPolicy(ctx, policyID)
	if err != nil {
		return nil, repoErr("find policy adjustments", err)
	}
	resp := &dto.CurrentPremiumResponse{
		PolicyID:       policyID.String(),
		BasePremium:    policy.BasePremium,
		CurrentPremium: policy.BasePremium,
	}
	if len(records) > 0 {
		latest := records[0]
		resp.CurrentPremium = latest.NewPremium
		resp.LastAdjustedAt = &latest.CreatedAt
	}
	return resp, nil
}

func (s *pricingAppServiceImpl) ListPolicyAdjustments(ctx context.Context, policyID uuid.UUID) ([]*models.PremiumAdjustmentRecord, error) {
	if _, err := s.findPolicy(ctx, policyID); err != nil {
		return nil, err
	}
	records, err := s.adjustments.FindByPolicy(ctx, policyID)
	if err != nil {
		return nil, repoErr("find policy adjustments", err)
	}
	if records == nil {
		records = []*models.PremiumAdjustmentRecord{}
	}
	return records, nil
}

//Personal.AI order the ending
