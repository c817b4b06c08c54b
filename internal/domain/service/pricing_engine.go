package service

import (
	"context"
	"fmt"
	"math"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/ubi/internal/domain/models"
	"github.com/turtacn/ubi/internal/domain/repository"
	"github.com/turtacn/ubi/pkg/constants"
	"github.com/turtacn/ubi/pkg/errors"
	"github.com/turtacn/ubi/pkg/logger"
)

// ScoreSource supplies the assessment a policy is priced from during a bulk run.
// ScoreSource 为批量调整提供保单持有人的风险评分。
type ScoreSource interface {
	ScoreForPolicy(ctx context.Context, policy *models.Policy) (*models.RiskAssessment, error)
}

// AdjustmentPublisher is notified after an adjustment record has been appended.
// Publication failures never undo or fail the adjustment.
type AdjustmentPublisher interface {
	PublishAdjustment(ctx context.Context, record *models.PremiumAdjustmentRecord) error
}

// PricingEngine turns scores into guardrailed premium quotes and adjustment records.
// PricingEngine 定价引擎接口。
type PricingEngine interface {
	// CalculateQuote prices score against basePremium. policyID enables the cooldown check.
	CalculateQuote(ctx context.Context, score, basePremium float64, policyID *uuid.UUID) (*models.PricingQuote, error)

	// ApplyAdjustment quotes the policy and appends a PremiumAdjustmentRecord. It is not idempotent.
	// source, when non-nil, is recorded as the score the adjustment was derived from.
	ApplyAdjustment(ctx context.Context, policy *models.Policy, score float64, source *models.RiskAssessment) (*models.PremiumAdjustmentRecord, error)

	// BulkAdjust adjusts every policy independently. One policy's failure is reported
	// in the result and never affects another policy.
	BulkAdjust(ctx context.Context, policies []*models.Policy, scores ScoreSource) *models.BulkAdjustResult

	// SimulateScenarios quotes the midpoint of each named score range.
	SimulateScenarios(ctx context.Context, basePremium float64) ([]models.ScenarioQuote, error)

	// Table returns the pricing table the engine reads.
	Table() *PricingTable
}

// PricingEngineConfig configures a PricingEngine.
type PricingEngineConfig struct {
	Thresholds       BandThresholds
	MaxMonthlyChange float64
	BulkWorkers      int
}

// DefaultPricingEngineConfig returns the built-in configuration.
func DefaultPricingEngineConfig() PricingEngineConfig {
	return PricingEngineConfig{
		Thresholds:       DefaultBandThresholds(),
		MaxMonthlyChange: constants.DefaultMaxMonthlyChange,
		BulkWorkers:      constants.DefaultBulkWorkers,
	}
}

// PricingEngineDeps are the collaborators of a PricingEngine. History and Publisher are optional.
type PricingEngineDeps struct {
	Table       *PricingTable
	Adjustments repository.AdjustmentRepository
	History     repository.AdjustmentHistoryRepository
	Publisher   AdjustmentPublisher
	Metrics     Metrics
	Logger      logger.Logger
	Now         func() time.Time
}

type pricingEngine struct {
	cfg         PricingEngineConfig
	table       *PricingTable
	adjustments repository.AdjustmentRepository
	history     repository.AdjustmentHistoryRepository
	publisher   AdjustmentPublisher
	metrics     Metrics
	logger      logger.Logger
	now         func() time.Time
}

// NewPricingEngine creates a PricingEngine.
func NewPricingEngine(cfg PricingEngineConfig, deps PricingEngineDeps) PricingEngine {
	if cfg.BulkWorkers < 1 {
		cfg.BulkWorkers = 1
	}
	if deps.Metrics == nil {
		deps.Metrics = NewNoopMetrics()
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNoopLogger()
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &pricingEngine{
		cfg:         cfg,
		table:       deps.Table,
		adjustments: deps.Adjustments,
		history:     deps.History,
		publisher:   deps.Publisher,
		metrics:     deps.Metrics,
		logger:      deps.Logger.WithComponent("pricing_engine"),
		now:         deps.Now,
	}
}

func (e *pricingEngine) Table() *PricingTable {
	return e.table
}

func (e *pricingEngine) CalculateQuote(ctx context.Context, score, basePremium float64, policyID *uuid.UUID) (*models.PricingQuote, error) {
	if math.IsNaN(score) || score < constants.MinScore || score > constants.MaxScore {
		return nil, errors.ErrInvalidInput("score must be between 0 and 100, got %v", score)
	}
	if math.IsNaN(basePremium) || math.IsInf(basePremium, 0) || basePremium <= 0 {
		return nil, errors.ErrInvalidInput("base premium must be positive, got %v", basePremium)
	}

	// One snapshot for the whole quote so a concurrent table swap cannot mix versions.
	snap := e.table.Snapshot()
	band := e.cfg.Thresholds.Band(score)
	raw := snap.Adjustments[band]
	delta := e.guardrail(raw, snap.Rules)

	// Inside the window the rate of the last effective adjustment is held, not reset.
	var cooldownUntil *time.Time
	if policyID != nil && e.history != nil && snap.Rules.CooldownDays > 0 {
		last, err := e.history.LastEffectiveAdjustment(ctx, *policyID)
		if err != nil {
			return nil, wrapRepoErr("read adjustment history", err)
		}
		if last != nil {
			until := last.CreatedAt.Add(time.Duration(snap.Rules.CooldownDays) * 24 * time.Hour)
			if e.now().Before(until) {
				delta = last.DeltaPct
				cooldownUntil = &until
			}
		}
	}

	base := decimal.NewFromFloat(basePremium)
	deltaAmount := base.Mul(decimal.NewFromFloat(delta)).Round(2)
	newPremium := base.Add(deltaAmount)
	newPremium = decimal.Max(decimal.NewFromFloat(snap.Rules.MinPremium), decimal.Min(decimal.NewFromFloat(snap.Rules.MaxPremium), newPremium)).Round(2)

	quote := &models.PricingQuote{
		PolicyID:        policyID,
		Score:           score,
		Band:            band,
		BasePremium:     basePremium,
		RawDeltaPct:     raw,
		DeltaPct:        delta,
		DeltaAmount:     deltaAmount.InexactFloat64(),
		NewPremium:      newPremium.InexactFloat64(),
		CooldownApplied: cooldownUntil != nil,
		Rationale:       Rationale(score, band, delta, cooldownUntil),
		TableVersion:    snap.Version,
	}
	e.metrics.RecordQuote(string(band), quote.CooldownApplied)
	return quote, nil
}

// guardrail clamps raw to ±max_monthly_change and to the table's adjustment bounds.
func (e *pricingEngine) guardrail(raw float64, rules models.PricingRules) float64 {
	d := clamp(raw, -e.cfg.MaxMonthlyChange, e.cfg.MaxMonthlyChange)
	d = clamp(d, rules.MinAdjustment, rules.MaxAdjustment)
	return clamp(d, -constants.DeltaPctHardLimit, constants.DeltaPctHardLimit)
}

// Rationale builds the three-part pricing explanation. It is deterministic in its inputs.
func Rationale(score float64, band constants.Band, delta float64, cooldownUntil *time.Time) string {
	parts := []string{fmt.Sprintf("Score %.1f (Band %s)", score, band)}
	switch {
	case cooldownUntil != nil:
		parts = append(parts, fmt.Sprintf("Premium held at %+.1f%% - cooldown active until %s", delta*100, cooldownUntil.UTC().Format("2006-01-02")))
	case delta > 0:
		parts = append(parts, fmt.Sprintf("Premium increase of %.1f%% due to higher risk profile", delta*100))
	case delta < 0:
		parts = append(parts, fmt.Sprintf("Premium discount of %.1f%% for safe driving behavior", -delta*100))
	default:
		parts = append(parts, "No premium adjustment - neutral risk profile")
	}
	parts = append(parts, BandDescription(band))
	return strings.Join(parts, ": ")
}

func (e *pricingEngine) ApplyAdjustment(ctx context.Context, policy *models.Policy, score float64, source *models.RiskAssessment) (*models.PremiumAdjustmentRecord, error) {
	if policy == nil {
		return nil, errors.ErrInvalidInput("policy is required")
	}
	if !policy.IsActive() {
		return nil, errors.ErrInvalidInput("policy %s is %s, not active", policy.ID, policy.Status)
	}

	quote, err := e.CalculateQuote(ctx, score, policy.BasePremium, &policy.ID)
	if err != nil {
		return nil, err
	}

	record := &models.PremiumAdjustmentRecord{
		ID:           uuid.New(),
		PolicyID:     policy.ID,
		PeriodStart:  policy.StartDate,
		PeriodEnd:    policy.EndDate,
		Band:         quote.Band,
		DeltaPct:     quote.DeltaPct,
		DeltaAmount:  quote.DeltaAmount,
		NewPremium:   quote.NewPremium,
		Reason:       quote.Rationale,
		ScoreVersion: constants.ScoreVersionManual,
		CooldownHeld: quote.CooldownApplied,
		CreatedAt:    e.now(),
	}
	if source != nil {
		record.ScoreVersion = source.ModelVersion
		id := source.ID
		record.RiskScoreID = &id
	}

	if err := e.adjustments.Append(ctx, record); err != nil {
		return nil, wrapRepoErr("append premium adjustment", err)
	}
	e.metrics.RecordAdjustmentApplied(string(record.Band))
	e.logger.Info(ctx, "Premium adjustment applied",
		logger.String("policy_id", policy.ID.String()),
		logger.String("band", string(record.Band)),
		logger.Float64("delta_pct", record.DeltaPct),
		logger.Float64("new_premium", record.NewPremium),
		logger.Bool("cooldown_applied", quote.CooldownApplied),
	)

	if e.publisher != nil {
		if err := e.publisher.PublishAdjustment(ctx, record); err != nil {
			e.logger.Warn(ctx, "Failed to publish premium adjustment event",
				logger.String("adjustment_id", record.ID.String()),
				logger.Err(err),
			)
		}
	}
	return record, nil
}

func (e *pricingEngine) BulkAdjust(ctx context.Context, policies []*models.Policy, scores ScoreSource) *models.BulkAdjustResult {
	records := make([]*models.PremiumAdjustmentRecord, len(policies))
	failures := make([]*models.BulkFailure, len(policies))

	var g errgroup.Group
	g.SetLimit(e.cfg.BulkWorkers)
	for i, p := range policies {
		i, p := i, p
		g.Go(func() error {
			rec, err := e.adjustOne(ctx, p, scores)
			if err != nil {
				f := bulkFailure(p, err)
				failures[i] = &f
				e.metrics.RecordBulkFailure(f.Kind)
				e.logger.Warn(ctx, "Skipping policy in bulk adjustment",
					logger.String("policy_id", f.PolicyID.String()),
					logger.String("kind", f.Kind),
					logger.String("reason", f.Message),
				)
				return nil
			}
			records[i] = rec
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	result := &models.BulkAdjustResult{
		Total:    len(policies),
		Records:  make([]*models.PremiumAdjustmentRecord, 0, len(policies)),
		Failures: make([]models.BulkFailure, 0),
	}
	for i := range policies {
		switch {
		case records[i] != nil:
			result.Records = append(result.Records, records[i])
		case failures[i] != nil:
			result.Failures = append(result.Failures, *failures[i])
		}
	}
	result.Successful = len(result.Records)

	e.logger.Info(ctx, "Bulk premium adjustment finished",
		logger.Int("total", result.Total),
		logger.Int("successful", result.Successful),
		logger.Int("failed", len(result.Failures)),
	)
	return result
}

// adjustOne isolates a single policy: any panic becomes an INTERNAL failure for that policy only.
func (e *pricingEngine) adjustOne(ctx context.Context, policy *models.Policy, scores ScoreSource) (rec *models.PremiumAdjustmentRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error(ctx, "Panic while adjusting policy", fmt.Errorf("%v", r), logger.String("stack", string(debug.Stack())))
			rec, err = nil, errors.New(errors.CodeInternal, fmt.Sprintf("panic: %v", r))
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "bulk adjustment cancelled")
	}
	if policy == nil {
		return nil, errors.ErrInvalidInput("nil policy")
	}
	if scores == nil {
		return nil, errors.New(errors.CodeInternal, "no score source configured")
	}

	assessment, err := scores.ScoreForPolicy(ctx, policy)
	if err != nil {
		return nil, err
	}
	if assessment == nil {
		return nil, errors.ErrNotFound("risk score for user", policy.UserID)
	}
	if assessment.IsFallback() {
		// Degraded scores are not priced.
		return nil, errors.ErrModelUnavailable(fmt.Errorf("latest score %s was produced in fallback mode", assessment.ID))
	}
	return e.ApplyAdjustment(ctx, policy, assessment.ScoreValue, assessment)
}

func bulkFailure(p *models.Policy, err error) models.BulkFailure {
	f := models.BulkFailure{Kind: string(errors.CodeOf(err)), Message: err.Error()}
	if p != nil {
		f.PolicyID = p.ID
	}
	return f
}

// scenarioRanges are the named score ranges used for simulation.
var scenarioRanges = []struct {
	name     string
	min, max float64
}{
	{"Excellent", 90, 100},
	{"Good", 70, 89},
	{"Average", 50, 69},
	{"Below Average", 30, 49},
	{"Poor", 0, 29},
}

func (e *pricingEngine) SimulateScenarios(ctx context.Context, basePremium float64) ([]models.ScenarioQuote, error) {
	out := make([]models.ScenarioQuote, 0, len(scenarioRanges))
	for _, r := range scenarioRanges {
		score := (r.min + r.max) / 2
		q, err := e.CalculateQuote(ctx, score, basePremium, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, models.ScenarioQuote{
			Name:       r.name,
			ScoreRange: fmt.Sprintf("%.0f-%.0f", r.min, r.max),
			Score:      score,
			Quote:      q,
		})
	}
	return out, nil
}

// LatestScoreSource prices each policy from its holder's most recently stored assessment.
type LatestScoreSource struct {
	Scores repository.ScoreRepository
}

// ScoreForPolicy implements ScoreSource.
func (s LatestScoreSource) ScoreForPolicy(ctx context.Context, policy *models.Policy) (*models.RiskAssessment, error) {
	a, err := s.Scores.FindLatestByUser(ctx, policy.UserID)
	if err != nil {
		return nil, wrapRepoErr("find latest score", err)
	}
	return a, nil
}
