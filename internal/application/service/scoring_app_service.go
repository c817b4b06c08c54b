// Package service provides application-level services that orchestrate domain services and repositories
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/ubi/internal/application/dto"
	"github.com/turtacn/ubi/internal/domain/models"
	"github.com/turtacn/ubi/internal/domain/repository"
	domainService "github.com/turtacn/ubi/internal/domain/service"
	"github.com/turtacn/ubi/pkg/constants"
	"github.com/turtacn/ubi/pkg/errors"
	"github.com/turtacn/ubi/pkg/logger"
	"github.com/turtacn/ubi/pkg/utils"
)

var tracer = otel.Tracer("github.com/turtacn/ubi/internal/application/service")

// ScoringAppService exposes the scoring operations.
// ScoringAppService 评分应用服务接口
type ScoringAppService interface {
	// ComputeTripScore scores one trip and appends the assessment.
	ComputeTripScore(ctx context.Context, req *dto.ComputeTripScoreRequest) (*models.RiskAssessment, error)

	// ComputeDailyScore scores one user's UTC day and appends the assessment.
	ComputeDailyScore(ctx context.Context, req *dto.ComputeDailyScoreRequest) (*models.RiskAssessment, error)

	// ComputeDailyScores scores many users for one day; each user is independent.
	ComputeDailyScores(ctx context.Context, req *dto.ComputeDailyScoresRequest) (*dto.DailyScoresResponse, error)

	// GetScore returns a stored assessment.
	GetScore(ctx context.Context, id uuid.UUID) (*models.RiskAssessment, error)

	// GetLatestScore returns the user's most recent assessment.
	GetLatestScore(ctx context.Context, userID uuid.UUID) (*models.RiskAssessment, error)

	// BandStatistics describes every band with its score range and current adjustment.
	BandStatistics(ctx context.Context, table *domainService.PricingTable) []models.BandInfo

	// ScoreHistory returns one page of the user's assessments, newest first.
	ScoreHistory(ctx context.Context, userID uuid.UUID, req *dto.ScoreHistoryRequest) (*dto.ScoreHistoryResponse, error)

	// ScoreTrend returns the user's scores over the last days days, oldest first.
	ScoreTrend(ctx context.Context, userID uuid.UUID, days int) (*models.ScoreTrend, error)

	// ScoringMetrics summarises the assessments of the last seven days.
	ScoringMetrics(ctx context.Context) (*models.ScoringMetrics, error)
}

// ScoringAppServiceOption customises the scoring application service.
type ScoringAppServiceOption func(*scoringAppServiceImpl)

// WithScoringClock overrides the time source of the history windows.
func WithScoringClock(now func() time.Time) ScoringAppServiceOption {
	return func(s *scoringAppServiceImpl) { s.now = now }
}

type scoringAppServiceImpl struct {
	trips      repository.TripRepository
	scores     repository.ScoreRepository
	extractor  domainService.FeatureExtractor
	calculator domainService.ScoreCalculator
	metrics    domainService.Metrics
	workers    int
	logger     logger.Logger
	now        func() time.Time
}

// NewScoringAppService creates a new ScoringAppService.
func NewScoringAppService(
	trips repository.TripRepository,
	scores repository.ScoreRepository,
	extractor domainService.FeatureExtractor,
	calculator domainService.ScoreCalculator,
	metrics domainService.Metrics,
	workers int,
	log logger.Logger,
	opts ...ScoringAppServiceOption,
) ScoringAppService {
	if metrics == nil {
		metrics = domainService.NewNoopMetrics()
	}
	if workers < 1 {
		workers = constants.DefaultBulkWorkers
	}
	s := &scoringAppServiceImpl{
		trips:      trips,
		scores:     scores,
		extractor:  extractor,
		calculator: calculator,
		metrics:    metrics,
		workers:    workers,
		logger:     log.WithComponent("scoring_app_service"),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *scoringAppServiceImpl) ComputeTripScore(ctx context.Context, req *dto.ComputeTripScoreRequest) (*models.RiskAssessment, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	tripID, err := utils.ParseUUID("trip_id", req.TripID)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "scoring.compute_trip_score", trace.WithAttributes(attribute.String("trip_id", req.TripID)))
	defer span.End()

	trip, err := s.trips.FindByID(ctx, tripID)
	if err != nil {
		return nil, spanError(span, repoErr("find trip", err))
	}
	if trip == nil {
		return nil, spanError(span, errors.ErrNotFound("trip", tripID))
	}

	start := time.Now()
	assessment := s.calculator.Compute(ctx, s.extractor.ExtractTripFeatures(trip))
	assessment.UserID = trip.UserID
	assessment.TripID = &trip.ID
	assessment.ScoreType = constants.ScoreTypeTrip

	if err := s.persist(ctx, span, assessment, time.Since(start)); err != nil {
		return nil, err
	}
	return assessment, nil
}

func (s *scoringAppServiceImpl) ComputeDailyScore(ctx context.Context, req *dto.ComputeDailyScoreRequest) (*models.RiskAssessment, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	userID, err := utils.ParseUUID("user_id", req.UserID)
	if err != nil {
		return nil, err
	}
	date, err := utils.ParseDate("date", req.Date)
	if err != nil {
		return nil, err
	}
	return s.computeDaily(ctx, userID, date)
}

func (s *scoringAppServiceImpl) computeDaily(ctx context.Context, userID uuid.UUID, date time.Time) (*models.RiskAssessment, error) {
	ctx, span := tracer.Start(ctx, "scoring.compute_daily_score", trace.WithAttributes(
		attribute.String("user_id", userID.String()),
		attribute.String("date", date.Format(utils.DateLayout)),
	))
	defer span.End()

	start := time.Now()
	features, err := s.extractor.ExtractDailyFeatures(ctx, userID, date)
	if err != nil {
		return nil, spanError(span, err)
	}
	assessment := s.calculator.Compute(ctx, features)
	assessment.UserID = userID
	assessment.ScoreType = constants.ScoreTypeDaily

	if err := s.persist(ctx, span, assessment, time.Since(start)); err != nil {
		return nil, err
	}
	return assessment, nil
}

// persist appends the assessment; scoring never retries a failed write.
func (s *scoringAppServiceImpl) persist(ctx context.Context, span trace.Span, a *models.RiskAssessment, elapsed time.Duration) error {
	s.metrics.RecordScoring(string(a.ScoreType), string(a.Band), a.IsFallback(), elapsed)
	span.SetAttributes(
		attribute.Float64("score", a.ScoreValue),
		attribute.String("band", string(a.Band)),
		attribute.String("model_version", a.ModelVersion),
	)

	if err := s.scores.Save(ctx, a); err != nil {
		s.logger.Error(ctx, "Failed to save risk assessment", err, logger.String("user_id", a.UserID.String()))
		return spanError(span, errors.ErrPersistence("save risk assessment", err))
	}

	fields := []logger.Field{
		logger.String("assessment_id", a.ID.String()),
		logger.String("user_id", a.UserID.String()),
		logger.String("score_type", string(a.ScoreType)),
		logger.Float64("score", a.ScoreValue),
		logger.String("band", string(a.Band)),
	}
	if a.IsFallback() {
		s.logger.Warn(ctx, "Risk assessment stored in fallback mode", fields...)
	} else {
		s.logger.Info(ctx, "Risk assessment stored", fields...)
	}
	return nil
}

func (s *scoringAppServiceImpl) ComputeDailyScores(ctx context.Context, req *dto.ComputeDailyScoresRequest) (*dto.DailyScoresResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	date, err := utils.ParseDate("date", req.Date)
	if err != nil {
		return nil, err
	}
	userIDs := make([]uuid.UUID, len(req.UserIDs))
	for i, raw := range req.UserIDs {
		if userIDs[i], err = utils.ParseUUID("user_ids", raw); err != nil {
			return nil, err
		}
	}

	results := make([]*models.RiskAssessment, len(userIDs))
	errs := make([]error, len(userIDs))
	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, id := range userIDs {
		i, id := i, id
		g.Go(func() error {
			results[i], errs[i] = s.computeDaily(ctx, id, date)
			return nil
		})
	}
	_ = g.Wait()

	resp := &dto.DailyScoresResponse{Total: len(userIDs)}
	for i, a := range results {
		if errs[i] != nil {
			if resp.Failures == nil {
				resp.Failures = make(map[string]dto.ErrorDTO)
			}
			resp.Failures[userIDs[i].String()] = dto.ErrorDTO{Code: string(errors.CodeOf(errs[i])), Message: errs[i].Error()}
			continue
		}
		resp.Successful++
		if a.IsFallback() {
			resp.Fallbacks++
		}
	}
	s.logger.Info(ctx, "Daily scoring run finished",
		logger.String("date", req.Date),
		logger.Int("total", resp.Total),
		logger.Int("successful", resp.Successful),
		logger.Int("fallbacks", resp.Fallbacks),
	)
	return resp, nil
}

func (s *scoringAppServiceImpl) GetScore(ctx context.Context, id uuid.UUID) (*models.RiskAssessment, error) {
	a, err := s.scores.FindByID(ctx, id)
	if err != nil {
		return nil, repoErr("find risk score", err)
	}
	if a == nil {
		return nil, errors.ErrNotFound("risk score", id)
	}
	return a, nil
}

func (s *scoringAppServiceImpl) GetLatestScore(ctx context.Context, userID uuid.UUID) (*models.RiskAssessment, error) {
	a, err := s.scores.FindLatestByUser(ctx, userID)
	if err != nil {
		return nil, repoErr("find latest risk score", err)
	}
	if a == nil {
		return nil, errors.ErrNotFound("risk score for user", userID)
	}
	return a, nil
}

func (s *scoringAppServiceImpl) BandStatistics(ctx context.Context, table *domainService.PricingTable) []models.BandInfo {
	thresholds := s.calculator.Thresholds()
	out := make([]models.BandInfo, 0, len(constants.Bands))
	for _, b := range constants.Bands {
		lo, hi := thresholds.Range(b)
		info := models.BandInfo{
			Band:        b,
			Description: domainService.BandDescription(b),
			MinScore:    lo,
			MaxScore:    hi,
		}
		if table != nil {
			info.DeltaPct = table.Adjustment(b)
		}
		out = append(out, info)
	}
	return out
}

func (s *scoringAppServiceImpl) ScoreHistory(ctx context.Context, userID uuid.UUID, req *dto.ScoreHistoryRequest) (*dto.ScoreHistoryResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	days, err := historyDays(req.Days)
	if err != nil {
		return nil, err
	}
	page, size := req.Page, req.PageSize
	if page == 0 {
		page = 1
	}
	if size == 0 {
		size = constants.DefaultPageSize
	}

	scores, err := s.scores.FindByUserSince(ctx, userID, s.now().AddDate(0, 0, -days))
	if err != nil {
		return nil, repoErr("list risk scores", err)
	}
	from := min((page-1)*size, len(scores))
	to := min(from+size, len(scores))
	return &dto.ScoreHistoryResponse{
		UserID:     userID.String(),
		Days:       days,
		Scores:     scores[from:to],
		Pagination: dto.NewPagination(page, size, int64(len(scores))),
	}, nil
}

func (s *scoringAppServiceImpl) ScoreTrend(ctx context.Context, userID uuid.UUID, days int) (*models.ScoreTrend, error) {
	days, err := historyDays(days)
	if err != nil {
		return nil, err
	}
	scores, err := s.scores.FindByUserSince(ctx, userID, s.now().AddDate(0, 0, -days))
	if err != nil {
		return nil, repoErr("list risk scores", err)
	}

	trend := &models.ScoreTrend{
		UserID:    userID,
		Days:      days,
		Trend:     make([]models.ScoreTrendPoint, len(scores)),
		Direction: constants.TrendStable,
	}
	for i, a := range scores {
		trend.Trend[len(scores)-1-i] = models.ScoreTrendPoint{Date: a.ComputedAt, Score: a.ScoreValue, Band: a.Band}
	}
	if n := len(trend.Trend); n > 1 {
		trend.Change = trend.Trend[n-1].Score - trend.Trend[0].Score
		switch {
		case trend.Change >= constants.TrendStableChange:
			trend.Direction = constants.TrendImproving
		case trend.Change <= -constants.TrendStableChange:
			trend.Direction = constants.TrendDeclining
		}
	}
	return trend, nil
}

func (s *scoringAppServiceImpl) ScoringMetrics(ctx context.Context) (*models.ScoringMetrics, error) {
	stats, err := s.scores.Stats(ctx, s.now().AddDate(0, 0, -constants.ScoringMetricsDays))
	if err != nil {
		return nil, repoErr("aggregate risk scores", err)
	}
	return &models.ScoringMetrics{
		ModelVersion:      s.calculator.ModelVersion(),
		WindowDays:        constants.ScoringMetricsDays,
		TotalScores:       stats.TotalScores,
		AverageScore:      stats.AverageScore,
		ScoreDistribution: stats.ByBand,
	}, nil
}

// historyDays defaults an unset window and bounds the rest.
func historyDays(days int) (int, error) {
	switch {
	case days == 0:
		return constants.DefaultScoreHistoryDays, nil
	case days < 0 || days > constants.MaxScoreHistoryDays:
		return 0, errors.ErrInvalidInput("days must be between 1 and %d, got %d", constants.MaxScoreHistoryDays, days)
	}
	return days, nil
}

// repoErr keeps taxonomy errors from the repository and wraps anything else as PERSISTENCE_ERROR.
func repoErr(op string, err error) error {
	if _, ok := errors.AsAppError(err); ok {
		return err
	}
	return errors.ErrPersistence(op, err)
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(errors.CodeOf(err)))
	return err
}

//Personal.AI order the ending
