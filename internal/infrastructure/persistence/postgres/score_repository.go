package postgres

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/turtacn/ubi/internal/domain/models"
	"github.com/turtacn/ubi/internal/domain/repository"
	"github.com/turtacn/ubi/pkg/constants"
	"github.com/turtacn/ubi/pkg/errors"
	"github.com/turtacn/ubi/pkg/logger"
)

// ScoreRepoImpl implements repository.ScoreRepository with gorm. Risk scores are append-only.
type ScoreRepoImpl struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewScoreRepository creates a new gorm-backed risk score repository.
func NewScoreRepository(db *gorm.DB, log logger.Logger) repository.ScoreRepository {
	return &ScoreRepoImpl{db: db, logger: log.WithComponent("score_repository")}
}

func (r *ScoreRepoImpl) Save(ctx context.Context, a *models.RiskAssessment) error {
	dbm, err := riskScoreToDBM(a)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "encode risk assessment")
	}
	if err := r.db.WithContext(ctx).Create(dbm).Error; err != nil {
		r.logger.Error(ctx, "Failed to insert risk score", err, logger.String("assessment_id", a.ID.String()))
		return errors.ErrPersistence("insert risk score", err)
	}
	return nil
}

func (r *ScoreRepoImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.RiskAssessment, error) {
	return r.first(ctx, "risk score", id, r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *ScoreRepoImpl) FindLatestByUser(ctx context.Context, userID uuid.UUID) (*models.RiskAssessment, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("computed_at DESC")
	return r.first(ctx, "risk score for user", userID, q)
}

func (r *ScoreRepoImpl) FindByUserSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]*models.RiskAssessment, error) {
	var rows []RiskScoreDBM
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND computed_at >= ?", userID, since.UTC()).
		Order("computed_at DESC").
		Find(&rows).Error
	if err != nil {
		r.logger.Error(ctx, "Failed to list risk scores", err, logger.String("user_id", userID.String()))
		return nil, errors.ErrPersistence("list risk scores", err)
	}
	out := make([]*models.RiskAssessment, 0, len(rows))
	for i := range rows {
		a, err := rows[i].toModel()
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInternal, "decode risk assessment")
		}
		out = append(out, a)
	}
	return out, nil
}

type scoreBandCount struct {
	Band  string
	Count int64
	Sum   float64
}

func (r *ScoreRepoImpl) Stats(ctx context.Context, since time.Time) (*models.ScoreStats, error) {
	var rows []scoreBandCount
	err := r.db.WithContext(ctx).Model(&RiskScoreDBM{}).
		Select("band, COUNT(*) AS count, COALESCE(SUM(score_value), 0) AS sum").
		Where("computed_at >= ?", since.UTC()).
		Group("band").
		Scan(&rows).Error
	if err != nil {
		r.logger.Error(ctx, "Failed to aggregate risk scores", err)
		return nil, errors.ErrPersistence("aggregate risk scores", err)
	}

	stats := &models.ScoreStats{ByBand: make(map[constants.Band]int64, len(constants.Bands))}
	for _, b := range constants.Bands {
		stats.ByBand[b] = 0
	}
	var sum float64
	for _, row := range rows {
		stats.ByBand[constants.Band(row.Band)] = row.Count
		stats.TotalScores += row.Count
		sum += row.Sum
	}
	if stats.TotalScores > 0 {
		stats.AverageScore = sum / float64(stats.TotalScores)
	}
	return stats, nil
}

func (r *ScoreRepoImpl) first(ctx context.Context, resource string, id uuid.UUID, q *gorm.DB) (*models.RiskAssessment, error) {
	var dbm RiskScoreDBM
	if err := q.First(&dbm).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrNotFound(resource, id)
		}
		r.logger.Error(ctx, "Failed to retrieve risk score", err, logger.String("id", id.String()))
		return nil, errors.ErrPersistence("find risk score", err)
	}
	a, err := dbm.toModel()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "decode risk assessment")
	}
	return a, nil
}
