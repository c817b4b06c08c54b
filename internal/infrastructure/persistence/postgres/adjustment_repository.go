package postgres

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/turtacn/ubi/internal/domain/models"
	"github.com/turtacn/ubi/pkg/constants"
	"github.com/turtacn/ubi/pkg/errors"
	"github.com/turtacn/ubi/pkg/logger"
)

// AdjustmentRepoImpl is the append-only premium adjustment store.
// It implements both repository.AdjustmentRepository and repository.AdjustmentHistoryRepository.
type AdjustmentRepoImpl struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewAdjustmentRepository creates a new gorm-backed adjustment repository.
func NewAdjustmentRepository(db *gorm.DB, log logger.Logger) *AdjustmentRepoImpl {
	return &AdjustmentRepoImpl{db: db, logger: log.WithComponent("adjustment_repository")}
}

func (r *AdjustmentRepoImpl) Append(ctx context.Context, record *models.PremiumAdjustmentRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(adjustmentToDBM(record)).Error; err != nil {
		r.logger.Error(ctx, "Failed to append premium adjustment", err,
			logger.String("policy_id", record.PolicyID.String()),
		)
		return errors.ErrPersistence("append premium adjustment", err)
	}
	return nil
}

func (r *AdjustmentRepoImpl) FindByPolicy(ctx context.Context, policyID uuid.UUID) ([]*models.PremiumAdjustmentRecord, error) {
	var rows []PremiumAdjustmentDBM
	err := r.db.WithContext(ctx).
		Where("policy_id = ?", policyID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		r.logger.Error(ctx, "Failed to list premium adjustments", err, logger.String("policy_id", policyID.String()))
		return nil, errors.ErrPersistence("list premium adjustments", err)
	}
	out := make([]*models.PremiumAdjustmentRecord, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

func (r *AdjustmentRepoImpl) LastEffectiveAdjustment(ctx context.Context, policyID uuid.UUID) (*models.PremiumAdjustmentRecord, error) {
	var dbm PremiumAdjustmentDBM
	err := r.db.WithContext(ctx).
		Where("policy_id = ? AND delta_pct <> 0 AND cooldown_held = ?", policyID, false).
		Order("created_at DESC").
		First(&dbm).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error(ctx, "Failed to read adjustment history", err, logger.String("policy_id", policyID.String()))
		return nil, errors.ErrPersistence("read adjustment history", err)
	}
	return dbm.toModel(), nil
}

type adjustmentTotals struct {
	Total          int64
	AvgDeltaPct    float64
	TotalChange    decimal.Decimal
	TotalIncreases decimal.Decimal
	TotalDecreases decimal.Decimal
}

type bandTotals struct {
	Band        string
	Count       int64
	AvgDeltaPct float64
	TotalChange decimal.Decimal
}

func (r *AdjustmentRepoImpl) Aggregate(ctx context.Context) (*models.AdjustmentAggregate, error) {
	db := r.db.WithContext(ctx)

	var totals adjustmentTotals
	err := db.Model(&PremiumAdjustmentDBM{}).Select(
		"COUNT(*) AS total, " +
			"COALESCE(AVG(delta_pct), 0) AS avg_delta_pct, " +
			"COALESCE(SUM(delta_amount), 0) AS total_change, " +
			"COALESCE(SUM(CASE WHEN delta_amount > 0 THEN delta_amount ELSE 0 END), 0) AS total_increases, " +
			"COALESCE(SUM(CASE WHEN delta_amount < 0 THEN delta_amount ELSE 0 END), 0) AS total_decreases",
	).Scan(&totals).Error
	if err != nil {
		r.logger.Error(ctx, "Failed to aggregate premium adjustments", err)
		return nil, errors.ErrPersistence("aggregate premium adjustments", err)
	}

	var bands []bandTotals
	err = db.Model(&PremiumAdjustmentDBM{}).
		Select("band, COUNT(*) AS count, COALESCE(AVG(delta_pct), 0) AS avg_delta_pct, COALESCE(SUM(delta_amount), 0) AS total_change").
		Group("band").
		Order("band ASC").
		Scan(&bands).Error
	if err != nil {
		r.logger.Error(ctx, "Failed to aggregate premium adjustments by band", err)
		return nil, errors.ErrPersistence("aggregate premium adjustments by band", err)
	}

	agg := &models.AdjustmentAggregate{
		TotalAdjustments: totals.Total,
		AvgDeltaPct:      totals.AvgDeltaPct,
		TotalChange:      totals.TotalChange.InexactFloat64(),
		TotalIncreases:   totals.TotalIncreases.InexactFloat64(),
		TotalDecreases:   totals.TotalDecreases.InexactFloat64(),
		ByBand:           make([]models.BandAdjustmentStats, 0, len(bands)),
	}
	for _, b := range bands {
		agg.ByBand = append(agg.ByBand, models.BandAdjustmentStats{
			Band:        constants.Band(b.Band),
			Count:       b.Count,
			AvgDeltaPct: b.AvgDeltaPct,
			TotalChange: b.TotalChange.InexactFloat64(),
		})
	}

	if totals.Total > 0 {
		var latest PremiumAdjustmentDBM
		if err := db.Select("created_at").Order("created_at DESC").First(&latest).Error; err != nil {
			return nil, errors.ErrPersistence("find latest premium adjustment", err)
		}
		at := latest.CreatedAt.UTC()
		agg.LastAdjustmentAt = &at
	}
	return agg, nil
}
