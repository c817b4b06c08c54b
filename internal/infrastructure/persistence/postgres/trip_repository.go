package postgres

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/turtacn/ubi/internal/domain/models"
	"github.com/turtacn/ubi/internal/domain/repository"
	"github.com/turtacn/ubi/pkg/errors"
	"github.com/turtacn/ubi/pkg/logger"
)

// TripRepoImpl implements repository.TripRepository with gorm.
type TripRepoImpl struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewTripRepository creates a new gorm-backed trip repository.
func NewTripRepository(db *gorm.DB, log logger.Logger) repository.TripRepository {
	return &TripRepoImpl{db: db, logger: log.WithComponent("trip_repository")}
}

func (r *TripRepoImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.Trip, error) {
	var dbm TripDBM
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&dbm).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrNotFound("trip", id)
		}
		r.logger.Error(ctx, "Failed to retrieve trip", err, logger.String("trip_id", id.String()))
		return nil, errors.ErrPersistence("find trip", err)
	}
	return dbm.toModel(), nil
}

func (r *TripRepoImpl) FindByUserBetween(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]*models.Trip, error) {
	var rows []TripDBM
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND start_ts >= ? AND start_ts < ?", userID, from.UTC(), to.UTC()).
		Order("start_ts ASC").
		Find(&rows).Error
	if err != nil {
		r.logger.Error(ctx, "Failed to list trips", err, logger.String("user_id", userID.String()))
		return nil, errors.ErrPersistence("list trips", err)
	}
	trips := make([]*models.Trip, 0, len(rows))
	for i := range rows {
		trips = append(trips, rows[i].toModel())
	}
	return trips, nil
}

func (r *TripRepoImpl) Save(ctx context.Context, trip *models.Trip) error {
	if trip.ID == uuid.Nil {
		trip.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Save(tripToDBM(trip)).Error; err != nil {
		r.logger.Error(ctx, "Failed to save trip", err, logger.String("trip_id", trip.ID.String()))
		return errors.ErrPersistence("save trip", err)
	}
	return nil
}

// ContextRepoImpl implements repository.ContextRepository with gorm.
type ContextRepoImpl struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewContextRepository creates a new gorm-backed context sample repository.
func NewContextRepository(db *gorm.DB, log logger.Logger) repository.ContextRepository {
	return &ContextRepoImpl{db: db, logger: log.WithComponent("context_repository")}
}

func (r *ContextRepoImpl) FindBetween(ctx context.Context, from, to time.Time) ([]*models.ContextSample, error) {
	var rows []ContextSampleDBM
	err := r.db.WithContext(ctx).
		Where("ts >= ? AND ts < ?", from.UTC(), to.UTC()).
		Order("ts ASC").
		Find(&rows).Error
	if err != nil {
		r.logger.Error(ctx, "Failed to list context samples", err)
		return nil, errors.ErrPersistence("list context samples", err)
	}
	out := make([]*models.ContextSample, 0, len(rows))
	for _, d := range rows {
		out = append(out, &models.ContextSample{
			ID:              d.ID,
			TS:              d.TS.UTC(),
			TemperatureC:    d.TemperatureC,
			PrecipitationMM: d.PrecipitationMM,
			VisibilityKm:    d.VisibilityKm,
			CrimeIndex:      d.CrimeIndex,
			AccidentDensity: d.AccidentDensity,
		})
	}
	return out, nil
}

func (r *ContextRepoImpl) Save(ctx context.Context, s *models.ContextSample) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	dbm := &ContextSampleDBM{
		ID:              s.ID,
		TS:              s.TS.UTC(),
		TemperatureC:    s.TemperatureC,
		PrecipitationMM: s.PrecipitationMM,
		VisibilityKm:    s.VisibilityKm,
		CrimeIndex:      s.CrimeIndex,
		AccidentDensity: s.AccidentDensity,
	}
	if err := r.db.WithContext(ctx).Save(dbm).Error; err != nil {
		r.logger.Error(ctx, "Failed to save context sample", err)
		return errors.ErrPersistence("save context sample", err)
	}
	return nil
}
