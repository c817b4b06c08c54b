// Package repository 定义领域仓储接口
// Trips and context samples are written by the ingestion pipeline; the pricing core only reads them.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/turtacn/ubi/internal/domain/models"
)

// TripRepository supplies raw trip records to the feature extractor.
// 实现类：internal/infrastructure/persistence/postgres/trip_repository.go
type TripRepository interface {
	// FindByID returns the trip or a NOT_FOUND error.
	FindByID(ctx context.Context, id uuid.UUID) (*models.Trip, error)

	// FindByUserBetween returns the user's trips whose start timestamp lies in [from, to),
	// ordered by start timestamp.
	FindByUserBetween(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]*models.Trip, error)

	// Save stores a trip. Used by seeding tools and tests.
	Save(ctx context.Context, trip *models.Trip) error
}

// ContextRepository supplies contextual samples (weather, area risk) for daily aggregation.
type ContextRepository interface {
	// FindBetween returns samples whose timestamp lies in [from, to).
	FindBetween(ctx context.Context, from, to time.Time) ([]*models.ContextSample, error)

	// Save stores a sample.
	Save(ctx context.Context, sample *models.ContextSample) error
}
