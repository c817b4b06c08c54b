package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/turtacn/ubi/internal/domain/models"
)

// ScoreRepository is the append-only sink for risk assessments.
type ScoreRepository interface {
	// Save appends an assessment. Assessments are never updated.
	Save(ctx context.Context, assessment *models.RiskAssessment) error

	// FindByID returns one assessment or a NOT_FOUND error.
	FindByID(ctx context.Context, id uuid.UUID) (*models.RiskAssessment, error)

	// FindLatestByUser returns the user's most recently computed assessment or a NOT_FOUND error.
	FindLatestByUser(ctx context.Context, userID uuid.UUID) (*models.RiskAssessment, error)

	// FindByUserSince returns the user's assessments computed at or after since, newest first.
	FindByUserSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]*models.RiskAssessment, error)

	// Stats aggregates every assessment computed at or after since.
	Stats(ctx context.Context, since time.Time) (*models.ScoreStats, error)
}
