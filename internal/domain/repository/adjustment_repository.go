package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/turtacn/ubi/internal/domain/models"
)

// AdjustmentRepository is the append-only sink for premium adjustment records.
type AdjustmentRepository interface {
	// Append stores a new record. Records are never updated or deleted.
	Append(ctx context.Context, record *models.PremiumAdjustmentRecord) error

	// FindByPolicy returns the policy's records, newest first.
	FindByPolicy(ctx context.Context, policyID uuid.UUID) ([]*models.PremiumAdjustmentRecord, error)

	// Aggregate summarises the whole adjustment history.
	Aggregate(ctx context.Context) (*models.AdjustmentAggregate, error)
}

// AdjustmentHistoryRepository answers the cooldown question for the pricing guardrail.
type AdjustmentHistoryRepository interface {
	// LastEffectiveAdjustment returns the policy's most recent effective record
	// (see PremiumAdjustmentRecord.IsEffective), or nil when there is none.
	LastEffectiveAdjustment(ctx context.Context, policyID uuid.UUID) (*models.PremiumAdjustmentRecord, error)
}
