package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/turtacn/ubi/internal/domain/models"
)

// PolicyRepository 定义保单仓储接口
// It supplies base premium, period and status for pricing.
type PolicyRepository interface {
	// FindByID returns the policy or a NOT_FOUND error.
	FindByID(ctx context.Context, id uuid.UUID) (*models.Policy, error)

	// FindByIDs returns the policies that exist among ids, in no particular order.
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Policy, error)

	// ListActive returns active policies (paginated) and the total count.
	ListActive(ctx context.Context, limit, offset int) ([]*models.Policy, int64, error)

	// Save creates or updates a policy.
	Save(ctx context.Context, policy *models.Policy) error
}
