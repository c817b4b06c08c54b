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

// PolicyRepoImpl implements repository.PolicyRepository with gorm.
type PolicyRepoImpl struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewPolicyRepository creates a new gorm-backed policy repository.
func NewPolicyRepository(db *gorm.DB, log logger.Logger) repository.PolicyRepository {
	return &PolicyRepoImpl{db: db, logger: log.WithComponent("policy_repository")}
}

func (r *PolicyRepoImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.Policy, error) {
	var dbm PolicyDBM
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&dbm).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			r.logger.Debug(ctx, "Policy not found", logger.String("policy_id", id.String()))
			return nil, errors.ErrNotFound("policy", id)
		}
		r.logger.Error(ctx, "Failed to retrieve policy", err, logger.String("policy_id", id.String()))
		return nil, errors.ErrPersistence("find policy", err)
	}
	return dbm.toModel(), nil
}

func (r *PolicyRepoImpl) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Policy, error) {
	if len(ids) == 0 {
		return []*models.Policy{}, nil
	}
	var rows []PolicyDBM
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		r.logger.Error(ctx, "Failed to retrieve policies", err, logger.Int("count", len(ids)))
		return nil, errors.ErrPersistence("find policies", err)
	}
	out := make([]*models.Policy, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

func (r *PolicyRepoImpl) ListActive(ctx context.Context, limit, offset int) ([]*models.Policy, int64, error) {
	q := r.db.WithContext(ctx).Model(&PolicyDBM{}).Where("status = ?", string(constants.PolicyStatusActive))

	var total int64
	if err := q.Count(&total).Error; err != nil {
		r.logger.Error(ctx, "Failed to count active policies", err)
		return nil, 0, errors.ErrPersistence("count active policies", err)
	}

	var rows []PolicyDBM
	if err := q.Order("id ASC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		r.logger.Error(ctx, "Failed to list active policies", err)
		return nil, 0, errors.ErrPersistence("list active policies", err)
	}
	out := make([]*models.Policy, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, total, nil
}

func (r *PolicyRepoImpl) Save(ctx context.Context, p *models.Policy) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Save(policyToDBM(p)).Error; err != nil {
		r.logger.Error(ctx, "Failed to save policy", err, logger.String("policy_id", p.ID.String()))
		return errors.ErrPersistence("save policy", err)
	}
	return nil
}
