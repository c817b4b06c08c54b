// Package cache provides in-process caches in front of repositories on the pricing hot path.
package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/turtacn/ubi/internal/domain/models"
	"github.com/turtacn/ubi/internal/domain/repository"
	"github.com/turtacn/ubi/internal/domain/service"
	"github.com/turtacn/ubi/pkg/logger"
)

const cooldownCacheType = "cooldown"

// DefaultCooldownTTL is used when the configured TTL is not positive.
const DefaultCooldownTTL = 5 * time.Minute

// AdjustmentStore is the adjustment sink and the cooldown history in one.
type AdjustmentStore interface {
	repository.AdjustmentRepository
	repository.AdjustmentHistoryRepository
}

// cooldownEntry wraps the cached answer so that "no effective adjustment yet" is cacheable too.
type cooldownEntry struct {
	rec *models.PremiumAdjustmentRecord
}

// CooldownCache keeps the last effective adjustment per policy in memory.
// Appends through the cache update the entry directly; writes that bypass it
// become visible after the TTL.
type CooldownCache struct {
	next    AdjustmentStore
	l1      *gocache.Cache
	ttl     time.Duration
	metrics service.Metrics
	logger  logger.Logger
}

// NewCooldownCache wraps next with an in-memory cooldown lookup cache.
func NewCooldownCache(next AdjustmentStore, ttl time.Duration, metrics service.Metrics, log logger.Logger) *CooldownCache {
	if ttl <= 0 {
		ttl = DefaultCooldownTTL
	}
	if metrics == nil {
		metrics = service.NewNoopMetrics()
	}
	return &CooldownCache{
		next:    next,
		l1:      gocache.New(ttl, 2*ttl),
		ttl:     ttl,
		metrics: metrics,
		logger:  log.WithComponent("cooldown_cache"),
	}
}

func (c *CooldownCache) LastEffectiveAdjustment(ctx context.Context, policyID uuid.UUID) (*models.PremiumAdjustmentRecord, error) {
	key := policyID.String()
	if item, found := c.l1.Get(key); found {
		if entry, ok := item.(cooldownEntry); ok {
			c.metrics.RecordCacheAccess(cooldownCacheType, true)
			return copyRecord(entry.rec), nil
		}
	}
	c.metrics.RecordCacheAccess(cooldownCacheType, false)

	rec, err := c.next.LastEffectiveAdjustment(ctx, policyID)
	if err != nil {
		return nil, err
	}
	c.l1.Set(key, cooldownEntry{rec: copyRecord(rec)}, c.ttl)
	return rec, nil
}

func (c *CooldownCache) Append(ctx context.Context, record *models.PremiumAdjustmentRecord) error {
	if err := c.next.Append(ctx, record); err != nil {
		c.l1.Delete(record.PolicyID.String())
		return err
	}
	if record.IsEffective() {
		c.l1.Set(record.PolicyID.String(), cooldownEntry{rec: copyRecord(record)}, c.ttl)
		c.logger.Debug(ctx, "Cooldown window opened", logger.String("policy_id", record.PolicyID.String()))
	}
	return nil
}

func (c *CooldownCache) FindByPolicy(ctx context.Context, policyID uuid.UUID) ([]*models.PremiumAdjustmentRecord, error) {
	return c.next.FindByPolicy(ctx, policyID)
}

func (c *CooldownCache) Aggregate(ctx context.Context) (*models.AdjustmentAggregate, error) {
	return c.next.Aggregate(ctx)
}

// copyRecord keeps callers from mutating the cached entry.
func copyRecord(r *models.PremiumAdjustmentRecord) *models.PremiumAdjustmentRecord {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

// Flush drops every cached entry.
func (c *CooldownCache) Flush() {
	c.l1.Flush()
}
