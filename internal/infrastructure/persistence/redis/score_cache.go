package redis

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/turtacn/ubi/internal/domain/models"
	"github.com/turtacn/ubi/internal/domain/repository"
	"github.com/turtacn/ubi/internal/domain/service"
	"github.com/turtacn/ubi/pkg/logger"
)

const (
	scoreKeyPrefix  = "ubi:score:"
	latestKeyPrefix = "ubi:score:latest:"
	scoreCacheType  = "risk_score"

	// DefaultScoreTTL is used when the configured TTL is not positive.
	DefaultScoreTTL = 10 * time.Minute

	// latestRetries bounds optimistic retries of the per-user latest entry.
	latestRetries = 3
)

// CachedScoreRepository is a read-through cache in front of a ScoreRepository.
// Assessments are immutable, so an entry keyed by id never goes stale. The per-user
// "latest" entry is only ever replaced by an assessment computed at or after the cached
// one, so a slow read-through cannot put back an older score over a fresh Save.
// Redis failures are logged and the call falls through to the backing store.
type CachedScoreRepository struct {
	next    repository.ScoreRepository
	client  redis.UniversalClient
	ttl     time.Duration
	metrics service.Metrics
	logger  logger.Logger
}

// NewCachedScoreRepository wraps next with a Redis cache.
func NewCachedScoreRepository(next repository.ScoreRepository, conn *RedisConnection, ttl time.Duration, metrics service.Metrics, log logger.Logger) *CachedScoreRepository {
	if ttl <= 0 {
		ttl = DefaultScoreTTL
	}
	if metrics == nil {
		metrics = service.NewNoopMetrics()
	}
	return &CachedScoreRepository{
		next:    next,
		client:  conn.GetClient(),
		ttl:     ttl,
		metrics: metrics,
		logger:  log.WithComponent("score_cache"),
	}
}

func scoreKey(id uuid.UUID) string      { return scoreKeyPrefix + id.String() }
func latestKey(userID uuid.UUID) string { return latestKeyPrefix + userID.String() }

func (c *CachedScoreRepository) Save(ctx context.Context, a *models.RiskAssessment) error {
	if err := c.next.Save(ctx, a); err != nil {
		return err
	}
	c.put(ctx, scoreKey(a.ID), a)
	c.putLatest(ctx, a)
	return nil
}

func (c *CachedScoreRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.RiskAssessment, error) {
	if a, ok := c.get(ctx, scoreKey(id)); ok {
		return a, nil
	}
	a, err := c.next.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.put(ctx, scoreKey(id), a)
	return a, nil
}

func (c *CachedScoreRepository) FindLatestByUser(ctx context.Context, userID uuid.UUID) (*models.RiskAssessment, error) {
	if a, ok := c.get(ctx, latestKey(userID)); ok {
		return a, nil
	}
	a, err := c.next.FindLatestByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.putLatest(ctx, a)
	return a, nil
}

// FindByUserSince is not cached: windows differ per call.
func (c *CachedScoreRepository) FindByUserSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]*models.RiskAssessment, error) {
	return c.next.FindByUserSince(ctx, userID, since)
}

func (c *CachedScoreRepository) Stats(ctx context.Context, since time.Time) (*models.ScoreStats, error) {
	return c.next.Stats(ctx, since)
}

func (c *CachedScoreRepository) get(ctx context.Context, key string) (*models.RiskAssessment, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !stderrors.Is(err, redis.Nil) {
			c.logger.Warn(ctx, "Score cache read failed", logger.Err(err), logger.String("key", key))
		}
		c.metrics.RecordCacheAccess(scoreCacheType, false)
		return nil, false
	}
	var a models.RiskAssessment
	if err := json.Unmarshal(raw, &a); err != nil {
		c.logger.Warn(ctx, "Discarding undecodable cached score", logger.Err(err), logger.String("key", key))
		c.metrics.RecordCacheAccess(scoreCacheType, false)
		return nil, false
	}
	c.metrics.RecordCacheAccess(scoreCacheType, true)
	return &a, true
}

func (c *CachedScoreRepository) put(ctx context.Context, key string, a *models.RiskAssessment) {
	raw, err := json.Marshal(a)
	if err != nil {
		c.logger.Warn(ctx, "Failed to encode score for cache", logger.Err(err))
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn(ctx, "Score cache write failed", logger.Err(err), logger.String("key", key))
	}
}

// putLatest writes a as the user's latest entry unless the cached one was computed later.
// The compare and the write run in a WATCH transaction; a concurrent writer makes it retry.
func (c *CachedScoreRepository) putLatest(ctx context.Context, a *models.RiskAssessment) {
	key := latestKey(a.UserID)
	raw, err := json.Marshal(a)
	if err != nil {
		c.logger.Warn(ctx, "Failed to encode score for cache", logger.Err(err))
		return
	}

	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Bytes()
		if err != nil && !stderrors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			var cached models.RiskAssessment
			if json.Unmarshal(cur, &cached) == nil && cached.ComputedAt.After(a.ComputedAt) {
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, c.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < latestRetries; i++ {
		err = c.client.Watch(ctx, txf, key)
		if !stderrors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		c.logger.Warn(ctx, "Latest score cache write failed", logger.Err(err), logger.String("key", key))
		c.client.Del(ctx, key)
	}
}

// String implements fmt.Stringer.
func (c *CachedScoreRepository) String() string {
	return fmt.Sprintf("CachedScoreRepository{ttl=%s}", c.ttl)
}
