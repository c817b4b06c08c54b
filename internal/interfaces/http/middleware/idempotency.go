package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/turtacn/ubi/internal/application/dto"
	"github.com/turtacn/ubi/pkg/constants"
	"github.com/turtacn/ubi/pkg/logger"
)

const idempotencyKeyPrefix = "ubi:idem:"

// Idempotency returns a Gin middleware that rejects replays of write requests carrying
// the same Idempotency-Key header. The key is claimed with SETNX before the handler runs
// and released again when the handler fails, so only successful writes are remembered.
// Requests without the header pass through untouched.
// Idempotency 返回一个拒绝重复写请求的 Gin 中间件（基于 Idempotency-Key 请求头）。
// 处理失败时会释放该键，允许调用方重试。
func Idempotency(client redis.UniversalClient, ttl time.Duration, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(constants.HeaderIdempotencyKey))
		if client == nil || key == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		redisKey := idempotencyKeyPrefix + c.Request.Method + ":" + c.FullPath() + ":" + key
		isNew, err := client.SetNX(ctx, redisKey, c.GetString(string(constants.ContextKeyRequestID)), ttl).Result()
		if err != nil {
			// fail open
			log.Error(ctx, "Idempotency check failed", err, logger.String("idempotency_key", key))
			c.Next()
			return
		}

		if !isNew {
			log.Warn(ctx, "Duplicate request rejected", logger.String("idempotency_key", key))
			c.AbortWithStatusJSON(http.StatusConflict, &dto.APIResponse{
				Success: false,
				Error: &dto.ErrorDTO{
					Code:    "DUPLICATE_REQUEST",
					Message: "a request with this idempotency key has already been processed",
				},
				TraceID:   c.GetString(string(constants.ContextKeyTraceID)),
				Timestamp: time.Now().Unix(),
			})
			return
		}

		c.Next()

		if c.Writer.Status() >= http.StatusBadRequest {
			if err := client.Del(ctx, redisKey).Err(); err != nil {
				log.Warn(ctx, "Failed to release idempotency key", logger.String("idempotency_key", key), logger.Err(err))
			}
		}
	}
}
