package events

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/ubi/internal/config"
	"github.com/turtacn/ubi/internal/domain/models"
	"github.com/turtacn/ubi/internal/domain/service"
	"github.com/turtacn/ubi/pkg/constants"
	"github.com/turtacn/ubi/pkg/logger"
)

// MessageReader is the subset of *kafka.Reader used by the consumer.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TableSyncConsumer applies pricing table updates published by other instances,
// so every replica prices with the same table. Each instance reads the topic in
// its own consumer group.
type TableSyncConsumer struct {
	reader  MessageReader
	table   *service.PricingTable
	source  string
	metrics service.Metrics
	logger  logger.Logger
}

// NewTableSyncConsumer creates a consumer of the pricing topic for this instance.
func NewTableSyncConsumer(cfg config.KafkaConfig, table *service.PricingTable, source string, metrics service.Metrics, log logger.Logger) *TableSyncConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.PricingTopic,
		GroupID:        "ubi-pricing-sync-" + source, // one group per instance: every replica sees every update
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
	})
	return NewTableSyncConsumerWithReader(reader, table, source, metrics, log)
}

// NewTableSyncConsumerWithReader builds a consumer over an existing reader.
func NewTableSyncConsumerWithReader(reader MessageReader, table *service.PricingTable, source string, metrics service.Metrics, log logger.Logger) *TableSyncConsumer {
	if metrics == nil {
		metrics = service.NewNoopMetrics()
	}
	return &TableSyncConsumer{
		reader:  reader,
		table:   table,
		source:  source,
		metrics: metrics,
		logger:  log.WithComponent("TableSyncConsumer"),
	}
}

// Run consumes until ctx is cancelled. It is a blocking call and should be run in a goroutine.
func (c *TableSyncConsumer) Run(ctx context.Context) error {
	c.logger.Info(ctx, "starting pricing table sync consumer...")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || stderrors.Is(err, context.Canceled) {
				c.logger.Info(ctx, "stopping pricing table sync consumer...")
				return nil
			}
			c.logger.Error(ctx, "failed to fetch message from kafka", err)
			return err
		}

		c.handle(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error(ctx, "failed to commit kafka message", err)
		}
	}
}

// handle never fails the loop: an undecodable or invalid update is logged and skipped.
func (c *TableSyncConsumer) handle(ctx context.Context, msg kafka.Message) {
	var env Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		c.logger.Error(ctx, "failed to unmarshal pricing event", err, logger.String("kafka_message", string(msg.Value)))
		return
	}
	if env.Type != constants.EventPricingTableUpdated || env.Source == c.source {
		return
	}

	var cfg models.PricingConfig
	if err := json.Unmarshal(env.Payload, &cfg); err != nil {
		c.logger.Error(ctx, "failed to unmarshal pricing table payload", err)
		return
	}
	applied, report, err := c.table.Merge(&cfg)
	if err != nil {
		c.metrics.RecordPricingTableUpdate("rejected")
		c.logger.Warn(ctx, "Rejected pricing table from peer",
			logger.String("source", env.Source),
			logger.String("version", cfg.Version),
			logger.Any("errors", report.Errors),
		)
		return
	}
	if !applied {
		c.logger.Debug(ctx, "Ignored superseded pricing table from peer",
			logger.String("source", env.Source),
			logger.String("version", cfg.Version),
			logger.String("current_version", c.table.Version()),
		)
		return
	}
	c.metrics.RecordPricingTableUpdate("applied")
	c.logger.Info(ctx, "Applied pricing table from peer",
		logger.String("source", env.Source),
		logger.String("version", cfg.Version),
	)
}

// Close closes the underlying reader.
func (c *TableSyncConsumer) Close() error {
	return c.reader.Close()
}
