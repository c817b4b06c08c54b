// Package events publishes pricing events to Kafka and applies table updates made by peer instances.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/turtacn/ubi/internal/config"
	"github.com/turtacn/ubi/internal/domain/models"
	"github.com/turtacn/ubi/pkg/constants"
	"github.com/turtacn/ubi/pkg/logger"
)

const (
	headerEventType = "event_type"
	headerSource    = "source"
)

// Envelope is the JSON body of every published event.
type Envelope struct {
	ID         uuid.UUID           `json:"id"`
	Type       constants.EventType `json:"type"`
	Source     string              `json:"source"`
	OccurredAt time.Time           `json:"occurred_at"`
	Payload    json.RawMessage     `json:"payload"`
}

// MessageWriter is the subset of *kafka.Writer used by the publisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes premium adjustments and pricing table updates.
// It implements service.AdjustmentPublisher and the application TableEventPublisher.
type KafkaPublisher struct {
	adjustments MessageWriter
	tables      MessageWriter
	source      string
	now         func() time.Time
	logger      logger.Logger
}

// NewKafkaPublisher creates writers for the adjustment and pricing topics.
// source identifies this instance so it can ignore its own table updates.
func NewKafkaPublisher(cfg config.KafkaConfig, source string, log logger.Logger) *KafkaPublisher {
	batchTimeout := time.Duration(cfg.BatchTimeoutMSec) * time.Millisecond
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Millisecond
	}
	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: batchTimeout,
			WriteTimeout: 10 * time.Second,
		}
	}
	return NewKafkaPublisherWithWriters(newWriter(cfg.AdjustmentTopic), newWriter(cfg.PricingTopic), source, log)
}

// NewKafkaPublisherWithWriters builds a publisher over existing writers.
func NewKafkaPublisherWithWriters(adjustments, tables MessageWriter, source string, log logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		adjustments: adjustments,
		tables:      tables,
		source:      source,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      log.WithComponent("KafkaPublisher"),
	}
}

// PublishAdjustment sends a premium.adjusted event keyed by policy id, so that
// a policy's adjustments stay ordered within one partition.
func (p *KafkaPublisher) PublishAdjustment(ctx context.Context, record *models.PremiumAdjustmentRecord) error {
	return p.publish(ctx, p.adjustments, constants.EventPremiumAdjusted, record.PolicyID.String(), record)
}

// PublishTableUpdate sends a pricing.table_updated event carrying the full snapshot.
func (p *KafkaPublisher) PublishTableUpdate(ctx context.Context, cfg *models.PricingConfig) error {
	return p.publish(ctx, p.tables, constants.EventPricingTableUpdated, cfg.Version, cfg)
}

func (p *KafkaPublisher) publish(ctx context.Context, w MessageWriter, eventType constants.EventType, key string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error(ctx, "failed to marshal event payload", err, logger.String("event_type", string(eventType)))
		return err
	}
	value, err := json.Marshal(Envelope{
		ID:         uuid.New(),
		Type:       eventType,
		Source:     p.source,
		OccurredAt: p.now(),
		Payload:    body,
	})
	if err != nil {
		return err
	}

	err = w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(eventType)},
			{Key: headerSource, Value: []byte(p.source)},
		},
	})
	if err != nil {
		p.logger.Error(ctx, "failed to write message to Kafka", err,
			logger.String("event_type", string(eventType)),
			logger.String("key", key),
		)
	}
	return err
}

// Close closes both writers.
func (p *KafkaPublisher) Close() error {
	errA := p.adjustments.Close()
	errT := p.tables.Close()
	if errA != nil {
		return errA
	}
	return errT
}
