package events_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ubi/internal/domain/models"
	"github.com/turtacn/ubi/internal/domain/service"
	"github.com/turtacn/ubi/internal/infrastructure/events"
	"github.com/turtacn/ubi/pkg/constants"
	"github.com/turtacn/ubi/pkg/logger"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

// fakeReader serves queued messages, then blocks until the context ends.
type fakeReader struct {
	queue     chan kafka.Message
	mu        sync.Mutex
	committed int
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{queue: make(chan kafka.Message, len(msgs))}
	for _, m := range msgs {
		r.queue <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.queue:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed += len(msgs)
	return nil
}

func (r *fakeReader) Committed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.committed
}

func (r *fakeReader) Close() error { return nil }

func TestKafkaPublisher_PublishAdjustment(t *testing.T) {
	adj, tables := &fakeWriter{}, &fakeWriter{}
	pub := events.NewKafkaPublisherWithWriters(adj, tables, "node-a", logger.NewNoopLogger())
	record := &models.PremiumAdjustmentRecord{
		ID:         uuid.New(),
		PolicyID:   uuid.New(),
		Band:       constants.BandB,
		DeltaPct:   -0.05,
		NewPremium: 950,
	}

	require.NoError(t, pub.PublishAdjustment(context.Background(), record))
	require.Len(t, adj.messages, 1)
	assert.Empty(t, tables.messages)

	msg := adj.messages[0]
	assert.Equal(t, record.PolicyID.String(), string(msg.Key))
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, string(constants.EventPremiumAdjusted), string(msg.Headers[0].Value))

	var env events.Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, constants.EventPremiumAdjusted, env.Type)
	assert.Equal(t, "node-a", env.Source)

	var got models.PremiumAdjustmentRecord
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, 950.0, got.NewPremium)

	require.NoError(t, pub.Close())
	assert.True(t, adj.closed)
	assert.True(t, tables.closed)
}

func TestKafkaPublisher_WriteErrorIsReturned(t *testing.T) {
	tables := &fakeWriter{err: kafka.LeaderNotAvailable}
	pub := events.NewKafkaPublisherWithWriters(&fakeWriter{}, tables, "node-a", logger.NewNoopLogger())

	err := pub.PublishTableUpdate(context.Background(), service.NewDefaultPricingTable().Snapshot())
	assert.ErrorIs(t, err, kafka.LeaderNotAvailable)
}

func tableEvent(t *testing.T, source string, cfg *models.PricingConfig) kafka.Message {
	t.Helper()
	w := &fakeWriter{}
	pub := events.NewKafkaPublisherWithWriters(&fakeWriter{}, w, source, logger.NewNoopLogger())
	require.NoError(t, pub.PublishTableUpdate(context.Background(), cfg))
	return w.messages[0]
}

func TestTableSyncConsumer_AppliesPeerUpdates(t *testing.T) {
	local := service.NewDefaultPricingTable()

	peerTable := service.NewDefaultPricingTable()
	_, err := peerTable.Update(map[constants.Band]float64{constants.BandA: -0.20})
	require.NoError(t, err)

	invalid := peerTable.Snapshot().Clone()
	invalid.Version = "v9.9.9"
	invalid.Adjustments[constants.BandA] = 0.30 // breaks monotonicity

	own := peerTable.Snapshot().Clone()
	own.Version = "v7.0.0"

	reader := newFakeReader(
		kafka.Message{Value: []byte("not json")},
		tableEvent(t, "node-b", invalid),
		tableEvent(t, "node-a", own),
		tableEvent(t, "node-b", peerTable.Snapshot()),
	)
	consumer := events.NewTableSyncConsumerWithReader(reader, local, "node-a", nil, logger.NewNoopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	require.Eventually(t, func() bool { return reader.Committed() == 4 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, "v1.0.1", local.Version())
	assert.Equal(t, -0.20, local.Adjustment(constants.BandA))
}

// consumeAll runs a consumer over msgs until every message is committed.
func consumeAll(t *testing.T, table *service.PricingTable, source string, msgs ...kafka.Message) {
	t.Helper()
	reader := newFakeReader(msgs...)
	consumer := events.NewTableSyncConsumerWithReader(reader, table, source, nil, logger.NewNoopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()
	require.Eventually(t, func() bool { return reader.Committed() == len(msgs) }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestTableSyncConsumer_ConcurrentUpdatesConverge(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := service.WithClock(func() time.Time { return at })
	nodeA, err := service.NewPricingTable(nil, models.DefaultPricingRules(), clock, service.WithWriter("node-a"))
	require.NoError(t, err)
	nodeB, err := service.NewPricingTable(nil, models.DefaultPricingRules(), clock, service.WithWriter("node-b"))
	require.NoError(t, err)

	// both replicas update from v1.0.0 before seeing each other's event
	_, err = nodeA.Update(map[constants.Band]float64{constants.BandA: -0.20})
	require.NoError(t, err)
	_, err = nodeB.Update(map[constants.Band]float64{constants.BandE: 0.30})
	require.NoError(t, err)

	fromA := tableEvent(t, "node-a", nodeA.Snapshot())
	fromB := tableEvent(t, "node-b", nodeB.Snapshot())
	consumeAll(t, nodeA, "node-a", fromB)
	consumeAll(t, nodeB, "node-b", fromA)

	assert.True(t, nodeA.Snapshot().SameTable(nodeB.Snapshot()), "replicas diverged")
	assert.Equal(t, nodeA.Version(), nodeB.Version())
	assert.Equal(t, 0.30, nodeA.Adjustment(constants.BandE))
}

func TestTableSyncConsumer_IgnoresSupersededUpdate(t *testing.T) {
	local := service.NewDefaultPricingTable()
	stale := local.Snapshot().Clone()
	stale.LastUpdated = stale.LastUpdated.Add(-time.Hour)
	stale.Version = "v1.0.1"
	stale.Adjustments[constants.BandA] = -0.25

	consumeAll(t, local, "node-a", tableEvent(t, "node-b", stale))

	assert.Equal(t, constants.InitialPricingVersion, local.Version())
	assert.Equal(t, -0.15, local.Adjustment(constants.BandA))
}
