package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/03aar/review-sub000/pkg/logger"
)

func TestNewEvent_CarriesCorrelationID(t *testing.T) {
	ctx := logger.WithCorrelationID(context.Background(), "corr-7")
	data := map[string]any{"business_id": "biz-1", "negative_count_24h": 9}

	event, err := NewEvent(ctx, "reputation.crisis.detected", "biz-1", "business", "reputation-engine", data)
	require.NoError(t, err)

	assert.Len(t, event.EventID, 36)
	assert.Equal(t, EnvelopeVersion, event.Version)
	assert.Equal(t, "corr-7", event.CorrelationID)
	assert.WithinDuration(t, time.Now(), event.Timestamp, 2*time.Second)

	var decoded map[string]any
	require.NoError(t, event.UnmarshalData(&decoded))
	assert.Equal(t, "biz-1", decoded["business_id"])
}

func TestNewEvent_UnencodablePayload(t *testing.T) {
	_, err := NewEvent(context.Background(), "reputation.review.received", "rev-1", "review", "svc", make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reputation.review.received")
	assert.Contains(t, err.Error(), "leader not available")
}

func TestUnmarshalEvent(t *testing.T) {
	event, err := NewEvent(context.Background(), "reputation.rating.changed", "biz-1", "business", "svc", nil)
	require.NoError(t, err)
	raw, err := event.Marshal()
	require.NoError(t, err)

	got, err := UnmarshalEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, event.EventID, got.EventID)

	_, err = UnmarshalEvent([]byte(`{broken`))
	assert.Error(t, err)
	_, err = UnmarshalEvent([]byte(`{"event_id":"e-1","data":{}}`))
	assert.ErrorIs(t, err, errNoEventType)
}

// --- Producer.Publish ---

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestProducer_Publish_KeysByAggregateAndSetsHeaders(t *testing.T) {
	w := &recordingWriter{}
	p := &Producer{writer: w, logger: testLogger()}

	ctx := logger.WithCorrelationID(context.Background(), "corr-1")
	event, err := NewEvent(ctx, "recovery.stage_changed", "case-9", "recovery_case", "svc", map[string]string{"to": "responded"})
	require.NoError(t, err)

	require.NoError(t, p.Publish(ctx, "reputation.recovery.stage_changed", event))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "reputation.recovery.stage_changed", msg.Topic)
	assert.Equal(t, "case-9", string(msg.Key))

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "recovery.stage_changed", headers["event_type"])
	assert.Equal(t, "corr-1", headers["correlation_id"])
}

func TestProducer_Publish_WrapsWriterError(t *testing.T) {
	p := &Producer{writer: &recordingWriter{err: errors.New("leader not available")}, logger: testLogger()}

	event, err := NewEvent(context.Background(), "review.received", "rev-1", "review", "svc", nil)
	require.NoError(t, err)

	err = p.Publish(context.Background(), "reputation.review.received", event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reputation.review.received")
	assert.Contains(t, err.Error(), "leader not available")
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "reputation.crisis.detected", Topic("crisis", "detected"))
	assert.Equal(t, "reputation.dlq.reputation.crisis.detected", DLQTopic(Topic("crisis", "detected")))
}

func TestProducerConfig_Defaults(t *testing.T) {
	cfg := ProducerConfig{Brokers: []string{"localhost:19092"}, BatchSize: 5}.withDefaults()
	assert.Equal(t, 5, cfg.BatchSize)
	assert.Equal(t, defaultBatchTimeout, cfg.BatchTimeout)
	assert.Equal(t, defaultWriteTimeout, cfg.WriteTimeout)
}

func TestNewProducer_DoesNotDial(t *testing.T) {
	p := NewProducer(ProducerConfig{Brokers: []string{"localhost:19092"}}, nil)
	assert.Equal(t, []string{"localhost:19092"}, p.brokers)
	assert.NoError(t, p.Close())
}

func TestPingBrokers(t *testing.T) {
	err := PingBrokers(t.Context(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no brokers configured")

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	err = PingBrokers(ctx, []string{"127.0.0.1:1", "127.0.0.1:2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "127.0.0.1:1")
	assert.Contains(t, err.Error(), "127.0.0.1:2")
}
