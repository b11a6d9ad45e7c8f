package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	segkafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/aster/pkg/kafka"
	"github.com/Ramsey-B/aster/pkg/models"
)

type memoryWriter struct {
	messages []segkafka.Message
	err      error
	closed   bool
}

func (w *memoryWriter) WriteMessages(_ context.Context, msgs ...segkafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *memoryWriter) Close() error {
	w.closed = true
	return nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestParseConfig(t *testing.T) {
	cfg := kafka.ParseConfig(" broker-1:9092, broker-2:9092 ,", "")
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Brokers)
	assert.Equal(t, kafka.DefaultRunEventsTopic, cfg.Topic)
	assert.True(t, cfg.Enabled())

	assert.False(t, kafka.ParseConfig("", "events").Enabled())
}

func TestPublishRunEvent(t *testing.T) {
	writer := &memoryWriter{}
	producer := kafka.NewProducerWithWriter(writer, "events", testLogger())
	runID := uuid.New()

	err := producer.PublishRunEvent(context.Background(), models.RunEvent{
		RunID:     runID,
		Stage:     "approval",
		Status:    models.RunStatusSucceeded,
		Timestamp: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		Approval:  models.ApprovalStateExpired,
	})
	require.NoError(t, err)
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, runID.String(), string(msg.Key))

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "approval.succeeded", headers["type"])
	assert.Equal(t, runID.String(), headers["run_id"])

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, "approval.succeeded", body["type"])
	assert.Equal(t, "EXPIRED", body["approval_state"])
	assert.Equal(t, runID.String(), body["run_id"])

	require.NoError(t, producer.Close())
	assert.True(t, writer.closed)
}

func TestPublishRunEvent_WriteError(t *testing.T) {
	writer := &memoryWriter{err: errors.New("leader not available")}
	producer := kafka.NewProducerWithWriter(writer, "events", testLogger())

	err := producer.PublishRunEvent(context.Background(), models.RunEvent{RunID: uuid.New(), Stage: "run", Status: models.RunStatusStarted})
	assert.EqualError(t, err, "leader not available")
}
