package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

// DefaultRunEventsTopic receives pipeline lifecycle events
const DefaultRunEventsTopic = "aster.run-events"

// Config holds Kafka configuration
type Config struct {
	Brokers []string
	Topic   string
}

// ParseConfig parses a comma-separated broker string. An empty string yields
// no brokers, which disables publishing.
func ParseConfig(brokers string, topic string) Config {
	brokerList := []string{}
	for _, broker := range strings.Split(brokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokerList = append(brokerList, broker)
		}
	}
	if topic == "" {
		topic = DefaultRunEventsTopic
	}

	return Config{
		Brokers: brokerList,
		Topic:   topic,
	}
}

// Enabled reports whether any broker is configured
func (c Config) Enabled() bool {
	return len(c.Brokers) > 0
}

// MessageWriter is the subset of *kafka.Writer the producer uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes run events to Kafka
type Producer struct {
	writer MessageWriter
	logger ectologger.Logger
	topic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg Config, logger ectologger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		// Allow Kafka to auto-create the topic in dev environments when it doesn't exist yet.
		AllowAutoTopicCreation: true,
	}

	return NewProducerWithWriter(writer, cfg.Topic, logger)
}

// NewProducerWithWriter wraps an existing writer
func NewProducerWithWriter(writer MessageWriter, topic string, logger ectologger.Logger) *Producer {
	return &Producer{
		writer: writer,
		logger: logger,
		topic:  topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// RunEventMessage is the wire form of a run event
type RunEventMessage struct {
	Type string `json:"type"` // "run.started" | "seed.succeeded" | ...
	models.RunEvent

	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}

// PublishRunEvent publishes evt keyed by run id so every event of a run lands
// on the same partition in order
func (p *Producer) PublishRunEvent(ctx context.Context, evt models.RunEvent) error {
	ctx, span := tracing.StartSpan(ctx, "Kafka.PublishRunEvent")
	defer span.End()

	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", p.topic),
		attribute.String("messaging.operation", "publish"),
		attribute.String("run_id", evt.RunID.String()),
		attribute.String("stage", evt.Stage),
	)

	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	msg := RunEventMessage{
		Type:     fmt.Sprintf("%s.%s", evt.Stage, evt.Status),
		RunEvent: evt,
		TraceID:  tracing.TraceID(ctx),
		SpanID:   tracing.SpanID(ctx),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		tracing.Fail(span, err, "failed to marshal run event")
		return fmt.Errorf("failed to marshal run event: %w", err)
	}

	headers := []kafka.Header{
		{Key: "run_id", Value: []byte(evt.RunID.String())},
		{Key: "stage", Value: []byte(evt.Stage)},
		{Key: "type", Value: []byte(msg.Type)},
	}
	for key, value := range tracing.Headers(ctx) {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(evt.RunID.String()),
		Value:   data,
		Headers: headers,
	}); err != nil {
		tracing.Fail(span, err, "failed to publish run event")
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish run event to Kafka topic %s", p.topic)
		return err
	}

	span.SetStatus(codes.Ok, "run event published")
	p.logger.WithContext(ctx).Debugf("Published run event %s for run %s", msg.Type, evt.RunID)
	return nil
}
