package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/couchcryptid/beach-query-service/internal/config"
	"github.com/couchcryptid/beach-query-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer produces messages to a Kafka topic.
// It implements pipeline.BatchLoader and scheduler.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured response topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	return newWriter(cfg.KafkaBrokers, cfg.KafkaResponseTopic, logger)
}

// NewNotificationWriter creates a Kafka producer for the watch notification topic.
func NewNotificationWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	return newWriter(cfg.KafkaBrokers, cfg.KafkaNotificationTopic, logger)
}

func newWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger.With("component", "kafka-writer", "topic", topic)}
}

// LoadBatch publishes response documents in a single WriteMessages call.
func (w *Writer) LoadBatch(ctx context.Context, out []domain.OutputMessage) error {
	if len(out) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(out))
	for i := range out {
		msgs[i] = serializeToMessage(out[i])
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

// Publish writes a watch notification keyed by its ID.
func (w *Writer) Publish(ctx context.Context, n domain.Notification) error {
	msg, err := serializeNotification(n)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish notification %s: %w", n.ID, err)
	}
	w.logger.Debug("notification published", "notification_id", n.ID, "beach_id", n.BeachID)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage converts an output message. Headers are emitted in key
// order so the wire form is deterministic.
func serializeToMessage(out domain.OutputMessage) kafkago.Message {
	keys := make([]string, 0, len(out.Headers))
	for k := range out.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	headers := make([]kafkago.Header, 0, len(keys))
	for _, k := range keys {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(out.Headers[k])})
	}
	return kafkago.Message{Key: out.Key, Value: out.Value, Headers: headers}
}

// serializeNotification marshals a Notification into a Kafka message.
func serializeNotification(n domain.Notification) (kafkago.Message, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize notification: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(n.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "beach_id", Value: []byte(n.BeachID)},
			{Key: "created_at", Value: []byte(n.CreatedAt.Format(time.RFC3339))},
		},
	}, nil
}
