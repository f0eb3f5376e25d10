package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/beach-query-service/internal/config"
	"github.com/couchcryptid/beach-query-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Reader consumes request messages from a Kafka topic as part of a consumer
// group. It implements pipeline.BatchExtractor.
type Reader struct {
	reader        *kafkago.Reader
	flushInterval time.Duration
	logger        *slog.Logger
}

// NewReader creates a Kafka consumer for the configured request topic.
// Offsets are committed explicitly through each message's Commit callback.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		GroupID:  cfg.KafkaGroupID,
		Topic:    cfg.KafkaRequestTopic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Reader{
		reader:        r,
		flushInterval: cfg.BatchFlushInterval,
		logger:        logger.With("component", "kafka-reader"),
	}
}

// ExtractBatch blocks until one message is available, then keeps collecting
// until batchSize messages are buffered or the flush interval elapses.
func (r *Reader) ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawMessage, error) {
	first, err := r.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}

	batch := make([]domain.RawMessage, 0, batchSize)
	batch = append(batch, r.toRaw(first))

	flushCtx, cancel := context.WithTimeout(ctx, r.flushInterval)
	defer cancel()

	for len(batch) < batchSize {
		msg, err := r.reader.FetchMessage(flushCtx)
		if err != nil {
			if flushCtx.Err() == nil {
				// Hand over what was fetched; the next call surfaces the error again.
				r.logger.Warn("fetch failed mid-batch", "error", err, "buffered", len(batch))
			}
			break
		}
		batch = append(batch, r.toRaw(msg))
	}
	return batch, nil
}

func (r *Reader) toRaw(msg kafkago.Message) domain.RawMessage {
	raw := mapMessageToRaw(msg)
	raw.Commit = func(ctx context.Context) error {
		return r.reader.CommitMessages(ctx, msg)
	}
	return raw
}

func (r *Reader) Close() error {
	return r.reader.Close()
}

// mapMessageToRaw converts a Kafka message into the transport-neutral form.
func mapMessageToRaw(msg kafkago.Message) domain.RawMessage {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return domain.RawMessage{
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   headers,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
	}
}
