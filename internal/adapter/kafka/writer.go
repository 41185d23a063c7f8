package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/tweet-collection-etl/internal/config"
	"github.com/couchcryptid/tweet-collection-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer produces messages to a Kafka topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchFlushInterval,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch serializes and publishes documents to the sink topic in a single
// WriteMessages call. Messages are keyed by record ID so that re-runs over
// the same collection land on the same partitions.
func (w *Writer) LoadBatch(ctx context.Context, docs []domain.Document) error {
	if len(docs) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(docs))
	for i := range docs {
		msg, err := serializeToMessage(docs[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d messages to %s: %w", len(msgs), w.writer.Topic, err)
	}
	w.logger.Debug("batch written", "topic", w.writer.Topic, "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a Document into a Kafka message.
func serializeToMessage(doc domain.Document) (kafkago.Message, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize document %s: %w", doc.Record.ID(), err)
	}
	headers := []kafkago.Header{
		{Key: "run_id", Value: []byte(doc.RunID)},
		{Key: "processed_at", Value: []byte(doc.ProcessedAt.Format(time.RFC3339))},
	}
	if lang, ok := doc.Record.Lang().Get(); ok {
		headers = append(headers, kafkago.Header{Key: "lang", Value: []byte(lang)})
	}
	return kafkago.Message{
		Key:     []byte(doc.Record.ID()),
		Value:   data,
		Headers: headers,
	}, nil
}
