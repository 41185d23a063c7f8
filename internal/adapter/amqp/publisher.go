// Package amqp publishes normalized documents to a RabbitMQ queue.
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/couchcryptid/tweet-collection-etl/internal/domain"
)

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher writes documents to a durable queue on the default exchange.
// It implements pipeline.BatchLoader.
type Publisher struct {
	conn   *amqp.Connection
	ch     channel
	queue  string
	logger *slog.Logger
}

// NewPublisher connects to url and declares queue as durable.
func NewPublisher(url, queue string, logger *slog.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	logger.Info("amqp publisher ready", "queue", queue)
	return &Publisher{conn: conn, ch: ch, queue: queue, logger: logger}, nil
}

// LoadBatch publishes each document as a persistent message. It stops at the
// first failure; the caller retries the whole batch.
func (p *Publisher) LoadBatch(ctx context.Context, docs []domain.Document) error {
	for i := range docs {
		msg, err := serializeToPublishing(docs[i])
		if err != nil {
			return err
		}
		if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
			return fmt.Errorf("publish %s to %s: %w", docs[i].Record.ID(), p.queue, err)
		}
	}
	p.logger.Debug("batch published", "queue", p.queue, "count", len(docs))
	return nil
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func serializeToPublishing(doc domain.Document) (amqp.Publishing, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("serialize document %s: %w", doc.Record.ID(), err)
	}
	headers := amqp.Table{"run_id": doc.RunID}
	if lang, ok := doc.Record.Lang().Get(); ok {
		headers["lang"] = lang
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    doc.Record.ID(),
		Timestamp:    doc.ProcessedAt,
		Headers:      headers,
		Body:         data,
	}, nil
}
