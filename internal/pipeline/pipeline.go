package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/tweet-collection-etl/internal/domain"
	"github.com/couchcryptid/tweet-collection-etl/internal/observability"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// BatchExtractor reads up to batchSize decoded records from the collection.
// It returns io.EOF once the collection is exhausted.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.Record, error)
}

// Transformer converts a record into a publishable document.
type Transformer interface {
	Transform(ctx context.Context, rec domain.Record) (domain.Document, error)
}

// BatchLoader writes multiple documents to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, docs []domain.Document) error
}

// Pipeline orchestrates the extract-transform-load loop.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	done        atomic.Bool
	batchSize   int
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
	}
}

// CheckReadiness returns nil if the pipeline has loaded at least one batch,
// or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not loaded any documents yet")
	}
	return nil
}

// Done reports whether the collection has been read to the end.
func (p *Pipeline) Done() bool {
	return p.done.Load()
}

// Run executes the batch ETL loop until the collection is exhausted or the
// context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	backoff := initialBackoff

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff) {
			return nil
		}
	}
}

// processBatch runs one extract-transform-load cycle. Returns false if the pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration) bool {
	start := time.Now()

	batch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if errors.Is(err, io.EOF) {
		p.done.Store(true)
		p.logger.Info("collection exhausted")
		return false
	}
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff)
	}

	if len(batch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.BatchSize.Observe(float64(len(batch)))
	*backoff = initialBackoff

	loaded, ok := p.transformAndLoad(ctx, batch, backoff)
	if !ok {
		return false
	}

	if loaded > 0 {
		p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
		p.ready.Store(true)
	}
	return true
}

// transformAndLoad transforms each record in the batch and loads the
// successes, retrying the load with backoff until it succeeds. Returns the
// number of loaded documents and false if the pipeline should stop.
func (p *Pipeline) transformAndLoad(ctx context.Context, batch []domain.Record, backoff *time.Duration) (int, bool) {
	docs := make([]domain.Document, 0, len(batch))

	for _, rec := range batch {
		doc, err := p.transformer.Transform(ctx, rec)
		if err != nil {
			if ctx.Err() != nil {
				return 0, false
			}
			p.logger.Warn("transform failed, skipping record", "error", err, "id", rec.ID())
			p.metrics.TransformErrors.Inc()
			continue
		}
		docs = append(docs, doc)
	}

	if len(docs) == 0 {
		return 0, true
	}

	for {
		err := p.loader.LoadBatch(ctx, docs)
		if err == nil {
			break
		}
		p.logger.Error("load batch failed", "error", err, "batch_size", len(docs))
		if !p.backoffOrStop(ctx, backoff) {
			return 0, false
		}
	}
	*backoff = initialBackoff

	p.metrics.DocumentsProduced.Add(float64(len(docs)))
	return len(docs), true
}

// backoffOrStop checks for context cancellation, sleeps with the current backoff,
// and advances the backoff. Returns false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff, maxBackoff)
	return true
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
