package collection

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/couchcryptid/tweet-collection-etl/internal/domain"
	"github.com/couchcryptid/tweet-collection-etl/internal/observability"
)

// Extractor reads records from a list of capture files in order, one file
// at a time. A file that fails mid-read is logged and abandoned; the
// extractor moves on to the next one.
type Extractor struct {
	paths   []string
	format  Format
	logger  *slog.Logger
	metrics *observability.Metrics

	next    int
	current *Segment
}

// NewExtractor creates an Extractor over paths.
func NewExtractor(paths []string, format Format, logger *slog.Logger, metrics *observability.Metrics) *Extractor {
	return &Extractor{
		paths:   paths,
		format:  format,
		logger:  logger,
		metrics: metrics,
	}
}

// ExtractBatch returns up to batchSize records. It returns io.EOF once every
// file has been read and no records remain.
func (e *Extractor) ExtractBatch(ctx context.Context, batchSize int) ([]domain.Record, error) {
	batch := make([]domain.Record, 0, batchSize)

	for len(batch) < batchSize {
		if err := ctx.Err(); err != nil {
			return batch, err
		}

		if e.current == nil && !e.openNext() {
			break
		}

		rec, err := e.current.Next()
		if err != nil {
			e.finishSegment(err)
			continue
		}
		e.metrics.RecordsDecoded.Inc()
		batch = append(batch, rec)
	}

	if len(batch) == 0 {
		return nil, io.EOF
	}
	return batch, nil
}

// openNext opens the next readable file. Returns false when none remain.
func (e *Extractor) openNext() bool {
	for e.next < len(e.paths) {
		path := e.paths[e.next]
		e.next++

		s, err := OpenSegment(path, e.format, WithLogger(e.logger), WithSkipObserver(e.metrics))
		if err != nil {
			e.logger.Error("open segment failed", "path", path, "error", err)
			e.metrics.SegmentErrors.Inc()
			continue
		}
		e.metrics.SegmentsOpened.Inc()
		e.logger.Info("segment opened", "path", path)
		e.current = s
		return true
	}
	return false
}

func (e *Extractor) finishSegment(err error) {
	s := e.current
	e.current = nil
	_ = s.Close()

	stats := s.Stats()
	if !errors.Is(err, io.EOF) {
		e.logger.Error("segment read failed, skipping rest of file",
			"path", s.Path(), "error", err, "lines", stats.Lines)
		e.metrics.SegmentErrors.Inc()
		return
	}
	e.logger.Info("segment finished",
		"path", s.Path(),
		"lines", stats.Lines,
		"decoded", stats.Decoded,
		"skipped", stats.Skipped,
	)
}

// Close releases the file currently being read, if any.
func (e *Extractor) Close() error {
	if e.current == nil {
		return nil
	}
	err := e.current.Close()
	e.current = nil
	return err
}
