package pipeline

import (
	"context"
	"crypto/rand"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/oklog/ulid/v2"

	"github.com/couchcryptid/tweet-collection-etl/internal/domain"
)

// RecordTransformer implements Transformer: it stamps run metadata onto each
// record and, when a geocoder is configured, reverse-geocodes geotagged ones.
type RecordTransformer struct {
	geocoder domain.Geocoder
	clock    clockwork.Clock
	runID    string
	logger   *slog.Logger
}

// NewTransformer creates a RecordTransformer. Pass a nil geocoder to disable
// geocoding enrichment and a nil clock to use the wall clock.
func NewTransformer(geocoder domain.Geocoder, clock clockwork.Clock, runID string, logger *slog.Logger) *RecordTransformer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RecordTransformer{
		geocoder: geocoder,
		clock:    clock,
		runID:    runID,
		logger:   logger,
	}
}

func (t *RecordTransformer) Transform(ctx context.Context, rec domain.Record) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return domain.Document{}, err
	}

	doc := domain.Document{
		Record:      rec,
		RunID:       t.runID,
		ProcessedAt: t.clock.Now().UTC(),
	}
	return domain.EnrichWithGeocoding(ctx, doc, t.geocoder, t.logger), nil
}

// NewRunID returns a sortable identifier for one pass over a collection.
func NewRunID(clock clockwork.Clock) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(clock.Now()), entropy).String()
}
