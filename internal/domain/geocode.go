package domain

import (
	"context"
	"log/slog"
)

// Place sources.
const (
	PlaceSourceReverse  = "reverse"
	PlaceSourceOriginal = "original"
	PlaceSourceFailed   = "failed"
)

// EnrichWithGeocoding attaches place details to a geotagged document.
// Documents without coordinates, or a nil geocoder, pass through unchanged.
// A geocoder error marks the place as failed instead of dropping the document.
func EnrichWithGeocoding(ctx context.Context, doc Document, geocoder Geocoder, logger *slog.Logger) Document {
	if geocoder == nil {
		return doc
	}
	lat, lon, ok := doc.Record.Coordinates()
	if !ok {
		return doc
	}

	result, err := geocoder.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		logger.Warn("reverse geocoding failed",
			"record_id", doc.Record.ID(),
			"lat", lat,
			"lon", lon,
			"error", err,
		)
		doc.Place = &Place{Source: PlaceSourceFailed}
		return doc
	}
	if result.FormattedAddress == "" {
		doc.Place = &Place{Source: PlaceSourceOriginal}
		return doc
	}
	doc.Place = &Place{
		FormattedAddress: result.FormattedAddress,
		Name:             result.PlaceName,
		Confidence:       result.Confidence,
		Source:           PlaceSourceReverse,
	}
	return doc
}
