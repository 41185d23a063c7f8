package domain

import "errors"

// Decode failures. All three are line-level: the caller skips the line and
// moves on to the next one.
var (
	// ErrMalformed marks input that is not a well-formed record: invalid JSON,
	// a missing or mistyped required field, or a TSV line with too few columns.
	ErrMalformed = errors.New("malformed record")

	// ErrControlRecord marks a stream-control event (e.g. a delete notice)
	// that carries no post.
	ErrControlRecord = errors.New("control record")

	// ErrBadTimestamp marks a created_at value that does not match the
	// capture timestamp layout.
	ErrBadTimestamp = errors.New("unparseable timestamp")
)

// Skip reasons used as metric label values.
const (
	ReasonMalformed    = "malformed"
	ReasonControl      = "control"
	ReasonBadTimestamp = "bad_timestamp"
	ReasonUnknown      = "unknown"
)

// SkipReason maps a decode error to its label value.
func SkipReason(err error) string {
	switch {
	case errors.Is(err, ErrMalformed):
		return ReasonMalformed
	case errors.Is(err, ErrControlRecord):
		return ReasonControl
	case errors.Is(err, ErrBadTimestamp):
		return ReasonBadTimestamp
	default:
		return ReasonUnknown
	}
}
