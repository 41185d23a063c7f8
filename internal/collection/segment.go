// Package collection turns capture files into a stream of decoded records.
package collection

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/couchcryptid/tweet-collection-etl/internal/adapter/segment"
	"github.com/couchcryptid/tweet-collection-etl/internal/domain"
)

// Format selects the line decoder for a capture file.
type Format string

const (
	FormatJSON Format = "json"
	FormatTSV  Format = "tsv"
)

// ParseFormat accepts "json" or "tsv", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatTSV:
		return f, nil
	default:
		return "", fmt.Errorf("unknown collection format %q", s)
	}
}

// SkipObserver is notified of every line the decoder rejects.
type SkipObserver interface {
	ObserveSkip(reason string)
}

// Option configures a Segment.
type Option func(*Segment)

// WithLogger sets the logger used to report rejected lines.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Segment) { s.logger = logger }
}

// WithSkipObserver reports rejected lines to o.
func WithSkipObserver(o SkipObserver) Option {
	return func(s *Segment) { s.observer = o }
}

// Stats summarizes what a Segment has read so far.
type Stats struct {
	Lines   int64
	Bytes   int64
	Decoded int64
	Skipped map[string]int64 // keyed by domain.SkipReason
}

// Segment yields decoded records from a single capture file. It is not safe
// for concurrent use; open one Segment per goroutine instead.
type Segment struct {
	reader   *segment.Reader
	format   Format
	decode   func(string) (domain.Record, error)
	logger   *slog.Logger
	observer SkipObserver

	decoded int64
	skipped map[string]int64
}

// OpenSegment opens path for reading with the decoder for format.
func OpenSegment(path string, format Format, opts ...Option) (*Segment, error) {
	var decode func(string) (domain.Record, error)
	switch format {
	case FormatJSON:
		decode = domain.DecodeJSON
	case FormatTSV:
		decode = domain.DecodeTSV
	default:
		return nil, fmt.Errorf("unknown collection format %q", format)
	}

	r, err := segment.Open(path)
	if err != nil {
		return nil, err
	}

	s := &Segment{
		reader:  r,
		format:  format,
		decode:  decode,
		logger:  slog.New(slog.DiscardHandler),
		skipped: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the file this segment reads.
func (s *Segment) Path() string { return s.reader.Path() }

// Next returns the next line that decodes into a Record. Lines that fail to
// decode are counted and skipped. At the end of the file Next returns io.EOF;
// read failures are returned as-is and end the segment.
func (s *Segment) Next() (domain.Record, error) {
	for {
		line, err := s.reader.NextLine()
		if err != nil {
			return domain.Record{}, err
		}

		rec, err := s.decode(line)
		if err == nil {
			s.decoded++
			return rec, nil
		}
		s.skip(line, err)
	}
}

func (s *Segment) skip(line string, err error) {
	reason := domain.SkipReason(err)
	s.skipped[reason]++
	if s.observer != nil {
		s.observer.ObserveSkip(reason)
	}

	if s.format == FormatTSV && errors.Is(err, domain.ErrMalformed) {
		s.logger.Warn("malformed tsv line, skipping",
			"path", s.reader.Path(),
			"error", err,
			"line", line,
		)
		return
	}
	s.logger.Debug("line skipped", "path", s.reader.Path(), "reason", reason, "error", err)
}

// Stats returns a snapshot of the counters for this segment.
func (s *Segment) Stats() Stats {
	lines, bytes := s.reader.Stats()
	skipped := make(map[string]int64, len(s.skipped))
	for k, v := range s.skipped {
		skipped[k] = v
	}
	return Stats{Lines: lines, Bytes: bytes, Decoded: s.decoded, Skipped: skipped}
}

// Close releases the underlying file. It is safe to call more than once.
func (s *Segment) Close() error {
	return s.reader.Close()
}

// drain reads the segment to the end, calling fn for each record.
func drain(s *Segment, fn func(domain.Record) error) error {
	for {
		rec, err := s.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}
