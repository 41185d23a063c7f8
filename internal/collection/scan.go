package collection

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/tweet-collection-etl/internal/domain"
)

// Summary is the outcome of reading one capture file to the end.
type Summary struct {
	Path  string
	Stats Stats
	Err   error
}

// Scan reads paths concurrently, at most workers files at a time, and calls
// fn for every decoded record. fn must be safe for concurrent use; an error
// from fn cancels the remaining work and is returned. Per-file read errors do
// not stop the scan and are reported in the matching Summary instead.
// Summaries are returned in the order of paths.
func Scan(ctx context.Context, paths []string, format Format, workers int, fn func(path string, rec domain.Record) error, opts ...Option) ([]Summary, error) {
	if workers < 1 {
		workers = 1
	}
	summaries := make([]Summary, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, path := range paths {
		summaries[i].Path = path
		g.Go(func() error {
			if ctx.Err() != nil {
				summaries[i].Err = ctx.Err()
				return nil
			}

			s, err := OpenSegment(path, format, opts...)
			if err != nil {
				summaries[i].Err = err
				return nil
			}
			defer s.Close()

			var fnErr error
			err = drain(s, func(rec domain.Record) error {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := fn(path, rec); err != nil {
					fnErr = err
					return err
				}
				return nil
			})
			summaries[i].Stats = s.Stats()
			summaries[i].Err = err
			return fnErr
		})
	}

	err := g.Wait()
	return summaries, err
}
