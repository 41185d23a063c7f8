package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/urfave/cli/v2"

	"github.com/couchcryptid/tweet-collection-etl/internal/collection"
	"github.com/couchcryptid/tweet-collection-etl/internal/domain"
	"github.com/couchcryptid/tweet-collection-etl/internal/observability"
)

func sourceFlags(extra ...cli.Flag) []cli.Flag {
	return append(extra,
		&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "json", Usage: "Line format: json|tsv"},
		&cli.StringFlag{Name: "include", Aliases: []string{"i"}, Usage: "Comma-separated file name patterns"},
		&cli.StringFlag{Name: "manifest", Aliases: []string{"m"}, Usage: "YAML collection manifest (overrides path, format and include)"},
	)
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp() *cli.App {
	app := &cli.App{
		Name:    "inspect",
		Usage:   "Decode and summarize tweet capture files",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: "warn", Usage: "debug|info|warn|error"},
		},
		Commands: []*cli.Command{
			segmentsCmd(),
			decodeCmd(),
			statsCmd(),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// segmentsCmd lists the files a collection resolves to.
func segmentsCmd() *cli.Command {
	return &cli.Command{
		Name:      "segments",
		Usage:     "List the capture files in a collection",
		ArgsUsage: "[path]",
		Flags:     sourceFlags(),
		Action: func(c *cli.Context) error {
			paths, _, err := resolveSource(c)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(c.App.Writer, p)
			}
			return nil
		},
	}
}

// decodeCmd prints normalized documents as JSON lines.
func decodeCmd() *cli.Command {
	return &cli.Command{
		Name:      "decode",
		Usage:     "Print decoded records as JSON lines",
		ArgsUsage: "[path]",
		Flags: sourceFlags(
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Stop after this many records (0 = all)"},
			&cli.BoolFlag{Name: "raw", Usage: "Print the source line instead of the normalized document"},
		),
		Action: func(c *cli.Context) error {
			paths, format, err := resolveSource(c)
			if err != nil {
				return err
			}
			logger := cliLogger(c)
			limit := c.Int("limit")
			enc := json.NewEncoder(c.App.Writer)

			printed := 0
			for _, path := range paths {
				done, err := decodeSegment(path, format, logger, func(rec domain.Record) error {
					printed++
					if c.Bool("raw") && rec.RawJSON() != "" {
						_, err := fmt.Fprintln(c.App.Writer, rec.RawJSON())
						return err
					}
					return enc.Encode(domain.Document{Record: rec})
				}, func() bool { return limit > 0 && printed >= limit })
				if err != nil {
					return err
				}
				if done {
					break
				}
			}
			return nil
		},
	}
}

// statsCmd scans files concurrently and reports per-file decode counts.
func statsCmd() *cli.Command {
	return &cli.Command{
		Name:      "stats",
		Usage:     "Report per-file line, decode and skip counts",
		ArgsUsage: "[path]",
		Flags: sourceFlags(
			&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Value: runtime.NumCPU(), Usage: "Files read in parallel"},
		),
		Action: func(c *cli.Context) error {
			paths, format, err := resolveSource(c)
			if err != nil {
				return err
			}

			var (
				mu       sync.Mutex
				langs    = map[string]int64{}
				retweets int64
			)
			summaries, err := collection.Scan(c.Context, paths, format, c.Int("workers"),
				func(_ string, rec domain.Record) error {
					lang := rec.Lang().OrElse("und")
					mu.Lock()
					langs[lang]++
					if rec.IsRetweet() {
						retweets++
					}
					mu.Unlock()
					return nil
				},
				collection.WithLogger(cliLogger(c)),
			)
			if err != nil {
				return err
			}
			return writeReport(c.App.Writer, summaries, langs, retweets)
		},
	}
}

type fileReport struct {
	Path    string           `json:"path"`
	Lines   int64            `json:"lines"`
	Bytes   int64            `json:"bytes"`
	Decoded int64            `json:"decoded"`
	Skipped map[string]int64 `json:"skipped,omitempty"`
	Error   string           `json:"error,omitempty"`
}

type report struct {
	Files    []fileReport     `json:"files"`
	Decoded  int64            `json:"decoded"`
	Retweets int64            `json:"retweets"`
	Skipped  map[string]int64 `json:"skipped"`
	Langs    map[string]int64 `json:"langs"`
	Failed   int              `json:"failed_files"`
}

func writeReport(w io.Writer, summaries []collection.Summary, langs map[string]int64, retweets int64) error {
	r := report{Retweets: retweets, Skipped: map[string]int64{}, Langs: langs}
	for _, s := range summaries {
		fr := fileReport{
			Path:    s.Path,
			Lines:   s.Stats.Lines,
			Bytes:   s.Stats.Bytes,
			Decoded: s.Stats.Decoded,
			Skipped: s.Stats.Skipped,
		}
		if s.Err != nil {
			fr.Error = s.Err.Error()
			r.Failed++
		}
		r.Decoded += s.Stats.Decoded
		for reason, n := range s.Stats.Skipped {
			r.Skipped[reason] += n
		}
		r.Files = append(r.Files, fr)
	}
	sort.Slice(r.Files, func(i, j int) bool { return r.Files[i].Path < r.Files[j].Path })

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// decodeSegment feeds every record of one file to fn until stop reports
// true. It returns true when stop ended the read.
func decodeSegment(path string, format collection.Format, logger *slog.Logger, fn func(domain.Record) error, stop func() bool) (bool, error) {
	s, err := collection.OpenSegment(path, format, collection.WithLogger(logger))
	if err != nil {
		return false, err
	}
	defer s.Close()

	for !stop() {
		rec, err := s.Next()
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if err := fn(rec); err != nil {
			return false, err
		}
	}
	return true, nil
}

// resolveSource turns the positional path or --manifest into a file list.
func resolveSource(c *cli.Context) ([]string, collection.Format, error) {
	if manifestPath := c.String("manifest"); manifestPath != "" {
		m, err := collection.LoadManifest(manifestPath)
		if err != nil {
			return nil, "", err
		}
		paths, err := m.Segments()
		return paths, m.Format, err
	}

	if c.NArg() == 0 {
		return nil, "", errors.New("a collection path or --manifest is required")
	}
	format, err := collection.ParseFormat(c.String("format"))
	if err != nil {
		return nil, "", err
	}
	paths, err := collection.Discover(c.Args().First(), parsePatterns(c.String("include")))
	return paths, format, err
}

func parsePatterns(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func cliLogger(c *cli.Context) *slog.Logger {
	return observability.NewLoggerTo(c.App.ErrWriter, c.String("log-level"), "text")
}
