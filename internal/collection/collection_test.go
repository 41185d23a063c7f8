package collection

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/couchcryptid/tweet-collection-etl/internal/domain"
	"github.com/couchcryptid/tweet-collection-etl/internal/observability"
	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tweet(id int64) string {
	return fmt.Sprintf(`{"id_str":"%d","text":"post %d","created_at":"Fri Mar 29 11:03:41 +0000 2013",`+
		`"user":{"screen_name":"user%d","followers_count":1,"friends_count":2,"statuses_count":3}}`, id, id, id)
}

const deleteNotice = `{"delete":{"status":{"id":1,"id_str":"1","user_id":3}}}`

func writeLines(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	data := []byte(strings.Join(lines, "\n") + "\n")
	if strings.HasSuffix(name, ".gz") {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		_, err := zw.Write(data)
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		data = buf.Bytes()
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

type recordingObserver struct {
	reasons []string
}

func (o *recordingObserver) ObserveSkip(reason string) {
	o.reasons = append(o.reasons, reason)
}

// --- ParseFormat ---

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	f, err = ParseFormat(" tsv ")
	require.NoError(t, err)
	assert.Equal(t, FormatTSV, f)

	_, err = ParseFormat("xml")
	require.Error(t, err)
}

// --- Segment ---

func TestSegment_SkipsUndecodableLines(t *testing.T) {
	path := writeLines(t, t.TempDir(), "tweets.json",
		deleteNotice,
		"not json",
		tweet(10),
		`{"id_str":"11","text":"x","created_at":"yesterday","user":{"screen_name":"a","followers_count":0,"friends_count":0,"statuses_count":0}}`,
		"",
		tweet(12),
	)
	obs := &recordingObserver{}

	s, err := OpenSegment(path, FormatJSON, WithSkipObserver(obs))
	require.NoError(t, err)
	defer s.Close()

	rec, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "10", rec.ID())

	rec, err = s.Next()
	require.NoError(t, err)
	assert.Equal(t, "12", rec.ID())

	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)

	assert.Equal(t, []string{"control", "malformed", "bad_timestamp", "malformed"}, obs.reasons)

	stats := s.Stats()
	assert.Equal(t, int64(6), stats.Lines)
	assert.Equal(t, int64(2), stats.Decoded)
	assert.Equal(t, map[string]int64{"control": 1, "malformed": 2, "bad_timestamp": 1}, stats.Skipped)
}

func TestSegment_Gzip(t *testing.T) {
	path := writeLines(t, t.TempDir(), "tweets.json.gz", tweet(1), tweet(2))

	s, err := OpenSegment(path, FormatJSON)
	require.NoError(t, err)
	defer s.Close()

	var ids []string
	require.NoError(t, drain(s, func(r domain.Record) error {
		ids = append(ids, r.ID())
		return nil
	}))
	assert.Equal(t, []string{"1", "2"}, ids)
}

func TestSegment_OnlyControlRecords(t *testing.T) {
	path := writeLines(t, t.TempDir(), "deletes.json", deleteNotice, deleteNotice)

	s, err := OpenSegment(path, FormatJSON)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, int64(2), s.Stats().Skipped["control"])
}

func TestSegment_TSVMalformedIsLogged(t *testing.T) {
	path := writeLines(t, t.TempDir(), "tweets.tsv",
		"1\tonlythree\tcols",
		"2\tbob\tFri Mar 29 11:03:41 +0000 2013\thello\tworld",
	)
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn}))

	s, err := OpenSegment(path, FormatTSV, WithLogger(logger))
	require.NoError(t, err)
	defer s.Close()

	rec, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "2", rec.ID())
	assert.Equal(t, "hello world", rec.Text())

	assert.Contains(t, logs.String(), "malformed tsv line")
	assert.Contains(t, logs.String(), "onlythree")
}

func TestSegment_OpenErrors(t *testing.T) {
	_, err := OpenSegment(filepath.Join(t.TempDir(), "missing.json"), FormatJSON)
	require.Error(t, err)

	path := writeLines(t, t.TempDir(), "tweets.json", tweet(1))
	_, err = OpenSegment(path, Format("xml"))
	require.Error(t, err)
}

func TestSegment_CloseIsIdempotent(t *testing.T) {
	path := writeLines(t, t.TempDir(), "tweets.json", tweet(1))

	s, err := OpenSegment(path, FormatJSON)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

// --- Discover ---

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	writeLines(t, root, "b.json.gz", tweet(1))
	writeLines(t, root, "a.json", tweet(1))
	writeLines(t, root, "notes.txt", "x")
	writeLines(t, root, ".hidden.json", tweet(1))
	writeLines(t, root, filepath.Join("2013", "c.json"), tweet(1))
	writeLines(t, root, filepath.Join(".git", "d.json"), tweet(1))

	paths, err := Discover(root, []string{"*.json", "*.json.gz"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "2013", "c.json"),
		filepath.Join(root, "a.json"),
		filepath.Join(root, "b.json.gz"),
	}, paths)
}

func TestDiscover_NoPatternsMatchesEverything(t *testing.T) {
	root := t.TempDir()
	writeLines(t, root, "a.json", tweet(1))
	writeLines(t, root, "notes.txt", "x")

	paths, err := Discover(root, nil)
	require.NoError(t, err)
	assert.Len(t, paths, 2)
}

func TestDiscover_FileRoot(t *testing.T) {
	path := writeLines(t, t.TempDir(), "single.tsv", "x")

	paths, err := Discover(path, []string{"*.json"})
	require.NoError(t, err)
	assert.Equal(t, []string{path}, paths)
}

func TestDiscover_Errors(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "missing"), nil)
	require.Error(t, err)

	_, err = Discover(t.TempDir(), []string{"[bad"})
	require.Error(t, err)
}

// --- Manifest ---

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeLines(t, dir, filepath.Join("data", "a.tsv"), "x")
	path := writeLines(t, dir, "collection.yaml",
		"root: data",
		"include:",
		`  - "*.tsv"`,
		"format: tsv",
	)

	m, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "data"), m.Root)
	assert.Equal(t, FormatTSV, m.Format)

	segments, err := m.Segments()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "data", "a.tsv")}, segments)
}

func TestLoadManifest_DefaultsFormat(t *testing.T) {
	path := writeLines(t, t.TempDir(), "collection.yaml", "root: /srv/tweets")

	m, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/tweets", m.Root)
	assert.Equal(t, FormatJSON, m.Format)
}

func TestLoadManifest_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadManifest(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	noRoot := writeLines(t, dir, "noroot.yaml", "format: json")
	_, err = LoadManifest(noRoot)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "root")

	badFormat := writeLines(t, dir, "bad.yaml", "root: x", "format: csv")
	_, err = LoadManifest(badFormat)
	require.Error(t, err)

	notYAML := writeLines(t, dir, "broken.yaml", "root: [unclosed")
	_, err = LoadManifest(notYAML)
	require.Error(t, err)
}

// --- Extractor ---

func TestExtractor_BatchesAcrossSegments(t *testing.T) {
	dir := t.TempDir()
	a := writeLines(t, dir, "a.json", tweet(1), deleteNotice, tweet(2))
	b := writeLines(t, dir, "b.json.gz", tweet(3))
	metrics := observability.NewMetricsForTesting()

	e := NewExtractor([]string{a, b}, FormatJSON, discardLogger(), metrics)
	defer e.Close()

	batch, err := e.ExtractBatch(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids(batch))

	batch, err = e.ExtractBatch(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, ids(batch))

	_, err = e.ExtractBatch(context.Background(), 2)
	assert.ErrorIs(t, err, io.EOF)

	assert.InDelta(t, 3, testutil.ToFloat64(metrics.RecordsDecoded), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.SegmentsOpened), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.LinesSkipped.WithLabelValues("control")), 0)
}

func TestExtractor_SkipsUnreadableSegments(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.json")
	notGzip := writeLines(t, dir, "fake.json.gz", "plain text")
	good := writeLines(t, dir, "good.json", tweet(7))
	metrics := observability.NewMetricsForTesting()

	e := NewExtractor([]string{missing, notGzip, good}, FormatJSON, discardLogger(), metrics)
	defer e.Close()

	batch, err := e.ExtractBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"7"}, ids(batch))
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.SegmentErrors), 0)
}

func TestExtractor_TruncatedGzipYieldsOnlyCompleteRecords(t *testing.T) {
	const body = "hello world this is the full body of the post"
	var content bytes.Buffer
	for i := 0; i < 3000; i++ {
		fmt.Fprintf(&content, "%d\tuser%d\tFri Mar 29 11:03:41 +0000 2013\t%s\n", 100000+i, i, body)
	}
	var compressed bytes.Buffer
	zw := gzip.NewWriter(&compressed)
	_, err := zw.Write(content.Bytes())
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	data := compressed.Bytes()

	dir := t.TempDir()
	for _, cut := range []int{len(data) / 4, len(data) / 2, len(data) * 3 / 4, len(data) - 9} {
		path := filepath.Join(dir, fmt.Sprintf("cut-%d.tsv.gz", cut))
		require.NoError(t, os.WriteFile(path, data[:cut], 0o600))
		metrics := observability.NewMetricsForTesting()

		e := NewExtractor([]string{path}, FormatTSV, discardLogger(), metrics)
		var records []domain.Record
		for {
			batch, err := e.ExtractBatch(context.Background(), 500)
			if errors.Is(err, io.EOF) {
				break
			}
			require.NoError(t, err)
			records = append(records, batch...)
		}
		require.NoError(t, e.Close())

		assert.Less(t, len(records), 3000, "cut %d", cut)
		for _, rec := range records {
			require.Equal(t, body, rec.Text(), "cut %d: record %s", cut, rec.ID())
		}
		assert.InDelta(t, 1, testutil.ToFloat64(metrics.SegmentErrors), 0, "cut %d", cut)
	}
}

func TestExtractor_Empty(t *testing.T) {
	e := NewExtractor(nil, FormatJSON, discardLogger(), observability.NewMetricsForTesting())

	_, err := e.ExtractBatch(context.Background(), 10)
	assert.ErrorIs(t, err, io.EOF)
}

func TestExtractor_ContextCancelled(t *testing.T) {
	path := writeLines(t, t.TempDir(), "a.json", tweet(1))
	e := NewExtractor([]string{path}, FormatJSON, discardLogger(), observability.NewMetricsForTesting())
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.ExtractBatch(ctx, 10)
	assert.ErrorIs(t, err, context.Canceled)
}

// --- Scan ---

func TestScan(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := range 5 {
		paths = append(paths, writeLines(t, dir, fmt.Sprintf("%d.json", i), tweet(int64(i*10)), deleteNotice, tweet(int64(i*10+1))))
	}
	paths = append(paths, filepath.Join(dir, "missing.json"))

	var mu sync.Mutex
	seen := map[string]int{}
	summaries, err := Scan(context.Background(), paths, FormatJSON, 3, func(path string, rec domain.Record) error {
		mu.Lock()
		defer mu.Unlock()
		seen[filepath.Base(path)]++
		return nil
	})
	require.NoError(t, err)
	require.Len(t, summaries, 6)

	for i := range 5 {
		assert.Equal(t, paths[i], summaries[i].Path)
		require.NoError(t, summaries[i].Err)
		assert.Equal(t, int64(2), summaries[i].Stats.Decoded)
		assert.Equal(t, int64(1), summaries[i].Stats.Skipped["control"])
		assert.Equal(t, 2, seen[fmt.Sprintf("%d.json", i)])
	}
	require.Error(t, summaries[5].Err)
}

func TestScan_CallbackErrorStops(t *testing.T) {
	path := writeLines(t, t.TempDir(), "a.json", tweet(1), tweet(2))
	boom := errors.New("boom")

	_, err := Scan(context.Background(), []string{path}, FormatJSON, 1, func(string, domain.Record) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func ids(records []domain.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID()
	}
	return out
}
