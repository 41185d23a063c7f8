// Package segment reads capture files line by line, decompressing gzip
// segments on the fly.
package segment

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"
)

const (
	// GzipSuffix marks a compressed segment.
	GzipSuffix = ".gz"

	initialBufferSize = 512 * 1024
	maxLineSize       = 32 * 1024 * 1024
)

// Reader yields the lines of one segment file in order. It is not safe for
// concurrent use; open one Reader per goroutine.
type Reader struct {
	path   string
	file   *os.File
	gz     *gzip.Reader
	br     *bufio.Reader
	buf    []byte
	lines  int64
	bytes  int64
	err    error
	closed bool
}

// Open opens the segment at path. Paths ending in ".gz" are decompressed.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open segment: %w", err)
	}

	var src io.Reader = f
	var gz *gzip.Reader
	if IsCompressed(path) {
		gz, err = gzip.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("open gzip segment %s: %w", path, err)
		}
		src = gz
	}

	br := bufio.NewReaderSize(src, initialBufferSize)

	return &Reader{path: path, file: f, gz: gz, br: br}, nil
}

// IsCompressed reports whether path names a gzip segment.
func IsCompressed(path string) bool {
	return strings.HasSuffix(path, GzipSuffix)
}

// NextLine returns the next line without its terminator. At the end of the
// segment it returns io.EOF and releases the underlying file. Any other error
// means the rest of the segment is unreadable; a line cut off by that error is
// never returned.
func (r *Reader) NextLine() (string, error) {
	if r.err != nil {
		return "", r.err
	}
	if r.closed {
		return "", os.ErrClosed
	}

	b, err := r.readLine()
	if err != nil {
		if errors.Is(err, io.EOF) {
			r.err = io.EOF
		} else {
			r.err = fmt.Errorf("read segment %s: %w", r.path, err)
		}
		if cerr := r.Close(); cerr != nil && r.err == io.EOF {
			r.err = cerr
		}
		return "", r.err
	}

	r.lines++
	r.bytes += int64(len(b)) + 1
	if utf8.Valid(b) {
		return string(b), nil
	}
	return strings.ToValidUTF8(string(b), string(utf8.RuneError)), nil
}

// readLine reads up to the next '\n' and strips the terminator along with a
// trailing '\r'. An unterminated last line is returned only when the stream
// ended cleanly.
func (r *Reader) readLine() ([]byte, error) {
	r.buf = r.buf[:0]
	for {
		chunk, err := r.br.ReadSlice('\n')
		if len(r.buf)+len(chunk) > maxLineSize {
			return nil, bufio.ErrTooLong
		}
		r.buf = append(r.buf, chunk...)

		switch {
		case err == nil:
			return trimEOL(r.buf), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(r.buf) > 0:
			return trimEOL(r.buf), nil
		default:
			return nil, err
		}
	}
}

func trimEOL(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\n' {
		b = b[:n-1]
	}
	if n := len(b); n > 0 && b[n-1] == '\r' {
		b = b[:n-1]
	}
	return b
}

// Close releases the segment. Calling it more than once is a no-op.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var first error
	if r.gz != nil {
		if err := r.gz.Close(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			first = err
		}
	}
	if err := r.file.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

// Path returns the segment path.
func (r *Reader) Path() string { return r.path }

// Stats returns the number of lines and uncompressed bytes read so far.
func (r *Reader) Stats() (lines, bytes int64) {
	return r.lines, r.bytes
}
