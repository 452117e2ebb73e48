package iopkg

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec identifies the stream encoding of an input file.
type Codec string

const (
	CodecPlain Codec = "plain"
	CodecGzip  Codec = "gzip"
	CodecZstd  Codec = "zstd"
	CodecLZ4   Codec = "lz4"
)

// maxLine bounds a single line. Nanopore reads can run to megabases on one fastq line.
const maxLine = 256 << 20

// CodecFor picks the codec from the file suffix.
func CodecFor(uri string) Codec {
	lower := strings.ToLower(uri)
	switch {
	case strings.HasSuffix(lower, ".gz"), strings.HasSuffix(lower, ".gzip"):
		return CodecGzip
	case strings.HasSuffix(lower, ".zst"), strings.HasSuffix(lower, ".zstd"):
		return CodecZstd
	case strings.HasSuffix(lower, ".lz4"):
		return CodecLZ4
	default:
		return CodecPlain
	}
}

// LineSource iterates the lines of a stream without loading it into memory.
// Text never includes the trailing newline or carriage return.
type LineSource interface {
	Scan() bool
	Text() string
	Err() error
	Close() error
}

type lineSource struct {
	sc      *bufio.Scanner
	closers []io.Closer
}

func (l *lineSource) Scan() bool { return l.sc.Scan() }

func (l *lineSource) Text() string { return strings.TrimSuffix(l.sc.Text(), "\r") }

func (l *lineSource) Err() error { return l.sc.Err() }

func (l *lineSource) Close() error {
	var first error
	for i := len(l.closers) - 1; i >= 0; i-- {
		if err := l.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NewLineSource wraps rc with the decoder for c. Closing the source closes rc.
func NewLineSource(rc io.ReadCloser, c Codec) (LineSource, error) {
	ls := &lineSource{closers: []io.Closer{rc}}
	var r io.Reader = rc
	switch c {
	case CodecGzip:
		gr, err := gzip.NewReader(rc)
		if err != nil {
			_ = rc.Close()
			return nil, err
		}
		ls.closers = append(ls.closers, gr)
		r = gr
	case CodecZstd:
		zr, err := zstd.NewReader(rc)
		if err != nil {
			_ = rc.Close()
			return nil, err
		}
		zrc := zr.IOReadCloser()
		ls.closers = append(ls.closers, zrc)
		r = zrc
	case CodecLZ4:
		r = lz4.NewReader(rc)
	}
	sc := bufio.NewScanner(bufio.NewReaderSize(r, 1<<20))
	sc.Buffer(make([]byte, 64*1024), maxLine)
	ls.sc = sc
	return ls, nil
}

// OpenLines opens uri (file:// or s3://) and returns a LineSource decoding it by suffix.
func OpenLines(ctx context.Context, uri string) (LineSource, error) {
	rc, err := OpenReader(ctx, uri)
	if err != nil {
		return nil, err
	}
	return NewLineSource(rc, CodecFor(uri))
}

// SliceSource is a LineSource over in-memory lines, used by tests and callers that already hold lines.
type SliceSource struct {
	lines []string
	i     int
}

func NewSliceSource(lines []string) *SliceSource { return &SliceSource{lines: lines, i: -1} }

func (s *SliceSource) Scan() bool {
	if s.i+1 >= len(s.lines) {
		return false
	}
	s.i++
	return true
}

func (s *SliceSource) Text() string { return strings.TrimSuffix(s.lines[s.i], "\r") }
func (s *SliceSource) Err() error   { return nil }
func (s *SliceSource) Close() error { return nil }
