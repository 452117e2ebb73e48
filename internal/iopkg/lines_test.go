package iopkg

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/require"
)

const sample = "@r1 runid=x\nACGT\n+\n!!!!\r\nlast"

func collect(t *testing.T, ls LineSource) []string {
	t.Helper()
	defer ls.Close()
	var out []string
	for ls.Scan() {
		out = append(out, ls.Text())
	}
	require.NoError(t, ls.Err())
	return out
}

func writeEncoded(t *testing.T, name string, c Codec) string {
	t.Helper()
	var buf bytes.Buffer
	switch c {
	case CodecGzip:
		w := gzip.NewWriter(&buf)
		_, err := w.Write([]byte(sample))
		require.NoError(t, err)
		require.NoError(t, w.Close())
	case CodecZstd:
		w, err := zstd.NewWriter(&buf)
		require.NoError(t, err)
		_, err = w.Write([]byte(sample))
		require.NoError(t, err)
		require.NoError(t, w.Close())
	case CodecLZ4:
		w := lz4.NewWriter(&buf)
		_, err := w.Write([]byte(sample))
		require.NoError(t, err)
		require.NoError(t, w.Close())
	default:
		buf.WriteString(sample)
	}
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, buf.Bytes(), 0o644))
	return p
}

func TestCodecFor(t *testing.T) {
	cases := map[string]Codec{
		"reads.fastq":        CodecPlain,
		"reads.fastq.gz":     CodecGzip,
		"SUMMARY.TXT.GZ":     CodecGzip,
		"index.txt.zst":      CodecZstd,
		"index.txt.zstd":     CodecZstd,
		"ids.lz4":            CodecLZ4,
		"s3://b/k/ids.gzip":  CodecGzip,
		"weird.gz.txt":       CodecPlain,
	}
	for in, want := range cases {
		require.Equal(t, want, CodecFor(in), in)
	}
}

func TestOpenLinesAllCodecs(t *testing.T) {
	want := []string{"@r1 runid=x", "ACGT", "+", "!!!!", "last"}
	for name, c := range map[string]Codec{
		"in.txt":     CodecPlain,
		"in.txt.gz":  CodecGzip,
		"in.txt.zst": CodecZstd,
		"in.txt.lz4": CodecLZ4,
	} {
		p := writeEncoded(t, name, c)
		ls, err := OpenLines(context.Background(), p)
		require.NoError(t, err, name)
		require.Equal(t, want, collect(t, ls), name)
	}
}

func TestOpenLinesBadGzip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "broken.gz")
	require.NoError(t, os.WriteFile(p, []byte("not gzip at all"), 0o644))
	_, err := OpenLines(context.Background(), p)
	require.Error(t, err)
}

func TestOpenLinesS3Gzip(t *testing.T) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, _ = w.Write([]byte("a\nb\n"))
	require.NoError(t, w.Close())
	f := &fakeS3{getBody: buf.Bytes()}
	defer withFakeS3(t, f)()

	ls, err := OpenLines(context.Background(), "s3://runs/run1/index.gz")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, collect(t, ls))
}

func TestSliceSource(t *testing.T) {
	require.Equal(t, []string{"x", "y"}, collect(t, NewSliceSource([]string{"x", "y\r"})))
	require.Empty(t, collect(t, NewSliceSource(nil)))
}
