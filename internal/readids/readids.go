// Package readids collects the set of wanted read ids from a fastq, paf or flat id file.
package readids

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/yourorg/fast5-fetcher/internal/idset"
	iopkg "github.com/yourorg/fast5-fetcher/internal/iopkg"
	fmetrics "github.com/yourorg/fast5-fetcher/internal/metrics"
	"github.com/yourorg/fast5-fetcher/internal/normalize"
)

// Format selects how ids are framed in the source.
type Format int

const (
	FormatNone Format = iota
	FormatFastq
	FormatPAF
	FormatFlat
)

// ErrUnknownFormat is returned by ParseFormat for unrecognised names.
var ErrUnknownFormat = errors.New("unknown read id format")

func (f Format) String() string {
	switch f {
	case FormatFastq:
		return "fastq"
	case FormatPAF:
		return "paf"
	case FormatFlat:
		return "flat"
	default:
		return "none"
	}
}

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return FormatNone, nil
	case "fastq", "fq":
		return FormatFastq, nil
	case "paf":
		return FormatPAF, nil
	case "flat":
		return FormatFlat, nil
	}
	return FormatNone, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Stats summarises one pass over an id source.
type Stats struct {
	Lines   int64
	Records int64
	// Truncated counts a final fastq block with fewer than four lines. Its id is dropped.
	Truncated int64
}

// ctxEvery is how many lines pass between context checks.
const ctxEvery = 1 << 16

// fastqFold tracks the position inside the current 4-line block.
type fastqFold struct {
	pos     int
	pending string
}

func (f *fastqFold) step(line string) (string, bool) {
	f.pos++
	if f.pos == 1 {
		f.pending = normalize.HeaderID(line)
		return "", false
	}
	if f.pos < 4 {
		return "", false
	}
	f.pos = 0
	id := f.pending
	f.pending = ""
	return id, id != ""
}

// flatFold decides once, from the first non-blank line, whether ids carry the sigil.
type flatFold struct {
	decided bool
	strip   bool
}

func (f *flatFold) step(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}
	if !f.decided {
		f.decided = true
		f.strip = normalize.HasSigil(line)
	}
	if f.strip {
		line = strings.TrimPrefix(line, normalize.Sigil)
	}
	return line, line != ""
}

func pafStep(line string) (string, bool) {
	id := normalize.FirstField(line)
	return id, id != ""
}

// Read drains src, adding every id to dst. src is not closed.
func Read(ctx context.Context, src iopkg.LineSource, f Format, dst idset.Set, log *zap.Logger) (Stats, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var step func(string) (string, bool)
	var fq *fastqFold
	switch f {
	case FormatFastq:
		fq = &fastqFold{}
		step = fq.step
	case FormatPAF:
		step = pafStep
	case FormatFlat:
		step = (&flatFold{}).step
	default:
		return Stats{}, fmt.Errorf("%w: %v", ErrUnknownFormat, f)
	}

	var st Stats
	before := dst.Len()
	for src.Scan() {
		st.Lines++
		if st.Lines%ctxEvery == 0 {
			if err := ctx.Err(); err != nil {
				return st, err
			}
		}
		id, ok := step(src.Text())
		if !ok {
			continue
		}
		st.Records++
		if err := dst.Add(id); err != nil {
			return st, err
		}
	}
	if err := src.Err(); err != nil {
		return st, err
	}
	if fq != nil && fq.pos != 0 {
		st.Truncated = 1
		log.Warn("dropping truncated final fastq record",
			zap.String("read_id", fq.pending), zap.Int("lines", fq.pos))
	}
	fmetrics.IDsRead.Add(float64(dst.Len() - before))
	return st, nil
}

// ReadURI opens uri (plain or compressed, local or s3) and reads it with Read.
func ReadURI(ctx context.Context, uri string, f Format, dst idset.Set, log *zap.Logger) (Stats, error) {
	src, err := iopkg.OpenLines(ctx, uri)
	if err != nil {
		return Stats{}, fmt.Errorf("open %s source %s: %w", f, uri, err)
	}
	defer src.Close()
	st, err := Read(ctx, src, f, dst, log)
	if err != nil {
		return st, fmt.Errorf("read %s source %s: %w", f, uri, err)
	}
	return st, nil
}
