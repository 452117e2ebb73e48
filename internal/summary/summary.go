// Package summary maps read ids to fast5 filenames through a sequencing summary table.
package summary

import (
	"context"
	"fmt"

	"github.com/yourorg/fast5-fetcher/internal/idset"
	iopkg "github.com/yourorg/fast5-fetcher/internal/iopkg"
	fmetrics "github.com/yourorg/fast5-fetcher/internal/metrics"
	"github.com/yourorg/fast5-fetcher/internal/normalize"
)

const ctxEvery = 1 << 16

type Stats struct {
	Rows    int64
	Skipped int64 // rows missing the filename or read id column
	Matched int64
	// Unfiltered is set when the wanted set was empty and every filename was taken.
	Unfiltered bool
}

// Resolve adds to dst the filename (column 0) of every row whose read id (column 1)
// is in wanted. When wanted is empty every filename in the table is added.
// The first line is a header and is always skipped. src is not closed.
func Resolve(ctx context.Context, src iopkg.LineSource, wanted, dst idset.Set) (Stats, error) {
	st := Stats{Unfiltered: wanted == nil || wanted.Len() == 0}
	before := dst.Len()
	header := true
	var n int64
	for src.Scan() {
		n++
		if n%ctxEvery == 0 {
			if err := ctx.Err(); err != nil {
				return st, err
			}
		}
		if header {
			header = false
			continue
		}
		st.Rows++
		line := src.Text()

		var name string
		if st.Unfiltered {
			name = normalize.FirstField(line)
		} else {
			f0, f1, ok := normalize.TwoFields(line)
			if ok {
				hit, err := wanted.Has(f1)
				if err != nil {
					return st, err
				}
				if !hit {
					continue
				}
				name = f0
			}
		}
		if name == "" {
			st.Skipped++
			continue
		}
		st.Matched++
		if err := dst.Add(name); err != nil {
			return st, err
		}
	}
	if err := src.Err(); err != nil {
		return st, err
	}
	fmetrics.FilenamesResolved.Add(float64(dst.Len() - before))
	return st, nil
}

// ResolveURI opens the summary table at uri and runs Resolve over it.
func ResolveURI(ctx context.Context, uri string, wanted, dst idset.Set) (Stats, error) {
	src, err := iopkg.OpenLines(ctx, uri)
	if err != nil {
		return Stats{}, fmt.Errorf("open sequencing summary %s: %w", uri, err)
	}
	defer src.Close()
	st, err := Resolve(ctx, src, wanted, dst)
	if err != nil {
		return st, fmt.Errorf("read sequencing summary %s: %w", uri, err)
	}
	return st, nil
}
