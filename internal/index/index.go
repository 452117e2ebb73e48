// Package index resolves wanted fast5 filenames to the tar archives (or loose paths) holding them.
//
// An index file lists, for every fast5, where it lives. In archived mode a tar path
// line introduces the members listed after it:
//
//	/data/run1/batch_0.tar
//	batch_0/read_a.fast5
//	batch_0/read_b.fast5
//	/data/run1/batch_1.tar
//	batch_1/read_c.fast5
//
// In flat mode the file is just absolute fast5 paths with no tar lines.
package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/yourorg/fast5-fetcher/internal/idset"
	iopkg "github.com/yourorg/fast5-fetcher/internal/iopkg"
	fmetrics "github.com/yourorg/fast5-fetcher/internal/metrics"
	"github.com/yourorg/fast5-fetcher/internal/normalize"
)

var (
	// ErrMixedIndex is returned when an index mixes tar-grouped and loose members.
	ErrMixedIndex = errors.New("index mixes archived and flat entries")
)

const (
	DefaultContainerSuffix = ".tar"
	DefaultPayloadSuffix   = ".fast5"
	// DefaultSniffLines bounds the prefix inspected to pick the index mode.
	DefaultSniffLines = 10
)

const ctxEvery = 1 << 16

type Mode int

const (
	ModeFlat Mode = iota
	ModeArchived
)

func (m Mode) String() string {
	if m == ModeArchived {
		return "archived"
	}
	return "flat"
}

// WorkItem is one file to extract. Container is empty for loose files.
type WorkItem struct {
	Container string `json:"container"`
	Member    string `json:"member"`
}

type Options struct {
	ContainerSuffix string
	PayloadSuffix   string
	SniffLines      int
	// Seen records matched filenames for the miss report. It should start empty and share
	// the wanted set's backend; nil means an in-memory set.
	Seen idset.Set
}

func (o Options) withDefaults() Options {
	if o.ContainerSuffix == "" {
		o.ContainerSuffix = DefaultContainerSuffix
	}
	if o.PayloadSuffix == "" {
		o.PayloadSuffix = DefaultPayloadSuffix
	}
	if o.SniffLines <= 0 {
		o.SniffLines = DefaultSniffLines
	}
	if o.Seen == nil {
		o.Seen = idset.NewMemory(0)
	}
	return o
}

type Result struct {
	Mode  Mode
	Pairs []WorkItem
	// Misses lists wanted filenames that never appeared in the index, sorted.
	Misses []string
	Lines  int64
}

// fold is the running state of one pass over the index.
type fold struct {
	opts      Options
	mode      Mode
	container string
	wanted    idset.Set
	seen      idset.Set
	pairs     []WorkItem
}

func (f *fold) step(line string, lineNo int64) error {
	switch {
	case strings.HasSuffix(line, f.opts.ContainerSuffix):
		if f.mode == ModeFlat {
			return fmt.Errorf("%w: archive %q at line %d after flat-mode detection", ErrMixedIndex, line, lineNo)
		}
		f.container = line
	case strings.HasSuffix(line, f.opts.PayloadSuffix):
		if f.mode == ModeArchived && f.container == "" {
			return fmt.Errorf("%w: member %q at line %d precedes any archive", ErrMixedIndex, line, lineNo)
		}
		name := normalize.BaseName(line)
		ok, err := f.wanted.Has(name)
		if err != nil || !ok {
			return err
		}
		if err := f.seen.Add(name); err != nil {
			return err
		}
		f.pairs = append(f.pairs, WorkItem{Container: f.container, Member: line})
	}
	return nil
}

// DetectMode reports archived when any of the first lines ends with the container suffix.
func DetectMode(head []string, containerSuffix string) Mode {
	for _, l := range head {
		if strings.HasSuffix(l, containerSuffix) {
			return ModeArchived
		}
	}
	return ModeFlat
}

// Resolve walks src once and returns the (container, member) pairs whose member
// base name is in wanted, in index order. Duplicate index lines yield duplicate pairs.
// src is not closed.
func Resolve(ctx context.Context, src iopkg.LineSource, wanted idset.Set, opts Options) (Result, error) {
	opts = opts.withDefaults()

	head := make([]string, 0, opts.SniffLines)
	for len(head) < opts.SniffLines && src.Scan() {
		head = append(head, src.Text())
	}
	if err := src.Err(); err != nil {
		return Result{}, err
	}

	f := &fold{
		opts:   opts,
		mode:   DetectMode(head, opts.ContainerSuffix),
		wanted: wanted,
		seen:   opts.Seen,
	}
	var n int64
	for _, l := range head {
		n++
		if err := f.step(l, n); err != nil {
			return Result{Mode: f.mode, Lines: n}, err
		}
	}
	for src.Scan() {
		n++
		if n%ctxEvery == 0 {
			if err := ctx.Err(); err != nil {
				return Result{Mode: f.mode, Lines: n}, err
			}
		}
		if err := f.step(src.Text(), n); err != nil {
			return Result{Mode: f.mode, Lines: n}, err
		}
	}
	if err := src.Err(); err != nil {
		return Result{Mode: f.mode, Lines: n}, err
	}

	var misses []string
	err := wanted.Each(func(name string) error {
		hit, err := f.seen.Has(name)
		if err == nil && !hit {
			misses = append(misses, name)
		}
		return err
	})
	if err != nil {
		return Result{Mode: f.mode, Lines: n}, err
	}
	sort.Strings(misses)

	fmetrics.IndexLines.Add(float64(n))
	fmetrics.WorkItems.Add(float64(len(f.pairs)))
	fmetrics.LookupMisses.Add(float64(len(misses)))
	return Result{Mode: f.mode, Pairs: f.pairs, Misses: misses, Lines: n}, nil
}

// ResolveURI opens the index at uri and runs Resolve over it.
func ResolveURI(ctx context.Context, uri string, wanted idset.Set, opts Options) (Result, error) {
	src, err := iopkg.OpenLines(ctx, uri)
	if err != nil {
		return Result{}, fmt.Errorf("open index %s: %w", uri, err)
	}
	defer src.Close()
	res, err := Resolve(ctx, src, wanted, opts)
	if err != nil {
		return res, fmt.Errorf("read index %s: %w", uri, err)
	}
	return res, nil
}
