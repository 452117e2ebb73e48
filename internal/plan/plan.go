// Package plan runs extraction work immediately or writes it out as per-archive job files
// for a batch scheduler.
package plan

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yourorg/fast5-fetcher/internal/extract"
	"github.com/yourorg/fast5-fetcher/internal/index"
	iopkg "github.com/yourorg/fast5-fetcher/internal/iopkg"
	fmetrics "github.com/yourorg/fast5-fetcher/internal/metrics"
	"github.com/yourorg/fast5-fetcher/internal/normalize"
)

const (
	// MasterName is the master file listing job file name and container path pairs.
	MasterName = "tar_index.txt"
	// LooseJob is the job name used for files with no container.
	LooseJob = "loose"
)

var ErrMalformedMaster = errors.New("malformed master line")

// Extractor performs one extraction call.
type Extractor interface {
	Extract(ctx context.Context, req extract.Request) error
}

type Failure struct {
	Item index.WorkItem
	Err  error
}

type Outcome struct {
	Attempted int
	Succeeded int
	Failures  []Failure
}

// Immediate extracts every item into dest, one call per item. Failures are collected and
// logged; they never stop the run. With workers <= 1 items run strictly in index order.
// With more workers, distinct containers run in parallel while each container's items stay
// sequential. The returned error is non-nil only when ctx is cancelled.
func Immediate(ctx context.Context, items []index.WorkItem, ex Extractor, dest string, workers int, log *zap.Logger) (Outcome, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var (
		mu  sync.Mutex
		out Outcome
	)
	one := func(it index.WorkItem) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := ex.Extract(ctx, extract.Request{Container: it.Container, Members: []string{it.Member}, Dest: dest})
		mu.Lock()
		defer mu.Unlock()
		out.Attempted++
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			out.Failures = append(out.Failures, Failure{Item: it, Err: err})
			log.Error("failed to extract", zap.String("container", it.Container), zap.String("member", it.Member), zap.Error(err))
			return nil
		}
		out.Succeeded++
		return nil
	}

	if workers <= 1 {
		for _, it := range items {
			if err := one(it); err != nil {
				return out, err
			}
		}
		return out, nil
	}

	groups := Group(items)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, c := range groups.Containers() {
		c := c
		g.Go(func() error {
			for _, m := range groups.Members(c) {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := one(index.WorkItem{Container: c, Member: m}); err != nil {
					return err
				}
			}
			return nil
		})
	}
	err := g.Wait()
	return out, err
}

// Job is one per-container job file of a deferred plan.
type Job struct {
	Name      string `json:"name"`
	URI       string `json:"uri"`
	Container string `json:"container"`
	Members   int    `json:"members"`
}

type Plan struct {
	Dir    string `json:"dir"`
	Master string `json:"master"`
	Jobs   []Job  `json:"jobs"`
}

// JobFileName derives a job file name from the container base name. used tracks names
// already handed out; a repeated base gets ".2", ".3" ... before ".txt".
func JobFileName(container string, used map[string]int) string {
	base := normalize.BaseName(container)
	if container == "" {
		base = LooseJob
	} else if base == "" {
		base = "container"
	}
	used[base]++
	if n := used[base]; n > 1 {
		return base + "." + strconv.Itoa(n) + ".txt"
	}
	return base + ".txt"
}

// Deferred groups items by container and writes one job file per container plus the
// master file into dir (a local directory or s3:// prefix).
func Deferred(ctx context.Context, items []index.WorkItem, dir string, log *zap.Logger) (Plan, error) {
	if log == nil {
		log = zap.NewNop()
	}
	groups := Group(items)
	p := Plan{Dir: dir, Master: iopkg.Join(dir, MasterName)}
	used := make(map[string]int, groups.Len())

	var master strings.Builder
	for _, c := range groups.Containers() {
		members := groups.Members(c)
		name := JobFileName(c, used)
		uri := iopkg.Join(dir, name)
		if err := writeLines(ctx, uri, members); err != nil {
			return p, fmt.Errorf("write job file %s: %w", uri, err)
		}
		fmetrics.JobFiles.Inc()
		log.Debug("wrote job file", zap.String("job", name), zap.String("container", c), zap.Int("members", len(members)))
		p.Jobs = append(p.Jobs, Job{Name: name, URI: uri, Container: c, Members: len(members)})
		master.WriteString(name)
		master.WriteByte('\t')
		master.WriteString(c)
		master.WriteByte('\n')
	}
	w, closer, err := iopkg.CreateWriter(ctx, p.Master)
	if err != nil {
		return p, fmt.Errorf("create master file %s: %w", p.Master, err)
	}
	if _, err := w.Write([]byte(master.String())); err != nil {
		_ = closer.Close()
		return p, err
	}
	if err := closer.Close(); err != nil {
		return p, fmt.Errorf("close master file %s: %w", p.Master, err)
	}
	return p, nil
}

func writeLines(ctx context.Context, uri string, lines []string) error {
	w, closer, err := iopkg.CreateWriter(ctx, uri)
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(w, 1<<16)
	for _, l := range lines {
		if _, err := bw.WriteString(l); err != nil {
			_ = closer.Close()
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			_ = closer.Close()
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		_ = closer.Close()
		return err
	}
	return closer.Close()
}

// MasterEntry is one line of the master file.
type MasterEntry struct {
	Job       string
	Container string
}

// ReadMaster parses the master file at uri.
func ReadMaster(ctx context.Context, uri string) ([]MasterEntry, error) {
	src, err := iopkg.OpenLines(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	var out []MasterEntry
	var n int
	for src.Scan() {
		n++
		line := src.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		job, container, ok := strings.Cut(line, "\t")
		if !ok || job == "" {
			return nil, fmt.Errorf("%w %d in %s: %q", ErrMalformedMaster, n, uri, line)
		}
		out = append(out, MasterEntry{Job: job, Container: container})
	}
	return out, src.Err()
}

// Lookup finds the container for a job file, matching on the job file's base name.
func Lookup(entries []MasterEntry, jobFile string) (string, bool) {
	name := normalize.BaseName(jobFile)
	for _, e := range entries {
		if e.Job == name {
			return e.Container, true
		}
	}
	return "", false
}
