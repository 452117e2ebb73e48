// Package fetch runs the whole pipeline: read ids, summary lookup, index lookup,
// then immediate extraction or a deferred plan.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/fast5-fetcher/internal/extract"
	"github.com/yourorg/fast5-fetcher/internal/idset"
	"github.com/yourorg/fast5-fetcher/internal/index"
	iopkg "github.com/yourorg/fast5-fetcher/internal/iopkg"
	"github.com/yourorg/fast5-fetcher/internal/normalize"
	"github.com/yourorg/fast5-fetcher/internal/plan"
	"github.com/yourorg/fast5-fetcher/internal/readids"
	"github.com/yourorg/fast5-fetcher/internal/storage"
	"github.com/yourorg/fast5-fetcher/internal/summary"
)

// ManifestName is written next to a deferred plan.
const ManifestName = "manifest.json"

type Options struct {
	Format   readids.Format
	IDSource string // ignored when Format is FormatNone
	Summary  string
	Index    string
	// Output is the extraction directory, or the plan directory when Deferred.
	Output   string
	Deferred bool

	Platform        string
	TarTool         string
	ContainerSuffix string
	PayloadSuffix   string
	Workers         int
	// SetDir keeps the id, filename and matched-filename sets in badger stores below this
	// directory. Each run empties them first.
	SetDir   string
	UploadTo string

	// Extractor and Store replace the defaults built from the fields above.
	Extractor plan.Extractor
	Store     storage.ObjectStore
}

// Report summarises one run. In deferred mode it is also the manifest.
type Report struct {
	Format      string        `json:"format"`
	IDSource    string        `json:"id_source,omitempty"`
	Summary     string        `json:"summary"`
	Index       string        `json:"index"`
	Output      string        `json:"output"`
	ReadIDs     readids.Stats `json:"read_ids"`
	WantedIDs   int           `json:"wanted_ids"`
	SummaryRows summary.Stats `json:"summary_rows"`
	Filenames   int           `json:"filenames"`
	IndexMode   string        `json:"index_mode"`
	IndexLines  int64         `json:"index_lines"`
	WorkItems   int           `json:"work_items"`
	Misses      []string      `json:"misses,omitempty"`
	Plan        *plan.Plan    `json:"plan,omitempty"`
	Outcome     *plan.Outcome `json:"-"`
	Uploaded    int           `json:"uploaded,omitempty"`
	UploadFails int           `json:"upload_failures,omitempty"`
	StartedAt   string        `json:"started_at"`
	Manifest    string        `json:"-"`
}

// Run executes the pipeline. Lookup misses and extraction failures are logged and reported,
// never returned; the error is for unreadable inputs, a malformed index, or an unwritable plan.
func Run(ctx context.Context, o Options, log *zap.Logger) (Report, error) {
	if log == nil {
		log = zap.NewNop()
	}
	rep := Report{
		Format:    o.Format.String(),
		Summary:   o.Summary,
		Index:     o.Index,
		Output:    o.Output,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if o.Summary == "" || o.Index == "" || o.Output == "" {
		return rep, fmt.Errorf("%w: summary, index and output are required", ErrNoInput)
	}
	if o.Format != readids.FormatNone {
		if o.IDSource == "" {
			return rep, fmt.Errorf("%w: %s source", ErrNoInput, o.Format)
		}
		rep.IDSource = o.IDSource
	}
	if !o.Deferred && iopkg.IsRemote(o.Output) {
		return rep, fmt.Errorf("%w: %s", ErrRemoteOutput, o.Output)
	}
	if !iopkg.IsRemote(o.Output) {
		if err := os.MkdirAll(iopkg.LocalPath(o.Output), 0o755); err != nil {
			return rep, fmt.Errorf("create output directory: %w", err)
		}
	}

	ids, err := openSet(o.SetDir, "ids")
	if err != nil {
		return rep, err
	}
	defer ids.Close()
	if o.Format != readids.FormatNone {
		st, err := readids.ReadURI(ctx, o.IDSource, o.Format, ids, log)
		rep.ReadIDs = st
		if err != nil {
			return rep, err
		}
	}
	rep.WantedIDs = ids.Len()
	log.Info("read ids collected", zap.String("format", rep.Format), zap.Int("ids", rep.WantedIDs))

	files, err := openSet(o.SetDir, "files")
	if err != nil {
		return rep, err
	}
	defer files.Close()
	sst, err := summary.ResolveURI(ctx, o.Summary, ids, files)
	rep.SummaryRows = sst
	if err != nil {
		return rep, err
	}
	rep.Filenames = files.Len()
	log.Info("filenames resolved", zap.Int("filenames", rep.Filenames), zap.Bool("unfiltered", sst.Unfiltered), zap.Int64("skipped_rows", sst.Skipped))

	seen, err := openSet(o.SetDir, "seen")
	if err != nil {
		return rep, err
	}
	defer seen.Close()
	res, err := index.ResolveURI(ctx, o.Index, files, index.Options{ContainerSuffix: o.ContainerSuffix, PayloadSuffix: o.PayloadSuffix, Seen: seen})
	rep.IndexMode = res.Mode.String()
	rep.IndexLines = res.Lines
	if err != nil {
		return rep, err
	}
	rep.WorkItems = len(res.Pairs)
	rep.Misses = res.Misses
	for _, m := range res.Misses {
		log.Warn("file not found in index", zap.String("file", m), zap.Error(ErrLookupMiss))
	}
	log.Info("index resolved", zap.String("mode", rep.IndexMode), zap.Int64("lines", res.Lines), zap.Int("items", rep.WorkItems), zap.Int("misses", len(res.Misses)))

	if o.Deferred {
		p, err := plan.Deferred(ctx, res.Pairs, o.Output, log)
		if err != nil {
			return rep, err
		}
		rep.Plan = &p
		rep.Manifest = iopkg.Join(o.Output, ManifestName)
		if err := writeManifest(ctx, rep.Manifest, rep); err != nil {
			log.Warn("failed to write manifest", zap.String("uri", rep.Manifest), zap.Error(err))
			rep.Manifest = ""
		}
		log.Info("deferred plan written", zap.String("master", p.Master), zap.Int("jobs", len(p.Jobs)))
		return rep, nil
	}

	ex := o.Extractor
	if ex == nil {
		var eo []extract.Option
		if o.TarTool != "" {
			eo = append(eo, extract.WithTool(o.TarTool))
		}
		ex = extract.New(o.Platform, append(eo, extract.WithLogger(log))...)
	}
	out, err := plan.Immediate(ctx, res.Pairs, ex, iopkg.LocalPath(o.Output), o.Workers, log)
	rep.Outcome = &out
	if err != nil {
		return rep, err
	}
	log.Info("extraction finished", zap.Int("attempted", out.Attempted), zap.Int("succeeded", out.Succeeded), zap.Int("failed", len(out.Failures)))

	if o.UploadTo != "" {
		store := o.Store
		if store == nil {
			s3c, err := storage.NewS3(ctx)
			if err != nil {
				return rep, fmt.Errorf("s3 client: %w", err)
			}
			store = s3c
		}
		rep.Uploaded, rep.UploadFails = upload(ctx, store, res.Pairs, out.Failures, iopkg.LocalPath(o.Output), o.UploadTo, log)
	}
	return rep, nil
}

func openSet(root, name string) (idset.Set, error) {
	if root == "" {
		return idset.New("")
	}
	s, err := idset.New(filepath.Join(root, name))
	if err != nil {
		return nil, fmt.Errorf("open %s set under %s: %w", name, root, err)
	}
	return s, nil
}

// upload copies each extracted file, once per base name, to prefix.
func upload(ctx context.Context, store storage.ObjectStore, items []index.WorkItem, failed []plan.Failure, dir, prefix string, log *zap.Logger) (ok, bad int) {
	skip := make(map[index.WorkItem]struct{}, len(failed))
	for _, f := range failed {
		skip[f.Item] = struct{}{}
	}
	done := make(map[string]struct{}, len(items))
	for _, it := range items {
		if _, ko := skip[it]; ko {
			continue
		}
		base := normalize.BaseName(it.Member)
		if _, dup := done[base]; dup {
			continue
		}
		done[base] = struct{}{}
		if ctx.Err() != nil {
			return ok, bad
		}
		dst := iopkg.Join(prefix, base)
		if _, err := storage.PutFile(ctx, store, filepath.Join(dir, base), dst); err != nil {
			bad++
			log.Error("failed to upload", zap.String("file", base), zap.String("dest", dst), zap.Error(err))
			continue
		}
		ok++
	}
	log.Info("upload finished", zap.String("prefix", prefix), zap.Int("uploaded", ok), zap.Int("failed", bad))
	return ok, bad
}

func writeManifest(ctx context.Context, uri string, rep Report) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	w, closer, err := iopkg.CreateWriter(ctx, uri)
	if err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		_ = closer.Close()
		return err
	}
	return closer.Close()
}
