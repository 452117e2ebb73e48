// Command batch extracts one job file of a deferred plan. It is meant to run as one task
// of a scheduler array job:
//
//	batch tar_index.txt plan/x.tar.txt $TMPDIR/fast5/
//	batch -task $SGE_TASK_ID tar_index.txt $TMPDIR/fast5/
//
// The archive is looked up in the master file by the job file's base name.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.uber.org/zap"

	"github.com/yourorg/fast5-fetcher/internal/config"
	"github.com/yourorg/fast5-fetcher/internal/extract"
	"github.com/yourorg/fast5-fetcher/internal/fetch"
	iopkg "github.com/yourorg/fast5-fetcher/internal/iopkg"
	"github.com/yourorg/fast5-fetcher/internal/logging"
	fmetrics "github.com/yourorg/fast5-fetcher/internal/metrics"
	"github.com/yourorg/fast5-fetcher/internal/normalize"
	"github.com/yourorg/fast5-fetcher/internal/plan"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr, extract.ExecRunner{})
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stderr io.Writer, runner extract.Runner) int {
	cfg := config.FromEnv()
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	task := fs.Int("task", envTask(), "1-based line of the master file to run instead of naming a job file (default $SGE_TASK_ID)")
	fs.StringVar(&cfg.Platform, "platform", cfg.Platform, "platform selecting the tar dialect")
	fs.StringVar(&cfg.TarTool, "tar", cfg.TarTool, "archive tool to run instead of the platform default")
	fs.StringVar(&cfg.MetricsFile, "metrics-file", cfg.MetricsFile, "write Prometheus metrics to this textfile at exit")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug|info|warn|error")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: batch [flags] MASTER JOB_FILE DEST\n       batch [flags] -task N MASTER DEST")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	pos := fs.Args()
	if !(len(pos) == 3 || (len(pos) == 2 && *task > 0)) {
		fs.Usage()
		return 2
	}

	log := logging.NewConsole(cfg.LogLevel)
	defer log.Sync()
	fmetrics.Init()
	defer func() {
		if cfg.MetricsFile != "" {
			_ = fmetrics.WriteTextfile(cfg.MetricsFile)
		}
	}()

	master, dest := pos[0], pos[len(pos)-1]
	entries, err := plan.ReadMaster(ctx, master)
	if err != nil {
		log.Error("failed to read master file", zap.String("master", master), zap.Error(err))
		return 1
	}

	var job, container string
	if len(pos) == 3 {
		job = pos[1]
		c, ok := plan.Lookup(entries, job)
		if !ok {
			fmetrics.LookupMisses.Inc()
			log.Error("job not found in master file", zap.String("job", normalize.BaseName(job)), zap.String("master", master), zap.Error(fetch.ErrLookupMiss))
			return 0
		}
		container = c
	} else {
		if *task > len(entries) {
			fmetrics.LookupMisses.Inc()
			log.Error("task out of range", zap.Int("task", *task), zap.Int("jobs", len(entries)), zap.Error(fetch.ErrLookupMiss))
			return 0
		}
		e := entries[*task-1]
		job, container = siblingOf(master, e.Job), e.Container
	}
	log.Info("extracting", zap.String("job", normalize.BaseName(job)), zap.String("container", container))

	list := iopkg.LocalPath(job)
	if iopkg.IsRemote(job) {
		staged, cleanup, err := stage(ctx, job)
		if err != nil {
			log.Error("failed to fetch job file", zap.String("job", job), zap.Error(err))
			return 1
		}
		defer cleanup()
		list = staged
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		log.Error("failed to create destination", zap.String("dest", dest), zap.Error(err))
		return 1
	}

	opts := []extract.Option{extract.WithLogger(log), extract.WithRunner(runner)}
	if cfg.TarTool != "" {
		opts = append(opts, extract.WithTool(cfg.TarTool))
	}
	ex := extract.New(cfg.Platform, opts...)
	if err := ex.Extract(ctx, extract.Request{Container: container, ListFile: list, Dest: dest}); err != nil {
		log.Error("extraction failed", zap.String("job", normalize.BaseName(job)), zap.Error(err))
		return 0
	}
	log.Info("extraction complete", zap.String("job", normalize.BaseName(job)), zap.String("dest", dest))
	return 0
}

// siblingOf resolves a job file name from the master file against the master's directory.
func siblingOf(master, job string) string {
	if i := len(master) - len(normalize.BaseName(master)); i > 0 {
		return master[:i] + job
	}
	return job
}

func envTask() int {
	n, _ := strconv.Atoi(os.Getenv("SGE_TASK_ID"))
	return n
}

func stage(ctx context.Context, uri string) (string, func(), error) {
	rc, err := iopkg.OpenReader(ctx, uri)
	if err != nil {
		return "", nil, err
	}
	defer rc.Close()
	f, err := os.CreateTemp("", "fast5-job-*.txt")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.Remove(f.Name()) }
	if _, err := io.Copy(f, rc); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return f.Name(), cleanup, nil
}
