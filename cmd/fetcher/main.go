// Command fetcher extracts the fast5 files holding a chosen set of reads.
//
//	fetcher -fastq reads.fq.gz -seq-sum sequencing_summary.txt -index index.txt.gz -output ./f5s
//	fetcher -paf aln.paf -seq-sum ss.txt -index index.txt -output ./plan -pppp
//
// With no -fastq/-paf/-flat every file in the sequencing summary is fetched.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/yourorg/fast5-fetcher/internal/config"
	"github.com/yourorg/fast5-fetcher/internal/fetch"
	"github.com/yourorg/fast5-fetcher/internal/logging"
	fmetrics "github.com/yourorg/fast5-fetcher/internal/metrics"
	"github.com/yourorg/fast5-fetcher/internal/readids"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	cfg := config.FromEnv()
	fs := flag.NewFlagSet("fetcher", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		fastq    = fs.String("fastq", "", "fastq file of reads to fetch (plain, .gz, .zst, .lz4; path or s3://)")
		paf      = fs.String("paf", "", "paf alignment file; column 1 holds the read id")
		flat     = fs.String("flat", "", "file with one read id per line")
		seqSum   = fs.String("seq-sum", "", "sequencing summary table (filename, read_id, ...)")
		idx      = fs.String("index", "", "index of archives and fast5 paths")
		output   = fs.String("output", "", "extraction directory, or plan directory with -pppp")
		deferred = fs.Bool("pppp", false, "write per-archive job files instead of extracting")
	)
	fs.StringVar(&cfg.Platform, "platform", cfg.Platform, "platform selecting the tar dialect (linux, darwin, ...)")
	fs.StringVar(&cfg.TarTool, "tar", cfg.TarTool, "archive tool to run instead of the platform default")
	fs.StringVar(&cfg.ContainerSuffix, "container-suffix", cfg.ContainerSuffix, "suffix marking archive lines in the index")
	fs.StringVar(&cfg.PayloadSuffix, "payload-suffix", cfg.PayloadSuffix, "suffix marking member lines in the index")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "archives extracted in parallel")
	fs.StringVar(&cfg.SetDir, "set-dir", cfg.SetDir, "keep id sets on disk under this directory")
	fs.StringVar(&cfg.MetricsFile, "metrics-file", cfg.MetricsFile, "write Prometheus metrics to this textfile at exit")
	fs.StringVar(&cfg.UploadTo, "upload-to", cfg.UploadTo, "copy extracted files to this s3:// prefix")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug|info|warn|error")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	format, src, err := idSource(*fastq, *paf, *flat)
	if err == nil {
		err = cfg.Validate()
	}
	if err == nil && (*seqSum == "" || *idx == "" || *output == "") {
		err = errors.New("-seq-sum, -index and -output are required")
	}
	if err != nil {
		fmt.Fprintln(stderr, "fetcher:", err)
		fs.Usage()
		return 2
	}

	log := logging.NewConsole(cfg.LogLevel)
	defer log.Sync()
	fmetrics.Init()

	rep, err := fetch.Run(ctx, fetch.Options{
		Format:          format,
		IDSource:        src,
		Summary:         *seqSum,
		Index:           *idx,
		Output:          *output,
		Deferred:        *deferred,
		Platform:        cfg.Platform,
		TarTool:         cfg.TarTool,
		ContainerSuffix: cfg.ContainerSuffix,
		PayloadSuffix:   cfg.PayloadSuffix,
		Workers:         cfg.Workers,
		SetDir:          cfg.SetDir,
		UploadTo:        cfg.UploadTo,
	}, log)
	if cfg.MetricsFile != "" {
		if werr := fmetrics.WriteTextfile(cfg.MetricsFile); werr != nil {
			log.Warn("failed to write metrics textfile", zap.String("path", cfg.MetricsFile), zap.Error(werr))
		}
	}
	if err != nil {
		log.Error("fetch failed", zap.Error(err))
		return 1
	}

	fields := []zap.Field{zap.Int("wanted_ids", rep.WantedIDs), zap.Int("filenames", rep.Filenames), zap.Int("items", rep.WorkItems), zap.Int("misses", len(rep.Misses))}
	if rep.Outcome != nil {
		fields = append(fields, zap.Int("extracted", rep.Outcome.Succeeded), zap.Int("failed", len(rep.Outcome.Failures)))
	}
	if rep.Plan != nil {
		fields = append(fields, zap.Int("jobs", len(rep.Plan.Jobs)), zap.String("master", rep.Plan.Master))
	}
	log.Info("done", fields...)
	return 0
}

// idSource picks the single identifier source; none means fetch everything.
func idSource(fastq, paf, flat string) (readids.Format, string, error) {
	var (
		f   readids.Format
		src string
		n   int
	)
	for _, c := range []struct {
		f   readids.Format
		uri string
	}{{readids.FormatFastq, fastq}, {readids.FormatPAF, paf}, {readids.FormatFlat, flat}} {
		if c.uri != "" {
			f, src = c.f, c.uri
			n++
		}
	}
	if n > 1 {
		return readids.FormatNone, "", errors.New("use only one of -fastq, -paf, -flat")
	}
	return f, src, nil
}
