package activities

import (
	"context"
	"path/filepath"
	"time"

	"go.temporal.io/sdk/activity"
	"go.uber.org/zap"

	"github.com/yourorg/fast5-fetcher/internal/extract"
	"github.com/yourorg/fast5-fetcher/internal/types"
)

type Config struct {
	ScratchDir string
	// Platform and TarTool pick the archive tool on this worker host.
	Platform        string
	TarTool         string
	ContainerSuffix string
	PayloadSuffix   string
	// RequireRemotePlan rejects plans written to local scratch. Set it when more than one
	// worker host polls the queue, since ExtractJob may run where the job files are not.
	RequireRemotePlan bool
	Logger            *zap.Logger
	// Runner overrides process spawning; tests use it to avoid a real tar.
	Runner extract.Runner
}

type Activities struct {
	cfg Config
}

func New(cfg Config) *Activities {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Activities{cfg: cfg}
}

type registrar interface {
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}

// Register adds the activities under the names FetchWorkflow calls. Both a worker.Worker
// and a testsuite environment satisfy registrar.
func (a *Activities) Register(r registrar) {
	r.RegisterActivityWithOptions(a.ResolvePlan, activity.RegisterOptions{Name: types.ActivityResolvePlan})
	r.RegisterActivityWithOptions(a.ExtractJob, activity.RegisterOptions{Name: types.ActivityExtractJob})
	r.RegisterActivityWithOptions(a.CleanupScratch, activity.RegisterOptions{Name: types.ActivityCleanupScratch})
}

func (a *Activities) scratch(sub string, elem ...string) string {
	return filepath.Join(append([]string{a.cfg.ScratchDir, sub}, elem...)...)
}

// extractor builds the tool wrapper for platform, falling back to the worker's own.
func (a *Activities) extractor(platform string) *extract.Extractor {
	if platform == "" {
		platform = a.cfg.Platform
	}
	opts := []extract.Option{extract.WithLogger(a.cfg.Logger)}
	if a.cfg.TarTool != "" {
		opts = append(opts, extract.WithTool(a.cfg.TarTool))
	}
	if a.cfg.Runner != nil {
		opts = append(opts, extract.WithRunner(a.cfg.Runner))
	}
	return extract.New(platform, opts...)
}

// heartbeat records details every interval until the returned stop func is called.
// Long single steps (an index scan, one tar process) have no natural heartbeat points.
func heartbeat(ctx context.Context, every time.Duration, details func() any) (stop func()) {
	done := make(chan struct{})
	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				activity.RecordHeartbeat(ctx, details())
			}
		}
	}()
	return func() { close(done) }
}
