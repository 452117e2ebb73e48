package main

import (
	"log"
	"os"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/yourorg/fast5-fetcher/internal/activities"
	"github.com/yourorg/fast5-fetcher/internal/config"
	"github.com/yourorg/fast5-fetcher/internal/logging"
	fmetrics "github.com/yourorg/fast5-fetcher/internal/metrics"
	"github.com/yourorg/fast5-fetcher/internal/workflow"
)

func main() {
	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatal("config:", err)
	}
	// Ensure scratch dir exists and is writable
	_ = os.MkdirAll(cfg.ScratchDir, 0o777)

	zl := logging.New(cfg.LogLevel)
	defer zl.Sync()

	// Metrics server
	fmetrics.Init()
	addr := fmetrics.AddrFromEnv()
	go func() {
		if err := fmetrics.Serve(addr); err != nil {
			zl.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	c, err := client.Dial(client.Options{HostPort: cfg.TemporalHost, Namespace: cfg.TemporalNamespace})
	if err != nil {
		log.Fatal("temporal client:", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.TaskQueue, worker.Options{})
	acts := activities.New(activities.Config{
		ScratchDir:        cfg.ScratchDir,
		Platform:          cfg.Platform,
		TarTool:           cfg.TarTool,
		ContainerSuffix:   cfg.ContainerSuffix,
		PayloadSuffix:     cfg.PayloadSuffix,
		RequireRemotePlan: cfg.RemotePlan,
		Logger:            zl,
	})
	acts.Register(w)
	w.RegisterWorkflow(workflow.FetchWorkflow)

	zl.Info("worker started",
		zap.String("namespace", cfg.TemporalNamespace),
		zap.String("taskQueue", cfg.TaskQueue),
		zap.String("tmp", cfg.ScratchDir),
		zap.String("platform", cfg.Platform),
		zap.String("metrics", addr))
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatal("worker failed:", err)
	}
}
