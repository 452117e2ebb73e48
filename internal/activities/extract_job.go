package activities

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.temporal.io/sdk/activity"
	"go.uber.org/zap"

	"github.com/yourorg/fast5-fetcher/internal/extract"
	iopkg "github.com/yourorg/fast5-fetcher/internal/iopkg"
	"github.com/yourorg/fast5-fetcher/internal/types"
)

// ExtractJob runs the archive tool once for one job file. Remote job files are staged
// into scratch first since the tool reads the member list from a local path.
func (a *Activities) ExtractJob(ctx context.Context, p types.ExtractJobParams) (types.ExtractStats, error) {
	st := types.ExtractStats{Job: p.Job.Name, Members: p.Job.Members}
	if err := os.MkdirAll(iopkg.LocalPath(p.Output), 0o755); err != nil {
		return st, err
	}
	list := iopkg.LocalPath(p.Job.URI)
	if iopkg.IsRemote(p.Job.URI) {
		staged, err := a.stage(ctx, p)
		if err != nil {
			return st, fmt.Errorf("stage job file %s: %w", p.Job.URI, err)
		}
		list = staged
	}

	ex := a.extractor(p.Platform)
	activity.RecordHeartbeat(ctx, p.Job.Name)
	stop := heartbeat(ctx, 15*time.Second, func() any { return p.Job.Name })
	err := ex.Extract(ctx, extract.Request{Container: p.Job.Container, ListFile: list, Dest: iopkg.LocalPath(p.Output)})
	stop()
	if err != nil {
		a.cfg.Logger.Error("failed to extract job", zap.String("job", p.Job.Name), zap.String("container", p.Job.Container), zap.Error(err))
		return st, err
	}
	return st, nil
}

func (a *Activities) stage(ctx context.Context, p types.ExtractJobParams) (string, error) {
	sub, err := scratchSubdir(p.ScratchSubdir)
	if err != nil {
		return "", err
	}
	dir := a.scratch(sub, "jobs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	rc, err := iopkg.OpenReader(ctx, p.Job.URI)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	dst := filepath.Join(dir, p.Job.Name)
	w, closer, err := iopkg.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(w, rc); err != nil {
		_ = closer.Close()
		return "", err
	}
	return dst, closer.Close()
}
