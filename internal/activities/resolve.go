package activities

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/yourorg/fast5-fetcher/internal/fetch"
	iopkg "github.com/yourorg/fast5-fetcher/internal/iopkg"
	"github.com/yourorg/fast5-fetcher/internal/readids"
	"github.com/yourorg/fast5-fetcher/internal/types"
)

// ErrLocalPlan is the application error type returned when a shared plan location is required.
const ErrLocalPlan = "LocalPlan"

// ResolvePlan runs the lookup stages and writes a deferred plan. Id sets live in badger
// stores under the workflow's scratch subdir. Without PlanURI the job files also stay in that
// subdir, which only works when the same host runs every ExtractJob.
func (a *Activities) ResolvePlan(ctx context.Context, p types.FetchParams) (types.ResolveResult, error) {
	sub, err := scratchSubdir(p.ScratchSubdir)
	if err != nil {
		return types.ResolveResult{}, err
	}
	f, err := readids.ParseFormat(p.Format)
	if err != nil {
		return types.ResolveResult{}, err
	}
	planDir := p.PlanURI
	if planDir == "" {
		planDir = a.scratch(sub, "plan")
	}
	if a.cfg.RequireRemotePlan && !iopkg.IsRemote(planDir) {
		return types.ResolveResult{}, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("plan directory %q is local to this worker; set plan_uri to an s3:// prefix", planDir),
			ErrLocalPlan, nil)
	}
	log := a.cfg.Logger.With(zap.String("activity", types.ActivityResolvePlan), zap.String("scratch", sub))
	activity.GetLogger(ctx).Info("resolving plan", "plan", planDir, "index", p.Index)

	o := fetch.Options{
		Format:          f,
		IDSource:        p.IDSource,
		Summary:         p.Summary,
		Index:           p.Index,
		Output:          planDir,
		Deferred:        true,
		ContainerSuffix: firstNonEmpty(p.ContainerSuffix, a.cfg.ContainerSuffix),
		PayloadSuffix:   firstNonEmpty(p.PayloadSuffix, a.cfg.PayloadSuffix),
		SetDir:          a.scratch(sub, "sets"),
	}
	stop := heartbeat(ctx, 10*time.Second, func() any { return "resolving" })
	rep, err := fetch.Run(ctx, o, log)
	stop()
	if err != nil {
		return types.ResolveResult{}, err
	}

	out := types.ResolveResult{Manifest: rep.Manifest, WorkItems: rep.WorkItems, Misses: rep.Misses}
	if rep.Plan != nil {
		out.Master = rep.Plan.Master
		for _, j := range rep.Plan.Jobs {
			out.Jobs = append(out.Jobs, types.JobRef{Name: j.Name, URI: j.URI, Container: j.Container, Members: j.Members})
		}
	}
	return out, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
