package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/yourorg/fast5-fetcher/internal/types"
)

// FetchWorkflow resolves a deferred plan, then extracts every job file in parallel.
// A failed job is recorded in FetchStats.Failed; it does not fail the workflow.
func FetchWorkflow(ctx workflow.Context, p types.FetchParams) (types.FetchStats, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 4 * time.Hour,
		HeartbeatTimeout:    1 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	// A failed extraction is reported, not retried.
	extractAO := ao
	extractAO.RetryPolicy = &temporal.RetryPolicy{MaximumAttempts: 1}
	extractCtx := workflow.WithActivityOptions(ctx, extractAO)
	log := workflow.GetLogger(ctx)

	if !p.KeepScratch && p.ScratchSubdir != "" {
		defer func() {
			// Run cleanup even when the workflow was cancelled.
			dctx, _ := workflow.NewDisconnectedContext(ctx)
			cp := types.CleanupParams{ScratchSubdir: p.ScratchSubdir}
			if err := workflow.ExecuteActivity(dctx, types.ActivityCleanupScratch, cp).Get(dctx, nil); err != nil {
				log.Warn("scratch cleanup failed", "subdir", p.ScratchSubdir, "error", err)
			}
		}()
	}

	var res types.ResolveResult
	if err := workflow.ExecuteActivity(ctx, types.ActivityResolvePlan, p).Get(ctx, &res); err != nil {
		return types.FetchStats{}, err
	}
	st := types.FetchStats{Jobs: len(res.Jobs), WorkItems: res.WorkItems, Misses: len(res.Misses)}
	for _, m := range res.Misses {
		log.Warn("file not found in index", "file", m)
	}

	// fan-out extraction, one activity per job file
	futures := make([]workflow.Future, len(res.Jobs))
	for i, job := range res.Jobs {
		ep := types.ExtractJobParams{Job: job, Output: p.Output, Platform: p.Platform, ScratchSubdir: p.ScratchSubdir}
		futures[i] = workflow.ExecuteActivity(extractCtx, types.ActivityExtractJob, ep)
	}
	for i := range futures {
		var es types.ExtractStats
		if err := futures[i].Get(ctx, &es); err != nil {
			if temporal.IsCanceledError(err) {
				return st, err
			}
			log.Error("extraction job failed", "job", res.Jobs[i].Name, "container", res.Jobs[i].Container, "error", err)
			st.Failed = append(st.Failed, res.Jobs[i].Name)
			continue
		}
		st.Succeeded++
		st.Members += es.Members
	}
	return st, nil
}
