package activities

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/yourorg/fast5-fetcher/internal/types"
)

type call struct {
	name string
	args []string
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []call
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{name: name, args: args})
	return nil, nil
}

func write(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestResolvePlanWritesJobsUnderScratch(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	in := t.TempDir()
	scratch := t.TempDir()
	acts := New(Config{ScratchDir: scratch})
	env.RegisterActivity(acts.ResolvePlan)

	val, err := env.ExecuteActivity(acts.ResolvePlan, types.FetchParams{
		Format:        "flat",
		IDSource:      write(t, in, "ids.txt", "r2\nr3\n"),
		Summary:       write(t, in, "seq_sum.txt", "filename\tread_id\nf1.fast5\tr1\nf2.fast5\tr2\nf3.fast5\tr3\n"),
		Index:         write(t, in, "index.txt", "/d/x.tar\nx/f1.fast5\nx/f2.fast5\n/d/y.tar\ny/f3.fast5\n"),
		ScratchSubdir: "wf-1",
	})
	require.NoError(t, err)
	var res types.ResolveResult
	require.NoError(t, val.Get(&res))

	assert.Equal(t, 2, res.WorkItems)
	assert.Equal(t, filepath.Join(scratch, "wf-1", "plan", "tar_index.txt"), res.Master)
	require.Len(t, res.Jobs, 2)
	assert.Equal(t, types.JobRef{Name: "x.tar.txt", URI: filepath.Join(scratch, "wf-1", "plan", "x.tar.txt"), Container: "/d/x.tar", Members: 1}, res.Jobs[0])
	assert.DirExists(t, filepath.Join(scratch, "wf-1", "sets", "ids"))
	assert.FileExists(t, res.Manifest)
}

func TestResolvePlanRejectsBadInput(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	acts := New(Config{ScratchDir: t.TempDir()})
	env.RegisterActivity(acts.ResolvePlan)

	_, err := env.ExecuteActivity(acts.ResolvePlan, types.FetchParams{Format: "flat", ScratchSubdir: "../escape"})
	require.Error(t, err)
	_, err = env.ExecuteActivity(acts.ResolvePlan, types.FetchParams{Format: "bam", ScratchSubdir: "wf"})
	require.Error(t, err)
}

func TestResolvePlanRequiresRemotePlan(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	in := t.TempDir()
	scratch := t.TempDir()
	acts := New(Config{ScratchDir: scratch, RequireRemotePlan: true})
	env.RegisterActivity(acts.ResolvePlan)

	_, err := env.ExecuteActivity(acts.ResolvePlan, types.FetchParams{
		Summary:       write(t, in, "seq_sum.txt", "filename\tread_id\nf1.fast5\tr1\n"),
		Index:         write(t, in, "index.txt", "/data/f1.fast5\n"),
		ScratchSubdir: "wf-1",
	})
	require.Error(t, err)
	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, ErrLocalPlan, appErr.Type())
	assert.True(t, appErr.NonRetryable())
	assert.NoDirExists(t, filepath.Join(scratch, "wf-1", "plan"))
}

func TestExtractJobRunsToolOnceWithListFile(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	r := &fakeRunner{}
	acts := New(Config{ScratchDir: t.TempDir(), Platform: "linux", Runner: r})
	env.RegisterActivity(acts.ExtractJob)

	dir := t.TempDir()
	job := write(t, dir, "x.tar.txt", "x/f1.fast5\nx/f2.fast5\n")
	out := filepath.Join(dir, "out")
	val, err := env.ExecuteActivity(acts.ExtractJob, types.ExtractJobParams{
		Job:           types.JobRef{Name: "x.tar.txt", URI: job, Container: "/d/x.tar", Members: 2},
		Output:        out,
		ScratchSubdir: "wf",
	})
	require.NoError(t, err)
	var st types.ExtractStats
	require.NoError(t, val.Get(&st))
	assert.Equal(t, types.ExtractStats{Job: "x.tar.txt", Members: 2}, st)

	require.Len(t, r.calls, 1)
	assert.Equal(t, "tar", r.calls[0].name)
	assert.Equal(t, []string{"-xf", "/d/x.tar", `--transform=s/.*\///`, "-C", out, "-T", job}, r.calls[0].args)
	assert.DirExists(t, out)
}

func TestExtractJobLooseFilesCopiesOnce(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	r := &fakeRunner{}
	acts := New(Config{ScratchDir: t.TempDir(), Runner: r})
	env.RegisterActivity(acts.ExtractJob)

	dir := t.TempDir()
	job := write(t, dir, "loose.txt", "/data/a.fast5\n/data/b.fast5\n")
	_, err := env.ExecuteActivity(acts.ExtractJob, types.ExtractJobParams{
		Job:      types.JobRef{Name: "loose.txt", URI: job, Members: 2},
		Output:   dir,
		Platform: "darwin",
	})
	require.NoError(t, err)
	require.Len(t, r.calls, 1)
	assert.Equal(t, "cp", r.calls[0].name)
	assert.Equal(t, []string{"/data/a.fast5", "/data/b.fast5", dir + string(filepath.Separator)}, r.calls[0].args)
}

func TestCleanupScratch(t *testing.T) {
	root := t.TempDir()
	acts := New(Config{ScratchDir: root})
	require.NoError(t, os.MkdirAll(filepath.Join(root, "wf-1", "plan"), 0o755))

	require.NoError(t, acts.CleanupScratch(context.Background(), types.CleanupParams{ScratchSubdir: "wf-1"}))
	assert.NoDirExists(t, filepath.Join(root, "wf-1"))
	assert.DirExists(t, root)
	require.NoError(t, acts.CleanupScratch(context.Background(), types.CleanupParams{ScratchSubdir: "wf-1"}))

	for _, bad := range []string{"", ".", "/", "..", "../x", "/etc"} {
		assert.Error(t, acts.CleanupScratch(context.Background(), types.CleanupParams{ScratchSubdir: bad}), bad)
	}
}
