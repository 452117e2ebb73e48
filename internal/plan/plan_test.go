package plan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/fast5-fetcher/internal/extract"
	"github.com/yourorg/fast5-fetcher/internal/index"
)

type recordingExtractor struct {
	mu       sync.Mutex
	reqs     []extract.Request
	fail     map[string]bool
	active   map[string]int
	overlaps int
}

func (r *recordingExtractor) Extract(ctx context.Context, req extract.Request) error {
	r.mu.Lock()
	if r.active == nil {
		r.active = map[string]int{}
	}
	r.active[req.Container]++
	if r.active[req.Container] > 1 {
		r.overlaps++
	}
	r.reqs = append(r.reqs, req)
	r.mu.Unlock()

	time.Sleep(time.Millisecond)

	r.mu.Lock()
	r.active[req.Container]--
	r.mu.Unlock()
	if r.fail[req.Members[0]] {
		return &extract.ExtractionError{Container: req.Container, Members: req.Members, Err: errors.New("exit status 2")}
	}
	return nil
}

var items = []index.WorkItem{
	{Container: "/d/x.tar", Member: "x/f1.fast5"},
	{Container: "/d/x.tar", Member: "x/f2.fast5"},
	{Container: "/d/y.tar", Member: "y/f3.fast5"},
	{Container: "/e/x.tar", Member: "x/f4.fast5"},
	{Container: "/d/x.tar", Member: "x/f5.fast5"},
	{Container: "", Member: "/loose/f6.fast5"},
}

func TestGroupPreservesOrderAndAccumulates(t *testing.T) {
	g := Group(items)
	require.Equal(t, []string{"/d/x.tar", "/d/y.tar", "/e/x.tar", ""}, g.Containers())
	require.Equal(t, []string{"x/f1.fast5", "x/f2.fast5", "x/f5.fast5"}, g.Members("/d/x.tar"))
	require.Equal(t, []string{"/loose/f6.fast5"}, g.Members(""))
}

func TestGroupCountEqualsDistinctContainers(t *testing.T) {
	var many []index.WorkItem
	for i := 0; i < 500; i++ {
		many = append(many, index.WorkItem{Container: []string{"a.tar", "b.tar", "c.tar"}[i%3], Member: "m.fast5"})
	}
	require.Equal(t, 3, Group(many).Len())
}

func TestImmediateSequentialContinuesPastFailures(t *testing.T) {
	ex := &recordingExtractor{fail: map[string]bool{"x/f2.fast5": true}}
	out, err := Immediate(context.Background(), items, ex, "/out", 1, nil)
	require.NoError(t, err)
	require.Equal(t, 6, out.Attempted)
	require.Equal(t, 5, out.Succeeded)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, "x/f2.fast5", out.Failures[0].Item.Member)
	assert.ErrorIs(t, out.Failures[0].Err, extract.ErrExtraction)

	var order []string
	for _, r := range ex.reqs {
		require.Len(t, r.Members, 1)
		assert.Equal(t, "/out", r.Dest)
		order = append(order, r.Members[0])
	}
	assert.Equal(t, []string{"x/f1.fast5", "x/f2.fast5", "y/f3.fast5", "x/f4.fast5", "x/f5.fast5", "/loose/f6.fast5"}, order)
}

func TestImmediateParallelNeverOverlapsAContainer(t *testing.T) {
	ex := &recordingExtractor{}
	out, err := Immediate(context.Background(), items, ex, "/out", 4, nil)
	require.NoError(t, err)
	require.Equal(t, 6, out.Succeeded)
	require.Zero(t, ex.overlaps)

	var xs []string
	for _, r := range ex.reqs {
		if r.Container == "/d/x.tar" {
			xs = append(xs, r.Members[0])
		}
	}
	require.Equal(t, []string{"x/f1.fast5", "x/f2.fast5", "x/f5.fast5"}, xs)
}

func TestImmediateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := Immediate(ctx, items, &recordingExtractor{}, "/out", 1, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, out.Attempted)
}

func TestJobFileName(t *testing.T) {
	used := map[string]int{}
	assert.Equal(t, "x.tar.txt", JobFileName("/d/x.tar", used))
	assert.Equal(t, "y.tar.txt", JobFileName("/d/y.tar", used))
	assert.Equal(t, "x.tar.2.txt", JobFileName("/e/x.tar", used))
	assert.Equal(t, "loose.txt", JobFileName("", used))
}

func TestDeferredWritesJobsAndMaster(t *testing.T) {
	dir := t.TempDir()
	p, err := Deferred(context.Background(), items, dir, nil)
	require.NoError(t, err)
	require.Len(t, p.Jobs, 4)

	read := func(name string) string {
		b, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		return string(b)
	}
	assert.Equal(t, "x/f1.fast5\nx/f2.fast5\nx/f5.fast5\n", read("x.tar.txt"))
	assert.Equal(t, "y/f3.fast5\n", read("y.tar.txt"))
	assert.Equal(t, "x/f4.fast5\n", read("x.tar.2.txt"))
	assert.Equal(t, "/loose/f6.fast5\n", read("loose.txt"))
	assert.Equal(t, "x.tar.txt\t/d/x.tar\ny.tar.txt\t/d/y.tar\nx.tar.2.txt\t/e/x.tar\nloose.txt\t\n", read(MasterName))

	entries, err := ReadMaster(context.Background(), p.Master)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	c, ok := Lookup(entries, filepath.Join(dir, "x.tar.2.txt"))
	require.True(t, ok)
	assert.Equal(t, "/e/x.tar", c)
	c, ok = Lookup(entries, "loose.txt")
	require.True(t, ok)
	assert.Empty(t, c)
	_, ok = Lookup(entries, "z.tar.txt")
	assert.False(t, ok)
}

func TestDeferredOneJobPerDistinctContainer(t *testing.T) {
	p, err := Deferred(context.Background(), items, t.TempDir(), nil)
	require.NoError(t, err)
	var cs []string
	for _, j := range p.Jobs {
		cs = append(cs, j.Container)
	}
	sort.Strings(cs)
	require.Equal(t, []string{"", "/d/x.tar", "/d/y.tar", "/e/x.tar"}, cs)
}

func TestReadMasterMalformed(t *testing.T) {
	p := filepath.Join(t.TempDir(), MasterName)
	require.NoError(t, os.WriteFile(p, []byte("x.tar.txt\t/d/x.tar\nno-tab-here\n"), 0o644))
	_, err := ReadMaster(context.Background(), p)
	require.ErrorIs(t, err, ErrMalformedMaster)
}
