package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yourorg/fast5-fetcher/internal/idset"
	iopkg "github.com/yourorg/fast5-fetcher/internal/iopkg"
)

func resolve(t *testing.T, lines []string, wanted ...string) Result {
	t.Helper()
	res, err := Resolve(context.Background(), iopkg.NewSliceSource(lines), idset.Of(wanted...), Options{})
	require.NoError(t, err)
	return res
}

func TestArchivedIndex(t *testing.T) {
	res := resolve(t, []string{"/d/x.tar", "f1.fast5", "f2.fast5", "/d/y.tar", "f3.fast5"}, "f2.fast5", "f3.fast5")
	require.Equal(t, ModeArchived, res.Mode)
	require.Equal(t, []WorkItem{
		{Container: "/d/x.tar", Member: "f2.fast5"},
		{Container: "/d/y.tar", Member: "f3.fast5"},
	}, res.Pairs)
	require.Empty(t, res.Misses)
	require.Equal(t, int64(5), res.Lines)
}

func TestArchivedAttributesNearestPrecedingMarker(t *testing.T) {
	lines := []string{
		"# built 2018-01-01",
		"/d/x.tar",
		"x/sub/a.fast5",
		"x/sub/readme.txt",
		"/d/y.tar",
		"y/b.fast5",
		"/d/x.tar",
		"x/c.fast5",
	}
	res := resolve(t, lines, "a.fast5", "b.fast5", "c.fast5")
	require.Equal(t, []WorkItem{
		{"/d/x.tar", "x/sub/a.fast5"},
		{"/d/y.tar", "y/b.fast5"},
		{"/d/x.tar", "x/c.fast5"},
	}, res.Pairs)
}

func TestDuplicatesAreKept(t *testing.T) {
	res := resolve(t, []string{"/d/x.tar", "a/f1.fast5", "b/f1.fast5"}, "f1.fast5")
	require.Len(t, res.Pairs, 2)
}

func TestFlatIndex(t *testing.T) {
	res := resolve(t, []string{"/loose/a.fast5", "/loose/b.fast5", "notes.txt", "/other/c.fast5"}, "a.fast5", "c.fast5")
	require.Equal(t, ModeFlat, res.Mode)
	require.Equal(t, []WorkItem{{"", "/loose/a.fast5"}, {"", "/other/c.fast5"}}, res.Pairs)
	for _, p := range res.Pairs {
		require.Empty(t, p.Container)
	}
}

func TestModeDetectionWindow(t *testing.T) {
	lines := make([]string, 0, 12)
	for i := 0; i < 9; i++ {
		lines = append(lines, "header")
	}
	lines = append(lines, "/d/x.tar", "m.fast5")
	require.Equal(t, ModeArchived, resolve(t, lines, "m.fast5").Mode)

	// an 11th-line marker is outside the window: flat mode, then rejected as mixed
	lines = append([]string{"header"}, lines...)
	_, err := Resolve(context.Background(), iopkg.NewSliceSource(lines), idset.Of("m.fast5"), Options{})
	require.ErrorIs(t, err, ErrMixedIndex)
}

func TestMixedIndexMemberBeforeMarker(t *testing.T) {
	_, err := Resolve(context.Background(), iopkg.NewSliceSource([]string{"/loose/a.fast5", "/d/x.tar", "b.fast5"}), idset.Of(), Options{})
	require.ErrorIs(t, err, ErrMixedIndex)
}

func TestMissingFilenameIsReported(t *testing.T) {
	res := resolve(t, []string{"/d/x.tar", "f1.fast5"}, "gone.fast5")
	require.Empty(t, res.Pairs)
	require.Equal(t, []string{"gone.fast5"}, res.Misses)
}

func TestCustomSuffixes(t *testing.T) {
	res, err := Resolve(context.Background(),
		iopkg.NewSliceSource([]string{"/d/batch.tar.gz", "r/a.pod5", "r/a.fast5"}),
		idset.Of("a.pod5", "a.fast5"),
		Options{ContainerSuffix: ".tar.gz", PayloadSuffix: ".pod5"})
	require.NoError(t, err)
	require.Equal(t, []WorkItem{{"/d/batch.tar.gz", "r/a.pod5"}}, res.Pairs)
	require.Equal(t, []string{"a.fast5"}, res.Misses)
}

func TestEmptyIndex(t *testing.T) {
	res := resolve(t, nil, "a.fast5")
	require.Equal(t, ModeFlat, res.Mode)
	require.Empty(t, res.Pairs)
	require.Equal(t, []string{"a.fast5"}, res.Misses)
}

func TestResolveURIWithDiskSet(t *testing.T) {
	p := filepath.Join(t.TempDir(), "index.txt")
	require.NoError(t, os.WriteFile(p, []byte("/d/x.tar\nx/f1.fast5\nx/f2.fast5\n"), 0o644))

	wanted, err := idset.New(t.TempDir())
	require.NoError(t, err)
	defer wanted.Close()
	require.NoError(t, wanted.Add("f2.fast5"))

	res, err := ResolveURI(context.Background(), p, wanted, Options{})
	require.NoError(t, err)
	require.Equal(t, []WorkItem{{"/d/x.tar", "x/f2.fast5"}}, res.Pairs)
}

func TestSeenSetOnDisk(t *testing.T) {
	p := filepath.Join(t.TempDir(), "index.txt")
	require.NoError(t, os.WriteFile(p, []byte("/d/x.tar\nx/f1.fast5\nx/f2.fast5\n/e/x.tar\nx/f2.fast5\n"), 0o644))

	wanted, err := idset.New(t.TempDir())
	require.NoError(t, err)
	defer wanted.Close()
	for _, n := range []string{"f2.fast5", "f9.fast5"} {
		require.NoError(t, wanted.Add(n))
	}
	seen, err := idset.New(t.TempDir())
	require.NoError(t, err)
	defer seen.Close()

	res, err := ResolveURI(context.Background(), p, wanted, Options{Seen: seen})
	require.NoError(t, err)
	require.Len(t, res.Pairs, 2)
	require.Equal(t, []string{"f9.fast5"}, res.Misses)
	require.Equal(t, 1, seen.Len())
	ok, err := seen.Has("f2.fast5")
	require.NoError(t, err)
	require.True(t, ok)
}
