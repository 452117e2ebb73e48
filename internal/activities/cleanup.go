package activities

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/yourorg/fast5-fetcher/internal/types"
)

// CleanupScratch removes the workflow's scratch subdirectory (plan, staged jobs, id sets)
// under the configured scratch root. It is safe to call even if the directory doesn't exist.
func (a *Activities) CleanupScratch(ctx context.Context, p types.CleanupParams) error {
	sub, err := scratchSubdir(p.ScratchSubdir)
	if err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(a.cfg.ScratchDir, sub))
}

// scratchSubdir never lets a workflow name the scratch root itself or anything outside it.
func scratchSubdir(s string) (string, error) {
	sub := filepath.Clean(s)
	if sub == "." || sub == ".." || filepath.IsAbs(sub) || strings.HasPrefix(sub, "../") {
		return "", errors.New("invalid scratch subdir")
	}
	return sub, nil
}
