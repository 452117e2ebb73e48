// Package extract pulls members out of tar archives with the system tar, or copies loose files.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	fmetrics "github.com/yourorg/fast5-fetcher/internal/metrics"
	"github.com/yourorg/fast5-fetcher/internal/normalize"
)

var (
	// ErrExtraction is wrapped by every ExtractionError.
	ErrExtraction = errors.New("extraction failed")
	// ErrEmptyRequest is returned when a request names no member.
	ErrEmptyRequest = errors.New("extract request names no member")
)

// flattenExpr strips every leading directory from extracted member names.
const flattenExpr = `--transform=s/.*\///`

// Dialect selects how the archive tool is invoked on a platform.
type Dialect int

const (
	// DialectGNU is GNU tar as "tar".
	DialectGNU Dialect = iota
	// DialectBSD is a BSD-derived host whose "tar" is bsdtar; GNU tar is installed as "gtar".
	DialectBSD
	// DialectUnknown falls back to the GNU invocation.
	DialectUnknown
)

func (d Dialect) String() string {
	switch d {
	case DialectGNU:
		return "gnu"
	case DialectBSD:
		return "bsd"
	default:
		return "unknown"
	}
}

// Tool is the archive program name for the dialect.
func (d Dialect) Tool() string {
	if d == DialectBSD {
		return "gtar"
	}
	return "tar"
}

// ResolveDialect maps a platform identifier (runtime.GOOS values, "Darwin", "Linux"...) to a Dialect.
func ResolveDialect(platform string) Dialect {
	switch strings.ToLower(strings.TrimSpace(platform)) {
	case "linux", "linux2", "cygwin", "windows", "win32":
		return DialectGNU
	case "darwin", "freebsd", "openbsd", "netbsd", "dragonfly":
		return DialectBSD
	default:
		return DialectUnknown
	}
}

// Request describes one extraction call.
type Request struct {
	// Container is the tar path, or empty for loose files.
	Container string
	Members   []string
	// ListFile, when set, names a file with one member per line and replaces Members for archives.
	ListFile string
	Dest     string
}

// ExtractionError reports a failed tool invocation for one request.
type ExtractionError struct {
	Container string
	Members   []string
	Output    string
	Err       error
}

func (e *ExtractionError) Error() string {
	what := strings.Join(e.Members, ",")
	if len(e.Members) > 3 {
		what = fmt.Sprintf("%s,... (%d members)", strings.Join(e.Members[:3], ","), len(e.Members))
	}
	msg := fmt.Sprintf("extract %s from %q: %v", what, e.Container, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

func (e *ExtractionError) Unwrap() []error { return []error{ErrExtraction, e.Err} }

// Runner spawns one external process and waits for it.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec and returns their combined output.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Extractor is safe for concurrent use when its Runner is.
type Extractor struct {
	dialect Dialect
	tool    string
	runner  Runner
	log     *zap.Logger
}

type Option func(*Extractor)

func WithRunner(r Runner) Option { return func(e *Extractor) { e.runner = r } }

// WithTool overrides the archive program (for example an absolute path to GNU tar).
func WithTool(name string) Option { return func(e *Extractor) { e.tool = name } }

func WithLogger(l *zap.Logger) Option { return func(e *Extractor) { e.log = l } }

// New resolves the dialect for platform once. Unknown platforms log a warning and use GNU flags.
func New(platform string, opts ...Option) *Extractor {
	e := &Extractor{dialect: ResolveDialect(platform), runner: ExecRunner{}, log: zap.NewNop()}
	for _, o := range opts {
		o(e)
	}
	if e.tool == "" {
		e.tool = e.dialect.Tool()
	}
	if e.dialect == DialectUnknown {
		e.log.Warn("unrecognised platform, using GNU tar invocation", zap.String("platform", platform), zap.String("tool", e.tool))
	}
	return e
}

func (e *Extractor) Dialect() Dialect { return e.dialect }

// Command returns the program and arguments Extract would run for req.
// Loose-file requests with a ListFile must have Members filled by the caller.
func (e *Extractor) Command(req Request) (string, []string, error) {
	if req.Container == "" {
		switch len(req.Members) {
		case 0:
			return "", nil, ErrEmptyRequest
		case 1:
			m := req.Members[0]
			return "cp", []string{m, filepath.Join(req.Dest, normalize.BaseName(m))}, nil
		default:
			return "cp", append(append([]string{}, req.Members...), req.Dest+string(filepath.Separator)), nil
		}
	}
	args := []string{"-xf", req.Container, flattenExpr, "-C", req.Dest}
	switch {
	case req.ListFile != "":
		args = append(args, "-T", req.ListFile)
	case len(req.Members) > 0:
		args = append(args, req.Members...)
	default:
		return "", nil, ErrEmptyRequest
	}
	return e.tool, args, nil
}

// Extract runs exactly one process for req. A non-zero exit is returned as *ExtractionError.
func (e *Extractor) Extract(ctx context.Context, req Request) error {
	if req.Container == "" && req.ListFile != "" && len(req.Members) == 0 {
		members, err := ReadList(req.ListFile)
		if err != nil {
			return err
		}
		req.Members = members
	}
	name, args, err := e.Command(req)
	if err != nil {
		return err
	}
	e.log.Debug("extracting", zap.String("tool", name), zap.Strings("args", args))
	out, err := e.runner.Run(ctx, name, args...)
	if err != nil {
		fmetrics.Extractions.WithLabelValues("failed").Inc()
		members := req.Members
		if len(members) == 0 {
			members = []string{"@" + req.ListFile}
		}
		return &ExtractionError{Container: req.Container, Members: members, Output: tail(out), Err: err}
	}
	fmetrics.Extractions.WithLabelValues("ok").Inc()
	return nil
}

// ReadList reads a job file: one member path per line, blank lines ignored.
func ReadList(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, l := range strings.Split(string(b), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out, nil
}

// tail keeps the last few hundred bytes of tool output for error messages.
func tail(b []byte) string {
	const keep = 512
	b = bytes.TrimSpace(b)
	if len(b) > keep {
		b = b[len(b)-keep:]
	}
	return string(b)
}
