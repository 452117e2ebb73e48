package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Config holds settings shared by the fetcher, batch and worker binaries.
// Flags override these values in cmd/fetcher and cmd/batch.
type Config struct {
	LogLevel string
	// Platform selects the tar dialect; defaults to the host GOOS.
	Platform string
	// TarTool overrides the archive program name (e.g. /usr/local/bin/gtar).
	TarTool         string
	ContainerSuffix string
	PayloadSuffix   string
	// Workers > 1 extracts distinct archives in parallel.
	Workers int
	// SetDir, if set, keeps the wanted id sets in a badger store under this directory.
	SetDir string
	// MetricsFile, if set, receives a Prometheus textfile at exit.
	MetricsFile string
	// UploadTo is an s3:// prefix extracted files are copied to after extraction.
	UploadTo string

	TemporalHost      string
	TemporalNamespace string
	TaskQueue         string
	ScratchDir        string
	// RemotePlan makes the worker refuse plans kept in its local scratch dir.
	RemotePlan bool
}

// FromEnv loads configuration from FETCHER_* environment variables.
func FromEnv() Config {
	return Config{
		LogLevel:          getEnv("FETCHER_LOG_LEVEL", getEnv("LOG_LEVEL", "info")),
		Platform:          getEnv("FETCHER_PLATFORM", runtime.GOOS),
		TarTool:           os.Getenv("FETCHER_TAR"),
		ContainerSuffix:   getEnv("FETCHER_CONTAINER_SUFFIX", ".tar"),
		PayloadSuffix:     getEnv("FETCHER_PAYLOAD_SUFFIX", ".fast5"),
		Workers:           getEnvInt("FETCHER_WORKERS", 1),
		SetDir:            os.Getenv("FETCHER_SET_DIR"),
		MetricsFile:       os.Getenv("FETCHER_METRICS_FILE"),
		UploadTo:          os.Getenv("FETCHER_UPLOAD_TO"),
		TemporalHost:      getEnv("TEMPORAL_TARGET_HOST", getEnv("TEMPORAL_ADDRESS", "localhost:7233")),
		TemporalNamespace: getEnv("TEMPORAL_NAMESPACE", "default"),
		TaskQueue:         getEnv("TEMPORAL_TASK_QUEUE", "fast5-fetcher"),
		ScratchDir:        getEnv("FETCHER_TMP_DIR", "/var/fast5-fetcher"),
		RemotePlan:        getEnvBool("FETCHER_REQUIRE_REMOTE_PLAN"),
	}
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	if c.ContainerSuffix == "" || c.PayloadSuffix == "" {
		return fmt.Errorf("container and payload suffixes must be set")
	}
	if strings.HasSuffix(c.ContainerSuffix, c.PayloadSuffix) || strings.HasSuffix(c.PayloadSuffix, c.ContainerSuffix) {
		return fmt.Errorf("container suffix %q and payload suffix %q overlap", c.ContainerSuffix, c.PayloadSuffix)
	}
	if c.UploadTo != "" && !strings.HasPrefix(c.UploadTo, "s3://") {
		return fmt.Errorf("upload target must be an s3:// prefix, got %q", c.UploadTo)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		_, _ = fmt.Sscanf(v, "%d", &n)
		if n != 0 {
			return n
		}
	}
	return def
}

func getEnvBool(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
