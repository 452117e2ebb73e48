package metrics

import (
	"net/http"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	IDsRead = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fast5_fetcher",
		Name:      "read_ids_total",
		Help:      "Distinct read ids collected from the identifier source.",
	})
	FilenamesResolved = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fast5_fetcher",
		Name:      "filenames_resolved_total",
		Help:      "Filenames selected from the sequencing summary.",
	})
	IndexLines = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fast5_fetcher",
		Name:      "index_lines_total",
		Help:      "Index lines scanned.",
	})
	WorkItems = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fast5_fetcher",
		Name:      "work_items_total",
		Help:      "(container, member) pairs resolved from the index.",
	})
	LookupMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fast5_fetcher",
		Name:      "lookup_misses_total",
		Help:      "Requested files or containers absent from the index.",
	})
	Extractions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fast5_fetcher",
		Name:      "extractions_total",
		Help:      "Extraction tool invocations by result.",
	}, []string{"result"})
	JobFiles = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fast5_fetcher",
		Name:      "job_files_written_total",
		Help:      "Deferred-mode job files written.",
	})
)

var once sync.Once

// Init registers collectors with the default registry. Safe to call more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(IDsRead, FilenamesResolved, IndexLines, WorkItems, LookupMisses, Extractions, JobFiles)
	})
}

// Serve starts a /metrics server on the given addr (e.g., ":9090"). Non-blocking when run in goroutine.
func Serve(addr string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, nil)
}

// WriteTextfile dumps the default registry in text format for a node_exporter textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}

// AddrFromEnv returns listen address from METRICS_ADDR or default ":9090".
func AddrFromEnv() string {
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		return v
	}
	return ":9090"
}
