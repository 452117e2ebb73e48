package types

// Activity names registered by cmd/worker and called by FetchWorkflow.
const (
	ActivityResolvePlan    = "Activities.ResolvePlan"
	ActivityExtractJob     = "Activities.ExtractJob"
	ActivityCleanupScratch = "Activities.CleanupScratch"
)

type FetchParams struct {
	Format   string `json:"format"` // "fastq"|"paf"|"flat"|"" for unfiltered
	IDSource string `json:"id_source"`
	Summary  string `json:"summary"`
	Index    string `json:"index"`
	// Output is the extraction directory on the worker hosts.
	Output string `json:"output"`
	// PlanURI, if set, receives the job files (s3:// so that every worker can read them).
	// Otherwise the plan is written to <scratch>/<ScratchSubdir>/plan on the resolving host,
	// which is only readable by ExtractJob when a single worker host serves the queue.
	PlanURI         string `json:"plan_uri,omitempty"`
	ScratchSubdir   string `json:"scratch_subdir"`
	KeepScratch     bool   `json:"keep_scratch,omitempty"`
	ContainerSuffix string `json:"container_suffix,omitempty"`
	PayloadSuffix   string `json:"payload_suffix,omitempty"`
	Platform        string `json:"platform,omitempty"`
}

type JobRef struct {
	Name      string `json:"name"`
	URI       string `json:"uri"`
	Container string `json:"container"`
	Members   int    `json:"members"`
}

// ResolveResult carries job file locations, never member lists, to keep history small.
type ResolveResult struct {
	Master    string   `json:"master"`
	Manifest  string   `json:"manifest,omitempty"`
	Jobs      []JobRef `json:"jobs"`
	WorkItems int      `json:"work_items"`
	Misses    []string `json:"misses,omitempty"`
}

type ExtractJobParams struct {
	Job      JobRef `json:"job"`
	Output   string `json:"output"`
	Platform string `json:"platform,omitempty"`
	// ScratchSubdir is where remote job files are staged before extraction.
	ScratchSubdir string `json:"scratch_subdir"`
}

type ExtractStats struct {
	Job     string `json:"job"`
	Members int    `json:"members"`
}

type FetchStats struct {
	Jobs      int      `json:"jobs"`
	Succeeded int      `json:"succeeded"`
	Failed    []string `json:"failed,omitempty"` // job names
	Members   int      `json:"members"`
	WorkItems int      `json:"work_items"`
	Misses    int      `json:"misses"`
}

// CleanupParams instructs the cleanup activity which subdir to remove.
type CleanupParams struct {
	ScratchSubdir string
}
