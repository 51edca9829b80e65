package types

import (
	"time"
)

// HostInfo describes the machine a run was recorded on
type HostInfo struct {
	Hostname    string `json:"hostname,omitempty" db:"hostname"`
	OS          string `json:"os,omitempty" db:"os"`
	Platform    string `json:"platform,omitempty" db:"platform"`
	CPUModel    string `json:"cpu_model,omitempty" db:"cpu_model"`
	LogicalCPUs int    `json:"logical_cpus,omitempty" db:"logical_cpus"`
	TotalMemory uint64 `json:"total_memory,omitempty" db:"total_memory"`
}

// HistoricRun represents a benchmark entry stored in the database
type HistoricRun struct {
	ID            string    `json:"id" db:"id"`
	Suite         string    `json:"suite" db:"suite"`
	Timestamp     time.Time `json:"timestamp" db:"timestamp"`
	CommitID      string    `json:"commit_id" db:"commit_id"`
	CommitMessage string    `json:"commit_message" db:"commit_message"`
	CommitURL     string    `json:"commit_url" db:"commit_url"`
	CommitAuthor  string    `json:"commit_author" db:"commit_author"`
	Tool          string    `json:"tool" db:"tool"`
	BenchCount    int       `json:"bench_count" db:"bench_count"`
	Host          HostInfo  `json:"host" db:"host"`

	// Populated by GetRun only
	Benches []Bench `json:"benches,omitempty"`
}

// Alert is a regression of a single bench between two entries
type Alert struct {
	ID             string     `json:"id"`
	RunID          string     `json:"run_id"`
	Suite          string     `json:"suite"`
	Bench          string     `json:"bench"`
	Unit           string     `json:"unit"`
	CommitID       string     `json:"commit_id"`
	BaseCommitID   string     `json:"base_commit_id"`
	BaseValue      float64    `json:"base_value"`
	CurrentValue   float64    `json:"current_value"`
	Ratio          float64    `json:"ratio"`
	PercentChange  float64    `json:"percent_change"`
	Severity       string     `json:"severity"` // minor, major, critical
	ComparisonMode string     `json:"comparison_mode"`
	DetectedAt     time.Time  `json:"detected_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
}

// BenchPoint is one value of a bench over time
type BenchPoint struct {
	Timestamp time.Time `json:"timestamp"`
	CommitID  string    `json:"commit_id"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
}

// RunFilter represents filtering criteria for historic runs
type RunFilter struct {
	Suite    string    `json:"suite,omitempty"`
	CommitID string    `json:"commit_id,omitempty"`
	Tool     string    `json:"tool,omitempty"`
	Since    time.Time `json:"since,omitempty"`
	Until    time.Time `json:"until,omitempty"`
	Limit    int       `json:"limit,omitempty"`
	Offset   int       `json:"offset,omitempty"`
}

// SeriesQuery selects the history of one bench
type SeriesQuery struct {
	Suite string    `json:"suite"`
	Bench string    `json:"bench"`
	Since time.Time `json:"since,omitempty"`
	Limit int       `json:"limit,omitempty"`
}

// TimeSeriesMetric is the flattened form of a bench used for export
type TimeSeriesMetric struct {
	Time       time.Time `json:"time" db:"time"`
	RunID      string    `json:"run_id" db:"run_id"`
	Suite      string    `json:"suite" db:"suite"`
	CommitID   string    `json:"commit_id" db:"commit_id"`
	Bench      string    `json:"bench" db:"bench"`
	Value      float64   `json:"value" db:"value"`
	Unit       string    `json:"unit" db:"unit"`
	Iterations int64     `json:"iterations" db:"iterations"`
	CPUTime    float64   `json:"cpu_time" db:"cpu_time"`
	Threads    int       `json:"threads" db:"threads"`
}
