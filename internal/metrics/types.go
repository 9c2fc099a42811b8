package metrics

import "time"

// ProcessRecord describes one process as of a single refresh. CPUUsage is
// derived from two consecutive samples, not an OS-reported instantaneous
// value. Status carries the OS vocabulary verbatim; callers must treat it as
// an open set of strings, not an enum. Records are never mutated after
// creation.
type ProcessRecord struct {
	PID         uint32  `json:"pid"`
	Name        string  `json:"name"`
	CPUUsage    float64 `json:"cpu_usage"`
	MemoryMB    float64 `json:"memory_mb"`
	Status      string  `json:"status"`
	ParentPID   uint32  `json:"parent_pid"`
	ThreadCount int32   `json:"thread_count"`
	RunTime     uint64  `json:"run_time"`
}

// ProcessSnapshot is an immutable list of process records in discovery
// order. PIDs are distinct within one snapshot; ordering across snapshots is
// not guaranteed since processes come and go.
type ProcessSnapshot struct {
	Timestamp time.Time       `json:"ts"`
	Processes []ProcessRecord `json:"processes"`
}

// Count reports the number of records in the snapshot.
func (s ProcessSnapshot) Count() int {
	return len(s.Processes)
}

// CPUSnapshot carries aggregate CPU metrics as of a single refresh.
// TotalUsage is derived from per-core tick deltas independently of the
// per-process figures, so it will not generally equal their sum.
type CPUSnapshot struct {
	Timestamp    time.Time `json:"ts"`
	TotalUsage   float64   `json:"total_usage"`
	PerCore      []float64 `json:"per_core_usage"`
	CoreCount    int       `json:"core_count"`
	LoadAvg1     float64   `json:"load_avg_1"`
	LoadAvg5     float64   `json:"load_avg_5"`
	LoadAvg15    float64   `json:"load_avg_15"`
	FrequencyMHz uint64    `json:"frequency_mhz"`
}
