package sampler

import "time"

// Sample is one raw reading of the whole system taken at a single instant.
// A sample on its own only carries cumulative counters; two consecutive
// samples are needed to derive rate-based metrics.
type Sample struct {
	Timestamp time.Time
	Processes []ProcessReading
	CPU       CPUReading
}

// ProcessReading holds the raw counters for one discovered process.
// BusySeconds is the cumulative CPU time (user + system) consumed since the
// process started. Fields the OS refuses to report are left at their zero
// values.
type ProcessReading struct {
	PID         uint32
	Name        string
	ParentPID   uint32
	ThreadCount int32
	MemoryMB    float64
	Status      string
	BusySeconds float64
	StartTime   time.Time
}

// CoreTimes carries cumulative busy and total time for one core, in seconds.
type CoreTimes struct {
	Busy  float64
	Total float64
}

// CPUReading holds raw system-wide CPU counters.
type CPUReading struct {
	Cores        []CoreTimes
	CoreCount    int
	Load1        float64
	Load5        float64
	Load15       float64
	FrequencyMHz uint64
}
