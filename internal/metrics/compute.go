// Package metrics derives presentation-ready snapshots from pairs of raw
// samples. Everything here is pure computation: no I/O, deterministic for a
// given input pair.
package metrics

import (
	"strings"

	"github.com/openmon/procmon/internal/sampler"
)

// Compute diffs two consecutive samples into a process snapshot and a CPU
// snapshot. Processes present only in the current sample report zero usage
// (no delta exists yet); processes that exited since the previous sample are
// dropped entirely. Duplicate PIDs from the raw source keep their first
// occurrence only.
func Compute(prev, cur sampler.Sample) (ProcessSnapshot, CPUSnapshot) {
	elapsed := cur.Timestamp.Sub(prev.Timestamp).Seconds()

	coreCount := cur.CPU.CoreCount
	if coreCount <= 0 {
		coreCount = len(cur.CPU.Cores)
	}
	maxUsage := 100 * float64(coreCount)

	prevBusy := make(map[uint32]float64, len(prev.Processes))
	for _, reading := range prev.Processes {
		if _, ok := prevBusy[reading.PID]; !ok {
			prevBusy[reading.PID] = reading.BusySeconds
		}
	}

	records := make([]ProcessRecord, 0, len(cur.Processes))
	seen := make(map[uint32]struct{}, len(cur.Processes))
	for _, reading := range cur.Processes {
		if _, dup := seen[reading.PID]; dup {
			continue
		}
		seen[reading.PID] = struct{}{}

		var usage float64
		if before, ok := prevBusy[reading.PID]; ok && elapsed > 0 {
			usage = (reading.BusySeconds - before) / elapsed * 100
			if usage < 0 {
				// Counter went backwards: the pid was recycled between
				// samples. Treat it as a fresh process.
				usage = 0
			}
			if maxUsage > 0 && usage > maxUsage {
				usage = maxUsage
			}
		}

		var runTime uint64
		if !reading.StartTime.IsZero() && cur.Timestamp.After(reading.StartTime) {
			runTime = uint64(cur.Timestamp.Sub(reading.StartTime).Seconds())
		}

		records = append(records, ProcessRecord{
			PID:         reading.PID,
			Name:        reading.Name,
			CPUUsage:    usage,
			MemoryMB:    reading.MemoryMB,
			Status:      reading.Status,
			ParentPID:   reading.ParentPID,
			ThreadCount: reading.ThreadCount,
			RunTime:     runTime,
		})
	}

	processSnapshot := ProcessSnapshot{
		Timestamp: cur.Timestamp,
		Processes: records,
	}

	return processSnapshot, computeCPU(prev.CPU, cur.CPU, cur)
}

func computeCPU(prev, cur sampler.CPUReading, sample sampler.Sample) CPUSnapshot {
	cores := len(cur.Cores)
	if len(prev.Cores) < cores {
		cores = len(prev.Cores)
	}

	var busyDelta, totalDelta float64
	perCore := make([]float64, 0, cores)
	for i := 0; i < cores; i++ {
		busy := cur.Cores[i].Busy - prev.Cores[i].Busy
		total := cur.Cores[i].Total - prev.Cores[i].Total
		if busy < 0 || total < 0 {
			busy, total = 0, 0
		}
		busyDelta += busy
		totalDelta += total

		if total > 0 {
			perCore = append(perCore, clampPercent(busy/total*100))
		} else {
			perCore = append(perCore, 0)
		}
	}

	var totalUsage float64
	if totalDelta > 0 {
		totalUsage = clampPercent(busyDelta / totalDelta * 100)
	}

	coreCount := cur.CoreCount
	if coreCount <= 0 {
		coreCount = len(cur.Cores)
	}

	return CPUSnapshot{
		Timestamp:    sample.Timestamp,
		TotalUsage:   totalUsage,
		PerCore:      perCore,
		CoreCount:    coreCount,
		LoadAvg1:     cur.Load1,
		LoadAvg5:     cur.Load5,
		LoadAvg15:    cur.Load15,
		FrequencyMHz: cur.FrequencyMHz,
	}
}

// FilterHighCPU returns the records whose usage strictly exceeds threshold,
// preserving discovery order. A negative threshold yields every record; a
// threshold above the reachable maximum yields none. Neither is an error.
func FilterHighCPU(snapshot ProcessSnapshot, threshold float64) ProcessSnapshot {
	filtered := make([]ProcessRecord, 0, len(snapshot.Processes))
	for _, record := range snapshot.Processes {
		if record.CPUUsage > threshold {
			filtered = append(filtered, record)
		}
	}
	return ProcessSnapshot{Timestamp: snapshot.Timestamp, Processes: filtered}
}

// FilterUnkillable returns the records whose status indicates a process that
// cannot be terminated: zombies and tasks stuck in uninterruptible sleep.
// The status vocabulary is OS-dependent, so matching is substring-based over
// the known spellings.
func FilterUnkillable(snapshot ProcessSnapshot) ProcessSnapshot {
	filtered := make([]ProcessRecord, 0)
	for _, record := range snapshot.Processes {
		if isUnkillableStatus(record.Status) {
			filtered = append(filtered, record)
		}
	}
	return ProcessSnapshot{Timestamp: snapshot.Timestamp, Processes: filtered}
}

func isUnkillableStatus(status string) bool {
	lower := strings.ToLower(status)
	switch {
	case strings.Contains(lower, "zombie"):
		return true
	case strings.Contains(lower, "uninterruptible"):
		return true
	case lower == "disk-sleep" || lower == "blocked":
		return true
	}
	return false
}

func clampPercent(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}
