package engine

import (
	"errors"
	"sync"

	"github.com/openmon/procmon/internal/metrics"
)

// ErrHandleReleased is returned when a handle is used or released after its
// snapshot has already been given back.
var ErrHandleReleased = errors.New("snapshot handle already released")

// ProcessListHandle owns one process snapshot. Every handle is backed by its
// own copy of the record list: the engine keeps no reference to it once
// issued, so the holder may keep it for as long as it likes without
// coordinating with anyone. Release returns the snapshot exactly once;
// further use is a detected error rather than silent corruption.
type ProcessListHandle struct {
	mu       sync.Mutex
	snapshot *metrics.ProcessSnapshot
}

func newProcessListHandle(snapshot metrics.ProcessSnapshot) *ProcessListHandle {
	owned := metrics.ProcessSnapshot{
		Timestamp: snapshot.Timestamp,
		Processes: append([]metrics.ProcessRecord(nil), snapshot.Processes...),
	}
	return &ProcessListHandle{snapshot: &owned}
}

// Snapshot returns the owned snapshot. Fails after Release.
func (h *ProcessListHandle) Snapshot() (metrics.ProcessSnapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.snapshot == nil {
		return metrics.ProcessSnapshot{}, ErrHandleReleased
	}
	return *h.snapshot, nil
}

// Release gives the snapshot back. Releasing twice is an error.
func (h *ProcessListHandle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.snapshot == nil {
		return ErrHandleReleased
	}
	h.snapshot = nil
	return nil
}

// CPUMetricsHandle owns one CPU snapshot, with the same single-ownership
// contract as ProcessListHandle.
type CPUMetricsHandle struct {
	mu       sync.Mutex
	snapshot *metrics.CPUSnapshot
}

func newCPUMetricsHandle(snapshot metrics.CPUSnapshot) *CPUMetricsHandle {
	owned := snapshot
	owned.PerCore = append([]float64(nil), snapshot.PerCore...)
	return &CPUMetricsHandle{snapshot: &owned}
}

// Snapshot returns the owned snapshot. Fails after Release.
func (h *CPUMetricsHandle) Snapshot() (metrics.CPUSnapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.snapshot == nil {
		return metrics.CPUSnapshot{}, ErrHandleReleased
	}
	return *h.snapshot, nil
}

// Release gives the snapshot back. Releasing twice is an error.
func (h *CPUMetricsHandle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.snapshot == nil {
		return ErrHandleReleased
	}
	h.snapshot = nil
	return nil
}
