package sampler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/process"
)

const bytesPerMB = 1024 * 1024

// SystemSource reads the live process table and CPU counters of the host.
// Per-field read failures (permissions, processes exiting mid-enumeration)
// degrade to zero-value defaults; only a failure to enumerate at all is an
// error.
type SystemSource struct {
	logger *slog.Logger
}

// NewSystemSource constructs a Source backed by the host OS.
func NewSystemSource(logger *slog.Logger) *SystemSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &SystemSource{logger: logger.With("component", "system_source")}
}

// Processes enumerates the current process table.
func (s *SystemSource) Processes(ctx context.Context) ([]ProcessReading, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate processes: %w", err)
	}

	readings := make([]ProcessReading, 0, len(procs))
	for _, p := range procs {
		if p.Pid < 0 {
			continue
		}
		reading := ProcessReading{PID: uint32(p.Pid)}

		if name, err := p.NameWithContext(ctx); err == nil {
			reading.Name = name
		} else {
			s.logger.Debug("process name unavailable", "pid", p.Pid, "err", err)
		}
		if ppid, err := p.PpidWithContext(ctx); err == nil && ppid > 0 {
			reading.ParentPID = uint32(ppid)
		}
		if threads, err := p.NumThreadsWithContext(ctx); err == nil && threads > 0 {
			reading.ThreadCount = threads
		}
		if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
			reading.MemoryMB = float64(mem.RSS) / bytesPerMB
		}
		if status, err := p.StatusWithContext(ctx); err == nil && len(status) > 0 {
			reading.Status = status[0]
		}
		if times, err := p.TimesWithContext(ctx); err == nil && times != nil {
			reading.BusySeconds = times.User + times.System
		}
		if created, err := p.CreateTimeWithContext(ctx); err == nil && created > 0 {
			reading.StartTime = time.UnixMilli(created)
		}

		readings = append(readings, reading)
	}

	return readings, nil
}

// CPU reads per-core tick counters, load averages and clock frequency.
// Load averages and frequency are best-effort and default to zero where the
// platform does not expose them.
func (s *SystemSource) CPU(ctx context.Context) (CPUReading, error) {
	times, err := cpu.TimesWithContext(ctx, true)
	if err != nil {
		return CPUReading{}, fmt.Errorf("read cpu times: %w", err)
	}
	if len(times) == 0 {
		return CPUReading{}, fmt.Errorf("read cpu times: no cores reported")
	}

	reading := CPUReading{Cores: make([]CoreTimes, 0, len(times))}
	for _, t := range times {
		busy := t.User + t.System + t.Nice + t.Irq + t.Softirq + t.Steal
		reading.Cores = append(reading.Cores, CoreTimes{
			Busy:  busy,
			Total: busy + t.Idle + t.Iowait,
		})
	}

	reading.CoreCount = len(times)
	if count, err := cpu.CountsWithContext(ctx, true); err == nil && count > 0 {
		reading.CoreCount = count
	} else if err != nil {
		s.logger.Debug("core count unavailable", "err", err)
	}

	if avg, err := load.AvgWithContext(ctx); err == nil && avg != nil {
		reading.Load1 = avg.Load1
		reading.Load5 = avg.Load5
		reading.Load15 = avg.Load15
	} else if err != nil {
		s.logger.Debug("load averages unavailable", "err", err)
	}

	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 && infos[0].Mhz > 0 {
		reading.FrequencyMHz = uint64(infos[0].Mhz)
	} else if err != nil {
		s.logger.Debug("cpu frequency unavailable", "err", err)
	}

	return reading, nil
}
