package metrics

import (
	"math"
	"testing"
	"time"

	"github.com/openmon/procmon/internal/sampler"
)

var (
	t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	t1 = t0.Add(2 * time.Second)
)

func sampleAt(ts time.Time, procs []sampler.ProcessReading, cpu sampler.CPUReading) sampler.Sample {
	return sampler.Sample{Timestamp: ts, Processes: procs, CPU: cpu}
}

func singleCore(busy, total float64) sampler.CPUReading {
	return sampler.CPUReading{
		Cores:     []sampler.CoreTimes{{Busy: busy, Total: total}},
		CoreCount: 1,
	}
}

func TestComputeProcessUsage(t *testing.T) {
	t.Parallel()

	prev := sampleAt(t0, []sampler.ProcessReading{
		{PID: 100, Name: "steady", BusySeconds: 10},
		{PID: 200, Name: "busy", BusySeconds: 5},
	}, singleCore(15, 100))

	cur := sampleAt(t1, []sampler.ProcessReading{
		{PID: 100, Name: "steady", BusySeconds: 10.5},
		{PID: 200, Name: "busy", BusySeconds: 7},
	}, singleCore(17.5, 102))

	procs, _ := Compute(prev, cur)

	if procs.Count() != 2 {
		t.Fatalf("expected 2 records, got %d", procs.Count())
	}
	// 0.5s busy over 2s elapsed.
	if got := procs.Processes[0].CPUUsage; math.Abs(got-25) > 1e-9 {
		t.Fatalf("steady usage = %v, want 25", got)
	}
	// 2s busy over 2s elapsed.
	if got := procs.Processes[1].CPUUsage; math.Abs(got-100) > 1e-9 {
		t.Fatalf("busy usage = %v, want 100", got)
	}
}

func TestComputeFirstSeenProcessIsZero(t *testing.T) {
	t.Parallel()

	prev := sampleAt(t0, []sampler.ProcessReading{
		{PID: 100, BusySeconds: 10},
	}, singleCore(10, 100))

	cur := sampleAt(t1, []sampler.ProcessReading{
		{PID: 100, BusySeconds: 11},
		{PID: 300, Name: "newborn", BusySeconds: 1.5, StartTime: t1.Add(-time.Second)},
	}, singleCore(12, 102))

	procs, _ := Compute(prev, cur)

	if procs.Count() != 2 {
		t.Fatalf("expected 2 records, got %d", procs.Count())
	}
	newborn := procs.Processes[1]
	if newborn.CPUUsage != 0 {
		t.Fatalf("first-seen process must report zero usage, got %v", newborn.CPUUsage)
	}
	if newborn.RunTime != 1 {
		t.Fatalf("newborn run time = %d, want 1", newborn.RunTime)
	}
}

func TestComputeExitedProcessIsDropped(t *testing.T) {
	t.Parallel()

	prev := sampleAt(t0, []sampler.ProcessReading{
		{PID: 100, BusySeconds: 10},
		{PID: 999, Name: "gone", BusySeconds: 50},
	}, singleCore(60, 100))

	cur := sampleAt(t1, []sampler.ProcessReading{
		{PID: 100, BusySeconds: 11},
	}, singleCore(61, 102))

	procs, _ := Compute(prev, cur)

	if procs.Count() != 1 {
		t.Fatalf("expected 1 record, got %d", procs.Count())
	}
	if procs.Processes[0].PID != 100 {
		t.Fatalf("exited process leaked into snapshot: %+v", procs.Processes)
	}
}

func TestComputeRecycledPIDClampsToZero(t *testing.T) {
	t.Parallel()

	// Counter goes backwards when a pid is reused by a fresh process.
	prev := sampleAt(t0, []sampler.ProcessReading{
		{PID: 100, BusySeconds: 500},
	}, singleCore(500, 1000))

	cur := sampleAt(t1, []sampler.ProcessReading{
		{PID: 100, BusySeconds: 0.1},
	}, singleCore(501, 1002))

	procs, _ := Compute(prev, cur)
	if got := procs.Processes[0].CPUUsage; got != 0 {
		t.Fatalf("recycled pid usage = %v, want 0", got)
	}
}

func TestComputeDuplicatePIDsKeepFirst(t *testing.T) {
	t.Parallel()

	cur := sampleAt(t1, []sampler.ProcessReading{
		{PID: 100, Name: "first"},
		{PID: 100, Name: "second"},
	}, singleCore(1, 2))

	procs, _ := Compute(sampleAt(t0, nil, singleCore(0, 0)), cur)
	if procs.Count() != 1 {
		t.Fatalf("duplicate pids must collapse, got %d records", procs.Count())
	}
	if procs.Processes[0].Name != "first" {
		t.Fatalf("expected first occurrence to win, got %q", procs.Processes[0].Name)
	}
}

func TestComputeTotalUsage(t *testing.T) {
	t.Parallel()

	prev := sampleAt(t0, nil, sampler.CPUReading{
		Cores: []sampler.CoreTimes{
			{Busy: 100, Total: 1000},
			{Busy: 200, Total: 1000},
		},
		CoreCount: 2,
	})
	cur := sampleAt(t1, nil, sampler.CPUReading{
		Cores: []sampler.CoreTimes{
			{Busy: 101, Total: 1002}, // 50% busy
			{Busy: 200.5, Total: 1002}, // 25% busy
		},
		CoreCount: 2,
		Load1:     1.5,
		Load5:     1.0,
		Load15:    0.5,

		FrequencyMHz: 3200,
	})

	_, cpu := Compute(prev, cur)

	if cpu.CoreCount != 2 {
		t.Fatalf("core count = %d, want 2", cpu.CoreCount)
	}
	if math.Abs(cpu.TotalUsage-37.5) > 1e-9 {
		t.Fatalf("total usage = %v, want 37.5", cpu.TotalUsage)
	}
	if len(cpu.PerCore) != 2 || math.Abs(cpu.PerCore[0]-50) > 1e-9 || math.Abs(cpu.PerCore[1]-25) > 1e-9 {
		t.Fatalf("per-core usage mismatch: %v", cpu.PerCore)
	}
	if cpu.LoadAvg1 != 1.5 || cpu.LoadAvg5 != 1.0 || cpu.LoadAvg15 != 0.5 {
		t.Fatalf("load averages not passed through: %+v", cpu)
	}
	if cpu.FrequencyMHz != 3200 {
		t.Fatalf("frequency = %d, want 3200", cpu.FrequencyMHz)
	}
}

func TestComputeZeroElapsedYieldsZeroUsage(t *testing.T) {
	t.Parallel()

	sample := sampleAt(t0, []sampler.ProcessReading{
		{PID: 100, BusySeconds: 10},
	}, singleCore(10, 100))

	// Baseline pair: previous and current alias the same sample.
	procs, cpu := Compute(sample, sample)

	if procs.Processes[0].CPUUsage != 0 {
		t.Fatalf("aliased pair should yield zero usage, got %v", procs.Processes[0].CPUUsage)
	}
	if cpu.TotalUsage != 0 {
		t.Fatalf("aliased pair should yield zero total usage, got %v", cpu.TotalUsage)
	}
}

func TestFilterHighCPU(t *testing.T) {
	t.Parallel()

	snapshot := ProcessSnapshot{
		Timestamp: t1,
		Processes: []ProcessRecord{
			{PID: 1, CPUUsage: 0},
			{PID: 2, CPUUsage: 12.5},
			{PID: 3, CPUUsage: 90},
		},
	}

	cases := []struct {
		name      string
		threshold float64
		wantPIDs  []uint32
	}{
		{"mid threshold", 10, []uint32{2, 3}},
		{"negative threshold yields all", -1, []uint32{1, 2, 3}},
		{"huge threshold yields none", 100000, nil},
		{"strict inequality", 12.5, []uint32{3}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FilterHighCPU(snapshot, tc.threshold)
			if got.Count() != len(tc.wantPIDs) {
				t.Fatalf("got %d records, want %d", got.Count(), len(tc.wantPIDs))
			}
			for i, pid := range tc.wantPIDs {
				if got.Processes[i].PID != pid {
					t.Fatalf("record %d has pid %d, want %d (order must be preserved)", i, got.Processes[i].PID, pid)
				}
			}
		})
	}
}

func TestFilterUnkillable(t *testing.T) {
	t.Parallel()

	snapshot := ProcessSnapshot{
		Processes: []ProcessRecord{
			{PID: 1, Status: "running"},
			{PID: 2, Status: "zombie"},
			{PID: 3, Status: "sleep"},
			{PID: 4, Status: "disk-sleep"},
			{PID: 5, Status: "UninterruptibleDiskSleep"},
		},
	}

	got := FilterUnkillable(snapshot)
	want := []uint32{2, 4, 5}
	if got.Count() != len(want) {
		t.Fatalf("got %d records, want %d: %+v", got.Count(), len(want), got.Processes)
	}
	for i, pid := range want {
		if got.Processes[i].PID != pid {
			t.Fatalf("record %d has pid %d, want %d", i, got.Processes[i].PID, pid)
		}
	}
}
