package sampler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type fakeSource struct {
	samples []Sample
	index   int
	fail    bool
}

func (f *fakeSource) Processes(ctx context.Context) ([]ProcessReading, error) {
	if f.fail {
		return nil, fmt.Errorf("proc table unavailable")
	}
	if f.index >= len(f.samples) {
		return nil, fmt.Errorf("fake source exhausted")
	}
	return f.samples[f.index].Processes, nil
}

func (f *fakeSource) CPU(ctx context.Context) (CPUReading, error) {
	if f.fail {
		return CPUReading{}, fmt.Errorf("cpu counters unavailable")
	}
	if f.index >= len(f.samples) {
		return CPUReading{}, fmt.Errorf("fake source exhausted")
	}
	reading := f.samples[f.index].CPU
	f.index++
	return reading, nil
}

func makeSample(busy float64, pids ...uint32) Sample {
	procs := make([]ProcessReading, 0, len(pids))
	for _, pid := range pids {
		procs = append(procs, ProcessReading{PID: pid, Name: fmt.Sprintf("proc-%d", pid), BusySeconds: busy})
	}
	return Sample{
		Processes: procs,
		CPU: CPUReading{
			Cores:     []CoreTimes{{Busy: busy, Total: busy + 100}},
			CoreCount: 1,
		},
	}
}

func TestStoreInitializeAndAdvance(t *testing.T) {
	t.Parallel()

	src := &fakeSource{samples: []Sample{makeSample(1, 10), makeSample(2, 10, 11)}}
	store, err := NewStore(src)
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}

	if _, _, ok := store.Pair(); ok {
		t.Fatalf("Pair should report not ready before Initialize")
	}

	if err := store.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize returned error: %v", err)
	}

	prev, cur, ok := store.Pair()
	if !ok {
		t.Fatalf("Pair should be ready after Initialize")
	}
	if len(prev.Processes) != 1 || len(cur.Processes) != 1 {
		t.Fatalf("baseline pair should alias the single sample, got %d/%d processes", len(prev.Processes), len(cur.Processes))
	}

	if err := store.Advance(context.Background()); err != nil {
		t.Fatalf("Advance returned error: %v", err)
	}

	prev, cur, _ = store.Pair()
	if len(prev.Processes) != 1 {
		t.Fatalf("previous should hold the baseline, got %d processes", len(prev.Processes))
	}
	if len(cur.Processes) != 2 {
		t.Fatalf("current should hold the fresh sample, got %d processes", len(cur.Processes))
	}
	if !cur.Timestamp.After(prev.Timestamp) && !cur.Timestamp.Equal(prev.Timestamp) {
		t.Fatalf("current timestamp %s precedes previous %s", cur.Timestamp, prev.Timestamp)
	}
}

func TestStoreAdvanceBeforeInitialize(t *testing.T) {
	t.Parallel()

	store, err := NewStore(&fakeSource{samples: []Sample{makeSample(1, 10)}})
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}
	if err := store.Advance(context.Background()); err == nil {
		t.Fatalf("Advance before Initialize should fail")
	}
}

func TestStoreAdvanceFailureKeepsPair(t *testing.T) {
	t.Parallel()

	src := &fakeSource{samples: []Sample{makeSample(1, 10), makeSample(2, 10)}}
	store, err := NewStore(src)
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}
	if err := store.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize returned error: %v", err)
	}
	if err := store.Advance(context.Background()); err != nil {
		t.Fatalf("Advance returned error: %v", err)
	}

	_, curBefore, _ := store.Pair()

	src.fail = true
	err = store.Advance(context.Background())
	if err == nil {
		t.Fatalf("Advance should fail when the source fails")
	}
	if !errors.Is(err, ErrSampling) {
		t.Fatalf("expected ErrSampling, got %v", err)
	}

	_, curAfter, _ := store.Pair()
	if !curAfter.Timestamp.Equal(curBefore.Timestamp) {
		t.Fatalf("failed Advance must not touch the retained pair")
	}
}

func TestStoreInitializeResets(t *testing.T) {
	t.Parallel()

	src := &fakeSource{samples: []Sample{makeSample(1, 10), makeSample(2, 10), makeSample(3, 10)}}
	store, err := NewStore(src)
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}
	if err := store.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize returned error: %v", err)
	}
	if err := store.Advance(context.Background()); err != nil {
		t.Fatalf("Advance returned error: %v", err)
	}

	// Re-initialize discards the pair and takes a fresh baseline.
	if err := store.Initialize(context.Background()); err != nil {
		t.Fatalf("re-Initialize returned error: %v", err)
	}

	prev, cur, ok := store.Pair()
	if !ok {
		t.Fatalf("Pair should be ready after re-Initialize")
	}
	if !prev.Timestamp.Equal(cur.Timestamp) {
		t.Fatalf("re-Initialize should leave an aliased baseline pair")
	}
	if prev.Processes[0].BusySeconds != 3 {
		t.Fatalf("baseline should come from the latest reading, got busy=%v", prev.Processes[0].BusySeconds)
	}
}

func TestStoreTimestampsMonotonic(t *testing.T) {
	t.Parallel()

	src := &fakeSource{samples: []Sample{makeSample(1, 10), makeSample(2, 10)}}
	store, err := NewStore(src)
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	step := 0
	store.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}

	if err := store.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize returned error: %v", err)
	}
	if err := store.Advance(context.Background()); err != nil {
		t.Fatalf("Advance returned error: %v", err)
	}

	prev, cur, _ := store.Pair()
	if got := cur.Timestamp.Sub(prev.Timestamp); got != time.Second {
		t.Fatalf("expected 1s between samples, got %s", got)
	}
}
