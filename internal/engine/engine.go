// Package engine exposes the sampling core to a presentation layer: a small
// state machine of init, refresh, snapshot getters and handle release.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/openmon/procmon/internal/metrics"
	"github.com/openmon/procmon/internal/sampler"
)

// ErrNotInitialized is returned by every operation invoked before Init has
// succeeded.
var ErrNotInitialized = errors.New("engine not initialized")

// Update pairs the two snapshots produced by one successful refresh, for
// delivery to subscribers.
type Update struct {
	Processes metrics.ProcessSnapshot `json:"processes"`
	CPU       metrics.CPUSnapshot     `json:"cpu"`
}

// Stats counts refresh outcomes since Init.
type Stats struct {
	Refreshes     uint64
	RefreshErrors uint64
	LastRefresh   time.Time
	LastRefreshOK bool
}

// Engine owns the sample store and the snapshots computed from it. Refresh
// is the only mutating operation and is serialized by the store; the getters
// hand out independently owned copies, so callers never share state with the
// engine or with each other.
type Engine struct {
	store  *sampler.Store
	logger *slog.Logger

	mu            sync.RWMutex
	ready         bool
	processes     metrics.ProcessSnapshot
	cpu           metrics.CPUSnapshot
	refreshes     uint64
	refreshErrors uint64
	lastRefresh   time.Time
	lastRefreshOK bool

	subMu       sync.Mutex
	subscribers map[*subscriber]struct{}
}

// New constructs an Engine over the given raw source. The engine starts
// uninitialized; call Init before anything else.
func New(source sampler.Source, logger *slog.Logger) (*Engine, error) {
	store, err := sampler.NewStore(source)
	if err != nil {
		return nil, fmt.Errorf("init sample store: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		store:       store,
		logger:      logger.With("component", "engine"),
		subscribers: make(map[*subscriber]struct{}),
	}, nil
}

// Init takes the baseline sample and moves the engine to the ready state.
// Calling it on a ready engine resets the store and starts over.
func (e *Engine) Init(ctx context.Context) error {
	if err := e.store.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	prev, cur, _ := e.store.Pair()
	procs, cpu := metrics.Compute(prev, cur)

	e.mu.Lock()
	e.ready = true
	e.processes = procs
	e.cpu = cpu
	e.refreshes = 0
	e.refreshErrors = 0
	e.lastRefresh = cur.Timestamp
	e.lastRefreshOK = true
	e.mu.Unlock()

	e.logger.Info("engine initialized", "processes", procs.Count(), "cores", cpu.CoreCount)
	return nil
}

// Refresh advances the sample store and recomputes both snapshots. On a
// sampling failure the previously computed snapshots stay in place and the
// error is returned, so callers can tell that the data did not advance.
func (e *Engine) Refresh(ctx context.Context) error {
	if !e.Ready() {
		return ErrNotInitialized
	}

	if err := e.store.Advance(ctx); err != nil {
		e.mu.Lock()
		e.refreshErrors++
		e.lastRefreshOK = false
		e.mu.Unlock()
		return fmt.Errorf("refresh: %w", err)
	}

	prev, cur, _ := e.store.Pair()
	procs, cpu := metrics.Compute(prev, cur)

	e.mu.Lock()
	e.processes = procs
	e.cpu = cpu
	e.refreshes++
	e.lastRefresh = cur.Timestamp
	e.lastRefreshOK = true
	e.mu.Unlock()

	e.publish(Update{Processes: procs, CPU: cpu})
	return nil
}

// Processes returns a freshly owned handle over every process known as of
// the last refresh. Safe to call repeatedly without refreshing; each call
// yields an independent handle.
func (e *Engine) Processes() (*ProcessListHandle, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.ready {
		return nil, ErrNotInitialized
	}
	return newProcessListHandle(e.processes), nil
}

// HighCPUProcesses returns a handle over the processes whose usage strictly
// exceeds threshold, in the same order as Processes. Any threshold is valid.
func (e *Engine) HighCPUProcesses(threshold float64) (*ProcessListHandle, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.ready {
		return nil, ErrNotInitialized
	}
	return newProcessListHandle(metrics.FilterHighCPU(e.processes, threshold)), nil
}

// UnkillableProcesses returns a handle over zombies and processes stuck in
// uninterruptible sleep.
func (e *Engine) UnkillableProcesses() (*ProcessListHandle, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.ready {
		return nil, ErrNotInitialized
	}
	return newProcessListHandle(metrics.FilterUnkillable(e.processes)), nil
}

// Process looks up a single process by pid in the last computed snapshot.
func (e *Engine) Process(pid uint32) (metrics.ProcessRecord, bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.ready {
		return metrics.ProcessRecord{}, false, ErrNotInitialized
	}
	for _, record := range e.processes.Processes {
		if record.PID == pid {
			return record, true, nil
		}
	}
	return metrics.ProcessRecord{}, false, nil
}

// CPUMetrics returns a freshly owned handle over the aggregate CPU snapshot
// as of the last refresh.
func (e *Engine) CPUMetrics() (*CPUMetricsHandle, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.ready {
		return nil, ErrNotInitialized
	}
	return newCPUMetricsHandle(e.cpu), nil
}

// Ready reports whether Init has succeeded.
func (e *Engine) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ready
}

// Stats reports refresh counters for observability surfaces.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{
		Refreshes:     e.refreshes,
		RefreshErrors: e.refreshErrors,
		LastRefresh:   e.lastRefresh,
		LastRefreshOK: e.lastRefreshOK,
	}
}

// Subscribe registers a listener that receives an update after every
// successful refresh. The returned cancel function must be called to stop
// delivery. Slow consumers lose the oldest pending update, never the newest.
func (e *Engine) Subscribe() (<-chan Update, func()) {
	sub := newSubscriber()

	e.subMu.Lock()
	e.subscribers[sub] = struct{}{}
	e.subMu.Unlock()

	e.mu.RLock()
	if e.ready {
		sub.send(Update{Processes: e.processes, CPU: e.cpu})
	}
	e.mu.RUnlock()

	cancel := func() {
		e.subMu.Lock()
		delete(e.subscribers, sub)
		e.subMu.Unlock()
		sub.close()
	}
	return sub.channel(), cancel
}

func (e *Engine) publish(update Update) {
	e.subMu.Lock()
	subs := make([]*subscriber, 0, len(e.subscribers))
	for sub := range e.subscribers {
		subs = append(subs, sub)
	}
	e.subMu.Unlock()

	for _, sub := range subs {
		sub.send(update)
	}
}

type subscriber struct {
	ch     chan Update
	mu     sync.Mutex
	closed bool
}

func newSubscriber() *subscriber {
	return &subscriber{ch: make(chan Update, 1)}
}

func (s *subscriber) channel() <-chan Update {
	return s.ch
}

func (s *subscriber) send(update Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- update:
		return
	default:
		// Drop oldest to make room for the new update.
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- update:
		default:
		}
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	close(s.ch)
	s.closed = true
}
