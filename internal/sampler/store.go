package sampler

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Store retains the two most recent samples. Advance is serialized so a
// reader can never observe a half-rotated pair; Pair reads under the same
// exclusion. Samples are immutable once stored.
type Store struct {
	source Source
	now    func() time.Time

	mu       sync.RWMutex
	previous *Sample
	current  *Sample
}

// NewStore constructs a Store over the given source.
func NewStore(source Source) (*Store, error) {
	if source == nil {
		return nil, fmt.Errorf("source must not be nil")
	}
	return &Store{source: source, now: time.Now}, nil
}

// Initialize takes a baseline sample so the first Advance already has a
// previous reading to diff against. Calling it again discards both retained
// samples and starts over.
func (s *Store) Initialize(ctx context.Context) error {
	sample, err := s.take(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.previous = nil
	s.current = &sample
	s.mu.Unlock()
	return nil
}

// Advance rotates current into previous and takes a fresh sample. On a
// sampling failure the retained pair is left untouched so derived metrics
// keep reporting the last good reading.
func (s *Store) Advance(ctx context.Context) error {
	s.mu.RLock()
	initialized := s.current != nil
	s.mu.RUnlock()
	if !initialized {
		return fmt.Errorf("store not initialized")
	}

	sample, err := s.take(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.previous = s.current
	s.current = &sample
	s.mu.Unlock()
	return nil
}

// Pair returns the previous and current samples. Before the first Advance
// only the baseline exists and both returned values alias it, which yields
// zero deltas downstream. The second return is false until Initialize has
// succeeded at least once.
func (s *Store) Pair() (Sample, Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return Sample{}, Sample{}, false
	}
	if s.previous == nil {
		return *s.current, *s.current, true
	}
	return *s.previous, *s.current, true
}

func (s *Store) take(ctx context.Context) (Sample, error) {
	procs, err := s.source.Processes(ctx)
	if err != nil {
		return Sample{}, fmt.Errorf("%w: %w", ErrSampling, err)
	}
	cpuReading, err := s.source.CPU(ctx)
	if err != nil {
		return Sample{}, fmt.Errorf("%w: %w", ErrSampling, err)
	}

	return Sample{
		Timestamp: s.now().UTC(),
		Processes: procs,
		CPU:       cpuReading,
	}, nil
}
