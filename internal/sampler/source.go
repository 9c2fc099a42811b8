package sampler

import (
	"context"
	"errors"
)

// ErrSampling marks a total sampling failure: the OS could not be queried at
// all. Individual unreadable fields are never reported through this error,
// they degrade to zero-value defaults inside the source.
var ErrSampling = errors.New("sampling failed")

// Source supplies raw readings from the operating system. Implementations
// must return process readings in discovery order and must not reuse
// returned slices between calls.
type Source interface {
	Processes(ctx context.Context) ([]ProcessReading, error)
	CPU(ctx context.Context) (CPUReading, error)
}
