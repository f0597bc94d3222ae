package lease

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Local is an in-process lease. Acquisition honors the caller's context, so
// a cancelled loop never deadlocks waiting on a sibling.
type Local struct {
	sem *semaphore.Weighted
}

// NewLocal creates a lease shared by loops in this process.
func NewLocal() *Local {
	return &Local{sem: semaphore.NewWeighted(1)}
}

// Acquire blocks until the lease is free or ctx ends. The returned release
// is safe to call more than once.
func (l *Local) Acquire(ctx context.Context) (func(), error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() { l.sem.Release(1) })
	}, nil
}
