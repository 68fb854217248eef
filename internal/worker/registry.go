package worker

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Registry tracks the cancel function of each running job so a cancellation
// request only ever touches its own job.
type Registry struct {
	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
}

// NewRegistry creates an empty cancellation registry.
func NewRegistry() *Registry {
	return &Registry{cancels: make(map[uuid.UUID]context.CancelFunc)}
}

// Register derives a cancelable context for a job and records its cancel
// function. The caller must call Release when the job ends.
func (r *Registry) Register(parent context.Context, id uuid.UUID) context.Context {
	ctx, cancel := context.WithCancel(parent)
	r.mu.Lock()
	r.cancels[id] = cancel
	r.mu.Unlock()
	return ctx
}

// Cancel stops one job. It reports whether the job was running.
func (r *Registry) Cancel(id uuid.UUID) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[id]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Release drops a finished job's entry and disposes its context.
func (r *Registry) Release(id uuid.UUID) {
	r.mu.Lock()
	cancel, ok := r.cancels[id]
	delete(r.cancels, id)
	r.mu.Unlock()
	if ok {
		cancel()
	}
}
