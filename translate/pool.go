package translate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Pool bounds the number of requests in flight across every pipeline of a
// run. Work that does not talk to the translation service never takes a
// slot.
type Pool struct {
	sem      *semaphore.Weighted
	size     int
	requests int64
	rl       rateLimitState
}

// NewPool returns a pool allowing size concurrent requests (minimum 1).
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// Size returns the concurrency limit.
func (p *Pool) Size() int {
	return p.size
}

// Requests returns the number of requests issued through the pool.
func (p *Pool) Requests() int {
	return int(atomic.LoadInt64(&p.requests))
}

// Do runs fn while holding a slot. It waits out an active rate-limit pause
// before issuing the request.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)

	if err := p.rl.waitIfPaused(ctx); err != nil {
		return err
	}
	atomic.AddInt64(&p.requests, 1)
	return fn(ctx)
}

// Pause stops every worker from issuing requests for d. A shorter pause
// never cuts an active longer one.
func (p *Pool) Pause(d time.Duration) {
	if d <= 0 {
		return
	}
	p.rl.pause(d)
}

// ---------------------------------------------------------------------------
// Rate limit state shared by all workers
// ---------------------------------------------------------------------------

type rateLimitState struct {
	mu       sync.Mutex
	paused   int32 // atomic: 1 = paused
	pauseEnd time.Time
}

func (r *rateLimitState) isPaused() bool {
	return atomic.LoadInt32(&r.paused) == 1
}

func (r *rateLimitState) pause(duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	end := time.Now().Add(duration)
	if end.After(r.pauseEnd) {
		r.pauseEnd = end
	}
	atomic.StoreInt32(&r.paused, 1)
}

// remaining returns the time left in the pause. An expired pause is
// cleared under the same lock that pause extends it with.
func (r *rateLimitState) remaining() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	left := time.Until(r.pauseEnd)
	if left <= 0 {
		atomic.StoreInt32(&r.paused, 0)
	}
	return left
}

// waitIfPaused blocks until the rate limit pause is over.
func (r *rateLimitState) waitIfPaused(ctx context.Context) error {
	for r.isPaused() {
		left := r.remaining()
		if left <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(min(left, 100*time.Millisecond)):
		}
	}
	return nil
}
