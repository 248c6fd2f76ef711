package simulator

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/viewfactor/internal/timeutil"
)

// Published is the most recent result a Runner accepted.
type Published struct {
	Seq         uint64    `json:"seq"`
	Result      *Result   `json:"result"`
	PublishedAt time.Time `json:"published_at"`
}

// RunnerStats counts what happened to submitted requests.
type RunnerStats struct {
	Submitted uint64 `json:"submitted"`
	Published uint64 `json:"published"`
	Discarded uint64 `json:"discarded"`
}

// Runner serialises interactive simulation requests so that only the newest
// one is ever published. Submitting a request cancels whichever request was
// in flight; a request that finishes after a newer one was submitted is
// discarded even if it completed successfully.
type Runner struct {
	mu       sync.Mutex
	seq      uint64
	cancel   context.CancelFunc
	latest   *Published
	stats    RunnerStats
	clock    timeutil.Clock
	simulate func(context.Context, Config, Trajectory) (*Result, error)
}

// NewRunner creates a Runner backed by Simulate.
func NewRunner() *Runner {
	return &Runner{clock: timeutil.RealClock{}, simulate: Simulate}
}

// SetClock replaces the clock used to stamp published results.
func (r *Runner) SetClock(c timeutil.Clock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = c
}

// Submit runs a simulation as the newest request. It blocks until the
// simulation finishes or is superseded. The returned sequence number
// identifies the request either way.
func (r *Runner) Submit(ctx context.Context, cfg Config, traj Trajectory) (uint64, *Result, error) {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.seq++
	seq := r.seq
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.stats.Submitted++
	r.mu.Unlock()
	defer cancel()

	res, err := r.simulate(runCtx, cfg, traj)

	r.mu.Lock()
	defer r.mu.Unlock()
	if seq != r.seq {
		r.stats.Discarded++
		return seq, nil, ErrSuperseded
	}
	r.cancel = nil
	if err != nil {
		return seq, nil, err
	}
	r.latest = &Published{Seq: seq, Result: res, PublishedAt: r.clock.Now()}
	r.stats.Published++
	return seq, res, nil
}

// Latest returns the last published result, or nil if none.
func (r *Runner) Latest() *Published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest
}

// Stats returns a snapshot of the request counters.
func (r *Runner) Stats() RunnerStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Stop cancels any in-flight request.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}
