// Package gate provides the exclusive-access lock that serialises turns on
// the single output device.
//
// There is no queue: callers either wait a bounded time for the gate
// (Acquire) or give up immediately when it is held (TryAcquire).
package gate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/teslashibe/voicegate/internal/log"
)

// ErrBusy is returned when the gate could not be acquired within the wait bound.
var ErrBusy = errors.New("gate: busy")

// Status is a point-in-time view of the gate.
type Status struct {
	Busy   bool      `json:"busy"`
	Holder string    `json:"holder,omitempty"`
	Since  time.Time `json:"since,omitempty"`
}

// Gate is a non-reentrant binary lock.
type Gate struct {
	sem    *semaphore.Weighted
	logger *slog.Logger

	mu     sync.Mutex
	holder string
	since  time.Time
}

// New creates an unheld gate.
func New(logger *slog.Logger) *Gate {
	return &Gate{
		sem:    semaphore.NewWeighted(1),
		logger: log.Or(logger).With("component", "gate"),
	}
}

// Acquire takes the gate, waiting at most wait. It returns ErrBusy when the
// wait elapses, or ctx.Err() if ctx ends first. A non-positive wait never blocks.
func (g *Gate) Acquire(ctx context.Context, wait time.Duration, holder string) error {
	if g.TryAcquire(holder) {
		return nil
	}
	if wait <= 0 {
		return ErrBusy
	}

	wctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	if err := g.sem.Acquire(wctx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		g.logger.Debug("acquire timed out", "holder", holder, "held_by", g.Status().Holder, "wait", wait)
		return ErrBusy
	}
	g.mark(holder)
	return nil
}

// TryAcquire takes the gate if it is free and reports whether it did.
func (g *Gate) TryAcquire(holder string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.sem.TryAcquire(1) {
		return false
	}
	g.markLocked(holder)
	return true
}

// Release frees the gate. Releasing an unheld gate panics.
func (g *Gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.holder = ""
	g.since = time.Time{}
	g.sem.Release(1)
}

// Do runs fn while holding the gate. The gate is released on every exit
// path, including a panic in fn.
func (g *Gate) Do(ctx context.Context, wait time.Duration, holder string, fn func() error) error {
	if err := g.Acquire(ctx, wait, holder); err != nil {
		return err
	}
	defer g.Release()
	return fn()
}

// TryDo runs fn only if the gate is free, and reports whether it ran.
func (g *Gate) TryDo(holder string, fn func()) bool {
	if !g.TryAcquire(holder) {
		return false
	}
	defer g.Release()
	fn()
	return true
}

// Status reports whether the gate is held and by whom. Busy follows the
// semaphore itself: a waiter that was just handed the gate reports Busy
// before its holder name is recorded.
func (g *Gate) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.holder != "" {
		return Status{Busy: true, Holder: g.holder, Since: g.since}
	}
	// Every other TryAcquire and Release runs under mu, so this check
	// cannot make them fail.
	if g.sem.TryAcquire(1) {
		g.sem.Release(1)
		return Status{}
	}
	return Status{Busy: true}
}

func (g *Gate) mark(holder string) {
	g.mu.Lock()
	g.markLocked(holder)
	g.mu.Unlock()
}

func (g *Gate) markLocked(holder string) {
	if holder == "" {
		holder = "anonymous"
	}
	g.holder = holder
	g.since = time.Now()
}
