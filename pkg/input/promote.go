package input

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/semaphore"

	"github.com/chorus-audio/chorus/pkg/format"
)

// PromotePool runs input promotion, the blocking create-plus-parse work,
// off the engine's tick goroutine.
//
// Every submitted job yields exactly one terminal outcome on its result
// channel: nil once the input is parsed, the classified creation or parse
// error otherwise, with worker panics converted to [ErrParsePanicked].
// Ownership of the input passes to the pool when a job is submitted and
// returns to the caller together with the outcome.
type PromotePool struct {
	sem *semaphore.Weighted
}

// NewPromotePool bounds concurrent promotion work to n workers. Values
// below one are treated as one.
func NewPromotePool(n int) *PromotePool {
	if n < 1 {
		n = 1
	}
	return &PromotePool{sem: semaphore.NewWeighted(int64(n))}
}

// Promote schedules create-plus-parse for in and returns its one-shot
// outcome channel. The channel is buffered, so a caller that collects late
// never loses the result. The input must not be touched until the outcome
// has been received.
//
// Cancelling ctx before a worker slot frees up aborts the job with the
// context's error as its outcome.
func (p *PromotePool) Promote(ctx context.Context, in *Input, reg *format.Registry) <-chan error {
	out := make(chan error, 1)
	go func() {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			out <- fmt.Errorf("input: promotion aborted: %w", err)
			return
		}
		defer p.sem.Release(1)
		out <- promote(ctx, in, reg)
	}()
	return out
}

// promote runs the blocking work and converts panics into a terminal
// outcome, so a die-off inside a format parser cannot take the engine
// down or leave the job without a result.
func promote(ctx context.Context, in *Input, reg *format.Registry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("input promotion worker panicked", "panic", r)
			err = fmt.Errorf("%w: %v", ErrParsePanicked, r)
		}
	}()
	return in.Parse(ctx, reg)
}
