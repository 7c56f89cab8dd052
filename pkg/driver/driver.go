// Package driver runs the engine's fixed-cadence scheduling loop.
//
// One loop advances audio time in 20ms ticks. Each tick it clocks the
// attached components, closes the voice aggregation window, and advances
// queued inputs through their promotion attempts. The loop itself never
// blocks on I/O; stream creation and parsing run on a bounded worker pool
// and report back through one-shot outcome channels that the loop polls
// without waiting.
package driver

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/chorus-audio/chorus/pkg/format"
	"github.com/chorus-audio/chorus/pkg/input"
	"github.com/chorus-audio/chorus/pkg/voice"
)

// Clocked is anything that needs advancing once per tick, ahead of the
// aggregation cut. The receive path implements this.
type Clocked interface {
	Tick()
}

// Config carries the tunables and callbacks of a [Driver]. The zero value
// is usable; absent fields fall back to the documented defaults.
//
// All callbacks run on the loop goroutine, outside the driver's lock, so
// they may call back into the driver but must stay brief to hold cadence.
type Config struct {
	// TickInterval is the scheduling cadence. Defaults to
	// [voice.TickDuration].
	TickInterval time.Duration

	// Registry resolves formats during parse. Defaults to an empty
	// registry, which fails every probe.
	Registry *format.Registry

	// PromoteWorkers bounds concurrent promotion work. Defaults to 4.
	PromoteWorkers int

	// RetryLimit caps promotion attempts per input. Once an input has
	// failed this many attempts with retryable errors it is abandoned.
	// Defaults to 10.
	RetryLimit int

	// OnTick receives every closed aggregation window.
	OnTick func(voice.Tick)

	// OnReady receives each input that reaches the parsed state.
	OnReady func(*input.Input)

	// OnInputError receives each abandoned input together with its final
	// error. The input is handed over as-is; closing it is the
	// callback's responsibility.
	OnInputError func(*input.Input, error)

	// AfterTick observes how long each tick took.
	AfterTick func(time.Duration)
}

// Stats is a point-in-time snapshot of loop activity.
type Stats struct {
	Ticks   uint64 `json:"ticks"`   // ticks driven since start
	Ready   uint64 `json:"ready"`   // inputs promoted to parsed
	Failed  uint64 `json:"failed"`  // inputs abandoned
	Pending int    `json:"pending"` // inputs still queued or in flight
}

// pendingInput tracks one queued input across promotion attempts.
type pendingInput struct {
	in       *input.Input
	attempts int
	nextTry  time.Time    // zero means eligible now
	outcome  <-chan error // nil unless an attempt is in flight
}

// Driver owns the tick loop, the voice aggregator, and the promotion
// queue. Construct with [New], feed with [Driver.Enqueue], and drive with
// [Driver.Run].
type Driver struct {
	cfg  Config
	agg  *voice.Aggregator
	pool *input.PromotePool

	mu      sync.Mutex
	clocked []Clocked
	pending []*pendingInput
	stats   Stats

	done      chan struct{}
	closeOnce sync.Once
}

// New builds a stopped driver from cfg, applying defaults for unset
// fields.
func New(cfg Config) *Driver {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = voice.TickDuration
	}
	if cfg.Registry == nil {
		cfg.Registry = format.NewRegistry()
	}
	if cfg.PromoteWorkers < 1 {
		cfg.PromoteWorkers = 4
	}
	if cfg.RetryLimit < 1 {
		cfg.RetryLimit = 10
	}
	return &Driver{
		cfg:  cfg,
		agg:  voice.NewAggregator(),
		pool: input.NewPromotePool(cfg.PromoteWorkers),
		done: make(chan struct{}),
	}
}

// Aggregator exposes the driver's voice aggregator so producers can record
// into the current tick window.
func (d *Driver) Aggregator() *voice.Aggregator {
	return d.agg
}

// Attach registers c to be clocked at the start of every tick.
func (d *Driver) Attach(c Clocked) {
	d.mu.Lock()
	d.clocked = append(d.clocked, c)
	d.mu.Unlock()
}

// Enqueue queues in for promotion. The first attempt starts on the next
// tick.
func (d *Driver) Enqueue(in *input.Input) {
	d.mu.Lock()
	d.pending = append(d.pending, &pendingInput{in: in})
	d.mu.Unlock()
}

// Run drives ticks at the configured cadence until ctx is cancelled or
// [Driver.Close] is called. It returns ctx's error on cancellation and nil
// on Close.
func (d *Driver) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.done:
			return nil
		case <-ticker.C:
			d.tick(ctx, time.Now())
		}
	}
}

// Close stops a running loop. Safe to call more than once and before Run.
func (d *Driver) Close() {
	d.closeOnce.Do(func() { close(d.done) })
}

// Stats returns a snapshot of loop counters.
func (d *Driver) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	s.Pending = len(d.pending)
	return s
}

// tick performs one scheduling step. Callbacks fire after the lock is
// released so they can safely re-enter the driver.
func (d *Driver) tick(ctx context.Context, now time.Time) {
	start := time.Now()

	d.mu.Lock()
	d.stats.Ticks++
	clocked := slices.Clone(d.clocked)
	d.mu.Unlock()

	for _, c := range clocked {
		c.Tick()
	}
	window := d.agg.Finish()

	ready, failed := d.advanceInputs(ctx, now)

	if d.cfg.OnTick != nil {
		d.cfg.OnTick(window)
	}
	for _, in := range ready {
		if d.cfg.OnReady != nil {
			d.cfg.OnReady(in)
		}
	}
	for _, f := range failed {
		if d.cfg.OnInputError != nil {
			d.cfg.OnInputError(f.in, f.err)
		}
	}
	if d.cfg.AfterTick != nil {
		d.cfg.AfterTick(time.Since(start))
	}
}

type failedInput struct {
	in  *input.Input
	err error
}

// advanceInputs polls in-flight promotion outcomes and launches attempts
// that have come due. Outcome channels are drained without blocking; an
// attempt with no result yet simply stays in flight.
func (d *Driver) advanceInputs(ctx context.Context, now time.Time) (ready []*input.Input, failed []failedInput) {
	d.mu.Lock()
	defer d.mu.Unlock()

	kept := d.pending[:0]
	for _, p := range d.pending {
		switch {
		case p.outcome != nil:
			select {
			case err := <-p.outcome:
				p.outcome = nil
				if err == nil {
					d.stats.Ready++
					ready = append(ready, p.in)
					continue
				}
				wait, retryable := input.RetryDelay(err)
				if !retryable || p.attempts >= d.cfg.RetryLimit {
					d.stats.Failed++
					failed = append(failed, failedInput{in: p.in, err: err})
					continue
				}
				p.nextTry = now.Add(wait)
				kept = append(kept, p)
			default:
				kept = append(kept, p)
			}
		case now.Before(p.nextTry):
			kept = append(kept, p)
		default:
			p.attempts++
			p.outcome = d.pool.Promote(ctx, p.in, d.cfg.Registry)
			kept = append(kept, p)
		}
	}
	// Clear the tail so resolved entries do not pin their inputs.
	for i := len(kept); i < len(d.pending); i++ {
		d.pending[i] = nil
	}
	d.pending = kept
	return ready, failed
}
