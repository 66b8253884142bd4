// Package harness hammers a downgradable reader/writer lock with reader,
// writer and downgrader goroutines for a fixed time and reports how many
// acquisitions each kind made.
package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/thetarby/rwsem"
)

var (
	ErrStalled    = errors.New("workers did not stop within the grace period")
	ErrNotIdle    = errors.New("lock not idle after run")
	ErrAlreadyRun = errors.New("harness already run")
)

// maxRecordedFailures caps how many invariant errors a run keeps; the
// violation counter keeps counting past it.
const maxRecordedFailures = 16

// Lock is the lock under test.
type Lock interface {
	rwsem.Locker
	Occupancy() int
	Waiters() int
}

type Option func(*Harness)

func WithLogger(log *zap.Logger) Option {
	return func(h *Harness) { h.log = log }
}

// WithClock replaces the clock driving the stop timer and the grace period.
func WithClock(clock clockwork.Clock) Option {
	return func(h *Harness) { h.clock = clock }
}

// WithLock runs the harness against lock instead of a fresh *rwsem.RWSem.
func WithLock(lock Lock) Option {
	return func(h *Harness) { h.lock = lock }
}

// Harness owns one lock and the state shared by every worker of a run.
// A Harness runs once.
type Harness struct {
	cfg   Config
	lock  Lock
	clock clockwork.Clock
	log   *zap.Logger
	stats *Stats

	started  atomic.Bool
	running  atomic.Bool
	stopOnce sync.Once
	stopped  chan struct{}

	mu       sync.Mutex
	failures error
	recorded int
}

func New(cfg Config, opts ...Option) (*Harness, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	h := &Harness{
		cfg:     cfg,
		lock:    rwsem.New(),
		clock:   clockwork.NewRealClock(),
		log:     zap.NewNop(),
		stats:   newStats(),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.running.Store(true)
	return h, nil
}

// Locker returns the lock under test.
func (h *Harness) Locker() Lock {
	return h.lock
}

func (h *Harness) Stats() *Stats {
	return h.stats
}

// Running reports whether workers should start another cycle.
func (h *Harness) Running() bool {
	return h.running.Load()
}

// Stop clears the running flag. Workers finish their current cycle and
// exit. Stop may be called any number of times from any goroutine.
func (h *Harness) Stop() {
	h.stopOnce.Do(func() {
		h.log.Info("stop requested")
		h.running.Store(false)
		close(h.stopped)
	})
}

// Run starts the workers, stops them after cfg.Elapse or when ctx is done,
// waits for all of them and reports. The error combines every invariant
// violation, a worker panic, a stall and a non-idle lock.
func (h *Harness) Run(ctx context.Context) (Report, error) {
	if !h.started.CompareAndSwap(false, true) {
		return Report{}, ErrAlreadyRun
	}
	h.log.Info("starting",
		zap.Int("readers", h.cfg.Readers),
		zap.Int("writers", h.cfg.Writers),
		zap.Int("downgraders", h.cfg.Downgraders),
		zap.Duration("elapse", h.cfg.Elapse),
		zap.Bool("yield", h.cfg.Yield),
	)

	g, gctx := errgroup.WithContext(ctx)
	workers := h.workers()
	for _, w := range workers {
		g.Go(func() error { return h.runWorker(w) })
	}

	timer := h.clock.AfterFunc(h.cfg.Elapse, h.Stop)
	defer timer.Stop()
	go func() {
		select {
		case <-gctx.Done():
			h.Stop()
		case <-h.stopped:
		}
	}()

	<-h.stopped
	stallErr := h.join(workers)
	var groupErr error
	if stallErr == nil {
		groupErr = g.Wait()
	}

	report := h.report()
	err := multierr.Combine(groupErr, h.failuresErr(), stallErr)
	if stallErr == nil && report.Occupancy != 0 {
		err = multierr.Append(err, fmt.Errorf("%w: occupancy %d", ErrNotIdle, report.Occupancy))
	}

	h.log.Info("finished",
		zap.Int("occupancy", report.Occupancy),
		zap.Int64("reads_taken", report.ReadsTaken),
		zap.Int64("writes_taken", report.WritesTaken),
		zap.Int64("downgrades_taken", report.DowngradesTaken),
		zap.Int64("violations", report.Violations),
		zap.Error(err),
	)
	return report, err
}

// join waits for every worker's done signal, giving up cfg.Grace after the
// stop flag was cleared.
func (h *Harness) join(workers []*worker) error {
	grace := h.clock.NewTimer(h.cfg.Grace)
	defer grace.Stop()
	for i, w := range workers {
		select {
		case <-w.done:
		case <-grace.Chan():
			var stuck []string
			for _, w := range workers[i:] {
				select {
				case <-w.done:
				default:
					stuck = append(stuck, w.name)
				}
			}
			if len(stuck) == 0 {
				return nil
			}
			return fmt.Errorf("%w (%v): %s", ErrStalled, h.cfg.Grace, strings.Join(stuck, ", "))
		}
	}
	return nil
}

func (h *Harness) report() Report {
	return Report{
		Occupancy:       h.lock.Occupancy(),
		ReadsTaken:      h.stats.ReadsTaken(),
		WritesTaken:     h.stats.WritesTaken(),
		DowngradesTaken: h.stats.DowngradesTaken(),
		Violations:      h.stats.Violations(),
	}
}

func (h *Harness) failuresErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failures
}

// fail records a failed check made inside a critical section.
func (h *Harness) fail(fn, check string) {
	h.stats.violations.Inc()
	h.log.Error("check failed", zap.String("func", fn), zap.String("check", check))

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.recorded < maxRecordedFailures {
		h.failures = multierr.Append(h.failures, &InvariantError{Func: fn, Check: check})
		h.recorded++
	}
}
