package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"mailbox-poller/internal/metrics"
)

var (
	// ErrQueueFull is returned when the queue is full and every worker is busy.
	ErrQueueFull = errors.New("worker pool saturated")
	// ErrShuttingDown is returned for submissions after Shutdown.
	ErrShuttingDown = errors.New("dispatcher is shutting down")
	// ErrDrainTimeout is returned when queued work did not finish in time.
	ErrDrainTimeout = errors.New("dispatcher drain timed out")
)

// Result describes what happened to a dispatch request
type Result int

const (
	Accepted Result = iota
	DuplicateInFlight
	Rejected
)

func (r Result) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case DuplicateInFlight:
		return "duplicate"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// RunFunc processes one user. It runs on a pool worker.
type RunFunc func(ctx context.Context, userID uint, now time.Time)

// Config sizes the worker pool
type Config struct {
	CoreWorkers   int
	MaxWorkers    int
	QueueCapacity int
	NamePrefix    string
	KeepAlive     time.Duration
	DrainTimeout  time.Duration
}

type job struct {
	userID uint
	now    time.Time
}

// Dispatcher runs at most one job per user at a time on a bounded pool.
// Core workers live until shutdown; when the queue is full, extra workers
// up to MaxWorkers are started and exit after KeepAlive of idleness.
type Dispatcher struct {
	cfg      Config
	run      RunFunc
	inFlight *InFlight
	metrics  *metrics.Metrics
	ctx      context.Context
	jobs     chan job

	mu         sync.Mutex
	workers    int
	nextWorker int
	closed     bool
	wg         sync.WaitGroup
}

// New starts the core workers.
func New(cfg Config, run RunFunc, inFlight *InFlight, m *metrics.Metrics) *Dispatcher {
	if cfg.CoreWorkers < 1 {
		cfg.CoreWorkers = 1
	}
	if cfg.MaxWorkers < cfg.CoreWorkers {
		cfg.MaxWorkers = cfg.CoreWorkers
	}
	if cfg.QueueCapacity < 0 {
		cfg.QueueCapacity = 0
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = time.Minute
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = time.Minute
	}

	d := &Dispatcher{
		cfg:      cfg,
		run:      run,
		inFlight: inFlight,
		metrics:  m,
		ctx:      context.Background(),
		jobs:     make(chan job, cfg.QueueCapacity),
	}

	d.mu.Lock()
	for i := 0; i < cfg.CoreWorkers; i++ {
		d.startWorker(nil, true)
	}
	d.mu.Unlock()

	return d
}

// Dispatch submits userID unless it is already in flight. It never blocks.
func (d *Dispatcher) Dispatch(userID uint, now time.Time) (Result, error) {
	if !d.inFlight.TryAdd(userID) {
		logrus.WithField("user_id", userID).Debug("User already in flight, skipping")
		d.record(DuplicateInFlight)
		return DuplicateInFlight, nil
	}

	if err := d.submit(job{userID: userID, now: now}); err != nil {
		d.inFlight.Remove(userID)
		logrus.WithFields(logrus.Fields{
			"user_id":   userID,
			"in_flight": d.inFlight.Len(),
		}).Warnf("Dispatch rejected: %v", err)
		d.record(Rejected)
		return Rejected, err
	}

	d.record(Accepted)
	return Accepted, nil
}

func (d *Dispatcher) submit(j job) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrShuttingDown
	}

	select {
	case d.jobs <- j:
		return nil
	default:
	}

	if d.workers < d.cfg.MaxWorkers {
		d.startWorker(&j, false)
		return nil
	}
	return ErrQueueFull
}

// startWorker must be called with d.mu held.
func (d *Dispatcher) startWorker(first *job, core bool) {
	d.workers++
	d.nextWorker++
	name := fmt.Sprintf("%s%d", d.cfg.NamePrefix, d.nextWorker)
	d.wg.Add(1)
	go d.worker(name, first, core)
}

func (d *Dispatcher) worker(name string, first *job, core bool) {
	defer d.wg.Done()
	defer func() {
		d.mu.Lock()
		d.workers--
		d.mu.Unlock()
	}()

	if first != nil {
		d.execute(name, *first)
	}

	if core {
		for j := range d.jobs {
			d.execute(name, j)
		}
		return
	}

	idle := time.NewTimer(d.cfg.KeepAlive)
	defer idle.Stop()
	for {
		select {
		case j, ok := <-d.jobs:
			if !ok {
				return
			}
			d.execute(name, j)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(d.cfg.KeepAlive)
		case <-idle.C:
			logrus.WithField("worker", name).Debug("Idle worker exiting")
			return
		}
	}
}

func (d *Dispatcher) execute(worker string, j job) {
	defer d.updateInFlightGauge()
	defer d.inFlight.Remove(j.userID)
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"worker":  worker,
				"user_id": j.userID,
			}).Errorf("Panic while processing user: %v\n%s", r, debug.Stack())
		}
	}()

	d.updateInFlightGauge()
	logrus.WithFields(logrus.Fields{
		"worker":  worker,
		"user_id": j.userID,
	}).Debug("Processing user")

	d.run(d.ctx, j.userID, j.now)
}

// Shutdown stops accepting work and waits for queued and running jobs.
// Jobs still running when the drain period ends are abandoned.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(d.cfg.DrainTimeout)
	defer timer.Stop()

	select {
	case <-done:
		logrus.Info("Dispatcher drained")
		return nil
	case <-timer.C:
		logrus.WithField("in_flight", d.inFlight.Len()).Warn("Dispatcher drain timeout, abandoning running jobs")
		return ErrDrainTimeout
	case <-ctx.Done():
		logrus.WithField("in_flight", d.inFlight.Len()).Warn("Dispatcher shutdown cancelled, abandoning running jobs")
		return fmt.Errorf("%w: %v", ErrDrainTimeout, ctx.Err())
	}
}

// InFlightCount returns the number of users queued or being processed.
func (d *Dispatcher) InFlightCount() int {
	return d.inFlight.Len()
}

// Workers returns the number of live worker goroutines.
func (d *Dispatcher) Workers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.workers
}

func (d *Dispatcher) record(r Result) {
	if d.metrics == nil {
		return
	}
	d.metrics.Dispatches.WithLabelValues(r.String()).Inc()
	d.updateInFlightGauge()
}

func (d *Dispatcher) updateInFlightGauge() {
	if d.metrics == nil {
		return
	}
	d.metrics.InFlight.Set(float64(d.inFlight.Len()))
}
