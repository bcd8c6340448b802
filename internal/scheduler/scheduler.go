package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"mailbox-poller/internal/dispatcher"
	"mailbox-poller/internal/metrics"
	"mailbox-poller/internal/model"
)

const stopTimeout = 30 * time.Second

// AccountFinder lists the accounts due for a mailbox check
type AccountFinder interface {
	FindEligibleForPolling(ctx context.Context, now time.Time) ([]model.Account, error)
}

// Dispatcher hands a user to the worker pool without blocking
type Dispatcher interface {
	Dispatch(userID uint, now time.Time) (dispatcher.Result, error)
}

// Scheduler triggers a polling tick at a fixed interval. A tick only
// selects eligible accounts and dispatches them; it never talks to a
// mailbox itself.
type Scheduler struct {
	cron       *cron.Cron
	entryID    cron.EntryID
	interval   time.Duration
	accounts   AccountFinder
	dispatcher Dispatcher
	metrics    *metrics.Metrics
	clock      func() time.Time
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	isRunning  bool
	mu         sync.RWMutex
}

// NewScheduler creates a new scheduler
func NewScheduler(interval time.Duration, accounts AccountFinder, d Dispatcher, m *metrics.Metrics) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		interval:   interval,
		accounts:   accounts,
		dispatcher: d,
		metrics:    m,
		clock:      time.Now,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func newCron() *cron.Cron {
	logger := cron.PrintfLogger(logrus.StandardLogger())
	return cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}
	if s.interval <= 0 {
		return fmt.Errorf("invalid poll interval %v", s.interval)
	}

	// a stopped cron cannot be reused and its context is cancelled
	ctx, cancel := context.WithCancel(context.Background())
	s.ctx, s.cancel = ctx, cancel
	s.cron = newCron()
	s.entryID = s.cron.Schedule(cron.Every(s.interval), cron.FuncJob(func() {
		// failures are logged and counted inside tick
		_ = s.tick(ctx)
	}))
	s.cron.Start()
	s.isRunning = true

	logrus.Infof("Scheduler started with interval: %v", s.interval)
	return nil
}

// Stop stops the scheduler and waits for a running tick to finish
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	ctx := s.cron.Stop()
	s.isRunning = false
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		logrus.Info("Scheduler stopped gracefully")
	case <-time.After(stopTimeout):
		logrus.Warn("Scheduler stop timeout, forcing shutdown")
	}
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// RunOnce runs a single tick immediately, whether or not the scheduler is
// started. It does not use the cron context, which Stop cancels.
func (s *Scheduler) RunOnce() error {
	logrus.Info("Running polling tick once")
	return s.tick(context.Background())
}

func (s *Scheduler) tick(ctx context.Context) error {
	s.wg.Add(1)
	defer s.wg.Done()

	now := s.clock()
	s.metrics.Ticks.Inc()

	accounts, err := s.accounts.FindEligibleForPolling(ctx, now)
	if err != nil {
		logrus.WithError(err).Error("Failed to load eligible accounts")
		s.metrics.TickFailures.Inc()
		return fmt.Errorf("load eligible accounts: %w", err)
	}

	logrus.Debugf("Dispatching %d eligible accounts", len(accounts))
	accepted := 0
	for _, account := range accounts {
		if s.dispatch(account.ID, now) {
			accepted++
		}
	}
	if len(accounts) > 0 {
		logrus.WithFields(logrus.Fields{
			"eligible": len(accounts),
			"accepted": accepted,
		}).Info("Polling tick dispatched")
	}
	return nil
}

// dispatch submits one account; a panic here must not end the tick.
func (s *Scheduler) dispatch(userID uint, now time.Time) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("user_id", userID).Errorf("Panic while dispatching: %v", r)
			ok = false
		}
	}()

	result, err := s.dispatcher.Dispatch(userID, now)
	if err != nil {
		// already logged by the dispatcher
		return false
	}
	return result == dispatcher.Accepted
}

// GetNextRun returns the time of the next scheduled run
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// GetLastRun returns the time of the last run
func (s *Scheduler) GetLastRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Prev
}

// Wait waits for a running tick to return
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
