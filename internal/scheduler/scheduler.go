package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"invoice-relay-go/config"
	"invoice-relay-go/internal/pipeline"
)

// ErrRunInProgress is returned by RunOnce while another run is active
var ErrRunInProgress = errors.New("pipeline run already in progress")

// Runner executes one pipeline run
type Runner interface {
	Execute(ctx context.Context) (*pipeline.Report, error)
}

// Scheduler runs the invoice pipeline periodically
type Scheduler struct {
	cron      *cron.Cron
	entryID   cron.EntryID
	config    *config.SchedulerConfig
	runner    Runner
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
	mu        sync.RWMutex

	runMu      sync.Mutex
	lastReport *pipeline.Report
	reportMu   sync.RWMutex
}

// NewScheduler creates a new scheduler
func NewScheduler(cfg *config.SchedulerConfig, runner Runner) *Scheduler {
	return &Scheduler{
		config: cfg,
		runner: runner,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}
	if s.config.IntervalMinutes <= 0 {
		return fmt.Errorf("scheduler interval must be greater than 0")
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	logger := cron.PrintfLogger(logrus.StandardLogger())
	s.cron = cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))

	schedule := fmt.Sprintf("@every %dm", s.config.IntervalMinutes)
	entryID, err := s.cron.AddFunc(schedule, s.runScheduled)
	if err != nil {
		s.cancel()
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.entryID = entryID
	s.cron.Start()
	s.isRunning = true

	logrus.Infof("Scheduler started with interval: %d minutes", s.config.IntervalMinutes)
	return nil
}

// Stop stops the scheduler and cancels an in-flight scheduled run
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	s.cancel()
	ctx := s.cron.Stop()

	select {
	case <-ctx.Done():
		logrus.Info("Scheduler stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Scheduler stop timeout, forcing shutdown")
	}

	s.isRunning = false
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

func (s *Scheduler) runScheduled() {
	s.mu.RLock()
	if !s.isRunning {
		s.mu.RUnlock()
		logrus.Info("Scheduler not running, skipping processing cycle")
		return
	}
	ctx := s.ctx
	s.mu.RUnlock()

	if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrRunInProgress) {
		logrus.Errorf("Scheduled pipeline run failed: %v", err)
	}
}

// RunOnce runs the pipeline now. Runs never overlap: a call made while
// another run is active returns ErrRunInProgress.
func (s *Scheduler) RunOnce(ctx context.Context) (*pipeline.Report, error) {
	if !s.runMu.TryLock() {
		logrus.Warn("Pipeline run already in progress, skipping")
		return nil, ErrRunInProgress
	}
	defer s.runMu.Unlock()

	s.wg.Add(1)
	defer s.wg.Done()

	logrus.Info("Starting invoice processing cycle")
	report, err := s.runner.Execute(ctx)
	if report != nil {
		s.reportMu.Lock()
		s.lastReport = report
		s.reportMu.Unlock()
		logrus.Infof("Invoice processing cycle completed in %v: %d/%d successful",
			report.Duration(), report.Successful, report.Total)
	}
	return report, err
}

// LastReport returns the report of the most recent run, or nil
func (s *Scheduler) LastReport() *pipeline.Report {
	s.reportMu.RLock()
	defer s.reportMu.RUnlock()
	return s.lastReport
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

// GetLastRun returns the start time of the most recent run, scheduled or manual
func (s *Scheduler) GetLastRun() time.Time {
	if r := s.LastReport(); r != nil {
		return r.StartedAt
	}
	return time.Time{}
}

// Wait waits for in-flight runs to finish
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
