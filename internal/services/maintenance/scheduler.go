// Package maintenance runs periodic housekeeping: expired rate-limit windows
// are swept and the storage backend is compacted.
package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ragstream/internal/interfaces"
)

// Job names
const (
	JobRateLimitSweep = "ratelimit-sweep"
	JobStorageCompact = "storage-compact"
)

// JobFunc is a unit of housekeeping work
type JobFunc func(ctx context.Context) error

// JobStatus reports the outcome of the most recent run
type JobStatus struct {
	Name      string
	Schedule  string
	LastRun   *time.Time
	LastError string
	IsRunning bool
}

type jobEntry struct {
	name      string
	schedule  string
	handler   JobFunc
	cronID    cron.EntryID
	lastRun   *time.Time
	lastError string
	isRunning bool
}

// Scheduler runs registered jobs on cron schedules. Runs never overlap.
type Scheduler struct {
	cron     *cron.Cron
	ctx      context.Context
	cancel   context.CancelFunc
	jobMu    sync.Mutex
	globalMu sync.Mutex
	jobs     map[string]*jobEntry
	running  bool
	logger   arbor.ILogger
}

// NewScheduler creates an idle scheduler
func NewScheduler(logger arbor.ILogger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(),
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*jobEntry),
		logger: logger,
	}
}

// NewDefault registers the standard housekeeping jobs on one schedule.
// compactor may be nil for backends with nothing to reclaim.
func NewDefault(schedule string, limiter interfaces.RateLimiter, compactor interfaces.Compactor, logger arbor.ILogger) (*Scheduler, error) {
	s := NewScheduler(logger)

	if err := s.RegisterJob(JobRateLimitSweep, schedule, func(ctx context.Context) error {
		removed, err := limiter.Sweep(ctx)
		if err != nil {
			return err
		}
		logger.Debug().Int("removed", removed).Msg("Expired rate limit windows removed")
		return nil
	}); err != nil {
		return nil, err
	}

	if compactor != nil {
		if err := s.RegisterJob(JobStorageCompact, schedule, compactor.Compact); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// RegisterJob adds a job. The schedule uses standard five-field cron syntax.
func (s *Scheduler) RegisterJob(name, schedule string, handler JobFunc) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	cronID, err := s.cron.AddFunc(schedule, func() {
		s.executeJob(name)
	})
	if err != nil {
		return fmt.Errorf("failed to add job to cron: %w", err)
	}

	s.jobs[name] = &jobEntry{
		name:     name,
		schedule: schedule,
		handler:  handler,
		cronID:   cronID,
	}

	s.logger.Info().
		Str("job_name", name).
		Str("schedule", schedule).
		Msg("Maintenance job registered")

	return nil
}

// Start begins running jobs on their schedules
func (s *Scheduler) Start() {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.logger.Info().Int("jobs", len(s.jobs)).Msg("Maintenance scheduler started")
}

// Stop cancels in-flight jobs and waits for them to return
func (s *Scheduler) Stop() {
	s.jobMu.Lock()
	if !s.running {
		s.jobMu.Unlock()
		return
	}
	s.running = false
	s.jobMu.Unlock()

	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Maintenance scheduler stopped")
}

// RunNow executes a job synchronously
func (s *Scheduler) RunNow(name string) error {
	s.jobMu.Lock()
	_, exists := s.jobs[name]
	s.jobMu.Unlock()
	if !exists {
		return fmt.Errorf("job %s not found", name)
	}

	s.executeJob(name)

	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	if lastError := s.jobs[name].lastError; lastError != "" {
		return fmt.Errorf("%s", lastError)
	}
	return nil
}

// Status returns a snapshot of a job's state
func (s *Scheduler) Status(name string) (*JobStatus, error) {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	entry, exists := s.jobs[name]
	if !exists {
		return nil, fmt.Errorf("job %s not found", name)
	}
	return &JobStatus{
		Name:      entry.name,
		Schedule:  entry.schedule,
		LastRun:   entry.lastRun,
		LastError: entry.lastError,
		IsRunning: entry.isRunning,
	}, nil
}

// executeJob wraps a run with panic recovery and status tracking
func (s *Scheduler) executeJob(name string) {
	s.globalMu.Lock()
	defer s.globalMu.Unlock()

	s.jobMu.Lock()
	entry, exists := s.jobs[name]
	if !exists {
		s.jobMu.Unlock()
		return
	}
	entry.isRunning = true
	handler := entry.handler
	s.jobMu.Unlock()

	start := time.Now()
	err := s.runHandler(handler)
	completed := time.Now()

	s.jobMu.Lock()
	entry.isRunning = false
	entry.lastRun = &completed
	entry.lastError = ""
	if err != nil {
		entry.lastError = err.Error()
	}
	s.jobMu.Unlock()

	if err != nil {
		s.logger.Error().
			Str("job_name", name).
			Err(err).
			Dur("duration", completed.Sub(start)).
			Msg("Maintenance job failed")
		return
	}
	s.logger.Debug().
		Str("job_name", name).
		Dur("duration", completed.Sub(start)).
		Msg("Maintenance job completed")
}

func (s *Scheduler) runHandler(handler JobFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return handler(s.ctx)
}
