package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"accountpulse/internal/metrics"
)

var errPanic = errors.New("job panicked")

// Schedule pairs a job with how often it runs.
type Schedule struct {
	Job      Job
	Interval time.Duration
}

// Scheduler is responsible for running background jobs
type Scheduler struct {
	logger    *slog.Logger
	metrics   *metrics.Metrics
	schedules []Schedule
	ctx       context.Context
	cancel    context.CancelFunc
	enabled   bool
	isRunning bool
	wg        sync.WaitGroup

	// Guards against overlapping runs of the same job
	processingMutex sync.Mutex
	processing      map[string]bool

	tickers []*time.Ticker
}

func NewScheduler(logger *slog.Logger, m *metrics.Metrics, schedules ...Schedule) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger:     logger,
		metrics:    m,
		schedules:  schedules,
		ctx:        ctx,
		cancel:     cancel,
		enabled:    true,
		processing: make(map[string]bool),
	}
}

// executeJobSafely runs a job only if the previous run of the same job has
// finished. It reports whether the job ran.
func (s *Scheduler) executeJobSafely(job Job) bool {
	name := job.Name()

	s.processingMutex.Lock()
	if s.processing[name] {
		s.logger.Debug("Skipping job execution - previous run still in progress", slog.String("job", name))
		s.processingMutex.Unlock()
		return false
	}
	s.processing[name] = true
	s.processingMutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", name),
				slog.Any("panic", r))
			s.metrics.ObserveJobRun(name, errPanic)
		}

		s.processingMutex.Lock()
		s.processing[name] = false
		s.processingMutex.Unlock()
	}()

	started := time.Now()
	err := job.Run(s.ctx)
	s.metrics.ObserveJobRun(name, err)
	if err != nil {
		s.logger.Error("Error executing job", slog.String("job", name), slog.Any("error", err))
		return true
	}
	s.logger.Info("Job finished", slog.String("job", name), slog.Duration("duration", time.Since(started)))
	return true
}

// Start begins all background jobs. Each job runs once immediately and then
// on its interval.
func (s *Scheduler) Start() error {
	if !s.enabled {
		s.logger.Info("Background jobs are disabled.")
		return nil
	}

	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}

	s.logger.Info("Starting background jobs...")
	s.isRunning = true

	for _, schedule := range s.schedules {
		s.startJob(schedule)
	}

	s.logger.Info("Background jobs started", slog.Int("jobs", len(s.schedules)))
	return nil
}

func (s *Scheduler) startJob(schedule Schedule) {
	job := schedule.Job
	s.logger.Info("Starting job", slog.String("job", job.Name()), slog.Duration("interval", schedule.Interval))
	ticker := time.NewTicker(schedule.Interval)
	s.tickers = append(s.tickers, ticker)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.executeJobSafely(job)

		for {
			select {
			case <-ticker.C:
				s.executeJobSafely(job)
			case <-s.ctx.Done():
				s.logger.Info("Job stopped", slog.String("job", job.Name()))
				return
			}
		}
	}()
}

// Stop halts all background jobs and waits for running ones to return.
// Implements cartridge.BackgroundWorker interface.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background jobs...")
	s.enabled = false

	for _, ticker := range s.tickers {
		ticker.Stop()
	}

	s.cancel()
	s.wg.Wait()
	s.isRunning = false
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	return s.isRunning
}

// RunNow executes a registered job immediately, outside its schedule. It
// returns false when no job has that name or a run is already in progress.
func (s *Scheduler) RunNow(name string) bool {
	for _, schedule := range s.schedules {
		if schedule.Job.Name() == name {
			return s.executeJobSafely(schedule.Job)
		}
	}
	return false
}
