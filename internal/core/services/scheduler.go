package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cairn-works/cairn/internal/core/domain"
	"github.com/cairn-works/cairn/internal/core/ports/driving"
	"github.com/cairn-works/cairn/internal/logger"
)

// schedulerTick is how often the loop checks for due jobs.
const schedulerTick = time.Minute

// Ensure Scheduler implements the driving port.
var _ driving.Scheduler = (*Scheduler)(nil)

// scheduledJob is one recurring background job. Its state lives in
// memory only: a restart schedules the next run one interval out.
type scheduledJob struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) error

	nextRun time.Time
	busy    bool
}

// Scheduler periodically re-ingests collections and runs follow-up
// chase rounds. It is a pure core service with no external control API.
type Scheduler struct {
	cfg         domain.SchedulerSettings
	ingest      driving.IngestService
	tickets     driving.TicketService
	collections []string

	tick time.Duration

	mu      sync.Mutex
	jobs    []*scheduledJob
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler over the given services. Intervals
// at or below zero fall back to the defaults. A nil service disables
// its job, as does an empty collection list for the sync job.
func NewScheduler(cfg domain.SchedulerSettings, ingest driving.IngestService, tickets driving.TicketService, collections []string) *Scheduler {
	defaults := domain.DefaultSettings()
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = defaults.Scheduler.SyncInterval
	}
	if cfg.ChaseInterval <= 0 {
		cfg.ChaseInterval = defaults.Scheduler.ChaseInterval
	}
	return &Scheduler{
		cfg:         cfg,
		ingest:      ingest,
		tickets:     tickets,
		collections: collections,
		tick:        schedulerTick,
	}
}

// Start begins the scheduler loop. It blocks until Stop is called or
// the context is cancelled. Starting a disabled scheduler returns
// immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		logger.Info("scheduler disabled")
		return nil
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // Already running
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.jobs = s.buildJobs()
	s.mu.Unlock()

	logger.Info("scheduler started",
		zap.Duration("sync_interval", s.cfg.SyncInterval),
		zap.Duration("chase_interval", s.cfg.ChaseInterval),
		zap.Strings("collections", s.collections))
	return s.run(ctx)
}

// Stop gracefully shuts down the scheduler and waits for any running
// jobs to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// buildJobs assembles the recurring jobs. First runs land one interval
// after startup so a restart loop cannot hammer the sources.
func (s *Scheduler) buildJobs() []*scheduledJob {
	now := time.Now()
	var jobs []*scheduledJob
	if s.ingest != nil && len(s.collections) > 0 {
		jobs = append(jobs, &scheduledJob{
			name:     "collection sync",
			interval: s.cfg.SyncInterval,
			run:      s.syncCollections,
			nextRun:  now.Add(s.cfg.SyncInterval),
		})
	}
	if s.tickets != nil {
		jobs = append(jobs, &scheduledJob{
			name:     "follow-up chase",
			interval: s.cfg.ChaseInterval,
			run:      s.chaseRound,
			nextRun:  now.Add(s.cfg.ChaseInterval),
		})
	}
	return jobs
}

// run is the main scheduler loop.
func (s *Scheduler) run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			s.checkDueJobs(ctx)
		}
	}
}

// checkDueJobs launches every job whose next run has arrived. A job
// still running from the previous tick is left alone.
func (s *Scheduler) checkDueJobs(ctx context.Context) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.busy || job.nextRun.After(now) {
			continue
		}
		job.busy = true
		s.launchJob(ctx, job)
	}
}

// launchJob runs the job in the background. Rescheduling happens on
// completion so slow runs cannot pile up behind each other.
func (s *Scheduler) launchJob(ctx context.Context, job *scheduledJob) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		started := time.Now()
		err := job.run(ctx)

		s.mu.Lock()
		job.busy = false
		job.nextRun = time.Now().Add(job.interval)
		s.mu.Unlock()

		if err != nil {
			logger.Warn("scheduled job failed",
				zap.String("job", job.name),
				zap.Duration("took", time.Since(started)),
				zap.Error(err))
			return
		}
		logger.Debug("scheduled job complete",
			zap.String("job", job.name),
			zap.Duration("took", time.Since(started)))
	}()
}

// syncCollections re-ingests every configured collection in turn. A
// collection already mid-sync is skipped; other failures are counted
// and reported after the pass so one bad source cannot stop the rest.
func (s *Scheduler) syncCollections(ctx context.Context) error {
	failed := 0
	for _, collection := range s.collections {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		report, err := s.ingest.TriggerIngest(ctx, collection)
		switch {
		case errors.Is(err, domain.ErrSyncInProgress):
			logger.Debug("sync already running", zap.String("collection", collection))
		case errors.Is(err, domain.ErrNoAdapter):
			logger.Warn("collection has no source adapter", zap.String("collection", collection))
			failed++
		case err != nil:
			logger.Warn("scheduled sync failed",
				zap.String("collection", collection), zap.Error(err))
			failed++
		default:
			logger.Info("scheduled sync complete",
				zap.String("collection", collection),
				zap.Int("ingested", report.Ingested),
				zap.Int("unchanged", report.Unchanged),
				zap.Int("deleted", report.Deleted),
				zap.Int("failed", report.Failed))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d collections failed to sync", failed, len(s.collections))
	}
	return nil
}

// chaseRound runs one follow-up chase pass.
func (s *Scheduler) chaseRound(ctx context.Context) error {
	if _, err := s.tickets.ChaseRound(ctx); err != nil {
		return fmt.Errorf("chase round: %w", err)
	}
	return nil
}
