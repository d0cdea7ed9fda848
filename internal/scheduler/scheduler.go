package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/config"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/pkg/models"
)

// JobCreator registers new jobs before they are enqueued
type JobCreator interface {
	Create(ctx context.Context, jobType string) (*models.SyncJob, error)
}

// Publisher pushes sync messages onto the job queue
type Publisher interface {
	Publish(ctx context.Context, msg *models.SyncMessage) error
}

// Scheduler drives the periodic sync cadence. Each tick creates a tracked
// job and enqueues the matching message; workers pick it up from the queue.
type Scheduler struct {
	cron      *cron.Cron
	tracker   JobCreator
	publisher Publisher
	cfg       config.SyncConfig
}

// New creates a scheduler from the configured cron expressions
func New(tracker JobCreator, publisher Publisher, cfg config.SyncConfig) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		tracker:   tracker,
		publisher: publisher,
		cfg:       cfg,
	}
}

// Start registers the periodic jobs and begins ticking
func (s *Scheduler) Start() error {
	entries := []struct {
		spec    string
		jobType string
	}{
		{s.cfg.FullSyncCron, models.JobFullSync},
		{s.cfg.IncrementalCron, models.JobIncrementalSync},
		{s.cfg.StaticDataCron, models.JobSyncStaticData},
		{s.cfg.CacheCleanupCron, models.JobCleanupExpiredCache},
		{s.cfg.PrefetchCron, models.JobPrefetchPopular},
	}

	for _, entry := range entries {
		if entry.spec == "" {
			continue
		}
		jobType := entry.jobType
		if _, err := s.cron.AddFunc(entry.spec, func() { s.enqueue(jobType) }); err != nil {
			return fmt.Errorf("failed to schedule %s (%q): %w", jobType, entry.spec, err)
		}
	}

	s.cron.Start()
	log.Info().Msg("sync scheduler started")
	return nil
}

// Stop halts the tick loop, waiting for a running dispatch to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info().Msg("sync scheduler stopped")
}

func (s *Scheduler) enqueue(jobType string) {
	ctx := context.Background()

	job, err := s.tracker.Create(ctx, jobType)
	if err != nil {
		log.Error().Err(err).Str("type", jobType).Msg("failed to create scheduled job")
		return
	}

	msg := &models.SyncMessage{
		JobID: job.ID,
		Type:  jobType,
	}
	if err := s.publisher.Publish(ctx, msg); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Str("type", jobType).
			Msg("failed to enqueue scheduled job")
		return
	}

	log.Info().Str("job_id", job.ID).Str("type", jobType).Msg("scheduled job enqueued")
}
