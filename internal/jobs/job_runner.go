package jobs

import (
	"context"
	"time"

	"bloodlink-backend/internal/config"
	"bloodlink-backend/internal/logger"
	"bloodlink-backend/internal/metrics"
	"bloodlink-backend/internal/repository"
	"bloodlink-backend/internal/service"
)

// Locker takes a cluster-wide lock so only one instance runs a job.
type Locker interface {
	TryLock(ctx context.Context, namespace, name string, ttl time.Duration) (release func(), ok bool, err error)
}

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	donorRepo  repository.DonorRepository
	dispatcher service.NotificationDispatcher
	locker     Locker
	config     *config.Config
	now        func() time.Time
}

// NewJobRunner creates a new job runner. locker may be nil for single
// instance deployments.
func NewJobRunner(donorRepo repository.DonorRepository, dispatcher service.NotificationDispatcher, cfg *config.Config, locker Locker) *JobRunner {
	return &JobRunner{
		donorRepo:  donorRepo,
		dispatcher: dispatcher,
		locker:     locker,
		config:     cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Config exposes the configuration the scheduler registers jobs from.
func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery and, when a
// locker is configured, the cross-instance lock.
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.JobRuns.WithLabelValues(jobName, "panic").Inc()
			logger.Error("Job panicked", "job", jobName, "panic", r)
		}
	}()

	ctx := context.Background()
	if jr.locker != nil {
		release, ok, err := jr.locker.TryLock(ctx, "jobs", jobName, jr.config.Redis.LockTTL)
		switch {
		case err != nil:
			logger.Warn("Job lock unavailable, running without it", "job", jobName, "error", err)
		case !ok:
			metrics.JobRuns.WithLabelValues(jobName, "skipped").Inc()
			logger.Info("Job already running on another instance", "job", jobName)
			return
		default:
			defer release()
		}
	}

	logger.Info("Starting job", "job", jobName)
	start := time.Now()
	if err := jobFunc(ctx); err != nil {
		metrics.JobRuns.WithLabelValues(jobName, "error").Inc()
		logger.Error("Job failed", "job", jobName, "duration", time.Since(start), "error", err)
		return
	}
	metrics.JobRuns.WithLabelValues(jobName, "ok").Inc()
	logger.Info("Job completed", "job", jobName, "duration", time.Since(start))
}

// RunAllDailyJobs runs every job once (for manual execution)
func (jr *JobRunner) RunAllDailyJobs() {
	jr.RunRefreshDonorAvailability()
	jr.RunEligibilityReminders()
}
