package scheduler

import (
	"context"
	"fmt"
	"time"

	"announcement_dispatcher/internal/app"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ActivationJobs is the work the scheduler triggers. *app.ActivationTracker implements it.
type ActivationJobs interface {
	Scan(ctx context.Context) (*app.ScanResult, error)
	Housekeep(ctx context.Context) (int64, error)
	PurgeDeliveryLog(ctx context.Context) (int64, error)
	Wait()
}

const (
	scanJobTimeout         = 90 * time.Second
	housekeepingJobTimeout = 1 * time.Minute
	retentionJobTimeout    = 5 * time.Minute
)

type NotificationScheduler struct {
	cronEngine        *cron.Cron
	jobs              ActivationJobs
	logger            *logrus.Entry
	cronSpecScan      string
	cronSpecHousekeep string
	cronSpecRetention string
}

func NewNotificationScheduler(
	jobs ActivationJobs,
	logger *logrus.Entry,
	cronSpecScan string, // e.g., "*/2 * * * *" (every 2 minutes)
	cronSpecHousekeep string, // e.g., "0 * * * *" (hourly)
	cronSpecRetention string, // e.g., "0 2 * * *" (02:00 daily)
) *NotificationScheduler {
	cronLogger := cron.PrintfLogger(logger)
	return &NotificationScheduler{
		// Windows are stored in UTC, so the schedule is too. A job still running
		// when its next tick comes is not started twice.
		cronEngine: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		jobs:              jobs,
		logger:            logger,
		cronSpecScan:      cronSpecScan,
		cronSpecHousekeep: cronSpecHousekeep,
		cronSpecRetention: cronSpecRetention,
	}
}

// Start registers the jobs and starts the cron engine. An invalid cron spec
// is returned and nothing is started.
func (s *NotificationScheduler) Start() error {
	s.logger.Info("Starting notification scheduler...")

	if _, err := s.cronEngine.AddFunc(s.cronSpecScan, s.runScan); err != nil {
		return fmt.Errorf("could not add activation scan job (%q): %w", s.cronSpecScan, err)
	}
	if _, err := s.cronEngine.AddFunc(s.cronSpecHousekeep, s.runHousekeeping); err != nil {
		return fmt.Errorf("could not add housekeeping job (%q): %w", s.cronSpecHousekeep, err)
	}
	if _, err := s.cronEngine.AddFunc(s.cronSpecRetention, s.runRetention); err != nil {
		return fmt.Errorf("could not add delivery log retention job (%q): %w", s.cronSpecRetention, err)
	}

	s.cronEngine.Start()
	s.logger.WithField("jobs", len(s.cronEngine.Entries())).Info("Notification scheduler started with jobs.")
	return nil
}

func (s *NotificationScheduler) runScan() {
	ctx, cancel := context.WithTimeout(context.Background(), scanJobTimeout)
	defer cancel()
	if _, err := s.jobs.Scan(ctx); err != nil {
		s.logger.WithError(err).Error("Activation scan cycle aborted, next tick retries")
	}
}

func (s *NotificationScheduler) runHousekeeping() {
	ctx, cancel := context.WithTimeout(context.Background(), housekeepingJobTimeout)
	defer cancel()
	if _, err := s.jobs.Housekeep(ctx); err != nil {
		s.logger.WithError(err).Error("Housekeeping failed")
	}
}

func (s *NotificationScheduler) runRetention() {
	ctx, cancel := context.WithTimeout(context.Background(), retentionJobTimeout)
	defer cancel()
	if _, err := s.jobs.PurgeDeliveryLog(ctx); err != nil {
		s.logger.WithError(err).Error("Delivery log retention failed")
	}
}

// Stop waits for running cron jobs and then for detached creation-time dispatches.
func (s *NotificationScheduler) Stop() {
	s.logger.Info("Stopping notification scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()               // Wait for graceful shutdown
	s.jobs.Wait()
	s.logger.Info("Notification scheduler gracefully stopped.")
}
