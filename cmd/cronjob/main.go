package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"bloodlink-backend/internal/app"
	"bloodlink-backend/internal/config"
	"bloodlink-backend/internal/jobs"
	"bloodlink-backend/internal/logger"
	"bloodlink-backend/internal/scheduler"
)

var jobNames = []string{"send-eligibility-reminders", "refresh-donor-availability", "all-daily"}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "cronjob",
		Short:         "Runs the BloodLink scheduled donor jobs",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config/config.dev.yaml", "Path to configuration file")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Start the cron scheduler and block until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobRunner(cmd.Context(), configPath, func(ctx context.Context, jr *jobs.JobRunner) error {
				cronScheduler, err := scheduler.NewScheduler(jr)
				if err != nil {
					return err
				}
				cronScheduler.Start()
				logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.")

				<-ctx.Done()

				logger.Info("Shutting down cronjob scheduler...")
				cronScheduler.Stop()
				logger.Info("Cronjob scheduler stopped. Goodbye!")
				return nil
			})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:       "run-once <job>",
		Short:     "Run a single job once and exit",
		Long:      fmt.Sprintf("Run a single job once and exit. Available jobs: %v", jobNames),
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: jobNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobRunner(cmd.Context(), configPath, func(ctx context.Context, jr *jobs.JobRunner) error {
				logger.Info("Running job once", "job", args[0])
				runJobOnce(jr, args[0])
				logger.Info("Job execution completed", "job", args[0])
				return nil
			})
		},
	})

	return root
}

func withJobRunner(parent context.Context, configPath string, fn func(ctx context.Context, jr *jobs.JobRunner) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting BloodLink Cronjob Runner...", "log_level", cfg.Log.Level)

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := fn(ctx, jobs.NewJobRunner(a.Store.Donors(), a.Dispatcher, cfg, a.Locker())); err != nil {
		return err
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	a.Flush(flushCtx)
	return nil
}

// runJobOnce runs a specific job once
func runJobOnce(jobRunner *jobs.JobRunner, jobName string) {
	switch jobName {
	case "send-eligibility-reminders":
		jobRunner.RunEligibilityReminders()
	case "refresh-donor-availability":
		jobRunner.RunRefreshDonorAvailability()
	case "all-daily":
		jobRunner.RunAllDailyJobs()
	}
}
