package jobs

import (
	"context"
	"fmt"

	"bloodlink-backend/internal/domain"
	"bloodlink-backend/internal/email"
	"bloodlink-backend/internal/logger"
	"bloodlink-backend/internal/metrics"
	"bloodlink-backend/internal/service"
)

type ReminderStats struct {
	Scanned int
	Sent    int
	Skipped int
	Failed  int
}

// SendEligibilityReminders reminds every donor whose cooldown has ended
// and who has not been reminded for the current window. The window is
// claimed before the notification goes out, so two overlapping runs can
// never remind the same donor twice. A failed notification releases the
// claim and the next run retries it.
func (jr *JobRunner) SendEligibilityReminders(ctx context.Context) (ReminderStats, error) {
	var stats ReminderStats
	now := jr.now()

	donors, err := jr.donorRepo.ListDueForReminder(ctx, now)
	if err != nil {
		return stats, fmt.Errorf("failed to list donors due for reminder: %w", err)
	}

	for _, d := range donors {
		stats.Scanned++
		if d.NextEligibleDate == nil || d.RemindedForCurrentWindow() {
			stats.Skipped++
			continue
		}
		if elig := service.ComputeEligibility(d.LastDonationDate, now); elig.Known && !elig.IsAvailable {
			stats.Skipped++
			continue
		}

		window := *d.NextEligibleDate
		claimed, err := jr.donorRepo.MarkReminderSent(ctx, d.UserID, window)
		if err != nil {
			stats.Failed++
			logger.Error("Failed to claim reminder window", "donorID", d.UserID, "window", window, "error", err)
			continue
		}
		if !claimed {
			stats.Skipped++
			continue
		}

		_, err = jr.dispatcher.Notify(ctx, []int32{d.UserID}, domain.NotificationPayload{
			Type:     domain.NotificationTypeEligibilityReminder,
			Title:    "You can donate again",
			Message:  fmt.Sprintf("Your 90 day cooldown ended on %s. %s donors are always needed.", window.Format("Jan 2, 2006"), d.BloodGroup),
			Related:  &domain.EntityRef{Type: domain.EntityDonor, ID: d.UserID},
			Priority: domain.PriorityMedium,
			Email: &domain.EmailContent{
				Template: email.TemplateEligibilityReminder,
				Data: map[string]any{
					"NextEligibleDate": window.Format("Jan 2, 2006"),
					"BloodGroup":       string(d.BloodGroup),
				},
			},
		})
		if err != nil {
			stats.Failed++
			logger.Error("Failed to send eligibility reminder", "donorID", d.UserID, "error", err)
			if relErr := jr.donorRepo.ReleaseReminder(ctx, d.UserID, window, d.ReminderSentFor); relErr != nil {
				logger.Error("Failed to release reminder window", "donorID", d.UserID, "window", window, "error", relErr)
			}
			continue
		}
		stats.Sent++
		metrics.RemindersSent.Inc()
	}

	logger.Info("Eligibility reminders processed", "scanned", stats.Scanned, "sent", stats.Sent, "skipped", stats.Skipped, "failed", stats.Failed)
	return stats, nil
}

// RunEligibilityReminders is the scheduled entry point.
func (jr *JobRunner) RunEligibilityReminders() {
	jr.runWithRecovery("SendEligibilityReminders", func(ctx context.Context) error {
		_, err := jr.SendEligibilityReminders(ctx)
		return err
	})
}

// RefreshDonorAvailability marks donors available again once their
// cooldown has passed. Manual overrides are left alone.
func (jr *JobRunner) RefreshDonorAvailability(ctx context.Context) (int64, error) {
	changed, err := jr.donorRepo.RefreshAvailability(ctx, jr.now())
	if err != nil {
		return 0, err
	}
	logger.Info("Donor availability refreshed", "changed", changed)
	return changed, nil
}

func (jr *JobRunner) RunRefreshDonorAvailability() {
	jr.runWithRecovery("RefreshDonorAvailability", func(ctx context.Context) error {
		_, err := jr.RefreshDonorAvailability(ctx)
		return err
	})
}
