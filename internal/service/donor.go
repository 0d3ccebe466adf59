package service

import (
	"context"
	"fmt"
	"time"

	"bloodlink-backend/internal/domain"
	"bloodlink-backend/internal/email"
	"bloodlink-backend/internal/logger"
	"bloodlink-backend/internal/repository"
)

type donorService struct {
	donorRepo  repository.DonorRepository
	dispatcher NotificationDispatcher
	events     EventPublisher
	now        func() time.Time
}

func NewDonorService(donorRepo repository.DonorRepository, dispatcher NotificationDispatcher, events EventPublisher) DonorService {
	return &donorService{
		donorRepo:  donorRepo,
		dispatcher: dispatcher,
		events:     events,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *donorService) Get(ctx context.Context, donorID int32) (*domain.Donor, error) {
	return s.donorRepo.GetByID(ctx, donorID)
}

// RecordDonation stores a new donation, restarts the cooldown and clears
// any manual availability override.
func (s *donorService) RecordDonation(ctx context.Context, donorID int32, date time.Time) (*domain.Donor, error) {
	logger.EnterMethod("donorService.RecordDonation", "donorID", donorID, "date", date)

	now := s.now()
	if date.IsZero() {
		err := domain.Validationf("donation date is required")
		logger.ExitMethodWithError("donorService.RecordDonation", err)
		return nil, err
	}
	if date.After(now) {
		err := domain.Validationf("donation date cannot be in the future")
		logger.ExitMethodWithError("donorService.RecordDonation", err)
		return nil, err
	}

	donor, err := s.donorRepo.GetByID(ctx, donorID)
	if err != nil {
		logger.ExitMethodWithError("donorService.RecordDonation", err)
		return nil, err
	}
	if donor.LastDonationDate != nil && date.Before(*donor.LastDonationDate) {
		err := domain.Validationf("donation date precedes the last recorded donation")
		logger.ExitMethodWithError("donorService.RecordDonation", err)
		return nil, err
	}

	date = date.UTC()
	donor.LastDonationDate = &date
	donor.TotalDonations++
	donor.AvailabilityOverride = false
	elig := ApplyEligibility(donor, now)

	if err := s.donorRepo.UpdateEligibility(ctx, donor); err != nil {
		logger.ExitMethodWithError("donorService.RecordDonation", err)
		return nil, err
	}

	nextStr := elig.NextEligibleDate.Format("Jan 2, 2006")
	_, err = s.dispatcher.Notify(ctx, []int32{donorID}, domain.NotificationPayload{
		Type:     domain.NotificationTypeDonationConfirmed,
		Title:    "Donation recorded",
		Message:  fmt.Sprintf("Thank you for donating. You can donate again from %s.", nextStr),
		Related:  &domain.EntityRef{Type: domain.EntityDonor, ID: donorID},
		Priority: domain.PriorityMedium,
		Email: &domain.EmailContent{
			Template: email.TemplateDonationConfirmed,
			Data: map[string]any{
				"DonationDate":     date.Format("Jan 2, 2006"),
				"TotalDonations":   donor.TotalDonations,
				"NextEligibleDate": nextStr,
			},
		},
	})
	if err != nil {
		logger.Error("Failed to send donation confirmation", "donorID", donorID, "error", err)
	}

	if s.events != nil {
		ev := domain.NewTargetedEvent(domain.EventDonationConfirmed, donorID, domain.DonationConfirmedData{
			DonorID:          donorID,
			DonationDate:     date,
			NextEligibleDate: elig.NextEligibleDate,
			TotalDonations:   donor.TotalDonations,
		})
		if err := s.events.Publish(ctx, ev); err != nil {
			logger.Warn("Failed to publish donation event", "donorID", donorID, "error", err)
		}
	}

	logger.ExitMethod("donorService.RecordDonation", "donorID", donorID, "nextEligible", elig.NextEligibleDate)
	return donor, nil
}

// SetAvailability is the donor's manual toggle. It wins over the derived
// availability until the next recorded donation.
func (s *donorService) SetAvailability(ctx context.Context, donorID int32, available bool) (*domain.Donor, error) {
	logger.EnterMethod("donorService.SetAvailability", "donorID", donorID, "available", available)
	if err := s.donorRepo.SetAvailability(ctx, donorID, available, true); err != nil {
		logger.ExitMethodWithError("donorService.SetAvailability", err)
		return nil, err
	}
	donor, err := s.donorRepo.GetByID(ctx, donorID)
	if err != nil {
		logger.ExitMethodWithError("donorService.SetAvailability", err)
		return nil, err
	}
	logger.ExitMethod("donorService.SetAvailability", "donorID", donorID)
	return donor, nil
}

func (s *donorService) GetEligibility(ctx context.Context, donorID int32) (*domain.Donor, Eligibility, error) {
	donor, err := s.donorRepo.GetByID(ctx, donorID)
	if err != nil {
		return nil, Eligibility{}, err
	}
	elig := ComputeEligibility(donor.LastDonationDate, s.now())
	if !elig.Known {
		elig.IsAvailable = donor.IsAvailable
	}
	return donor, elig, nil
}
