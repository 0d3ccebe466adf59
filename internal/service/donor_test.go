package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"bloodlink-backend/internal/domain"
	"bloodlink-backend/internal/repository/memory"
	"bloodlink-backend/internal/service"
)

func TestDonorService_RecordDonation(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		store := memory.NewStore()
		store.PutDonor(domain.Donor{UserID: 3, Name: "Sita", BloodGroup: domain.BloodGroupONeg, IsAvailable: true, AvailabilityOverride: true, TotalDonations: 2})
		events := &recordingPublisher{}
		emails := new(MockEmailQueue)
		dispatcher := service.NewNotificationDispatcher(store.Notifications(), store.Donors(), nil, events, nil, emails, service.DispatcherOptions{})
		svc := service.NewDonorService(store.Donors(), dispatcher, events)

		date := time.Now().UTC().Add(-24 * time.Hour)
		donor, err := svc.RecordDonation(ctx, 3, date)
		require.NoError(t, err)
		assert.Equal(t, int32(3), donor.TotalDonations)
		assert.False(t, donor.IsAvailable)
		assert.False(t, donor.AvailabilityOverride, "a new donation clears the override")
		assert.Equal(t, date.Add(service.EligibilityCooldown), *donor.NextEligibleDate)

		stored, err := store.Donors().GetByID(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, int32(3), stored.TotalDonations)
		assert.False(t, stored.IsAvailable)

		notes, _, err := store.Notifications().List(ctx, 3, false, 1, 10)
		require.NoError(t, err)
		require.Len(t, notes, 1)
		assert.Equal(t, domain.NotificationTypeDonationConfirmed, notes[0].Type)

		confirmed := events.named(domain.EventDonationConfirmed)
		require.Len(t, confirmed, 1)
		assert.Equal(t, int32(3), confirmed[0].TargetUserID)
		emails.AssertNotCalled(t, "EnqueueTemplate", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Validation", func(t *testing.T) {
		store := memory.NewStore()
		last := time.Now().UTC().AddDate(0, 0, -10)
		store.PutDonor(domain.Donor{UserID: 3, LastDonationDate: &last})
		dispatcher := service.NewNotificationDispatcher(store.Notifications(), store.Donors(), nil, nil, nil, nil, service.DispatcherOptions{})
		svc := service.NewDonorService(store.Donors(), dispatcher, nil)

		_, err := svc.RecordDonation(ctx, 3, time.Time{})
		assert.ErrorIs(t, err, domain.ErrValidation)
		_, err = svc.RecordDonation(ctx, 3, time.Now().Add(time.Hour))
		assert.ErrorIs(t, err, domain.ErrValidation)
		_, err = svc.RecordDonation(ctx, 3, last.AddDate(0, 0, -1))
		assert.ErrorIs(t, err, domain.ErrValidation)
		_, err = svc.RecordDonation(ctx, 42, time.Now().Add(-time.Hour))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("PersistFailure", func(t *testing.T) {
		repo := new(MockDonorRepo)
		repo.On("GetByID", ctx, int32(3)).Return(&domain.Donor{UserID: 3}, nil)
		repo.On("UpdateEligibility", ctx, mock.AnythingOfType("*domain.Donor")).Return(domain.Persistence("update donor eligibility", errors.New("deadlock")))
		dispatcher := new(MockNotificationRepo)
		svc := service.NewDonorService(repo, service.NewNotificationDispatcher(dispatcher, repo, nil, nil, nil, nil, service.DispatcherOptions{}), nil)

		_, err := svc.RecordDonation(ctx, 3, time.Now().Add(-time.Hour))
		assert.ErrorIs(t, err, domain.ErrPersistence)
		dispatcher.AssertNotCalled(t, "CreateBatch", mock.Anything, mock.Anything)
	})
}

func TestDonorService_AvailabilityAndEligibility(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	last := time.Now().UTC().AddDate(0, 0, -30)
	next := last.Add(service.EligibilityCooldown)
	store.PutDonor(domain.Donor{UserID: 3, LastDonationDate: &last, NextEligibleDate: &next})
	store.PutDonor(domain.Donor{UserID: 4, IsAvailable: true})
	svc := service.NewDonorService(store.Donors(), nil, nil)

	donor, err := svc.SetAvailability(ctx, 3, true)
	require.NoError(t, err)
	assert.True(t, donor.IsAvailable)
	assert.True(t, donor.AvailabilityOverride)

	_, elig, err := svc.GetEligibility(ctx, 3)
	require.NoError(t, err)
	assert.True(t, elig.Known)
	assert.False(t, elig.IsAvailable)
	assert.Equal(t, 60, elig.DaysRemaining)

	_, elig, err = svc.GetEligibility(ctx, 4)
	require.NoError(t, err)
	assert.False(t, elig.Known)
	assert.True(t, elig.IsAvailable, "explicit availability stands without a donation history")

	_, err = svc.SetAvailability(ctx, 99, false)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
