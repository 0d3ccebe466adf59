package service

import (
	"context"
	"time"

	"bloodlink-backend/internal/domain"
)

// Presence answers whether a user has a live connection on this instance.
type Presence interface {
	IsPresent(userID int32) bool
}

// EventPublisher delivers realtime events. Distributed reports whether
// events reach connections on other instances too.
type EventPublisher interface {
	Publish(ctx context.Context, ev domain.Event) error
	Distributed() bool
}

// EmailQueue renders and queues an email. Render failures are returned.
type EmailQueue interface {
	EnqueueTemplate(to, toName, subject, template string, data map[string]any) error
}

type GeoMatcher interface {
	FindNearby(ctx context.Context, origin domain.Coordinate, radiusKm float64, filter domain.DonorFilter) ([]domain.DonorMatch, error)
	FindByBloodGroup(ctx context.Context, filter domain.DonorFilter) ([]domain.DonorMatch, error)
	MatchForRequest(ctx context.Context, req *domain.BloodRequest) ([]domain.DonorMatch, error)
	RankRequests(origin domain.Coordinate, radiusKm float64, reqs []domain.BloodRequest) []domain.RequestMatch
}

type NotificationDispatcher interface {
	Notify(ctx context.Context, userIDs []int32, payload domain.NotificationPayload) ([]domain.Notification, error)
	NotifyBulk(ctx context.Context, userIDs []int32, payload domain.NotificationPayload) (int, error)
	List(ctx context.Context, userID int32, unreadOnly bool, page, pageSize int32) ([]domain.Notification, int32, error)
	UnreadCount(ctx context.Context, userID int32) (int32, error)
	MarkAsRead(ctx context.Context, userID, notificationID int32) error
	MarkAllAsRead(ctx context.Context, userID int32) (int64, error)
	Delete(ctx context.Context, userID, notificationID int32) error
}

type BloodRequestService interface {
	Create(ctx context.Context, recipientID int32, input CreateRequestInput) (*domain.BloodRequest, int, error) // returns request, notified donors, error
	Get(ctx context.Context, id int32) (*domain.BloodRequest, error)
	Accept(ctx context.Context, requestID, donorID int32) (*domain.BloodRequest, error)
	RecordResponse(ctx context.Context, requestID int32, resp domain.DonorResponse) (*domain.BloodRequest, error)
	UpdateStatus(ctx context.Context, requestID int32, status domain.RequestStatus, fulfilledBy *int32) (*domain.BloodRequest, error)
	Cancel(ctx context.Context, requestID int32) (*domain.BloodRequest, error)
	Delete(ctx context.Context, requestID int32) error
	List(ctx context.Context, status domain.RequestStatus, page, pageSize int32) ([]domain.BloodRequest, int32, error)
	ListByRecipient(ctx context.Context, recipientID int32, page, pageSize int32) ([]domain.BloodRequest, int32, error)
	NearbyForDonor(ctx context.Context, donorID int32, radiusKm float64) ([]domain.RequestMatch, error)
}

type DonorService interface {
	Get(ctx context.Context, donorID int32) (*domain.Donor, error)
	RecordDonation(ctx context.Context, donorID int32, date time.Time) (*domain.Donor, error)
	SetAvailability(ctx context.Context, donorID int32, available bool) (*domain.Donor, error)
	GetEligibility(ctx context.Context, donorID int32) (*domain.Donor, Eligibility, error)
}
