package repository

import (
	"context"
	"errors"
	"time"

	"bloodlink-backend/internal/domain"
)

// ErrNativeGeoUnsupported is returned by DonorRepository.FindNearby when the
// store cannot answer distance queries itself.
var ErrNativeGeoUnsupported = errors.New("native geo query unsupported")

type BloodRequestRepository interface {
	Create(ctx context.Context, req *domain.BloodRequest) error
	GetByID(ctx context.Context, id int32) (*domain.BloodRequest, error)

	// TransitionStatus applies t only while the stored status equals t.From.
	// It returns domain.ErrNotFound when the row is gone and
	// domain.ErrNotPending when the precondition no longer holds.
	TransitionStatus(ctx context.Context, t domain.StatusTransition) (*domain.BloodRequest, error)

	// AppendResponse adds resp to a pending request. It returns
	// domain.ErrNotPending once the request is closed.
	AppendResponse(ctx context.Context, requestID int32, resp domain.DonorResponse) (*domain.BloodRequest, error)

	Delete(ctx context.Context, id int32) error
	ListByRecipient(ctx context.Context, recipientID int32, page, pageSize int32) ([]domain.BloodRequest, int32, error)
	ListByStatus(ctx context.Context, status domain.RequestStatus, page, pageSize int32) ([]domain.BloodRequest, int32, error)
	ListPendingByBloodGroup(ctx context.Context, bloodGroup domain.BloodGroup, limit int32) ([]domain.BloodRequest, error)
}

type DonorRepository interface {
	GetByID(ctx context.Context, userID int32) (*domain.Donor, error)
	GetContacts(ctx context.Context, userIDs []int32) (map[int32]domain.Contact, error)

	// FindNearby runs the store's native nearest-neighbour query. It may
	// include donors marginally beyond radiusKm; callers re-check with
	// Coordinate.DistanceKm. Stores without one return ErrNativeGeoUnsupported.
	FindNearby(ctx context.Context, origin domain.Coordinate, radiusKm float64, filter domain.DonorFilter, limit int32) ([]domain.DonorMatch, error)

	// ListCandidates returns donors matching filter in no particular order.
	// limit <= 0 means unbounded.
	ListCandidates(ctx context.Context, filter domain.DonorFilter, limit int32) ([]domain.Donor, error)

	// UpdateEligibility persists the donation and eligibility fields of d.
	UpdateEligibility(ctx context.Context, d *domain.Donor) error
	SetAvailability(ctx context.Context, userID int32, available, override bool) error

	ListDueForReminder(ctx context.Context, now time.Time) ([]domain.Donor, error)

	// MarkReminderSent records window as reminded. It reports false when
	// the donor was already marked for that window.
	MarkReminderSent(ctx context.Context, userID int32, window time.Time) (bool, error)

	// ReleaseReminder restores previous when the donor is still marked for
	// window, so a reminder that failed to go out is retried by a later run.
	ReleaseReminder(ctx context.Context, userID int32, window time.Time, previous *time.Time) error

	// RefreshAvailability flips donors without an override whose cooldown
	// has elapsed back to available and returns how many changed.
	RefreshAvailability(ctx context.Context, now time.Time) (int64, error)
}

type NotificationRepository interface {
	// CreateBatch persists every record or none of them and fills IDs.
	CreateBatch(ctx context.Context, notes []domain.Notification) error
	List(ctx context.Context, userID int32, unreadOnly bool, page, pageSize int32) ([]domain.Notification, int32, error)
	CountUnread(ctx context.Context, userID int32) (int32, error)
	MarkAsRead(ctx context.Context, id, userID int32) error
	MarkAllAsRead(ctx context.Context, userID int32) (int64, error)
	Delete(ctx context.Context, id, userID int32) error
}

// Store bundles every repository a process needs.
type Store interface {
	BloodRequests() BloodRequestRepository
	Donors() DonorRepository
	Notifications() NotificationRepository
	Close() error
}
