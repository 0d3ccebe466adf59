package http

import (
	"context"
	"net/http"
	"time"

	"github.com/stretchr/testify/mock"

	"bloodlink-backend/internal/domain"
	"bloodlink-backend/internal/service"
)

type MockBloodRequestService struct {
	mock.Mock
}

func (m *MockBloodRequestService) Create(ctx context.Context, recipientID int32, input service.CreateRequestInput) (*domain.BloodRequest, int, error) {
	args := m.Called(ctx, recipientID, input)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).(*domain.BloodRequest), args.Int(1), args.Error(2)
}

func (m *MockBloodRequestService) Get(ctx context.Context, id int32) (*domain.BloodRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BloodRequest), args.Error(1)
}

func (m *MockBloodRequestService) Accept(ctx context.Context, requestID, donorID int32) (*domain.BloodRequest, error) {
	args := m.Called(ctx, requestID, donorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BloodRequest), args.Error(1)
}

func (m *MockBloodRequestService) RecordResponse(ctx context.Context, requestID int32, resp domain.DonorResponse) (*domain.BloodRequest, error) {
	args := m.Called(ctx, requestID, resp)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BloodRequest), args.Error(1)
}

func (m *MockBloodRequestService) UpdateStatus(ctx context.Context, requestID int32, status domain.RequestStatus, fulfilledBy *int32) (*domain.BloodRequest, error) {
	args := m.Called(ctx, requestID, status, fulfilledBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BloodRequest), args.Error(1)
}

func (m *MockBloodRequestService) Cancel(ctx context.Context, requestID int32) (*domain.BloodRequest, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BloodRequest), args.Error(1)
}

func (m *MockBloodRequestService) Delete(ctx context.Context, requestID int32) error {
	return m.Called(ctx, requestID).Error(0)
}

func (m *MockBloodRequestService) List(ctx context.Context, status domain.RequestStatus, page, pageSize int32) ([]domain.BloodRequest, int32, error) {
	args := m.Called(ctx, status, page, pageSize)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]domain.BloodRequest), args.Get(1).(int32), args.Error(2)
}

func (m *MockBloodRequestService) ListByRecipient(ctx context.Context, recipientID int32, page, pageSize int32) ([]domain.BloodRequest, int32, error) {
	args := m.Called(ctx, recipientID, page, pageSize)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]domain.BloodRequest), args.Get(1).(int32), args.Error(2)
}

func (m *MockBloodRequestService) NearbyForDonor(ctx context.Context, donorID int32, radiusKm float64) ([]domain.RequestMatch, error) {
	args := m.Called(ctx, donorID, radiusKm)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RequestMatch), args.Error(1)
}

type MockDonorService struct {
	mock.Mock
}

func (m *MockDonorService) Get(ctx context.Context, donorID int32) (*domain.Donor, error) {
	args := m.Called(ctx, donorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Donor), args.Error(1)
}

func (m *MockDonorService) RecordDonation(ctx context.Context, donorID int32, date time.Time) (*domain.Donor, error) {
	args := m.Called(ctx, donorID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Donor), args.Error(1)
}

func (m *MockDonorService) SetAvailability(ctx context.Context, donorID int32, available bool) (*domain.Donor, error) {
	args := m.Called(ctx, donorID, available)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Donor), args.Error(1)
}

func (m *MockDonorService) GetEligibility(ctx context.Context, donorID int32) (*domain.Donor, service.Eligibility, error) {
	args := m.Called(ctx, donorID)
	if args.Get(0) == nil {
		return nil, service.Eligibility{}, args.Error(2)
	}
	return args.Get(0).(*domain.Donor), args.Get(1).(service.Eligibility), args.Error(2)
}

type MockGeoMatcher struct {
	mock.Mock
}

func (m *MockGeoMatcher) FindNearby(ctx context.Context, origin domain.Coordinate, radiusKm float64, filter domain.DonorFilter) ([]domain.DonorMatch, error) {
	args := m.Called(ctx, origin, radiusKm, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.DonorMatch), args.Error(1)
}

func (m *MockGeoMatcher) FindByBloodGroup(ctx context.Context, filter domain.DonorFilter) ([]domain.DonorMatch, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.DonorMatch), args.Error(1)
}

func (m *MockGeoMatcher) MatchForRequest(ctx context.Context, req *domain.BloodRequest) ([]domain.DonorMatch, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.DonorMatch), args.Error(1)
}

func (m *MockGeoMatcher) RankRequests(origin domain.Coordinate, radiusKm float64, reqs []domain.BloodRequest) []domain.RequestMatch {
	args := m.Called(origin, radiusKm, reqs)
	return args.Get(0).([]domain.RequestMatch)
}

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Notify(ctx context.Context, userIDs []int32, payload domain.NotificationPayload) ([]domain.Notification, error) {
	args := m.Called(ctx, userIDs, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Notification), args.Error(1)
}

func (m *MockDispatcher) NotifyBulk(ctx context.Context, userIDs []int32, payload domain.NotificationPayload) (int, error) {
	args := m.Called(ctx, userIDs, payload)
	return args.Int(0), args.Error(1)
}

func (m *MockDispatcher) List(ctx context.Context, userID int32, unreadOnly bool, page, pageSize int32) ([]domain.Notification, int32, error) {
	args := m.Called(ctx, userID, unreadOnly, page, pageSize)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]domain.Notification), args.Get(1).(int32), args.Error(2)
}

func (m *MockDispatcher) UnreadCount(ctx context.Context, userID int32) (int32, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int32), args.Error(1)
}

func (m *MockDispatcher) MarkAsRead(ctx context.Context, userID, notificationID int32) error {
	return m.Called(ctx, userID, notificationID).Error(0)
}

func (m *MockDispatcher) MarkAllAsRead(ctx context.Context, userID int32) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDispatcher) Delete(ctx context.Context, userID, notificationID int32) error {
	return m.Called(ctx, userID, notificationID).Error(0)
}

type recordingWS struct {
	userID int32
}

func (ws *recordingWS) ServeWS(w http.ResponseWriter, r *http.Request, userID int32) {
	ws.userID = userID
	w.WriteHeader(http.StatusOK)
}
