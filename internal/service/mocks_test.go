package service_test

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"bloodlink-backend/internal/domain"
	"bloodlink-backend/internal/push"
)

type MockNotificationRepo struct {
	mock.Mock
}

func (m *MockNotificationRepo) CreateBatch(ctx context.Context, notes []domain.Notification) error {
	args := m.Called(ctx, notes)
	return args.Error(0)
}
func (m *MockNotificationRepo) List(ctx context.Context, userID int32, unreadOnly bool, page, pageSize int32) ([]domain.Notification, int32, error) {
	args := m.Called(ctx, userID, unreadOnly, page, pageSize)
	return args.Get(0).([]domain.Notification), args.Get(1).(int32), args.Error(2)
}
func (m *MockNotificationRepo) CountUnread(ctx context.Context, userID int32) (int32, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int32), args.Error(1)
}
func (m *MockNotificationRepo) MarkAsRead(ctx context.Context, id, userID int32) error {
	args := m.Called(ctx, id, userID)
	return args.Error(0)
}
func (m *MockNotificationRepo) MarkAllAsRead(ctx context.Context, userID int32) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockNotificationRepo) Delete(ctx context.Context, id, userID int32) error {
	args := m.Called(ctx, id, userID)
	return args.Error(0)
}

type MockDonorRepo struct {
	mock.Mock
}

func (m *MockDonorRepo) GetByID(ctx context.Context, userID int32) (*domain.Donor, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Donor), args.Error(1)
}
func (m *MockDonorRepo) GetContacts(ctx context.Context, userIDs []int32) (map[int32]domain.Contact, error) {
	args := m.Called(ctx, userIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int32]domain.Contact), args.Error(1)
}
func (m *MockDonorRepo) FindNearby(ctx context.Context, origin domain.Coordinate, radiusKm float64, filter domain.DonorFilter, limit int32) ([]domain.DonorMatch, error) {
	args := m.Called(ctx, origin, radiusKm, filter, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.DonorMatch), args.Error(1)
}
func (m *MockDonorRepo) ListCandidates(ctx context.Context, filter domain.DonorFilter, limit int32) ([]domain.Donor, error) {
	args := m.Called(ctx, filter, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Donor), args.Error(1)
}
func (m *MockDonorRepo) UpdateEligibility(ctx context.Context, d *domain.Donor) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}
func (m *MockDonorRepo) SetAvailability(ctx context.Context, userID int32, available, override bool) error {
	args := m.Called(ctx, userID, available, override)
	return args.Error(0)
}
func (m *MockDonorRepo) ListDueForReminder(ctx context.Context, now time.Time) ([]domain.Donor, error) {
	args := m.Called(ctx, now)
	return args.Get(0).([]domain.Donor), args.Error(1)
}
func (m *MockDonorRepo) MarkReminderSent(ctx context.Context, userID int32, window time.Time) (bool, error) {
	args := m.Called(ctx, userID, window)
	return args.Bool(0), args.Error(1)
}
func (m *MockDonorRepo) ReleaseReminder(ctx context.Context, userID int32, window time.Time, previous *time.Time) error {
	args := m.Called(ctx, userID, window, previous)
	return args.Error(0)
}
func (m *MockDonorRepo) RefreshAvailability(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

type MockPushSender struct {
	mock.Mock
}

func (m *MockPushSender) Enabled() bool { return true }
func (m *MockPushSender) Send(ctx context.Context, tokens []string, msg push.Message) (push.Result, error) {
	args := m.Called(ctx, tokens, msg)
	return args.Get(0).(push.Result), args.Error(1)
}

type MockEmailQueue struct {
	mock.Mock
}

func (m *MockEmailQueue) EnqueueTemplate(to, toName, subject, template string, data map[string]any) error {
	args := m.Called(to, toName, subject, template, data)
	return args.Error(0)
}

// recordingPublisher collects every published event.
type recordingPublisher struct {
	mu          sync.Mutex
	events      []domain.Event
	distributed bool
	err         error
}

func (p *recordingPublisher) Publish(ctx context.Context, ev domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Distributed() bool { return p.distributed }

func (p *recordingPublisher) named(name domain.EventName) []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Event
	for _, ev := range p.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

type fakePresence map[int32]bool

func (p fakePresence) IsPresent(userID int32) bool { return p[userID] }
