package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"bloodlink-backend/internal/domain"
	"bloodlink-backend/internal/logger"
	"bloodlink-backend/internal/metrics"
	"bloodlink-backend/internal/push"
	"bloodlink-backend/internal/repository"
)

type DispatcherOptions struct {
	BulkBatchSize   int
	PushConcurrency int
}

type notificationDispatcher struct {
	noteRepo  repository.NotificationRepository
	donorRepo repository.DonorRepository
	presence  Presence
	events    EventPublisher
	pusher    push.Sender
	emails    EmailQueue
	opts      DispatcherOptions
}

// NewNotificationDispatcher wires the delivery legs. events, pusher and
// emails may be nil; the corresponding leg is then skipped.
func NewNotificationDispatcher(
	noteRepo repository.NotificationRepository,
	donorRepo repository.DonorRepository,
	presence Presence,
	events EventPublisher,
	pusher push.Sender,
	emails EmailQueue,
	opts DispatcherOptions,
) NotificationDispatcher {
	if opts.BulkBatchSize <= 0 {
		opts.BulkBatchSize = 500
	}
	if opts.PushConcurrency <= 0 {
		opts.PushConcurrency = 16
	}
	if pusher == nil {
		pusher = push.NewNoopSender()
	}
	return &notificationDispatcher{
		noteRepo:  noteRepo,
		donorRepo: donorRepo,
		presence:  presence,
		events:    events,
		pusher:    pusher,
		emails:    emails,
		opts:      opts,
	}
}

func dedupe(ids []int32) []int32 {
	seen := make(map[int32]struct{}, len(ids))
	out := make([]int32, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Notify stores one in-app record per distinct target, then attempts the
// realtime, push and email legs. Only the store write can fail the call.
func (s *notificationDispatcher) Notify(ctx context.Context, userIDs []int32, payload domain.NotificationPayload) ([]domain.Notification, error) {
	logger.EnterMethod("notificationDispatcher.Notify", "type", payload.Type, "targets", len(userIDs))

	if payload.Type == "" || payload.Title == "" {
		err := domain.Validationf("notification type and title are required")
		logger.ExitMethodWithError("notificationDispatcher.Notify", err)
		return nil, err
	}

	targets := dedupe(userIDs)
	if len(targets) == 0 {
		logger.ExitMethod("notificationDispatcher.Notify", "created", 0)
		return []domain.Notification{}, nil
	}

	now := time.Now().UTC()
	notes := make([]domain.Notification, len(targets))
	for i, uid := range targets {
		notes[i] = payload.For(uid, now)
	}

	if err := s.noteRepo.CreateBatch(ctx, notes); err != nil {
		if !errors.Is(err, domain.ErrPersistence) {
			err = domain.Persistence("create notifications", err)
		}
		logger.ExitMethodWithError("notificationDispatcher.Notify", err)
		return nil, err
	}
	metrics.NotificationsCreated.WithLabelValues(string(payload.Type)).Add(float64(len(notes)))

	s.deliver(ctx, notes, payload)

	logger.ExitMethod("notificationDispatcher.Notify", "created", len(notes))
	return notes, nil
}

// NotifyBulk runs Notify in batches and reports how many records were
// stored. A failing batch stops the run.
func (s *notificationDispatcher) NotifyBulk(ctx context.Context, userIDs []int32, payload domain.NotificationPayload) (int, error) {
	targets := dedupe(userIDs)
	created := 0
	for start := 0; start < len(targets); start += s.opts.BulkBatchSize {
		end := min(start+s.opts.BulkBatchSize, len(targets))
		notes, err := s.Notify(ctx, targets[start:end], payload)
		created += len(notes)
		if err != nil {
			logger.Error("Bulk notification batch failed", "type", payload.Type, "created", created, "remaining", len(targets)-start, "error", err)
			return created, err
		}
	}
	return created, nil
}

func (s *notificationDispatcher) deliver(ctx context.Context, notes []domain.Notification, payload domain.NotificationPayload) {
	var contacts map[int32]domain.Contact
	if s.pusher.Enabled() || (payload.Email != nil && s.emails != nil) {
		ids := make([]int32, len(notes))
		for i, n := range notes {
			ids[i] = n.UserID
		}
		var err error
		contacts, err = s.donorRepo.GetContacts(ctx, ids)
		if err != nil {
			logger.Warn("Failed to load contacts, skipping push and email", "type", payload.Type, "error", err)
			metrics.FanoutDegraded.WithLabelValues("contacts").Inc()
		}
	}

	var g errgroup.Group
	g.SetLimit(s.opts.PushConcurrency)
	for _, n := range notes {
		n := n
		contact := contacts[n.UserID]
		g.Go(func() error {
			s.deliverOne(ctx, n, contact, payload)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *notificationDispatcher) deliverOne(ctx context.Context, n domain.Notification, contact domain.Contact, payload domain.NotificationPayload) {
	local := s.presence != nil && s.presence.IsPresent(n.UserID)

	if s.events != nil && (local || s.events.Distributed()) {
		err := s.events.Publish(ctx, domain.NewTargetedEvent(domain.EventNewNotification, n.UserID, n))
		recordDelivery("realtime", err)
		if err != nil {
			logger.Warn("Realtime notification failed", "userID", n.UserID, "notificationID", n.ID, "error", err)
		}
	}

	if !local && s.pusher.Enabled() && len(contact.PushTokens) > 0 {
		data := map[string]string{
			"notificationId": strconv.Itoa(int(n.ID)),
			"type":           string(n.Type),
		}
		if n.Related != nil {
			data["relatedType"] = string(n.Related.Type)
			data["relatedId"] = strconv.Itoa(int(n.Related.ID))
		}
		res, err := s.pusher.Send(ctx, contact.PushTokens, push.Message{Title: n.Title, Body: n.Message, Data: data})
		recordDelivery("push", err)
		if err != nil {
			logger.Warn("Push notification failed", "userID", n.UserID, "error", err)
		} else if len(res.InvalidTokens) > 0 {
			logger.Info("Push tokens rejected by FCM", "userID", n.UserID, "count", len(res.InvalidTokens))
		}
	}

	if payload.Email != nil && s.emails != nil && contact.Email != "" {
		subject := payload.Email.Subject
		if subject == "" {
			subject = payload.Title
		}
		err := s.emails.EnqueueTemplate(contact.Email, contact.Name, subject, payload.Email.Template, payload.Email.Data)
		recordDelivery("email", err)
		if err != nil {
			logger.Error("Failed to queue notification email", "userID", n.UserID, "template", payload.Email.Template, "error", err)
		}
	}
}

func recordDelivery(channel string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.DeliveryAttempts.WithLabelValues(channel, result).Inc()
}

func (s *notificationDispatcher) List(ctx context.Context, userID int32, unreadOnly bool, page, pageSize int32) ([]domain.Notification, int32, error) {
	page, pageSize = domain.NormalizePage(page, pageSize)
	return s.noteRepo.List(ctx, userID, unreadOnly, page, pageSize)
}

func (s *notificationDispatcher) UnreadCount(ctx context.Context, userID int32) (int32, error) {
	return s.noteRepo.CountUnread(ctx, userID)
}

func (s *notificationDispatcher) MarkAsRead(ctx context.Context, userID, notificationID int32) error {
	return s.noteRepo.MarkAsRead(ctx, notificationID, userID)
}

func (s *notificationDispatcher) MarkAllAsRead(ctx context.Context, userID int32) (int64, error) {
	return s.noteRepo.MarkAllAsRead(ctx, userID)
}

func (s *notificationDispatcher) Delete(ctx context.Context, userID, notificationID int32) error {
	return s.noteRepo.Delete(ctx, notificationID, userID)
}
