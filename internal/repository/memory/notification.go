package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"bloodlink-backend/internal/domain"
)

type notificationRepository struct {
	mu     sync.Mutex
	nextID int32
	rows   map[int32]*domain.Notification
}

func newNotificationRepository() *notificationRepository {
	return &notificationRepository{rows: make(map[int32]*domain.Notification)}
}

func (r *notificationRepository) CreateBatch(ctx context.Context, notes []domain.Notification) error {
	if err := ctx.Err(); err != nil {
		return domain.Persistence("create notifications", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range notes {
		r.nextID++
		notes[i].ID = r.nextID
		if notes[i].CreatedAt.IsZero() {
			notes[i].CreatedAt = time.Now().UTC()
		}
		n := notes[i]
		r.rows[n.ID] = &n
	}
	return nil
}

func (r *notificationRepository) List(ctx context.Context, userID int32, unreadOnly bool, page, pageSize int32) ([]domain.Notification, int32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []domain.Notification
	for _, n := range r.rows {
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		all = append(all, *n)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	start, end := paginate(len(all), page, pageSize)
	return all[start:end], int32(len(all)), nil
}

func (r *notificationRepository) CountUnread(ctx context.Context, userID int32) (int32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int32
	for _, n := range r.rows {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *notificationRepository) MarkAsRead(ctx context.Context, id, userID int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.rows[id]
	if !ok || n.UserID != userID {
		return domain.NotFoundf("notification %d", id)
	}
	n.IsRead = true
	return nil
}

func (r *notificationRepository) MarkAllAsRead(ctx context.Context, userID int32) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var changed int64
	for _, n := range r.rows {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			changed++
		}
	}
	return changed, nil
}

func (r *notificationRepository) Delete(ctx context.Context, id, userID int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.rows[id]
	if !ok || n.UserID != userID {
		return domain.NotFoundf("notification %d", id)
	}
	delete(r.rows, id)
	return nil
}
