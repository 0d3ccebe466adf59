package postgres

import (
	"context"
	"database/sql"
	"time"

	"bloodlink-backend/internal/domain"
	"bloodlink-backend/internal/logger"
	"bloodlink-backend/internal/repository"
)

type notificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) repository.NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) CreateBatch(ctx context.Context, notes []domain.Notification) error {
	logger.EnterMethod("notificationRepository.CreateBatch", "count", len(notes))
	if len(notes) == 0 {
		logger.ExitMethod("notificationRepository.CreateBatch", "count", 0)
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		logger.ExitMethodWithError("notificationRepository.CreateBatch", err)
		return domain.Persistence("begin notification batch", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO notifications
	          (user_id, type, title, message, related_type, related_id, priority, is_read, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`)
	if err != nil {
		logger.ExitMethodWithError("notificationRepository.CreateBatch", err)
		return domain.Persistence("prepare notification insert", err)
	}
	defer stmt.Close()

	logger.DatabaseCall("INSERT", "notifications", "count", len(notes))
	for i := range notes {
		n := &notes[i]
		if n.CreatedAt.IsZero() {
			n.CreatedAt = time.Now().UTC()
		}
		var relatedType sql.NullString
		var relatedID sql.NullInt32
		if n.Related != nil {
			relatedType = sql.NullString{String: string(n.Related.Type), Valid: true}
			relatedID = sql.NullInt32{Int32: n.Related.ID, Valid: true}
		}
		err := stmt.QueryRowContext(ctx, n.UserID, n.Type, n.Title, n.Message, relatedType, relatedID,
			n.Priority, n.IsRead, n.CreatedAt).Scan(&n.ID)
		if err != nil {
			logger.DatabaseResult("INSERT", int64(i), err, "userID", n.UserID)
			logger.ExitMethodWithError("notificationRepository.CreateBatch", err)
			return domain.Persistence("create notification", err)
		}
	}

	if err := tx.Commit(); err != nil {
		logger.ExitMethodWithError("notificationRepository.CreateBatch", err)
		return domain.Persistence("commit notification batch", err)
	}
	logger.DatabaseResult("INSERT", int64(len(notes)), nil)
	logger.ExitMethod("notificationRepository.CreateBatch", "count", len(notes))
	return nil
}

func (r *notificationRepository) List(ctx context.Context, userID int32, unreadOnly bool, page, pageSize int32) ([]domain.Notification, int32, error) {
	page, pageSize = domain.NormalizePage(page, pageSize)

	where := `user_id = $1`
	if unreadOnly {
		where += ` AND is_read = FALSE`
	}

	var count int32
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM notifications WHERE `+where, userID).Scan(&count); err != nil {
		return nil, 0, err
	}

	query := `SELECT id, user_id, type, title, message, related_type, related_id, priority, is_read, created_at
	          FROM notifications WHERE ` + where + ` ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, userID, pageSize, domain.PageOffset(page, pageSize))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	notes := []domain.Notification{}
	for rows.Next() {
		var n domain.Notification
		var relatedType sql.NullString
		var relatedID sql.NullInt32
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &relatedType, &relatedID,
			&n.Priority, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, 0, err
		}
		if relatedType.Valid && relatedID.Valid {
			n.Related = &domain.EntityRef{Type: domain.EntityType(relatedType.String), ID: relatedID.Int32}
		}
		notes = append(notes, n)
	}
	return notes, count, rows.Err()
}

func (r *notificationRepository) CountUnread(ctx context.Context, userID int32) (int32, error) {
	var count int32
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`, userID).Scan(&count)
	return count, err
}

func (r *notificationRepository) MarkAsRead(ctx context.Context, id, userID int32) error {
	query := `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return domain.Persistence("mark notification read", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return domain.Persistence("mark notification read", err)
	}
	if rows == 0 {
		return domain.NotFoundf("notification %d", id)
	}
	return nil
}

func (r *notificationRepository) MarkAllAsRead(ctx context.Context, userID int32) (int64, error) {
	result, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND is_read = FALSE`, userID)
	if err != nil {
		return 0, domain.Persistence("mark all notifications read", err)
	}
	return result.RowsAffected()
}

func (r *notificationRepository) Delete(ctx context.Context, id, userID int32) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return domain.Persistence("delete notification", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return domain.Persistence("delete notification", err)
	}
	if rows == 0 {
		return domain.NotFoundf("notification %d", id)
	}
	return nil
}
