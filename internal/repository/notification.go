package repository

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/shenikar/alerto360/internal/models"
	"github.com/shenikar/alerto360/internal/service"
)

const notificationTableName = "notifications"

var notificationColumns = []string{"id", "user_id", "message", "is_read", "created_at"}

type NotificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) service.NotificationRepository {
	return &NotificationRepository{db: db}
}

// NotifyResponders пишет по одному уведомлению каждому респонденту службы. Возвращает число строк.
func (r *NotificationRepository) NotifyResponders(ctx context.Context, responderType models.ResponderType, message string) (int64, error) {
	query := `
		INSERT INTO notifications (user_id, message)
		SELECT id, $1 FROM users
		WHERE role = 'responder' AND responder_type = $2
	`
	res, err := conn(ctx, r.db).ExecContext(ctx, query, message, responderType)
	if err != nil {
		return 0, fmt.Errorf("failed to notify %s responders: %w", responderType, err)
	}
	return rowsAffected(res)
}

// NotifyAdmins пишет по одному уведомлению каждому администратору
func (r *NotificationRepository) NotifyAdmins(ctx context.Context, message string) (int64, error) {
	query := `
		INSERT INTO notifications (user_id, message)
		SELECT id, $1 FROM users
		WHERE role = 'admin'
	`
	res, err := conn(ctx, r.db).ExecContext(ctx, query, message)
	if err != nil {
		return 0, fmt.Errorf("failed to notify admins: %w", err)
	}
	return rowsAffected(res)
}

// ListByUser возвращает уведомления пользователя, новые первыми
func (r *NotificationRepository) ListByUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*models.Notification, error) {
	builder := psql().
		Select(notificationColumns...).
		From(notificationTableName).
		Where(sq.Eq{"user_id": userID})
	if unreadOnly {
		builder = builder.Where(sq.Eq{"is_read": false})
	}
	builder = builder.OrderBy("created_at DESC", "id DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate list notifications query: %w", err)
	}

	notifications := make([]*models.Notification, 0)
	if err := sqlscan.Select(ctx, conn(ctx, r.db), &notifications, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID int64) (int64, error) {
	query, args, err := psql().
		Select("COUNT(*)").
		From(notificationTableName).
		Where(sq.Eq{"user_id": userID, "is_read": false}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to generate unread count query: %w", err)
	}

	var count int64
	if err := conn(ctx, r.db).QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead помечает уведомление прочитанным. Повторный вызов тоже считается успешным,
// found=false только если уведомления нет или оно чужое.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID int64) (bool, error) {
	query := `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`
	res, err := conn(ctx, r.db).ExecContext(ctx, query, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to mark notification read: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	query := `UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND is_read = FALSE`
	res, err := conn(ctx, r.db).ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark all notifications read: %w", err)
	}
	return rowsAffected(res)
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}
