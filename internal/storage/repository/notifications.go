package repository

import (
	"context"

	"github.com/magabrotheeeer/schoolhub/internal/models"
)

const notificationColumns = `id, user_id, tenant_id, type, title, message, data, read, read_at, created_at`

func scanNotification(row scanner) (*models.Notification, error) {
	var n models.Notification
	if err := row.Scan(&n.ID, &n.UserID, &n.TenantID, &n.Type, &n.Title, &n.Message, &n.Data,
		&n.Read, &n.ReadAt, &n.CreatedAt); err != nil {
		return nil, err
	}
	return &n, nil
}

// CreateNotification сохраняет уведомление.
func (s *Storage) CreateNotification(ctx context.Context, n *models.Notification) error {
	const op = "storage.CreateNotification"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	var data any
	if len(n.Data) > 0 {
		data = []byte(n.Data)
	}
	err := s.DB.QueryRowContext(ctx, `INSERT INTO notifications (user_id, tenant_id, type, title, message, data)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  RETURNING id, created_at`,
		n.UserID, n.TenantID, n.Type, n.Title, n.Message, data,
	).Scan(&n.ID, &n.CreatedAt)
	return wrap(op, err)
}

// ListNotifications возвращает уведомления пользователя, новые первыми.
func (s *Storage) ListNotifications(ctx context.Context, filter models.NotificationFilter) ([]*models.Notification, error) {
	const op = "storage.ListNotifications"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	limit, offset := pageArgs(filter.Limit, filter.Offset)
	rows, err := s.DB.QueryContext(ctx, `SELECT `+notificationColumns+` FROM notifications
			  WHERE user_id = $1 AND (NOT $2::bool OR read = false)
			  ORDER BY created_at DESC
			  LIMIT $3 OFFSET $4`, filter.UserID, filter.UnreadOnly, limit, offset)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	result := make([]*models.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, wrap(op, err)
		}
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(op, err)
	}
	return result, nil
}

// CountUnread возвращает число непрочитанных уведомлений пользователя.
func (s *Storage) CountUnread(ctx context.Context, userID string) (int, error) {
	const op = "storage.CountUnread"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}
	var n int
	if err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = false`, userID).Scan(&n); err != nil {
		return 0, wrap(op, err)
	}
	return n, nil
}

// MarkRead отмечает уведомление пользователя прочитанным.
func (s *Storage) MarkRead(ctx context.Context, id, userID string) error {
	const op = "storage.MarkRead"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	res, err := s.DB.ExecContext(ctx, `UPDATE notifications
			  SET read = true, read_at = COALESCE(read_at, now())
			  WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return wrap(op, err)
	}
	return affected(op, res)
}

// MarkAllRead отмечает все уведомления пользователя прочитанными и возвращает их число.
func (s *Storage) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	const op = "storage.MarkAllRead"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}
	res, err := s.DB.ExecContext(ctx, `UPDATE notifications
			  SET read = true, read_at = now()
			  WHERE user_id = $1 AND read = false`, userID)
	if err != nil {
		return 0, wrap(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrap(op, err)
	}
	return n, nil
}
