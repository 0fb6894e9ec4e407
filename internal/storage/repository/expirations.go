package repository

import (
	"context"
	"time"
)

// RecordExpirationNotification отмечает отправку напоминания за daysBefore дней
// для срока, заканчивающегося endDate. Возвращает false, если напоминание уже было.
func (s *Storage) RecordExpirationNotification(ctx context.Context, subscriptionID string, daysBefore int, endDate time.Time) (bool, error) {
	const op = "storage.RecordExpirationNotification"
	if err := checkCtx(ctx, op); err != nil {
		return false, err
	}
	res, err := s.DB.ExecContext(ctx, `INSERT INTO subscription_expiration_notifications
			      (subscription_id, days_before, end_date)
			  VALUES ($1, $2, $3)
			  ON CONFLICT (subscription_id, days_before, end_date) DO NOTHING`,
		subscriptionID, daysBefore, endDate)
	if err != nil {
		return false, wrap(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrap(op, err)
	}
	return n == 1, nil
}
