package repository

import (
	"context"
	"database/sql"

	"github.com/magabrotheeeer/schoolhub/internal/models"
)

const renewalColumns = `id, subscription_id, requested_by, plan, billing_cycle, status, note, admin_note,
	reviewed_by, reviewed_at, created_at`

func scanRenewal(row scanner) (*models.SubscriptionRenewalRequest, error) {
	var r models.SubscriptionRenewalRequest
	if err := row.Scan(&r.ID, &r.SubscriptionID, &r.RequestedBy, &r.Plan, &r.BillingCycle, &r.Status,
		&r.Note, &r.AdminNote, &r.ReviewedBy, &r.ReviewedAt, &r.CreatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRenewalRequest сохраняет заявку на продление. Вторая ожидающая заявка
// на ту же подписку нарушает уникальный индекс и возвращает ErrDuplicate.
func (s *Storage) CreateRenewalRequest(ctx context.Context, r *models.SubscriptionRenewalRequest) error {
	const op = "storage.CreateRenewalRequest"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	err := s.DB.QueryRowContext(ctx, `INSERT INTO subscription_renewal_requests
			      (subscription_id, requested_by, plan, billing_cycle, status, note)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  RETURNING id, created_at`,
		r.SubscriptionID, r.RequestedBy, r.Plan, r.BillingCycle, r.Status, r.Note,
	).Scan(&r.ID, &r.CreatedAt)
	return wrap(op, err)
}

// GetRenewalRequest возвращает заявку по ID.
func (s *Storage) GetRenewalRequest(ctx context.Context, id string) (*models.SubscriptionRenewalRequest, error) {
	const op = "storage.GetRenewalRequest"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	r, err := scanRenewal(s.DB.QueryRowContext(ctx,
		`SELECT `+renewalColumns+` FROM subscription_renewal_requests WHERE id = $1`, id))
	if err != nil {
		return nil, wrap(op, err)
	}
	return r, nil
}

// ListRenewalRequests возвращает заявки в статусе status; при пустом статусе возвращаются все заявки.
func (s *Storage) ListRenewalRequests(ctx context.Context, status string) ([]*models.SubscriptionRenewalRequest, error) {
	const op = "storage.ListRenewalRequests"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT `+renewalColumns+` FROM subscription_renewal_requests
			  WHERE ($1::text = '' OR status = $1)
			  ORDER BY created_at`, status)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	result := make([]*models.SubscriptionRenewalRequest, 0)
	for rows.Next() {
		r, err := scanRenewal(rows)
		if err != nil {
			return nil, wrap(op, err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(op, err)
	}
	return result, nil
}

// lockPendingRenewal блокирует заявку; не ожидающая заявка даёт ErrConflict.
func lockPendingRenewal(ctx context.Context, tx *sql.Tx, id string) (*models.SubscriptionRenewalRequest, error) {
	r, err := scanRenewal(tx.QueryRowContext(ctx,
		`SELECT `+renewalColumns+` FROM subscription_renewal_requests WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if r.Status != models.RenewalStatusPending {
		return nil, ErrConflict
	}
	return r, nil
}

func markRenewal(ctx context.Context, tx *sql.Tx, r *models.SubscriptionRenewalRequest) error {
	return tx.QueryRowContext(ctx, `UPDATE subscription_renewal_requests
			  SET status = $1, admin_note = $2, reviewed_by = $3, reviewed_at = now()
			  WHERE id = $4
			  RETURNING reviewed_at`, r.Status, r.AdminNote, r.ReviewedBy, r.ID,
	).Scan(&r.ReviewedAt)
}

// ApproveRenewal в одной транзакции блокирует ожидающую заявку и её подписку,
// применяет к подписке apply и отмечает заявку одобренной.
func (s *Storage) ApproveRenewal(ctx context.Context, id, reviewerID, adminNote string,
	apply func(r *models.SubscriptionRenewalRequest, sub *models.Subscription) error,
) (*models.SubscriptionRenewalRequest, *models.Subscription, error) {
	const op = "storage.ApproveRenewal"
	if err := checkCtx(ctx, op); err != nil {
		return nil, nil, err
	}
	var req *models.SubscriptionRenewalRequest
	var sub *models.Subscription
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		r, err := lockPendingRenewal(ctx, tx, id)
		if err != nil {
			return err
		}
		current, err := scanSubscription(tx.QueryRowContext(ctx,
			`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1 FOR UPDATE`, r.SubscriptionID))
		if err != nil {
			return err
		}
		if err := apply(r, current); err != nil {
			return err
		}
		if err := updateSubscription(ctx, tx, current); err != nil {
			return err
		}
		r.Status = models.RenewalStatusApproved
		r.AdminNote = adminNote
		r.ReviewedBy = &reviewerID
		if err := markRenewal(ctx, tx, r); err != nil {
			return err
		}
		req, sub = r, current
		return nil
	})
	if err != nil {
		return nil, nil, wrap(op, err)
	}
	return req, sub, nil
}

// RejectRenewal отклоняет ожидающую заявку.
func (s *Storage) RejectRenewal(ctx context.Context, id, reviewerID, adminNote string) (*models.SubscriptionRenewalRequest, error) {
	const op = "storage.RejectRenewal"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	var req *models.SubscriptionRenewalRequest
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		r, err := lockPendingRenewal(ctx, tx, id)
		if err != nil {
			return err
		}
		r.Status = models.RenewalStatusRejected
		r.AdminNote = adminNote
		r.ReviewedBy = &reviewerID
		if err := markRenewal(ctx, tx, r); err != nil {
			return err
		}
		req = r
		return nil
	})
	if err != nil {
		return nil, wrap(op, err)
	}
	return req, nil
}
