package repository

import (
	"context"
	"time"

	"github.com/magabrotheeeer/schoolhub/internal/models"
)

const subscriptionColumns = `id, user_id, tenant_id, plan, status, billing_cycle, amount, currency,
	start_date, end_date, auto_renew, stripe_customer_id, stripe_subscription_id, created_at, updated_at`

// ownerLateral выбирает адресата уведомлений подписки: владельца-пользователя
// или первого администратора арендатора.
const ownerLateral = `LEFT JOIN LATERAL (
		SELECT u.id, u.email, u.name FROM users u
		WHERE (s.user_id IS NOT NULL AND u.id = s.user_id)
		   OR (s.tenant_id IS NOT NULL AND u.tenant_id = s.tenant_id AND u.role = 'school_admin')
		ORDER BY u.created_at
		LIMIT 1
	) o ON true`

func subscriptionFields(s *models.Subscription) []any {
	return []any{&s.ID, &s.UserID, &s.TenantID, &s.Plan, &s.Status, &s.BillingCycle, &s.Amount, &s.Currency,
		&s.StartDate, &s.EndDate, &s.AutoRenew, &s.StripeCustomerID, &s.StripeSubscriptionID, &s.CreatedAt, &s.UpdatedAt}
}

func scanSubscription(row scanner) (*models.Subscription, error) {
	var s models.Subscription
	if err := row.Scan(subscriptionFields(&s)...); err != nil {
		return nil, err
	}
	return &s, nil
}

func insertSubscription(ctx context.Context, q querier, s *models.Subscription) error {
	return q.QueryRowContext(ctx, `INSERT INTO subscriptions (user_id, tenant_id, plan, status, billing_cycle,
			      amount, currency, start_date, end_date, auto_renew, stripe_customer_id, stripe_subscription_id)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			  RETURNING id, created_at, updated_at`,
		s.UserID, s.TenantID, s.Plan, s.Status, s.BillingCycle, s.Amount, s.Currency,
		s.StartDate, s.EndDate, s.AutoRenew, s.StripeCustomerID, s.StripeSubscriptionID,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

func updateSubscription(ctx context.Context, q querier, s *models.Subscription) error {
	return q.QueryRowContext(ctx, `UPDATE subscriptions
			  SET plan = $1, status = $2, billing_cycle = $3, amount = $4, currency = $5,
			      start_date = $6, end_date = $7, auto_renew = $8,
			      stripe_customer_id = $9, stripe_subscription_id = $10, updated_at = now()
			  WHERE id = $11
			  RETURNING updated_at`,
		s.Plan, s.Status, s.BillingCycle, s.Amount, s.Currency,
		s.StartDate, s.EndDate, s.AutoRenew, s.StripeCustomerID, s.StripeSubscriptionID, s.ID,
	).Scan(&s.UpdatedAt)
}

// CreateSubscription сохраняет подписку. У владельца может быть только одна подписка.
func (s *Storage) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	const op = "storage.CreateSubscription"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	return wrap(op, insertSubscription(ctx, s.DB, sub))
}

// UpdateSubscription сохраняет изменяемые поля подписки.
func (s *Storage) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	const op = "storage.UpdateSubscription"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	return wrap(op, updateSubscription(ctx, s.DB, sub))
}

// DeleteSubscription удаляет подписку.
func (s *Storage) DeleteSubscription(ctx context.Context, id string) error {
	const op = "storage.DeleteSubscription"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	res, err := s.DB.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return wrap(op, err)
	}
	return affected(op, res)
}

func (s *Storage) getSubscriptionBy(ctx context.Context, op, column, value string) (*models.Subscription, error) {
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE `+column+` = $1`, value))
	if err != nil {
		return nil, wrap(op, err)
	}
	return sub, nil
}

// GetSubscription возвращает подписку по ID.
func (s *Storage) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	return s.getSubscriptionBy(ctx, "storage.GetSubscription", "id", id)
}

// GetSubscriptionByUser возвращает подписку пользователя.
func (s *Storage) GetSubscriptionByUser(ctx context.Context, userID string) (*models.Subscription, error) {
	return s.getSubscriptionBy(ctx, "storage.GetSubscriptionByUser", "user_id", userID)
}

// GetSubscriptionByTenant возвращает подписку арендатора.
func (s *Storage) GetSubscriptionByTenant(ctx context.Context, tenantID string) (*models.Subscription, error) {
	return s.getSubscriptionBy(ctx, "storage.GetSubscriptionByTenant", "tenant_id", tenantID)
}

// GetSubscriptionByStripeID возвращает подписку по идентификатору подписки Stripe.
func (s *Storage) GetSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	return s.getSubscriptionBy(ctx, "storage.GetSubscriptionByStripeID", "stripe_subscription_id", stripeSubscriptionID)
}

// ListSubscriptions возвращает подписки с фильтром по статусу постранично.
func (s *Storage) ListSubscriptions(ctx context.Context, filter models.SubscriptionFilter) ([]*models.Subscription, error) {
	const op = "storage.ListSubscriptions"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	limit, offset := pageArgs(filter.Limit, filter.Offset)
	rows, err := s.DB.QueryContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions
			  WHERE ($1::text = '' OR status = $1)
			  ORDER BY created_at DESC
			  LIMIT $2 OFFSET $3`, filter.Status, limit, offset)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	result := make([]*models.Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, wrap(op, err)
		}
		result = append(result, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(op, err)
	}
	return result, nil
}

func (s *Storage) queryExpiring(ctx context.Context, op, query string, args ...any) ([]*models.ExpiringSubscription, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	result := make([]*models.ExpiringSubscription, 0)
	for rows.Next() {
		var sub models.Subscription
		var ownerID, ownerEmail, ownerName *string
		dest := append(subscriptionFields(&sub), &ownerID, &ownerEmail, &ownerName)
		if err := rows.Scan(dest...); err != nil {
			return nil, wrap(op, err)
		}
		item := &models.ExpiringSubscription{Subscription: &sub}
		if ownerID != nil {
			item.OwnerID = *ownerID
			item.OwnerEmail = *ownerEmail
			item.OwnerName = *ownerName
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(op, err)
	}
	return result, nil
}

// ListExpiring возвращает действующие подписки, срок которых заканчивается в (now, until],
// вместе с адресатом уведомлений.
func (s *Storage) ListExpiring(ctx context.Context, now, until time.Time) ([]*models.ExpiringSubscription, error) {
	const op = "storage.ListExpiring"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	query := `SELECT s.id, s.user_id, s.tenant_id, s.plan, s.status, s.billing_cycle, s.amount, s.currency,
			      s.start_date, s.end_date, s.auto_renew, s.stripe_customer_id, s.stripe_subscription_id,
			      s.created_at, s.updated_at, o.id, o.email, o.name
			  FROM subscriptions s
			  ` + ownerLateral + `
			  WHERE s.status IN ('active', 'trial') AND s.end_date > $1 AND s.end_date <= $2
			  ORDER BY s.end_date`
	return s.queryExpiring(ctx, op, query, now, until)
}

// ExpireOverdue переводит в expired действующие подписки с end_date <= now
// и возвращает их вместе с адресатом уведомлений.
func (s *Storage) ExpireOverdue(ctx context.Context, now time.Time) ([]*models.ExpiringSubscription, error) {
	const op = "storage.ExpireOverdue"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	query := `WITH s AS (
			      UPDATE subscriptions SET status = 'expired', updated_at = now()
			      WHERE status IN ('active', 'trial') AND end_date <= $1
			      RETURNING ` + subscriptionColumns + `
			  )
			  SELECT s.id, s.user_id, s.tenant_id, s.plan, s.status, s.billing_cycle, s.amount, s.currency,
			      s.start_date, s.end_date, s.auto_renew, s.stripe_customer_id, s.stripe_subscription_id,
			      s.created_at, s.updated_at, o.id, o.email, o.name
			  FROM s
			  ` + ownerLateral
	return s.queryExpiring(ctx, op, query, now)
}
