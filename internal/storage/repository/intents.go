package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/magabrotheeeer/schoolhub/internal/models"
)

// ErrIntentExpired намерение регистрации просрочено.
var ErrIntentExpired = errors.New("intent expired")

const intentColumns = `id, email, name, password_hash, student_id, plan, billing_cycle, status,
	checkout_session_id, parent_id, expires_at, created_at`

func scanIntent(row scanner) (*models.ParentRegistrationIntent, error) {
	var i models.ParentRegistrationIntent
	if err := row.Scan(&i.ID, &i.Email, &i.Name, &i.PasswordHash, &i.StudentID, &i.Plan, &i.BillingCycle,
		&i.Status, &i.CheckoutSessionID, &i.ParentID, &i.ExpiresAt, &i.CreatedAt); err != nil {
		return nil, err
	}
	return &i, nil
}

// CreateIntent сохраняет намерение регистрации родителя.
func (s *Storage) CreateIntent(ctx context.Context, i *models.ParentRegistrationIntent) error {
	const op = "storage.CreateIntent"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	err := s.DB.QueryRowContext(ctx, `INSERT INTO parent_registration_intents
			      (email, name, password_hash, student_id, plan, billing_cycle, status, expires_at)
			  VALUES (lower($1), $2, $3, $4, $5, $6, $7, $8)
			  RETURNING id, email, created_at`,
		i.Email, i.Name, i.PasswordHash, i.StudentID, i.Plan, i.BillingCycle, i.Status, i.ExpiresAt,
	).Scan(&i.ID, &i.Email, &i.CreatedAt)
	return wrap(op, err)
}

// GetIntent возвращает намерение по ID.
func (s *Storage) GetIntent(ctx context.Context, id string) (*models.ParentRegistrationIntent, error) {
	const op = "storage.GetIntent"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	i, err := scanIntent(s.DB.QueryRowContext(ctx,
		`SELECT `+intentColumns+` FROM parent_registration_intents WHERE id = $1`, id))
	if err != nil {
		return nil, wrap(op, err)
	}
	return i, nil
}

// SetIntentCheckoutSession сохраняет идентификатор сессии оплаты намерения.
func (s *Storage) SetIntentCheckoutSession(ctx context.Context, id, sessionID string) error {
	const op = "storage.SetIntentCheckoutSession"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	res, err := s.DB.ExecContext(ctx,
		`UPDATE parent_registration_intents SET checkout_session_id = $1 WHERE id = $2`, sessionID, id)
	if err != nil {
		return wrap(op, err)
	}
	return affected(op, res)
}

// CompleteParentIntent в одной транзакции блокирует намерение, проверяет его статус и срок,
// создаёт родителя и его подписку, построенных build, связывает родителя с учеником
// и отмечает намерение завершённым. Любая ошибка откатывает всё.
func (s *Storage) CompleteParentIntent(ctx context.Context, intentID string, now time.Time,
	build func(i *models.ParentRegistrationIntent) (*models.User, *models.Subscription, error),
) (*models.ParentAccount, error) {
	const op = "storage.CompleteParentIntent"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	var account *models.ParentAccount
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		intent, err := scanIntent(tx.QueryRowContext(ctx,
			`SELECT `+intentColumns+` FROM parent_registration_intents WHERE id = $1 FOR UPDATE`, intentID))
		if err != nil {
			return err
		}
		if intent.Status != models.IntentStatusPending {
			return ErrConflict
		}
		if intent.IsExpired(now) {
			return ErrIntentExpired
		}

		parent, sub, err := build(intent)
		if err != nil {
			return err
		}
		if err := insertUser(ctx, tx, parent); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO parent_student_links (parent_id, student_id)
				  VALUES ($1, $2) ON CONFLICT DO NOTHING`, parent.ID, intent.StudentID); err != nil {
			return err
		}
		sub.UserID = &parent.ID
		if err := insertSubscription(ctx, tx, sub); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE parent_registration_intents
				  SET status = 'completed', parent_id = $1
				  WHERE id = $2`, parent.ID, intent.ID); err != nil {
			return err
		}
		account = &models.ParentAccount{Parent: parent, Subscription: sub, StudentID: intent.StudentID}
		return nil
	})
	if err != nil {
		return nil, wrap(op, err)
	}
	return account, nil
}

// ExpirePendingIntents помечает просроченные ожидающие намерения и возвращает их число.
func (s *Storage) ExpirePendingIntents(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.ExpirePendingIntents"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}
	res, err := s.DB.ExecContext(ctx, `UPDATE parent_registration_intents
			  SET status = 'expired'
			  WHERE status = 'pending' AND expires_at <= $1`, now)
	if err != nil {
		return 0, wrap(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrap(op, err)
	}
	return n, nil
}
