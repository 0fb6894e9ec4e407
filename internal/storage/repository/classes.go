package repository

import (
	"context"

	"github.com/magabrotheeeer/schoolhub/internal/models"
)

const classColumns = `id, tenant_id, name, grade, join_code, created_at`

func scanClass(row scanner) (*models.Class, error) {
	var c models.Class
	if err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.Grade, &c.JoinCode, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateClass сохраняет класс арендатора.
func (s *Storage) CreateClass(ctx context.Context, c *models.Class) error {
	const op = "storage.CreateClass"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	err := s.DB.QueryRowContext(ctx, `INSERT INTO classes (tenant_id, name, grade, join_code)
			  VALUES ($1, $2, $3, $4)
			  RETURNING id, created_at`, c.TenantID, c.Name, c.Grade, c.JoinCode,
	).Scan(&c.ID, &c.CreatedAt)
	return wrap(op, err)
}

// ListClasses возвращает классы арендатора.
func (s *Storage) ListClasses(ctx context.Context, tenantID string) ([]*models.Class, error) {
	const op = "storage.ListClasses"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+classColumns+` FROM classes WHERE tenant_id = $1 ORDER BY grade, name`, tenantID)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	result := make([]*models.Class, 0)
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, wrap(op, err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(op, err)
	}
	return result, nil
}

// CountClasses возвращает число классов арендатора.
func (s *Storage) CountClasses(ctx context.Context, tenantID string) (int, error) {
	const op = "storage.CountClasses"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}
	var n int
	if err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM classes WHERE tenant_id = $1`, tenantID).Scan(&n); err != nil {
		return 0, wrap(op, err)
	}
	return n, nil
}

// GetClass возвращает класс арендатора по ID.
func (s *Storage) GetClass(ctx context.Context, tenantID, id string) (*models.Class, error) {
	const op = "storage.GetClass"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	c, err := scanClass(s.DB.QueryRowContext(ctx,
		`SELECT `+classColumns+` FROM classes WHERE id = $1 AND tenant_id = $2`, id, tenantID))
	if err != nil {
		return nil, wrap(op, err)
	}
	return c, nil
}

// GetClassByJoinCode возвращает класс по коду присоединения.
func (s *Storage) GetClassByJoinCode(ctx context.Context, code string) (*models.Class, error) {
	const op = "storage.GetClassByJoinCode"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	c, err := scanClass(s.DB.QueryRowContext(ctx,
		`SELECT `+classColumns+` FROM classes WHERE join_code = $1`, code))
	if err != nil {
		return nil, wrap(op, err)
	}
	return c, nil
}
