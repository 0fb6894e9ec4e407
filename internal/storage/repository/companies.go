package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/schoolhub/internal/models"
)

const companyColumns = `id, name, email, phone, address, contact_name, kind, status,
	rejection_reason, reviewed_by, reviewed_at, created_at`

const organizationColumns = `id, company_id, name, code, admission_counter, created_at`

func scanCompany(row scanner) (*models.Company, error) {
	var c models.Company
	if err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.ContactName, &c.Kind, &c.Status,
		&c.RejectionReason, &c.ReviewedBy, &c.ReviewedAt, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanOrganization(row scanner) (*models.Organization, error) {
	var o models.Organization
	if err := row.Scan(&o.ID, &o.CompanyID, &o.Name, &o.Code, &o.AdmissionCounter, &o.CreatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}

// uniqueOrgCode подбирает свободный код организации: base, base2, base3 и т.д.
func uniqueOrgCode(ctx context.Context, q querier, base string) (string, error) {
	code := base
	for i := 2; i < 1000; i++ {
		var exists bool
		if err := q.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM organizations WHERE code = $1)`, code).Scan(&exists); err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
		code = fmt.Sprintf("%s%d", base, i)
	}
	return "", fmt.Errorf("no free organization code for %s", base)
}

// CreateCompanySignup в одной транзакции сохраняет компанию, её организацию-арендатора
// и администратора. Код организации дополняется числом, если базовый уже занят.
func (s *Storage) CreateCompanySignup(ctx context.Context, c *models.Company, org *models.Organization, admin *models.User) error {
	const op = "storage.CreateCompanySignup"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `INSERT INTO companies (name, email, phone, address, contact_name, kind, status)
				  VALUES ($1, lower($2), $3, $4, $5, $6, $7)
				  RETURNING id, email, created_at`,
			c.Name, c.Email, c.Phone, c.Address, c.ContactName, c.Kind, c.Status,
		).Scan(&c.ID, &c.Email, &c.CreatedAt)
		if err != nil {
			return err
		}

		code, err := uniqueOrgCode(ctx, tx, org.Code)
		if err != nil {
			return err
		}
		org.Code = code
		org.CompanyID = c.ID
		err = tx.QueryRowContext(ctx, `INSERT INTO organizations (company_id, name, code)
				  VALUES ($1, $2, $3)
				  RETURNING id, created_at`, org.CompanyID, org.Name, org.Code,
		).Scan(&org.ID, &org.CreatedAt)
		if err != nil {
			return err
		}

		admin.TenantID = &org.ID
		return insertUser(ctx, tx, admin)
	})
	return wrap(op, err)
}

// GetCompany возвращает компанию по ID.
func (s *Storage) GetCompany(ctx context.Context, id string) (*models.Company, error) {
	const op = "storage.GetCompany"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	c, err := scanCompany(s.DB.QueryRowContext(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, id))
	if err != nil {
		return nil, wrap(op, err)
	}
	return c, nil
}

// ListCompaniesByStatus возвращает компании в статусе status, старые первыми.
func (s *Storage) ListCompaniesByStatus(ctx context.Context, status string) ([]*models.Company, error) {
	const op = "storage.ListCompaniesByStatus"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE status = $1 ORDER BY created_at`, status)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	result := make([]*models.Company, 0)
	for rows.Next() {
		c, err := scanCompany(rows)
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

// GetOrganizationByCompany возвращает организацию компании.
func (s *Storage) GetOrganizationByCompany(ctx context.Context, companyID string) (*models.Organization, error) {
	const op = "storage.GetOrganizationByCompany"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	o, err := scanOrganization(s.DB.QueryRowContext(ctx,
		`SELECT `+organizationColumns+` FROM organizations WHERE company_id = $1`, companyID))
	if err != nil {
		return nil, wrap(op, err)
	}
	return o, nil
}

// GetOrganization возвращает организацию по ID.
func (s *Storage) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	const op = "storage.GetOrganization"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	o, err := scanOrganization(s.DB.QueryRowContext(ctx,
		`SELECT `+organizationColumns+` FROM organizations WHERE id = $1`, id))
	if err != nil {
		return nil, wrap(op, err)
	}
	return o, nil
}

// reviewCompany переводит компанию из pending_approval в status.
// Если компания уже рассмотрена, возвращает ErrConflict.
func reviewCompany(ctx context.Context, tx *sql.Tx, companyID, reviewerID, status string, reason *string) (*models.Company, error) {
	c, err := scanCompany(tx.QueryRowContext(ctx, `UPDATE companies
			  SET status = $1, reviewed_by = $2, reviewed_at = now(), rejection_reason = $3
			  WHERE id = $4 AND status = 'pending_approval'
			  RETURNING `+companyColumns, status, reviewerID, reason, companyID))
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM companies WHERE id = $1)`, companyID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}
	return nil, ErrConflict
}

// ApproveCompany одобряет компанию, активирует администраторов её организации
// и создаёт подписку арендатора, построенную trial. Всё в одной транзакции.
func (s *Storage) ApproveCompany(ctx context.Context, companyID, reviewerID string,
	trial func(org *models.Organization) *models.Subscription) (*models.Company, *models.Organization, error) {
	const op = "storage.ApproveCompany"
	if err := checkCtx(ctx, op); err != nil {
		return nil, nil, err
	}
	var company *models.Company
	var org *models.Organization
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		c, err := reviewCompany(ctx, tx, companyID, reviewerID, models.CompanyStatusApproved, nil)
		if err != nil {
			return err
		}
		o, err := scanOrganization(tx.QueryRowContext(ctx,
			`SELECT `+organizationColumns+` FROM organizations WHERE company_id = $1`, companyID))
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE users SET status = 'active'
				  WHERE tenant_id = $1 AND role = 'school_admin' AND status = 'pending'`, o.ID)
		if err != nil {
			return err
		}
		if sub := trial(o); sub != nil {
			if err := insertSubscription(ctx, tx, sub); err != nil {
				return err
			}
		}
		company, org = c, o
		return nil
	})
	if err != nil {
		return nil, nil, wrap(op, err)
	}
	return company, org, nil
}

// RejectCompany отклоняет компанию и блокирует администраторов её организации.
func (s *Storage) RejectCompany(ctx context.Context, companyID, reviewerID, reason string) (*models.Company, error) {
	const op = "storage.RejectCompany"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	var company *models.Company
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		c, err := reviewCompany(ctx, tx, companyID, reviewerID, models.CompanyStatusRejected, &reason)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE users SET status = 'disabled'
				  WHERE role = 'school_admin'
				    AND tenant_id = (SELECT id FROM organizations WHERE company_id = $1)`, companyID)
		if err != nil {
			return err
		}
		company = c
		return nil
	})
	if err != nil {
		return nil, wrap(op, err)
	}
	return company, nil
}
