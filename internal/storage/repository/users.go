package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/magabrotheeeer/schoolhub/internal/models"
)

const userColumns = `id, tenant_id, email, password_hash, name, role, status,
	admission_number, class_id, parent_link_code, created_at`

func scanUser(row scanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.TenantID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.Status,
		&u.AdmissionNumber, &u.ClassID, &u.ParentLinkCode, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func insertUser(ctx context.Context, q querier, u *models.User) error {
	query := `INSERT INTO users (tenant_id, email, password_hash, name, role, status,
			      admission_number, class_id, parent_link_code)
			  VALUES ($1, lower($2), $3, $4, $5, $6, $7, $8, $9)
			  RETURNING id, email, created_at`
	return q.QueryRowContext(ctx, query,
		u.TenantID, u.Email, u.PasswordHash, u.Name, u.Role, u.Status,
		u.AdmissionNumber, u.ClassID, u.ParentLinkCode,
	).Scan(&u.ID, &u.Email, &u.CreatedAt)
}

// CreateUser сохраняет пользователя и заполняет его ID и дату создания.
func (s *Storage) CreateUser(ctx context.Context, u *models.User) error {
	const op = "storage.CreateUser"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	return wrap(op, insertUser(ctx, s.DB, u))
}

// CreateUserWithSubscription в одной транзакции сохраняет пользователя и его подписку.
func (s *Storage) CreateUserWithSubscription(ctx context.Context, u *models.User, sub *models.Subscription) error {
	const op = "storage.CreateUserWithSubscription"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertUser(ctx, tx, u); err != nil {
			return err
		}
		sub.UserID = &u.ID
		return insertSubscription(ctx, tx, sub)
	})
	return wrap(op, err)
}

// GetUserByEmail возвращает пользователя по email без учёта регистра.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.GetUserByEmail"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE email = lower($1)`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, email))
	if err != nil {
		return nil, wrap(op, err)
	}
	return u, nil
}

// GetUser возвращает пользователя по ID.
func (s *Storage) GetUser(ctx context.Context, id string) (*models.User, error) {
	const op = "storage.GetUser"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, wrap(op, err)
	}
	return u, nil
}

// EmailTaken проверяет, занят ли email пользователем или компанией.
func (s *Storage) EmailTaken(ctx context.Context, email string) (bool, error) {
	const op = "storage.EmailTaken"
	if err := checkCtx(ctx, op); err != nil {
		return false, err
	}
	query := `SELECT EXISTS (SELECT 1 FROM users WHERE email = lower($1))
			      OR EXISTS (SELECT 1 FROM companies WHERE email = lower($1))`
	var taken bool
	if err := s.DB.QueryRowContext(ctx, query, email).Scan(&taken); err != nil {
		return false, wrap(op, err)
	}
	return taken, nil
}

// UpdatePassword меняет хеш пароля пользователя.
func (s *Storage) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	const op = "storage.UpdatePassword"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	res, err := s.DB.ExecContext(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, passwordHash, userID)
	if err != nil {
		return wrap(op, err)
	}
	return affected(op, res)
}

// ListUsersByRole возвращает пользователей с ролью role.
func (s *Storage) ListUsersByRole(ctx context.Context, role string) ([]*models.User, error) {
	const op = "storage.ListUsersByRole"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE role = $1 AND status = 'active' ORDER BY created_at`
	return s.queryUsers(ctx, op, query, role)
}

// ListTenantAdmins возвращает администраторов арендатора.
func (s *Storage) ListTenantAdmins(ctx context.Context, tenantID string) ([]*models.User, error) {
	const op = "storage.ListTenantAdmins"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	query := `SELECT ` + userColumns + ` FROM users
			  WHERE tenant_id = $1 AND role = 'school_admin'
			  ORDER BY created_at`
	return s.queryUsers(ctx, op, query, tenantID)
}

// GetStudentByLinkCode возвращает ученика по коду привязки родителя.
func (s *Storage) GetStudentByLinkCode(ctx context.Context, code string) (*models.User, error) {
	const op = "storage.GetStudentByLinkCode"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE parent_link_code = $1 AND role = 'student'`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, code))
	if err != nil {
		return nil, wrap(op, err)
	}
	return u, nil
}

// ListStudents возвращает учеников арендатора постранично.
func (s *Storage) ListStudents(ctx context.Context, tenantID string, limit, offset int) ([]*models.User, error) {
	const op = "storage.ListStudents"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	limit, offset = pageArgs(limit, offset)
	query := `SELECT ` + userColumns + ` FROM users
			  WHERE tenant_id = $1 AND role = 'student'
			  ORDER BY admission_number NULLS LAST, created_at
			  LIMIT $2 OFFSET $3`
	return s.queryUsers(ctx, op, query, tenantID, limit, offset)
}

// CountStudents возвращает число учеников арендатора.
func (s *Storage) CountStudents(ctx context.Context, tenantID string) (int, error) {
	const op = "storage.CountStudents"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE tenant_id = $1 AND role = 'student'`, tenantID).Scan(&n)
	if err != nil {
		return 0, wrap(op, err)
	}
	return n, nil
}

// nextAdmissionSeq атомарно увеличивает счётчик зачисления арендатора.
func nextAdmissionSeq(ctx context.Context, q querier, tenantID string) (code string, seq int, err error) {
	err = q.QueryRowContext(ctx, `UPDATE organizations
			  SET admission_counter = admission_counter + 1
			  WHERE id = $1
			  RETURNING code, admission_counter`, tenantID).Scan(&code, &seq)
	return code, seq, err
}

// CreateSchoolStudent создаёт ученика арендатора. Номер зачисления формирует number
// из кода организации и очередного значения счётчика в той же транзакции.
func (s *Storage) CreateSchoolStudent(ctx context.Context, u *models.User, number func(orgCode string, seq int) string) error {
	const op = "storage.CreateSchoolStudent"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	if u.TenantID == nil {
		return fmt.Errorf("%s: tenant is required", op)
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		code, seq, err := nextAdmissionSeq(ctx, tx, *u.TenantID)
		if err != nil {
			return err
		}
		n := number(code, seq)
		u.AdmissionNumber = &n
		return insertUser(ctx, tx, u)
	})
	return wrap(op, err)
}

// AttachStudentToClass переводит ученика в класс и арендатора класса, назначая
// номер зачисления, если ученик переходит в другого арендатора.
func (s *Storage) AttachStudentToClass(ctx context.Context, studentID string, class *models.Class,
	number func(orgCode string, seq int) string) (*models.User, error) {
	const op = "storage.AttachStudentToClass"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	var student *models.User
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		u, err := scanUser(tx.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = $1 AND role = 'student' FOR UPDATE`, studentID))
		if err != nil {
			return err
		}
		admission := u.AdmissionNumber
		if u.TenantID == nil || *u.TenantID != class.TenantID {
			code, seq, err := nextAdmissionSeq(ctx, tx, class.TenantID)
			if err != nil {
				return err
			}
			n := number(code, seq)
			admission = &n
		}
		_, err = tx.ExecContext(ctx, `UPDATE users
				  SET tenant_id = $1, class_id = $2, admission_number = $3
				  WHERE id = $4`, class.TenantID, class.ID, admission, studentID)
		if err != nil {
			return err
		}
		u.TenantID = &class.TenantID
		u.ClassID = &class.ID
		u.AdmissionNumber = admission
		student = u
		return nil
	})
	if err != nil {
		return nil, wrap(op, err)
	}
	return student, nil
}

// LinkParent связывает родителя с учеником. Повторная связь не считается ошибкой.
func (s *Storage) LinkParent(ctx context.Context, parentID, studentID string) error {
	const op = "storage.LinkParent"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO parent_student_links (parent_id, student_id)
			  VALUES ($1, $2) ON CONFLICT DO NOTHING`, parentID, studentID)
	return wrap(op, err)
}

// ListChildren возвращает учеников, привязанных к родителю.
func (s *Storage) ListChildren(ctx context.Context, parentID string) ([]*models.User, error) {
	const op = "storage.ListChildren"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	query := `SELECT u.id, u.tenant_id, u.email, u.password_hash, u.name, u.role, u.status,
			      u.admission_number, u.class_id, u.parent_link_code, u.created_at
			  FROM parent_student_links l
			  JOIN users u ON u.id = l.student_id
			  WHERE l.parent_id = $1
			  ORDER BY l.created_at`
	return s.queryUsers(ctx, op, query, parentID)
}

// CountChildren возвращает число учеников, привязанных к родителю.
func (s *Storage) CountChildren(ctx context.Context, parentID string) (int, error) {
	const op = "storage.CountChildren"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM parent_student_links WHERE parent_id = $1`, parentID).Scan(&n)
	if err != nil {
		return 0, wrap(op, err)
	}
	return n, nil
}

// ListParentsOfStudent возвращает родителей ученика.
func (s *Storage) ListParentsOfStudent(ctx context.Context, studentID string) ([]*models.User, error) {
	const op = "storage.ListParentsOfStudent"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	query := `SELECT u.id, u.tenant_id, u.email, u.password_hash, u.name, u.role, u.status,
			      u.admission_number, u.class_id, u.parent_link_code, u.created_at
			  FROM parent_student_links l
			  JOIN users u ON u.id = l.parent_id
			  WHERE l.student_id = $1`
	return s.queryUsers(ctx, op, query, studentID)
}

func (s *Storage) queryUsers(ctx context.Context, op, query string, args ...any) ([]*models.User, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	result := make([]*models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, wrap(op, err)
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(op, err)
	}
	return result, nil
}
