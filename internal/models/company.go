package models

import "time"

// Статусы заявки компании на подключение.
const (
	CompanyStatusPending  = "pending_approval"
	CompanyStatusApproved = "approved"
	CompanyStatusRejected = "rejected"
)

// Виды компаний.
const (
	CompanyKindSchool  = "school"
	CompanyKindCompany = "company"
)

// Company школа или компания, зарегистрировавшаяся на платформе.
type Company struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	Phone           string     `json:"phone,omitempty"`
	Address         string     `json:"address,omitempty"`
	ContactName     string     `json:"contact_name"`
	Kind            string     `json:"kind"`
	Status          string     `json:"status"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
	ReviewedBy      *string    `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Organization арендатор, в рамках которого разделяются данные школы.
type Organization struct {
	ID               string    `json:"id"`
	CompanyID        string    `json:"company_id"`
	Name             string    `json:"name"`
	Code             string    `json:"code"` // короткий код, используется в номерах зачисления
	AdmissionCounter int       `json:"admission_counter"`
	CreatedAt        time.Time `json:"created_at"`
}

// CompanySignup данные регистрации школы, приходящие из JSON-запроса.
type CompanySignup struct {
	CompanyName string `json:"companyName" validate:"required,min=2,max=200"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	ContactName string `json:"contactName" validate:"required"`
	Phone       string `json:"phone" validate:"omitempty,max=32"`
	Address     string `json:"address" validate:"omitempty,max=300"`
	Kind        string `json:"kind" validate:"omitempty,oneof=school company"`
}
