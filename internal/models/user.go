// Package models содержит доменные структуры платформы: компании и арендаторов,
// пользователей, подписки, заявки на продление, уведомления и намерения регистрации родителей.
// Структуры используются в бизнес-логике, хранилище и сообщениях брокера.
package models

import "time"

// Роли пользователей.
const (
	RoleSuperAdmin  = "super_admin"
	RoleSchoolAdmin = "school_admin"
	RoleStudent     = "student"
	RoleParent      = "parent"
)

// Статусы учётной записи.
const (
	UserStatusActive   = "active"
	UserStatusPending  = "pending"
	UserStatusDisabled = "disabled"
)

// User представляет зарегистрированного пользователя системы.
type User struct {
	ID              string    `json:"id"`
	TenantID        *string   `json:"tenant_id,omitempty"` // арендатор (школа), nil для независимых учеников и родителей
	Email           string    `json:"email"`
	PasswordHash    string    `json:"-"`
	Name            string    `json:"name"`
	Role            string    `json:"role"`
	Status          string    `json:"status"`
	AdmissionNumber *string   `json:"admission_number,omitempty"`
	ClassID         *string   `json:"class_id,omitempty"`
	ParentLinkCode  *string   `json:"parent_link_code,omitempty"` // код для привязки родителя
	CreatedAt       time.Time `json:"created_at"`
}

// Student краткое представление ученика для списков школы и родителя.
type Student struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Email           string  `json:"email"`
	AdmissionNumber *string `json:"admission_number,omitempty"`
	ClassID         *string `json:"class_id,omitempty"`
	TenantID        *string `json:"tenant_id,omitempty"`
	ParentLinkCode  *string `json:"parent_link_code,omitempty"`
}

// Class учебный класс школы с кодом для присоединения учеников.
type Class struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name" validate:"required"`
	Grade     string    `json:"grade"`
	JoinCode  string    `json:"join_code"`
	CreatedAt time.Time `json:"created_at"`
}

// Identity данные аутентифицированного пользователя, извлекаемые из токена.
type Identity struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	TenantID string `json:"tenant_id,omitempty"`
}

// ClassInput данные класса из JSON-запроса.
type ClassInput struct {
	Name  string `json:"name" validate:"required,max=100"`
	Grade string `json:"grade" validate:"omitempty,max=20"`
}

// StudentInput данные ученика, создаваемого администратором школы.
type StudentInput struct {
	Name     string  `json:"name" validate:"required,max=120"`
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=8"`
	ClassID  *string `json:"classId" validate:"omitempty,uuid"`
}

// StudentSignup данные самостоятельной регистрации ученика.
type StudentSignup struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// JoinSchoolInput код присоединения к классу.
type JoinSchoolInput struct {
	JoinCode string `json:"joinCode" validate:"required"`
}

// LinkChildInput код привязки ребёнка к родителю.
type LinkChildInput struct {
	StudentLinkCode string `json:"studentLinkCode" validate:"required"`
}

// StudentOf краткое представление пользователя-ученика.
func StudentOf(u *User) Student {
	return Student{
		ID: u.ID, Name: u.Name, Email: u.Email,
		AdmissionNumber: u.AdmissionNumber, ClassID: u.ClassID, TenantID: u.TenantID,
		ParentLinkCode: u.ParentLinkCode,
	}
}
