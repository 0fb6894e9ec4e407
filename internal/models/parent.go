package models

import "time"

// Статусы намерения регистрации родителя.
const (
	IntentStatusPending   = "pending"
	IntentStatusCompleted = "completed"
	IntentStatusExpired   = "expired"
)

// ParentRegistrationIntent незавершённая регистрация родителя, ожидающая оплаты.
type ParentRegistrationIntent struct {
	ID                string    `json:"id"`
	Email             string    `json:"email"`
	Name              string    `json:"name"`
	PasswordHash      string    `json:"-"`
	StudentID         string    `json:"student_id"`
	Plan              string    `json:"plan"`
	BillingCycle      string    `json:"billing_cycle"`
	Status            string    `json:"status"`
	CheckoutSessionID *string   `json:"checkout_session_id,omitempty"`
	ParentID          *string   `json:"parent_id,omitempty"`
	ExpiresAt         time.Time `json:"expires_at"`
	CreatedAt         time.Time `json:"created_at"`
}

// IsExpired сообщает, истёк ли срок жизни намерения.
func (i *ParentRegistrationIntent) IsExpired(now time.Time) bool {
	return !i.ExpiresAt.After(now)
}

// ParentIntentInput данные намерения из JSON-запроса.
type ParentIntentInput struct {
	Name            string `json:"name" validate:"required,max=120"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8"`
	StudentLinkCode string `json:"studentLinkCode" validate:"required,len=8"`
	Plan            string `json:"plan" validate:"required"`
	BillingCycle    string `json:"billingCycle" validate:"required,oneof=monthly yearly"`
}

// ParentIntentResult результат создания намерения.
type ParentIntentResult struct {
	IntentID    string `json:"intentId"`
	CheckoutURL string `json:"checkoutUrl,omitempty"`
	ParentID    string `json:"parentId,omitempty"` // заполняется, если аккаунт создан сразу (бесплатный план)
	ExpiresAt   string `json:"expiresAt"`
}

// ParentAccount результат создания аккаунта родителя из намерения.
type ParentAccount struct {
	Parent       *User
	Subscription *Subscription
	StudentID    string
}
