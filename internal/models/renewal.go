package models

import "time"

// Статусы заявки на продление.
const (
	RenewalStatusPending  = "pending"
	RenewalStatusApproved = "approved"
	RenewalStatusRejected = "rejected"
)

// SubscriptionRenewalRequest заявка владельца подписки на продление или смену плана.
type SubscriptionRenewalRequest struct {
	ID             string     `json:"id"`
	SubscriptionID string     `json:"subscription_id"`
	RequestedBy    string     `json:"requested_by"`
	Plan           string     `json:"plan"`
	BillingCycle   string     `json:"billing_cycle"`
	Status         string     `json:"status"`
	Note           string     `json:"note,omitempty"`
	AdminNote      string     `json:"admin_note,omitempty"`
	ReviewedBy     *string    `json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// RenewalRequestInput данные заявки из JSON-запроса.
type RenewalRequestInput struct {
	Plan         string `json:"plan" validate:"required"`
	BillingCycle string `json:"billingCycle" validate:"required,oneof=monthly yearly"`
	Note         string `json:"note" validate:"omitempty,max=500"`
}

// SubscriptionExpirationNotification отметка об отправленном напоминании об окончании подписки.
// Для одной подписки и одного срока окончания напоминание за N дней отправляется один раз.
type SubscriptionExpirationNotification struct {
	ID             int64     `json:"id"`
	SubscriptionID string    `json:"subscription_id"`
	DaysBefore     int       `json:"days_before"`
	EndDate        time.Time `json:"end_date"`
	SentAt         time.Time `json:"sent_at"`
}
