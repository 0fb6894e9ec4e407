package models

import (
	"encoding/json"
	"time"
)

// Типы уведомлений.
const (
	NotificationSubscriptionExpiring = "subscription_expiring"
	NotificationSubscriptionExpired  = "subscription_expired"
	NotificationRenewalApproved      = "renewal_approved"
	NotificationRenewalRejected      = "renewal_rejected"
	NotificationSchoolApproved       = "school_approved"
	NotificationParentLinked         = "parent_linked"
	NotificationWelcome              = "welcome"
)

// События push-канала.
const (
	EventStudentsUpdated        = "school:students:updated"
	EventSubscriptionExpiration = "subscription:expiration:notification"
	EventNotificationNew        = "notification:new"
)

// Notification уведомление внутри приложения.
type Notification struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	TenantID  *string         `json:"tenant_id,omitempty"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
	Read      bool            `json:"read"`
	ReadAt    *time.Time      `json:"read_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NotificationFilter параметры выборки уведомлений пользователя.
type NotificationFilter struct {
	UserID     string
	UnreadOnly bool
	Limit      int
	Offset     int
}

// EmailMessage письмо, передаваемое через брокер в сервис отправки.
type EmailMessage struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
	Kind    string   `json:"kind,omitempty"`
}

// PushEvent событие для доставки подключённым клиентам.
// Адресат: пользователь (UserID) и/или комната арендатора (TenantID).
type PushEvent struct {
	Event    string `json:"event"`
	UserID   string `json:"user_id,omitempty"`
	TenantID string `json:"tenant_id,omitempty"`
	Data     any    `json:"data"`
}

// PaymentEvent событие платёжного провайдера после проверки подписи.
type PaymentEvent struct {
	ID                   string
	Type                 string
	SessionID            string
	CustomerID           string
	StripeSubscriptionID string
	BillingReason        string // для invoice.paid: subscription_create, subscription_cycle, ...
	Metadata             map[string]string
}
