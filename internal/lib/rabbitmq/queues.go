package rabbitmq

// Exchange обменник, через который ходят все уведомления.
const Exchange = "notifications"

// Ключи маршрутизации.
const (
	RoutingKeyEmail = "email"
	RoutingKeyPush  = "push"
)

// QueueEmail очередь писем для сервиса отправки.
const QueueEmail = "notification.email"

// QueueConfig описывает очередь и ключ, по которому она привязана к Exchange.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetNotificationQueues возвращает долговечные очереди, общие для всех экземпляров.
// Push-события читаются каждым экземпляром API из собственной временной очереди,
// см. DeclareInstanceQueue.
func GetNotificationQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: QueueEmail, RoutingKey: RoutingKeyEmail},
	}
}
