package infra

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "guardian"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanNotifications: уведомления гардиану о флагах и заблокированных транзакциях.
	RedisChanNotifications = RedisNamespace + ":notifications"
)
