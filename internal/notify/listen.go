package notify

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultReconnectDelay: пауза перед повторной подпиской после обрыва.
const DefaultReconnectDelay = 5 * time.Second

// ListenFunc блокируется до отмены ctx и отдает каждое сообщение канала в handle.
type ListenFunc func(ctx context.Context, handle func(payload string))

// RedisListener: "живучая" подписка на канал Redis.
// Обрабатывает переподключения: при закрытии канала или ошибке подписки
// ждет reconnectDelay и подписывается заново.
func RedisListener(rdb *redis.Client, channel string, reconnectDelay time.Duration, logger *zap.Logger) ListenFunc {
	if reconnectDelay <= 0 {
		reconnectDelay = DefaultReconnectDelay
	}
	return func(ctx context.Context, handle func(payload string)) {
		for {
			pubsub := rdb.Subscribe(ctx, channel)

			// Проверка успешности подписки
			if _, err := pubsub.Receive(ctx); err != nil {
				_ = pubsub.Close()
				if ctx.Err() != nil {
					return
				}
				logger.Error("failed to subscribe", zap.String("chan", channel), zap.Error(err))
				if !sleepCtx(ctx, reconnectDelay) {
					return
				}
				continue
			}
			logger.Info("subscribed", zap.String("chan", channel))

			ch := pubsub.Channel()

		loop:
			for {
				select {
				case <-ctx.Done():
					_ = pubsub.Close()
					return
				case msg, ok := <-ch:
					if !ok {
						break loop // Канал закрыт, идем на переподключение
					}
					handle(msg.Payload)
				}
			}

			_ = pubsub.Close()
			logger.Warn("subscription lost, reconnecting", zap.String("chan", channel), zap.Duration("delay", reconnectDelay))
			if !sleepCtx(ctx, reconnectDelay) {
				return
			}
		}
	}
}

// sleepCtx возвращает false, если ctx отменен раньше, чем прошло d.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
