package apiclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

type ReliabilityConfig struct {
	RateLimit     float64
	RateBurst     int
	RetryAttempts uint
	// Таймаут одной попытки
	AttemptTimeout time.Duration

	CBMaxRequests uint32
	CBInterval    time.Duration
	CBTimeout     time.Duration
}

// ReliabilityWrapper: rate limit -> circuit breaker -> retry с бэкоффом.
type ReliabilityWrapper struct {
	cb       *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	attempts uint
	timeout  time.Duration
}

func NewReliabilityWrapper(cfg ReliabilityConfig) *ReliabilityWrapper {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "guardian-api",
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Если более 5 ошибок подряд, открываемся (блокируем трафик)
			return counts.ConsecutiveFailures > 5
		},
		// Ответы 4xx: ошибка клиента, а не отказ API: предохранитель не трогаем
		IsSuccessful: func(err error) bool {
			var sErr *StatusError
			if errors.As(err, &sErr) {
				return !sErr.Temporary()
			}
			return err == nil
		},
	})

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	attempts := cfg.RetryAttempts
	if attempts == 0 {
		attempts = 1
	}

	return &ReliabilityWrapper{
		cb:       cb,
		limiter:  rate.NewLimiter(limit, burst),
		attempts: attempts,
		timeout:  cfg.AttemptTimeout,
	}
}

// Call выполняет attempt с защитой. attempt получает контекст одной попытки.
func (w *ReliabilityWrapper) Call(ctx context.Context, attempt func(ctx context.Context) error) error {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit exceeded: %w", err)
	}

	// 2. Circuit Breaker
	_, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(w.attempts),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Сервер сам сказал, когда приходить (Retry-After)
				var tErr *ThrottleError
				if errors.As(err, &tErr) && tErr.RetryAfter > 0 {
					return tErr.RetryAfter
				}
				return retry.BackOffDelay(n, err, config)
			}),
		)

		return nil, r.Do(func() error {
			aCtx := ctx
			if w.timeout > 0 {
				var cancel context.CancelFunc
				aCtx, cancel = context.WithTimeout(ctx, w.timeout)
				defer cancel()
			}

			err := attempt(aCtx)
			var sErr *StatusError
			if errors.As(err, &sErr) && !sErr.Temporary() {
				return retry.Unrecoverable(err)
			}
			return err
		})
	})
	return err
}

// State: состояние предохранителя (для логов консоли).
func (w *ReliabilityWrapper) State() gobreaker.State {
	return w.cb.State()
}
